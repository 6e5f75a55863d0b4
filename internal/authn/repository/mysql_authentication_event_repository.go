package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/allisson/cas/internal/authn/domain"
	"github.com/allisson/cas/internal/database"
	apperrors "github.com/allisson/cas/internal/errors"
)

// MySQLAuthenticationEventRepository implements AuthenticationEvent persistence for MySQL.
// UUIDs are stored as BINARY(16).
type MySQLAuthenticationEventRepository struct {
	db *sql.DB
}

func (m *MySQLAuthenticationEventRepository) Create(ctx context.Context, event *domain.AuthenticationEvent) error {
	querier := database.GetTx(ctx, m.db)

	id, err := event.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal authentication event id")
	}
	requestID, err := event.RequestID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal authentication event request_id")
	}

	query := `INSERT INTO authentication_events (` + authenticationEventColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		requestID,
		event.RemoteAddress,
		string(event.CredentialType),
		event.Principal,
		event.Handler,
		event.Success,
		event.FailureKind,
		nullableBytes(event.Signature),
		event.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create authentication event")
	}
	return nil
}

func (m *MySQLAuthenticationEventRepository) List(
	ctx context.Context,
	offset, limit int,
	createdAtFrom, createdAtTo *time.Time,
) ([]*domain.AuthenticationEvent, error) {
	querier := database.GetTx(ctx, m.db)

	var conditions []string
	var args []any

	if createdAtFrom != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, *createdAtFrom)
	}
	if createdAtTo != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, *createdAtTo)
	}

	query := `SELECT ` + authenticationEventColumns + ` FROM authentication_events`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list authentication events")
	}
	defer func() {
		_ = rows.Close()
	}()

	events := make([]*domain.AuthenticationEvent, 0)
	for rows.Next() {
		var event domain.AuthenticationEvent
		var idBinary, requestIDBinary []byte
		var credentialType string

		err := rows.Scan(
			&idBinary,
			&requestIDBinary,
			&event.RemoteAddress,
			&credentialType,
			&event.Principal,
			&event.Handler,
			&event.Success,
			&event.FailureKind,
			&event.Signature,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan authentication event")
		}

		if err := event.ID.UnmarshalBinary(idBinary); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal authentication event id")
		}
		if err := event.RequestID.UnmarshalBinary(requestIDBinary); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal authentication event request_id")
		}
		event.CredentialType = domain.CredentialType(credentialType)

		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate authentication events")
	}
	return events, nil
}

func (m *MySQLAuthenticationEventRepository) DeleteOlderThan(
	ctx context.Context,
	olderThan time.Time,
	dryRun bool,
) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	if dryRun {
		var count int64
		err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM authentication_events WHERE created_at < ?`, olderThan).
			Scan(&count)
		if err != nil {
			return 0, apperrors.Wrap(err, "failed to count authentication events")
		}
		return count, nil
	}

	result, err := querier.ExecContext(ctx, `DELETE FROM authentication_events WHERE created_at < ?`, olderThan)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete authentication events")
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to get affected rows count")
	}
	return count, nil
}

// NewMySQLAuthenticationEventRepository creates a new MySQL AuthenticationEvent repository.
func NewMySQLAuthenticationEventRepository(db *sql.DB) *MySQLAuthenticationEventRepository {
	return &MySQLAuthenticationEventRepository{db: db}
}
