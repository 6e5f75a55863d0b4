// Package repository persists authentication events and realm users in PostgreSQL and MySQL.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/allisson/cas/internal/authn/domain"
	"github.com/allisson/cas/internal/database"
	apperrors "github.com/allisson/cas/internal/errors"
)

const authenticationEventColumns = `id, request_id, remote_address, credential_type, principal, handler, success,
	failure_kind, signature, created_at`

// PostgreSQLAuthenticationEventRepository implements AuthenticationEvent persistence for PostgreSQL.
type PostgreSQLAuthenticationEventRepository struct {
	db *sql.DB
}

// Create inserts an event. An empty signature is stored as NULL.
func (p *PostgreSQLAuthenticationEventRepository) Create(ctx context.Context, event *domain.AuthenticationEvent) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO authentication_events (` + authenticationEventColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := querier.ExecContext(
		ctx,
		query,
		event.ID,
		event.RequestID,
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

// List returns events ordered by created_at descending with inclusive optional bounds.
func (p *PostgreSQLAuthenticationEventRepository) List(
	ctx context.Context,
	offset, limit int,
	createdAtFrom, createdAtTo *time.Time,
) ([]*domain.AuthenticationEvent, error) {
	querier := database.GetTx(ctx, p.db)

	var conditions []string
	var args []any

	if createdAtFrom != nil {
		args = append(args, *createdAtFrom)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if createdAtTo != nil {
		args = append(args, *createdAtTo)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	query := `SELECT ` + authenticationEventColumns + ` FROM authentication_events`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

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
		var credentialType string

		err := rows.Scan(
			&event.ID,
			&event.RequestID,
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
		event.CredentialType = domain.CredentialType(credentialType)

		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate authentication events")
	}
	return events, nil
}

// DeleteOlderThan removes events created before olderThan. In dry-run mode the matching
// rows are only counted.
func (p *PostgreSQLAuthenticationEventRepository) DeleteOlderThan(
	ctx context.Context,
	olderThan time.Time,
	dryRun bool,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	if dryRun {
		var count int64
		err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM authentication_events WHERE created_at < $1`, olderThan).
			Scan(&count)
		if err != nil {
			return 0, apperrors.Wrap(err, "failed to count authentication events")
		}
		return count, nil
	}

	result, err := querier.ExecContext(ctx, `DELETE FROM authentication_events WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete authentication events")
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to get affected rows count")
	}
	return count, nil
}

// NewPostgreSQLAuthenticationEventRepository creates a new PostgreSQL AuthenticationEvent repository.
func NewPostgreSQLAuthenticationEventRepository(db *sql.DB) *PostgreSQLAuthenticationEventRepository {
	return &PostgreSQLAuthenticationEventRepository{db: db}
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
