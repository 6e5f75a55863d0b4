package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/allisson/cas/internal/authn/domain"
	"github.com/allisson/cas/internal/database"
	apperrors "github.com/allisson/cas/internal/errors"
)

// pqUniqueViolation is the PostgreSQL SQLSTATE for unique constraint violations.
const pqUniqueViolation = "23505"

// PostgreSQLRealmUserRepository implements RealmUser persistence for PostgreSQL.
type PostgreSQLRealmUserRepository struct {
	db *sql.DB
}

// Create inserts a user. A duplicate realm and username returns domain.ErrRealmUserAlreadyExists.
func (p *PostgreSQLRealmUserRepository) Create(ctx context.Context, user *domain.RealmUser) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO realm_users (id, realm, username, password_hash, is_active, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := querier.ExecContext(
		ctx,
		query,
		user.ID,
		user.Realm,
		user.Username,
		user.PasswordHash,
		user.IsActive,
		user.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return domain.ErrRealmUserAlreadyExists
		}
		return apperrors.Wrap(err, "failed to create realm user")
	}
	return nil
}

// GetByUsername returns domain.ErrRealmUserNotFound when no row matches.
func (p *PostgreSQLRealmUserRepository) GetByUsername(
	ctx context.Context,
	realm, username string,
) (*domain.RealmUser, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, realm, username, password_hash, is_active, created_at
			  FROM realm_users
			  WHERE realm = $1 AND username = $2`

	var user domain.RealmUser
	err := querier.QueryRowContext(ctx, query, realm, username).Scan(
		&user.ID,
		&user.Realm,
		&user.Username,
		&user.PasswordHash,
		&user.IsActive,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRealmUserNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get realm user")
	}
	return &user, nil
}

// NewPostgreSQLRealmUserRepository creates a new PostgreSQL RealmUser repository.
func NewPostgreSQLRealmUserRepository(db *sql.DB) *PostgreSQLRealmUserRepository {
	return &PostgreSQLRealmUserRepository{db: db}
}
