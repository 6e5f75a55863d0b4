package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/allisson/cas/internal/authn/domain"
	"github.com/allisson/cas/internal/database"
	apperrors "github.com/allisson/cas/internal/errors"
)

// mysqlDuplicateEntry is the MySQL error number for duplicate keys.
const mysqlDuplicateEntry = 1062

// MySQLRealmUserRepository implements RealmUser persistence for MySQL.
type MySQLRealmUserRepository struct {
	db *sql.DB
}

func (m *MySQLRealmUserRepository) Create(ctx context.Context, user *domain.RealmUser) error {
	querier := database.GetTx(ctx, m.db)

	id, err := user.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal realm user id")
	}

	query := `INSERT INTO realm_users (id, realm, username, password_hash, is_active, created_at)
			  VALUES (?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		user.Realm,
		user.Username,
		user.PasswordHash,
		user.IsActive,
		user.CreatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return domain.ErrRealmUserAlreadyExists
		}
		return apperrors.Wrap(err, "failed to create realm user")
	}
	return nil
}

func (m *MySQLRealmUserRepository) GetByUsername(
	ctx context.Context,
	realm, username string,
) (*domain.RealmUser, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, realm, username, password_hash, is_active, created_at
			  FROM realm_users
			  WHERE realm = ? AND username = ?`

	var user domain.RealmUser
	var idBinary []byte
	err := querier.QueryRowContext(ctx, query, realm, username).Scan(
		&idBinary,
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

	if err := user.ID.UnmarshalBinary(idBinary); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal realm user id")
	}
	return &user, nil
}

// NewMySQLRealmUserRepository creates a new MySQL RealmUser repository.
func NewMySQLRealmUserRepository(db *sql.DB) *MySQLRealmUserRepository {
	return &MySQLRealmUserRepository{db: db}
}
