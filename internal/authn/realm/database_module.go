package realm

import (
	"context"
	"fmt"
	"sync"

	"github.com/allisson/cas/internal/authn/domain"
	apperrors "github.com/allisson/cas/internal/errors"
)

// RealmUserRepository loads realm users.
type RealmUserRepository interface {
	GetByUsername(ctx context.Context, realm, username string) (*domain.RealmUser, error)
}

// dummyPassword is hashed once and verified against for unknown users.
const dummyPassword = "cas-realm-unknown-user"

// PasswordComparer checks a plain password against a stored hash in constant time.
type PasswordComparer interface {
	HashPassword(plainPassword string) (string, error)
	ComparePassword(plainPassword, hashedPassword string) bool
}

// DatabaseLoginModule verifies passwords of users stored for a single realm.
type DatabaseLoginModule struct {
	realm      string
	repository RealmUserRepository
	passwords  PasswordComparer

	dummyHashOnce sync.Once
	dummyHash     string
}

// NewDatabaseLoginModule creates a module bound to realm.
func NewDatabaseLoginModule(
	realm string,
	repository RealmUserRepository,
	passwords PasswordComparer,
) *DatabaseLoginModule {
	return &DatabaseLoginModule{realm: realm, repository: repository, passwords: passwords}
}

func (m *DatabaseLoginModule) Name() string {
	return "database"
}

// Login fails with domain.ErrInvalidCredentials for unknown users, inactive users and
// wrong passwords alike. Unknown users still pay for one password verification so response
// times do not reveal which usernames exist.
func (m *DatabaseLoginModule) Login(ctx context.Context, username, password string) (*domain.Principal, error) {
	user, err := m.repository.GetByUsername(ctx, m.realm, username)
	if err != nil {
		if apperrors.Is(err, domain.ErrRealmUserNotFound) {
			m.passwords.ComparePassword(password, m.unknownUserHash())
			return nil, domain.ErrInvalidCredentials
		}
		return nil, apperrors.Wrap(err, "failed to load realm user")
	}

	if !m.passwords.ComparePassword(password, user.PasswordHash) || !user.IsActive {
		return nil, domain.ErrInvalidCredentials
	}

	return &domain.Principal{
		ID: user.Username,
		Attributes: map[string]any{
			"realm":   user.Realm,
			"user_id": user.ID.String(),
			"source":  fmt.Sprintf("database:%s", m.realm),
		},
	}, nil
}

func (m *DatabaseLoginModule) unknownUserHash() string {
	m.dummyHashOnce.Do(func() {
		if hash, err := m.passwords.HashPassword(dummyPassword); err == nil {
			m.dummyHash = hash
		}
	})
	return m.dummyHash
}
