package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/cas/internal/authn/domain"
	"github.com/allisson/cas/internal/authn/service"
	"github.com/allisson/cas/internal/database"
	apperrors "github.com/allisson/cas/internal/errors"
)

type realmUserUseCase struct {
	txManager database.TxManager
	userRepo  RealmUserRepository
	passwords service.PasswordService
}

// Create stores a new active user with an Argon2id password hash. The duplicate check and
// the insert share a transaction.
func (r *realmUserUseCase) Create(ctx context.Context, realm, username, password string) (*domain.RealmUser, error) {
	realm = strings.TrimSpace(realm)
	username = strings.TrimSpace(username)
	if realm == "" || username == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "realm and username are required")
	}

	hash, err := r.passwords.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &domain.RealmUser{
		ID:           uuid.Must(uuid.NewV7()),
		Realm:        realm,
		Username:     username,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}

	err = r.txManager.WithTx(ctx, func(ctx context.Context) error {
		existing, err := r.userRepo.GetByUsername(ctx, realm, username)
		if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
			return apperrors.Wrap(err, "failed to look up realm user")
		}
		if existing != nil {
			return domain.ErrRealmUserAlreadyExists
		}

		if err := r.userRepo.Create(ctx, user); err != nil {
			return apperrors.Wrap(err, "failed to create realm user")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// NewRealmUserUseCase creates a RealmUserUseCase.
func NewRealmUserUseCase(
	txManager database.TxManager,
	userRepo RealmUserRepository,
	passwords service.PasswordService,
) RealmUserUseCase {
	return &realmUserUseCase{
		txManager: txManager,
		userRepo:  userRepo,
		passwords: passwords,
	}
}
