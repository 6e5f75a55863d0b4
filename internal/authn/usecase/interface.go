// Package usecase orchestrates authentication: it routes each credential to a handler,
// combines the outcomes under the configured policy and keeps a signed audit trail.
package usecase

import (
	"context"
	"time"

	"github.com/allisson/cas/internal/authn/domain"
)

// AuthenticationEventRepository persists signed authentication events.
type AuthenticationEventRepository interface {
	Create(ctx context.Context, event *domain.AuthenticationEvent) error

	// List returns events ordered by created_at descending. Nil bounds are not applied;
	// both bounds are inclusive.
	List(
		ctx context.Context,
		offset, limit int,
		createdAtFrom, createdAtTo *time.Time,
	) ([]*domain.AuthenticationEvent, error)

	// DeleteOlderThan removes events created before olderThan, or only counts them when
	// dryRun is true.
	DeleteOlderThan(ctx context.Context, olderThan time.Time, dryRun bool) (int64, error)
}

// RealmUserRepository persists locally managed realm users.
type RealmUserRepository interface {
	Create(ctx context.Context, user *domain.RealmUser) error

	// GetByUsername returns domain.ErrRealmUserNotFound when no user matches.
	GetByUsername(ctx context.Context, realm, username string) (*domain.RealmUser, error)
}

// AuthenticationUseCase authenticates a set of credentials presented together.
type AuthenticationUseCase interface {
	// Authenticate returns the authentication result, or an error wrapping
	// domain.ErrAuthenticationFailed joined with every credential failure.
	Authenticate(ctx context.Context, req *domain.LoginRequest) (*domain.Authentication, error)
}

// AuthenticationEventUseCase manages the audit trail.
type AuthenticationEventUseCase interface {
	List(
		ctx context.Context,
		offset, limit int,
		createdAtFrom, createdAtTo *time.Time,
	) ([]*domain.AuthenticationEvent, error)

	// DeleteOlderThan removes events older than the given number of days.
	DeleteOlderThan(ctx context.Context, days int, dryRun bool) (int64, error)

	// VerifyBatch checks the signature of every event created within [start, end].
	VerifyBatch(ctx context.Context, start, end time.Time) (*domain.AuthenticationEventVerification, error)
}

// RealmUserUseCase manages realm users for the database login module.
type RealmUserUseCase interface {
	Create(ctx context.Context, realm, username, password string) (*domain.RealmUser, error)
}
