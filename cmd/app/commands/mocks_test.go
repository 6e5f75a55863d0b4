package commands

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/allisson/cas/internal/authn/domain"
)

// mockAuthenticationEventUseCase is a mock implementation of AuthenticationEventUseCase for testing.
type mockAuthenticationEventUseCase struct {
	mock.Mock
}

func (m *mockAuthenticationEventUseCase) List(
	ctx context.Context,
	offset, limit int,
	createdAtFrom, createdAtTo *time.Time,
) ([]*domain.AuthenticationEvent, error) {
	args := m.Called(ctx, offset, limit, createdAtFrom, createdAtTo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AuthenticationEvent), args.Error(1)
}

func (m *mockAuthenticationEventUseCase) DeleteOlderThan(ctx context.Context, days int, dryRun bool) (int64, error) {
	args := m.Called(ctx, days, dryRun)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockAuthenticationEventUseCase) VerifyBatch(
	ctx context.Context,
	start, end time.Time,
) (*domain.AuthenticationEventVerification, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AuthenticationEventVerification), args.Error(1)
}

// mockRealmUserUseCase is a mock implementation of RealmUserUseCase for testing.
type mockRealmUserUseCase struct {
	mock.Mock
}

func (m *mockRealmUserUseCase) Create(ctx context.Context, realm, username, password string) (*domain.RealmUser, error) {
	args := m.Called(ctx, realm, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RealmUser), args.Error(1)
}
