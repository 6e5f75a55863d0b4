package usecase

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/allisson/cas/internal/authn/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockHandler is a mock implementation of handler.AuthenticationHandler for testing.
type mockHandler struct {
	mock.Mock
	name string
}

func (m *mockHandler) Name() string { return m.name }

func (m *mockHandler) Supports(credential domain.Credential) bool {
	args := m.Called(credential)
	return args.Bool(0)
}

func (m *mockHandler) Authenticate(ctx context.Context, credential domain.Credential) error {
	args := m.Called(ctx, credential)
	return args.Error(0)
}

// mockEventRepository is a mock implementation of AuthenticationEventRepository for testing.
type mockEventRepository struct {
	mock.Mock
}

func (m *mockEventRepository) Create(ctx context.Context, event *domain.AuthenticationEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockEventRepository) List(
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

func (m *mockEventRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time, dryRun bool) (int64, error) {
	args := m.Called(ctx, olderThan, dryRun)
	return args.Get(0).(int64), args.Error(1)
}

// mockEventSigner is a mock implementation of service.EventSigner for testing.
type mockEventSigner struct {
	mock.Mock
}

func (m *mockEventSigner) Sign(key []byte, event *domain.AuthenticationEvent) ([]byte, error) {
	args := m.Called(key, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockEventSigner) Verify(key []byte, event *domain.AuthenticationEvent) error {
	args := m.Called(key, event)
	return args.Error(0)
}

// mockRealmUserRepository is a mock implementation of RealmUserRepository for testing.
type mockRealmUserRepository struct {
	mock.Mock
}

func (m *mockRealmUserRepository) Create(ctx context.Context, user *domain.RealmUser) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockRealmUserRepository) GetByUsername(ctx context.Context, realm, username string) (*domain.RealmUser, error) {
	args := m.Called(ctx, realm, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RealmUser), args.Error(1)
}

// mockPasswordService is a mock implementation of service.PasswordService for testing.
type mockPasswordService struct {
	mock.Mock
}

func (m *mockPasswordService) HashPassword(plainPassword string) (string, error) {
	args := m.Called(plainPassword)
	return args.String(0), args.Error(1)
}

func (m *mockPasswordService) ComparePassword(plainPassword, hashedPassword string) bool {
	args := m.Called(plainPassword, hashedPassword)
	return args.Bool(0)
}

// mockBusinessMetrics is a mock implementation of metrics.BusinessMetrics for testing.
type mockBusinessMetrics struct {
	mock.Mock
}

func (m *mockBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	m.Called(ctx, domain, operation, status)
}

func (m *mockBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	m.Called(ctx, domain, operation, duration, status)
}

func (m *mockBusinessMetrics) RecordHandlerResult(ctx context.Context, handler, result string) {
	m.Called(ctx, handler, result)
}

// mockTxManager runs fn unless an error is configured.
type mockTxManager struct {
	mock.Mock
}

func (m *mockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if args.Get(0) != nil {
		return args.Error(0)
	}
	return fn(ctx)
}
