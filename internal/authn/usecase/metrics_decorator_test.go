package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/cas/internal/authn/domain"
)

// stubAuthenticationUseCase returns a fixed outcome.
type stubAuthenticationUseCase struct {
	result *domain.Authentication
	err    error
}

func (s *stubAuthenticationUseCase) Authenticate(
	ctx context.Context,
	req *domain.LoginRequest,
) (*domain.Authentication, error) {
	return s.result, s.err
}

func expectMetrics(ctx context.Context, m *mockBusinessMetrics, operation, status string) {
	m.On("RecordOperation", ctx, "authn", operation, status).Return().Once()
	m.On("RecordDuration", ctx, "authn", operation, mock.AnythingOfType("time.Duration"), status).
		Return().
		Once()
}

func TestAuthenticationUseCaseWithMetrics(t *testing.T) {
	ctx := context.Background()

	t.Run("Authenticate success", func(t *testing.T) {
		m := &mockBusinessMetrics{}
		expected := &domain.Authentication{Principal: domain.NewPrincipal("alice")}
		uc := NewAuthenticationUseCaseWithMetrics(&stubAuthenticationUseCase{result: expected}, m)
		expectMetrics(ctx, m, "authenticate", "success")

		result, err := uc.Authenticate(ctx, &domain.LoginRequest{})

		assert.NoError(t, err)
		assert.Equal(t, expected, result)
		m.AssertExpectations(t)
	})

	t.Run("Authenticate records handler results", func(t *testing.T) {
		m := &mockBusinessMetrics{}
		expected := &domain.Authentication{
			Principal: domain.NewPrincipal("alice"),
			Successes: []domain.HandlerSuccess{{Handler: "realm"}},
			Failures: []domain.CredentialFailure{
				{Handler: "x509", Err: domain.ErrUntrustedIssuer},
			},
		}
		uc := NewAuthenticationUseCaseWithMetrics(&stubAuthenticationUseCase{result: expected}, m)
		expectMetrics(ctx, m, "authenticate", "success")
		m.On("RecordHandlerResult", ctx, "realm", "success").Return().Once()
		m.On("RecordHandlerResult", ctx, "x509", "untrusted_issuer").Return().Once()

		_, err := uc.Authenticate(ctx, &domain.LoginRequest{})

		assert.NoError(t, err)
		m.AssertExpectations(t)
	})

	t.Run("Authenticate failure", func(t *testing.T) {
		m := &mockBusinessMetrics{}
		uc := NewAuthenticationUseCaseWithMetrics(
			&stubAuthenticationUseCase{err: domain.ErrCertificateRevoked},
			m,
		)
		expectMetrics(ctx, m, "authenticate", "failure")

		_, err := uc.Authenticate(ctx, &domain.LoginRequest{})

		assert.ErrorIs(t, err, domain.ErrCertificateRevoked)
		m.AssertExpectations(t)
	})

	t.Run("Authenticate error", func(t *testing.T) {
		m := &mockBusinessMetrics{}
		uc := NewAuthenticationUseCaseWithMetrics(&stubAuthenticationUseCase{err: errors.New("boom")}, m)
		expectMetrics(ctx, m, "authenticate", "error")

		_, err := uc.Authenticate(ctx, &domain.LoginRequest{})

		assert.Error(t, err)
		m.AssertExpectations(t)
	})
}

func TestAuthenticationEventUseCaseWithMetrics(t *testing.T) {
	ctx := context.Background()

	t.Run("DeleteOlderThan success", func(t *testing.T) {
		m := &mockBusinessMetrics{}
		repo := &mockEventRepository{}
		uc := NewAuthenticationEventUseCaseWithMetrics(NewAuthenticationEventUseCase(repo, nil, nil), m)

		repo.On("DeleteOlderThan", ctx, mock.AnythingOfType("time.Time"), true).Return(int64(2), nil).Once()
		expectMetrics(ctx, m, "authentication_event_delete", "success")

		count, err := uc.DeleteOlderThan(ctx, 10, true)

		assert.NoError(t, err)
		assert.Equal(t, int64(2), count)
		m.AssertExpectations(t)
	})

	t.Run("List error", func(t *testing.T) {
		m := &mockBusinessMetrics{}
		repo := &mockEventRepository{}
		uc := NewAuthenticationEventUseCaseWithMetrics(NewAuthenticationEventUseCase(repo, nil, nil), m)

		repo.On("List", ctx, 0, 5, (*time.Time)(nil), (*time.Time)(nil)).Return(nil, errors.New("boom")).Once()
		expectMetrics(ctx, m, "authentication_event_list", "error")

		_, err := uc.List(ctx, 0, 5, nil, nil)

		assert.Error(t, err)
		m.AssertExpectations(t)
	})

	t.Run("VerifyBatch error", func(t *testing.T) {
		m := &mockBusinessMetrics{}
		uc := NewAuthenticationEventUseCaseWithMetrics(
			NewAuthenticationEventUseCase(&mockEventRepository{}, nil, nil),
			m,
		)
		expectMetrics(ctx, m, "authentication_event_verify_batch", "error")

		_, err := uc.VerifyBatch(ctx, time.Now(), time.Now())

		assert.Error(t, err)
		m.AssertExpectations(t)
	})
}

func TestRealmUserUseCaseWithMetrics(t *testing.T) {
	ctx := context.Background()
	m := &mockBusinessMetrics{}
	uc := NewRealmUserUseCaseWithMetrics(
		NewRealmUserUseCase(&mockTxManager{}, &mockRealmUserRepository{}, &mockPasswordService{}),
		m,
	)
	expectMetrics(ctx, m, "realm_user_create", "error")

	_, err := uc.Create(ctx, "", "", "")

	assert.Error(t, err)
	m.AssertExpectations(t)
}
