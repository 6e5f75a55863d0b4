package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/cas/internal/authn/domain"
	apperrors "github.com/allisson/cas/internal/errors"
)

func TestAuthenticationEventUseCase_DeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		repo := &mockEventRepository{}
		uc := NewAuthenticationEventUseCase(repo, nil, nil).(*authenticationEventUseCase)
		uc.now = func() time.Time { return fixed }

		repo.On("DeleteOlderThan", ctx, fixed.AddDate(0, 0, -30), false).Return(int64(7), nil).Once()

		count, err := uc.DeleteOlderThan(ctx, 30, false)

		require.NoError(t, err)
		assert.Equal(t, int64(7), count)
		repo.AssertExpectations(t)
	})

	t.Run("Success_DryRun", func(t *testing.T) {
		repo := &mockEventRepository{}
		uc := NewAuthenticationEventUseCase(repo, nil, nil).(*authenticationEventUseCase)
		uc.now = func() time.Time { return fixed }

		repo.On("DeleteOlderThan", ctx, fixed, true).Return(int64(3), nil).Once()

		count, err := uc.DeleteOlderThan(ctx, 0, true)

		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
		repo.AssertExpectations(t)
	})

	t.Run("Error_NegativeDays", func(t *testing.T) {
		uc := NewAuthenticationEventUseCase(&mockEventRepository{}, nil, nil)
		_, err := uc.DeleteOlderThan(ctx, -1, false)
		assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
	})

	t.Run("Error_Repository", func(t *testing.T) {
		repo := &mockEventRepository{}
		uc := NewAuthenticationEventUseCase(repo, nil, nil)

		repo.On("DeleteOlderThan", ctx, mock.AnythingOfType("time.Time"), false).
			Return(int64(0), errors.New("database down")).
			Once()

		_, err := uc.DeleteOlderThan(ctx, 1, false)
		assert.Error(t, err)
	})
}

func TestAuthenticationEventUseCase_List(t *testing.T) {
	ctx := context.Background()
	repo := &mockEventRepository{}
	uc := NewAuthenticationEventUseCase(repo, nil, nil)

	events := []*domain.AuthenticationEvent{{ID: uuid.Must(uuid.NewV7())}}
	repo.On("List", ctx, 0, 10, (*time.Time)(nil), (*time.Time)(nil)).Return(events, nil).Once()

	result, err := uc.List(ctx, 0, 10, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, events, result)
	repo.AssertExpectations(t)
}

func TestAuthenticationEventUseCase_VerifyBatch(t *testing.T) {
	ctx := context.Background()
	key := []byte("0123456789abcdef0123456789abcdef")
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("Success_MixedResults", func(t *testing.T) {
		repo := &mockEventRepository{}
		signer := &mockEventSigner{}
		uc := NewAuthenticationEventUseCase(repo, signer, key)

		valid := &domain.AuthenticationEvent{ID: uuid.Must(uuid.NewV7()), Signature: []byte("ok")}
		invalid := &domain.AuthenticationEvent{ID: uuid.Must(uuid.NewV7()), Signature: []byte("bad")}
		unsigned := &domain.AuthenticationEvent{ID: uuid.Must(uuid.NewV7())}

		repo.On("List", ctx, 0, verifyBatchSize, &start, &end).
			Return([]*domain.AuthenticationEvent{valid, invalid, unsigned}, nil).
			Once()
		signer.On("Verify", key, valid).Return(nil).Once()
		signer.On("Verify", key, invalid).Return(domain.ErrSignatureInvalid).Once()

		report, err := uc.VerifyBatch(ctx, start, end)

		require.NoError(t, err)
		assert.Equal(t, 3, report.Total)
		assert.Equal(t, 2, report.Signed)
		assert.Equal(t, 1, report.Unsigned)
		assert.Equal(t, 1, report.Valid)
		assert.Equal(t, 1, report.Invalid)
		assert.Equal(t, []uuid.UUID{invalid.ID}, report.InvalidIDs)
		repo.AssertExpectations(t)
		signer.AssertExpectations(t)
	})

	t.Run("Success_Paginates", func(t *testing.T) {
		repo := &mockEventRepository{}
		signer := &mockEventSigner{}
		uc := NewAuthenticationEventUseCase(repo, signer, key)

		firstPage := make([]*domain.AuthenticationEvent, verifyBatchSize)
		for i := range firstPage {
			firstPage[i] = &domain.AuthenticationEvent{ID: uuid.Must(uuid.NewV7())}
		}
		repo.On("List", ctx, 0, verifyBatchSize, &start, &end).Return(firstPage, nil).Once()
		repo.On("List", ctx, verifyBatchSize, verifyBatchSize, &start, &end).
			Return([]*domain.AuthenticationEvent{}, nil).
			Once()

		report, err := uc.VerifyBatch(ctx, start, end)

		require.NoError(t, err)
		assert.Equal(t, verifyBatchSize, report.Total)
		assert.Equal(t, verifyBatchSize, report.Unsigned)
		repo.AssertExpectations(t)
	})

	t.Run("Error_NoSigningKey", func(t *testing.T) {
		uc := NewAuthenticationEventUseCase(&mockEventRepository{}, &mockEventSigner{}, nil)
		_, err := uc.VerifyBatch(ctx, start, end)
		assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
	})

	t.Run("Error_VerifyFailure", func(t *testing.T) {
		repo := &mockEventRepository{}
		signer := &mockEventSigner{}
		uc := NewAuthenticationEventUseCase(repo, signer, key)

		event := &domain.AuthenticationEvent{ID: uuid.Must(uuid.NewV7()), Signature: []byte("x")}
		repo.On("List", ctx, 0, verifyBatchSize, &start, &end).
			Return([]*domain.AuthenticationEvent{event}, nil).
			Once()
		signer.On("Verify", key, event).Return(errors.New("derive failed")).Once()

		_, err := uc.VerifyBatch(ctx, start, end)
		assert.Error(t, err)
	})

	t.Run("Error_Repository", func(t *testing.T) {
		repo := &mockEventRepository{}
		uc := NewAuthenticationEventUseCase(repo, &mockEventSigner{}, key)

		repo.On("List", ctx, 0, verifyBatchSize, &start, &end).Return(nil, errors.New("database down")).Once()

		_, err := uc.VerifyBatch(ctx, start, end)
		assert.Error(t, err)
	})
}
