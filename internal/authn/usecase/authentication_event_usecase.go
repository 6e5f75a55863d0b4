package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/cas/internal/authn/domain"
	"github.com/allisson/cas/internal/authn/service"
	apperrors "github.com/allisson/cas/internal/errors"
)

// verifyBatchSize is the page size used when walking events for verification.
const verifyBatchSize = 500

type authenticationEventUseCase struct {
	eventRepo  AuthenticationEventRepository
	signer     service.EventSigner
	signingKey []byte
	now        func() time.Time
}

func (a *authenticationEventUseCase) List(
	ctx context.Context,
	offset, limit int,
	createdAtFrom, createdAtTo *time.Time,
) ([]*domain.AuthenticationEvent, error) {
	events, err := a.eventRepo.List(ctx, offset, limit, createdAtFrom, createdAtTo)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list authentication events")
	}
	return events, nil
}

func (a *authenticationEventUseCase) DeleteOlderThan(ctx context.Context, days int, dryRun bool) (int64, error) {
	if days < 0 {
		return 0, apperrors.Wrap(apperrors.ErrInvalidInput, "days must be zero or positive")
	}

	olderThan := a.now().UTC().AddDate(0, 0, -days)
	count, err := a.eventRepo.DeleteOlderThan(ctx, olderThan, dryRun)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete authentication events")
	}
	return count, nil
}

// VerifyBatch walks the events page by page. Unsigned events are counted but not
// considered invalid.
func (a *authenticationEventUseCase) VerifyBatch(
	ctx context.Context,
	start, end time.Time,
) (*domain.AuthenticationEventVerification, error) {
	if len(a.signingKey) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "no audit signing key configured")
	}

	report := &domain.AuthenticationEventVerification{InvalidIDs: make([]uuid.UUID, 0)}
	for offset := 0; ; offset += verifyBatchSize {
		events, err := a.eventRepo.List(ctx, offset, verifyBatchSize, &start, &end)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to list authentication events")
		}

		for _, event := range events {
			report.Total++
			if !event.IsSigned() {
				report.Unsigned++
				continue
			}
			report.Signed++

			err := a.signer.Verify(a.signingKey, event)
			switch {
			case err == nil:
				report.Valid++
			case apperrors.Is(err, domain.ErrSignatureInvalid):
				report.Invalid++
				report.InvalidIDs = append(report.InvalidIDs, event.ID)
			default:
				return nil, apperrors.Wrap(err, "failed to verify authentication event")
			}
		}

		if len(events) < verifyBatchSize {
			break
		}
	}

	return report, nil
}

// NewAuthenticationEventUseCase creates an AuthenticationEventUseCase. signingKey is only
// needed for VerifyBatch.
func NewAuthenticationEventUseCase(
	eventRepo AuthenticationEventRepository,
	signer service.EventSigner,
	signingKey []byte,
) AuthenticationEventUseCase {
	return &authenticationEventUseCase{
		eventRepo:  eventRepo,
		signer:     signer,
		signingKey: signingKey,
		now:        time.Now,
	}
}
