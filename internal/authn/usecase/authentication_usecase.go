package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/cas/internal/authn/domain"
	"github.com/allisson/cas/internal/authn/handler"
	"github.com/allisson/cas/internal/authn/service"
	apperrors "github.com/allisson/cas/internal/errors"
)

// AuthenticationConfig holds the orchestration settings.
type AuthenticationConfig struct {
	Policy domain.AuthenticationPolicy
	// SigningKey signs recorded events. Events are stored unsigned when empty.
	SigningKey []byte
}

type authenticationUseCase struct {
	handlers  []handler.AuthenticationHandler
	resolver  *PrincipalResolver
	eventRepo AuthenticationEventRepository
	signer    service.EventSigner
	cfg       AuthenticationConfig
	logger    *slog.Logger
	now       func() time.Time
}

// Authenticate verifies every credential of the request with the first handler that
// supports it. Events are recorded for each credential; recording failures are logged and
// never change the outcome.
func (a *authenticationUseCase) Authenticate(
	ctx context.Context,
	req *domain.LoginRequest,
) (*domain.Authentication, error) {
	if req == nil || len(req.Credentials) == 0 {
		return nil, fmt.Errorf("%w: no credentials presented", domain.ErrAuthenticationFailed)
	}

	result := &domain.Authentication{}
	var failures []error

	for _, credential := range req.Credentials {
		credentialType := credentialTypeOf(credential)
		h := a.handlerFor(credential)

		var handlerName string
		var err error
		if h == nil {
			err = fmt.Errorf("%w: no handler supports %s credential", domain.ErrUnsupportedCredential, credentialType)
		} else {
			handlerName = h.Name()
			err = h.Authenticate(ctx, credential)
		}

		principal := a.resolver.Resolve(credential)

		if err == nil && principal == nil {
			err = fmt.Errorf("%w: %s handler resolved no principal", domain.ErrAuthenticationFailed, handlerName)
		}

		if err != nil {
			a.logger.Debug("credential rejected",
				slog.String("request_id", req.RequestID.String()),
				slog.String("handler", handlerName),
				slog.String("credential_type", string(credentialType)),
				slog.String("failure_kind", domain.FailureKind(err)),
			)
			result.Failures = append(result.Failures, domain.CredentialFailure{
				Handler:        handlerName,
				CredentialType: credentialType,
				Err:            err,
			})
			failures = append(failures, err)
		} else {
			result.Successes = append(result.Successes, domain.HandlerSuccess{
				Handler:        handlerName,
				CredentialType: credentialType,
				Principal:      principal,
			})
			if result.Principal == nil {
				result.Principal = principal
			}
		}

		a.recordEvent(ctx, req, credentialType, handlerName, principal, err)
	}

	if !a.satisfied(result) {
		return nil, apperrors.Join(append([]error{domain.ErrAuthenticationFailed}, failures...)...)
	}

	result.AuthenticatedAt = a.now().UTC()
	a.logger.Info("authentication succeeded",
		slog.String("request_id", req.RequestID.String()),
		slog.String("principal", result.Principal.ID),
		slog.Int("successes", len(result.Successes)),
		slog.Int("failures", len(result.Failures)),
	)
	return result, nil
}

func (a *authenticationUseCase) satisfied(result *domain.Authentication) bool {
	if len(result.Successes) == 0 {
		return false
	}
	if a.cfg.Policy == domain.PolicyAll {
		return len(result.Failures) == 0
	}
	return true
}

func (a *authenticationUseCase) handlerFor(credential domain.Credential) handler.AuthenticationHandler {
	for _, h := range a.handlers {
		if h.Supports(credential) {
			return h
		}
	}
	return nil
}

func (a *authenticationUseCase) recordEvent(
	ctx context.Context,
	req *domain.LoginRequest,
	credentialType domain.CredentialType,
	handlerName string,
	principal *domain.Principal,
	authErr error,
) {
	if a.eventRepo == nil {
		return
	}

	event := &domain.AuthenticationEvent{
		ID:             uuid.Must(uuid.NewV7()),
		RequestID:      req.RequestID,
		RemoteAddress:  req.RemoteAddress,
		CredentialType: credentialType,
		Handler:        handlerName,
		Success:        authErr == nil,
		FailureKind:    domain.FailureKind(authErr),
		CreatedAt:      a.now().UTC(),
	}
	if principal != nil {
		event.Principal = principal.ID
	}

	if len(a.cfg.SigningKey) > 0 {
		signature, err := a.signer.Sign(a.cfg.SigningKey, event)
		if err != nil {
			a.logger.Error("failed to sign authentication event",
				slog.String("request_id", req.RequestID.String()),
				slog.Any("error", err),
			)
		} else {
			event.Signature = signature
		}
	}

	if err := a.eventRepo.Create(ctx, event); err != nil {
		a.logger.Error("failed to record authentication event",
			slog.String("request_id", req.RequestID.String()),
			slog.Any("error", err),
		)
	}
}

func credentialTypeOf(credential domain.Credential) domain.CredentialType {
	if credential == nil {
		return ""
	}
	return credential.CredentialType()
}

// NewAuthenticationUseCase creates an AuthenticationUseCase. Handlers are consulted in the
// given order. eventRepo may be nil to disable the audit trail.
func NewAuthenticationUseCase(
	handlers []handler.AuthenticationHandler,
	resolver *PrincipalResolver,
	eventRepo AuthenticationEventRepository,
	signer service.EventSigner,
	cfg AuthenticationConfig,
	logger *slog.Logger,
) AuthenticationUseCase {
	if cfg.Policy == "" {
		cfg.Policy = domain.PolicyAny
	}
	if resolver == nil {
		resolver = NewPrincipalResolver(X509PrincipalSubjectDN)
	}
	return &authenticationUseCase{
		handlers:  handlers,
		resolver:  resolver,
		eventRepo: eventRepo,
		signer:    signer,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}
