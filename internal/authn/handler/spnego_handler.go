package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/allisson/cas/internal/authn/domain"
	apperrors "github.com/allisson/cas/internal/errors"
)

// TokenVerifier resolves the principal carried by a SPNEGO or Kerberos token.
type TokenVerifier interface {
	Verify(token []byte) (*domain.Principal, error)
}

// SpnegoHandler authenticates SPNEGO credentials and attaches the resolved principal.
type SpnegoHandler struct {
	verifier TokenVerifier
	logger   *slog.Logger
}

// NewSpnegoHandler creates a SPNEGO handler.
func NewSpnegoHandler(verifier TokenVerifier, logger *slog.Logger) *SpnegoHandler {
	return &SpnegoHandler{verifier: verifier, logger: logger}
}

func (h *SpnegoHandler) Name() string {
	return NameSpnego
}

func (h *SpnegoHandler) Supports(credential domain.Credential) bool {
	return domain.AsSpnegoCredential(credential) != nil
}

func (h *SpnegoHandler) Authenticate(ctx context.Context, credential domain.Credential) error {
	spnegoCredential := domain.AsSpnegoCredential(credential)
	if spnegoCredential == nil {
		return unsupported(h.Name(), credential)
	}
	if len(spnegoCredential.Token) == 0 {
		return fmt.Errorf("%w: empty token", domain.ErrNegotiationFailed)
	}

	principal, err := h.verifier.Verify(spnegoCredential.Token)
	if err != nil {
		h.logger.Debug("spnego negotiation failed", slog.Any("error", err))
		if apperrors.Is(err, domain.ErrAuthenticationFailed) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrNegotiationFailed, err)
	}
	if principal == nil || principal.ID == "" {
		return fmt.Errorf("%w: no principal resolved", domain.ErrNegotiationFailed)
	}

	spnegoCredential.SetPrincipal(principal)
	h.logger.Info("spnego negotiation succeeded", slog.String("principal", principal.ID))
	return nil
}
