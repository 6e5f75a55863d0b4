package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/allisson/cas/internal/authn/domain"
	"github.com/allisson/cas/internal/authn/probe"
)

const secureScheme = "https"

// UrlConfig configures the URL handler.
type UrlConfig struct {
	// RequireSecure rejects any scheme other than https before probing.
	RequireSecure bool
}

// DefaultUrlConfig requires https.
func DefaultUrlConfig() UrlConfig {
	return UrlConfig{RequireSecure: true}
}

// UrlHandler authenticates a URL credential by probing the endpoint it names.
type UrlHandler struct {
	requireSecure bool
	prober        probe.EndpointProber
	logger        *slog.Logger
}

// NewUrlHandler creates a URL handler using prober to reach endpoints.
func NewUrlHandler(cfg UrlConfig, prober probe.EndpointProber, logger *slog.Logger) *UrlHandler {
	return &UrlHandler{
		requireSecure: cfg.RequireSecure,
		prober:        prober,
		logger:        logger,
	}
}

func (h *UrlHandler) Name() string {
	return NameURL
}

func (h *UrlHandler) Supports(credential domain.Credential) bool {
	return domain.AsUrlCredential(credential) != nil
}

func (h *UrlHandler) Authenticate(ctx context.Context, credential domain.Credential) error {
	urlCredential := domain.AsUrlCredential(credential)
	if urlCredential == nil || urlCredential.URL == nil {
		return unsupported(h.Name(), credential)
	}

	endpoint := urlCredential.URL
	if h.requireSecure && endpoint.Scheme != secureScheme {
		h.logger.Debug("url credential rejected: insecure scheme",
			slog.String("url", endpoint.Redacted()),
		)
		return fmt.Errorf("%w: scheme %q is not %s", domain.ErrInsecureTransport, endpoint.Scheme, secureScheme)
	}

	if !h.prober.IsValidEndPoint(ctx, endpoint) {
		h.logger.Debug("url credential rejected: endpoint probe failed",
			slog.String("url", endpoint.Redacted()),
		)
		return fmt.Errorf("%w: %s", domain.ErrEndpointUnreachable, endpoint.Redacted())
	}

	return nil
}
