// Package handler implements the authentication handlers. Each handler verifies exactly one
// credential variant, holds only immutable configuration and is safe for concurrent use.
package handler

import (
	"context"
	"fmt"

	"github.com/allisson/cas/internal/authn/domain"
)

// Handler names reported in authentication results and events.
const (
	NameURL    = "url"
	NameX509   = "x509"
	NameRealm  = "realm"
	NameSpnego = "spnego"
)

// AuthenticationHandler decides whether a credential is genuine.
type AuthenticationHandler interface {
	// Name identifies the handler in results and audit events.
	Name() string

	// Supports reports whether the handler can authenticate credential. It has no side
	// effects and returns false for nil credentials.
	Supports(credential domain.Credential) bool

	// Authenticate returns nil when credential is genuine. Every failure wraps
	// domain.ErrAuthenticationFailed.
	Authenticate(ctx context.Context, credential domain.Credential) error
}

func unsupported(handler string, credential domain.Credential) error {
	return fmt.Errorf("%w: %s handler cannot authenticate %T", domain.ErrUnsupportedCredential, handler, credential)
}
