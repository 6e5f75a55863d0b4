// Package revocation provides certificate revocation checkers consulted by the X.509
// authentication handler for every certificate in a presented chain.
package revocation

import (
	"bytes"
	"context"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/allisson/cas/internal/authn/domain"
)

// Checker decides whether a certificate has been revoked. A nil error means the
// certificate is not known to be revoked.
type Checker interface {
	Check(ctx context.Context, cert *x509.Certificate) error
}

// UnavailablePolicy decides the outcome when revocation status cannot be determined.
type UnavailablePolicy string

const (
	// PolicyDeny fails authentication when status is unavailable.
	PolicyDeny UnavailablePolicy = "deny"
	// PolicyAllow lets authentication continue when status is unavailable.
	PolicyAllow UnavailablePolicy = "allow"
)

const (
	defaultCacheSize = 256
	defaultCacheTTL  = time.Hour
	defaultTimeout   = 5 * time.Second
	maxResponseSize  = 10 << 20
)

// Options configures the CRL and OCSP checkers.
type Options struct {
	// Issuers are used to verify CRL signatures and to build OCSP requests.
	Issuers           []*x509.Certificate
	UnavailablePolicy UnavailablePolicy
	CacheSize         int
	CacheTTL          time.Duration
	HTTPClient        *http.Client
	Clock             func() time.Time
	Logger            *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.UnavailablePolicy == "" {
		o.UnavailablePolicy = PolicyDeny
	}
	if o.CacheSize <= 0 {
		o.CacheSize = defaultCacheSize
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = defaultCacheTTL
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// issuerFor returns the configured issuer whose subject equals rawIssuer.
func (o Options) issuerFor(rawIssuer []byte) *x509.Certificate {
	for _, issuer := range o.Issuers {
		if bytes.Equal(issuer.RawSubject, rawIssuer) {
			return issuer
		}
	}
	return nil
}

// unavailable applies the unavailable policy to cause.
func (o Options) unavailable(cert *x509.Certificate, checker string, cause error) error {
	if o.UnavailablePolicy == PolicyAllow {
		o.Logger.Warn("revocation status unavailable, allowing",
			slog.String("checker", checker),
			slog.String("subject", cert.Subject.String()),
			slog.String("serial", cert.SerialNumber.String()),
			slog.Any("error", cause),
		)
		return nil
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrRevocationUnavailable, checker, cause)
}

func revoked(cert *x509.Certificate, revokedAt time.Time) error {
	return fmt.Errorf(
		"%w: serial %s revoked at %s",
		domain.ErrCertificateRevoked,
		cert.SerialNumber.String(),
		revokedAt.UTC().Format(time.RFC3339),
	)
}

// NoOpChecker never reports a revocation. It performs no validation at all and exists for
// deployments that rely on short-lived certificates or external revocation enforcement.
type NoOpChecker struct{}

// NewNoOpChecker creates a checker that accepts every certificate.
func NewNoOpChecker() *NoOpChecker {
	return &NoOpChecker{}
}

func (c *NoOpChecker) Check(ctx context.Context, cert *x509.Certificate) error {
	return nil
}

// ChainChecker runs checkers in order and returns the first error.
type ChainChecker struct {
	checkers []Checker
}

// NewChainChecker creates a checker that consults every checker in order.
func NewChainChecker(checkers ...Checker) *ChainChecker {
	return &ChainChecker{checkers: checkers}
}

func (c *ChainChecker) Check(ctx context.Context, cert *x509.Certificate) error {
	for _, checker := range c.checkers {
		if err := checker.Check(ctx, cert); err != nil {
			return err
		}
	}
	return nil
}
