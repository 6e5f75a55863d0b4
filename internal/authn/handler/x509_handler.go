package handler

import (
	"context"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"time"

	"github.com/allisson/cas/internal/authn/domain"
	"github.com/allisson/cas/internal/authn/revocation"
	apperrors "github.com/allisson/cas/internal/errors"
)

// UnlimitedPathLength is the path length of a CA certificate without a path length constraint.
const UnlimitedPathLength = math.MaxInt

var oidExtensionKeyUsage = asn1.ObjectIdentifier{2, 5, 29, 15}

// X509Config configures the X.509 handler. Start from DefaultX509Config; the zero value
// is not a usable configuration.
//
// SubjectDnPattern defaults to ".*" and RevocationChecker defaults to a checker that never
// reports revocation. Both are permissive until configured.
//
// Both DN patterns are full-match regular expressions over pkix.Name.String(): RFC 2253
// order (most specific RDN first), comma separated without spaces, e.g.
// "CN=alice,OU=Staff,O=Example,C=US". Patterns written for "CN=alice, OU=Staff, O=Example"
// style strings must drop the blanks after the commas.
type X509Config struct {
	// TrustedIssuerDnPattern must match the issuer DN of at least one certificate in the chain.
	TrustedIssuerDnPattern string
	// SubjectDnPattern must match the subject DN of the end-entity certificate.
	SubjectDnPattern string
	// MaxPathLength is the largest path length constraint accepted on a CA certificate.
	MaxPathLength int
	// MaxPathLengthAllowUnspecified accepts CA certificates without a path length constraint.
	MaxPathLengthAllowUnspecified bool
	// CheckKeyUsage enforces the digitalSignature bit on the end-entity certificate.
	CheckKeyUsage bool
	// RequireKeyUsage treats a missing key usage extension as a violation.
	RequireKeyUsage   bool
	RevocationChecker revocation.Checker
	Clock             func() time.Time
}

// DefaultX509Config returns the default configuration without a trusted issuer pattern.
func DefaultX509Config() X509Config {
	return X509Config{
		SubjectDnPattern:  ".*",
		MaxPathLength:     1,
		RevocationChecker: revocation.NewNoOpChecker(),
		Clock:             time.Now,
	}
}

// X509Handler authenticates client certificate chains.
type X509Handler struct {
	trustedIssuer                 *regexp.Regexp
	subject                       *regexp.Regexp
	maxPathLength                 int
	maxPathLengthAllowUnspecified bool
	checkKeyUsage                 bool
	requireKeyUsage               bool
	revocationChecker             revocation.Checker
	clock                         func() time.Time
	logger                        *slog.Logger
}

// NewX509Handler validates cfg and creates the handler.
func NewX509Handler(cfg X509Config, logger *slog.Logger) (*X509Handler, error) {
	if cfg.TrustedIssuerDnPattern == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "trusted issuer dn pattern is required")
	}
	if cfg.MaxPathLength < 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "max path length must not be negative")
	}

	trustedIssuer, err := compileFullMatch(cfg.TrustedIssuerDnPattern)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Sprintf("invalid trusted issuer dn pattern: %v", err))
	}

	subjectPattern := cfg.SubjectDnPattern
	if subjectPattern == "" {
		subjectPattern = ".*"
	}
	subject, err := compileFullMatch(subjectPattern)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Sprintf("invalid subject dn pattern: %v", err))
	}

	checker := cfg.RevocationChecker
	if checker == nil {
		checker = revocation.NewNoOpChecker()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &X509Handler{
		trustedIssuer:                 trustedIssuer,
		subject:                       subject,
		maxPathLength:                 cfg.MaxPathLength,
		maxPathLengthAllowUnspecified: cfg.MaxPathLengthAllowUnspecified,
		checkKeyUsage:                 cfg.CheckKeyUsage,
		requireKeyUsage:               cfg.RequireKeyUsage,
		revocationChecker:             checker,
		clock:                         clock,
		logger:                        logger,
	}, nil
}

// compileFullMatch anchors pattern so it must match the whole input.
func compileFullMatch(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("^(?:" + pattern + ")$")
}

func (h *X509Handler) Name() string {
	return NameX509
}

func (h *X509Handler) Supports(credential domain.Credential) bool {
	return domain.AsX509Credentials(credential) != nil
}

// Authenticate walks the chain from the last certificate to the first. Every certificate
// must be valid and unrevoked, at least one issuer DN must match the trusted issuer
// pattern and at least one end-entity certificate must be present. When several
// end-entity certificates are present the one closest to the start of the chain wins.
func (h *X509Handler) Authenticate(ctx context.Context, credential domain.Credential) error {
	x509Credentials := domain.AsX509Credentials(credential)
	if x509Credentials == nil {
		return unsupported(h.Name(), credential)
	}

	certificates := x509Credentials.Certificates
	var clientCert *x509.Certificate
	hasTrustedIssuer := false

	for i := len(certificates) - 1; i >= 0; i-- {
		cert := certificates[i]
		if cert == nil {
			return fmt.Errorf("%w: nil certificate at position %d", domain.ErrAuthenticationFailed, i)
		}

		h.logger.Debug("evaluating certificate",
			slog.String("subject", cert.Subject.String()),
			slog.String("issuer", cert.Issuer.String()),
			slog.String("serial", cert.SerialNumber.String()),
		)

		if err := h.validate(ctx, cert); err != nil {
			h.logger.Debug("certificate rejected",
				slog.String("subject", cert.Subject.String()),
				slog.Any("error", err),
			)
			return err
		}

		if !hasTrustedIssuer {
			hasTrustedIssuer = h.trustedIssuer.MatchString(cert.Issuer.String())
		}

		if PathLength(cert) < 0 {
			clientCert = cert
		}
	}

	if clientCert == nil {
		return fmt.Errorf("%w: valid client certificate not found in request", domain.ErrNoClientCertificate)
	}
	if !hasTrustedIssuer {
		return fmt.Errorf("%w: client certificate is not from a trusted issuer", domain.ErrUntrustedIssuer)
	}

	x509Credentials.SetCertificate(clientCert)
	h.logger.Info("client certificate authenticated",
		slog.String("subject", clientCert.Subject.String()),
		slog.String("issuer", clientCert.Issuer.String()),
	)
	return nil
}

func (h *X509Handler) validate(ctx context.Context, cert *x509.Certificate) error {
	now := h.clock()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return fmt.Errorf(
			"%w: %s valid from %s to %s",
			domain.ErrCertificateExpired,
			cert.Subject.String(),
			cert.NotBefore.UTC().Format(time.RFC3339),
			cert.NotAfter.UTC().Format(time.RFC3339),
		)
	}

	if err := h.revocationChecker.Check(ctx, cert); err != nil {
		if apperrors.Is(err, domain.ErrAuthenticationFailed) {
			return err
		}
		return fmt.Errorf("%w: revocation check failed: %v", domain.ErrAuthenticationFailed, err)
	}

	pathLength := PathLength(cert)
	if pathLength < 0 {
		if !h.subject.MatchString(cert.Subject.String()) {
			return fmt.Errorf(
				"%w: subject %q does not match pattern %s",
				domain.ErrSubjectNotAllowed,
				cert.Subject.String(),
				h.subject.String(),
			)
		}
		if h.checkKeyUsage && !h.isValidKeyUsage(cert) {
			return fmt.Errorf(
				"%w: key usage forbids client authentication",
				domain.ErrKeyUsageViolation,
			)
		}
		return nil
	}

	if pathLength == UnlimitedPathLength {
		if !h.maxPathLengthAllowUnspecified {
			return fmt.Errorf("%w: unlimited path length not allowed", domain.ErrPathLengthViolation)
		}
		return nil
	}
	if pathLength > h.maxPathLength {
		return fmt.Errorf(
			"%w: path length %d exceeds maximum %d",
			domain.ErrPathLengthViolation,
			pathLength,
			h.maxPathLength,
		)
	}
	return nil
}

func (h *X509Handler) isValidKeyUsage(cert *x509.Certificate) bool {
	present, critical := keyUsageExtension(cert)
	if !present {
		h.logger.Warn("key usage check enabled but certificate has no key usage extension",
			slog.String("subject", cert.Subject.String()),
		)
		return !h.requireKeyUsage
	}

	if critical || h.requireKeyUsage {
		return cert.KeyUsage&x509.KeyUsageDigitalSignature != 0
	}
	return true
}

// PathLength returns -1 for end-entity certificates, UnlimitedPathLength for CA
// certificates without a path length constraint and the constraint otherwise.
func PathLength(cert *x509.Certificate) int {
	if !cert.BasicConstraintsValid || !cert.IsCA {
		return -1
	}
	if cert.MaxPathLen < 0 || (cert.MaxPathLen == 0 && !cert.MaxPathLenZero) {
		return UnlimitedPathLength
	}
	return cert.MaxPathLen
}

func keyUsageExtension(cert *x509.Certificate) (present, critical bool) {
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oidExtensionKeyUsage) {
			return true, ext.Critical
		}
	}
	return false, false
}
