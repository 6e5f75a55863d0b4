package domain

import (
	"github.com/allisson/cas/internal/errors"
)

// ErrAuthenticationFailed is the single failure category every authentication handler
// reports. It wraps errors.ErrUnauthorized so transport layers can map it without
// knowing about individual failure kinds.
var ErrAuthenticationFailed = errors.Wrap(errors.ErrUnauthorized, "authentication failed")

// Failure kinds. Every kind wraps ErrAuthenticationFailed and none of them is transient.
var (
	// ErrInsecureTransport indicates a URL credential whose scheme violates the secure-transport policy.
	ErrInsecureTransport = errors.Wrap(ErrAuthenticationFailed, "insecure transport")

	// ErrEndpointUnreachable indicates the endpoint probe rejected the URL credential.
	ErrEndpointUnreachable = errors.Wrap(ErrAuthenticationFailed, "endpoint unreachable or invalid")

	// ErrCertificateExpired indicates a certificate outside its validity window.
	ErrCertificateExpired = errors.Wrap(ErrAuthenticationFailed, "certificate expired or not yet valid")

	// ErrCertificateRevoked indicates the revocation checker rejected a certificate.
	ErrCertificateRevoked = errors.Wrap(ErrAuthenticationFailed, "certificate revoked")

	// ErrRevocationUnavailable indicates revocation status could not be determined and
	// the configured policy denies authentication in that case.
	ErrRevocationUnavailable = errors.Wrap(ErrAuthenticationFailed, "revocation status unavailable")

	// ErrUntrustedIssuer indicates no certificate in the chain matched the trusted issuer pattern.
	ErrUntrustedIssuer = errors.Wrap(ErrAuthenticationFailed, "certificate not from a trusted issuer")

	// ErrSubjectNotAllowed indicates the end-entity subject DN failed the allowed subject pattern.
	ErrSubjectNotAllowed = errors.Wrap(ErrAuthenticationFailed, "certificate subject not allowed")

	// ErrKeyUsageViolation indicates the end-entity key usage forbids client authentication.
	ErrKeyUsageViolation = errors.Wrap(ErrAuthenticationFailed, "certificate key usage violation")

	// ErrPathLengthViolation indicates a CA path length constraint rejected by configuration.
	ErrPathLengthViolation = errors.Wrap(ErrAuthenticationFailed, "certificate path length violation")

	// ErrNoClientCertificate indicates the chain contained no end-entity certificate.
	ErrNoClientCertificate = errors.Wrap(ErrAuthenticationFailed, "no client certificate found")

	// ErrUnsupportedCredential indicates a handler was invoked with a credential it does not support.
	ErrUnsupportedCredential = errors.Wrap(ErrAuthenticationFailed, "unsupported credential")

	// ErrInvalidCredentials indicates a realm login rejected the username and password.
	ErrInvalidCredentials = errors.Wrap(ErrAuthenticationFailed, "invalid credentials")

	// ErrNegotiationFailed indicates a SPNEGO token could not be verified.
	ErrNegotiationFailed = errors.Wrap(ErrAuthenticationFailed, "negotiation failed")
)

// Realm user and audit errors.
var (
	// ErrRealmUserNotFound indicates no user exists for the realm and username.
	ErrRealmUserNotFound = errors.Wrap(errors.ErrNotFound, "realm user not found")

	// ErrRealmUserAlreadyExists indicates a user with the same realm and username exists.
	ErrRealmUserAlreadyExists = errors.Wrap(errors.ErrConflict, "realm user already exists")

	// ErrSignatureInvalid indicates an authentication event failed signature verification.
	ErrSignatureInvalid = errors.New("authentication event signature is invalid")
)

// failureKinds lists the kinds in the order they are reported by FailureKind.
var failureKinds = []struct {
	err  error
	name string
}{
	{ErrInsecureTransport, "insecure_transport"},
	{ErrEndpointUnreachable, "endpoint_unreachable"},
	{ErrCertificateExpired, "certificate_expired"},
	{ErrCertificateRevoked, "certificate_revoked"},
	{ErrRevocationUnavailable, "revocation_unavailable"},
	{ErrUntrustedIssuer, "untrusted_issuer"},
	{ErrSubjectNotAllowed, "subject_not_allowed"},
	{ErrKeyUsageViolation, "key_usage_violation"},
	{ErrPathLengthViolation, "path_length_violation"},
	{ErrNoClientCertificate, "no_client_certificate"},
	{ErrUnsupportedCredential, "unsupported_credential"},
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrNegotiationFailed, "negotiation_failed"},
}

// FailureKind returns a stable machine-readable name for the failure kind wrapped by err.
// Returns "authentication_failed" for other authentication failures, "error" for anything
// else and an empty string for nil.
func FailureKind(err error) string {
	if err == nil {
		return ""
	}
	for _, kind := range failureKinds {
		if errors.Is(err, kind.err) {
			return kind.name
		}
	}
	if errors.Is(err, ErrAuthenticationFailed) {
		return "authentication_failed"
	}
	return "error"
}
