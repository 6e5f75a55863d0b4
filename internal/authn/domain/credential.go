// Package domain defines the credential model, principals and authentication results shared
// by the authentication handlers, the orchestration use case and the login API.
package domain

import (
	"crypto/x509"
	"fmt"
	"net/url"

	"github.com/allisson/cas/internal/errors"
)

// CredentialType identifies a credential variant.
type CredentialType string

const (
	CredentialTypeURL              CredentialType = "url"
	CredentialTypeX509             CredentialType = "x509"
	CredentialTypeUsernamePassword CredentialType = "username_password"
	CredentialTypeSpnego           CredentialType = "spnego"
)

// Credential is evidence presented by a caller to prove identity.
type Credential interface {
	CredentialType() CredentialType
	String() string
}

// Accessor interfaces used by handlers to recognise a variant, including caller-defined
// types that embed one.
type (
	URLCredentialer interface {
		AsURLCredential() *UrlCredential
	}
	X509Credentialer interface {
		AsX509Credentials() *X509CertificateCredentials
	}
	UsernamePasswordCredentialer interface {
		AsUsernamePasswordCredential() *UsernamePasswordCredential
	}
	SpnegoCredentialer interface {
		AsSpnegoCredential() *SpnegoCredential
	}
)

// UrlCredential is a URL the caller claims to control, typically a proxy callback endpoint.
type UrlCredential struct {
	URL *url.URL
}

// NewUrlCredential parses raw and returns a credential for it.
func NewUrlCredential(raw string) (*UrlCredential, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "invalid url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "url must be absolute")
	}
	return &UrlCredential{URL: u}, nil
}

func (c *UrlCredential) CredentialType() CredentialType { return CredentialTypeURL }

func (c *UrlCredential) AsURLCredential() *UrlCredential { return c }

func (c *UrlCredential) String() string {
	if c == nil || c.URL == nil {
		return "[url: null]"
	}
	return fmt.Sprintf("[url: %s]", c.URL.Redacted())
}

// X509CertificateCredentials carries the client certificate chain as presented by the
// transport. Certificate stays nil until authentication resolves the end-entity certificate.
type X509CertificateCredentials struct {
	Certificates []*x509.Certificate
	Certificate  *x509.Certificate
}

// NewX509CertificateCredentials wraps a certificate chain in the order it was presented.
func NewX509CertificateCredentials(certificates []*x509.Certificate) *X509CertificateCredentials {
	return &X509CertificateCredentials{Certificates: certificates}
}

func (c *X509CertificateCredentials) CredentialType() CredentialType { return CredentialTypeX509 }

func (c *X509CertificateCredentials) AsX509Credentials() *X509CertificateCredentials { return c }

// SetCertificate attaches the verified end-entity certificate.
func (c *X509CertificateCredentials) SetCertificate(cert *x509.Certificate) {
	c.Certificate = cert
}

func (c *X509CertificateCredentials) String() string {
	if c == nil {
		return "[x509: null]"
	}
	if c.Certificate != nil {
		return fmt.Sprintf("[x509: %s]", c.Certificate.Subject.String())
	}
	return fmt.Sprintf("[x509: %d certificate(s)]", len(c.Certificates))
}

// UsernamePasswordCredential is a username and password bound to an optional realm and,
// once a realm login succeeds, the principal it returned.
type UsernamePasswordCredential struct {
	Username  string
	Password  string
	Realm     string
	Principal *Principal
}

// SetPrincipal attaches the principal returned by the realm login.
func (c *UsernamePasswordCredential) SetPrincipal(principal *Principal) {
	c.Principal = principal
}

func (c *UsernamePasswordCredential) CredentialType() CredentialType {
	return CredentialTypeUsernamePassword
}

func (c *UsernamePasswordCredential) AsUsernamePasswordCredential() *UsernamePasswordCredential {
	return c
}

func (c *UsernamePasswordCredential) String() string {
	if c == nil {
		return "[username: null]"
	}
	if c.Realm != "" {
		return fmt.Sprintf("[username: %s@%s]", c.Username, c.Realm)
	}
	return fmt.Sprintf("[username: %s]", c.Username)
}

// SpnegoCredential carries a SPNEGO/Kerberos initial token and, once negotiation
// succeeds, the principal it resolved to.
type SpnegoCredential struct {
	Token     []byte
	Principal *Principal
}

// NewSpnegoCredential wraps an initial token.
func NewSpnegoCredential(token []byte) *SpnegoCredential {
	return &SpnegoCredential{Token: token}
}

func (c *SpnegoCredential) CredentialType() CredentialType { return CredentialTypeSpnego }

func (c *SpnegoCredential) AsSpnegoCredential() *SpnegoCredential { return c }

// SetPrincipal attaches the principal resolved by negotiation.
func (c *SpnegoCredential) SetPrincipal(principal *Principal) {
	c.Principal = principal
}

// String returns the resolved principal name or "null" when negotiation has not resolved one.
func (c *SpnegoCredential) String() string {
	if c == nil || c.Principal == nil {
		return "null"
	}
	return c.Principal.ID
}

// Principal is an authenticated identity.
type Principal struct {
	ID         string
	Attributes map[string]any
}

// NewPrincipal creates a principal without attributes.
func NewPrincipal(id string) *Principal {
	return &Principal{ID: id, Attributes: map[string]any{}}
}

func (p *Principal) String() string {
	if p == nil {
		return "null"
	}
	return p.ID
}

// The helpers below return nil for nil interfaces, typed-nil pointers and other variants.

// AsUrlCredential returns the URL credential carried by credential.
func AsUrlCredential(credential Credential) *UrlCredential {
	if v, ok := credential.(URLCredentialer); ok && v != nil {
		return v.AsURLCredential()
	}
	return nil
}

// AsX509Credentials returns the certificate credentials carried by credential.
func AsX509Credentials(credential Credential) *X509CertificateCredentials {
	if v, ok := credential.(X509Credentialer); ok && v != nil {
		return v.AsX509Credentials()
	}
	return nil
}

// AsUsernamePasswordCredential returns the username/password credential carried by credential.
func AsUsernamePasswordCredential(credential Credential) *UsernamePasswordCredential {
	if v, ok := credential.(UsernamePasswordCredentialer); ok && v != nil {
		return v.AsUsernamePasswordCredential()
	}
	return nil
}

// AsSpnegoCredential returns the SPNEGO credential carried by credential.
func AsSpnegoCredential(credential Credential) *SpnegoCredential {
	if v, ok := credential.(SpnegoCredentialer); ok && v != nil {
		return v.AsSpnegoCredential()
	}
	return nil
}
