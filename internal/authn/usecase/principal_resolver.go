package usecase

import (
	"encoding/hex"

	"github.com/allisson/cas/internal/authn/domain"
)

// X.509 principal attributes.
const (
	X509PrincipalSubjectDN = "subject_dn"
	X509PrincipalCN        = "cn"
)

// PrincipalResolver turns an authenticated credential into the principal it proves.
type PrincipalResolver struct {
	x509Attribute string
}

// NewPrincipalResolver creates a resolver. An empty attribute means subject_dn.
func NewPrincipalResolver(x509Attribute string) *PrincipalResolver {
	if x509Attribute == "" {
		x509Attribute = X509PrincipalSubjectDN
	}
	return &PrincipalResolver{x509Attribute: x509Attribute}
}

// Resolve returns nil when the credential does not carry an identity, e.g. a certificate
// chain without an attached leaf.
func (r *PrincipalResolver) Resolve(credential domain.Credential) *domain.Principal {
	if c := domain.AsUrlCredential(credential); c != nil {
		if c.URL == nil {
			return nil
		}
		return domain.NewPrincipal(c.URL.String())
	}

	if c := domain.AsX509Credentials(credential); c != nil {
		cert := c.Certificate
		if cert == nil {
			return nil
		}
		id := cert.Subject.String()
		if r.x509Attribute == X509PrincipalCN && cert.Subject.CommonName != "" {
			id = cert.Subject.CommonName
		}
		return &domain.Principal{
			ID: id,
			Attributes: map[string]any{
				"subject_dn":    cert.Subject.String(),
				"issuer_dn":     cert.Issuer.String(),
				"serial_number": hex.EncodeToString(cert.SerialNumber.Bytes()),
			},
		}
	}

	if c := domain.AsUsernamePasswordCredential(credential); c != nil {
		if c.Principal != nil {
			return c.Principal
		}
		if c.Username == "" {
			return nil
		}
		principal := domain.NewPrincipal(c.Username)
		if c.Realm != "" {
			principal.Attributes["realm"] = c.Realm
		}
		return principal
	}

	if c := domain.AsSpnegoCredential(credential); c != nil {
		return c.Principal
	}

	return nil
}
