package kerberos

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jcmturner/gofork/encoding/asn1"
	"github.com/jcmturner/gokrb5/v8/messages"
	"github.com/jcmturner/gokrb5/v8/service"
	"github.com/jcmturner/gokrb5/v8/spnego"

	"github.com/allisson/cas/internal/authn/domain"
)

// Mechanism OIDs accepted inside a SPNEGO NegTokenInit.
var (
	OIDKerberosV5   = asn1.ObjectIdentifier{1, 2, 840, 113554, 1, 2, 2}
	OIDMSKerberosV5 = asn1.ObjectIdentifier{1, 2, 840, 48018, 1, 2, 2}
)

var (
	ErrInvalidToken         = errors.New("kerberos: invalid token format")
	ErrUnsupportedMechanism = errors.New("kerberos: unsupported mechanism")
	ErrNoKeytab             = errors.New("kerberos: no service keytab configured")
)

// TokenVerifier verifies the AP-REQ carried by a SPNEGO token against the service keytab.
type TokenVerifier struct {
	provider *Provider
}

// NewTokenVerifier creates a verifier backed by provider.
func NewTokenVerifier(provider *Provider) *TokenVerifier {
	return &TokenVerifier{provider: provider}
}

// Verify accepts a GSS-wrapped SPNEGO token, a bare NegTokenInit, a GSS KRB5 token or a
// raw AP-REQ and returns the client principal.
func (v *TokenVerifier) Verify(token []byte) (*domain.Principal, error) {
	if v.provider.keytab == nil {
		return nil, ErrNoKeytab
	}

	apReq, err := extractAPReq(token)
	if err != nil {
		return nil, err
	}

	opts := []func(*service.Settings){
		service.MaxClockSkew(v.provider.maxClockSkew),
		service.DecodePAC(false),
	}
	if v.provider.servicePrincipal != "" {
		opts = append(opts, service.KeytabPrincipal(v.provider.servicePrincipal))
	}
	settings := service.NewSettings(v.provider.keytab, opts...)

	ok, creds, err := service.VerifyAPREQ(apReq, settings)
	if err != nil {
		return nil, fmt.Errorf("verify ap-req: %w", err)
	}
	if !ok {
		return nil, errors.New("ap-req rejected")
	}

	name := creds.CName().PrincipalNameString()
	realm := creds.Domain()
	id := name
	if v.provider.principalWithDomainName && realm != "" {
		id = name + "@" + realm
	} else if idx := strings.LastIndex(id, "@"); idx > 0 {
		id = id[:idx]
	}

	return &domain.Principal{
		ID: id,
		Attributes: map[string]any{
			"kerberos_principal": name,
			"kerberos_realm":     realm,
		},
	}, nil
}

func extractAPReq(token []byte) (*messages.APReq, error) {
	if len(token) < 2 {
		return nil, ErrInvalidToken
	}

	switch token[0] {
	case 0x6e:
		// Raw AP-REQ, application tag 14.
		var apReq messages.APReq
		if err := apReq.Unmarshal(token); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return &apReq, nil
	case 0xa0, 0xa1:
		isInit, negToken, err := spnego.UnmarshalNegToken(token)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		if !isInit {
			return nil, fmt.Errorf("%w: expected NegTokenInit", ErrInvalidToken)
		}
		initToken, ok := negToken.(spnego.NegTokenInit)
		if !ok {
			return nil, ErrInvalidToken
		}
		return mechTokenAPReq(initToken)
	case 0x60:
		var spnegoToken spnego.SPNEGOToken
		if err := spnegoToken.Unmarshal(token); err == nil {
			if !spnegoToken.Init {
				return nil, fmt.Errorf("%w: expected NegTokenInit", ErrInvalidToken)
			}
			return mechTokenAPReq(spnegoToken.NegTokenInit)
		}
		return krb5TokenAPReq(token)
	default:
		return nil, ErrInvalidToken
	}
}

func mechTokenAPReq(initToken spnego.NegTokenInit) (*messages.APReq, error) {
	if !offersKerberos(initToken.MechTypes) {
		return nil, ErrUnsupportedMechanism
	}
	if len(initToken.MechTokenBytes) == 0 {
		return nil, fmt.Errorf("%w: no mechanism token", ErrInvalidToken)
	}
	if initToken.MechTokenBytes[0] == 0x6e {
		var apReq messages.APReq
		if err := apReq.Unmarshal(initToken.MechTokenBytes); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return &apReq, nil
	}
	return krb5TokenAPReq(initToken.MechTokenBytes)
}

func krb5TokenAPReq(token []byte) (*messages.APReq, error) {
	var krb5Token spnego.KRB5Token
	if err := krb5Token.Unmarshal(token); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !krb5Token.IsAPReq() {
		return nil, fmt.Errorf("%w: krb5 token is not an AP-REQ", ErrInvalidToken)
	}
	return &krb5Token.APReq, nil
}

func offersKerberos(mechTypes []asn1.ObjectIdentifier) bool {
	for _, mech := range mechTypes {
		if mech.Equal(OIDKerberosV5) || mech.Equal(OIDMSKerberosV5) {
			return true
		}
	}
	return false
}
