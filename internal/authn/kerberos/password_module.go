package kerberos

import (
	"context"
	"errors"
	"fmt"

	"github.com/jcmturner/gokrb5/v8/client"

	"github.com/allisson/cas/internal/authn/domain"
)

// PasswordLoginModule obtains a TGT from the KDC to verify a username and password.
type PasswordLoginModule struct {
	provider *Provider
}

// NewPasswordLoginModule creates a module using the krb5.conf loaded by provider.
func NewPasswordLoginModule(provider *Provider) *PasswordLoginModule {
	return &PasswordLoginModule{provider: provider}
}

func (m *PasswordLoginModule) Name() string {
	return "kerberos"
}

func (m *PasswordLoginModule) Login(ctx context.Context, username, password string) (*domain.Principal, error) {
	if m.provider.krb5Conf == nil {
		return nil, errors.New("kerberos: no krb5.conf configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cl := client.NewWithPassword(
		username,
		m.provider.realm,
		password,
		m.provider.krb5Conf,
		client.DisablePAFXFAST(true),
	)
	defer cl.Destroy()

	if err := cl.Login(); err != nil {
		return nil, fmt.Errorf("%w: kerberos login: %v", domain.ErrInvalidCredentials, err)
	}

	id := username
	if m.provider.principalWithDomainName {
		id = username + "@" + m.provider.realm
	}
	return &domain.Principal{
		ID: id,
		Attributes: map[string]any{
			"kerberos_realm": m.provider.realm,
		},
	}, nil
}
