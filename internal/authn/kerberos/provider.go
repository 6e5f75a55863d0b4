// Package kerberos verifies SPNEGO/Kerberos tokens with a service keytab and logs users in
// against a KDC with their password.
package kerberos

import (
	"fmt"
	"os"
	"time"

	krb5config "github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/keytab"
)

// DefaultMaxClockSkew is the tolerated difference between client and server clocks.
const DefaultMaxClockSkew = 5 * time.Minute

// Config locates the Kerberos material.
type Config struct {
	KeytabPath       string
	ServicePrincipal string
	Krb5ConfPath     string
	// Realm overrides the default realm from krb5.conf for password logins.
	Realm        string
	MaxClockSkew time.Duration
	// PrincipalWithDomainName keeps the realm suffix on resolved principal names.
	PrincipalWithDomainName bool
}

// Provider holds the loaded keytab and krb5.conf.
type Provider struct {
	keytab                  *keytab.Keytab
	krb5Conf                *krb5config.Config
	servicePrincipal        string
	realm                   string
	maxClockSkew            time.Duration
	principalWithDomainName bool
}

// NewProvider loads the keytab (when configured) and krb5.conf (when configured).
func NewProvider(cfg Config) (*Provider, error) {
	p := &Provider{
		servicePrincipal:        cfg.ServicePrincipal,
		realm:                   cfg.Realm,
		maxClockSkew:            cfg.MaxClockSkew,
		principalWithDomainName: cfg.PrincipalWithDomainName,
	}
	if p.maxClockSkew <= 0 {
		p.maxClockSkew = DefaultMaxClockSkew
	}

	if cfg.KeytabPath != "" {
		kt, err := loadKeytab(cfg.KeytabPath)
		if err != nil {
			return nil, fmt.Errorf("load keytab %s: %w", cfg.KeytabPath, err)
		}
		p.keytab = kt
	}

	if cfg.Krb5ConfPath != "" {
		krbCfg, err := krb5config.Load(cfg.Krb5ConfPath)
		if err != nil {
			return nil, fmt.Errorf("load krb5.conf %s: %w", cfg.Krb5ConfPath, err)
		}
		p.krb5Conf = krbCfg
		if p.realm == "" {
			p.realm = krbCfg.LibDefaults.DefaultRealm
		}
	}

	return p, nil
}

// NewProviderFromMaterial builds a provider from already parsed material.
func NewProviderFromMaterial(kt *keytab.Keytab, krbCfg *krb5config.Config, cfg Config) *Provider {
	p := &Provider{
		keytab:                  kt,
		krb5Conf:                krbCfg,
		servicePrincipal:        cfg.ServicePrincipal,
		realm:                   cfg.Realm,
		maxClockSkew:            cfg.MaxClockSkew,
		principalWithDomainName: cfg.PrincipalWithDomainName,
	}
	if p.maxClockSkew <= 0 {
		p.maxClockSkew = DefaultMaxClockSkew
	}
	if p.realm == "" && krbCfg != nil {
		p.realm = krbCfg.LibDefaults.DefaultRealm
	}
	return p
}

// Realm returns the realm used for password logins.
func (p *Provider) Realm() string {
	return p.realm
}

func loadKeytab(path string) (*keytab.Keytab, error) {
	data, err := os.ReadFile(path) //nolint:gosec // configured keytab path
	if err != nil {
		return nil, fmt.Errorf("read keytab file: %w", err)
	}

	kt := keytab.New()
	if err := kt.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("parse keytab: %w", err)
	}
	return kt, nil
}
