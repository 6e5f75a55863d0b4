package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "load default configuration",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "0.0.0.0", cfg.ServerHost)
				assert.Equal(t, 8443, cfg.ServerPort)
				assert.False(t, cfg.TLSEnabled())
				assert.Equal(t, "postgres", cfg.DBDriver)
				assert.Equal(t, 25, cfg.DBMaxOpenConnections)
				assert.Equal(t, 5, cfg.DBMaxIdleConnections)
				assert.Equal(t, 5*time.Minute, cfg.DBConnMaxLifetime)
				assert.Equal(t, "info", cfg.LogLevel)
				assert.True(t, cfg.RateLimitLoginEnabled)
				assert.Equal(t, 5.0, cfg.RateLimitLoginRequestsPerSec)
				assert.Equal(t, 10, cfg.RateLimitLoginBurst)
				assert.Equal(t, "cas", cfg.MetricsNamespace)
				assert.Equal(t, "any", cfg.AuthenticationPolicy)
				assert.Equal(t, "subject_dn", cfg.X509PrincipalAttribute)
				assert.True(t, cfg.URLRequireSecure)
				assert.Equal(t, 5*time.Second, cfg.ProbeTimeout)
				assert.Equal(t, ".*", cfg.X509SubjectDNPattern)
				assert.Equal(t, 1, cfg.X509MaxPathLength)
				assert.Equal(t, RevocationModeNone, cfg.RevocationMode)
				assert.Equal(t, time.Hour, cfg.RevocationCacheTTL)
				assert.Equal(t, "CAS", cfg.RealmDefault)
				assert.Equal(t, "database", cfg.RealmModules)
				assert.Equal(t, "/etc/krb5.conf", cfg.KerberosKrb5Conf)
				assert.Empty(t, cfg.TrustedProxies)
				assert.Equal(t, 5*time.Minute, cfg.KerberosMaxClockSkew)
				assert.NoError(t, cfg.Validate())
			},
		},
		{
			name: "load custom server configuration",
			envVars: map[string]string{
				"SERVER_HOST":          "localhost",
				"SERVER_PORT":          "9443",
				"SERVER_TLS_CERT_FILE": "/etc/cas/tls.crt",
				"SERVER_TLS_KEY_FILE":  "/etc/cas/tls.key",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "localhost", cfg.ServerHost)
				assert.Equal(t, 9443, cfg.ServerPort)
				assert.True(t, cfg.TLSEnabled())
			},
		},
		{
			name: "load custom database configuration",
			envVars: map[string]string{
				"DB_DRIVER":                    "mysql",
				"DB_CONNECTION_STRING":         "user:password@tcp(localhost:3306)/cas",
				"DB_MAX_OPEN_CONNECTIONS":      "50",
				"DB_MAX_IDLE_CONNECTIONS":      "10",
				"DB_CONN_MAX_LIFETIME_MINUTES": "10",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "mysql", cfg.DBDriver)
				assert.Equal(t, "user:password@tcp(localhost:3306)/cas", cfg.DBConnectionString)
				assert.Equal(t, 50, cfg.DBMaxOpenConnections)
				assert.Equal(t, 10, cfg.DBMaxIdleConnections)
				assert.Equal(t, 10*time.Minute, cfg.DBConnMaxLifetime)
			},
		},
		{
			name: "load custom x509 and revocation configuration",
			envVars: map[string]string{
				"X509_ENABLED":                   "true",
				"X509_TRUSTED_ISSUER_DN_PATTERN": "CN=Root CA.*",
				"X509_CERT_HEADER":               "X-SSL-Client-Cert",
				"SERVER_TLS_CLIENT_CA_FILE":      "/etc/cas/client-ca.pem",
				"TRUSTED_PROXIES":                "10.0.0.1, 172.16.0.0/12",
				"REVOCATION_MODE":                "crl+ocsp",
				"REVOCATION_ISSUER_CA_FILE":      "/etc/cas/issuers.pem",
				"REVOCATION_CRL_URLS":            "http://crl.example.com/root.crl, /etc/cas/root.crl",
				"REVOCATION_UNAVAILABLE_POLICY":  "allow",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.X509Enabled)
				assert.Equal(t, "X-SSL-Client-Cert", cfg.X509CertHeader)
				assert.Equal(t, "/etc/cas/client-ca.pem", cfg.ServerTLSClientCAFile)
				proxies, err := cfg.TrustedProxyList()
				require.NoError(t, err)
				assert.Equal(t, []string{"10.0.0.1", "172.16.0.0/12"}, proxies)
				assert.Equal(t, RevocationModeCRLAndOCSP, cfg.RevocationMode)
				assert.Equal(t,
					[]string{"http://crl.example.com/root.crl", "/etc/cas/root.crl"},
					SplitList(cfg.RevocationCRLURLs))
				assert.NoError(t, cfg.Validate())
			},
		},
		{
			name: "load custom log level",
			envVars: map[string]string{
				"LOG_LEVEL": "debug",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.LogLevel)
				assert.Equal(t, "debug", cfg.GetGinMode())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			// Set test environment variables
			for key, value := range tt.envVars {
				err := os.Setenv(key, value)
				require.NoError(t, err)
			}

			cfg := Load()

			tt.validate(t, cfg)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		os.Clearenv()
		return Load()
	}

	t.Run("Error_UnknownDriver", func(t *testing.T) {
		cfg := valid()
		cfg.DBDriver = "sqlite"
		assert.Error(t, cfg.Validate())
	})

	t.Run("Error_UnknownPolicy", func(t *testing.T) {
		cfg := valid()
		cfg.AuthenticationPolicy = "most"
		assert.Error(t, cfg.Validate())
	})

	t.Run("Error_UnknownRevocationMode", func(t *testing.T) {
		cfg := valid()
		cfg.RevocationMode = "crlset"
		assert.Error(t, cfg.Validate())
	})

	t.Run("Error_InvalidSigningKey", func(t *testing.T) {
		cfg := valid()
		cfg.AuditSigningKey = "%%%"
		assert.Error(t, cfg.Validate())
	})

	t.Run("Error_InvalidProbeCodes", func(t *testing.T) {
		cfg := valid()
		cfg.ProbeAcceptableCodes = "200,abc"
		assert.Error(t, cfg.Validate())
	})

	t.Run("Error_X509WithoutTrustedIssuer", func(t *testing.T) {
		cfg := valid()
		cfg.X509Enabled = true
		cfg.ServerTLSClientCAFile = "/etc/cas/client-ca.pem"
		assert.Error(t, cfg.Validate())
	})

	t.Run("Error_X509WithoutClientCAFile", func(t *testing.T) {
		cfg := valid()
		cfg.X509Enabled = true
		cfg.X509TrustedIssuerDNPattern = "CN=Root CA.*"

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ServerTLSClientCAFile")
	})

	t.Run("Success_X509WithClientCAFile", func(t *testing.T) {
		cfg := valid()
		cfg.X509Enabled = true
		cfg.X509TrustedIssuerDNPattern = "CN=Root CA.*"
		cfg.ServerTLSClientCAFile = "/etc/cas/client-ca.pem"
		assert.NoError(t, cfg.Validate())
	})

	for _, mode := range []string{RevocationModeCRL, RevocationModeCRLAndOCSP} {
		t.Run("Error_CRLWithoutIssuerFile_"+mode, func(t *testing.T) {
			cfg := valid()
			cfg.RevocationMode = mode

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "RevocationIssuerCAFile")
		})
	}

	t.Run("Success_OCSPWithoutIssuerFile", func(t *testing.T) {
		cfg := valid()
		cfg.RevocationMode = RevocationModeOCSP
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Error_InvalidTrustedProxies", func(t *testing.T) {
		for _, proxies := range []string{"proxy.internal", "10.0.0.0/33", "10.0.0.1,not-an-ip"} {
			cfg := valid()
			cfg.TrustedProxies = proxies
			assert.Error(t, cfg.Validate(), proxies)
		}
	})

	t.Run("Success_TrustedProxies", func(t *testing.T) {
		cfg := valid()
		cfg.TrustedProxies = "10.0.0.1, 2001:db8::/32"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Error_KerberosWithoutKeytab", func(t *testing.T) {
		cfg := valid()
		cfg.KerberosEnabled = true
		assert.Error(t, cfg.Validate())
	})
}

func TestConfig_Parsers(t *testing.T) {
	cfg := &Config{AuditSigningKey: "c2VjcmV0", ProbeAcceptableCodes: "200, 302 ,304"}

	key, err := cfg.AuditSigningKeyBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), key)

	codes, err := cfg.ProbeAcceptableCodeList()
	require.NoError(t, err)
	assert.Equal(t, []int{200, 302, 304}, codes)

	key, err = (&Config{}).AuditSigningKeyBytes()
	require.NoError(t, err)
	assert.Nil(t, key)

	assert.Nil(t, SplitList(""))
	assert.Equal(t, []string{"a", "b"}, SplitList(" a, ,b "))
}
