package app

import (
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/allisson/cas/internal/authn/domain"
	"github.com/allisson/cas/internal/authn/handler"
	"github.com/allisson/cas/internal/authn/kerberos"
	"github.com/allisson/cas/internal/authn/probe"
	"github.com/allisson/cas/internal/authn/realm"
	authnRepository "github.com/allisson/cas/internal/authn/repository"
	"github.com/allisson/cas/internal/authn/revocation"
	authnService "github.com/allisson/cas/internal/authn/service"
	authnUseCase "github.com/allisson/cas/internal/authn/usecase"
	"github.com/allisson/cas/internal/config"
	apperrors "github.com/allisson/cas/internal/errors"
)

// Realm login module names accepted in REALM_MODULES.
const (
	realmModuleDatabase = "database"
	realmModuleKerberos = "kerberos"
)

// authnComponents groups the authentication dependencies held by the Container.
type authnComponents struct {
	passwordService       authnService.PasswordService
	eventSigner           authnService.EventSigner
	eventRepository       authnUseCase.AuthenticationEventRepository
	realmUserRepository   authnUseCase.RealmUserRepository
	prober                probe.EndpointProber
	revocationChecker     revocation.Checker
	x509Handler           *handler.X509Handler
	kerberosProvider      *kerberos.Provider
	realmConfiguration    *realm.Configuration
	authnHandlers         []handler.AuthenticationHandler
	authenticationUC      authnUseCase.AuthenticationUseCase
	authenticationEventUC authnUseCase.AuthenticationEventUseCase
	realmUserUC           authnUseCase.RealmUserUseCase

	passwordServiceInit       sync.Once
	eventSignerInit           sync.Once
	eventRepositoryInit       sync.Once
	realmUserRepositoryInit   sync.Once
	proberInit                sync.Once
	revocationCheckerInit     sync.Once
	x509HandlerInit           sync.Once
	kerberosProviderInit      sync.Once
	realmConfigurationInit    sync.Once
	authnHandlersInit         sync.Once
	authenticationUCInit      sync.Once
	authenticationEventUCInit sync.Once
	realmUserUCInit           sync.Once
}

// PasswordService returns the Argon2id password service.
func (c *Container) PasswordService() authnService.PasswordService {
	c.passwordServiceInit.Do(func() {
		c.passwordService = authnService.NewPasswordService()
	})
	return c.passwordService
}

// EventSigner returns the authentication event signer.
func (c *Container) EventSigner() authnService.EventSigner {
	c.eventSignerInit.Do(func() {
		c.eventSigner = authnService.NewEventSigner()
	})
	return c.eventSigner
}

// AuthenticationEventRepository returns the authentication event repository based on database driver.
func (c *Container) AuthenticationEventRepository() (authnUseCase.AuthenticationEventRepository, error) {
	var err error
	c.eventRepositoryInit.Do(func() {
		c.eventRepository, err = c.initAuthenticationEventRepository()
		if err != nil {
			c.initErrors["eventRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["eventRepository"]; exists {
		return nil, storedErr
	}
	return c.eventRepository, nil
}

// RealmUserRepository returns the realm user repository based on database driver.
func (c *Container) RealmUserRepository() (authnUseCase.RealmUserRepository, error) {
	var err error
	c.realmUserRepositoryInit.Do(func() {
		c.realmUserRepository, err = c.initRealmUserRepository()
		if err != nil {
			c.initErrors["realmUserRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["realmUserRepository"]; exists {
		return nil, storedErr
	}
	return c.realmUserRepository, nil
}

// EndpointProber returns the prober used by the URL handler.
func (c *Container) EndpointProber() (probe.EndpointProber, error) {
	var err error
	c.proberInit.Do(func() {
		c.prober, err = c.initEndpointProber()
		if err != nil {
			c.initErrors["prober"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["prober"]; exists {
		return nil, storedErr
	}
	return c.prober, nil
}

// RevocationChecker returns the revocation checker selected by REVOCATION_MODE.
func (c *Container) RevocationChecker() (revocation.Checker, error) {
	var err error
	c.revocationCheckerInit.Do(func() {
		c.revocationChecker, err = c.initRevocationChecker()
		if err != nil {
			c.initErrors["revocationChecker"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["revocationChecker"]; exists {
		return nil, storedErr
	}
	return c.revocationChecker, nil
}

// X509Handler returns the client certificate handler.
func (c *Container) X509Handler() (*handler.X509Handler, error) {
	var err error
	c.x509HandlerInit.Do(func() {
		c.x509Handler, err = c.initX509Handler()
		if err != nil {
			c.initErrors["x509Handler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["x509Handler"]; exists {
		return nil, storedErr
	}
	return c.x509Handler, nil
}

// KerberosProvider returns the loaded keytab and krb5.conf.
func (c *Container) KerberosProvider() (*kerberos.Provider, error) {
	var err error
	c.kerberosProviderInit.Do(func() {
		c.kerberosProvider, err = c.initKerberosProvider()
		if err != nil {
			c.initErrors["kerberosProvider"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["kerberosProvider"]; exists {
		return nil, storedErr
	}
	return c.kerberosProvider, nil
}

// RealmConfiguration returns the login module stack of the default realm.
func (c *Container) RealmConfiguration() (*realm.Configuration, error) {
	var err error
	c.realmConfigurationInit.Do(func() {
		c.realmConfiguration, err = c.initRealmConfiguration()
		if err != nil {
			c.initErrors["realmConfiguration"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["realmConfiguration"]; exists {
		return nil, storedErr
	}
	return c.realmConfiguration, nil
}

// AuthenticationHandlers returns the enabled authentication handlers in the order they are consulted.
func (c *Container) AuthenticationHandlers() ([]handler.AuthenticationHandler, error) {
	var err error
	c.authnHandlersInit.Do(func() {
		c.authnHandlers, err = c.initAuthenticationHandlers()
		if err != nil {
			c.initErrors["authnHandlers"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["authnHandlers"]; exists {
		return nil, storedErr
	}
	return c.authnHandlers, nil
}

// AuthenticationUseCase returns the authentication use case.
func (c *Container) AuthenticationUseCase() (authnUseCase.AuthenticationUseCase, error) {
	var err error
	c.authenticationUCInit.Do(func() {
		c.authenticationUC, err = c.initAuthenticationUseCase()
		if err != nil {
			c.initErrors["authenticationUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["authenticationUseCase"]; exists {
		return nil, storedErr
	}
	return c.authenticationUC, nil
}

// AuthenticationEventUseCase returns the audit trail use case.
func (c *Container) AuthenticationEventUseCase() (authnUseCase.AuthenticationEventUseCase, error) {
	var err error
	c.authenticationEventUCInit.Do(func() {
		c.authenticationEventUC, err = c.initAuthenticationEventUseCase()
		if err != nil {
			c.initErrors["authenticationEventUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["authenticationEventUseCase"]; exists {
		return nil, storedErr
	}
	return c.authenticationEventUC, nil
}

// RealmUserUseCase returns the realm user use case.
func (c *Container) RealmUserUseCase() (authnUseCase.RealmUserUseCase, error) {
	var err error
	c.realmUserUCInit.Do(func() {
		c.realmUserUC, err = c.initRealmUserUseCase()
		if err != nil {
			c.initErrors["realmUserUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["realmUserUseCase"]; exists {
		return nil, storedErr
	}
	return c.realmUserUC, nil
}

func (c *Container) initAuthenticationEventRepository() (authnUseCase.AuthenticationEventRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for authentication event repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return authnRepository.NewMySQLAuthenticationEventRepository(db), nil
	case "postgres":
		return authnRepository.NewPostgreSQLAuthenticationEventRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initRealmUserRepository() (authnUseCase.RealmUserRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for realm user repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return authnRepository.NewMySQLRealmUserRepository(db), nil
	case "postgres":
		return authnRepository.NewPostgreSQLRealmUserRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initEndpointProber() (probe.EndpointProber, error) {
	codes, err := c.config.ProbeAcceptableCodeList()
	if err != nil {
		return nil, fmt.Errorf("invalid probe acceptable codes: %w", err)
	}
	return probe.NewHTTPProber(c.config.ProbeTimeout, codes, c.Logger()), nil
}

func (c *Container) initRevocationChecker() (revocation.Checker, error) {
	if c.config.RevocationMode == config.RevocationModeNone || c.config.RevocationMode == "" {
		return revocation.NewNoOpChecker(), nil
	}

	issuers, err := loadCertificates(c.config.RevocationIssuerCAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load revocation issuers: %w", err)
	}
	crlMode := c.config.RevocationMode == config.RevocationModeCRL ||
		c.config.RevocationMode == config.RevocationModeCRLAndOCSP
	if crlMode && len(issuers) == 0 {
		return nil, fmt.Errorf("revocation mode %s requires an issuer file", c.config.RevocationMode)
	}

	opts := revocation.Options{
		Issuers:           issuers,
		UnavailablePolicy: revocation.UnavailablePolicy(c.config.RevocationUnavailablePolicy),
		CacheSize:         c.config.RevocationCacheSize,
		CacheTTL:          c.config.RevocationCacheTTL,
		HTTPClient:        &http.Client{Timeout: c.config.RevocationTimeout},
		Logger:            c.Logger(),
	}
	crlSources := config.SplitList(c.config.RevocationCRLURLs)

	switch c.config.RevocationMode {
	case config.RevocationModeCRL:
		return revocation.NewCRLChecker(crlSources, opts), nil
	case config.RevocationModeOCSP:
		return revocation.NewOCSPChecker(opts), nil
	case config.RevocationModeCRLAndOCSP:
		return revocation.NewChainChecker(
			revocation.NewCRLChecker(crlSources, opts),
			revocation.NewOCSPChecker(opts),
		), nil
	default:
		return nil, fmt.Errorf("unsupported revocation mode: %s", c.config.RevocationMode)
	}
}

func (c *Container) initX509Handler() (*handler.X509Handler, error) {
	checker, err := c.RevocationChecker()
	if err != nil {
		return nil, fmt.Errorf("failed to get revocation checker for x509 handler: %w", err)
	}

	x509Config := handler.DefaultX509Config()
	x509Config.TrustedIssuerDnPattern = c.config.X509TrustedIssuerDNPattern
	x509Config.SubjectDnPattern = c.config.X509SubjectDNPattern
	x509Config.MaxPathLength = c.config.X509MaxPathLength
	x509Config.MaxPathLengthAllowUnspecified = c.config.X509MaxPathLengthAllowUnspecified
	x509Config.CheckKeyUsage = c.config.X509CheckKeyUsage
	x509Config.RequireKeyUsage = c.config.X509RequireKeyUsage
	x509Config.RevocationChecker = checker

	x509Handler, err := handler.NewX509Handler(x509Config, c.Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to create x509 handler: %w", err)
	}
	return x509Handler, nil
}

func (c *Container) initKerberosProvider() (*kerberos.Provider, error) {
	modules, err := parseRealmModules(c.config.RealmModules)
	if err != nil {
		return nil, err
	}

	kerberosConfig := kerberos.Config{
		ServicePrincipal: c.config.KerberosServicePrincipal,
		Realm:            c.config.KerberosRealm,
		MaxClockSkew:     c.config.KerberosMaxClockSkew,
	}
	if c.config.KerberosEnabled {
		kerberosConfig.KeytabPath = c.config.KerberosKeytabPath
	}
	// krb5.conf is only needed to reach the KDC for password logins.
	if hasRealmModule(modules, realmModuleKerberos) {
		kerberosConfig.Krb5ConfPath = c.config.KerberosKrb5Conf
	}

	provider, err := kerberos.NewProvider(kerberosConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kerberos provider: %w", err)
	}
	return provider, nil
}

func (c *Container) initRealmConfiguration() (*realm.Configuration, error) {
	modules, err := parseRealmModules(c.config.RealmModules)
	if err != nil {
		return nil, err
	}

	entries := make([]realm.Entry, 0, len(modules))
	for _, module := range modules {
		var loginModule realm.LoginModule
		switch module.name {
		case realmModuleDatabase:
			userRepo, err := c.RealmUserRepository()
			if err != nil {
				return nil, fmt.Errorf("failed to get realm user repository for realm configuration: %w", err)
			}
			loginModule = realm.NewDatabaseLoginModule(c.config.RealmDefault, userRepo, c.PasswordService())
		case realmModuleKerberos:
			provider, err := c.KerberosProvider()
			if err != nil {
				return nil, fmt.Errorf("failed to get kerberos provider for realm configuration: %w", err)
			}
			loginModule = kerberos.NewPasswordLoginModule(provider)
		}
		entries = append(entries, realm.Entry{Module: loginModule, Flag: module.flag})
	}

	return realm.NewConfiguration(map[string][]realm.Entry{c.config.RealmDefault: entries}, c.Logger()), nil
}

func (c *Container) initAuthenticationHandlers() ([]handler.AuthenticationHandler, error) {
	logger := c.Logger()
	var handlers []handler.AuthenticationHandler

	if c.config.X509Enabled {
		x509Handler, err := c.X509Handler()
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, x509Handler)
	}

	if c.config.KerberosEnabled {
		provider, err := c.KerberosProvider()
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, handler.NewSpnegoHandler(kerberos.NewTokenVerifier(provider), logger))
	}

	realmConfiguration, err := c.RealmConfiguration()
	if err != nil {
		return nil, err
	}
	handlers = append(handlers, handler.NewRealmHandler(
		handler.RealmConfig{DefaultRealm: c.config.RealmDefault},
		realmConfiguration,
		logger,
	))

	prober, err := c.EndpointProber()
	if err != nil {
		return nil, err
	}
	handlers = append(handlers, handler.NewUrlHandler(
		handler.UrlConfig{RequireSecure: c.config.URLRequireSecure},
		prober,
		logger,
	))

	return handlers, nil
}

func (c *Container) initAuthenticationUseCase() (authnUseCase.AuthenticationUseCase, error) {
	handlers, err := c.AuthenticationHandlers()
	if err != nil {
		return nil, fmt.Errorf("failed to get authentication handlers: %w", err)
	}

	eventRepo, err := c.AuthenticationEventRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get authentication event repository: %w", err)
	}

	signingKey, err := c.config.AuditSigningKeyBytes()
	if err != nil {
		return nil, fmt.Errorf("invalid audit signing key: %w", err)
	}

	baseUseCase := authnUseCase.NewAuthenticationUseCase(
		handlers,
		authnUseCase.NewPrincipalResolver(c.config.X509PrincipalAttribute),
		eventRepo,
		c.EventSigner(),
		authnUseCase.AuthenticationConfig{
			Policy:     domain.AuthenticationPolicy(c.config.AuthenticationPolicy),
			SigningKey: signingKey,
		},
		c.Logger(),
	)

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics: %w", err)
		}
		return authnUseCase.NewAuthenticationUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}

func (c *Container) initAuthenticationEventUseCase() (authnUseCase.AuthenticationEventUseCase, error) {
	eventRepo, err := c.AuthenticationEventRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get authentication event repository: %w", err)
	}

	signingKey, err := c.config.AuditSigningKeyBytes()
	if err != nil {
		return nil, fmt.Errorf("invalid audit signing key: %w", err)
	}

	baseUseCase := authnUseCase.NewAuthenticationEventUseCase(eventRepo, c.EventSigner(), signingKey)

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics: %w", err)
		}
		return authnUseCase.NewAuthenticationEventUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}

func (c *Container) initRealmUserUseCase() (authnUseCase.RealmUserUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for realm user use case: %w", err)
	}

	userRepo, err := c.RealmUserRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get realm user repository: %w", err)
	}

	baseUseCase := authnUseCase.NewRealmUserUseCase(txManager, userRepo, c.PasswordService())

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics: %w", err)
		}
		return authnUseCase.NewRealmUserUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}

// realmModule is one entry of REALM_MODULES.
type realmModule struct {
	name string
	flag realm.ControlFlag
}

// parseRealmModules parses "database,kerberos:sufficient". The flag defaults to required.
func parseRealmModules(value string) ([]realmModule, error) {
	items := config.SplitList(value)
	if len(items) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "at least one realm module is required")
	}

	modules := make([]realmModule, 0, len(items))
	for _, item := range items {
		name, flagValue, hasFlag := strings.Cut(item, ":")
		name = strings.ToLower(strings.TrimSpace(name))
		if name != realmModuleDatabase && name != realmModuleKerberos {
			return nil, apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Sprintf("unknown realm module %q", name))
		}

		flag := realm.Required
		if hasFlag {
			parsed, err := realm.ParseControlFlag(flagValue)
			if err != nil {
				return nil, err
			}
			flag = parsed
		}
		modules = append(modules, realmModule{name: name, flag: flag})
	}
	return modules, nil
}

func hasRealmModule(modules []realmModule, name string) bool {
	for _, module := range modules {
		if module.name == name {
			return true
		}
	}
	return false
}

// loadCertificates reads a PEM certificate bundle. An empty path yields no certificates.
func loadCertificates(path string) ([]*x509.Certificate, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // configured certificate bundle
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}
	certificates, err := domain.ParseCertificateChain(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate file %s: %w", path, err)
	}
	return certificates, nil
}
