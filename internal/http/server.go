// Package http provides the HTTP server that hosts the login API.
package http

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	authnHTTP "github.com/allisson/cas/internal/authn/http"
	"github.com/allisson/cas/internal/config"
	"github.com/allisson/cas/internal/metrics"
)

const readinessTimeout = 2 * time.Second

// Server represents the HTTP server.
type Server struct {
	db          *sql.DB
	server      *http.Server
	router      *gin.Engine
	logger      *slog.Logger
	tlsCertFile string
	tlsKeyFile  string
}

// NewServer creates a new HTTP server. Call SetupRouter before Start.
func NewServer(
	db *sql.DB,
	host string,
	port int,
	logger *slog.Logger,
) *Server {
	return &Server{
		db:     db,
		logger: logger,
		server: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, port),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// ConfigureTLS serves HTTPS with the given key pair. When clientCAFile is set, client
// certificates are optional but any presented chain must verify against those CAs during
// the handshake; without it no client certificate is requested.
func (s *Server) ConfigureTLS(certFile, keyFile, clientCAFile string) error {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ClientAuth: tls.NoClientCert,
	}

	if clientCAFile != "" {
		data, err := os.ReadFile(clientCAFile) //nolint:gosec // configured CA bundle
		if err != nil {
			return fmt.Errorf("failed to read client CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(data) {
			return fmt.Errorf("no certificates found in client CA file %s", clientCAFile)
		}
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	}

	s.server.TLSConfig = tlsConfig
	s.tlsCertFile = certFile
	s.tlsKeyFile = keyFile
	return nil
}

// SetupRouter configures the Gin router with middleware and routes. ctx bounds background
// work started by middleware.
func (s *Server) SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	loginHandler *authnHTTP.LoginHandler,
	metricsProvider *metrics.Provider,
	metricsNamespace string,
) {
	router := gin.New()
	// Without trusted proxies ClientIP is the socket peer and forwarding headers are ignored.
	proxies, err := cfg.TrustedProxyList()
	if err == nil {
		err = router.SetTrustedProxies(proxies)
	}
	if err != nil {
		s.logger.Error("invalid trusted proxies, ignoring forwarding headers", slog.Any("error", err))
		_ = router.SetTrustedProxies(nil)
	}

	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if corsMiddleware := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, s.logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(metricsProvider.MeterProvider(), metricsNamespace, "/health", "/ready"))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	v1 := router.Group("/v1")
	login := v1.Group("/login")
	if cfg.RateLimitLoginEnabled {
		login.Use(authnHTTP.LoginRateLimitMiddleware(
			ctx,
			cfg.RateLimitLoginRequestsPerSec,
			cfg.RateLimitLoginBurst,
			s.logger,
		))
	}
	{
		login.POST("", loginHandler.LoginHandler)
		login.POST("/certificate", loginHandler.CertificateLoginHandler)
		login.POST("/spnego", loginHandler.SpnegoLoginHandler)
		login.POST("/callback", loginHandler.CallbackLoginHandler)
	}

	s.router = router
}

// Start serves until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		return fmt.Errorf("router not configured")
	}
	s.server.Handler = s.router

	var err error
	if s.tlsCertFile != "" {
		s.logger.Info("starting https server", slog.String("addr", s.server.Addr))
		err = s.server.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile)
	} else {
		s.logger.Warn("starting http server without TLS, client certificates are only read from the proxy header",
			slog.String("addr", s.server.Addr))
		err = s.server.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// GetHandler returns the configured router, or nil before SetupRouter is called.
func (s *Server) GetHandler() http.Handler {
	if s.router == nil {
		return nil
	}
	return s.router
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	database := "ok"
	if s.db == nil {
		database = "error"
	} else {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.Warn("database ping failed", slog.Any("error", err))
			database = "error"
		}
	}

	if database != "ok" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": gin.H{"database": database},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"components": gin.H{"database": database},
	})
}
