package http

import (
	"crypto/x509"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/cas/internal/authn/domain"
	"github.com/allisson/cas/internal/authn/http/dto"
	authnUseCase "github.com/allisson/cas/internal/authn/usecase"
	apperrors "github.com/allisson/cas/internal/errors"
	"github.com/allisson/cas/internal/httputil"
	customValidation "github.com/allisson/cas/internal/validation"
)

const negotiateScheme = "Negotiate"

// LoginHandler turns login requests into credentials and hands them to the
// AuthenticationUseCase.
type LoginHandler struct {
	authenticationUseCase authnUseCase.AuthenticationUseCase
	certificateHeader     string
	clientCAs             *x509.CertPool
	logger                *slog.Logger
}

// NewLoginHandler creates a login handler. certificateHeader names the request header a
// TLS-terminating proxy uses to forward the URL-escaped PEM client chain; empty disables it.
// Client chains that were not verified by the TLS stack must verify against clientCAs; a nil
// pool rejects them.
func NewLoginHandler(
	authenticationUseCase authnUseCase.AuthenticationUseCase,
	certificateHeader string,
	clientCAs *x509.CertPool,
	logger *slog.Logger,
) *LoginHandler {
	return &LoginHandler{
		authenticationUseCase: authenticationUseCase,
		certificateHeader:     certificateHeader,
		clientCAs:             clientCAs,
		logger:                logger,
	}
}

// LoginHandler authenticates a username and password.
// POST /v1/login
func (h *LoginHandler) LoginHandler(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	h.authenticate(c, &domain.UsernamePasswordCredential{
		Username: req.Username,
		Password: req.Password,
		Realm:    req.Realm,
	})
}

// CertificateLoginHandler authenticates the client certificate chain presented during the
// TLS handshake or forwarded by a proxy.
// POST /v1/login/certificate
func (h *LoginHandler) CertificateLoginHandler(c *gin.Context) {
	certificates, err := h.clientCertificates(c)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrInvalidInput) {
			httputil.HandleBadRequestGin(c, err, h.logger)
			return
		}
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	h.authenticate(c, domain.NewX509CertificateCredentials(certificates))
}

// SpnegoLoginHandler authenticates a SPNEGO token sent as "Authorization: Negotiate <token>".
// Every rejection carries a "WWW-Authenticate: Negotiate" challenge.
// POST /v1/login/spnego
func (h *LoginHandler) SpnegoLoginHandler(c *gin.Context) {
	token, err := negotiateToken(c.GetHeader("Authorization"))
	if err != nil {
		c.Header("WWW-Authenticate", negotiateScheme)
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	authentication, err := h.login(c, domain.NewSpnegoCredential(token))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrUnauthorized) {
			c.Header("WWW-Authenticate", negotiateScheme)
		}
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapAuthenticationToResponse(authentication))
}

// CallbackLoginHandler proves control of a callback URL.
// POST /v1/login/callback
func (h *LoginHandler) CallbackLoginHandler(c *gin.Context) {
	var req dto.CallbackLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	credential, err := domain.NewUrlCredential(req.URL)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	h.authenticate(c, credential)
}

func (h *LoginHandler) authenticate(c *gin.Context, credentials ...domain.Credential) {
	authentication, err := h.login(c, credentials...)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapAuthenticationToResponse(authentication))
}

func (h *LoginHandler) login(
	c *gin.Context,
	credentials ...domain.Credential,
) (*domain.Authentication, error) {
	return h.authenticationUseCase.Authenticate(c.Request.Context(), &domain.LoginRequest{
		RequestID:     requestID(c),
		RemoteAddress: c.ClientIP(),
		Credentials:   credentials,
	})
}

// clientCertificates prefers the chain verified by the TLS stack and falls back to the
// proxy header. Either way the returned chain starts at the client certificate, has been
// verified against the client CAs and omits the trust anchor.
func (h *LoginHandler) clientCertificates(c *gin.Context) ([]*x509.Certificate, error) {
	if state := c.Request.TLS; state != nil && len(state.PeerCertificates) > 0 {
		if len(state.VerifiedChains) > 0 {
			return withoutAnchor(state.VerifiedChains[0]), nil
		}
		return h.verifyChain(state.PeerCertificates)
	}
	if h.certificateHeader == "" {
		return nil, nil
	}

	raw := c.GetHeader(h.certificateHeader)
	if raw == "" {
		return nil, nil
	}

	// PathUnescape keeps '+' from the base64 body intact.
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "malformed client certificate header")
	}
	chain, err := domain.ParseCertificateChain([]byte(decoded))
	if err != nil || len(chain) == 0 {
		return chain, err
	}
	return h.verifyChain(chain)
}

// verifyChain checks the signatures of chain up to one of the client CAs.
func (h *LoginHandler) verifyChain(chain []*x509.Certificate) ([]*x509.Certificate, error) {
	if h.clientCAs == nil {
		return nil, apperrors.Wrap(domain.ErrUntrustedIssuer, "no client certificate authorities configured")
	}

	intermediates := x509.NewCertPool()
	for _, cert := range chain[1:] {
		intermediates.AddCert(cert)
	}

	verified, err := chain[0].Verify(x509.VerifyOptions{
		Roots:         h.clientCAs,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	if err != nil {
		var invalid x509.CertificateInvalidError
		if errors.As(err, &invalid) && invalid.Reason == x509.Expired {
			return nil, apperrors.Wrap(domain.ErrCertificateExpired, err.Error())
		}
		return nil, apperrors.Wrap(domain.ErrUntrustedIssuer, err.Error())
	}
	return withoutAnchor(verified[0]), nil
}

// withoutAnchor drops the self-signed root a verified chain ends with, so the path length
// checks only count certificates the client presented below it.
func withoutAnchor(chain []*x509.Certificate) []*x509.Certificate {
	if len(chain) > 1 {
		return chain[:len(chain)-1]
	}
	return chain
}

func negotiateToken(authorization string) ([]byte, error) {
	scheme, encoded, found := strings.Cut(strings.TrimSpace(authorization), " ")
	if !found || !strings.EqualFold(scheme, negotiateScheme) {
		return nil, apperrors.Wrap(domain.ErrNegotiationFailed, "missing negotiate authorization")
	}

	token, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil || len(token) == 0 {
		return nil, apperrors.Wrap(domain.ErrNegotiationFailed, "malformed negotiate token")
	}
	return token, nil
}

// requestID reuses the identifier assigned by the requestid middleware when it is a UUID.
func requestID(c *gin.Context) uuid.UUID {
	if id, err := uuid.Parse(requestid.Get(c)); err == nil {
		return id
	}
	return uuid.Must(uuid.NewV7())
}
