package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/cas/internal/authn/domain"
	"github.com/allisson/cas/internal/authn/http/dto"
	apperrors "github.com/allisson/cas/internal/errors"
	"github.com/allisson/cas/internal/testutil"
)

const testCertificateHeader = "X-Client-Cert"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockAuthenticationUseCase is a mock implementation of AuthenticationUseCase for testing.
type mockAuthenticationUseCase struct {
	mock.Mock
}

func (m *mockAuthenticationUseCase) Authenticate(
	ctx context.Context,
	req *domain.LoginRequest,
) (*domain.Authentication, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Authentication), args.Error(1)
}

func setupLoginRouter(t *testing.T) (*gin.Engine, *mockAuthenticationUseCase) {
	t.Helper()
	return setupLoginRouterWithCAs(t, nil)
}

func setupLoginRouterWithCAs(
	t *testing.T,
	clientCAs *x509.CertPool,
) (*gin.Engine, *mockAuthenticationUseCase) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	useCase := &mockAuthenticationUseCase{}
	handler := NewLoginHandler(useCase, testCertificateHeader, clientCAs, testLogger())

	router := gin.New()
	router.Use(requestid.New())
	router.POST("/v1/login", handler.LoginHandler)
	router.POST("/v1/login/certificate", handler.CertificateLoginHandler)
	router.POST("/v1/login/spnego", handler.SpnegoLoginHandler)
	router.POST("/v1/login/callback", handler.CallbackLoginHandler)
	return router, useCase
}

func successfulAuthentication(principal, handlerName string) *domain.Authentication {
	return &domain.Authentication{
		Principal:       domain.NewPrincipal(principal),
		Successes:       []domain.HandlerSuccess{{Handler: handlerName}},
		AuthenticatedAt: time.Now().UTC(),
	}
}

func doJSON(router http.Handler, path string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestLoginHandler_LoginHandler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		router, useCase := setupLoginRouter(t)

		useCase.On("Authenticate", mock.Anything, mock.MatchedBy(func(req *domain.LoginRequest) bool {
			if len(req.Credentials) != 1 || req.RequestID == uuid.Nil || req.RemoteAddress == "" {
				return false
			}
			c := domain.AsUsernamePasswordCredential(req.Credentials[0])
			return c != nil && c.Username == "alice" && c.Password == "secret" && c.Realm == "CAS"
		})).Return(successfulAuthentication("alice", "realm"), nil).Once()

		w := doJSON(router, "/v1/login", dto.LoginRequest{Username: "alice", Password: "secret", Realm: "CAS"})

		assert.Equal(t, http.StatusOK, w.Code)
		var response dto.LoginResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "alice", response.Principal)
		assert.Equal(t, []string{"realm"}, response.Handlers)
		useCase.AssertExpectations(t)
	})

	t.Run("Success_ReusesRequestID", func(t *testing.T) {
		router, useCase := setupLoginRouter(t)
		id := uuid.Must(uuid.NewV7())

		useCase.On("Authenticate", mock.Anything, mock.MatchedBy(func(req *domain.LoginRequest) bool {
			return req.RequestID == id
		})).Return(successfulAuthentication("alice", "realm"), nil).Once()

		payload, _ := json.Marshal(dto.LoginRequest{Username: "alice", Password: "secret"})
		req := httptest.NewRequest(http.MethodPost, "/v1/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Request-ID", id.String())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		useCase.AssertExpectations(t)
	})

	t.Run("Error_AuthenticationFailed", func(t *testing.T) {
		router, useCase := setupLoginRouter(t)

		useCase.On("Authenticate", mock.Anything, mock.Anything).
			Return(nil, apperrors.Join(domain.ErrAuthenticationFailed, domain.ErrInvalidCredentials)).
			Once()

		w := doJSON(router, "/v1/login", dto.LoginRequest{Username: "alice", Password: "wrong"})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"authentication_failed","message":"Authentication failed"}`, w.Body.String())
		useCase.AssertExpectations(t)
	})

	t.Run("Error_InvalidJSON", func(t *testing.T) {
		router, useCase := setupLoginRouter(t)

		req := httptest.NewRequest(http.MethodPost, "/v1/login", bytes.NewBufferString("{"))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		useCase.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything)
	})

	t.Run("Error_ValidationFailed", func(t *testing.T) {
		router, useCase := setupLoginRouter(t)

		w := doJSON(router, "/v1/login", dto.LoginRequest{Username: "alice"})

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		useCase.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything)
	})
}

func TestLoginHandler_CertificateLoginHandler(t *testing.T) {
	root := testutil.GenerateCA(t, "Root CA", 1, nil)
	intermediate := testutil.GenerateCA(t, "Intermediate CA", 0, root)
	leaf := testutil.GenerateLeaf(t, "alice", root)
	intermediateLeaf := testutil.GenerateLeaf(t, "bob", intermediate)

	// Same subject DN as root, different key.
	forgedRoot := testutil.GenerateCA(t, "Root CA", 1, nil)
	forgedLeaf := testutil.GenerateLeaf(t, "alice", forgedRoot)

	clientCAs := x509.NewCertPool()
	clientCAs.AddCert(root.Certificate)

	chainMatcher := func(want ...*x509.Certificate) any {
		return mock.MatchedBy(func(req *domain.LoginRequest) bool {
			c := domain.AsX509Credentials(req.Credentials[0])
			if c == nil || len(c.Certificates) != len(want) {
				return false
			}
			for i := range want {
				if !c.Certificates[i].Equal(want[i]) {
					return false
				}
			}
			return true
		})
	}

	certificateRequest := func(chain ...*x509.Certificate) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/v1/login/certificate", nil)
		req.Header.Set(testCertificateHeader, url.PathEscape(string(testutil.EncodePEM(chain...))))
		return req
	}

	t.Run("Success_TLSVerifiedChain", func(t *testing.T) {
		router, useCase := setupLoginRouterWithCAs(t, clientCAs)

		useCase.On("Authenticate", mock.Anything, chainMatcher(intermediateLeaf.Certificate, intermediate.Certificate)).
			Return(successfulAuthentication("CN=bob,O=CAS Test", "x509"), nil).
			Once()

		req := httptest.NewRequest(http.MethodPost, "/v1/login/certificate", nil)
		req.TLS = &tls.ConnectionState{
			PeerCertificates: []*x509.Certificate{intermediateLeaf.Certificate, intermediate.Certificate},
			VerifiedChains: [][]*x509.Certificate{
				{intermediateLeaf.Certificate, intermediate.Certificate, root.Certificate},
			},
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		useCase.AssertExpectations(t)
	})

	t.Run("Success_TLSPeerCertificatesVerified", func(t *testing.T) {
		router, useCase := setupLoginRouterWithCAs(t, clientCAs)

		useCase.On("Authenticate", mock.Anything, chainMatcher(leaf.Certificate)).
			Return(successfulAuthentication("CN=alice,O=CAS Test", "x509"), nil).
			Once()

		req := httptest.NewRequest(http.MethodPost, "/v1/login/certificate", nil)
		req.TLS = &tls.ConnectionState{PeerCertificates: []*x509.Certificate{leaf.Certificate, root.Certificate}}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		useCase.AssertExpectations(t)
	})

	t.Run("Success_ProxyHeader", func(t *testing.T) {
		router, useCase := setupLoginRouterWithCAs(t, clientCAs)

		useCase.On("Authenticate", mock.Anything, chainMatcher(leaf.Certificate)).
			Return(successfulAuthentication("CN=alice,O=CAS Test", "x509"), nil).
			Once()

		w := httptest.NewRecorder()
		router.ServeHTTP(w, certificateRequest(leaf.Certificate, root.Certificate))

		assert.Equal(t, http.StatusOK, w.Code)
		useCase.AssertExpectations(t)
	})

	t.Run("Success_ProxyHeaderWithIntermediate", func(t *testing.T) {
		router, useCase := setupLoginRouterWithCAs(t, clientCAs)

		useCase.On("Authenticate", mock.Anything, chainMatcher(intermediateLeaf.Certificate, intermediate.Certificate)).
			Return(successfulAuthentication("CN=bob,O=CAS Test", "x509"), nil).
			Once()

		w := httptest.NewRecorder()
		router.ServeHTTP(w, certificateRequest(intermediateLeaf.Certificate, intermediate.Certificate))

		assert.Equal(t, http.StatusOK, w.Code)
		useCase.AssertExpectations(t)
	})

	t.Run("Error_ForgedIssuerOverProxyHeader", func(t *testing.T) {
		router, useCase := setupLoginRouterWithCAs(t, clientCAs)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, certificateRequest(forgedLeaf.Certificate, forgedRoot.Certificate))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"authentication_failed","message":"Authentication failed"}`, w.Body.String())
		useCase.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything)
	})

	t.Run("Error_ForgedIssuerOverUnverifiedTLS", func(t *testing.T) {
		router, useCase := setupLoginRouterWithCAs(t, clientCAs)

		req := httptest.NewRequest(http.MethodPost, "/v1/login/certificate", nil)
		req.TLS = &tls.ConnectionState{
			PeerCertificates: []*x509.Certificate{forgedLeaf.Certificate, forgedRoot.Certificate},
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		useCase.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything)
	})

	t.Run("Error_ExpiredClientCertificate", func(t *testing.T) {
		router, useCase := setupLoginRouterWithCAs(t, clientCAs)
		expired := testutil.GenerateCertificate(t, testutil.CertificateOptions{
			Subject:   pkix.Name{CommonName: "carol"},
			NotBefore: time.Now().Add(-48 * time.Hour),
			NotAfter:  time.Now().Add(-24 * time.Hour),
		}, root)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, certificateRequest(expired.Certificate))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		useCase.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything)
	})

	t.Run("Error_NoClientCAs", func(t *testing.T) {
		router, useCase := setupLoginRouter(t)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, certificateRequest(leaf.Certificate, root.Certificate))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		useCase.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything)
	})

	t.Run("Error_NoCertificate", func(t *testing.T) {
		router, useCase := setupLoginRouterWithCAs(t, clientCAs)

		useCase.On("Authenticate", mock.Anything, chainMatcher()).
			Return(nil, apperrors.Join(domain.ErrAuthenticationFailed, domain.ErrNoClientCertificate)).
			Once()

		req := httptest.NewRequest(http.MethodPost, "/v1/login/certificate", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		useCase.AssertExpectations(t)
	})

	t.Run("Error_MalformedHeader", func(t *testing.T) {
		router, useCase := setupLoginRouterWithCAs(t, clientCAs)

		req := httptest.NewRequest(http.MethodPost, "/v1/login/certificate", nil)
		req.Header.Set(testCertificateHeader, "not-a-certificate")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		useCase.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything)
	})
}

func TestLoginHandler_SpnegoLoginHandler(t *testing.T) {
	token := []byte{0x60, 0x01, 0x02}

	t.Run("Success", func(t *testing.T) {
		router, useCase := setupLoginRouter(t)

		useCase.On("Authenticate", mock.Anything, mock.MatchedBy(func(req *domain.LoginRequest) bool {
			c := domain.AsSpnegoCredential(req.Credentials[0])
			return c != nil && bytes.Equal(c.Token, token)
		})).Return(successfulAuthentication("alice", "spnego"), nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/v1/login/spnego", nil)
		req.Header.Set("Authorization", "Negotiate "+base64.StdEncoding.EncodeToString(token))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("WWW-Authenticate"))
		useCase.AssertExpectations(t)
	})

	t.Run("Error_MissingHeader", func(t *testing.T) {
		router, useCase := setupLoginRouter(t)

		req := httptest.NewRequest(http.MethodPost, "/v1/login/spnego", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Negotiate", w.Header().Get("WWW-Authenticate"))
		useCase.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything)
	})

	t.Run("Error_MalformedToken", func(t *testing.T) {
		router, _ := setupLoginRouter(t)

		req := httptest.NewRequest(http.MethodPost, "/v1/login/spnego", nil)
		req.Header.Set("Authorization", "Negotiate %%%")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Negotiate", w.Header().Get("WWW-Authenticate"))
	})

	t.Run("Error_NegotiationFailed", func(t *testing.T) {
		router, useCase := setupLoginRouter(t)

		useCase.On("Authenticate", mock.Anything, mock.Anything).
			Return(nil, apperrors.Join(domain.ErrAuthenticationFailed, domain.ErrNegotiationFailed)).
			Once()

		req := httptest.NewRequest(http.MethodPost, "/v1/login/spnego", nil)
		req.Header.Set("Authorization", "Negotiate "+base64.StdEncoding.EncodeToString(token))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Negotiate", w.Header().Get("WWW-Authenticate"))
		useCase.AssertExpectations(t)
	})
}

func TestLoginHandler_CallbackLoginHandler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		router, useCase := setupLoginRouter(t)

		useCase.On("Authenticate", mock.Anything, mock.MatchedBy(func(req *domain.LoginRequest) bool {
			c := domain.AsUrlCredential(req.Credentials[0])
			return c != nil && c.URL.String() == "https://app.example.com/callback"
		})).Return(successfulAuthentication("https://app.example.com/callback", "url"), nil).Once()

		w := doJSON(router, "/v1/login/callback", dto.CallbackLoginRequest{URL: "https://app.example.com/callback"})

		assert.Equal(t, http.StatusOK, w.Code)
		useCase.AssertExpectations(t)
	})

	t.Run("Error_RelativeURL", func(t *testing.T) {
		router, useCase := setupLoginRouter(t)

		w := doJSON(router, "/v1/login/callback", dto.CallbackLoginRequest{URL: "/callback"})

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		useCase.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything)
	})
}

func TestNegotiateToken(t *testing.T) {
	token, err := negotiateToken("negotiate  YWJj")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), token)

	_, err = negotiateToken("Basic YWJj")
	assert.ErrorIs(t, err, domain.ErrNegotiationFailed)

	_, err = negotiateToken("Negotiate")
	assert.ErrorIs(t, err, domain.ErrNegotiationFailed)
}
