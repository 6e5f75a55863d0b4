package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/allisson/cas/internal/authn/domain"
	apperrors "github.com/allisson/cas/internal/errors"
)

// DefaultRealm is used when a credential names no realm.
const DefaultRealm = "CAS"

// RealmLogin verifies a username and password within a named realm.
type RealmLogin interface {
	Login(ctx context.Context, realm, username, password string) (*domain.Principal, error)
}

// RealmConfig configures the realm handler.
type RealmConfig struct {
	DefaultRealm string
}

// RealmHandler authenticates username/password credentials against a realm login configuration.
type RealmHandler struct {
	defaultRealm string
	login        RealmLogin
	logger       *slog.Logger
}

// NewRealmHandler creates a realm handler.
func NewRealmHandler(cfg RealmConfig, login RealmLogin, logger *slog.Logger) *RealmHandler {
	defaultRealm := cfg.DefaultRealm
	if defaultRealm == "" {
		defaultRealm = DefaultRealm
	}
	return &RealmHandler{
		defaultRealm: defaultRealm,
		login:        login,
		logger:       logger,
	}
}

func (h *RealmHandler) Name() string {
	return NameRealm
}

func (h *RealmHandler) Supports(credential domain.Credential) bool {
	return domain.AsUsernamePasswordCredential(credential) != nil
}

func (h *RealmHandler) Authenticate(ctx context.Context, credential domain.Credential) error {
	upCredential := domain.AsUsernamePasswordCredential(credential)
	if upCredential == nil {
		return unsupported(h.Name(), credential)
	}
	if upCredential.Username == "" || upCredential.Password == "" {
		return fmt.Errorf("%w: username and password are required", domain.ErrInvalidCredentials)
	}

	realm := upCredential.Realm
	if realm == "" {
		realm = h.defaultRealm
	}

	principal, err := h.login.Login(ctx, realm, upCredential.Username, upCredential.Password)
	if err != nil {
		h.logger.Debug("realm login failed",
			slog.String("realm", realm),
			slog.String("username", upCredential.Username),
			slog.Any("error", err),
		)
		if apperrors.Is(err, domain.ErrAuthenticationFailed) {
			return err
		}
		return fmt.Errorf("%w: realm %s: %v", domain.ErrInvalidCredentials, realm, err)
	}

	if principal != nil {
		if principal.Attributes == nil {
			principal.Attributes = map[string]any{}
		}
		if _, ok := principal.Attributes["realm"]; !ok {
			principal.Attributes["realm"] = realm
		}
		upCredential.SetPrincipal(principal)
	}

	h.logger.Info("realm login succeeded",
		slog.String("realm", realm),
		slog.String("username", upCredential.Username),
	)
	return nil
}
