// Package realm implements realm-scoped username/password login. A realm is an ordered
// list of login modules, each with a control flag that decides how its outcome affects the
// overall result.
package realm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/allisson/cas/internal/authn/domain"
	apperrors "github.com/allisson/cas/internal/errors"
)

// ControlFlag decides how a module's outcome contributes to the overall login.
type ControlFlag string

const (
	// Required modules must succeed; later modules still run after a failure.
	Required ControlFlag = "required"
	// Requisite modules must succeed; a failure ends the login immediately.
	Requisite ControlFlag = "requisite"
	// Sufficient modules end the login successfully when they succeed and no earlier
	// required module failed. Their failures are ignored.
	Sufficient ControlFlag = "sufficient"
	// Optional modules only matter when no required or requisite module is configured.
	Optional ControlFlag = "optional"
)

// ParseControlFlag parses a control flag name, case-insensitively.
func ParseControlFlag(value string) (ControlFlag, error) {
	switch flag := ControlFlag(strings.ToLower(strings.TrimSpace(value))); flag {
	case Required, Requisite, Sufficient, Optional:
		return flag, nil
	default:
		return "", apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Sprintf("unknown control flag %q", value))
	}
}

// LoginModule verifies a username and password.
type LoginModule interface {
	Name() string
	Login(ctx context.Context, username, password string) (*domain.Principal, error)
}

// Entry is a login module with its control flag.
type Entry struct {
	Module LoginModule
	Flag   ControlFlag
}

// Configuration maps realm names to their login modules.
type Configuration struct {
	realms map[string][]Entry
	logger *slog.Logger
}

// NewConfiguration creates a configuration. The entries slices are copied.
func NewConfiguration(realms map[string][]Entry, logger *slog.Logger) *Configuration {
	copied := make(map[string][]Entry, len(realms))
	for name, entries := range realms {
		copied[name] = append([]Entry(nil), entries...)
	}
	return &Configuration{realms: copied, logger: logger}
}

// Realms returns the configured realm names in sorted order.
func (c *Configuration) Realms() []string {
	names := make([]string, 0, len(c.realms))
	for name := range c.realms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Login runs the modules configured for realm. It returns the principal reported by the
// first module that succeeded.
func (c *Configuration) Login(ctx context.Context, realm, username, password string) (*domain.Principal, error) {
	entries, ok := c.realms[realm]
	if !ok || len(entries) == 0 {
		return nil, fmt.Errorf("%w: unknown realm %q", domain.ErrInvalidCredentials, realm)
	}

	var (
		principal       *domain.Principal
		requiredSeen    bool
		requiredFailure error
		anySuccess      bool
	)

	for _, entry := range entries {
		p, err := entry.Module.Login(ctx, username, password)
		c.logger.Debug("login module finished",
			slog.String("realm", realm),
			slog.String("module", entry.Module.Name()),
			slog.String("flag", string(entry.Flag)),
			slog.Bool("success", err == nil),
		)

		if err == nil && principal == nil {
			principal = p
		}

		switch entry.Flag {
		case Required, Requisite:
			requiredSeen = true
			if err != nil {
				if requiredFailure == nil {
					requiredFailure = err
				}
				if entry.Flag == Requisite {
					return nil, wrapLoginFailure(realm, requiredFailure)
				}
			}
		case Sufficient:
			if err == nil && requiredFailure == nil {
				return principalOrDefault(principal, username), nil
			}
		}

		if err == nil {
			anySuccess = true
		}
	}

	if requiredFailure != nil {
		return nil, wrapLoginFailure(realm, requiredFailure)
	}
	if !requiredSeen && !anySuccess {
		return nil, fmt.Errorf("%w: no login module succeeded in realm %q", domain.ErrInvalidCredentials, realm)
	}
	return principalOrDefault(principal, username), nil
}

func wrapLoginFailure(realm string, err error) error {
	if apperrors.Is(err, domain.ErrAuthenticationFailed) {
		return err
	}
	return fmt.Errorf("%w: realm %q: %v", domain.ErrInvalidCredentials, realm, err)
}

func principalOrDefault(principal *domain.Principal, username string) *domain.Principal {
	if principal != nil {
		return principal
	}
	return domain.NewPrincipal(username)
}
