package dto

import (
	"time"

	"github.com/allisson/cas/internal/authn/domain"
)

// LoginResponse describes the authenticated principal.
type LoginResponse struct {
	Principal       string         `json:"principal"`
	Attributes      map[string]any `json:"attributes,omitempty"`
	AuthenticatedAt time.Time      `json:"authenticated_at"`
	Handlers        []string       `json:"handlers"`
}

// MapAuthenticationToResponse converts an authentication result to an API response.
func MapAuthenticationToResponse(authentication *domain.Authentication) LoginResponse {
	handlers := make([]string, 0, len(authentication.Successes))
	for _, success := range authentication.Successes {
		handlers = append(handlers, success.Handler)
	}

	response := LoginResponse{
		AuthenticatedAt: authentication.AuthenticatedAt,
		Handlers:        handlers,
	}
	if authentication.Principal != nil {
		response.Principal = authentication.Principal.ID
		response.Attributes = authentication.Principal.Attributes
	}
	return response
}
