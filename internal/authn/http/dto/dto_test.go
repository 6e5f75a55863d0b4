package dto

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/allisson/cas/internal/authn/domain"
)

func TestLoginRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		request LoginRequest
		wantErr bool
	}{
		{name: "Success_WithoutRealm", request: LoginRequest{Username: "alice", Password: "secret"}},
		{name: "Success_WithRealm", request: LoginRequest{Username: "alice", Password: "secret", Realm: "CAS"}},
		{name: "Error_MissingUsername", request: LoginRequest{Password: "secret"}, wantErr: true},
		{name: "Error_BlankUsername", request: LoginRequest{Username: "   ", Password: "secret"}, wantErr: true},
		{name: "Error_PaddedUsername", request: LoginRequest{Username: " alice", Password: "secret"}, wantErr: true},
		{name: "Error_MissingPassword", request: LoginRequest{Username: "alice"}, wantErr: true},
		{name: "Error_PaddedRealm", request: LoginRequest{Username: "alice", Password: "secret", Realm: "CAS "}, wantErr: true},
		{
			name:    "Error_UsernameTooLong",
			request: LoginRequest{Username: strings.Repeat("a", 256), Password: "secret"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.request.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCallbackLoginRequest_Validate(t *testing.T) {
	assert.NoError(t, (&CallbackLoginRequest{URL: "https://app.example.com/callback"}).Validate())
	assert.Error(t, (&CallbackLoginRequest{}).Validate())
	assert.Error(t, (&CallbackLoginRequest{URL: "/relative"}).Validate())
}

func TestMapAuthenticationToResponse(t *testing.T) {
	now := time.Now().UTC()
	authentication := &domain.Authentication{
		Principal: &domain.Principal{ID: "alice", Attributes: map[string]any{"realm": "CAS"}},
		Successes: []domain.HandlerSuccess{
			{Handler: "realm", CredentialType: domain.CredentialTypeUsernamePassword},
			{Handler: "x509", CredentialType: domain.CredentialTypeX509},
		},
		AuthenticatedAt: now,
	}

	response := MapAuthenticationToResponse(authentication)

	assert.Equal(t, "alice", response.Principal)
	assert.Equal(t, "CAS", response.Attributes["realm"])
	assert.Equal(t, []string{"realm", "x509"}, response.Handlers)
	assert.Equal(t, now, response.AuthenticatedAt)
}
