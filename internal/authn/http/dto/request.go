// Package dto provides the request and response bodies of the login API.
package dto

import (
	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/cas/internal/validation"
)

// LoginRequest is a username/password login, optionally bound to a realm.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"` //nolint:gosec // request field, never serialized back
	Realm    string `json:"realm"`
}

// Validate checks if the login request is valid.
func (r *LoginRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Username,
			validation.Required,
			customValidation.NotBlank,
			customValidation.NoWhitespace,
			validation.Length(1, 255),
		),
		validation.Field(&r.Password,
			validation.Required,
			validation.Length(1, 1024),
		),
		validation.Field(&r.Realm,
			customValidation.NoWhitespace,
			validation.Length(0, 255),
		),
	)
}

// CallbackLoginRequest proves control of a callback URL.
type CallbackLoginRequest struct {
	URL string `json:"url"`
}

// Validate checks if the callback request is valid.
func (r *CallbackLoginRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.URL,
			validation.Required,
			customValidation.AbsoluteURL,
			validation.Length(1, 2048),
		),
	)
}
