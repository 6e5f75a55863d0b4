// Package service provides the cryptographic services used by authentication: Argon2id
// hashing of realm user passwords and HMAC signing of authentication events.
package service

import "github.com/allisson/cas/internal/authn/domain"

// PasswordService hashes and compares realm user passwords.
type PasswordService interface {
	// HashPassword hashes a plain text password using Argon2id.
	HashPassword(plainPassword string) (string, error)

	// ComparePassword reports whether plainPassword matches hashedPassword.
	// Malformed hashes never match.
	ComparePassword(plainPassword, hashedPassword string) bool
}

// EventSigner signs authentication events so that tampering with the audit trail can be
// detected later.
type EventSigner interface {
	// Sign returns the HMAC-SHA256 signature of the event using a key derived from key.
	Sign(key []byte, event *domain.AuthenticationEvent) ([]byte, error)

	// Verify returns domain.ErrSignatureInvalid when the stored signature does not match.
	Verify(key []byte, event *domain.AuthenticationEvent) error
}
