package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuthenticationPolicy decides how per-credential outcomes combine into one decision.
type AuthenticationPolicy string

const (
	// PolicyAny succeeds when at least one credential authenticates.
	PolicyAny AuthenticationPolicy = "any"
	// PolicyAll succeeds only when every credential authenticates.
	PolicyAll AuthenticationPolicy = "all"
)

// LoginRequest is a set of credentials presented together, plus transport metadata that is
// only used for the audit trail.
type LoginRequest struct {
	RequestID     uuid.UUID
	RemoteAddress string
	Credentials   []Credential
}

// HandlerSuccess records that a named handler accepted a credential.
type HandlerSuccess struct {
	Handler        string
	CredentialType CredentialType
	Principal      *Principal
}

// CredentialFailure records why a credential was rejected.
type CredentialFailure struct {
	Handler        string
	CredentialType CredentialType
	Err            error
}

// Authentication is the outcome of a successful login request.
type Authentication struct {
	Principal       *Principal
	Successes       []HandlerSuccess
	Failures        []CredentialFailure
	AuthenticatedAt time.Time
}

// AuthenticationEvent is the signed audit record of a single credential verification.
// Signature covers every field except ID and Signature itself.
type AuthenticationEvent struct {
	ID             uuid.UUID
	RequestID      uuid.UUID
	RemoteAddress  string
	CredentialType CredentialType
	Principal      string
	Handler        string
	Success        bool
	FailureKind    string
	Signature      []byte
	CreatedAt      time.Time
}

// IsSigned reports whether the event carries a signature.
func (e *AuthenticationEvent) IsSigned() bool {
	return len(e.Signature) > 0
}

// AuthenticationEventVerification summarizes a batch signature verification.
type AuthenticationEventVerification struct {
	Total      int
	Signed     int
	Unsigned   int
	Valid      int
	Invalid    int
	InvalidIDs []uuid.UUID
}

// RealmUser is a locally managed account used by the database login module.
type RealmUser struct {
	ID           uuid.UUID
	Realm        string
	Username     string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
}
