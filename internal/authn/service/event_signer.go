package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/allisson/cas/internal/authn/domain"
)

// signingKeyInfo is the HKDF info string; bump the version when the canonical form changes.
const signingKeyInfo = "authentication-event-signing-v1"

type eventSigner struct{}

// NewEventSigner creates an EventSigner using HKDF-SHA256 key derivation and HMAC-SHA256.
func NewEventSigner() EventSigner {
	return &eventSigner{}
}

func (s *eventSigner) deriveSigningKey(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("signing key must not be empty")
	}
	reader := hkdf.New(sha256.New, key, nil, []byte(signingKeyInfo))

	signingKey := make([]byte, 32)
	if _, err := io.ReadFull(reader, signingKey); err != nil {
		return nil, err
	}
	return signingKey, nil
}

// canonicalize encodes the signed fields in a fixed order:
// request_id || credential_type || principal || handler || remote_address || success ||
// failure_kind || created_at. Strings are length prefixed.
func (s *eventSigner) canonicalize(event *domain.AuthenticationEvent) []byte {
	buf := make([]byte, 0, 256)

	buf = append(buf, event.RequestID[:]...)
	buf = appendLengthPrefixed(buf, []byte(event.CredentialType))
	buf = appendLengthPrefixed(buf, []byte(event.Principal))
	buf = appendLengthPrefixed(buf, []byte(event.Handler))
	buf = appendLengthPrefixed(buf, []byte(event.RemoteAddress))
	if event.Success {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendLengthPrefixed(buf, []byte(event.FailureKind))
	buf = binary.BigEndian.AppendUint64(buf, uint64(event.CreatedAt.UnixNano())) //nolint:gosec // timestamps are positive

	return buf
}

func appendLengthPrefixed(buf []byte, data []byte) []byte {
	if uint64(len(data)) > 0xFFFFFFFF {
		panic("data length exceeds uint32 max")
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(data))) //nolint:gosec // bounds checked above
	return append(buf, data...)
}

func (s *eventSigner) Sign(key []byte, event *domain.AuthenticationEvent) ([]byte, error) {
	signingKey, err := s.deriveSigningKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to derive signing key: %w", err)
	}
	defer clear(signingKey)

	mac := hmac.New(sha256.New, signingKey)
	mac.Write(s.canonicalize(event))
	return mac.Sum(nil), nil
}

func (s *eventSigner) Verify(key []byte, event *domain.AuthenticationEvent) error {
	expected, err := s.Sign(key, event)
	if err != nil {
		return fmt.Errorf("failed to compute expected signature: %w", err)
	}
	if !hmac.Equal(event.Signature, expected) {
		return domain.ErrSignatureInvalid
	}
	return nil
}
