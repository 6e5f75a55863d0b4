package service

import (
	"github.com/allisson/go-pwdhash"

	apperrors "github.com/allisson/cas/internal/errors"
)

type passwordService struct {
	hasher *pwdhash.PasswordHasher
}

func (s *passwordService) HashPassword(plainPassword string) (string, error) {
	if plainPassword == "" {
		return "", apperrors.Wrap(apperrors.ErrInvalidInput, "password must not be empty")
	}
	hashed, err := s.hasher.Hash([]byte(plainPassword))
	if err != nil {
		return "", apperrors.Wrap(err, "failed to hash password")
	}
	return hashed, nil
}

func (s *passwordService) ComparePassword(plainPassword, hashedPassword string) bool {
	ok, err := s.hasher.Verify([]byte(plainPassword), hashedPassword)
	if err != nil {
		return false
	}
	return ok
}

// NewPasswordService creates an Argon2id PasswordService with the moderate policy.
func NewPasswordService() PasswordService {
	hasher, err := pwdhash.New(
		pwdhash.WithPolicy(pwdhash.PolicyModerate),
	)
	if err != nil {
		panic(err)
	}

	return &passwordService{hasher: hasher}
}
