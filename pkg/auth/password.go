package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt operates on at most 72 bytes of input.
const maxPasswordBytes = 72

var (
	// ErrPasswordRequired is returned for empty passwords.
	ErrPasswordRequired = errors.New("password is required")
	// ErrPasswordTooLong is returned when the password exceeds the bcrypt limit.
	ErrPasswordTooLong = errors.New("password exceeds 72 bytes")
)

// HashPassword returns a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword validates a password against a stored bcrypt hash.
func CheckPassword(password, stored string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}

// ValidatePassword rejects passwords that cannot be hashed safely.
func ValidatePassword(password string) error {
	if password == "" {
		return ErrPasswordRequired
	}
	if len(password) > maxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}
