package auth

import (
	"errors"
	"fmt"
	"unicode"

	"github.com/dmitrijs2005/credport/internal/common"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword reports whether password matches hash. The comparison is
// constant-time; a malformed hash simply does not match.
func ComparePassword(hash, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// ValidatePassword checks password strength and returns a
// *common.ValidationError listing every problem found, or nil.
func ValidatePassword(password string) error {
	v := &common.ValidationError{}

	if len([]rune(password)) < minPasswordLength {
		v.Add("too short")
	}
	if len(password) > maxPasswordBytes {
		v.Add("too long")
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	if !upper {
		v.Add("missing uppercase letter")
	}
	if !lower {
		v.Add("missing lowercase letter")
	}
	if !digit {
		v.Add("missing digit")
	}
	if !special {
		v.Add("missing special character")
	}

	return v.OrNil()
}

// IsPasswordPolicyError reports whether err came from ValidatePassword.
func IsPasswordPolicyError(err error) bool {
	return errors.Is(err, common.ErrValidation)
}
