package auth

import (
	"sync"

	"github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

// passwordHashCost is lowered by tests and race builds
var passwordHashCost = 12

var compareHash = bcrypt.CompareHashAndPassword

var (
	decoyHashOnce sync.Once
	decoyHash     []byte
)

// HashPassword hashes a cleartext password for storage
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "password hashing failed").
			WithCode(errors.CodeInternal)
	}
	return string(h), nil
}

// ComparePasswordAndHash reports ErrMismatchedHashAndPassword when password
// does not match hash. A stored hash that is empty or unreadable is an
// internal error, not a credential failure.
func ComparePasswordAndHash(password, hash string) error {
	if hash == "" {
		return errors.New("account has no password hash", errors.CategoryInternal).
			WithCode(errors.CodeInternal)
	}

	err := compareHash([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrMismatchedHashAndPassword
	default:
		return errors.Wrap(err, errors.CategoryInternal, "password hash unreadable").
			WithCode(errors.CodeInternal)
	}
}

// HashCost returns the bcrypt cost a stored hash was created with, or 0
func HashCost(hash string) int {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return 0
	}
	return cost
}

// compareDecoy spends one bcrypt comparison at the current cost. Logins for
// unknown usernames call it so they take as long as a wrong password.
func compareDecoy(password string) {
	decoyHashOnce.Do(func() {
		decoyHash, _ = bcrypt.GenerateFromPassword([]byte("no such account"), passwordHashCost)
	})
	if len(decoyHash) > 0 {
		_ = compareHash(decoyHash, []byte(password))
	}
}
