package auth

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeTokenMalformed         = "TOKEN_MALFORMED"
	TextCodeTokenExpired           = "TOKEN_EXPIRED"
	TextCodeIdentityNotFound       = "IDENTITY_NOT_FOUND"
	TextCodeIdentityMismatch       = "IDENTITY_MISMATCH"
	TextCodeAccountDisabled        = "ACCOUNT_DISABLED"
	TextCodeRateLimited            = "RATE_LIMITED"
	TextCodeInternalAuthFailure    = "INTERNAL_AUTH_FAILURE"
	TextCodeInvalidCreds           = "INVALID_CREDENTIALS"
	TextCodeAuthenticationRequired = "AUTHENTICATION_REQUIRED"
	TextCodeForbidden              = "FORBIDDEN"
	TextCodeEmptyPassword          = "EMPTY_PASSWORD"
)

// ErrTokenMalformed is returned when a token cannot be parsed or its signature does not match
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned when a token is past its expiration time
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(errors.CodeUnauthorized)

// ErrIdentityMismatch is returned when the token uid does not match the resolved identity
var ErrIdentityMismatch = errors.New("token identity mismatch", errors.CategoryAuth).
	WithTextCode(TextCodeIdentityMismatch).
	WithCode(errors.CodeUnauthorized)

// ErrAccountDisabled is returned when the identity has been banned
var ErrAccountDisabled = errors.New("Your account has been banned.", errors.CategoryAuthz).
	WithTextCode(TextCodeAccountDisabled).
	WithCode(errors.CodeForbidden)

// ErrRateLimited is returned when a caller exceeds its action budget
var ErrRateLimited = errors.New("Slow down! Please wait a minute.", errors.CategoryRateLimit).
	WithTextCode(TextCodeRateLimited).
	WithCode(errors.CodeTooManyRequests)

// ErrInternalAuthFailure is the generic error surfaced for unexpected failures
var ErrInternalAuthFailure = errors.New("authentication failed due to an internal error", errors.CategoryInternal).
	WithTextCode(TextCodeInternalAuthFailure).
	WithCode(errors.CodeInternal)

// ErrMismatchedHashAndPassword is returned on bad credentials
var ErrMismatchedHashAndPassword = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(errors.CodeUnauthorized)

// ErrAuthenticationRequired is returned by routes that need a bound identity
var ErrAuthenticationRequired = errors.New("authentication required", errors.CategoryAuth).
	WithTextCode(TextCodeAuthenticationRequired).
	WithCode(errors.CodeUnauthorized)

// ErrForbidden is returned when the identity lacks a required authority
var ErrForbidden = errors.New("access denied", errors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(errors.CodeForbidden)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = errors.New("password can not be an empty string", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// TextCode returns the text code of a rich error, or an empty string.
func TextCode(err error) string {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

// Is reports whether err carries the same text code as target.
// errors.Wrap clones rich errors, so pointer equality is not enough.
func Is(err error, target *errors.Error) bool {
	if err == nil || target == nil {
		return false
	}
	if errors.Is(err, target) {
		return true
	}
	code := TextCode(err)
	return code != "" && code == target.TextCode
}

// StatusCode maps an error to the HTTP status it should surface with.
// Anything that is not part of the taxonomy is an internal failure.
func StatusCode(err error) int {
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.Code != 0 && richErr.TextCode != "" {
		return richErr.Code
	}
	return errors.CodeInternal
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	return Is(err, ErrTokenExpired)
}

// IsMalformedError will check for malformed tokens
func IsMalformedError(err error) bool {
	return Is(err, ErrTokenMalformed)
}

// withMeta returns a copy of a sentinel decorated with metadata so the
// shared package level value is never mutated.
func withMeta(base *errors.Error, meta map[string]any) *errors.Error {
	return base.Clone().WithMetadata(meta)
}
