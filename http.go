package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
)

// StatusBody is the rejection body for 401, 400 and 500 responses
type StatusBody struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// ErrorBody is the rejection body for 403 and 429 responses
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

const genericInternalMessage = "Internal server error"

var canonical = map[string]*errors.Error{
	TextCodeTokenMalformed:         ErrTokenMalformed,
	TextCodeTokenExpired:           ErrTokenExpired,
	TextCodeIdentityNotFound:       ErrIdentityNotFound,
	TextCodeIdentityMismatch:       ErrIdentityMismatch,
	TextCodeAccountDisabled:        ErrAccountDisabled,
	TextCodeRateLimited:            ErrRateLimited,
	TextCodeInternalAuthFailure:    ErrInternalAuthFailure,
	TextCodeInvalidCreds:           ErrMismatchedHashAndPassword,
	TextCodeAuthenticationRequired: ErrAuthenticationRequired,
	TextCodeForbidden:              ErrForbidden,
	TextCodeEmptyPassword:          ErrNoEmptyString,
}

// RenderError maps err onto a status code and a JSON body. Internal
// failures never expose their message.
func RenderError(err error) (int, any) {
	code := TextCode(err)
	status := StatusCode(err)

	message := genericInternalMessage
	if sentinel, ok := canonical[code]; ok {
		message = sentinel.Message
	} else if status != errors.CodeInternal {
		var richErr *errors.Error
		if errors.As(err, &richErr) {
			message = richErr.Message
		}
	}

	switch code {
	case TextCodeAccountDisabled:
		return status, ErrorBody{Error: "Account disabled", Message: message}
	case TextCodeRateLimited:
		return status, ErrorBody{Error: "Too Many Requests", Message: message}
	case TextCodeForbidden:
		return status, ErrorBody{Error: "Forbidden", Message: message}
	}

	if status == errors.CodeInternal {
		message = genericInternalMessage
	}

	body := StatusBody{Status: "error", Message: message}

	var richErr *errors.Error
	if errors.As(err, &richErr) && len(richErr.ValidationErrors) > 0 {
		body.Errors = make(map[string]string, len(richErr.ValidationErrors))
		for _, fe := range richErr.ValidationErrors {
			body.Errors[fe.Field] = fe.Message
		}
	}

	return status, body
}

// WriteError renders err on c and stops the handler chain
func WriteError(c *fiber.Ctx, err error) error {
	status, body := RenderError(err)
	return c.Status(status).JSON(body)
}
