package services

import (
	"errors"
	"fmt"
)

var (
	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned for any failed login, without saying
	// which half of the credentials was wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountInactive is returned when a non-ACTIVE account tries to log in.
	ErrAccountInactive = errors.New("account is not active")
	// ErrUserNotDisabled is returned when deleting a user that is not DISABLED.
	ErrUserNotDisabled = errors.New("only disabled users can be deleted")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
