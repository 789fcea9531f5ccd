package service

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrInvalidCredentials                = errors.New("invalid credentials")
	ErrEmailNotVerified                  = errors.New("e-mail is not verified")
	ErrEmailAlreadyRegistered            = errors.New("e-mail already registered")
	ErrInvalidEmail                      = errors.New("invalid e-mail address")
	ErrPasswordPolicy                    = errors.New("password does not meet the policy")
	ErrPasswordMismatch                  = errors.New("passwords don't match")
	ErrInvalidOldPassword                = errors.New("invalid old password")
	ErrInvalidOrExpiredKey               = errors.New("key is invalid or expired")
	ErrAccountExistsRequiresExplicitLink = errors.New("an account with this e-mail already exists")
	ErrAlreadyLinked                     = errors.New("social account is linked to another user")
	ErrInactiveUser                      = errors.New("user account is disabled")
	ErrMissingProviderEmail              = errors.New("provider did not supply an e-mail address")
	ErrFieldRequired                     = errors.New("field is required")
	ErrFieldTooLong                      = errors.New("field is too long")
	ErrInvalidProviderToken              = errors.New("provider rejected the access token")

	ErrInvalidToken        = errors.New("invalid token")
	ErrUnauthenticated     = errors.New("authentication credentials were not provided")
	ErrForbidden           = errors.New("permission denied")
	ErrNotFound            = errors.New("not found")
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	ErrEmailDeliveryFailed = errors.New("e-mail delivery failed")
)

// Messages returned to clients. They match what existing frontends already
// look for, so they must not be reworded.
const (
	MsgInvalidCredentials    = "Unable to log in with provided credentials."
	MsgEmailNotVerified      = "E-mail is not verified."
	MsgEmailRegistered       = "A user is already registered with this e-mail address."
	MsgInvalidEmail          = "Enter a valid email address."
	MsgPasswordTooShort      = "This password is too short. It must contain at least 12 characters."
	MsgPasswordTooLong       = "Ensure this field has no more than 255 characters."
	MsgPasswordMismatch      = "The two password fields didn't match."
	MsgInvalidOldPassword    = "Invalid password"
	MsgInvalidValue          = "Invalid value"
	MsgIncorrectValue        = "Incorrect value"
	MsgSocialEmailRegistered = "User is already registered with this e-mail address."
	MsgAlreadyLinked         = "The social account is already connected to a different account."
	MsgInactiveUser          = "User account is disabled."
	MsgMissingProviderEmail  = "Provider did not supply an e-mail address."
	MsgFieldRequired         = "This field is required."
	MsgFieldTooLong          = "Ensure this field has no more than 255 characters."
	MsgInvalidKey            = "This e-mail confirmation link expired or is invalid."

	MsgVerificationSent = "Verification e-mail sent."
	MsgResetSent        = "Password reset e-mail has been sent."
	MsgResetDone        = "Password has been reset with the new password."
	MsgPasswordChanged  = "New password has been saved."
	MsgLoggedOut        = "Successfully logged out."

	NonFieldErrors = "non_field_errors"
)

// ValidationError carries per field messages. Every sentinel added along
// with a message is reachable through errors.Is.
type ValidationError struct {
	Fields map[string][]string
	kinds  []error
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string][]string)}
}

func invalid(field, msg string, kind error) *ValidationError {
	return NewValidationError().Add(field, msg, kind)
}

func (e *ValidationError) Add(field, msg string, kind error) *ValidationError {
	e.Fields[field] = append(e.Fields[field], msg)
	if kind != nil {
		e.kinds = append(e.kinds, kind)
	}

	return e
}

func (e *ValidationError) Has(field string) bool {
	return len(e.Fields[field]) > 0
}

// Err returns nil when nothing was added
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}

	return e
}

func (e *ValidationError) Unwrap() []error {
	return e.kinds
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("validation failed")

	for _, k := range keys {
		b.WriteString(", ")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Fields[k], " "))
	}

	return b.String()
}
