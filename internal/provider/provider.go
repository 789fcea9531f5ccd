// Package provider talks to external identity providers. Providers only
// report who the holder of an access token is, linking and user creation
// are left to the caller.
package provider

import (
	"context"
	"errors"
)

var (
	// ErrInvalidProviderToken means the provider looked at the token and
	// rejected it.
	ErrInvalidProviderToken = errors.New("provider rejected the access token")
	// ErrProviderUnavailable covers transport failures and 5xx answers.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	ErrUnknownProvider     = errors.New("unknown identity provider")
)

type Identity struct {
	Provider       string
	ProviderUserID string
	Email          string // may be empty, not every provider discloses it
	Name           string
	Extra          []byte // raw profile as returned by the provider
}

type IdentityProvider interface {
	Name() string
	FetchIdentity(ctx context.Context, accessToken string) (*Identity, error)
}
