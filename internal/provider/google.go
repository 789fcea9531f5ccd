package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const (
	googleName          = "google"
	DefaultGoogleIssuer = "https://accounts.google.com"
)

// Google resolves access tokens through the OIDC userinfo endpoint
type Google struct {
	oidc   *oidc.Provider
	client *http.Client
}

func NewGoogle(ctx context.Context, issuer string) (*Google, error) {
	if issuer == "" {
		issuer = DefaultGoogleIssuer
	}

	client := &http.Client{Timeout: 10 * time.Second}

	p, err := oidc.NewProvider(oidc.ClientContext(ctx, client), issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init google oidc provider, %w", err)
	}

	return &Google{oidc: p, client: client}, nil
}

func (g *Google) Name() string {
	return googleName
}

// statusRecorder keeps the last status code, go-oidc folds it into an
// opaque error otherwise.
type statusRecorder struct {
	base   http.RoundTripper
	status int
}

func (s *statusRecorder) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := s.base.RoundTrip(r)
	if resp != nil {
		s.status = resp.StatusCode
	}

	return resp, err
}

func (g *Google) FetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	if accessToken == "" {
		return nil, ErrInvalidProviderToken
	}

	base := g.client.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	rec := &statusRecorder{base: base}
	ctx = oidc.ClientContext(ctx, &http.Client{Transport: rec, Timeout: g.client.Timeout})

	info, err := g.oidc.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	if err != nil {
		if rec.status >= 400 && rec.status < 500 {
			return nil, ErrInvalidProviderToken
		}

		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	var claims struct {
		Name string `json:"name"`
	}

	if err := info.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: malformed userinfo, %v", ErrProviderUnavailable, err)
	}

	if info.Subject == "" {
		return nil, ErrInvalidProviderToken
	}

	var extra json.RawMessage
	if err := info.Claims(&extra); err != nil {
		return nil, fmt.Errorf("%w: malformed userinfo, %v", ErrProviderUnavailable, err)
	}

	email := info.Email
	if !info.EmailVerified {
		email = ""
	}

	return &Identity{
		Provider:       googleName,
		ProviderUserID: info.Subject,
		Email:          email,
		Name:           claims.Name,
		Extra:          []byte(extra),
	}, nil
}
