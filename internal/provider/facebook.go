package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	facebookName     = "facebook"
	DefaultGraphURL  = "https://graph.facebook.com/v19.0"
	maxProfileLength = 1 << 20
)

type Facebook struct {
	appSecret string
	graphURL  string
	client    *http.Client
}

// NewFacebook needs the app secret to sign every Graph call with
// appsecret_proof. An empty graphURL falls back to DefaultGraphURL.
func NewFacebook(appSecret, graphURL string) (*Facebook, error) {
	if appSecret == "" {
		return nil, errors.New("facebook app secret is missing")
	}

	if graphURL == "" {
		graphURL = DefaultGraphURL
	}

	return &Facebook{
		appSecret: appSecret,
		graphURL:  strings.TrimRight(graphURL, "/"),
		client:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (f *Facebook) Name() string {
	return facebookName
}

func (f *Facebook) proof(accessToken string) string {
	mac := hmac.New(sha256.New, []byte(f.appSecret))
	mac.Write([]byte(accessToken))
	return hex.EncodeToString(mac.Sum(nil))
}

type facebookProfile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (f *Facebook) FetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	if accessToken == "" {
		return nil, ErrInvalidProviderToken
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.client)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	q := url.Values{}
	q.Set("fields", "id,name,email")
	q.Set("appsecret_proof", f.proof(accessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.graphURL+"/me?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build graph request, %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileLength))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, ErrInvalidProviderToken
	default:
		return nil, fmt.Errorf("%w: graph api answered %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var p facebookProfile
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: malformed profile, %v", ErrProviderUnavailable, err)
	}

	if p.ID == "" {
		return nil, ErrInvalidProviderToken
	}

	return &Identity{
		Provider:       facebookName,
		ProviderUserID: p.ID,
		Email:          p.Email,
		Name:           p.Name,
		Extra:          body,
	}, nil
}
