// Package session supplies bearer tokens to the sync and API layers.
// Token acquisition and refresh are the host application's concern; this
// package only abstracts over where the current token comes from.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrNoToken is returned when a source has nothing to offer.
var ErrNoToken = errors.New("session: no token available")

// Source yields the bearer token to authenticate with. Implementations
// may rotate tokens behind the scenes, so callers ask again per use
// instead of caching the string.
type Source interface {
	Token() (string, error)
}

// StaticSource returns one fixed token forever.
type StaticSource string

func (s StaticSource) Token() (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// OAuth2Source adapts an oauth2.TokenSource, picking up refreshed access
// tokens as the underlying source rotates them.
type OAuth2Source struct {
	ts oauth2.TokenSource
}

// NewOAuth2Source wraps ts. Wrap expensive sources with
// oauth2.ReuseTokenSource upstream.
func NewOAuth2Source(ts oauth2.TokenSource) *OAuth2Source {
	return &OAuth2Source{ts: ts}
}

func (s *OAuth2Source) Token() (string, error) {
	tok, err := s.ts.Token()
	if err != nil {
		return "", fmt.Errorf("session.OAuth2Source.Token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", ErrNoToken
	}
	return tok.AccessToken, nil
}

// ClientCredentials returns a Source that obtains and refreshes tokens
// through the OAuth2 client-credentials grant. ctx scopes the HTTP
// client used for token requests.
func ClientCredentials(ctx context.Context, tokenURL, clientID, clientSecret string) Source {
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	return NewOAuth2Source(cfg.TokenSource(ctx))
}

// ExpiryOf peeks at a JWT's expiry without verifying the signature, so a
// host can schedule a proactive reconnect before the server starts
// rejecting the token. Returns the zero time when the token is not a JWT
// or carries no expiry claim.
func ExpiryOf(token string) time.Time {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
