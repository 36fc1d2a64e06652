package connectors

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// refreshMargin: tokens expiring within this window are refreshed before
// use, so a long discover pass never runs into mid-flight expiry.
const refreshMargin = 5 * time.Minute

// EnsureFreshToken refreshes the OAuth access token when a refresh token
// exists and expiry is inside the margin. Returns whether the credential
// blob changed, so the caller can re-encrypt and persist it.
func EnsureFreshToken(ctx context.Context, creds *Credentials) (bool, error) {
	if creds == nil || creds.OAuth == nil {
		return false, nil
	}
	ot := creds.OAuth
	if ot.RefreshToken == "" || ot.Expiry.IsZero() {
		return false, nil
	}
	if time.Until(ot.Expiry) > refreshMargin {
		return false, nil
	}
	if ot.TokenURL == "" || ot.ClientID == "" {
		return false, fmt.Errorf("oauth token expiring but no refresh config stored")
	}

	conf := &oauth2.Config{
		ClientID:     ot.ClientID,
		ClientSecret: ot.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: ot.TokenURL},
	}
	src := conf.TokenSource(ctx, &oauth2.Token{
		AccessToken:  ot.AccessToken,
		RefreshToken: ot.RefreshToken,
		TokenType:    ot.TokenType,
		Expiry:       ot.Expiry,
	})
	fresh, err := src.Token()
	if err != nil {
		return false, fmt.Errorf("refresh oauth token: %w", err)
	}

	ot.AccessToken = fresh.AccessToken
	ot.TokenType = fresh.TokenType
	ot.Expiry = fresh.Expiry
	if fresh.RefreshToken != "" {
		ot.RefreshToken = fresh.RefreshToken
	}
	return true, nil
}

// bearerToken picks the usable token: OAuth access token when present,
// otherwise the static API key.
func bearerToken(creds *Credentials) string {
	if creds == nil {
		return ""
	}
	if creds.OAuth != nil && creds.OAuth.AccessToken != "" {
		return creds.OAuth.AccessToken
	}
	return creds.APIKey
}
