package google

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
)

const (
	CalendarEventsScope = "https://www.googleapis.com/auth/calendar.events"
	SpreadsheetsScope   = "https://www.googleapis.com/auth/spreadsheets"
)

// Credentials selects how the Google APIs are authenticated. A service account
// is preferred; the refresh token of an installed app is the fallback.
type Credentials struct {
	ServiceAccountJSON string
	RefreshToken       string
	ClientID           string
	ClientSecret       string
}

// Configured reports whether any credential source is available
func (c Credentials) Configured() bool {
	return c.ServiceAccountJSON != "" || c.hasRefreshToken()
}

func (c Credentials) hasRefreshToken() bool {
	return c.RefreshToken != "" && c.ClientID != "" && c.ClientSecret != ""
}

// TokenSource builds an oauth2 token source for the given scopes
func (c Credentials) TokenSource(ctx context.Context, scopes ...string) (oauth2.TokenSource, error) {
	if c.ServiceAccountJSON != "" {
		creds, err := googleoauth.CredentialsFromJSON(ctx, []byte(c.ServiceAccountJSON), scopes...)
		if err == nil {
			return creds.TokenSource, nil
		}
		if !c.hasRefreshToken() {
			return nil, fmt.Errorf("invalid service account credentials: %w", err)
		}
	}

	if !c.hasRefreshToken() {
		return nil, fmt.Errorf("missing Google OAuth credentials")
	}

	config := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     googleoauth.Endpoint,
		Scopes:       scopes,
	}
	return config.TokenSource(ctx, &oauth2.Token{RefreshToken: c.RefreshToken}), nil
}
