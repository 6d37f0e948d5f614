package domain

import "time"

// Credentials are a user's OAuth tokens for Google Calendar. A user has at
// most one record; the channel registered under that user is revoked with it.
type Credentials struct {
	UserID string `json:"user_id"`

	// AccountIdentifier is the Google account email.
	AccountIdentifier string `json:"account_identifier,omitempty"`

	OAuth *OAuthCredentials `json:"oauth,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OAuthCredentials is the stored token pair.
type OAuthCredentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// ExpiredAt reports whether the access token has expired at now.
// A zero expiry never expires.
func (c *OAuthCredentials) ExpiredAt(now time.Time) bool {
	return !c.Expiry.IsZero() && now.After(c.Expiry)
}

// IsAuthenticated reports whether the credentials can produce an access
// token: either a live access token or a refresh token.
func (c *Credentials) IsAuthenticated() bool {
	if c.OAuth == nil {
		return false
	}
	if c.OAuth.RefreshToken != "" {
		return true
	}
	return c.OAuth.AccessToken != "" && !c.OAuth.ExpiredAt(time.Now())
}
