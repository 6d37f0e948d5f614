package google

import (
	"context"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"

	"github.com/custodia-labs/calsync/internal/core/domain"
)

// Scopes are the OAuth scopes calsync requests.
var Scopes = []string{
	"https://www.googleapis.com/auth/userinfo.email",
	calendar.CalendarReadonlyScope,
}

// NewOAuthConfig builds the OAuth client configuration for Google.
func NewOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     googleoauth.Endpoint,
		Scopes:       Scopes,
	}
}

// AuthCodeURL builds the consent URL for a PKCE authorisation.
// Google only issues a refresh token with access_type=offline, and only
// reissues one on repeat consent when prompt=consent is set.
func AuthCodeURL(cfg *oauth2.Config, state, verifier string) string {
	return cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)
}

// Exchange trades an authorisation code for a token pair.
func Exchange(ctx context.Context, cfg *oauth2.Config, code, verifier string) (*oauth2.Token, error) {
	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, WrapError(err)
	}
	return tok, nil
}

// CredentialsFromToken converts an OAuth token into stored credentials.
func CredentialsFromToken(userID, account string, tok *oauth2.Token, now time.Time) domain.Credentials {
	return domain.Credentials{
		UserID:            userID,
		AccountIdentifier: account,
		OAuth: &domain.OAuthCredentials{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			TokenType:    tok.TokenType,
			Expiry:       tok.Expiry,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TokenFromCredentials converts stored credentials into an OAuth token.
func TokenFromCredentials(c *domain.OAuthCredentials) *oauth2.Token {
	if c == nil {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
}
