package google

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/core/ports/driven"
	"github.com/custodia-labs/calsync/internal/logger"
)

// persistingTokenSource refreshes through the OAuth config and writes every
// newly issued token back to the credentials store, so a refresh survives
// restarts and Google's refresh token rotation is not lost.
type persistingTokenSource struct {
	ctx   context.Context
	base  oauth2.TokenSource
	store driven.CredentialsStore

	mu    sync.Mutex
	creds domain.Credentials
}

// NewTokenSource creates an oauth2.TokenSource for a user's stored credentials.
// The returned TokenSource can be used with option.WithTokenSource() when
// creating Google API services.
//
// Refresh requests run on a context detached from ctx's cancellation since
// the source outlives the call that created it.
func NewTokenSource(
	ctx context.Context,
	cfg *oauth2.Config,
	store driven.CredentialsStore,
	creds domain.Credentials,
) oauth2.TokenSource {
	ctx = context.WithoutCancel(ctx)
	return &persistingTokenSource{
		ctx:   ctx,
		base:  cfg.TokenSource(ctx, TokenFromCredentials(creds.OAuth)),
		store: store,
		creds: creds,
	}
}

// Token implements oauth2.TokenSource interface.
// Called by Google API clients when they need an access token.
func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, WrapError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.creds.OAuth != nil && tok.AccessToken == s.creds.OAuth.AccessToken {
		return tok, nil
	}

	var refreshed domain.OAuthCredentials
	if s.creds.OAuth != nil {
		refreshed = *s.creds.OAuth
	}
	refreshed.AccessToken = tok.AccessToken
	refreshed.TokenType = tok.TokenType
	refreshed.Expiry = tok.Expiry
	if tok.RefreshToken != "" {
		refreshed.RefreshToken = tok.RefreshToken
	}
	s.creds.OAuth = &refreshed
	s.creds.UpdatedAt = time.Now()

	if err := s.store.Save(s.ctx, s.creds); err != nil {
		// The token is still good for this process; the next start refreshes again.
		logger.Warn("failed to persist refreshed token for %s: %v", s.creds.UserID, err)
	}
	return tok, nil
}
