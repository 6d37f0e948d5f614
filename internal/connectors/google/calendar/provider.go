package calendar

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/custodia-labs/calsync/internal/connectors/google"
	"github.com/custodia-labs/calsync/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.CalendarClientProvider = (*Provider)(nil)

// TokenSources resolves a user's OAuth token source.
// It returns domain.ErrAuthRequired when the user has no usable credentials.
type TokenSources interface {
	TokenSource(ctx context.Context, userID string) (oauth2.TokenSource, error)
	Invalidate(userID string)
}

// Provider builds per-user Calendar clients that share one rate limiter.
type Provider struct {
	tokens  TokenSources
	limiter *google.RateLimiter
	config  *Config
	opts    []option.ClientOption
}

// NewProvider creates a client provider.
// opts are passed to every Calendar service it creates.
func NewProvider(tokens TokenSources, limiter *google.RateLimiter, cfg *Config, opts ...option.ClientOption) *Provider {
	return &Provider{tokens: tokens, limiter: limiter, config: cfg, opts: opts}
}

// Client returns an authenticated client for userID.
func (p *Provider) Client(ctx context.Context, userID string) (driven.CalendarClient, error) {
	ts, err := p.tokens.TokenSource(ctx, userID)
	if err != nil {
		return nil, err
	}
	svc, err := google.NewCalendarService(ctx, ts, p.opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return NewClient(svc, p.limiter, p.config), nil
}

// Invalidate forgets userID's token source.
func (p *Provider) Invalidate(userID string) {
	p.tokens.Invalidate(userID)
}
