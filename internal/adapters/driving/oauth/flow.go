package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/calsync/internal/connectors/google"
	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/core/ports/driven"
)

// Flow connects a user by running the PKCE authorisation code flow against
// a loopback redirect and storing the resulting credentials.
type Flow struct {
	config *oauth2.Config
	store  driven.CredentialsStore

	// Out receives the consent URL and progress messages.
	Out io.Writer

	// OpenBrowser is called with the consent URL. Errors are reported, not fatal.
	OpenBrowser func(url string) error

	// Timeout bounds the wait for the browser callback.
	Timeout time.Duration

	userInfo func(ctx context.Context, ts oauth2.TokenSource) (*google.UserInfo, error)
	now      func() time.Time
}

// NewFlow creates a connect flow. cfg.RedirectURL must be a loopback
// http URL, e.g. http://localhost:8765/callback.
func NewFlow(cfg *oauth2.Config, store driven.CredentialsStore, out io.Writer) *Flow {
	return &Flow{
		config:      cfg,
		store:       store,
		Out:         out,
		OpenBrowser: OpenBrowser,
		Timeout:     5 * time.Minute,
		userInfo:    google.GetUserInfo,
		now:         time.Now,
	}
}

// Connect runs the flow for userID and returns the saved credentials.
func (f *Flow) Connect(ctx context.Context, userID string) (*domain.Credentials, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user id", domain.ErrInvalidInput)
	}
	port, path, err := loopbackAddress(f.config.RedirectURL)
	if err != nil {
		return nil, err
	}

	state, err := GenerateState()
	if err != nil {
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()

	server := NewCallbackServer(port, path, state)
	if err := server.Start(); err != nil {
		return nil, err
	}
	defer server.Stop() //nolint:errcheck // best-effort shutdown

	cfg := *f.config
	if port == 0 {
		cfg.RedirectURL = server.RedirectURI()
	}

	authURL := google.AuthCodeURL(&cfg, state, verifier)
	fmt.Fprintf(f.Out, "Open this URL to authorise calsync:\n\n  %s\n\n", authURL)
	if f.OpenBrowser != nil {
		if err := f.OpenBrowser(authURL); err != nil {
			fmt.Fprintf(f.Out, "Could not open a browser (%v); open the URL manually.\n", err)
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()
	code, err := server.WaitForCode(waitCtx)
	if err != nil {
		return nil, err
	}

	tok, err := google.Exchange(ctx, &cfg, code, verifier)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token issued", domain.ErrAuthRequired)
	}

	account := ""
	if info, err := f.userInfo(ctx, cfg.TokenSource(ctx, tok)); err == nil {
		account = info.Email
	} else {
		fmt.Fprintf(f.Out, "Could not read account email: %v\n", err)
	}

	creds := google.CredentialsFromToken(userID, account, tok, f.now())
	if err := f.store.Save(ctx, creds); err != nil {
		return nil, fmt.Errorf("save credentials: %w", err)
	}
	return &creds, nil
}

// loopbackAddress extracts the port and path from a loopback redirect URL.
func loopbackAddress(redirectURL string) (int, string, error) {
	if redirectURL == "" {
		return 0, "/callback", nil
	}
	u, err := url.Parse(redirectURL)
	if err != nil {
		return 0, "", fmt.Errorf("parse redirect url: %w", err)
	}
	if u.Scheme != "http" || (u.Hostname() != "localhost" && u.Hostname() != "127.0.0.1") {
		return 0, "", errors.New("redirect url must be an http loopback address")
	}
	port := 0
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return 0, "", fmt.Errorf("redirect url port: %w", err)
		}
	}
	return port, u.Path, nil
}
