// Package google provides shared infrastructure for Google API access.
//
// This package contains the pieces the calendar client builds on:
//   - OAuth configuration, PKCE authorisation URLs and code exchange
//   - A token source that writes refreshed tokens back to the credentials store
//   - Service factories for creating Google API clients
//   - Mapping of Google API errors (401, 403, 404, 410, 429) to domain errors
//   - Rate limiting to respect Google API quotas
//
// # Usage
//
//	cfg := google.NewOAuthConfig(clientID, clientSecret, redirectURL)
//	ts := google.NewTokenSource(ctx, cfg, credentialsStore, creds)
//	svc, err := google.NewCalendarService(ctx, ts)
//
// # OAuth2 Scopes
//
// calsync requests these scopes:
//   - https://www.googleapis.com/auth/userinfo.email (non-sensitive)
//   - https://www.googleapis.com/auth/calendar.readonly (sensitive)
//
// Watching a calendar's events only needs read access.
package google
