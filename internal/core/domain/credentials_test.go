package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOAuthCredentials_ExpiredAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.False(t, (&OAuthCredentials{}).ExpiredAt(now), "zero expiry never expires")
	assert.True(t, (&OAuthCredentials{Expiry: now.Add(-time.Second)}).ExpiredAt(now))
	assert.False(t, (&OAuthCredentials{Expiry: now}).ExpiredAt(now))
	assert.False(t, (&OAuthCredentials{Expiry: now.Add(time.Hour)}).ExpiredAt(now))
}

func TestCredentials_IsAuthenticated(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name  string
		creds Credentials
		want  bool
	}{
		{"no oauth", Credentials{}, false},
		{"empty oauth", Credentials{OAuth: &OAuthCredentials{}}, false},
		{"live access token", Credentials{OAuth: &OAuthCredentials{AccessToken: "at", Expiry: future}}, true},
		{"access token without expiry", Credentials{OAuth: &OAuthCredentials{AccessToken: "at"}}, true},
		{"expired access token", Credentials{OAuth: &OAuthCredentials{AccessToken: "at", Expiry: past}}, false},
		{"expired with refresh", Credentials{OAuth: &OAuthCredentials{AccessToken: "at", RefreshToken: "rt", Expiry: past}}, true},
		{"refresh only", Credentials{OAuth: &OAuthCredentials{RefreshToken: "rt"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.creds.IsAuthenticated())
		})
	}
}
