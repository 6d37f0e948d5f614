package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrors_Existence tests that all error variables exist and are not nil
func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrSyncInProgress", ErrSyncInProgress},
		{"ErrAuthRequired", ErrAuthRequired},
		{"ErrAuthExpired", ErrAuthExpired},
		{"ErrPermissionDenied", ErrPermissionDenied},
		{"ErrCursorInvalid", ErrCursorInvalid},
		{"ErrRateLimited", ErrRateLimited},
		{"ErrFetchExhausted", ErrFetchExhausted},
		{"ErrChannelNotOwned", ErrChannelNotOwned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

// TestErrNotFound tests ErrNotFound error
func TestErrNotFound(t *testing.T) {
	assert.Equal(t, "not found", ErrNotFound.Error())
	assert.True(t, errors.Is(ErrNotFound, ErrNotFound))
	assert.False(t, errors.Is(ErrNotFound, ErrInvalidInput))
}

// TestErrSyncInProgress tests ErrSyncInProgress error
func TestErrSyncInProgress(t *testing.T) {
	assert.Equal(t, "sync in progress", ErrSyncInProgress.Error())
	assert.True(t, errors.Is(ErrSyncInProgress, ErrSyncInProgress))
	assert.False(t, errors.Is(ErrSyncInProgress, ErrNotFound))
}

func TestErrCursorInvalid_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("list events: %w", ErrCursorInvalid)
	assert.True(t, errors.Is(wrapped, ErrCursorInvalid))
	assert.False(t, errors.Is(wrapped, ErrRateLimited))
}

func TestIsAuthError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"auth required", ErrAuthRequired, true},
		{"auth expired wrapped", fmt.Errorf("client: %w", ErrAuthExpired), true},
		{"permission denied", ErrPermissionDenied, true},
		{"rate limited", ErrRateLimited, false},
		{"cursor invalid", ErrCursorInvalid, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAuthError(tt.err))
		})
	}
}
