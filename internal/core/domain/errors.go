package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSyncInProgress indicates a run for the same processing key is outstanding.
	ErrSyncInProgress = errors.New("sync in progress")

	// Authentication Errors.

	// ErrAuthRequired indicates no credentials exist for the user.
	ErrAuthRequired = errors.New("authentication required")

	// ErrAuthExpired indicates the credentials expired and refresh failed.
	ErrAuthExpired = errors.New("authentication expired")

	// ErrPermissionDenied indicates the credentials lack access to the resource.
	ErrPermissionDenied = errors.New("permission denied")

	// Provider Errors.

	// ErrCursorInvalid indicates the provider rejected the sync token.
	// The cursor must be cleared and an initial-window fetch performed.
	ErrCursorInvalid = errors.New("sync cursor invalid")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrFetchExhausted indicates every fetch attempt failed.
	ErrFetchExhausted = errors.New("fetch attempts exhausted")

	// ErrChannelNotOwned indicates a channel belongs to a different user.
	ErrChannelNotOwned = errors.New("channel not owned by user")
)

// IsAuthError reports whether err is an authentication or permission failure.
// Retrying these will not help.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthRequired) ||
		errors.Is(err, ErrAuthExpired) ||
		errors.Is(err, ErrPermissionDenied)
}
