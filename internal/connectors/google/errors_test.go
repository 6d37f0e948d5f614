package google

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/custodia-labs/calsync/internal/core/domain"
)

func gErr(code int, reasons ...string) *googleapi.Error {
	e := &googleapi.Error{Code: code, Message: http.StatusText(code)}
	for _, r := range reasons {
		e.Errors = append(e.Errors, googleapi.ErrorItem{Reason: r})
	}
	return e
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unauthorised", gErr(http.StatusUnauthorized), domain.ErrAuthExpired},
		{"forbidden", gErr(http.StatusForbidden, "forbidden"), domain.ErrPermissionDenied},
		{"forbidden rate limit", gErr(http.StatusForbidden, "rateLimitExceeded"), domain.ErrRateLimited},
		{"forbidden user rate limit", gErr(http.StatusForbidden, "userRateLimitExceeded"), domain.ErrRateLimited},
		{"not found", gErr(http.StatusNotFound), domain.ErrNotFound},
		{"gone", gErr(http.StatusGone), domain.ErrCursorInvalid},
		{"too many requests", gErr(http.StatusTooManyRequests), domain.ErrRateLimited},
		{"wrapped", fmt.Errorf("list: %w", gErr(http.StatusGone)), domain.ErrCursorInvalid},
		{"refresh failure", &oauth2.RetrieveError{ErrorCode: "invalid_grant"}, domain.ErrAuthExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WrapError(tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err, "original error stays in the chain")
		})
	}
}

func TestWrapError_Passthrough(t *testing.T) {
	assert.NoError(t, WrapError(nil))

	plain := errors.New("connection reset")
	assert.Equal(t, plain, WrapError(plain))

	server := gErr(http.StatusInternalServerError)
	assert.Equal(t, error(server), WrapError(server))
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsUnauthorized(gErr(http.StatusUnauthorized)))
	assert.True(t, IsUnauthorized(&oauth2.RetrieveError{}))
	assert.True(t, IsForbidden(gErr(http.StatusForbidden)))
	assert.False(t, IsForbidden(gErr(http.StatusForbidden, "quotaExceeded")))
	assert.True(t, IsRateLimited(gErr(http.StatusForbidden, "quotaExceeded")))
	assert.True(t, IsRateLimited(domain.ErrRateLimited))
	assert.True(t, IsNotFound(gErr(http.StatusNotFound)))
	assert.True(t, IsSyncTokenExpired(gErr(http.StatusGone)))
	assert.False(t, IsSyncTokenExpired(gErr(http.StatusNotFound)))
}

func TestRetryAfter(t *testing.T) {
	e := gErr(http.StatusTooManyRequests)
	assert.Zero(t, RetryAfter(e))

	e.Header = http.Header{"Retry-After": []string{"12"}}
	assert.Equal(t, 12*time.Second, RetryAfter(fmt.Errorf("wrapped: %w", e)))

	e.Header.Set("Retry-After", "soon")
	assert.Zero(t, RetryAfter(e))
}
