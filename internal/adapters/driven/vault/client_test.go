package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/calsync/internal/core/domain"
)

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(ClientOptions{
		BaseURL:   srv.URL + "/",
		APIKey:    "secret",
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
	})
}

func TestClient_Upsert(t *testing.T) {
	var gotPath, gotAuth string
	var got memoryPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	err := newTestClient(srv).Upsert(context.Background(), "user 1", domain.Memory{
		ExternalID: "evt/1",
		CalendarID: "primary",
		Title:      "Standup",
		Content:    "Daily standup",
		Tags:       []string{"calendar"},
		OccurredAt: start,
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1/users/user%201/memories/evt%2F1", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "evt/1", got.ExternalID)
	assert.Equal(t, "google_calendar", got.Source)
	require.NotNil(t, got.OccurredAt)
	assert.True(t, got.OccurredAt.Equal(start))
}

func TestClient_DeleteNotFoundIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	assert.NoError(t, newTestClient(srv).Delete(context.Background(), "u1", "gone"))
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(srv).Upsert(context.Background(), "u1", domain.Memory{ExternalID: "e"}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad memory", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := newTestClient(srv).Upsert(context.Background(), "u1", domain.Memory{ExternalID: "e"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, "bad memory", se.Body)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_RetryDelay(t *testing.T) {
	c := NewClient(ClientOptions{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second})
	assert.Equal(t, 100*time.Millisecond, c.retryDelay(1, ""))
	assert.Equal(t, 400*time.Millisecond, c.retryDelay(3, ""))
	assert.Equal(t, time.Second, c.retryDelay(10, ""))
	assert.Equal(t, time.Second, c.retryDelay(1, "30"))
	assert.Equal(t, time.Duration(0), c.retryDelay(1, "0"))
}

func TestMemorySink(t *testing.T) {
	ctx := context.Background()
	sink := NewMemorySink()

	assert.ErrorIs(t, sink.Upsert(ctx, "u1", domain.Memory{}), domain.ErrInvalidInput)
	require.NoError(t, sink.Upsert(ctx, "u1", domain.Memory{ExternalID: "b", Title: "old"}))
	require.NoError(t, sink.Upsert(ctx, "u1", domain.Memory{ExternalID: "b", Title: "new"}))
	require.NoError(t, sink.Upsert(ctx, "u1", domain.Memory{ExternalID: "a"}))

	list := sink.List("u1")
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ExternalID)
	assert.Equal(t, "new", list[1].Title)

	require.NoError(t, sink.Delete(ctx, "u1", "a"))
	require.NoError(t, sink.Delete(ctx, "u1", "missing"))
	require.NoError(t, sink.Delete(ctx, "nobody", "a"))
	assert.Len(t, sink.List("u1"), 1)
}
