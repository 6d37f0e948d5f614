package calendar

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/custodia-labs/calsync/internal/connectors/google"
	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/core/ports/driven"
)

// fakeAPI records requests and replies with canned handlers per path suffix.
type fakeAPI struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
	handle   func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, r)
	f.bodies = append(f.bodies, string(body))
	f.mu.Unlock()
	f.handle(w, r)
}

func (f *fakeAPI) last() (*http.Request, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1], f.bodies[len(f.bodies)-1]
}

func newTestClient(t *testing.T, handle func(w http.ResponseWriter, r *http.Request)) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{handle: handle}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	svc, err := calendar.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return NewClient(svc, nil, nil), api
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func apiError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": reason,
			"errors":  []map[string]string{{"reason": reason, "message": reason}},
		},
	})
}

func TestClient_ListEvents_SyncToken(t *testing.T) {
	client, api := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"nextSyncToken": "tok-2",
			"items": []map[string]any{
				{
					"id": "evt-1", "status": "confirmed", "summary": "Standup",
					"created": "2026-03-01T10:00:00.000Z", "updated": "2026-03-01T10:05:00.000Z",
					"start":     map[string]string{"dateTime": "2026-03-02T09:00:00Z"},
					"end":       map[string]string{"dateTime": "2026-03-02T09:15:00Z"},
					"organizer": map[string]string{"email": "lead@example.com"},
					"attendees": []map[string]string{{"displayName": "Ada"}, {"email": "bob@example.com"}},
				},
				{"id": "evt-2", "status": "cancelled"},
				{"status": "confirmed"},
			},
		})
	})

	page, err := client.ListEvents(context.Background(), "work@example.com", domain.EventQuery{
		SyncToken:        "tok-1",
		TimeMin:          time.Now(),
		OrderByStartTime: true,
		ShowDeleted:      true,
		SingleEvents:     true,
		MaxResults:       250,
	})
	require.NoError(t, err)

	req, _ := api.last()
	assert.Equal(t, "/calendars/work@example.com/events", req.URL.Path)
	q := req.URL.Query()
	assert.Equal(t, "tok-1", q.Get("syncToken"))
	assert.Empty(t, q.Get("timeMin"), "time bounds are dropped with a sync token")
	assert.Empty(t, q.Get("orderBy"))
	assert.Equal(t, "true", q.Get("showDeleted"))
	assert.Equal(t, "250", q.Get("maxResults"))

	assert.Equal(t, "tok-2", page.NextSyncToken)
	require.Len(t, page.Events, 2, "events without an id are skipped")

	e := page.Events[0]
	assert.Equal(t, "evt-1", e.ID)
	assert.Equal(t, "work@example.com", e.CalendarID)
	assert.Equal(t, "lead@example.com", e.Organizer)
	assert.Equal(t, []string{"Ada", "bob@example.com"}, e.Attendees)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC), e.Updated.UTC())
	assert.Equal(t, domain.ChangeUpdated, domain.Classify(e))

	assert.True(t, page.Events[1].IsCancelled())
	assert.True(t, page.Events[1].Created.IsZero())
}

func TestClient_ListEvents_Window(t *testing.T) {
	client, api := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"nextPageToken": "p2"})
	})

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	page, err := client.ListEvents(context.Background(), "primary", domain.EventQuery{
		TimeMin:          from,
		TimeMax:          from.Add(24 * time.Hour),
		OrderByStartTime: true,
		SingleEvents:     true,
		PageToken:        "p1",
	})
	require.NoError(t, err)
	assert.Equal(t, "p2", page.NextPageToken)

	req, _ := api.last()
	q := req.URL.Query()
	assert.Equal(t, "2026-01-01T00:00:00Z", q.Get("timeMin"))
	assert.Equal(t, "2026-01-02T00:00:00Z", q.Get("timeMax"))
	assert.Equal(t, "startTime", q.Get("orderBy"))
	assert.Equal(t, "p1", q.Get("pageToken"))
	assert.Equal(t, "2500", q.Get("maxResults"), "unset page size uses the maximum")
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reason string
		want   error
	}{
		{"gone", http.StatusGone, "fullSyncRequired", domain.ErrCursorInvalid},
		{"unauthorised", http.StatusUnauthorized, "authError", domain.ErrAuthExpired},
		{"forbidden", http.StatusForbidden, "forbidden", domain.ErrPermissionDenied},
		{"rate limit reason", http.StatusForbidden, "userRateLimitExceeded", domain.ErrRateLimited},
		{"not found", http.StatusNotFound, "notFound", domain.ErrNotFound},
		{"too many", http.StatusTooManyRequests, "rateLimitExceeded", domain.ErrRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				apiError(w, tt.status, tt.reason)
			})
			_, err := client.ListEvents(context.Background(), "primary", domain.EventQuery{SyncToken: "t"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_RateLimitFeedsLimiter(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "30")
		apiError(w, http.StatusTooManyRequests, "rateLimitExceeded")
	})
	client.limiter = google.NewRateLimiter(google.RateLimitConfig{RequestsPerSecond: 100, BurstSize: 10})

	_, err := client.ListEvents(context.Background(), "primary", domain.EventQuery{})
	require.ErrorIs(t, err, domain.ErrRateLimited)
	assert.False(t, client.limiter.Allow(), "limiter backs off after a 429")
}

func TestClient_ListCalendars(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(w, http.StatusOK, map[string]any{
				"nextPageToken": "next",
				"items":         []map[string]any{{"id": "me@example.com", "summary": "Me", "primary": true}},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": []map[string]any{{"id": "team@example.com", "summary": "Team"}},
		})
	})

	cals, err := client.ListCalendars(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Calendar{
		{ID: "me@example.com", Summary: "Me", Primary: true},
		{ID: "team@example.com", Summary: "Team"},
	}, cals)

	client.config = &Config{CalendarIDs: []string{"team@example.com"}, MaxResults: 2500}
	cals, err = client.ListCalendars(context.Background())
	require.NoError(t, err)
	require.Len(t, cals, 1)
	assert.Equal(t, "team@example.com", cals[0].ID)
}

func TestClient_Watch(t *testing.T) {
	expires := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
	client, api := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":          "ch-1",
			"resourceId":  "res-1",
			"resourceUri": "https://www.googleapis.com/calendar/v3/calendars/primary/events",
			"expiration":  expires.UnixMilli(),
		})
	})

	resp, err := client.Watch(context.Background(), "primary", driven.WatchRequest{
		ChannelID: "ch-1",
		Address:   "https://hooks.example.com/webhooks/google/u1/ch-1",
		Token:     "secret",
		TTL:       7 * 24 * time.Hour,
	})
	require.NoError(t, err)
	assert.Equal(t, "res-1", resp.ResourceID)
	assert.Equal(t, expires, resp.Expiration)

	req, body := api.last()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/calendars/primary/events/watch", req.URL.Path)

	var sent calendar.Channel
	require.NoError(t, json.Unmarshal([]byte(body), &sent))
	assert.Equal(t, "web_hook", sent.Type)
	assert.Equal(t, "secret", sent.Token)
	assert.Equal(t, "604800", sent.Params["ttl"])
}

func TestClient_StopChannel(t *testing.T) {
	client, api := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.StopChannel(context.Background(), "ch-1", "res-1"))

	req, body := api.last()
	assert.Equal(t, "/channels/stop", req.URL.Path)
	assert.Contains(t, body, `"resourceId":"res-1"`)
}

func TestClient_StopChannel_NotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		apiError(w, http.StatusNotFound, "notFound")
	})

	err := client.StopChannel(context.Background(), "ch-1", "res-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestParseCalendarIDs(t *testing.T) {
	assert.Nil(t, ParseCalendarIDs("  "))
	assert.Equal(t, []string{"a", "b"}, ParseCalendarIDs(" a, ,b "))
}
