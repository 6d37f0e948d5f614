// Package vault writes calendar memories to the memory vault.
package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/core/ports/driven"
)

// Ensure Client implements the interface.
var _ driven.MemorySink = (*Client)(nil)

// ClientOptions configures the vault HTTP client.
type ClientOptions struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Client is the memory vault HTTP client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewClient creates a vault client. Retries default to 2 with delays
// between 200ms and 5s.
func NewClient(opts ClientOptions) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	} else if maxRetries == 0 {
		maxRetries = 2
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: httpClient,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

type memoryPayload struct {
	ExternalID string            `json:"external_id"`
	Source     string            `json:"source"`
	CalendarID string            `json:"calendar_id,omitempty"`
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	Tags       []string          `json:"tags,omitempty"`
	OccurredAt *time.Time        `json:"occurred_at,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Upsert writes a memory keyed by its external id.
func (c *Client) Upsert(ctx context.Context, userID string, memory domain.Memory) error {
	payload := memoryPayload{
		ExternalID: memory.ExternalID,
		Source:     "google_calendar",
		CalendarID: memory.CalendarID,
		Title:      memory.Title,
		Content:    memory.Content,
		Tags:       memory.Tags,
		Metadata:   memory.Metadata,
	}
	if !memory.OccurredAt.IsZero() {
		at := memory.OccurredAt.UTC()
		payload.OccurredAt = &at
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode memory: %w", err)
	}
	return c.do(ctx, http.MethodPut, c.memoryPath(userID, memory.ExternalID), body)
}

// Delete removes a memory. A memory that does not exist counts as deleted.
func (c *Client) Delete(ctx context.Context, userID, externalID string) error {
	err := c.do(ctx, http.MethodDelete, c.memoryPath(userID, externalID), nil)
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

func (c *Client) memoryPath(userID, externalID string) string {
	return c.baseURL + "/v1/users/" + url.PathEscape(userID) + "/memories/" + url.PathEscape(externalID)
}

// StatusError is a non-2xx vault response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("vault returned %d: %s", e.StatusCode, e.Body)
}

func isNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) error {
	for attempt := 0; ; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return fmt.Errorf("vault %s: %w", method, err)
		}

		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return nil
		}
		if shouldRetry(resp.StatusCode) && attempt < c.maxRetries {
			if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
}

func shouldRetry(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func (c *Client) retryDelay(attempt int, retryAfter string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs >= 0 {
		d := time.Duration(secs) * time.Second
		if d > c.maxDelay {
			return c.maxDelay
		}
		return d
	}
	d := c.baseDelay << (attempt - 1)
	if d > c.maxDelay || d <= 0 {
		return c.maxDelay
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
