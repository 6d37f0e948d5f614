package calendar

import (
	"strings"
)

// Config holds Google Calendar client configuration.
type Config struct {
	// CalendarIDs limits full syncs to specific calendars (optional).
	// If empty, every calendar the user can access is synced.
	CalendarIDs []string
	// MaxResults caps the page size for API requests.
	MaxResults int64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxResults: 2500,
	}
}

// ParseCalendarIDs splits a comma-separated calendar list.
func ParseCalendarIDs(val string) []string {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// clampPageSize keeps a requested page size inside what the API accepts.
func (c *Config) clampPageSize(n int64) int64 {
	if n <= 0 || (c.MaxResults > 0 && n > c.MaxResults) {
		return c.MaxResults
	}
	return n
}
