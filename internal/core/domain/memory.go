package domain

import "time"

// Memory is the content written to the memory vault for one event.
type Memory struct {
	// ExternalID is the stable upsert key (the event id).
	ExternalID string

	// CalendarID is the source calendar.
	CalendarID string

	Title   string
	Content string
	Tags    []string

	// OccurredAt is the event start, when known.
	OccurredAt time.Time

	// Metadata carries event fields for downstream filtering.
	Metadata map[string]string
}
