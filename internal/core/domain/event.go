package domain

import "time"

// EventStatusCancelled is the provider status of a deleted event.
const EventStatusCancelled = "cancelled"

// EventTime is the start or end of an event.
// All-day events carry Date; timed events carry DateTime.
type EventTime struct {
	// DateTime is the instant for timed events.
	DateTime time.Time

	// Date is the calendar date (yyyy-mm-dd) for all-day events.
	Date string
}

// String returns the RFC 3339 instant or the all-day date.
func (t EventTime) String() string {
	if !t.DateTime.IsZero() {
		return t.DateTime.Format(time.RFC3339)
	}
	return t.Date
}

// IsZero returns true if neither field is set.
func (t EventTime) IsZero() bool {
	return t.DateTime.IsZero() && t.Date == ""
}

// EventSnapshot is a calendar event as fetched from the provider.
// The sync engine fans it out and does not interpret it beyond
// the status and timestamp fields.
type EventSnapshot struct {
	// ID is the provider's stable event identifier.
	ID string

	// CalendarID is the calendar the event was fetched from.
	CalendarID string

	// Status is the provider status (confirmed, tentative, cancelled).
	Status string

	Summary     string
	Description string
	Location    string
	HTMLLink    string

	// RecurringEventID links an expanded instance to its series.
	RecurringEventID string

	// Organizer is the organiser's email address.
	Organizer string

	// Attendees holds display names, falling back to email addresses.
	Attendees []string

	Start EventTime
	End   EventTime

	// Created is when the event was created upstream.
	Created time.Time

	// Updated is when the event was last modified upstream.
	Updated time.Time
}

// IsCancelled returns true if the provider marked the event deleted.
func (e *EventSnapshot) IsCancelled() bool {
	return e.Status == EventStatusCancelled
}

// ChangeType represents the type of event change.
type ChangeType int

const (
	// ChangeCreated indicates a new event.
	ChangeCreated ChangeType = iota

	// ChangeUpdated indicates a modified event.
	ChangeUpdated

	// ChangeDeleted indicates a removed event.
	ChangeDeleted
)

// String returns the lowercase change name.
func (c ChangeType) String() string {
	switch c {
	case ChangeCreated:
		return "created"
	case ChangeUpdated:
		return "updated"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// ChangeRecord is a classified event change.
type ChangeRecord struct {
	// Event is the affected event.
	Event EventSnapshot

	// Type is the kind of change.
	Type ChangeType
}

// Classify labels an event as created, updated or deleted.
//
// A cancelled event is always deleted. An event whose created and updated
// timestamps are identical is treated as new; anything else as updated.
// This is a heuristic: an event created and edited within the same clock
// tick cannot be told apart from a fresh one.
func Classify(event EventSnapshot) ChangeType {
	if event.IsCancelled() {
		return ChangeDeleted
	}
	if event.Created.Equal(event.Updated) {
		return ChangeCreated
	}
	return ChangeUpdated
}

// ClassifyAll classifies events in order.
func ClassifyAll(events []EventSnapshot) []ChangeRecord {
	records := make([]ChangeRecord, 0, len(events))
	for _, e := range events {
		records = append(records, ChangeRecord{Event: e, Type: Classify(e)})
	}
	return records
}

// Calendar is a calendar visible to a user.
type Calendar struct {
	ID      string
	Summary string
	Primary bool
}

// EventQuery describes an events.list request.
// SyncToken is mutually exclusive with TimeMin/TimeMax/OrderByStartTime.
type EventQuery struct {
	SyncToken        string
	TimeMin          time.Time
	TimeMax          time.Time
	ShowDeleted      bool
	SingleEvents     bool
	OrderByStartTime bool
	MaxResults       int64
	PageToken        string
}

// EventPage is one page of an events.list response.
type EventPage struct {
	Events []EventSnapshot

	// NextPageToken continues the listing; empty on the last page.
	NextPageToken string

	// NextSyncToken is issued on the last page only.
	NextSyncToken string
}
