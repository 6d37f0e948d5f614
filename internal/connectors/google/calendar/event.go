package calendar

import (
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/custodia-labs/calsync/internal/core/domain"
)

// EventToSnapshot converts a Google Calendar event to a domain snapshot.
func EventToSnapshot(event *calendar.Event, calendarID string) domain.EventSnapshot {
	return domain.EventSnapshot{
		ID:               event.Id,
		CalendarID:       calendarID,
		Status:           event.Status,
		Summary:          event.Summary,
		Description:      event.Description,
		Location:         event.Location,
		HTMLLink:         event.HtmlLink,
		RecurringEventID: event.RecurringEventId,
		Organizer:        getOrganiserEmail(event),
		Attendees:        attendeeNames(event.Attendees),
		Start:            eventTime(event.Start),
		End:              eventTime(event.End),
		Created:          parseTimestamp(event.Created),
		Updated:          parseTimestamp(event.Updated),
	}
}

// attendeeNames returns display names, falling back to email addresses.
func attendeeNames(attendees []*calendar.EventAttendee) []string {
	var names []string
	for _, a := range attendees {
		if a == nil {
			continue
		}
		if a.DisplayName != "" {
			names = append(names, a.DisplayName)
		} else if a.Email != "" {
			names = append(names, a.Email)
		}
	}
	return names
}

// eventTime extracts a start or end time.
func eventTime(t *calendar.EventDateTime) domain.EventTime {
	if t == nil {
		return domain.EventTime{}
	}
	if t.DateTime != "" {
		return domain.EventTime{DateTime: parseTimestamp(t.DateTime)}
	}
	return domain.EventTime{Date: t.Date}
}

// parseTimestamp parses an RFC 3339 timestamp, returning zero on failure.
// Cancelled events in incremental responses often carry no timestamps.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// getOrganiserEmail extracts the organiser email from an event.
func getOrganiserEmail(event *calendar.Event) string {
	if event.Organizer != nil { //nolint:misspell // Google API field name
		return event.Organizer.Email //nolint:misspell // Google API field name
	}
	return ""
}

// ShouldSyncEvent checks if an event should be synced.
func ShouldSyncEvent(event *calendar.Event) bool {
	return event != nil && event.Id != ""
}
