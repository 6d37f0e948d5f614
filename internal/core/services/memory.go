package services

import (
	"strings"

	"github.com/custodia-labs/calsync/internal/core/domain"
)

// MemoryFromEvent builds the vault memory for an event.
// The memory is keyed by the event id so repeated upserts converge.
func MemoryFromEvent(event domain.EventSnapshot, change domain.ChangeType) domain.Memory {
	tags := []string{"calendar", "google-calendar"}
	if event.RecurringEventID != "" {
		tags = append(tags, "recurring")
	}
	if event.Start.Date != "" {
		tags = append(tags, "all-day")
	}

	meta := map[string]string{
		"event_id":    event.ID,
		"calendar_id": event.CalendarID,
		"status":      event.Status,
		"change":      change.String(),
		"start_time":  event.Start.String(),
		"end_time":    event.End.String(),
	}
	if event.Location != "" {
		meta["location"] = event.Location
	}
	if event.HTMLLink != "" {
		meta["html_link"] = event.HTMLLink
	}
	if event.Organizer != "" {
		meta["organiser"] = event.Organizer //nolint:misspell // British spelling used across metadata keys
	}
	if event.RecurringEventID != "" && event.RecurringEventID != event.ID {
		meta["recurring_event_id"] = event.RecurringEventID
	}

	title := event.Summary
	if title == "" {
		title = "(untitled event)"
	}

	return domain.Memory{
		ExternalID: event.ID,
		CalendarID: event.CalendarID,
		Title:      title,
		Content:    buildEventContent(event),
		Tags:       tags,
		OccurredAt: event.Start.DateTime,
		Metadata:   meta,
	}
}

// buildEventContent constructs the content string from event details.
func buildEventContent(event domain.EventSnapshot) string {
	var parts []string
	if event.Summary != "" {
		parts = append(parts, event.Summary)
	}
	if when := formatWhen(event); when != "" {
		parts = append(parts, "When: "+when)
	}
	if event.Description != "" {
		parts = append(parts, event.Description)
	}
	if event.Location != "" {
		parts = append(parts, "Location: "+event.Location)
	}
	if len(event.Attendees) > 0 {
		parts = append(parts, "Attendees: "+strings.Join(event.Attendees, ", "))
	}
	return strings.Join(parts, "\n\n")
}

func formatWhen(event domain.EventSnapshot) string {
	start, end := event.Start.String(), event.End.String()
	switch {
	case start == "":
		return ""
	case end == "" || end == start:
		return start
	default:
		return start + " - " + end
	}
}
