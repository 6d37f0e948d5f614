package domain

import (
	"net/url"
	"strings"
	"time"
)

// PrimaryCalendarID is the provider alias for a user's main calendar.
const PrimaryCalendarID = "primary"

// Resource states sent with push notifications.
const (
	// ResourceStateSync is the handshake sent when a channel is created.
	ResourceStateSync = "sync"

	// ResourceStateExists signals that the watched resource changed.
	ResourceStateExists = "exists"

	// ResourceStateNotExists signals that the watched resource was removed.
	ResourceStateNotExists = "not_exists"
)

// WebhookChannel is a push-notification subscription registered upstream.
type WebhookChannel struct {
	// ID is the channel id we generated at registration.
	ID string

	// UserID is the owning user. Their credentials revoke the channel.
	UserID string

	// CalendarID is the watched calendar.
	CalendarID string

	// ResourceID is the provider's id for the watched resource.
	ResourceID string

	// ResourceURI is the provider's locator for the watched resource.
	ResourceURI string

	// Token is echoed back on every notification.
	Token string

	// Expiration is when the provider stops delivering.
	Expiration time.Time

	// CreatedAt is when the channel was registered.
	CreatedAt time.Time
}

// Expired returns true if the channel has expired at now.
func (c *WebhookChannel) Expired(now time.Time) bool {
	return !c.Expiration.IsZero() && !now.Before(c.Expiration)
}

// Notification is a single webhook delivery.
type Notification struct {
	UserID            string
	ChannelID         string
	ResourceID        string
	ResourceURI       string
	ResourceState     string
	ChannelToken      string
	ChannelExpiration string
	MessageNumber     string
}

// Key returns the deduplication key for the notification.
func (n Notification) Key() ProcessingKey {
	return ProcessingKey{UserID: n.UserID, ChannelID: n.ChannelID}
}

// ProcessingKey identifies a unit of deduplication.
// At most one run per key may be in flight.
type ProcessingKey struct {
	UserID    string
	ChannelID string
}

// String returns "user:channel".
func (k ProcessingKey) String() string {
	return k.UserID + ":" + k.ChannelID
}

// FullSyncKey is the processing key for a user's full sync.
func FullSyncKey(userID string) ProcessingKey {
	return ProcessingKey{UserID: userID, ChannelID: "full-sync"}
}

// CalendarIDFromResourceURI extracts the calendar id from a provider resource
// locator such as https://www.googleapis.com/calendar/v3/calendars/{id}/events.
// Returns PrimaryCalendarID when no calendar segment is present.
func CalendarIDFromResourceURI(resourceURI string) string {
	path := resourceURI
	if u, err := url.Parse(resourceURI); err == nil && u.Path != "" {
		path = u.EscapedPath()
	}

	parts := strings.Split(path, "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] != "calendars" || parts[i+1] == "" {
			continue
		}
		id, err := url.PathUnescape(parts[i+1])
		if err != nil {
			return parts[i+1]
		}
		return id
	}
	return PrimaryCalendarID
}
