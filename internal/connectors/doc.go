// Package connectors holds the calendar provider integrations.
//
// Each provider lives in its own subpackage and implements the driven
// CalendarClient port. Google Calendar is the only provider today.
package connectors
