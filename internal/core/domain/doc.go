// Package domain defines the core business entities for calsync.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - EventSnapshot: A calendar event as seen by the sync engine
//   - ChangeRecord: A classified change to apply downstream
//   - Connection: A user's calendar connection and its sync status
//   - WebhookChannel: A provider push subscription
//   - Memory: The content written to the memory vault
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
