// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - CalendarClientProvider: Resolves an authenticated calendar client per user
//   - CalendarClient: Lists events and calendars, manages push channels
//   - MemorySink: Receives upserts and deletes for the memory vault
//   - SyncTokenStore: Per (user, calendar) cursor persistence
//   - ConnectionStore: Per-user connection status persistence
//   - ChannelStore: Push channel persistence
//   - CredentialsStore: Per-user OAuth token persistence
//   - SchedulerStore: Background task state persistence
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven
