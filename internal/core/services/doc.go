// Package services implements the driving port interfaces.
// Services contain the sync engine and orchestrate calls to driven
// ports (adapters).
//
// The incremental path fetches changes with ChangeFetcher, classifies
// them with domain.ClassifyAll and applies them to the MemorySink under a
// Dispatcher key, so concurrent notifications for one channel collapse
// into a single run. FullSyncRunner is the fallback when a cursor is
// lost or a run fails.
//
// Services are pure Go with no CGO. Tracing and metrics go through the
// global OpenTelemetry providers.
package services
