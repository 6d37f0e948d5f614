package driving

import "context"

// Scheduler runs channel renewal and the deferred full-sync sweep.
type Scheduler interface {
	// Start blocks until Stop is called or ctx is done.
	Start(ctx context.Context) error

	// Stop ends the loop and waits for running tasks.
	Stop() error
}
