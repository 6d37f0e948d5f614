package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/logger"
)

// ErrDispatcherClosed is returned for work offered after Shutdown.
var ErrDispatcherClosed = errors.New("dispatcher is shut down")

// Dispatcher runs at most one piece of work per processing key.
// A trigger arriving while its key is in flight is dropped, not queued.
type Dispatcher struct {
	mu       sync.Mutex
	inFlight map[domain.ProcessingKey]struct{}
	closed   bool
	wg       sync.WaitGroup

	metrics *instruments
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		inFlight: make(map[domain.ProcessingKey]struct{}),
		metrics:  newInstruments(),
	}
}

// Dispatch runs work in a new goroutine unless key is already in flight.
// It returns domain.ErrSyncInProgress for a dropped duplicate.
//
// The key is released when work returns or panics. work receives a context
// detached from ctx's cancellation so it outlives the request that
// triggered it.
func (d *Dispatcher) Dispatch(ctx context.Context, key domain.ProcessingKey, work func(context.Context)) error {
	if err := d.acquire(ctx, key); err != nil {
		return err
	}

	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer d.wg.Done()
		defer d.release(key)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("work for %s panicked: %v\n%s", key, r, debug.Stack())
			}
		}()
		work(runCtx)
	}()
	return nil
}

// Run executes work synchronously under key, with the same
// duplicate-dropping rule as Dispatch.
func (d *Dispatcher) Run(ctx context.Context, key domain.ProcessingKey, work func(context.Context) error) (err error) {
	if err := d.acquire(ctx, key); err != nil {
		return err
	}
	defer d.wg.Done()
	defer d.release(key)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("work for %s panicked: %v\n%s", key, r, debug.Stack())
			err = fmt.Errorf("work for %s panicked: %v", key, r)
		}
	}()
	return work(ctx)
}

// InFlight reports whether key is currently running.
func (d *Dispatcher) InFlight(key domain.ProcessingKey) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inFlight[key]
	return ok
}

// Keys returns the keys in flight for a user.
func (d *Dispatcher) Keys(userID string) []domain.ProcessingKey {
	d.mu.Lock()
	defer d.mu.Unlock()
	var keys []domain.ProcessingKey
	for k := range d.inFlight {
		if k.UserID == userID {
			keys = append(keys, k)
		}
	}
	return keys
}

// Len returns the number of keys in flight.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inFlight)
}

// Shutdown stops accepting work and waits for outstanding work to finish
// or ctx to be done.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// acquire is the atomic check-and-insert. The WaitGroup is incremented under
// the lock so Shutdown cannot miss work that was just accepted.
func (d *Dispatcher) acquire(ctx context.Context, key domain.ProcessingKey) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	if _, ok := d.inFlight[key]; ok {
		d.metrics.dropped.Add(ctx, 1)
		logger.Info("dropping duplicate trigger for %s: run already in flight", key)
		return domain.ErrSyncInProgress
	}
	d.inFlight[key] = struct{}{}
	d.wg.Add(1)
	return nil
}

func (d *Dispatcher) release(key domain.ProcessingKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, key)
}
