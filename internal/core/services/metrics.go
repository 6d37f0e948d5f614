package services

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/custodia-labs/calsync/internal/logger"
)

const (
	otelScope = "calsync/sync"

	spanSync     = "calsync.sync"
	spanFullSync = "calsync.fullsync"

	metricCreated       = "calsync.sync.records.created"
	metricUpdated       = "calsync.sync.records.updated"
	metricDeleted       = "calsync.sync.records.deleted"
	metricFailed        = "calsync.sync.records.failed"
	metricRuns          = "calsync.sync.runs"
	metricFailures      = "calsync.sync.failures"
	metricDropped       = "calsync.dispatch.dropped"
	metricFullSyncEvent = "calsync.fullsync.events.applied"
)

// instruments groups the tracer and counters shared by the sync services.
// Instruments resolve against the global providers, which are no-ops unless
// telemetry is configured.
type instruments struct {
	tracer   trace.Tracer
	created  metric.Int64Counter
	updated  metric.Int64Counter
	deleted  metric.Int64Counter
	failed   metric.Int64Counter
	runs     metric.Int64Counter
	failures metric.Int64Counter
	dropped  metric.Int64Counter
	fullSync metric.Int64Counter
}

func newInstruments() *instruments {
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter %s: %v", name, err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &instruments{
		tracer:   otel.Tracer(otelScope),
		created:  mustCounter(metricCreated, "Number of created events applied to the vault"),
		updated:  mustCounter(metricUpdated, "Number of updated events applied to the vault"),
		deleted:  mustCounter(metricDeleted, "Number of deleted events removed from the vault"),
		failed:   mustCounter(metricFailed, "Number of changes the vault rejected"),
		runs:     mustCounter(metricRuns, "Number of incremental sync runs"),
		failures: mustCounter(metricFailures, "Number of incremental sync runs that failed"),
		dropped:  mustCounter(metricDropped, "Number of triggers dropped as duplicates"),
		fullSync: mustCounter(metricFullSyncEvent, "Number of events applied by full sync"),
	}
}

func metricAttr(key, value string) metric.AddOption {
	return metric.WithAttributes(attribute.String(key, value))
}
