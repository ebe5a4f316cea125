// Package queue holds pending execution events and drains them to the
// coordinator in bounded batches.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/fusionlabs-tech/chronos-synapse-sub001/internal/common"
	"github.com/fusionlabs-tech/chronos-synapse-sub001/pkg/models"
)

// Submitter transports one batch of execution events to the coordinator.
type Submitter interface {
	SubmitExecutions(ctx context.Context, executions []*models.ExecutionEvent) error
}

// Options configures a Flusher.
type Options struct {
	BatchSize     int           // Events per submission
	FlushInterval time.Duration // Periodic drain cadence while the queue is non-empty

	// AppVersion resolves the embedding application's version for
	// events that omit it. May be nil.
	AppVersion func() string

	// JobVersion resolves a job's registered version for events that
	// omit it. May be nil.
	JobVersion func(jobID string) string
}

// Flusher is an in-memory FIFO of execution events with a single-flight
// flush. Events are drained in batch-size chunks, either by the
// periodic timer or immediately once the queue reaches the batch size.
// The timer runs only while the queue is non-empty: it is started on
// the empty-to-non-empty transition and stopped when a flush leaves
// the queue empty, so an idle client holds no ticking resources.
//
// Nothing is persisted; a process restart loses unflushed entries.
type Flusher struct {
	submitter Submitter
	opts      Options
	logger    arbor.ILogger

	mu         sync.Mutex
	queue      []*models.ExecutionEvent
	isFlushing bool
	timerStop  chan struct{} // non-nil while the periodic timer runs
}

// NewFlusher creates a flusher. Batch size and interval fall back to
// the shared defaults when unset.
func NewFlusher(submitter Submitter, opts Options, logger arbor.ILogger) *Flusher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = common.DefaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = common.DefaultFlushInterval
	}
	return &Flusher{
		submitter: submitter,
		opts:      opts,
		logger:    logger,
	}
}

// Enqueue appends an event, filling omitted enrichment fields first:
// code language (generic default), app version (inference), and job
// version (registration cache). The caller must not touch the event
// afterwards; the flusher owns it exclusively.
func (f *Flusher) Enqueue(event *models.ExecutionEvent) {
	f.enrich(event)

	f.mu.Lock()
	f.queue = append(f.queue, event)
	f.startTimerLocked()
	full := len(f.queue) >= f.opts.BatchSize
	f.mu.Unlock()

	if full {
		// Out-of-band flush; the timer keeps running for the remainder
		common.SafeGo(f.logger, "flusher.batchFull", func() {
			if err := f.Flush(context.Background()); err != nil {
				f.logger.Warn().Err(err).Msg("Batch-size flush failed")
			}
		})
	}
}

// Flush drains up to one batch from the front of the queue and submits
// it. Single-flight: when a flush is already in progress, or the queue
// is empty, this is a no-op. A transport failure is returned to the
// caller; the drained events are not re-queued (telemetry delivery is
// best-effort and the transport already retried transient failures).
func (f *Flusher) Flush(ctx context.Context) error {
	f.mu.Lock()
	if f.isFlushing || len(f.queue) == 0 {
		f.mu.Unlock()
		return nil
	}
	n := f.opts.BatchSize
	if n > len(f.queue) {
		n = len(f.queue)
	}
	batch := f.queue[:n]
	f.queue = f.queue[n:]
	f.isFlushing = true
	f.mu.Unlock()

	err := f.submitter.SubmitExecutions(ctx, batch)

	f.mu.Lock()
	f.isFlushing = false
	if len(f.queue) == 0 {
		f.stopTimerLocked()
	}
	f.mu.Unlock()

	if err != nil {
		f.logger.Warn().
			Err(err).
			Int("events", len(batch)).
			Msg("Execution batch submission failed")
		return err
	}

	f.logger.Debug().
		Int("events", len(batch)).
		Msg("Execution batch submitted")
	return nil
}

// Pending returns the number of queued events.
func (f *Flusher) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// TimerRunning reports whether the periodic flush timer is active.
func (f *Flusher) TimerRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timerStop != nil
}

// Stop halts the periodic timer. Pending events stay queued and can
// still be drained with an explicit Flush.
func (f *Flusher) Stop() {
	f.mu.Lock()
	f.stopTimerLocked()
	f.mu.Unlock()
}

func (f *Flusher) enrich(event *models.ExecutionEvent) {
	if event.CodeLanguage == "" {
		event.CodeLanguage = common.DefaultLanguage
	}
	if event.AppVersion == "" && f.opts.AppVersion != nil {
		event.AppVersion = f.opts.AppVersion()
	}
	if event.JobVersion == "" && f.opts.JobVersion != nil {
		event.JobVersion = f.opts.JobVersion(event.JobID)
	}
}

// startTimerLocked starts the periodic flush timer if not already
// running. Caller holds f.mu.
func (f *Flusher) startTimerLocked() {
	if f.timerStop != nil {
		return
	}
	stop := make(chan struct{})
	f.timerStop = stop

	common.SafeGo(f.logger, "flusher.timer", func() {
		ticker := time.NewTicker(f.opts.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := f.Flush(context.Background()); err != nil {
					f.logger.Warn().Err(err).Msg("Periodic flush failed")
				}
			}
		}
	})
}

// stopTimerLocked stops the periodic flush timer. Caller holds f.mu.
func (f *Flusher) stopTimerLocked() {
	if f.timerStop == nil {
		return
	}
	close(f.timerStop)
	f.timerStop = nil
}
