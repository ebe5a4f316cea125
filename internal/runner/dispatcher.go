package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ternarybob/arbor"

	"github.com/fusionlabs-tech/chronos-synapse-sub001/pkg/models"
)

// Handler is a registered job handler. A non-nil error (or a panic)
// marks the execution failed; either way the failure is converted to
// telemetry and never propagated to the embedding process.
type Handler func(ctx context.Context) error

// Enqueuer receives completed execution events for batched reporting.
type Enqueuer interface {
	Enqueue(event *models.ExecutionEvent)
}

// Acker announces trigger completion to the coordinator. Best-effort.
type Acker interface {
	Ack(triggerID, jobID string)
}

// Options configures the dispatcher.
type Options struct {
	CaptureConsole  bool // Mirror process stdout/stderr during handler runs
	MaxOutputLength int  // Truncation limit for captured text and snippets
}

// Dispatcher owns the handler registry and converts inbound triggers
// into handler invocations and execution events.
type Dispatcher struct {
	opts     Options
	enqueuer Enqueuer
	acker    Acker
	logger   arbor.ILogger

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewDispatcher creates a dispatcher. acker may be nil.
func NewDispatcher(enqueuer Enqueuer, acker Acker, opts Options, logger arbor.ILogger) *Dispatcher {
	return &Dispatcher{
		opts:     opts,
		enqueuer: enqueuer,
		acker:    acker,
		logger:   logger,
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for a job id, replacing any previous one.
func (d *Dispatcher) Register(jobID string, handler Handler) {
	d.mu.Lock()
	d.handlers[jobID] = handler
	d.mu.Unlock()
	d.logger.Debug().Str("job_id", jobID).Msg("Job handler registered")
}

// JobIDs returns the registered job ids in stable order.
func (d *Dispatcher) JobIDs() []string {
	d.mu.RLock()
	ids := make([]string, 0, len(d.handlers))
	for id := range d.handlers {
		ids = append(ids, id)
	}
	d.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// invocationResult is the outcome of one handler invocation.
type invocationResult struct {
	err     error
	errType string
	stack   string
}

// Dispatch handles one inbound trigger: looks up the handler, runs it
// under output capture, builds the execution event, enqueues it, and
// acknowledges the trigger. Unknown job ids are ignored silently; the
// coordinator may fan a trigger out to clients that do not host the
// job.
func (d *Dispatcher) Dispatch(ctx context.Context, trigger models.TriggerEvent) {
	d.mu.RLock()
	handler, ok := d.handlers[trigger.JobID]
	d.mu.RUnlock()
	if !ok {
		d.logger.Debug().
			Str("job_id", trigger.JobID).
			Str("trigger_id", trigger.TriggerID).
			Msg("Trigger for unregistered job ignored")
		return
	}

	startedAt := time.Now()
	event := models.NewExecutionEvent(trigger.JobID, trigger.TriggerID, startedAt)

	var guard *CaptureGuard
	if d.opts.CaptureConsole {
		g, err := AcquireCapture(d.opts.MaxOutputLength)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Console capture unavailable for this invocation")
		} else {
			guard = g
		}
	}

	var result invocationResult
	func() {
		// Capture interception must never outlive a single invocation,
		// whatever the handler does
		defer func() {
			if guard != nil {
				guard.Release()
			}
		}()
		result = d.invoke(ctx, handler)
	}()

	var stdout, stderr string
	if guard != nil {
		stdout = guard.Stdout()
		stderr = guard.Stderr()
	}

	finishedAt := time.Now()
	if result.err == nil {
		event.Complete(models.ExecutionStatusSuccess, finishedAt, 0)
		if stdout != "" {
			event.Stdout = models.Truncate(stdout, d.opts.MaxOutputLength)
		}
	} else {
		event.Complete(models.ExecutionStatusFailed, finishedAt, 1)
		event.Error = result.err.Error()
		event.ErrorType = result.errType
		event.Stack = models.Truncate(result.stack, d.opts.MaxOutputLength)
		if stdout != "" {
			event.Stdout = models.Truncate(stdout, d.opts.MaxOutputLength)
		}

		combined := stderr
		if result.stack != "" {
			if combined != "" {
				combined += "\n"
			}
			combined += result.stack
		}
		event.Stderr = models.Truncate(combined, d.opts.MaxOutputLength)

		if frame, found := BestFrame(result.stack); found {
			if snippet, read := ReadSnippet(frame.Path, frame.Line, d.opts.MaxOutputLength); read {
				event.CodeSnippet = snippet.Code
				event.CodeLanguage = snippet.Language
			}
		}

		d.logger.Debug().
			Str("job_id", trigger.JobID).
			Str("error", event.Error).
			Msg("Job handler failed")
	}

	d.enqueuer.Enqueue(event)

	if d.acker != nil {
		d.acker.Ack(trigger.TriggerID, trigger.JobID)
	}
}

// invoke runs the handler with panic isolation. A panic is reported as
// a failed execution with the recovered stack; a returned error keeps
// whatever stack its chain carries (errors built with
// cockroachdb/errors print their frames via %+v).
func (d *Dispatcher) invoke(ctx context.Context, handler Handler) (result invocationResult) {
	defer func() {
		if r := recover(); r != nil {
			result.err = errors.Newf("panic: %v", r)
			result.errType = "panic"
			result.stack = string(debug.Stack())
		}
	}()

	if err := handler(ctx); err != nil {
		result.err = err
		result.errType = fmt.Sprintf("%T", err)
		result.stack = verboseError(err)
	}
	return result
}

// verboseError renders an error with any stack frames it carries.
func verboseError(err error) string {
	return fmt.Sprintf("%+v", err)
}
