package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusionlabs-tech/chronos-synapse-sub001/internal/common"
	"github.com/fusionlabs-tech/chronos-synapse-sub001/pkg/models"
)

// fakeSubmitter records submitted batches; an optional gate blocks the
// submission until released so tests can hold a flush in flight.
type fakeSubmitter struct {
	mu      sync.Mutex
	batches [][]*models.ExecutionEvent
	gate    chan struct{}
	err     error
}

func (s *fakeSubmitter) SubmitExecutions(ctx context.Context, executions []*models.ExecutionEvent) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, executions)
	return s.err
}

func (s *fakeSubmitter) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func newEvent(jobID string) *models.ExecutionEvent {
	return models.NewExecutionEvent(jobID, "trg_1", time.Now())
}

func TestFlushDrainsOneBatch(t *testing.T) {
	submitter := &fakeSubmitter{}
	f := NewFlusher(submitter, Options{BatchSize: 2, FlushInterval: time.Hour}, common.GetLogger())

	f.Enqueue(newEvent("a"))
	require.NoError(t, f.Flush(context.Background()))

	require.Equal(t, 1, submitter.batchCount())
	assert.Len(t, submitter.batches[0], 1)
	assert.Equal(t, 0, f.Pending())
}

func TestFlushIsNoOpWhenEmpty(t *testing.T) {
	submitter := &fakeSubmitter{}
	f := NewFlusher(submitter, Options{BatchSize: 2, FlushInterval: time.Hour}, common.GetLogger())

	require.NoError(t, f.Flush(context.Background()))
	assert.Equal(t, 0, submitter.batchCount())
}

func TestFlushSingleFlight(t *testing.T) {
	submitter := &fakeSubmitter{gate: make(chan struct{})}
	f := NewFlusher(submitter, Options{BatchSize: 10, FlushInterval: time.Hour}, common.GetLogger())

	f.Enqueue(newEvent("a"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Flush(context.Background())
	}()

	// Wait until the first flush has drained the queue and is blocked
	// in the submitter
	require.Eventually(t, func() bool {
		return f.Pending() == 0
	}, time.Second, 5*time.Millisecond)

	f.Enqueue(newEvent("b"))
	require.NoError(t, f.Flush(context.Background()), "second flush must be a no-op while one is in flight")
	assert.Equal(t, 1, f.Pending(), "in-flight flush must not drain the new event")

	close(submitter.gate)
	<-done

	require.NoError(t, f.Flush(context.Background()))
	assert.Equal(t, 2, submitter.batchCount())
}

func TestEnqueueFlushesWhenBatchFull(t *testing.T) {
	submitter := &fakeSubmitter{}
	f := NewFlusher(submitter, Options{BatchSize: 2, FlushInterval: time.Hour}, common.GetLogger())

	f.Enqueue(newEvent("a"))
	assert.Equal(t, 0, submitter.batchCount())

	f.Enqueue(newEvent("b"))
	require.Eventually(t, func() bool {
		return submitter.batchCount() == 1
	}, time.Second, 5*time.Millisecond, "reaching the batch size must trigger a flush")
	assert.Len(t, submitter.batches[0], 2)
}

func TestTimerRunsOnlyWhileQueueNonEmpty(t *testing.T) {
	submitter := &fakeSubmitter{}
	f := NewFlusher(submitter, Options{BatchSize: 10, FlushInterval: time.Hour}, common.GetLogger())

	assert.False(t, f.TimerRunning(), "idle flusher must not tick")

	f.Enqueue(newEvent("a"))
	assert.True(t, f.TimerRunning())

	require.NoError(t, f.Flush(context.Background()))
	assert.False(t, f.TimerRunning(), "timer must stop once the queue drains")
}

func TestPeriodicFlush(t *testing.T) {
	submitter := &fakeSubmitter{}
	f := NewFlusher(submitter, Options{BatchSize: 10, FlushInterval: 20 * time.Millisecond}, common.GetLogger())
	defer f.Stop()

	f.Enqueue(newEvent("a"))
	require.Eventually(t, func() bool {
		return submitter.batchCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestEnqueueEnrichesEvents(t *testing.T) {
	submitter := &fakeSubmitter{}
	f := NewFlusher(submitter, Options{
		BatchSize:     10,
		FlushInterval: time.Hour,
		AppVersion:    func() string { return "1.2.3" },
		JobVersion: func(jobID string) string {
			if jobID == "daily" {
				return "4.5.6"
			}
			return ""
		},
	}, common.GetLogger())

	event := newEvent("daily")
	f.Enqueue(event)

	assert.Equal(t, common.DefaultLanguage, event.CodeLanguage)
	assert.Equal(t, "1.2.3", event.AppVersion)
	assert.Equal(t, "4.5.6", event.JobVersion)

	// Explicit values are never overwritten
	explicit := newEvent("daily")
	explicit.CodeLanguage = "go"
	explicit.AppVersion = "9.9.9"
	f.Enqueue(explicit)
	assert.Equal(t, "go", explicit.CodeLanguage)
	assert.Equal(t, "9.9.9", explicit.AppVersion)
}

func TestFlushErrorDoesNotRequeue(t *testing.T) {
	submitter := &fakeSubmitter{err: context.DeadlineExceeded}
	f := NewFlusher(submitter, Options{BatchSize: 10, FlushInterval: time.Hour}, common.GetLogger())

	f.Enqueue(newEvent("a"))
	require.Error(t, f.Flush(context.Background()))
	assert.Equal(t, 0, f.Pending(), "failed batches are dropped, not re-queued")
}
