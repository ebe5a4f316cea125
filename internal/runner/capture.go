// Package runner dispatches coordinator triggers to registered
// handlers and assembles execution telemetry, including captured
// process output and failure diagnostics.
package runner

import (
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
)

// captureMu serializes captured invocations. The process stdout and
// stderr are a single shared resource; concurrent captured handlers
// would corrupt each other's output, so at most one capture guard is
// held at a time per process.
var captureMu sync.Mutex

// cappedBuffer accumulates writes up to a byte limit and silently
// discards the rest, so a chatty handler cannot grow memory unbounded.
type cappedBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if remaining := b.max - len(b.buf); remaining > 0 {
		if len(p) > remaining {
			b.buf = append(b.buf, p[:remaining]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// interceptedStream is one redirected process stream.
type interceptedStream struct {
	orig *os.File
	pipe *os.File // write end installed in place of orig
	done chan struct{}
	buf  *cappedBuffer
}

// CaptureGuard scopes redirection of the process-wide stdout/stderr to
// one handler invocation. Output is mirrored: every write lands in the
// guard's buffer and is forwarded to the original stream, so nothing
// is hidden from the embedding process.
//
// Release must run on every exit path; the dispatcher holds it behind
// a defer so interception never outlives the invocation, even when the
// handler panics before its first yield.
type CaptureGuard struct {
	stdout *interceptedStream
	stderr *interceptedStream

	releaseOnce sync.Once
}

// AcquireCapture swaps os.Stdout and os.Stderr for tee pipes and
// blocks until any previous captured invocation has released. maxLen
// bounds each captured buffer.
func AcquireCapture(maxLen int) (*CaptureGuard, error) {
	captureMu.Lock()

	stdout, err := intercept(&os.Stdout, maxLen)
	if err != nil {
		captureMu.Unlock()
		return nil, err
	}
	stderr, err := intercept(&os.Stderr, maxLen)
	if err != nil {
		stdout.restore(&os.Stdout)
		captureMu.Unlock()
		return nil, err
	}

	return &CaptureGuard{stdout: stdout, stderr: stderr}, nil
}

// Release restores the original streams and finishes draining the
// pipes. Idempotent.
func (g *CaptureGuard) Release() {
	g.releaseOnce.Do(func() {
		g.stdout.restore(&os.Stdout)
		g.stderr.restore(&os.Stderr)
		captureMu.Unlock()
	})
}

// Stdout returns the captured standard output. Call after Release.
func (g *CaptureGuard) Stdout() string {
	return g.stdout.buf.String()
}

// Stderr returns the captured standard error. Call after Release.
func (g *CaptureGuard) Stderr() string {
	return g.stderr.buf.String()
}

func intercept(target **os.File, maxLen int) (*interceptedStream, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create capture pipe")
	}

	s := &interceptedStream{
		orig: *target,
		pipe: w,
		done: make(chan struct{}),
		// Keep slack beyond the report limit so truncation still
		// observes that output overflowed
		buf: &cappedBuffer{max: maxLen * 2},
	}
	*target = w

	go func() {
		defer close(s.done)
		// Tee: buffer locally, forward to the original stream
		io.Copy(io.MultiWriter(s.buf, s.orig), r)
		r.Close()
	}()

	return s, nil
}

func (s *interceptedStream) restore(target **os.File) {
	*target = s.orig
	s.pipe.Close()
	<-s.done
}
