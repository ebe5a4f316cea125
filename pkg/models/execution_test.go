package models

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestNewExecutionEventID(t *testing.T) {
	startedAt := time.UnixMilli(1700000000000)
	event := NewExecutionEvent("daily", "trg_1", startedAt)

	if event.ID != "daily-1700000000000" {
		t.Errorf("unexpected execution id %q", event.ID)
	}
	if event.IsTerminal() {
		t.Error("fresh event should not be terminal")
	}
}

func TestExecutionEventComplete(t *testing.T) {
	startedAt := time.Now()
	event := NewExecutionEvent("daily", "trg_1", startedAt)
	event.Complete(ExecutionStatusFailed, startedAt.Add(1500*time.Millisecond), 1)

	if event.Status != ExecutionStatusFailed {
		t.Errorf("status = %q, want failed", event.Status)
	}
	if event.DurationMs != 1500 {
		t.Errorf("duration = %d, want 1500", event.DurationMs)
	}
	if event.ExitCode == nil || *event.ExitCode != 1 {
		t.Errorf("exit code = %v, want 1", event.ExitCode)
	}
	if !event.IsTerminal() {
		t.Error("completed event should be terminal")
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", 100)

	got := Truncate(long, 10)
	if got != strings.Repeat("x", 10)+"... [truncated]" {
		t.Errorf("unexpected truncation result %q", got)
	}
	if Truncate("short", 10) != "short" {
		t.Error("under-limit text should pass through unchanged")
	}
	if Truncate(long, 0) != long {
		t.Error("non-positive max should disable truncation")
	}
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	// Each rune is 3 bytes; a 10-byte cut lands mid-rune
	s := strings.Repeat("日", 5)

	got := Truncate(s, 10)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated text is not valid UTF-8: %q", got)
	}
	if got != strings.Repeat("日", 3)+"... [truncated]" {
		t.Errorf("unexpected rune-boundary truncation result %q", got)
	}

	// A cut already on a boundary is unaffected
	if Truncate(s, 9) != strings.Repeat("日", 3)+"... [truncated]" {
		t.Error("boundary-aligned cut should not back up further")
	}
}
