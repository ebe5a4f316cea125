package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBestFramePrefersApplicationCode(t *testing.T) {
	stack := strings.Join([]string{
		"goroutine 1 [running]:",
		"github.com/fusionlabs-tech/chronos-synapse/internal/runner.invoke(...)",
		"\t/home/ci/go/pkg/mod/github.com/fusionlabs-tech/chronos-synapse@v1.0.0/runner.go:42 +0x1b",
		"main.handler(...)",
		"\t/src/app/main.go:17 +0x2f",
	}, "\n")

	frame, ok := BestFrame(stack)
	require.True(t, ok)
	assert.Equal(t, "/src/app/main.go", frame.Path)
	assert.Equal(t, 17, frame.Line)
}

func TestBestFramePenalizesDependencyPaths(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		score int
	}{
		{"application code", "/src/app/main.go", 100},
		{"module cache", "/home/ci/go/pkg/mod/github.com/acme/lib@v1.2.3/lib.go", 50},
		{"vendor dir", "/src/app/vendor/github.com/acme/lib/lib.go", 50},
		{"node_modules", "/srv/app/node_modules/pkg/index.js", 50},
		{"own distribution", "/opt/app/fusionlabs-tech/chronos-synapse/client.go", 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, ok := BestFrame(fmt.Sprintf("at %s:10:5", tt.path))
			require.True(t, ok)
			assert.Equal(t, tt.score, frame.Score)
		})
	}
}

func TestBestFrameTieBreaksOnFirstOccurrence(t *testing.T) {
	stack := "at /src/app/first.go:10\nat /src/app/second.go:20"
	frame, ok := BestFrame(stack)
	require.True(t, ok)
	assert.Equal(t, "/src/app/first.go", frame.Path)
}

func TestBestFrameNormalizesFileURLs(t *testing.T) {
	frame, ok := BestFrame("at file:///src/app/main.go:33:7")
	require.True(t, ok)
	assert.Equal(t, "/src/app/main.go", frame.Path)
	assert.Equal(t, 33, frame.Line)
}

func TestBestFrameNoCandidates(t *testing.T) {
	_, ok := BestFrame("nothing that looks like a frame")
	assert.False(t, ok)
}

// writeNumberedFile creates a file of n lines, "line 1" .. "line n".
func writeNumberedFile(t *testing.T, n int) string {
	t.Helper()
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i+1)
	}
	path := filepath.Join(t.TempDir(), "source.go")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644))
	return path
}

func TestReadSnippetWindow(t *testing.T) {
	path := writeNumberedFile(t, 200)

	snippet, ok := ReadSnippet(path, 100, 0)
	require.True(t, ok)

	lines := strings.Split(snippet.Code, "\n")
	// 40 before + target + 80 after
	assert.Len(t, lines, 121)
	assert.Equal(t, "line 60", lines[0])
	assert.Equal(t, "line 180", lines[len(lines)-1])
	assert.Equal(t, "go", snippet.Language)
}

func TestReadSnippetClampsToFileBounds(t *testing.T) {
	path := writeNumberedFile(t, 50)

	snippet, ok := ReadSnippet(path, 5, 0)
	require.True(t, ok)

	lines := strings.Split(snippet.Code, "\n")
	assert.Equal(t, "line 1", lines[0])
	assert.Equal(t, "line 50", lines[len(lines)-1])
}

func TestReadSnippetTruncates(t *testing.T) {
	path := writeNumberedFile(t, 200)

	snippet, ok := ReadSnippet(path, 100, 50)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(snippet.Code, "... [truncated]"))
}

func TestReadSnippetOutOfRange(t *testing.T) {
	path := writeNumberedFile(t, 10)

	if _, ok := ReadSnippet(path, 99, 0); ok {
		t.Error("out-of-range line should not produce a snippet")
	}
	if _, ok := ReadSnippet(filepath.Join(t.TempDir(), "absent.go"), 1, 0); ok {
		t.Error("unreadable file should not produce a snippet")
	}
}
