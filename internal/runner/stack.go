package runner

import (
	"os"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/fusionlabs-tech/chronos-synapse-sub001/internal/common"
	"github.com/fusionlabs-tech/chronos-synapse-sub001/pkg/models"
)

const (
	// snippetLinesBefore / snippetLinesAfter bound the source window
	// extracted around a failing line.
	snippetLinesBefore = 40
	snippetLinesAfter  = 80

	frameBaseScore       = 100
	dependencyPenalty    = 50
	ownDistributionScore = 40
)

// dependencyMarkers identify frames inside third-party or toolchain
// code rather than the caller's application.
var dependencyMarkers = []string{
	"/go/pkg/mod/",
	"\\go\\pkg\\mod\\",
	"/vendor/",
	"node_modules",
}

// ownDistributionMarkers identify frames inside this client's own
// installed distribution.
var ownDistributionMarkers = []string{
	"fusionlabs-tech/chronos-synapse",
	"fusionlabs-tech\\chronos-synapse",
}

// framePattern matches "path:line" and "path:line:column" candidates.
// Covers both Go panic traces ("\t/src/app/main.go:42 +0x1b") and
// foreign-style traces ("at /src/app/main.js:42:13").
var framePattern = regexp.MustCompile(`((?:[A-Za-z]:)?[\w@~./\\-]+\.[A-Za-z0-9_]+):(\d+)(?::(\d+))?`)

// Frame is one scored stack-frame candidate.
type Frame struct {
	Path  string
	Line  int
	Score int
}

// BestFrame parses a stack trace and picks the most plausible
// application-code frame: every "file:line[:col]" candidate starts at
// 100, loses 50 for dependency-directory paths and 40 for frames
// inside this client's own distribution. The highest score wins; ties
// break on first occurrence. ok is false when nothing parses.
func BestFrame(stack string) (best Frame, ok bool) {
	goroot := runtime.GOROOT()
	for _, line := range strings.Split(stack, "\n") {
		// Normalize file:// URLs to plain paths before matching
		line = strings.ReplaceAll(line, "file://", "")
		m := framePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		path := m[1]
		lineNo, err := strconv.Atoi(m[2])
		if err != nil || lineNo <= 0 {
			continue
		}

		frame := Frame{Path: path, Line: lineNo, Score: frameBaseScore}
		if isDependencyPath(path, goroot) {
			frame.Score -= dependencyPenalty
		}
		if isOwnDistribution(path) {
			frame.Score -= ownDistributionScore
		}

		if !ok || frame.Score > best.Score {
			best = frame
			ok = true
		}
	}
	return best, ok
}

func isDependencyPath(path, goroot string) bool {
	for _, marker := range dependencyMarkers {
		if strings.Contains(path, marker) {
			return true
		}
	}
	// Toolchain frames count as dependency code too
	return goroot != "" && strings.HasPrefix(path, goroot)
}

func isOwnDistribution(path string) bool {
	for _, marker := range ownDistributionMarkers {
		if strings.Contains(path, marker) {
			return true
		}
	}
	return false
}

// Snippet is a bounded source window with an inferred language.
type Snippet struct {
	Code     string
	Language string
}

// ReadSnippet reads a window of snippetLinesBefore lines before and
// snippetLinesAfter lines after the target line, clamped to the file
// bounds, and truncates the joined text to maxLen. Returns ok=false
// when the file cannot be read or the line is out of range.
func ReadSnippet(path string, line, maxLen int) (Snippet, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snippet{}, false
	}

	lines := strings.Split(string(data), "\n")
	if line < 1 || line > len(lines) {
		return Snippet{}, false
	}

	start := line - 1 - snippetLinesBefore
	if start < 0 {
		start = 0
	}
	end := line - 1 + snippetLinesAfter
	if end > len(lines)-1 {
		end = len(lines) - 1
	}

	return Snippet{
		Code:     models.Truncate(strings.Join(lines[start:end+1], "\n"), maxLen),
		Language: common.LanguageFromPath(path),
	}, true
}
