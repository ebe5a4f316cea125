package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
)

// Version information (set via -ldflags during build)
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the current version string
func GetVersion() string {
	return Version
}

// GetFullVersion returns version with build info
func GetFullVersion() string {
	return fmt.Sprintf("%s (build: %s, commit: %s)", Version, Build, GitCommit)
}

// LoadVersionFromFile reads version from .version file if it exists
func LoadVersionFromFile() string {
	exePath, err := os.Executable()
	if err != nil {
		return Version
	}

	versionFile := filepath.Join(filepath.Dir(exePath), ".version")
	data, err := os.ReadFile(versionFile)
	if err != nil {
		return Version
	}

	version := strings.TrimSpace(string(data))
	if version != "" {
		Version = version
	}

	return Version
}

// VersionResolver lazily determines the embedding application's
// version. Resolution order: explicit value, SYNAPSE_APP_VERSION,
// ldflags Version, .version file beside the executable, the main
// module version from build info. Computed once per resolver so tests
// don't leak state through a process-wide cache.
type VersionResolver struct {
	explicit string

	once     sync.Once
	resolved string
}

// NewVersionResolver creates a resolver. explicit may be empty.
func NewVersionResolver(explicit string) *VersionResolver {
	return &VersionResolver{explicit: explicit}
}

// AppVersion returns the resolved application version, or "" when
// nothing could be determined.
func (r *VersionResolver) AppVersion() string {
	r.once.Do(func() {
		r.resolved = r.resolve()
	})
	return r.resolved
}

func (r *VersionResolver) resolve() string {
	if r.explicit != "" {
		return r.explicit
	}
	if v := os.Getenv("SYNAPSE_APP_VERSION"); v != "" {
		return v
	}
	if Version != "" && Version != "dev" {
		return Version
	}
	if v := LoadVersionFromFile(); v != "" && v != "dev" {
		return v
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return ""
}
