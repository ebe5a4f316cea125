package jobs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ternarybob/arbor"
)

// definitionExtensions are the file extensions scanned by LoadDir.
var definitionExtensions = map[string]bool{
	".toml": true,
	".yaml": true,
	".yml":  true,
}

// LoadDir loads every job definition file in dir, in name order. A
// missing directory is not an error; a file that fails to parse or
// validate is logged and skipped so one bad definition cannot block
// the rest. Disabled definitions are skipped silently.
func LoadDir(dir string, logger arbor.ILogger) ([]*Definition, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug().Str("dir", dir).Msg("Job definitions directory does not exist, skipping")
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read job definitions directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !definitionExtensions[filepath.Ext(entry.Name())] {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	defs := make([]*Definition, 0, len(names))
	seen := make(map[string]string) // job id -> file that claimed it
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn().Err(err).Str("file", name).Msg("Failed to read job definition file")
			continue
		}

		def, err := ParseDefinition(path, data)
		if err != nil {
			logger.Warn().Err(err).Str("file", name).Msg("Skipping invalid job definition")
			continue
		}

		if !def.Job.IsEnabled() {
			logger.Debug().Str("file", name).Str("job_id", def.Job.ID).Msg("Job definition disabled, skipping")
			continue
		}

		if prev, dup := seen[def.Job.ID]; dup {
			logger.Warn().
				Str("file", name).
				Str("job_id", def.Job.ID).
				Str("first_file", prev).
				Msg("Duplicate job id, keeping first definition")
			continue
		}
		seen[def.Job.ID] = name

		defs = append(defs, def)
		logger.Info().
			Str("file", name).
			Str("job_id", def.Job.ID).
			Str("schedule", def.Job.Schedule).
			Msg("Loaded job definition")
	}

	return defs, nil
}
