// Package jobs loads job definition files for the standalone runner
// binary and turns them into registered handlers that run shell
// commands.
package jobs

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/fusionlabs-tech/chronos-synapse-sub001/pkg/models"
)

// DefaultCommandTimeout bounds a command run when the definition does
// not set its own timeout.
const DefaultCommandTimeout = 10 * time.Minute

// CommandSpec describes the shell command a definition runs when its
// job is triggered.
type CommandSpec struct {
	Command        string            `toml:"command" yaml:"command"`                 // Program to execute; required
	Args           []string          `toml:"args" yaml:"args"`                       // Arguments passed verbatim
	Dir            string            `toml:"dir" yaml:"dir"`                         // Working directory (default: process cwd)
	Env            map[string]string `toml:"env" yaml:"env"`                         // Extra environment, appended to the process env
	TimeoutSeconds int               `toml:"timeout_seconds" yaml:"timeout_seconds"` // Kill the command after this long (default 10m)
}

// Timeout returns the effective command timeout.
func (c *CommandSpec) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultCommandTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Definition is one job definition file: a job signature plus the
// command to run.
type Definition struct {
	Job models.JobSignature `toml:"job" yaml:"job"`
	Run CommandSpec         `toml:"run" yaml:"run"`
}

// Validate checks the definition beyond signature validation: the
// command is mandatory, since a definition with nothing to run cannot
// be dispatched.
func (d *Definition) Validate() error {
	if err := d.Job.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(d.Run.Command) == "" {
		return fmt.Errorf("job %s has no command to run", d.Job.ID)
	}
	if d.Run.TimeoutSeconds < 0 {
		return fmt.Errorf("job %s has a negative timeout", d.Job.ID)
	}
	return nil
}

// ParseDefinition decodes one definition file body. The format is
// chosen by extension: .toml uses TOML, .yaml/.yml uses YAML.
func ParseDefinition(path string, data []byte) (*Definition, error) {
	var def Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("failed to parse definition %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("failed to parse definition %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported definition format %s", path)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}
