package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// RunMode controls whether a job fires once or on a recurring schedule.
type RunMode string

// RunMode constants
const (
	RunModeOnce      RunMode = "once"
	RunModeRecurring RunMode = "recurring"
)

// IsValidRunMode checks if a given RunMode is one of the valid constants
func IsValidRunMode(mode RunMode) bool {
	switch mode {
	case RunModeOnce, RunModeRecurring:
		return true
	default:
		return false
	}
}

// JobSignature describes a job the client hosts. The coordinator owns
// scheduling; the signature only declares when the job wants to fire.
//
// The ID is caller-chosen and must be stable across process restarts so
// the coordinator can correlate executions with the same logical job.
type JobSignature struct {
	ID       string  `json:"id" toml:"id" yaml:"id"`                                  // Caller-chosen stable identifier
	Name     string  `json:"name" toml:"name" yaml:"name"`                            // Human-readable job name
	Schedule string  `json:"schedule" toml:"schedule" yaml:"schedule"`                // Cron expression (empty allowed for one-off jobs)
	RunMode  RunMode `json:"runMode" toml:"run_mode" yaml:"run_mode"`                 // "once" or "recurring"
	RunAt    string  `json:"runAt,omitempty" toml:"run_at" yaml:"run_at"`             // Explicit run time for one-off jobs (RFC 3339)
	Version  string  `json:"version,omitempty" toml:"version" yaml:"version"`         // Job version override (else inferred app version)
	OrgID    string  `json:"orgId,omitempty" toml:"org_id" yaml:"org_id"`             // Organization override
	AppID    string  `json:"appId,omitempty" toml:"app_id" yaml:"app_id"`             // Application override
	Timezone string  `json:"timezone,omitempty" toml:"timezone" yaml:"timezone"`      // IANA timezone for schedule evaluation
	Metadata Labels  `json:"metadata,omitempty" toml:"metadata" yaml:"metadata"`      // Free-form labels forwarded to the coordinator
	Enabled  *bool   `json:"enabled,omitempty" toml:"enabled" yaml:"enabled"`         // Nil means enabled
}

// Labels is a free-form string map attached to jobs and executions.
type Labels map[string]string

// scheduleParser accepts standard 5-field cron expressions
// (minute hour dom month dow).
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate validates the job signature.
// A recurring job must carry a schedule; a one-off job may omit the
// schedule when it carries an explicit run time instead.
func (j *JobSignature) Validate() error {
	if j.ID == "" {
		return errors.New("job id is required")
	}
	if j.Name == "" {
		return errors.New("job name is required")
	}
	if !IsValidRunMode(j.RunMode) {
		return fmt.Errorf("invalid run mode %q for job %s (must be one of: once, recurring)", j.RunMode, j.ID)
	}
	if j.RunMode == RunModeRecurring && j.Schedule == "" {
		return fmt.Errorf("recurring job %s requires a schedule", j.ID)
	}
	if j.Schedule != "" {
		if _, err := scheduleParser.Parse(j.Schedule); err != nil {
			return fmt.Errorf("invalid cron schedule %q for job %s: %w", j.Schedule, j.ID, err)
		}
	}
	if j.RunAt != "" {
		if _, err := time.Parse(time.RFC3339, j.RunAt); err != nil {
			return fmt.Errorf("invalid run time %q for job %s: %w", j.RunAt, j.ID, err)
		}
	}
	return nil
}

// IsEnabled returns true unless the signature explicitly disables the job.
func (j *JobSignature) IsEnabled() bool {
	return j.Enabled == nil || *j.Enabled
}

// Clone returns a copy of the signature with its own metadata map.
func (j *JobSignature) Clone() JobSignature {
	clone := *j
	if j.Metadata != nil {
		clone.Metadata = make(Labels, len(j.Metadata))
		for k, v := range j.Metadata {
			clone.Metadata[k] = v
		}
	}
	if j.Enabled != nil {
		enabled := *j.Enabled
		clone.Enabled = &enabled
	}
	return clone
}
