//go:build !windows

package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusionlabs-tech/chronos-synapse-sub001/pkg/models"
)

func commandDefinition(spec CommandSpec) *Definition {
	return &Definition{
		Job: models.JobSignature{ID: "cmd", Name: "Command", RunMode: models.RunModeOnce},
		Run: spec,
	}
}

func TestCommandHandlerSuccess(t *testing.T) {
	def := commandDefinition(CommandSpec{Command: "true"})
	require.NoError(t, def.Handler()(context.Background()))
}

func TestCommandHandlerFailure(t *testing.T) {
	def := commandDefinition(CommandSpec{Command: "false"})
	err := def.Handler()(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command false failed")
}

func TestCommandHandlerTimeout(t *testing.T) {
	def := commandDefinition(CommandSpec{
		Command:        "sleep",
		Args:           []string{"5"},
		TimeoutSeconds: 1,
	})
	err := def.Handler()(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestCommandHandlerEnvAndDir(t *testing.T) {
	dir := t.TempDir()
	def := commandDefinition(CommandSpec{
		Command: "sh",
		Args:    []string{"-c", `test "$PWD" = "$EXPECTED_DIR"`},
		Dir:     dir,
		Env:     map[string]string{"EXPECTED_DIR": dir},
	})
	require.NoError(t, def.Handler()(context.Background()))
}
