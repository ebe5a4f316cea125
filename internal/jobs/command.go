package jobs

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/cockroachdb/errors"

	"github.com/fusionlabs-tech/chronos-synapse-sub001/pkg/synapse"
)

// Handler builds the synapse handler for this definition. The command
// writes to the process streams, so whatever the client's console
// capture sees is exactly what the command printed.
func (d *Definition) Handler() synapse.Handler {
	run := d.Run
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, run.Timeout())
		defer cancel()

		cmd := exec.CommandContext(ctx, run.Command, run.Args...)
		cmd.Dir = run.Dir
		// os.Stdout/os.Stderr are read here, inside the invocation, so
		// the command inherits the capture redirection when enabled
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		cmd.Env = os.Environ()
		for k, v := range run.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}

		if err := cmd.Run(); err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return errors.Wrapf(err, "command %s timed out after %s", run.Command, run.Timeout())
			}
			return errors.Wrapf(err, "command %s failed", run.Command)
		}
		return nil
	}
}
