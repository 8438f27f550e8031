package engine

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
)

// maxCommandOutput caps how much combined output is kept from a command.
const maxCommandOutput = 64 * 1024

// ExecRunner runs commands on the local machine with os/exec.
//
// The run's cancellation does not kill a command that has already
// started; only CommandSpec.Timeout does. Specs built from macro items
// always carry a timeout: an absent or zero timeout_ms becomes the
// configured maximum command time, so a command cannot outlive it.
type ExecRunner struct{}

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, spec CommandSpec) (CommandResult, error) {
	runCtx := context.WithoutCancel(ctx)
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, spec.Command, spec.Args...) //nolint:gosec // commands come from the macro author
	cmd.Dir = spec.Dir

	var out limitedBuffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	result := CommandResult{Output: strings.TrimRight(out.String(), "\n")}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return result, nil
	case runCtx.Err() != nil:
		return result, runCtx.Err()
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	default:
		return result, err
	}
}

// limitedBuffer keeps at most maxCommandOutput bytes and drops the rest.
type limitedBuffer struct {
	bytes.Buffer
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := maxCommandOutput - b.Len(); room > 0 {
		if len(p) > room {
			b.Buffer.Write(p[:room])
		} else {
			b.Buffer.Write(p)
		}
	}
	return len(p), nil
}
