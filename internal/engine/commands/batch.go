package commands

import (
	"context"
	"fmt"

	"github.com/animus-labs/animus-flow/internal/domain"
)

// RunBatch runs cmds in order against exec. It stops after the first command
// that asks to halt or fails, and returns how many commands were run.
func RunBatch(ctx context.Context, deps *Deps, exec *domain.Execution, h Handler, cmds []Command) (int, error) {
	for i, cmd := range cmds {
		cont, err := cmd.Run(ctx, exec, h)
		deps.commandRun(cmd.Kind(), err, cont)
		if err != nil {
			return i + 1, fmt.Errorf("command %d (%s): %w", i, cmd.Kind(), err)
		}
		if !cont {
			return i + 1, nil
		}
	}
	return len(cmds), nil
}
