package runner

import (
	"context"
	"fmt"
)

// invoke runs the one external executable with the declared secret environment
// as its environment. Its exit code becomes the Run result.
func (ru *run) invoke(ctx context.Context) (bool, error) {
	line, err := splitCommand(ru.set.Invoke.Command)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvoke, err)
	}
	if err := ru.exec(ctx, StepInvoke, line, ru.workDir(ru.set.Invoke.Dir), ru.secrets.Environ(), nil); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvoke, err)
	}
	return false, nil
}
