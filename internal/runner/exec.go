package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/kballard/go-shellquote"

	logx "satrunner/pkg/logx"
)

// waitDelay bounds how long Wait blocks on output pipes after the process is gone.
const waitDelay = 5 * time.Second

// splitCommand parses a command line with POSIX shell quoting. No shell runs it.
func splitCommand(line string) ([]string, error) {
	argv, err := shellquote.Split(line)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", line, err)
	}
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	return argv, nil
}

// exec runs argv to completion. Output is logged line by line with secret
// values masked; capture, when set, also receives stdout and stderr.
// Cancelling ctx kills the whole process group.
func (ru *run) exec(ctx context.Context, step Step, argv []string, dir string, env []string, capture io.Writer) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	log := ru.log.With(logx.String("step", string(step)))
	stdout := logx.NewLineWriter(log, logx.LevelInfo, "stdout")
	stderr := logx.NewLineWriter(log, logx.LevelWarn, "stderr")
	stdout.Filter = ru.masker.Mask
	stderr.Filter = ru.masker.Mask
	stdout.Hold = ru.masker.MaxLen() - 1
	stderr.Hold = stdout.Hold
	cmd.Stdout, cmd.Stderr = stdout, stderr
	if capture != nil {
		cmd.Stdout = io.MultiWriter(stdout, capture)
		cmd.Stderr = io.MultiWriter(stderr, capture)
	}

	log.Debug("exec", logx.String("argv0", argv[0]), logx.Int("args", len(argv)-1), logx.String("dir", dir))
	err := cmd.Run()
	stdout.Flush()
	stderr.Flush()
	if err == nil {
		return nil
	}

	var xe *exec.ExitError
	if errors.As(err, &xe) {
		if cerr := ctx.Err(); cerr != nil {
			return &ExitError{Step: step, Code: xe.ExitCode(), Err: cerr}
		}
		return &ExitError{Step: step, Code: xe.ExitCode(), Err: err}
	}
	return fmt.Errorf("start %s: %w", argv[0], err)
}
