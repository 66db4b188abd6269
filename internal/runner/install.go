package runner

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// install resolves the declared dependencies from the manifest. It sees the
// passthrough environment only, never the secrets.
func (ru *run) install(ctx context.Context) (bool, error) {
	in := ru.set.Install
	if strings.TrimSpace(in.Command) == "" {
		return true, nil
	}
	if in.Manifest != "" {
		p := ru.workDir(in.Manifest)
		if _, err := os.Stat(p); err != nil {
			return false, fmt.Errorf("%w: manifest: %w", ErrInstall, err)
		}
	}
	line, err := splitCommand(in.Command)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInstall, err)
	}
	if err := ru.exec(ctx, StepInstall, line, ru.srcDir, ru.secrets.BaseEnviron(), nil); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInstall, err)
	}
	return false, nil
}
