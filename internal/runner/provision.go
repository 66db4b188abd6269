package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"

	logx "satrunner/pkg/logx"
)

var errNoVersion = errors.New("no version found in output")

var (
	reVersion  = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)
	reMajMinor = regexp.MustCompile(`^\d+\.\d+$`)
)

// provision checks the configured runtime is present at the pinned version.
// "3.11" pins major.minor (any 3.11.x); anything else is a semver constraint.
func (ru *run) provision(ctx context.Context) (bool, error) {
	rt := ru.set.Runtime
	if strings.TrimSpace(rt.Command) == "" {
		return true, nil
	}

	constraint, err := versionConstraint(rt.Version)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrProvision, err)
	}

	args := rt.VersionArgs
	if len(args) == 0 {
		args = []string{"--version"}
	}
	var out bytes.Buffer
	line := append([]string{rt.Command}, args...)
	if err := ru.exec(ctx, StepProvision, line, ru.srcDir, ru.secrets.BaseEnviron(), &limitedBuffer{buf: &out, max: 4096}); err != nil {
		return false, fmt.Errorf("%w: %w", ErrProvision, err)
	}

	found, err := parseVersion(out.String())
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrProvision, rt.Command, err)
	}
	ru.res.RuntimeVersion = found.String()
	if !constraint.Check(found) {
		return false, fmt.Errorf("%w: %s is %s, want %s", ErrProvision, rt.Command, found, rt.Version)
	}
	ru.log.Info("runtime ready", logx.String("command", rt.Command), logx.String("version", found.String()), logx.String("want", rt.Version))
	return false, nil
}

func versionConstraint(pin string) (*semver.Constraints, error) {
	pin = strings.TrimSpace(pin)
	if reMajMinor.MatchString(pin) {
		pin = "~" + pin
	}
	c, err := semver.NewConstraint(pin)
	if err != nil {
		return nil, fmt.Errorf("invalid runtime version %q: %w", pin, err)
	}
	return c, nil
}

// parseVersion finds the first dotted version in output like "Python 3.11.4".
func parseVersion(out string) (*semver.Version, error) {
	m := reVersion.FindString(out)
	if m == "" {
		return nil, errNoVersion
	}
	return semver.NewVersion(m)
}

// limitedBuffer keeps the first max bytes and discards the rest.
// stdout and stderr copy into it from separate goroutines.
type limitedBuffer struct {
	mu  sync.Mutex
	buf *bytes.Buffer
	max int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if room := l.max - l.buf.Len(); room > 0 {
		l.buf.Write(p[:min(room, len(p))])
	}
	return len(p), nil
}
