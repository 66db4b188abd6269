package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	logx "satrunner/pkg/logx"
)

var reUnsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// checkout gives the Run a clean copy of the source at the pinned revision.
// Without a repo the configured directory is used in place.
func (ru *run) checkout(ctx context.Context) (bool, error) {
	src := ru.set.Source
	if strings.TrimSpace(src.Repo) == "" {
		dir := src.Dir
		if dir == "" {
			dir = "."
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return false, fmt.Errorf("%w: %w", ErrCheckout, err)
		}
		st, err := os.Stat(abs)
		if err != nil {
			return false, fmt.Errorf("%w: %w", ErrCheckout, err)
		}
		if !st.IsDir() {
			return false, fmt.Errorf("%w: %s is not a directory", ErrCheckout, abs)
		}
		ru.srcDir = abs
		ru.res.Revision = headRevision(abs)
		return true, nil
	}

	root := ru.set.WorkRoot
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return false, fmt.Errorf("%w: work root: %w", ErrCheckout, err)
	}
	name := reUnsafeName.ReplaceAllString(ru.set.Task, "_")
	if name == "" {
		name = "run"
	}
	ws, err := os.MkdirTemp(root, name+"-*")
	if err != nil {
		return false, fmt.Errorf("%w: workspace: %w", ErrCheckout, err)
	}
	ru.workspace = ws

	ru.log.Info("cloning source", logx.String("repo", redactURL(src.Repo)), logx.String("revision", src.Revision), logx.String("dir", ws))
	repo, err := git.PlainCloneContext(ctx, ws, false, &git.CloneOptions{URL: src.Repo})
	if err != nil {
		return false, fmt.Errorf("%w: clone: %w", ErrCheckout, err)
	}

	hash, err := resolveRevision(repo, src.Revision)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrCheckout, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrCheckout, err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return false, fmt.Errorf("%w: checkout %s: %w", ErrCheckout, hash, err)
	}

	ru.srcDir = ws
	if src.Dir != "" {
		ru.srcDir = filepath.Join(ws, src.Dir)
	}
	ru.res.Revision = hash.String()
	return false, nil
}

// resolveRevision accepts a full or short hash, tag, local branch, or remote
// branch name. Empty means HEAD.
func resolveRevision(repo *git.Repository, rev string) (plumbing.Hash, error) {
	rev = strings.TrimSpace(rev)
	if rev == "" {
		ref, err := repo.Head()
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("resolve HEAD: %w", err)
		}
		return ref.Hash(), nil
	}

	candidates := []string{rev, "origin/" + rev, "refs/tags/" + rev}
	var firstErr error
	for _, c := range candidates {
		h, err := repo.ResolveRevision(plumbing.Revision(c))
		if err == nil {
			return *h, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return plumbing.ZeroHash, fmt.Errorf("resolve revision %q: %w", rev, firstErr)
}

// headRevision reports the commit of a local working copy, or "" when dir isn't a repo.
func headRevision(dir string) string {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	ref, err := repo.Head()
	if err != nil {
		return ""
	}
	return ref.Hash().String()
}

// redactURL drops userinfo so tokens embedded in clone URLs never reach logs.
func redactURL(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		if slash := strings.Index(rest, "/"); slash < 0 || at < slash {
			return scheme + "://***@" + rest[at+1:]
		}
	}
	return raw
}
