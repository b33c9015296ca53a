// Implements Repository using os/exec git commands.

package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ExecRepo implements Repository using os/exec git commands.
type ExecRepo struct {
	dir     string
	timeout time.Duration
}

func newExecRepo(ctx context.Context, dir string, timeout time.Duration) (*ExecRepo, error) {
	r := &ExecRepo{dir: dir, timeout: timeout}
	out, err := r.gitOutput(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return nil, fmt.Errorf("failed to open git work tree at %s: %w", dir, err)
	}
	if strings.TrimSpace(string(out)) != "true" {
		return nil, fmt.Errorf("%s is not inside a git work tree", dir)
	}
	return r, nil
}

// UntrackedFiles returns the untracked, non-ignored files.
func (r *ExecRepo) UntrackedFiles(ctx context.Context, pattern string) ([]string, error) {
	out, err := r.gitOutput(ctx, "ls-files", "-z", "--others", "--exclude-standard", "--", ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list untracked files: %w", err)
	}
	return filterChildren(splitNUL(out), pattern)
}

// IsAncestor reports whether ancestor is reachable from descendant.
func (r *ExecRepo) IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	err := r.gitRun(ctx, "merge-base", "--is-ancestor", ancestor, descendant)
	if err == nil {
		return true, nil
	}
	// Exit status 1 means "not an ancestor"; anything else is a failure.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("failed to check whether %s is an ancestor of %s: %w", ancestor, descendant, err)
}

// AddedFiles returns the files present in the work tree or index that do not
// exist at base.
func (r *ExecRepo) AddedFiles(ctx context.Context, base, pattern string) ([]string, error) {
	out, err := r.gitOutput(ctx, "diff", "-z", "--name-only", "--diff-filter=A", "--relative", base, "--", ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list files added since %s: %w", base, err)
	}
	return filterChildren(splitNUL(out), pattern)
}

// gitCmd creates an exec.Cmd for git running in the repository directory.
func (r *ExecRepo) gitCmd(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir
	return cmd
}

// gitRun executes a git command with the repository timeout.
func (r *ExecRepo) gitRun(ctx context.Context, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.gitCmd(ctx, args...).Run()
}

// gitOutput executes a git command and returns its stdout.
func (r *ExecRepo) gitOutput(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.gitCmd(ctx, args...).Output()
}

func splitNUL(out []byte) []string {
	var names []string
	for name := range bytes.SplitSeq(out, []byte{0}) {
		if len(name) != 0 {
			names = append(names, string(name))
		}
	}
	return names
}
