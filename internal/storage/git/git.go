// Defines the Repository interface and backend selection for the git oracle.

package git

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

// Repository answers the few questions a directory database asks git about
// its shards. A Repository is bound to one directory inside a work tree;
// every returned name is a direct child of that directory matching the
// requested path.Match pattern.
type Repository interface {
	// UntrackedFiles returns the untracked, non-ignored files.
	UntrackedFiles(ctx context.Context, pattern string) ([]string, error)
	// IsAncestor reports whether ancestor is reachable from descendant.
	IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error)
	// AddedFiles returns the files present in the work tree or index that do
	// not exist at the base revision.
	AddedFiles(ctx context.Context, base, pattern string) ([]string, error)
}

// Backend selects which git implementation to use.
type Backend int

const (
	// BackendExec uses the git CLI via os/exec (default).
	BackendExec Backend = iota
	// BackendGoGit uses go-git (pure Go, no git binary needed).
	BackendGoGit
	// BackendNone disables git. Directory databases always start new shards.
	BackendNone
)

// ParseBackend parses "exec", "gogit" or "none".
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "exec", "":
		return BackendExec, nil
	case "gogit":
		return BackendGoGit, nil
	case "none":
		return BackendNone, nil
	default:
		return 0, fmt.Errorf("unknown git backend %q, want exec, gogit or none", s)
	}
}

func (b Backend) String() string {
	switch b {
	case BackendExec:
		return "exec"
	case BackendGoGit:
		return "gogit"
	case BackendNone:
		return "none"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

// DefaultTimeout bounds each git operation when no timeout is given.
const DefaultTimeout = time.Minute

// Open returns a Repository for dir with the given backend. It returns a nil
// Repository for BackendNone. timeout <= 0 selects DefaultTimeout.
func Open(ctx context.Context, dir string, backend Backend, timeout time.Duration) (Repository, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	switch backend {
	case BackendNone:
		return nil, nil
	case BackendGoGit:
		return newGoGitRepo(ctx, dir)
	case BackendExec:
		return newExecRepo(ctx, dir, timeout)
	default:
		return nil, fmt.Errorf("unknown git backend %s", backend)
	}
}

// filterChildren keeps the names that are direct children of the directory
// (no separator) and match pattern. Names use forward slashes.
func filterChildren(names []string, pattern string) ([]string, error) {
	var out []string
	for _, name := range names {
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		ok, err := path.Match(pattern, name)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if ok {
			out = append(out, name)
		}
	}
	return out, nil
}
