// Implements Repository using go-git (pure Go, no git binary dependency).

package git

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GoGitRepo implements Repository using go-git (pure Go).
type GoGitRepo struct {
	dir    string
	prefix string // dir relative to the work tree root, slash terminated, or empty.
	repo   *gogit.Repository
}

func newGoGitRepo(_ context.Context, dir string) (*GoGitRepo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	repo, err := gogit.PlainOpenWithOptions(abs, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open git work tree at %s: %w", dir, err)
	}
	w, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	root := w.Filesystem.Root()
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("%s is outside the work tree %s", dir, root)
	}
	r := &GoGitRepo{dir: abs, repo: repo}
	if rel != "." {
		r.prefix = filepath.ToSlash(rel) + "/"
	}
	return r, nil
}

// UntrackedFiles returns the untracked, non-ignored files.
func (r *GoGitRepo) UntrackedFiles(_ context.Context, pattern string) ([]string, error) {
	w, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	status, err := w.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree status: %w", err)
	}
	var names []string
	for p, st := range status {
		if st.Worktree == gogit.Untracked {
			names = append(names, r.child(p))
		}
	}
	return filterChildren(names, pattern)
}

// IsAncestor reports whether ancestor is reachable from descendant.
func (r *GoGitRepo) IsAncestor(_ context.Context, ancestor, descendant string) (bool, error) {
	a, err := r.commit(ancestor)
	if err != nil {
		return false, err
	}
	d, err := r.commit(descendant)
	if err != nil {
		return false, err
	}
	ok, err := a.IsAncestor(d)
	if err != nil {
		return false, fmt.Errorf("failed to check whether %s is an ancestor of %s: %w", ancestor, descendant, err)
	}
	return ok, nil
}

// AddedFiles returns the files present in the work tree or index that do not
// exist at base.
func (r *GoGitRepo) AddedFiles(_ context.Context, base, pattern string) ([]string, error) {
	c, err := r.commit(base)
	if err != nil {
		return nil, err
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree of %s: %w", base, err)
	}
	idx, err := r.repo.Storer.Index()
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	var names []string
	for _, e := range idx.Entries {
		name := r.child(e.Name)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		if _, err := tree.File(e.Name); !errors.Is(err, object.ErrFileNotFound) {
			continue
		}
		// Deleted from the work tree since staging.
		if _, err := os.Stat(filepath.Join(r.dir, name)); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		names = append(names, name)
	}
	return filterChildren(names, pattern)
}

func (r *GoGitRepo) commit(rev string) (*object.Commit, error) {
	h, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", rev, err)
	}
	c, err := r.repo.CommitObject(*h)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit %s: %w", rev, err)
	}
	return c, nil
}

// child returns p relative to the repository directory, or "" when p is
// outside it.
func (r *GoGitRepo) child(p string) string {
	if !strings.HasPrefix(p, r.prefix) {
		return ""
	}
	return p[len(r.prefix):]
}
