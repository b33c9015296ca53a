package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/maruel/tokendb/internal/tokens"
)

// fakeGit is a git.Repository with canned answers.
type fakeGit struct {
	untracked    []string
	untrackedErr error
	merged       bool
	mergedErr    error
	added        []string
	addedErr     error

	ancestorCalls []string
}

func (f *fakeGit) UntrackedFiles(context.Context, string) ([]string, error) {
	return f.untracked, f.untrackedErr
}

func (f *fakeGit) IsAncestor(_ context.Context, ancestor, descendant string) (bool, error) {
	f.ancestorCalls = append(f.ancestorCalls, ancestor+".."+descendant)
	return f.merged, f.mergedErr
}

func (f *fakeGit) AddedFiles(context.Context, string, string) ([]string, error) {
	return f.added, f.addedErr
}

func TestDirectory(t *testing.T) {
	t.Parallel()

	t.Run("incremental write adds one shard", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeFile(t, dir, "a"+ShardSuffix, "00000001,          ,\"x\"\n")
		writeFile(t, dir, "README.md", "not a shard")

		d, err := OpenDirectory(dir, Options{})
		if err != nil {
			t.Fatalf("OpenDirectory() failed: %v", err)
		}
		d.Database().Add(tokens.Entry{Token: 2, String: "y"})
		if err := d.WriteToFile(false); err != nil {
			t.Fatalf("WriteToFile() failed: %v", err)
		}

		if got := readFile(t, filepath.Join(dir, "a"+ShardSuffix)); got != "00000001,          ,\"x\"\n" {
			t.Errorf("shard a modified: %q", got)
		}
		newShards := shardsExcept(t, d, filepath.Join(dir, "a"+ShardSuffix))
		if len(newShards) != 1 {
			t.Fatalf("new shards = %v, want exactly one", newShards)
		}
		if got := readFile(t, newShards[0]); got != "00000002,          ,\"y\"\n" {
			t.Errorf("new shard = %q", got)
		}
		if got := readFile(t, filepath.Join(dir, "README.md")); got != "not a shard" {
			t.Errorf("README.md modified: %q", got)
		}

		// Nothing new: nothing written.
		if err := d.WriteToFile(false); err != nil {
			t.Fatalf("WriteToFile() failed: %v", err)
		}
		if shards, _ := d.Shards(); len(shards) != 2 {
			t.Errorf("Shards() = %v, want 2", shards)
		}

		back, err := OpenDirectory(dir, Options{})
		if err != nil {
			t.Fatalf("OpenDirectory() failed: %v", err)
		}
		checkEntries(t, back.Database(), d.Database().Entries())
	})

	t.Run("carriage returns do not grow shards", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		d, err := NewDirectory(dir, tokens.New(tokens.Entry{Token: 1, String: "a\r\nb"}), Options{})
		if err != nil {
			t.Fatal(err)
		}
		if err := d.WriteToFile(false); err != nil {
			t.Fatalf("WriteToFile() failed: %v", err)
		}
		back, err := OpenDirectory(dir, Options{})
		if err != nil {
			t.Fatalf("OpenDirectory() failed: %v", err)
		}
		if err := back.WriteToFile(false); err != nil {
			t.Fatalf("WriteToFile() failed: %v", err)
		}
		if shards, _ := back.Shards(); len(shards) != 1 {
			t.Errorf("Shards() = %v, want 1", shards)
		}
		checkEntries(t, back.Database(), d.Database().Entries())
	})

	t.Run("rewrite consolidates", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeFile(t, dir, "a"+ShardSuffix, "00000001,          ,\"x\"\n")
		writeFile(t, dir, "b"+ShardSuffix, "00000002,2020-01-01,\"y\"\n")
		writeFile(t, dir, "notes.txt", "keep")
		d, err := OpenDirectory(dir, Options{})
		if err != nil {
			t.Fatalf("OpenDirectory() failed: %v", err)
		}
		d.Database().MarkRemoved(nil, mustDate(t, "2021-01-01"))
		if err := d.WriteToFile(true); err != nil {
			t.Fatalf("WriteToFile(true) failed: %v", err)
		}
		shards, err := d.Shards()
		if err != nil {
			t.Fatal(err)
		}
		if len(shards) != 1 {
			t.Fatalf("Shards() = %v, want one", shards)
		}
		want := "00000001,2021-01-01,\"x\"\n00000002,2020-01-01,\"y\"\n"
		if got := readFile(t, shards[0]); got != want {
			t.Errorf("shard = %q, want %q", got, want)
		}
		if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
			t.Errorf("notes.txt removed: %v", err)
		}

		// Purging everything leaves no shard.
		d.Database().Purge(tokens.NotRemoved)
		if err := d.WriteToFile(true); err != nil {
			t.Fatalf("WriteToFile(true) failed: %v", err)
		}
		if shards, _ := d.Shards(); len(shards) != 0 {
			t.Errorf("Shards() = %v, want none", shards)
		}
	})

	t.Run("NewDirectory", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "new", "db")
		d, err := NewDirectory(dir, tokens.New(tokens.Entry{Token: 5, String: "five"}), Options{})
		if err != nil {
			t.Fatalf("NewDirectory() failed: %v", err)
		}
		if err := d.WriteToFile(false); err != nil {
			t.Fatalf("WriteToFile() failed: %v", err)
		}
		shards, _ := d.Shards()
		if len(shards) != 1 || !strings.HasSuffix(shards[0], ShardSuffix) {
			t.Errorf("Shards() = %v", shards)
		}
	})

	t.Run("missing directory", func(t *testing.T) {
		t.Parallel()
		if _, err := OpenDirectory(filepath.Join(t.TempDir(), "nope"), Options{}); err == nil {
			t.Error("OpenDirectory() succeeded on a missing directory")
		}
	})
}

func TestAddAndDiscardTemporary(t *testing.T) {
	t.Parallel()

	entries := func(strs ...string) []tokens.Entry {
		var out []tokens.Entry
		for _, s := range strs {
			out = append(out, tokens.Entry{Token: tokens.DefaultHash(s), String: s})
		}
		return out
	}
	csvOf := func(strs ...string) string {
		var b strings.Builder
		if err := tokens.WriteCSV(&b, tokens.New(entries(strs...)...)); err != nil {
			t.Fatal(err)
		}
		return b.String()
	}

	t.Run("untracked shard", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeFile(t, dir, "mine"+ShardSuffix, csvOf("temp", "keep"))
		writeFile(t, dir, "older"+ShardSuffix, csvOf("other-temp"))
		writeFile(t, dir, "committed"+ShardSuffix, csvOf("committed", "temp"))
		touch(t, filepath.Join(dir, "older"+ShardSuffix), time.Now().Add(-time.Hour))
		g := &fakeGit{untracked: []string{"older" + ShardSuffix, "mine" + ShardSuffix}}

		d, err := OpenDirectory(dir, Options{Git: g})
		if err != nil {
			t.Fatalf("OpenDirectory() failed: %v", err)
		}
		fresh, err := d.AddAndDiscardTemporary(t.Context(), entries("keep", "new"), "origin/main")
		if err != nil {
			t.Fatalf("AddAndDiscardTemporary() failed: %v", err)
		}
		checkEntries(t, tokens.New(fresh...), entries("new"))
		if got, want := readFile(t, filepath.Join(dir, "mine"+ShardSuffix)), csvOf("keep", "new"); got != want {
			t.Errorf("mine = %q, want %q", got, want)
		}
		if got, want := readFile(t, filepath.Join(dir, "older"+ShardSuffix)), csvOf("other-temp"); got != want {
			t.Errorf("older shard modified: %q", got)
		}
		// "temp" is still in committed so it stays in memory.
		checkEntries(t, d.Database(), entries("keep", "new", "other-temp", "committed", "temp"))
		if len(g.ancestorCalls) != 0 {
			t.Errorf("IsAncestor called with an untracked shard: %v", g.ancestorCalls)
		}
		back, err := OpenDirectory(dir, Options{})
		if err != nil {
			t.Fatal(err)
		}
		checkEntries(t, back.Database(), d.Database().Entries())
	})

	t.Run("temporary only in owned shard", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeFile(t, dir, "mine"+ShardSuffix, csvOf("temp"))
		d, err := OpenDirectory(dir, Options{Git: &fakeGit{untracked: []string{"mine" + ShardSuffix}}})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := d.AddAndDiscardTemporary(t.Context(), entries("new"), "origin/main"); err != nil {
			t.Fatalf("AddAndDiscardTemporary() failed: %v", err)
		}
		checkEntries(t, d.Database(), entries("new"))
		if got, want := readFile(t, filepath.Join(dir, "mine"+ShardSuffix)), csvOf("new"); got != want {
			t.Errorf("mine = %q, want %q", got, want)
		}
	})

	t.Run("empty shard is removed", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeFile(t, dir, "mine"+ShardSuffix, csvOf("temp"))
		writeFile(t, dir, "base"+ShardSuffix, csvOf("base"))
		d, err := OpenDirectory(dir, Options{Git: &fakeGit{untracked: []string{"mine" + ShardSuffix}}})
		if err != nil {
			t.Fatal(err)
		}
		fresh, err := d.AddAndDiscardTemporary(t.Context(), entries("base"), "origin/main")
		if err != nil {
			t.Fatalf("AddAndDiscardTemporary() failed: %v", err)
		}
		if len(fresh) != 0 {
			t.Errorf("fresh = %v, want none", fresh)
		}
		if _, err := os.Stat(filepath.Join(dir, "mine"+ShardSuffix)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("empty shard still exists: %v", err)
		}
		checkEntries(t, d.Database(), entries("base"))
	})

	t.Run("shard added by unmerged HEAD", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeFile(t, dir, "head"+ShardSuffix, csvOf("temp", "keep"))
		writeFile(t, dir, "base"+ShardSuffix, csvOf("base"))
		g := &fakeGit{merged: false, added: []string{"head" + ShardSuffix, "gone" + ShardSuffix}}
		d, err := OpenDirectory(dir, Options{Git: g})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := d.AddAndDiscardTemporary(t.Context(), entries("keep", "new"), "origin/main"); err != nil {
			t.Fatalf("AddAndDiscardTemporary() failed: %v", err)
		}
		if !slices.Equal(g.ancestorCalls, []string{"HEAD..origin/main"}) {
			t.Errorf("IsAncestor calls = %v", g.ancestorCalls)
		}
		if got, want := readFile(t, filepath.Join(dir, "head"+ShardSuffix)), csvOf("keep", "new"); got != want {
			t.Errorf("head shard = %q, want %q", got, want)
		}
		if shards, _ := d.Shards(); len(shards) != 2 {
			t.Errorf("Shards() = %v, want 2", shards)
		}
	})

	newShardCases := []struct {
		name string
		git  *fakeGit
	}{
		{"no git", nil},
		{"merged HEAD", &fakeGit{merged: true, added: []string{"head" + ShardSuffix}}},
		{"git failures", &fakeGit{
			untrackedErr: errors.New("boom"),
			mergedErr:    errors.New("boom"),
			addedErr:     errors.New("boom"),
		}},
		{"nothing owned", &fakeGit{merged: false}},
	}
	for _, tt := range newShardCases {
		t.Run("new shard/"+tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			writeFile(t, dir, "head"+ShardSuffix, csvOf("temp", "keep"))
			opts := Options{}
			if tt.git != nil {
				opts.Git = tt.git
			}
			d, err := OpenDirectory(dir, opts)
			if err != nil {
				t.Fatal(err)
			}
			fresh, err := d.AddAndDiscardTemporary(t.Context(), entries("keep", "new"), "origin/main")
			if err != nil {
				t.Fatalf("AddAndDiscardTemporary() failed: %v", err)
			}
			checkEntries(t, tokens.New(fresh...), entries("new"))
			if got, want := readFile(t, filepath.Join(dir, "head"+ShardSuffix)), csvOf("temp", "keep"); got != want {
				t.Errorf("head shard modified: %q", got)
			}
			newShards := shardsExcept(t, d, filepath.Join(dir, "head"+ShardSuffix))
			if len(newShards) != 1 {
				t.Fatalf("new shards = %v, want one", newShards)
			}
			if got, want := readFile(t, newShards[0]), csvOf("new"); got != want {
				t.Errorf("new shard = %q, want %q", got, want)
			}
			checkEntries(t, d.Database(), entries("temp", "keep", "new"))
		})
	}

	t.Run("failed write leaves memory unchanged", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "db")
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		writeFile(t, dir, "a"+ShardSuffix, csvOf("keep"))
		d, err := OpenDirectory(dir, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if err := os.RemoveAll(dir); err != nil {
			t.Fatal(err)
		}
		if _, err := d.AddAndDiscardTemporary(t.Context(), entries("keep", "new"), "origin/main"); err == nil {
			t.Fatal("AddAndDiscardTemporary() succeeded without a directory")
		}
		checkEntries(t, d.Database(), entries("keep"))
	})

	t.Run("nothing new and no owned shard", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeFile(t, dir, "a"+ShardSuffix, csvOf("keep"))
		d, err := OpenDirectory(dir, Options{})
		if err != nil {
			t.Fatal(err)
		}
		fresh, err := d.AddAndDiscardTemporary(t.Context(), entries("keep"), "origin/main")
		if err != nil || len(fresh) != 0 {
			t.Fatalf("AddAndDiscardTemporary() = %v, %v", fresh, err)
		}
		if shards, _ := d.Shards(); len(shards) != 1 {
			t.Errorf("Shards() = %v, want 1", shards)
		}
	})
}

func shardsExcept(t *testing.T, d *Directory, skip string) []string {
	t.Helper()
	shards, err := d.Shards()
	if err != nil {
		t.Fatalf("Shards() failed: %v", err)
	}
	return slices.DeleteFunc(shards, func(p string) bool { return p == skip })
}

func touch(t *testing.T, p string, mtime time.Time) {
	t.Helper()
	if err := os.Chtimes(p, mtime, mtime); err != nil {
		t.Fatalf("failed to set mtime: %v", err)
	}
}
