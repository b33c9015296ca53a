package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maruel/ksid"

	"github.com/maruel/tokendb/internal/tokens"
)

// ShardSuffix ends the name of every shard in a directory database. Other
// files in the directory are ignored.
const ShardSuffix = ".tokens.csv"

// Directory is a database stored as CSV shards in one directory.
//
// Loading merges every shard. Incremental writes only ever add a new shard,
// so independent writers never touch each other's files. Concurrent use of
// AddAndDiscardTemporary on the same directory must be serialized by the
// caller.
type Directory struct {
	path string
	db   *tokens.Database
	opts Options
}

// OpenDirectory loads every shard in the existing directory path.
func OpenDirectory(path string, opts Options) (*Directory, error) {
	d := &Directory{path: path, opts: opts}
	db, err := d.load("")
	if err != nil {
		return nil, err
	}
	d.db = db
	return d, nil
}

// NewDirectory returns a Directory at path holding db, creating the
// directory if needed. Existing shards are neither loaded nor modified until
// WriteToFile.
func NewDirectory(path string, db *tokens.Database, opts Options) (*Directory, error) {
	if err := os.MkdirAll(path, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	if db == nil {
		db = tokens.New()
	}
	return &Directory{path: path, db: db, opts: opts}, nil
}

// Path returns the directory.
func (d *Directory) Path() string { return d.path }

// Database returns the in-memory database.
func (d *Directory) Database() *tokens.Database { return d.db }

// Shards returns the paths of the shard files, sorted by name.
func (d *Directory) Shards() ([]string, error) {
	dirEntries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to list shards: %w", err)
	}
	var out []string
	for _, de := range dirEntries {
		if de.Type().IsRegular() && strings.HasSuffix(de.Name(), ShardSuffix) {
			out = append(out, filepath.Join(d.path, de.Name()))
		}
	}
	return out, nil
}

// WriteToFile persists the database.
//
// Without rewrite, the entries missing from the shards currently on disk are
// written to one new shard; existing shards are untouched and nothing is
// written when there is nothing new. Only new keys are detected: removal
// date changes on existing entries need rewrite.
//
// With rewrite, the whole database is written to one new shard and every
// other shard is then deleted.
func (d *Directory) WriteToFile(rewrite bool) error {
	if rewrite {
		return d.rewrite()
	}
	onDisk, err := d.load("")
	if err != nil {
		return err
	}
	delta := d.db.Difference(onDisk)
	if delta.Len() == 0 {
		return nil
	}
	p, err := d.newShardPath()
	if err != nil {
		return err
	}
	d.opts.logger().Debug("Writing shard", "path", p, "entries", delta.Len())
	return writeShard(p, delta)
}

func (d *Directory) rewrite() error {
	old, err := d.Shards()
	if err != nil {
		return err
	}
	if d.db.Len() != 0 {
		p, err := d.newShardPath()
		if err != nil {
			return err
		}
		if err := writeShard(p, d.db); err != nil {
			return err
		}
	}
	for _, p := range old {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove old shard: %w", err)
		}
	}
	return nil
}

// AddAndDiscardTemporary adds entries while dropping temporary entries from
// the shard the current change owns.
//
// The owned shard is the most recently modified untracked shard; failing
// that, when HEAD is not yet merged into commit, the most recently modified
// shard added by HEAD. Entries of the owned shard missing from entries are
// temporary: they are removed from that shard and, unless another shard
// still holds them, from memory. The entries new to the database are then
// added to the owned shard, or to a new shard when none is owned.
//
// It returns the entries that were new to the database.
func (d *Directory) AddAndDiscardTemporary(ctx context.Context, entries []tokens.Entry, commit string) ([]tokens.Entry, error) {
	added := tokens.New(entries...)
	fresh := added.Difference(d.db)

	latest := d.findLatestShard(ctx, commit)
	if latest == "" {
		if fresh.Len() == 0 {
			return nil, nil
		}
		p, err := d.newShardPath()
		if err != nil {
			return nil, err
		}
		if err := writeShard(p, fresh); err != nil {
			return nil, err
		}
		d.db.Merge(fresh)
		return fresh.Entries(), nil
	}

	shard, err := d.readShard(latest)
	if err != nil {
		return nil, err
	}
	others, err := d.load(latest)
	if err != nil {
		return nil, err
	}
	var temporary []tokens.Key
	for e := range shard.All() {
		if !added.Contains(e.Key()) {
			temporary = append(temporary, e.Key())
		}
	}
	shard.Discard(temporary...)
	shard.Merge(fresh)

	if shard.Len() == 0 {
		// Everything in the shard was temporary.
		if err := os.Remove(latest); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove empty shard: %w", err)
		}
	} else if err := writeShard(latest, shard); err != nil {
		return nil, err
	}

	// The disk is up to date; bring memory in line with a reload.
	for _, k := range temporary {
		if !others.Contains(k) {
			d.db.Discard(k)
		}
	}
	if len(temporary) != 0 {
		d.opts.logger().InfoContext(ctx, "Discarded temporary entries", "path", latest, "count", len(temporary))
	}
	d.db.Merge(fresh)
	return fresh.Entries(), nil
}

// findLatestShard asks git for the shard owned by the current change. It
// returns "" when there is none. Git failures are logged and treated as no
// candidate.
func (d *Directory) findLatestShard(ctx context.Context, commit string) string {
	repo := d.opts.Git
	if repo == nil {
		return ""
	}
	log := d.opts.logger()
	pattern := "*" + ShardSuffix
	untracked, err := repo.UntrackedFiles(ctx, pattern)
	if err != nil {
		log.DebugContext(ctx, "Failed to list untracked shards", "err", err)
	}
	if p := d.mostRecent(untracked); p != "" {
		log.DebugContext(ctx, "Using untracked shard", "path", p)
		return p
	}
	merged, err := repo.IsAncestor(ctx, "HEAD", commit)
	if err != nil {
		log.DebugContext(ctx, "Failed to check whether HEAD is merged", "commit", commit, "err", err)
		merged = false
	}
	if merged {
		return ""
	}
	addedFiles, err := repo.AddedFiles(ctx, "HEAD~", pattern)
	if err != nil {
		log.DebugContext(ctx, "Failed to list shards added by HEAD", "err", err)
	}
	if p := d.mostRecent(addedFiles); p != "" {
		log.DebugContext(ctx, "Using shard added by HEAD", "path", p)
		return p
	}
	return ""
}

// mostRecent returns the path of the most recently modified existing file
// among names, relative to the directory.
func (d *Directory) mostRecent(names []string) string {
	best := ""
	var bestTime time.Time
	for _, name := range names {
		p := filepath.Join(d.path, name)
		fi, err := os.Stat(p)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		if best == "" || fi.ModTime().After(bestTime) {
			best, bestTime = p, fi.ModTime()
		}
	}
	return best
}

// load merges every shard except skip.
func (d *Directory) load(skip string) (*tokens.Database, error) {
	shards, err := d.Shards()
	if err != nil {
		return nil, err
	}
	db := tokens.New()
	for _, p := range shards {
		if p == skip {
			continue
		}
		s, err := d.readShard(p)
		if err != nil {
			return nil, err
		}
		db.Merge(s)
	}
	return db, nil
}

func (d *Directory) readShard(p string) (*tokens.Database, error) {
	f, err := os.Open(p) //nolint:gosec // G304: shard paths come from listing the database directory
	if err != nil {
		return nil, fmt.Errorf("failed to open shard: %w", err)
	}
	defer func() { _ = f.Close() }()
	db, err := tokens.ParseCSV(f, d.opts.rowLogger(p))
	if err != nil {
		return nil, fmt.Errorf("failed to load shard %s: %w", p, err)
	}
	return db, nil
}

// newShardPath returns an unused shard path named after a fresh ksid.
func (d *Directory) newShardPath() (string, error) {
	for range 100 {
		p := filepath.Join(d.path, ksid.NewID().String()+ShardSuffix)
		if _, err := os.Lstat(p); errors.Is(err, fs.ErrNotExist) {
			return p, nil
		}
	}
	return "", fmt.Errorf("failed to pick a new shard name in %s", d.path)
}

func writeShard(p string, db *tokens.Database) error {
	return writeAtomic(p, func(w io.Writer) error {
		return tokens.WriteCSV(w, db)
	})
}
