package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/maruel/tokendb/internal/storage"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		output string
		kind   string
		filter filterFlags
	)
	cmd := &cobra.Command{
		Use:   "watch --output PATH SOURCES...",
		Short: "Rebuild a database whenever its sources change",
		Long:  "Writes the merged sources to --output, then rewrites it each time a source changes until interrupted.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := storage.ParseKind(kind)
			if err != nil {
				return err
			}
			w := &watcher{app: a, output: output, kind: k, filter: &filter, sources: args}
			return w.run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "database to write")
	cmd.Flags().StringVar(&kind, "type", "csv", "database type: csv|binary|directory")
	filter.register(cmd)
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

// settleDelay lets a burst of writes to a source finish before rebuilding.
const settleDelay = 100 * time.Millisecond

type watcher struct {
	app     *app
	output  string
	kind    storage.Kind
	filter  *filterFlags
	sources []string

	// ready is closed once the first build is done and the sources are
	// watched.
	ready chan struct{}
}

func (w *watcher) run(ctx context.Context) error {
	log := w.app.log()
	if err := w.build(); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()
	// Watch directories rather than files: atomic writes replace the inode.
	dirs := map[string]struct{}{}
	for _, s := range w.sources {
		dir := s
		if fi, err := os.Stat(s); err != nil || !fi.IsDir() {
			dir = filepath.Dir(s)
		}
		dirs[filepath.Clean(dir)] = struct{}{}
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	if w.ready != nil {
		close(w.ready)
	}
	log.InfoContext(ctx, "Watching sources", "count", len(w.sources), "output", w.output)

	// Changes are coalesced: the first relevant event schedules a rebuild
	// after settleDelay, or later when the rate limiter asks for it.
	lim := rate.NewLimiter(rate.Every(w.app.cfg.WatchInterval.D()), 1)
	var rebuild <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Chmod) || !w.relevant(event.Name) {
				continue
			}
			log.DebugContext(ctx, "Source changed", "path", event.Name)
			if rebuild == nil {
				rebuild = time.After(max(lim.Reserve().Delay(), settleDelay))
			}
		case <-rebuild:
			rebuild = nil
			if err := w.build(); err != nil {
				// Sources are often seen mid-update; the next event retries.
				log.WarnContext(ctx, "Failed to rebuild", "err", err)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.WarnContext(ctx, "Error watching sources", "err", err)
		}
	}
}

// relevant reports whether a change to name can affect the output.
func (w *watcher) relevant(name string) bool {
	name = filepath.Clean(name)
	out := filepath.Clean(w.output)
	if name == out || strings.HasPrefix(name, out+string(filepath.Separator)) {
		return false
	}
	for _, s := range w.sources {
		s = filepath.Clean(s)
		if name == s {
			return true
		}
		if filepath.Dir(name) == s && strings.HasSuffix(name, storage.ShardSuffix) {
			return true
		}
	}
	return false
}

func (w *watcher) build() error {
	db, err := w.app.loadSources(w.filter, w.sources)
	if err != nil {
		return err
	}
	f, err := storage.Create(w.output, w.kind, db, storage.Options{Logger: w.app.log()})
	if err != nil {
		return err
	}
	if err := f.WriteToFile(true); err != nil {
		return err
	}
	w.app.log().Info("Wrote database", "path", w.output, "entries", db.Len())
	return nil
}
