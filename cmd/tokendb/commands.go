package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/maruel/tokendb/internal/storage"
	"github.com/maruel/tokendb/internal/tokens"
)

// useUpstream is the value of a bare --discard-temporary.
const useUpstream = "@upstream"

func newCreateCmd(a *app) *cobra.Command {
	var (
		database string
		kind     string
		force    bool
		filter   filterFlags
	)
	cmd := &cobra.Command{
		Use:   "create --database PATH SOURCES...",
		Short: "Create a database from sources",
		Long:  "Creates a database holding every entry of the sources. Sources are databases or JSON lists of strings.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := storage.ParseKind(kind)
			if err != nil {
				return err
			}
			fi, err := os.Stat(database)
			switch {
			case err == nil && !force:
				return fmt.Errorf("%s already exists, use --force to overwrite it", database)
			case err == nil && fi.IsDir() != (k == storage.KindDirectory):
				return fmt.Errorf("%s already exists as a different kind of database", database)
			case err != nil && !errors.Is(err, fs.ErrNotExist):
				return fmt.Errorf("failed to check %s: %w", database, err)
			}
			db, err := a.loadSources(&filter, args)
			if err != nil {
				return err
			}
			f, err := storage.Create(database, k, db, a.options(cmd.Context(), database))
			if err != nil {
				return err
			}
			if err := f.WriteToFile(true); err != nil {
				return err
			}
			a.log().InfoContext(cmd.Context(), "Created database", "path", database, "type", k.String(), "entries", db.Len())
			return nil
		},
	}
	cmd.Flags().StringVar(&database, "database", "", "database to create")
	cmd.Flags().StringVar(&kind, "type", "csv", "database type: csv|binary|directory")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing database")
	filter.register(cmd)
	_ = cmd.MarkFlagRequired("database")
	return cmd
}

func newAddCmd(a *app) *cobra.Command {
	var (
		database string
		discard  string
		rewrite  bool
		filter   filterFlags
	)
	cmd := &cobra.Command{
		Use:   "add --database PATH SOURCES...",
		Short: "Add the entries of sources to a database",
		Long: "Adds every entry of the sources to the database and prints how many were new.\n\n" +
			"With --discard-temporary[=COMMIT] on a directory database, entries of the shard owned by the current change " +
			"that are not in the sources are dropped. The shard is untracked, or added by HEAD when HEAD is not merged " +
			"into COMMIT (default: the configured upstream).",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src, err := a.loadSources(&filter, args)
			if err != nil {
				return err
			}
			f, err := storage.Load(database, a.options(ctx, database))
			if err != nil {
				return err
			}
			var added int
			if cmd.Flags().Changed("discard-temporary") {
				d, ok := f.(*storage.Directory)
				if !ok {
					return errors.New("--discard-temporary requires a directory database")
				}
				commit := discard
				if commit == useUpstream {
					commit = a.cfg.Upstream
				}
				fresh, err := d.AddAndDiscardTemporary(ctx, src.Entries(), commit)
				if err != nil {
					return err
				}
				added = len(fresh)
			} else {
				added = src.Difference(f.Database()).Len()
				f.Database().Add(src.Entries()...)
				if err := f.WriteToFile(rewrite); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Added %d new entries to %s\n", added, database)
			return err
		},
	}
	cmd.Flags().StringVar(&database, "database", "", "database to update")
	cmd.Flags().StringVar(&discard, "discard-temporary", "", "drop temporary entries from the shard owned by the current change; optional `COMMIT` defaults to the configured upstream")
	cmd.Flags().Lookup("discard-temporary").NoOptDefVal = useUpstream
	cmd.Flags().BoolVar(&rewrite, "rewrite", false, "consolidate a directory database into one shard")
	filter.register(cmd)
	_ = cmd.MarkFlagRequired("database")
	return cmd
}

func newMarkRemovedCmd(a *app) *cobra.Command {
	var (
		database string
		date     string
	)
	cmd := &cobra.Command{
		Use:   "mark-removed --database PATH SOURCES...",
		Short: "Mark entries missing from sources as removed",
		Long:  "Sets the removal date of every entry of the database that is not in the sources. Entries are kept until purged.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseDateFlag("date", date)
			if err != nil {
				return err
			}
			src, err := a.loadSources(nil, args)
			if err != nil {
				return err
			}
			f, err := storage.Load(database, a.options(cmd.Context(), database))
			if err != nil {
				return err
			}
			removed := f.Database().MarkRemoved(src.Entries(), d)
			// Incremental directory writes only add keys, so dates need a rewrite.
			if err := f.WriteToFile(true); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Marked %d entries as removed in %s\n", len(removed), database)
			return err
		},
	}
	cmd.Flags().StringVar(&database, "database", "", "database to update")
	cmd.Flags().StringVar(&date, "date", "", "removal date as YYYY-MM-DD (default: today)")
	_ = cmd.MarkFlagRequired("database")
	return cmd
}

func newPurgeCmd(a *app) *cobra.Command {
	var (
		database string
		before   string
	)
	cmd := &cobra.Command{
		Use:   "purge --database PATH",
		Short: "Delete removed entries",
		Long:  "Permanently deletes the entries removed on or before --before, or every removed entry.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cutoff, err := parseDateFlag("before", before)
			if err != nil {
				return err
			}
			f, err := storage.Load(database, a.options(cmd.Context(), database))
			if err != nil {
				return err
			}
			purged := f.Database().Purge(cutoff)
			if err := f.WriteToFile(true); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Purged %d entries from %s\n", len(purged), database)
			return err
		},
	}
	cmd.Flags().StringVar(&database, "database", "", "database to update")
	cmd.Flags().StringVar(&before, "before", "", "purge entries removed on or before YYYY-MM-DD (default: all removed entries)")
	_ = cmd.MarkFlagRequired("database")
	return cmd
}

func newReportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "report DATABASES...",
		Short: "Print statistics about databases as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := make(map[string]*tokens.Report, len(args))
			for _, p := range args {
				f, err := storage.Load(p, storage.Options{Logger: a.log()})
				if err != nil {
					return err
				}
				out[p] = tokens.NewReport(f.Database())
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
