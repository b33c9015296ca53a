package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maruel/tokendb/internal/config"
	"github.com/maruel/tokendb/internal/storage"
	"github.com/maruel/tokendb/internal/storage/git"
	"github.com/maruel/tokendb/internal/tokens"
)

// app holds the state shared by every subcommand.
type app struct {
	level  *slog.LevelVar
	logger *slog.Logger

	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "tokendb",
		Short:         "Create and maintain token databases",
		Long:          "tokendb manages databases mapping tokens to the strings they were generated from, as CSV files, binary files or directories of CSV shards.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		// No Run: prints help by default.
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath, "configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the configuration file")

	root.AddCommand(
		newCreateCmd(a),
		newAddCmd(a),
		newMarkRemovedCmd(a),
		newPurgeCmd(a),
		newReportCmd(a),
		newWatchCmd(a),
		newConfigCmd(a),
	)
	return root
}

// setup loads the configuration and applies the log level. Flags given
// explicitly win over the file.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	l, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	if a.level != nil {
		a.level.Set(l)
	}
	a.cfg = cfg
	return nil
}

func (a *app) log() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return slog.Default()
}

// options returns the storage options for a database at path. Git is only
// consulted for directories; failing to open a repository disables it.
func (a *app) options(ctx context.Context, path string) storage.Options {
	opts := storage.Options{Logger: a.log()}
	fi, err := os.Stat(path)
	if err != nil || !fi.IsDir() {
		return opts
	}
	backend, err := a.cfg.Backend()
	if err != nil {
		return opts
	}
	repo, err := git.Open(ctx, path, backend, a.cfg.GitTimeout.D())
	if err != nil {
		a.log().DebugContext(ctx, "Git unavailable", "path", path, "err", err)
		return opts
	}
	opts.Git = repo
	return opts
}

// loadSources merges the sources and applies the filter flags.
func (a *app) loadSources(f *filterFlags, paths []string) (*tokens.Database, error) {
	if len(paths) == 0 {
		return nil, errors.New("at least one source is required")
	}
	db, err := storage.LoadSources(paths, storage.Options{Logger: a.log()})
	if err != nil {
		return nil, err
	}
	if f != nil {
		if err := f.apply(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// filterFlags are --include, --exclude and --replace.
type filterFlags struct {
	include []string
	exclude []string
	replace []string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.include, "include", nil, "keep only strings matching this regexp (repeatable)")
	cmd.Flags().StringArrayVar(&f.exclude, "exclude", nil, "drop strings matching this regexp (repeatable)")
	cmd.Flags().StringArrayVar(&f.replace, "replace", nil, "rewrite strings with PATTERN/REPLACEMENT; escape / in PATTERN as \\/ (repeatable)")
}

func (f *filterFlags) apply(db *tokens.Database) error {
	if len(f.include) == 0 && len(f.exclude) == 0 && len(f.replace) == 0 {
		return nil
	}
	include, err := compileAll(f.include)
	if err != nil {
		return err
	}
	exclude, err := compileAll(f.exclude)
	if err != nil {
		return err
	}
	var replace []tokens.Replacement
	for _, r := range f.replace {
		rep, err := parseReplacement(r)
		if err != nil {
			return err
		}
		replace = append(replace, rep)
	}
	db.Filter(include, exclude, replace)
	return nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// parseReplacement splits PATTERN/REPLACEMENT at the first unescaped slash.
func parseReplacement(s string) (tokens.Replacement, error) {
	var pattern strings.Builder
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\' && i+1 < len(s) && s[i+1] == '/':
			pattern.WriteByte('/')
			i++
		case s[i] == '/':
			re, err := regexp.Compile(pattern.String())
			if err != nil {
				return tokens.Replacement{}, fmt.Errorf("invalid pattern in %q: %w", s, err)
			}
			return tokens.Replacement{Pattern: re, With: s[i+1:]}, nil
		default:
			pattern.WriteByte(s[i])
		}
	}
	return tokens.Replacement{}, fmt.Errorf("invalid replacement %q, want PATTERN/REPLACEMENT", s)
}

// parseDateFlag parses an optional YYYY-MM-DD flag value.
func parseDateFlag(name, v string) (tokens.Date, error) {
	if v == "" {
		return tokens.NotRemoved, nil
	}
	d, err := tokens.ParseDate(v)
	if err != nil {
		return 0, fmt.Errorf("--%s: %w", name, err)
	}
	return d, nil
}

func newConfigCmd(a *app) *cobra.Command {
	var schema bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Prints the effective configuration as YAML, or the JSON schema of the configuration file with --schema.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var b []byte
			var err error
			if schema {
				b, err = config.Schema()
				b = append(b, '\n')
			} else {
				b, err = a.cfg.Marshal()
			}
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
	cmd.Flags().BoolVar(&schema, "schema", false, "print the JSON schema of "+filepath.Base(config.DefaultPath))
	return cmd
}
