// Package storage binds token databases to files and directories.
//
// A DatabaseFile pairs a tokens.Database with the path it was loaded from.
// Three layouts exist: a single binary file, a single CSV file and a
// directory of CSV shards. Callers mutate Database() in memory and persist
// with WriteToFile. Every write publishes a complete file through an atomic
// rename, so an interrupted write leaves the previous content in place.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"

	"github.com/maruel/tokendb/internal/storage/git"
	"github.com/maruel/tokendb/internal/tokens"
)

// ErrUnknownFormat is returned for a file that is neither a binary nor a CSV
// database. It wraps tokens.ErrFormat.
var ErrUnknownFormat = fmt.Errorf("%w: not a binary or CSV token database", tokens.ErrFormat)

// DatabaseFile is a Database backed by a path.
type DatabaseFile interface {
	// Path returns the file or directory backing the database.
	Path() string
	// Database returns the in-memory database. Mutations are persisted by
	// WriteToFile.
	Database() *tokens.Database
	// WriteToFile persists the database. rewrite only matters for
	// directories, where it consolidates every shard into one.
	WriteToFile(rewrite bool) error
}

// Options configures loading and writing.
type Options struct {
	// Logger receives diagnostics such as skipped CSV rows. nil means
	// slog.Default().
	Logger *slog.Logger
	// Git selects shards for Directory.AddAndDiscardTemporary. nil means no
	// version control: a new shard is always created.
	Git git.Repository
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// rowLogger adapts the logger into a tokens.ParseCSV error callback.
func (o *Options) rowLogger(path string) func(error) {
	l := o.logger()
	return func(err error) {
		l.Warn("Skipping malformed CSV row", "path", path, "err", err)
	}
}

// Kind is a database layout.
type Kind int

const (
	// KindCSV is a single CSV file.
	KindCSV Kind = iota
	// KindBinary is a single binary file.
	KindBinary
	// KindDirectory is a directory of CSV shards.
	KindDirectory
)

// ParseKind parses "csv", "binary" or "directory".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "csv":
		return KindCSV, nil
	case "binary":
		return KindBinary, nil
	case "directory":
		return KindDirectory, nil
	default:
		return 0, fmt.Errorf("unknown database type %q, want csv, binary or directory", s)
	}
}

func (k Kind) String() string {
	switch k {
	case KindCSV:
		return "csv"
	case KindBinary:
		return "binary"
	case KindDirectory:
		return "directory"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Load opens the database at path. Directories are directory databases;
// files are binary when they start with tokens.BinaryMagic and CSV
// otherwise. An empty file is an empty CSV database.
func Load(path string, opts Options) (DatabaseFile, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if fi.IsDir() {
		return OpenDirectory(path, opts)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read database: %w", err)
	}
	if tokens.IsBinary(data) {
		db, err := tokens.ParseBinary(data)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		return &BinaryFile{path: path, db: db}, nil
	}
	if !looksLikeCSV(data) {
		return nil, fmt.Errorf("failed to load %s: %w", path, ErrUnknownFormat)
	}
	db, err := tokens.ParseCSV(bytes.NewReader(data), opts.rowLogger(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return &CSVFile{path: path, db: db}, nil
}

// Create returns a new DatabaseFile of the given kind holding db. Nothing is
// written until WriteToFile. A nil db starts empty.
func Create(path string, kind Kind, db *tokens.Database, opts Options) (DatabaseFile, error) {
	if db == nil {
		db = tokens.New()
	}
	switch kind {
	case KindCSV:
		return &CSVFile{path: path, db: db}, nil
	case KindBinary:
		return &BinaryFile{path: path, db: db}, nil
	case KindDirectory:
		return NewDirectory(path, db, opts)
	default:
		return nil, fmt.Errorf("unknown database type %s", kind)
	}
}

// KindOf returns the layout of f.
func KindOf(f DatabaseFile) Kind {
	switch f.(type) {
	case *BinaryFile:
		return KindBinary
	case *Directory:
		return KindDirectory
	default:
		return KindCSV
	}
}

// LoadSources merges every source into one Database. A source is a database
// (anything Load accepts) or a .json file holding an array of strings, which
// are tokenized with tokens.DefaultHash into the default domain.
func LoadSources(paths []string, opts Options) (*tokens.Database, error) {
	out := tokens.New()
	for _, p := range paths {
		if strings.EqualFold(filepath.Ext(p), ".json") {
			db, err := loadJSONStrings(p)
			if err != nil {
				return nil, err
			}
			out.Merge(db)
			continue
		}
		f, err := Load(p, opts)
		if err != nil {
			return nil, err
		}
		out.Merge(f.Database())
	}
	return out, nil
}

func loadJSONStrings(path string) (*tokens.Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var strs []string
	if err := json.Unmarshal(data, &strs); err != nil {
		return nil, fmt.Errorf("failed to decode %s as a JSON list of strings: %w", path, err)
	}
	return tokens.FromStrings(strs, tokens.DefaultDomain, nil), nil
}

// looksLikeCSV reports whether data can be a CSV database: empty, or
// starting with an 8 hex digit token and a comma.
func looksLikeCSV(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	if len(data) < 9 || data[8] != ',' {
		return false
	}
	for _, c := range data[:8] {
		if !isHex(c) {
			return false
		}
	}
	return true
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// writeAtomic streams write into a temporary file and renames it over path
// once complete.
func writeAtomic(path string, write func(w io.Writer) error) error {
	t, err := renameio.TempFile("", path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() { _ = t.Cleanup() }()
	if err := t.Chmod(0o644); err != nil { //nolint:gosec // G302: databases are meant to be committed and shared
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := write(t); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
