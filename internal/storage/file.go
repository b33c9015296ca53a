package storage

import (
	"io"

	"github.com/maruel/tokendb/internal/tokens"
)

// BinaryFile is a database stored in one binary file.
type BinaryFile struct {
	path string
	db   *tokens.Database
}

// Path returns the backing file.
func (f *BinaryFile) Path() string { return f.path }

// Database returns the in-memory database.
func (f *BinaryFile) Database() *tokens.Database { return f.db }

// WriteToFile rewrites the whole file. rewrite is ignored.
func (f *BinaryFile) WriteToFile(bool) error {
	return writeAtomic(f.path, func(w io.Writer) error {
		return tokens.WriteBinary(w, f.db)
	})
}

// CSVFile is a database stored in one CSV file.
type CSVFile struct {
	path string
	db   *tokens.Database
}

// Path returns the backing file.
func (f *CSVFile) Path() string { return f.path }

// Database returns the in-memory database.
func (f *CSVFile) Database() *tokens.Database { return f.db }

// WriteToFile rewrites the whole file. rewrite is ignored.
func (f *CSVFile) WriteToFile(bool) error {
	return writeAtomic(f.path, func(w io.Writer) error {
		return tokens.WriteCSV(w, f.db)
	})
}
