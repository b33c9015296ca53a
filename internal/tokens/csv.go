package tokens

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteCSV writes db to w, one line per entry in canonical order:
//
//	<8 hex digits token>,<YYYY-MM-DD or 10 spaces>,"<string>"
func WriteCSV(w io.Writer, db *Database) error {
	bw := bufio.NewWriter(w)
	for e := range db.All() {
		// bufio.Writer keeps the first error; Flush reports it.
		_, _ = fmt.Fprintf(bw, "%08x,%-10s,\"%s\"\n", e.Token, e.DateRemoved, strings.ReplaceAll(e.String, `"`, `""`))
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}

// ParseCSV reads a CSV database.
//
// Rows that cannot be parsed are passed to onError as a *RowError and
// skipped; onError may be nil. The returned error is only for failures of r
// itself. Empty input is an empty database.
//
// Records end at LF or CRLF. Bytes inside a quoted field, CR included, are
// kept as is so any string written by WriteCSV reads back unchanged.
func ParseCSV(r io.Reader, onError func(error)) (*Database, error) {
	if onError == nil {
		onError = func(error) {}
	}
	cr := csvReader{r: bufio.NewReader(r)}
	db := New()
	for {
		record, line, err := cr.read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var rerr *RowError
			if errors.As(err, &rerr) {
				onError(rerr)
				continue
			}
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		e, err := parseRow(record)
		if err != nil {
			onError(&RowError{Line: line, Err: err})
			continue
		}
		db.Add(e)
	}
	return db, nil
}

var (
	errUnterminatedQuote = errors.New("unterminated quoted field")
	errBadQuote          = errors.New("unexpected character after closing quote")
)

// csvReader splits RFC 4180 records. encoding/csv folds CRLF to LF inside
// quoted fields, which changes the strings.
type csvReader struct {
	r    *bufio.Reader
	line int // newlines consumed so far
}

// read returns the next record and the line it starts on. It returns io.EOF
// at the end of the input and a *RowError for a record with broken quoting,
// after skipping the rest of its line.
func (cr *csvReader) read() ([]string, int, error) {
	if err := cr.skipBlankLines(); err != nil {
		return nil, 0, err
	}
	start := cr.line + 1
	var fields []string
	for {
		field, end, err := cr.field()
		if errors.Is(err, errUnterminatedQuote) || errors.Is(err, errBadQuote) {
			if err2 := cr.skipLine(); err2 != nil && !errors.Is(err2, io.EOF) {
				return nil, 0, err2
			}
			return nil, start, &RowError{Line: start, Err: err}
		}
		if err != nil {
			return nil, 0, err
		}
		fields = append(fields, field)
		if end {
			return fields, start, nil
		}
	}
}

// field reads one field and reports whether it ended the record.
func (cr *csvReader) field() (string, bool, error) {
	var buf []byte
	b, err := cr.r.ReadByte()
	if errors.Is(err, io.EOF) {
		return "", true, nil
	}
	if err != nil {
		return "", false, err
	}
	if b != '"' {
		for {
			switch b {
			case ',':
				return string(buf), false, nil
			case '\n':
				cr.line++
				return string(bytes.TrimSuffix(buf, []byte{'\r'})), true, nil
			}
			buf = append(buf, b)
			if b, err = cr.r.ReadByte(); errors.Is(err, io.EOF) {
				return string(bytes.TrimSuffix(buf, []byte{'\r'})), true, nil
			} else if err != nil {
				return "", false, err
			}
		}
	}
	for {
		b, err := cr.r.ReadByte()
		if errors.Is(err, io.EOF) {
			return "", false, errUnterminatedQuote
		}
		if err != nil {
			return "", false, err
		}
		if b == '\n' {
			cr.line++
		}
		if b != '"' {
			buf = append(buf, b)
			continue
		}
		b, err = cr.r.ReadByte()
		if errors.Is(err, io.EOF) {
			return string(buf), true, nil
		}
		if err != nil {
			return "", false, err
		}
		switch b {
		case '"':
			buf = append(buf, '"')
		case ',':
			return string(buf), false, nil
		case '\n':
			cr.line++
			return string(buf), true, nil
		case '\r':
			next, err := cr.r.Peek(1)
			if errors.Is(err, io.EOF) {
				return string(buf), true, nil
			}
			if err == nil && next[0] == '\n' {
				_, _ = cr.r.ReadByte()
				cr.line++
				return string(buf), true, nil
			}
			if err != nil {
				return "", false, err
			}
			return "", false, errBadQuote
		default:
			return "", false, errBadQuote
		}
	}
}

func (cr *csvReader) skipBlankLines() error {
	for {
		p, err := cr.r.Peek(2)
		if len(p) == 0 {
			return err
		}
		switch {
		case p[0] == '\n':
			_, _ = cr.r.Discard(1)
		case len(p) == 2 && p[0] == '\r' && p[1] == '\n':
			_, _ = cr.r.Discard(2)
		default:
			return nil
		}
		cr.line++
	}
}

func (cr *csvReader) skipLine() error {
	for {
		b, err := cr.r.ReadByte()
		if err != nil {
			return err
		}
		if b == '\n' {
			cr.line++
			return nil
		}
	}
}

func parseRow(record []string) (Entry, error) {
	if len(record) != 3 {
		return Entry{}, fmt.Errorf("expected 3 fields, got %d", len(record))
	}
	token, err := strconv.ParseUint(strings.TrimSpace(record[0]), 16, 32)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid token %q", record[0])
	}
	e := Entry{Token: uint32(token), String: record[2]}
	if d := strings.TrimSpace(record[1]); d != "" {
		if e.DateRemoved, err = ParseDate(d); err != nil {
			return Entry{}, err
		}
	}
	return e, nil
}
