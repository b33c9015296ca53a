package tokens

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// BinaryMagic starts every binary database.
var BinaryMagic = [8]byte{'T', 'O', 'K', 'E', 'N', 'S', 0, 0}

const (
	binaryHeaderSize = 16
	binaryEntrySize  = 8
)

// IsBinary reports whether data starts with BinaryMagic.
func IsBinary(data []byte) bool {
	return bytes.HasPrefix(data, BinaryMagic[:])
}

// WriteBinary writes db to w in the binary format, entries in canonical
// order. Strings containing NUL cannot be represented and are an error.
func WriteBinary(w io.Writer, db *Database) error {
	entries := db.Entries()
	for i := range entries {
		if strings.IndexByte(entries[i].String, 0) >= 0 {
			return fmt.Errorf("%w: string for token %08x contains NUL", ErrFormat, entries[i].Token)
		}
	}
	bw := bufio.NewWriter(w)
	var header [binaryHeaderSize]byte
	copy(header[:], BinaryMagic[:])
	binary.LittleEndian.PutUint32(header[8:], uint32(len(entries)))
	_, _ = bw.Write(header[:])
	var rec [binaryEntrySize]byte
	for i := range entries {
		binary.LittleEndian.PutUint32(rec[0:], entries[i].Token)
		binary.LittleEndian.PutUint32(rec[4:], entries[i].DateRemoved.packed())
		_, _ = bw.Write(rec[:])
	}
	for i := range entries {
		_, _ = bw.WriteString(entries[i].String)
		_ = bw.WriteByte(0)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write binary database: %w", err)
	}
	return nil
}

// ParseBinary decodes a binary database. Any structural problem is an
// ErrFormat; no partial database is returned.
//
// Strings are kept as raw bytes, so invalid UTF-8 round-trips unchanged.
func ParseBinary(data []byte) (*Database, error) {
	if len(data) < binaryHeaderSize {
		return nil, fmt.Errorf("%w: binary database too short (%d bytes)", ErrFormat, len(data))
	}
	if !IsBinary(data) {
		return nil, fmt.Errorf("%w: bad magic %q", ErrFormat, data[:len(BinaryMagic)])
	}
	count := int64(binary.LittleEndian.Uint32(data[8:]))
	tableStart := binaryHeaderSize + count*binaryEntrySize
	if tableStart > int64(len(data)) {
		return nil, fmt.Errorf("%w: %d entries do not fit in %d bytes", ErrFormat, count, len(data))
	}
	records := data[binaryHeaderSize:tableStart]
	table := data[tableStart:]
	db := &Database{entries: make(map[Key]*Entry, count)}
	for i := int64(0); i < count; i++ {
		rec := records[i*binaryEntrySize:]
		end := bytes.IndexByte(table, 0)
		if end < 0 {
			return nil, fmt.Errorf("%w: string table ends before entry %d", ErrFormat, i)
		}
		date, err := dateFromPacked(binary.LittleEndian.Uint32(rec[4:]))
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrFormat, i, err)
		}
		db.Add(Entry{
			Token:       binary.LittleEndian.Uint32(rec[0:]),
			String:      string(table[:end]),
			DateRemoved: date,
		})
		table = table[end+1:]
	}
	return db, nil
}
