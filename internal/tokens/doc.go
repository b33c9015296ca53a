// Package tokens provides an in-memory, mergeable database mapping 32-bit
// tokens to the strings they were derived from.
//
// # Overview
//
// A [Database] holds one [Entry] per (token, string) pair. Tokens are not
// unique: two strings hashing to the same token are both kept and reported by
// [Database.Collisions]. Entries are never deleted when a string disappears
// from a build; [Database.MarkRemoved] stamps them with a removal [Date]
// instead, and only [Database.Purge] drops them for good.
//
// # Merging
//
// [Database.Add] declares current ground truth: an incoming live entry brings a
// removed entry back. [Database.Merge] combines historical snapshots and is
// commutative per key: the newest removal state wins, and "not removed" is
// newer than any date.
//
// # Formats
//
// Two deterministic encodings are provided. CSV ([WriteCSV], [ParseCSV]):
//
//	2e668cd6,2019-06-11,"Jello, world!"
//	141c35d5,          ,"The answer: ""%s"""
//
// Binary ([WriteBinary], [ParseBinary]): a 16-byte header ("TOKENS\x00\x00",
// little-endian uint32 entry count, 4 reserved bytes), one 8-byte record per
// entry (uint32 token, uint8 day, uint8 month, uint16 year; all bits set means
// not removed), then the NUL-terminated strings in record order.
//
// Both encodings write entries in canonical order: token ascending, then
// removal date descending with live entries first, then string.
//
// A Database is not safe for concurrent use.
package tokens
