package tokens

import "fmt"

// Report summarizes a database.
type Report struct {
	PresentEntries   int `json:"present_entries"`
	PresentSizeBytes int `json:"present_size_bytes"`
	TotalEntries     int `json:"total_entries"`
	TotalSizeBytes   int `json:"total_size_bytes"`
	// Collisions maps each ambiguous token, as 8 hex digits, to its strings.
	Collisions map[string][]string `json:"collisions"`
}

// NewReport computes the report of db. Sizes count each string plus its NUL
// terminator, which is what the strings cost in a binary database.
func NewReport(db *Database) *Report {
	r := &Report{Collisions: map[string][]string{}}
	for e := range db.All() {
		r.TotalEntries++
		r.TotalSizeBytes += len(e.String) + 1
		if !e.Removed() {
			r.PresentEntries++
			r.PresentSizeBytes += len(e.String) + 1
		}
	}
	for token, entries := range db.Collisions() {
		strs := make([]string, len(entries))
		for i := range entries {
			strs[i] = entries[i].String
		}
		r.Collisions[fmt.Sprintf("%08x", token)] = strs
	}
	return r
}
