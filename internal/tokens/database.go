package tokens

import (
	"iter"
	"maps"
	"regexp"
	"slices"
)

// Database is a deduplicated set of entries keyed by (token, string). The
// zero value is an empty database.
type Database struct {
	entries map[Key]*Entry

	// byToken is derived from entries. It is nil whenever stale and rebuilt on
	// the next read.
	byToken map[uint32][]*Entry
}

// New returns a Database holding copies of entries, combined with Add.
func New(entries ...Entry) *Database {
	db := &Database{entries: make(map[Key]*Entry, len(entries))}
	db.Add(entries...)
	return db
}

// FromStrings returns a Database with one present entry per string, tokenized
// with hash. A nil hash selects DefaultHash.
func FromStrings(strs []string, domain string, hash HashFunc) *Database {
	if hash == nil {
		hash = DefaultHash
	}
	db := &Database{entries: make(map[Key]*Entry, len(strs))}
	for _, s := range strs {
		db.Add(Entry{Token: hash(s), String: s, Domain: domain})
	}
	return db
}

// Len returns the number of entries.
func (db *Database) Len() int {
	return len(db.entries)
}

// All returns copies of the entries in canonical order.
func (db *Database) All() iter.Seq[Entry] {
	sorted := db.sorted()
	return func(yield func(Entry) bool) {
		for _, e := range sorted {
			if !yield(*e) {
				return
			}
		}
	}
}

// Entries returns copies of the entries in canonical order.
func (db *Database) Entries() []Entry {
	return slices.Collect(db.All())
}

// Get returns a copy of the entry with key k.
func (db *Database) Get(k Key) (Entry, bool) {
	e, ok := db.entries[k]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Contains reports whether an entry with key k exists.
func (db *Database) Contains(k Key) bool {
	_, ok := db.entries[k]
	return ok
}

// Lookup returns copies of every entry for token, in canonical order.
func (db *Database) Lookup(token uint32) []Entry {
	return copyEntries(db.index()[token])
}

// Add inserts entries, or updates the existing entries with the same keys.
//
// An existing entry takes the incoming domain. An incoming present entry
// clears the existing removal date; otherwise the later removal date is
// kept.
func (db *Database) Add(entries ...Entry) {
	db.lazyInit()
	for _, in := range entries {
		cur, ok := db.entries[in.Key()]
		if !ok {
			e := in
			db.entries[in.Key()] = &e
			continue
		}
		cur.Domain = in.Domain
		if !in.Removed() {
			cur.DateRemoved = NotRemoved
		} else if cur.Removed() && cur.DateRemoved.Before(in.DateRemoved) {
			cur.DateRemoved = in.DateRemoved
		}
	}
	db.invalidate()
}

// Merge folds others into db, left to right.
//
// Existing entries keep the newest removal state of the two, as with
// Entry.UpdateDateRemoved; unlike Add, their domain is left alone.
func (db *Database) Merge(others ...*Database) {
	db.lazyInit()
	for _, other := range others {
		for k, in := range other.entries {
			if cur, ok := db.entries[k]; ok {
				cur.UpdateDateRemoved(in.DateRemoved)
				continue
			}
			e := *in
			db.entries[k] = &e
		}
	}
	db.invalidate()
}

// MarkRemoved treats all as the complete set of current entries. Every entry
// of db missing from all that is present, or was removed after date, gets
// date as its removal date. A date of NotRemoved means today.
//
// Entries of all that are missing from db are not added. The newly removed
// entries are returned.
func (db *Database) MarkRemoved(all []Entry, date Date) []Entry {
	if !date.Removed() {
		date = Today()
	}
	current := make(map[Key]struct{}, len(all))
	for i := range all {
		current[all[i].Key()] = struct{}{}
	}
	var removed []*Entry
	for k, e := range db.entries {
		if _, ok := current[k]; ok {
			continue
		}
		if date.Before(e.DateRemoved) {
			e.DateRemoved = date
			removed = append(removed, e)
		}
	}
	db.invalidate()
	return copySorted(removed)
}

// Purge deletes every removed entry whose removal date is on or before
// cutoff. A cutoff of NotRemoved purges every removed entry. The deleted
// entries are returned.
func (db *Database) Purge(cutoff Date) []Entry {
	var purged []*Entry
	for k, e := range db.entries {
		if e.Removed() && e.DateRemoved.Compare(cutoff) <= 0 {
			purged = append(purged, e)
			delete(db.entries, k)
		}
	}
	db.invalidate()
	return copySorted(purged)
}

// Discard deletes the entries with the given keys and returns them. It is
// meant for dropping temporary entries that never belonged in the database.
func (db *Database) Discard(keys ...Key) []Entry {
	var out []*Entry
	for _, k := range keys {
		if e, ok := db.entries[k]; ok {
			out = append(out, e)
			delete(db.entries, k)
		}
	}
	db.invalidate()
	return copySorted(out)
}

// Replacement is a regular expression substitution applied by Filter.
type Replacement struct {
	Pattern *regexp.Regexp
	// With uses regexp.Regexp.ReplaceAllString syntax ($1, ${name}).
	With string
}

// Filter deletes entries and rewrites strings.
//
// If include is not empty, entries whose string matches none of its patterns
// are deleted. Entries matching any exclude pattern are deleted. Both are
// evaluated against the database as it was before the call. The replacements
// are then applied in order to every remaining string. A rewritten entry that
// lands on an existing key is merged into it.
func (db *Database) Filter(include, exclude []*regexp.Regexp, replace []Replacement) {
	var drop []Key
	for k, e := range db.entries {
		if len(include) != 0 && !matchAny(include, e.String) {
			drop = append(drop, k)
		} else if matchAny(exclude, e.String) {
			drop = append(drop, k)
		}
	}
	for _, k := range drop {
		delete(db.entries, k)
	}
	if len(replace) != 0 {
		// Rewrite in canonical order so that collapsing keys is deterministic.
		rewritten := make(map[Key]*Entry, len(db.entries))
		for _, e := range db.sorted() {
			for _, r := range replace {
				e.String = r.Pattern.ReplaceAllString(e.String, r.With)
			}
			if cur, ok := rewritten[e.Key()]; ok {
				cur.UpdateDateRemoved(e.DateRemoved)
				continue
			}
			rewritten[e.Key()] = e
		}
		db.entries = rewritten
	}
	db.invalidate()
}

// Collisions yields every token shared by more than one entry, in token
// order, with its entries in canonical order.
func (db *Database) Collisions() iter.Seq2[uint32, []Entry] {
	idx := db.index()
	toks := slices.Sorted(maps.Keys(idx))
	return func(yield func(uint32, []Entry) bool) {
		for _, tok := range toks {
			if len(idx[tok]) < 2 {
				continue
			}
			if !yield(tok, copyEntries(idx[tok])) {
				return
			}
		}
	}
}

// Difference returns a new Database with copies of the entries of db whose
// key is absent from other. A nil other is empty.
func (db *Database) Difference(other *Database) *Database {
	out := &Database{entries: make(map[Key]*Entry)}
	var skip map[Key]*Entry
	if other != nil {
		skip = other.entries
	}
	for k, e := range db.entries {
		if _, ok := skip[k]; !ok {
			c := *e
			out.entries[k] = &c
		}
	}
	return out
}

func (db *Database) lazyInit() {
	if db.entries == nil {
		db.entries = make(map[Key]*Entry)
	}
}

func (db *Database) invalidate() {
	db.byToken = nil
}

func (db *Database) index() map[uint32][]*Entry {
	if db.byToken == nil {
		idx := make(map[uint32][]*Entry)
		for _, e := range db.sorted() {
			idx[e.Token] = append(idx[e.Token], e)
		}
		db.byToken = idx
	}
	return db.byToken
}

func (db *Database) sorted() []*Entry {
	out := slices.Collect(maps.Values(db.entries))
	slices.SortFunc(out, (*Entry).Compare)
	return out
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func copyEntries(list []*Entry) []Entry {
	out := make([]Entry, len(list))
	for i, e := range list {
		out[i] = *e
	}
	return out
}

func copySorted(list []*Entry) []Entry {
	slices.SortFunc(list, (*Entry).Compare)
	return copyEntries(list)
}
