package tokens

import (
	"cmp"
	"strings"
)

// DefaultDomain is the domain of entries that were not given one.
const DefaultDomain = ""

// Key identifies an entry within a Database.
type Key struct {
	Token  uint32
	String string
}

// Entry is a token and the string it stands for.
type Entry struct {
	Token  uint32
	String string
	// Domain is carried along but is not part of the Key.
	Domain      string
	DateRemoved Date
}

// Key returns the identity of e.
func (e *Entry) Key() Key {
	return Key{Token: e.Token, String: e.String}
}

// Removed reports whether e has a removal date.
func (e *Entry) Removed() bool {
	return e.DateRemoved.Removed()
}

// UpdateDateRemoved keeps the newest of e's removal date and d.
//
// A present entry stays present, and a removal date never moves earlier.
// Passing NotRemoved clears the date.
func (e *Entry) UpdateDateRemoved(d Date) {
	if e.DateRemoved.Before(d) {
		e.DateRemoved = d
	}
}

// Compare orders entries canonically: token ascending, removal date
// descending (present entries first), then string ascending.
func (e *Entry) Compare(other *Entry) int {
	if c := cmp.Compare(e.Token, other.Token); c != 0 {
		return c
	}
	if c := other.DateRemoved.Compare(e.DateRemoved); c != 0 {
		return c
	}
	return strings.Compare(e.String, other.String)
}
