package tokens

import (
	"cmp"
	"fmt"
	"time"
)

// Date is a calendar day packed as year<<16 | month<<8 | day, which is the
// numeric value of the date field of a binary record.
//
// The zero value is NotRemoved.
type Date uint32

// NotRemoved marks an entry that is still present. It orders after every real
// date.
const NotRemoved Date = 0

const (
	dateLayout = "2006-01-02"

	// notRemovedPacked is how NotRemoved is stored and compared.
	notRemovedPacked uint32 = 0xFFFFFFFF
)

// NewDate returns the Date for the given day. It fails on days that do not
// exist in the calendar.
func NewDate(year int, month time.Month, day int) (Date, error) {
	if year < 1 || year >= 0xFFFF {
		return NotRemoved, fmt.Errorf("year %d out of range", year)
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return NotRemoved, fmt.Errorf("invalid date %04d-%02d-%02d", year, month, day)
	}
	return Date(uint32(year)<<16 | uint32(month)<<8 | uint32(day)), nil
}

// DateOf returns the calendar day of t in t's location, or NotRemoved when
// its year cannot be stored.
func DateOf(t time.Time) Date {
	d, err := NewDate(t.Year(), t.Month(), t.Day())
	if err != nil {
		return NotRemoved
	}
	return d
}

// Today returns the current local calendar day.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return NotRemoved, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return NewDate(t.Year(), t.Month(), t.Day())
}

// dateFromPacked decodes a binary record date.
func dateFromPacked(v uint32) (Date, error) {
	if v == notRemovedPacked {
		return NotRemoved, nil
	}
	return NewDate(int(v>>16), time.Month((v>>8)&0xFF), int(v&0xFF))
}

// Removed reports whether d is a real removal date.
func (d Date) Removed() bool {
	return d != NotRemoved
}

// Year returns the year, or 0 for NotRemoved.
func (d Date) Year() int {
	return int(d >> 16)
}

// Month returns the month, or 0 for NotRemoved.
func (d Date) Month() time.Month {
	return time.Month((d >> 8) & 0xFF)
}

// Day returns the day of the month, or 0 for NotRemoved.
func (d Date) Day() int {
	return int(d & 0xFF)
}

// Time returns midnight UTC of d. NotRemoved returns the zero time.
func (d Date) Time() time.Time {
	if !d.Removed() {
		return time.Time{}
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// String returns d as YYYY-MM-DD, or "" for NotRemoved.
func (d Date) String() string {
	if !d.Removed() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year(), d.Month(), d.Day())
}

func (d Date) packed() uint32 {
	if !d.Removed() {
		return notRemovedPacked
	}
	return uint32(d)
}

// Compare returns -1, 0 or 1. NotRemoved compares greater than any date.
func (d Date) Compare(other Date) int {
	return cmp.Compare(d.packed(), other.packed())
}

// Before reports whether d is strictly older than other.
func (d Date) Before(other Date) bool {
	return d.Compare(other) < 0
}
