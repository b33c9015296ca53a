package tokens

import (
	"errors"
	"fmt"
)

// ErrFormat is returned for data that is not a valid token database.
var ErrFormat = errors.New("invalid token database format")

// RowError describes a CSV row that was skipped.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}
