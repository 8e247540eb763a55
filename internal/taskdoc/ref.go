package taskdoc

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the date-bucket format tasks are grouped by.
const DateLayout = "2006-01-02"

// ErrInvalidRef is returned for a task reference that cannot be mapped to a path.
var ErrInvalidRef = errors.New("invalid task reference")

// Ref addresses one task document by date bucket and task id.
type Ref struct {
	Date string // YYYY-MM-DD
	ID   string // e.g. fe-task-001
}

// String renders the reference as date/id.
func (r Ref) String() string {
	return r.Date + "/" + r.ID
}

// Validate checks the date bucket format and that the id cannot escape the bucket directory.
func (r Ref) Validate() error {
	if _, err := time.Parse(DateLayout, r.Date); err != nil {
		return fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidRef, r.Date)
	}
	if r.ID == "" || r.ID == "." || r.ID == ".." || strings.ContainsAny(r.ID, `/\`) {
		return fmt.Errorf("%w: task id %q", ErrInvalidRef, r.ID)
	}
	return nil
}

// ParseRef parses "date/id" as produced by Ref.String.
func ParseRef(s string) (Ref, error) {
	date, id, ok := strings.Cut(s, "/")
	if !ok {
		return Ref{}, fmt.Errorf("%w: %q is not date/id", ErrInvalidRef, s)
	}
	ref := Ref{Date: date, ID: id}
	return ref, ref.Validate()
}
