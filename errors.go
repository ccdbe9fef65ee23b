package shelfcache

import (
	"errors"
	"fmt"
)

// ErrNotFound matches every *NotFoundError via errors.Is.
var ErrNotFound = errors.New("shelfcache: not found")

// NotFoundError names the entity a relationship operation could not find.
type NotFoundError struct {
	Entity string // "book" or "library"
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("shelfcache: %s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func bookNotFound(id string) error    { return &NotFoundError{Entity: "book", ID: id} }
func libraryNotFound(id string) error { return &NotFoundError{Entity: "library", ID: id} }
