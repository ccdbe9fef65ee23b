// Package model holds the entities shared by the stores, the cache and the repositories.
//
// JSON names follow the document shape of the books/libraries collections so that
// values already sitting in a shared cache decode unchanged.
package model

import (
	"time"

	"github.com/samber/lo"
)

// Book is a single book document.
// Library is the id of the owning library, empty when the book is unowned.
type Book struct {
	ID        string    `json:"_id" msgpack:"_id" cbor:"_id"`
	Title     string    `json:"title" msgpack:"title" cbor:"title"`
	Author    string    `json:"author" msgpack:"author" cbor:"author"`
	Library   string    `json:"library,omitempty" msgpack:"library,omitempty" cbor:"library,omitempty"`
	CreatedAt time.Time `json:"createdAt" msgpack:"createdAt" cbor:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" msgpack:"updatedAt" cbor:"updatedAt"`
}

// Library is a library document. Books is a set of book ids kept in insertion order.
// BookDetails is only filled by populated lookups and is never cached.
type Library struct {
	ID          string    `json:"_id" msgpack:"_id" cbor:"_id"`
	Name        string    `json:"name" msgpack:"name" cbor:"name"`
	Address     string    `json:"address,omitempty" msgpack:"address,omitempty" cbor:"address,omitempty"`
	Books       []string  `json:"books" msgpack:"books" cbor:"books"`
	BookDetails []Book    `json:"bookDetails,omitempty" msgpack:"bookDetails,omitempty" cbor:"bookDetails,omitempty"`
	CreatedAt   time.Time `json:"createdAt" msgpack:"createdAt" cbor:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" msgpack:"updatedAt" cbor:"updatedAt"`
}

// HasBook reports whether id is part of the membership set.
func (l Library) HasBook(id string) bool {
	return lo.Contains(l.Books, id)
}

// BookInput carries the caller supplied fields of a new book.
// A non-empty Library places the book into that library on creation.
type BookInput struct {
	Title   string
	Author  string
	Library string
}

// LibraryInput carries the caller supplied fields of a new library.
type LibraryInput struct {
	Name    string
	Address string
}

// BookPatch is a partial update. Nil fields are left untouched.
// The owning library is changed through library membership operations only.
type BookPatch struct {
	Title  *string
	Author *string
}

// Empty reports whether the patch changes nothing.
func (p BookPatch) Empty() bool { return p.Title == nil && p.Author == nil }

// LibraryPatch is a partial update. Nil fields are left untouched.
type LibraryPatch struct {
	Name    *string
	Address *string
}

// Empty reports whether the patch changes nothing.
func (p LibraryPatch) Empty() bool { return p.Name == nil && p.Address == nil }

// BookPage is one page of books with totals over the whole result set.
type BookPage struct {
	Books      []Book `json:"books" msgpack:"books" cbor:"books"`
	TotalCount int    `json:"totalCount" msgpack:"totalCount" cbor:"totalCount"`
	TotalPages int    `json:"totalPages" msgpack:"totalPages" cbor:"totalPages"`
}

// LibraryPage is one page of libraries with totals over the whole result set.
type LibraryPage struct {
	Libraries  []Library `json:"libraries" msgpack:"libraries" cbor:"libraries"`
	TotalCount int       `json:"totalCount" msgpack:"totalCount" cbor:"totalCount"`
	TotalPages int       `json:"totalPages" msgpack:"totalPages" cbor:"totalPages"`
}
