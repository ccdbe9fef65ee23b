package query

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/samber/lo"

	"github.com/unkn0wn-root/shelfcache/model"
)

// BookMatch is the closed set of text match variants for book searches:
// NoMatch, TitleAuthor or FreeText.
type BookMatch interface{ isBookMatch() }

// LibraryMatch is the closed set of text match variants for library searches:
// NoMatch, NameAddress or FreeText.
type LibraryMatch interface{ isLibraryMatch() }

// NoMatch places no text constraint.
type NoMatch struct{}

// TitleAuthor matches case-insensitive substrings. Both non-empty terms must match.
type TitleAuthor struct {
	Title  string
	Author string
}

// NameAddress matches case-insensitive substrings. Both non-empty terms must match.
type NameAddress struct {
	Name    string
	Address string
}

// FreeText searches the indexed text fields. For books any whitespace separated
// term may match title or author. For libraries the whole text must appear in name or address.
type FreeText struct {
	Text string
}

func (NoMatch) isBookMatch()        {}
func (NoMatch) isLibraryMatch()     {}
func (TitleAuthor) isBookMatch()    {}
func (NameAddress) isLibraryMatch() {}
func (FreeText) isBookMatch()       {}
func (FreeText) isLibraryMatch()    {}

// Terms returns the lowercased search terms of t.
func (t FreeText) Terms() []string {
	return lo.Uniq(strings.Fields(strings.ToLower(t.Text)))
}

// BookFilter constrains a book search. Library is an exact match on the owning
// library and combines with Match conjunctively.
type BookFilter struct {
	Library string
	Match   BookMatch
}

// LibraryFilter constrains a library search.
type LibraryFilter struct {
	Match LibraryMatch
}

// BookParams is the loosely typed search input as received from a caller.
type BookParams struct {
	Title      string
	Author     string
	Library    string
	SearchText string
}

// LibraryParams is the loosely typed search input as received from a caller.
type LibraryParams struct {
	Name       string
	Address    string
	SearchText string
}

// BookFilterFrom folds params into a BookFilter. Free text replaces title and author.
func BookFilterFrom(p BookParams) BookFilter {
	f := BookFilter{Library: strings.TrimSpace(p.Library), Match: NoMatch{}}
	title, author, text := strings.TrimSpace(p.Title), strings.TrimSpace(p.Author), strings.TrimSpace(p.SearchText)
	switch {
	case text != "":
		f.Match = FreeText{Text: text}
	case title != "" || author != "":
		f.Match = TitleAuthor{Title: title, Author: author}
	}
	return f
}

// LibraryFilterFrom folds params into a LibraryFilter. Free text replaces name and address.
func LibraryFilterFrom(p LibraryParams) LibraryFilter {
	f := LibraryFilter{Match: NoMatch{}}
	name, addr, text := strings.TrimSpace(p.Name), strings.TrimSpace(p.Address), strings.TrimSpace(p.SearchText)
	switch {
	case text != "":
		f.Match = FreeText{Text: text}
	case name != "" || addr != "":
		f.Match = NameAddress{Name: name, Address: addr}
	}
	return f
}

// Matches evaluates f against b in process.
func (f BookFilter) Matches(b model.Book) bool {
	if f.Library != "" && b.Library != f.Library {
		return false
	}
	switch m := f.Match.(type) {
	case nil, NoMatch:
		return true
	case TitleAuthor:
		return containsFold(b.Title, m.Title) && containsFold(b.Author, m.Author)
	case FreeText:
		terms := m.Terms()
		if len(terms) == 0 {
			return true
		}
		return lo.SomeBy(terms, func(t string) bool {
			return containsFold(b.Title, t) || containsFold(b.Author, t)
		})
	default:
		return false
	}
}

// Matches evaluates f against l in process.
func (f LibraryFilter) Matches(l model.Library) bool {
	switch m := f.Match.(type) {
	case nil, NoMatch:
		return true
	case NameAddress:
		return containsFold(l.Name, m.Name) && containsFold(l.Address, m.Address)
	case FreeText:
		return containsFold(l.Name, m.Text) || containsFold(l.Address, m.Text)
	default:
		return false
	}
}

// containsFold reports whether sub is within s ignoring case. An empty sub always matches.
func containsFold(s, sub string) bool {
	if sub == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

type bookKeyFields struct {
	Title      string `json:"title,omitempty"`
	Author     string `json:"author,omitempty"`
	Library    string `json:"library,omitempty"`
	SearchText string `json:"searchText,omitempty"`
}

type libraryKeyFields struct {
	Name       string `json:"name,omitempty"`
	Address    string `json:"address,omitempty"`
	SearchText string `json:"searchText,omitempty"`
}

// Canonical returns a deterministic JSON object for f with a fixed field order.
// Equal filters always serialize to equal strings.
func (f BookFilter) Canonical() string {
	k := bookKeyFields{Library: f.Library}
	switch m := f.Match.(type) {
	case TitleAuthor:
		k.Title, k.Author = m.Title, m.Author
	case FreeText:
		k.SearchText = m.Text
	}
	return marshalCanonical(k)
}

// Canonical returns a deterministic JSON object for f with a fixed field order.
func (f LibraryFilter) Canonical() string {
	var k libraryKeyFields
	switch m := f.Match.(type) {
	case NameAddress:
		k.Name, k.Address = m.Name, m.Address
	case FreeText:
		k.SearchText = m.Text
	}
	return marshalCanonical(k)
}

// Quote returns s as a JSON string literal without HTML escaping.
func Quote(s string) string {
	return marshalCanonical(s)
}

func marshalCanonical(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		// only plain strings are encoded here
		return "{}"
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
