package shelfcache

import (
	"fmt"

	"github.com/unkn0wn-root/shelfcache/codec"
	"github.com/unkn0wn-root/shelfcache/model"
)

// Codecs bundles one codec per cached value shape.
// Any nil member falls back to JSON.
type Codecs struct {
	Book        codec.Codec[model.Book]
	Library     codec.Codec[model.Library]
	BookPage    codec.Codec[model.BookPage]
	LibraryPage codec.Codec[model.LibraryPage]
}

// CodecsFor returns the bundle named by name: "json" (or ""), "msgpack", "cbor" or "protobuf".
func CodecsFor(name string) (Codecs, error) {
	switch name {
	case "", "json":
		return Codecs{
			Book:        codec.JSON[model.Book]{},
			Library:     codec.JSON[model.Library]{},
			BookPage:    codec.JSON[model.BookPage]{},
			LibraryPage: codec.JSON[model.LibraryPage]{},
		}, nil
	case "msgpack":
		return Codecs{
			Book:        codec.Msgpack[model.Book]{},
			Library:     codec.Msgpack[model.Library]{},
			BookPage:    codec.Msgpack[model.BookPage]{},
			LibraryPage: codec.Msgpack[model.LibraryPage]{},
		}, nil
	case "cbor":
		return cborCodecs()
	case "protobuf":
		return Codecs{
			Book:        codec.NewStruct[model.Book](),
			Library:     codec.NewStruct[model.Library](),
			BookPage:    codec.NewStruct[model.BookPage](),
			LibraryPage: codec.NewStruct[model.LibraryPage](),
		}, nil
	default:
		return Codecs{}, fmt.Errorf("shelfcache: unknown codec %q", name)
	}
}

func cborCodecs() (Codecs, error) {
	b, err := codec.NewCBOR[model.Book](true)
	if err != nil {
		return Codecs{}, err
	}
	l, err := codec.NewCBOR[model.Library](true)
	if err != nil {
		return Codecs{}, err
	}
	bp, err := codec.NewCBOR[model.BookPage](true)
	if err != nil {
		return Codecs{}, err
	}
	lp, err := codec.NewCBOR[model.LibraryPage](true)
	if err != nil {
		return Codecs{}, err
	}
	return Codecs{Book: b, Library: l, BookPage: bp, LibraryPage: lp}, nil
}

// Limit caps the payload size every member will decode. maxBytes <= 0 returns c unchanged.
func (c Codecs) Limit(maxBytes int) Codecs {
	if maxBytes <= 0 {
		return c
	}
	c = c.orDefault()
	return Codecs{
		Book:        codec.Limit[model.Book]{Inner: c.Book, Max: maxBytes},
		Library:     codec.Limit[model.Library]{Inner: c.Library, Max: maxBytes},
		BookPage:    codec.Limit[model.BookPage]{Inner: c.BookPage, Max: maxBytes},
		LibraryPage: codec.Limit[model.LibraryPage]{Inner: c.LibraryPage, Max: maxBytes},
	}
}

func (c Codecs) orDefault() Codecs {
	if c.Book == nil {
		c.Book = codec.JSON[model.Book]{}
	}
	if c.Library == nil {
		c.Library = codec.JSON[model.Library]{}
	}
	if c.BookPage == nil {
		c.BookPage = codec.JSON[model.BookPage]{}
	}
	if c.LibraryPage == nil {
		c.LibraryPage = codec.JSON[model.LibraryPage]{}
	}
	return c
}
