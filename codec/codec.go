// Package codec turns cached values into bytes and back.
//
// A cached value that fails to decode is treated as corrupt by the repositories: the
// key is deleted and the value is read from the store again.
package codec

import "fmt"

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// SizeError is returned by Limit when a payload exceeds the configured bound.
type SizeError struct {
	Size int
	Max  int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("codec: payload too large: %d > %d", e.Size, e.Max)
}
