package codec

// Limit wraps another codec and refuses to decode payloads longer than Max bytes.
// Encode is forwarded unchanged. Max <= 0 disables the check.
//
// Typical use: bound what a shared cache can make this process allocate.
type Limit[V any] struct {
	Inner Codec[V]
	Max   int
}

var _ Codec[struct{}] = Limit[struct{}]{}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }
func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.Max > 0 && len(b) > c.Max {
		var zero V
		return zero, &SizeError{Size: len(b), Max: c.Max}
	}
	return c.Inner.Decode(b)
}
