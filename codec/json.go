package codec

import "encoding/json"

// JSON encodes with encoding/json. It is the default codec: the documents it writes
// have the same shape as those produced by other services sharing the cache.
type JSON[V any] struct{}

var _ Codec[struct{}] = JSON[struct{}]{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
