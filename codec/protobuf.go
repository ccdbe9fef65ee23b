package codec

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Protobuf encodes generated protobuf messages.
type Protobuf[T proto.Message] struct {
	new func() T // constructor for a concrete message (e.g., func() *structpb.Struct { return &structpb.Struct{} })
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.new()
	err := proto.Unmarshal(b, m)
	return m, err
}

// Struct carries any JSON object shaped V as a google.protobuf.Struct, which lets
// plain Go structs share a cache with protobuf consumers without generated types.
// V must encode to a JSON object. Numbers travel as doubles.
type Struct[V any] struct {
	pb Protobuf[*structpb.Struct]
}

var _ Codec[struct{}] = Struct[struct{}]{}

func NewStruct[V any]() Struct[V] {
	return Struct[V]{pb: NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} })}
}

func (c Struct[V]) Encode(v V) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("codec: struct: %T is not a JSON object: %w", v, err)
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return c.pb.Encode(s)
}

func (c Struct[V]) Decode(b []byte) (V, error) {
	var v V
	if c.pb.new == nil {
		return v, fmt.Errorf("codec: struct codec not initialised, use NewStruct")
	}
	s, err := c.pb.Decode(b)
	if err != nil {
		return v, err
	}
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return v, err
	}
	err = json.Unmarshal(raw, &v)
	return v, err
}
