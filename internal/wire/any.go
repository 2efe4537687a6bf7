package wire

import (
	"bytes"
	"fmt"
	"reflect"
)

const (
	typeKey  = "@type"
	valueKey = "@value"
)

// cborNull is the single-byte CBOR encoding of null.
var cborNull = []byte{0xf6}

// envelope is the wire shape of every class-tagged value.
type envelope struct {
	Type  string     `cbor:"@type"`
	Value RawMessage `cbor:"@value"`
}

// Any carries a dynamically typed value across the channel. The
// concrete type travels as a class name and is reconstructed from the
// default registry on decode. Pointer values decode as the pointed-to
// type.
type Any struct {
	Value any
}

// MarshalCBOR encodes the value inside a class envelope.
func (a Any) MarshalCBOR() ([]byte, error) {
	if a.Value == nil {
		return cborNull, nil
	}
	if _, nested := a.Value.(Any); nested {
		return nil, fmt.Errorf("wire: Any cannot wrap Any directly")
	}
	name, err := defaultRegistry.NameOf(a.Value)
	if err != nil {
		return nil, err
	}
	raw, err := encMode.Marshal(a.Value)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", name, err)
	}
	return encMode.Marshal(envelope{Type: name, Value: raw})
}

// UnmarshalCBOR reconstructs the value. Decode runs admission over the
// whole graph before any UnmarshalCBOR call happens.
func (a *Any) UnmarshalCBOR(data []byte) error {
	if bytes.Equal(data, cborNull) {
		a.Value = nil
		return nil
	}
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("wire: malformed envelope: %w", err)
	}
	if env.Type == "" {
		return fmt.Errorf("wire: envelope without %s", typeKey)
	}
	t, err := defaultRegistry.TypeOf(env.Type)
	if err != nil {
		return err
	}
	ptr := reflect.New(t)
	if len(env.Value) > 0 {
		if err := decMode.Unmarshal(env.Value, ptr.Interface()); err != nil {
			return fmt.Errorf("wire: decode %s: %w", env.Type, err)
		}
	}
	a.Value = ptr.Elem().Interface()
	return nil
}
