package wire

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Limits applied to every decode of untrusted channel data.
const (
	maxNestedLevels  = 64
	maxArrayElements = 65536
	maxMapPairs      = 65536
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2): the same
// object graph always produces identical bytes.
var encMode cbor.EncMode

// decMode rejects duplicate map keys so an envelope cannot carry two
// different "@type" values, one for the admission walk and another for
// construction. Tags are forbidden so no envelope can hide inside tag
// content the admission walk does not descend into. Field names match
// case-sensitively so construction only honors the exact "@type" key
// the admission walk reads.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("wire: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:    reflect.TypeOf(map[string]any(nil)),
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		TagsMd:            cbor.TagsForbidden,
		FieldNameMatching: cbor.FieldNameMatchingCaseSensitive,
		MaxNestedLevels:   maxNestedLevels,
		MaxArrayElements:  maxArrayElements,
		MaxMapPairs:       maxMapPairs,
	}.DecMode()
	if err != nil {
		panic("wire: CBOR decoder initialization failed: " + err.Error())
	}
}

// RawMessage is a raw encoded CBOR value.
type RawMessage = cbor.RawMessage
