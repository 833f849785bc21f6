// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package wire implements the type handler registry: it packs and unpacks
// declared attribute/RPC-argument values to and from the exact byte
// layouts this runtime puts on the wire. The registry maps a type name to
// a Handler; the core never hard-codes a byte layout itself, it asks the
// registry for one.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Handler packs and unpacks a single declared value type.
type Handler interface {
	// Pack encodes v to its wire representation.
	Pack(v interface{}) []byte

	// UnpackFrom decodes a value starting at the front of b, returning the
	// value and the number of bytes consumed.
	UnpackFrom(b []byte) (interface{}, int, error)

	// Size returns the number of bytes the encoding at the front of b
	// occupies, without fully decoding it. Needed for variable-width types.
	Size(b []byte) (int, error)
}

// Registry maps declared type names to the Handler that serializes them.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	r.RegisterHandler("uint8", Uint8Handler{})
	r.RegisterHandler("uint16", Uint16Handler{})
	r.RegisterHandler("uint32", Uint32Handler{})
	r.RegisterHandler("uint64", Uint64Handler{})
	r.RegisterHandler("float32", Float32Handler{})
	r.RegisterHandler("float64", Float64Handler{})
	r.RegisterHandler("string", StringHandler{})
	return r
}

func (r *Registry) RegisterHandler(typeName string, h Handler) {
	r.handlers[typeName] = h
}

func (r *Registry) GetHandler(typeName string) (Handler, bool) {
	h, ok := r.handlers[typeName]
	return h, ok
}

// MustGetHandler panics if typeName has no registered handler; used
// wherever a declared attribute or RPC argument type is packed or
// unpacked (channel framing, RPC calls), where an unknown declared type
// is a programming error, not a runtime condition to recover from.
func (r *Registry) MustGetHandler(typeName string) Handler {
	h, ok := r.GetHandler(typeName)
	if !ok {
		panic(fmt.Sprintf("wire: no handler registered for type %q", typeName))
	}
	return h
}

// ---- fixed-width unsigned integer handlers ----

type Uint8Handler struct{}

func (Uint8Handler) Pack(v interface{}) []byte { return []byte{v.(uint8)} }

func (Uint8Handler) UnpackFrom(b []byte) (interface{}, int, error) {
	if len(b) < 1 {
		return nil, 0, fmt.Errorf("wire: short buffer for uint8")
	}
	return b[0], 1, nil
}

func (Uint8Handler) Size(b []byte) (int, error) { return 1, nil }

type Uint16Handler struct{}

func (Uint16Handler) Pack(v interface{}) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v.(uint16))
	return b
}

func (Uint16Handler) UnpackFrom(b []byte) (interface{}, int, error) {
	if len(b) < 2 {
		return nil, 0, fmt.Errorf("wire: short buffer for uint16")
	}
	return binary.BigEndian.Uint16(b), 2, nil
}

func (Uint16Handler) Size(b []byte) (int, error) { return 2, nil }

type Uint32Handler struct{}

func (Uint32Handler) Pack(v interface{}) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v.(uint32))
	return b
}

func (Uint32Handler) UnpackFrom(b []byte) (interface{}, int, error) {
	if len(b) < 4 {
		return nil, 0, fmt.Errorf("wire: short buffer for uint32")
	}
	return binary.BigEndian.Uint32(b), 4, nil
}

func (Uint32Handler) Size(b []byte) (int, error) { return 4, nil }

type Uint64Handler struct{}

func (Uint64Handler) Pack(v interface{}) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v.(uint64))
	return b
}

func (Uint64Handler) UnpackFrom(b []byte) (interface{}, int, error) {
	if len(b) < 8 {
		return nil, 0, fmt.Errorf("wire: short buffer for uint64")
	}
	return binary.BigEndian.Uint64(b), 8, nil
}

func (Uint64Handler) Size(b []byte) (int, error) { return 8, nil }

// ---- floats, big-endian IEEE 754 ----

type Float32Handler struct{}

func (Float32Handler) Pack(v interface{}) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, math.Float32bits(v.(float32)))
	return b
}

func (Float32Handler) UnpackFrom(b []byte) (interface{}, int, error) {
	if len(b) < 4 {
		return nil, 0, fmt.Errorf("wire: short buffer for float32")
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b)), 4, nil
}

func (Float32Handler) Size(b []byte) (int, error) { return 4, nil }

type Float64Handler struct{}

func (Float64Handler) Pack(v interface{}) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(v.(float64)))
	return b
}

func (Float64Handler) UnpackFrom(b []byte) (interface{}, int, error) {
	if len(b) < 8 {
		return nil, 0, fmt.Errorf("wire: short buffer for float64")
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), 8, nil
}

func (Float64Handler) Size(b []byte) (int, error) { return 8, nil }

// ---- varint-length-prefixed UTF-8 string ----

type StringHandler struct{}

func (StringHandler) Pack(v interface{}) []byte {
	s := v.(string)
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(buf, uint64(len(s)))
	return append(buf[:n], s...)
}

func (StringHandler) UnpackFrom(b []byte) (interface{}, int, error) {
	l, n := binary.Uvarint(b)
	if n <= 0 {
		return nil, 0, fmt.Errorf("wire: invalid string length varint")
	}
	if len(b) < n+int(l) {
		return nil, 0, fmt.Errorf("wire: short buffer for string body")
	}
	return string(b[n : n+int(l)]), n + int(l), nil
}

func (StringHandler) Size(b []byte) (int, error) {
	l, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, fmt.Errorf("wire: invalid string length varint")
	}
	return n + int(l), nil
}
