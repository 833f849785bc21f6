// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package wire

import "encoding/binary"

// InstanceID identifies a replicable uniquely within a process's graph
// (spec §3, invariant 1). Defined here rather than in the registry
// package so that ReplicableRefHandler can pack/unpack it without an
// import cycle between wire and the packages that depend on wire.
type InstanceID uint16

// Resolver resolves a decoded InstanceID to the live object it names, or
// reports false if no such object currently exists. Supplied by whatever
// owns the live object graph (the replicable registry) at unpack time.
type Resolver func(id InstanceID) (interface{}, bool)

// PackInstanceID encodes id as a big-endian u16, the wire representation
// used by replication_init/update/del (§6.1).
func PackInstanceID(id InstanceID) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(id))
	return b
}

func UnpackInstanceID(b []byte) (InstanceID, int, error) {
	if len(b) < 2 {
		return 0, 0, errShortBuffer("instance id")
	}
	return InstanceID(binary.BigEndian.Uint16(b)), 2, nil
}

func errShortBuffer(what string) error {
	return &shortBufferError{what}
}

type shortBufferError struct{ what string }

func (e *shortBufferError) Error() string { return "wire: short buffer for " + e.what }

// ReplicableRefHandler encodes a replicable reference as its InstanceID,
// resolving to the live object at unpack time via resolve, or nil if the
// referenced id isn't currently present (spec §4.4).
type ReplicableRefHandler struct {
	Resolve Resolver
}

func (h ReplicableRefHandler) Pack(v interface{}) []byte {
	if v == nil {
		return PackInstanceID(0)
	}
	return PackInstanceID(v.(InstanceID))
}

func (h ReplicableRefHandler) UnpackFrom(b []byte) (interface{}, int, error) {
	id, n, err := UnpackInstanceID(b)
	if err != nil {
		return nil, 0, err
	}
	if id == 0 || h.Resolve == nil {
		return nil, n, nil
	}
	obj, ok := h.Resolve(id)
	if !ok {
		return nil, n, nil
	}
	return obj, n, nil
}

func (h ReplicableRefHandler) Size(b []byte) (int, error) {
	if len(b) < 2 {
		return 0, errShortBuffer("instance id")
	}
	return 2, nil
}
