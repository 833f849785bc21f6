// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package channel implements the per-(connection, replicable) replication
// state machine (spec §4.5, component E): dirty tracking against a
// last-sent snapshot, RPC queue draining, and packet framing. Grounded
// on internal/ron/command.go's Command/Response framing discipline
// (explicit defensive-copy semantics, ordered field lists) and
// internal/ron/server.go's gob Message envelope, adapted from gob to
// spec.md §6.1's exact byte layout for the payload itself.
package channel

import (
	"bytes"
	"time"

	"github.com/vectorfield/repcore/internal/repobj"
	"github.com/vectorfield/repcore/pkg/wire"
)

// Channel is one per (connection, replicable). It never outlives the
// connection or replicable it belongs to; the connection layer owns its
// lifetime (creation on relevance, teardown on ReplicableUnregistered).
type Channel struct {
	InstanceID wire.InstanceID

	lastSnapshot        map[string][]byte
	LastReplicationTime time.Time

	rpcQueue []repobj.RPCCall

	// IsInitial is true until the first successful attribute/creation
	// packet has been produced for this channel (spec §3).
	IsInitial bool

	// PackedID caches the 2-byte wire encoding of InstanceID so repeated
	// framing doesn't re-encode it every tick.
	PackedID [2]byte
}

// New creates a fresh channel for id, starting in the initial state.
func New(id wire.InstanceID) *Channel {
	var packed [2]byte
	b := wire.PackInstanceID(id)
	copy(packed[:], b)

	return &Channel{
		InstanceID:   id,
		lastSnapshot: make(map[string][]byte),
		IsInitial:    true,
		PackedID:     packed,
	}
}

type attrChange struct {
	index int
	name  string
	bytes []byte
	flags repobj.AttributeFlags
}

// planAttributes computes the set of changed attributes for this firing
// without mutating any channel or instance state -- split out from
// GetAttributes so a caller (the connection's bandwidth-budgeted send
// loop) can peek the would-be wire size via PeekAttributesSize before
// deciding whether to commit the diff (spec §4.6's bandwidth
// discipline: a skipped attribute send must leave complaint/dirty state
// untouched for the next tick).
func (ch *Channel) planAttributes(reg *wire.Registry, r *repobj.Instance, isOwner bool) ([]attrChange, error) {
	isComplaint := r.HasComplaint()
	names := r.Class.ConditionSet(isOwner, isComplaint, ch.IsInitial)

	var changes []attrChange

	for _, name := range names {
		idx, ok := r.Class.AttributeIndex(name)
		if !ok {
			continue
		}
		d, _ := r.Class.Attribute(name)

		v, err := r.Get(name)
		if err != nil {
			return nil, err
		}

		h := reg.MustGetHandler(d.Type)
		packed := h.Pack(v)

		if prev, ok := ch.lastSnapshot[name]; ok && bytes.Equal(prev, packed) {
			continue
		}

		changes = append(changes, attrChange{index: idx, name: name, bytes: packed, flags: d.Flags})
	}

	return changes, nil
}

func frameChanges(changes []attrChange) []byte {
	if len(changes) == 0 {
		return nil
	}

	buf := make([]byte, 0, 64)
	buf = wire.PutUvarint(buf, uint64(len(changes)))
	for _, c := range changes {
		buf = wire.PutUvarint(buf, uint64(c.index))
		buf = append(buf, c.bytes...)
	}
	return buf
}

// commitAttributes writes the planned changes into the last-sent
// snapshot, clears complaint bits for complain-flagged attributes (see
// the Open Question decision recorded in DESIGN.md: cleared per
// channel-read, not refcounted across every watching connection), and
// updates LastReplicationTime/IsInitial -- the bookkeeping spec §4.5
// says happens unconditionally at the end of get_attributes, whether or
// not anything actually changed.
func (ch *Channel) commitAttributes(r *repobj.Instance, changes []attrChange, now time.Time) {
	for _, c := range changes {
		ch.lastSnapshot[c.name] = c.bytes
		if c.flags.Has(repobj.FlagComplain) {
			r.ClearComplaint(c.name)
		}
	}
	ch.LastReplicationTime = now
	ch.IsInitial = false
}

// GetAttributes implements spec §4.5's get_attributes: evaluates the
// condition set, diffs each eligible attribute against the last-sent
// snapshot, and frames the changed ones. Returns nil if nothing changed
// (callers must not emit an empty replication_update packet).
func (ch *Channel) GetAttributes(reg *wire.Registry, r *repobj.Instance, isOwner bool, now time.Time) ([]byte, error) {
	changes, err := ch.planAttributes(reg, r, isOwner)
	if err != nil {
		return nil, err
	}
	ch.commitAttributes(r, changes, now)
	return frameChanges(changes), nil
}

// PeekAttributesSize reports the would-be wire size of the next
// GetAttributes call without committing it, so a bandwidth-budgeted
// caller can decide whether there's room before mutating any state.
func (ch *Channel) PeekAttributesSize(reg *wire.Registry, r *repobj.Instance, isOwner bool) (int, error) {
	changes, err := ch.planAttributes(reg, r, isOwner)
	if err != nil {
		return 0, err
	}
	return len(frameChanges(changes)), nil
}

// SetAttributes implements the inverse of GetAttributes: decodes a
// replication_update payload (post id field) and writes each decoded
// value through the descriptor, firing Notify for notify-flagged
// attributes (spec §4.5 set_attributes).
func (ch *Channel) SetAttributes(reg *wire.Registry, r *repobj.Instance, payload []byte) error {
	n, consumed := wire.Uvarint(payload)
	if consumed <= 0 {
		return errShortPayload
	}
	payload = payload[consumed:]

	for i := uint64(0); i < n; i++ {
		idx, consumed := wire.Uvarint(payload)
		if consumed <= 0 {
			return errShortPayload
		}
		payload = payload[consumed:]

		d, ok := r.Class.AttributeAt(int(idx))
		if !ok {
			return errUnknownAttributeIndex
		}

		h := reg.MustGetHandler(d.Type)
		size, err := h.Size(payload)
		if err != nil {
			return err
		}
		v, _, err := h.UnpackFrom(payload)
		if err != nil {
			return err
		}
		payload = payload[size:]

		if err := r.Set(d.Name, v); err != nil {
			return err
		}
		ch.lastSnapshot[d.Name] = h.Pack(v)

		if d.Flags.Has(repobj.FlagNotify) {
			r.Notify(d.Name)
		}
	}

	return nil
}

// QueueRPC appends a serialized call to this channel's outbound queue
// (installed as the replicable's rpcSink by the connection layer, per
// DESIGN.md's decision on the "owning channel" wording in spec §4.1).
func (ch *Channel) QueueRPC(call repobj.RPCCall) {
	ch.rpcQueue = append(ch.rpcQueue, call)
}

// TakeRPCCalls drains and returns the queued RPC calls, clearing the
// queue (spec §4.5 take_rpc_calls).
func (ch *Channel) TakeRPCCalls() []repobj.RPCCall {
	if len(ch.rpcQueue) == 0 {
		return nil
	}
	out := ch.rpcQueue
	ch.rpcQueue = nil
	return out
}

// InvokeRPCCall implements spec §4.5 invoke_rpc_call: decode the rpc
// index and argument bytes from payload (post id field), permission
// check via callerIsOwnerRoot, then dispatch.
func (ch *Channel) InvokeRPCCall(reg *wire.Registry, r *repobj.Instance, callerIsOwnerRoot bool, payload []byte) error {
	if !callerIsOwnerRoot {
		return errPermissionDenied
	}

	rpcIndex, n, err := repobj.DecodeRPCIndex(payload)
	if err != nil {
		return err
	}
	payload = payload[n:]

	d, ok := r.Class.RPCAt(rpcIndex)
	if !ok {
		return errUnknownRPCIndex
	}

	args := make([]interface{}, len(d.ArgTypes))
	for i, typeName := range d.ArgTypes {
		h := reg.MustGetHandler(typeName)
		size, err := h.Size(payload)
		if err != nil {
			return err
		}
		v, _, err := h.UnpackFrom(payload)
		if err != nil {
			return err
		}
		args[i] = v
		payload = payload[size:]
	}

	return r.InvokeDecoded(rpcIndex, args)
}
