// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package repobj

import (
	"time"

	"github.com/vectorfield/repcore/pkg/wire"
)

// IdentityKind distinguishes a statically-assigned instance id (survives
// authority transfer) from a dynamically-allocated one (subject to
// reconciliation, spec §3).
type IdentityKind int

const (
	IdentityDynamic IdentityKind = iota
	IdentityStatic
)

// Instance is one live replicable: a Class plus all per-instance state
// spec §3 describes (identity, roles, ownership, attribute store,
// complaint bits). Attribute reads/writes go through Get/Set rather
// than a descriptor-intercepted field access (spec §9's "explicit
// attribute container" generalization of the source's descriptor hack).
type Instance struct {
	ID           wire.InstanceID
	IdentityKind IdentityKind
	Class        *Class

	Roles Roles

	// OwnerID is a non-owning back-reference: we store the id and look
	// the owner up through a resolver rather than holding a hard pointer,
	// so that cyclic ownership (pawn -> controller -> pawn) never leaks
	// memory or creates an un-GC-able cycle (spec §9).
	OwnerID wire.InstanceID

	ReplicationPriority     float64
	ReplicationUpdatePeriod time.Duration

	registered bool

	values    map[string]interface{}
	complaint map[string]bool

	rpcSink  func(RPCCall)
	onNotify func(attrName string)
}

func NewInstance(class *Class, id wire.InstanceID, kind IdentityKind) *Instance {
	return &Instance{
		ID:           id,
		IdentityKind: kind,
		Class:        class,
		values:       make(map[string]interface{}),
		complaint:    make(map[string]bool),
	}
}

func (i *Instance) SetRPCSink(fn func(RPCCall))      { i.rpcSink = fn }
func (i *Instance) SetNotifyHandler(fn func(string)) { i.onNotify = fn }
func (i *Instance) Registered() bool                 { return i.registered }

// SetRegistered is called by the replicable registry as it transitions
// an instance through unregistered -> registered -> unregistered
// (spec §3 lifecycle). Not meant to be called by application code.
func (i *Instance) SetRegistered(v bool) { i.registered = v }

// Get materializes the instance's slot for name on first access (deep
// copying the class default) and returns its current value.
func (i *Instance) Get(name string) (interface{}, error) {
	if v, ok := i.values[name]; ok {
		return v, nil
	}

	d, ok := i.Class.Attribute(name)
	if !ok {
		return nil, errUnknownAttribute
	}

	v := deepCopyDefault(d.Default)
	i.values[name] = v
	return v, nil
}

// Set writes a new value through the attribute descriptor. If the
// attribute is marked complain, the instance's complaint bit for it is
// set (spec §4.1).
func (i *Instance) Set(name string, value interface{}) error {
	d, ok := i.Class.Attribute(name)
	if !ok {
		return errUnknownAttribute
	}

	i.values[name] = value

	if d.Flags.Has(FlagComplain) {
		i.complaint[name] = true
	}

	return nil
}

// HasComplaint reports whether any complaint bit is currently set --
// the is_complaint input to the channel's condition-set evaluation
// (spec §4.5).
func (i *Instance) HasComplaint() bool {
	for _, v := range i.complaint {
		if v {
			return true
		}
	}
	return false
}

func (i *Instance) IsComplaining(name string) bool {
	return i.complaint[name]
}

// ClearComplaint clears the complaint bit for name. Idempotent: calling
// it twice, or on an attribute with no complaint set, is a no-op. See
// DESIGN.md for the Open Question this resolves (complaint bits are
// per-object but channels are per-connection).
func (i *Instance) ClearComplaint(name string) {
	delete(i.complaint, name)
}

// Notify fires the registered on_notify callback for a remotely-written,
// notify-flagged attribute (spec §4.5 set_attributes).
func (i *Instance) Notify(name string) {
	if i.onNotify != nil {
		i.onNotify(name)
	}
}

// CallRPC implements spec §4.1's invocation rule: if localNetmode equals
// the RPC's declared target, run the body immediately; otherwise pack
// args via reg and append to the owning channel's queue through the
// injected rpcSink.
func (i *Instance) CallRPC(localNetmode Netmode, reg *wire.Registry, name string, args ...interface{}) error {
	d, ok := i.Class.RPC(name)
	if !ok {
		return errUnknownRPC
	}

	if localNetmode == d.Target {
		return d.Body(i, args)
	}

	if len(args) != len(d.ArgTypes) {
		return errShortPayload
	}

	packed := make([][]byte, len(args))
	for idx, a := range args {
		h := reg.MustGetHandler(d.ArgTypes[idx])
		packed[idx] = h.Pack(a)
	}

	call := RPCCall{
		RPCIndex: d.Index,
		Bytes:    EncodeRPCCall(d.Index, packed),
		Reliable: d.Reliable,
	}

	if i.rpcSink != nil {
		i.rpcSink(call)
	}

	return nil
}

// InvokeDecoded runs the local body of the RPC at rpcIndex with
// already-decoded args, used by the receive side after permission
// checking (spec §4.5 invoke_rpc_call).
func (i *Instance) InvokeDecoded(rpcIndex int, args []interface{}) error {
	d, ok := i.Class.RPCAt(rpcIndex)
	if !ok {
		return errUnknownRPC
	}
	return d.Body(i, args)
}
