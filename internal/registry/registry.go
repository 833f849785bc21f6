// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package registry is the replicable registry (spec §3, component D): the
// single source of truth for which InstanceIDs are live, bound to which
// *repobj.Instance. It is grounded on internal/ron/server.go's
// clients/vms-map-plus-clientLock shape, generalized from "one map per
// concern" to "one map of live objects" plus the identity-reconciliation
// and authority-takeover machinery spec §3 requires that ron's client
// registry never needed.
package registry

import (
	"sync"

	"github.com/vectorfield/repcore/internal/repobj"
	"github.com/vectorfield/repcore/internal/signal"
	"github.com/vectorfield/repcore/pkg/rlog"
	"github.com/vectorfield/repcore/pkg/wire"
)

// Registry owns the live object graph: the map from InstanceID to
// *repobj.Instance that every other component (channel, connection,
// rewind buffer) resolves references through.
type Registry struct {
	mu      sync.Mutex
	objects map[wire.InstanceID]*repobj.Instance
	nextID  wire.InstanceID

	bus *signal.Bus
}

// New creates an empty registry. bus may be nil if the caller doesn't
// need ReplicableRegistered/Unregistered notifications (mainly useful in
// tests).
func New(bus *signal.Bus) *Registry {
	if bus != nil {
		// ReplicableRegistered is a cached signal: a global listener that
		// subscribes late is replayed every earlier registration firing.
		bus.MakeCached(signal.KindReplicableRegistered)
	}
	return &Registry{
		objects: make(map[wire.InstanceID]*repobj.Instance),
		nextID:  1, // 0 is the wire package's "no reference" sentinel
		bus:     bus,
	}
}

// AllocateID hands out the next unused InstanceID. Never returns 0: that
// value is reserved by pkg/wire.ReplicableRefHandler to mean "no
// reference".
func (r *Registry) AllocateID() wire.InstanceID {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		id := r.nextID
		r.nextID++
		if id == 0 {
			continue // wrapped past 65535, 0 is reserved
		}
		if _, taken := r.objects[id]; !taken {
			return id
		}
	}
}

// Register binds inst into the live graph under inst.ID (statically
// identified replicables arrive with an ID already assigned by the
// application) or, if inst.ID is zero, allocates one (dynamic identity,
// spec §3). Fires ReplicableRegistered.
func (r *Registry) Register(inst *repobj.Instance) wire.InstanceID {
	r.mu.Lock()

	id := inst.ID
	if id == 0 {
		id = r.AllocateIDLocked()
		inst.ID = id
	}

	r.objects[id] = inst
	inst.SetRegistered(true)
	bus := r.bus
	r.mu.Unlock()

	if bus != nil {
		bus.Fire(signal.KindReplicableRegistered, id, inst.Class.Name)
	}

	return id
}

// AllocateIDLocked is AllocateID for callers that already hold mu (used
// internally by Register and Reconcile to allocate and bind atomically).
func (r *Registry) AllocateIDLocked() wire.InstanceID {
	for {
		id := r.nextID
		r.nextID++
		if id == 0 {
			continue
		}
		if _, taken := r.objects[id]; !taken {
			return id
		}
	}
}

// Lookup resolves id to its live instance. Implements wire.Resolver's
// contract (minus the interface{} boxing, done by the caller) and
// repobj.Resolve.
func (r *Registry) Lookup(id wire.InstanceID) (*repobj.Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, ok := r.objects[id]
	return obj, ok
}

// Resolve adapts Lookup to pkg/wire.Resolver's interface{}-returning
// shape, for use as ReplicableRefHandler.Resolve.
func (r *Registry) Resolve(id wire.InstanceID) (interface{}, bool) {
	obj, ok := r.Lookup(id)
	if !ok {
		return nil, false
	}
	return obj, true
}

// Unregister removes id from the live graph and fires
// ReplicableUnregistered. A no-op if id isn't currently registered.
func (r *Registry) Unregister(id wire.InstanceID) {
	r.mu.Lock()
	obj, ok := r.objects[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.objects, id)
	obj.SetRegistered(false)
	bus := r.bus
	r.mu.Unlock()

	if bus != nil {
		bus.Fire(signal.KindReplicableUnregistered, id, obj.Class.Name)
	}
}

// CreateOrReturn returns the instance already registered at id, or
// registers and returns inst if none exists yet. Used on the client side
// of replication_init, where the object may already exist from a prior
// (now-superseded) init of the same id (spec §4.2 edge case).
func (r *Registry) CreateOrReturn(id wire.InstanceID, inst *repobj.Instance) *repobj.Instance {
	r.mu.Lock()
	if existing, ok := r.objects[id]; ok {
		r.mu.Unlock()
		return existing
	}
	r.mu.Unlock()

	inst.ID = id
	r.Register(inst)
	return inst
}

// Reconcile implements authority takeover (spec §3): claimant is taking
// over authority of the replicable previously occupying id. If a
// different, still-live dynamic-identity object currently occupies id,
// it is displaced to a freshly allocated id rather than overwritten, so
// its state isn't silently destroyed; the registry returns that
// object's new id so callers (the connection layer) can re-announce it.
// Static-identity occupants are never displaced: Reconcile returns an
// error-equivalent zero ReconcileResult.Displaced == false with
// Accepted == false if id is occupied by a static-identity instance
// other than claimant itself.
type ReconcileResult struct {
	Accepted  bool
	Displaced *repobj.Instance
	NewID     wire.InstanceID // valid iff Displaced != nil
}

func (r *Registry) Reconcile(id wire.InstanceID, claimant *repobj.Instance) ReconcileResult {
	r.mu.Lock()

	occupant, occupied := r.objects[id]
	if !occupied {
		claimant.ID = id
		r.objects[id] = claimant
		claimant.SetRegistered(true)
		r.mu.Unlock()
		if r.bus != nil {
			r.bus.Fire(signal.KindReplicableRegistered, id, claimant.Class.Name)
		}
		return ReconcileResult{Accepted: true}
	}

	if occupant == claimant {
		r.mu.Unlock()
		return ReconcileResult{Accepted: true}
	}

	if occupant.IdentityKind == repobj.IdentityStatic {
		r.mu.Unlock()
		rlog.Warn("registry: refusing to displace static identity %d for authority takeover", id)
		return ReconcileResult{Accepted: false}
	}

	// Displace the dynamic occupant to a fresh id instead of recursively
	// re-registering it at id=0 (which could loop if the freshly
	// allocated id collides again under concurrent load); AllocateIDLocked
	// returns within one pass over wire.InstanceID's 16-bit range whenever
	// a nonzero id is free, and does not return while all 65535 nonzero
	// ids are live (decision recorded in DESIGN.md).
	newID := r.AllocateIDLocked()
	delete(r.objects, id)
	occupant.ID = newID
	r.objects[newID] = occupant

	claimant.ID = id
	r.objects[id] = claimant
	claimant.SetRegistered(true)

	bus := r.bus
	r.mu.Unlock()

	if bus != nil {
		bus.Fire(signal.KindReplicableRegistered, id, claimant.Class.Name)
	}

	return ReconcileResult{Accepted: true, Displaced: occupant, NewID: newID}
}

// Count returns the number of currently registered replicables, used by
// Instance.UppermostOwner callers as a generous cycle-breaking bound.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.objects)
}

// All returns a snapshot slice of every currently registered instance,
// used by the connection layer's per-tick relevance scan (spec §4.6).
func (r *Registry) All() []*repobj.Instance {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*repobj.Instance, 0, len(r.objects))
	for _, obj := range r.objects {
		out = append(out, obj)
	}
	return out
}
