// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package rewind

import "github.com/vectorfield/repcore/pkg/wire"

// PhysicsBody is a live pawn's rigid-body state sink and source, the
// Go analogue of bge_network/physics.py's copy_state(source, target)
// where target is the live Actor object itself: State reads the
// pawn's current values into a Snapshot, RestoreState copies a
// Snapshot's fields back into the pawn in place.
type PhysicsBody interface {
	State() Snapshot
	RestoreState(Snapshot)
}

// PhysicsAdapter resolves a pawn id to its live PhysicsBody, the way
// rewind_to's WorldInfo.subclass_of(Pawn) lookup finds the live Actor
// a stored snapshot should be copied onto. Pawn reports false for an
// id with no live body (e.g. it despawned since the snapshot was
// captured), which Buffer.RewindTo silently skips rather than failing
// the whole rewind.
type PhysicsAdapter interface {
	Pawn(id wire.InstanceID) (PhysicsBody, bool)
}

// LocalBody adapts a bare *Snapshot into a PhysicsBody, using CopyInto
// so the underlying Snapshot's address is never replaced, only its
// fields overwritten -- the same "no reference replacement" contract
// spec §4.7 describes for the live Actor itself. Useful wherever a
// pawn's rigid-body state lives directly in memory rather than behind
// internal/registry (a client's own locally-simulated, unreplicated
// pawn during prediction rewind, or a test double).
type LocalBody struct {
	Live *Snapshot
}

func (b LocalBody) State() Snapshot { return *b.Live }

func (b LocalBody) RestoreState(s Snapshot) { s.CopyInto(b.Live) }

// LocalAdapter is a PhysicsAdapter over a fixed map of pawn ids to
// in-memory Snapshots.
type LocalAdapter map[wire.InstanceID]*Snapshot

func (a LocalAdapter) Pawn(id wire.InstanceID) (PhysicsBody, bool) {
	s, ok := a[id]
	if !ok {
		return nil, false
	}
	return LocalBody{Live: s}, true
}
