// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package rewind implements the server-only bounded history of physics
// snapshots used for lag-compensated hit checks (spec §4.7, component
// G). Grounded on pkg/rlog/ring.go's bounded, oldest-evicted buffer
// idiom, generalized from a pure FIFO ring (which only supports
// oldest-to-newest iteration) to a tick-indexed map with FIFO eviction
// order tracked alongside it, since rewind_to(tick) needs O(1) lookup
// by an arbitrary historical key rather than sequential replay.
package rewind

import (
	"errors"
	"sync"

	"github.com/vectorfield/repcore/pkg/wire"
)

// ErrOutOfRange is returned by SnapshotAt, PawnIDsAt, and RewindTo for
// a tick that was never captured or has since been evicted (spec
// §4.7, §7 RewindOutOfRange).
var ErrOutOfRange = errors.New("rewind: tick out of range")

// Snapshot is one pawn's rigid-body state at a tick (spec §4.7).
type Snapshot struct {
	Position       [3]float64
	Velocity       [3]float64
	Angular        [3]float64
	Rotation       [4]float64 // quaternion
	CollisionGroup uint32
	CollisionMask  uint32
}

// CopyInto writes every field of s into dst in place, without replacing
// dst's identity -- spec §4.7 requires restoring "by copying fields in
// place (no reference replacement, so existing pointers remain valid)".
func (s Snapshot) CopyInto(dst *Snapshot) {
	dst.Position = s.Position
	dst.Velocity = s.Velocity
	dst.Angular = s.Angular
	dst.Rotation = s.Rotation
	dst.CollisionGroup = s.CollisionGroup
	dst.CollisionMask = s.CollisionMask
}

// Buffer is a bounded tick -> {pawnID -> Snapshot} history. Capacity is
// fixed at construction (tick_rate * rewind_seconds, spec invariant 7);
// once full, inserting a snapshot for a new tick evicts the oldest
// retained tick's entire snapshot set.
type Buffer struct {
	mu       sync.Mutex
	capacity int

	ticks     []int // FIFO insertion order, oldest first
	snapshots map[int]map[wire.InstanceID]Snapshot
}

// NewBuffer creates a buffer sized for tickRate ticks/sec retained for
// rewindSeconds. Capacity is always at least 1 tick.
func NewBuffer(tickRate int, rewindSeconds float64) *Buffer {
	capacity := int(float64(tickRate) * rewindSeconds)
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		capacity:  capacity,
		snapshots: make(map[int]map[wire.InstanceID]Snapshot),
	}
}

// Capture records pawnID's snapshot at tick, evicting the oldest
// retained tick if this insertion would exceed capacity and tick hasn't
// already been seen.
func (b *Buffer) Capture(tick int, pawnID wire.InstanceID, snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.snapshots[tick]
	if !ok {
		m = make(map[wire.InstanceID]Snapshot)
		b.snapshots[tick] = m
		b.ticks = append(b.ticks, tick)

		if len(b.ticks) > b.capacity {
			oldest := b.ticks[0]
			b.ticks = b.ticks[1:]
			delete(b.snapshots, oldest)
		}
	}

	m[pawnID] = snap
}

// SnapshotAt returns the recorded snapshot for pawnID at tick, or
// ErrOutOfRange if tick was never captured or has been evicted, or
// pawnID was not among the pawns captured that tick. This is a
// read-only peek (used for debug inspection); it does not touch any
// live pawn. Use RewindTo to actually restore live pawns.
func (b *Buffer) SnapshotAt(tick int, pawnID wire.InstanceID) (Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.snapshots[tick]
	if !ok {
		return Snapshot{}, ErrOutOfRange
	}

	snap, ok := m[pawnID]
	if !ok {
		return Snapshot{}, ErrOutOfRange
	}

	return snap, nil
}

// PawnIDsAt returns the ids of every pawn captured at tick, or
// ErrOutOfRange if tick was never captured or has been evicted. Used
// by WithRewind to know which live pawns to save before rewinding them.
func (b *Buffer) PawnIDsAt(tick int) ([]wire.InstanceID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.snapshots[tick]
	if !ok {
		return nil, ErrOutOfRange
	}

	ids := make([]wire.InstanceID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return ids, nil
}

// RewindTo restores every pawn captured at tick to its recorded state,
// via adapter, mirroring bge_network/physics.py's ServerPhysics.rewind_to
// (which iterates its own tick's {pawn: state} dict and calls
// copy_state(rigid_state, pawn) for each entry). A pawn id with no
// live body (adapter.Pawn reports false -- e.g. it despawned since the
// snapshot was captured) is skipped rather than failing the whole
// rewind. Returns ErrOutOfRange if tick was never captured or has been
// evicted. The buffer itself does not perform save/restore pairing
// around a hit check; that is the caller's responsibility (spec §4.7)
// -- see WithRewind for that pairing.
func (b *Buffer) RewindTo(tick int, adapter PhysicsAdapter) error {
	b.mu.Lock()
	m, ok := b.snapshots[tick]
	if !ok {
		b.mu.Unlock()
		return ErrOutOfRange
	}
	// Copy out from under the lock: adapter.Pawn/RestoreState call into
	// application code we don't want to hold b.mu across.
	snaps := make(map[wire.InstanceID]Snapshot, len(m))
	for id, snap := range m {
		snaps[id] = snap
	}
	b.mu.Unlock()

	for id, snap := range snaps {
		if body, ok := adapter.Pawn(id); ok {
			body.RestoreState(snap)
		}
	}
	return nil
}

// OldestTick reports the oldest tick still retained, and whether the
// buffer holds anything at all.
func (b *Buffer) OldestTick() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.ticks) == 0 {
		return 0, false
	}
	return b.ticks[0], true
}
