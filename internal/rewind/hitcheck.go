// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package rewind

import "github.com/vectorfield/repcore/pkg/wire"

// WithRewind performs the save -> rewind -> fn -> restore pairing
// spec §4.7 describes for an authoritative hit check ("save current
// state, rewind to the shooter's reported tick, perform the ray cast,
// restore"): Buffer.RewindTo itself never pairs a rewind with a
// restore ("the buffer itself does not perform save/restore pairing
// -- that is the caller's responsibility"), so this is that pairing,
// done once, for every pawn tick held a snapshot for. fn is typically
// a ray cast or other read-only collision query run against the
// rewound state; its error, if any, is still returned after the
// restore runs.
func WithRewind(buf *Buffer, adapter PhysicsAdapter, tick int, fn func() error) error {
	ids, err := buf.PawnIDsAt(tick)
	if err != nil {
		return err
	}

	saved := make(map[wire.InstanceID]Snapshot, len(ids))
	bodies := make(map[wire.InstanceID]PhysicsBody, len(ids))
	for _, id := range ids {
		if body, ok := adapter.Pawn(id); ok {
			saved[id] = body.State()
			bodies[id] = body
		}
	}

	if err := buf.RewindTo(tick, adapter); err != nil {
		return err
	}

	fnErr := fn()

	for id, body := range bodies {
		body.RestoreState(saved[id])
	}

	return fnErr
}
