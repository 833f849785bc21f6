// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package rewind

import (
	"github.com/vectorfield/repcore/internal/registry"
	"github.com/vectorfield/repcore/internal/repobj"
	"github.com/vectorfield/repcore/pkg/rlog"
	"github.com/vectorfield/repcore/pkg/wire"
)

// RegistryAdapter is the production PhysicsAdapter (spec §4.7): it
// resolves pawn ids through the live internal/registry.Registry and
// reads/writes the same position/velocity/angular/rotation/
// collision_* attributes CaptureFromRegistry reads, so a rewind
// restore round-trips through the identical attribute names a capture
// used to populate the buffer in the first place.
type RegistryAdapter struct {
	Reg *registry.Registry
}

// Pawn implements PhysicsAdapter. An instance whose class doesn't
// declare a "position" attribute isn't a physics pawn and is reported
// as having no body, the same rule CaptureFromRegistry uses to decide
// what to capture.
func (a RegistryAdapter) Pawn(id wire.InstanceID) (PhysicsBody, bool) {
	inst, ok := a.Reg.Lookup(id)
	if !ok {
		return nil, false
	}
	if _, err := inst.Get(attrPosition); err != nil {
		return nil, false
	}
	return instanceBody{inst}, true
}

type instanceBody struct {
	inst *repobj.Instance
}

func (b instanceBody) State() Snapshot {
	var snap Snapshot
	if v, err := b.inst.Get(attrPosition); err == nil {
		snap.Position = vec3(v)
	}
	if v, err := b.inst.Get(attrVelocity); err == nil {
		snap.Velocity = vec3(v)
	}
	if v, err := b.inst.Get(attrAngular); err == nil {
		snap.Angular = vec3(v)
	}
	if v, err := b.inst.Get(attrRotation); err == nil {
		snap.Rotation = vec4(v)
	}
	if v, err := b.inst.Get(attrCollisionGroup); err == nil {
		snap.CollisionGroup = asUint32(v)
	}
	if v, err := b.inst.Get(attrCollisionMask); err == nil {
		snap.CollisionMask = asUint32(v)
	}
	return snap
}

// RestoreState writes every field of s back into the instance's
// attribute store. Attributes the pawn's class never declared are
// skipped, matching State's own best-effort reads.
func (b instanceBody) RestoreState(s Snapshot) {
	trySet(b.inst, attrPosition, s.Position)
	trySet(b.inst, attrVelocity, s.Velocity)
	trySet(b.inst, attrAngular, s.Angular)
	trySet(b.inst, attrRotation, s.Rotation)
	trySet(b.inst, attrCollisionGroup, s.CollisionGroup)
	trySet(b.inst, attrCollisionMask, s.CollisionMask)
}

func trySet(inst *repobj.Instance, name string, value interface{}) {
	if err := inst.Set(name, value); err != nil {
		rlog.Debug("rewind: restoring %s: %v", name, err)
	}
}
