// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package rewind

import (
	"github.com/vectorfield/repcore/internal/registry"
)

// Rewindable attribute names a pawn's class must declare for
// CaptureFromRegistry to pick it up; an instance missing "position"
// is assumed not to be a physics pawn and is skipped.
const (
	attrPosition       = "position"
	attrVelocity       = "velocity"
	attrAngular        = "angular"
	attrRotation       = "rotation"
	attrCollisionGroup = "collision_group"
	attrCollisionMask  = "collision_mask"
)

// CaptureFromRegistry walks every instance currently registered and
// captures a Snapshot for each one that declares a "position"
// attribute, at tick. cmd/repserver subscribes it to internal/simhost's
// post-physics KindUpdateColliders signal, so it runs every tick (spec §4.7's "rewind
// buffer population" is required, not optional -- see DESIGN.md Open
// Question decision 2), so the buffer stays populated without any
// per-pawn bookkeeping the application has to remember to do itself.
func CaptureFromRegistry(buf *Buffer, tick int, reg *registry.Registry) {
	for _, inst := range reg.All() {
		pos, err := inst.Get(attrPosition)
		if err != nil {
			continue
		}

		snap := Snapshot{Position: vec3(pos)}
		if v, err := inst.Get(attrVelocity); err == nil {
			snap.Velocity = vec3(v)
		}
		if v, err := inst.Get(attrAngular); err == nil {
			snap.Angular = vec3(v)
		}
		if v, err := inst.Get(attrRotation); err == nil {
			snap.Rotation = vec4(v)
		}
		if v, err := inst.Get(attrCollisionGroup); err == nil {
			snap.CollisionGroup = asUint32(v)
		}
		if v, err := inst.Get(attrCollisionMask); err == nil {
			snap.CollisionMask = asUint32(v)
		}

		buf.Capture(tick, inst.ID, snap)
	}
}

func vec3(v interface{}) [3]float64 {
	if a, ok := v.([3]float64); ok {
		return a
	}
	return [3]float64{}
}

func vec4(v interface{}) [4]float64 {
	if a, ok := v.([4]float64); ok {
		return a
	}
	return [4]float64{}
}

func asUint32(v interface{}) uint32 {
	if u, ok := v.(uint32); ok {
		return u
	}
	return 0
}
