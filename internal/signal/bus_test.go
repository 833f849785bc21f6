// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package signal

import (
	"testing"

	"github.com/vectorfield/repcore/pkg/wire"
)

func TestSubscribeIsStagedUntilUpdateGraph(t *testing.T) {
	b := NewBus()
	var fired int
	b.Subscribe(KindTick, func(target wire.InstanceID, payload interface{}) { fired++ })

	b.Fire(KindTick, 0, nil)
	if fired != 0 {
		t.Fatalf("expected subscription to not yet be live before UpdateGraph, fired=%d", fired)
	}

	b.UpdateGraph()
	b.Fire(KindTick, 0, nil)
	if fired != 1 {
		t.Fatalf("expected exactly one firing after UpdateGraph, fired=%d", fired)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	var fired int
	id := b.Subscribe(KindTick, func(target wire.InstanceID, payload interface{}) { fired++ })
	b.UpdateGraph()

	b.Fire(KindTick, 0, nil)
	b.Unsubscribe(KindTick, id)
	b.UpdateGraph()
	b.Fire(KindTick, 0, nil)

	if fired != 1 {
		t.Fatalf("expected firing count to stop increasing after unsubscribe, got %d", fired)
	}
}

func TestTargetedDeliveryReachesOnlyItsTarget(t *testing.T) {
	b := NewBus()
	var a, other int
	b.SubscribeTarget(KindReplicationNotify, 1, func(target wire.InstanceID, payload interface{}) { a++ })
	b.SubscribeTarget(KindReplicationNotify, 2, func(target wire.InstanceID, payload interface{}) { other++ })
	b.UpdateGraph()

	b.Fire(KindReplicationNotify, 1, "health")

	if a != 1 {
		t.Fatalf("expected targeted listener for id 1 to fire once, got %d", a)
	}
	if other != 0 {
		t.Fatalf("expected targeted listener for id 2 to not fire, got %d", other)
	}
}

func TestLinkChildPropagatesParentFiring(t *testing.T) {
	b := NewBus()
	var childFired int
	b.SubscribeTarget(KindReplicationNotify, 10, func(target wire.InstanceID, payload interface{}) { childFired++ })
	b.LinkChild(KindReplicationNotify, 1, 10)
	b.UpdateGraph()

	b.Fire(KindReplicationNotify, 1, "health")

	if childFired != 1 {
		t.Fatalf("expected linked child to receive parent's firing, got %d", childFired)
	}
}

func TestParentKindReceivesAfterChildKind(t *testing.T) {
	b := NewBus()
	var order []string
	b.Subscribe(KindPhysicsTick, func(target wire.InstanceID, payload interface{}) { order = append(order, "physics") })
	b.Subscribe(KindTick, func(target wire.InstanceID, payload interface{}) { order = append(order, "tick") })
	b.SetParent(KindPhysicsTick, KindTick)
	b.UpdateGraph()

	b.Fire(KindPhysicsTick, 0, nil)

	if len(order) != 2 || order[0] != "physics" || order[1] != "tick" {
		t.Fatalf("expected child-then-parent delivery order, got %v", order)
	}
}

func TestCachedSignalReplaysHistoryToLateGlobalSubscriber(t *testing.T) {
	b := NewBus()
	b.MakeCached(KindReplicableRegistered)

	b.Fire(KindReplicableRegistered, 1, "Player")
	b.Fire(KindReplicableRegistered, 2, "Pawn")

	var seen []wire.InstanceID
	b.Subscribe(KindReplicableRegistered, func(target wire.InstanceID, payload interface{}) {
		seen = append(seen, target)
	})

	// not yet applied
	if len(seen) != 0 {
		t.Fatalf("expected no replay before UpdateGraph, got %v", seen)
	}

	b.UpdateGraph()

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("expected replay of both prior firings in order, got %v", seen)
	}

	// A third, live firing should still reach the now-registered listener
	// exactly once, not be replayed again.
	b.Fire(KindReplicableRegistered, 3, "Item")
	if len(seen) != 3 || seen[2] != 3 {
		t.Fatalf("expected live firing to be delivered once, got %v", seen)
	}
}

func TestCachedSignalDoesNotReplayToTargetedSubscriber(t *testing.T) {
	b := NewBus()
	b.MakeCached(KindReplicableRegistered)
	b.Fire(KindReplicableRegistered, 1, "Player")

	var fired int
	b.SubscribeTarget(KindReplicableRegistered, 1, func(target wire.InstanceID, payload interface{}) { fired++ })
	b.UpdateGraph()

	if fired != 0 {
		t.Fatalf("expected targeted listeners to never receive cached replay, got %d", fired)
	}
}
