// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package repobj

import (
	"testing"

	"github.com/vectorfield/repcore/pkg/wire"
)

func playerClass() *Class {
	c := NewClass("Player")
	c.Declare(AttributeDescriptor{Name: "health", Type: "uint32", Default: uint32(100), Flags: FlagNotify})
	c.Declare(AttributeDescriptor{Name: "name", Type: "string", Default: "", Flags: FlagComplain})
	return c
}

func TestAttributeDeclarationOrderIsWireOrder(t *testing.T) {
	c := playerClass()

	order := c.AttributeOrder()
	if len(order) != 2 || order[0] != "health" || order[1] != "name" {
		t.Fatalf("unexpected declaration order: %v", order)
	}

	idx, ok := c.AttributeIndex("name")
	if !ok || idx != 1 {
		t.Fatalf("expected name at index 1, got %d ok=%v", idx, ok)
	}
}

func TestDefaultIsDeepCopiedPerInstance(t *testing.T) {
	c := NewClass("Bag")
	c.Declare(AttributeDescriptor{Name: "tags", Type: "string", Default: map[string]string{"a": "1"}})

	a := NewInstance(c, 1, IdentityDynamic)
	b := NewInstance(c, 2, IdentityDynamic)

	va, _ := a.Get("tags")
	va.(map[string]string)["a"] = "mutated"

	vb, _ := b.Get("tags")
	if vb.(map[string]string)["a"] != "1" {
		t.Fatalf("mutation of instance a's default leaked into instance b: %v", vb)
	}
}

func TestComplainSetsAndClearsBit(t *testing.T) {
	c := playerClass()
	inst := NewInstance(c, 1, IdentityDynamic)

	if inst.HasComplaint() {
		t.Fatal("fresh instance should not be complaining")
	}

	inst.Set("name", "alice")
	if !inst.IsComplaining("name") {
		t.Fatal("expected complaint bit set after writing a complain-flagged attribute")
	}

	inst.ClearComplaint("name")
	if inst.IsComplaining("name") {
		t.Fatal("expected complaint bit cleared")
	}
	// idempotent
	inst.ClearComplaint("name")
}

func TestCallRPCLocalExecutesImmediately(t *testing.T) {
	c := NewClass("Pawn")
	var ran bool
	c.DeclareRPC("serverPerformMove", NetmodeServer, true, nil, func(self *Instance, args []interface{}) error {
		ran = true
		return nil
	})

	inst := NewInstance(c, 1, IdentityDynamic)
	reg := wire.NewRegistry()

	var queued int
	inst.SetRPCSink(func(call RPCCall) { queued++ })

	if err := inst.CallRPC(NetmodeServer, reg, "serverPerformMove"); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("expected local RPC body to run when netmodes match")
	}
	if queued != 0 {
		t.Fatal("expected no queued call for a local invocation")
	}
}

func TestCallRPCRemoteQueuesAndDoesNotRun(t *testing.T) {
	c := NewClass("Pawn")
	var ran bool
	c.DeclareRPC("serverPerformMove", NetmodeServer, true, []string{"float32"}, func(self *Instance, args []interface{}) error {
		ran = true
		return nil
	})

	inst := NewInstance(c, 1, IdentityDynamic)
	reg := wire.NewRegistry()

	var calls []RPCCall
	inst.SetRPCSink(func(call RPCCall) { calls = append(calls, call) })

	if err := inst.CallRPC(NetmodeClient, reg, "serverPerformMove", float32(1.5)); err != nil {
		t.Fatal(err)
	}
	if ran {
		t.Fatal("expected remote RPC invocation to not run the body locally")
	}
	if len(calls) != 1 {
		t.Fatalf("expected exactly one queued call, got %d", len(calls))
	}
	if !calls[0].Reliable {
		t.Fatal("expected reliable flag to carry through")
	}
}

func TestUppermostOwnerWalksChain(t *testing.T) {
	ctrl := NewInstance(NewClass("Controller"), 2, IdentityDynamic)
	pawn := NewInstance(NewClass("Pawn"), 1, IdentityDynamic)
	pawn.OwnerID = ctrl.ID

	objs := map[wire.InstanceID]*Instance{1: pawn, 2: ctrl}
	resolve := func(id wire.InstanceID) (*Instance, bool) {
		o, ok := objs[id]
		return o, ok
	}

	if got := pawn.UppermostOwner(resolve, 8); got != ctrl.ID {
		t.Fatalf("expected uppermost owner %v, got %v", ctrl.ID, got)
	}
	if got := ctrl.UppermostOwner(resolve, 8); got != ctrl.ID {
		t.Fatalf("expected controller to be its own uppermost owner, got %v", got)
	}
}
