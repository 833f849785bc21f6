// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package wire

import "testing"

func TestUint16RoundTrip(t *testing.T) {
	h := Uint16Handler{}

	b := h.Pack(uint16(0xBEEF))
	if len(b) != 2 {
		t.Fatalf("expected 2 bytes, got %d", len(b))
	}

	v, n, err := h.UnpackFrom(b)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected to consume 2 bytes, consumed %d", n)
	}
	if v.(uint16) != 0xBEEF {
		t.Fatalf("expected 0xBEEF, got %x", v)
	}
}

func TestStringRoundTrip(t *testing.T) {
	h := StringHandler{}

	cases := []string{"", "Player", "a longer string with spaces and 日本語"}

	for _, s := range cases {
		b := h.Pack(s)

		sz, err := h.Size(b)
		if err != nil {
			t.Fatal(err)
		}
		if sz != len(b) {
			t.Fatalf("Size() = %d, want %d", sz, len(b))
		}

		v, n, err := h.UnpackFrom(b)
		if err != nil {
			t.Fatal(err)
		}
		if n != len(b) {
			t.Fatalf("consumed %d, want %d", n, len(b))
		}
		if v.(string) != s {
			t.Fatalf("got %q, want %q", v, s)
		}
	}
}

func TestFloat64RoundTrip(t *testing.T) {
	h := Float64Handler{}

	b := h.Pack(3.25)
	v, n, err := h.UnpackFrom(b)
	if err != nil {
		t.Fatal(err)
	}
	if n != 8 {
		t.Fatalf("expected 8 bytes consumed, got %d", n)
	}
	if v.(float64) != 3.25 {
		t.Fatalf("got %v, want 3.25", v)
	}
}

func TestInstanceIDRoundTrip(t *testing.T) {
	b := PackInstanceID(7)

	id, n, err := UnpackInstanceID(b)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || id != 7 {
		t.Fatalf("got id=%v n=%v, want id=7 n=2", id, n)
	}
}

func TestReplicableRefHandlerMissing(t *testing.T) {
	h := ReplicableRefHandler{Resolve: func(InstanceID) (interface{}, bool) {
		return nil, false
	}}

	b := PackInstanceID(42)
	v, n, err := h.UnpackFrom(b)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 bytes consumed, got %d", n)
	}
	if v != nil {
		t.Fatalf("expected nil for unresolved reference, got %v", v)
	}
}

func TestRegistryGetHandler(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.GetHandler("uint32"); !ok {
		t.Fatal("expected uint32 handler to be registered by default")
	}
	if _, ok := r.GetHandler("nonsense"); ok {
		t.Fatal("expected no handler for an unregistered type name")
	}
}
