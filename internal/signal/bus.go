// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package signal implements the in-process publish/subscribe bus that
// couples the rest of this runtime together (spec §4.3, component C).
// It is grounded on internal/miniplumber's map-of-listeners-under-a-lock
// shape, generalized from string pipe names to typed signal kinds and
// from immediately-effective subscription to a staged-mutation barrier
// (subscribe/unsubscribe/link calls are buffered and only take effect at
// UpdateGraph(), since listeners may subscribe/unsubscribe while a
// signal is being delivered to them).
package signal

import (
	"sync"

	"github.com/vectorfield/repcore/pkg/wire"
)

// Kind identifies a signal type. Declared as a small closed set here
// (mirroring spec §6.2's named signals); application code may declare
// additional kinds with NewKind.
type Kind int

const (
	KindTick Kind = iota
	KindMapLoaded
	KindPhysicsTick
	KindPhysicsSingleUpdate
	KindPhysicsRewind
	KindUpdateColliders
	KindReplicableRegistered
	KindReplicableUnregistered
	KindReplicationNotify
	KindConnectionSuccess
	KindConnectionError
	KindConnectionDeleted
	KindLatencyUpdated

	firstUserKind
)

var nextUserKind = firstUserKind

// NewKind allocates a fresh signal kind for application-defined signals.
func NewKind() Kind {
	k := nextUserKind
	nextUserKind++
	return k
}

// Listener is invoked on a signal firing. target is the InstanceID the
// signal was fired with (0 if none), payload is the signal-specific
// argument.
type Listener func(target wire.InstanceID, payload interface{})

type subscription struct {
	id     int64
	fn     Listener
	target wire.InstanceID // zero value means "global"
	global bool
}

type pendingOp struct {
	kind Kind
	op   func(*bucket)
}

// bucket holds everything the bus tracks for one signal Kind.
type bucket struct {
	global   []subscription
	targeted map[wire.InstanceID][]subscription

	// children maps a parent instance to the set of descendants that a
	// firing targeted at the parent should also reach (spec §4.3's
	// parent -> children propagation table).
	children map[wire.InstanceID]map[wire.InstanceID]bool

	parent    Kind
	hasParent bool

	cached  bool
	history []firing
}

type firing struct {
	target  wire.InstanceID
	payload interface{}
}

// Bus is the process-wide signal dispatcher.
type Bus struct {
	mu      sync.Mutex
	buckets map[Kind]*bucket
	pending []pendingOp
	nextSub int64
}

func NewBus() *Bus {
	return &Bus{buckets: make(map[Kind]*bucket)}
}

func (b *Bus) bucketFor(k Kind) *bucket {
	bk, ok := b.buckets[k]
	if !ok {
		bk = &bucket{targeted: make(map[wire.InstanceID][]subscription), children: make(map[wire.InstanceID]map[wire.InstanceID]bool)}
		b.buckets[k] = bk
	}
	return bk
}

// SetParent declares that delivery for kind continues on parent after
// kind's own subscribers have run, up to the root signal kind (spec
// §4.3's class-hierarchy walk). Takes effect immediately: it is
// declaration-time wiring, not a listener mutation subject to the
// staging barrier.
func (b *Bus) SetParent(kind, parent Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bk := b.bucketFor(kind)
	bk.parent = parent
	bk.hasParent = true
}

// MakeCached marks kind as a cached signal: every firing is retained and
// replayed, in order, to a global listener that subscribes later (spec
// §4.3). Targeted listeners are never replayed.
func (b *Bus) MakeCached(kind Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bucketFor(kind).cached = true
}

// Subscribe stages a global listener registration for kind, applied at
// the next UpdateGraph(). Returns a token usable with Unsubscribe.
func (b *Bus) Subscribe(kind Kind, fn Listener) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSub
	b.nextSub++

	b.pending = append(b.pending, pendingOp{kind: kind, op: func(bk *bucket) {
		bk.global = append(bk.global, subscription{id: id, fn: fn, global: true})
	}})

	return id
}

// SubscribeTarget stages a listener registration scoped to target (spec
// §4.3): it receives firings targeted at target itself, and firings
// targeted at any instance target has been linked under as a child via
// LinkChild (one level; links are not followed transitively).
func (b *Bus) SubscribeTarget(kind Kind, target wire.InstanceID, fn Listener) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSub
	b.nextSub++

	b.pending = append(b.pending, pendingOp{kind: kind, op: func(bk *bucket) {
		bk.targeted[target] = append(bk.targeted[target], subscription{id: id, fn: fn, target: target})
	}})

	return id
}

// Unsubscribe stages removal of a previously-returned token from kind's
// global and targeted listeners; a token registered under a different
// kind is left in place.
func (b *Bus) Unsubscribe(kind Kind, id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, pendingOp{kind: kind, op: func(bk *bucket) {
		bk.global = removeSub(bk.global, id)
		for t, subs := range bk.targeted {
			bk.targeted[t] = removeSub(subs, id)
		}
	}})
}

func removeSub(subs []subscription, id int64) []subscription {
	out := subs[:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// LinkChild stages registration of child as a descendant of parent for
// kind, so that a firing targeted at parent also reaches listeners
// targeted at child (spec §4.3).
func (b *Bus) LinkChild(kind Kind, parent, child wire.InstanceID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, pendingOp{kind: kind, op: func(bk *bucket) {
		set, ok := bk.children[parent]
		if !ok {
			set = make(map[wire.InstanceID]bool)
			bk.children[parent] = set
		}
		set[child] = true
	}})
}

// UnlinkChild stages removal of a previously-linked child.
func (b *Bus) UnlinkChild(kind Kind, parent, child wire.InstanceID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, pendingOp{kind: kind, op: func(bk *bucket) {
		if set, ok := bk.children[parent]; ok {
			delete(set, child)
		}
	}})
}

// UpdateGraph applies every staged subscribe/unsubscribe/link mutation
// since the last call, then replays cached history to any global
// listener that was just added to a cached kind. Called once per tick
// by the simulation host, and at other safe points (spec §4.3).
func (b *Bus) UpdateGraph() {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil

	// Track which (kind, listener) pairs are brand new this barrier so we
	// know who needs cached replay, without replaying to listeners that
	// were already present before this call.
	freshGlobal := make(map[Kind][]subscription)

	for _, op := range pending {
		bk := b.bucketFor(op.kind)
		before := len(bk.global)
		op.op(bk)
		if len(bk.global) > before {
			freshGlobal[op.kind] = append(freshGlobal[op.kind], bk.global[before:]...)
		}
	}

	type replay struct {
		kind Kind
		subs []subscription
		hist []firing
	}
	var replays []replay

	for kind, subs := range freshGlobal {
		bk := b.buckets[kind]
		if bk != nil && bk.cached && len(bk.history) > 0 {
			hist := append([]firing(nil), bk.history...)
			replays = append(replays, replay{kind: kind, subs: subs, hist: hist})
		}
	}
	b.mu.Unlock()

	for _, r := range replays {
		for _, f := range r.hist {
			for _, s := range r.subs {
				s.fn(f.target, f.payload)
			}
		}
	}
}

// Fire delivers payload to every listener of kind (and, if target != 0,
// to listeners targeted at target or at its directly linked children), then
// continues delivery on kind's declared parent up to the root (spec
// §4.3). Cached kinds retain the firing for later replay.
func (b *Bus) Fire(kind Kind, target wire.InstanceID, payload interface{}) {
	for {
		b.mu.Lock()
		bk, ok := b.buckets[kind]
		if !ok {
			b.mu.Unlock()
			return
		}

		if bk.cached {
			bk.history = append(bk.history, firing{target: target, payload: payload})
		}

		global := append([]subscription(nil), bk.global...)

		var targeted []subscription
		if target != 0 {
			targeted = append(targeted, bk.targeted[target]...)
			for child := range bk.children[target] {
				targeted = append(targeted, bk.targeted[child]...)
			}
		}

		parent := bk.parent
		hasParent := bk.hasParent
		b.mu.Unlock()

		for _, s := range targeted {
			s.fn(target, payload)
		}
		for _, s := range global {
			s.fn(target, payload)
		}

		if !hasParent {
			return
		}
		kind = parent
	}
}
