// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package simhost drives the per-tick signal firings that the rest of
// this runtime hangs off of (spec §4.8, component H): a physics/game
// tick loop and an explicit UpdateGraph() barrier once per tick.
// Grounded on cmd/minimega/main.go's explicit service-startup-ordering
// comment in main(), generalized from "start these subsystems in this
// order once, at boot" to "fire these signals in this order, every
// tick".
package simhost

import (
	"time"

	"github.com/vectorfield/repcore/internal/signal"
)

// Host owns the tick loop. It never touches replication state directly;
// every effect it has on the rest of the runtime goes through the
// signal bus, so anything downstream (physics integration, rewind
// capture, connection sends) subscribes the same way regardless of
// whether it runs in-process or across a package boundary.
type Host struct {
	bus      *signal.Bus
	tickRate time.Duration

	stopCh chan struct{}
	doneCh chan struct{}

	tick int

	stats      *StatsSampler
	statsEvery int // fire HostStats signal every N ticks; 0 disables
}

// New creates a Host firing ticks at tickRate (e.g. time.Second/60 for
// a 60Hz simulation). bus must not be nil.
func New(bus *signal.Bus, tickRate time.Duration) *Host {
	return &Host{
		bus:      bus,
		tickRate: tickRate,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// EnableHostStats attaches a goprocinfo-backed sampler and fires
// KindHostStats every statsEvery ticks (spec §4.8: "entirely
// optional/observational, never gates replication"). Passing
// statsEvery <= 0 disables it.
func (h *Host) EnableHostStats(sampler *StatsSampler, statsEvery int) {
	h.stats = sampler
	h.statsEvery = statsEvery
}

// Tick returns the current tick counter (0-based, incremented once per
// firing of KindTick).
func (h *Host) Tick() int {
	return h.tick
}

// MapLoaded fires KindMapLoaded once, outside the regular tick loop --
// callers invoke this after whatever world-loading step their
// application performs, before starting Run.
func (h *Host) MapLoaded() {
	h.bus.Fire(signal.KindMapLoaded, 0, nil)
	h.bus.UpdateGraph()
}

// Run drives the tick loop until ctx-equivalent Stop is called. It
// blocks the calling goroutine; callers typically run it in its own
// goroutine.
func (h *Host) Run() {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.tickRate)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case now := <-ticker.C:
			h.step(now)
		}
	}
}

// step fires one tick's worth of signals in the fixed order spec §4.3
// requires -- physics before colliders before the general tick, with
// the graph barrier applied last so every handler runs against a
// consistent subscriber set for the tick that just fired.
func (h *Host) step(now time.Time) {
	h.bus.Fire(signal.KindPhysicsTick, 0, now)
	h.bus.Fire(signal.KindPhysicsSingleUpdate, 0, now)
	h.bus.Fire(signal.KindUpdateColliders, 0, now)
	h.bus.Fire(signal.KindTick, 0, now)

	h.tick++

	if h.stats != nil && h.statsEvery > 0 && h.tick%h.statsEvery == 0 {
		if snap, err := h.stats.Sample(); err == nil {
			h.bus.Fire(KindHostStats, 0, snap)
		}
	}

	h.bus.UpdateGraph()
}

// Stop signals Run to return and blocks until it has.
func (h *Host) Stop() {
	close(h.stopCh)
	<-h.doneCh
}
