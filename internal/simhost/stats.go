// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package simhost

import (
	"fmt"

	proc "github.com/c9s/goprocinfo/linux"

	"github.com/vectorfield/repcore/internal/signal"
)

// KindHostStats is the auxiliary signal Host fires when host-stats
// sampling is enabled (spec §4.8). It never gates replication; it
// exists purely so an operator-facing consumer (pkg/repcli, a log
// line) can observe host load alongside the simulation.
var KindHostStats = signal.NewKind()

// HostStats is a single host-level sample, read fresh from /proc each
// time. Host takes one every statsEvery ticks and fires it as
// KindHostStats (see Host.EnableHostStats), not on every tick.
type HostStats struct {
	CPUUser   uint64
	CPUSystem uint64
	CPUIdle   uint64

	MemTotal uint64
	MemFree  uint64
}

// StatsSampler reads /proc/stat and /proc/meminfo. Grounded on
// src/minimega/proc.go's GetProcStats, generalized from a per-PID
// process tree walk to a single host-wide snapshot, since this runtime
// has no equivalent of minimega's launched-VM process tree to walk.
type StatsSampler struct {
	statPath    string
	memInfoPath string
}

// NewStatsSampler creates a sampler reading the standard /proc paths.
func NewStatsSampler() *StatsSampler {
	return &StatsSampler{
		statPath:    "/proc/stat",
		memInfoPath: "/proc/meminfo",
	}
}

// Sample reads a fresh HostStats snapshot.
func (s *StatsSampler) Sample() (HostStats, error) {
	stat, err := proc.ReadStat(s.statPath)
	if err != nil {
		return HostStats{}, fmt.Errorf("simhost: read %s: %w", s.statPath, err)
	}

	mem, err := proc.ReadMemInfo(s.memInfoPath)
	if err != nil {
		return HostStats{}, fmt.Errorf("simhost: read %s: %w", s.memInfoPath, err)
	}

	return HostStats{
		CPUUser:   stat.CPUStatAll.User,
		CPUSystem: stat.CPUStatAll.System,
		CPUIdle:   stat.CPUStatAll.Idle,
		MemTotal:  mem.MemTotal,
		MemFree:   mem.MemFree,
	}, nil
}
