// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package main

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/vectorfield/repcore/internal/conn"
	"github.com/vectorfield/repcore/internal/registry"
	"github.com/vectorfield/repcore/internal/signal"
	"github.com/vectorfield/repcore/pkg/rlog"
	"github.com/vectorfield/repcore/pkg/wire"
)

// server accepts game-peer TCP connections and drives each one's Send
// off the shared tick signal. Grounded on src/minimega/ron's per-client
// accept-loop shape (internal/ron/server.go's clientHandler), adapted
// from ron's single persistent agent-management stream to one
// conn.Connection per accepted peer.
type server struct {
	reg       *registry.Registry
	classes   *registry.ClassTable
	wireReg   *wire.Registry
	bus       *signal.Bus
	bandwidth int

	mu    sync.Mutex
	peers map[string]*peer
}

type peer struct {
	handle string
	nc     net.Conn
	c      *conn.Connection

	writeMu sync.Mutex
	unsub   int64
}

func newServer(reg *registry.Registry, classes *registry.ClassTable, wireReg *wire.Registry, bus *signal.Bus, bandwidth int) *server {
	return &server{
		reg:       reg,
		classes:   classes,
		wireReg:   wireReg,
		bus:       bus,
		bandwidth: bandwidth,
		peers:     make(map[string]*peer),
	}
}

func (s *server) acceptLoop(ln net.Listener) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			rlog.Info("accept loop exiting: %v", err)
			return
		}
		go s.handle(nc)
	}
}

func (s *server) handle(nc net.Conn) {
	handle := nc.RemoteAddr().String()
	rlog.Info("accepted connection from %s", handle)

	c := conn.NewServer(s.reg, s.classes, s.wireReg, s.bus, nil)
	p := &peer{handle: handle, nc: nc, c: c}

	p.unsub = s.bus.Subscribe(signal.KindTick, func(_ wire.InstanceID, payload interface{}) {
		now, _ := payload.(time.Time)
		go p.flush(now, s.bandwidth)
	})
	s.bus.UpdateGraph()

	s.mu.Lock()
	s.peers[handle] = p
	s.mu.Unlock()

	defer func() {
		s.bus.Unsubscribe(signal.KindTick, p.unsub)
		s.bus.UpdateGraph()
		c.Close()
		nc.Close()

		s.mu.Lock()
		delete(s.peers, handle)
		s.mu.Unlock()

		rlog.Info("closed connection from %s", handle)
	}()

	r := bufio.NewReader(nc)
	for {
		pkt, err := conn.ReadPacket(r)
		if err != nil {
			return
		}
		if err := c.Receive(pkt); err != nil {
			rlog.Warn("receive from %s: %v", handle, err)
		}
	}
}

func (p *peer) flush(now time.Time, bandwidth int) {
	pc := p.c.Send(now, bandwidth)
	if len(pc) == 0 {
		return
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if err := conn.WriteCollection(p.nc, pc); err != nil {
		rlog.Warn("write to %s: %v", p.handle, err)
	}
}

// Lookup implements repcli.KickLister.
func (s *server) Lookup(handle string) (*conn.Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.peers[handle]
	if !ok {
		return nil, false
	}
	return p.c, true
}

// Close implements repcli.KickLister: closing the underlying net.Conn
// unblocks handle's blocking read loop, which performs the rest of
// teardown via its deferred cleanup.
func (s *server) Close(handle string) bool {
	s.mu.Lock()
	p, ok := s.peers[handle]
	s.mu.Unlock()

	if !ok {
		return false
	}
	p.nc.Close()
	return true
}
