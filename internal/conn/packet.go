// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package conn implements the per-peer connection (spec §4.6, component
// F): priority-sorted relevance scanning, bandwidth-budgeted packet
// production, and inbound protocol dispatch, in its shared and
// server/client-specific forms. Grounded on internal/ron/server.go
// (handshake, clientHandler, route, sendCommands, clientReaper,
// heartbeat ticker) for the server variant's connection bookkeeping and
// on internal/meshage/client.go's clientSend ack/timeout and tolerant
// decode loop for the receive side's "log and drop, never fatal"
// posture.
package conn

import "github.com/vectorfield/repcore/pkg/wire"

// Protocol identifies one of the four wire protocols this core speaks
// (spec §6.1).
type Protocol uint8

const (
	ProtocolReplicationInit Protocol = iota
	ProtocolReplicationUpdate
	ProtocolReplicationDel
	ProtocolMethodInvoke
)

// Packet is an opaque, already-framed unit handed to or received from
// the transport (deliberately out of this core's scope, spec §1).
type Packet struct {
	Protocol Protocol
	Payload  []byte
	Reliable bool
}

// Size approximates the packet's wire footprint for bandwidth
// accounting (spec §4.6): protocol tag plus payload bytes.
func (p Packet) Size() int { return 1 + len(p.Payload) }

// PacketCollection is the ordered list of packets produced atomically
// for one tick. Callers must preserve this order when handing packets
// to the transport: replication_init for an object precedes any
// replication_update/method_invoke addressing it (spec invariant 3).
type PacketCollection []Packet

func (pc PacketCollection) totalSize() int {
	n := 0
	for _, p := range pc {
		n += p.Size()
	}
	return n
}

func idPrefixed(id wire.InstanceID, rest []byte) []byte {
	buf := wire.PackInstanceID(id)
	return append(buf, rest...)
}
