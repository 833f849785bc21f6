// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package conn

import (
	"sort"
	"sync"
	"time"

	"github.com/vectorfield/repcore/internal/channel"
	"github.com/vectorfield/repcore/internal/registry"
	"github.com/vectorfield/repcore/internal/repobj"
	"github.com/vectorfield/repcore/internal/signal"
	"github.com/vectorfield/repcore/pkg/rlog"
	"github.com/vectorfield/repcore/pkg/wire"
)

// Connection is one per remote peer, in either its server or client
// variant (spec §4.6). Both variants share the relevance/priority scan;
// Send and Receive branch on Netmode for the behaviors that differ.
type Connection struct {
	mu sync.Mutex

	Netmode repobj.Netmode

	reg     *registry.Registry
	classes *registry.ClassTable
	wireReg *wire.Registry
	bus     *signal.Bus

	relevance RelevanceRule

	channels map[wire.InstanceID]*channel.Channel

	// Own is the replicable representing this connection's remote peer's
	// own object (its controller/host pawn), if one has been assigned.
	// Used both to decide is_host on outbound replication_init and to
	// decide ownership for RPC routing and permission checks.
	Own *repobj.Instance

	pendingDel []wire.InstanceID
	unsubID    int64
	subscribed bool
}

func newConnection(netmode repobj.Netmode, reg *registry.Registry, classes *registry.ClassTable, wireReg *wire.Registry, bus *signal.Bus, relevance RelevanceRule) *Connection {
	if relevance == nil {
		relevance = AlwaysRelevant{}
	}

	c := &Connection{
		Netmode:   netmode,
		reg:       reg,
		classes:   classes,
		wireReg:   wireReg,
		bus:       bus,
		relevance: relevance,
		channels:  make(map[wire.InstanceID]*channel.Channel),
	}

	if netmode == repobj.NetmodeServer && bus != nil {
		c.unsubID = bus.Subscribe(signal.KindReplicableUnregistered, c.onReplicableUnregistered)
		c.subscribed = true
	}

	return c
}

// NewServer constructs the server-side variant of a connection: it
// drives the priority/bandwidth-gated attribute scan and auto-enqueues
// replication_del on ReplicableUnregistered.
func NewServer(reg *registry.Registry, classes *registry.ClassTable, wireReg *wire.Registry, bus *signal.Bus, relevance RelevanceRule) *Connection {
	return newConnection(repobj.NetmodeServer, reg, classes, wireReg, bus, relevance)
}

// NewClient constructs the client-side variant: Send only ever flushes
// RPC packets, and Receive accepts replication_init/update/del in
// addition to method_invoke (spec §4.6).
func NewClient(reg *registry.Registry, classes *registry.ClassTable, wireReg *wire.Registry, bus *signal.Bus) *Connection {
	return newConnection(repobj.NetmodeClient, reg, classes, wireReg, bus, nil)
}

// Close unsubscribes this connection from the signal bus and, for a
// server-side connection that had accepted ownership of a replicable
// (its peer's controller/pawn), unregisters it -- a disconnected peer
// should not leave its owned replicable behind, mirroring
// network/connection.py's ServerConnection.on_delete ("if we own a
// controller destroy it... request_unregistration()"). Safe to call
// more than once.
func (c *Connection) Close() {
	c.mu.Lock()

	if c.subscribed && c.bus != nil {
		c.bus.Unsubscribe(signal.KindReplicableUnregistered, c.unsubID)
		c.subscribed = false
	}

	own := c.Own
	c.Own = nil
	c.mu.Unlock()

	if c.Netmode == repobj.NetmodeServer && own != nil {
		c.reg.Unregister(own.ID)
	}
}

func (c *Connection) onReplicableUnregistered(target wire.InstanceID, payload interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.channels[target]; ok {
		c.pendingDel = append(c.pendingDel, target)
	}
}

func (c *Connection) resolveInstance(id wire.InstanceID) (*repobj.Instance, bool) {
	return c.reg.Lookup(id)
}

func (c *Connection) channelForLocked(id wire.InstanceID) *channel.Channel {
	ch, ok := c.channels[id]
	if !ok {
		ch = channel.New(id)
		c.channels[id] = ch

		// Point the replicable's RPC sink at this channel's queue (spec
		// §4.1's "the owning channel's rpc_queue") so repobj.Instance.CallRPC
		// has somewhere to put a remote call without repobj knowing
		// anything about connections or channels itself.
		if inst, ok := c.resolveInstance(id); ok {
			inst.SetRPCSink(ch.QueueRPC)

			// Re-publish a notify-flagged attribute's local on_notify
			// (spec §3's ReplicationNotify signal) onto the bus, targeted
			// at this instance, so anything subscribed via
			// signal.SubscribeTarget(KindReplicationNotify, id, ...) sees
			// it regardless of which connection's SetAttributes triggered
			// it.
			if c.bus != nil {
				inst.SetNotifyHandler(func(name string) {
					c.bus.Fire(signal.KindReplicationNotify, id, name)
				})
			}
		}
	}
	return ch
}

// Candidate is one replicable eligible for this tick's relevance scan
// (spec §4.6).
type Candidate struct {
	Instance *repobj.Instance
	IsOwner  bool
	Channel  *channel.Channel
	priority float64
}

// Relevant returns every live replicable with roles.remote != none,
// sorted by descending priority key (server: priority climbs with
// staleness; client: plain declared priority).
func (c *Connection) Relevant(now time.Time) []Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.relevantLocked(now)
}

func (c *Connection) relevantLocked(now time.Time) []Candidate {
	var out []Candidate

	ownID := wire.InstanceID(0)
	if c.Own != nil {
		ownID = c.Own.ID
	}

	for _, inst := range c.reg.All() {
		if inst.Roles.Remote == repobj.RoleNone {
			continue
		}

		ch := c.channelForLocked(inst.ID)
		isOwner := c.Own != nil && inst.UppermostOwner(c.resolveInstance, c.reg.Count()) == ownID

		// On the server only the owning connection drains an instance's
		// RPC queue, so the owner points the sink back at its own channel
		// on every scan, whichever connection installed it last.
		if isOwner && c.Netmode == repobj.NetmodeServer {
			inst.SetRPCSink(ch.QueueRPC)
		}

		var priority float64
		if c.Netmode == repobj.NetmodeServer {
			priority = inst.ReplicationPriority
			if inst.ReplicationUpdatePeriod > 0 {
				elapsed := now.Sub(ch.LastReplicationTime).Seconds()
				priority += elapsed/inst.ReplicationUpdatePeriod.Seconds() - 1
			}
		} else {
			priority = inst.ReplicationPriority
		}

		out = append(out, Candidate{Instance: inst, IsOwner: isOwner, Channel: ch, priority: priority})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].priority > out[j].priority })
	return out
}

// Send produces this tick's PacketCollection (spec §4.6). availableBandwidth
// bounds attribute-packet production only; RPC packets and the reliable
// replication_del teardown packet are never subject to it.
func (c *Connection) Send(now time.Time, availableBandwidth int) PacketCollection {
	c.mu.Lock()
	defer c.mu.Unlock()

	var pc PacketCollection

	for _, id := range c.pendingDel {
		pc = append(pc, Packet{Protocol: ProtocolReplicationDel, Payload: wire.PackInstanceID(id), Reliable: true})
		delete(c.channels, id)
	}
	c.pendingDel = nil

	if c.Netmode == repobj.NetmodeClient {
		return append(pc, c.flushAllRPCQueuesLocked()...)
	}

	return append(pc, c.sendServerLocked(now, availableBandwidth)...)
}

func (c *Connection) flushAllRPCQueuesLocked() PacketCollection {
	var pc PacketCollection
	for id, ch := range c.channels {
		for _, call := range ch.TakeRPCCalls() {
			pc = append(pc, Packet{Protocol: ProtocolMethodInvoke, Payload: idPrefixed(id, call.Bytes), Reliable: call.Reliable})
		}
	}
	return pc
}

func (c *Connection) sendServerLocked(now time.Time, budget int) PacketCollection {
	var pc PacketCollection
	spent := 0

	for _, cand := range c.relevantLocked(now) {
		inst := cand.Instance
		ch := cand.Channel

		if cand.IsOwner {
			for _, call := range ch.TakeRPCCalls() {
				pc = append(pc, Packet{Protocol: ProtocolMethodInvoke, Payload: idPrefixed(inst.ID, call.Bytes), Reliable: call.Reliable})
			}
		}

		if inst.ReplicationUpdatePeriod > 0 && now.Sub(ch.LastReplicationTime) < inst.ReplicationUpdatePeriod {
			continue
		}

		if !cand.IsOwner && c.Own != nil && !c.relevance.IsRelevant(c.Own, inst) {
			continue
		}

		var initPkt *Packet
		if ch.IsInitial {
			isHost := c.Own != nil && inst.ID == c.Own.ID
			p := Packet{Protocol: ProtocolReplicationInit, Payload: buildInitPayload(inst.ID, inst.Class.Name, isHost), Reliable: true}
			initPkt = &p
		}

		attrSize, err := ch.PeekAttributesSize(c.wireReg, inst, cand.IsOwner)
		if err != nil {
			rlog.Warn("conn: PeekAttributesSize for %d failed: %v", inst.ID, err)
			continue
		}

		projected := spent
		if initPkt != nil {
			projected += initPkt.Size()
		}
		if attrSize > 0 {
			projected += 1 + 2 + attrSize // protocol tag + id prefix + attribute bytes
		}

		// Once an init packet is in flight it is never skipped (spec
		// invariant 8); everything else is bandwidth-gated and, if it
		// doesn't fit, rolls its complaint/dirty state to the next tick
		// untouched because we haven't called GetAttributes yet.
		if initPkt == nil && budget > 0 && projected > budget {
			continue
		}

		attrPayload, err := ch.GetAttributes(c.wireReg, inst, cand.IsOwner, now)
		if err != nil {
			rlog.Warn("conn: GetAttributes for %d failed: %v", inst.ID, err)
			continue
		}

		if initPkt != nil {
			// Inserted at the front so it always precedes any packet
			// that might reference this id, preserving invariant 3
			// (spec §4.6 step 4).
			pc = append(PacketCollection{*initPkt}, pc...)
			spent += initPkt.Size()
		}

		if attrPayload != nil {
			up := Packet{Protocol: ProtocolReplicationUpdate, Payload: idPrefixed(inst.ID, attrPayload), Reliable: false}
			pc = append(pc, up)
			spent += up.Size()
		}
	}

	return pc
}

func buildInitPayload(id wire.InstanceID, typeName string, isHost bool) []byte {
	buf := wire.PackInstanceID(id)
	buf = append(buf, wire.StringHandler{}.Pack(typeName)...)
	if isHost {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

// Receive dispatches an inbound packet by protocol (spec §4.6). Unknown
// ids and unknown types are logged and dropped, never treated as fatal
// (spec §7).
func (c *Connection) Receive(pkt Packet) error {
	switch pkt.Protocol {
	case ProtocolMethodInvoke:
		return c.receiveMethodInvoke(pkt.Payload)
	case ProtocolReplicationInit:
		if c.Netmode != repobj.NetmodeClient {
			return errUnsupportedRecv
		}
		return c.receiveInit(pkt.Payload)
	case ProtocolReplicationUpdate:
		if c.Netmode != repobj.NetmodeClient {
			return errUnsupportedRecv
		}
		return c.receiveUpdate(pkt.Payload)
	case ProtocolReplicationDel:
		if c.Netmode != repobj.NetmodeClient {
			return errUnsupportedRecv
		}
		return c.receiveDel(pkt.Payload)
	}
	return nil
}

func (c *Connection) receiveMethodInvoke(payload []byte) error {
	id, n, err := wire.UnpackInstanceID(payload)
	if err != nil {
		return err
	}
	payload = payload[n:]

	c.mu.Lock()
	ch, ok := c.channels[id]
	c.mu.Unlock()
	if !ok {
		rlog.Warn("conn: method_invoke for unknown channel %d", id)
		return nil
	}

	inst, ok := c.reg.Lookup(id)
	if !ok {
		rlog.Warn("conn: method_invoke for unregistered id %d", id)
		return nil
	}

	c.mu.Lock()
	ownID := wire.InstanceID(0)
	if c.Own != nil {
		ownID = c.Own.ID
	}
	count := c.reg.Count()
	c.mu.Unlock()

	isOwnerRoot := c.Own != nil && inst.UppermostOwner(c.resolveInstance, count) == ownID

	if err := ch.InvokeRPCCall(c.wireReg, inst, isOwnerRoot, payload); err != nil {
		rlog.Warn("conn: method_invoke for %d dropped: %v", id, err)
	}
	return nil
}

func (c *Connection) receiveInit(payload []byte) error {
	id, n, err := wire.UnpackInstanceID(payload)
	if err != nil {
		return err
	}
	payload = payload[n:]

	typeNameV, n2, err := wire.StringHandler{}.UnpackFrom(payload)
	if err != nil {
		return err
	}
	typeName := typeNameV.(string)
	payload = payload[n2:]

	if len(payload) < 1 {
		return errShortPacket
	}
	isHost := payload[0] != 0

	class, ok := c.classes.Get(typeName)
	if !ok {
		rlog.Warn("conn: replication_init for unknown type %q, dropping", typeName)
		return nil
	}

	// CreateOrReturn makes a duplicate or retransmitted replication_init
	// for an id this connection already synced a no-op: it hands back
	// the instance already registered at id rather than registering a
	// fresh, blank one over it (spec §4.2 create_or_return / invariant
	// testable property 5). candidate is only actually used when no
	// instance is registered at id yet.
	candidate := repobj.NewInstance(class, id, repobj.IdentityDynamic)
	inst := c.reg.CreateOrReturn(id, candidate)
	isNew := inst == candidate

	if isNew {
		// Swap exchanges Local/Remote in place (spec invariant 6); doing
		// it again on an already-inited instance would swap the roles
		// right back, so it only runs the first time an id is seen.
		inst.Roles.Swap()
	}

	c.mu.Lock()
	c.channelForLocked(id)
	if isHost {
		c.Own = inst
	}
	c.mu.Unlock()

	return nil
}

func (c *Connection) receiveUpdate(payload []byte) error {
	id, n, err := wire.UnpackInstanceID(payload)
	if err != nil {
		return err
	}
	payload = payload[n:]

	c.mu.Lock()
	ch, ok := c.channels[id]
	c.mu.Unlock()

	inst, instOK := c.reg.Lookup(id)
	if !ok || !instOK {
		rlog.Warn("conn: replication_update for unknown channel %d", id)
		return nil
	}

	if err := ch.SetAttributes(c.wireReg, inst, payload); err != nil {
		rlog.Warn("conn: replication_update for %d dropped: %v", id, err)
	}
	return nil
}

func (c *Connection) receiveDel(payload []byte) error {
	id, _, err := wire.UnpackInstanceID(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.channels, id)
	c.mu.Unlock()

	c.reg.Unregister(id)
	return nil
}
