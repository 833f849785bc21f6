// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package repcli

import (
	"fmt"
	"strconv"

	"github.com/vectorfield/repcore/internal/conn"
	"github.com/vectorfield/repcore/internal/registry"
	"github.com/vectorfield/repcore/internal/rewind"
	"github.com/vectorfield/repcore/pkg/wire"
)

// RegisterStat adds the "stat" command, reporting how many replicables
// are currently registered.
func RegisterStat(c *Console, reg *registry.Registry) {
	c.Register("stat", &Command{
		Helpshort: "report the registered replicable count",
		Helplong:  "Usage: stat\n\nPrints the number of currently registered replicables.",
		Call: func(args []string) string {
			return fmt.Sprintf("replicables: %d", reg.Count())
		},
	})
}

// RegisterRewind adds the "rewind" command: rewind <tick> <instance id>
// restores every pawn captured at that tick (Buffer.RewindTo has no
// single-pawn form) via adapter and reports the named pawn's restored
// values, or an out-of-range error if that pawn was not captured then.
func RegisterRewind(c *Console, buf *rewind.Buffer, adapter rewind.PhysicsAdapter) {
	c.Register("rewind", &Command{
		Helpshort: "rewind all pawns to a past tick and report one pawn's restored state",
		Helplong:  "Usage: rewind <tick> <instance id>",
		Call: func(args []string) string {
			if len(args) != 2 {
				return "usage: rewind <tick> <instance id>"
			}
			tick, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Sprintf("invalid tick: %v", err)
			}
			id, err := strconv.ParseUint(args[1], 10, 16)
			if err != nil {
				return fmt.Sprintf("invalid instance id: %v", err)
			}
			pawnID := wire.InstanceID(id)

			if _, err := buf.SnapshotAt(tick, pawnID); err != nil {
				return err.Error()
			}

			if err := buf.RewindTo(tick, adapter); err != nil {
				return err.Error()
			}

			body, ok := adapter.Pawn(pawnID)
			if !ok {
				return fmt.Sprintf("instance %d has no live pawn to rewind", pawnID)
			}

			state := body.State()
			return fmt.Sprintf("pos=%v vel=%v", state.Position, state.Velocity)
		},
	})
}

// KickLister is satisfied by whatever tracks live connections by a
// caller-assigned handle (cmd/repserver keys these by remote address).
type KickLister interface {
	Lookup(handle string) (*conn.Connection, bool)
	Close(handle string) bool
}

// RegisterKick adds the "kick" command: kick <handle> closes a live
// connection by its registered handle.
func RegisterKick(c *Console, lister KickLister) {
	c.Register("kick", &Command{
		Helpshort: "disconnect a connected peer",
		Helplong:  "Usage: kick <handle>",
		Call: func(args []string) string {
			if len(args) != 1 {
				return "usage: kick <handle>"
			}
			if !lister.Close(args[0]) {
				return fmt.Sprintf("no such connection: %s", args[0])
			}
			return fmt.Sprintf("kicked %s", args[0])
		},
	})
}
