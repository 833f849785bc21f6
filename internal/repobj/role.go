// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package repobj

// Role is one side of a (local, remote) pair controlling what a peer may
// do to a replicable (spec §3). Modeled as a plain value, not a subtype
// hierarchy -- the swap on receive (spec invariant 6) is a field-level
// operation, not a type change.
type Role int

const (
	RoleNone Role = iota
	RoleDumbProxy
	RoleSimulatedProxy
	RoleAutonomousProxy
	RoleAuthority
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleDumbProxy:
		return "dumb_proxy"
	case RoleSimulatedProxy:
		return "simulated_proxy"
	case RoleAutonomousProxy:
		return "autonomous_proxy"
	case RoleAuthority:
		return "authority"
	default:
		return "unknown"
	}
}

// Roles is the (local, remote) pair carried by every replicable.
type Roles struct {
	Local  Role
	Remote Role
}

// Swap exchanges local and remote in place. Called by the client on
// receipt of replication_init (spec invariant 6).
func (r *Roles) Swap() {
	r.Local, r.Remote = r.Remote, r.Local
}

// Netmode is the role of the local process as a whole, as opposed to the
// per-replicable Roles pair.
type Netmode int

const (
	NetmodeServer Netmode = iota
	NetmodeClient
)

func (n Netmode) String() string {
	if n == NetmodeServer {
		return "server"
	}
	return "client"
}
