// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package repobj

import "github.com/vectorfield/repcore/pkg/wire"

// Resolve looks an InstanceID up in the live object graph. Implemented
// by the replicable registry; passed in rather than imported to avoid a
// cycle (repobj has no dependency on registry).
type Resolve func(id wire.InstanceID) (*Instance, bool)

// UppermostOwner walks the owner chain to its root, following non-owning
// OwnerID back-references (spec §3, §9). A cycle in a misconfigured
// owner chain is broken by capping the walk at the size of the graph
// implied by maxHops; callers pass a generous bound (e.g. the number of
// live replicables) rather than looping forever.
func (i *Instance) UppermostOwner(resolve Resolve, maxHops int) wire.InstanceID {
	cur := i
	id := i.ID

	for hops := 0; hops < maxHops; hops++ {
		if cur.OwnerID == 0 {
			return id
		}

		owner, ok := resolve(cur.OwnerID)
		if !ok {
			return id
		}

		id = owner.ID
		cur = owner
	}

	return id
}
