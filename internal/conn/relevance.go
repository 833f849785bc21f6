// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package conn

import "github.com/vectorfield/repcore/internal/repobj"

// RelevanceRule is the external, game-defined predicate consulted once
// per candidate per attribute-emit decision (spec §6.3). A nil rule is
// treated as "always relevant", which is a reasonable default for a
// connection with no per-candidate visibility rules at all.
type RelevanceRule interface {
	IsRelevant(viewer, candidate *repobj.Instance) bool
}

// AlwaysRelevant is the zero-configuration RelevanceRule: every
// candidate is relevant to every viewer. Useful for tests and for
// connections that don't need game-defined visibility gating.
type AlwaysRelevant struct{}

func (AlwaysRelevant) IsRelevant(viewer, candidate *repobj.Instance) bool { return true }
