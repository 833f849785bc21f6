// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package registry

import (
	"sync"

	"github.com/vectorfield/repcore/internal/repobj"
)

// ClassTable maps a replicable's wire type_name (spec §6.1's
// replication_init type_name field) to the declared *repobj.Class used
// to construct new instances on receipt of replication_init. Grounded
// on spec.md §9's design note: "a type registry keyed by type name
// populated at class-definition time via an explicit register() call",
// generalized here from the primitive-handler registry (pkg/wire) to
// replicable classes, since the two are agreement-out-of-band but
// logically distinct namespaces.
type ClassTable struct {
	mu      sync.Mutex
	classes map[string]*repobj.Class
}

func NewClassTable() *ClassTable {
	return &ClassTable{classes: make(map[string]*repobj.Class)}
}

// Register adds class under its own Name. Panics on a duplicate
// registration, mirroring repobj.Class.Declare's duplicate-attribute
// panic: a name collision here is a build-time program error, not a
// runtime condition to recover from.
func (t *ClassTable) Register(class *repobj.Class) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.classes[class.Name]; exists {
		panic("registry: class " + class.Name + " registered twice")
	}
	t.classes[class.Name] = class
}

// Get looks a class up by its wire type_name.
func (t *ClassTable) Get(name string) (*repobj.Class, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.classes[name]
	return c, ok
}
