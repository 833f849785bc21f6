// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package repobj

// Class is the declaration-time description of a replicable type: its
// attributes (in declaration order, which is the canonical wire order
// for framing, spec §4.1) and its RPCs. A Class is shared by every
// Instance of that type; per-instance state lives in Instance.
type Class struct {
	Name string

	attrOrder []string
	attrs     map[string]*AttributeDescriptor

	rpcOrder []string
	rpcs     map[string]*RPCDescriptor

	conditionSet func(isOwner, isComplaint, isInitial bool) []string
}

// NewClass starts a class declaration for the given registered type
// name (the name used in replication_init's type_name field, §6.1).
func NewClass(name string) *Class {
	return &Class{
		Name:  name,
		attrs: make(map[string]*AttributeDescriptor),
		rpcs:  make(map[string]*RPCDescriptor),
	}
}

// Declare adds an attribute to the class. Declaration order is preserved
// and is the canonical wire order used by replication_update framing.
func (c *Class) Declare(d AttributeDescriptor) *Class {
	if _, exists := c.attrs[d.Name]; exists {
		panic("repobj: attribute " + d.Name + " declared twice on class " + c.Name)
	}

	c.attrOrder = append(c.attrOrder, d.Name)
	cp := d
	c.attrs[d.Name] = &cp

	return c
}

// DeclareRPC adds an RPC to the class, assigning it the next positional
// index (the rpc_index used by method_invoke framing, §6.1).
func (c *Class) DeclareRPC(name string, target Netmode, reliable bool, argTypes []string, body RPCFunc) *Class {
	if _, exists := c.rpcs[name]; exists {
		panic("repobj: rpc " + name + " declared twice on class " + c.Name)
	}

	idx := len(c.rpcOrder)
	c.rpcOrder = append(c.rpcOrder, name)
	c.rpcs[name] = &RPCDescriptor{
		Name:     name,
		Index:    idx,
		Target:   target,
		Reliable: reliable,
		ArgTypes: argTypes,
		Body:     body,
	}

	return c
}

// AttributeOrder returns the declared attribute names in declaration order.
func (c *Class) AttributeOrder() []string {
	return append([]string(nil), c.attrOrder...)
}

func (c *Class) Attribute(name string) (*AttributeDescriptor, bool) {
	d, ok := c.attrs[name]
	return d, ok
}

// AttributeAt returns the attribute declared at the given wire index.
func (c *Class) AttributeAt(index int) (*AttributeDescriptor, bool) {
	if index < 0 || index >= len(c.attrOrder) {
		return nil, false
	}
	return c.attrs[c.attrOrder[index]], true
}

// AttributeIndex returns the wire index of a declared attribute name.
func (c *Class) AttributeIndex(name string) (int, bool) {
	for i, n := range c.attrOrder {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

func (c *Class) RPC(name string) (*RPCDescriptor, bool) {
	r, ok := c.rpcs[name]
	return r, ok
}

func (c *Class) RPCAt(index int) (*RPCDescriptor, bool) {
	if index < 0 || index >= len(c.rpcOrder) {
		return nil, false
	}
	return c.rpcs[c.rpcOrder[index]], true
}

// SetConditionSet overrides the class's condition-set function (spec
// §4.5): given (is_owner, is_complaint, is_initial), returns the names
// of attributes eligible to be considered for this firing. Game code
// installs this to gate attributes on ownership or on-complaint-only
// semantics beyond what initial_only already expresses.
func (c *Class) SetConditionSet(fn func(isOwner, isComplaint, isInitial bool) []string) {
	c.conditionSet = fn
}

// ConditionSet evaluates the class's condition set. The default
// (installed when no SetConditionSet call was made) includes every
// declared attribute on every firing, except initial_only attributes,
// which are eligible only while is_initial is true.
func (c *Class) ConditionSet(isOwner, isComplaint, isInitial bool) []string {
	if c.conditionSet != nil {
		return c.conditionSet(isOwner, isComplaint, isInitial)
	}

	names := make([]string, 0, len(c.attrOrder))
	for _, name := range c.attrOrder {
		d := c.attrs[name]
		if d.Flags.Has(FlagInitialOnly) && !isInitial {
			continue
		}
		names = append(names, name)
	}
	return names
}
