// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package repobj

// AttributeFlags is a bitmask of the per-attribute flags declared at
// class scope (spec §3).
type AttributeFlags uint8

const (
	// FlagNotify calls the instance's observer when the attribute changes
	// due to a remote write.
	FlagNotify AttributeFlags = 1 << iota

	// FlagComplain makes the attribute participate in complaint
	// rebroadcast: writing it sets a sticky per-instance dirty bit that
	// forces reconsideration at the next eligible send.
	FlagComplain

	// FlagInitialOnly marks an attribute that is only ever sent as part of
	// the initial replication packet, never in subsequent updates.
	FlagInitialOnly
)

func (f AttributeFlags) Has(bit AttributeFlags) bool { return f&bit != 0 }

// AttributeDescriptor is declared once, at class scope. Default is
// deep-copied into each instance's attribute store at first access so
// that mutating one instance's value never leaks into another's default
// (spec §4.1).
type AttributeDescriptor struct {
	Name string

	// Type is the registered wire.Handler name used to pack/unpack this
	// attribute's value.
	Type string

	// TypeOf narrows the declared type for polymorphic references (a
	// replicable reference whose runtime type is narrower than Type).
	TypeOf string

	Default interface{}
	Flags   AttributeFlags
}

func deepCopyDefault(v interface{}) interface{} {
	switch t := v.(type) {
	case []byte:
		cp := make([]byte, len(t))
		copy(cp, t)
		return cp
	case map[string]string:
		cp := make(map[string]string, len(t))
		for k, v := range t {
			cp[k] = v
		}
		return cp
	default:
		// Scalars (numbers, strings, bools) are copied by value already;
		// a replicable-reference default is always nil and copies trivially.
		return v
	}
}
