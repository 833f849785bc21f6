// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package repobj

import "github.com/vectorfield/repcore/pkg/wire"

// RPCFunc is the local body of a declared RPC. args have already been
// deserialized (or are the caller's bound Go values for a local
// invocation) by the time the body runs.
type RPCFunc func(self *Instance, args []interface{}) error

// RPCDescriptor is declared once, at class scope, tagged with the
// netmode that should execute the body and whether delivery must be
// reliable (spec §4.1, §6.1).
type RPCDescriptor struct {
	Name     string
	Index    int // positional index within the class's declaration order
	Target   Netmode
	Reliable bool
	ArgTypes []string // registered wire.Handler names, in call order
	Body     RPCFunc
}

// RPCCall is a serialized, queued remote invocation awaiting drain by a
// channel (spec §3 "Channel").
type RPCCall struct {
	RPCIndex int
	Bytes    []byte // wire.PutUvarint(rpcIndex) ++ packed args
	Reliable bool
}

// EncodeRPCCall packs rpcIndex and args (already-packed bytes, one per
// declared ArgType, in order) into the payload used by method_invoke
// (spec §6.1: id:u16 ∥ rpc_index:varint ∥ args:packed-by-signature).
// The id prefix is added by the channel, not here, since a Channel is
// what owns the packed instance id bytes.
func EncodeRPCCall(rpcIndex int, packedArgs [][]byte) []byte {
	buf := wire.PutUvarint(nil, uint64(rpcIndex))
	for _, a := range packedArgs {
		buf = append(buf, a...)
	}
	return buf
}

// DecodeRPCIndex reads the rpc_index varint from the front of a
// method_invoke payload (after the id has already been stripped),
// returning the index and the number of bytes consumed.
func DecodeRPCIndex(payload []byte) (int, int, error) {
	v, n := wire.Uvarint(payload)
	if n <= 0 {
		return 0, 0, errShortPayload
	}
	return int(v), n, nil
}
