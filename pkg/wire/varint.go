// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package wire

import "encoding/binary"

// PutUvarint appends the varint encoding of v to buf, returning the
// extended slice. Used for attribute counts/indices and RPC indices
// (§6.1 of the wire format).
func PutUvarint(buf []byte, v uint64) []byte {
	tmp := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(tmp, v)
	return append(buf, tmp[:n]...)
}

// Uvarint decodes a varint from the front of b, returning the value and
// the number of bytes consumed (0 on error).
func Uvarint(b []byte) (uint64, int) {
	return binary.Uvarint(b)
}
