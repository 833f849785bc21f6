// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package conn

import "errors"

var (
	errUnknownType     = errors.New("conn: unknown replicable type")
	errShortPacket     = errors.New("conn: packet too short")
	errUnsupportedRecv = errors.New("conn: packet not valid for this connection's netmode")
)
