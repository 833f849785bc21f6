// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package repobj

import "errors"

var (
	errShortPayload     = errors.New("repobj: short payload")
	errUnknownAttribute = errors.New("repobj: unknown attribute")
	errUnknownRPC       = errors.New("repobj: unknown rpc")
)
