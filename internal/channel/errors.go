// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package channel

import "errors"

var (
	errShortPayload          = errors.New("channel: short payload")
	errUnknownAttributeIndex = errors.New("channel: unknown attribute index")
	errPermissionDenied      = errors.New("channel: permission denied")
	errUnknownRPCIndex       = errors.New("channel: unknown rpc index")
)
