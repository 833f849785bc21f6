// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package main

import (
	"net"
	"os"

	"github.com/vectorfield/repcore/pkg/repcli"
	"github.com/vectorfield/repcore/pkg/rlog"
)

// consoleSocketStart listens on a Unix-domain socket at path and serves
// every accepted connection against console, letting an -attach child
// reach the same command table a locally-attached stdin console would.
// Grounded on src/minimega/command_socket.go's commandSocketStart
// accept loop, simplified from its JSON-over-TCP/registered-TID
// response-routing scheme (multi-response streaming this console has
// no need for) to repcli.ServeConn's plain line-in/line-out protocol.
func consoleSocketStart(path string, console *repcli.Console) {
	os.Remove(path) // stale socket from an unclean previous exit

	ln, err := net.Listen("unix", path)
	if err != nil {
		rlog.Error("consoleSocketStart: %v", err)
		return
	}
	defer ln.Close()
	defer os.Remove(path)

	for {
		c, err := ln.Accept()
		if err != nil {
			rlog.Info("console socket accept loop exiting: %v", err)
			return
		}
		go func() {
			defer c.Close()
			if err := repcli.ServeConn(console, c); err != nil {
				rlog.Debug("console socket client disconnected: %v", err)
			}
		}()
	}
}

// dialConsoleSocket connects to a running instance's control socket.
func dialConsoleSocket(path string) (net.Conn, error) {
	return net.Dial("unix", path)
}
