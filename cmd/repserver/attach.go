// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package main

import (
	"io"
	"os"
	"os/exec"

	"github.com/kr/pty"

	"github.com/vectorfield/repcore/pkg/repcli"
)

// attachConsole implements -attach: it spawns a copy of this binary
// passed "-console-client" in place of "-attach" under a pty, then
// bridges that pty to the operator's own stdin/stdout. The spawned
// child dials the running instance's Unix control socket and runs
// repcli.RunRemote against it -- peterh/liner needs a real terminal
// to do line editing, which the child gets from the pty regardless of
// whatever stdin/stdout the *parent* repserver instance was started
// with. Grounded on src/miniweb/handlers.go's consoleHandler, which
// spawns "bin/minimega -attach" via pty.Start(cmd) and bridges the tty
// to a remote viewer; here the bridge target is the attaching
// operator's own terminal instead of a websocket.
func attachConsole() error {
	args := make([]string, 0, len(os.Args))
	for _, a := range os.Args[1:] {
		if a == "-attach" || a == "--attach" {
			continue
		}
		args = append(args, a)
	}
	args = append(args, "-console-client")

	cmd := exec.Command(os.Args[0], args...)

	tty, err := pty.Start(cmd)
	if err != nil {
		return err
	}
	defer tty.Close()

	done := make(chan struct{})
	go func() {
		io.Copy(tty, os.Stdin)
		close(done)
	}()
	go io.Copy(os.Stdout, tty)

	err = cmd.Wait()
	<-done
	return err
}

// runConsoleClient implements the "-console-client" side: dial the
// control socket and hand off to repcli.RunRemote.
func runConsoleClient(socketPath string) error {
	conn, err := dialConsoleSocket(socketPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	return repcli.RunRemote("repserver$ ", os.Stdout, conn)
}
