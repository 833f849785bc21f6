// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package repcli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"
)

// responseTerminator ends a response on the wire so a multi-line
// Dispatch result (e.g. "help") can be told apart from the next prompt
// without a length prefix.
const responseTerminator = ".\n"

// RunRemote drives a liner-backed REPL that forwards every line
// verbatim over rw and prints back whatever text comes back, rather
// than dispatching against a local Command table. Grounded on
// src/minimega/local.go's localAttach/NewRemoteMinimega: a thin client
// that gets full line-editing against a process whose own stdin isn't
// a terminal (spawned headless, or driven over a pty by a wrapping
// attach process per src/miniweb/handlers.go's pty.Start(cmd)
// precedent), while the actual command dispatch stays server-side.
func RunRemote(prompt string, out io.Writer, rw io.ReadWriter) error {
	in := liner.NewLiner()
	defer in.Close()
	in.SetCtrlCAborts(true)

	r := bufio.NewReader(rw)

	for {
		line, err := in.Prompt(prompt)
		if err == io.EOF || err == liner.ErrPromptAborted {
			return nil
		} else if err != nil {
			return err
		}

		if strings.TrimSpace(line) == "" {
			continue
		}
		in.AppendHistory(line)

		if _, err := fmt.Fprintln(rw, line); err != nil {
			return err
		}

		for {
			respLine, err := r.ReadString('\n')
			if err != nil {
				return err
			}
			if respLine == responseTerminator {
				break
			}
			fmt.Fprint(out, respLine)
		}
	}
}

// ServeConn runs one Unix-socket client's command loop against console,
// reading newline-delimited command lines and writing back Dispatch's
// output followed by responseTerminator. Grounded on
// src/minimega/command_socket.go's commandSocketHandle, simplified from
// its JSON cliCommand/cliResponse codec to plain text since this
// console has no structured multi-response streaming to do.
func ServeConn(console *Console, rw io.ReadWriter) error {
	r := bufio.NewReader(rw)

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return err
		}

		output, quit := console.Dispatch(line)
		if output != "" {
			if !strings.HasSuffix(output, "\n") {
				output += "\n"
			}
			if _, err := io.WriteString(rw, output); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(rw, responseTerminator); err != nil {
			return err
		}
		if quit {
			return nil
		}
	}
}
