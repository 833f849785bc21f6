// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package repcli is a small liner-backed REPL for operators to inspect
// a running server's registry/connection/rewind state and issue debug
// commands, grounded on src/minimega/cli.go's cliCommands table
// (Call/Helpshort/Helplong) and src/miniweb/auth.go's bootstrap's
// liner.NewLiner()/Prompt()/io.EOF loop shape. It is not part of the
// replication core; it is the same kind of operational aid
// cmd/minimega's own CLI is to minimega.
package repcli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/peterh/liner"
)

// Command is one named REPL command, mirroring src/minimega/cli.go's
// command struct (Call/Helpshort/Helplong) but invoked directly in the
// same process rather than routed through a command channel, since
// this console has no meshage-style distributed dispatch to do.
type Command struct {
	Helpshort string
	Helplong  string
	Call      func(args []string) string
}

// Console is a REPL bound to a fixed command table.
type Console struct {
	prompt   string
	commands map[string]*Command

	out io.Writer
}

// New creates a console with prompt as its line prompt. Callers
// register commands with Register before calling Run.
func New(prompt string, out io.Writer) *Console {
	return &Console{
		prompt:   prompt,
		commands: make(map[string]*Command),
		out:      out,
	}
}

// Register adds a named command, panicking on a duplicate name -- a
// duplicate registration is a programming error, not an operator
// mistake, so it is caught the same way internal/registry.ClassTable
// catches a duplicate class name.
func (c *Console) Register(name string, cmd *Command) {
	if _, exists := c.commands[name]; exists {
		panic("repcli: duplicate command " + name)
	}
	c.commands[name] = cmd
}

func (c *Console) help() string {
	names := make([]string, 0, len(c.commands))
	for name := range c.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		fmt.Fprintf(&sb, "%s\t%s\n", name, c.commands[name].Helpshort)
	}
	return sb.String()
}

// Dispatch runs a single line against the command table, returning the
// output text and whether the line was a "quit"/"exit" request. Split
// out of Run so a remote handler (cmd/repserver's Unix control socket)
// can reuse the same command table without needing a real terminal to
// back liner -- only one end of an attach session needs an actual tty
// (spec.md §4.9's -attach; see pkg/repcli's RunRemote).
func (c *Console) Dispatch(line string) (output string, quit bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}

	if line == "quit" || line == "exit" {
		return "", true
	}

	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	if name == "help" {
		return c.help(), false
	}

	cmd, ok := c.commands[name]
	if !ok {
		return fmt.Sprintf("unknown command %q (try \"help\")", name), false
	}

	return cmd.Call(args), false
}

// Run drives the REPL against a local terminal, exiting cleanly on
// Ctrl-D (io.EOF) or the "quit"/"exit" commands. It blocks the calling
// goroutine.
func (c *Console) Run() error {
	in := liner.NewLiner()
	defer in.Close()
	in.SetCtrlCAborts(true)

	for {
		line, err := in.Prompt(c.prompt)
		if err == io.EOF || err == liner.ErrPromptAborted {
			return nil
		} else if err != nil {
			return err
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		in.AppendHistory(line)

		output, quit := c.Dispatch(line)
		if quit {
			return nil
		}
		if output != "" {
			fmt.Fprintln(c.out, output)
		}
	}
}
