// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package repcli

import (
	"bufio"
	"bytes"
	"net"
	"strings"
	"testing"

	"github.com/vectorfield/repcore/internal/registry"
	"github.com/vectorfield/repcore/internal/rewind"
	"github.com/vectorfield/repcore/internal/signal"
	"github.com/vectorfield/repcore/pkg/wire"
)

func TestRegisterDuplicateCommandPanics(t *testing.T) {
	var buf bytes.Buffer
	c := New("repcli$ ", &buf)
	c.Register("foo", &Command{Call: func(args []string) string { return "" }})

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic on duplicate command registration")
		}
	}()
	c.Register("foo", &Command{Call: func(args []string) string { return "" }})
}

func TestHelpListsCommandsSorted(t *testing.T) {
	var buf bytes.Buffer
	c := New("repcli$ ", &buf)
	c.Register("zeta", &Command{Helpshort: "last"})
	c.Register("alpha", &Command{Helpshort: "first"})

	out := c.help()
	if strings.Index(out, "alpha") > strings.Index(out, "zeta") {
		t.Fatalf("expected alpha before zeta, got %q", out)
	}
}

func TestStatCommandReportsCount(t *testing.T) {
	bus := signal.NewBus()
	reg := registry.New(bus)
	reg.AllocateID()

	var buf bytes.Buffer
	c := New("repcli$ ", &buf)
	RegisterStat(c, reg)

	got := c.commands["stat"].Call(nil)
	if !strings.Contains(got, "replicables: 0") {
		t.Fatalf("expected zero registered replicables before any Register call, got %q", got)
	}
}

func TestRewindCommandReportsOutOfRange(t *testing.T) {
	buf := rewind.NewBuffer(60, 1)
	adapter := rewind.LocalAdapter{wire.InstanceID(1): &rewind.Snapshot{}}

	var out bytes.Buffer
	c := New("repcli$ ", &out)
	RegisterRewind(c, buf, adapter)

	got := c.commands["rewind"].Call([]string{"5", "1"})
	if got != rewind.ErrOutOfRange.Error() {
		t.Fatalf("expected out-of-range error text, got %q", got)
	}
}

func TestRewindCommandReportsCapturedSnapshot(t *testing.T) {
	buf := rewind.NewBuffer(60, 1)
	buf.Capture(5, wire.InstanceID(1), rewind.Snapshot{Position: [3]float64{1, 2, 3}})
	adapter := rewind.LocalAdapter{wire.InstanceID(1): &rewind.Snapshot{}}

	var out bytes.Buffer
	c := New("repcli$ ", &out)
	RegisterRewind(c, buf, adapter)

	got := c.commands["rewind"].Call([]string{"5", "1"})
	if !strings.Contains(got, "pos=[1 2 3]") {
		t.Fatalf("expected position in output, got %q", got)
	}
}

func TestDispatchQuitOnExitOrQuit(t *testing.T) {
	var out bytes.Buffer
	c := New("repcli$ ", &out)

	if _, quit := c.Dispatch("quit"); !quit {
		t.Fatal("expected quit to report quit=true")
	}
	if _, quit := c.Dispatch("exit"); !quit {
		t.Fatal("expected exit to report quit=true")
	}
	if _, quit := c.Dispatch("stat"); quit {
		t.Fatal("expected an unrelated line not to report quit")
	}
}

func TestServeConnRoundTripsDispatch(t *testing.T) {
	bus := signal.NewBus()
	reg := registry.New(bus)

	var out bytes.Buffer
	c := New("repcli$ ", &out)
	RegisterStat(c, reg)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	go ServeConn(c, serverConn)

	if _, err := clientConn.Write([]byte("stat\n")); err != nil {
		t.Fatal(err)
	}

	r := bufio.NewReader(clientConn)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(line, "replicables: 0") {
		t.Fatalf("expected stat output, got %q", line)
	}

	terminator, err := r.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if terminator != responseTerminator {
		t.Fatalf("expected response terminator, got %q", terminator)
	}
}
