// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Command repserver is the server side of the replication runtime:
// it accepts game-peer TCP connections, drives the simulation tick
// loop, and exposes a debug console. Grounded on src/minimega/main.go's
// flag block, signal-driven teardown, and pidfile bookkeeping.
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	ossignal "os/signal"
	"strings"
	"time"

	"github.com/vectorfield/repcore/internal/registry"
	"github.com/vectorfield/repcore/internal/rewind"
	"github.com/vectorfield/repcore/internal/signal"
	"github.com/vectorfield/repcore/internal/simhost"
	"github.com/vectorfield/repcore/pkg/repcli"
	"github.com/vectorfield/repcore/pkg/rlog"
	"github.com/vectorfield/repcore/pkg/wire"
)

const version = "0.1.0"

const banner = `repserver -- networked object replication runtime.
`

var (
	fLevel         = flag.String("level", "warn", "set log level: [debug, info, warn, error, fatal]")
	fLogfile       = flag.String("logfile", "", "also log to file")
	fBase          = flag.String("base", "/tmp/repserver", "base path for the pid file")
	fPort          = flag.Int("port", 9000, "TCP port to listen on for game connections")
	fBandwidth     = flag.Int("bandwidth", 4096, "per-connection, per-tick bandwidth budget in bytes")
	fTickRate      = flag.Float64("tick-rate", 60, "simulation ticks per second")
	fRewindSeconds = flag.Float64("rewind-seconds", 2, "seconds of rewind history retained per pawn")
	fNostdin       = flag.Bool("nostdin", false, "disable the local debug console on stdin")
	fAttach        = flag.Bool("attach", false, "attach a pty-wrapped console to a running instance")
	fConsoleClient = flag.Bool("console-client", false, "internal: dial the control socket as a console client (used by -attach)")
	fVersion       = flag.Bool("version", false, "print the version and exit")
)

func usage() {
	fmt.Println(banner)
	fmt.Println("usage: repserver [option]...")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *fVersion {
		fmt.Println("repserver", version)
		return
	}

	if *fAttach {
		if err := attachConsole(); err != nil {
			fmt.Fprintln(os.Stderr, "attach:", err)
			os.Exit(1)
		}
		return
	}

	if !strings.HasSuffix(*fBase, "/") {
		*fBase += "/"
	}

	if *fConsoleClient {
		if err := runConsoleClient(*fBase + "repserver.sock"); err != nil && err != io.EOF {
			fmt.Fprintln(os.Stderr, "console-client:", err)
			os.Exit(1)
		}
		return
	}

	if err := logSetup(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*fBase, os.FileMode(0770)); err != nil {
		rlog.Fatal("%v", err)
	}
	pidPath := *fBase + "repserver.pid"
	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0664); err != nil {
		rlog.Error("unable to write pidfile: %v", err)
	}
	defer os.Remove(pidPath)

	bus := signal.NewBus()
	reg := registry.New(bus)
	classes := registry.NewClassTable()
	wireReg := wire.NewRegistry()
	rewindBuf := rewind.NewBuffer(int(*fTickRate), *fRewindSeconds)

	host := simhost.New(bus, time.Duration(float64(time.Second)/(*fTickRate)))
	host.EnableHostStats(simhost.NewStatsSampler(), int(*fTickRate)*10)

	bus.Subscribe(signal.KindUpdateColliders, func(_ wire.InstanceID, payload interface{}) {
		rewind.CaptureFromRegistry(rewindBuf, host.Tick(), reg)
	})
	bus.UpdateGraph()

	srv := newServer(reg, classes, wireReg, bus, *fBandwidth)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", *fPort))
	if err != nil {
		rlog.Fatal("%v", err)
	}
	rlog.Info("listening on %s", ln.Addr())

	console := repcli.New("repserver$ ", os.Stdout)
	repcli.RegisterStat(console, reg)
	repcli.RegisterRewind(console, rewindBuf, rewind.RegistryAdapter{Reg: reg})
	repcli.RegisterKick(console, srv)

	go srv.acceptLoop(ln)
	go host.Run()
	go consoleSocketStart(*fBase+"repserver.sock", console)

	sig := make(chan os.Signal, 1)
	ossignal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		rlog.Info("caught signal, tearing down")
		teardown(ln, host)
	}()

	fmt.Println(banner)

	if !*fNostdin {
		if err := console.Run(); err != nil {
			rlog.Error("console: %v", err)
		}
	} else {
		<-sig
	}

	teardown(ln, host)
}

func logSetup() error {
	lvl, err := rlog.ParseLevel(*fLevel)
	if err != nil {
		return err
	}

	out := io.Writer(os.Stderr)
	if *fLogfile != "" {
		f, err := os.OpenFile(*fLogfile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		out = io.MultiWriter(os.Stderr, f)
	}

	rlog.Init(out, lvl, true)
	return nil
}

func teardown(ln net.Listener, host *simhost.Host) {
	host.Stop()
	ln.Close()
	os.Exit(0)
}
