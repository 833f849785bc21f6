// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Command repclient is the client side of the replication runtime: it
// dials a repserver, runs a proxied conn.Connection, and exposes the
// same debug console repserver does. Flags and the dial-retry loop are
// grounded on src/miniccc/main.go's dial() retry loop, adapted from
// ron's serial/unix/tcp multi-family dial to this runtime's single TCP
// game connection. Unlike repserver, it keeps no pidfile.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	ossignal "os/signal"
	"time"

	"github.com/vectorfield/repcore/internal/conn"
	"github.com/vectorfield/repcore/internal/registry"
	"github.com/vectorfield/repcore/internal/signal"
	"github.com/vectorfield/repcore/pkg/repcli"
	"github.com/vectorfield/repcore/pkg/rlog"
	"github.com/vectorfield/repcore/pkg/wire"
)

// Retry dialing for two hours (480 x 15s) before giving up, matching the
// teacher's own dial-retry budget in src/miniccc/main.go.
const dialRetries = 480
const dialRetryInterval = 15 * time.Second

const version = "0.1.0"

const banner = `repclient -- networked object replication runtime client.
`

var (
	fLevel     = flag.String("level", "warn", "set log level: [debug, info, warn, error, fatal]")
	fLogfile   = flag.String("logfile", "", "also log to file")
	fHost      = flag.String("host", "127.0.0.1", "repserver host to connect to")
	fPort      = flag.Int("port", 9000, "repserver port to connect to")
	fBandwidth = flag.Int("bandwidth", 4096, "outgoing bandwidth budget in bytes per tick (RPC calls back to the server)")
	fNostdin   = flag.Bool("nostdin", false, "disable the local debug console on stdin")
	fVersion   = flag.Bool("version", false, "print the version and exit")
)

func usage() {
	fmt.Println(banner)
	fmt.Println("usage: repclient [option]...")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *fVersion {
		fmt.Println("repclient", version)
		return
	}

	if err := logSetup(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	bus := signal.NewBus()
	reg := registry.New(bus)
	classes := registry.NewClassTable()
	wireReg := wire.NewRegistry()

	c := conn.NewClient(reg, classes, wireReg, bus)

	nc, err := dial()
	if err != nil {
		rlog.Fatal("unable to connect: %v", err)
	}
	rlog.Info("connected to %s", nc.RemoteAddr())

	go readLoop(nc, c)
	go writeLoop(nc, c, *fBandwidth)

	console := repcli.New("repclient$ ", os.Stdout)
	repcli.RegisterStat(console, reg)

	sig := make(chan os.Signal, 1)
	ossignal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		rlog.Info("caught signal, tearing down")
		teardown(nc)
	}()

	fmt.Println(banner)

	if !*fNostdin {
		if err := console.Run(); err != nil {
			rlog.Error("console: %v", err)
		}
	} else {
		<-sig
	}

	teardown(nc)
}

// dial retries the TCP connection to repserver for up to
// dialRetries*dialRetryInterval, mirroring src/miniccc/main.go's dial
// loop so a repclient started before its repserver is listening
// doesn't just fail outright.
func dial() (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", *fHost, *fPort)

	var err error
	for i := dialRetries; i > 0; i-- {
		var nc net.Conn
		nc, err = net.Dial("tcp", addr)
		if err == nil {
			return nc, nil
		}
		rlog.Debug("dial %s: %v, retrying", addr, err)
		time.Sleep(dialRetryInterval)
	}
	return nil, err
}

func readLoop(nc net.Conn, c *conn.Connection) {
	r := bufio.NewReader(nc)
	for {
		pkt, err := conn.ReadPacket(r)
		if err != nil {
			rlog.Info("read loop exiting: %v", err)
			return
		}
		if err := c.Receive(pkt); err != nil {
			rlog.Warn("receive: %v", err)
		}
	}
}

// writeLoop flushes c's outgoing packets once per tick, exactly as
// repserver's per-peer flush does, but client-side there is no
// internal/simhost.Host driving the tick: the client's own clock
// stands in for it, since a proxied client has no simulation to
// advance.
func writeLoop(nc net.Conn, c *conn.Connection, bandwidth int) {
	ticker := time.NewTicker(time.Second / 30)
	defer ticker.Stop()

	for now := range ticker.C {
		pc := c.Send(now, bandwidth)
		if len(pc) == 0 {
			continue
		}
		if err := conn.WriteCollection(nc, pc); err != nil {
			rlog.Warn("write: %v", err)
			return
		}
	}
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

func teardown(nc net.Conn) {
	nc.Close()
	os.Exit(0)
}
