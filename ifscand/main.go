/*
 * COPYRIGHT 2020 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

// Command ifscand is the wireless interface manager: one process per
// interface, scanning for and associating with the best known access
// point and driving its IP configuration, while accepting control
// commands over a per-interface local socket.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klauspost/oui"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"ifscand/aplog"
	"ifscand/apmodel"
	"ifscand/control"
	"ifscand/ipconfig"
	"ifscand/prefstore"
	"ifscand/scheduler"
	"ifscand/supervisor"
	"ifscand/wireless"
)

const pname = "ifscand"

var (
	debug      = pflag.BoolP("debug", "d", false, "enable debug logging")
	foreground = pflag.BoolP("foreground", "f", false, "log to stderr instead of syslog (the process never detaches)")
	noNetwork  = pflag.BoolP("no-network", "N", false, "link-only mode: skip IP configuration")
	help       = pflag.BoolP("help", "h", false, "show usage and exit")

	runtimeDir = pflag.String("runtime-dir", "/var/run/ifscand", "directory holding the control socket")
	dbPath     = pflag.String("db-path", "/var/db/ifscand/prefs.db", "preference store database path")
	iwPath     = pflag.String("iw-path", "/usr/sbin/iw", "path to the iw(8) binary")
	ouiDBPath  = pflag.String("oui-db-path", "/etc/ifscand/oui.txt", "path to an IEEE OUI database, for scan vendor lookup")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-d] [-f] [-N] <ifname>\n", pname)
	pflag.PrintDefaults()
}

// linkOnlyConfigurator is the IPApplier used under --no-network: it
// makes IP configuration a no-op so the daemon handles link-layer
// association only.
type linkOnlyConfigurator struct{}

func (linkOnlyConfigurator) Apply(rec *apmodel.AccessPointRecord) error { return nil }
func (linkOnlyConfigurator) Teardown()                                 {}
func (linkOnlyConfigurator) PollDHCP() bool                            { return false }

func newLogger(ifname string, debug, foreground bool) (*zap.SugaredLogger, error) {
	if foreground {
		return aplog.New(ifname, debug), nil
	}
	return aplog.NewSyslog(ifname, debug)
}

func main() {
	pflag.Parse()

	if *help {
		usage()
		os.Exit(0)
	}
	if pflag.NArg() != 1 {
		usage()
		os.Exit(1)
	}
	ifname := pflag.Arg(0)

	logger, err := newLogger(ifname, *debug, *foreground)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: failed to start logging: %v\n", pname, err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infof("starting on %s (debug=%v foreground=%v no-network=%v)",
		ifname, *debug, *foreground, *noNetwork)

	store, err := prefstore.Open(*dbPath, ifname)
	if err != nil {
		logger.Warnf("failed to open preference store: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	drv := wireless.NewLinuxDriver(ifname, *iwPath)
	sup := supervisor.New(logger)

	var ip scheduler.IPApplier
	if *noNetwork {
		ip = linkOnlyConfigurator{}
	} else {
		ip = ipconfig.New(ifname, sup, logger)
	}

	sched := scheduler.New(drv, store, ip, logger)
	backend := newDaemonBackend(store, drv, sched, logger)

	if err := os.MkdirAll(*runtimeDir, 0755); err != nil {
		logger.Warnf("failed to create runtime dir %s: %v", *runtimeDir, err)
		os.Exit(1)
	}
	sockPath := control.SocketPath(*runtimeDir, ifname)
	handler := control.NewHandler(backend)
	if db, err := oui.OpenStaticFile(*ouiDBPath); err != nil {
		logger.Debugf("no OUI database at %s, scan vendor lookup disabled: %v", *ouiDBPath, err)
	} else {
		handler = handler.WithVendorLookup(control.NewOuiVendorLookup(db))
	}
	srv, err := control.Listen(sockPath, handler, logger)
	if err != nil {
		logger.Warnf("failed to open control socket %s: %v", sockPath, err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 3)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	signal.Ignore(syscall.SIGPIPE)

	go func() {
		for s := range sig {
			logger.Infof("received signal %v", s)
			backend.RequestShutdown()
		}
	}()

	runLoop(sched, srv, backend, logger)

	logger.Infof("shutting down")
	sched.Shutdown()
	srv.Close()
	os.Exit(0)
}

// runLoop is the single-threaded cooperative event loop: each
// iteration waits up to the scheduler's current cadence for a control
// datagram, then runs one scheduler tick. The quit flag is checked at
// the top and bottom of each iteration.
func runLoop(sched *scheduler.Scheduler, srv *control.Server, backend *daemonBackend, logger *zap.SugaredLogger) {
	for {
		if quitRequested(backend) {
			return
		}

		deadline := sched.Cadence()
		if deadline <= 0 {
			deadline = time.Second
		}
		if err := srv.SetDeadline(deadline); err != nil {
			logger.Warnf("control socket deadline: %v", err)
		}

		buf := make([]byte, 4096)
		if _, err := srv.ServeOne(buf); err != nil {
			if netErr, ok := err.(interface{ Timeout() bool }); !ok || !netErr.Timeout() {
				logger.Warnf("control socket: %v", err)
			}
		}

		if quitRequested(backend) {
			return
		}

		if err := sched.Tick(); err != nil {
			logger.Warnf("aborting: %v", err)
			return
		}
	}
}

func quitRequested(backend *daemonBackend) bool {
	select {
	case <-backend.quit:
		return true
	default:
		return false
	}
}
