/*
 * COPYRIGHT 2020 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

package main

import (
	"ifscand/apmodel"
	"ifscand/prefstore"
	"ifscand/scheduler"
	"ifscand/wireless"
)

// daemonBackend bridges the control protocol to the preference store,
// the wireless driver, and the daemon's own quit flag, satisfying
// control.Backend. It holds no state of its own beyond what's needed
// to request shutdown.
type daemonBackend struct {
	store *prefstore.Store
	drv   wireless.Driver
	sched *scheduler.Scheduler
	log   scheduler.Logger

	quit chan struct{}
}

func newDaemonBackend(store *prefstore.Store, drv wireless.Driver, sched *scheduler.Scheduler, log scheduler.Logger) *daemonBackend {
	return &daemonBackend{store: store, drv: drv, sched: sched, log: log, quit: make(chan struct{})}
}

func (b *daemonBackend) AddAP(rec *apmodel.AccessPointRecord) error {
	return b.store.PutAP(rec)
}

func (b *daemonBackend) DeleteAP(ssid string) error {
	return b.store.DeleteAP(ssid)
}

func (b *daemonBackend) ListAPs() ([]*apmodel.AccessPointRecord, error) {
	return b.store.ListAPs()
}

func (b *daemonBackend) Scan() ([]*apmodel.ScannedNode, error) {
	return b.drv.Scan()
}

func (b *daemonBackend) GetRandomizeMac() (bool, error) {
	return b.store.GetRandomizeMac()
}

func (b *daemonBackend) SetRandomizeMac(v bool) error {
	return b.store.SetRandomizeMac(v)
}

func (b *daemonBackend) GetAPOrder() ([]string, bool, error) {
	return b.store.GetAPOrder()
}

func (b *daemonBackend) SetAPOrder(order []string) error {
	return b.store.SetAPOrder(order)
}

// RequestShutdown is invoked from the control socket's "down" command;
// it must never block, since it runs inline inside ServeOne on the
// daemon's single goroutine.
func (b *daemonBackend) RequestShutdown() {
	select {
	case <-b.quit:
	default:
		close(b.quit)
	}
}
