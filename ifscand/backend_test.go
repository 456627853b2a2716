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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ifscand/apmodel"
	"ifscand/prefstore"
	"ifscand/scheduler"
	"ifscand/wireless"
)

type testLog struct{}

func (testLog) Infof(format string, args ...interface{})  {}
func (testLog) Warnf(format string, args ...interface{})  {}
func (testLog) Debugf(format string, args ...interface{}) {}

func newTestBackend(t *testing.T) *daemonBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prefs.db")
	store, err := prefstore.Open(path, "wlan0")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	drv := &wireless.FakeDriver{}
	ip := stubIPApplier{}
	sched := scheduler.New(drv, store, ip, testLog{})
	return newDaemonBackend(store, drv, sched, testLog{})
}

type stubIPApplier struct{}

func (stubIPApplier) Apply(rec *apmodel.AccessPointRecord) error { return nil }
func (stubIPApplier) Teardown()                                 {}
func (stubIPApplier) PollDHCP() bool                             { return false }

func TestBackendAddListDelete(t *testing.T) {
	b := newTestBackend(t)

	rec := &apmodel.AccessPointRecord{
		SSID:     "home",
		AuthMode: apmodel.AuthWPA,
		Key:      []byte("correcthorsebatterystaple"),
		IPv4:     apmodel.IPv4Policy{Kind: apmodel.IPv4DHCP},
	}
	require.NoError(t, b.AddAP(rec))

	recs, err := b.ListAPs()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "home", recs[0].SSID)

	require.NoError(t, b.DeleteAP("home"))
	recs, err = b.ListAPs()
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestBackendRandomizeMacAndAPOrder(t *testing.T) {
	b := newTestBackend(t)

	require.NoError(t, b.SetRandomizeMac(true))
	v, err := b.GetRandomizeMac()
	require.NoError(t, err)
	assert.True(t, v)

	require.NoError(t, b.SetAPOrder([]string{"work", "home"}))
	order, ok, err := b.GetAPOrder()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"work", "home"}, order)
}

func TestBackendRequestShutdownIsIdempotent(t *testing.T) {
	b := newTestBackend(t)
	b.RequestShutdown()
	b.RequestShutdown()
	assert.True(t, quitRequested(b))
}

func TestBackendScanDelegatesToDriver(t *testing.T) {
	b := newTestBackend(t)
	drv := b.drv.(*wireless.FakeDriver)
	drv.ScanResult = []*apmodel.ScannedNode{{SSID: "home", RSSI: -40, MaxRSSI: 100}}

	nodes, err := b.Scan()
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "home", nodes[0].SSID)
}
