/*
 * COPYRIGHT 2020 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

package scheduler

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ifscand/apmodel"
	"ifscand/prefstore"
	"ifscand/wireless"
)

type fakeLog struct{ t *testing.T }

func (f fakeLog) Infof(format string, args ...interface{})  { f.t.Logf(format, args...) }
func (f fakeLog) Warnf(format string, args ...interface{})  { f.t.Logf(format, args...) }
func (f fakeLog) Debugf(format string, args ...interface{}) { f.t.Logf(format, args...) }

// fakeStore is an in-memory PrefStore double.
type fakeStore struct {
	records      map[string]*apmodel.AccessPointRecord
	apOrder      []string
	scanInt      uint
	rssiScanInt  uint
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:     make(map[string]*apmodel.AccessPointRecord),
		scanInt:     apmodel.DefaultScanIntervalSec,
		rssiScanInt: apmodel.DefaultRSSIScanIntervalSec,
	}
}

func (f *fakeStore) FilterAndRank(scanned []*apmodel.ScannedNode, log prefstore.Logger) ([]*apmodel.AccessPointRecord, error) {
	rank := make(map[string]int, len(f.apOrder))
	for i, s := range f.apOrder {
		if _, ok := rank[s]; !ok {
			rank[s] = i
		}
	}

	var ranked, unranked []*apmodel.AccessPointRecord
	seen := make(map[string]bool)
	for _, node := range scanned {
		if seen[node.SSID] {
			continue
		}
		rec, ok := f.records[node.SSID]
		if !ok {
			continue
		}
		if rec.PinnedBSSID != nil && rec.PinnedBSSID.String() != node.BSSID.String() {
			log.Warnf("pinned bssid mismatch for %s", node.SSID)
			continue
		}
		cp := *rec
		cp.ObservedBSSID = node.BSSID
		cp.ObservedRSSI = node.RSSI
		seen[node.SSID] = true
		if _, inOrder := rank[node.SSID]; inOrder {
			ranked = append(ranked, &cp)
		} else {
			unranked = append(unranked, &cp)
		}
	}
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && rank[ranked[j].SSID] < rank[ranked[j-1].SSID]; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}
	return append(ranked, unranked...), nil
}

func (f *fakeStore) GetScanInterval() (uint, error)     { return f.scanInt, nil }
func (f *fakeStore) GetRSSIScanInterval() (uint, error) { return f.rssiScanInt, nil }

type fakeIP struct {
	applyErr  error
	applyCnt  int
	teardowns int
}

func (f *fakeIP) Apply(rec *apmodel.AccessPointRecord) error { f.applyCnt++; return f.applyErr }
func (f *fakeIP) Teardown()                                  { f.teardowns++ }
func (f *fakeIP) PollDHCP() bool                              { return false }

func mac(s string) net.HardwareAddr {
	m, _ := net.ParseMAC(s)
	return m
}

func node(ssid string, bssidStr string, rssi int) *apmodel.ScannedNode {
	return &apmodel.ScannedNode{SSID: ssid, BSSID: mac(bssidStr), RSSI: rssi}
}

// Scenario 1: empty catalog, empty scan.
func TestTickEmptyCatalogEmptyScan(t *testing.T) {
	drv := &wireless.FakeDriver{}
	store := newFakeStore()
	ip := &fakeIP{}
	s := New(drv, store, ip, fakeLog{t})

	require.NoError(t, s.Tick())
	assert.Equal(t, Disassociated, s.State())
	assert.Equal(t, 60*time.Second, s.Cadence())
	assert.Equal(t, 0, ip.applyCnt)
}

// Scenario 2: catalog contains home; scan returns home strong, neighbor weak.
func TestTickAssociatesWithStrongestMatch(t *testing.T) {
	drv := &wireless.FakeDriver{
		ScanResult: []*apmodel.ScannedNode{
			node("home", "aa:bb:cc:dd:ee:ff", -40),
			node("stranger", "11:22:33:44:55:66", -80),
		},
		BSSID:   mac("aa:bb:cc:dd:ee:ff"),
		Running: true,
		RSSI:    -40,
	}
	store := newFakeStore()
	store.records["home"] = &apmodel.AccessPointRecord{SSID: "home", IPv4: apmodel.IPv4Policy{Kind: apmodel.IPv4DHCP}}
	ip := &fakeIP{}
	s := New(drv, store, ip, fakeLog{t})

	require.NoError(t, s.Tick())
	assert.Equal(t, Associated, s.State())
	assert.Equal(t, "home", s.CurrentAp().SSID)
	assert.Equal(t, 10*time.Second, s.Cadence())
	assert.Equal(t, 1, ip.applyCnt)
}

// Scenario 3: two low samples after the association seed; the window
// holds three samples and is not yet full.
func TestTickStaysAssociatedUntilWindowFull(t *testing.T) {
	drv := &wireless.FakeDriver{
		ScanResult: []*apmodel.ScannedNode{node("home", "aa:bb:cc:dd:ee:ff", -40)},
		BSSID:      mac("aa:bb:cc:dd:ee:ff"),
		Running:    true,
		RSSI:       -40,
	}
	store := newFakeStore()
	store.records["home"] = &apmodel.AccessPointRecord{SSID: "home"}
	ip := &fakeIP{}
	s := New(drv, store, ip, fakeLog{t})
	require.NoError(t, s.Tick()) // associate first
	require.Equal(t, Associated, s.State())

	drv.RSSI = -90
	for i := 0; i < 2; i++ {
		require.NoError(t, s.Tick())
		assert.Equal(t, Associated, s.State())
		assert.Equal(t, "home", s.CurrentAp().SSID)
	}
}

// A healthy link (RSSI sample on the same 0-100 scale as
// rssi.LowThreshold) must never trigger a rescan, even once the
// window fills -- the "stay put while healthy" branch of the tick
// algorithm.
func TestTickStaysAssociatedWhenRSSIHealthy(t *testing.T) {
	drv := &wireless.FakeDriver{
		ScanResult: []*apmodel.ScannedNode{node("home", "aa:bb:cc:dd:ee:ff", -40)},
		BSSID:      mac("aa:bb:cc:dd:ee:ff"),
		Running:    true,
		RSSI:       80,
	}
	store := newFakeStore()
	store.records["home"] = &apmodel.AccessPointRecord{SSID: "home"}
	ip := &fakeIP{}
	s := New(drv, store, ip, fakeLog{t})
	require.NoError(t, s.Tick()) // associate first
	require.Equal(t, Associated, s.State())

	for i := 0; i < 6; i++ {
		require.NoError(t, s.Tick())
		assert.Equal(t, Associated, s.State())
		assert.Equal(t, "home", s.CurrentAp().SSID)
	}
	assert.Equal(t, 1, drv.ScanCalls(), "a healthy, window-full link must not trigger a rescan")
}

// Scenario 4: window full with low mean; scan returns home, cafe with cafe top.
func TestTickSwitchesToStrongerCandidateOnLowRSSI(t *testing.T) {
	drv := &wireless.FakeDriver{
		ScanResult: []*apmodel.ScannedNode{node("home", "aa:bb:cc:dd:ee:ff", -40)},
		BSSID:      mac("aa:bb:cc:dd:ee:ff"),
		Running:    true,
		RSSI:       -40,
	}
	store := newFakeStore()
	store.records["home"] = &apmodel.AccessPointRecord{SSID: "home"}
	store.records["cafe"] = &apmodel.AccessPointRecord{SSID: "cafe"}
	ip := &fakeIP{}
	s := New(drv, store, ip, fakeLog{t})
	require.NoError(t, s.Tick()) // associate with home
	require.Equal(t, Associated, s.State())
	drv.RSSI = -90

	// Feed 3 more low samples to fill the window (4 total incl. the
	// seed sample from association), then arrange a scan with cafe on top.
	drv.ScanResult = []*apmodel.ScannedNode{
		node("cafe", "22:22:22:22:22:22", -30),
		node("home", "aa:bb:cc:dd:ee:ff", -93),
	}
	drv.BSSID = mac("22:22:22:22:22:22")

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Tick())
	}

	assert.Equal(t, Associated, s.State())
	assert.Equal(t, "cafe", s.CurrentAp().SSID)
}

// Scenario 5: pinned-BSSID mismatch excludes the observation.
func TestTickPinnedBSSIDMismatchExcluded(t *testing.T) {
	drv := &wireless.FakeDriver{
		ScanResult: []*apmodel.ScannedNode{node("office", "77:77:77:77:77:77", -40)},
	}
	store := newFakeStore()
	store.records["office"] = &apmodel.AccessPointRecord{SSID: "office", PinnedBSSID: mac("11:22:33:44:55:66")}
	ip := &fakeIP{}
	s := New(drv, store, ip, fakeLog{t})

	require.NoError(t, s.Tick())
	assert.Equal(t, Disassociated, s.State())
}

// Scenario 6: apOrder prioritizes work, home over cafe.
func TestFilterAndRankRespectsApOrder(t *testing.T) {
	drv := &wireless.FakeDriver{}
	store := newFakeStore()
	store.apOrder = []string{"work", "home"}
	store.records["home"] = &apmodel.AccessPointRecord{SSID: "home"}
	store.records["cafe"] = &apmodel.AccessPointRecord{SSID: "cafe"}
	store.records["work"] = &apmodel.AccessPointRecord{SSID: "work"}
	scanned := []*apmodel.ScannedNode{
		node("home", "aa:aa:aa:aa:aa:aa", -50),
		node("cafe", "bb:bb:bb:bb:bb:bb", -40),
		node("work", "cc:cc:cc:cc:cc:cc", -60),
	}
	ranked, err := store.FilterAndRank(scanned, fakeLog{t})
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, []string{"work", "home", "cafe"}, []string{ranked[0].SSID, ranked[1].SSID, ranked[2].SSID})
	_ = drv
}

// Scenario 8 (scheduler half): Shutdown disassociates and tears down IP state.
func TestShutdownDisassociatesAndTearsDown(t *testing.T) {
	drv := &wireless.FakeDriver{
		ScanResult: []*apmodel.ScannedNode{node("home", "aa:bb:cc:dd:ee:ff", -40)},
		BSSID:      mac("aa:bb:cc:dd:ee:ff"),
		Running:    true,
	}
	store := newFakeStore()
	store.records["home"] = &apmodel.AccessPointRecord{SSID: "home", IPv4: apmodel.IPv4Policy{Kind: apmodel.IPv4DHCP}}
	ip := &fakeIP{}
	s := New(drv, store, ip, fakeLog{t})
	require.NoError(t, s.Tick())
	require.Equal(t, Associated, s.State())

	s.Shutdown()
	assert.Equal(t, Disassociated, s.State())
	assert.Equal(t, 1, ip.teardowns)
	assert.Nil(t, s.CurrentAp())
}

func TestScanFailureAbortsAfterFiveConsecutive(t *testing.T) {
	drv := &wireless.FakeDriver{ScanErr: assertErr{}}
	store := newFakeStore()
	ip := &fakeIP{}
	s := New(drv, store, ip, fakeLog{t})

	var err error
	for i := 0; i < 5; i++ {
		err = s.Tick()
	}
	require.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "scan denied" }
