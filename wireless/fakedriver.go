/*
 * COPYRIGHT 2020 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

package wireless

import (
	"net"

	"ifscand/apmodel"
)

// FakeDriver is a deterministic Driver test double: no subprocesses,
// no sleeping. The scheduler's tests bind one of these instead of
// LinuxDriver, per the design's testability note that the scheduler
// should depend only on the Driver interface.
type FakeDriver struct {
	ScanResult []*apmodel.ScannedNode
	ScanErr    error

	NWID    string
	Up      bool
	BSSID   net.HardwareAddr
	Running bool
	RSSI    int

	// MediaAfter/BSSIDAfter/RunningAfter delay the corresponding wait
	// condition becoming true for N calls, to exercise Associate's
	// retry loops; each retry still sleeps for waitFor's real interval.
	MediaAfter, BSSIDAfter, RunningAfter int

	mediaCalls, bssidCalls, runningCalls int

	StationMAC net.HardwareAddr
	WEPKey     []byte
	WPAPSK     string
	WPAEnabled bool

	FailOp string // if set, the named method returns an error

	scanCalls int
}

// ScanCalls reports how many times Scan has been invoked, so tests can
// assert a tick did or didn't trigger a rescan.
func (f *FakeDriver) ScanCalls() int { return f.scanCalls }

func (f *FakeDriver) err(op string) error {
	if f.FailOp == op {
		return &DriverError{Op: op, Err: net.UnknownNetworkError(op)}
	}
	return nil
}

func (f *FakeDriver) Scan() ([]*apmodel.ScannedNode, error) {
	f.scanCalls++
	if f.ScanErr != nil {
		return nil, f.ScanErr
	}
	return f.ScanResult, nil
}

func (f *FakeDriver) SetNWID(ssid string) error { f.NWID = ssid; return f.err("set_nwid") }
func (f *FakeDriver) ClearNWID() error           { f.NWID = ""; return f.err("clear_nwid") }

func (f *FakeDriver) ConnectOpen() error { return f.err("connect_open") }

func (f *FakeDriver) SetWEPKey(key []byte) error { f.WEPKey = key; return f.err("set_wep_key") }
func (f *FakeDriver) ClearWEP() error             { f.WEPKey = nil; return f.err("clear_wep") }

func (f *FakeDriver) SetWPAPSK(passphrase, ssid string) error {
	f.WPAPSK = DeriveWPAPSK(passphrase, ssid)
	f.WPAEnabled = true
	return f.err("set_wpa_psk")
}
func (f *FakeDriver) SetWPAPSKRaw(hexPSK string) error {
	f.WPAPSK = hexPSK
	f.WPAEnabled = true
	return f.err("set_wpa_psk")
}
func (f *FakeDriver) DisableWPA() error { f.WPAEnabled = false; return f.err("disable_wpa") }

func (f *FakeDriver) SetStationMAC(mac net.HardwareAddr) error {
	f.StationMAC = mac
	return f.err("set_station_mac")
}
func (f *FakeDriver) SetStationMACRandom() error {
	mac, err := RandomStationMAC()
	if err != nil {
		return err
	}
	f.StationMAC = mac
	return f.err("set_station_mac")
}

func (f *FakeDriver) BringUp() error   { f.Up = true; return f.err("bring_up") }
func (f *FakeDriver) BringDown() error { f.Up = false; return f.err("bring_down") }

func (f *FakeDriver) CurrentBSSID() (net.HardwareAddr, error) {
	f.bssidCalls++
	if f.bssidCalls <= f.BSSIDAfter {
		return nil, nil
	}
	return f.BSSID, f.err("current_bssid")
}

func (f *FakeDriver) CurrentNWID() (string, error) {
	return f.NWID, f.err("current_nwid")
}

func (f *FakeDriver) MediaConfigured() (bool, error) {
	f.mediaCalls++
	return f.mediaCalls > f.MediaAfter, f.err("media_configured")
}

func (f *FakeDriver) LinkRunning() (bool, error) {
	f.runningCalls++
	if f.runningCalls <= f.RunningAfter {
		return false, nil
	}
	return f.Running, f.err("link_running")
}

func (f *FakeDriver) GetRSSI(ssid string, bssid net.HardwareAddr) (int, error) {
	return f.RSSI, f.err("get_rssi")
}
