/*
 * COPYRIGHT 2020 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

// Package wireless handles every interaction with the OS's wireless
// control surface through a Driver capability interface, so the
// scheduler and RSSI estimator can be tested against a deterministic
// double instead of hardware. LinuxDriver is the production
// implementation, built the way ap_common/apscan and ap_common/netctl
// talk to the kernel: shelling out to `iw` for scan/association state
// (apscan.go's approach) and using rtnetlink (vishvananda/netlink, as
// netctl.go does for bridges/vlans) for link and address programming.
package wireless

import (
	"crypto/rand"
	"crypto/sha1"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"ifscand/apmodel"
)

// Sentinel errors the scheduler distinguishes on.
var (
	// ErrScanDenied is returned when the process lacks permission to
	// scan (e.g. missing CAP_NET_ADMIN).
	ErrScanDenied = errors.New("wireless: scan denied")

	// ErrLinkNotReady is returned when an association-waiter step
	// exhausts its bounded attempts.
	ErrLinkNotReady = errors.New("wireless: link not ready")
)

// DriverError wraps an OS-level failure (an ioctl/netlink errno, or an
// `iw` invocation failure) so callers can unwrap to the underlying
// error while logging a stable prefix.
type DriverError struct {
	Op  string
	Err error
}

func (e *DriverError) Error() string { return fmt.Sprintf("wireless: %s: %v", e.Op, e.Err) }
func (e *DriverError) Unwrap() error { return e.Err }

// ObservedApInfo is what Associate returns on success: the subset of
// AccessPointRecord's transient fields that the association protocol
// is able to stamp.
type ObservedApInfo struct {
	SSID    string
	BSSID   net.HardwareAddr
	RSSI    int
	MaxRSSI int
}

// Driver is every operation the Scheduler needs from the OS wireless
// control surface. A single Driver value is bound to one interface.
type Driver interface {
	// Scan commands an all-nodes scan and returns the node table
	// sorted by normalized RSSI descending.
	Scan() ([]*apmodel.ScannedNode, error)

	SetNWID(ssid string) error
	ClearNWID() error

	// ConnectOpen issues the connect for an open (AuthNone) network,
	// since no key-programming call does it for that auth mode.
	ConnectOpen() error

	SetWEPKey(key []byte) error
	ClearWEP() error

	SetWPAPSK(passphrase, ssid string) error
	SetWPAPSKRaw(hexPSK string) error
	DisableWPA() error

	SetStationMAC(mac net.HardwareAddr) error
	SetStationMACRandom() error

	BringUp() error
	BringDown() error

	CurrentBSSID() (net.HardwareAddr, error)
	CurrentNWID() (string, error)
	MediaConfigured() (bool, error)
	LinkRunning() (bool, error)
	GetRSSI(ssid string, bssid net.HardwareAddr) (int, error)
}

// randomOUIs is the fixed table of virtualization-vendor OUI prefixes
// used when a record's station-MAC policy is "random". Ported
// verbatim (by vendor, not by literal byte layout) from
// original_source/ifscand/ifcfg.c.
var randomOUIs = [][3]byte{
	{0x00, 0x05, 0x69}, // VMware
	{0x00, 0x0c, 0x29}, // VMware
	{0x00, 0x1c, 0x14}, // VMware
	{0x00, 0x50, 0x56}, // VMware
	{0x08, 0x00, 0x27}, // VirtualBox
	{0x00, 0x16, 0x3e}, // Xen
	{0x00, 0x1c, 0x42}, // Parallels
	{0x52, 0x54, 0x00}, // QEMU/KVM
}

// RandomStationMAC picks a random OUI from randomOUIs and appends 3
// random bytes, implementing the randomOUI station-MAC policy.
func RandomStationMAC() (net.HardwareAddr, error) {
	idx := make([]byte, 1)
	if _, err := rand.Read(idx); err != nil {
		return nil, fmt.Errorf("generating random mac: %w", err)
	}
	oui := randomOUIs[int(idx[0])%len(randomOUIs)]

	tail := make([]byte, 3)
	if _, err := rand.Read(tail); err != nil {
		return nil, fmt.Errorf("generating random mac: %w", err)
	}

	mac := net.HardwareAddr{oui[0], oui[1], oui[2], tail[0], tail[1], tail[2]}
	return mac, nil
}

// DeriveWPAPSK runs PBKDF2 over passphrase with ssid as salt, 4096
// iterations, producing the 256-bit raw PSK as a hex string.
func DeriveWPAPSK(passphrase, ssid string) string {
	raw := pbkdf2.Key([]byte(passphrase), []byte(ssid), 4096, 32, sha1.New)
	return fmt.Sprintf("%x", raw)
}

// waitFor polls check every interval, up to attempts times, returning
// nil as soon as check reports true. It returns ErrLinkNotReady if
// attempts are exhausted. Associate uses it for all three of its
// bounded waits: media, bssid, and up+running.
func waitFor(attempts int, interval time.Duration, check func() (bool, error)) error {
	for i := 0; i < attempts; i++ {
		ok, err := check()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(interval)
		}
	}
	return ErrLinkNotReady
}

// Associate drives the full association protocol: program MAC policy,
// NWID, and key material; bring the interface up; then poll for media,
// bssid, and up+running in that order. Any exhausted wait fails with
// ErrLinkNotReady; any other driver failure is returned wrapped as
// DriverError.
func Associate(d Driver, rec *apmodel.AccessPointRecord) (*ObservedApInfo, error) {
	if err := programMAC(d, rec); err != nil {
		return nil, err
	}

	if err := d.SetNWID(rec.SSID); err != nil {
		return nil, &DriverError{Op: "set_nwid", Err: err}
	}

	if err := programKeyMaterial(d, rec); err != nil {
		return nil, err
	}

	if rec.AuthMode == apmodel.AuthNone {
		if err := d.ConnectOpen(); err != nil {
			return nil, &DriverError{Op: "connect_open", Err: err}
		}
	}

	if err := d.BringUp(); err != nil {
		return nil, &DriverError{Op: "bring_up", Err: err}
	}

	// 1. Wait for media configuration: up to 5 attempts, 500ms apart.
	if err := waitFor(5, 500*time.Millisecond, d.MediaConfigured); err != nil {
		return nil, err
	}

	// 2. Read back the current NWID.
	nwid, err := d.CurrentNWID()
	if err != nil {
		return nil, &DriverError{Op: "current_nwid", Err: err}
	}

	// 3. Wait for a non-zero BSSID: up to 50 attempts, 150ms apart.
	var bssid net.HardwareAddr
	err = waitFor(50, 150*time.Millisecond, func() (bool, error) {
		b, err := d.CurrentBSSID()
		if err != nil {
			return false, &DriverError{Op: "current_bssid", Err: err}
		}
		if b == nil || isZeroMAC(b) {
			return false, nil
		}
		bssid = b
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	// 4. Wait for IFF_UP && IFF_RUNNING: up to 5 attempts, 100ms apart.
	err = waitFor(5, 100*time.Millisecond, d.LinkRunning)
	if err != nil {
		return nil, err
	}

	// 5. Sample RSSI once to stamp the observation.
	observedRSSI, err := d.GetRSSI(nwid, bssid)
	if err != nil {
		return nil, &DriverError{Op: "get_rssi", Err: err}
	}

	return &ObservedApInfo{
		SSID:    nwid,
		BSSID:   bssid,
		RSSI:    observedRSSI,
		MaxRSSI: rec.ObservedMaxRSSI,
	}, nil
}

func isZeroMAC(mac net.HardwareAddr) bool {
	for _, b := range mac {
		if b != 0 {
			return false
		}
	}
	return true
}

func programMAC(d Driver, rec *apmodel.AccessPointRecord) error {
	switch rec.StationMac.Kind {
	case apmodel.MacFixed:
		if err := d.SetStationMAC(rec.StationMac.MAC); err != nil {
			return &DriverError{Op: "set_station_mac", Err: err}
		}
	case apmodel.MacRandomOUI:
		if err := d.SetStationMACRandom(); err != nil {
			return &DriverError{Op: "set_station_mac(random)", Err: err}
		}
	}
	return nil
}

func programKeyMaterial(d Driver, rec *apmodel.AccessPointRecord) error {
	switch rec.AuthMode {
	case apmodel.AuthWEP:
		if err := d.SetWEPKey(rec.Key); err != nil {
			return &DriverError{Op: "set_wep_key", Err: err}
		}
	case apmodel.AuthWPA:
		key := string(rec.Key)
		var err error
		if len(key) == 64 && isHexString(key) {
			err = d.SetWPAPSKRaw(key)
		} else {
			err = d.SetWPAPSK(key, rec.SSID)
		}
		if err != nil {
			return &DriverError{Op: "set_wpa_psk", Err: err}
		}
	default:
		if err := d.ClearWEP(); err != nil {
			return &DriverError{Op: "clear_wep", Err: err}
		}
		if err := d.DisableWPA(); err != nil {
			return &DriverError{Op: "disable_wpa", Err: err}
		}
	}
	return nil
}

func isHexString(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return len(s) > 0
}

// Unconfig clears all link-layer association state: NWID, WEP, and
// WPA are all reset, not just the one the current record used.
func Unconfig(d Driver) error {
	if err := d.ClearNWID(); err != nil {
		return &DriverError{Op: "clear_nwid", Err: err}
	}
	if err := d.ClearWEP(); err != nil {
		return &DriverError{Op: "clear_wep", Err: err}
	}
	if err := d.DisableWPA(); err != nil {
		return &DriverError{Op: "disable_wpa", Err: err}
	}
	return nil
}
