/*
 * COPYRIGHT 2020 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

// Package apmodel holds the data types shared by the preference store,
// the wireless driver adapter, the scheduler, and the control protocol:
// AccessPointRecord, GlobalPreferences, ScannedNode, and the small set
// of enums and byte-string helpers all of those depend on.
package apmodel

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"time"
)

// MaxSSIDLen is the largest SSID the driver and the store will accept.
const MaxSSIDLen = 32

// AuthMode is the authentication scheme an AccessPointRecord expects.
type AuthMode byte

// Supported authentication modes. WEP and WPA-PSK only; no 802.1X/EAP.
const (
	AuthNone AuthMode = iota
	AuthWEP
	AuthWPA
)

func (m AuthMode) String() string {
	switch m {
	case AuthWEP:
		return "wep"
	case AuthWPA:
		return "wpa"
	default:
		return "none"
	}
}

// ParseAuthMode maps a textual auth mode back to its enum value.
func ParseAuthMode(s string) (AuthMode, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return AuthNone, nil
	case "wep":
		return AuthWEP, nil
	case "wpa":
		return AuthWPA, nil
	default:
		return AuthNone, fmt.Errorf("unknown auth mode %q", s)
	}
}

// StationMacKind selects how this station's MAC address is chosen when
// joining a particular AP.
type StationMacKind byte

// Station MAC policy kinds.
const (
	MacDefault StationMacKind = iota
	MacFixed
	MacRandomOUI
)

// StationMacPolicy is the per-AP station MAC address policy.
type StationMacPolicy struct {
	Kind StationMacKind
	MAC  net.HardwareAddr // only meaningful when Kind == MacFixed
}

// IPv4Kind selects the addressing mode applied once associated.
type IPv4Kind byte

// IPv4 addressing policy kinds.
const (
	IPv4None IPv4Kind = iota
	IPv4DHCP
	IPv4Static
)

// IPv4Policy is the per-AP IPv4 addressing policy.
type IPv4Policy struct {
	Kind    IPv4Kind
	Addr    net.IP
	Mask    net.IPMask
	Gateway net.IP // nil if unset
}

// IPv6Kind selects the IPv6 addressing mode applied once associated.
type IPv6Kind byte

// IPv6 addressing policy kinds. There is no DHCPv6 client in scope.
const (
	IPv6None IPv6Kind = iota
	IPv6Static
)

// IPv6Policy is the per-AP IPv6 addressing policy.
type IPv6Policy struct {
	Kind    IPv6Kind
	Addr    net.IP
	Mask    net.IPMask
	Gateway net.IP
}

// AccessPointRecord is the persistent, user-configured description of
// one AP the daemon is willing to join, plus the transient fields a
// scan match stamps in.
type AccessPointRecord struct {
	SSID        string
	AuthMode    AuthMode
	Key         []byte // interpretation depends on AuthMode
	PinnedBSSID net.HardwareAddr // nil if unpinned

	StationMac StationMacPolicy
	IPv4       IPv4Policy
	IPv6       IPv6Policy

	// Transient: populated by a scan match, never persisted.
	ObservedBSSID   net.HardwareAddr
	ObservedRSSI    int
	ObservedMaxRSSI int
	LastSeen        time.Time
}

// Validate enforces the invariants from the data-model section: a
// non-empty SSID, gateway-implies-address-and-mask, and key length
// rules per auth mode.
func (a *AccessPointRecord) Validate() error {
	if a.SSID == "" {
		return fmt.Errorf("ssid must not be empty")
	}
	if len(a.SSID) > MaxSSIDLen {
		return fmt.Errorf("ssid %q exceeds %d bytes", a.SSID, MaxSSIDLen)
	}
	if a.IPv4.Kind == IPv4Static {
		if a.IPv4.Gateway != nil && (a.IPv4.Addr == nil || a.IPv4.Mask == nil) {
			return fmt.Errorf("inet gateway requires an address and mask")
		}
	}
	if a.IPv6.Kind == IPv6Static {
		if a.IPv6.Gateway != nil && (a.IPv6.Addr == nil || a.IPv6.Mask == nil) {
			return fmt.Errorf("inet6 gateway requires an address and mask")
		}
	}
	switch a.AuthMode {
	case AuthWEP:
		if err := ValidateWEPKey(a.Key); err != nil {
			return err
		}
	case AuthWPA:
		if err := ValidateWPAKey(a.Key); err != nil {
			return err
		}
	}
	return nil
}

// ValidateWEPKey checks the key against the forms the original
// ifscand accepts: 5 or 13 ASCII bytes, 10 or 26 hex digits (optionally
// "0x"-prefixed), or a comma-separated four-key form where each key is
// independently one of the preceding forms.
func ValidateWEPKey(key []byte) error {
	s := string(key)
	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		if len(parts) != 4 {
			return fmt.Errorf("wep multi-key form requires exactly 4 keys, got %d", len(parts))
		}
		for _, p := range parts {
			if err := validateOneWEPKey(p); err != nil {
				return fmt.Errorf("wep key %q: %w", p, err)
			}
		}
		return nil
	}
	return validateOneWEPKey(s)
}

func validateOneWEPKey(s string) error {
	hexStr := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if isHex(hexStr) {
		switch len(hexStr) {
		case 10, 26:
			return nil
		}
	}
	switch len(s) {
	case 5, 13:
		return nil
	}
	return fmt.Errorf("wep key length %d is not one of 5,13 (ascii) or 10,26 (hex)", len(s))
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}

// ValidateWPAKey checks the key against the two forms WPA-PSK allows:
// an 8-63 byte passphrase, or exactly 64 hex characters (a raw PSK).
func ValidateWPAKey(key []byte) error {
	s := string(key)
	if len(s) == 64 && isHex(s) {
		return nil
	}
	if len(s) >= 8 && len(s) <= 63 {
		return nil
	}
	return fmt.Errorf("wpa key length %d is not 8-63 (passphrase) or 64 hex chars (raw psk)", len(s))
}

// Str2Hex decodes a hex string, tolerating an optional "0x"/"0X" prefix.
// It is the Go analog of lib/str2hex.c from the original sources.
func Str2Hex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}

// Hex2Str encodes a byte slice as a "0x"-prefixed lowercase hex string,
// the inverse of Str2Hex.
func Hex2Str(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// GlobalPreferences holds the per-interface options that are not tied
// to any single AP record.
type GlobalPreferences struct {
	RandomizeMac        bool
	APOrder             []string
	ScanIntervalSec      uint
	RSSIScanIntervalSec  uint
}

// Defaults for GlobalPreferences fields, applied when a preference is
// absent from the store (not merely zero -- see prefstore.GetPref).
const (
	DefaultScanIntervalSec     uint = 60
	DefaultRSSIScanIntervalSec uint = 10
)

// ScannedNode is one AP observation from a single scan pass. It is
// produced fresh by every scan and never persisted.
type ScannedNode struct {
	SSID     string
	BSSID    net.HardwareAddr
	Channel  int
	RSSI     int
	MaxRSSI  int
	ESS      bool
	IBSS     bool
	Privacy  bool
	Cipher   string // e.g. "WEP", "WPA", "WPA2", "" for open
	LastSeen time.Duration
}

// NormalizedRSSI returns rssi*100/max_rssi when max_rssi > 0. Drivers
// that report raw, non-negative signal units (as the original
// ieee80211 ioctl did) populate MaxRSSI and get that ratio. Drivers
// that only have a dBm reading (no driver-reported ceiling to ratio
// against) leave MaxRSSI unset; for those, RSSIQuality(RSSI) is used
// instead of returning the dBm value unchanged, since a raw negative
// dBm number is not on the 0-100 scale LowThreshold assumes.
func (s *ScannedNode) NormalizedRSSI() int {
	if s.MaxRSSI > 0 {
		return s.RSSI * 100 / s.MaxRSSI
	}
	return RSSIQuality(s.RSSI)
}

// RSSIQuality maps a dBm signal reading onto a 0-100 quality score,
// linearly between -100 dBm (0, no usable signal) and -50 dBm (100,
// best practical signal), clamped at both ends. This is the
// conventional NetworkManager-style dBm-to-percentage mapping, used
// wherever a driver's only signal reading is in dBm rather than raw
// driver units with a reported maximum.
func RSSIQuality(dbm int) int {
	switch {
	case dbm <= -100:
		return 0
	case dbm >= -50:
		return 100
	default:
		return 2 * (dbm + 100)
	}
}
