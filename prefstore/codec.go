/*
 * COPYRIGHT 2020 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

package prefstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"

	"ifscand/apmodel"
)

// On-disk record layout. Fixed-size: a flags bitfield, fixed-length
// name/key arrays, 6-byte MAC fields, and the v4/v6
// address/mask/gateway fields. Native endianness would be acceptable
// since the store is never shared across architectures, but we fix
// little-endian explicitly so serialize/deserialize round-trips
// byte-for-byte regardless of host.

const (
	nameLen = 33 // apmodel.MaxSSIDLen + NUL
	keyLen  = 130

	flagMAC     uint32 = 1 << 0
	flagPinned  uint32 = 1 << 1
	flagRandMAC uint32 = 1 << 2
	flagIn4     uint32 = 1 << 3
	flagGw4     uint32 = 1 << 4
	flagIn6     uint32 = 1 << 5
	flagGw6     uint32 = 1 << 6
	flagDHCP4   uint32 = 1 << 7
)

type onDiskRecord struct {
	Flags    uint32
	AuthMode uint8
	_        [3]byte // padding, keeps the struct's wire size stable

	Name [nameLen]byte
	Key  [keyLen]byte

	PinnedMAC [6]byte
	StationMAC [6]byte

	In4   [4]byte
	Mask4 [4]byte
	Gw4   [4]byte

	In6   [16]byte
	Mask6 [16]byte
	Gw6   [16]byte
}

func putString(dst []byte, s string) error {
	if len(s)+1 > len(dst) {
		return fmt.Errorf("value %q too long for %d-byte field", s, len(dst))
	}
	copy(dst, s)
	dst[len(s)] = 0
	return nil
}

func getString(src []byte) string {
	n := bytes.IndexByte(src, 0)
	if n < 0 {
		n = len(src)
	}
	return string(src[:n])
}

// encodeRecord serializes an AccessPointRecord into its fixed on-disk
// form. Only persistent fields are encoded; the transient
// scan-observation fields are never written.
func encodeRecord(a *apmodel.AccessPointRecord) ([]byte, error) {
	var d onDiskRecord

	if err := putString(d.Name[:], a.SSID); err != nil {
		return nil, err
	}
	if err := putString(d.Key[:], string(a.Key)); err != nil {
		return nil, err
	}
	d.AuthMode = uint8(a.AuthMode)

	if a.PinnedBSSID != nil {
		d.Flags |= flagPinned
		copy(d.PinnedMAC[:], a.PinnedBSSID)
	}

	switch a.StationMac.Kind {
	case apmodel.MacFixed:
		d.Flags |= flagMAC
		copy(d.StationMAC[:], a.StationMac.MAC)
	case apmodel.MacRandomOUI:
		d.Flags |= flagRandMAC
	}

	if a.IPv4.Kind == apmodel.IPv4Static {
		d.Flags |= flagIn4
		copy(d.In4[:], a.IPv4.Addr.To4())
		copy(d.Mask4[:], net.IP(a.IPv4.Mask).To4())
		if a.IPv4.Gateway != nil {
			d.Flags |= flagGw4
			copy(d.Gw4[:], a.IPv4.Gateway.To4())
		}
	} else if a.IPv4.Kind == apmodel.IPv4DHCP {
		d.Flags |= flagDHCP4
	}

	if a.IPv6.Kind == apmodel.IPv6Static {
		d.Flags |= flagIn6
		copy(d.In6[:], a.IPv6.Addr.To16())
		copy(d.Mask6[:], net.IP(a.IPv6.Mask).To16())
		if a.IPv6.Gateway != nil {
			d.Flags |= flagGw6
			copy(d.Gw6[:], a.IPv6.Gateway.To16())
		}
	}

	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, &d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeRecord is the inverse of encodeRecord.
func decodeRecord(raw []byte) (*apmodel.AccessPointRecord, error) {
	var d onDiskRecord
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &d); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}

	a := &apmodel.AccessPointRecord{
		SSID:     getString(d.Name[:]),
		AuthMode: apmodel.AuthMode(d.AuthMode),
		Key:      []byte(getString(d.Key[:])),
	}

	if d.Flags&flagPinned != 0 {
		a.PinnedBSSID = append(net.HardwareAddr{}, d.PinnedMAC[:]...)
	}

	switch {
	case d.Flags&flagMAC != 0:
		a.StationMac = apmodel.StationMacPolicy{
			Kind: apmodel.MacFixed,
			MAC:  append(net.HardwareAddr{}, d.StationMAC[:]...),
		}
	case d.Flags&flagRandMAC != 0:
		a.StationMac = apmodel.StationMacPolicy{Kind: apmodel.MacRandomOUI}
	}

	if d.Flags&flagDHCP4 != 0 {
		a.IPv4.Kind = apmodel.IPv4DHCP
	} else if d.Flags&flagIn4 != 0 {
		a.IPv4.Kind = apmodel.IPv4Static
		a.IPv4.Addr = append(net.IP{}, d.In4[:]...)
		a.IPv4.Mask = append(net.IPMask{}, d.Mask4[:]...)
		if d.Flags&flagGw4 != 0 {
			a.IPv4.Gateway = append(net.IP{}, d.Gw4[:]...)
		}
	}

	if d.Flags&flagIn6 != 0 {
		a.IPv6.Kind = apmodel.IPv6Static
		a.IPv6.Addr = append(net.IP{}, d.In6[:]...)
		a.IPv6.Mask = append(net.IPMask{}, d.Mask6[:]...)
		if d.Flags&flagGw6 != 0 {
			a.IPv6.Gateway = append(net.IP{}, d.Gw6[:]...)
		}
	}

	return a, nil
}
