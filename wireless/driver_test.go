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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ifscand/apmodel"
)

func TestDeriveWPAPSKIsStableAndHex(t *testing.T) {
	got := DeriveWPAPSK("password", "IEEE")
	assert.Len(t, got, 64)
	assert.True(t, isHexString(got))
	// Same inputs must derive the same PSK every time.
	assert.Equal(t, got, DeriveWPAPSK("password", "IEEE"))
	// A different SSID (used as PBKDF2 salt) must derive a different PSK.
	assert.NotEqual(t, got, DeriveWPAPSK("password", "otherssid"))
}

func TestRandomStationMACUsesKnownOUI(t *testing.T) {
	mac, err := RandomStationMAC()
	require.NoError(t, err)
	require.Len(t, mac, 6)

	found := false
	for _, oui := range randomOUIs {
		if mac[0] == oui[0] && mac[1] == oui[1] && mac[2] == oui[2] {
			found = true
		}
	}
	assert.True(t, found)
}

func bssid() net.HardwareAddr {
	m, _ := net.ParseMAC("98:1e:19:20:79:df")
	return m
}

func TestAssociateSuccess(t *testing.T) {
	fd := &FakeDriver{
		BSSID:   bssid(),
		Running: true,
		RSSI:    -55,
	}
	rec := &apmodel.AccessPointRecord{
		SSID:     "home",
		AuthMode: apmodel.AuthWPA,
		Key:      []byte("correcthorsebatterystaple"),
	}

	info, err := Associate(fd, rec)
	require.NoError(t, err)
	assert.Equal(t, "home", info.SSID)
	assert.Equal(t, bssid().String(), info.BSSID.String())
	assert.Equal(t, -55, info.RSSI)
	assert.True(t, fd.WPAEnabled)
	assert.True(t, fd.Up)
}

func TestAssociateWEP(t *testing.T) {
	fd := &FakeDriver{BSSID: bssid(), Running: true}
	rec := &apmodel.AccessPointRecord{
		SSID:     "legacy",
		AuthMode: apmodel.AuthWEP,
		Key:      []byte("abcde"),
	}
	_, err := Associate(fd, rec)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcde"), fd.WEPKey)
}

func TestAssociateOpenClearsKeyMaterial(t *testing.T) {
	fd := &FakeDriver{BSSID: bssid(), Running: true}
	fd.WPAEnabled = true
	rec := &apmodel.AccessPointRecord{SSID: "open-net"}
	_, err := Associate(fd, rec)
	require.NoError(t, err)
	assert.False(t, fd.WPAEnabled)
	assert.Nil(t, fd.WEPKey)
}

func TestAssociateFixedStationMAC(t *testing.T) {
	fd := &FakeDriver{BSSID: bssid(), Running: true}
	fixed, _ := net.ParseMAC("02:00:00:00:00:01")
	rec := &apmodel.AccessPointRecord{
		SSID:       "home",
		StationMac: apmodel.StationMacPolicy{Kind: apmodel.MacFixed, MAC: fixed},
	}
	_, err := Associate(fd, rec)
	require.NoError(t, err)
	assert.Equal(t, fixed, fd.StationMAC)
}

func TestAssociateBSSIDTimeout(t *testing.T) {
	fd := &FakeDriver{Running: true} // BSSID never becomes non-zero
	rec := &apmodel.AccessPointRecord{SSID: "ghost"}
	_, err := Associate(fd, rec)
	assert.ErrorIs(t, err, ErrLinkNotReady)
}

func TestAssociatePropagatesDriverFailure(t *testing.T) {
	fd := &FakeDriver{BSSID: bssid(), Running: true, FailOp: "bring_up"}
	rec := &apmodel.AccessPointRecord{SSID: "home"}
	_, err := Associate(fd, rec)
	require.Error(t, err)
	var derr *DriverError
	assert.ErrorAs(t, err, &derr)
	assert.Equal(t, "bring_up", derr.Op)
}

func TestUnconfigClearsEverything(t *testing.T) {
	fd := &FakeDriver{NWID: "home", WEPKey: []byte("abcde"), WPAEnabled: true}
	err := Unconfig(fd)
	require.NoError(t, err)
	assert.Equal(t, "", fd.NWID)
	assert.Nil(t, fd.WEPKey)
	assert.False(t, fd.WPAEnabled)
}

const sampleIwScan = `BSS 98:1e:19:20:79:df(on wlan0)
	last seen: 120 ms ago
	TSF: 123456 usec
	freq: 5180
	capability: ESS Privacy (0x0011)
	signal: -55.00 dBm
	SSID: HomeNet
	* primary channel: 36
	RSN:	 * Version: 1
BSS aa:bb:cc:dd:ee:ff(on wlan0)
	last seen: 300 ms ago
	capability: ESS (0x0001)
	signal: -78.00 dBm
	SSID: OpenNet
	* primary channel: 6
`

func TestParseIwScan(t *testing.T) {
	nodes := parseIwScan(sampleIwScan)
	require.Len(t, nodes, 2)
	assert.Equal(t, "HomeNet", nodes[0].SSID)
	assert.Equal(t, "98:1e:19:20:79:df", nodes[0].BSSID.String())
	assert.Equal(t, -55, nodes[0].RSSI)
	assert.Equal(t, "WPA2", nodes[0].Cipher)
	assert.True(t, nodes[0].ESS)
	assert.Equal(t, "OpenNet", nodes[1].SSID)
	assert.Equal(t, "", nodes[1].Cipher)
}

const sampleIwScanDupeBSSID = `BSS 98:1e:19:20:79:df(on wlan0)
	last seen: 900 ms ago
	capability: ESS Privacy (0x0011)
	signal: -82.00 dBm
	SSID: HomeNet
	* primary channel: 36
	RSN:	 * Version: 1
BSS 98:1e:19:20:79:df(on wlan0)
	last seen: 100 ms ago
	capability: ESS Privacy (0x0011)
	signal: -50.00 dBm
	SSID: HomeNet
	* primary channel: 36
	RSN:	 * Version: 1
`

func TestParseIwScanCollapsesRepeatedBSSID(t *testing.T) {
	nodes := parseIwScan(sampleIwScanDupeBSSID)
	require.Len(t, nodes, 1)
	assert.Equal(t, -50, nodes[0].RSSI)
}

func TestParseIwLinkNotConnected(t *testing.T) {
	ssid, bssid := parseIwLink("Not connected.\n")
	assert.Equal(t, "", ssid)
	assert.Nil(t, bssid)
}

func TestParseIwLinkConnected(t *testing.T) {
	data := "Connected to 98:1e:19:20:79:df (on wlan0)\n\tSSID: HomeNet\n\tfreq: 5180\n"
	ssid, bssid := parseIwLink(data)
	assert.Equal(t, "HomeNet", ssid)
	assert.Equal(t, "98:1e:19:20:79:df", bssid.String())
}
