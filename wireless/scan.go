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
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"ifscand/apmodel"
)

// The stanza-splitting and field regexes below are adapted from
// ap_common/apscan/apscan.go's parsing of `iw dev <iface> scan` output,
// extended to pick out privacy/cipher for the node table. Neither the
// scheduler nor FilterAndRank compares it against a record's AuthMode.
var (
	octet   = `[[:xdigit:]][[:xdigit:]]`
	macAddr = octet + `:` + octet + `:` + octet + `:` + octet + `:` + octet + `:` + octet

	scanSplitRE = regexp.MustCompile(`(?m)^BSS`)
	bssMacRE    = regexp.MustCompile(`^BSS (` + macAddr + `)`)
	bssSignalRE = regexp.MustCompile(`\ssignal: ([-.\d]+)\sdBm`)
	bssSeenRE   = regexp.MustCompile(`\slast seen: (\d+) ms ago`)
	bssSSIDRE   = regexp.MustCompile(`\sSSID: (.*)`)
	bssChanRE   = regexp.MustCompile(`\s\* primary channel: (\d+)`)
	bssCapRE    = regexp.MustCompile(`capability:.*\b(ESS|IBSS)\b`)
	bssPrivRE   = regexp.MustCompile(`capability:.*\bPrivacy\b`)
	bssRSNRE    = regexp.MustCompile(`\sRSN:`)
	bssWPARE    = regexp.MustCompile(`\sWPA:`)
)

func getStringRE(data string, re *regexp.Regexp) string {
	if m := re.FindStringSubmatch(data); len(m) > 1 {
		return m[1]
	}
	return ""
}

func parseOneStanza(data string) *apmodel.ScannedNode {
	macStr := getStringRE(data, bssMacRE)
	bssid, _ := net.ParseMAC(macStr)

	rssi := 0
	if s := getStringRE(data, bssSignalRE); s != "" {
		f, _ := strconv.ParseFloat(s, 64)
		rssi = int(f)
	}

	lastSeen := time.Duration(0)
	if s := getStringRE(data, bssSeenRE); s != "" {
		ms, _ := strconv.Atoi(s)
		lastSeen = time.Duration(ms) * time.Millisecond
	}

	channel := 0
	if s := getStringRE(data, bssChanRE); s != "" {
		channel, _ = strconv.Atoi(s)
	}

	cipher := ""
	if bssRSNRE.MatchString(data) {
		cipher = "WPA2"
	} else if bssWPARE.MatchString(data) {
		cipher = "WPA"
	} else if bssPrivRE.MatchString(data) {
		cipher = "WEP"
	}

	cap := getStringRE(data, bssCapRE)

	return &apmodel.ScannedNode{
		SSID:     getStringRE(data, bssSSIDRE),
		BSSID:    bssid,
		Channel:  channel,
		RSSI:     rssi,
		MaxRSSI:  0,
		ESS:      cap == "ESS",
		IBSS:     cap == "IBSS",
		Privacy:  bssPrivRE.MatchString(data),
		Cipher:   cipher,
		LastSeen: lastSeen,
	}
}

// parseIwScan splits `iw dev <iface> scan` output into per-BSS stanzas,
// parses each one, and collapses repeated beacons from the same BSSID
// down to their strongest-RSSI observation (a single scan pass can see
// more than one beacon per AP), returning the table sorted by
// normalized RSSI descending, the order prefstore.FilterAndRank
// expects.
func parseIwScan(data string) []*apmodel.ScannedNode {
	idx := scanSplitRE.FindAllStringIndex(data, -1)

	byBSSID := make(map[string]*apmodel.ScannedNode, len(idx))
	order := make([]string, 0, len(idx))
	for i, s := range idx {
		end := len(data)
		if i < len(idx)-1 {
			end = idx[i+1][0]
		}
		node := parseOneStanza(data[s[0]:end])
		key := node.BSSID.String()
		if existing, ok := byBSSID[key]; !ok {
			byBSSID[key] = node
			order = append(order, key)
		} else if node.NormalizedRSSI() > existing.NormalizedRSSI() {
			byBSSID[key] = node
		}
	}

	nodes := make([]*apmodel.ScannedNode, 0, len(order))
	for _, key := range order {
		nodes = append(nodes, byBSSID[key])
	}

	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].NormalizedRSSI() > nodes[j].NormalizedRSSI()
	})
	return nodes
}

// parseIwLink parses `iw dev <iface> link` output for the current BSSID
// and SSID. It returns ("", nil) when not connected ("Not connected.").
func parseIwLink(data string) (ssid string, bssid net.HardwareAddr) {
	if strings.Contains(data, "Not connected") {
		return "", nil
	}
	lines := strings.Split(data, "\n")
	if len(lines) == 0 {
		return "", nil
	}
	m := regexp.MustCompile(`Connected to (` + macAddr + `)`).FindStringSubmatch(lines[0])
	if len(m) > 1 {
		bssid, _ = net.ParseMAC(m[1])
	}
	ssid = getStringRE(data, bssSSIDRE)
	return ssid, bssid
}
