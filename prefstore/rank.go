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
	"fmt"

	"ifscand/apmodel"
)

// Logger is the minimal logging surface rank.go needs; the
// *zap.SugaredLogger that aplog returns satisfies it. Kept this narrow so prefstore doesn't have to import
// zap directly.
type Logger interface {
	Warnf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// nopLogger discards everything; used when no logger is supplied.
type nopLogger struct{}

func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Debugf(string, ...interface{}) {}

// FilterAndRank matches scanned nodes against stored records by SSID,
// enforces BSSID pinning where a record specifies it,
// matched records are stamped with their observation, and the final
// order places every apOrder-listed match first (in apOrder's order),
// then every remaining match in the scan's own order (RSSI descending,
// upstream-sorted by the wireless driver adapter).
func (s *Store) FilterAndRank(scanned []*apmodel.ScannedNode, log Logger) ([]*apmodel.AccessPointRecord, error) {
	if log == nil {
		log = nopLogger{}
	}

	order, _, err := s.GetAPOrder()
	if err != nil {
		return nil, fmt.Errorf("reading ap-order preference: %w", err)
	}

	rank := make(map[string]int, len(order))
	for i, ssid := range order {
		if _, seen := rank[ssid]; !seen {
			rank[ssid] = i
		}
	}

	var ranked, unranked []*apmodel.AccessPointRecord
	seen := make(map[string]bool)

	for _, node := range scanned {
		if seen[node.SSID] {
			// A scan can surface the same SSID from multiple
			// BSSIDs (repeaters, mesh); the first (strongest,
			// since scan results arrive RSSI-sorted) observation
			// wins.
			continue
		}

		rec, ok, err := s.GetAP(node.SSID)
		if err != nil {
			return nil, fmt.Errorf("looking up ap.%s: %w", node.SSID, err)
		}
		if !ok {
			continue
		}

		if rec.PinnedBSSID != nil && !bytes.Equal(rec.PinnedBSSID, node.BSSID) {
			log.Warnf("scan: %s advertised by %s, but record pins %s; ignoring",
				node.SSID, node.BSSID, rec.PinnedBSSID)
			continue
		}

		rec.ObservedBSSID = node.BSSID
		rec.ObservedRSSI = node.RSSI
		rec.ObservedMaxRSSI = node.MaxRSSI

		seen[node.SSID] = true
		if _, inOrder := rank[node.SSID]; inOrder {
			ranked = append(ranked, rec)
		} else {
			unranked = append(unranked, rec)
		}
	}

	if len(ranked) > 1 {
		sortByRank(ranked, rank)
	}

	return append(ranked, unranked...), nil
}

func sortByRank(recs []*apmodel.AccessPointRecord, rank map[string]int) {
	// Simple insertion sort: the candidate lists are tiny (bounded by
	// apOrder's length, itself a small human-maintained list), so this
	// trades asymptotic elegance for an obviously-correct stable sort.
	for i := 1; i < len(recs); i++ {
		for j := i; j > 0 && rank[recs[j].SSID] < rank[recs[j-1].SSID]; j-- {
			recs[j], recs[j-1] = recs[j-1], recs[j]
		}
	}
}
