/*
 * COPYRIGHT 2020 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

// Package scheduler is the central state machine: the single timer-
// driven loop that samples RSSI, scans, ranks candidates, and drives
// association/disassociation through the Wireless Driver Adapter and
// IP Configurator. Scheduler depends only on the narrow
// PrefStore/Driver/IPApplier interfaces below, never on
// prefstore.Store or wireless.LinuxDriver directly, so it can be
// driven by deterministic test doubles instead of hardware.
package scheduler

import (
	"fmt"
	"time"

	"ifscand/apmodel"
	"ifscand/prefstore"
	"ifscand/rssi"
	"ifscand/wireless"
)

// maxConsecutiveScanFailures bounds the scan-retry loop: after this
// many consecutive scan failures the daemon aborts.
const maxConsecutiveScanFailures = 5

// State is one of the Scheduler's two states.
type State int

// Scheduler states.
const (
	Disassociated State = iota
	Associated
)

func (s State) String() string {
	if s == Associated {
		return "associated"
	}
	return "disassociated"
}

// Logger is the narrow logging surface the scheduler needs.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// PrefStore is everything the scheduler reads from the preference
// store on a tick. prefstore.Store satisfies it.
type PrefStore interface {
	FilterAndRank(scanned []*apmodel.ScannedNode, log prefstore.Logger) ([]*apmodel.AccessPointRecord, error)
	GetScanInterval() (uint, error)
	GetRSSIScanInterval() (uint, error)
}

// IPApplier is everything the scheduler asks of the IP Configurator.
// ipconfig.Configurator satisfies it.
type IPApplier interface {
	Apply(rec *apmodel.AccessPointRecord) error
	Teardown()
	PollDHCP() bool
}

// Scheduler is the Scan/Associate state machine for one interface.
type Scheduler struct {
	driver wireless.Driver
	store  PrefStore
	ip     IPApplier
	log    Logger

	state    State
	currentAp       *apmodel.AccessPointRecord
	currentObserved *wireless.ObservedApInfo

	window *rssi.Window

	cadence time.Duration

	consecutiveScanFailures int
}

// New returns a Scheduler bound to driver/store/ip, starting
// Disassociated.
func New(driver wireless.Driver, store PrefStore, ip IPApplier, log Logger) *Scheduler {
	return &Scheduler{
		driver: driver,
		store:  store,
		ip:     ip,
		log:    log,
		state:  Disassociated,
		window: rssi.NewWindow(),
	}
}

// State reports the current scheduler state.
func (s *Scheduler) State() State { return s.state }

// CurrentAp reports the currently-associated record, or nil if
// Disassociated.
func (s *Scheduler) CurrentAp() *apmodel.AccessPointRecord { return s.currentAp }

// Cadence reports how long the main loop should wait before the next
// tick.
func (s *Scheduler) Cadence() time.Duration {
	if s.cadence > 0 {
		return s.cadence
	}
	return 60 * time.Second
}

func (s *Scheduler) setCadenceFromStore(assoc bool) {
	if assoc {
		sec, err := s.store.GetRSSIScanInterval()
		if err != nil {
			s.log.Warnf("reading rssi-scan-interval: %v", err)
			sec = apmodel.DefaultRSSIScanIntervalSec
		}
		s.cadence = time.Duration(sec) * time.Second
		return
	}
	sec, err := s.store.GetScanInterval()
	if err != nil {
		s.log.Warnf("reading scan-interval: %v", err)
		sec = apmodel.DefaultScanIntervalSec
	}
	s.cadence = time.Duration(sec) * time.Second
}

// Tick runs exactly one iteration of the scan/associate algorithm. A
// non-nil error means the daemon should abort (the consecutive-scan-
// failure budget was exhausted); every other failure is absorbed,
// logged, and leaves the Scheduler in a well-defined state for the
// next tick.
func (s *Scheduler) Tick() error {
	if s.state == Associated && s.currentAp.IPv4.Kind == apmodel.IPv4DHCP {
		s.ip.PollDHCP()
	}

	lowRSSI := false
	if s.state == Associated {
		sample, err := s.driver.GetRSSI(s.currentAp.SSID, s.currentObserved.BSSID)
		if err != nil {
			s.log.Warnf("get_rssi(%s): %v", s.currentAp.SSID, err)
		} else {
			s.window.Add(sample)
		}

		mean, full := s.window.Mean()
		if !full || mean >= rssi.LowThreshold {
			s.setCadenceFromStore(true)
			return nil
		}
		lowRSSI = true
	}

	nodes, err := s.driver.Scan()
	if err != nil {
		s.consecutiveScanFailures++
		s.log.Warnf("scan failed (%d/%d consecutive): %v", s.consecutiveScanFailures, maxConsecutiveScanFailures, err)
		if s.consecutiveScanFailures >= maxConsecutiveScanFailures {
			return fmt.Errorf("scheduler: %d consecutive scan failures: %w", s.consecutiveScanFailures, err)
		}
		return nil
	}
	s.consecutiveScanFailures = 0

	ranked, err := s.store.FilterAndRank(nodes, s.log)
	if err != nil {
		s.log.Warnf("filter_and_rank: %v", err)
		return nil
	}

	if len(ranked) == 0 {
		if s.state == Associated {
			s.disassociate()
		}
		s.state = Disassociated
		s.setCadenceFromStore(false)
		return nil
	}

	top := ranked[0]
	if s.state == Associated {
		if top.SSID == s.currentAp.SSID {
			if !lowRSSI || len(ranked) == 1 {
				// Stickiness rule: the candidate list hasn't changed
				// enough to warrant churn.
				s.setCadenceFromStore(true)
				return nil
			}
			top = ranked[1]
		}
		// Either the top candidate changed outright, or we fell back
		// to the second-ranked one above: either way we're leaving
		// the current AP, so tear it down before associating anew.
		s.disassociate()
	}

	if err := s.associate(top); err != nil {
		s.log.Warnf("associate %s: %v", top.SSID, err)
		s.state = Disassociated
		s.setCadenceFromStore(false)
		return nil
	}
	return nil
}

func (s *Scheduler) associate(rec *apmodel.AccessPointRecord) error {
	info, err := wireless.Associate(s.driver, rec)
	if err != nil {
		return err
	}

	if err := s.ip.Apply(rec); err != nil {
		s.log.Warnf("ip configurator: %v", err)
	}

	s.currentAp = rec
	s.currentObserved = info
	s.state = Associated
	s.window.Reset()
	s.window.Add(info.RSSI)
	s.setCadenceFromStore(true)

	s.log.Infof("associated with %s (bssid %s, rssi %d)", rec.SSID, info.BSSID, info.RSSI)
	return nil
}

// disassociate clears link-layer association state, tears down
// whatever address policy was applied, and zeroes the currentAp slot.
func (s *Scheduler) disassociate() {
	if err := wireless.Unconfig(s.driver); err != nil {
		s.log.Warnf("unconfig: %v", err)
	}

	if s.currentAp != nil {
		switch s.currentAp.IPv4.Kind {
		case apmodel.IPv4Static:
			if err := s.driver.BringDown(); err != nil {
				s.log.Warnf("bring_down: %v", err)
			}
			s.ip.Teardown()
		case apmodel.IPv4DHCP:
			s.ip.Teardown()
		}
	}

	s.log.Infof("disassociated from %s", s.currentApSSID())
	s.currentAp = nil
	s.currentObserved = nil
	s.window.Reset()
}

func (s *Scheduler) currentApSSID() string {
	if s.currentAp == nil {
		return ""
	}
	return s.currentAp.SSID
}

// Shutdown performs the orderly-termination sequence: if Associated,
// disassociate (which stops any DHCP child and tears down
// addressing); otherwise a no-op.
func (s *Scheduler) Shutdown() {
	if s.state == Associated {
		s.disassociate()
	}
	s.state = Disassociated
}
