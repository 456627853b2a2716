/*
 * COPYRIGHT 2020 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

// Package prefstore implements the durable key/value catalog of AP
// records and global preferences. It is backed by a single bbolt
// (etcd's maintained fork of Bolt) database file; bbolt's synchronous
// writes give every write a flush-before-return guarantee. bbolt locks
// the file exclusively while it is open, so two daemon instances cannot
// have the same file open at the same time.
package prefstore

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"ifscand/apmodel"
)

const (
	apBucket    = "ap"
	prefsBucket = "prefs"

	prefRandMac     = "randmac"
	prefScanInt     = "scan-int"
	prefRSSIScanInt = "rssi-scan-int"
	prefAPOrder     = "aporder"
)

// Store is a handle onto the on-disk preference database for one
// interface. bbolt holds an exclusive flock on the file for as long as
// it is open, so only one Store (in this process or another) can have
// the file open at a time; a second Open waits up to 5 seconds for the
// lock and then fails.
type Store struct {
	db     *bbolt.DB
	ifname string
}

// Open creates the parent directory (if needed) and opens (creating if
// absent) the preference database at path, mode 0600. A failed open is
// always an error the caller should treat as fatal to startup.
func Open(path, ifname string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating preference store directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening preference store %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(apBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(prefsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing preference store buckets: %w", err)
	}

	return &Store{db: db, ifname: ifname}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutAP inserts or overwrites the record keyed by its SSID. bbolt's
// Update runs in a single flushed transaction, giving us put_ap's
// flush-before-return requirement for free.
func (s *Store) PutAP(a *apmodel.AccessPointRecord) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid access point record: %w", err)
	}

	enc, err := encodeRecord(a)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(apBucket))
		return b.Put([]byte(a.SSID), enc)
	})
}

// DeleteAP removes the record for ssid, idempotently, and prunes ssid
// from the stored ap-order list if present (see SPEC_FULL.md's
// supplemented-features list, item 4).
func (s *Store) DeleteAP(ssid string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(apBucket))
		if err := b.Delete([]byte(ssid)); err != nil {
			return err
		}
		return pruneAPOrder(tx, s.ifname, ssid)
	})
}

func pruneAPOrder(tx *bbolt.Tx, ifname, ssid string) error {
	order, ok, err := getAPOrderTx(tx, ifname)
	if err != nil || !ok {
		return err
	}
	pruned := order[:0]
	changed := false
	for _, s := range order {
		if s == ssid {
			changed = true
			continue
		}
		pruned = append(pruned, s)
	}
	if !changed {
		return nil
	}
	return setAPOrderTx(tx, ifname, pruned)
}

// ListAPs returns every stored AccessPointRecord, in SSID order (bbolt
// iterates bucket keys in sorted byte order already, but we sort
// explicitly so this holds regardless of the underlying engine).
func (s *Store) ListAPs() ([]*apmodel.AccessPointRecord, error) {
	var out []*apmodel.AccessPointRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(apBucket))
		return b.ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				return fmt.Errorf("decoding ap.%s: %w", k, err)
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SSID < out[j].SSID })
	return out, nil
}

// GetAP looks up a single record by SSID. A missing record is not an
// error; ok is false and rec is nil.
func (s *Store) GetAP(ssid string) (rec *apmodel.AccessPointRecord, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(apBucket))
		v := b.Get([]byte(ssid))
		if v == nil {
			return nil
		}
		rec, err = decodeRecord(v)
		ok = err == nil
		return err
	})
	return rec, ok, err
}

func prefKey(ifname, name string) []byte {
	return []byte(fmt.Sprintf("prefs.%s.%s", name, ifname))
}

// GetPref reads a typed integer preference scoped to this store's
// interface. The bool result distinguishes "present with value 0" from
// "absent", resolving the Open Question the original `db_get_int`
// conflated (see SPEC_FULL.md).
func (s *Store) GetPref(name string) (value int64, present bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(prefsBucket))
		v := b.Get(prefKey(s.ifname, name))
		if v == nil {
			return nil
		}
		if len(v) != 8 {
			return fmt.Errorf("corrupt preference %s: wanted 8 bytes, got %d", name, len(v))
		}
		value = int64(binary.LittleEndian.Uint64(v))
		present = true
		return nil
	})
	return value, present, err
}

// SetPref writes a typed integer preference scoped to this store's
// interface, flushed synchronously.
func (s *Store) SetPref(name string, value int64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(value))
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(prefsBucket))
		return b.Put(prefKey(s.ifname, name), buf)
	})
}

// GetRandomizeMac returns the randomize-mac preference, defaulting to
// false when absent.
func (s *Store) GetRandomizeMac() (bool, error) {
	v, present, err := s.GetPref(prefRandMac)
	if err != nil {
		return false, err
	}
	return present && v != 0, nil
}

// SetRandomizeMac persists the randomize-mac preference.
func (s *Store) SetRandomizeMac(v bool) error {
	var i int64
	if v {
		i = 1
	}
	return s.SetPref(prefRandMac, i)
}

// GetScanInterval returns the scan cadence when disassociated, in
// seconds, falling back to apmodel.DefaultScanIntervalSec when absent.
func (s *Store) GetScanInterval() (uint, error) {
	v, present, err := s.GetPref(prefScanInt)
	if err != nil {
		return 0, err
	}
	if !present {
		return apmodel.DefaultScanIntervalSec, nil
	}
	return uint(v), nil
}

// SetScanInterval persists the scan-interval preference.
func (s *Store) SetScanInterval(sec uint) error {
	return s.SetPref(prefScanInt, int64(sec))
}

// GetRSSIScanInterval returns the scan cadence while associated,
// falling back to apmodel.DefaultRSSIScanIntervalSec when absent.
func (s *Store) GetRSSIScanInterval() (uint, error) {
	v, present, err := s.GetPref(prefRSSIScanInt)
	if err != nil {
		return 0, err
	}
	if !present {
		return apmodel.DefaultRSSIScanIntervalSec, nil
	}
	return uint(v), nil
}

// SetRSSIScanInterval persists the rssi-scan-interval preference.
func (s *Store) SetRSSIScanInterval(sec uint) error {
	return s.SetPref(prefRSSIScanInt, int64(sec))
}

func apOrderKey(ifname string) []byte {
	return []byte(fmt.Sprintf("prefs.%s.%s", prefAPOrder, ifname))
}

// GetAPOrder returns the stored priority list of SSIDs, or (nil, false)
// if none has ever been set.
func (s *Store) GetAPOrder() (order []string, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		order, ok, err = getAPOrderTx(tx, s.ifname)
		return err
	})
	return order, ok, err
}

func getAPOrderTx(tx *bbolt.Tx, ifname string) ([]string, bool, error) {
	b := tx.Bucket([]byte(prefsBucket))
	v := b.Get(apOrderKey(ifname))
	if v == nil {
		return nil, false, nil
	}
	return decodeAPOrder(v), true, nil
}

// SetAPOrder persists the priority list of SSIDs as a length-prefixed
// concatenation of NUL-terminated strings.
func (s *Store) SetAPOrder(order []string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return setAPOrderTx(tx, s.ifname, order)
	})
}

func setAPOrderTx(tx *bbolt.Tx, ifname string, order []string) error {
	b := tx.Bucket([]byte(prefsBucket))
	return b.Put(apOrderKey(ifname), encodeAPOrder(order))
}

func encodeAPOrder(order []string) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(len(order)))
	for _, s := range order {
		buf = append(buf, []byte(s)...)
		buf = append(buf, 0)
	}
	return buf
}

func decodeAPOrder(v []byte) []string {
	if len(v) < 4 {
		return nil
	}
	count := binary.LittleEndian.Uint32(v[:4])
	if count == 0 {
		return nil
	}
	rest := string(v[4:])
	parts := strings.Split(strings.TrimSuffix(rest, "\x00"), "\x00")
	return parts
}
