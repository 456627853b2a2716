/*
 * COPYRIGHT 2020 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

package control

import (
	"net"

	"github.com/klauspost/oui"
)

// VendorLookup resolves a BSSID's OUI to a manufacturer name, the same
// capability ap-ouisearch and ap.identifierd get from
// github.com/klauspost/oui. It enriches `scan`'s output; a nil
// VendorLookup (or one that can't resolve a given address) simply
// omits the field.
type VendorLookup interface {
	Lookup(mac net.HardwareAddr) (vendor string, ok bool)
}

// ouiVendorLookup adapts an oui.StaticDB, as returned by
// oui.OpenStaticFile, to VendorLookup.
type ouiVendorLookup struct {
	db oui.StaticDB
}

// NewOuiVendorLookup wraps db as a VendorLookup.
func NewOuiVendorLookup(db oui.StaticDB) VendorLookup {
	return &ouiVendorLookup{db: db}
}

func (o *ouiVendorLookup) Lookup(mac net.HardwareAddr) (string, bool) {
	if o == nil || o.db == nil {
		return "", false
	}
	entry, err := o.db.Query(mac.String())
	if err != nil || entry == nil || entry.Manufacturer == "" {
		return "", false
	}
	return entry.Manufacturer, true
}
