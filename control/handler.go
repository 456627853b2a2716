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
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"ifscand/apmodel"
)

// Backend is everything the control protocol needs from the rest of
// the daemon. prefstore.Store and wireless.Driver together satisfy
// the pieces of it; ifscand's main wires a concrete implementation
// that also has access to the Scheduler's quit flag.
type Backend interface {
	AddAP(rec *apmodel.AccessPointRecord) error
	DeleteAP(ssid string) error
	ListAPs() ([]*apmodel.AccessPointRecord, error)
	Scan() ([]*apmodel.ScannedNode, error)

	GetRandomizeMac() (bool, error)
	SetRandomizeMac(bool) error
	GetAPOrder() ([]string, bool, error)
	SetAPOrder([]string) error

	RequestShutdown()
}

// Handler dispatches tokenized command lines against a Backend.
type Handler struct {
	backend Backend
	vendor  VendorLookup
}

// NewHandler returns a Handler bound to backend, with no vendor
// lookup.
func NewHandler(backend Backend) *Handler {
	return &Handler{backend: backend}
}

// WithVendorLookup attaches a VendorLookup that enriches `scan`'s
// output with a manufacturer name per observed BSSID.
func (h *Handler) WithVendorLookup(v VendorLookup) *Handler {
	h.vendor = v
	return h
}

// Dispatch tokenizes and executes one command line, returning the
// text to send back (without the OK/ERROR envelope -- ServeOne applies
// that).
func (h *Handler) Dispatch(line string) (reply string, err error) {
	tokens, err := tokenize(line)
	if err != nil {
		return "", err
	}
	if len(tokens) == 0 {
		return "", fmt.Errorf("empty command")
	}

	switch tokens[0] {
	case "add":
		rec, err := parseAddArgs(tokens[1:])
		if err != nil {
			return "", err
		}
		if err := h.backend.AddAP(rec); err != nil {
			return "", err
		}
		return "", nil

	case "del":
		if len(tokens) != 2 {
			return "", fmt.Errorf("del requires exactly one argument")
		}
		if err := h.backend.DeleteAP(tokens[1]); err != nil {
			return "", err
		}
		return "", nil

	case "list":
		asJSON := len(tokens) > 1 && tokens[1] == "json"
		recs, err := h.backend.ListAPs()
		if err != nil {
			return "", err
		}
		return formatList(recs, asJSON), nil

	case "scan":
		asJSON := len(tokens) > 1 && tokens[1] == "json"
		nodes, err := h.backend.Scan()
		if err != nil {
			return "", err
		}
		return formatScan(nodes, asJSON, h.vendor), nil

	case "set":
		return "", h.dispatchSet(tokens[1:])

	case "get":
		return h.dispatchGet(tokens[1:])

	case "down":
		h.backend.RequestShutdown()
		return "", nil

	default:
		return "", fmt.Errorf("unrecognized command %q", tokens[0])
	}
}

func (h *Handler) dispatchSet(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("set requires a target and a value")
	}
	switch args[0] {
	case "randmac":
		v, err := parseBool(args[1])
		if err != nil {
			return err
		}
		return h.backend.SetRandomizeMac(v)
	case "ap-order":
		return h.backend.SetAPOrder(args[1:])
	default:
		return fmt.Errorf("unrecognized set target %q", args[0])
	}
}

func (h *Handler) dispatchGet(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("get requires exactly one argument")
	}
	switch args[0] {
	case "randmac":
		v, err := h.backend.GetRandomizeMac()
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(v), nil
	case "ap-order":
		order, _, err := h.backend.GetAPOrder()
		if err != nil {
			return "", err
		}
		return strings.Join(order, " "), nil
	case "all":
		randmac, err := h.backend.GetRandomizeMac()
		if err != nil {
			return "", err
		}
		order, _, err := h.backend.GetAPOrder()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("randmac=%v ap-order=%s", randmac, strings.Join(order, ",")), nil
	default:
		return "", fmt.Errorf("unrecognized get target %q", args[0])
	}
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("%q is not a recognized boolean", s)
	}
}

func formatList(recs []*apmodel.AccessPointRecord, asJSON bool) string {
	if asJSON {
		b, _ := json.Marshal(recs)
		return string(b)
	}
	lines := make([]string, len(recs))
	for i, r := range recs {
		lines[i] = encodeRecordText(r)
	}
	return strings.Join(lines, "\n")
}

// scannedNodeView is ScannedNode plus the vendor name a VendorLookup
// resolves, so enrichment never needs to mutate apmodel.ScannedNode
// (which is also reused, unenriched, inside the scheduler/prefstore).
type scannedNodeView struct {
	*apmodel.ScannedNode
	Vendor string `json:"vendor,omitempty"`
}

func formatScan(nodes []*apmodel.ScannedNode, asJSON bool, vendor VendorLookup) string {
	views := make([]scannedNodeView, len(nodes))
	for i, n := range nodes {
		v := scannedNodeView{ScannedNode: n}
		if vendor != nil && n.BSSID != nil {
			if name, ok := vendor.Lookup(n.BSSID); ok {
				v.Vendor = name
			}
		}
		views[i] = v
	}

	if asJSON {
		b, _ := json.Marshal(views)
		return string(b)
	}
	lines := make([]string, len(views))
	for i, v := range views {
		line := fmt.Sprintf("%s %s rssi=%d channel=%d", v.SSID, v.BSSID, v.RSSI, v.Channel)
		if v.Vendor != "" {
			line += " mfg=" + quoteIfNeeded(v.Vendor)
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}
