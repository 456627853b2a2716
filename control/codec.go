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
	"fmt"
	"net"
	"strconv"
	"strings"

	"ifscand/apmodel"
)

// parseAddArgs turns the argument tokens following "add" into an
// AccessPointRecord. A line produced by encodeRecordText, once
// tokenized and with its leading "add" removed, is accepted by this
// function, so `list` output round-trips through `add`.
func parseAddArgs(args []string) (*apmodel.AccessPointRecord, error) {
	rec := &apmodel.AccessPointRecord{}

	for i := 0; i < len(args); i++ {
		key := args[i]
		need := func() (string, error) {
			i++
			if i >= len(args) {
				return "", fmt.Errorf("%s requires an argument", key)
			}
			return args[i], nil
		}

		switch key {
		case "nwid":
			v, err := need()
			if err != nil {
				return nil, err
			}
			rec.SSID = v

		case "lladdr":
			v, err := need()
			if err != nil {
				return nil, err
			}
			if v == "random" {
				rec.StationMac = apmodel.StationMacPolicy{Kind: apmodel.MacRandomOUI}
			} else {
				mac, err := net.ParseMAC(v)
				if err != nil {
					return nil, fmt.Errorf("lladdr %q: %w", v, err)
				}
				rec.StationMac = apmodel.StationMacPolicy{Kind: apmodel.MacFixed, MAC: mac}
			}

		case "wpakey":
			v, err := need()
			if err != nil {
				return nil, err
			}
			if err := apmodel.ValidateWPAKey([]byte(v)); err != nil {
				return nil, err
			}
			rec.AuthMode = apmodel.AuthWPA
			rec.Key = []byte(v)

		case "nwkey":
			v, err := need()
			if err != nil {
				return nil, err
			}
			if err := apmodel.ValidateWEPKey([]byte(v)); err != nil {
				return nil, err
			}
			rec.AuthMode = apmodel.AuthWEP
			rec.Key = []byte(v)

		case "bssid":
			v, err := need()
			if err != nil {
				return nil, err
			}
			mac, err := net.ParseMAC(v)
			if err != nil {
				return nil, fmt.Errorf("bssid %q: %w", v, err)
			}
			rec.PinnedBSSID = mac

		case "inet":
			v, err := need()
			if err != nil {
				return nil, err
			}
			if v == "dhcp" {
				rec.IPv4.Kind = apmodel.IPv4DHCP
			} else {
				addr, mask, err := parseCIDR4(v)
				if err != nil {
					return nil, fmt.Errorf("inet %q: %w", v, err)
				}
				rec.IPv4.Kind = apmodel.IPv4Static
				rec.IPv4.Addr = addr
				rec.IPv4.Mask = mask
			}

		case "gw":
			v, err := need()
			if err != nil {
				return nil, err
			}
			ip := net.ParseIP(v)
			if ip == nil {
				return nil, fmt.Errorf("gw %q: not an IP address", v)
			}
			rec.IPv4.Gateway = ip

		case "inet6":
			v, err := need()
			if err != nil {
				return nil, err
			}
			addr, mask, err := parseCIDR6(v)
			if err != nil {
				return nil, fmt.Errorf("inet6 %q: %w", v, err)
			}
			rec.IPv6.Kind = apmodel.IPv6Static
			rec.IPv6.Addr = addr
			rec.IPv6.Mask = mask

		case "gw6":
			v, err := need()
			if err != nil {
				return nil, err
			}
			ip := net.ParseIP(v)
			if ip == nil {
				return nil, fmt.Errorf("gw6 %q: not an IP address", v)
			}
			rec.IPv6.Gateway = ip

		default:
			return nil, fmt.Errorf("unrecognized add argument %q", key)
		}
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

func parseCIDR4(s string) (net.IP, net.IPMask, error) {
	ip, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return nil, nil, err
	}
	if ip.To4() == nil {
		return nil, nil, fmt.Errorf("not an IPv4 address")
	}
	return ip.To4(), ipnet.Mask, nil
}

func parseCIDR6(s string) (net.IP, net.IPMask, error) {
	ip, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return nil, nil, err
	}
	return ip, ipnet.Mask, nil
}

func quoteIfNeeded(s string) string {
	if strings.ContainsAny(s, " \t") {
		return `"` + s + `"`
	}
	return s
}

// encodeRecordText renders rec in the same grammar parseAddArgs
// accepts, as "add <args>" would be typed at the control socket. Used
// by the `list` command.
func encodeRecordText(rec *apmodel.AccessPointRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "add nwid %s", quoteIfNeeded(rec.SSID))

	switch rec.StationMac.Kind {
	case apmodel.MacFixed:
		fmt.Fprintf(&b, " lladdr %s", rec.StationMac.MAC)
	case apmodel.MacRandomOUI:
		b.WriteString(" lladdr random")
	}

	switch rec.AuthMode {
	case apmodel.AuthWPA:
		fmt.Fprintf(&b, " wpakey %s", quoteIfNeeded(string(rec.Key)))
	case apmodel.AuthWEP:
		fmt.Fprintf(&b, " nwkey %s", quoteIfNeeded(string(rec.Key)))
	}

	if rec.PinnedBSSID != nil {
		fmt.Fprintf(&b, " bssid %s", rec.PinnedBSSID)
	}

	switch rec.IPv4.Kind {
	case apmodel.IPv4DHCP:
		b.WriteString(" inet dhcp")
	case apmodel.IPv4Static:
		ones, _ := rec.IPv4.Mask.Size()
		fmt.Fprintf(&b, " inet %s/%s", rec.IPv4.Addr, strconv.Itoa(ones))
		if rec.IPv4.Gateway != nil {
			fmt.Fprintf(&b, " gw %s", rec.IPv4.Gateway)
		}
	}

	if rec.IPv6.Kind == apmodel.IPv6Static {
		ones, _ := rec.IPv6.Mask.Size()
		fmt.Fprintf(&b, " inet6 %s/%s", rec.IPv6.Addr, strconv.Itoa(ones))
		if rec.IPv6.Gateway != nil {
			fmt.Fprintf(&b, " gw6 %s", rec.IPv6.Gateway)
		}
	}

	return b.String()
}
