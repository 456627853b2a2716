/*
 * COPYRIGHT 2020 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

// Package ipconfig is the IP Configurator: once the Scheduler has
// associated an interface to an AP, this package applies whatever
// address policy that AP's record specifies -- static IPv4/IPv6,
// DHCPv4, or link-only (no address at all). Static addressing is
// programmed via rtnetlink (github.com/vishvananda/netlink, the same
// library ap_common/netctl's linkOp uses for bridge/wireguard
// addressing); DHCP is handed to dhcpcd as a supervised child process,
// the same client ap_common/network/dhcp.go reads lease state from.
package ipconfig

import (
	"fmt"
	"net"
	"time"

	"github.com/vishvananda/netlink"

	"ifscand/apmodel"
	"ifscand/supervisor"
)

const dhcpcdPath = "/sbin/dhcpcd"

// Logger is the narrow logging surface ipconfig needs.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Configurator applies address policy to one interface and tracks
// whatever DHCP client it may have spawned for that interface.
type Configurator struct {
	iface string
	sup   *supervisor.Supervisor
	log   Logger

	dhcp *supervisor.Child
}

// New returns a Configurator bound to iface.
func New(iface string, sup *supervisor.Supervisor, log Logger) *Configurator {
	return &Configurator{iface: iface, sup: sup, log: log}
}

// Apply programs the addressing policy from rec onto the interface.
// On a static-address failure it intentionally does not roll back any
// partially-applied address or route: the interface is left in
// whatever partial state the address/route calls produced. The
// Scheduler logs the returned error and keeps the association; the
// address step is not retried until the next association.
//
// TODO: if static IPv4 configuration fails partway through (address
// applied, gateway route rejected), a future revision could retract
// the address here rather than leaving it in place.
func (c *Configurator) Apply(rec *apmodel.AccessPointRecord) error {
	link, err := netlink.LinkByName(c.iface)
	if err != nil {
		return fmt.Errorf("ipconfig: link %s: %w", c.iface, err)
	}

	if err := c.applyIPv4(link, rec.IPv4); err != nil {
		return err
	}
	if err := c.applyIPv6(link, rec.IPv6); err != nil {
		return err
	}
	return nil
}

func (c *Configurator) applyIPv4(link netlink.Link, pol apmodel.IPv4Policy) error {
	switch pol.Kind {
	case apmodel.IPv4None:
		return nil
	case apmodel.IPv4DHCP:
		return c.startDHCP()
	case apmodel.IPv4Static:
		c.stopDHCP()
		addr := &netlink.Addr{IPNet: &net.IPNet{IP: pol.Addr, Mask: pol.Mask}}
		if err := netlink.AddrAdd(link, addr); err != nil {
			return fmt.Errorf("ipconfig: add %s: %w", addr, err)
		}
		if pol.Gateway != nil {
			rt := &netlink.Route{
				LinkIndex: link.Attrs().Index,
				Gw:        pol.Gateway,
			}
			if err := netlink.RouteAdd(rt); err != nil {
				return fmt.Errorf("ipconfig: add default route via %s: %w", pol.Gateway, err)
			}
		}
	}
	return nil
}

func (c *Configurator) applyIPv6(link netlink.Link, pol apmodel.IPv6Policy) error {
	if pol.Kind != apmodel.IPv6Static {
		return nil
	}
	addr := &netlink.Addr{IPNet: &net.IPNet{IP: pol.Addr, Mask: pol.Mask}}
	if err := netlink.AddrAdd(link, addr); err != nil {
		return fmt.Errorf("ipconfig: add %s: %w", addr, err)
	}
	if pol.Gateway != nil {
		rt := &netlink.Route{
			LinkIndex: link.Attrs().Index,
			Gw:        pol.Gateway,
		}
		if err := netlink.RouteAdd(rt); err != nil {
			return fmt.Errorf("ipconfig: add default route via %s: %w", pol.Gateway, err)
		}
	}
	return nil
}

// startDHCP always terminates and reaps a live prior child before
// spawning a new one, rather than leaving an existing client running:
// a caller reaching Apply again for the same interface (e.g. a fresh
// association to the same AP) is a restart request, not a no-op.
func (c *Configurator) startDHCP() error {
	if c.dhcp != nil && !c.dhcp.Poll() {
		if err := c.dhcp.Terminate(2 * time.Second); err != nil {
			c.log.Warnf("stopping existing dhcpcd on %s before restart: %v", c.iface, err)
		}
		c.dhcp = nil
	}
	child, err := c.sup.Spawn(dhcpcdPath, "-4", "--no-background", c.iface)
	if err != nil {
		return fmt.Errorf("ipconfig: starting dhcpcd on %s: %w", c.iface, err)
	}
	c.dhcp = child
	c.log.Infof("started dhcpcd (pid %d) on %s", child.PID(), c.iface)
	return nil
}

func (c *Configurator) stopDHCP() {
	if c.dhcp == nil {
		return
	}
	if err := c.dhcp.Terminate(2 * time.Second); err != nil {
		c.log.Warnf("stopping dhcpcd on %s: %v", c.iface, err)
	}
	c.dhcp = nil
}

// PollDHCP is called once per scheduler tick while an interface is
// DHCP-managed; if the client has died it restarts it and reports
// true so the caller can log the restart.
func (c *Configurator) PollDHCP() (restarted bool) {
	if c.dhcp == nil {
		return false
	}
	if !c.dhcp.Poll() {
		return false
	}
	c.log.Warnf("dhcpcd on %s exited, restarting", c.iface)
	c.dhcp = nil
	if err := c.startDHCP(); err != nil {
		c.log.Warnf("restarting dhcpcd on %s: %v", c.iface, err)
	}
	return true
}

// Teardown stops a DHCP client if one is running and deletes every
// address currently on the interface, whether or not this Configurator
// applied it; routes are not deleted explicitly. It is called from the
// Scheduler's disassociate step.
func (c *Configurator) Teardown() {
	c.stopDHCP()

	link, err := netlink.LinkByName(c.iface)
	if err != nil {
		return
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
	if err != nil {
		return
	}
	for _, a := range addrs {
		addr := a
		if err := netlink.AddrDel(link, &addr); err != nil {
			c.log.Warnf("removing address %s from %s: %v", addr, c.iface, err)
		}
	}
}
