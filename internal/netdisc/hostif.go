package netdisc

import (
	"context"
	"net/netip"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// InterfaceAddr is one address assigned to a local interface.
type InterfaceAddr struct {
	Interface string
	Addr      netip.Addr
}

// AddrSource enumerates local interface addresses in a deterministic
// order.
type AddrSource func(ctx context.Context) ([]InterfaceAddr, error)

// SystemAddrs lists the host's interface addresses in the order the
// operating system reports interfaces, then addresses.
func SystemAddrs(ctx context.Context) ([]InterfaceAddr, error) {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var out []InterfaceAddr
	for _, iface := range ifaces {
		for _, a := range iface.Addrs {
			addr, ok := parseInterfaceAddr(a.Addr)
			if !ok {
				continue
			}
			out = append(out, InterfaceAddr{Interface: iface.Name, Addr: addr})
		}
	}
	return out, nil
}

// parseInterfaceAddr accepts "192.168.1.5/24" or a bare address.
func parseInterfaceAddr(s string) (netip.Addr, bool) {
	if p, err := netip.ParsePrefix(s); err == nil {
		return p.Addr(), true
	}
	a, err := netip.ParseAddr(s)
	return a, err == nil
}
