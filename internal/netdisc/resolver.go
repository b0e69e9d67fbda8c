// Package netdisc discovers where the device sits on the wireless
// network and which local interface shares that network.
//
// The device is queried over the cable.  Its wireless configuration is
// treated as untrusted text: DHCP properties are tried first, and the
// interface-status output is parsed when firmware leaves them empty.
package netdisc

import (
	"context"
	"fmt"
	"net/netip"

	mimicerr "mimic/internal/errors"
	"mimic/util"
)

// DefaultInterface is assumed when the device does not report its
// wireless interface name.
const DefaultInterface = "wlan0"

// RemoteShell runs a command on the device and returns trimmed stdout.
type RemoteShell interface {
	Run(ctx context.Context, command string) (string, error)
}

// Source records which strategy produced a SubnetInfo.
type Source string

const (
	SourceDHCP   Source = "dhcp"
	SourceStatus Source = "ifconfig"
)

// SubnetInfo is the device's wireless address and prefix length.
type SubnetInfo struct {
	DeviceIP  netip.Addr
	MaskBits  int
	Interface string
	Source    Source
}

// Prefix returns the device network, masked.
func (s SubnetInfo) Prefix() netip.Prefix {
	return netip.PrefixFrom(s.DeviceIP, s.MaskBits).Masked()
}

func (s SubnetInfo) String() string {
	return fmt.Sprintf("%s/%d via %s (%s)", s.DeviceIP, s.MaskBits, s.Interface, s.Source)
}

// HostBinding is the local address on the device's network.
type HostBinding struct {
	HostIP    netip.Addr
	Interface string
}

// Resolver performs device and host address discovery.
type Resolver struct {
	// Addrs enumerates local interface addresses (default SystemAddrs).
	Addrs  AddrSource
	Logger *util.Logger
}

// NewResolver returns a Resolver that enumerates the system's
// interfaces.
func NewResolver(logger *util.Logger) *Resolver {
	return &Resolver{Addrs: SystemAddrs, Logger: logger}
}

// ResolveDeviceIP reads the device's wireless address and mask over
// shell.  A dotted-quad DHCP address property is authoritative; only
// when it is missing or malformed is the interface status parsed.
func (r *Resolver) ResolveDeviceIP(ctx context.Context, shell RemoteShell) (SubnetInfo, error) {
	intf, err := shell.Run(ctx, "getprop wifi.interface")
	if err != nil {
		return SubnetInfo{}, err
	}
	if intf == "" {
		intf = DefaultInterface
	}

	var ip, mask string
	source := SourceDHCP

	ip, err = shell.Run(ctx, fmt.Sprintf("getprop dhcp.%s.ipaddress", intf))
	if err != nil {
		return SubnetInfo{}, err
	}
	if IsDottedQuad(ip) {
		mask, err = shell.Run(ctx, fmt.Sprintf("getprop dhcp.%s.mask", intf))
		if err != nil {
			return SubnetInfo{}, err
		}
	} else {
		r.debug("dhcp.%s.ipaddress is %q, falling back to ifconfig", intf, ip)
		source = SourceStatus
		status, err := shell.Run(ctx, "ifconfig "+intf)
		if err != nil {
			return SubnetInfo{}, err
		}
		var ok bool
		if ip, mask, ok = ParseStatus(status); !ok {
			return SubnetInfo{}, mimicerr.Discovery("device-ip", mimicerr.ErrNoDeviceAddress)
		}
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Is4() {
		return SubnetInfo{}, mimicerr.Discovery("device-ip", fmt.Errorf("%w: %q", mimicerr.ErrNoDeviceAddress, ip))
	}
	maskBits, err := MaskBits(mask)
	if err != nil {
		return SubnetInfo{}, mimicerr.Discovery("mask", err)
	}

	info := SubnetInfo{DeviceIP: addr, MaskBits: maskBits, Interface: intf, Source: source}
	r.debug("device network %s", info)
	return info, nil
}

// ResolveHostIP returns the first local address that is IPv4, neither
// loopback nor multicast, and inside the device's network.
func (r *Resolver) ResolveHostIP(ctx context.Context, info SubnetInfo) (HostBinding, error) {
	addrs := r.Addrs
	if addrs == nil {
		addrs = SystemAddrs
	}
	candidates, err := addrs(ctx)
	if err != nil {
		return HostBinding{}, mimicerr.Discovery("host-ip", err)
	}

	for _, c := range candidates {
		a := c.Addr.Unmap()
		if !a.Is4() || a.IsLoopback() || a.IsMulticast() {
			continue
		}
		if Contains(info.DeviceIP, info.MaskBits, a) {
			r.debug("host address %s on %s", a, c.Interface)
			return HostBinding{HostIP: a, Interface: c.Interface}, nil
		}
	}
	return HostBinding{}, mimicerr.Discovery("host-ip", mimicerr.ErrNoHostInterface)
}

func (r *Resolver) debug(format string, args ...interface{}) {
	if r.Logger != nil {
		r.Logger.Verbose(format, args...)
	}
}
