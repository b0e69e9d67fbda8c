package netdisc

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"net/netip"
	"regexp"
)

// ipPattern matches something that looks like a dotted-quad address.
const ipPattern = `\d{1,3}(?:\.\d{1,3}){3}`

var (
	dottedQuad = regexp.MustCompile(`^` + ipPattern + `$`)

	// statusPattern pulls the address and mask out of `ifconfig <if>`
	// output, e.g. "wlan0: ip 192.168.1.42 mask 255.255.255.0 flags [up]".
	statusPattern = regexp.MustCompile(`ip\s+(` + ipPattern + `)\s.*mask\s+(` + ipPattern + `)(?:\s|$)`)
)

// IsDottedQuad reports whether s has the shape of an IPv4 address.  It
// does not check octet ranges.
func IsDottedQuad(s string) bool {
	return dottedQuad.MatchString(s)
}

// ParseStatus extracts the address and mask, in that order, from
// interface-status output.
func ParseStatus(out string) (ip, mask string, ok bool) {
	m := statusPattern.FindStringSubmatch(out)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// MaskBits converts a dotted-quad mask into a prefix length by counting
// its set bits.  Non-contiguous masks are not rejected: 255.0.255.0
// yields 16 even though it is not a valid CIDR mask.
func MaskBits(mask string) (int, error) {
	a, err := netip.ParseAddr(mask)
	if err != nil || !a.Is4() {
		return 0, fmt.Errorf("invalid mask %q", mask)
	}
	b := a.As4()
	return bits.OnesCount32(binary.BigEndian.Uint32(b[:])), nil
}

// Contains reports whether candidate lies in the network
// device/prefixLen, with standard CIDR containment semantics.  Only
// IPv4 candidates can match.
func Contains(device netip.Addr, prefixLen int, candidate netip.Addr) bool {
	if prefixLen < 0 || prefixLen > 32 {
		return false
	}
	device, candidate = device.Unmap(), candidate.Unmap()
	if !device.Is4() || !candidate.Is4() {
		return false
	}
	return netip.PrefixFrom(device, prefixLen).Masked().Contains(candidate)
}
