package rtsp

import (
	"fmt"
	"strconv"
	"strings"
)

// clientPorts extracts the RTP/RTCP port pair from a SETUP Transport
// header.  Only unicast UDP is supported.
func clientPorts(header string) (rtp, rtcp int, err error) {
	parts := strings.Split(header, ";")
	proto := strings.ToUpper(strings.TrimSpace(parts[0]))
	if proto != "RTP/AVP" && proto != "RTP/AVP/UDP" {
		return 0, 0, fmt.Errorf("unsupported transport %q", parts[0])
	}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		switch {
		case strings.EqualFold(p, "multicast"):
			return 0, 0, fmt.Errorf("multicast is not supported")
		case strings.HasPrefix(p, "client_port="):
			return parsePortRange(strings.TrimPrefix(p, "client_port="))
		}
	}
	return 0, 0, fmt.Errorf("transport has no client_port")
}

func parsePortRange(s string) (int, int, error) {
	lo, hi, found := strings.Cut(s, "-")
	a, err := strconv.Atoi(lo)
	if err != nil || a < 1 || a > 65535 {
		return 0, 0, fmt.Errorf("invalid client_port %q", s)
	}
	if !found {
		return a, a + 1, nil
	}
	b, err := strconv.Atoi(hi)
	if err != nil || b < 1 || b > 65535 {
		return 0, 0, fmt.Errorf("invalid client_port %q", s)
	}
	return a, b, nil
}
