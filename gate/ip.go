// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package gate

import (
	"net"
	"strings"
)

// IPKey is a comparable client IP address used to key per-client state such
// as rate limiters.
type IPKey [net.IPv6len]byte

// NewIPKey parses an IP address or host:port string into an IPKey. IPv6
// addresses other than loopback are truncated to their /64 network prefix so
// that a single client cannot evade limits by rotating interface identifiers.
// Unparseable input yields the zero IPKey.
func NewIPKey(addr string) IPKey {
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		addr = host
	} else {
		addr = strings.Trim(addr, "[]")
	}

	var key IPKey
	ip := net.ParseIP(addr)
	if ip == nil {
		return key
	}
	n := net.IPv6len
	if ip.To4() == nil && !ip.Equal(net.IPv6loopback) {
		n /= 2
	}
	copy(key[:], ip.To16()[:n])
	return key
}

// String returns a readable IP address representation of the IPKey.
func (k IPKey) String() string {
	return net.IP(k[:]).String()
}
