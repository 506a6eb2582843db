// Package netx resolves the client address a request should be accounted
// to, honouring X-Forwarded-For only when the direct peer is a trusted proxy.
package netx

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// TrustedProxies is a set of addresses and CIDR ranges. The nil value
// trusts nobody.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// ParseTrustedProxies accepts plain addresses ("10.0.0.1") and CIDR ranges
// ("10.0.0.0/8"). Blank entries are ignored.
func ParseTrustedProxies(entries []string) (*TrustedProxies, error) {
	t := &TrustedProxies{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
			}
			t.prefixes = append(t.prefixes, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
		}
		a = a.Unmap()
		t.prefixes = append(t.prefixes, netip.PrefixFrom(a, a.BitLen()))
	}
	return t, nil
}

// Trusts reports whether host (an address without port) is a trusted proxy.
func (t *TrustedProxies) Trusts(host string) bool {
	if t == nil || len(t.prefixes) == 0 {
		return false
	}
	a, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, p := range t.prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// ClientIP returns the address to account a request to. remoteAddr is the
// direct peer ("ip:port" or a bare ip). forwardedFor is the raw
// X-Forwarded-For value and is only read when the peer is trusted; it is
// walked right to left and the first hop that is not a trusted proxy wins.
func (t *TrustedProxies) ClientIP(remoteAddr, forwardedFor string) string {
	host := Host(remoteAddr)
	if host == "" {
		host = "unknown"
	}
	if forwardedFor == "" || !t.Trusts(host) {
		return host
	}

	hops := strings.Split(forwardedFor, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := Host(strings.TrimSpace(hops[i]))
		if hop == "" {
			continue
		}
		if _, err := netip.ParseAddr(hop); err != nil {
			// garbage in the chain; stop at the last trustworthy hop
			return host
		}
		if !t.Trusts(hop) {
			return hop
		}
		host = hop
	}
	return host
}

// Host strips the port from addr. Bracketed and bare IPv6 addresses are
// returned without brackets.
func Host(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(addr); err == nil {
		return h
	}
	return strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
}
