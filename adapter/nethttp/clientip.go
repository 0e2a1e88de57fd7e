package nethttp

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrInvalidProxy is returned when a trusted proxy entry is neither a
// valid IP address nor a valid CIDR range.
var ErrInvalidProxy = errors.New("nethttp: invalid trusted proxy entry")

// DefaultTrustedProxies are the loopback and private ranges trusted when
// Options.TrustedProxies is nil.
var DefaultTrustedProxies = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"100.64.0.0/10",
	"::1/128",
	"fc00::/7",
}

// ClientIPResolver derives the client address from the peer address and,
// for trusted peers only, from X-Forwarded-For and X-Real-IP.
type ClientIPResolver struct {
	ips  []net.IP
	nets []*net.IPNet
}

// NewClientIPResolver parses trusted proxy IPs and CIDR ranges. An empty
// non-nil slice trusts no proxy; nil selects DefaultTrustedProxies.
func NewClientIPResolver(trusted []string) (*ClientIPResolver, error) {
	if trusted == nil {
		trusted = DefaultTrustedProxies
	}

	res := &ClientIPResolver{}

	for _, entry := range trusted {
		entry = strings.TrimSpace(entry)

		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidProxy, entry)
			}

			res.nets = append(res.nets, ipNet)

			continue
		}

		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProxy, entry)
		}

		res.ips = append(res.ips, ip)
	}

	return res, nil
}

// Resolve returns the client IP for r. X-Forwarded-For is walked from the
// right, skipping trusted hops, so a client cannot spoof its address by
// sending the header itself.
func (c *ClientIPResolver) Resolve(r *http.Request) string {
	peer := hostOnly(r.RemoteAddr)

	if !c.trusted(peer) {
		return peer
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")

		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if net.ParseIP(hop) == nil {
				break
			}

			if !c.trusted(hop) {
				return hop
			}

			peer = hop
		}

		return peer
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(realIP) != nil {
		return realIP
	}

	return peer
}

func (c *ClientIPResolver) trusted(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}

	for _, trusted := range c.ips {
		if trusted.Equal(ip) {
			return true
		}
	}

	for _, ipNet := range c.nets {
		if ipNet.Contains(ip) {
			return true
		}
	}

	return false
}

// hostOnly strips the port from addr. Addresses without a port are
// returned unchanged.
func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}

	return host
}
