// Package realip resolves the client address behind trusted reverse proxies.
package realip

import (
	"context"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies holds the prefixes whose forwarding headers are honored.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// NewTrustedProxies parses CIDRs or bare addresses. Invalid entries are skipped.
func NewTrustedProxies(cidrs []string) *TrustedProxies {
	tp := &TrustedProxies{}
	for _, c := range cidrs {
		c = strings.TrimSpace(c)
		if p, err := netip.ParsePrefix(c); err == nil {
			tp.prefixes = append(tp.prefixes, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(c); err == nil {
			tp.prefixes = append(tp.prefixes, netip.PrefixFrom(a, a.BitLen()))
		}
	}
	return tp
}

// IsTrusted reports whether addr falls inside a trusted prefix.
func (tp *TrustedProxies) IsTrusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range tp.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// GetClientIP returns the peer address, or the first X-Forwarded-For entry
// (then X-Real-IP) when the peer is a trusted proxy.
func (tp *TrustedProxies) GetClientIP(r *http.Request) (netip.Addr, bool) {
	direct, ok := parseRemoteAddr(r.RemoteAddr)
	if !ok || !tp.IsTrusted(direct) {
		return direct, ok
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if a, err := netip.ParseAddr(strings.TrimSpace(part)); err == nil {
				return a.Unmap(), true
			}
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if a, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return a.Unmap(), true
		}
	}
	return direct, true
}

// GetClientIPString returns the client IP for logging and rate limiting.
func (tp *TrustedProxies) GetClientIPString(r *http.Request) string {
	a, ok := tp.GetClientIP(r)
	if !ok {
		return "unknown"
	}
	return a.String()
}

func parseRemoteAddr(addr string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(addr); err == nil {
		return ap.Addr().Unmap(), true
	}
	if a, err := netip.ParseAddr(addr); err == nil {
		return a.Unmap(), true
	}
	return netip.Addr{}, false
}

// Doer sends a request. It matches the outbound HTTP client interface.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

type forwardingDoer struct {
	next     Doer
	clientIP string
}

// Forwarding wraps next so every request carries clientIP as X-Forwarded-For.
// A backend that trusts this host then sees the original caller. An empty or
// "unknown" clientIP returns next unchanged.
func Forwarding(next Doer, clientIP string) Doer {
	if clientIP == "" || clientIP == "unknown" {
		return next
	}
	return &forwardingDoer{next: next, clientIP: clientIP}
}

func (f *forwardingDoer) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req.Header.Set("X-Forwarded-For", f.clientIP)
	return f.next.Do(ctx, req)
}
