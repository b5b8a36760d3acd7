package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// RealIPMiddleware resolves the client address once per request and stores it
// in X-Real-IP, overwriting whatever the client sent. Forwarding headers are
// honored only when the direct peer is a trusted proxy.
type RealIPMiddleware struct {
	trusted []netip.Prefix
}

// NewRealIPMiddleware accepts addresses ("192.168.1.1") and CIDRs
// ("10.0.0.0/8"). Unparseable entries are skipped.
func NewRealIPMiddleware(trustedProxies []string) *RealIPMiddleware {
	m := &RealIPMiddleware{}
	for _, proxy := range trustedProxies {
		proxy = strings.TrimSpace(proxy)
		if proxy == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(proxy); err == nil {
			m.trusted = append(m.trusted, prefix.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(proxy); err == nil {
			m.trusted = append(m.trusted, netip.PrefixFrom(addr, addr.BitLen()))
		}
	}
	return m
}

// Handler returns the middleware handler
func (m *RealIPMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip := m.clientIP(r); ip != "" {
			r.Header.Set("X-Real-IP", ip)
		}
		next.ServeHTTP(w, r)
	})
}

func (m *RealIPMiddleware) clientIP(r *http.Request) string {
	remote := remoteHost(r.RemoteAddr)
	if !m.isTrusted(remote) {
		return remote
	}

	// Cloudflare's header takes priority
	if cf := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); cf != "" {
		return cf
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	return remote
}

func (m *RealIPMiddleware) isTrusted(host string) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range m.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// remoteHost strips the port from RemoteAddr when present.
func remoteHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
