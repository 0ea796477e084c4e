package common

import (
	"net/http"
	"net/netip"
)

// ClientIP returns the caller address. The router runs chi's RealIP first, so
// forwarded headers have already been folded into RemoteAddr.
func ClientIP(r *http.Request) string {
	if r == nil || r.RemoteAddr == "" {
		return ""
	}
	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return ap.Addr().Unmap().String()
	}
	if addr, err := netip.ParseAddr(r.RemoteAddr); err == nil {
		return addr.Unmap().String()
	}
	return r.RemoteAddr
}
