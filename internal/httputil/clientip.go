package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the caller's IP, preferring proxy-set headers over the
// raw remote address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		return strings.TrimSpace(ips[0])
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	// RemoteAddr is normally host:port, but lone addresses appear in tests
	// and behind some proxies. SplitHostPort also unbrackets IPv6.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
