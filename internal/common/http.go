package common

import (
	"net"
	"net/http"
	"strings"
)

// clientIPHeaders lists proxy headers carrying the originating address,
// highest priority first.
var clientIPHeaders = []string{
	"Client-IP",
	"X-Forwarded-For",
	"Forwarded-For",
	"Forwarded",
}

// ClientIP determines the customer IP for the gateway sale payload. The
// first populated header wins; a comma list keeps only its first entry.
// When nothing is present the loopback address is returned so the sale
// payload always carries a syntactically valid address.
func ClientIP(r *http.Request) string {
	if r == nil {
		return "127.0.0.1"
	}
	for _, header := range clientIPHeaders {
		value := strings.TrimSpace(r.Header.Get(header))
		if value == "" {
			continue
		}
		if idx := strings.IndexByte(value, ','); idx >= 0 {
			value = strings.TrimSpace(value[:idx])
		}
		if value != "" {
			return value
		}
	}
	if addr := strings.TrimSpace(r.RemoteAddr); addr != "" {
		if host, _, err := net.SplitHostPort(addr); err == nil {
			return host
		}
		return addr
	}
	return "127.0.0.1"
}
