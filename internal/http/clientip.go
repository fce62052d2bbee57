package httpx

import (
	"net"
	"net/http"
	"strings"
)

// DefaultClientIPHeader is set by the edge proxy to the connecting address.
const DefaultClientIPHeader = "CF-Connecting-IP"

// ClientIP resolves the caller address used as the rate-limit key: the trusted
// header when present, then the connection's remote address, then "unknown".
func ClientIP(r *http.Request, header string) string {
	if header != "" {
		if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
			// X-Forwarded-For style lists carry the client first.
			if i := strings.IndexByte(v, ','); i >= 0 {
				v = strings.TrimSpace(v[:i])
			}
			if v != "" {
				return v
			}
		}
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
			return host
		}
		return r.RemoteAddr
	}
	return "unknown"
}
