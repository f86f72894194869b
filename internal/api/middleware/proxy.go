package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// TrustedRealIP rewrites RemoteAddr from X-Real-IP or X-Forwarded-For, but
// only when the direct peer falls inside one of trustedCIDRs. Requests from
// anywhere else keep their socket address, so clients cannot pick the IP the
// rate limiter counts against.
func TrustedRealIP(trustedCIDRs []string, log *logrus.Logger) func(http.Handler) http.Handler {
	trusted := parseCIDRs(trustedCIDRs, log)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(trusted) > 0 && isTrustedPeer(clientIP(r), trusted) {
				if ip := forwardedIP(r); ip != "" {
					r.RemoteAddr = ip
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func parseCIDRs(cidrs []string, log *logrus.Logger) []*net.IPNet {
	var out []*net.IPNet
	for _, cidr := range cidrs {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			log.WithField("cidr", cidr).Warn("ignoring invalid trusted proxy range")
			continue
		}
		out = append(out, network)
	}
	return out
}

func isTrustedPeer(ipStr string, trusted []*net.IPNet) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, network := range trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// forwardedIP prefers X-Real-IP, then the leftmost X-Forwarded-For entry.
// Values that are not IP addresses are ignored.
func forwardedIP(r *http.Request) string {
	candidate := strings.TrimSpace(r.Header.Get("X-Real-IP"))
	if candidate == "" {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			candidate = strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		}
	}
	if net.ParseIP(candidate) == nil {
		return ""
	}
	return candidate
}
