package security

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is assumed for allowlist entries without a port.
const DefaultPort = "443"

// Endpoint is one allowlist entry. Host may start with "*." to match any
// subdomain (not the apex). Port "*" matches any port.
type Endpoint struct {
	Host string
	Port string
}

// ParseEndpoint parses "host", "host:port", "*.domain:port" or "[v6]:port".
func ParseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Endpoint{}, fmt.Errorf("empty endpoint")
	}
	if strings.Contains(s, "://") {
		return Endpoint{}, fmt.Errorf("endpoint %q must be host[:port], not a URL", s)
	}

	host, port := s, DefaultPort
	if h, p, err := net.SplitHostPort(s); err == nil {
		host, port = h, p
	} else if strings.Count(s, ":") == 1 {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: %v", s, err)
	}

	host = normalizeHost(host)
	if host == "" || host == "*." {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: empty host", s)
	}
	if strings.Contains(strings.TrimPrefix(host, "*."), "*") {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: wildcard only allowed as leading \"*.\"", s)
	}
	if port != "*" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return Endpoint{}, fmt.Errorf("invalid endpoint %q: bad port %q", s, port)
		}
	}
	return Endpoint{Host: host, Port: port}, nil
}

// String renders the endpoint in host:port form.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, e.Port)
}

// Matches reports whether host:port falls under this entry.
func (e Endpoint) Matches(host, port string) bool {
	if e.Port != "*" && e.Port != port {
		return false
	}
	host = normalizeHost(host)
	if suffix, ok := strings.CutPrefix(e.Host, "*."); ok {
		return strings.HasSuffix(host, "."+suffix)
	}
	return host == e.Host
}

func normalizeHost(h string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(h)), ".")
}
