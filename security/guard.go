package security

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/initializ/distpub/runtime"
)

// EgressViolationError reports a connection attempt outside the allowlist.
type EgressViolationError struct {
	Host   string
	Port   string
	Policy EgressPolicy
}

func (e *EgressViolationError) Error() string {
	return fmt.Sprintf("network policy violation: egress to %s is not allowed (policy %s)",
		net.JoinHostPort(e.Host, e.Port), e.Policy)
}

func (e *EgressViolationError) Unwrap() error { return ErrEgressBlocked }

// Violation records one denied (or audited) connection attempt.
type Violation struct {
	Host    string    `json:"host"`
	Port    string    `json:"port"`
	Blocked bool      `json:"blocked"`
	At      time.Time `json:"at"`
}

// Guard checks every outbound connection against the allowlist before it
// reaches the network.
type Guard struct {
	cfg       *EgressConfig
	endpoints []Endpoint
	logger    runtime.Logger
	dialer    *net.Dialer

	mu         sync.Mutex
	violations []Violation
}

// NewGuard builds a Guard for cfg. A nil logger discards output.
func NewGuard(cfg *EgressConfig, logger runtime.Logger) (*Guard, error) {
	if cfg == nil {
		return nil, fmt.Errorf("egress config is nil")
	}
	if logger == nil {
		logger = runtime.NopLogger{}
	}
	g := &Guard{
		cfg:    cfg,
		logger: logger,
		dialer: &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second},
	}
	for _, raw := range cfg.AllEndpoints {
		ep, err := ParseEndpoint(raw)
		if err != nil {
			return nil, err
		}
		g.endpoints = append(g.endpoints, ep)
	}
	return g, nil
}

// Policy returns the policy the guard enforces.
func (g *Guard) Policy() EgressPolicy { return g.cfg.Policy }

// Config returns the resolved egress configuration.
func (g *Guard) Config() *EgressConfig { return g.cfg }

// Allows reports whether host:port is on the allowlist, ignoring audit mode.
func (g *Guard) Allows(hostport string) bool {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = hostport, DefaultPort
	}
	return g.allowed(host, port)
}

func (g *Guard) allowed(host, port string) bool {
	if g.cfg.Policy == PolicyDenyAll {
		return false
	}
	for _, ep := range g.endpoints {
		if ep.Matches(host, port) {
			return true
		}
	}
	return false
}

// Check returns an *EgressViolationError when host:port is not allowed.
// In audit mode the violation is recorded and nil is returned.
func (g *Guard) Check(host, port string) error {
	if g.allowed(host, port) {
		return nil
	}
	blocked := g.cfg.Policy != PolicyAudit
	g.mu.Lock()
	g.violations = append(g.violations, Violation{Host: host, Port: port, Blocked: blocked, At: time.Now().UTC()})
	g.mu.Unlock()

	fields := map[string]any{"host": host, "port": port, "policy": string(g.cfg.Policy)}
	if !blocked {
		g.logger.Warn("egress outside allowlist (audit)", fields)
		return nil
	}
	g.logger.Error("egress blocked", fields)
	return &EgressViolationError{Host: host, Port: port, Policy: g.cfg.Policy}
}

// DialContext is a net.Dialer-compatible dial function that enforces the
// allowlist before connecting.
func (g *Guard) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("egress guard: %w", err)
	}
	if err := g.Check(host, port); err != nil {
		return nil, err
	}
	return g.dialer.DialContext(ctx, network, addr)
}

// Transport returns an HTTP transport whose connections go through the
// guard. Proxies are disabled so the guard sees the real destination.
func (g *Guard) Transport() *http.Transport {
	return &http.Transport{
		Proxy:                 nil,
		DialContext:           g.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Client returns an HTTP client using Transport.
func (g *Guard) Client() *http.Client {
	return &http.Client{Transport: g.Transport()}
}

// Install replaces http.DefaultTransport with the guarded transport. The
// returned func restores the previous transport.
func (g *Guard) Install() (restore func()) {
	prev := http.DefaultTransport
	http.DefaultTransport = g.Transport()
	return func() { http.DefaultTransport = prev }
}

// Violations returns a copy of the recorded violations.
func (g *Guard) Violations() []Violation {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Violation(nil), g.violations...)
}
