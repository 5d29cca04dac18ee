package services

import "context"

// Checker reports whether a dependency is available
type Checker interface {
	// HealthCheck returns nil when the dependency is reachable
	HealthCheck(ctx context.Context) error

	// Type returns the dependency kind, e.g. "record-store"
	Type() string
}

// Detailer is implemented by checkers that expose extra diagnostics
type Detailer interface {
	Details() map[string]any
}

// Pinger is anything with a context-aware Ping
type Pinger interface {
	Ping(ctx context.Context) error
}

// BaseChecker provides common functionality for checkers
type BaseChecker struct {
	checkType string
}

// Type returns the checker type
func (c *BaseChecker) Type() string {
	return c.checkType
}

// PingChecker adapts a Pinger into a Checker
type PingChecker struct {
	BaseChecker
	target Pinger
}

// NewPingChecker wraps target under the given type name
func NewPingChecker(checkType string, target Pinger) *PingChecker {
	return &PingChecker{
		BaseChecker: BaseChecker{checkType: checkType},
		target:      target,
	}
}

// HealthCheck pings the target
func (c *PingChecker) HealthCheck(ctx context.Context) error {
	return c.target.Ping(ctx)
}

// Status is the outcome of one health check
type Status struct {
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	Healthy   bool           `json:"healthy"`
	Error     string         `json:"error,omitempty"`
	LatencyMs int64          `json:"latencyMs"`
	Details   map[string]any `json:"details,omitempty"`
}
