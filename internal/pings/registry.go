// Package pings implements the ping registry and the ping assembler.
//
// The registry maps ping names to their configuration. Built-in pings
// are registered before any instrumentation-declared ping, and
// registration is a startup-time activity: afterwards the registry is
// effectively read-only and lookups are cheap.
package pings

import (
	"sync"

	"github.com/solatis/beacon/internal/types"
)

// Builtin ping names, registered on every Client before instrumentation
// gets a chance to declare its own.
const (
	MetricsPing  = "metrics"
	EventsPing   = "events"
	BaselinePing = "baseline"
)

// builtins returns the fixed built-in ping set. The baseline ping sends
// even when empty; it doubles as a liveness signal.
func builtins() []types.PingConfig {
	return []types.PingConfig{
		{Name: MetricsPing, IncludeClientID: true, SendIfEmpty: false},
		{Name: EventsPing, IncludeClientID: true, SendIfEmpty: false},
		{Name: BaselinePing, IncludeClientID: true, SendIfEmpty: true},
	}
}

// Registry maps ping names to their configuration.
type Registry struct {
	mu    sync.RWMutex
	pings map[string]types.PingConfig
	order []string
}

// NewRegistry creates a registry pre-populated with the built-in pings.
func NewRegistry() *Registry {
	r := &Registry{pings: make(map[string]types.PingConfig)}
	for _, cfg := range builtins() {
		r.Register(cfg)
	}
	return r
}

// Register adds a ping configuration. A duplicate name returns
// ErrDuplicatePing and keeps the first registration; callers record the
// error and continue, they never crash the host over it.
func (r *Registry) Register(cfg types.PingConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pings[cfg.Name]; exists {
		return types.ErrDuplicatePing
	}
	r.pings[cfg.Name] = cfg
	r.order = append(r.order, cfg.Name)
	return nil
}

// Lookup returns the configuration for a ping name.
func (r *Registry) Lookup(name string) (types.PingConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.pings[name]
	return cfg, ok
}

// ListAll returns every registered ping in registration order.
func (r *Registry) ListAll() []types.PingConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.PingConfig, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.pings[name])
	}
	return out
}
