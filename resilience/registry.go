package resilience

import (
	"sort"
	"sync"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
)

// Registry holds one long-lived circuit breaker per dependency name. It is
// constructed once at process start and passed to the components that need
// protection, avoiding ad hoc global mutable singletons. Breakers are
// created lazily with the registry defaults; Configure installs a breaker
// with explicit thresholds.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker

	defaults Config
	logger   logging.Logger
	sink     core.EventSink
}

// RegistryOptions holds optional overrides for a Registry.
type RegistryOptions struct {
	// Defaults applies to breakers created lazily via Get.
	Defaults Config
	// Logger is handed to every created breaker.
	Logger logging.Logger
	// Sink is handed to every created breaker.
	Sink core.EventSink
}

// NewRegistry creates an empty breaker registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{
		Defaults: DefaultConfig(),
		Logger:   logging.NoOpLogger{},
		Sink:     core.NoopSink{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		defaults: opts.Defaults,
		logger:   opts.Logger,
		sink:     opts.Sink,
	}
}

// Get returns the breaker for a dependency, creating it with the registry
// defaults on first use. Breakers for distinct names never share state.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb := r.newBreakerLocked(name, r.defaults)
	return cb
}

// Configure installs (or replaces) the breaker for a dependency with an
// explicit configuration and returns it.
func (r *Registry) Configure(name string, cfg Config) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.newBreakerLocked(name, cfg)
}

func (r *Registry) newBreakerLocked(name string, cfg Config) *CircuitBreaker {
	cb := NewCircuitBreaker(name, func(o *BreakerOptions) {
		o.Config = cfg
		o.Logger = r.logger
		o.Sink = r.sink
	})
	r.breakers[name] = cb
	return cb
}

// Names returns the sorted dependency names with registered breakers.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshots returns the stats of every registered breaker, useful for a
// health endpoint.
func (r *Registry) Snapshots() []Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := make([]Stats, 0, len(r.breakers))
	for _, cb := range r.breakers {
		stats = append(stats, cb.Snapshot())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Dependency < stats[j].Dependency })
	return stats
}
