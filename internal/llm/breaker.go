package llm

import (
	"sync"
	"time"
)

// CircuitState is the current state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed allows all calls through.
	CircuitClosed CircuitState = iota

	// CircuitOpen rejects calls without network I/O until the cooldown elapses.
	CircuitOpen

	// CircuitHalfOpen allows a single probe call after the cooldown; a
	// success closes the circuit, a failure re-opens it.
	CircuitHalfOpen
)

// String returns a human-readable name for the state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds the parameters for a circuit breaker.
type CircuitBreakerConfig struct {
	// ConsecutiveThreshold is the number of consecutive failures that opens
	// the circuit.
	ConsecutiveThreshold int

	// Cooldown is how long the circuit stays open before a probe is allowed.
	Cooldown time.Duration
}

// CircuitBreaker tracks consecutive failures for one agent/provider pair.
// After ConsecutiveThreshold consecutive failures the circuit opens and
// Allow returns ErrCircuitOpen until the cooldown elapses; the first call
// after the cooldown is a probe whose outcome closes or re-opens the
// circuit. Safe for concurrent use.
type CircuitBreaker struct {
	mu          sync.Mutex
	cfg         CircuitBreakerConfig
	state       CircuitState
	consecutive int
	openedAt    time.Time
	now         func() time.Time
}

// NewCircuitBreaker creates a closed CircuitBreaker with the given config.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.ConsecutiveThreshold <= 0 {
		cfg.ConsecutiveThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		cfg:   cfg,
		state: CircuitClosed,
		now:   time.Now,
	}
}

// Allow reports whether a call may proceed. It returns ErrCircuitOpen when
// the circuit is open and the cooldown has not elapsed. When the cooldown
// has elapsed it transitions to half-open and admits one probe call.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return nil
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) >= cb.cfg.Cooldown {
			cb.state = CircuitHalfOpen
			return nil
		}
		return ErrCircuitOpen
	}
	return nil
}

// RecordSuccess resets the failure count and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutive = 0
	cb.state = CircuitClosed
}

// RecordFailure counts a failure. It returns true when this failure opened
// the circuit (threshold reached, or a half-open probe failed).
func (cb *CircuitBreaker) RecordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutive++

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
		cb.openedAt = cb.now()
		return true
	}

	if cb.state == CircuitClosed && cb.consecutive >= cb.cfg.ConsecutiveThreshold {
		cb.state = CircuitOpen
		cb.openedAt = cb.now()
		return true
	}

	return false
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// BreakerRegistry provides named circuit breakers for agent/provider pairs.
// It is safe for concurrent use and lazily creates breakers on first access.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	def      CircuitBreakerConfig
	configs  map[string]CircuitBreakerConfig
}

// NewBreakerRegistry creates a BreakerRegistry whose breakers use def
// unless a per-name config is supplied via configs.
func NewBreakerRegistry(def CircuitBreakerConfig, configs map[string]CircuitBreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		def:      def,
		configs:  configs,
	}
}

// Get returns the circuit breaker for the given name, creating it with the
// configured (or default) parameters if needed.
func (r *BreakerRegistry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cfg, ok := r.configs[name]
	if !ok {
		cfg = r.def
	}

	cb := NewCircuitBreaker(cfg)
	r.breakers[name] = cb
	return cb
}

// State returns the current state of the named breaker, or CircuitClosed
// if the breaker has not been created yet.
func (r *BreakerRegistry) State(name string) CircuitState {
	r.mu.Lock()
	cb, ok := r.breakers[name]
	r.mu.Unlock()

	if !ok {
		return CircuitClosed
	}
	return cb.State()
}
