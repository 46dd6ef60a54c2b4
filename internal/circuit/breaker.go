package circuit

import (
	"fmt"
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // Calls pass through
	StateOpen     BreakerState = "open"      // Calls rejected until cooldown ends
	StateHalfOpen BreakerState = "half_open" // One probe call allowed
)

// Config holds circuit breaker configuration
type Config struct {
	Enabled          bool          `json:"enabled"`
	FailureThreshold int           `json:"failure_threshold"` // Consecutive failures before tripping
	Cooldown         time.Duration `json:"cooldown"`
}

// DefaultConfig returns safe defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled:          true,
		FailureThreshold: 3,
		Cooldown:         time.Minute,
	}
}

// CircuitBreaker stops calling an upstream after repeated failures
type CircuitBreaker struct {
	name                string
	config              *Config
	state               BreakerState
	consecutiveFailures int
	totalFailures       int64
	totalSuccesses      int64
	lastTripTime        time.Time
	tripReason          string
	probeInFlight       bool
	mu                  sync.Mutex
	onTrip              func(name, reason string)
	onReset             func(name string)
	now                 func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, config *Config) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	return &CircuitBreaker{
		name:   name,
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
}

// OnTrip sets callback for when breaker trips
func (cb *CircuitBreaker) OnTrip(handler func(name, reason string)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onTrip = handler
}

// OnReset sets callback for when breaker closes again
func (cb *CircuitBreaker) OnReset(handler func(name string)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onReset = handler
}

// Allow reports whether a call may be attempted. In half-open state only a
// single probe is let through until its result is recorded.
func (cb *CircuitBreaker) Allow() (bool, string) {
	if !cb.config.Enabled {
		return true, ""
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		elapsed := cb.now().Sub(cb.lastTripTime)
		if elapsed < cb.config.Cooldown {
			remaining := cb.config.Cooldown - elapsed
			return false, fmt.Sprintf("circuit breaker %s open, cooldown remaining: %v (reason: %s)",
				cb.name, remaining.Round(time.Second), cb.tripReason)
		}
		cb.state = StateHalfOpen
		cb.probeInFlight = true
		return true, ""
	case StateHalfOpen:
		if cb.probeInFlight {
			return false, fmt.Sprintf("circuit breaker %s half-open, probe in flight", cb.name)
		}
		cb.probeInFlight = true
	}
	return true, ""
}

// RecordSuccess records a successful call
func (cb *CircuitBreaker) RecordSuccess() {
	if !cb.config.Enabled {
		return
	}

	cb.mu.Lock()
	cb.totalSuccesses++
	cb.consecutiveFailures = 0
	cb.probeInFlight = false
	recovered := cb.state != StateClosed
	cb.state = StateClosed
	cb.tripReason = ""
	onReset := cb.onReset
	cb.mu.Unlock()

	if recovered && onReset != nil {
		go onReset(cb.name)
	}
}

// RecordFailure records a failed call and trips the breaker when the
// threshold is reached or a half-open probe fails.
func (cb *CircuitBreaker) RecordFailure(err error) {
	if !cb.config.Enabled {
		return
	}

	cb.mu.Lock()
	cb.totalFailures++
	cb.consecutiveFailures++
	cb.probeInFlight = false

	reason := "upstream failure"
	if err != nil {
		reason = err.Error()
	}

	tripped := false
	if cb.state == StateHalfOpen || cb.consecutiveFailures >= cb.config.FailureThreshold {
		if cb.state != StateOpen {
			tripped = true
		}
		cb.state = StateOpen
		cb.lastTripTime = cb.now()
		cb.tripReason = reason
	}
	onTrip := cb.onTrip
	cb.mu.Unlock()

	if tripped && onTrip != nil {
		go onTrip(cb.name, reason)
	}
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker closed
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.consecutiveFailures = 0
	cb.probeInFlight = false
	cb.tripReason = ""
}

// GetStats returns current statistics
func (cb *CircuitBreaker) GetStats() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return map[string]interface{}{
		"name":                 cb.name,
		"state":                cb.state,
		"consecutive_failures": cb.consecutiveFailures,
		"total_failures":       cb.totalFailures,
		"total_successes":      cb.totalSuccesses,
		"trip_reason":          cb.tripReason,
		"last_trip_time":       cb.lastTripTime,
	}
}

// Group holds one breaker per upstream name
type Group struct {
	config   *Config
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewGroup creates an empty breaker group sharing one configuration
func NewGroup(config *Config) *Group {
	if config == nil {
		config = DefaultConfig()
	}
	return &Group{config: config, breakers: make(map[string]*CircuitBreaker)}
}

// For returns the breaker for name, creating it on first use
func (g *Group) For(name string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	cb, ok := g.breakers[name]
	if !ok {
		cb = NewCircuitBreaker(name, g.config)
		g.breakers[name] = cb
	}
	return cb
}

// Stats returns the statistics of every breaker in the group
func (g *Group) Stats() []map[string]interface{} {
	g.mu.Lock()
	list := make([]*CircuitBreaker, 0, len(g.breakers))
	for _, cb := range g.breakers {
		list = append(list, cb)
	}
	g.mu.Unlock()

	out := make([]map[string]interface{}, 0, len(list))
	for _, cb := range list {
		out = append(out, cb.GetStats())
	}
	return out
}
