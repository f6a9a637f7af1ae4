package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Config holds circuit breaker settings for one upstream client.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit. Default 5.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before permitting a
	// half-open probe. Default 60s.
	Cooldown time.Duration
	// OnStateChange is invoked on every transition (for logs/metrics).
	OnStateChange func(service, from, to string)
}

// ErrOpen is returned by Allow when the circuit rejects the call.
var ErrOpen = errors.New("circuit breaker open")

// Breaker wraps a two-step gobreaker so the retry loop can report each
// outbound attempt individually: every network/5xx attempt counts once
// toward the threshold, while rate-limit and 4xx attempts are reported as
// successes and never trip the circuit.
type Breaker struct {
	service string
	cb      *gobreaker.TwoStepCircuitBreaker[any]
}

// New creates a breaker for the named service.
func New(service string, cfg Config) *Breaker {
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = 5
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        service,
		MaxRequests: 1, // a single half-open probe
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
	}
	if cfg.OnStateChange != nil {
		fn := cfg.OnStateChange
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			fn(name, from.String(), to.String())
		}
	}

	return &Breaker{
		service: service,
		cb:      gobreaker.NewTwoStepCircuitBreaker[any](settings),
	}
}

// Allow asks the breaker whether an attempt may proceed. On success it
// returns a done callback that must be called exactly once with the attempt
// outcome. When the circuit is open (or the half-open probe is taken) it
// returns ErrOpen.
func (b *Breaker) Allow() (func(success bool), error) {
	done, err := b.cb.Allow()
	if err != nil {
		return nil, ErrOpen
	}
	return done, nil
}

// State returns "closed", "open" or "half-open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// StateCode maps the state to the metrics gauge encoding
// (0=closed, 1=open, 2=half_open).
func (b *Breaker) StateCode() int {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

// Snapshot is a point-in-time view of the breaker.
type Snapshot struct {
	Service              string `json:"service"`
	State                string `json:"state"`
	Requests             uint32 `json:"requests"`
	TotalSuccesses       uint32 `json:"total_successes"`
	TotalFailures        uint32 `json:"total_failures"`
	ConsecutiveFailures  uint32 `json:"consecutive_failures"`
	ConsecutiveSuccesses uint32 `json:"consecutive_successes"`
}

// Snapshot returns the current counts and state.
func (b *Breaker) Snapshot() Snapshot {
	counts := b.cb.Counts()
	return Snapshot{
		Service:              b.service,
		State:                b.cb.State().String(),
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
	}
}
