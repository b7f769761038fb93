// Package supervisor retries the ingestion binding after it goes away.
package supervisor

import (
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// DefaultInterval is the time between reconnect attempts.
const DefaultInterval = 5 * time.Second

// State represents the supervisor state.
type State int

const (
	StateIdle         State = iota // Binding is healthy or was never lost
	StateReconnecting              // Waiting to retry the binding
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Supervisor invokes a reconnect action on a fixed interval while the
// binding is down. It is driven by the host tick and never sleeps.
type Supervisor struct {
	mu sync.Mutex

	interval    time.Duration
	reconnect   func() error
	state       State
	lastAttempt time.Time
	attempts    int
	inFlight    bool
}

// New creates an idle supervisor. A non-positive interval uses DefaultInterval.
func New(interval time.Duration, reconnect func() error) *Supervisor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Supervisor{
		interval:  interval,
		reconnect: reconnect,
		state:     StateIdle,
	}
}

// OnDisconnected enters Reconnecting. The first attempt happens one interval
// after now. Calls while already reconnecting are no-ops.
func (s *Supervisor) OnDisconnected(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateReconnecting {
		return
	}
	s.state = StateReconnecting
	s.lastAttempt = now
	zlog.Info().Msgf("supervisor: binding lost, retrying every %s", s.interval)
}

// OnConnected returns to Idle.
func (s *Supervisor) OnConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateIdle {
		return
	}
	zlog.Info().Msgf("supervisor: reconnected after %d attempt(s)", s.attempts)
	s.state = StateIdle
	s.attempts = 0
}

// Tick runs one reconnect attempt if reconnecting and the interval has
// elapsed since the last attempt. It reports whether an attempt was made.
func (s *Supervisor) Tick(now time.Time) bool {
	s.mu.Lock()
	if s.state != StateReconnecting || s.inFlight || now.Sub(s.lastAttempt) < s.interval {
		s.mu.Unlock()
		return false
	}
	s.inFlight = true
	s.lastAttempt = now
	s.attempts++
	attempt := s.attempts
	s.mu.Unlock()

	// The action may publish a connected event, which re-enters OnConnected.
	err := s.reconnect()

	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()

	if err != nil {
		zlog.Warn().Msgf("supervisor: reconnect attempt %d failed: %v", attempt, err)
	}
	return true
}

// State returns the supervisor state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempts returns the number of attempts since the binding was lost.
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}
