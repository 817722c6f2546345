// Package proctor watches the candidate's environment for fullscreen exits
// and loss of visibility. Violations are advisory: they are reported, never
// acted on.
package proctor

import (
	"sync"
	"time"

	"github.com/BioHazard786/Warproom/internal/protocol"
)

type ViolationType string

const (
	FullscreenExit ViolationType = "fullscreen-exit"
	VisibilityLost ViolationType = "visibility-lost"
)

// Violation is one advisory event.
type Violation struct {
	Type ViolationType `json:"type"`
	At   time.Time     `json:"at"`
}

func (v Violation) Message() string {
	switch v.Type {
	case FullscreenExit:
		return "Left full screen during the interview"
	case VisibilityLost:
		return "Switched away from the interview"
	}
	return string(v.Type)
}

// Environment reports the platform events the monitor consumes. Each
// callback is invoked once per occurrence.
type Environment interface {
	OnFullscreenExit(func())
	OnVisibilityLost(func())
}

// Sink receives violations. It is called without the monitor's lock held.
type Sink func(Violation)

// Monitor raises violations for the candidate while a session is active.
// For the host it never raises anything.
type Monitor struct {
	role protocol.Role
	sink Sink
	now  func() time.Time

	mu     sync.Mutex
	active bool
	counts map[ViolationType]int
}

func NewMonitor(role protocol.Role, env Environment, sink Sink) *Monitor {
	m := &Monitor{
		role:   role,
		sink:   sink,
		now:    time.Now,
		counts: make(map[ViolationType]int),
	}
	if env != nil {
		env.OnFullscreenExit(func() { m.raise(FullscreenExit) })
		env.OnVisibilityLost(func() { m.raise(VisibilityLost) })
	}
	return m
}

// Activate starts raising violations; call when the session becomes active.
func (m *Monitor) Activate() {
	m.mu.Lock()
	m.active = m.role == protocol.RoleCandidate
	m.mu.Unlock()
}

func (m *Monitor) Deactivate() {
	m.mu.Lock()
	m.active = false
	m.mu.Unlock()
}

func (m *Monitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Count returns how many violations of t have been raised.
func (m *Monitor) Count(t ViolationType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[t]
}

func (m *Monitor) raise(t ViolationType) {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.counts[t]++
	v := Violation{Type: t, At: m.now()}
	m.mu.Unlock()

	if m.sink != nil {
		m.sink(v)
	}
}
