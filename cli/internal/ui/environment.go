package ui

import "sync"

// TerminalEnvironment turns terminal events into proctoring signals. Losing
// focus counts as the window becoming hidden; shrinking below the largest
// size seen counts as leaving fullscreen. Each signal fires once until the
// terminal recovers.
type TerminalEnvironment struct {
	mu        sync.Mutex
	onExit    []func()
	onLost    []func()
	baseW     int
	baseH     int
	shrunk    bool
	unfocused bool
}

func NewTerminalEnvironment() *TerminalEnvironment {
	return &TerminalEnvironment{}
}

func (e *TerminalEnvironment) OnFullscreenExit(fn func()) {
	e.mu.Lock()
	e.onExit = append(e.onExit, fn)
	e.mu.Unlock()
}

func (e *TerminalEnvironment) OnVisibilityLost(fn func()) {
	e.mu.Lock()
	e.onLost = append(e.onLost, fn)
	e.mu.Unlock()
}

// Resize records a new terminal size.
func (e *TerminalEnvironment) Resize(width, height int) {
	e.mu.Lock()
	var fire []func()
	switch {
	case width >= e.baseW && height >= e.baseH:
		e.baseW, e.baseH = width, height
		e.shrunk = false
	case !e.shrunk:
		e.shrunk = true
		fire = e.onExit
	}
	e.mu.Unlock()
	run(fire)
}

func (e *TerminalEnvironment) Blur() {
	e.mu.Lock()
	var fire []func()
	if !e.unfocused {
		e.unfocused = true
		fire = e.onLost
	}
	e.mu.Unlock()
	run(fire)
}

func (e *TerminalEnvironment) Focus() {
	e.mu.Lock()
	e.unfocused = false
	e.mu.Unlock()
}

func run(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
