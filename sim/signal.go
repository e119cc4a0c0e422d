package sim

// Signal lets routines sleep until some shared state changes. Broadcast
// wakes every current waiter; waiters re-check their condition after waking.
type Signal struct {
	name    string
	waiters []*Process
}

// NewSignal creates a signal.
func NewSignal(name string) *Signal {
	return &Signal{name: name}
}

// Wait suspends until the next Broadcast.
func (s *Signal) Wait(p *Process) {
	s.waiters = append(s.waiters, p)
	p.suspend("signal " + s.name)
}

// Broadcast wakes all waiters in the order they started waiting.
func (s *Signal) Broadcast() {
	waiters := s.waiters
	s.waiters = nil
	for _, p := range waiters {
		p.wake()
	}
}

// Waiting returns the number of suspended waiters.
func (s *Signal) Waiting() int {
	return len(s.waiters)
}
