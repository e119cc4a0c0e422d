package sim

import "fmt"

// Resource is a pool of interchangeable units. Acquire suspends the caller
// while every unit is held; units are granted to waiters in FIFO order by
// handing the released unit straight to the longest waiter, so a routine
// arriving later can never overtake one already queued.
type Resource struct {
	name     string
	eng      *Engine
	capacity int
	held     int
	waiters  []*Process
}

// NewResource creates a pool of capacity units.
func NewResource(eng *Engine, name string, capacity int) *Resource {
	if capacity < 0 {
		panic(fmt.Sprintf("NewResource %q: negative capacity %d", name, capacity))
	}
	return &Resource{name: name, eng: eng, capacity: capacity}
}

// Acquire takes one unit, suspending until one is available.
func (r *Resource) Acquire(p *Process) {
	if r.TryAcquire() {
		return
	}
	r.waiters = append(r.waiters, p)
	p.suspend("acquire " + r.name)
}

// TryAcquire takes one unit if one is free and nobody is queued ahead.
func (r *Resource) TryAcquire() bool {
	if r.held < r.capacity && len(r.waiters) == 0 {
		r.held++
		return true
	}
	return false
}

// Release returns one unit. Releasing more units than are held is a bug in
// the caller and panics.
func (r *Resource) Release() {
	if r.held <= 0 {
		panic(fmt.Sprintf("Release %q: no unit held", r.name))
	}
	if len(r.waiters) > 0 {
		next := r.waiters[0]
		r.waiters[0] = nil
		r.waiters = r.waiters[1:]
		next.wake()
		return
	}
	r.held--
}

// Name returns the pool name.
func (r *Resource) Name() string { return r.name }

// Capacity returns the total number of units.
func (r *Resource) Capacity() int { return r.capacity }

// InUse returns the number of units currently held.
func (r *Resource) InUse() int { return r.held }

// Available returns the number of free units.
func (r *Resource) Available() int { return r.capacity - r.held }

// Waiting returns the number of routines queued in Acquire.
func (r *Resource) Waiting() int { return len(r.waiters) }
