// Implements Store, the handoff queue between coordinators.

package sim

import (
	"fmt"
	"strings"
)

type storeGetter[T any] struct {
	p    *Process
	item T
}

type storePutter[T any] struct {
	p    *Process
	item T
}

// Store is a FIFO handoff queue. Put appends and wakes the longest-waiting
// Get; Get suspends while the queue is empty. A positive capacity bounds the
// queue and makes Put suspend while it is full. A Store is only a handoff
// channel: it is never consulted to find out where an entity is.
type Store[T any] struct {
	name     string
	capacity int
	items    []T
	getters  []*storeGetter[T]
	putters  []*storePutter[T]
}

// NewStore creates a queue. capacity <= 0 means unbounded.
func NewStore[T any](name string, capacity int) *Store[T] {
	return &Store[T]{name: name, capacity: capacity}
}

// Put appends item, suspending while a bounded queue is full.
func (s *Store[T]) Put(p *Process, item T) {
	if len(s.getters) > 0 {
		g := s.getters[0]
		s.getters[0] = nil
		s.getters = s.getters[1:]
		g.item = item
		g.p.wake()
		return
	}
	if s.capacity > 0 && len(s.items) >= s.capacity {
		if p == nil {
			panic(fmt.Sprintf("Put %q: queue full and no routine to suspend", s.name))
		}
		s.putters = append(s.putters, &storePutter[T]{p: p, item: item})
		p.suspend("put " + s.name)
		return
	}
	s.items = append(s.items, item)
}

// Get removes the head item, suspending while the queue is empty.
func (s *Store[T]) Get(p *Process) T {
	if item, ok := s.TryGet(); ok {
		return item
	}
	g := &storeGetter[T]{p: p}
	s.getters = append(s.getters, g)
	p.suspend("get " + s.name)
	return g.item
}

// TryGet removes the head item without suspending.
func (s *Store[T]) TryGet() (T, bool) {
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	item := s.items[0]
	s.items[0] = zero
	s.items = s.items[1:]
	if len(s.putters) > 0 {
		w := s.putters[0]
		s.putters[0] = nil
		s.putters = s.putters[1:]
		s.items = append(s.items, w.item)
		w.p.wake()
	}
	return item, true
}

// Len returns the number of queued items.
func (s *Store[T]) Len() int {
	return len(s.items)
}

// Name returns the queue name.
func (s *Store[T]) Name() string {
	return s.name
}

func (s *Store[T]) String() string {
	var sb strings.Builder
	sb.WriteString(s.name)
	sb.WriteString("[")
	for i, val := range s.items {
		sb.WriteString(fmt.Sprint(val))
		if i < len(s.items)-1 {
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}
