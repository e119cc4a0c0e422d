package sim

import "container/heap"

// event is a callback bound to a point on the virtual clock.
type event struct {
	time int64
	seq  uint64
	name string
	fire func()
}

// EventHeap implements a priority queue with deterministic ordering.
// Ordering: timestamp → schedule sequence (FIFO among equal timestamps).
type EventHeap struct {
	events []*event
}

// NewEventHeap creates a new event heap
func NewEventHeap() *EventHeap {
	h := &EventHeap{
		events: make([]*event, 0),
	}
	heap.Init(h)
	return h
}

// Len implements heap.Interface
func (h *EventHeap) Len() int {
	return len(h.events)
}

// Less implements heap.Interface with deterministic ordering
func (h *EventHeap) Less(i, j int) bool {
	ei, ej := h.events[i], h.events[j]
	if ei.time != ej.time {
		return ei.time < ej.time
	}
	return ei.seq < ej.seq
}

// Swap implements heap.Interface
func (h *EventHeap) Swap(i, j int) {
	h.events[i], h.events[j] = h.events[j], h.events[i]
}

// Push implements heap.Interface
func (h *EventHeap) Push(x any) {
	h.events = append(h.events, x.(*event))
}

// Pop implements heap.Interface
func (h *EventHeap) Pop() any {
	old := h.events
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	h.events = old[0 : n-1]
	return item
}

func (h *EventHeap) schedule(e *event) {
	heap.Push(h, e)
}

func (h *EventHeap) popNext() *event {
	if h.Len() == 0 {
		return nil
	}
	return heap.Pop(h).(*event)
}

func (h *EventHeap) peek() *event {
	if h.Len() == 0 {
		return nil
	}
	return h.events[0]
}
