// sim/engine.go
package sim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// NoHorizon runs the event loop until the event heap is exhausted.
const NoHorizon int64 = math.MaxInt64

// RunStatus classifies how a run ended.
type RunStatus string

const (
	// StatusCompleted means the event heap was exhausted before the horizon.
	StatusCompleted RunStatus = "completed"
	// StatusPartial means the horizon stopped the run with events still pending.
	// Routines in flight were abandoned, not rolled back.
	StatusPartial RunStatus = "partial"
	// StatusFailed means at least one routine aborted with an error or panic.
	StatusFailed RunStatus = "failed"
)

// ProcessFailure records a routine that aborted.
type ProcessFailure struct {
	Process string
	Time    int64
	Err     error
}

// Outcome describes how Run ended.
type Outcome struct {
	Status   RunStatus
	Clock    int64
	Events   int
	Failures []ProcessFailure
	// HorizonHit is set when the horizon stopped the loop with events still
	// pending, whatever the status. A failed run can also be partial.
	HorizonHit bool
	// Suspended lists routines still blocked when the loop stopped, with what
	// they were blocked on. Idle coordinators waiting on an empty queue show up
	// here after a completed run; that is expected.
	Suspended []string
}

// Engine owns the virtual clock and the event heap. It is not safe for use
// from multiple goroutines except through the Process handoff protocol.
type Engine struct {
	clock    int64
	queue    *EventHeap
	nextSeq  uint64
	executed int

	yield     chan struct{}
	processes []*Process
	failures  []ProcessFailure
	running   bool
	stopped   bool

	log *logrus.Entry
}

// NewEngine creates an engine at tick 0. A nil logger falls back to the
// standard logrus logger.
func NewEngine(log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		queue: NewEventHeap(),
		yield: make(chan struct{}),
		log:   log,
	}
}

// Now returns the current virtual time in ticks.
func (e *Engine) Now() int64 {
	return e.clock
}

// Logger returns the engine's log entry.
func (e *Engine) Logger() *logrus.Entry {
	return e.log
}

// Stopped reports whether Run has returned. Primitives stop scheduling
// wakeups once the engine is stopped.
func (e *Engine) Stopped() bool {
	return e.stopped
}

// Schedule runs fn after delay ticks. Events at the same tick fire in the
// order they were scheduled.
func (e *Engine) Schedule(delay int64, name string, fn func()) {
	if delay < 0 {
		panic(fmt.Sprintf("Schedule %q: negative delay %d", name, delay))
	}
	if fn == nil {
		panic(fmt.Sprintf("Schedule %q: fn must not be nil", name))
	}
	if e.stopped {
		return
	}
	e.nextSeq++
	e.queue.schedule(&event{
		time: e.clock + delay,
		seq:  e.nextSeq,
		name: name,
		fire: fn,
	})
}

// Process registers a routine that starts at the current tick. The routine
// runs until fn returns; a returned error or a panic aborts only this
// routine and is recorded as a ProcessFailure.
func (e *Engine) Process(name string, fn func(p *Process) error) *Process {
	p := &Process{
		name:   name,
		eng:    e,
		resume: make(chan bool),
		state:  procCreated,
	}
	e.processes = append(e.processes, p)
	e.Schedule(0, "start:"+name, func() {
		p.state = procRunning
		go p.run(fn)
		<-e.yield
	})
	return p
}

// Run executes events until the heap is empty or the next event lies beyond
// until. Pass NoHorizon to run to exhaustion. Routines still suspended when
// the loop stops are abandoned and their goroutines released.
func (e *Engine) Run(until int64) Outcome {
	if e.running || e.stopped {
		panic("Run: engine can only be run once")
	}
	e.running = true
	horizonHit := false

	for e.queue.Len() > 0 {
		if next := e.queue.peek(); next.time > until {
			horizonHit = true
			break
		}
		ev := e.queue.popNext()
		if ev.time < e.clock {
			panic(fmt.Sprintf("Clock went backwards: %d < %d", ev.time, e.clock))
		}
		e.clock = ev.time
		e.log.Tracef("[tick %07d] Executing %s", e.clock, ev.name)
		ev.fire()
		e.executed++
	}
	if horizonHit {
		e.clock = until
	}

	out := Outcome{
		Status:     StatusCompleted,
		Clock:      e.clock,
		Events:     e.executed,
		Failures:   append([]ProcessFailure(nil), e.failures...),
		HorizonHit: horizonHit,
	}
	for _, p := range e.processes {
		if p.state == procSuspended {
			out.Suspended = append(out.Suspended, fmt.Sprintf("%s (%s)", p.name, p.waitingOn))
		}
	}
	switch {
	case len(e.failures) > 0:
		out.Status = StatusFailed
	case horizonHit:
		out.Status = StatusPartial
	}

	e.stopped = true
	e.abandon()
	e.log.Infof("[tick %07d] Simulation ended: status=%s horizon_hit=%t events=%d", e.clock, out.Status, out.HorizonHit, out.Events)
	return out
}

// abandon unblocks every suspended routine so its goroutine exits. No state
// is rolled back.
func (e *Engine) abandon() {
	for _, p := range e.processes {
		if p.state != procSuspended {
			continue
		}
		p.resume <- false
		<-e.yield
	}
}

func (e *Engine) recordFailure(p *Process, err error) {
	e.failures = append(e.failures, ProcessFailure{Process: p.name, Time: e.clock, Err: err})
	e.log.WithField("process", p.name).Errorf("[tick %07d] routine aborted: %v", e.clock, err)
}
