package sim

import (
	"errors"
	"fmt"
)

type procState int

const (
	procCreated procState = iota
	procRunning
	procSuspended
	procDone
)

// errAbandoned unwinds a routine's goroutine after the engine stopped.
var errAbandoned = errors.New("routine abandoned at shutdown")

// Process is a long-running routine driven by the Engine. Its methods must
// only be called from the routine's own goroutine.
type Process struct {
	name      string
	eng       *Engine
	resume    chan bool
	state     procState
	waitingOn string
	wakeArmed bool
}

// Name returns the routine's name.
func (p *Process) Name() string {
	return p.name
}

// Now returns the current virtual time.
func (p *Process) Now() int64 {
	return p.eng.clock
}

// Engine returns the engine driving this routine.
func (p *Process) Engine() *Engine {
	return p.eng
}

// Wait suspends the routine for d ticks. A zero delay still yields, letting
// other events at the current tick run first.
func (p *Process) Wait(d int64) {
	p.eng.Schedule(d, "resume:"+p.name, p.resumeNow)
	p.wakeArmed = true
	p.suspend(fmt.Sprintf("delay until %d", p.eng.clock+d))
}

// suspend hands the execution slot back to the engine and blocks until a
// wake event resumes this routine.
func (p *Process) suspend(reason string) {
	if p.state != procRunning {
		panic(fmt.Sprintf("suspend %s: routine is not running", p.name))
	}
	p.state = procSuspended
	p.waitingOn = reason
	p.eng.yield <- struct{}{}
	if ok := <-p.resume; !ok {
		panic(errAbandoned)
	}
}

// wake schedules the routine to resume at the current tick. Waking a routine
// that already has a pending wake is a no-op.
func (p *Process) wake() {
	if p.wakeArmed {
		return
	}
	p.wakeArmed = true
	p.eng.Schedule(0, "wake:"+p.name, p.resumeNow)
}

func (p *Process) resumeNow() {
	if p.state != procSuspended {
		panic(fmt.Sprintf("resume %s: routine is not suspended", p.name))
	}
	p.wakeArmed = false
	p.state = procRunning
	p.waitingOn = ""
	p.resume <- true
	<-p.eng.yield
}

func (p *Process) run(fn func(p *Process) error) {
	defer func() {
		if r := recover(); r != nil {
			if r != errAbandoned {
				p.eng.recordFailure(p, fmt.Errorf("panic: %v", r))
			}
		}
		p.state = procDone
		p.eng.yield <- struct{}{}
	}()
	if err := fn(p); err != nil {
		p.eng.recordFailure(p, err)
	}
}
