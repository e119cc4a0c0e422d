package fleet

import (
	"fmt"

	"github.com/retrofit-sim/retrofit-sim/sim"
	"github.com/retrofit-sim/retrofit-sim/sim/registry"
	"github.com/retrofit-sim/retrofit-sim/sim/services"
)

// Selection decides which idle locomotive serves a request.
type Selection int

const (
	// FirstAvailable takes the idle locomotive declared first.
	FirstAvailable Selection = iota
	// Nearest takes the idle locomotive with the shortest travel time to the
	// pickup track, ties broken by declaration order.
	Nearest
)

// ValidSelections lists accepted locomotive selection names.
var ValidSelections = []string{"first-available", "nearest"}

func (s Selection) String() string {
	switch s {
	case FirstAvailable:
		return "first-available"
	case Nearest:
		return "nearest"
	default:
		return fmt.Sprintf("Selection(%d)", int(s))
	}
}

// ParseSelection converts a configuration name; empty selects FirstAvailable.
func ParseSelection(name string) (Selection, error) {
	switch name {
	case "", "first-available":
		return FirstAvailable, nil
	case "nearest":
		return Nearest, nil
	default:
		return FirstAvailable, fmt.Errorf("unknown locomotive selection %q; valid: first-available, nearest", name)
	}
}

// Locomotives is the identity-aware locomotive pool. A counting resource
// sized to the fleet serializes access; the registry tracks which
// locomotive holds which assignment and where it stands.
type Locomotives struct {
	reg    *registry.Registry
	routes *services.RouteTable
	policy Selection
	pool   *sim.Resource
}

// NewLocomotives creates a pool over every locomotive already added to reg.
func NewLocomotives(eng *sim.Engine, reg *registry.Registry, routes *services.RouteTable, policy Selection) *Locomotives {
	return &Locomotives{
		reg:    reg,
		routes: routes,
		policy: policy,
		pool:   sim.NewResource(eng, "locomotives", len(reg.Locomotives())),
	}
}

// Size returns the number of locomotives.
func (l *Locomotives) Size() int {
	return l.pool.Capacity()
}

// Waiting returns the number of routines queued for a locomotive.
func (l *Locomotives) Waiting() int {
	return l.pool.Waiting()
}

// Acquire suspends p until a locomotive is free, then allocates one to
// operation. pickup is the track the locomotive will head to first.
func (l *Locomotives) Acquire(p *sim.Process, pickup, operation string) (registry.Locomotive, error) {
	l.pool.Acquire(p)
	id, err := l.choose(pickup)
	if err != nil {
		l.pool.Release()
		return registry.Locomotive{}, err
	}
	if _, err := l.reg.AllocateLocomotive(id, operation); err != nil {
		l.pool.Release()
		return registry.Locomotive{}, err
	}
	loco, _ := l.reg.Locomotive(id)
	return loco, nil
}

func (l *Locomotives) choose(pickup string) (string, error) {
	idle := l.reg.IdleLocomotives()
	if len(idle) == 0 {
		return "", fmt.Errorf("locomotive pool granted a unit but no locomotive is idle")
	}
	if l.policy == FirstAvailable {
		return idle[0].ID, nil
	}
	best, bestTime := "", int64(-1)
	for _, loco := range idle {
		d, err := l.routes.TravelTime(loco.Track, pickup)
		if err != nil {
			return "", err
		}
		if bestTime < 0 || d < bestTime {
			best, bestTime = loco.ID, d
		}
	}
	return best, nil
}

// Travel moves an assigned locomotive to track, suspending p for the
// travel time. Travelling to the track it stands on is free and emits
// nothing.
func (l *Locomotives) Travel(p *sim.Process, id, to string) error {
	loco, ok := l.reg.Locomotive(id)
	if !ok {
		return fmt.Errorf("travel: unknown locomotive %q", id)
	}
	if loco.Track == to {
		return nil
	}
	d, err := l.routes.TravelTime(loco.Track, to)
	if err != nil {
		return fmt.Errorf("travel %s: %w", id, err)
	}
	if err := l.reg.DepartLocomotive(id, to); err != nil {
		return err
	}
	p.Wait(d)
	return l.reg.ArriveLocomotive(id, to)
}

// Release returns a locomotive to the pool.
func (l *Locomotives) Release(id string) error {
	if err := l.reg.ReleaseLocomotive(id); err != nil {
		return err
	}
	l.pool.Release()
	return nil
}
