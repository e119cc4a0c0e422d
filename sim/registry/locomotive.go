package registry

import (
	"fmt"

	"github.com/retrofit-sim/retrofit-sim/sim"
	"github.com/retrofit-sim/retrofit-sim/sim/trace"
)

// LocoStatus is a locomotive's state.
type LocoStatus string

const (
	LocoIdle     LocoStatus = "idle"
	LocoAssigned LocoStatus = "assigned"
	LocoEnRoute  LocoStatus = "en-route"
)

// Locomotive is a locomotive's state. A locomotive has at most one open
// assignment, referenced by Assignment while it is not idle.
type Locomotive struct {
	ID         string
	HomeTrack  string
	Track      string
	Status     LocoStatus
	Assignment string
	// BusyTicks accumulates time spent between allocation and release.
	BusyTicks int64
	since     int64
}

// AddLocomotive registers an idle locomotive parked on its home track.
func (r *Registry) AddLocomotive(id, homeTrack string) error {
	if id == "" {
		return fmt.Errorf("add locomotive: empty id")
	}
	if _, dup := r.locos[id]; dup {
		return fmt.Errorf("add locomotive %s: already registered", id)
	}
	if !r.tracks.Has(homeTrack) {
		return fmt.Errorf("add locomotive %s: unknown home track %q", id, homeTrack)
	}
	r.locos[id] = &Locomotive{ID: id, HomeTrack: homeTrack, Track: homeTrack, Status: LocoIdle}
	r.locoOrder = append(r.locoOrder, id)
	return nil
}

// Locomotive returns a snapshot of the locomotive.
func (r *Registry) Locomotive(id string) (Locomotive, bool) {
	l, ok := r.locos[id]
	if !ok {
		return Locomotive{}, false
	}
	return *l, true
}

// Locomotives returns snapshots of every locomotive in declaration order.
func (r *Registry) Locomotives() []Locomotive {
	out := make([]Locomotive, 0, len(r.locoOrder))
	for _, id := range r.locoOrder {
		out = append(out, *r.locos[id])
	}
	return out
}

// IdleLocomotives returns snapshots of idle locomotives in declaration order.
func (r *Registry) IdleLocomotives() []Locomotive {
	var out []Locomotive
	for _, id := range r.locoOrder {
		if l := r.locos[id]; l.Status == LocoIdle {
			out = append(out, *l)
		}
	}
	return out
}

func (r *Registry) locoTransition(id string, from, to LocoStatus) (*Locomotive, error) {
	l, ok := r.locos[id]
	if !ok {
		return nil, fmt.Errorf("locomotive %s: unknown", id)
	}
	if l.Status != from {
		return nil, &sim.InvalidTransitionError{
			Entity:  id,
			Current: string(l.Status),
			Target:  string(to),
			Detail:  fmt.Sprintf("assignment %q on %s", l.Assignment, l.Track),
		}
	}
	l.Status = to
	return l, nil
}

// AllocateLocomotive assigns an idle locomotive to operation and opens the
// matching assignment.
func (r *Registry) AllocateLocomotive(id, operation string) (Assignment, error) {
	l, err := r.locoTransition(id, LocoIdle, LocoAssigned)
	if err != nil {
		return Assignment{}, err
	}
	a := r.openAssignment(ResourceLocomotive, id, operation)
	l.Assignment = a.ID
	l.since = r.now()
	r.emitLoco(trace.LocomotiveAllocated, l, operation)
	return *a, nil
}

// DepartLocomotive marks an assigned locomotive as travelling to track.
func (r *Registry) DepartLocomotive(id, to string) error {
	l, err := r.locoTransition(id, LocoAssigned, LocoEnRoute)
	if err != nil {
		return err
	}
	r.emitLoco(trace.LocomotiveDeparted, l, fmt.Sprintf("%s -> %s", l.Track, to))
	return nil
}

// ArriveLocomotive marks a travelling locomotive as standing on track.
func (r *Registry) ArriveLocomotive(id, track string) error {
	if !r.tracks.Has(track) {
		return fmt.Errorf("locomotive %s: unknown track %q", id, track)
	}
	l, err := r.locoTransition(id, LocoEnRoute, LocoAssigned)
	if err != nil {
		return err
	}
	l.Track = track
	r.emitLoco(trace.LocomotiveArrived, l, "")
	return nil
}

// ReleaseLocomotive returns an assigned locomotive to idle and closes its
// assignment.
func (r *Registry) ReleaseLocomotive(id string) error {
	// The assignment closes first so a failure leaves the locomotive assigned.
	if l, ok := r.locos[id]; ok && l.Status == LocoAssigned {
		if err := r.closeAssignment(l.Assignment); err != nil {
			return err
		}
	}
	l, err := r.locoTransition(id, LocoAssigned, LocoIdle)
	if err != nil {
		return err
	}
	l.BusyTicks += r.now() - l.since
	l.Assignment = ""
	r.emitLoco(trace.LocomotiveReleased, l, "")
	return nil
}

func (r *Registry) emitLoco(kind trace.Kind, l *Locomotive, detail string) {
	r.log.Append(trace.Record{
		Time:       r.now(),
		Kind:       kind,
		Locomotive: l.ID,
		Track:      l.Track,
		Detail:     detail,
	})
}
