// Package registry is the single authoritative store of wagon and
// locomotive state. Coordinators read and write entities only through it:
// queues carry ids, never entity copies, and every read returns a snapshot
// that must be re-read after a suspension point.
package registry

import (
	"fmt"

	"github.com/retrofit-sim/retrofit-sim/sim"
	"github.com/retrofit-sim/retrofit-sim/sim/trace"
	"github.com/retrofit-sim/retrofit-sim/sim/track"
)

// Wagon is a wagon's state. Exactly one record exists per id for the
// whole run; Registry.Wagon hands out copies.
type Wagon struct {
	ID            string
	Train         string
	Length        float64
	NeedsRetrofit bool
	Status        WagonStatus
	// Track is the track the wagon occupies. While moving it is the
	// destination, whose capacity was reserved when the move started.
	Track         string
	ArrivalTime   int64
	RetrofitStart int64
	RetrofitEnd   int64
	Locomotive    string
	Workshop      string
	RejectReason  string
}

func (w Wagon) String() string {
	return fmt.Sprintf("Wagon: (ID: %s, Status: %s, Track: %q, Length: %.1f, Locomotive: %q, Workshop: %q)",
		w.ID, w.Status, w.Track, w.Length, w.Locomotive, w.Workshop)
}

// Move carries the optional context of a transition.
type Move struct {
	// Track is the destination for moving states.
	Track      string
	Locomotive string
	Workshop   string
	Reason     string
}

// Registry owns wagon and locomotive state, the open assignments, and the
// track occupancy that follows from wagon placement.
type Registry struct {
	now    func() int64
	tracks *track.Manager
	log    *trace.EventLog

	wagons     map[string]*Wagon
	wagonOrder []string

	locos     map[string]*Locomotive
	locoOrder []string

	assignments map[string]*Assignment
	assignOrder []string
	nextAssign  int
}

// New creates an empty registry. now supplies the virtual clock.
func New(now func() int64, tracks *track.Manager, log *trace.EventLog) *Registry {
	return &Registry{
		now:         now,
		tracks:      tracks,
		log:         log,
		wagons:      make(map[string]*Wagon),
		locos:       make(map[string]*Locomotive),
		assignments: make(map[string]*Assignment),
	}
}

// Tracks returns the track manager whose occupancy the registry drives.
func (r *Registry) Tracks() *track.Manager {
	return r.tracks
}

// Register creates a wagon in ARRIVING and emits wagon-arrived.
func (r *Registry) Register(id, train string, length float64, needsRetrofit bool) (Wagon, error) {
	if id == "" {
		return Wagon{}, fmt.Errorf("register wagon: empty id")
	}
	if _, dup := r.wagons[id]; dup {
		return Wagon{}, fmt.Errorf("register wagon %s: already registered", id)
	}
	if length <= 0 {
		return Wagon{}, fmt.Errorf("register wagon %s: length must be positive, got %g", id, length)
	}
	w := &Wagon{
		ID:            id,
		Train:         train,
		Length:        length,
		NeedsRetrofit: needsRetrofit,
		Status:        StatusArriving,
		ArrivalTime:   r.now(),
		RetrofitStart: -1,
		RetrofitEnd:   -1,
	}
	r.wagons[id] = w
	r.wagonOrder = append(r.wagonOrder, id)
	r.emitWagon(w, "", "")
	return *w, nil
}

// Wagon returns a snapshot of the wagon.
func (r *Registry) Wagon(id string) (Wagon, bool) {
	w, ok := r.wagons[id]
	if !ok {
		return Wagon{}, false
	}
	return *w, true
}

// Wagons returns snapshots of every wagon in registration order.
func (r *Registry) Wagons() []Wagon {
	out := make([]Wagon, 0, len(r.wagonOrder))
	for _, id := range r.wagonOrder {
		out = append(out, *r.wagons[id])
	}
	return out
}

// WagonsIn returns snapshots of wagons currently in status.
func (r *Registry) WagonsIn(status WagonStatus) []Wagon {
	var out []Wagon
	for _, id := range r.wagonOrder {
		if w := r.wagons[id]; w.Status == status {
			out = append(out, *w)
		}
	}
	return out
}

// Transition moves a wagon to the requested state. It validates the edge,
// updates track occupancy in the same step, and emits exactly one event.
//
// Entering a moving state places the wagon on move.Track and removes it
// from its previous track. If the destination lacks room the wagon is left
// untouched and a *sim.CapacityError is returned. Illegal edges return a
// *sim.InvalidTransitionError.
func (r *Registry) Transition(id string, to WagonStatus, move Move) (Wagon, error) {
	w, ok := r.wagons[id]
	if !ok {
		return Wagon{}, fmt.Errorf("transition %s: unknown wagon", id)
	}
	if !IsLegal(w.Status, to) {
		return *w, &sim.InvalidTransitionError{
			Entity:  id,
			Current: string(w.Status),
			Target:  string(to),
			Detail:  w.String(),
		}
	}

	from := w.Status
	if category, moving := moveDestinations[to]; moving {
		spec, ok := r.tracks.Spec(move.Track)
		if !ok {
			return *w, fmt.Errorf("transition %s to %s: unknown track %q", id, to, move.Track)
		}
		if spec.Category != category {
			return *w, &sim.InvalidTransitionError{
				Entity:  id,
				Current: string(w.Status),
				Target:  string(to),
				Detail:  fmt.Sprintf("track %s is %s, want %s", move.Track, spec.Category, category),
			}
		}
		if err := r.tracks.Place(move.Track, id, w.Length); err != nil {
			return *w, err
		}
		if w.Track != "" {
			if err := r.tracks.Remove(w.Track, id); err != nil {
				return *w, fmt.Errorf("transition %s: %w", id, err)
			}
		}
		w.Track = move.Track
	}

	switch to {
	case StatusRejected:
		w.RejectReason = move.Reason
	case StatusRetrofitting:
		w.RetrofitStart = r.now()
	case StatusRetrofitted:
		w.RetrofitEnd = r.now()
	}
	w.Locomotive = move.Locomotive
	if move.Workshop != "" {
		w.Workshop = move.Workshop
	}
	w.Status = to
	r.emitWagon(w, from, move.Reason)
	return *w, nil
}

func (r *Registry) emitWagon(w *Wagon, from WagonStatus, detail string) {
	r.log.Append(trace.Record{
		Time:       r.now(),
		Kind:       KindFor(w.Status),
		Wagon:      w.ID,
		Locomotive: w.Locomotive,
		Workshop:   w.Workshop,
		Track:      w.Track,
		From:       string(from),
		To:         string(w.Status),
		Length:     w.Length,
		Detail:     detail,
	})
}

// Stranded returns wagons not in a terminal state.
func (r *Registry) Stranded() []Wagon {
	var out []Wagon
	for _, id := range r.wagonOrder {
		if w := r.wagons[id]; !w.Status.IsTerminal() {
			out = append(out, *w)
		}
	}
	return out
}
