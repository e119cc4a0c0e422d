// Package fleet manages the count-based resources the coordinators contend
// over: workshop stations and locomotives. Both are built on sim.Resource;
// the registry records an assignment for every unit handed out.
package fleet

import (
	"fmt"
	"sort"

	"github.com/retrofit-sim/retrofit-sim/sim"
	"github.com/retrofit-sim/retrofit-sim/sim/registry"
	"github.com/retrofit-sim/retrofit-sim/sim/track"
)

// WorkshopSpec describes a workshop.
type WorkshopSpec struct {
	ID           string
	Track        string
	Stations     int
	RetrofitTime int64
	// Jitter is the fractional spread applied to RetrofitTime, in [0, 1).
	Jitter float64
}

type workshop struct {
	spec     WorkshopSpec
	stations *sim.Resource
}

// Workshops owns the station pools of every workshop.
type Workshops struct {
	reg      *registry.Registry
	byID     map[string]*workshop
	order    []string
	released func()
}

// NewWorkshops validates the specs against the track layout and creates
// one station pool per workshop.
func NewWorkshops(eng *sim.Engine, reg *registry.Registry, specs []WorkshopSpec) (*Workshops, error) {
	w := &Workshops{reg: reg, byID: make(map[string]*workshop, len(specs))}
	onTrack := map[string]string{}
	for i, s := range specs {
		field := fmt.Sprintf("workshops[%d]", i)
		if s.ID == "" {
			return nil, sim.Configf(field, "id must not be empty")
		}
		if _, dup := w.byID[s.ID]; dup {
			return nil, sim.Configf(field, "duplicate workshop id %q", s.ID)
		}
		spec, ok := reg.Tracks().Spec(s.Track)
		if !ok {
			return nil, sim.Configf(field, "unknown track %q", s.Track)
		}
		if spec.Category != track.CategoryWorkshop {
			return nil, sim.Configf(field, "track %s is %s, want workshop", s.Track, spec.Category)
		}
		if other, taken := onTrack[s.Track]; taken {
			return nil, sim.Configf(field, "track %s already hosts workshop %s", s.Track, other)
		}
		if s.Stations < 1 {
			return nil, sim.Configf(field, "stations must be at least 1, got %d", s.Stations)
		}
		if s.RetrofitTime < 0 {
			return nil, sim.Configf(field, "retrofit_time must be non-negative, got %d", s.RetrofitTime)
		}
		if s.Jitter < 0 || s.Jitter >= 1 {
			return nil, sim.Configf(field, "retrofit_jitter must be in [0, 1), got %g", s.Jitter)
		}
		onTrack[s.Track] = s.ID
		w.byID[s.ID] = &workshop{spec: s, stations: sim.NewResource(eng, "stations:"+s.ID, s.Stations)}
		w.order = append(w.order, s.ID)
	}
	return w, nil
}

// OnRelease registers a hook invoked after a station is freed.
func (w *Workshops) OnRelease(fn func()) {
	w.released = fn
}

// IDs returns workshop ids in declaration order.
func (w *Workshops) IDs() []string {
	return append([]string(nil), w.order...)
}

// Spec returns a workshop's description.
func (w *Workshops) Spec(id string) (WorkshopSpec, bool) {
	ws, ok := w.byID[id]
	if !ok {
		return WorkshopSpec{}, false
	}
	return ws.spec, true
}

// Available returns the number of free stations at a workshop.
func (w *Workshops) Available(id string) int {
	if ws, ok := w.byID[id]; ok {
		return ws.stations.Available()
	}
	return 0
}

// Busy returns the number of stations in use at a workshop.
func (w *Workshops) Busy(id string) int {
	if ws, ok := w.byID[id]; ok {
		return ws.stations.InUse()
	}
	return 0
}

// Pick returns the workshop with the most free stations, ties broken by
// declaration order. It returns false when every station is busy.
func (w *Workshops) Pick() (string, bool) {
	ranked := w.Ranked()
	if len(ranked) == 0 {
		return "", false
	}
	return ranked[0], true
}

// Ranked returns the workshops with at least one free station, most free
// stations first, ties broken by declaration order.
func (w *Workshops) Ranked() []string {
	var ids []string
	for _, id := range w.order {
		if w.byID[id].stations.Available() > 0 {
			ids = append(ids, id)
		}
	}
	sort.SliceStable(ids, func(i, j int) bool {
		return w.byID[ids[i]].stations.Available() > w.byID[ids[j]].stations.Available()
	})
	return ids
}

// Stations returns the station count of every workshop.
func (w *Workshops) Stations() map[string]int {
	out := make(map[string]int, len(w.order))
	for _, id := range w.order {
		out[id] = w.byID[id].spec.Stations
	}
	return out
}

// Acquire takes a station at workshop for wagonID, suspending p until one
// is free, and opens the matching assignment.
func (w *Workshops) Acquire(p *sim.Process, workshopID, wagonID string) (registry.Assignment, error) {
	ws, ok := w.byID[workshopID]
	if !ok {
		return registry.Assignment{}, fmt.Errorf("acquire station: unknown workshop %q", workshopID)
	}
	ws.stations.Acquire(p)
	return w.reg.OccupyStation(workshopID, wagonID), nil
}

// Release closes a station assignment and frees the station.
func (w *Workshops) Release(a registry.Assignment) error {
	ws, ok := w.byID[a.Resource]
	if !ok {
		return fmt.Errorf("release station: unknown workshop %q", a.Resource)
	}
	if err := w.reg.ReleaseStation(a.ID); err != nil {
		return err
	}
	ws.stations.Release()
	if w.released != nil {
		w.released()
	}
	return nil
}
