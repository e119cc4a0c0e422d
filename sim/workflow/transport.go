package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/retrofit-sim/retrofit-sim/sim"
	"github.com/retrofit-sim/retrofit-sim/sim/registry"
	"github.com/retrofit-sim/retrofit-sim/sim/services"
	"github.com/retrofit-sim/retrofit-sim/sim/track"
)

// leg is a transport stage between two track categories.
type leg struct {
	name    string
	in      *sim.Store[string]
	out     *sim.Store[string] // nil for the last stage
	ready   registry.WagonStatus
	moving  registry.WagonStatus
	arrived registry.WagonStatus
	dest    track.Category
	// hauled legs need a locomotive; the others shunt without one.
	hauled bool
}

// transport returns the coordinator routine for l. It batches queued wagons
// standing on the same track, sized to what the destination can take, and
// moves one batch at a time. When nothing fits it sleeps on the capacity
// signal instead of polling.
func (c *SimulationContext) transport(l leg) func(p *sim.Process) error {
	return func(p *sim.Process) error {
		var pending []string
		for {
			if len(pending) == 0 {
				pending = append(pending, l.in.Get(p))
			}
			pending = drain(l.in, pending)

			group, _, err := c.onSameTrack(pending, l.ready)
			if err != nil {
				return fmt.Errorf("%s: %w", l.name, err)
			}
			head := services.FormBatches(group, c.BatchSize)[0].Wagons
			n := services.FitPrefix(head, c.Tracks.MaxFree(l.dest))
			if n == 0 {
				c.log.Debugf("[tick %07d] %s: no %s track has room for %s, waiting", p.Now(), l.name, l.dest, head[0].ID)
				c.capacity.Wait(p)
				continue
			}

			var moved []string
			if l.hauled {
				moved, err = c.haul(p, l, head[:n])
			} else {
				moved, err = c.shunt(p, l, head[:n])
			}
			if err != nil {
				return fmt.Errorf("%s: %w", l.name, err)
			}
			// An empty trip suspended on the way, so capacity is checked
			// again at the top of the loop before sleeping on the signal.
			pending = without(pending, moved)
		}
	}
}

// haul moves a batch with a locomotive: fetch the locomotive, couple,
// re-check the destination, reserve it, leave any wagons that did not fit,
// travel, decouple, release. The reservation follows the check with no
// suspension in between.
func (c *SimulationContext) haul(p *sim.Process, l leg, batch []services.Candidate) ([]string, error) {
	source := c.trackOf(batch[0].ID)
	op := fmt.Sprintf("%s %s", l.name, strings.Join(services.Batch{Wagons: batch}.IDs(), ","))
	loco, err := c.Locomotives.Acquire(p, source, op)
	if err != nil {
		return nil, err
	}
	if err := c.Locomotives.Travel(p, loco.ID, source); err != nil {
		return nil, c.unwind(err, loco.ID, nil)
	}
	p.Wait(c.Coupling.CouplingTime(len(batch)))

	// Capacity may have changed while the locomotive was on its way.
	batch, _, err = c.onSameTrack(services.Batch{Wagons: batch}.IDs(), l.ready)
	if err != nil {
		return nil, c.unwind(err, loco.ID, nil)
	}
	dest, k := c.destination(l.dest, batch)
	for _, w := range batch[:k] {
		if _, err := c.Registry.Transition(w.ID, l.moving, registry.Move{Track: dest, Locomotive: loco.ID}); err != nil {
			return nil, c.unwind(err, loco.ID, nil)
		}
	}
	if k < len(batch) {
		p.Wait(c.Coupling.DecouplingTime(len(batch) - k))
	}
	if k == 0 {
		c.log.Debugf("[tick %07d] %s: destination filled up, %s returns empty", p.Now(), l.name, loco.ID)
		return nil, c.Locomotives.Release(loco.ID)
	}
	batch = batch[:k]
	c.log.Debugf("[tick %07d] %s: %s departs %s -> %s with %d wagon(s)", p.Now(), l.name, loco.ID, source, dest, k)
	if err := c.Locomotives.Travel(p, loco.ID, dest); err != nil {
		return nil, c.unwind(err, loco.ID, nil)
	}
	p.Wait(c.Coupling.DecouplingTime(k))

	ids := make([]string, 0, k)
	for _, w := range batch {
		if _, err := c.Registry.Transition(w.ID, l.arrived, registry.Move{Locomotive: loco.ID}); err != nil {
			return nil, c.unwind(err, loco.ID, nil)
		}
		ids = append(ids, w.ID)
	}
	if err := c.Locomotives.Release(loco.ID); err != nil {
		return nil, err
	}
	c.forward(p, l.out, ids)
	return ids, nil
}

// shunt moves a batch without a locomotive.
func (c *SimulationContext) shunt(p *sim.Process, l leg, batch []services.Candidate) ([]string, error) {
	source := c.trackOf(batch[0].ID)
	dest, k := c.destination(l.dest, batch)
	if k == 0 {
		return nil, nil
	}
	batch = batch[:k]
	d, err := c.Routes.TravelTime(source, dest)
	if err != nil {
		return nil, err
	}
	for _, w := range batch {
		if _, err := c.Registry.Transition(w.ID, l.moving, registry.Move{Track: dest}); err != nil {
			return nil, err
		}
	}
	p.Wait(d)
	ids := make([]string, 0, k)
	for _, w := range batch {
		if _, err := c.Registry.Transition(w.ID, l.arrived, registry.Move{}); err != nil {
			return nil, err
		}
		ids = append(ids, w.ID)
	}
	c.log.Debugf("[tick %07d] %s: %d wagon(s) %s -> %s", p.Now(), l.name, k, source, dest)
	c.forward(p, l.out, ids)
	return ids, nil
}

// destination picks the track for the longest leading part of batch that
// fits on a single track of the category. It returns 0 when nothing fits.
func (c *SimulationContext) destination(cat track.Category, batch []services.Candidate) (string, int) {
	for k := services.FitPrefix(batch, c.Tracks.MaxFree(cat)); k > 0; k-- {
		if id, ok := c.Tracks.Select(cat, services.Batch{Wagons: batch[:k]}.Length(), c.Strategy); ok {
			return id, k
		}
	}
	return "", 0
}

// onSameTrack re-reads the pending wagons from the registry and returns,
// in queue order, those standing on the same track as the first one. Every
// wagon must be in state want.
func (c *SimulationContext) onSameTrack(pending []string, want registry.WagonStatus) ([]services.Candidate, string, error) {
	var group []services.Candidate
	source := ""
	for i, id := range pending {
		w, ok := c.Registry.Wagon(id)
		if !ok {
			return nil, "", fmt.Errorf("queued wagon %s is not registered", id)
		}
		if w.Status != want {
			return nil, "", fmt.Errorf("queued wagon %s is %s, want %s", id, w.Status, want)
		}
		if i == 0 {
			source = w.Track
		}
		if w.Track == source {
			group = append(group, services.Candidate{ID: w.ID, Length: w.Length})
		}
	}
	return group, source, nil
}

func (c *SimulationContext) trackOf(id string) string {
	w, _ := c.Registry.Wagon(id)
	return w.Track
}

func (c *SimulationContext) forward(p *sim.Process, out *sim.Store[string], ids []string) {
	if out == nil {
		return
	}
	for _, id := range ids {
		out.Put(p, id)
	}
}

// unwind returns whatever the failing step still holds so the other
// coordinators keep running, and reports every error met on the way.
func (c *SimulationContext) unwind(err error, loco string, stations []registry.Assignment) error {
	errs := []error{err}
	for _, a := range stations {
		if releaseErr := c.Workshops.Release(a); releaseErr != nil {
			errs = append(errs, releaseErr)
		}
	}
	if loco != "" {
		if releaseErr := c.Locomotives.Release(loco); releaseErr != nil {
			errs = append(errs, releaseErr)
		}
	}
	return errors.Join(errs...)
}

func drain(in *sim.Store[string], pending []string) []string {
	for {
		id, ok := in.TryGet()
		if !ok {
			return pending
		}
		pending = append(pending, id)
	}
}

func without(pending, done []string) []string {
	if len(done) == 0 {
		return pending
	}
	gone := make(map[string]bool, len(done))
	for _, id := range done {
		gone[id] = true
	}
	kept := pending[:0]
	for _, id := range pending {
		if !gone[id] {
			kept = append(kept, id)
		}
	}
	return kept
}
