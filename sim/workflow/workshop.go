package workflow

import (
	"fmt"
	"math"
	"strings"

	"github.com/retrofit-sim/retrofit-sim/sim"
	"github.com/retrofit-sim/retrofit-sim/sim/registry"
	"github.com/retrofit-sim/retrofit-sim/sim/services"
)

// workshop feeds wagons from the retrofit tracks into workshop stations.
//
// Order of acquisition: stations first, then workshop-track space, then a
// locomotive. Stations are only taken when free, and the locomotive is
// never held while waiting for anything but travel, so the pickup leg that
// shares the locomotives can always make progress.
func (c *SimulationContext) workshop(p *sim.Process) error {
	var pending []string
	for {
		if len(pending) == 0 {
			pending = append(pending, c.retrofit.Get(p))
		}
		pending = drain(c.retrofit, pending)

		group, _, err := c.onSameTrack(pending, registry.StatusOnRetrofitTrack)
		if err != nil {
			return fmt.Errorf("workshop: %w", err)
		}
		ws, n := c.pickWorkshop(group)
		if n == 0 {
			c.log.Debugf("[tick %07d] workshop: no free station with track space for %s, waiting", p.Now(), group[0].ID)
			c.capacity.Wait(p)
			continue
		}

		started, err := c.retrofitBatch(p, ws, group[:n])
		if err != nil {
			return fmt.Errorf("workshop %s: %w", ws, err)
		}
		pending = without(pending, started)
	}
}

// pickWorkshop returns the workshop to serve next and how many leading
// wagons of group it can take: bounded by batch size, free stations and the
// free length of the workshop track.
func (c *SimulationContext) pickWorkshop(group []services.Candidate) (string, int) {
	head := services.FormBatches(group, c.BatchSize)[0].Wagons
	for _, id := range c.Workshops.Ranked() {
		spec, _ := c.Workshops.Spec(id)
		n := min(len(head), c.Workshops.Available(id))
		if n = services.FitPrefix(head[:n], c.Tracks.Free(spec.Track)); n > 0 {
			return id, n
		}
	}
	return "", 0
}

func (c *SimulationContext) retrofitBatch(p *sim.Process, ws string, batch []services.Candidate) ([]string, error) {
	spec, _ := c.Workshops.Spec(ws)
	source := c.trackOf(batch[0].ID)

	stations := make([]registry.Assignment, 0, len(batch))
	for _, w := range batch {
		a, err := c.Workshops.Acquire(p, ws, w.ID)
		if err != nil {
			return nil, c.unwind(err, "", stations)
		}
		stations = append(stations, a)
	}

	op := fmt.Sprintf("workshop %s %s", ws, strings.Join(services.Batch{Wagons: batch}.IDs(), ","))
	loco, err := c.Locomotives.Acquire(p, source, op)
	if err != nil {
		return nil, c.unwind(err, "", stations)
	}
	if err := c.Locomotives.Travel(p, loco.ID, source); err != nil {
		return nil, c.unwind(err, loco.ID, stations)
	}
	p.Wait(c.Coupling.CouplingTime(len(batch)))

	batch, _, err = c.onSameTrack(services.Batch{Wagons: batch}.IDs(), registry.StatusOnRetrofitTrack)
	if err != nil {
		return nil, c.unwind(err, loco.ID, stations)
	}
	// Workshop-track space is reserved right after the check; wagons that
	// no longer fit are decoupled afterwards.
	k := services.FitPrefix(batch, c.Tracks.Free(spec.Track))
	for _, w := range batch[:k] {
		move := registry.Move{Track: spec.Track, Locomotive: loco.ID, Workshop: ws}
		if _, err := c.Registry.Transition(w.ID, registry.StatusMovingToWorkshop, move); err != nil {
			return nil, c.unwind(err, loco.ID, stations)
		}
	}
	if left := len(batch) - k; left > 0 {
		if err := c.unwind(nil, "", stations[k:]); err != nil {
			return nil, c.unwind(err, loco.ID, stations[:k])
		}
		batch, stations = batch[:k], stations[:k]
		p.Wait(c.Coupling.DecouplingTime(left))
	}
	if k == 0 {
		return nil, c.Locomotives.Release(loco.ID)
	}
	if err := c.Locomotives.Travel(p, loco.ID, spec.Track); err != nil {
		return nil, c.unwind(err, loco.ID, stations)
	}
	p.Wait(c.Coupling.DecouplingTime(k))
	if err := c.Locomotives.Release(loco.ID); err != nil {
		return nil, c.unwind(err, "", stations)
	}

	ids := make([]string, 0, k)
	for i, w := range batch {
		if _, err := c.Registry.Transition(w.ID, registry.StatusRetrofitting, registry.Move{Workshop: ws}); err != nil {
			return nil, c.unwind(err, "", stations[i:])
		}
		c.startRetrofit(ws, w.ID, stations[i])
		ids = append(ids, w.ID)
	}
	c.log.Debugf("[tick %07d] workshop %s: started %d retrofit(s), %d station(s) free", p.Now(), ws, k, c.Workshops.Available(ws))
	return ids, nil
}

// startRetrofit runs one wagon's retrofit at its station. The duration is
// drawn now so the draw order follows the coordinator, not the event heap.
func (c *SimulationContext) startRetrofit(ws, wagonID string, station registry.Assignment) {
	d := c.retrofitDuration(ws)
	c.Engine.Process("retrofit:"+wagonID, func(p *sim.Process) error {
		p.Wait(d)
		if _, err := c.Registry.Transition(wagonID, registry.StatusRetrofitted, registry.Move{Workshop: ws}); err != nil {
			return c.unwind(err, "", []registry.Assignment{station})
		}
		if err := c.Workshops.Release(station); err != nil {
			return err
		}
		c.retrofitted.Put(p, wagonID)
		return nil
	})
}

// retrofitDuration applies the workshop's uniform jitter to its retrofit
// time using the workshop RNG stream.
func (c *SimulationContext) retrofitDuration(ws string) int64 {
	spec, _ := c.Workshops.Spec(ws)
	if spec.Jitter == 0 || spec.RetrofitTime == 0 {
		return spec.RetrofitTime
	}
	rng := c.RNG.ForSubsystem(sim.SubsystemWorkshop)
	f := 1 + spec.Jitter*(2*rng.Float64()-1)
	return int64(math.Round(float64(spec.RetrofitTime) * f))
}
