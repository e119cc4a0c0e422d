package workflow

import (
	"fmt"

	"github.com/retrofit-sim/retrofit-sim/sim"
	"github.com/retrofit-sim/retrofit-sim/sim/registry"
	"github.com/retrofit-sim/retrofit-sim/sim/scenario"
	"github.com/retrofit-sim/retrofit-sim/sim/track"
)

// Reject reasons recorded on wagon-rejected events.
const (
	RejectNoRetrofitNeeded = "no-retrofit-needed"
	RejectCapacity         = "capacity"
)

// arrival registers each train's wagons when the train arrives, rejects the
// ones that need no retrofit or find no collection space, and sends the
// rest on their way to a collection track.
func (c *SimulationContext) arrival(p *sim.Process) error {
	trains := c.Scenario.Arrivals(c.RNG.ForSubsystem(sim.SubsystemArrivals))
	for _, t := range trains {
		if d := t.Arrival - p.Now(); d > 0 {
			p.Wait(d)
		}
		if err := c.receive(t); err != nil {
			return fmt.Errorf("train %s: %w", t.ID, err)
		}
	}
	return nil
}

func (c *SimulationContext) receive(t scenario.TrainSpec) error {
	now := c.Engine.Now()
	c.log.Debugf("[tick %07d] Train %s arrived with %d wagon(s)", now, t.ID, len(t.Wagons))

	groups := map[string][]string{}
	var order []string
	for _, spec := range t.Wagons {
		w, err := c.Registry.Register(spec.ID, t.ID, spec.Length, spec.NeedsRetrofit)
		if err != nil {
			return err
		}
		if _, err := c.Registry.Transition(w.ID, registry.StatusSelecting, registry.Move{}); err != nil {
			return err
		}

		reason, dest := "", ""
		if !w.NeedsRetrofit {
			reason = RejectNoRetrofitNeeded
		} else if w.Length > c.maxWagon {
			// No retrofit, workshop, retrofitted or parking track could
			// ever take it, so accepting it would block its collection track.
			reason = RejectCapacity
		} else if id, ok := c.Tracks.Select(track.CategoryCollection, w.Length, c.Strategy); ok {
			dest = id
		} else {
			reason = RejectCapacity
		}
		if reason != "" {
			if _, err := c.Registry.Transition(w.ID, registry.StatusRejected, registry.Move{Reason: reason}); err != nil {
				return err
			}
			c.log.Debugf("[tick %07d] Rejected %s (%.1f m): %s", now, w.ID, w.Length, reason)
			continue
		}

		if _, err := c.Registry.Transition(w.ID, registry.StatusSelected, registry.Move{}); err != nil {
			return err
		}
		if _, err := c.Registry.Transition(w.ID, registry.StatusMovingToCollection, registry.Move{Track: dest}); err != nil {
			return err
		}
		if _, seen := groups[dest]; !seen {
			order = append(order, dest)
		}
		groups[dest] = append(groups[dest], w.ID)
	}

	for _, dest := range order {
		c.deliver(t.ID, dest, groups[dest])
	}
	return nil
}

// deliver runs the arriving train's move onto one collection track. The
// track space was reserved when the wagons were selected.
func (c *SimulationContext) deliver(train, dest string, ids []string) {
	from := c.Scenario.Operations.ArrivalLocation
	c.Engine.Process(fmt.Sprintf("deliver:%s:%s", train, dest), func(p *sim.Process) error {
		d, err := c.Routes.TravelTime(from, dest)
		if err != nil {
			return err
		}
		p.Wait(d)
		for _, id := range ids {
			if _, err := c.Registry.Transition(id, registry.StatusOnCollection, registry.Move{}); err != nil {
				return err
			}
			c.collection.Put(p, id)
		}
		c.log.Debugf("[tick %07d] Delivered %d wagon(s) of train %s to %s", p.Now(), len(ids), train, dest)
		return nil
	})
}
