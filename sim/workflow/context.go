// Package workflow turns a validated scenario into a running simulation.
//
// A SimulationContext owns everything one run mutates: the engine, the
// registry, the track, workshop and locomotive managers, and the handoff
// queues between the five coordinators. Nothing is package-level, so
// independent runs can execute side by side in one process.
//
// Pipeline:
//
//	arrival ──▶ collection ──▶ retrofit track ──▶ workshop ──▶ retrofitted track ──▶ parking
//	           (queue)        (queue)            (queue)      (queue)
//
// Each coordinator is one long-running routine. It blocks on its input
// queue, checks destination capacity, acquires the resources it needs,
// performs the timed move and pushes the wagons to the next queue. Wagon
// state lives only in the registry; queues carry ids.
package workflow

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/retrofit-sim/retrofit-sim/sim"
	"github.com/retrofit-sim/retrofit-sim/sim/fleet"
	"github.com/retrofit-sim/retrofit-sim/sim/registry"
	"github.com/retrofit-sim/retrofit-sim/sim/scenario"
	"github.com/retrofit-sim/retrofit-sim/sim/services"
	"github.com/retrofit-sim/retrofit-sim/sim/trace"
	"github.com/retrofit-sim/retrofit-sim/sim/track"
)

// SimulationContext is the state of one simulation run.
type SimulationContext struct {
	Name        string
	Scenario    *scenario.Scenario
	Engine      *sim.Engine
	RNG         *sim.PartitionedRNG
	Tracks      *track.Manager
	Registry    *registry.Registry
	Events      *trace.EventLog
	Routes      *services.RouteTable
	Workshops   *fleet.Workshops
	Locomotives *fleet.Locomotives
	Coupling    services.Coupling
	Strategy    track.Strategy
	BatchSize   int

	// capacity is broadcast whenever track length or a station frees up.
	capacity *sim.Signal
	// maxWagon is the longest wagon every downstream category can hold.
	maxWagon float64

	collection  *sim.Store[string]
	retrofit    *sim.Store[string]
	retrofitted *sim.Store[string]
	parking     *sim.Store[string]

	log *logrus.Entry
}

// NewSimulationContext validates sc and builds a ready-to-run context. log
// may be nil; every line the run writes carries a run=<name> field.
func NewSimulationContext(sc *scenario.Scenario, log *logrus.Entry) (*SimulationContext, error) {
	sc.ApplyDefaults()
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	name := sc.Name
	if name == "" {
		name = "scenario"
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("run", name)

	strategy, err := track.ParseStrategy(sc.Strategy)
	if err != nil {
		return nil, sim.Configf("strategy", "%v", err)
	}
	selection, err := fleet.ParseSelection(sc.LocomotiveSelection)
	if err != nil {
		return nil, sim.Configf("locomotive_selection", "%v", err)
	}

	eng := sim.NewEngine(log)
	tracks, err := track.NewManager(sc.TrackSpecs())
	if err != nil {
		return nil, err
	}
	events := trace.NewEventLog()
	reg := registry.New(eng.Now, tracks, events)
	for _, l := range sc.Locomotives {
		if err := reg.AddLocomotive(l.ID, l.Home); err != nil {
			return nil, sim.Configf("locomotives", "%v", err)
		}
	}
	routes, err := services.NewRouteTable(sc.RouteSpecs())
	if err != nil {
		return nil, err
	}
	workshops, err := fleet.NewWorkshops(eng, reg, sc.WorkshopSpecs())
	if err != nil {
		return nil, err
	}

	c := &SimulationContext{
		Name:        name,
		Scenario:    sc,
		Engine:      eng,
		RNG:         sim.NewPartitionedRNG(sc.Seed),
		Tracks:      tracks,
		Registry:    reg,
		Events:      events,
		Routes:      routes,
		Workshops:   workshops,
		Locomotives: fleet.NewLocomotives(eng, reg, routes, selection),
		Coupling: services.Coupling{
			CouplePerWagon:   sc.Operations.CoupleTime,
			DecouplePerWagon: sc.Operations.DecoupleTime,
		},
		Strategy:    strategy,
		BatchSize:   sc.Operations.BatchSize,
		capacity:    sim.NewSignal("capacity"),
		collection:  sim.NewStore[string]("collection", 0),
		retrofit:    sim.NewStore[string]("retrofit", 0),
		retrofitted: sim.NewStore[string]("retrofitted", 0),
		parking:     sim.NewStore[string]("parking", 0),
		log:         log,
	}
	c.maxWagon = math.Inf(1)
	for _, cat := range []track.Category{track.CategoryRetrofit, track.CategoryWorkshop, track.CategoryRetrofitted, track.CategoryParking} {
		c.maxWagon = math.Min(c.maxWagon, tracks.Usable(cat))
	}
	tracks.OnRelease(c.capacity.Broadcast)
	workshops.OnRelease(c.capacity.Broadcast)
	return c, nil
}

// Result is what a run produced.
type Result struct {
	Name     string
	Seed     int64
	Strategy string
	Status   sim.RunStatus
	// HorizonHit is set when the horizon cut the run short. A failed run
	// may also have been cut short.
	HorizonHit bool
	// Stalled is set when the event heap drained with wagons still short of
	// a terminal state. Such a run is reported partial, never completed.
	Stalled bool
	Clock   int64
	// Events is the number of engine events executed.
	Events   int
	Records  []trace.Record
	Failures []sim.ProcessFailure
	// Stranded lists wagons that never reached a terminal state.
	Stranded        []registry.Wagon
	OpenAssignments []registry.Assignment
	// Leak is a *sim.ResourceLeakError when a completed run left an
	// assignment open. Partial runs report open assignments without it.
	Leak      error
	Suspended []string
	Summary   trace.Summary
}

// Run starts the five coordinators and drives the engine to the scenario
// horizon or until no events remain. A context runs once.
func (c *SimulationContext) Run() *Result {
	c.Engine.Process("arrival", c.arrival)
	c.Engine.Process("collection-to-retrofit", c.transport(leg{
		name:    "collection-to-retrofit",
		in:      c.collection,
		out:     c.retrofit,
		ready:   registry.StatusOnCollection,
		moving:  registry.StatusMovingToRetrofit,
		arrived: registry.StatusOnRetrofitTrack,
		dest:    track.CategoryRetrofit,
		hauled:  true,
	}))
	c.Engine.Process("workshop", c.workshop)
	c.Engine.Process("retrofitted-pickup", c.transport(leg{
		name:    "retrofitted-pickup",
		in:      c.retrofitted,
		out:     c.parking,
		ready:   registry.StatusRetrofitted,
		moving:  registry.StatusMovingToRetrofittedTrack,
		arrived: registry.StatusOnRetrofittedTrack,
		dest:    track.CategoryRetrofitted,
		hauled:  true,
	}))
	c.Engine.Process("parking", c.transport(leg{
		name:    "parking",
		in:      c.parking,
		ready:   registry.StatusOnRetrofittedTrack,
		moving:  registry.StatusMovingToParking,
		arrived: registry.StatusParked,
		dest:    track.CategoryParking,
	}))

	horizon := sim.NoHorizon
	if c.Scenario.Horizon > 0 {
		horizon = c.Scenario.Horizon
	}
	c.log.Infof("Starting simulation: seed=%d strategy=%s batch=%d locomotives=%d",
		c.Scenario.Seed, c.Strategy, c.BatchSize, c.Locomotives.Size())
	out := c.Engine.Run(horizon)
	c.Events.Seal()
	return c.result(out)
}

func (c *SimulationContext) result(out sim.Outcome) *Result {
	res := &Result{
		Name:            c.Name,
		Seed:            c.Scenario.Seed,
		Strategy:        c.Strategy.String(),
		Status:          out.Status,
		HorizonHit:      out.HorizonHit,
		Clock:           out.Clock,
		Events:          out.Events,
		Records:         c.Events.Records(),
		Failures:        out.Failures,
		Stranded:        c.Registry.Stranded(),
		OpenAssignments: c.Registry.OpenAssignments(),
		Suspended:       out.Suspended,
	}
	res.Summary = trace.Summarize(res.Records, res.Clock, c.Workshops.Stations())

	if len(res.Stranded) > 0 {
		c.log.Warnf("[tick %07d] %d wagon(s) did not reach a terminal state", out.Clock, len(res.Stranded))
		if !out.HorizonHit {
			res.Stalled = true
			if res.Status == sim.StatusCompleted {
				res.Status = sim.StatusPartial
			}
			c.log.Warnf("[tick %07d] run stalled with no events left", out.Clock)
		}
	}
	if len(res.OpenAssignments) > 0 {
		if res.Status == sim.StatusCompleted {
			res.Leak = c.Registry.CheckLeaks()
			c.log.Warnf("[tick %07d] %v", out.Clock, res.Leak)
		} else {
			c.log.Warnf("[tick %07d] %d assignment(s) abandoned in flight", out.Clock, len(res.OpenAssignments))
		}
	}
	return res
}

// Run builds a context for sc and runs it.
func Run(sc *scenario.Scenario, log *logrus.Entry) (*Result, error) {
	c, err := NewSimulationContext(sc, log)
	if err != nil {
		return nil, fmt.Errorf("building simulation: %w", err)
	}
	return c.Run(), nil
}
