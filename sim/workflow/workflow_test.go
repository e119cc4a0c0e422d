package workflow

import (
	"fmt"
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retrofit-sim/retrofit-sim/sim"
	"github.com/retrofit-sim/retrofit-sim/sim/registry"
	"github.com/retrofit-sim/retrofit-sim/sim/scenario"
	"github.com/retrofit-sim/retrofit-sim/sim/track"
	"github.com/retrofit-sim/retrofit-sim/sim/trace"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

// fullRoutes connects every pair of locations with the same duration.
func fullRoutes(d int64, locations ...string) []scenario.RouteSpec {
	var routes []scenario.RouteSpec
	for i := range locations {
		for j := i + 1; j < len(locations); j++ {
			routes = append(routes, scenario.RouteSpec{From: locations[i], To: locations[j], Duration: d})
		}
	}
	return routes
}

// train builds n wagons of the given length; wagons listed in skip need no
// retrofit.
func train(id string, at int64, n int, length float64, skip ...int) scenario.TrainSpec {
	t := scenario.TrainSpec{ID: id, Arrival: at}
	noRetrofit := map[int]bool{}
	for _, i := range skip {
		noRetrofit[i] = true
	}
	for i := 0; i < n; i++ {
		t.Wagons = append(t.Wagons, scenario.WagonSpec{
			ID:            fmt.Sprintf("%s-%d", id, i),
			Length:        length,
			NeedsRetrofit: !noRetrofit[i],
		})
	}
	return t
}

func baseScenario() *scenario.Scenario {
	return &scenario.Scenario{
		Name:       "test-yard",
		Seed:       42,
		Operations: scenario.OperationsSpec{BatchSize: 2, CoupleTime: 1, DecoupleTime: 1},
		Tracks: []scenario.TrackSpec{
			{ID: "C1", Category: "collection", Length: 200, Buffer: 5},
			{ID: "R1", Category: "retrofit", Length: 100, Buffer: 5},
			{ID: "WS1", Category: "workshop", Length: 60},
			{ID: "D1", Category: "retrofitted", Length: 100, Buffer: 5},
			{ID: "P1", Category: "parking", Length: 300, Buffer: 5},
		},
		Workshops:   []scenario.WorkshopSpec{{ID: "W1", Track: "WS1", Stations: 2, RetrofitTime: 30}},
		Locomotives: []scenario.LocoSpec{{ID: "L1", Home: "P1"}, {ID: "L2", Home: "P1"}},
		Routes:      fullRoutes(3, "arrival", "C1", "R1", "WS1", "D1", "P1"),
		Trains: []scenario.TrainSpec{
			train("T1", 0, 4, 15, 3),
			train("T2", 10, 4, 15),
		},
	}
}

func run(t *testing.T, sc *scenario.Scenario) *Result {
	t.Helper()
	res, err := Run(sc, quietLog())
	require.NoError(t, err)
	require.Empty(t, res.Failures)
	return res
}

func count(records []trace.Record, kind trace.Kind) int {
	n := 0
	for _, r := range records {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

// assertCapacityInvariant replays wagon placements and checks every track
// after every record.
func assertCapacityInvariant(t *testing.T, sc *scenario.Scenario, records []trace.Record) {
	t.Helper()
	specs := map[string]scenario.TrackSpec{}
	for _, ts := range sc.Tracks {
		specs[ts.ID] = ts
	}
	occupied := map[string]float64{}
	where := map[string]string{}
	for _, r := range records {
		if r.Wagon == "" || r.Kind == trace.StationOccupied || r.Kind == trace.StationReleased {
			continue
		}
		prev := where[r.Wagon]
		if r.Track == "" || r.Track == prev {
			continue
		}
		if prev != "" {
			occupied[prev] -= r.Length
		}
		occupied[r.Track] += r.Length
		where[r.Wagon] = r.Track
		spec := specs[r.Track]
		assert.LessOrEqual(t, occupied[r.Track]+spec.Buffer, spec.Length+1e-9,
			"record %d overfills %s", r.Seq, r.Track)
	}
}

// assertExclusive checks that no locomotive is allocated twice and that no
// workshop retrofits more wagons than it has stations.
func assertExclusive(t *testing.T, sc *scenario.Scenario, records []trace.Record) {
	t.Helper()
	stations := map[string]int{}
	for _, w := range sc.Workshops {
		stations[w.ID] = w.Stations
	}
	allocated := map[string]bool{}
	occupied := map[string]int{}
	retrofitting := map[string]int{}
	for _, r := range records {
		switch r.Kind {
		case trace.LocomotiveAllocated:
			assert.False(t, allocated[r.Locomotive], "record %d: %s allocated twice", r.Seq, r.Locomotive)
			allocated[r.Locomotive] = true
		case trace.LocomotiveReleased:
			assert.True(t, allocated[r.Locomotive], "record %d: %s released while idle", r.Seq, r.Locomotive)
			allocated[r.Locomotive] = false
		case trace.StationOccupied:
			occupied[r.Workshop]++
		case trace.StationReleased:
			occupied[r.Workshop]--
		case trace.WagonRetrofitStarted:
			retrofitting[r.Workshop]++
		case trace.WagonRetrofitCompleted:
			retrofitting[r.Workshop]--
		}
		for ws, n := range stations {
			assert.LessOrEqual(t, occupied[ws], n, "record %d", r.Seq)
			assert.LessOrEqual(t, retrofitting[ws], n, "record %d", r.Seq)
		}
	}
}

func TestRun_EveryWagonIsParkedOrRejected(t *testing.T) {
	// GIVEN two trains of four wagons, one of which needs no retrofit
	sc := baseScenario()

	// WHEN the run completes
	res := run(t, sc)

	// THEN every arrived wagon ends parked or rejected
	assert.Equal(t, sim.StatusCompleted, res.Status)
	arrived := count(res.Records, trace.WagonArrived)
	parked := count(res.Records, trace.WagonParked)
	rejected := count(res.Records, trace.WagonRejected)
	assert.Equal(t, 8, arrived)
	assert.Equal(t, 7, parked)
	assert.Equal(t, arrived, parked+rejected)
	assert.Equal(t, 1, res.Summary.RejectedBy[RejectNoRetrofitNeeded])
	assert.Empty(t, res.Stranded)
	assert.Empty(t, res.OpenAssignments)
	assert.NoError(t, res.Leak)

	// AND every transition in the log is a legal edge
	for _, r := range res.Records {
		if r.From == "" {
			continue
		}
		from, to := registry.WagonStatus(r.From), registry.WagonStatus(r.To)
		assert.True(t, registry.IsLegal(from, to), "record %d: %s -> %s", r.Seq, from, to)
	}
	assertCapacityInvariant(t, sc, res.Records)
	assertExclusive(t, sc, res.Records)

	// AND the retrofit took the configured time
	assert.Equal(t, 30.0, res.Summary.MeanRetrofitTime)
	assert.Equal(t, 7, res.Summary.Retrofitted)
}

func TestRun_CollectionBufferRejectsSecondWagon(t *testing.T) {
	// GIVEN a 40m collection track with a 5m buffer and two 20m wagons
	// arriving at t=0 and t=1
	sc := baseScenario()
	sc.Tracks[0] = scenario.TrackSpec{ID: "C1", Category: "collection", Length: 40, Buffer: 5}
	sc.Trains = []scenario.TrainSpec{train("A", 0, 1, 20), train("B", 1, 1, 20)}

	// WHEN the run completes
	res := run(t, sc)

	// THEN the second wagon is rejected for capacity: 20 + 20 + 5 > 40
	rejected := 0
	for _, r := range res.Records {
		if r.Kind == trace.WagonRejected {
			rejected++
			assert.Equal(t, "B-0", r.Wagon)
			assert.Equal(t, RejectCapacity, r.Detail)
			assert.Equal(t, int64(1), r.Time)
		}
	}
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 1, count(res.Records, trace.WagonParked))
	assert.LessOrEqual(t, res.Summary.TrackPeak["C1"], 35.0)
	assertCapacityInvariant(t, sc, res.Records)
}

func TestRun_SingleLocomotiveSerializesTrips(t *testing.T) {
	// GIVEN one locomotive shared by the three hauled legs
	sc := baseScenario()
	sc.Locomotives = sc.Locomotives[:1]
	sc.Trains = []scenario.TrainSpec{train("T1", 0, 6, 15)}

	// WHEN the run completes
	res := run(t, sc)
	require.Equal(t, sim.StatusCompleted, res.Status)

	// THEN allocations and releases strictly alternate
	var last trace.Kind
	var released int64
	trips := 0
	for _, r := range res.Records {
		switch r.Kind {
		case trace.LocomotiveAllocated:
			assert.NotEqual(t, trace.LocomotiveAllocated, last, "record %d overlaps a trip", r.Seq)
			assert.GreaterOrEqual(t, r.Time, released)
			trips++
		case trace.LocomotiveReleased:
			assert.Equal(t, trace.LocomotiveAllocated, last)
			released = r.Time
		default:
			continue
		}
		last = r.Kind
	}
	assert.GreaterOrEqual(t, trips, 9, "three legs, three batches each")
	assert.Equal(t, 6, count(res.Records, trace.WagonParked))
	assertExclusive(t, sc, res.Records)
}

func TestRun_WaitsForCapacityInsteadOfDropping(t *testing.T) {
	// GIVEN a retrofitted track that holds one 20m wagon at a time
	sc := baseScenario()
	sc.Tracks[3] = scenario.TrackSpec{ID: "D1", Category: "retrofitted", Length: 25, Buffer: 5}
	sc.Trains = []scenario.TrainSpec{train("T1", 0, 4, 20)}

	// WHEN the run completes
	res := run(t, sc)

	// THEN every wagon still gets through, one at a time over D1
	assert.Equal(t, sim.StatusCompleted, res.Status)
	assert.Equal(t, 4, count(res.Records, trace.WagonParked))
	assert.Empty(t, res.Stranded)
	assert.Equal(t, 20.0, res.Summary.TrackPeak["D1"])
	assertCapacityInvariant(t, sc, res.Records)
	assertExclusive(t, sc, res.Records)
}

func TestRun_StationCountBoundsRetrofits(t *testing.T) {
	// GIVEN one station and a batch size that would otherwise carry four
	sc := baseScenario()
	sc.Workshops[0].Stations = 1
	sc.Operations.BatchSize = 4
	sc.Trains = []scenario.TrainSpec{train("T1", 0, 4, 15)}

	res := run(t, sc)

	assert.Equal(t, sim.StatusCompleted, res.Status)
	assert.Equal(t, 4, count(res.Records, trace.WagonParked))
	assertExclusive(t, sc, res.Records)
	assert.LessOrEqual(t, res.Summary.StationUtilization["W1"], 1.0)
	assert.Greater(t, res.Summary.StationUtilization["W1"], 0.0)
}

func TestRun_HorizonReportsPartialResults(t *testing.T) {
	// GIVEN a horizon shorter than one retrofit
	sc := baseScenario()
	sc.Horizon = 20

	// WHEN the run stops at the horizon
	res := run(t, sc)

	// THEN the result is flagged partial with in-flight wagons listed
	assert.Equal(t, sim.StatusPartial, res.Status)
	assert.True(t, res.HorizonHit)
	assert.False(t, res.Stalled)
	assert.Equal(t, int64(20), res.Clock)
	assert.NotEmpty(t, res.Stranded)
	assert.NoError(t, res.Leak, "open assignments of a partial run are not leaks")
	assert.Zero(t, count(res.Records, trace.WagonParked))
	for _, r := range res.Records {
		assert.LessOrEqual(t, r.Time, int64(20))
	}
}

func TestRun_SameSeedSameLog(t *testing.T) {
	build := func(seed int64) *scenario.Scenario {
		sc := baseScenario()
		sc.Seed = seed
		sc.Workshops[0].RetrofitJitter = 0.3
		sc.Generator = &scenario.GeneratorSpec{
			Trains: 3, Start: 5, Interval: 15, WagonsPerTrain: 3,
			MinLength: 12, MaxLength: 18, RetrofitShare: 0.8,
		}
		return sc
	}

	first := run(t, build(7))
	second := run(t, build(7))
	other := run(t, build(8))

	assert.Equal(t, first.Records, second.Records)
	assert.Equal(t, first.Clock, second.Clock)
	assert.NotEqual(t, first.Records, other.Records)
	assertCapacityInvariant(t, build(7), first.Records)
}

func TestRun_RoundRobinSpreadsCollectionTracks(t *testing.T) {
	sc := baseScenario()
	sc.Strategy = "round-robin"
	sc.Tracks = append(sc.Tracks, scenario.TrackSpec{ID: "C2", Category: "collection", Length: 200, Buffer: 5})
	sc.Routes = fullRoutes(3, "arrival", "C1", "C2", "R1", "WS1", "D1", "P1")
	sc.Trains = []scenario.TrainSpec{train("T1", 0, 4, 15)}

	res := run(t, sc)

	var tracks []string
	for _, r := range res.Records {
		if r.Kind == trace.WagonMovingToCollection {
			tracks = append(tracks, r.Track)
		}
	}
	assert.Equal(t, []string{"C1", "C2", "C1", "C2"}, tracks)
	assert.Equal(t, 4, count(res.Records, trace.WagonParked))
}

func TestNewSimulationContext_InvalidScenario(t *testing.T) {
	sc := baseScenario()
	sc.Routes = sc.Routes[1:]

	_, err := NewSimulationContext(sc, quietLog())

	var cfg *sim.ConfigurationError
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, "routes", cfg.Field)
}

func TestRun_IndependentContextsDoNotShareState(t *testing.T) {
	a, err := NewSimulationContext(baseScenario(), quietLog())
	require.NoError(t, err)
	b, err := NewSimulationContext(baseScenario(), quietLog())
	require.NoError(t, err)

	ra := a.Run()
	rb := b.Run()

	assert.Equal(t, ra.Records, rb.Records)
	assert.True(t, a.Events.Sealed())
	assert.NotSame(t, a.Registry, b.Registry)
}

func TestRun_WagonTooLongForDownstreamTracksIsRejected(t *testing.T) {
	// GIVEN a 98m wagon that fits C1 but no workshop track (60m), followed
	// by four ordinary wagons
	sc := baseScenario()
	sc.Trains = []scenario.TrainSpec{train("X", 0, 1, 98), train("Y", 5, 4, 15)}

	// WHEN the run completes
	res := run(t, sc)

	// THEN the long wagon is rejected at arrival and the rest get through
	assert.Equal(t, sim.StatusCompleted, res.Status)
	assert.False(t, res.Stalled)
	assert.Empty(t, res.Stranded)
	assert.Equal(t, 1, res.Summary.RejectedBy[RejectCapacity])
	assert.Equal(t, 4, count(res.Records, trace.WagonParked))
	assert.Equal(t, int64(0), movedAt(res.Records, "X-0", trace.WagonRejected))
	assertCapacityInvariant(t, sc, res.Records)
}

func TestRun_StalledPipelineIsNotReportedCompleted(t *testing.T) {
	// GIVEN a context that lets an oversized wagon into collection
	sc := baseScenario()
	sc.Trains = []scenario.TrainSpec{train("X", 0, 1, 98)}
	c, err := NewSimulationContext(sc, quietLog())
	require.NoError(t, err)
	c.maxWagon = math.Inf(1)

	// WHEN the event heap drains with the wagon stuck on C1
	res := c.Run()

	// THEN the run is flagged stalled and partial, not completed
	assert.Equal(t, sim.StatusPartial, res.Status)
	assert.True(t, res.Stalled)
	assert.False(t, res.HorizonHit)
	require.Len(t, res.Stranded, 1)
	assert.Equal(t, "X-0", res.Stranded[0].ID)
	assert.Equal(t, registry.StatusOnCollection, res.Stranded[0].Status)
}

// collectionFixture puts wagons A and B (40m each) on C1 and returns a
// context whose collection-to-retrofit coordinator is ready to start.
func collectionFixture(t *testing.T) *SimulationContext {
	t.Helper()
	c, err := NewSimulationContext(baseScenario(), quietLog())
	require.NoError(t, err)
	steps := []struct {
		to   registry.WagonStatus
		move registry.Move
	}{
		{registry.StatusSelecting, registry.Move{}},
		{registry.StatusSelected, registry.Move{}},
		{registry.StatusMovingToCollection, registry.Move{Track: "C1"}},
		{registry.StatusOnCollection, registry.Move{}},
	}
	for _, id := range []string{"A", "B"} {
		_, err := c.Registry.Register(id, "T", 40, true)
		require.NoError(t, err)
		for _, st := range steps {
			_, err := c.Registry.Transition(id, st.to, st.move)
			require.NoError(t, err)
		}
	}
	c.Engine.Process("feed", func(p *sim.Process) error {
		c.collection.Put(p, "A")
		c.collection.Put(p, "B")
		return nil
	})
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
	return c
}

func movedAt(records []trace.Record, wagon string, kind trace.Kind) int64 {
	for _, r := range records {
		if r.Wagon == wagon && r.Kind == kind {
			return r.Time
		}
	}
	return -1
}

func TestTransport_ReservesBeforeDecouplingLeftovers(t *testing.T) {
	// GIVEN R1 (95m usable) partly filled at t=1 so only A still fits once
	// the locomotive has travelled (t=3) and coupled both wagons (t=5)
	c := collectionFixture(t)
	c.Engine.Process("blocker", func(p *sim.Process) error {
		p.Wait(1)
		return c.Tracks.Place("R1", "X", 50)
	})

	// WHEN the coordinator runs
	out := c.Engine.Run(sim.NoHorizon)

	// THEN A is reserved at the check, before B is decoupled, and B stays
	require.Empty(t, out.Failures)
	assert.Equal(t, int64(5), movedAt(c.Events.Records(), "A", trace.WagonMovingToRetrofit))
	a, _ := c.Registry.Wagon("A")
	b, _ := c.Registry.Wagon("B")
	assert.Equal(t, registry.StatusOnRetrofitTrack, a.Status)
	assert.Equal(t, registry.StatusOnCollection, b.Status)
	assert.Equal(t, 90.0, c.Tracks.Occupied("R1"))
}

func TestTransport_RechecksCapacityAfterEmptyTrip(t *testing.T) {
	// GIVEN R1 filled while the locomotive couples (t=1..5) and freed at
	// t=6 while it decouples the batch it could not take (t=5..7)
	c := collectionFixture(t)
	c.Engine.Process("blocker", func(p *sim.Process) error {
		p.Wait(1)
		if err := c.Tracks.Place("R1", "X", 90); err != nil {
			return err
		}
		p.Wait(5)
		return c.Tracks.Remove("R1", "X")
	})

	// WHEN the coordinator runs
	out := c.Engine.Run(sim.NoHorizon)

	// THEN the release during the empty trip is not lost: both wagons move
	require.Empty(t, out.Failures)
	for _, id := range []string{"A", "B"} {
		w, _ := c.Registry.Wagon(id)
		assert.Equal(t, registry.StatusOnRetrofitTrack, w.Status, id)
		assert.Equal(t, int64(9), movedAt(c.Events.Records(), id, trace.WagonMovingToRetrofit), id)
	}
}
