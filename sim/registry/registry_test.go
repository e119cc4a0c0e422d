package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retrofit-sim/retrofit-sim/sim"
	"github.com/retrofit-sim/retrofit-sim/sim/trace"
	"github.com/retrofit-sim/retrofit-sim/sim/track"
)

type fixture struct {
	clock int64
	reg   *Registry
	log   *trace.EventLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tracks, err := track.NewManager([]track.Spec{
		{ID: "C1", Category: track.CategoryCollection, Length: 40, Buffer: 5},
		{ID: "R1", Category: track.CategoryRetrofit, Length: 100},
		{ID: "WS1", Category: track.CategoryWorkshop, Length: 100},
		{ID: "D1", Category: track.CategoryRetrofitted, Length: 100},
		{ID: "P1", Category: track.CategoryParking, Length: 100},
	})
	require.NoError(t, err)
	f := &fixture{log: trace.NewEventLog()}
	f.reg = New(func() int64 { return f.clock }, tracks, f.log)
	return f
}

func (f *fixture) step(t *testing.T, id string, to WagonStatus, move Move) Wagon {
	t.Helper()
	w, err := f.reg.Transition(id, to, move)
	require.NoError(t, err)
	return w
}

func TestRegistry_FullLifecycleEmitsOneEventPerTransition(t *testing.T) {
	f := newFixture(t)
	_, err := f.reg.Register("W1", "T1", 20, true)
	require.NoError(t, err)

	f.step(t, "W1", StatusSelecting, Move{})
	f.step(t, "W1", StatusSelected, Move{})
	f.step(t, "W1", StatusMovingToCollection, Move{Track: "C1"})
	f.step(t, "W1", StatusOnCollection, Move{})
	f.step(t, "W1", StatusMovingToRetrofit, Move{Track: "R1", Locomotive: "L1"})
	assert.Equal(t, 0.0, f.reg.Tracks().Occupied("C1"), "moving off a track releases it at departure")
	assert.Equal(t, 20.0, f.reg.Tracks().Occupied("R1"), "the destination is reserved at departure")
	f.step(t, "W1", StatusOnRetrofitTrack, Move{})
	f.step(t, "W1", StatusMovingToWorkshop, Move{Track: "WS1", Locomotive: "L1", Workshop: "WS"})
	f.clock = 10
	f.step(t, "W1", StatusRetrofitting, Move{})
	f.clock = 70
	f.step(t, "W1", StatusRetrofitted, Move{})
	f.step(t, "W1", StatusMovingToRetrofittedTrack, Move{Track: "D1", Locomotive: "L1"})
	f.step(t, "W1", StatusOnRetrofittedTrack, Move{})
	f.step(t, "W1", StatusMovingToParking, Move{Track: "P1"})
	w := f.step(t, "W1", StatusParked, Move{})

	assert.Equal(t, StatusParked, w.Status)
	assert.Equal(t, "P1", w.Track)
	assert.Equal(t, "WS", w.Workshop)
	assert.Equal(t, int64(10), w.RetrofitStart)
	assert.Equal(t, int64(70), w.RetrofitEnd)
	assert.Equal(t, 20.0, f.reg.Tracks().Occupied("P1"))
	for _, id := range []string{"C1", "R1", "WS1", "D1"} {
		assert.Equal(t, 0.0, f.reg.Tracks().Occupied(id), id)
	}

	// One registration event plus thirteen transitions.
	records := f.log.Records()
	require.Len(t, records, 14)
	assert.Equal(t, trace.WagonArrived, records[0].Kind)
	assert.Equal(t, trace.WagonRetrofitStarted, records[8].Kind)
	assert.Equal(t, trace.WagonParked, records[13].Kind)
	for i := 1; i < len(records); i++ {
		from, to := WagonStatus(records[i].From), WagonStatus(records[i].To)
		assert.True(t, IsLegal(from, to), "%s -> %s", from, to)
	}
	assert.Empty(t, f.reg.Stranded())
}

func TestRegistry_InvalidTransitionIsReported(t *testing.T) {
	f := newFixture(t)
	_, err := f.reg.Register("W1", "", 20, true)
	require.NoError(t, err)

	_, err = f.reg.Transition("W1", StatusParked, Move{})

	var it *sim.InvalidTransitionError
	require.ErrorAs(t, err, &it)
	assert.Equal(t, "ARRIVING", it.Current)
	assert.Equal(t, "PARKED", it.Target)
	assert.Contains(t, it.Detail, "W1")
	w, _ := f.reg.Wagon("W1")
	assert.Equal(t, StatusArriving, w.Status, "a rejected transition leaves the wagon untouched")
	assert.Equal(t, 1, f.log.Len())
}

func TestRegistry_TerminalStatesHaveNoExits(t *testing.T) {
	for _, s := range []WagonStatus{StatusRejected, StatusParked} {
		assert.True(t, s.IsTerminal())
		assert.Empty(t, wagonEdges[s])
	}
	// Every non-terminal state has an exit and every state maps to an event kind.
	for s, next := range wagonEdges {
		assert.NotEmpty(t, next, s)
		assert.NotEmpty(t, KindFor(s), s)
	}
	st, ok := StatusFor(trace.WagonParked)
	assert.True(t, ok)
	assert.Equal(t, StatusParked, st)
	_, ok = StatusFor(trace.LocomotiveAllocated)
	assert.False(t, ok)
}

func TestRegistry_MoveToWrongCategoryIsInvalid(t *testing.T) {
	f := newFixture(t)
	_, _ = f.reg.Register("W1", "", 20, true)
	f.step(t, "W1", StatusSelecting, Move{})
	f.step(t, "W1", StatusSelected, Move{})

	_, err := f.reg.Transition("W1", StatusMovingToCollection, Move{Track: "P1"})

	var it *sim.InvalidTransitionError
	assert.ErrorAs(t, err, &it)
	assert.Equal(t, 0.0, f.reg.Tracks().Occupied("P1"))
}

func TestRegistry_CapacityFailureLeavesStateUnchanged(t *testing.T) {
	// GIVEN a 40m collection track with a 5m buffer holding one 20m wagon
	f := newFixture(t)
	for _, id := range []string{"W1", "W2"} {
		_, _ = f.reg.Register(id, "", 20, true)
		f.step(t, id, StatusSelecting, Move{})
		f.step(t, id, StatusSelected, Move{})
	}
	f.step(t, "W1", StatusMovingToCollection, Move{Track: "C1"})

	// WHEN a second 20m wagon is moved there
	w, err := f.reg.Transition("W2", StatusMovingToCollection, Move{Track: "C1"})

	// THEN the move fails with a capacity error and nothing changes
	assert.ErrorIs(t, err, sim.ErrCapacityExceeded)
	assert.Equal(t, StatusSelected, w.Status)
	assert.Equal(t, "", w.Track)
	assert.Equal(t, 20.0, f.reg.Tracks().Occupied("C1"))

	// AND rejection is only possible while selecting, so the caller must
	// check capacity before committing to SELECTED
	_, err = f.reg.Transition("W2", StatusRejected, Move{Reason: "capacity"})
	var it *sim.InvalidTransitionError
	require.ErrorAs(t, err, &it)
	assert.Equal(t, "SELECTED", it.Current)
	assert.Equal(t, "REJECTED", it.Target)
}

func TestRegistry_RegisterValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.reg.Register("W1", "", 20, true)
	require.NoError(t, err)
	_, err = f.reg.Register("W1", "", 20, true)
	assert.Error(t, err)
	_, err = f.reg.Register("", "", 20, true)
	assert.Error(t, err)
	_, err = f.reg.Register("W2", "", 0, true)
	assert.Error(t, err)
	_, err = f.reg.Transition("nope", StatusSelecting, Move{})
	assert.Error(t, err)
}

func TestRegistry_LocomotiveLifecycle(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.reg.AddLocomotive("L1", "C1"))
	assert.Error(t, f.reg.AddLocomotive("L1", "C1"))
	assert.Error(t, f.reg.AddLocomotive("L2", "nowhere"))

	f.clock = 5
	a, err := f.reg.AllocateLocomotive("L1", "collect")
	require.NoError(t, err)
	assert.True(t, a.Open)

	// A locomotive has at most one active assignment.
	_, err = f.reg.AllocateLocomotive("L1", "other")
	var it *sim.InvalidTransitionError
	assert.ErrorAs(t, err, &it)

	require.NoError(t, f.reg.DepartLocomotive("L1", "R1"))
	f.clock = 12
	require.NoError(t, f.reg.ArriveLocomotive("L1", "R1"))
	f.clock = 20
	require.NoError(t, f.reg.ReleaseLocomotive("L1"))

	l, _ := f.reg.Locomotive("L1")
	assert.Equal(t, LocoIdle, l.Status)
	assert.Equal(t, "R1", l.Track)
	assert.Equal(t, int64(15), l.BusyTicks)
	assert.Empty(t, l.Assignment)
	assert.NoError(t, f.reg.CheckLeaks())
	assert.Len(t, f.reg.IdleLocomotives(), 1)

	kinds := []trace.Kind{}
	for _, r := range f.log.Records() {
		kinds = append(kinds, r.Kind)
	}
	assert.Equal(t, []trace.Kind{trace.LocomotiveAllocated, trace.LocomotiveDeparted, trace.LocomotiveArrived, trace.LocomotiveReleased}, kinds)

	// Releasing an idle locomotive is an invalid transition.
	assert.ErrorAs(t, f.reg.ReleaseLocomotive("L1"), &it)
}

func TestRegistry_ReleaseLocomotiveWithClosedAssignmentStaysAssigned(t *testing.T) {
	// GIVEN an assigned locomotive whose assignment was already closed
	f := newFixture(t)
	require.NoError(t, f.reg.AddLocomotive("L1", "C1"))
	a, err := f.reg.AllocateLocomotive("L1", "collect")
	require.NoError(t, err)
	require.NoError(t, f.reg.closeAssignment(a.ID))

	// WHEN it is released
	err = f.reg.ReleaseLocomotive("L1")

	// THEN the release fails and the locomotive keeps its assignment
	var it *sim.InvalidTransitionError
	require.ErrorAs(t, err, &it)
	l, _ := f.reg.Locomotive("L1")
	assert.Equal(t, LocoAssigned, l.Status)
	assert.Equal(t, a.ID, l.Assignment)
	assert.Empty(t, f.reg.IdleLocomotives())
	assert.Equal(t, 0, f.log.Count(trace.LocomotiveReleased))
}

func TestRegistry_StationAssignmentsAndLeaks(t *testing.T) {
	f := newFixture(t)
	a := f.reg.OccupyStation("WS", "W1")
	b := f.reg.OccupyStation("WS", "W2")

	err := f.reg.CheckLeaks()
	var leak *sim.ResourceLeakError
	require.ErrorAs(t, err, &leak)
	assert.Len(t, leak.Open, 2)

	require.NoError(t, f.reg.ReleaseStation(a.ID))
	require.NoError(t, f.reg.ReleaseStation(b.ID))
	assert.NoError(t, f.reg.CheckLeaks())
	assert.Error(t, f.reg.ReleaseStation(a.ID), "double release must fail")
	assert.Error(t, f.reg.ReleaseStation("A99999"))

	released := f.log.Filter(func(r trace.Record) bool { return r.Kind == trace.StationReleased })
	require.Len(t, released, 2)
	assert.Equal(t, "W1", released[0].Wagon)
	assert.Len(t, f.reg.Assignments(), 2)
}
