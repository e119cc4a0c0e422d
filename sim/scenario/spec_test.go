package scenario

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retrofit-sim/retrofit-sim/sim"
)

const validYAML = `
name: small-yard
seed: 7
horizon: 500
strategy: least-occupied
operations:
  batch_size: 2
  couple_time: 1
  decouple_time: 1
tracks:
  - {id: C1, category: collection, length: 100, buffer: 5}
  - {id: R1, category: retrofit, length: 100}
  - {id: WS1, category: workshop, length: 60}
  - {id: D1, category: retrofitted, length: 100}
  - {id: P1, category: parking, length: 200}
workshops:
  - {id: W1, track: WS1, stations: 2, retrofit_time: 30}
locomotives:
  - {id: L1, home: P1}
routes:
  - {from: arrival, to: C1, duration: 5}
  - {from: C1, to: R1, duration: 3}
  - {from: C1, to: WS1, duration: 6}
  - {from: C1, to: D1, duration: 6}
  - {from: C1, to: P1, duration: 8}
  - {from: R1, to: WS1, duration: 2}
  - {from: R1, to: D1, duration: 4}
  - {from: R1, to: P1, duration: 6}
  - {from: WS1, to: D1, duration: 2}
  - {from: WS1, to: P1, duration: 5}
  - {from: D1, to: P1, duration: 3}
trains:
  - id: T1
    arrival: 0
    wagons:
      - {id: W-1, length: 15, needs_retrofit: true}
      - {id: W-2, length: 15, needs_retrofit: false}
`

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_ValidYAML_LoadsAndValidates(t *testing.T) {
	sc, err := Load(writeScenario(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "small-yard", sc.Name)
	assert.Equal(t, int64(7), sc.Seed)
	assert.Equal(t, 2, sc.Operations.BatchSize)
	assert.Equal(t, DefaultArrivalLocation, sc.Operations.ArrivalLocation)
	assert.Equal(t, "first-available", sc.LocomotiveSelection, "default applied")
	require.Len(t, sc.Trains, 1)
	assert.True(t, sc.Trains[0].Wagons[0].NeedsRetrofit)
	assert.NoError(t, sc.Validate())
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	body := strings.Replace(validYAML, "batch_size: 2", "batch_sise: 2", 1)
	_, err := Load(writeScenario(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_sise")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate_RejectsBadConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Scenario)
		field  string
	}{
		{"negative horizon", func(s *Scenario) { s.Horizon = -1 }, "horizon"},
		{"unknown strategy", func(s *Scenario) { s.Strategy = "random" }, "strategy"},
		{"unknown selection", func(s *Scenario) { s.LocomotiveSelection = "fastest" }, "locomotive_selection"},
		{"zero batch", func(s *Scenario) { s.Operations.BatchSize = 0 }, "operations.batch_size"},
		{"negative couple", func(s *Scenario) { s.Operations.CoupleTime = -1 }, "operations.couple_time"},
		{"buffer too large", func(s *Scenario) { s.Tracks[0].Buffer = 100 }, "tracks[0]"},
		{"missing category", func(s *Scenario) { s.Tracks = s.Tracks[:4] }, "tracks"},
		{"arrival is a track", func(s *Scenario) { s.Operations.ArrivalLocation = "C1" }, "operations.arrival_location"},
		{"no workshops", func(s *Scenario) { s.Workshops = nil }, "workshops"},
		{"zero stations", func(s *Scenario) { s.Workshops[0].Stations = 0 }, "workshops[0]"},
		{"no locomotives", func(s *Scenario) { s.Locomotives = nil }, "locomotives"},
		{"unknown home", func(s *Scenario) { s.Locomotives[0].Home = "X" }, "locomotives[0]"},
		{"duplicate wagon", func(s *Scenario) { s.Trains[0].Wagons[1].ID = "W-1" }, "trains[0].wagons[1]"},
		{"zero length wagon", func(s *Scenario) { s.Trains[0].Wagons[0].Length = 0 }, "trains[0].wagons[0]"},
		{"no arrivals", func(s *Scenario) { s.Trains = nil }, "trains"},
		{"missing route", func(s *Scenario) { s.Routes = s.Routes[1:] }, "routes"},
		{"bad generator share", func(s *Scenario) {
			s.Generator = &GeneratorSpec{Trains: 1, WagonsPerTrain: 1, MinLength: 10, MaxLength: 20, RetrofitShare: 2}
		}, "generator.retrofit_share"},
		{"generated wagon id taken", func(s *Scenario) {
			s.Trains[0].Wagons[1].ID = "G002-W03"
			s.Generator = &GeneratorSpec{Trains: 2, WagonsPerTrain: 3, MinLength: 10, MaxLength: 20, RetrofitShare: 1}
		}, "generator"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sc, err := Parse([]byte(validYAML))
			require.NoError(t, err)
			tc.mutate(sc)

			err = sc.Validate()

			var cfg *sim.ConfigurationError
			require.ErrorAs(t, err, &cfg)
			assert.Equal(t, tc.field, cfg.Field)
		})
	}
}

func TestValidate_MissingRoutesListedTogether(t *testing.T) {
	sc, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	sc.Routes = nil

	err = sc.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "arrival -> C1")
	assert.Contains(t, err.Error(), "D1 -> P1")
}

func TestArrivals_MergesGeneratedTrainsDeterministically(t *testing.T) {
	sc, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	sc.Trains[0].Arrival = 25
	sc.Generator = &GeneratorSpec{
		Trains: 3, Start: 0, Interval: 20, WagonsPerTrain: 4,
		MinLength: 12, MaxLength: 18, RetrofitShare: 0.5,
	}
	require.NoError(t, sc.Validate())

	rngFor := func() *rand.Rand {
		return sim.NewPartitionedRNG(sc.Seed).ForSubsystem(sim.SubsystemArrivals)
	}
	first := sc.Arrivals(rngFor())
	second := sc.Arrivals(rngFor())

	assert.Equal(t, first, second, "same seed yields the same schedule")
	var order []string
	for _, tr := range first {
		order = append(order, tr.ID)
	}
	assert.Equal(t, []string{"G001", "G002", "T1", "G003"}, order)
	for _, tr := range first[:2] {
		require.Len(t, tr.Wagons, 4)
		for _, w := range tr.Wagons {
			assert.GreaterOrEqual(t, w.Length, 12.0)
			assert.LessOrEqual(t, w.Length, 18.0)
		}
	}
}

func TestArrivals_ExplicitOnlyKeepsOrder(t *testing.T) {
	sc, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	sc.Trains = append(sc.Trains, TrainSpec{ID: "T0", Arrival: 0, Wagons: []WagonSpec{{ID: "X", Length: 10}}})

	got := sc.Arrivals(nil)

	require.Len(t, got, 2)
	assert.Equal(t, "T1", got[0].ID, "equal arrival times keep declaration order")
}
