package scenario

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

func generatedTrainID(i int) string {
	return fmt.Sprintf("G%03d", i+1)
}

func generatedWagonID(train string, j int) string {
	return fmt.Sprintf("%s-W%02d", train, j+1)
}

// Arrivals returns the complete arrival schedule: explicit trains merged
// with any generated ones, ordered by arrival time. Trains arriving at the
// same time keep declaration order, explicit trains first. rng is only
// drawn from when a generator is configured.
func (s *Scenario) Arrivals(rng *rand.Rand) []TrainSpec {
	trains := make([]TrainSpec, 0, len(s.Trains))
	trains = append(trains, s.Trains...)
	if g := s.Generator; g != nil {
		for i := 0; i < g.Trains; i++ {
			trains = append(trains, g.train(i, rng))
		}
	}
	sort.SliceStable(trains, func(i, j int) bool {
		return trains[i].Arrival < trains[j].Arrival
	})
	return trains
}

func (g *GeneratorSpec) train(i int, rng *rand.Rand) TrainSpec {
	id := generatedTrainID(i)
	t := TrainSpec{ID: id, Arrival: g.Start + int64(i)*g.Interval}
	for j := 0; j < g.WagonsPerTrain; j++ {
		length := g.MinLength
		if g.MaxLength > g.MinLength {
			length += rng.Float64() * (g.MaxLength - g.MinLength)
		}
		t.Wagons = append(t.Wagons, WagonSpec{
			ID: generatedWagonID(id, j),
			// Decimetre resolution keeps generated logs readable.
			Length:        math.Max(math.Round(length*10)/10, g.MinLength),
			NeedsRetrofit: rng.Float64() < g.RetrofitShare,
		})
	}
	return t
}
