package trace

import (
	"fmt"
	"io"
	"math"
	"sort"
)

// Summary aggregates a finished event log for final reporting.
type Summary struct {
	Clock       int64 // Virtual time the run ended at
	Arrived     int   // wagon-arrived events
	Rejected    int   // wagon-rejected events
	Retrofitted int   // wagon-retrofit-completed events
	Parked      int   // wagon-parked events

	RejectedBy map[string]int // reject reason -> count

	// Retrofit time is retrofit start to completion; turnaround is arrival
	// to parking. Both in ticks.
	MeanRetrofitTime float64
	MeanTurnaround   float64
	P50Turnaround    float64
	P95Turnaround    float64

	TrackPeak          map[string]float64 // track -> highest occupied metres
	LocomotiveBusy     map[string]float64 // locomotive -> fraction of Clock assigned
	StationUtilization map[string]float64 // workshop -> busy station-ticks / (stations * Clock)
}

// Number is the set of types Mean and Percentile accept.
type Number interface {
	int | int64 | float64
}

// Percentile returns the p-th percentile of sorted data by linear
// interpolation between closest ranks. Empty data yields 0.
func Percentile[T Number](data []T, p float64) float64 {
	n := len(data)
	if n == 0 {
		return 0
	}
	rank := p / 100.0 * float64(n-1)
	lowerIdx := int(math.Floor(rank))
	upperIdx := int(math.Ceil(rank))
	if upperIdx >= n {
		return float64(data[n-1])
	}
	if lowerIdx == upperIdx {
		return float64(data[lowerIdx])
	}
	lowerVal, upperVal := float64(data[lowerIdx]), float64(data[upperIdx])
	return lowerVal + (upperVal-lowerVal)*(rank-float64(lowerIdx))
}

// Mean returns the arithmetic mean, 0 for empty data.
func Mean[T Number](numbers []T) float64 {
	if len(numbers) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, number := range numbers {
		sum += float64(number)
	}
	return sum / float64(len(numbers))
}

// Summarize computes a Summary from records in log order. stations gives
// the station count per workshop for utilization; workshops missing from
// it report no utilization.
func Summarize(records []Record, clock int64, stations map[string]int) Summary {
	s := Summary{
		Clock:              clock,
		RejectedBy:         map[string]int{},
		TrackPeak:          map[string]float64{},
		LocomotiveBusy:     map[string]float64{},
		StationUtilization: map[string]float64{},
	}

	arrived := map[string]int64{}
	retrofitStart := map[string]int64{}
	var retrofitTimes, turnarounds []int64

	// Occupancy is replayed from wagon records: a record whose track differs
	// from the wagon's previous one moves the wagon's length across.
	wagonTrack := map[string]string{}
	occupied := map[string]float64{}

	locoSince := map[string]int64{}
	locoBusy := map[string]int64{}
	stationSince := map[string]int64{}
	stationOf := map[string]string{}
	stationBusy := map[string]int64{}

	for _, r := range records {
		if r.Wagon != "" && r.Kind != StationOccupied && r.Kind != StationReleased {
			if prev := wagonTrack[r.Wagon]; r.Track != prev {
				if prev != "" {
					occupied[prev] -= r.Length
				}
				if r.Track != "" {
					occupied[r.Track] += r.Length
					if occupied[r.Track] > s.TrackPeak[r.Track] {
						s.TrackPeak[r.Track] = occupied[r.Track]
					}
				}
				wagonTrack[r.Wagon] = r.Track
			}
		}

		switch r.Kind {
		case WagonArrived:
			s.Arrived++
			arrived[r.Wagon] = r.Time
		case WagonRejected:
			s.Rejected++
			s.RejectedBy[r.Detail]++
		case WagonRetrofitStarted:
			retrofitStart[r.Wagon] = r.Time
		case WagonRetrofitCompleted:
			s.Retrofitted++
			if start, ok := retrofitStart[r.Wagon]; ok {
				retrofitTimes = append(retrofitTimes, r.Time-start)
			}
		case WagonParked:
			s.Parked++
			turnarounds = append(turnarounds, r.Time-arrived[r.Wagon])
		case LocomotiveAllocated:
			locoSince[r.Locomotive] = r.Time
			if _, seen := locoBusy[r.Locomotive]; !seen {
				locoBusy[r.Locomotive] = 0
			}
		case LocomotiveReleased:
			locoBusy[r.Locomotive] += r.Time - locoSince[r.Locomotive]
			delete(locoSince, r.Locomotive)
		case StationOccupied:
			stationSince[r.Detail] = r.Time
			stationOf[r.Detail] = r.Workshop
		case StationReleased:
			stationBusy[r.Workshop] += r.Time - stationSince[r.Detail]
			delete(stationSince, r.Detail)
		}
	}

	// Assignments still open at the end count up to the final clock.
	for loco, since := range locoSince {
		locoBusy[loco] += clock - since
	}
	for id, since := range stationSince {
		stationBusy[stationOf[id]] += clock - since
	}

	s.MeanRetrofitTime = Mean(retrofitTimes)
	sort.Slice(turnarounds, func(i, j int) bool { return turnarounds[i] < turnarounds[j] })
	s.MeanTurnaround = Mean(turnarounds)
	s.P50Turnaround = Percentile(turnarounds, 50)
	s.P95Turnaround = Percentile(turnarounds, 95)

	for loco, busy := range locoBusy {
		s.LocomotiveBusy[loco] = ratio(busy, clock)
	}
	for ws, n := range stations {
		if n > 0 {
			s.StationUtilization[ws] = ratio(stationBusy[ws], clock*int64(n))
		}
	}
	return s
}

func ratio(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole)
}

// Print writes a human-readable report.
func (s Summary) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Simulation Summary ===")
	fmt.Fprintf(w, "Final Clock          : %d ticks\n", s.Clock)
	fmt.Fprintf(w, "Arrived Wagons       : %d\n", s.Arrived)
	fmt.Fprintf(w, "Rejected Wagons      : %d\n", s.Rejected)
	for _, reason := range sortedKeys(s.RejectedBy) {
		fmt.Fprintf(w, "  %-18s : %d\n", reason, s.RejectedBy[reason])
	}
	fmt.Fprintf(w, "Retrofitted Wagons   : %d\n", s.Retrofitted)
	fmt.Fprintf(w, "Parked Wagons        : %d\n", s.Parked)
	if s.Parked > 0 {
		fmt.Fprintf(w, "Mean Retrofit Time   : %.2f ticks\n", s.MeanRetrofitTime)
		fmt.Fprintf(w, "Mean Turnaround      : %.2f ticks\n", s.MeanTurnaround)
		fmt.Fprintf(w, "P50/P95 Turnaround   : %.2f / %.2f ticks\n", s.P50Turnaround, s.P95Turnaround)
	}
	for _, id := range sortedKeys(s.TrackPeak) {
		fmt.Fprintf(w, "Peak %-15s : %.1f m\n", id, s.TrackPeak[id])
	}
	for _, id := range sortedKeys(s.LocomotiveBusy) {
		fmt.Fprintf(w, "Busy %-15s : %.1f%%\n", id, 100*s.LocomotiveBusy[id])
	}
	for _, id := range sortedKeys(s.StationUtilization) {
		fmt.Fprintf(w, "Stations %-11s : %.1f%%\n", id, 100*s.StationUtilization[id])
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
