package services

// Candidate is a wagon considered for a batch.
type Candidate struct {
	ID     string
	Length float64
}

// Batch is a group of wagons moved together by one locomotive trip. It only
// lives for the duration of that trip.
type Batch struct {
	Wagons []Candidate
}

// IDs returns the wagon ids in batch order.
func (b Batch) IDs() []string {
	ids := make([]string, len(b.Wagons))
	for i, w := range b.Wagons {
		ids[i] = w.ID
	}
	return ids
}

// Length returns the summed wagon length.
func (b Batch) Length() float64 {
	total := 0.0
	for _, w := range b.Wagons {
		total += w.Length
	}
	return total
}

// Len returns the number of wagons.
func (b Batch) Len() int {
	return len(b.Wagons)
}

// FormBatches groups wagons greedily into batches of at most maxSize,
// keeping arrival order within and across batches. maxSize < 1 is treated
// as 1.
func FormBatches(wagons []Candidate, maxSize int) []Batch {
	if maxSize < 1 {
		maxSize = 1
	}
	var batches []Batch
	for start := 0; start < len(wagons); start += maxSize {
		end := min(start+maxSize, len(wagons))
		group := make([]Candidate, end-start)
		copy(group, wagons[start:end])
		batches = append(batches, Batch{Wagons: group})
	}
	return batches
}

// FitPrefix returns how many leading wagons fit into free metres.
func FitPrefix(wagons []Candidate, free float64) int {
	total := 0.0
	for i, w := range wagons {
		total += w.Length
		if total > free+1e-9 {
			return i
		}
	}
	return len(wagons)
}
