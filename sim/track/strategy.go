package track

import "fmt"

// Strategy selects among tracks with room for a placement.
type Strategy int

const (
	// FirstFit takes the first eligible track in declaration order.
	FirstFit Strategy = iota
	// LeastOccupied takes the eligible track with the lowest occupied/length ratio.
	LeastOccupied
	// RoundRobin rotates through the category, skipping tracks without room.
	RoundRobin
	// BestFit takes the eligible track left with the least free length.
	BestFit
)

var strategyNames = map[Strategy]string{
	FirstFit:      "first-fit",
	LeastOccupied: "least-occupied",
	RoundRobin:    "round-robin",
	BestFit:       "best-fit",
}

// ValidStrategies lists accepted strategy names.
var ValidStrategies = []string{"first-fit", "least-occupied", "round-robin", "best-fit"}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy converts a configuration name into a Strategy. The empty
// string selects FirstFit.
func ParseStrategy(name string) (Strategy, error) {
	if name == "" {
		return FirstFit, nil
	}
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return FirstFit, fmt.Errorf("unknown track selection strategy %q; valid: first-fit, least-occupied, round-robin, best-fit", name)
}
