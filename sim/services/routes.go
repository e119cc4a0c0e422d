// Package services holds the pure domain rules the coordinators apply:
// batch formation, coupling timing and travel-time lookup. Nothing here
// touches the engine or suspends.
package services

import (
	"fmt"
	"sort"

	"github.com/retrofit-sim/retrofit-sim/sim"
)

// Route is a travel time between two named locations.
type Route struct {
	From     string
	To       string
	Duration int64
}

type routeKey struct{ from, to string }

// RouteTable looks up travel times. A route declared in one direction also
// serves the reverse direction unless the reverse is declared explicitly.
type RouteTable struct {
	times map[routeKey]int64
}

// NewRouteTable builds a table, rejecting duplicates and negative durations.
func NewRouteTable(routes []Route) (*RouteTable, error) {
	t := &RouteTable{times: make(map[routeKey]int64, 2*len(routes))}
	declared := make(map[routeKey]bool, len(routes))
	for i, r := range routes {
		field := fmt.Sprintf("routes[%d]", i)
		if r.From == "" || r.To == "" {
			return nil, sim.Configf(field, "from and to must be set")
		}
		if r.From == r.To {
			return nil, sim.Configf(field, "route from %s to itself", r.From)
		}
		if r.Duration < 0 {
			return nil, sim.Configf(field, "duration must be non-negative, got %d", r.Duration)
		}
		k := routeKey{r.From, r.To}
		if declared[k] {
			return nil, sim.Configf(field, "duplicate route %s -> %s", r.From, r.To)
		}
		declared[k] = true
		t.times[k] = r.Duration
	}
	for k, d := range t.times {
		rev := routeKey{k.to, k.from}
		if !declared[rev] {
			t.times[rev] = d
		}
	}
	return t, nil
}

// TravelTime returns the duration from one location to another. Staying
// put costs nothing.
func (t *RouteTable) TravelTime(from, to string) (int64, error) {
	if from == to {
		return 0, nil
	}
	d, ok := t.times[routeKey{from, to}]
	if !ok {
		return 0, fmt.Errorf("no route from %s to %s", from, to)
	}
	return d, nil
}

// Has reports whether from -> to can be travelled.
func (t *RouteTable) Has(from, to string) bool {
	_, err := t.TravelTime(from, to)
	return err == nil
}

// Require checks that every pair is routable and reports all missing pairs
// as one ConfigurationError, sorted for stable messages.
func (t *RouteTable) Require(pairs [][2]string) error {
	missing := map[string]bool{}
	for _, p := range pairs {
		if !t.Has(p[0], p[1]) {
			missing[fmt.Sprintf("%s -> %s", p[0], p[1])] = true
		}
	}
	if len(missing) == 0 {
		return nil
	}
	list := make([]string, 0, len(missing))
	for m := range missing {
		list = append(list, m)
	}
	sort.Strings(list)
	return sim.Configf("routes", "missing route(s): %v", list)
}
