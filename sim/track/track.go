// Package track accounts for the length occupied on every track and picks
// destination tracks for wagon moves.
//
// Occupancy is derived from the set of wagons placed on a track. A track
// keeps one safety buffer regardless of how many wagons it holds:
//
//	occupied + length(new wagon) + buffer <= total length
package track

import (
	"fmt"
	"sort"

	"github.com/retrofit-sim/retrofit-sim/sim"
)

// epsilon absorbs float rounding when summing wagon lengths.
const epsilon = 1e-9

// Category is the role a track plays in the workshop layout.
type Category string

const (
	CategoryCollection  Category = "collection"
	CategoryRetrofit    Category = "retrofit"
	CategoryRetrofitted Category = "retrofitted"
	CategoryParking     Category = "parking"
	CategoryWorkshop    Category = "workshop"
)

// ValidCategories is the set of recognized track categories.
var ValidCategories = map[Category]bool{
	CategoryCollection:  true,
	CategoryRetrofit:    true,
	CategoryRetrofitted: true,
	CategoryParking:     true,
	CategoryWorkshop:    true,
}

// Spec is the static description of a track.
type Spec struct {
	ID       string
	Category Category
	Length   float64
	Buffer   float64
}

type placement struct {
	wagonID string
	length  float64
}

type state struct {
	spec       Spec
	placements []placement
	occupied   float64
	peak       float64
}

// Manager owns track occupancy. It is mutated only by the routine holding
// the engine's execution slot, so it needs no locking; callers must place
// right after checking, with no suspension in between.
type Manager struct {
	tracks   map[string]*state
	order    []string
	rrNext   map[Category]int
	released func()
}

// NewManager builds a manager for the given tracks, in declaration order.
func NewManager(specs []Spec) (*Manager, error) {
	m := &Manager{
		tracks: make(map[string]*state, len(specs)),
		rrNext: make(map[Category]int),
	}
	for i, s := range specs {
		field := fmt.Sprintf("tracks[%d]", i)
		if s.ID == "" {
			return nil, sim.Configf(field, "id must not be empty")
		}
		if _, dup := m.tracks[s.ID]; dup {
			return nil, sim.Configf(field, "duplicate track id %q", s.ID)
		}
		if !ValidCategories[s.Category] {
			return nil, sim.Configf(field, "unknown category %q; valid: collection, retrofit, retrofitted, parking, workshop", s.Category)
		}
		if s.Length <= 0 {
			return nil, sim.Configf(field, "length must be positive, got %g", s.Length)
		}
		if s.Buffer < 0 || s.Buffer >= s.Length {
			return nil, sim.Configf(field, "buffer must be in [0, length), got %g", s.Buffer)
		}
		m.tracks[s.ID] = &state{spec: s}
		m.order = append(m.order, s.ID)
	}
	return m, nil
}

// OnRelease registers a hook invoked whenever a wagon is removed from a
// track. The workflow layer uses it to broadcast a capacity signal.
func (m *Manager) OnRelease(fn func()) {
	m.released = fn
}

// Has reports whether the track exists.
func (m *Manager) Has(id string) bool {
	_, ok := m.tracks[id]
	return ok
}

// Spec returns the static description of a track.
func (m *Manager) Spec(id string) (Spec, bool) {
	t, ok := m.tracks[id]
	if !ok {
		return Spec{}, false
	}
	return t.spec, true
}

// IDs returns all track ids in declaration order.
func (m *Manager) IDs() []string {
	return append([]string(nil), m.order...)
}

// ByCategory returns the ids of tracks in a category, in declaration order.
func (m *Manager) ByCategory(c Category) []string {
	var ids []string
	for _, id := range m.order {
		if m.tracks[id].spec.Category == c {
			ids = append(ids, id)
		}
	}
	return ids
}

// Occupied returns the summed length of wagons on the track.
func (m *Manager) Occupied(id string) float64 {
	if t, ok := m.tracks[id]; ok {
		return t.occupied
	}
	return 0
}

// Peak returns the highest occupancy the track has reached.
func (m *Manager) Peak(id string) float64 {
	if t, ok := m.tracks[id]; ok {
		return t.peak
	}
	return 0
}

// Free returns the length still placeable on the track.
func (m *Manager) Free(id string) float64 {
	t, ok := m.tracks[id]
	if !ok {
		return 0
	}
	return t.spec.Length - t.spec.Buffer - t.occupied
}

// Wagons returns the ids of wagons on the track in placement order.
func (m *Manager) Wagons(id string) []string {
	t, ok := m.tracks[id]
	if !ok {
		return nil
	}
	ids := make([]string, len(t.placements))
	for i, p := range t.placements {
		ids[i] = p.wagonID
	}
	return ids
}

// CanPlace reports whether length more metres fit on the track.
func (m *Manager) CanPlace(id string, length float64) bool {
	t, ok := m.tracks[id]
	if !ok {
		return false
	}
	return t.occupied+length+t.spec.Buffer <= t.spec.Length+epsilon
}

// Place puts a wagon on a track. It returns a *sim.CapacityError if the
// wagon does not fit at the time of the call.
func (m *Manager) Place(id, wagonID string, length float64) error {
	t, ok := m.tracks[id]
	if !ok {
		return fmt.Errorf("place %s: unknown track %q", wagonID, id)
	}
	if length <= 0 {
		return fmt.Errorf("place %s on %s: length must be positive, got %g", wagonID, id, length)
	}
	for _, p := range t.placements {
		if p.wagonID == wagonID {
			return fmt.Errorf("place %s on %s: wagon already on track", wagonID, id)
		}
	}
	if !m.CanPlace(id, length) {
		return &sim.CapacityError{
			Track:     id,
			Requested: length,
			Occupied:  t.occupied,
			Buffer:    t.spec.Buffer,
			Length:    t.spec.Length,
		}
	}
	t.placements = append(t.placements, placement{wagonID: wagonID, length: length})
	t.occupied += length
	if t.occupied > t.peak {
		t.peak = t.occupied
	}
	return nil
}

// Remove takes a wagon off a track. It fails only if the wagon is not there.
func (m *Manager) Remove(id, wagonID string) error {
	t, ok := m.tracks[id]
	if !ok {
		return fmt.Errorf("remove %s: unknown track %q", wagonID, id)
	}
	for i, p := range t.placements {
		if p.wagonID != wagonID {
			continue
		}
		t.placements = append(t.placements[:i], t.placements[i+1:]...)
		t.occupied -= p.length
		if len(t.placements) == 0 || t.occupied < epsilon {
			t.occupied = 0
		}
		if m.released != nil {
			m.released()
		}
		return nil
	}
	return fmt.Errorf("remove %s: wagon not on track %s", wagonID, id)
}

// Fits reports whether any track of the category can take required metres.
// Unlike Select it never advances round-robin state.
func (m *Manager) Fits(c Category, required float64) bool {
	for _, id := range m.order {
		if m.tracks[id].spec.Category == c && m.CanPlace(id, required) {
			return true
		}
	}
	return false
}

// Usable returns the longest single placement any track of the category
// could ever take: the largest length minus buffer. Zero when the category
// has no tracks.
func (m *Manager) Usable(c Category) float64 {
	best := 0.0
	for _, id := range m.ByCategory(c) {
		spec := m.tracks[id].spec
		if u := spec.Length - spec.Buffer; u > best {
			best = u
		}
	}
	return best
}

// MaxFree returns the largest free length among tracks of the category.
func (m *Manager) MaxFree(c Category) float64 {
	best := 0.0
	for _, id := range m.ByCategory(c) {
		if f := m.Free(id); f > best {
			best = f
		}
	}
	return best
}

// Select picks a track of the category with room for required metres using
// strategy. The choice depends only on the strategy and current occupancy.
func (m *Manager) Select(c Category, required float64, strategy Strategy) (string, bool) {
	var eligible []string
	for _, id := range m.order {
		if m.tracks[id].spec.Category == c && m.CanPlace(id, required) {
			eligible = append(eligible, id)
		}
	}
	if len(eligible) == 0 {
		return "", false
	}

	switch strategy {
	case FirstFit:
		return eligible[0], true
	case LeastOccupied:
		sort.SliceStable(eligible, func(i, j int) bool {
			return m.utilization(eligible[i]) < m.utilization(eligible[j])
		})
		return eligible[0], true
	case BestFit:
		sort.SliceStable(eligible, func(i, j int) bool {
			return m.Free(eligible[i]) < m.Free(eligible[j])
		})
		return eligible[0], true
	case RoundRobin:
		all := m.ByCategory(c)
		start := m.rrNext[c] % len(all)
		for k := 0; k < len(all); k++ {
			id := all[(start+k)%len(all)]
			if m.CanPlace(id, required) {
				m.rrNext[c] = (start + k + 1) % len(all)
				return id, true
			}
		}
		return "", false
	default:
		panic(fmt.Sprintf("Select: unhandled strategy %d", strategy))
	}
}

func (m *Manager) utilization(id string) float64 {
	t := m.tracks[id]
	return t.occupied / t.spec.Length
}
