// Package scenario loads and validates the YAML description of a workshop
// layout, its fleet and its arrival schedule. Everything the simulator needs
// is checked here so that a run never fails on configuration mid-way.
package scenario

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/retrofit-sim/retrofit-sim/sim"
	"github.com/retrofit-sim/retrofit-sim/sim/fleet"
	"github.com/retrofit-sim/retrofit-sim/sim/registry"
	"github.com/retrofit-sim/retrofit-sim/sim/services"
	"github.com/retrofit-sim/retrofit-sim/sim/trace"
	"github.com/retrofit-sim/retrofit-sim/sim/track"
)

// DefaultArrivalLocation names where trains enter when the scenario does
// not say otherwise.
const DefaultArrivalLocation = "arrival"

// Scenario is the top-level configuration.
// Loaded from YAML via Load(path).
type Scenario struct {
	Name                string         `yaml:"name"`
	Seed                int64          `yaml:"seed"`
	Horizon             int64          `yaml:"horizon,omitempty"` // 0 = run until no events remain
	Strategy            string         `yaml:"strategy,omitempty"`
	LocomotiveSelection string         `yaml:"locomotive_selection,omitempty"`
	Operations          OperationsSpec `yaml:"operations"`
	Tracks              []TrackSpec    `yaml:"tracks"`
	Workshops           []WorkshopSpec `yaml:"workshops"`
	Locomotives         []LocoSpec     `yaml:"locomotives"`
	Routes              []RouteSpec    `yaml:"routes"`
	Trains              []TrainSpec    `yaml:"trains,omitempty"`
	Generator           *GeneratorSpec `yaml:"generator,omitempty"`
}

// OperationsSpec holds shunting parameters shared by every coordinator.
type OperationsSpec struct {
	BatchSize       int    `yaml:"batch_size"`
	CoupleTime      int64  `yaml:"couple_time"`   // per wagon
	DecoupleTime    int64  `yaml:"decouple_time"` // per wagon
	ArrivalLocation string `yaml:"arrival_location,omitempty"`
}

// TrackSpec describes a track.
type TrackSpec struct {
	ID       string  `yaml:"id"`
	Category string  `yaml:"category"`
	Length   float64 `yaml:"length"`
	Buffer   float64 `yaml:"buffer"`
}

// WorkshopSpec describes a workshop.
type WorkshopSpec struct {
	ID             string  `yaml:"id"`
	Track          string  `yaml:"track"`
	Stations       int     `yaml:"stations"`
	RetrofitTime   int64   `yaml:"retrofit_time"`
	RetrofitJitter float64 `yaml:"retrofit_jitter,omitempty"`
}

// LocoSpec describes a locomotive.
type LocoSpec struct {
	ID   string `yaml:"id"`
	Home string `yaml:"home"`
}

// RouteSpec is a travel time between two named locations.
type RouteSpec struct {
	From     string `yaml:"from"`
	To       string `yaml:"to"`
	Duration int64  `yaml:"duration"`
}

// TrainSpec is one scheduled arrival.
type TrainSpec struct {
	ID      string      `yaml:"id"`
	Arrival int64       `yaml:"arrival"`
	Wagons  []WagonSpec `yaml:"wagons"`
}

// WagonSpec is one wagon of a train.
type WagonSpec struct {
	ID            string  `yaml:"id"`
	Length        float64 `yaml:"length"`
	NeedsRetrofit bool    `yaml:"needs_retrofit"`
}

// GeneratorSpec produces a regular arrival schedule from the seed in
// addition to any explicit trains.
type GeneratorSpec struct {
	Trains         int     `yaml:"trains"`
	Start          int64   `yaml:"start"`
	Interval       int64   `yaml:"interval"`
	WagonsPerTrain int     `yaml:"wagons_per_train"`
	MinLength      float64 `yaml:"min_length"`
	MaxLength      float64 `yaml:"max_length"`
	RetrofitShare  float64 `yaml:"retrofit_share"`
}

// Load reads and parses a YAML scenario file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML scenario strictly and applies defaults.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	sc.ApplyDefaults()
	return &sc, nil
}

// ApplyDefaults fills optional fields. Idempotent.
func (s *Scenario) ApplyDefaults() {
	if s.Operations.BatchSize == 0 {
		s.Operations.BatchSize = 1
	}
	if s.Operations.ArrivalLocation == "" {
		s.Operations.ArrivalLocation = DefaultArrivalLocation
	}
	if s.Strategy == "" {
		s.Strategy = track.FirstFit.String()
	}
	if s.LocomotiveSelection == "" {
		s.LocomotiveSelection = fleet.FirstAvailable.String()
	}
}

// Validate checks every field and cross-reference, including that every
// move the coordinators can make has a route. All failures are
// *sim.ConfigurationError.
func (s *Scenario) Validate() error {
	if s.Horizon < 0 {
		return sim.Configf("horizon", "must be non-negative, got %d", s.Horizon)
	}
	if _, err := track.ParseStrategy(s.Strategy); err != nil {
		return sim.Configf("strategy", "%v", err)
	}
	if _, err := fleet.ParseSelection(s.LocomotiveSelection); err != nil {
		return sim.Configf("locomotive_selection", "%v", err)
	}
	if err := s.Operations.validate(); err != nil {
		return err
	}

	tracks, err := track.NewManager(s.TrackSpecs())
	if err != nil {
		return err
	}
	for _, c := range []track.Category{
		track.CategoryCollection, track.CategoryRetrofit, track.CategoryWorkshop,
		track.CategoryRetrofitted, track.CategoryParking,
	} {
		if len(tracks.ByCategory(c)) == 0 {
			return sim.Configf("tracks", "at least one %s track is required", c)
		}
	}
	if tracks.Has(s.Operations.ArrivalLocation) {
		return sim.Configf("operations.arrival_location", "%q must not be a track", s.Operations.ArrivalLocation)
	}

	if len(s.Workshops) == 0 {
		return sim.Configf("workshops", "at least one workshop is required")
	}
	hosted := map[string]bool{}
	for _, w := range s.Workshops {
		hosted[w.Track] = true
	}
	for _, id := range tracks.ByCategory(track.CategoryWorkshop) {
		if !hosted[id] {
			return sim.Configf("tracks", "workshop track %s hosts no workshop", id)
		}
	}
	// Station and track checks are shared with the runtime constructor.
	if err := validateWorkshops(s.WorkshopSpecs(), tracks); err != nil {
		return err
	}

	if len(s.Locomotives) == 0 {
		return sim.Configf("locomotives", "at least one locomotive is required")
	}
	seenLoco := map[string]bool{}
	for i, l := range s.Locomotives {
		field := fmt.Sprintf("locomotives[%d]", i)
		if l.ID == "" {
			return sim.Configf(field, "id must not be empty")
		}
		if seenLoco[l.ID] {
			return sim.Configf(field, "duplicate locomotive id %q", l.ID)
		}
		seenLoco[l.ID] = true
		if !tracks.Has(l.Home) {
			return sim.Configf(field, "unknown home track %q", l.Home)
		}
	}

	if err := s.validateArrivals(); err != nil {
		return err
	}

	routes, err := services.NewRouteTable(s.RouteSpecs())
	if err != nil {
		return err
	}
	return routes.Require(s.RequiredRoutes(tracks))
}

func (o OperationsSpec) validate() error {
	if o.BatchSize < 1 {
		return sim.Configf("operations.batch_size", "must be at least 1, got %d", o.BatchSize)
	}
	if o.CoupleTime < 0 {
		return sim.Configf("operations.couple_time", "must be non-negative, got %d", o.CoupleTime)
	}
	if o.DecoupleTime < 0 {
		return sim.Configf("operations.decouple_time", "must be non-negative, got %d", o.DecoupleTime)
	}
	return nil
}

func validateWorkshops(specs []fleet.WorkshopSpec, tracks *track.Manager) error {
	// A throwaway engine and registry are enough to run the fleet checks.
	eng := sim.NewEngine(nil)
	reg := registry.New(eng.Now, tracks, trace.NewEventLog())
	_, err := fleet.NewWorkshops(eng, reg, specs)
	return err
}

func (s *Scenario) validateArrivals() error {
	seenTrain := map[string]bool{}
	seenWagon := map[string]bool{}
	for i, t := range s.Trains {
		field := fmt.Sprintf("trains[%d]", i)
		if t.ID == "" {
			return sim.Configf(field, "id must not be empty")
		}
		if seenTrain[t.ID] {
			return sim.Configf(field, "duplicate train id %q", t.ID)
		}
		seenTrain[t.ID] = true
		if t.Arrival < 0 {
			return sim.Configf(field, "arrival must be non-negative, got %d", t.Arrival)
		}
		if len(t.Wagons) == 0 {
			return sim.Configf(field, "train has no wagons")
		}
		for j, w := range t.Wagons {
			wf := fmt.Sprintf("%s.wagons[%d]", field, j)
			if w.ID == "" {
				return sim.Configf(wf, "id must not be empty")
			}
			if seenWagon[w.ID] {
				return sim.Configf(wf, "duplicate wagon id %q", w.ID)
			}
			seenWagon[w.ID] = true
			if w.Length <= 0 {
				return sim.Configf(wf, "length must be positive, got %g", w.Length)
			}
		}
	}
	if g := s.Generator; g != nil {
		switch {
		case g.Trains < 0:
			return sim.Configf("generator.trains", "must be non-negative, got %d", g.Trains)
		case g.Start < 0 || g.Interval < 0:
			return sim.Configf("generator", "start and interval must be non-negative")
		case g.WagonsPerTrain < 1 && g.Trains > 0:
			return sim.Configf("generator.wagons_per_train", "must be at least 1, got %d", g.WagonsPerTrain)
		case g.MinLength <= 0 || g.MaxLength < g.MinLength:
			return sim.Configf("generator", "need 0 < min_length <= max_length, got %g..%g", g.MinLength, g.MaxLength)
		case g.RetrofitShare < 0 || g.RetrofitShare > 1:
			return sim.Configf("generator.retrofit_share", "must be in [0, 1], got %g", g.RetrofitShare)
		}
		for i := 0; i < g.Trains; i++ {
			id := generatedTrainID(i)
			if seenTrain[id] {
				return sim.Configf("generator", "generated train id %q collides with an explicit train", id)
			}
			for j := 0; j < g.WagonsPerTrain; j++ {
				if wid := generatedWagonID(id, j); seenWagon[wid] {
					return sim.Configf("generator", "generated wagon id %q collides with an explicit wagon", wid)
				}
			}
		}
	}
	if len(s.Trains) == 0 && (s.Generator == nil || s.Generator.Trains == 0) {
		return sim.Configf("trains", "no arrivals: declare trains or a generator")
	}
	return nil
}

// RequiredRoutes lists every location pair a wagon or locomotive can travel
// between: arrivals into collection, each stage into the next, and any
// pair of tracks a locomotive may be asked to reach.
func (s *Scenario) RequiredRoutes(tracks *track.Manager) [][2]string {
	var pairs [][2]string
	cross := func(from, to []string) {
		for _, a := range from {
			for _, b := range to {
				pairs = append(pairs, [2]string{a, b})
			}
		}
	}
	collection := tracks.ByCategory(track.CategoryCollection)
	retrofit := tracks.ByCategory(track.CategoryRetrofit)
	workshop := tracks.ByCategory(track.CategoryWorkshop)
	retrofitted := tracks.ByCategory(track.CategoryRetrofitted)
	parking := tracks.ByCategory(track.CategoryParking)

	cross([]string{s.Operations.ArrivalLocation}, collection)
	cross(collection, retrofit)
	cross(retrofit, workshop)
	cross(workshop, retrofitted)
	cross(retrofitted, parking)

	// Locomotives stay wherever their last job ended, so any track they
	// serve must reach any other.
	served := map[string]bool{}
	for _, group := range [][]string{collection, retrofit, workshop, retrofitted} {
		for _, id := range group {
			served[id] = true
		}
	}
	for _, l := range s.Locomotives {
		served[l.Home] = true
	}
	ids := make([]string, 0, len(served))
	for id := range served {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	cross(ids, ids)
	return pairs
}

// TrackSpecs converts the track list for track.NewManager.
func (s *Scenario) TrackSpecs() []track.Spec {
	out := make([]track.Spec, len(s.Tracks))
	for i, t := range s.Tracks {
		out[i] = track.Spec{ID: t.ID, Category: track.Category(t.Category), Length: t.Length, Buffer: t.Buffer}
	}
	return out
}

// WorkshopSpecs converts the workshop list for fleet.NewWorkshops.
func (s *Scenario) WorkshopSpecs() []fleet.WorkshopSpec {
	out := make([]fleet.WorkshopSpec, len(s.Workshops))
	for i, w := range s.Workshops {
		out[i] = fleet.WorkshopSpec{
			ID:           w.ID,
			Track:        w.Track,
			Stations:     w.Stations,
			RetrofitTime: w.RetrofitTime,
			Jitter:       w.RetrofitJitter,
		}
	}
	return out
}

// RouteSpecs converts the route list for services.NewRouteTable.
func (s *Scenario) RouteSpecs() []services.Route {
	out := make([]services.Route, len(s.Routes))
	for i, r := range s.Routes {
		out[i] = services.Route{From: r.From, To: r.To, Duration: r.Duration}
	}
	return out
}
