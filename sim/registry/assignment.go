package registry

import (
	"fmt"

	"github.com/retrofit-sim/retrofit-sim/sim"
	"github.com/retrofit-sim/retrofit-sim/sim/trace"
)

// ResourceKind names what an assignment holds.
type ResourceKind string

const (
	ResourceLocomotive ResourceKind = "locomotive"
	ResourceStation    ResourceKind = "station"
)

// Assignment links a held resource to the operation using it. It is opened
// on acquire and closed on release; an assignment still open at the end of
// a completed run is a leak.
type Assignment struct {
	ID        string
	Kind      ResourceKind
	Resource  string
	Operation string
	// Subject is the wagon a station assignment serves.
	Subject   string
	Start     int64
	End       int64
	Open      bool
}

func (a Assignment) String() string {
	return fmt.Sprintf("%s(%s %s: %s since %d)", a.ID, a.Kind, a.Resource, a.Operation, a.Start)
}

func (r *Registry) openAssignment(kind ResourceKind, resource, operation string) *Assignment {
	r.nextAssign++
	a := &Assignment{
		ID:        fmt.Sprintf("A%05d", r.nextAssign),
		Kind:      kind,
		Resource:  resource,
		Operation: operation,
		Start:     r.now(),
		End:       -1,
		Open:      true,
	}
	r.assignments[a.ID] = a
	r.assignOrder = append(r.assignOrder, a.ID)
	return a
}

func (r *Registry) closeAssignment(id string) error {
	a, ok := r.assignments[id]
	if !ok {
		return fmt.Errorf("close assignment %q: unknown", id)
	}
	if !a.Open {
		return &sim.InvalidTransitionError{Entity: id, Current: "closed", Target: "closed", Detail: "released twice"}
	}
	a.Open = false
	a.End = r.now()
	return nil
}

// OccupyStation opens a station assignment at workshop for wagon and emits
// station-occupied. The caller must already hold a unit of the workshop's
// station pool.
func (r *Registry) OccupyStation(workshop, wagonID string) Assignment {
	a := r.openAssignment(ResourceStation, workshop, "retrofit")
	a.Subject = wagonID
	r.log.Append(trace.Record{
		Time:     r.now(),
		Kind:     trace.StationOccupied,
		Workshop: workshop,
		Wagon:    wagonID,
		Detail:   a.ID,
	})
	return *a
}

// ReleaseStation closes a station assignment and emits station-released.
func (r *Registry) ReleaseStation(assignmentID string) error {
	a, ok := r.assignments[assignmentID]
	if !ok || a.Kind != ResourceStation {
		return fmt.Errorf("release station: unknown assignment %q", assignmentID)
	}
	if err := r.closeAssignment(assignmentID); err != nil {
		return err
	}
	r.log.Append(trace.Record{
		Time:     r.now(),
		Kind:     trace.StationReleased,
		Workshop: a.Resource,
		Wagon:    a.Subject,
		Detail:   a.ID,
	})
	return nil
}

// Assignments returns every assignment in the order it was opened.
func (r *Registry) Assignments() []Assignment {
	out := make([]Assignment, 0, len(r.assignOrder))
	for _, id := range r.assignOrder {
		out = append(out, *r.assignments[id])
	}
	return out
}

// OpenAssignments returns assignments that were never released.
func (r *Registry) OpenAssignments() []Assignment {
	var out []Assignment
	for _, id := range r.assignOrder {
		if a := r.assignments[id]; a.Open {
			out = append(out, *a)
		}
	}
	return out
}

// CheckLeaks returns a *sim.ResourceLeakError if any assignment is open.
func (r *Registry) CheckLeaks() error {
	open := r.OpenAssignments()
	if len(open) == 0 {
		return nil
	}
	names := make([]string, len(open))
	for i, a := range open {
		names[i] = a.String()
	}
	return &sim.ResourceLeakError{Open: names}
}
