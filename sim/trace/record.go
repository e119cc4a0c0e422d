// Package trace is the append-only event log the simulator emits for the
// analytics layer. This package has no dependencies on the simulator; it
// stores pure data types.
package trace

// Kind names what happened.
type Kind string

const (
	WagonArrived             Kind = "wagon-arrived"
	WagonSelecting           Kind = "wagon-selecting"
	WagonSelected            Kind = "wagon-selected"
	WagonRejected            Kind = "wagon-rejected"
	WagonMovingToCollection  Kind = "wagon-moving-to-collection"
	WagonOnCollection        Kind = "wagon-on-collection"
	WagonMovingToRetrofit    Kind = "wagon-moving-to-retrofit"
	WagonOnRetrofitTrack     Kind = "wagon-on-retrofit-track"
	WagonMovingToWorkshop    Kind = "wagon-moving-to-workshop"
	WagonRetrofitStarted     Kind = "wagon-retrofit-started"
	WagonRetrofitCompleted   Kind = "wagon-retrofit-completed"
	WagonMovingToRetrofitted Kind = "wagon-moving-to-retrofitted-track"
	WagonOnRetrofittedTrack  Kind = "wagon-on-retrofitted-track"
	WagonMovingToParking     Kind = "wagon-moving-to-parking"
	WagonParked              Kind = "wagon-parked"
	LocomotiveAllocated      Kind = "locomotive-allocated"
	LocomotiveDeparted       Kind = "locomotive-departed"
	LocomotiveArrived        Kind = "locomotive-arrived"
	LocomotiveReleased       Kind = "locomotive-released"
	StationOccupied          Kind = "station-occupied"
	StationReleased          Kind = "station-released"
)

// Record is one entry of the event log. Wagon records carry the wagon's
// state change and the track it occupies afterwards (its destination while
// it is moving).
type Record struct {
	Seq        int     `json:"seq"`
	Time       int64   `json:"time"`
	Kind       Kind    `json:"kind"`
	Wagon      string  `json:"wagon,omitempty"`
	Locomotive string  `json:"locomotive,omitempty"`
	Workshop   string  `json:"workshop,omitempty"`
	Track      string  `json:"track,omitempty"`
	From       string  `json:"from,omitempty"`
	To         string  `json:"to,omitempty"`
	Length     float64 `json:"length,omitempty"`
	Detail     string  `json:"detail,omitempty"`
}
