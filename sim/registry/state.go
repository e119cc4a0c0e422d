package registry

import (
	"github.com/retrofit-sim/retrofit-sim/sim/trace"
	"github.com/retrofit-sim/retrofit-sim/sim/track"
)

// WagonStatus is a wagon's lifecycle state.
type WagonStatus string

const (
	StatusArriving                 WagonStatus = "ARRIVING"
	StatusSelecting                WagonStatus = "SELECTING"
	StatusSelected                 WagonStatus = "SELECTED"
	StatusRejected                 WagonStatus = "REJECTED"
	StatusMovingToCollection       WagonStatus = "MOVING_TO_COLLECTION"
	StatusOnCollection             WagonStatus = "ON_COLLECTION"
	StatusMovingToRetrofit         WagonStatus = "MOVING_TO_RETROFIT"
	StatusOnRetrofitTrack          WagonStatus = "ON_RETROFIT_TRACK"
	StatusMovingToWorkshop         WagonStatus = "MOVING_TO_WORKSHOP"
	StatusRetrofitting             WagonStatus = "RETROFITTING"
	StatusRetrofitted              WagonStatus = "RETROFITTED"
	StatusMovingToRetrofittedTrack WagonStatus = "MOVING_TO_RETROFITTED_TRACK"
	StatusOnRetrofittedTrack       WagonStatus = "ON_RETROFITTED_TRACK"
	StatusMovingToParking          WagonStatus = "MOVING_TO_PARKING"
	StatusParked                   WagonStatus = "PARKED"
)

// wagonEdges lists every legal transition.
var wagonEdges = map[WagonStatus][]WagonStatus{
	StatusArriving:                 {StatusSelecting},
	StatusSelecting:                {StatusSelected, StatusRejected},
	StatusSelected:                 {StatusMovingToCollection},
	StatusMovingToCollection:       {StatusOnCollection},
	StatusOnCollection:             {StatusMovingToRetrofit},
	StatusMovingToRetrofit:         {StatusOnRetrofitTrack},
	StatusOnRetrofitTrack:          {StatusMovingToWorkshop},
	StatusMovingToWorkshop:         {StatusRetrofitting},
	StatusRetrofitting:             {StatusRetrofitted},
	StatusRetrofitted:              {StatusMovingToRetrofittedTrack},
	StatusMovingToRetrofittedTrack: {StatusOnRetrofittedTrack},
	StatusOnRetrofittedTrack:       {StatusMovingToParking},
	StatusMovingToParking:          {StatusParked},
}

// moveDestinations maps the moving states to the category of track the
// wagon is placed on when the move starts.
var moveDestinations = map[WagonStatus]track.Category{
	StatusMovingToCollection:       track.CategoryCollection,
	StatusMovingToRetrofit:         track.CategoryRetrofit,
	StatusMovingToWorkshop:         track.CategoryWorkshop,
	StatusMovingToRetrofittedTrack: track.CategoryRetrofitted,
	StatusMovingToParking:          track.CategoryParking,
}

// wagonEventKinds maps each target state to the event its transition emits.
var wagonEventKinds = map[WagonStatus]trace.Kind{
	StatusArriving:                 trace.WagonArrived,
	StatusSelecting:                trace.WagonSelecting,
	StatusSelected:                 trace.WagonSelected,
	StatusRejected:                 trace.WagonRejected,
	StatusMovingToCollection:       trace.WagonMovingToCollection,
	StatusOnCollection:             trace.WagonOnCollection,
	StatusMovingToRetrofit:         trace.WagonMovingToRetrofit,
	StatusOnRetrofitTrack:          trace.WagonOnRetrofitTrack,
	StatusMovingToWorkshop:         trace.WagonMovingToWorkshop,
	StatusRetrofitting:             trace.WagonRetrofitStarted,
	StatusRetrofitted:              trace.WagonRetrofitCompleted,
	StatusMovingToRetrofittedTrack: trace.WagonMovingToRetrofitted,
	StatusOnRetrofittedTrack:       trace.WagonOnRetrofittedTrack,
	StatusMovingToParking:          trace.WagonMovingToParking,
	StatusParked:                   trace.WagonParked,
}

// IsLegal reports whether from -> to is an edge of the wagon state machine.
func IsLegal(from, to WagonStatus) bool {
	for _, next := range wagonEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves the state.
func (s WagonStatus) IsTerminal() bool {
	return s == StatusRejected || s == StatusParked
}

// IsMoving reports whether the wagon is between tracks.
func (s WagonStatus) IsMoving() bool {
	_, ok := moveDestinations[s]
	return ok
}

// KindFor returns the event kind emitted when a wagon enters status.
func KindFor(status WagonStatus) trace.Kind {
	return wagonEventKinds[status]
}

// StatusFor maps a wagon event kind back to the state it announces.
func StatusFor(kind trace.Kind) (WagonStatus, bool) {
	for s, k := range wagonEventKinds {
		if k == kind {
			return s, true
		}
	}
	return "", false
}
