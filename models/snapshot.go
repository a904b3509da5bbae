package models

import (
	"strconv"
	"time"
)

// EntityPrefix namespaces every published entity ID.
const EntityPrefix = "amber_valley_bin_dates."

// Snapshot is one successful refresh as seen by the host: the fetched dates
// plus the "collection is today" flags evaluated at refresh time.
type Snapshot struct {
	CycleID     string
	UPRN        UPRN
	Result      CollectionResult
	IsToday     map[WasteStream]bool
	RefreshedAt time.Time
}

// EntityState is a single observable value keyed by its entity ID.
type EntityState struct {
	EntityID string `json:"entity_id"`
	State    string `json:"state"`
}

var entityNames = map[WasteStream]string{
	Domestic:  "Domestic",
	Recycling: "Recycling",
	Garden:    "Garden",
}

// DateEntityID returns the ID of the entity carrying a stream's next date.
func DateEntityID(stream WasteStream) string {
	return EntityPrefix + entityNames[stream] + "WasteDate"
}

// TodayEntityID returns the ID of the entity carrying a stream's is-today flag.
func TodayEntityID(stream WasteStream) string {
	return EntityPrefix + entityNames[stream] + "WasteIsToday"
}

// EntityStates flattens the snapshot into the three date entities followed
// by the three is-today entities.
func (s Snapshot) EntityStates() []EntityState {
	states := make([]EntityState, 0, 2*len(WasteStreams))
	for _, stream := range WasteStreams {
		states = append(states, EntityState{
			EntityID: DateEntityID(stream),
			State:    s.Result.Date(stream).Format(DateLayout),
		})
	}
	for _, stream := range WasteStreams {
		states = append(states, EntityState{
			EntityID: TodayEntityID(stream),
			State:    strconv.FormatBool(s.IsToday[stream]),
		})
	}
	return states
}
