package model

import "time"

// EventFilter holds the optional, AND-combined criteria for event queries.
// Zero values mean "no constraint".
type EventFilter struct {
	ShipmentID   string       `json:"shipment_id,omitempty"`
	EventTypes   []EventType  `json:"event_types,omitempty"`
	ActorID      string       `json:"actor_id,omitempty"`
	ActorKind    ActorKind    `json:"actor_kind,omitempty"`
	LocationKind LocationKind `json:"location_kind,omitempty"`
	From         *time.Time   `json:"from,omitempty"` // inclusive
	To           *time.Time   `json:"to,omitempty"`   // inclusive
	Verified     *bool        `json:"verified,omitempty"`
}

// Matches reports whether e satisfies every set criterion in f.
func (f EventFilter) Matches(e *Event) bool {
	if f.ShipmentID != "" && e.ShipmentID != f.ShipmentID {
		return false
	}
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if e.EventType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ActorID != "" && e.Actor.ID != f.ActorID {
		return false
	}
	if f.ActorKind != "" && e.Actor.Kind != f.ActorKind {
		return false
	}
	if f.LocationKind != "" && e.Location.Kind != f.LocationKind {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	if f.Verified != nil && e.Verified != *f.Verified {
		return false
	}
	return true
}

// Pagination describes one page of a query result. TotalPages is
// ceil(TotalCount / PageSize); pages past the end are legal and come back
// with an empty event list but truthful counts.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// EventPage is a page of query results plus its pagination metadata.
type EventPage struct {
	Events     []*Event   `json:"events"`
	Pagination Pagination `json:"pagination"`
}

// ChainStats aggregates counters over the whole ledger.
type ChainStats struct {
	TotalEvents          int               `json:"total_events"`
	TotalShipments       int               `json:"total_shipments"`
	EventsToday          int               `json:"events_today"`
	VerifiedRatio        float64           `json:"verified_ratio"`
	AvgEventsPerShipment float64           `json:"avg_events_per_shipment"`
	ByEventType          map[EventType]int `json:"by_event_type"`
}
