package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType is the closed enumeration of custody event kinds the ledger
// accepts. Anything outside this set is rejected before persistence.
type EventType string

const (
	EventCreation            EventType = "creation"
	EventDispatch            EventType = "dispatch"
	EventPickup              EventType = "pickup"
	EventInTransit           EventType = "in_transit"
	EventCheckpoint          EventType = "checkpoint"
	EventCustomsCheck        EventType = "customs_check"
	EventCustomsCleared      EventType = "customs_cleared"
	EventCustomsHold         EventType = "customs_hold"
	EventTemperatureReading  EventType = "temperature_reading"
	EventTemperatureAlert    EventType = "temperature_alert"
	EventHumidityReading     EventType = "humidity_reading"
	EventRadiationCheck      EventType = "radiation_check"
	EventLocationUpdate      EventType = "location_update"
	EventHandover            EventType = "handover"
	EventDelivery            EventType = "delivery"
	EventReceiptConfirmation EventType = "receipt_confirmation"
	EventDocumentGenerated   EventType = "document_generated"
	EventDocumentSigned      EventType = "document_signed"
	EventComplianceVerified  EventType = "compliance_verified"
	EventAlertTriggered      EventType = "alert_triggered"
	EventStatusChange        EventType = "status_change"
)

var eventTypes = map[EventType]bool{
	EventCreation: true, EventDispatch: true, EventPickup: true,
	EventInTransit: true, EventCheckpoint: true, EventCustomsCheck: true,
	EventCustomsCleared: true, EventCustomsHold: true,
	EventTemperatureReading: true, EventTemperatureAlert: true,
	EventHumidityReading: true, EventRadiationCheck: true,
	EventLocationUpdate: true, EventHandover: true, EventDelivery: true,
	EventReceiptConfirmation: true, EventDocumentGenerated: true,
	EventDocumentSigned: true, EventComplianceVerified: true,
	EventAlertTriggered: true, EventStatusChange: true,
}

// Valid reports whether t is a member of the closed enumeration.
func (t EventType) Valid() bool { return eventTypes[t] }

// ActorKind classifies who or what produced an event.
type ActorKind string

const (
	ActorUser   ActorKind = "user"
	ActorSystem ActorKind = "system"
	ActorSensor ActorKind = "sensor"
	ActorAPI    ActorKind = "api"
)

// Valid reports whether k is a member of the closed enumeration.
func (k ActorKind) Valid() bool {
	switch k {
	case ActorUser, ActorSystem, ActorSensor, ActorAPI:
		return true
	}
	return false
}

// Actor identifies the party that produced an event. Immutable once embedded.
type Actor struct {
	ID           string    `json:"id"`
	Kind         ActorKind `json:"kind"`
	Name         string    `json:"name"`
	Role         string    `json:"role,omitempty"`
	Organization string    `json:"organization,omitempty"`
	DeviceID     string    `json:"device_id,omitempty"`
}

// LocationKind classifies where an event occurred.
type LocationKind string

const (
	LocationFacility    LocationKind = "facility"
	LocationCheckpoint  LocationKind = "checkpoint"
	LocationVehicle     LocationKind = "vehicle"
	LocationPort        LocationKind = "port"
	LocationCustoms     LocationKind = "customs"
	LocationDestination LocationKind = "destination"
	LocationUnknown     LocationKind = "unknown"
)

// Valid reports whether k is a member of the closed enumeration.
func (k LocationKind) Valid() bool {
	switch k {
	case LocationFacility, LocationCheckpoint, LocationVehicle,
		LocationPort, LocationCustoms, LocationDestination, LocationUnknown:
		return true
	}
	return false
}

// Location records where an event occurred.
type Location struct {
	Name        string       `json:"name"`
	Kind        LocationKind `json:"kind"`
	Latitude    *float64     `json:"latitude,omitempty"`
	Longitude   *float64     `json:"longitude,omitempty"`
	Address     string       `json:"address,omitempty"`
	Country     string       `json:"country,omitempty"`
	CountryCode string       `json:"country_code,omitempty"`
}

// Event is the ledger's atomic unit: one custody/handling record in a
// shipment's hash chain. Events are append-only; the ledger never mutates or
// deletes one after Insert.
type Event struct {
	ID         uuid.UUID         `json:"id"`
	ShipmentID string            `json:"shipment_id"`
	EventType  EventType         `json:"event_type"`
	Timestamp  time.Time         `json:"timestamp"`
	Actor      Actor             `json:"actor"`
	Location   Location          `json:"location"`
	Metadata   map[string]string `json:"metadata,omitempty"`

	// DataHash covers the canonical payload; PreviousHash is the prior
	// event's DataHash (or the shipment's genesis hash for the first event).
	DataHash        string `json:"data_hash"`
	PreviousHash    string `json:"previous_hash"`
	TransactionHash string `json:"transaction_hash"`

	BlockNumber *int64 `json:"block_number,omitempty"`
	Signature   string `json:"signature,omitempty"`

	// Verified is set by an external verification workflow, never by the
	// chain verifier.
	Verified bool `json:"verified"`
}

// canonicalPayload is the exact field set covered by DataHash. It excludes
// ID, DataHash, PreviousHash, TransactionHash, BlockNumber, Signature and
// Verified so that assigning those at write time cannot perturb the digest.
type canonicalPayload struct {
	ShipmentID string            `json:"shipment_id"`
	EventType  EventType         `json:"event_type"`
	Actor      Actor             `json:"actor"`
	Location   Location          `json:"location"`
	Metadata   map[string]string `json:"metadata"`
	Timestamp  time.Time         `json:"timestamp"`
}

// CanonicalPayload returns the hashable projection of the event. The
// timestamp is normalized to UTC so the digest is independent of the zone a
// store hands back.
func (e *Event) CanonicalPayload() any {
	return canonicalPayload{
		ShipmentID: e.ShipmentID,
		EventType:  e.EventType,
		Actor:      e.Actor,
		Location:   e.Location,
		Metadata:   e.Metadata,
		Timestamp:  e.Timestamp.UTC(),
	}
}
