package model

import (
	"time"

	"github.com/google/uuid"
)

// SignatureState is a three-state capability result for event signature
// checks. Signature verification is not implemented yet; surfacing
// "not_implemented" explicitly keeps callers from reading an unchecked
// signature as a checked-and-good one.
type SignatureState string

const (
	SignatureValid          SignatureState = "valid"
	SignatureInvalid        SignatureState = "invalid"
	SignatureNotImplemented SignatureState = "not_implemented"
)

// ChainVerification is the result of walking one shipment's full chain. It is
// persisted as an append-only audit snapshot and returned to the caller.
// Broken links and invalid hashes are data, not errors: detecting tampering
// is the verifier's purpose, not a failure of it.
type ChainVerification struct {
	ID             uuid.UUID   `json:"id"`
	ShipmentID     string      `json:"shipment_id"`
	IsValid        bool        `json:"is_valid"`
	EventCount     int         `json:"event_count"`
	FirstTimestamp time.Time   `json:"first_timestamp"`
	LastTimestamp  time.Time   `json:"last_timestamp"`
	BrokenLinks    []uuid.UUID `json:"broken_links"`
	InvalidHashes  []uuid.UUID `json:"invalid_hashes"`
	VerifiedAt     time.Time   `json:"verified_at"`
}

// EventVerification is the result of verifying a single event in isolation.
type EventVerification struct {
	EventID    uuid.UUID      `json:"event_id"`
	ShipmentID string         `json:"shipment_id"`
	HashValid  bool           `json:"hash_valid"`
	ChainValid bool           `json:"chain_valid"`
	Signature  SignatureState `json:"signature"`
	IsValid    bool           `json:"is_valid"`
	VerifiedAt time.Time      `json:"verified_at"`
}
