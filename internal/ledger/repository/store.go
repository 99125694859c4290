// Package repository provides persistence for custody events. Two
// implementations of EventStore are provided:
//
//   - MemoryStore: in-process, for testing and single-node development.
//   - PostgresStore: durable, for production use.
//
// Both enforce the chain link at insert time: an event whose PreviousHash no
// longer matches the shipment's current tail is rejected with
// ErrChainConflict so the caller can re-read the tail and retry.
package repository

import (
	"context"
	"errors"

	"github.com/custodia-project/custodia/internal/ledger/model"
	"github.com/google/uuid"
)

// ErrNotFound is returned when an event does not exist, or when Latest is
// asked about a shipment with no recorded events.
var ErrNotFound = errors.New("event not found")

// ErrChainConflict is returned by Insert when the event's PreviousHash does
// not match the shipment's current tail. A concurrent writer got there first;
// the caller should recompute the link and retry.
var ErrChainConflict = errors.New("chain tail moved since previous hash was computed")

// EventStore is the persistence contract the ledger services operate
// against.
type EventStore interface {
	// Insert appends one event. The event's PreviousHash must equal the
	// shipment's current tail DataHash (or the genesis hash when the chain
	// is empty); otherwise Insert fails with ErrChainConflict and writes
	// nothing.
	Insert(ctx context.Context, e *model.Event) error

	// GetByID returns the event with the given id, or ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Event, error)

	// Latest returns the most recent event for a shipment (by timestamp
	// descending), or ErrNotFound when the shipment has no events.
	Latest(ctx context.Context, shipmentID string) (*model.Event, error)

	// ListByShipment returns all events for a shipment ascending by
	// timestamp. An unknown shipment yields an empty slice, not an error.
	ListByShipment(ctx context.Context, shipmentID string) ([]*model.Event, error)

	// Query returns one page of events matching the filter, newest first,
	// along with the total match count.
	Query(ctx context.Context, f model.EventFilter, limit, offset int) ([]*model.Event, int, error)

	// Stats aggregates ledger-wide counters.
	Stats(ctx context.Context) (*model.ChainStats, error)

	// InsertVerification persists an append-only chain verification
	// snapshot for audit purposes.
	InsertVerification(ctx context.Context, v *model.ChainVerification) error

	// Delete removes an event. The ledger itself never calls this: deleting
	// an event breaks the hash chain for every later event, which is exactly
	// what verification exists to detect. It is provided for store
	// administration and for exercising broken-link detection.
	Delete(ctx context.Context, id uuid.UUID) error
}
