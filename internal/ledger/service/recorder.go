// Package service contains the custody ledger's business logic: recording
// events into per-shipment hash chains, verifying chain integrity, and
// answering queries.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/custodia-project/custodia/internal/ledger/model"
	"github.com/custodia-project/custodia/internal/ledger/repository"
	"github.com/custodia-project/custodia/pkg/hashchain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// insertRetries bounds how often RecordEvent retries after losing an insert
// race to a writer outside this process (another instance sharing the store).
const insertRetries = 3

// EventInput is the caller-supplied portion of a custody event. The ledger
// assigns everything else (id, timestamp, hashes, transaction hash) at
// recording time; in particular the timestamp is never caller-supplied, to
// prevent backdating.
type EventInput struct {
	ShipmentID string            `json:"shipment_id"`
	EventType  model.EventType   `json:"event_type"`
	Actor      model.Actor       `json:"actor"`
	Location   model.Location    `json:"location"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Signature  string            `json:"signature,omitempty"`
}

// BatchError pairs a failed batch item with its input index.
type BatchError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// BatchResult reports both the successfully recorded events and the per-item
// failures of a batch. Partial success is an outcome, not an error.
type BatchResult struct {
	Recorded []*model.Event `json:"recorded"`
	Errors   []BatchError   `json:"errors"`
}

// Recorder owns appends to the ledger and the chain-linking invariant.
type Recorder struct {
	store  repository.EventStore
	locks  *keyedMutex
	logger *zap.Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder on top of the given store.
func NewRecorder(store repository.EventStore, logger *zap.Logger) *Recorder {
	return &Recorder{
		store:  store,
		locks:  newKeyedMutex(),
		logger: logger,
		now:    time.Now,
	}
}

// RecordEvent validates the input, links it to the shipment's current chain
// tail, and persists exactly one new event. Writers for the same shipment are
// serialised so two concurrent calls can never both link to the same parent.
func (r *Recorder) RecordEvent(ctx context.Context, in EventInput) (*model.Event, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	r.locks.Lock(in.ShipmentID)
	defer r.locks.Unlock(in.ShipmentID)

	var lastErr error
	for attempt := 0; attempt < insertRetries; attempt++ {
		event, err := r.append(ctx, in)
		if err == nil {
			r.logger.Info("custody event recorded",
				zap.String("shipment_id", event.ShipmentID),
				zap.String("event_type", string(event.EventType)),
				zap.String("event_id", event.ID.String()),
			)
			return event, nil
		}
		if !errors.Is(err, repository.ErrChainConflict) {
			return nil, err
		}
		// Another instance advanced the tail between our read and insert.
		// Re-read and retry.
		lastErr = err
	}
	return nil, &PersistenceError{Op: "record event", Err: lastErr}
}

// append performs one read-tail/compute/insert cycle.
func (r *Recorder) append(ctx context.Context, in EventInput) (*model.Event, error) {
	previousHash := hashchain.GenesisHash(in.ShipmentID)
	var tailTS time.Time

	tail, err := r.store.Latest(ctx, in.ShipmentID)
	switch {
	case err == nil:
		previousHash = tail.DataHash
		tailTS = tail.Timestamp
	case errors.Is(err, repository.ErrNotFound):
		// First event of the chain.
	default:
		return nil, &PersistenceError{Op: "read chain tail", Err: err}
	}

	// Timestamps are truncated to microseconds so a digest computed before
	// persisting still matches one recomputed from a timestamptz column.
	ts := r.now().UTC().Truncate(time.Microsecond)
	// Within one chain timestamps must strictly increase; they are the
	// chain's total order.
	if !ts.After(tailTS) {
		ts = tailTS.Add(time.Microsecond)
	}

	event := &model.Event{
		ID:           uuid.New(),
		ShipmentID:   in.ShipmentID,
		EventType:    in.EventType,
		Timestamp:    ts,
		Actor:        in.Actor,
		Location:     in.Location,
		Metadata:     in.Metadata,
		PreviousHash: previousHash,
		Signature:    in.Signature,
		Verified:     false,
	}

	dataHash, err := hashchain.Hash(event.CanonicalPayload())
	if err != nil {
		return nil, &ValidationError{Field: "payload", Reason: err.Error()}
	}
	event.DataHash = dataHash
	event.TransactionHash = hashchain.TransactionID()

	if err := r.store.Insert(ctx, event); err != nil {
		if errors.Is(err, repository.ErrChainConflict) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "insert event", Err: err}
	}
	return event, nil
}

// BatchRecord records the specs strictly in input order, isolating per-item
// failures: a failure on item k does not abort items k+1..n. Each item goes
// through RecordEvent and therefore through the same per-shipment
// serialisation as any other writer.
func (r *Recorder) BatchRecord(ctx context.Context, shipmentID string, specs []EventInput) *BatchResult {
	result := &BatchResult{
		Recorded: []*model.Event{},
		Errors:   []BatchError{},
	}
	for i, spec := range specs {
		spec.ShipmentID = shipmentID
		event, err := r.RecordEvent(ctx, spec)
		if err != nil {
			result.Errors = append(result.Errors, BatchError{Index: i, Error: err.Error()})
			continue
		}
		result.Recorded = append(result.Recorded, event)
	}
	return result
}

// GetEvent returns a single event by id. Pure lookup, no side effects.
// Returns repository.ErrNotFound when the id does not exist.
func (r *Recorder) GetEvent(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	return r.store.GetByID(ctx, id)
}

// GetChainEvents returns all events for a shipment, ascending by timestamp.
// An unknown shipment yields an empty slice, not an error.
func (r *Recorder) GetChainEvents(ctx context.Context, shipmentID string) ([]*model.Event, error) {
	events, err := r.store.ListByShipment(ctx, shipmentID)
	if err != nil {
		return nil, &PersistenceError{Op: "list chain events", Err: err}
	}
	if events == nil {
		events = []*model.Event{}
	}
	return events, nil
}

func validateInput(in EventInput) error {
	if in.ShipmentID == "" {
		return &ValidationError{Field: "shipment_id", Reason: "must not be empty"}
	}
	if !in.EventType.Valid() {
		return &ValidationError{Field: "event_type", Reason: "unknown value " + string(in.EventType)}
	}
	if in.Actor.ID == "" {
		return &ValidationError{Field: "actor.id", Reason: "must not be empty"}
	}
	if !in.Actor.Kind.Valid() {
		return &ValidationError{Field: "actor.kind", Reason: "unknown value " + string(in.Actor.Kind)}
	}
	if !in.Location.Kind.Valid() {
		return &ValidationError{Field: "location.kind", Reason: "unknown value " + string(in.Location.Kind)}
	}
	return nil
}
