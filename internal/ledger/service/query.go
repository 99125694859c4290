package service

import (
	"context"
	"time"

	"github.com/custodia-project/custodia/internal/ledger/model"
	"github.com/custodia-project/custodia/internal/ledger/repository"
	"github.com/custodia-project/custodia/pkg/hashchain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Query is the read-only surface over the ledger: filtered pagination and
// aggregate statistics. It never mutates state.
type Query struct {
	store repository.EventStore
}

// NewQuery creates a Query service on top of the given store.
func NewQuery(store repository.EventStore) *Query {
	return &Query{store: store}
}

// Events returns one page of events matching the filter, newest first.
// Pages are 1-based; out-of-range pages yield an empty list with pagination
// metadata still reflecting the true match count.
func (q *Query) Events(ctx context.Context, f model.EventFilter, page, pageSize int) (*model.EventPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	offset := (page - 1) * pageSize
	events, total, err := q.store.Query(ctx, f, pageSize, offset)
	if err != nil {
		return nil, &PersistenceError{Op: "query events", Err: err}
	}
	if events == nil {
		events = []*model.Event{}
	}

	totalPages := (total + pageSize - 1) / pageSize
	return &model.EventPage{
		Events: events,
		Pagination: model.Pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalCount: total,
			TotalPages: totalPages,
		},
	}, nil
}

// Stats returns ledger-wide aggregate counters.
func (q *Query) Stats(ctx context.Context) (*model.ChainStats, error) {
	stats, err := q.store.Stats(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "aggregate stats", Err: err}
	}
	return stats, nil
}

// DayAnchor computes the Merkle root over the data hashes of one shipment's
// events on the given UTC day (ascending order). It produces a compact
// aggregate proof for a day's activity without exposing every individual
// hash. Returns ErrEmptyChain when the shipment has no events that day.
func (q *Query) DayAnchor(ctx context.Context, shipmentID string, day time.Time) (string, int, error) {
	events, err := q.store.ListByShipment(ctx, shipmentID)
	if err != nil {
		return "", 0, &PersistenceError{Op: "load chain", Err: err}
	}

	dayStart := day.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	var digests []string
	for _, e := range events {
		if !e.Timestamp.Before(dayStart) && e.Timestamp.Before(dayEnd) {
			digests = append(digests, e.DataHash)
		}
	}
	if len(digests) == 0 {
		return "", 0, ErrEmptyChain
	}
	return hashchain.MerkleRoot(digests), len(digests), nil
}
