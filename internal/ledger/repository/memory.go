package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-project/custodia/internal/ledger/model"
	"github.com/custodia-project/custodia/pkg/hashchain"
	"github.com/google/uuid"
)

// MemoryStore is an in-memory, thread-safe EventStore. It is primarily
// useful for tests and for single-process deployments without durability
// requirements.
type MemoryStore struct {
	mu            sync.RWMutex
	events        []*model.Event
	verifications []*model.ChainVerification
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert implements EventStore.
func (s *MemoryStore) Insert(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expected := hashchain.GenesisHash(e.ShipmentID)
	if tail := s.latestLocked(e.ShipmentID); tail != nil {
		expected = tail.DataHash
	}
	if e.PreviousHash != expected {
		return ErrChainConflict
	}
	s.events = append(s.events, e)
	return nil
}

// latestLocked returns the newest event for a shipment, or nil. Caller holds
// the lock.
func (s *MemoryStore) latestLocked(shipmentID string) *model.Event {
	var tail *model.Event
	for _, e := range s.events {
		if e.ShipmentID != shipmentID {
			continue
		}
		if tail == nil || e.Timestamp.After(tail.Timestamp) {
			tail = e
		}
	}
	return tail
}

// GetByID implements EventStore. The returned record is the stored one, not
// a copy; callers must treat it as read-only.
func (s *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.events {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, ErrNotFound
}

// Latest implements EventStore.
func (s *MemoryStore) Latest(_ context.Context, shipmentID string) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if tail := s.latestLocked(shipmentID); tail != nil {
		return tail, nil
	}
	return nil, ErrNotFound
}

// ListByShipment implements EventStore.
func (s *MemoryStore) ListByShipment(_ context.Context, shipmentID string) ([]*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Event
	for _, e := range s.events {
		if e.ShipmentID == shipmentID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// Query implements EventStore.
func (s *MemoryStore) Query(_ context.Context, f model.EventFilter, limit, offset int) ([]*model.Event, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*model.Event
	for _, e := range s.events {
		if f.Matches(e) {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := len(matched)
	if offset >= total {
		return []*model.Event{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

// Stats implements EventStore.
func (s *MemoryStore) Stats(_ context.Context) (*model.ChainStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &model.ChainStats{
		ByEventType: make(map[model.EventType]int),
	}
	shipments := make(map[string]bool)
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)

	verified := 0
	for _, e := range s.events {
		stats.TotalEvents++
		shipments[e.ShipmentID] = true
		stats.ByEventType[e.EventType]++
		if !e.Timestamp.Before(dayStart) {
			stats.EventsToday++
		}
		if e.Verified {
			verified++
		}
	}

	stats.TotalShipments = len(shipments)
	if stats.TotalEvents > 0 {
		stats.VerifiedRatio = float64(verified) / float64(stats.TotalEvents)
	}
	if stats.TotalShipments > 0 {
		stats.AvgEventsPerShipment = float64(stats.TotalEvents) / float64(stats.TotalShipments)
	}
	return stats, nil
}

// InsertVerification implements EventStore.
func (s *MemoryStore) InsertVerification(_ context.Context, v *model.ChainVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifications = append(s.verifications, v)
	return nil
}

// Verifications returns all persisted verification snapshots, oldest first.
func (s *MemoryStore) Verifications() []*model.ChainVerification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.ChainVerification, len(s.verifications))
	copy(out, s.verifications)
	return out
}

// Delete implements EventStore.
func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.events {
		if e.ID == id {
			s.events = append(s.events[:i], s.events[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}
