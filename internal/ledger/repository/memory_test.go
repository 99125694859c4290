package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/custodia-project/custodia/internal/ledger/model"
	"github.com/custodia-project/custodia/internal/ledger/repository"
	"github.com/custodia-project/custodia/pkg/hashchain"
	"github.com/google/uuid"
)

var ctx = context.Background()

func storedEvent(shipmentID, previousHash string, ts time.Time) *model.Event {
	e := &model.Event{
		ID:         uuid.New(),
		ShipmentID: shipmentID,
		EventType:  model.EventCheckpoint,
		Timestamp:  ts,
		Actor:      model.Actor{ID: "op-1", Kind: model.ActorUser, Name: "Operator"},
		Location:   model.Location{Name: "Gate 3", Kind: model.LocationCheckpoint},
		Metadata:   map[string]string{"lane": "2"},
	}
	hash, _ := hashchain.Hash(e.CanonicalPayload())
	e.DataHash = hash
	e.PreviousHash = previousHash
	e.TransactionHash = hashchain.TransactionID()
	return e
}

func TestInsert_enforcesChainLink(t *testing.T) {
	store := repository.NewMemoryStore()
	now := time.Now().UTC()

	first := storedEvent("SHP-001", hashchain.GenesisHash("SHP-001"), now)
	if err := store.Insert(ctx, first); err != nil {
		t.Fatal(err)
	}

	// Correct link: previous hash equals the tail's data hash.
	second := storedEvent("SHP-001", first.DataHash, now.Add(time.Millisecond))
	if err := store.Insert(ctx, second); err != nil {
		t.Fatal(err)
	}

	// Stale link: still points at the first event although the tail moved.
	stale := storedEvent("SHP-001", first.DataHash, now.Add(2*time.Millisecond))
	if err := store.Insert(ctx, stale); !errors.Is(err, repository.ErrChainConflict) {
		t.Errorf("expected ErrChainConflict, got %v", err)
	}

	events, _ := store.ListByShipment(ctx, "SHP-001")
	if len(events) != 2 {
		t.Errorf("store holds %d events, want 2 (stale insert must write nothing)", len(events))
	}
}

func TestInsert_firstEventMustLinkToGenesis(t *testing.T) {
	store := repository.NewMemoryStore()

	wrong := storedEvent("SHP-001", "not-the-genesis-hash", time.Now().UTC())
	if err := store.Insert(ctx, wrong); !errors.Is(err, repository.ErrChainConflict) {
		t.Errorf("expected ErrChainConflict, got %v", err)
	}
}

func TestLatest_unknownShipment(t *testing.T) {
	store := repository.NewMemoryStore()

	if _, err := store.Latest(ctx, "SHP-NONE"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListByShipment_ascendingByTimestamp(t *testing.T) {
	store := repository.NewMemoryStore()
	now := time.Now().UTC()

	first := storedEvent("SHP-001", hashchain.GenesisHash("SHP-001"), now)
	_ = store.Insert(ctx, first)
	second := storedEvent("SHP-001", first.DataHash, now.Add(time.Millisecond))
	_ = store.Insert(ctx, second)

	events, err := store.ListByShipment(ctx, "SHP-001")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].ID != first.ID || events[1].ID != second.ID {
		t.Error("events not returned oldest first")
	}
}

func TestDelete_removesEvent(t *testing.T) {
	store := repository.NewMemoryStore()

	e := storedEvent("SHP-001", hashchain.GenesisHash("SHP-001"), time.Now().UTC())
	_ = store.Insert(ctx, e)

	if err := store.Delete(ctx, e.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetByID(ctx, e.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, e.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("double delete: expected ErrNotFound, got %v", err)
	}
}
