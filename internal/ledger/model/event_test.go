package model

import (
	"testing"
	"time"

	"github.com/custodia-project/custodia/pkg/hashchain"
)

func sampleEvent(ts time.Time) *Event {
	return &Event{
		ShipmentID: "SHP-001",
		EventType:  EventPickup,
		Timestamp:  ts,
		Actor:      Actor{ID: "driver-9", Kind: ActorUser, Name: "K. Osei"},
		Location:   Location{Name: "Depot 4", Kind: LocationFacility},
		Metadata:   map[string]string{"carrier": "acme"},
	}
}

func TestCanonicalPayloadZoneIndependent(t *testing.T) {
	instant := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	offset := instant.In(time.FixedZone("UTC+2", 2*60*60))
	if !instant.Equal(offset) {
		t.Fatal("fixture timestamps must name the same instant")
	}

	utcHash, err := hashchain.Hash(sampleEvent(instant).CanonicalPayload())
	if err != nil {
		t.Fatalf("hash utc payload: %v", err)
	}
	offsetHash, err := hashchain.Hash(sampleEvent(offset).CanonicalPayload())
	if err != nil {
		t.Fatalf("hash offset payload: %v", err)
	}

	if utcHash != offsetHash {
		t.Errorf("same instant hashed to %s (utc) vs %s (+02:00)", utcHash, offsetHash)
	}
}

func TestCanonicalPayloadExcludesDerivedFields(t *testing.T) {
	ts := time.Now().UTC()
	a := sampleEvent(ts)
	b := sampleEvent(ts)
	b.DataHash = "deadbeef"
	b.PreviousHash = "cafef00d"
	b.TransactionHash = "0ddba11"
	b.Signature = "sig"
	b.Verified = true

	ha, err := hashchain.Hash(a.CanonicalPayload())
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	hb, err := hashchain.Hash(b.CanonicalPayload())
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if ha != hb {
		t.Errorf("derived fields changed the digest: %s vs %s", ha, hb)
	}
}
