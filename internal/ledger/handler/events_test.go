package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/custodia-project/custodia/internal/ledger/handler"
	"github.com/custodia-project/custodia/internal/ledger/repository"
	"github.com/custodia-project/custodia/internal/ledger/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	recorder := service.NewRecorder(store, zap.NewNop())
	verifier := service.NewVerifier(store, zap.NewNop())
	query := service.NewQuery(store)

	r := gin.New()
	v1 := r.Group("/api/v1")
	handler.NewEventHandler(recorder, query, zap.NewNop()).Register(v1)
	handler.NewVerifyHandler(verifier, zap.NewNop()).Register(v1)
	return r
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func getJSON(t *testing.T, router *gin.Engine, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if out != nil && w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return w
}

func eventBody(shipmentID, eventType string) map[string]any {
	return map[string]any{
		"shipment_id": shipmentID,
		"event_type":  eventType,
		"actor": map[string]any{
			"id":   "op-17",
			"kind": "user",
			"name": "Warehouse Operator",
		},
		"location": map[string]any{
			"name": "Rotterdam Terminal 4",
			"kind": "port",
		},
		"metadata": map[string]string{"carrier": "NRC-Freight"},
	}
}

func TestRecordEvent_201(t *testing.T) {
	router := setupRouter(t)

	w := postJSON(t, router, "/api/v1/events", eventBody("SHP-001", "creation"))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"id", "data_hash", "previous_hash", "transaction_hash", "timestamp"} {
		if resp[field] == nil || resp[field] == "" {
			t.Errorf("response missing %q", field)
		}
	}
	if resp["verified"] != false {
		t.Error("new events must be reported unverified")
	}
}

func TestRecordEvent_400_unknownEventType(t *testing.T) {
	router := setupRouter(t)

	w := postJSON(t, router, "/api/v1/events", eventBody("SHP-001", "teleported"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetEvent_404(t *testing.T) {
	router := setupRouter(t)

	w := getJSON(t, router, "/api/v1/events/2a9e43e1-30c8-4aac-b24a-56ac82f80ae1", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestBatchRecord_partialSuccess(t *testing.T) {
	router := setupRouter(t)

	good := eventBody("", "creation")
	bad := eventBody("", "nonsense")
	w := postJSON(t, router, "/api/v1/events/batch", map[string]any{
		"shipment_id": "SHP-001",
		"events":      []any{good, bad, eventBody("", "dispatch")},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Recorded []map[string]any `json:"recorded"`
		Errors   []struct {
			Index int    `json:"index"`
			Error string `json:"error"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Recorded) != 2 || len(resp.Errors) != 1 {
		t.Fatalf("recorded=%d errors=%d, want 2/1", len(resp.Recorded), len(resp.Errors))
	}
	if resp.Errors[0].Index != 1 {
		t.Errorf("failure index = %d, want 1", resp.Errors[0].Index)
	}
}

func TestChainFlow_recordVerifyStats(t *testing.T) {
	router := setupRouter(t)

	for _, typ := range []string{"creation", "dispatch", "delivery"} {
		w := postJSON(t, router, "/api/v1/events", eventBody("S1", typ))
		if w.Code != http.StatusCreated {
			t.Fatalf("record %s: expected 201, got %d", typ, w.Code)
		}
	}

	var chain struct {
		Events []map[string]any `json:"events"`
	}
	w := getJSON(t, router, "/api/v1/shipments/S1/events", &chain)
	if w.Code != http.StatusOK {
		t.Fatalf("chain: expected 200, got %d", w.Code)
	}
	if len(chain.Events) != 3 {
		t.Fatalf("chain has %d events, want 3", len(chain.Events))
	}
	order := []string{"creation", "dispatch", "delivery"}
	for i, e := range chain.Events {
		if e["event_type"] != order[i] {
			t.Errorf("position %d: got %v, want %s", i, e["event_type"], order[i])
		}
	}

	var verify struct {
		IsValid    bool `json:"is_valid"`
		EventCount int  `json:"event_count"`
	}
	w = getJSON(t, router, "/api/v1/shipments/S1/verify", &verify)
	if w.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d", w.Code)
	}
	if !verify.IsValid || verify.EventCount != 3 {
		t.Errorf("verify = %+v, want valid with 3 events", verify)
	}

	var stats struct {
		TotalEvents    int `json:"total_events"`
		TotalShipments int `json:"total_shipments"`
	}
	w = getJSON(t, router, "/api/v1/stats", &stats)
	if w.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", w.Code)
	}
	if stats.TotalEvents != 3 || stats.TotalShipments != 1 {
		t.Errorf("stats = %+v, want 3 events over 1 shipment", stats)
	}
}

func TestVerifyChain_404_emptyShipment(t *testing.T) {
	router := setupRouter(t)

	w := getJSON(t, router, "/api/v1/shipments/SHP-NONE/verify", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestQueryEvents_paginationMetadata(t *testing.T) {
	router := setupRouter(t)

	for i := 0; i < 5; i++ {
		if w := postJSON(t, router, "/api/v1/events", eventBody("SHP-001", "checkpoint")); w.Code != http.StatusCreated {
			t.Fatalf("seed %d: %d", i, w.Code)
		}
	}

	var page struct {
		Events     []map[string]any `json:"events"`
		Pagination struct {
			TotalCount int `json:"total_count"`
			TotalPages int `json:"total_pages"`
		} `json:"pagination"`
	}
	w := getJSON(t, router, "/api/v1/events?page=4&page_size=2", &page)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(page.Events) != 0 {
		t.Errorf("out-of-range page returned %d events", len(page.Events))
	}
	if page.Pagination.TotalCount != 5 || page.Pagination.TotalPages != 3 {
		t.Errorf("pagination = %+v, want count=5 pages=3", page.Pagination)
	}
}

func TestQueryEvents_400_badPagination(t *testing.T) {
	router := setupRouter(t)

	for _, path := range []string{
		"/api/v1/events?page=abc",
		"/api/v1/events?page_size=many",
	} {
		w := getJSON(t, router, path, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, w.Code)
		}
	}
}

func TestQueryEvents_400_badFilter(t *testing.T) {
	router := setupRouter(t)

	w := getJSON(t, router, "/api/v1/events?event_types=teleported", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestDayAnchor_200(t *testing.T) {
	router := setupRouter(t)

	for _, typ := range []string{"creation", "dispatch"} {
		postJSON(t, router, "/api/v1/events", eventBody("SHP-001", typ))
	}

	var anchor struct {
		MerkleRoot string `json:"merkle_root"`
		EventCount int    `json:"event_count"`
	}
	w := getJSON(t, router, "/api/v1/shipments/SHP-001/anchor", &anchor)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if anchor.EventCount != 2 || len(anchor.MerkleRoot) != 64 {
		t.Errorf("anchor = %+v", anchor)
	}
}
