// Package client provides a small Go SDK for the Custodia ledger HTTP API:
// recording custody events, walking shipment chains, verifying integrity,
// and querying statistics.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Actor identifies the party that produced an event.
type Actor struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"` // user, system, sensor, api
	Name         string `json:"name"`
	Role         string `json:"role,omitempty"`
	Organization string `json:"organization,omitempty"`
	DeviceID     string `json:"device_id,omitempty"`
}

// Location records where an event occurred.
type Location struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"` // facility, checkpoint, vehicle, port, customs, destination, unknown
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Address     string   `json:"address,omitempty"`
	Country     string   `json:"country,omitempty"`
	CountryCode string   `json:"country_code,omitempty"`
}

// EventInput is the payload for RecordEvent.
type EventInput struct {
	ShipmentID string            `json:"shipment_id"`
	EventType  string            `json:"event_type"`
	Actor      Actor             `json:"actor"`
	Location   Location          `json:"location"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Signature  string            `json:"signature,omitempty"`
}

// Event is one custody record in a shipment's hash chain.
type Event struct {
	ID              string            `json:"id"`
	ShipmentID      string            `json:"shipment_id"`
	EventType       string            `json:"event_type"`
	Timestamp       time.Time         `json:"timestamp"`
	Actor           Actor             `json:"actor"`
	Location        Location          `json:"location"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	DataHash        string            `json:"data_hash"`
	PreviousHash    string            `json:"previous_hash"`
	TransactionHash string            `json:"transaction_hash"`
	BlockNumber     *int64            `json:"block_number,omitempty"`
	Signature       string            `json:"signature,omitempty"`
	Verified        bool              `json:"verified"`
}

// BatchRequest is the payload for BatchRecord.
type BatchRequest struct {
	ShipmentID string       `json:"shipment_id"`
	Events     []EventInput `json:"events"`
}

// BatchError pairs a failed batch item with its input index.
type BatchError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// BatchResult reports the recorded events and per-item failures of a batch.
type BatchResult struct {
	Recorded []*Event     `json:"recorded"`
	Errors   []BatchError `json:"errors"`
}

// ChainResult is the response of ChainEvents.
type ChainResult struct {
	ShipmentID string   `json:"shipment_id"`
	Events     []*Event `json:"events"`
}

// ChainVerification is the result of a full-chain integrity walk.
type ChainVerification struct {
	ID             string    `json:"id"`
	ShipmentID     string    `json:"shipment_id"`
	IsValid        bool      `json:"is_valid"`
	EventCount     int       `json:"event_count"`
	FirstTimestamp time.Time `json:"first_timestamp"`
	LastTimestamp  time.Time `json:"last_timestamp"`
	BrokenLinks    []string  `json:"broken_links"`
	InvalidHashes  []string  `json:"invalid_hashes"`
	VerifiedAt     time.Time `json:"verified_at"`
}

// EventVerification is the result of verifying a single event.
type EventVerification struct {
	EventID    string    `json:"event_id"`
	ShipmentID string    `json:"shipment_id"`
	HashValid  bool      `json:"hash_valid"`
	ChainValid bool      `json:"chain_valid"`
	Signature  string    `json:"signature"` // valid, invalid, not_implemented
	IsValid    bool      `json:"is_valid"`
	VerifiedAt time.Time `json:"verified_at"`
}

// Pagination describes one page of a query result.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// EventPage is the response of QueryEvents.
type EventPage struct {
	Events     []*Event   `json:"events"`
	Pagination Pagination `json:"pagination"`
}

// ChainStats aggregates counters over the whole ledger.
type ChainStats struct {
	TotalEvents          int            `json:"total_events"`
	TotalShipments       int            `json:"total_shipments"`
	EventsToday          int            `json:"events_today"`
	VerifiedRatio        float64        `json:"verified_ratio"`
	AvgEventsPerShipment float64        `json:"avg_events_per_shipment"`
	ByEventType          map[string]int `json:"by_event_type"`
}

// AnchorResult is the response of DayAnchor.
type AnchorResult struct {
	ShipmentID string `json:"shipment_id"`
	Date       string `json:"date"`
	MerkleRoot string `json:"merkle_root"`
	EventCount int    `json:"event_count"`
}

// QueryOptions shape the GET /events query string.
type QueryOptions struct {
	ShipmentID   string
	EventTypes   []string
	ActorID      string
	ActorKind    string
	LocationKind string
	From, To     *time.Time
	Verified     *bool
	Page         int
	PageSize     int
}

// Client talks to a Custodia ledger service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client connected to baseURL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// RecordEvent appends one custody event.
func (c *Client) RecordEvent(ctx context.Context, in EventInput) (*Event, error) {
	var out Event
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/events", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BatchRecord records a list of event specs for one shipment, in order.
func (c *Client) BatchRecord(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	var out BatchResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/events/batch", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetEvent fetches a single event by id.
func (c *Client) GetEvent(ctx context.Context, id string) (*Event, error) {
	var out Event
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/events/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChainEvents fetches a shipment's full chain, ascending.
func (c *Client) ChainEvents(ctx context.Context, shipmentID string) (*ChainResult, error) {
	var out ChainResult
	path := "/api/v1/shipments/" + url.PathEscape(shipmentID) + "/events"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyChain verifies a shipment's full chain.
func (c *Client) VerifyChain(ctx context.Context, shipmentID string) (*ChainVerification, error) {
	var out ChainVerification
	path := "/api/v1/shipments/" + url.PathEscape(shipmentID) + "/verify"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyEvent verifies a single event.
func (c *Client) VerifyEvent(ctx context.Context, id string) (*EventVerification, error) {
	var out EventVerification
	path := "/api/v1/events/" + url.PathEscape(id) + "/verify"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryEvents runs a filtered, paginated event query.
func (c *Client) QueryEvents(ctx context.Context, opts QueryOptions) (*EventPage, error) {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("shipment_id", opts.ShipmentID)
	set("event_types", strings.Join(opts.EventTypes, ","))
	set("actor_id", opts.ActorID)
	set("actor_kind", opts.ActorKind)
	set("location_kind", opts.LocationKind)
	if opts.From != nil {
		q.Set("from", opts.From.Format(time.RFC3339))
	}
	if opts.To != nil {
		q.Set("to", opts.To.Format(time.RFC3339))
	}
	if opts.Verified != nil {
		q.Set("verified", strconv.FormatBool(*opts.Verified))
	}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(opts.PageSize))
	}

	path := "/api/v1/events"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var out EventPage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats fetches ledger-wide aggregate counters.
func (c *Client) Stats(ctx context.Context) (*ChainStats, error) {
	var out ChainStats
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DayAnchor fetches the Merkle anchor for a shipment and one UTC day
// (date formatted YYYY-MM-DD; empty means today).
func (c *Client) DayAnchor(ctx context.Context, shipmentID, date string) (*AnchorResult, error) {
	path := "/api/v1/shipments/" + url.PathEscape(shipmentID) + "/anchor"
	if date != "" {
		path += "?date=" + url.QueryEscape(date)
	}
	var out AnchorResult
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// doJSON performs one JSON request/response round trip.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
