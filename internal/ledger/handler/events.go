package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-project/custodia/internal/ledger/model"
	"github.com/custodia-project/custodia/internal/ledger/repository"
	"github.com/custodia-project/custodia/internal/ledger/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventHandler exposes the ledger's record/read/query operations over HTTP.
// Authentication and authorization are the surrounding API gateway's job;
// these endpoints only shape the ledger operations.
type EventHandler struct {
	recorder *service.Recorder
	query    *service.Query
	logger   *zap.Logger
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(recorder *service.Recorder, query *service.Query, logger *zap.Logger) *EventHandler {
	return &EventHandler{recorder: recorder, query: query, logger: logger}
}

// Register mounts the event routes on the given router group.
func (h *EventHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/events", h.Record)
	rg.POST("/events/batch", h.BatchRecord)
	rg.GET("/events", h.Query)
	rg.GET("/events/:id", h.Get)
	rg.GET("/shipments/:shipmentId/events", h.ChainEvents)
	rg.GET("/shipments/:shipmentId/anchor", h.DayAnchor)
	rg.GET("/stats", h.Stats)
}

// Record handles POST /events — append one custody event.
func (h *EventHandler) Record(c *gin.Context) {
	var in service.EventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	event, err := h.recorder.RecordEvent(c.Request.Context(), in)
	if err != nil {
		if service.IsValidation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("record event", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record event"})
		return
	}

	eventsRecordedTotal.WithLabelValues(string(event.EventType)).Inc()
	c.JSON(http.StatusCreated, event)
}

type batchRequest struct {
	ShipmentID string               `json:"shipment_id"`
	Events     []service.EventInput `json:"events"`
}

// BatchRecord handles POST /events/batch — record a list of specs in input
// order, reporting partial success.
func (h *EventHandler) BatchRecord(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.ShipmentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "shipment_id must not be empty"})
		return
	}
	if len(req.Events) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "events must not be empty"})
		return
	}

	result := h.recorder.BatchRecord(c.Request.Context(), req.ShipmentID, req.Events)
	for _, e := range result.Recorded {
		eventsRecordedTotal.WithLabelValues(string(e.EventType)).Inc()
	}
	c.JSON(http.StatusOK, result)
}

// Get handles GET /events/:id.
func (h *EventHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return
	}

	event, err := h.recorder.GetEvent(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		h.logger.Error("get event", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load event"})
		return
	}
	c.JSON(http.StatusOK, event)
}

// ChainEvents handles GET /shipments/:shipmentId/events — the full chain,
// ascending. An unknown shipment returns an empty list.
func (h *EventHandler) ChainEvents(c *gin.Context) {
	shipmentID := c.Param("shipmentId")

	events, err := h.recorder.GetChainEvents(c.Request.Context(), shipmentID)
	if err != nil {
		h.logger.Error("chain events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chain"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"shipment_id": shipmentID,
		"events":      events,
	})
}

// Query handles GET /events with optional filter and pagination parameters.
func (h *EventHandler) Query(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page must be an integer"})
		return
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page_size must be an integer"})
		return
	}

	result, err := h.query.Events(c.Request.Context(), f, page, pageSize)
	if err != nil {
		h.logger.Error("query events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query events"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// DayAnchor handles GET /shipments/:shipmentId/anchor?date=YYYY-MM-DD —
// Merkle root over the shipment's data hashes for one UTC day.
func (h *EventHandler) DayAnchor(c *gin.Context) {
	shipmentID := c.Param("shipmentId")

	day := time.Now().UTC()
	if d := c.Query("date"); d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		day = parsed
	}

	root, count, err := h.query.DayAnchor(c.Request.Context(), shipmentID, day)
	if err != nil {
		if errors.Is(err, service.ErrEmptyChain) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no events for that shipment and day"})
			return
		}
		h.logger.Error("day anchor", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute anchor"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"shipment_id": shipmentID,
		"date":        day.UTC().Format("2006-01-02"),
		"merkle_root": root,
		"event_count": count,
	})
}

// Stats handles GET /stats.
func (h *EventHandler) Stats(c *gin.Context) {
	stats, err := h.query.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("chain stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func parseFilter(c *gin.Context) (model.EventFilter, error) {
	f := model.EventFilter{
		ShipmentID:   c.Query("shipment_id"),
		ActorID:      c.Query("actor_id"),
		ActorKind:    model.ActorKind(c.Query("actor_kind")),
		LocationKind: model.LocationKind(c.Query("location_kind")),
	}
	if f.ActorKind != "" && !f.ActorKind.Valid() {
		return f, errors.New("unknown actor_kind " + string(f.ActorKind))
	}
	if f.LocationKind != "" && !f.LocationKind.Valid() {
		return f, errors.New("unknown location_kind " + string(f.LocationKind))
	}

	if types := c.Query("event_types"); types != "" {
		for _, raw := range strings.Split(types, ",") {
			t := model.EventType(strings.TrimSpace(raw))
			if !t.Valid() {
				return f, errors.New("unknown event type " + string(t))
			}
			f.EventTypes = append(f.EventTypes, t)
		}
	}

	if from := c.Query("from"); from != "" {
		ts, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return f, errors.New("from must be RFC3339")
		}
		f.From = &ts
	}
	if to := c.Query("to"); to != "" {
		ts, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return f, errors.New("to must be RFC3339")
		}
		f.To = &ts
	}
	if v := c.Query("verified"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("verified must be a boolean")
		}
		f.Verified = &b
	}
	return f, nil
}
