package handler

import (
	"errors"
	"net/http"

	"github.com/custodia-project/custodia/internal/ledger/repository"
	"github.com/custodia-project/custodia/internal/ledger/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VerifyHandler exposes chain and event integrity verification over HTTP.
// Detected tampering is reported in the response body with status 200: it is
// the endpoint's answer, not a server failure.
type VerifyHandler struct {
	verifier *service.Verifier
	logger   *zap.Logger
}

// NewVerifyHandler creates a new VerifyHandler.
func NewVerifyHandler(verifier *service.Verifier, logger *zap.Logger) *VerifyHandler {
	return &VerifyHandler{verifier: verifier, logger: logger}
}

// Register mounts the verification routes on the given router group.
func (h *VerifyHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/shipments/:shipmentId/verify", h.VerifyChain)
	rg.GET("/events/:id/verify", h.VerifyEvent)
}

// VerifyChain handles GET /shipments/:shipmentId/verify.
func (h *VerifyHandler) VerifyChain(c *gin.Context) {
	shipmentID := c.Param("shipmentId")

	result, err := h.verifier.VerifyChain(c.Request.Context(), shipmentID)
	if err != nil {
		if errors.Is(err, service.ErrEmptyChain) {
			c.JSON(http.StatusNotFound, gin.H{"error": "shipment has no recorded events"})
			return
		}
		h.logger.Error("verify chain", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify chain"})
		return
	}

	outcome := "valid"
	if !result.IsValid {
		outcome = "invalid"
	}
	chainVerificationsTotal.WithLabelValues(outcome).Inc()

	c.JSON(http.StatusOK, result)
}

// VerifyEvent handles GET /events/:id/verify.
func (h *VerifyHandler) VerifyEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return
	}

	result, err := h.verifier.VerifyEvent(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		h.logger.Error("verify event", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify event"})
		return
	}
	c.JSON(http.StatusOK, result)
}
