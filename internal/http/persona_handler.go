package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"persona-mirror/internal/domain"
	"persona-mirror/internal/service"
)

const defaultSnapshotPage = 10

// PersonaHandler expone la reflexion y las lecturas del perfil.
type PersonaHandler struct {
	logger  *zap.Logger
	persona *service.PersonaService
	limiter service.MessageRateLimiter
}

// limiter puede ser nil.
func NewPersonaHandler(logger *zap.Logger, persona *service.PersonaService, limiter service.MessageRateLimiter) *PersonaHandler {
	return &PersonaHandler{logger: logger, persona: persona, limiter: limiter}
}

// Reflect maneja POST /persona/reflection.
func (h *PersonaHandler) Reflect(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid reflection request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if !authorizeUser(c, req.UserID) || !allowMessage(c, h.limiter, req.UserID) {
		return
	}

	res, err := h.persona.Reflect(c.Request.Context(), req.UserID, req.Message)
	if err != nil {
		writeServiceError(c, h.logger, "process reflection", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetProfile maneja GET /persona/profile/:user_id.
func (h *PersonaHandler) GetProfile(c *gin.Context) {
	userID := c.Param("user_id")
	if !authorizeUser(c, userID) {
		return
	}
	snapshot, err := h.persona.Profile(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, h.logger, "load profile", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":         snapshot.UserID,
		"snapshot_id":     snapshot.ID,
		"persona_vector":  snapshot.PersonaVector,
		"stability_index": snapshot.StabilityIndex,
		"stability_level": domain.StabilityLevel(snapshot.StabilityIndex),
		"summary":         snapshot.SummaryText,
		"created_at":      snapshot.CreatedAt,
	})
}

// GetMetrics maneja GET /persona/metrics/:user_id.
func (h *PersonaHandler) GetMetrics(c *gin.Context) {
	userID := c.Param("user_id")
	if !authorizeUser(c, userID) {
		return
	}
	metrics, err := h.persona.Metrics(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, h.logger, "load metrics", err)
		return
	}
	if metrics == nil {
		metrics = []domain.TraitMetric{}
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "metrics": metrics})
}

// ListSnapshots maneja GET /persona/snapshots/:user_id?limit=N.
func (h *PersonaHandler) ListSnapshots(c *gin.Context) {
	userID := c.Param("user_id")
	if !authorizeUser(c, userID) {
		return
	}
	limit := defaultSnapshotPage
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
			return
		}
		limit = n
	}
	snapshots, err := h.persona.Snapshots(c.Request.Context(), userID, limit)
	if err != nil {
		writeServiceError(c, h.logger, "list snapshots", err)
		return
	}
	if snapshots == nil {
		snapshots = []domain.PersonaSnapshot{}
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "snapshots": snapshots})
}
