package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"persona-mirror/internal/service"
)

// MirrorHandler expone la conversacion espejo.
type MirrorHandler struct {
	logger  *zap.Logger
	persona *service.PersonaService
	limiter service.MessageRateLimiter
}

// limiter puede ser nil.
func NewMirrorHandler(logger *zap.Logger, persona *service.PersonaService, limiter service.MessageRateLimiter) *MirrorHandler {
	return &MirrorHandler{logger: logger, persona: persona, limiter: limiter}
}

// Chat maneja POST /mirror/chat.
func (h *MirrorHandler) Chat(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid mirror request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if !authorizeUser(c, req.UserID) || !allowMessage(c, h.limiter, req.UserID) {
		return
	}

	res, err := h.persona.ProcessMessage(c.Request.Context(), req.UserID, req.Message)
	if err != nil {
		writeServiceError(c, h.logger, "process message", err)
		return
	}
	c.JSON(http.StatusOK, res)
}
