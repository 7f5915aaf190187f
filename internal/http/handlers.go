package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"persona-mirror/internal/repository"
	"persona-mirror/internal/service"
)

// messageRequest es el cuerpo comun de /persona/reflection y /mirror/chat.
type messageRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// allowMessage responde 429 cuando el usuario supero su cupo de mensajes.
func allowMessage(c *gin.Context, limiter service.MessageRateLimiter, userID string) bool {
	if limiter == nil || limiter.Allow(c.Request.Context(), userID) {
		return true
	}
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many messages, slow down"})
	return false
}

// writeServiceError traduce errores del servicio a respuestas HTTP.
func writeServiceError(c *gin.Context, logger *zap.Logger, action string, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyMessage), errors.Is(err, service.ErrInvalidUserID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		logger.Error(action+" failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not " + action})
	}
}
