package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"persona-mirror/internal/service"
)

// HealthInfo es lo que reporta GET /health.
type HealthInfo struct {
	StoreDriver   string `json:"store_driver"`
	LLMConfigured bool   `json:"llm_configured"`
	AuthEnabled   bool   `json:"auth_enabled"`
}

// NewRouter configura el router de Gin con middlewares y rutas base.
// Con jwtSvc nil las rutas de persona y espejo quedan sin autenticacion.
func NewRouter(
	logger *zap.Logger,
	personaH *PersonaHandler,
	mirrorH *MirrorHandler,
	jwtSvc *service.JWTService,
	health HealthInfo,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging y recovery.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	health.AuthEnabled = jwtSvc != nil
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "health": health})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("", jsonContentTypeMiddleware())
	if jwtSvc != nil {
		api.Use(JWTAuthMiddleware(jwtSvc))
	}

	persona := api.Group("/persona")
	persona.POST("/reflection", personaH.Reflect)
	persona.GET("/profile/:user_id", personaH.GetProfile)
	persona.GET("/metrics/:user_id", personaH.GetMetrics)
	persona.GET("/snapshots/:user_id", personaH.ListSnapshots)

	mirror := api.Group("/mirror")
	mirror.POST("/chat", mirrorH.Chat)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
