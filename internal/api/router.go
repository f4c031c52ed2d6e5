package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"outreach_backend/platform/config"
	"outreach_backend/platform/httpkit"
	"outreach_backend/platform/logger"
)

// RouterConfig combines the config interfaces the router needs.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// NewRouter builds the gin engine: health check, public webhooks and
// the authenticated operator API.
func NewRouter(cfg RouterConfig, h *Handler, log *logger.Logger) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestLogger(log))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(corsMiddleware(cfg))

	limiter := httpkit.NewIPRateLimiter(rate.Limit(10), 30, log)
	engine.Use(limiter.RateLimit())

	engine.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := engine.Group("/api/v1")

	webhooks := v1.Group("/webhooks")
	webhooks.POST("/leads", h.IngestLead)
	webhooks.POST("/events", h.IngestEvent)
	webhooks.POST("/engagement", h.RecordEngagement)

	protected := v1.Group("")
	protected.Use(httpkit.AuthRequired(cfg))

	protected.GET("/leads", h.ListLeads)
	protected.GET("/leads/:id", h.GetLead)
	protected.GET("/leads/:id/sequences", h.ListLeadSequences)
	protected.GET("/leads/:id/tasks", h.ListLeadTasks)

	protected.POST("/sequences", h.StartSequence)
	protected.GET("/sequences/:id", h.GetSequence)
	protected.GET("/sequences/:id/steps", h.ListSequenceSteps)
	protected.POST("/sequences/:id/pause", h.PauseSequence)
	protected.POST("/sequences/:id/resume", h.ResumeSequence)
	protected.POST("/sequences/:id/cancel", h.CancelSequence)

	protected.POST("/tasks", h.CreateTask)
	protected.GET("/tasks/:id", h.GetTask)

	protected.GET("/stats", h.Stats)

	return engine
}

func corsMiddleware(cfg config.HTTPConfig) gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: cfg.GetCORSAllowCreds(),
		MaxAge:           12 * time.Hour,
	}
	if cfg.GetCORSAllowAll() {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else if origins := cfg.GetCORSOrigins(); len(origins) > 0 {
		corsCfg.AllowOrigins = origins
	} else {
		corsCfg.AllowOrigins = []string{"http://localhost:3000"}
	}
	return cors.New(corsCfg)
}
