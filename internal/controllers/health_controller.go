package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/regcheck/backend/internal/cache"
	"github.com/regcheck/backend/internal/llm"
)

const healthCheckTimeout = 3 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type CacheHealth interface {
	Pinger
	Stats() cache.Stats
}

type PassageCounter interface {
	CountPassages(ctx context.Context) (int64, error)
	Name() string
}

type LLMStatusSource interface {
	Status(ctx context.Context) llm.Status
}

type HealthController struct {
	database    func() error
	cache       CacheHealth
	vectors     PassageCounter
	llm         LLMStatusSource
	connections func() int
	version     string
}

func NewHealthController(database func() error, c CacheHealth, vectors PassageCounter, llmStatus LLMStatusSource, connections func() int, version string) *HealthController {
	return &HealthController{
		database:    database,
		cache:       c,
		vectors:     vectors,
		llm:         llmStatus,
		connections: connections,
		version:     version,
	}
}

// Health reports every dependency. The database is required; the others
// only degrade the service.
func (hc *HealthController) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	overallStatus := "ok"
	statusCode := http.StatusOK
	services := gin.H{}

	if err := hc.database(); err != nil {
		services["database"] = gin.H{"status": "error", "error": err.Error()}
		overallStatus = "error"
		statusCode = http.StatusServiceUnavailable
	} else {
		services["database"] = gin.H{"status": "ok"}
	}

	stats := hc.cache.Stats()
	if err := hc.cache.Ping(ctx); err != nil {
		services["cache"] = gin.H{"status": "degraded", "backend": stats.Backend, "error": err.Error()}
		overallStatus = degrade(overallStatus)
	} else {
		services["cache"] = gin.H{"status": "ok", "backend": stats.Backend}
	}

	if count, err := hc.vectors.CountPassages(ctx); err != nil {
		services["vectorStore"] = gin.H{"status": "error", "backend": hc.vectors.Name(), "error": err.Error()}
		overallStatus = degrade(overallStatus)
	} else {
		services["vectorStore"] = gin.H{"status": "ok", "backend": hc.vectors.Name(), "passages": count}
	}

	llmStatus := hc.llm.Status(ctx)
	if llmStatus.Healthy {
		services["llm"] = gin.H{"status": "ok", "provider": llmStatus.Provider, "model": llmStatus.Model}
	} else {
		services["llm"] = gin.H{"status": "unhealthy", "provider": llmStatus.Provider, "model": llmStatus.Model, "error": llmStatus.Error}
		overallStatus = degrade(overallStatus)
	}

	services["websocket"] = gin.H{"status": "ok", "connections": hc.connections()}

	c.JSON(statusCode, gin.H{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   hc.version,
		"services":  services,
	})
}

func degrade(status string) string {
	if status == "ok" {
		return "degraded"
	}
	return status
}

func (hc *HealthController) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}
