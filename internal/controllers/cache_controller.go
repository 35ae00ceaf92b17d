package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/regcheck/backend/internal/cache"
	"github.com/regcheck/backend/internal/logger"
)

type CacheController struct {
	cache cache.Cache
}

func NewCacheController(c cache.Cache) *CacheController {
	return &CacheController{cache: c}
}

func (cc *CacheController) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, cc.cache.Stats())
}

// ClearCache drops one namespace (?namespace=analysis) or every entry
func (cc *CacheController) ClearCache(c *gin.Context) {
	namespace := c.Query("namespace")
	switch namespace {
	case "", cache.NamespaceAnalysis, cache.NamespaceEmbedding, cache.NamespaceDocument:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown cache namespace"})
		return
	}

	if err := cc.cache.DeletePrefix(c.Request.Context(), cache.NamespacePrefix(namespace)); err != nil {
		logger.WithError(err, "cache_controller").Error("Failed to clear cache")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear cache"})
		return
	}

	logger.Info("Cache cleared", map[string]interface{}{"namespace": namespace})
	c.JSON(http.StatusOK, gin.H{"message": "Cache cleared", "namespace": namespace})
}
