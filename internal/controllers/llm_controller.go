package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/regcheck/backend/internal/llm"
)

// LLMMonitor is satisfied by *llm.Client
type LLMMonitor interface {
	Status(ctx context.Context) llm.Status
	GetAPICalls() []llm.APICall
	ClearAPICalls()
}

type LLMController struct {
	llm LLMMonitor
}

func NewLLMController(monitor LLMMonitor) *LLMController {
	return &LLMController{llm: monitor}
}

func (lc *LLMController) GetLLMStatus(c *gin.Context) {
	st := lc.llm.Status(c.Request.Context())

	status := "healthy"
	if !st.Healthy {
		status = "unhealthy"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          status,
		"healthError":     st.Error,
		"provider":        st.Provider,
		"currentModel":    st.Model,
		"availableModels": st.Models,
	})
}

// GetLLMAPICalls returns the tracked model calls, newest first
func (lc *LLMController) GetLLMAPICalls(c *gin.Context) {
	calls := lc.llm.GetAPICalls()
	for i, j := 0, len(calls)-1; i < j; i, j = i+1, j-1 {
		calls[i], calls[j] = calls[j], calls[i]
	}
	c.JSON(http.StatusOK, gin.H{
		"apiCalls": calls,
		"total":    len(calls),
	})
}

func (lc *LLMController) ClearLLMAPICalls(c *gin.Context) {
	lc.llm.ClearAPICalls()
	c.JSON(http.StatusOK, gin.H{"message": "API call history cleared"})
}
