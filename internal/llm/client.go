package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/regcheck/backend/internal/config"
	"github.com/regcheck/backend/internal/logger"
	"github.com/regcheck/backend/internal/upstream"
	"github.com/regcheck/backend/internal/vectorstore"
)

const maxTrackedCalls = 100

// APICall records one request to the model backend
type APICall struct {
	ID           string        `json:"id"`
	Timestamp    time.Time     `json:"timestamp"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	DocumentID   uint          `json:"documentId,omitempty"`
	JobID        uint          `json:"jobId,omitempty"`
	CallType     string        `json:"callType"`
	PromptLength int           `json:"promptLength"`
	Status       int           `json:"status"`
	Duration     time.Duration `json:"duration"`
	Response     string        `json:"response"`
	Error        string        `json:"error,omitempty"`
}

type AnalysisInput struct {
	DocumentID uint
	JobID      uint
	Filename   string
	Text       string
	Matches    []vectorstore.Match
}

type Status struct {
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
	Healthy  bool     `json:"healthy"`
	Error    string   `json:"error,omitempty"`
	Models   []string `json:"models,omitempty"`
}

// Client adds rate limiting, retries, prompt building and call tracking on
// top of a Provider
type Client struct {
	provider        Provider
	limiter         *rate.Limiter
	policy          upstream.Policy
	temperature     float64
	maxTokens       int
	maxContextChars int

	apiCalls  []APICall
	callMutex sync.RWMutex
}

func NewClient(provider Provider, cfg config.LLMConfig) *Client {
	perSecond := float64(cfg.RequestsPerMin) / 60
	burst := cfg.RequestsPerMin / 10
	if burst < 1 {
		burst = 1
	}
	return &Client{
		provider:        provider,
		limiter:         upstream.NewLimiter(perSecond, burst),
		policy:          upstream.DefaultPolicy(cfg.MaxRetries),
		temperature:     cfg.Temperature,
		maxTokens:       cfg.MaxTokens,
		maxContextChars: cfg.MaxContextChars,
		apiCalls:        make([]APICall, 0),
	}
}

// WithRetryPolicy replaces the retry policy; used by tests to avoid real backoff delays
func (c *Client) WithRetryPolicy(p upstream.Policy) *Client {
	c.policy = p
	return c
}

func (c *Client) ProviderName() string { return c.provider.Name() }
func (c *Client) Model() string        { return c.provider.Model() }

// Analyze asks the model for a compliance report on the given document text
func (c *Client) Analyze(ctx context.Context, in AnalysisInput) (*AnalysisReport, error) {
	prompt := BuildAnalysisPrompt(in.Filename, in.Text, in.Matches, c.maxContextChars)
	req := Request{
		System:      COMPLIANCE_SYSTEM_PROMPT,
		Prompt:      prompt,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	log := logger.WithLLM(c.provider.Name(), c.provider.Model(), "compliance_analysis").WithField("document_id", in.DocumentID)
	log.WithField("prompt_length", len(prompt)).Info("Sending compliance analysis request")

	resp, err := c.generate(ctx, req, in.DocumentID, in.JobID, "compliance_analysis")
	if err != nil {
		log.WithError(err).Error("Compliance analysis request failed")
		return nil, err
	}

	report, err := ParseReport(resp.Text)
	if err != nil {
		log.WithError(err).Warn("Model returned an unparseable analysis")
		return nil, err
	}
	report.Provider = c.provider.Name()
	report.Model = c.provider.Model()
	report.PromptVersion = PromptVersion
	return report, nil
}

func (c *Client) generate(ctx context.Context, req Request, documentID, jobID uint, callType string) (*Response, error) {
	var resp *Response
	err := upstream.Retry(ctx, c.policy, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		start := time.Now()
		r, err := c.provider.Generate(ctx, req)
		call := c.CreateAPICall(documentID, jobID, callType)
		call.PromptLength = len(req.Prompt)
		call.Duration = time.Since(start)
		if err != nil {
			call.Error = err.Error()
			var se *upstream.StatusError
			if errors.As(err, &se) {
				call.Status = se.StatusCode
			}
			c.addAPICall(*call)
			return err
		}
		call.Status = r.StatusCode
		call.Response = truncateRunes(r.Text, 2000)
		c.addAPICall(*call)
		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s generate failed: %w", c.provider.Name(), err)
	}
	return resp, nil
}

// Status reports provider health and, for Ollama, the installed models
func (c *Client) Status(ctx context.Context) Status {
	st := Status{Provider: c.provider.Name(), Model: c.provider.Model()}
	if err := c.provider.Health(ctx); err != nil {
		st.Error = err.Error()
		return st
	}
	st.Healthy = true
	if o, ok := c.provider.(*OllamaProvider); ok {
		if models, err := o.Models(ctx); err == nil {
			st.Models = models
		}
	}
	return st
}

// GetAPICalls returns all tracked LLM API calls
func (c *Client) GetAPICalls() []APICall {
	c.callMutex.RLock()
	defer c.callMutex.RUnlock()

	calls := make([]APICall, len(c.apiCalls))
	copy(calls, c.apiCalls)
	return calls
}

// ClearAPICalls clears the API call history
func (c *Client) ClearAPICalls() {
	c.callMutex.Lock()
	defer c.callMutex.Unlock()
	c.apiCalls = make([]APICall, 0)
}

func (c *Client) addAPICall(call APICall) {
	c.callMutex.Lock()
	defer c.callMutex.Unlock()

	if len(c.apiCalls) >= maxTrackedCalls {
		c.apiCalls = c.apiCalls[1:]
	}
	c.apiCalls = append(c.apiCalls, call)
}

// CreateAPICall creates a new API call with context information
func (c *Client) CreateAPICall(documentID, jobID uint, callType string) *APICall {
	return &APICall{
		ID:         fmt.Sprintf("llm_%d", time.Now().UnixNano()),
		Timestamp:  time.Now(),
		Provider:   c.provider.Name(),
		Model:      c.provider.Model(),
		DocumentID: documentID,
		JobID:      jobID,
		CallType:   callType,
	}
}
