package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrInvalidResponse = errors.New("LLM did not return a valid analysis")

type Issue struct {
	Severity            string `json:"severity"`
	Category            string `json:"category"`
	Description         string `json:"description"`
	RegulationReference string `json:"regulationReference"`
}

type AnalysisReport struct {
	Summary         string   `json:"summary"`
	RiskScore       int      `json:"riskScore"`
	OverallSeverity string   `json:"overallSeverity"`
	Issues          []Issue  `json:"issues"`
	Recommendations []string `json:"recommendations"`
	Provider        string   `json:"provider"`
	Model           string   `json:"model"`
	PromptVersion   string   `json:"promptVersion"`
}

type rawReport struct {
	Summary         string      `json:"summary"`
	RiskScore       json.Number `json:"riskScore"`
	OverallSeverity string      `json:"overallSeverity"`
	Issues          []Issue     `json:"issues"`
	Recommendations []string    `json:"recommendations"`
}

// ParseReport extracts the JSON object from a model answer and normalises it
func ParseReport(response string) (*AnalysisReport, error) {
	cleaned := extractJSONFromResponse(response)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrInvalidResponse)
	}

	var raw rawReport
	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	report := &AnalysisReport{
		Summary:         strings.TrimSpace(raw.Summary),
		Issues:          raw.Issues,
		Recommendations: raw.Recommendations,
	}
	if report.Summary == "" {
		report.Summary = "Compliance analysis completed but no summary was generated."
	}
	if report.Issues == nil {
		report.Issues = []Issue{}
	}
	for i := range report.Issues {
		report.Issues[i].Severity = normalizeSeverity(report.Issues[i].Severity)
	}
	if report.Recommendations == nil {
		report.Recommendations = []string{}
	}

	if f, err := raw.RiskScore.Float64(); err == nil {
		report.RiskScore = clampScore(f)
	} else {
		report.RiskScore = scoreFromIssues(report.Issues)
	}

	if raw.OverallSeverity == "" {
		report.OverallSeverity = severityFromScore(report.RiskScore)
	} else {
		report.OverallSeverity = normalizeSeverity(raw.OverallSeverity)
	}
	return report, nil
}

// extractJSONFromResponse strips markdown fences and returns the span from
// the first '{' to the last '}'
func extractJSONFromResponse(response string) string {
	s := strings.TrimSpace(response)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func normalizeSeverity(severity string) string {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "low", "minor", "info":
		return "low"
	case "medium", "moderate":
		return "medium"
	case "high", "major":
		return "high"
	case "critical", "severe", "fatal":
		return "critical"
	default:
		return "medium"
	}
}

func clampScore(f float64) int {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= 100 {
		return 100
	}
	return int(math.Round(f))
}

var severityWeight = map[string]int{"low": 10, "medium": 25, "high": 50, "critical": 80}

func scoreFromIssues(issues []Issue) int {
	highest := 0
	for _, i := range issues {
		if w := severityWeight[i.Severity]; w > highest {
			highest = w
		}
	}
	return highest
}

func severityFromScore(score int) string {
	switch {
	case score >= 75:
		return "critical"
	case score >= 50:
		return "high"
	case score >= 25:
		return "medium"
	default:
		return "low"
	}
}
