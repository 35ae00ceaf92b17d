package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
)

type ServiceHealth struct {
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	Backend     string `json:"backend,omitempty"`
	Provider    string `json:"provider,omitempty"`
	Model       string `json:"model,omitempty"`
	Passages    *int64 `json:"passages,omitempty"`
	Connections *int   `json:"connections,omitempty"`
}

type HealthResponse struct {
	Status    string                   `json:"status"`
	Timestamp string                   `json:"timestamp"`
	Version   string                   `json:"version"`
	Services  map[string]ServiceHealth `json:"services"`
}

var (
	okText   = color.New(color.FgGreen, color.Bold).SprintFunc()
	warnText = color.New(color.FgYellow, color.Bold).SprintFunc()
	failText = color.New(color.FgRed, color.Bold).SprintFunc()
	dimText  = color.New(color.Faint).SprintFunc()
)

func main() {
	url := "http://localhost:8080/health"
	if len(os.Args) > 1 {
		url = os.Args[1]
	}

	fmt.Printf("🔍 Testing health endpoint: %s\n", url)

	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		fail("Error connecting to health endpoint: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fail("Error reading response: %v", err)
	}

	fmt.Printf("📊 Response Status: %s\n", resp.Status)

	var health HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		fmt.Printf("📄 Response Body: %s\n", string(body))
		fail("Error parsing JSON response: %v", err)
	}

	names := make([]string, 0, len(health.Services))
	for name := range health.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		svc := health.Services[name]
		fmt.Printf("   %-12s %s %s\n", name, statusLabel(svc.Status), dimText(details(svc)))
		if svc.Error != "" {
			fmt.Printf("   %-12s %s\n", "", failText(svc.Error))
		}
	}

	fmt.Printf("   Version: %s\n", health.Version)
	fmt.Printf("   Timestamp: %s\n", health.Timestamp)

	switch health.Status {
	case "ok":
		fmt.Println(okText("✅ Health check passed!"))
	case "degraded":
		fmt.Println(warnText("⚠️  Service is degraded but serving requests"))
	default:
		fail("Health status is not 'ok': %s", health.Status)
	}
}

func statusLabel(status string) string {
	switch status {
	case "ok":
		return okText(status)
	case "degraded", "unhealthy":
		return warnText(status)
	default:
		return failText(status)
	}
}

func details(svc ServiceHealth) string {
	out := ""
	if svc.Backend != "" {
		out += "backend=" + svc.Backend + " "
	}
	if svc.Provider != "" {
		out += "provider=" + svc.Provider + " model=" + svc.Model + " "
	}
	if svc.Passages != nil {
		out += fmt.Sprintf("passages=%d ", *svc.Passages)
	}
	if svc.Connections != nil {
		out += fmt.Sprintf("connections=%d ", *svc.Connections)
	}
	return out
}

func fail(format string, args ...interface{}) {
	fmt.Println(failText("❌ " + fmt.Sprintf(format, args...)))
	os.Exit(1)
}
