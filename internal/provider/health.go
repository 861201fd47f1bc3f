package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// geminiModelsURL lists models on Google AI Studio.
const geminiModelsURL = "https://generativelanguage.googleapis.com/v1beta/models"

// HealthChecker probes a backend without generating tokens.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// httpCheck is a HealthChecker that issues one GET and expects a 2xx.
type httpCheck struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// HealthCheck performs the probe request.
func (h *httpCheck) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("provider: build health request: %w", err)
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider: health request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider: health check returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// HealthCheck returns a zero-token probe for the selected backend, or nil
// when the backend has no cheap listing endpoint (Ark). Callers fall back to
// a one-token Generate in that case.
func (c *Config) HealthCheck() HealthChecker {
	client := &http.Client{Timeout: 5 * time.Second}
	bearer := func(key string) map[string]string {
		return map[string]string{"Authorization": "Bearer " + key}
	}

	switch c.Backend {
	case BackendGroq:
		base := c.Groq.BaseURL
		if base == "" {
			base = GroqBaseURL
		}
		return &httpCheck{url: join(base, "models"), headers: bearer(c.Groq.APIKey), client: client}
	case BackendOllama:
		return &httpCheck{url: join(c.Ollama.Host, "api/tags"), client: client}
	case BackendOpenAI:
		base := c.OpenAI.BaseURL
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		return &httpCheck{url: join(base, "models"), headers: bearer(c.OpenAI.APIKey), client: client}
	case BackendAzure:
		u := join(c.AzureOpenAI.Endpoint, "openai/models") + "?api-version=" + url.QueryEscape(c.AzureOpenAI.APIVersion)
		return &httpCheck{url: u, headers: map[string]string{"api-key": c.AzureOpenAI.APIKey}, client: client}
	case BackendGemini:
		return &httpCheck{url: geminiModelsURL, headers: map[string]string{"x-goog-api-key": c.Gemini.APIKey}, client: client}
	}
	return nil
}

// join concatenates a base URL and a path with exactly one slash.
func join(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
