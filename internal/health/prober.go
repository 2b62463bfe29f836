// Package health probes inference engines for reachability and the model
// list they currently advertise.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/modelgate/modelgate/internal/model"
)

// Probe outcome states. A probe always answers with one of these; it never
// surfaces an error to the caller.
const (
	StatusHealthy     = "healthy"
	StatusUnhealthy   = "unhealthy"
	StatusUnreachable = "unreachable"
)

// DefaultTimeout bounds the worst-case latency of an admin-triggered probe.
const DefaultTimeout = 8 * time.Second

// Result is the outcome of a single probe. Latency is nil when the engine
// never responded.
type Result struct {
	Status  string   `json:"status"`
	Latency *int64   `json:"latency"`
	Models  []string `json:"models"`
	Message string   `json:"message"`
}

// HTTPClient defines the interface for making HTTP requests.
// This allows for mocking in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Prober issues health probes against engine introspection endpoints.
type Prober struct {
	client  HTTPClient
	timeout time.Duration
	logger  *slog.Logger
}

// NewProber creates a Prober with the default timeout.
func NewProber(logger *slog.Logger) *Prober {
	return &Prober{
		client:  &http.Client{},
		timeout: DefaultTimeout,
		logger:  logger.With("component", "health"),
	}
}

// NewProberWithClient creates a Prober with a custom HTTP client and timeout.
func NewProberWithClient(client HTTPClient, timeout time.Duration, logger *slog.Logger) *Prober {
	return &Prober{client: client, timeout: timeout, logger: logger.With("component", "health")}
}

// IntrospectionURL resolves the type-specific path used to probe an engine.
func IntrospectionURL(baseURL, engineType string) string {
	base := strings.TrimRight(baseURL, "/")
	switch engineType {
	case model.EngineOllama:
		return base + "/api/tags"
	case model.EngineVLLM, model.EngineSGLang, model.EngineOpenAI:
		return base + "/v1/models"
	default:
		return base + "/health"
	}
}

// Probe checks the engine at baseURL and extracts the model ids it reports.
func (p *Prober) Probe(ctx context.Context, baseURL, engineType string) Result {
	probeURL := IntrospectionURL(baseURL, engineType)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return Result{
			Status:  StatusUnreachable,
			Models:  []string{},
			Message: fmt.Sprintf("Connection failed: %v", err),
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{
				Status:  StatusUnreachable,
				Models:  []string{},
				Message: fmt.Sprintf("Connection timed out (%ds)", int(p.timeout.Seconds())),
			}
		}
		return Result{
			Status:  StatusUnreachable,
			Models:  []string{},
			Message: fmt.Sprintf("Connection failed: %v", err),
		}
	}
	defer resp.Body.Close()

	latency := time.Since(start).Milliseconds()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{
			Status:  StatusUnhealthy,
			Latency: &latency,
			Models:  []string{},
			Message: fmt.Sprintf("Server responded with %d", resp.StatusCode),
		}
	}

	return Result{
		Status:  StatusHealthy,
		Latency: &latency,
		Models:  p.extractModels(resp.Body, engineType),
		Message: fmt.Sprintf("Connected successfully (%dms)", latency),
	}
}

// extractModels best-effort-parses the introspection body. A non-JSON 2xx
// body is tolerated: the model list stays empty, it is not an error.
func (p *Prober) extractModels(body io.Reader, engineType string) []string {
	var parsed struct {
		Models []struct {
			Name  string `json:"name"`
			Model string `json:"model"`
		} `json:"models"`
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}

	models := []string{}
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		p.logger.Debug("Probe response is not JSON, ignoring body", "error", err)
		return models
	}

	if engineType == model.EngineOllama {
		for _, m := range parsed.Models {
			name := m.Name
			if name == "" {
				name = m.Model
			}
			if name != "" {
				models = append(models, name)
			}
		}
		return models
	}

	// OpenAI-compatible shape
	for _, m := range parsed.Data {
		if m.ID != "" {
			models = append(models, m.ID)
		}
	}
	return models
}
