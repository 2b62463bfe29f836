// Package gateway implements the OpenAI-compatible completion proxy: it
// authenticates a bearer key, checks model entitlements, forwards the
// caller's payload to the resolved engine endpoint and relays the response,
// buffered or streamed.
package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/modelgate/modelgate/internal/db"
	"github.com/modelgate/modelgate/internal/model"
	"gorm.io/gorm"
)

// Machine-readable error types, matching the OpenAI error envelope.
const (
	errTypeInvalidRequest     = "invalid_request_error"
	errTypeAccessDenied       = "access_denied"
	errTypeServiceUnavailable = "service_unavailable"
	errTypeAPIError           = "api_error"
)

// Handler proxies chat completion requests to upstream engines.
type Handler struct {
	db     db.Service
	client *http.Client
	logger *slog.Logger
}

// NewHandler creates a gateway handler. responseHeaderTimeout bounds how
// long an upstream may take to start responding; the stream body itself is
// not bounded, so long-lived SSE connections survive.
func NewHandler(database db.Service, responseHeaderTimeout time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		db: database,
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: responseHeaderTimeout,
			},
		},
		logger: logger.With("component", "gateway"),
	}
}

// SetupRoutes registers the gateway endpoint.
func SetupRoutes(router *gin.Engine, h *Handler) {
	router.POST("/v1/chat/completions", h.ChatCompletions)
}

// completionRequest is the slice of the body the gateway itself inspects.
// The full body is forwarded upstream verbatim.
type completionRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

// ChatCompletions handles a single proxied completion request.
func (h *Handler) ChatCompletions(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
		apiError(c, http.StatusUnauthorized, errTypeInvalidRequest, "Missing or invalid Authorization header")
		return
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")

	apiKey, err := h.db.FindAPIKeyByKey(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apiError(c, http.StatusUnauthorized, errTypeInvalidRequest, "Invalid API key")
			return
		}
		h.internalError(c, "key lookup failed", err)
		return
	}

	if !apiKey.Active {
		apiError(c, http.StatusForbidden, errTypeAccessDenied, "API key is inactive. Please contact support or check your dashboard.")
		return
	}
	if apiKey.IsExpired() {
		apiError(c, http.StatusForbidden, errTypeAccessDenied, "API key has expired. Please create a new key in your dashboard.")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.internalError(c, "failed to read request body", err)
		return
	}
	var req completionRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Model == "" {
		apiError(c, http.StatusBadRequest, errTypeInvalidRequest, "Model ID is required in the request body")
		return
	}

	entitled := apiKey.EntitledModel(req.Model)
	if entitled == nil {
		apiError(c, http.StatusForbidden, errTypeAccessDenied,
			fmt.Sprintf("This API key does not have access to model '%s'. Please request access in your dashboard.", req.Model))
		return
	}
	if !entitled.IsActive {
		apiError(c, http.StatusServiceUnavailable, errTypeServiceUnavailable,
			fmt.Sprintf("Model '%s' is currently offline.", req.Model))
		return
	}

	resp, err := h.forward(c, entitled, body)
	if err != nil {
		h.internalError(c, "upstream request failed", err)
		return
	}
	defer resp.Body.Close()

	// Best-effort usage timestamp, detached from the response path.
	go h.touchLastUsed(apiKey.ID)

	if req.Stream {
		h.relayStream(c, resp)
		return
	}
	h.relayBuffered(c, resp)
}

// forward POSTs the original caller-supplied body verbatim to the model's
// endpoint, attaching the engine's upstream key when one is configured.
func (h *Handler) forward(c *gin.Context, m *model.InferenceModel, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, m.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request for %s: %w", m.ApiID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.Engine != nil && m.Engine.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.Engine.APIKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream %s unreachable: %w", m.Endpoint, err)
	}
	return resp, nil
}

// relayStream pipes the upstream body through to the caller byte-for-byte,
// flushing as chunks arrive. Headers are copied from upstream, with the SSE
// headers forced; the upstream status code is preserved.
func (h *Handler) relayStream(c *gin.Context, resp *http.Response) {
	header := c.Writer.Header()
	for k, v := range resp.Header {
		header[k] = v
	}
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Del("Content-Length")
	c.Writer.WriteHeader(resp.StatusCode)

	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				h.logger.Debug("Client went away during stream relay", "error", werr)
				return
			}
			c.Writer.Flush()
		}
		if err != nil {
			if err != io.EOF {
				h.logger.Warn("Upstream stream ended with error", "error", err)
			}
			return
		}
	}
}

// relayBuffered reads and decodes the whole upstream response, then re-emits
// it as JSON with the upstream's status code.
func (h *Handler) relayBuffered(c *gin.Context, resp *http.Response) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.internalError(c, "failed to read upstream response", err)
		return
	}
	var payload interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		h.internalError(c, "upstream returned non-JSON response", err)
		return
	}
	c.JSON(resp.StatusCode, payload)
}

func (h *Handler) touchLastUsed(keyID uint) {
	if err := h.db.TouchAPIKeyLastUsed(keyID); err != nil {
		h.logger.Error("Failed to update key last-used timestamp", "key_id", keyID, "error", err)
	}
}

// internalError logs full detail server-side and answers with a generic
// message so internal topology never leaks to API consumers.
func (h *Handler) internalError(c *gin.Context, context string, err error) {
	h.logger.Error("Gateway error", "context", context, "error", err, "path", c.Request.URL.Path)
	apiError(c, http.StatusInternalServerError, errTypeAPIError, "An internal error occurred while processing your request.")
}

func apiError(c *gin.Context, status int, errType, message string) {
	c.JSON(status, gin.H{"error": gin.H{"message": message, "type": errType}})
}
