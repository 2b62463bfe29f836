// Package admin exposes the platform's administration API: engine, model
// and key management, the engine health probe, and access approvals.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/modelgate/modelgate/internal/db"
	"github.com/modelgate/modelgate/internal/health"
	"github.com/modelgate/modelgate/internal/model"
	"github.com/modelgate/modelgate/internal/notify"
	"github.com/modelgate/modelgate/internal/registry"
	"gorm.io/gorm"
)

// Prober probes an engine's introspection endpoint.
type Prober interface {
	Probe(ctx context.Context, baseURL, engineType string) health.Result
}

// Reconciler aligns the model registry with a probe report.
type Reconciler interface {
	Reconcile(engine *model.InferenceEngine, reported []string) (registry.Summary, error)
}

// Notifier delivers best-effort notifications.
type Notifier interface {
	NotifyUser(ctx context.Context, userID uint, message string, metadata map[string]interface{})
}

// Handler implements the admin API.
type Handler struct {
	db         db.Service
	prober     Prober
	reconciler Reconciler
	notifier   Notifier
	logger     *slog.Logger
}

// NewHandler creates an admin Handler.
func NewHandler(database db.Service, prober Prober, reconciler Reconciler, notifier Notifier, logger *slog.Logger) *Handler {
	return &Handler{
		db:         database,
		prober:     prober,
		reconciler: reconciler,
		notifier:   notifier,
		logger:     logger.With("component", "admin"),
	}
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return uint(id), true
}

// Engines

func (h *Handler) ListEnginesHandler(c *gin.Context) {
	engines, err := h.db.ListEngines()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list engines"})
		return
	}
	c.JSON(http.StatusOK, engines)
}

type createEngineRequest struct {
	Name        string `json:"name" binding:"required"`
	Type        string `json:"type" binding:"required"`
	BaseURL     string `json:"baseUrl" binding:"required"`
	APIKey      string `json:"apiKey"`
	Description string `json:"description"`
}

// CreateEngineHandler registers a new engine and immediately tries to sync
// its advertised models. The sync is best-effort: a dead engine is still
// registered, it just starts with no models.
func (h *Handler) CreateEngineHandler(c *gin.Context) {
	var req createEngineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	engine := model.InferenceEngine{
		Name:        req.Name,
		Type:        req.Type,
		BaseURL:     req.BaseURL,
		APIKey:      req.APIKey,
		Description: req.Description,
		IsActive:    true,
	}
	if err := h.db.CreateEngine(&engine); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create engine"})
		return
	}

	result := h.prober.Probe(c.Request.Context(), engine.BaseURL, engine.Type)
	if result.Status == health.StatusHealthy && len(result.Models) > 0 {
		if _, err := h.reconciler.Reconcile(&engine, result.Models); err != nil {
			h.logger.Error("Initial engine sync failed", "engine", engine.Name, "error", err)
		}
	}

	c.JSON(http.StatusCreated, gin.H{"engine": engine, "health": result})
}

func (h *Handler) GetEngineHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	engine, err := h.db.GetEngine(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Engine not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load engine"})
		return
	}
	c.JSON(http.StatusOK, engine)
}

type updateEngineRequest struct {
	Name        *string `json:"name"`
	BaseURL     *string `json:"baseUrl"`
	APIKey      *string `json:"apiKey"`
	IsActive    *bool   `json:"isActive"`
	Description *string `json:"description"`
}

func (h *Handler) UpdateEngineHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req updateEngineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	engine, err := h.db.GetEngine(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Engine not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load engine"})
		return
	}

	if req.Name != nil {
		engine.Name = *req.Name
	}
	if req.BaseURL != nil {
		engine.BaseURL = *req.BaseURL
	}
	if req.APIKey != nil {
		engine.APIKey = *req.APIKey
	}
	if req.IsActive != nil {
		engine.IsActive = *req.IsActive
	}
	if req.Description != nil {
		engine.Description = *req.Description
	}

	if err := h.db.UpdateEngine(engine); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update engine"})
		return
	}
	c.JSON(http.StatusOK, engine)
}

// DeleteEngineHandler refuses to delete an engine that still owns models;
// the count-based message is surfaced to the admin as-is.
func (h *Handler) DeleteEngineHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.db.DeleteEngine(id); err != nil {
		var hasModels *db.EngineHasModelsError
		if errors.As(err, &hasModels) {
			c.JSON(http.StatusConflict, gin.H{"error": hasModels.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete engine"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Engine deleted"})
}

// ToggleEngineHandler activates or deactivates an engine. Inactive engines
// are skipped by the periodic sync; their models stay registered.
func (h *Handler) ToggleEngineHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := h.db.SetEngineActive(id, *req.IsActive); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Engine not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update engine"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Engine updated"})
}

type healthCheckRequest struct {
	BaseURL  string `json:"baseUrl"`
	Type     string `json:"type"`
	EngineID uint   `json:"engineId"`
}

// HealthCheckHandler probes an engine and, when an engine id was supplied
// and the probe reported models, reconciles the registry against the report.
// Reconciliation failures never mask the probe's own result.
func (h *Handler) HealthCheckHandler(c *gin.Context) {
	var req healthCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.BaseURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "baseUrl is required"})
		return
	}

	result := h.prober.Probe(c.Request.Context(), req.BaseURL, req.Type)

	if req.EngineID != 0 && len(result.Models) > 0 {
		engine, err := h.db.GetEngine(req.EngineID)
		if err != nil {
			h.logger.Error("Health check sync skipped: engine not found", "engine_id", req.EngineID, "error", err)
		} else if _, err := h.reconciler.Reconcile(engine, result.Models); err != nil {
			h.logger.Error("Health check sync failed", "engine_id", req.EngineID, "error", err)
		}
	}

	c.JSON(http.StatusOK, result)
}

// Models

func (h *Handler) ListModelsHandler(c *gin.Context) {
	models, err := h.db.ListModels()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list models"})
		return
	}
	c.JSON(http.StatusOK, models)
}

type createModelRequest struct {
	Name        string `json:"name" binding:"required"`
	ApiID       string `json:"apiId" binding:"required"`
	Endpoint    string `json:"endpoint" binding:"required"`
	EngineID    *uint  `json:"engineId"`
	Description string `json:"description"`
}

func (h *Handler) CreateModelHandler(c *gin.Context) {
	var req createModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	m := model.InferenceModel{
		Name:        req.Name,
		ApiID:       req.ApiID,
		Endpoint:    req.Endpoint,
		EngineID:    req.EngineID,
		Description: req.Description,
		IsActive:    true,
	}
	if err := h.db.CreateModel(&m); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create model"})
		return
	}
	c.JSON(http.StatusCreated, m)
}

type setActiveRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

func (h *Handler) ToggleModelHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := h.db.SetModelActive(id, *req.IsActive); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Model not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update model"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Model updated"})
}

type updateModelRequest struct {
	Name        *string `json:"name"`
	Endpoint    *string `json:"endpoint"`
	EngineID    *uint   `json:"engineId"`
	Description *string `json:"description"`
}

func (h *Handler) UpdateModelHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req updateModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	m, err := h.db.GetModel(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Model not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load model"})
		return
	}

	if req.Name != nil {
		m.Name = *req.Name
	}
	if req.Endpoint != nil {
		m.Endpoint = *req.Endpoint
	}
	if req.EngineID != nil {
		m.EngineID = req.EngineID
	}
	if req.Description != nil {
		m.Description = *req.Description
	}

	if err := h.db.UpdateModel(m); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update model"})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteModelHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.db.DeleteModel(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete model"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Model deleted"})
}

// Keys

func (h *Handler) ListKeysHandler(c *gin.Context) {
	keys, err := h.db.ListAPIKeys()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list keys"})
		return
	}
	c.JSON(http.StatusOK, keys)
}

// ToggleKeyHandler activates or deactivates a key. Activation is the admin
// approval step for self-service keys, so the owner gets told about it.
func (h *Handler) ToggleKeyHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	key, err := h.db.GetAPIKey(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load key"})
		return
	}

	if err := h.db.SetAPIKeyActive(id, *req.IsActive); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update key"})
		return
	}

	if *req.IsActive && key.App != nil {
		h.notifier.NotifyUser(c.Request.Context(), key.App.UserID,
			fmt.Sprintf("Your API key '%s' has been approved and activated.", key.Name),
			map[string]interface{}{
				"action": "apiKeyApproved",
				"keyId":  key.ID,
				"appId":  key.AppID,
			})
	}

	c.JSON(http.StatusOK, gin.H{"message": "Key updated"})
}

func (h *Handler) DeleteKeyHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.db.DeleteAPIKey(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete key"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Key deleted"})
}

type replaceModelsRequest struct {
	ModelIDs []uint `json:"modelIds"`
}

// ReplaceKeyModelsHandler replaces the key's entitlement set wholesale.
func (h *Handler) ReplaceKeyModelsHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req replaceModelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := h.db.ReplaceAPIKeyModels(id, req.ModelIDs); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update key models"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Key models updated"})
}

type approveAccessRequest struct {
	ModelID uint `json:"modelId" binding:"required"`
}

// ApproveAccessHandler grants a requested entitlement and tells the owner.
func (h *Handler) ApproveAccessHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req approveAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.db.GrantModelAccess(id, req.ModelID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Key or model not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to grant access"})
		return
	}

	key, err := h.db.GetAPIKey(id)
	if err == nil && key.App != nil {
		m, merr := h.db.GetModel(req.ModelID)
		modelName := ""
		if merr == nil {
			modelName = m.Name
		}
		h.notifier.NotifyUser(c.Request.Context(), key.App.UserID,
			fmt.Sprintf("Access to model '%s' has been approved for key '%s'.", modelName, key.Name),
			map[string]interface{}{
				"action":    "modelAccessApproved",
				"keyId":     key.ID,
				"modelId":   req.ModelID,
				"modelName": modelName,
			})
	}

	c.JSON(http.StatusOK, gin.H{"message": "Access granted"})
}

var _ Notifier = (*notify.Notifier)(nil)
