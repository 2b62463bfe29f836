// Package dashboard exposes the per-user API: apps, self-service key
// management, model access requests and the notification feed.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/modelgate/modelgate/internal/auth"
	"github.com/modelgate/modelgate/internal/db"
	"github.com/modelgate/modelgate/internal/model"
	"github.com/modelgate/modelgate/internal/notify"
	"gorm.io/gorm"
)

// Notifier is the notification queue surface the dashboard needs.
type Notifier interface {
	NotifyAdmin(ctx context.Context, message string, metadata map[string]interface{})
	List(ctx context.Context, queue string, limit int64) ([]notify.Notification, error)
	Remove(ctx context.Context, queue, id string) error
}

// Handler implements the user-facing API.
type Handler struct {
	db       db.Service
	notifier Notifier
	logger   *slog.Logger
}

// NewHandler creates a dashboard Handler.
func NewHandler(database db.Service, notifier Notifier, logger *slog.Logger) *Handler {
	return &Handler{
		db:       database,
		notifier: notifier,
		logger:   logger.With("component", "dashboard"),
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

// ownedKey loads a key and verifies the caller owns it through its app.
func (h *Handler) ownedKey(c *gin.Context, user *model.User) (*model.APIKey, bool) {
	id, ok := idParam(c)
	if !ok {
		return nil, false
	}
	key, err := h.db.GetAPIKey(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load key"})
		return nil, false
	}
	if key.App == nil || key.App.UserID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Unauthorized"})
		return nil, false
	}
	return key, true
}

// Apps

func (h *Handler) ListAppsHandler(c *gin.Context) {
	user := auth.CurrentUser(c)
	apps, err := h.db.ListAppsByUser(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list apps"})
		return
	}
	c.JSON(http.StatusOK, apps)
}

type createAppRequest struct {
	Name string `json:"name"`
}

func (h *Handler) CreateAppHandler(c *gin.Context) {
	user := auth.CurrentUser(c)
	var req createAppRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name is required"})
		return
	}

	app := model.App{Name: req.Name, UserID: user.ID}
	if err := h.db.CreateApp(&app); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create app"})
		return
	}
	c.JSON(http.StatusCreated, app)
}

// Keys

type createKeyRequest struct {
	Name string `json:"name"`
}

// CreateKeyHandler creates a self-service key. New keys start inactive with
// a one year expiry and wait for admin approval, signaled through the admin
// notification queue.
func (h *Handler) CreateKeyHandler(c *gin.Context) {
	user := auth.CurrentUser(c)
	appID, ok := idParam(c)
	if !ok {
		return
	}

	app, err := h.db.GetApp(appID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "App not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load app"})
		return
	}
	if app.UserID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Unauthorized access to app"})
		return
	}

	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	token, err := auth.GenerateAPIKey()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate key"})
		return
	}

	expires := time.Now().AddDate(1, 0, 0)
	key := model.APIKey{
		Key:       token,
		Name:      req.Name,
		AppID:     app.ID,
		Active:    false,
		ExpiresAt: &expires,
	}
	if err := h.db.CreateAPIKey(&key); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create key"})
		return
	}

	h.notifier.NotifyAdmin(c.Request.Context(),
		fmt.Sprintf("New API key '%s' requested for app '%s' by %s.", key.Name, app.Name, user.Email),
		map[string]interface{}{
			"action":    "createApiKey",
			"keyId":     key.ID,
			"appId":     app.ID,
			"userId":    user.ID,
			"userEmail": user.Email,
		})

	c.JSON(http.StatusCreated, gin.H{"id": key.ID, "key": key.Key, "name": key.Name})
}

type renameKeyRequest struct {
	Name string `json:"name"`
}

func (h *Handler) RenameKeyHandler(c *gin.Context) {
	user := auth.CurrentUser(c)
	key, ok := h.ownedKey(c, user)
	if !ok {
		return
	}
	var req renameKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name is required"})
		return
	}
	if err := h.db.UpdateAPIKeyName(key.ID, req.Name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to rename key"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Key renamed"})
}

func (h *Handler) RevokeKeyHandler(c *gin.Context) {
	user := auth.CurrentUser(c)
	key, ok := h.ownedKey(c, user)
	if !ok {
		return
	}
	if err := h.db.DeleteAPIKey(key.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke key"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Key revoked"})
}

type requestAccessRequest struct {
	ModelID uint `json:"modelId" binding:"required"`
}

// RequestAccessHandler files a model access request into the admin queue.
// The entitlement itself is only granted later, by an admin approval.
func (h *Handler) RequestAccessHandler(c *gin.Context) {
	user := auth.CurrentUser(c)
	key, ok := h.ownedKey(c, user)
	if !ok {
		return
	}
	var req requestAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	m, err := h.db.GetModel(req.ModelID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Model not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load model"})
		return
	}

	h.notifier.NotifyAdmin(c.Request.Context(),
		fmt.Sprintf("%s requests access to model '%s' for key '%s'.", user.Email, m.Name, key.Name),
		map[string]interface{}{
			"action":    "requestModelAccess",
			"keyId":     key.ID,
			"modelId":   m.ID,
			"modelName": m.Name,
			"appId":     key.AppID,
			"userId":    user.ID,
			"userEmail": user.Email,
		})

	c.JSON(http.StatusAccepted, gin.H{"message": "Access request submitted"})
}

// Models

// ListModelsHandler returns the platform's active models, the catalog a
// user can request access to.
func (h *Handler) ListModelsHandler(c *gin.Context) {
	models, err := h.db.ListActiveModels()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list models"})
		return
	}
	c.JSON(http.StatusOK, models)
}

// Notifications

// ListNotificationsHandler returns the caller's queue; admins additionally
// get the admin queue, merged and sorted by timestamp descending. Each entry
// carries its source queue so it can be dismissed later.
func (h *Handler) ListNotificationsHandler(c *gin.Context) {
	user := auth.CurrentUser(c)

	notifications, err := h.notifier.List(c.Request.Context(), notify.UserQueue(user.ID), 100)
	if err != nil {
		h.logger.Error("Failed to fetch user notifications", "error", err, "user_id", user.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	if user.IsAdmin() {
		adminNotifications, err := h.notifier.List(c.Request.Context(), notify.AdminQueue, 100)
		if err != nil {
			h.logger.Error("Failed to fetch admin notifications", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
			return
		}
		notifications = append(notifications, adminNotifications...)
	}

	sort.SliceStable(notifications, func(i, j int) bool {
		return notifications[i].Timestamp.After(notifications[j].Timestamp)
	})

	c.JSON(http.StatusOK, notifications)
}

// DismissNotificationHandler consumes a notification by id. Callers may only
// delete from queues they own: the admin queue needs the admin role, a user
// queue must be the caller's own.
func (h *Handler) DismissNotificationHandler(c *gin.Context) {
	user := auth.CurrentUser(c)
	notificationID := c.Param("id")
	source := c.Query("source")

	if notificationID == "" || source == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request"})
		return
	}

	if source == notify.AdminQueue && !user.IsAdmin() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	if strings.HasPrefix(source, "user:notifications:") && source != notify.UserQueue(user.ID) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	if source != notify.AdminQueue && !strings.HasPrefix(source, "user:notifications:") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request"})
		return
	}

	if err := h.notifier.Remove(c.Request.Context(), source, notificationID); err != nil {
		if errors.Is(err, notify.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
			return
		}
		h.logger.Error("Failed to dismiss notification", "error", err, "id", notificationID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Deleted"})
}

var _ Notifier = (*notify.Notifier)(nil)
