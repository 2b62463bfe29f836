// Package notify implements the platform's notification queues: capped,
// newest-first Redis lists, one global admin queue and one per user. Pushes
// are best-effort signals for approval workflows, not guaranteed delivery.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// AdminQueue is the queue key for platform-wide admin notifications.
const AdminQueue = "admin:notifications"

const (
	adminQueueCap = 1000
	userQueueCap  = 100
)

// ErrNotFound is returned by Remove when no entry carries the given id.
// A double-dismiss is a valid outcome, not a failure.
var ErrNotFound = errors.New("notification not found")

// UserQueue returns the queue key for a user's personal notifications.
func UserQueue(userID uint) string {
	return fmt.Sprintf("user:notifications:%d", userID)
}

// Client is the subset of Redis list commands the notifier needs.
// It is satisfied by redis.UniversalClient and by test fakes.
type Client interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	LRem(ctx context.Context, key string, count int64, value interface{}) *redis.IntCmd
}

// Notification is a single queue entry. Source is not stored; List fills it
// with the queue key the entry came from so callers can dismiss it later.
type Notification struct {
	ID        string                 `json:"id"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source,omitempty"`
}

// Notifier pushes, lists and removes notifications.
type Notifier struct {
	client Client
	logger *slog.Logger
}

// New creates a Notifier on top of the given Redis client.
func New(client Client, logger *slog.Logger) *Notifier {
	return &Notifier{client: client, logger: logger.With("component", "notify")}
}

// Push prepends an entry to the named queue and trims the queue to its cap.
func (n *Notifier) Push(ctx context.Context, queue, message string, metadata map[string]interface{}) error {
	entry := Notification{
		ID:        strconv.FormatInt(time.Now().UnixMilli(), 10),
		Message:   message,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to serialize notification: %w", err)
	}

	if err := n.client.LPush(ctx, queue, payload).Err(); err != nil {
		return fmt.Errorf("failed to push notification to %s: %w", queue, err)
	}
	if err := n.client.LTrim(ctx, queue, 0, int64(queueCap(queue))-1).Err(); err != nil {
		return fmt.Errorf("failed to trim %s: %w", queue, err)
	}
	return nil
}

// NotifyAdmin pushes to the admin queue. Failures are logged, never raised:
// callers must not abort their own operation over a lost notification.
func (n *Notifier) NotifyAdmin(ctx context.Context, message string, metadata map[string]interface{}) {
	if err := n.Push(ctx, AdminQueue, message, metadata); err != nil {
		n.logger.Error("Failed to push admin notification", "error", err)
	}
}

// NotifyUser pushes to a user's queue. Failures are logged, never raised.
func (n *Notifier) NotifyUser(ctx context.Context, userID uint, message string, metadata map[string]interface{}) {
	if err := n.Push(ctx, UserQueue(userID), message, metadata); err != nil {
		n.logger.Error("Failed to push user notification", "error", err, "user_id", userID)
	}
}

// List returns up to limit most-recent entries from the queue, newest first.
// Entries that fail to parse are dropped rather than failing the whole read.
func (n *Notifier) List(ctx context.Context, queue string, limit int64) ([]Notification, error) {
	raw, err := n.client.LRange(ctx, queue, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", queue, err)
	}

	out := make([]Notification, 0, len(raw))
	for _, payload := range raw {
		var entry Notification
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			n.logger.Warn("Dropping unparseable notification", "queue", queue, "error", err)
			continue
		}
		entry.Source = queue
		out = append(out, entry)
	}
	return out, nil
}

// Remove consumes the entry with the given id from the queue. The list is
// indexed by position, so this scans the full queue for the entry whose
// embedded id matches and removes exactly one occurrence of that payload.
func (n *Notifier) Remove(ctx context.Context, queue, id string) error {
	raw, err := n.client.LRange(ctx, queue, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", queue, err)
	}

	for _, payload := range raw {
		var entry Notification
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			continue
		}
		if entry.ID == id {
			if err := n.client.LRem(ctx, queue, 1, payload).Err(); err != nil {
				return fmt.Errorf("failed to remove notification %s from %s: %w", id, queue, err)
			}
			return nil
		}
	}
	return ErrNotFound
}

func queueCap(queue string) int {
	if queue == AdminQueue {
		return adminQueueCap
	}
	return userQueueCap
}
