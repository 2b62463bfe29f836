package notify

import (
	"context"
	"fmt"
	"testing"

	"github.com/modelgate/modelgate/internal/logger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

// fakeRedis implements Client on top of in-memory lists.
type fakeRedis struct {
	lists map[string][]string
	fail  bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{lists: make(map[string][]string)}
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

func (f *fakeRedis) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	if f.fail {
		return redis.NewIntResult(0, fmt.Errorf("connection refused"))
	}
	for _, v := range values {
		f.lists[key] = append([]string{asString(v)}, f.lists[key]...)
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeRedis) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	if f.fail {
		return redis.NewStatusResult("", fmt.Errorf("connection refused"))
	}
	list := f.lists[key]
	if start < 0 {
		start = 0
	}
	if stop >= int64(len(list)) {
		stop = int64(len(list)) - 1
	}
	if start > int64(len(list))-1 || stop < start {
		f.lists[key] = nil
	} else {
		f.lists[key] = list[start : stop+1]
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	if f.fail {
		return redis.NewStringSliceResult(nil, fmt.Errorf("connection refused"))
	}
	list := f.lists[key]
	if stop == -1 || stop >= int64(len(list)) {
		stop = int64(len(list)) - 1
	}
	if start > stop {
		return redis.NewStringSliceResult([]string{}, nil)
	}
	out := make([]string, 0, stop-start+1)
	out = append(out, list[start:stop+1]...)
	return redis.NewStringSliceResult(out, nil)
}

func (f *fakeRedis) LRem(ctx context.Context, key string, count int64, value interface{}) *redis.IntCmd {
	target := asString(value)
	list := f.lists[key]
	for i, v := range list {
		if v == target {
			f.lists[key] = append(append([]string{}, list[:i]...), list[i+1:]...)
			return redis.NewIntResult(1, nil)
		}
	}
	return redis.NewIntResult(0, nil)
}

func newTestNotifier(client Client) *Notifier {
	return New(client, logger.New(false))
}

func TestPushListRoundTrip(t *testing.T) {
	fake := newFakeRedis()
	n := newTestNotifier(fake)
	ctx := context.Background()

	meta := map[string]interface{}{"action": "createApiKey", "keyId": float64(7)}
	assert.NoError(t, n.Push(ctx, AdminQueue, "New API key requested", meta))
	assert.NoError(t, n.Push(ctx, AdminQueue, "Second event", nil))

	got, err := n.List(ctx, AdminQueue, 50)
	assert.NoError(t, err)
	assert.Len(t, got, 2)

	// Newest first.
	assert.Equal(t, "Second event", got[0].Message)
	assert.Equal(t, "New API key requested", got[1].Message)
	assert.Equal(t, meta, got[1].Metadata)
	assert.Equal(t, AdminQueue, got[0].Source)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestUserQueueCap(t *testing.T) {
	fake := newFakeRedis()
	n := newTestNotifier(fake)
	ctx := context.Background()
	queue := UserQueue(42)

	for i := 0; i < userQueueCap+20; i++ {
		assert.NoError(t, n.Push(ctx, queue, fmt.Sprintf("event %d", i), nil))
	}

	// The queue is trimmed to exactly the cap, keeping the newest entries.
	assert.Len(t, fake.lists[queue], userQueueCap)

	got, err := n.List(ctx, queue, int64(userQueueCap))
	assert.NoError(t, err)
	assert.Len(t, got, userQueueCap)
	assert.Equal(t, fmt.Sprintf("event %d", userQueueCap+19), got[0].Message)
}

func TestListDropsUnparseableEntries(t *testing.T) {
	fake := newFakeRedis()
	n := newTestNotifier(fake)
	ctx := context.Background()

	assert.NoError(t, n.Push(ctx, AdminQueue, "good", nil))
	fake.lists[AdminQueue] = append([]string{"{not json"}, fake.lists[AdminQueue]...)

	got, err := n.List(ctx, AdminQueue, 10)
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "good", got[0].Message)
}

func TestRemoveIsIdempotent(t *testing.T) {
	fake := newFakeRedis()
	n := newTestNotifier(fake)
	ctx := context.Background()

	assert.NoError(t, n.Push(ctx, AdminQueue, "dismiss me", nil))
	got, err := n.List(ctx, AdminQueue, 10)
	assert.NoError(t, err)
	assert.Len(t, got, 1)

	assert.NoError(t, n.Remove(ctx, AdminQueue, got[0].ID))

	// Double-dismiss is a valid outcome, reported as not found.
	assert.ErrorIs(t, n.Remove(ctx, AdminQueue, got[0].ID), ErrNotFound)

	remaining, err := n.List(ctx, AdminQueue, 10)
	assert.NoError(t, err)
	assert.Len(t, remaining, 0)
}

func TestNotifyHelpersSwallowFailures(t *testing.T) {
	fake := newFakeRedis()
	fake.fail = true
	n := newTestNotifier(fake)
	ctx := context.Background()

	// Must not panic or propagate the failure.
	n.NotifyAdmin(ctx, "lost", nil)
	n.NotifyUser(ctx, 1, "lost", nil)
}

func TestQueueCap(t *testing.T) {
	assert.Equal(t, adminQueueCap, queueCap(AdminQueue))
	assert.Equal(t, userQueueCap, queueCap(UserQueue(9)))
}
