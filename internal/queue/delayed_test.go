package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"postpilot/internal/types"
)

// ============================================================
// Mock Implementations
// ============================================================

// fakeRedis is an in-memory stand-in for the Redis commands the delayed
// trigger uses: a key set for SETNX and per-key slices for ZADD and LPUSH.
type fakeRedis struct {
	keys    map[string]bool
	zadds   map[string][]redis.Z
	lpushes map[string][]string

	setNXErr error
	zaddErr  error
	lpushErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		keys:    map[string]bool{},
		zadds:   map[string][]redis.Z{},
		lpushes: map[string][]string{},
	}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if f.setNXErr != nil {
		return redis.NewBoolResult(false, f.setNXErr)
	}
	if f.keys[key] {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = true
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd {
	if f.zaddErr != nil {
		return redis.NewIntResult(0, f.zaddErr)
	}
	f.zadds[key] = append(f.zadds[key], members...)
	return redis.NewIntResult(int64(len(members)), nil)
}

func (f *fakeRedis) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	if f.lpushErr != nil {
		return redis.NewIntResult(0, f.lpushErr)
	}
	for _, v := range values {
		f.lpushes[key] = append(f.lpushes[key], v.(string))
	}
	return redis.NewIntResult(int64(len(f.lpushes[key])), nil)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func newTestTrigger(client RedisClient, now time.Time) *DelayedTrigger {
	return NewDelayedTrigger(client, DelayedTriggerConfig{
		Now:    func() time.Time { return now },
		Logger: quietLogger(),
	})
}

// ============================================================
// Test: Submit
// ============================================================

func TestSubmit_FutureLandsInDelayedSet(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	client := newFakeRedis()
	trigger := newTestTrigger(client, now)

	fireAt := now.Add(2 * time.Hour)
	handle, err := trigger.Submit(context.Background(), types.QueuePublish,
		types.PublishMessage{JobID: "j1"},
		types.SubmitOptions{Delay: 2 * time.Hour, IdempotencyKey: "publish-j1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if handle.Deduplicated {
		t.Error("first submission must not be deduplicated")
	}
	if !handle.FireAt.Equal(fireAt) {
		t.Errorf("FireAt = %v, want %v", handle.FireAt, fireAt)
	}
	if handle.MessageID == "" {
		t.Error("handle must carry a message ID")
	}

	members := client.zadds["postpilot:publish:delayed"]
	if len(members) != 1 {
		t.Fatalf("delayed set has %d members, want 1", len(members))
	}
	if members[0].Score != float64(fireAt.UnixMilli()) {
		t.Errorf("score = %v, want %v", members[0].Score, float64(fireAt.UnixMilli()))
	}

	var env Envelope
	if err := json.Unmarshal([]byte(members[0].Member.(string)), &env); err != nil {
		t.Fatalf("member is not an envelope: %v", err)
	}
	if env.Queue != types.QueuePublish {
		t.Errorf("envelope queue = %q, want publish", env.Queue)
	}
	var msg types.PublishMessage
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		t.Fatalf("payload did not round-trip: %v", err)
	}
	if msg.JobID != "j1" {
		t.Errorf("payload job = %q, want j1", msg.JobID)
	}

	if len(client.lpushes) != 0 {
		t.Error("future submission must not touch the wait list")
	}
}

func TestSubmit_ImmediateLandsOnWaitList(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	client := newFakeRedis()
	trigger := newTestTrigger(client, now)

	_, err := trigger.Submit(context.Background(), types.QueuePublish,
		types.PublishMessage{JobID: "j1"}, types.SubmitOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(client.lpushes["postpilot:publish:wait"]) != 1 {
		t.Fatalf("wait list has %d entries, want 1", len(client.lpushes["postpilot:publish:wait"]))
	}
	if len(client.zadds) != 0 {
		t.Error("immediate submission must not touch the delayed set")
	}
}

func TestSubmit_FireAtPrecedesDelay(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	client := newFakeRedis()
	trigger := newTestTrigger(client, now)

	fireAt := now.Add(30 * time.Minute)
	handle, err := trigger.Submit(context.Background(), types.QueuePublish,
		types.PublishMessage{JobID: "j1"},
		types.SubmitOptions{FireAt: fireAt, Delay: 5 * time.Hour})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handle.FireAt.Equal(fireAt) {
		t.Errorf("FireAt = %v, want explicit %v to win over Delay", handle.FireAt, fireAt)
	}
}

func TestSubmit_NegativeDelayClampedToNow(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	client := newFakeRedis()
	trigger := newTestTrigger(client, now)

	handle, err := trigger.Submit(context.Background(), types.QueuePublish,
		types.PublishMessage{JobID: "j1"},
		types.SubmitOptions{Delay: -time.Hour})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handle.FireAt.Equal(now) {
		t.Errorf("FireAt = %v, want clamped to now %v", handle.FireAt, now)
	}
	if len(client.lpushes["postpilot:publish:wait"]) != 1 {
		t.Error("clamped submission must be immediately deliverable")
	}
}

func TestSubmit_DuplicateKeyDeliveredOnce(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	client := newFakeRedis()
	trigger := newTestTrigger(client, now)

	opts := types.SubmitOptions{Delay: time.Hour, IdempotencyKey: types.PublishIdempotencyKey("j1")}

	first, err := trigger.Submit(context.Background(), types.QueuePublish, types.PublishMessage{JobID: "j1"}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := trigger.Submit(context.Background(), types.QueuePublish, types.PublishMessage{JobID: "j1"}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.Deduplicated {
		t.Error("first submission must not report deduplicated")
	}
	if !second.Deduplicated {
		t.Error("second submission with the same key must report deduplicated")
	}
	if got := len(client.zadds["postpilot:publish:delayed"]); got != 1 {
		t.Errorf("delayed set has %d members, want exactly 1", got)
	}
}

func TestSubmit_SetNXFailureIsBrokerError(t *testing.T) {
	client := newFakeRedis()
	client.setNXErr = errors.New("connection refused")
	trigger := newTestTrigger(client, time.Now().UTC())

	_, err := trigger.Submit(context.Background(), types.QueuePublish,
		types.PublishMessage{JobID: "j1"},
		types.SubmitOptions{IdempotencyKey: "publish-j1"})
	if err == nil {
		t.Fatal("expected error")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamBroker {
		t.Fatalf("expected %s, got %v", types.ErrCodeUpstreamBroker, err)
	}
}

func TestSubmit_ZAddFailureIsBrokerError(t *testing.T) {
	client := newFakeRedis()
	client.zaddErr = errors.New("readonly replica")
	trigger := newTestTrigger(client, time.Now().UTC())

	_, err := trigger.Submit(context.Background(), types.QueuePublish,
		types.PublishMessage{JobID: "j1"},
		types.SubmitOptions{Delay: time.Hour})
	if err == nil {
		t.Fatal("expected error")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamBroker {
		t.Fatalf("expected %s, got %v", types.ErrCodeUpstreamBroker, err)
	}
}

func TestSubmitImmediate(t *testing.T) {
	client := newFakeRedis()
	trigger := newTestTrigger(client, time.Now().UTC())

	_, err := trigger.SubmitImmediate(context.Background(), types.QueueCreateContent,
		types.CreateContentMessage{JobID: "j1", AccountID: "a1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.lpushes["postpilot:create_content:wait"]) != 1 {
		t.Error("immediate submission must land on the wait list")
	}
}
