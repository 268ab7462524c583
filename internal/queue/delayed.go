// Package queue provides the broker adapters used by the scheduling core:
// a Redis-backed delayed-delivery trigger for the daily planner and an
// SQS-backed immediate trigger for the polling dispatcher.
package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"postpilot/internal/types"
)

// defaultDedupTTL is how long an idempotency key blocks re-submission.
// Publish triggers are planned at most one day ahead, so two days of dedup
// memory covers a full planner re-run of yesterday and today.
const defaultDedupTTL = 48 * time.Hour

// RedisClient is the subset of the go-redis client used by the delayed
// trigger. *redis.Client satisfies it; tests provide a fake.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// Envelope is the wire format stored in the broker for each submission.
// Workers deserialize the envelope and route on Queue.
type Envelope struct {
	ID         string          `json:"id"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	FireAt     time.Time       `json:"fire_at"`
}

// DelayedTrigger is a durable delayed-execution primitive over Redis. A
// submission lands in a per-queue sorted set scored by its fire time; a
// worker-side promoter moves due members onto the wait list for delivery.
// Idempotency keys are recorded with SET NX, so re-submitting the same key
// within the dedup window is a no-op rather than a duplicate trigger.
type DelayedTrigger struct {
	client    RedisClient
	keyPrefix string
	dedupTTL  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// DelayedTriggerConfig holds the settings for creating a DelayedTrigger.
type DelayedTriggerConfig struct {
	// KeyPrefix namespaces all broker keys. Empty defaults to "postpilot".
	KeyPrefix string
	// DedupTTL overrides how long idempotency keys are remembered.
	DedupTTL time.Duration
	// Now overrides the clock. Nil uses time.Now in UTC.
	Now    func() time.Time
	Logger *slog.Logger
}

// NewDelayedTrigger creates a DelayedTrigger backed by the given Redis client.
func NewDelayedTrigger(client RedisClient, cfg DelayedTriggerConfig) *DelayedTrigger {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "postpilot"
	}
	ttl := cfg.DedupTTL
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DelayedTrigger{
		client:    client,
		keyPrefix: prefix,
		dedupTTL:  ttl,
		now:       now,
		logger:    logger,
	}
}

func (t *DelayedTrigger) dedupKey(queue, key string) string {
	return t.keyPrefix + ":" + queue + ":dedup:" + key
}

func (t *DelayedTrigger) delayedKey(queue string) string {
	return t.keyPrefix + ":" + queue + ":delayed"
}

func (t *DelayedTrigger) waitKey(queue string) string {
	return t.keyPrefix + ":" + queue + ":wait"
}

// Submit records a payload for delivery at or after its fire time. FireAt
// takes precedence over Delay; with neither set, the payload is immediately
// deliverable. When an idempotency key is supplied and already known, the
// submission is dropped and the returned handle has Deduplicated set.
func (t *DelayedTrigger) Submit(ctx context.Context, queue string, payload any, opts types.SubmitOptions) (*types.TriggerHandle, error) {
	now := t.now()
	fireAt := opts.FireAt
	if fireAt.IsZero() {
		delay := opts.Delay
		if delay < 0 {
			delay = 0
		}
		fireAt = now.Add(delay)
	}

	handle := &types.TriggerHandle{
		Queue:          queue,
		IdempotencyKey: opts.IdempotencyKey,
		FireAt:         fireAt,
	}

	if opts.IdempotencyKey != "" {
		fresh, err := t.client.SetNX(ctx, t.dedupKey(queue, opts.IdempotencyKey), now.UnixMilli(), t.dedupTTL).Result()
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamBroker, "failed to record idempotency key", err)
		}
		if !fresh {
			handle.Deduplicated = true
			t.logger.InfoContext(ctx, "trigger submission deduplicated",
				"queue", queue,
				"idempotency_key", opts.IdempotencyKey,
			)
			return handle, nil
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal trigger payload", err)
	}

	env := Envelope{
		ID:         uuid.New().String(),
		Queue:      queue,
		Payload:    body,
		EnqueuedAt: now,
		FireAt:     fireAt,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal trigger envelope", err)
	}

	if fireAt.After(now) {
		err = t.client.ZAdd(ctx, t.delayedKey(queue), redis.Z{
			Score:  float64(fireAt.UnixMilli()),
			Member: string(raw),
		}).Err()
	} else {
		err = t.client.LPush(ctx, t.waitKey(queue), string(raw)).Err()
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamBroker, "failed to enqueue trigger", err)
	}

	handle.MessageID = env.ID
	t.logger.InfoContext(ctx, "trigger submitted",
		"queue", queue,
		"message_id", env.ID,
		"fire_at", fireAt.Format(time.RFC3339),
		"delayed", fireAt.After(now),
	)

	return handle, nil
}

// SubmitImmediate pushes a payload straight onto the queue's wait list.
func (t *DelayedTrigger) SubmitImmediate(ctx context.Context, queue string, payload any) (*types.TriggerHandle, error) {
	return t.Submit(ctx, queue, payload, types.SubmitOptions{})
}
