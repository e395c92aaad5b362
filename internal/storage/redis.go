package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/maneesh/sharebox/internal/apperrors"
)

const (
	uploadLockPrefix = "upload-lock:"
	lockPollInterval = 50 * time.Millisecond
)

// releaseScript deletes the key only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisClient serializes uploads of one owner across service instances
type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisClient initializes a new Redis client.
// ttl bounds how long a crashed holder can block an owner, wait bounds how
// long Acquire polls for a held lock.
func NewRedisClient(ctx context.Context, addr, password string, db int, ttl, wait time.Duration) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisClient{client: client, ttl: ttl, wait: wait}, nil
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// Ping checks the Redis connection
func (rc *RedisClient) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Acquire takes the upload lock of ownerID, failing with
// apperrors.ErrUploadBusy if it is still held once the wait runs out. The
// returned func releases it and is safe to call after the lock expired.
func (rc *RedisClient) Acquire(ctx context.Context, ownerID string) (func(context.Context) error, error) {
	ctx, span := tracer.Start(ctx, "redis.acquire_upload_lock",
		trace.WithAttributes(attribute.String("owner_id", ownerID)),
	)
	defer span.End()

	key := uploadLockPrefix + ownerID
	token := uuid.New().String()
	deadline := time.Now().Add(rc.wait)

	for attempt := 1; ; attempt++ {
		ok, err := rc.client.SetNX(ctx, key, token, rc.ttl).Result()
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to acquire upload lock: %w", err)
		}
		if ok {
			span.SetAttributes(attribute.Int("attempts", attempt))
			return func(ctx context.Context) error {
				return rc.release(ctx, key, token)
			}, nil
		}

		if !time.Now().Before(deadline) {
			span.SetAttributes(attribute.Bool("lock_held", true))
			return nil, apperrors.ErrUploadBusy
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

func (rc *RedisClient) release(ctx context.Context, key, token string) error {
	ctx, span := tracer.Start(ctx, "redis.release_upload_lock")
	defer span.End()

	if err := releaseScript.Run(ctx, rc.client, []string{key}, token).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to release upload lock: %w", err)
	}
	return nil
}
