package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "flowmirror:lock:"

	DefaultTTL = 30 * time.Second
	retryEvery = 200 * time.Millisecond
)

var (
	refreshScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		end
		return 0
	`)

	releaseScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0
	`)
)

// Redis is a Locker shared by every replica pointing at the same Redis. A
// held lock is kept alive until released; a crashed holder loses it after
// the TTL.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedis connects to the Redis at url (redis://host:port/db).
func NewRedis(ctx context.Context, logger *slog.Logger, url string, ttl time.Duration) (*Redis, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid lock url: %w", err)
	}

	client := redis.NewClient(options)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Redis{client: client, ttl: ttl, logger: logger.With("module", "lock")}, nil
}

func (r *Redis) Lock(ctx context.Context, key string) (context.Context, func(), error) {
	name := keyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(retryEvery)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, name, token, r.ttl).Result()
		if err == nil && ok {
			break
		}

		if err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "failed to acquire lock", "key", key, "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}

	held, stop := context.WithCancelCause(context.WithoutCancel(ctx))
	done := make(chan struct{})

	go r.keepAlive(held, stop, name, token, done)

	var once sync.Once

	return held, func() {
		once.Do(func() {
			stop(nil)
			<-done

			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()

			err := releaseScript.Run(releaseCtx, r.client, []string{name}, token).Err()
			if err != nil {
				r.logger.ErrorContext(releaseCtx, "failed to release lock", "key", key, "error", err)
			}
		})
	}, nil
}

func (r *Redis) keepAlive(ctx context.Context, lost context.CancelCauseFunc, name, token string, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			held, err := refreshScript.Run(ctx, r.client, []string{name}, token, r.ttl.Milliseconds()).Int()
			if err != nil && ctx.Err() == nil {
				r.logger.WarnContext(ctx, "failed to refresh lock", "key", name, "error", err)

				continue
			}

			if err == nil && held == 0 {
				r.logger.ErrorContext(ctx, "lock lost before release", "key", name)
				lost(fmt.Errorf("%w: %s", ErrLost, name))

				return
			}
		}
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
