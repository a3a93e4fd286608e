package attempts

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	guarderrors "github.com/tendant/login-guard/pkg/errors"
)

const (
	DefaultRedisKeyPrefix = "login_guard:attempts"
	DefaultRedisRetention = 48 * time.Hour
)

// RedisRepository implements Repository on Redis sorted sets. Each identifier
// owns five sets scored by Unix milliseconds: all attempts, failed attempts,
// emails (scored by their latest attempt), blocks (scored by BlockedUntil)
// and successes. Entries older than the retention are trimmed on write.
type RedisRepository struct {
	client    redis.UniversalClient
	keyPrefix string
	retention time.Duration
}

// RedisOption configures a RedisRepository
type RedisOption func(*RedisRepository)

// WithKeyPrefix sets the key namespace.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisRepository) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

// WithRetention sets how long attempts are kept. It must exceed the longest
// policy window.
func WithRetention(d time.Duration) RedisOption {
	return func(r *RedisRepository) {
		if d > 0 {
			r.retention = d
		}
	}
}

// NewRedisRepository creates a new Redis attempt ledger
func NewRedisRepository(client redis.UniversalClient, opts ...RedisOption) *RedisRepository {
	r := &RedisRepository{
		client:    client,
		keyPrefix: DefaultRedisKeyPrefix,
		retention: DefaultRedisRetention,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisRepository) key(identifier, kind string) string {
	return r.keyPrefix + ":" + identifier + ":" + kind
}

func (r *RedisRepository) Create(ctx context.Context, attempt LoginAttempt) (LoginAttempt, error) {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	id := attempt.ID.String()
	score := toScore(attempt.CreatedAt)
	cutoff := "(" + formatScore(attempt.CreatedAt.Add(-r.retention))
	keys := []string{
		r.key(attempt.Identifier, "all"),
		r.key(attempt.Identifier, "failed"),
		r.key(attempt.Identifier, "emails"),
		r.key(attempt.Identifier, "blocks"),
		r.key(attempt.Identifier, "success"),
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, keys[0], redis.Z{Score: score, Member: id})
		if attempt.Success {
			pipe.ZAdd(ctx, keys[4], redis.Z{Score: score, Member: id})
		} else {
			pipe.ZAdd(ctx, keys[1], redis.Z{Score: score, Member: id})
		}
		if attempt.Email != "" {
			pipe.ZAdd(ctx, keys[2], redis.Z{Score: score, Member: attempt.Email})
		}
		if attempt.BlockedUntil != nil {
			pipe.ZAdd(ctx, keys[3], redis.Z{Score: toScore(*attempt.BlockedUntil), Member: id})
		}

		for _, k := range []string{keys[0], keys[1], keys[2], keys[4]} {
			pipe.ZRemRangeByScore(ctx, k, "-inf", cutoff)
		}
		pipe.ZRemRangeByScore(ctx, keys[3], "-inf", "("+formatScore(attempt.CreatedAt))

		expiry := r.retention
		if attempt.BlockedUntil != nil {
			if d := attempt.BlockedUntil.Sub(attempt.CreatedAt); d > expiry {
				expiry = d
			}
		}
		for _, k := range keys {
			pipe.Expire(ctx, k, expiry)
		}
		return nil
	})
	if err != nil {
		return LoginAttempt{}, guarderrors.StoreFailure(err, "failed to record login attempt")
	}
	return attempt, nil
}

func (r *RedisRepository) CountFailedSince(ctx context.Context, identifier string, since time.Time) (int, error) {
	return r.countAfter(ctx, r.key(identifier, "failed"), since, "failed to count failed attempts")
}

func (r *RedisRepository) CountSince(ctx context.Context, identifier string, since time.Time) (int, error) {
	return r.countAfter(ctx, r.key(identifier, "all"), since, "failed to count attempts")
}

func (r *RedisRepository) DistinctEmailsSince(ctx context.Context, identifier string, since time.Time) (int, error) {
	return r.countAfter(ctx, r.key(identifier, "emails"), since, "failed to count distinct emails")
}

func (r *RedisRepository) ActiveBlock(ctx context.Context, identifier string, now time.Time) (*time.Time, error) {
	res, err := r.client.ZRevRangeByScoreWithScores(ctx, r.key(identifier, "blocks"), &redis.ZRangeBy{
		Min:   "(" + formatScore(now),
		Max:   "+inf",
		Count: 1,
	}).Result()
	if err != nil {
		return nil, guarderrors.StoreFailure(err, "failed to query active block")
	}
	if len(res) == 0 {
		return nil, nil
	}
	t := fromScore(res[0].Score)
	return &t, nil
}

func (r *RedisRepository) LatestSuccess(ctx context.Context, identifier string) (*time.Time, error) {
	res, err := r.client.ZRevRangeWithScores(ctx, r.key(identifier, "success"), 0, 0).Result()
	if err != nil {
		return nil, guarderrors.StoreFailure(err, "failed to query last successful login")
	}
	if len(res) == 0 {
		return nil, nil
	}
	t := fromScore(res[0].Score)
	return &t, nil
}

func (r *RedisRepository) countAfter(ctx context.Context, key string, since time.Time, msg string) (int, error) {
	n, err := r.client.ZCount(ctx, key, "("+formatScore(since), "+inf").Result()
	if err != nil {
		return 0, guarderrors.StoreFailure(err, msg)
	}
	return int(n), nil
}

func toScore(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func formatScore(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func fromScore(score float64) time.Time {
	return time.UnixMilli(int64(score)).UTC()
}
