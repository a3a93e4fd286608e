package attempts

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/login-guard/internal/pgtest"
	guarderrors "github.com/tendant/login-guard/pkg/errors"
)

// runLedgerContract exercises the Repository contract against any implementation.
func runLedgerContract(t *testing.T, repo Repository) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	id := "ident-" + now.Format("150405.000")

	record := func(success bool, email string, at time.Time, blockedUntil *time.Time) {
		_, err := repo.Create(ctx, LoginAttempt{
			Identifier:   id,
			Success:      success,
			Email:        email,
			CreatedAt:    at,
			BlockedUntil: blockedUntil,
		})
		require.NoError(t, err)
	}

	record(false, "a@example.com", now.Add(-30*time.Minute), nil)
	record(false, "b@example.com", now.Add(-10*time.Minute), nil)
	record(true, "b@example.com", now.Add(-9*time.Minute), nil)
	record(false, "", now.Add(-2*time.Minute), nil)
	block := now.Add(15 * time.Minute)
	record(false, "c@example.com", now.Add(-time.Minute), &block)

	t.Run("CountFailedSince", func(t *testing.T) {
		n, err := repo.CountFailedSince(ctx, id, now.Add(-15*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("SinceIsExclusive", func(t *testing.T) {
		n, err := repo.CountFailedSince(ctx, id, now.Add(-10*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("CountSince", func(t *testing.T) {
		n, err := repo.CountSince(ctx, id, now.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 5, n)
	})

	t.Run("DistinctEmailsSince", func(t *testing.T) {
		n, err := repo.DistinctEmailsSince(ctx, id, now.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		n, err = repo.DistinctEmailsSince(ctx, id, now.Add(-5*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("ActiveBlock", func(t *testing.T) {
		until, err := repo.ActiveBlock(ctx, id, now)
		require.NoError(t, err)
		require.NotNil(t, until)
		assert.True(t, block.Equal(*until), "got %v want %v", *until, block)

		until, err = repo.ActiveBlock(ctx, id, block)
		require.NoError(t, err)
		assert.Nil(t, until)
	})

	t.Run("LatestSuccess", func(t *testing.T) {
		last, err := repo.LatestSuccess(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.True(t, now.Add(-9*time.Minute).Equal(*last))

		last, err = repo.LatestSuccess(ctx, "never-seen")
		require.NoError(t, err)
		assert.Nil(t, last)
	})

	t.Run("IdentifiersAreIsolated", func(t *testing.T) {
		n, err := repo.CountSince(ctx, "other-"+id, now.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestInMemRepository_Contract(t *testing.T) {
	runLedgerContract(t, NewInMemRepository())
}

func TestRedisRepository_Contract(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	runLedgerContract(t, NewRedisRepository(client))
}

func TestPostgresRepository_Contract(t *testing.T) {
	pool, cleanup := pgtest.Setup(t)
	defer cleanup()

	runLedgerContract(t, NewPostgresRepository(pool))
}

func TestRedisRepository_TrimsBeyondRetention(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	repo := NewRedisRepository(client, WithRetention(time.Hour), WithKeyPrefix("test"))
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := repo.Create(ctx, LoginAttempt{Identifier: "x", CreatedAt: now.Add(-2 * time.Hour)})
	require.NoError(t, err)
	_, err = repo.Create(ctx, LoginAttempt{Identifier: "x", CreatedAt: now})
	require.NoError(t, err)

	members, err := client.ZCard(ctx, "test:x:all").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), members)
	assert.True(t, mr.Exists("test:x:failed"))
}

func TestRedisRepository_StoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	repo := NewRedisRepository(client)
	mr.Close()

	_, err := repo.CountFailedSince(context.Background(), "x", time.Now())
	require.Error(t, err)
	assert.True(t, guarderrors.IsStoreFailure(err))
}

func TestNewRepository(t *testing.T) {
	repo, err := NewRepository("memory", RepositoryConfig{})
	require.NoError(t, err)
	assert.IsType(t, &InMemRepository{}, repo)

	_, err = NewRepository("postgres", RepositoryConfig{})
	assert.Error(t, err)

	_, err = NewRepository("redis", RepositoryConfig{})
	assert.Error(t, err)

	_, err = NewRepository("cassandra", RepositoryConfig{})
	assert.Error(t, err)
}
