package device

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/login-guard/internal/pgtest"
)

func newSession(userID string, token string, now time.Time, ttl time.Duration) DeviceSession {
	return DeviceSession{
		ID:                uuid.New(),
		UserID:            userID,
		DeviceFingerprint: Fingerprint(DeviceInfo{UserAgent: userID}),
		DeviceName:        UnknownDeviceName,
		IPAddress:         "1.1.1.1",
		RememberToken:     token,
		ExpiresAt:         now.Add(ttl),
		CreatedAt:         now,
		LastUsedAt:        now,
		IsActive:          true,
	}
}

func TestPostgresRepository_Lifecycle(t *testing.T) {
	pool, cleanup := pgtest.Setup(t)
	defer cleanup()

	repo := NewPostgresRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	tokenA := strings.Repeat("a", TokenLength)
	tokenB := strings.Repeat("b", TokenLength)
	tokenC := strings.Repeat("c", TokenLength)

	a, err := repo.Create(ctx, newSession("u1", tokenA, now, time.Hour))
	require.NoError(t, err)
	b, err := repo.Create(ctx, newSession("u1", tokenB, now.Add(time.Minute), time.Hour))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newSession("u2", tokenC, now, -time.Minute))
	require.NoError(t, err)

	_, err = repo.Create(ctx, newSession("u1", tokenA, now, time.Hour))
	assert.Error(t, err, "duplicate token")

	found, err := repo.FindActiveByToken(ctx, tokenA, now)
	require.NoError(t, err)
	assert.Equal(t, a.ID, found.ID)
	assert.Equal(t, "1.1.1.1", found.IPAddress)
	assert.Equal(t, "", found.UserAgent)

	_, err = repo.FindActiveByToken(ctx, tokenC, now)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, repo.TouchLastUsed(ctx, a.ID, now.Add(2*time.Minute)))
	list, err := repo.ListActiveByUser(ctx, "u1", now)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)

	changed, err := repo.Deactivate(ctx, b.ID, "u2")
	require.NoError(t, err)
	assert.False(t, changed)
	changed, err = repo.Deactivate(ctx, b.ID, "")
	require.NoError(t, err)
	assert.True(t, changed)

	count, err := repo.DeactivateAllForUser(ctx, "u1", &a.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	count, err = repo.DeactivateAllForUser(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	deleted, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestPostgresRepository_WithTx(t *testing.T) {
	pool, cleanup := pgtest.Setup(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()
	tx, err := pool.Begin(ctx)
	require.NoError(t, err)

	repo := NewPostgresRepository(pool).WithTx(tx)
	token := strings.Repeat("d", TokenLength)
	_, err = repo.Create(ctx, newSession("u3", token, now, time.Hour))
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	_, err = NewPostgresRepository(pool).FindActiveByToken(ctx, token, now)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
