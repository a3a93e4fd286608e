package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/login-guard/pkg/attempts"
	"github.com/tendant/login-guard/pkg/detector"
	guarderrors "github.com/tendant/login-guard/pkg/errors"
	"github.com/tendant/login-guard/pkg/metrics"
	"github.com/tendant/login-guard/pkg/securityevent"
)

// failingLedger returns a connection error from every call.
type failingLedger struct{}

var errConnRefused = guarderrors.StoreFailure(errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), "store unavailable")

func (failingLedger) Create(context.Context, attempts.LoginAttempt) (attempts.LoginAttempt, error) {
	return attempts.LoginAttempt{}, errConnRefused
}
func (failingLedger) CountFailedSince(context.Context, string, time.Time) (int, error) {
	return 0, errConnRefused
}
func (failingLedger) CountSince(context.Context, string, time.Time) (int, error) {
	return 0, errConnRefused
}
func (failingLedger) DistinctEmailsSince(context.Context, string, time.Time) (int, error) {
	return 0, errConnRefused
}
func (failingLedger) ActiveBlock(context.Context, string, time.Time) (*time.Time, error) {
	return nil, errConnRefused
}
func (failingLedger) LatestSuccess(context.Context, string) (*time.Time, error) {
	return nil, errConnRefused
}

// slowLedger blocks every read until the context is done.
type slowLedger struct {
	attempts.InMemRepository
}

func (s *slowLedger) ActiveBlock(ctx context.Context, identifier string, now time.Time) (*time.Time, error) {
	<-ctx.Done()
	return nil, guarderrors.StoreFailure(ctx.Err(), "active block query timed out")
}

type fixture struct {
	ledger  *attempts.InMemRepository
	events  *securityevent.InMemRepository
	metrics *metrics.Metrics
	limiter *Limiter
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ledger:  attempts.NewInMemRepository(),
		events:  securityevent.NewInMemRepository(),
		metrics: metrics.New(prometheus.NewRegistry()),
		now:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	logger := securityevent.NewLogger(f.events, securityevent.WithClock(clock))
	detOpts := detector.DefaultOptions()
	detOpts.Now = clock
	f.limiter = NewLimiter(f.ledger, logger,
		WithClock(clock),
		WithMetrics(f.metrics),
		WithDetector(detector.New(f.ledger, logger, detOpts)),
	)
	return f
}

func (f *fixture) eventsOf(t *testing.T, eventType securityevent.EventType) []securityevent.SecurityEvent {
	t.Helper()
	events, err := f.events.List(context.Background(), securityevent.Filter{
		EventTypes: []securityevent.EventType{eventType},
	})
	require.NoError(t, err)
	return events
}

func TestCheckRateLimit_AllowsUnderThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.limiter.CheckRateLimit(ctx, "x", LoginPolicy)
	assert.True(t, res.Allowed)
	assert.Equal(t, DecisionAllowed, res.Decision)
	assert.Equal(t, 5, res.Remaining)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.limiter.RecordLoginAttempt(ctx, "x", false, AttemptDetails{}))
	}
	res = f.limiter.CheckRateLimit(ctx, "x", LoginPolicy)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
}

func TestCheckRateLimit_SixthAttemptBlocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res := f.limiter.CheckRateLimit(ctx, "X", LoginPolicy)
		require.True(t, res.Allowed, "attempt %d", i+1)
		require.NoError(t, f.limiter.RecordLoginAttempt(ctx, "X", false, AttemptDetails{Email: "victim@example.com"}))
		f.now = f.now.Add(time.Minute)
	}

	res := f.limiter.CheckRateLimit(ctx, "X", LoginPolicy)
	assert.False(t, res.Allowed)
	assert.Equal(t, DecisionBlockedRateLimit, res.Decision)
	assert.Equal(t, MessageBlocked, res.Message)
	require.NotNil(t, res.BlockedUntil)
	assert.Equal(t, f.now.Add(15*time.Minute), *res.BlockedUntil)

	exceeded := f.eventsOf(t, securityevent.EventRateLimitExceeded)
	require.Len(t, exceeded, 1)
	assert.Equal(t, securityevent.SeverityHigh, exceeded[0].Severity)
	assert.Equal(t, 5, exceeded[0].Metadata["failedCount"])
	assert.Equal(t, "X", exceeded[0].Identifier())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.RateLimitDecisions.WithLabelValues("blocked_rate_limit")))
}

func TestCheckRateLimit_BlockedUntilExpiryThenFresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, f.limiter.RecordLoginAttempt(ctx, "x", false, AttemptDetails{}))
	}
	first := f.limiter.CheckRateLimit(ctx, "x", LoginPolicy)
	require.False(t, first.Allowed)
	blockedUntil := *first.BlockedUntil

	// a successful login does not lift the block
	require.NoError(t, f.limiter.RecordLoginAttempt(ctx, "x", true, AttemptDetails{}))

	f.now = blockedUntil.Add(-time.Second)
	res := f.limiter.CheckRateLimit(ctx, "x", LoginPolicy)
	assert.False(t, res.Allowed)
	assert.Equal(t, DecisionBlockedPriorBlock, res.Decision)
	assert.Equal(t, blockedUntil, *res.BlockedUntil)
	blockedAccess := f.eventsOf(t, securityevent.EventRateLimitBlockedAccess)
	require.Len(t, blockedAccess, 1)
	assert.Equal(t, securityevent.SeverityMedium, blockedAccess[0].Severity)

	f.now = blockedUntil
	res = f.limiter.CheckRateLimit(ctx, "x", LoginPolicy)
	assert.True(t, res.Allowed)
	assert.Equal(t, 5, res.Remaining)
}

func TestCheckRateLimit_TrailingWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, f.limiter.RecordLoginAttempt(ctx, "x", false, AttemptDetails{}))
	}
	f.now = f.now.Add(10 * time.Minute)
	require.NoError(t, f.limiter.RecordLoginAttempt(ctx, "x", false, AttemptDetails{}))

	// exactly at window expiry the first four fall out
	f.now = f.now.Add(5 * time.Minute)
	res := f.limiter.CheckRateLimit(ctx, "x", LoginPolicy)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
}

func TestCheckRateLimit_IdentifiersIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, f.limiter.RecordLoginAttempt(ctx, "a", false, AttemptDetails{}))
	}
	assert.False(t, f.limiter.CheckRateLimit(ctx, "a", LoginPolicy).Allowed)
	assert.True(t, f.limiter.CheckRateLimit(ctx, "b", LoginPolicy).Allowed)
}

func TestCheckRateLimit_FailsOpen(t *testing.T) {
	events := securityevent.NewInMemRepository()
	m := metrics.New(prometheus.NewRegistry())
	limiter := NewLimiter(failingLedger{}, securityevent.NewLogger(events), WithMetrics(m))

	res := limiter.CheckRateLimit(context.Background(), "x", PasswordResetPolicy)
	assert.True(t, res.Allowed)
	assert.Equal(t, PasswordResetPolicy.MaxAttempts, res.Remaining)
	assert.Nil(t, res.BlockedUntil)

	all, err := events.List(context.Background(), securityevent.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, securityevent.EventRateLimiterError, all[0].EventType)
	assert.Equal(t, securityevent.SeverityMedium, all[0].Severity)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RateLimitDecisions.WithLabelValues("fail_open")))
}

func TestCheckRateLimit_TimeoutFailsOpen(t *testing.T) {
	events := securityevent.NewInMemRepository()
	limiter := NewLimiter(&slowLedger{}, securityevent.NewLogger(events), WithStoreTimeout(20*time.Millisecond))

	start := time.Now()
	res := limiter.CheckRateLimit(context.Background(), "x", LoginPolicy)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, res.Allowed)
	assert.Equal(t, LoginPolicy.MaxAttempts, res.Remaining)

	n, err := events.Count(context.Background(), securityevent.Filter{
		EventTypes: []securityevent.EventType{securityevent.EventRateLimiterError},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecordLoginAttempt_Events(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.limiter.RecordLoginAttempt(ctx, "x", true, AttemptDetails{Email: "alice@example.com", UserID: "u1"}))
	require.NoError(t, f.limiter.RecordLoginAttempt(ctx, "x", false, AttemptDetails{Email: "alice@example.com", IPAddress: "1.1.1.1"}))

	success := f.eventsOf(t, securityevent.EventSuccessfulLogin)
	require.Len(t, success, 1)
	assert.Equal(t, securityevent.SeverityLow, success[0].Severity)
	assert.Equal(t, "u1", success[0].Metadata["userId"])
	assert.Equal(t, "a***e@example.com", success[0].Metadata["email"])

	failed := f.eventsOf(t, securityevent.EventFailedLogin)
	require.Len(t, failed, 1)
	assert.Equal(t, securityevent.SeverityMedium, failed[0].Severity)
	assert.Equal(t, "1.1.1.1", failed[0].IPAddress)
}

func TestRecordLoginAttempt_InvokesDetector(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		email := fmt.Sprintf("user%d@example.com", i)
		require.NoError(t, f.limiter.RecordLoginAttempt(ctx, "x", false, AttemptDetails{Email: email}))
	}
	assert.Len(t, f.eventsOf(t, securityevent.EventSuspiciousEmailEnumeration), 1)

	// successes never run the detector
	for i := 4; i < 8; i++ {
		email := fmt.Sprintf("user%d@example.com", i)
		require.NoError(t, f.limiter.RecordLoginAttempt(ctx, "y", true, AttemptDetails{Email: email}))
	}
	enumeration, err := f.events.Count(ctx, securityevent.Filter{
		Identifier: "y",
		EventTypes: []securityevent.EventType{securityevent.EventSuspiciousEmailEnumeration},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, enumeration)
}

func TestRecordLoginAttempt_StoreError(t *testing.T) {
	events := securityevent.NewInMemRepository()
	limiter := NewLimiter(failingLedger{}, securityevent.NewLogger(events))

	err := limiter.RecordLoginAttempt(context.Background(), "x", false, AttemptDetails{})
	require.Error(t, err)
	assert.True(t, guarderrors.IsStoreFailure(err))
}

// latchedLedger holds every CountFailedSince call until the whole burst has
// read its count, so all of them observe the same ledger state.
type latchedLedger struct {
	*attempts.InMemRepository
	arrived sync.WaitGroup
}

func (l *latchedLedger) CountFailedSince(ctx context.Context, identifier string, since time.Time) (int, error) {
	n, err := l.InMemRepository.CountFailedSince(ctx, identifier, since)
	l.arrived.Done()
	l.arrived.Wait()
	return n, err
}

func TestCheckRateLimit_ConcurrentBurstIsLenient(t *testing.T) {
	const burst = 3
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	policy := LoginPolicy

	ledger := &latchedLedger{InMemRepository: attempts.NewInMemRepository()}
	limiter := NewLimiter(ledger, securityevent.NewLogger(securityevent.NewInMemRepository()), WithClock(clock))

	// one failure short of the limit
	for i := 0; i < policy.MaxAttempts-1; i++ {
		_, err := ledger.InMemRepository.Create(ctx, attempts.LoginAttempt{
			Identifier: "burst",
			CreatedAt:  now.Add(-time.Minute),
		})
		require.NoError(t, err)
	}

	ledger.arrived.Add(burst)
	results := make([]Result, burst)
	var wg sync.WaitGroup
	for i := 0; i < burst; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = limiter.CheckRateLimit(ctx, "burst", policy)
		}(i)
	}
	wg.Wait()

	allowed := 0
	for _, r := range results {
		if r.Allowed {
			allowed++
			assert.Equal(t, 1, r.Remaining)
		}
	}
	// every check in the burst read the same count below the limit
	assert.Equal(t, burst, allowed)

	for i := 0; i < allowed; i++ {
		require.NoError(t, limiter.RecordLoginAttempt(ctx, "burst", false, AttemptDetails{}))
	}
	failed, err := ledger.InMemRepository.CountFailedSince(ctx, "burst", now.Add(-policy.Window))
	require.NoError(t, err)
	assert.Equal(t, policy.MaxAttempts+burst-1, failed)

	// the first check after the burst sees the full count and blocks
	ledger.arrived.Add(1)
	next := limiter.CheckRateLimit(ctx, "burst", policy)
	assert.False(t, next.Allowed)
	assert.Equal(t, DecisionBlockedRateLimit, next.Decision)
}
