package detector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/login-guard/pkg/attempts"
	"github.com/tendant/login-guard/pkg/securityevent"
)

type fixture struct {
	ledger   *attempts.InMemRepository
	events   *securityevent.InMemRepository
	detector *Detector
	now      time.Time
}

func newFixture() *fixture {
	f := &fixture{
		ledger: attempts.NewInMemRepository(),
		events: securityevent.NewInMemRepository(),
		now:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	opts := DefaultOptions()
	opts.Now = func() time.Time { return f.now }
	f.detector = New(f.ledger, securityevent.NewLogger(f.events), opts)
	return f
}

func (f *fixture) fail(t *testing.T, id, email string, ago time.Duration) {
	t.Helper()
	_, err := f.ledger.Create(context.Background(), attempts.LoginAttempt{
		Identifier: id,
		Email:      email,
		CreatedAt:  f.now.Add(-ago),
	})
	require.NoError(t, err)
}

func (f *fixture) count(t *testing.T, eventType securityevent.EventType) int {
	t.Helper()
	n, err := f.events.Count(context.Background(), securityevent.Filter{EventTypes: []securityevent.EventType{eventType}})
	require.NoError(t, err)
	return n
}

func TestInspect_EmailEnumeration(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.fail(t, "x", fmt.Sprintf("user%d@example.com", i), time.Duration(i)*time.Minute)
	}
	f.detector.Inspect(ctx, Attempt{Identifier: "x", Email: "user2@example.com"})
	assert.Equal(t, 0, f.count(t, securityevent.EventSuspiciousEmailEnumeration), "three distinct emails is not enumeration")

	f.fail(t, "x", "user3@example.com", 0)
	f.detector.Inspect(ctx, Attempt{Identifier: "x", Email: "user3@example.com"})

	events, err := f.events.List(ctx, securityevent.Filter{
		EventTypes: []securityevent.EventType{securityevent.EventSuspiciousEmailEnumeration},
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, securityevent.SeverityHigh, events[0].Severity)
	assert.Equal(t, 4, events[0].Metadata["distinctEmails"])
	assert.Equal(t, "user3@example.com", events[0].Metadata["email"])
	assert.Equal(t, "x", events[0].Identifier())
}

func TestInspect_EmailEnumerationIgnoresOldAndEmptyEmails(t *testing.T) {
	f := newFixture()
	f.fail(t, "x", "old1@example.com", 2*time.Hour)
	f.fail(t, "x", "old2@example.com", 61*time.Minute)
	f.fail(t, "x", "", time.Minute)
	f.fail(t, "x", "", 2*time.Minute)
	f.fail(t, "x", "a@example.com", time.Minute)
	f.fail(t, "x", "b@example.com", time.Minute)

	f.detector.Inspect(context.Background(), Attempt{Identifier: "x"})
	assert.Equal(t, 0, f.count(t, securityevent.EventSuspiciousEmailEnumeration))
}

func TestInspect_RapidFire(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		f.fail(t, "x", "", time.Duration(i)*10*time.Second)
	}
	f.fail(t, "x", "", 6*time.Minute)
	f.detector.Inspect(ctx, Attempt{Identifier: "x"})
	assert.Equal(t, 0, f.count(t, securityevent.EventRapidFireAttempts), "ten attempts is not rapid fire")

	_, err := f.ledger.Create(ctx, attempts.LoginAttempt{Identifier: "x", Success: true, CreatedAt: f.now})
	require.NoError(t, err)
	f.detector.Inspect(ctx, Attempt{Identifier: "x"})

	events, err := f.events.List(ctx, securityevent.Filter{
		EventTypes: []securityevent.EventType{securityevent.EventRapidFireAttempts},
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, securityevent.SeverityCritical, events[0].Severity)
	assert.Equal(t, 11, events[0].Metadata["attemptCount"])
}

func TestInspect_NeverBlocks(t *testing.T) {
	f := newFixture()
	for i := 0; i < 20; i++ {
		f.fail(t, "x", fmt.Sprintf("u%d@example.com", i), 0)
	}
	f.detector.Inspect(context.Background(), Attempt{Identifier: "x"})

	until, err := f.ledger.ActiveBlock(context.Background(), "x", f.now)
	require.NoError(t, err)
	assert.Nil(t, until)
}

func TestGetSecuritySummary(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.fail(t, "x", "", 2*time.Hour)
	f.fail(t, "x", "", 30*time.Minute)
	f.fail(t, "x", "", 10*time.Minute)
	lastSuccess := f.now.Add(-20 * time.Minute)
	_, err := f.ledger.Create(ctx, attempts.LoginAttempt{Identifier: "x", Success: true, CreatedAt: lastSuccess})
	require.NoError(t, err)

	summary, err := f.detector.GetSecuritySummary(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.RecentFailedAttempts)
	assert.False(t, summary.IsBlocked)
	assert.Nil(t, summary.BlockedUntil)
	require.NotNil(t, summary.LastSuccessfulLogin)
	assert.True(t, lastSuccess.Equal(*summary.LastSuccessfulLogin))
	assert.False(t, summary.SuspiciousActivity)

	blockedUntil := f.now.Add(10 * time.Minute)
	_, err = f.ledger.Create(ctx, attempts.LoginAttempt{Identifier: "x", CreatedAt: f.now, BlockedUntil: &blockedUntil})
	require.NoError(t, err)
	_, err = f.events.Create(ctx, securityevent.SecurityEvent{
		EventType: securityevent.EventRateLimitExceeded,
		Severity:  securityevent.SeverityHigh,
		CreatedAt: f.now.Add(-23 * time.Hour),
		Metadata:  map[string]any{securityevent.MetadataIdentifier: "x"},
	})
	require.NoError(t, err)

	summary, err = f.detector.GetSecuritySummary(ctx, "x")
	require.NoError(t, err)
	assert.True(t, summary.IsBlocked)
	require.NotNil(t, summary.BlockedUntil)
	assert.True(t, blockedUntil.Equal(*summary.BlockedUntil))
	assert.True(t, summary.SuspiciousActivity)
}

func TestGetSecuritySummary_IgnoresOtherIdentifiersAndOldEvents(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for _, e := range []securityevent.SecurityEvent{
		{EventType: securityevent.EventRapidFireAttempts, CreatedAt: f.now.Add(-25 * time.Hour),
			Metadata: map[string]any{securityevent.MetadataIdentifier: "x"}},
		{EventType: securityevent.EventRapidFireAttempts, CreatedAt: f.now,
			Metadata: map[string]any{securityevent.MetadataIdentifier: "y"}},
		{EventType: securityevent.EventFailedLogin, CreatedAt: f.now,
			Metadata: map[string]any{securityevent.MetadataIdentifier: "x"}},
	} {
		_, err := f.events.Create(ctx, e)
		require.NoError(t, err)
	}

	summary, err := f.detector.GetSecuritySummary(ctx, "x")
	require.NoError(t, err)
	assert.False(t, summary.SuspiciousActivity)
	assert.Nil(t, summary.LastSuccessfulLogin)
}
