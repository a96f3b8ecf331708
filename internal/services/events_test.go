package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"neuronudge-backend-go/internal/events"
	"neuronudge-backend-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngest_RejectsEmptyType(t *testing.T) {
	f := newFixture(t, nil)
	for _, eventType := range []string{"", "   "} {
		_, err := f.events.Ingest(context.Background(), "u1", eventType, nil)
		require.Error(t, err)
		assert.True(t, IsKind(err, KindValidation))
	}
	assert.Empty(t, f.eventsOf(t, "u1", ""))
	stats, err := f.stats.GetStats(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.UserStats{UserID: "u1"}, stats)
}

func TestIngest_IdleWithoutFocus(t *testing.T) {
	f := newFixture(t, nil)
	ack := f.ingest(t, "u1", events.TypeIdleDetected, nil)

	assert.Equal(t, events.TypeIdleDetected, ack.EventType)
	assert.NotEmpty(t, ack.EventID)
	assert.Equal(t, int64(1), ack.Stats.IdleCount)
	assert.Zero(t, ack.Stats.TotalSustainedAttention)
	assert.Empty(t, f.eventsOf(t, "u1", events.TypeSustainedAttention))
}

func TestIngest_IdleAfterFocusAddsSustainedAttention(t *testing.T) {
	f := newFixture(t, nil)
	f.ingest(t, "u1", events.TypeFocusResumed, nil)
	f.clock.Advance(90*time.Second + 500*time.Millisecond)
	ack := f.ingest(t, "u1", events.TypeIdleDetected, nil)

	assert.Equal(t, int64(1), ack.Stats.IdleCount)
	assert.InDelta(t, 90.5, ack.Stats.TotalSustainedAttention, 1e-9)

	synthetic := f.eventsOf(t, "u1", events.TypeSustainedAttention)
	require.Len(t, synthetic, 1)
	require.NotNil(t, synthetic[0].DurationSeconds)
	assert.Equal(t, int64(90), *synthetic[0].DurationSeconds)
	assert.InDelta(t, 90.5, events.DecodePayload(synthetic[0].Payload).Number("duration"), 1e-9)

	f.clock.Advance(10 * time.Second)
	ack = f.ingest(t, "u1", events.TypeIdleDetected, nil)
	assert.Equal(t, int64(2), ack.Stats.IdleCount)
	assert.InDelta(t, 90.5+100.5, ack.Stats.TotalSustainedAttention, 1e-9, "measured from the latest focus_resumed")
}

func TestIngest_RefocusWindowIsInclusive(t *testing.T) {
	tests := []struct {
		name    string
		gap     time.Duration
		refocus int64
	}{
		{"immediate", 0, 1},
		{"within", 42 * time.Second, 1},
		{"boundary", 60 * time.Second, 1},
		{"just over", 60*time.Second + time.Millisecond, 0},
		{"late", 5 * time.Minute, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.ingest(t, "u1", events.TypeNudgeShown, map[string]interface{}{"nudge_id": "n1"})
			f.clock.Advance(tt.gap)
			ack := f.ingest(t, "u1", events.TypeFocusResumed, nil)

			assert.Equal(t, tt.refocus, ack.Stats.TotalRefocusWithin60s)
			assert.Equal(t, int64(1), ack.Stats.TotalNudgesShown)
			assert.Len(t, f.eventsOf(t, "u1", events.TypeImmediateRefocus), int(tt.refocus))
		})
	}
}

func TestIngest_FocusWithoutNudgeIsPlain(t *testing.T) {
	f := newFixture(t, nil)
	ack := f.ingest(t, "u1", events.TypeFocusResumed, nil)
	assert.Zero(t, ack.Stats.TotalRefocusWithin60s)
	assert.Empty(t, f.eventsOf(t, "u1", events.TypeImmediateRefocus))
}

func TestIngest_FeedbackRunningMean(t *testing.T) {
	f := newFixture(t, nil)
	f.ingest(t, "u1", events.TypeSessionFeedback, map[string]interface{}{"rating": 4.0})
	f.ingest(t, "u1", events.TypeSessionFeedback, map[string]interface{}{"rating": "2"})
	ack := f.ingest(t, "u1", events.TypeSessionFeedback, map[string]interface{}{"rating": "not a number"})

	assert.Equal(t, int64(3), ack.Stats.TotalSessions)
	assert.InDelta(t, 2.0, ack.Stats.AvgFeedbackScore, 1e-9)

	ack = f.ingest(t, "u1", events.TypeSessionFeedback, nil)
	assert.Equal(t, int64(4), ack.Stats.TotalSessions)
	assert.InDelta(t, 1.5, ack.Stats.AvgFeedbackScore, 1e-9)
}

func TestApplyRule_NegativeSessionCountTreatedAsZero(t *testing.T) {
	stats := models.UserStats{TotalSessions: -3, AvgFeedbackScore: 9}
	_, err := applyRule(&stats, events.SessionFeedback{Rating: 5}, t0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalSessions)
	assert.InDelta(t, 5.0, stats.AvgFeedbackScore, 1e-9)
}

func TestIngest_UnknownTypeIsStoredOnly(t *testing.T) {
	f := newFixture(t, nil)
	ack := f.ingest(t, "u1", "tab_switched", map[string]interface{}{"to": "youtube"})

	assert.Equal(t, "tab_switched", ack.EventType)
	assert.Equal(t, models.UserStats{
		UserID:    "u1",
		CreatedAt: t0,
		UpdatedAt: ack.Stats.UpdatedAt,
	}, ack.Stats)
	stored := f.eventsOf(t, "u1", "tab_switched")
	require.Len(t, stored, 1)
	assert.Equal(t, "youtube", events.DecodePayload(stored[0].Payload).String("to"))
}

func TestIngest_UsersAreIsolatedUnderConcurrency(t *testing.T) {
	f := newFixture(t, nil)
	const perUser = 40
	var wg sync.WaitGroup
	for _, userID := range []string{"alice", "bob"} {
		for i := 0; i < perUser; i++ {
			wg.Add(1)
			go func(userID string) {
				defer wg.Done()
				_, err := f.events.Ingest(context.Background(), userID, events.TypeIdleDetected, nil)
				assert.NoError(t, err)
			}(userID)
		}
	}
	wg.Wait()

	for _, userID := range []string{"alice", "bob"} {
		stats, err := f.stats.GetStats(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, int64(perUser), stats.IdleCount, userID)
		assert.Len(t, f.eventsOf(t, userID, events.TypeIdleDetected), perUser)
	}
}

func TestIngest_PublishesToHub(t *testing.T) {
	f := newFixture(t, nil)
	hub := NewStatsHub()
	f.events.Hub = hub
	sub := &recordingSubscriber{}
	hub.Add("u1", sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	f.ingest(t, "u1", events.TypeIdleDetected, nil)
	require.Eventually(t, func() bool { return len(sub.received()) == 1 }, time.Second, 5*time.Millisecond)
	got := sub.received()[0].(models.UserStats)
	assert.Equal(t, int64(1), got.IdleCount)
}

func TestListEvents_NewestFirstWithLimit(t *testing.T) {
	f := newFixture(t, nil)
	for i := 0; i < 5; i++ {
		f.ingest(t, "u1", events.TypeFocusResumed, nil)
		f.clock.Advance(time.Second)
	}
	items, err := f.events.ListEvents(context.Background(), "u1", events.TypeFocusResumed, 3)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.True(t, items[0].CreatedAt.After(items[1].CreatedAt))
	assert.True(t, items[1].CreatedAt.After(items[2].CreatedAt))
}

func TestIngest_DeletedUserIsUnauthorized(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := f.signup(t, "sara")
	require.NoError(t, f.users.DeleteAccount(ctx, user.ID))

	_, err := f.events.Ingest(ctx, user.ID, events.TypeIdleDetected, nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindUnauthenticated))

	_, err = f.events.Ingest(ctx, "never-registered", events.TypeFocusResumed, nil)
	assert.True(t, IsKind(err, KindUnauthenticated))
	assert.Empty(t, f.eventsOf(t, user.ID, ""))
	assert.Empty(t, f.eventsOf(t, "never-registered", ""))
}
