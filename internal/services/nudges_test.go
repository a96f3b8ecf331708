package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"neuronudge-backend-go/internal/events"
	"neuronudge-backend-go/internal/generator"
	"neuronudge-backend-go/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextNudge_RotatesInCreationOrder(t *testing.T) {
	f := newFixture(t, nil)
	user := f.signup(t, "sara")
	a := f.manualNudge(t, user.ID, "A")
	b := f.manualNudge(t, user.ID, "B")
	c := f.manualNudge(t, user.ID, "C")

	want := []models.Nudge{a, b, c, a, b}
	for i, expected := range want {
		got, err := f.nudges.NextNudge(context.Background(), user.ID, user.ID)
		require.NoError(t, err)
		require.NotNil(t, got.NudgeID, "call %d", i)
		assert.Equal(t, expected.ID, *got.NudgeID, "call %d", i)
		assert.Equal(t, expected.Text, got.Text)
		assert.Equal(t, SourceManual, got.Source)
		f.clock.Advance(time.Second)
	}

	stats, err := f.stats.GetStats(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(len(want)), stats.TotalNudgesShown)

	shown := f.eventsOf(t, user.ID, events.TypeNudgeShown)
	require.Len(t, shown, len(want))
	assert.Equal(t, c.ID, events.DecodePayload(shown[2].Payload).String("nudge_id"))
}

func TestNextNudge_SameTimestampFallsBackToInsertionOrder(t *testing.T) {
	f := newFixture(t, nil)
	user := f.signup(t, "sara")
	var ids []string
	for _, text := range []string{"one", "two", "three"} {
		n, err := f.nudges.CreateNudge(context.Background(), user.ID, text, "")
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}
	for i := 0; i < 4; i++ {
		got, err := f.nudges.NextNudge(context.Background(), user.ID, user.ID)
		require.NoError(t, err)
		assert.Equal(t, ids[i%3], *got.NudgeID)
	}
}

func TestNextNudge_RestartsWhenCursorDeleted(t *testing.T) {
	f := newFixture(t, nil)
	user := f.signup(t, "sara")
	a := f.manualNudge(t, user.ID, "A")
	b := f.manualNudge(t, user.ID, "B")
	f.manualNudge(t, user.ID, "C")

	ctx := context.Background()
	_, err := f.nudges.NextNudge(ctx, user.ID, user.ID)
	require.NoError(t, err)
	got, err := f.nudges.NextNudge(ctx, user.ID, user.ID)
	require.NoError(t, err)
	require.Equal(t, b.ID, *got.NudgeID)

	require.NoError(t, f.nudges.DeleteNudge(ctx, b.ID, user.ID))
	got, err = f.nudges.NextNudge(ctx, user.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, *got.NudgeID)
}

func TestNextNudge_ForeignCursorRestarts(t *testing.T) {
	f := newFixture(t, nil)
	user := f.signup(t, "sara")
	a := f.manualNudge(t, user.ID, "A")
	f.manualNudge(t, user.ID, "B")
	f.ingest(t, user.ID, events.TypeNudgeShown, map[string]interface{}{"nudge_id": "not-a-nudge"})

	got, err := f.nudges.NextNudge(context.Background(), user.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, *got.NudgeID)
}

func TestNextNudge_RequiresSameUser(t *testing.T) {
	f := newFixture(t, nil)
	user := f.signup(t, "sara")
	f.manualNudge(t, user.ID, "A")

	_, err := f.nudges.NextNudge(context.Background(), user.ID, "someone-else")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuthorization))
	assert.Empty(t, f.eventsOf(t, user.ID, events.TypeNudgeShown))
}

func TestNextNudge_FallbackWithoutReflection(t *testing.T) {
	gen := staticGenerator("unused")
	f := newFixture(t, gen)
	user := f.signup(t, "sara")

	got, err := f.nudges.NextNudge(context.Background(), user.ID, user.ID)
	require.NoError(t, err)
	assert.Nil(t, got.NudgeID)
	assert.Equal(t, "keep going", got.Text)
	assert.Equal(t, SourceFallback, got.Source)
	assert.Zero(t, gen.Calls())

	items, err := f.nudges.ListNudges(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Empty(t, f.eventsOf(t, user.ID, ""))
}

func TestNextNudge_GeneratesFirstNudgeFromReflection(t *testing.T) {
	gen := staticGenerator("تو می‌توانی")
	f := newFixture(t, gen)
	user := f.signup(t, "sara")
	f.reflection.PerReflection = 0
	_, err := f.reflection.Submit(context.Background(), user.ID, ReflectionInput{WhyGoalMatters: strPtr("study abroad")})
	require.NoError(t, err)

	got, err := f.nudges.NextNudge(context.Background(), user.ID, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NudgeID)
	assert.Equal(t, "تو می‌توانی", got.Text)
	assert.Equal(t, SourceAI, got.Source)
	assert.Equal(t, 1, gen.Calls())

	items, err := f.nudges.ListNudges(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.PolarityPositive, items[0].Polarity)
	assert.Equal(t, models.OriginAI, items[0].Origin)
	assert.NotNil(t, items[0].RelatedPromptID)
	assert.Empty(t, f.eventsOf(t, user.ID, events.TypeNudgeShown), "generation does not count as a showing")

	f.clock.Advance(time.Second)
	again, err := f.nudges.NextNudge(context.Background(), user.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, *got.NudgeID, *again.NudgeID)
	assert.Equal(t, SourceAI, again.Source)
	assert.Equal(t, 1, gen.Calls())
}

func TestNextNudge_GeneratorFailureFallsBack(t *testing.T) {
	f := newFixture(t, failingGenerator())
	user := f.signup(t, "sara")
	f.reflection.PerReflection = 0
	_, err := f.reflection.Submit(context.Background(), user.ID, ReflectionInput{Notes: strPtr("tired")})
	require.NoError(t, err)

	got, err := f.nudges.NextNudge(context.Background(), user.ID, user.ID)
	require.NoError(t, err)
	assert.Nil(t, got.NudgeID)
	assert.Equal(t, SourceFallback, got.Source)

	items, err := f.nudges.ListNudges(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestNextNudge_GeneratorTimeoutFallsBack(t *testing.T) {
	gen := &fakeGenerator{fn: func(ctx context.Context, call int, in generator.Input) (generator.Output, error) {
		<-ctx.Done()
		return generator.Output{}, ctx.Err()
	}}
	f := newFixture(t, gen)
	f.nudges.GenerationTimeout = 20 * time.Millisecond
	user := f.signup(t, "sara")
	f.reflection.PerReflection = 0
	_, err := f.reflection.Submit(context.Background(), user.ID, ReflectionInput{})
	require.NoError(t, err)

	got, err := f.nudges.NextNudge(context.Background(), user.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, got.Source)
}

func TestNextNudge_ConcurrentCallsRotateWithoutSkipping(t *testing.T) {
	f := newFixture(t, nil)
	user := f.signup(t, "sara")
	f.manualNudge(t, user.ID, "A")
	f.manualNudge(t, user.ID, "B")

	const calls = 20
	var wg sync.WaitGroup
	counts := map[string]int{}
	var mu sync.Mutex
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.nudges.NextNudge(context.Background(), user.ID, user.ID)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			counts[got.Text]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, calls/2, counts["A"])
	assert.Equal(t, calls/2, counts["B"])
	stats, err := f.stats.GetStats(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(calls), stats.TotalNudgesShown)
}

func TestEditNudge(t *testing.T) {
	f := newFixture(t, nil)
	owner := f.signup(t, "sara")
	other := f.signup(t, "reza")
	a := f.manualNudge(t, owner.ID, "A")
	ctx := context.Background()

	_, err := f.nudges.EditNudge(ctx, a.ID, other.ID, "hijacked")
	assert.True(t, IsKind(err, KindNotFound))

	_, err = f.nudges.EditNudge(ctx, a.ID, owner.ID, "   ")
	assert.True(t, IsKind(err, KindValidation))

	_, err = f.nudges.EditNudge(ctx, "missing", owner.ID, "text")
	assert.True(t, IsKind(err, KindNotFound))

	f.clock.Advance(time.Minute)
	edited, err := f.nudges.EditNudge(ctx, a.ID, owner.ID, "  A, revised ")
	require.NoError(t, err)
	assert.Equal(t, "A, revised", edited.Text)
	assert.Equal(t, a.CreatedAt, edited.CreatedAt)
	assert.True(t, edited.UpdatedAt.After(a.UpdatedAt))

	got, err := f.nudges.NextNudge(ctx, owner.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "A, revised", got.Text)
}

func TestCreateNudge_Validation(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.nudges.CreateNudge(context.Background(), "u1", "", models.PolarityPositive)
	assert.True(t, IsKind(err, KindValidation))
	_, err = f.nudges.CreateNudge(context.Background(), "u1", "text", "neutral")
	assert.True(t, IsKind(err, KindValidation))

	n, err := f.nudges.CreateNudge(context.Background(), "u1", "text", "Negative")
	require.NoError(t, err)
	assert.Equal(t, models.PolarityNegative, n.Polarity)
	assert.Equal(t, models.OriginManual, n.Origin)
}

func TestDeleteNudge_OwnerOnly(t *testing.T) {
	f := newFixture(t, nil)
	a := f.manualNudge(t, "u1", "A")
	err := f.nudges.DeleteNudge(context.Background(), a.ID, "u2")
	assert.True(t, IsKind(err, KindNotFound))
	require.NoError(t, f.nudges.DeleteNudge(context.Background(), a.ID, "u1"))
	items, err := f.nudges.ListNudges(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestNextIndex(t *testing.T) {
	ring := []models.Nudge{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	assert.Equal(t, 0, nextIndex(ring, ""))
	assert.Equal(t, 1, nextIndex(ring, "a"))
	assert.Equal(t, 0, nextIndex(ring, "c"))
	assert.Equal(t, 0, nextIndex(ring, "gone"))
}

func TestEditAndDeleteNudge_MalformedIDIsNotFound(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	owner := f.signup(t, "sara")
	f.manualNudge(t, owner.ID, "A")

	for _, id := range []string{"abc", "", "1234"} {
		_, err := f.nudges.EditNudge(ctx, id, owner.ID, "text")
		assert.True(t, IsKind(err, KindNotFound), id)
		err = f.nudges.DeleteNudge(ctx, id, owner.ID)
		assert.True(t, IsKind(err, KindNotFound), id)
	}
	_, err := f.nudges.EditNudge(ctx, uuid.NewString(), owner.ID, "text")
	assert.True(t, IsKind(err, KindNotFound))
}

func TestNextNudge_CancelledCallerDoesNotFailSharedGeneration(t *testing.T) {
	release := make(chan struct{})
	gen := &fakeGenerator{fn: func(ctx context.Context, call int, in generator.Input) (generator.Output, error) {
		<-release
		return generator.Output{Prompt: "p", Text: "shared", Model: "fake-model"}, nil
	}}
	f := newFixture(t, gen)
	f.nudges.GenerationTimeout = 5 * time.Second
	user := f.signup(t, "sara")
	f.reflection.PerReflection = 0
	_, err := f.reflection.Submit(context.Background(), user.ID, ReflectionInput{})
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.nudges.NextNudge(cancelled, user.ID, user.ID)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return gen.Calls() == 1 }, time.Second, time.Millisecond)

	second := make(chan NextNudgeResult, 1)
	go func() {
		got, err := f.nudges.NextNudge(context.Background(), user.ID, user.ID)
		assert.NoError(t, err)
		second <- got
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.Error(t, <-firstErr)
	close(release)

	got := <-second
	require.NotNil(t, got.NudgeID)
	assert.Equal(t, "shared", got.Text)
	assert.Equal(t, SourceAI, got.Source)

	items, err := f.nudges.ListNudges(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "shared", items[0].Text)
}

func TestNextNudge_RingFilledDuringGenerationRotates(t *testing.T) {
	gen := &fakeGenerator{}
	f := newFixture(t, gen)
	user := f.signup(t, "sara")
	f.reflection.PerReflection = 0
	_, err := f.reflection.Submit(context.Background(), user.ID, ReflectionInput{})
	require.NoError(t, err)

	var manual models.Nudge
	gen.fn = func(ctx context.Context, call int, in generator.Input) (generator.Output, error) {
		manual = f.manualNudge(t, user.ID, "written meanwhile")
		return generator.Output{Prompt: "p", Text: "generated", Model: "fake-model"}, nil
	}

	got, err := f.nudges.NextNudge(context.Background(), user.ID, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NudgeID)
	assert.Equal(t, manual.ID, *got.NudgeID)
	assert.Equal(t, SourceManual, got.Source)

	items, err := f.nudges.ListNudges(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Len(t, f.eventsOf(t, user.ID, events.TypeNudgeShown), 1)
	stats, err := f.stats.GetStats(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalNudgesShown)
}
