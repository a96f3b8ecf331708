package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"neuronudge-backend-go/internal/generator"
	"neuronudge-backend-go/internal/models"
	"neuronudge-backend-go/internal/store"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 4, 2, 8, 30, 0, 0, time.UTC)

// participants exist in every fixture for tests that only need a user id.
var participants = []string{"u1", "alice", "bob"}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, call int, in generator.Input) (generator.Output, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, in generator.Input) (generator.Output, error) {
	g.mu.Lock()
	g.calls++
	call := g.calls
	g.mu.Unlock()
	return g.fn(ctx, call, in)
}

func (g *fakeGenerator) Model() string { return "fake-model" }

func (g *fakeGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func staticGenerator(text string) *fakeGenerator {
	return &fakeGenerator{fn: func(ctx context.Context, call int, in generator.Input) (generator.Output, error) {
		return generator.Output{Prompt: generator.UserPrompt(in), Text: text, Model: "fake-model"}, nil
	}}
}

func failingGenerator() *fakeGenerator {
	return &fakeGenerator{fn: func(ctx context.Context, call int, in generator.Input) (generator.Output, error) {
		return generator.Output{}, errors.New("upstream unavailable")
	}}
}

type fixture struct {
	store      *store.Memory
	clock      *fakeClock
	gen        *fakeGenerator
	events     *EventService
	nudges     *NudgeService
	reflection *ReflectionService
	stats      *StatsService
	users      *UserService
}

func newFixture(t *testing.T, gen *fakeGenerator) *fixture {
	t.Helper()
	if gen == nil {
		gen = failingGenerator()
	}
	mem := store.NewMemory()
	for _, id := range participants {
		user := models.User{ID: id, Username: "participant-" + id, CreatedAt: t0, UpdatedAt: t0}
		require.NoError(t, mem.InTx(context.Background(), func(tx store.Tx) error {
			return tx.InsertUser(context.Background(), &user)
		}))
	}
	clock := &fakeClock{now: t0}
	tokens := TokenService{Secret: []byte("test-secret"), Issuer: "neuronudge", AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour}
	return &fixture{
		store: mem,
		clock: clock,
		gen:   gen,
		events: &EventService{
			Store: mem,
			Now:   clock.Now,
		},
		nudges: &NudgeService{
			Store:             mem,
			Generator:         gen,
			Now:               clock.Now,
			GenerationTimeout: time.Second,
			FallbackText:      "keep going",
		},
		reflection: &ReflectionService{
			Store:             mem,
			Generator:         gen,
			Now:               clock.Now,
			GenerationTimeout: time.Second,
			PerReflection:     2,
		},
		stats: &StatsService{Store: mem, Now: clock.Now},
		users: &UserService{Store: mem, Tokens: tokens, Now: clock.Now},
	}
}

func (f *fixture) signup(t *testing.T, username string) models.User {
	t.Helper()
	goal := "IELTS 7.5"
	user, err := f.users.Signup(context.Background(), SignupInput{Username: username, Password: "secret-pass", Goal: &goal})
	require.NoError(t, err)
	return user
}

func (f *fixture) ingest(t *testing.T, userID, eventType string, details map[string]interface{}) IngestAck {
	t.Helper()
	ack, err := f.events.Ingest(context.Background(), userID, eventType, details)
	require.NoError(t, err)
	return ack
}

func (f *fixture) manualNudge(t *testing.T, userID, text string) models.Nudge {
	t.Helper()
	nudge, err := f.nudges.CreateNudge(context.Background(), userID, text, models.PolarityPositive)
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	return nudge
}

func (f *fixture) eventsOf(t *testing.T, userID, eventType string) []models.ActivityEvent {
	t.Helper()
	var items []models.ActivityEvent
	require.NoError(t, f.store.InTx(context.Background(), func(tx store.Tx) error {
		var err error
		items, err = tx.ListEvents(context.Background(), store.EventFilter{UserID: userID, EventType: eventType, Ascending: true})
		return err
	}))
	return items
}

func strPtr(s string) *string { return &s }
