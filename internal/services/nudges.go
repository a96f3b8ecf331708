package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"neuronudge-backend-go/internal/events"
	"neuronudge-backend-go/internal/generator"
	"neuronudge-backend-go/internal/logging"
	"neuronudge-backend-go/internal/models"
	"neuronudge-backend-go/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const (
	SourceAI       = models.OriginAI
	SourceManual   = models.OriginManual
	SourceFallback = "fallback"
)

type NextNudgeResult struct {
	NudgeID *string `json:"nudgeId"`
	Text    string  `json:"text"`
	Source  string  `json:"source"`
}

type NudgeService struct {
	Store             store.Store
	Generator         generator.Generator
	Hub               *StatsHub
	Log               *logging.Logger
	Now               func() time.Time
	GenerationTimeout time.Duration
	FallbackText      string

	generating singleflight.Group
}

// NextNudge serves the successor of the last shown nudge in the user's ring
// and records it as shown. An empty ring is seeded from the latest
// reflection, or answered with the fallback text when that is impossible.
func (s *NudgeService) NextNudge(ctx context.Context, userID, requesterID string) (NextNudgeResult, error) {
	if requesterID != userID {
		return NextNudgeResult{}, ErrForbidden("Not authorized for this user")
	}
	ctx, span := tracer.Start(ctx, "nudges.Next", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	var (
		result NextNudgeResult
		stats  models.UserStats
		empty  bool
	)
	err := s.Store.InUserTx(ctx, userID, func(tx store.Tx) error {
		nudges, err := tx.ListNudges(ctx, userID)
		if err != nil {
			return err
		}
		if len(nudges) == 0 {
			empty = true
			return nil
		}
		result, stats, err = s.rotate(ctx, tx, userID, nudges)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return NextNudgeResult{}, asServiceError(err)
	}
	if !empty {
		s.Hub.Publish(userID, stats)
		return result, nil
	}
	span.AddEvent("ring empty")
	return s.seed(ctx, userID)
}

// rotate picks the successor of the last shown nudge and records the showing.
// It must run inside the user's transaction.
func (s *NudgeService) rotate(ctx context.Context, tx store.Tx, userID string, nudges []models.Nudge) (NextNudgeResult, models.UserStats, error) {
	cursor := ""
	last, err := tx.LatestEvent(ctx, userID, events.TypeNudgeShown)
	switch {
	case err == nil:
		cursor = events.DecodePayload(last.Payload).String("nudge_id")
	case !errors.Is(err, store.ErrNotFound):
		return NextNudgeResult{}, models.UserStats{}, err
	}
	chosen := nudges[nextIndex(nudges, cursor)]
	shown := events.NudgeShown{NudgeID: chosen.ID, Payload: events.Payload{"nudge_id": chosen.ID}}
	_, stats, err := recordEvent(ctx, tx, userID, shown, now(s.Now))
	if err != nil {
		return NextNudgeResult{}, models.UserStats{}, err
	}
	id := chosen.ID
	return NextNudgeResult{NudgeID: &id, Text: chosen.Text, Source: chosen.Origin}, stats, nil
}

// nextIndex is the circular successor of cursor, or 0 when cursor is not in
// the ring.
func nextIndex(nudges []models.Nudge, cursor string) int {
	if cursor == "" {
		return 0
	}
	for i, n := range nudges {
		if n.ID == cursor {
			return (i + 1) % len(nudges)
		}
	}
	return 0
}

// seed generates the first nudge outside any user lock. Concurrent callers
// for one user share a single generation, which is detached from any one
// caller's cancellation; each caller still stops waiting when its own
// context ends.
func (s *NudgeService) seed(ctx context.Context, userID string) (NextNudgeResult, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.generating.DoChan(userID, func() (interface{}, error) {
		return s.generateFirst(shared, userID)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return NextNudgeResult{}, res.Err
		}
		return res.Val.(NextNudgeResult), nil
	case <-ctx.Done():
		return NextNudgeResult{}, asServiceError(ctx.Err())
	}
}

func (s *NudgeService) generateFirst(ctx context.Context, userID string) (NextNudgeResult, error) {
	var (
		user       models.User
		reflection models.Reflection
		found      bool
	)
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		r, err := tx.LatestReflection(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		reflection, found = r, true
		user, err = tx.GetUser(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return NextNudgeResult{}, asServiceError(err)
	}
	if !found {
		return s.fallback(), nil
	}

	genCtx := ctx
	if s.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.GenerationTimeout)
		defer cancel()
	}
	out, err := s.Generator.Generate(genCtx, generator.Input{
		DisplayName: user.Name(),
		Goal:        deref(user.Goal),
		Polarity:    models.PolarityPositive,
		Reflection:  reflection,
	})
	if err != nil {
		s.logger().Warn("nudge generation failed, serving fallback", "user", userID, "error", ErrGenerator(err))
		return s.fallback(), nil
	}

	// The ring may have been filled while the generator ran. Then the
	// generated text is dropped and the ring rotates as usual.
	var (
		result  NextNudgeResult
		stats   models.UserStats
		rotated bool
	)
	err = s.Store.InUserTx(ctx, userID, func(tx store.Tx) error {
		nudges, err := tx.ListNudges(ctx, userID)
		if err != nil {
			return err
		}
		if len(nudges) > 0 {
			rotated = true
			result, stats, err = s.rotate(ctx, tx, userID, nudges)
			return err
		}
		nudge, err := persistGenerated(ctx, tx, userID, out, models.PolarityPositive, now(s.Now))
		if err != nil {
			return err
		}
		id := nudge.ID
		result = NextNudgeResult{NudgeID: &id, Text: nudge.Text, Source: SourceAI}
		return nil
	})
	if err != nil {
		return NextNudgeResult{}, asServiceError(err)
	}
	if rotated {
		s.logger().Debug("ring filled during generation, generated nudge dropped", "user", userID)
		s.Hub.Publish(userID, stats)
	}
	return result, nil
}

func (s *NudgeService) fallback() NextNudgeResult {
	return NextNudgeResult{Text: s.FallbackText, Source: SourceFallback}
}

func (s *NudgeService) logger() *logging.Logger {
	if s.Log == nil {
		return logging.Nop()
	}
	return s.Log
}

// persistGenerated stores the prompt for reproducibility and the nudge
// linked to it.
func persistGenerated(ctx context.Context, tx store.Tx, userID string, out generator.Output, polarity string, at time.Time) (models.Nudge, error) {
	preview := out.Text
	prompt := models.AIPrompt{
		ID:              uuid.NewString(),
		UserID:          userID,
		ModelName:       out.Model,
		PromptText:      out.Prompt,
		Purpose:         models.PurposeNudgeGeneration,
		ResponsePreview: &preview,
		Metadata:        events.Payload{"polarity": polarity}.Encode(),
		CreatedAt:       at,
	}
	if err := tx.InsertPrompt(ctx, &prompt); err != nil {
		return models.Nudge{}, err
	}
	promptID := prompt.ID
	nudge := models.Nudge{
		ID:              uuid.NewString(),
		UserID:          userID,
		Polarity:        polarity,
		Origin:          models.OriginAI,
		Text:            out.Text,
		RelatedPromptID: &promptID,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
	if err := tx.InsertNudge(ctx, &nudge); err != nil {
		return models.Nudge{}, err
	}
	return nudge, nil
}

// EditNudge changes a nudge's text. The lookup is scoped to the owner, so
// another user's nudge is reported as missing.
func (s *NudgeService) EditNudge(ctx context.Context, nudgeID, ownerID, text string) (models.Nudge, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Nudge{}, ErrValidation("text is required")
	}
	if _, err := uuid.Parse(nudgeID); err != nil {
		return models.Nudge{}, ErrNotFound("Nudge not found")
	}
	var nudge models.Nudge
	err := s.Store.InUserTx(ctx, ownerID, func(tx store.Tx) error {
		var err error
		nudge, err = tx.UpdateNudgeText(ctx, nudgeID, ownerID, text, now(s.Now))
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return models.Nudge{}, ErrNotFound("Nudge not found")
	}
	if err != nil {
		return models.Nudge{}, asServiceError(err)
	}
	return nudge, nil
}

func (s *NudgeService) ListNudges(ctx context.Context, userID string) ([]models.Nudge, error) {
	var items []models.Nudge
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		var err error
		items, err = tx.ListNudges(ctx, userID)
		return err
	})
	if err != nil {
		return nil, asServiceError(err)
	}
	return items, nil
}

// CreateNudge adds a hand-written nudge at the end of the ring.
func (s *NudgeService) CreateNudge(ctx context.Context, userID, text, polarity string) (models.Nudge, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Nudge{}, ErrValidation("text is required")
	}
	polarity = strings.ToLower(strings.TrimSpace(polarity))
	if polarity == "" {
		polarity = models.PolarityPositive
	}
	if polarity != models.PolarityPositive && polarity != models.PolarityNegative {
		return models.Nudge{}, ErrValidation("type must be positive or negative")
	}
	at := now(s.Now)
	nudge := models.Nudge{
		ID:        uuid.NewString(),
		UserID:    userID,
		Polarity:  polarity,
		Origin:    models.OriginManual,
		Text:      text,
		CreatedAt: at,
		UpdatedAt: at,
	}
	err := s.Store.InUserTx(ctx, userID, func(tx store.Tx) error {
		return tx.InsertNudge(ctx, &nudge)
	})
	if err != nil {
		return models.Nudge{}, asServiceError(err)
	}
	return nudge, nil
}

// DeleteNudge removes an owned nudge. If it was the last one shown, the next
// rotation restarts at the oldest nudge.
func (s *NudgeService) DeleteNudge(ctx context.Context, nudgeID, ownerID string) error {
	if _, err := uuid.Parse(nudgeID); err != nil {
		return ErrNotFound("Nudge not found")
	}
	err := s.Store.InUserTx(ctx, ownerID, func(tx store.Tx) error {
		return tx.DeleteNudge(ctx, nudgeID, ownerID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound("Nudge not found")
	}
	return asServiceError(err)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
