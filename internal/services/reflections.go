package services

import (
	"context"
	"errors"
	"time"

	"neuronudge-backend-go/internal/generator"
	"neuronudge-backend-go/internal/logging"
	"neuronudge-backend-go/internal/models"
	"neuronudge-backend-go/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type ReflectionInput struct {
	WhyGoalMatters      *string `json:"q1_why_goal_matters"`
	WhenReachGoal       *string `json:"q2_when_reach_goal"`
	PossibleObstacles   *string `json:"q3_possible_obstacles"`
	FutureVisualization *string `json:"q4_future_visualization"`
	IfGiveUp            *string `json:"q5_if_give_up"`
	Notes               *string `json:"q6_notes"`
}

type SubmitResult struct {
	ReflectionID string   `json:"reflectionId"`
	Message      string   `json:"message"`
	Nudges       []string `json:"nudges"`
}

type ReflectionService struct {
	Store             store.Store
	Generator         generator.Generator
	Log               *logging.Logger
	Now               func() time.Time
	GenerationTimeout time.Duration
	PerReflection     int
}

// Submit saves the reflection and seeds the user's ring with freshly
// generated nudges. Failed generations are logged and skipped; the
// reflection is kept either way.
func (s *ReflectionService) Submit(ctx context.Context, userID string, in ReflectionInput) (SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "reflections.Submit", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	at := now(s.Now)
	reflection := models.Reflection{
		ID:                  uuid.NewString(),
		UserID:              userID,
		WhyGoalMatters:      in.WhyGoalMatters,
		WhenReachGoal:       in.WhenReachGoal,
		PossibleObstacles:   in.PossibleObstacles,
		FutureVisualization: in.FutureVisualization,
		IfGiveUp:            in.IfGiveUp,
		Notes:               in.Notes,
		CreatedAt:           at,
	}
	var user models.User
	err := s.Store.InUserTx(ctx, userID, func(tx store.Tx) error {
		var err error
		user, err = tx.GetUser(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnauthorized("Unauthorized")
		}
		if err != nil {
			return err
		}
		return tx.InsertReflection(ctx, &reflection)
	})
	if err != nil {
		return SubmitResult{}, asServiceError(err)
	}

	outputs := s.generate(ctx, user, reflection)

	result := SubmitResult{
		ReflectionID: reflection.ID,
		Message:      "Reflection saved and nudges generated.",
		Nudges:       []string{},
	}
	err = s.Store.InUserTx(ctx, userID, func(tx store.Tx) error {
		for i, out := range outputs {
			if out == nil {
				continue
			}
			if _, err := persistGenerated(ctx, tx, userID, *out, polarityFor(i), at); err != nil {
				return err
			}
			result.Nudges = append(result.Nudges, out.Text)
		}
		return nil
	})
	if err != nil {
		return SubmitResult{}, asServiceError(err)
	}
	span.SetAttributes(attribute.Int("nudges.generated", len(result.Nudges)))
	return result, nil
}

// generate runs the per-reflection generations concurrently. Slot i stays nil
// when generation i failed, so the surviving nudges keep their order.
func (s *ReflectionService) generate(ctx context.Context, user models.User, reflection models.Reflection) []*generator.Output {
	count := s.PerReflection
	if count < 0 {
		count = 0
	}
	outputs := make([]*generator.Output, count)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		i := i
		g.Go(func() error {
			callCtx := gctx
			if s.GenerationTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(gctx, s.GenerationTimeout)
				defer cancel()
			}
			out, err := s.Generator.Generate(callCtx, generator.Input{
				DisplayName: user.Name(),
				Goal:        deref(user.Goal),
				Polarity:    polarityFor(i),
				Reflection:  reflection,
			})
			if err != nil {
				s.logger().Warn("nudge generation failed", "user", user.ID, "index", i, "error", ErrGenerator(err))
				return nil
			}
			outputs[i] = &out
			return nil
		})
	}
	_ = g.Wait()
	return outputs
}

func (s *ReflectionService) logger() *logging.Logger {
	if s.Log == nil {
		return logging.Nop()
	}
	return s.Log
}

// polarityFor alternates positive and negative framings, starting positive.
func polarityFor(i int) string {
	if i%2 == 1 {
		return models.PolarityNegative
	}
	return models.PolarityPositive
}
