// Package generator produces nudge text from a user's reflection through an
// external language model.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"neuronudge-backend-go/internal/models"
)

var ErrDisabled = errors.New("nudge generation is not configured")

type Input struct {
	DisplayName string
	Goal        string
	Polarity    string
	Reflection  models.Reflection
}

type Output struct {
	Prompt string
	Text   string
	Model  string
}

// Generator may fail or block; callers bound it with a context deadline.
// Implementations do not retry.
type Generator interface {
	Generate(ctx context.Context, in Input) (Output, error)
	Model() string
}

// Disabled is used when no API key is configured. Every call fails, which
// the nudge service turns into its fallback text.
type Disabled struct{}

func (Disabled) Generate(ctx context.Context, in Input) (Output, error) {
	return Output{}, ErrDisabled
}

func (Disabled) Model() string { return "disabled" }

const systemPrompt = `You write short motivational nudges in Persian (Farsi) based on Episodic Future Thinking.
Address the user by name, keep it to one or two sentences that fit in a phone notification,
and reply with the nudge text only.
A positive nudge lets the user feel a concrete moment of reaching the goal.
A negative nudge gently reflects on what giving up would cost, without guilt.`

// UserPrompt renders the reflection answers as the user message.
func UserPrompt(in Input) string {
	goal := strings.TrimSpace(in.Goal)
	if goal == "" {
		goal = "کسب نمره بالا در IELTS"
	}
	polarity := in.Polarity
	if polarity == "" {
		polarity = models.PolarityPositive
	}
	r := in.Reflection
	var b strings.Builder
	fmt.Fprintf(&b, "نام کاربر: %s\n", in.DisplayName)
	fmt.Fprintf(&b, "هدف: %s\n", goal)
	fmt.Fprintf(&b, "نوع پیام: %s\n\n", polarity)
	b.WriteString("پاسخ‌ها:\n")
	fmt.Fprintf(&b, "- چرا هدف مهم است؟ %s\n", deref(r.WhyGoalMatters))
	fmt.Fprintf(&b, "- چه زمانی احساس موفقیت می‌کند؟ %s\n", deref(r.WhenReachGoal))
	fmt.Fprintf(&b, "- موانع احتمالی: %s\n", deref(r.PossibleObstacles))
	fmt.Fprintf(&b, "- تصویر آینده در ذهن: %s\n", deref(r.FutureVisualization))
	fmt.Fprintf(&b, "- اگر ناامید شود چه می شود؟ %s\n", deref(r.IfGiveUp))
	fmt.Fprintf(&b, "- یادداشت اضافه: %s", deref(r.Notes))
	return b.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
