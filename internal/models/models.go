package models

import (
	"encoding/json"
	"time"
)

const (
	PolarityPositive = "positive"
	PolarityNegative = "negative"

	OriginAI     = "ai"
	OriginManual = "manual"

	PurposeNudgeGeneration = "nudge_generation"
)

type User struct {
	ID           string    `db:"id"`
	Username     string    `db:"username"`
	Email        *string   `db:"email"`
	PasswordHash string    `db:"password_hash"`
	DisplayName  *string   `db:"display_name"`
	Goal         *string   `db:"goal"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Name returns the display name, falling back to the username.
func (u User) Name() string {
	if u.DisplayName != nil && *u.DisplayName != "" {
		return *u.DisplayName
	}
	return u.Username
}

type Reflection struct {
	ID                  string    `db:"id"`
	UserID              string    `db:"user_id"`
	WhyGoalMatters      *string   `db:"why_goal_matters"`
	WhenReachGoal       *string   `db:"when_reach_goal"`
	PossibleObstacles   *string   `db:"possible_obstacles"`
	FutureVisualization *string   `db:"future_visualization"`
	IfGiveUp            *string   `db:"if_give_up"`
	Notes               *string   `db:"notes"`
	CreatedAt           time.Time `db:"created_at"`
}

type AIPrompt struct {
	ID              string          `db:"id"`
	UserID          string          `db:"user_id"`
	ModelName       string          `db:"model_name"`
	PromptText      string          `db:"prompt_text"`
	Purpose         string          `db:"purpose"`
	ResponsePreview *string         `db:"response_preview"`
	Metadata        json.RawMessage `db:"metadata"`
	CreatedAt       time.Time       `db:"created_at"`
}

type Nudge struct {
	ID              string          `db:"id"`
	Seq             int64           `db:"seq"`
	UserID          string          `db:"user_id"`
	Polarity        string          `db:"polarity"`
	Origin          string          `db:"origin"`
	Text            string          `db:"text"`
	RelatedPromptID *string         `db:"related_prompt_id"`
	Context         json.RawMessage `db:"context"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

// ActivityEvent is one row of the append-only behavioral log. Seq breaks
// ties between events sharing a timestamp.
type ActivityEvent struct {
	ID              string          `db:"id"`
	Seq             int64           `db:"seq"`
	UserID          string          `db:"user_id"`
	EventType       string          `db:"event_type"`
	DurationSeconds *int64          `db:"duration_seconds"`
	Score           *float64        `db:"score"`
	Payload         json.RawMessage `db:"payload"`
	CreatedAt       time.Time       `db:"created_at"`
}

type UserStats struct {
	UserID                  string     `db:"user_id" json:"userId"`
	IdleCount               int64      `db:"idle_count" json:"idleCount"`
	DistractionCount        int64      `db:"distraction_count" json:"distractionCount"`
	TotalSustainedAttention float64    `db:"total_sustained_attention" json:"totalSustainedAttention"`
	TotalRefocusWithin60s   int64      `db:"total_refocus_within_60s" json:"totalRefocusWithin60s"`
	TotalNudgesShown        int64      `db:"total_nudges_shown" json:"totalNudgesShown"`
	TotalSessions           int64      `db:"total_sessions" json:"totalSessions"`
	AvgFeedbackScore        float64    `db:"avg_feedback_score" json:"avgFeedbackScore"`
	CreatedAt               time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt               *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
}
