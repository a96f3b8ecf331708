package httpapi

import (
	"time"

	"neuronudge-backend-go/internal/models"
)

type UserDTO struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FullName  *string   `json:"fullName"`
	Goal      *string   `json:"goal"`
	Email     *string   `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUserDTO(user models.User) *UserDTO {
	return &UserDTO{
		ID:        user.ID,
		Username:  user.Username,
		FullName:  user.DisplayName,
		Goal:      user.Goal,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}
}

type NudgeDTO struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toNudgeDTO(nudge models.Nudge) NudgeDTO {
	return NudgeDTO{
		ID:        nudge.ID,
		Type:      nudge.Polarity,
		Source:    nudge.Origin,
		Text:      nudge.Text,
		CreatedAt: nudge.CreatedAt,
		UpdatedAt: nudge.UpdatedAt,
	}
}

type EventDTO struct {
	ID              string                 `json:"id"`
	EventType       string                 `json:"eventType"`
	DurationSeconds *int64                 `json:"durationSeconds,omitempty"`
	Payload         map[string]interface{} `json:"payload"`
	CreatedAt       time.Time              `json:"createdAt"`
}
