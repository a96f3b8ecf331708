// Package store persists users, the activity log, stats and nudges.
//
// Every read-modify-write on a user's state runs inside InUserTx, which
// serializes transactions for the same user and leaves different users
// independent.
package store

import (
	"context"
	"errors"
	"time"

	"neuronudge-backend-go/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

type Store interface {
	// InUserTx runs fn in one transaction holding the user's lock. fn's
	// writes become visible together on a nil return and not at all
	// otherwise.
	InUserTx(ctx context.Context, userID string, fn func(Tx) error) error
	// InTx runs fn in one transaction without a user lock.
	InTx(ctx context.Context, fn func(Tx) error) error
	Ping(ctx context.Context) error
}

type EventFilter struct {
	UserID    string
	EventType string
	Limit     int
	// Ascending returns the oldest events first; the default is newest first.
	Ascending bool
}

type Tx interface {
	InsertEvent(ctx context.Context, event *models.ActivityEvent) error
	// LatestEvent returns the newest event of eventType by (created_at, seq).
	LatestEvent(ctx context.Context, userID, eventType string) (models.ActivityEvent, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]models.ActivityEvent, error)

	GetStats(ctx context.Context, userID string) (models.UserStats, error)
	UpsertStats(ctx context.Context, stats models.UserStats) error

	// ListNudges returns the user's nudges oldest first by (created_at, seq).
	ListNudges(ctx context.Context, userID string) ([]models.Nudge, error)
	GetNudge(ctx context.Context, nudgeID, ownerID string) (models.Nudge, error)
	InsertNudge(ctx context.Context, nudge *models.Nudge) error
	UpdateNudgeText(ctx context.Context, nudgeID, ownerID, text string, at time.Time) (models.Nudge, error)
	DeleteNudge(ctx context.Context, nudgeID, ownerID string) error

	InsertReflection(ctx context.Context, reflection *models.Reflection) error
	LatestReflection(ctx context.Context, userID string) (models.Reflection, error)
	InsertPrompt(ctx context.Context, prompt *models.AIPrompt) error

	InsertUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID string) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	UpdateProfile(ctx context.Context, userID string, displayName, goal *string, at time.Time) (models.User, error)
	// DeleteUser removes the user and everything they own.
	DeleteUser(ctx context.Context, userID string) error
}
