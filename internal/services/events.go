package services

import (
	"context"
	"errors"
	"time"

	"neuronudge-backend-go/internal/events"
	"neuronudge-backend-go/internal/logging"
	"neuronudge-backend-go/internal/models"
	"neuronudge-backend-go/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type IngestAck struct {
	EventType string           `json:"eventType"`
	EventID   string           `json:"eventId"`
	Stats     models.UserStats `json:"stats"`
}

type EventService struct {
	Store store.Store
	Hub   *StatsHub
	Log   *logging.Logger
	Now   func() time.Time
}

// Ingest appends one behavioral event and applies its aggregation rule in a
// single per-user transaction.
func (s *EventService) Ingest(ctx context.Context, userID, eventType string, details events.Payload) (IngestAck, error) {
	ev, err := events.Parse(eventType, details)
	if err != nil {
		return IngestAck{}, ErrValidation(err.Error())
	}
	ctx, span := tracer.Start(ctx, "events.Ingest", trace.WithAttributes(attribute.String("event.type", ev.Type())))
	defer span.End()

	var ack IngestAck
	err = s.Store.InUserTx(ctx, userID, func(tx store.Tx) error {
		row, stats, err := recordEvent(ctx, tx, userID, ev, now(s.Now))
		if err != nil {
			return err
		}
		ack = IngestAck{EventType: row.EventType, EventID: row.ID, Stats: stats}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return IngestAck{}, ErrUnauthorized("User not found")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ingest failed")
		return IngestAck{}, asServiceError(err)
	}
	s.Hub.Publish(userID, ack.Stats)
	return ack, nil
}

// ListEvents returns the user's newest events first.
func (s *EventService) ListEvents(ctx context.Context, userID, eventType string, limit int) ([]models.ActivityEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var items []models.ActivityEvent
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		var err error
		items, err = tx.ListEvents(ctx, store.EventFilter{UserID: userID, EventType: eventType, Limit: limit})
		return err
	})
	if err != nil {
		return nil, asServiceError(err)
	}
	return items, nil
}

// recordEvent runs inside the caller's user transaction: insert the event,
// fetch-or-create the stats row, apply the rule, append any synthetic
// events and save the stats.
func recordEvent(ctx context.Context, tx store.Tx, userID string, ev events.Event, at time.Time) (models.ActivityEvent, models.UserStats, error) {
	row := models.ActivityEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventType: ev.Type(),
		Payload:   ev.Details().Encode(),
		CreatedAt: at,
	}
	if err := tx.InsertEvent(ctx, &row); err != nil {
		return models.ActivityEvent{}, models.UserStats{}, err
	}

	stats, err := tx.GetStats(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		stats = models.UserStats{UserID: userID, CreatedAt: at}
	} else if err != nil {
		return models.ActivityEvent{}, models.UserStats{}, err
	}

	derived, err := applyRule(&stats, ev, at, func(eventType string) (time.Time, bool, error) {
		prior, err := tx.LatestEvent(ctx, userID, eventType)
		if errors.Is(err, store.ErrNotFound) {
			return time.Time{}, false, nil
		}
		if err != nil {
			return time.Time{}, false, err
		}
		return prior.CreatedAt, true, nil
	})
	if err != nil {
		return models.ActivityEvent{}, models.UserStats{}, err
	}
	for _, d := range derived {
		synthetic := models.ActivityEvent{
			ID:              uuid.NewString(),
			UserID:          userID,
			EventType:       d.Type(),
			DurationSeconds: syntheticDuration(d),
			Payload:         d.Details().Encode(),
			CreatedAt:       at,
		}
		if err := tx.InsertEvent(ctx, &synthetic); err != nil {
			return models.ActivityEvent{}, models.UserStats{}, err
		}
	}

	stats.UpdatedAt = &at
	if err := tx.UpsertStats(ctx, stats); err != nil {
		return models.ActivityEvent{}, models.UserStats{}, err
	}
	return row, stats, nil
}
