package services

import (
	"context"
	"errors"
	"time"

	"neuronudge-backend-go/internal/models"
	"neuronudge-backend-go/internal/store"
)

type StatsService struct {
	Store store.Store
	Now   func() time.Time
}

// ReplayReport compares the materialized stats row with a recomputation
// from the event log.
type ReplayReport struct {
	Stored   models.UserStats `json:"stored"`
	Replayed models.UserStats `json:"replayed"`
	Drift    []string         `json:"drift"`
	Events   int              `json:"events"`
	Written  bool             `json:"written"`
}

// GetStats returns the user's stats, or a zero record when nothing has been
// ingested yet.
func (s *StatsService) GetStats(ctx context.Context, userID string) (models.UserStats, error) {
	var stats models.UserStats
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		var err error
		stats, err = tx.GetStats(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			stats = models.UserStats{UserID: userID}
			return nil
		}
		return err
	})
	if err != nil {
		return models.UserStats{}, asServiceError(err)
	}
	return stats, nil
}

// Replay recomputes the user's stats under the user lock. With write set
// and drift found, the replayed values replace the stored row.
func (s *StatsService) Replay(ctx context.Context, userID string, write bool) (ReplayReport, error) {
	var report ReplayReport
	err := s.Store.InUserTx(ctx, userID, func(tx store.Tx) error {
		log, err := tx.ListEvents(ctx, store.EventFilter{UserID: userID, Ascending: true})
		if err != nil {
			return err
		}
		stored, err := tx.GetStats(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			stored = models.UserStats{UserID: userID}
		} else if err != nil {
			return err
		}
		replayed := ReplayStats(userID, log)
		report = ReplayReport{
			Stored:   stored,
			Replayed: replayed,
			Drift:    StatsDrift(stored, replayed),
			Events:   len(log),
		}
		if !write || len(report.Drift) == 0 {
			return nil
		}
		if !stored.CreatedAt.IsZero() {
			replayed.CreatedAt = stored.CreatedAt
		}
		at := now(s.Now)
		replayed.UpdatedAt = &at
		report.Written = true
		return tx.UpsertStats(ctx, replayed)
	})
	if err != nil {
		return ReplayReport{}, asServiceError(err)
	}
	return report, nil
}
