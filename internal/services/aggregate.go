package services

import (
	"time"

	"neuronudge-backend-go/internal/events"
	"neuronudge-backend-go/internal/models"
)

// priorLookup returns the timestamp of the user's most recent earlier event
// of eventType.
type priorLookup func(eventType string) (time.Time, bool, error)

// applyRule folds one event into stats and returns the synthetic events the
// rule derives. Live ingestion and replay both go through here, which keeps
// the materialized row equal to a replay of the log.
func applyRule(stats *models.UserStats, ev events.Event, at time.Time, prior priorLookup) ([]events.Event, error) {
	switch e := ev.(type) {
	case events.IdleDetected:
		stats.IdleCount++
		focusAt, ok, err := prior(events.TypeFocusResumed)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		elapsed := elapsedSeconds(focusAt, at)
		stats.TotalSustainedAttention += elapsed
		return []events.Event{events.SustainedAttention{
			Duration: elapsed,
			Payload:  events.Payload{"duration": elapsed},
		}}, nil

	case events.NudgeShown:
		stats.TotalNudgesShown++
		return nil, nil

	case events.FocusResumed:
		shownAt, ok, err := prior(events.TypeNudgeShown)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		latency := elapsedSeconds(shownAt, at)
		if latency > events.RefocusWindowSeconds {
			return nil, nil
		}
		stats.TotalRefocusWithin60s++
		return []events.Event{events.ImmediateRefocus{
			Latency: latency,
			Payload: events.Payload{"latency": latency},
		}}, nil

	case events.SessionFeedback:
		n := stats.TotalSessions
		if n < 0 {
			n = 0
		}
		stats.AvgFeedbackScore = (stats.AvgFeedbackScore*float64(n) + e.Rating) / float64(n+1)
		stats.TotalSessions = n + 1
		return nil, nil
	}
	return nil, nil
}

func elapsedSeconds(from, to time.Time) float64 {
	elapsed := to.Sub(from).Seconds()
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

func syntheticDuration(ev events.Event) *int64 {
	var seconds float64
	switch e := ev.(type) {
	case events.SustainedAttention:
		seconds = e.Duration
	case events.ImmediateRefocus:
		seconds = e.Latency
	default:
		return nil
	}
	value := int64(seconds)
	return &value
}

// ReplayStats rebuilds a user's stats from their full event log in
// (created_at, seq) order. Synthetic events are skipped because the rules
// that produced them are re-run.
func ReplayStats(userID string, log []models.ActivityEvent) models.UserStats {
	stats := models.UserStats{UserID: userID}
	last := map[string]time.Time{}
	for i, row := range log {
		if i == 0 {
			stats.CreatedAt = row.CreatedAt
		}
		ev, err := events.Parse(row.EventType, events.DecodePayload(row.Payload))
		if err != nil {
			continue
		}
		switch ev.(type) {
		case events.SustainedAttention, events.ImmediateRefocus:
			continue
		}
		_, _ = applyRule(&stats, ev, row.CreatedAt, func(eventType string) (time.Time, bool, error) {
			at, ok := last[eventType]
			return at, ok, nil
		})
		last[row.EventType] = row.CreatedAt
		at := row.CreatedAt
		stats.UpdatedAt = &at
	}
	return stats
}

// StatsDrift lists the counters where stored and replayed disagree.
func StatsDrift(stored, replayed models.UserStats) []string {
	const epsilon = 1e-6
	drift := []string{}
	if stored.IdleCount != replayed.IdleCount {
		drift = append(drift, "idle_count")
	}
	if stored.DistractionCount != replayed.DistractionCount {
		drift = append(drift, "distraction_count")
	}
	if diff := stored.TotalSustainedAttention - replayed.TotalSustainedAttention; diff > epsilon || diff < -epsilon {
		drift = append(drift, "total_sustained_attention")
	}
	if stored.TotalRefocusWithin60s != replayed.TotalRefocusWithin60s {
		drift = append(drift, "total_refocus_within_60s")
	}
	if stored.TotalNudgesShown != replayed.TotalNudgesShown {
		drift = append(drift, "total_nudges_shown")
	}
	if stored.TotalSessions != replayed.TotalSessions {
		drift = append(drift, "total_sessions")
	}
	if diff := stored.AvgFeedbackScore - replayed.AvgFeedbackScore; diff > epsilon || diff < -epsilon {
		drift = append(drift, "avg_feedback_score")
	}
	return drift
}
