package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"neuronudge-backend-go/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	invalidTextRepr     = "22P02"
)

type Postgres struct {
	DB *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{DB: db}
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// InUserTx takes a transaction-scoped advisory lock keyed by the user id, so
// concurrent transactions for one user run one after another and release
// the lock on commit or rollback.
func (s *Postgres) InUserTx(ctx context.Context, userID string, fn func(Tx) error) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID); err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		return fn(&pgTx{tx: tx})
	})
}

func (s *Postgres) InTx(ctx context.Context, fn func(Tx) error) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

func (s *Postgres) withTx(ctx context.Context, fn func(*sqlx.Tx) error) (err error) {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("commit: %w", cerr)
		}
	}()
	return fn(tx)
}

type pgTx struct {
	tx *sqlx.Tx
}

type eventRow struct {
	ID              string    `db:"id"`
	Seq             int64     `db:"seq"`
	UserID          string    `db:"user_id"`
	EventType       string    `db:"event_type"`
	DurationSeconds *int64    `db:"duration_seconds"`
	Score           *float64  `db:"score"`
	Payload         []byte    `db:"payload"`
	CreatedAt       time.Time `db:"created_at"`
}

func (r eventRow) model() models.ActivityEvent {
	return models.ActivityEvent{
		ID:              r.ID,
		Seq:             r.Seq,
		UserID:          r.UserID,
		EventType:       r.EventType,
		DurationSeconds: r.DurationSeconds,
		Score:           r.Score,
		Payload:         jsonOrEmpty(r.Payload),
		CreatedAt:       r.CreatedAt,
	}
}

type nudgeRow struct {
	ID              string    `db:"id"`
	Seq             int64     `db:"seq"`
	UserID          string    `db:"user_id"`
	Polarity        string    `db:"polarity"`
	Origin          string    `db:"origin"`
	Text            string    `db:"text"`
	RelatedPromptID *string   `db:"related_prompt_id"`
	Context         []byte    `db:"context"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r nudgeRow) model() models.Nudge {
	n := models.Nudge{
		ID:              r.ID,
		Seq:             r.Seq,
		UserID:          r.UserID,
		Polarity:        r.Polarity,
		Origin:          r.Origin,
		Text:            r.Text,
		RelatedPromptID: r.RelatedPromptID,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if len(r.Context) > 0 {
		n.Context = json.RawMessage(r.Context)
	}
	return n
}

const eventColumns = `id, seq, user_id, event_type, duration_seconds, score, payload, created_at`

const nudgeColumns = `id, seq, user_id, polarity, origin, text, related_prompt_id, context, created_at, updated_at`

const userColumns = `id, username, email, password_hash, display_name, goal, created_at, updated_at`

func (t *pgTx) InsertEvent(ctx context.Context, event *models.ActivityEvent) error {
	err := t.tx.GetContext(ctx, &event.Seq, `
INSERT INTO activity_events (id, user_id, event_type, duration_seconds, score, payload, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING seq
`, event.ID, event.UserID, event.EventType, event.DurationSeconds, event.Score, string(jsonOrEmpty(event.Payload)), event.CreatedAt)
	if err != nil {
		if pgCode(err) == foreignKeyViolation {
			return ErrNotFound
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (t *pgTx) LatestEvent(ctx context.Context, userID, eventType string) (models.ActivityEvent, error) {
	var row eventRow
	err := t.tx.GetContext(ctx, &row, `
SELECT `+eventColumns+`
FROM activity_events
WHERE user_id = $1 AND event_type = $2
ORDER BY created_at DESC, seq DESC
LIMIT 1
`, userID, eventType)
	if err != nil {
		return models.ActivityEvent{}, notFound(err, "latest event")
	}
	return row.model(), nil
}

func (t *pgTx) ListEvents(ctx context.Context, filter EventFilter) ([]models.ActivityEvent, error) {
	where := []string{"user_id = $1"}
	args := []interface{}{filter.UserID}
	if filter.EventType != "" {
		args = append(args, filter.EventType)
		where = append(where, fmt.Sprintf("event_type = $%d", len(args)))
	}
	order := "created_at DESC, seq DESC"
	if filter.Ascending {
		order = "created_at ASC, seq ASC"
	}
	query := `
SELECT ` + eventColumns + `
FROM activity_events
WHERE ` + strings.Join(where, " AND ") + `
ORDER BY ` + order
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf("\nLIMIT $%d", len(args))
	}
	rows := []eventRow{}
	if err := t.tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	items := make([]models.ActivityEvent, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.model())
	}
	return items, nil
}

func (t *pgTx) GetStats(ctx context.Context, userID string) (models.UserStats, error) {
	var stats models.UserStats
	err := t.tx.GetContext(ctx, &stats, `
SELECT user_id, idle_count, distraction_count, total_sustained_attention, total_refocus_within_60s,
       total_nudges_shown, total_sessions, avg_feedback_score, created_at, updated_at
FROM user_stats
WHERE user_id = $1
`, userID)
	if err != nil {
		return models.UserStats{}, notFound(err, "get stats")
	}
	return stats, nil
}

func (t *pgTx) UpsertStats(ctx context.Context, stats models.UserStats) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO user_stats (
  user_id, idle_count, distraction_count, total_sustained_attention, total_refocus_within_60s,
  total_nudges_shown, total_sessions, avg_feedback_score, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (user_id) DO UPDATE SET
  idle_count = EXCLUDED.idle_count,
  distraction_count = EXCLUDED.distraction_count,
  total_sustained_attention = EXCLUDED.total_sustained_attention,
  total_refocus_within_60s = EXCLUDED.total_refocus_within_60s,
  total_nudges_shown = EXCLUDED.total_nudges_shown,
  total_sessions = EXCLUDED.total_sessions,
  avg_feedback_score = EXCLUDED.avg_feedback_score,
  updated_at = EXCLUDED.updated_at
`, stats.UserID, stats.IdleCount, stats.DistractionCount, stats.TotalSustainedAttention, stats.TotalRefocusWithin60s,
		stats.TotalNudgesShown, stats.TotalSessions, stats.AvgFeedbackScore, stats.CreatedAt, stats.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert stats: %w", err)
	}
	return nil
}

func (t *pgTx) ListNudges(ctx context.Context, userID string) ([]models.Nudge, error) {
	rows := []nudgeRow{}
	if err := t.tx.SelectContext(ctx, &rows, `
SELECT `+nudgeColumns+`
FROM nudges
WHERE user_id = $1
ORDER BY created_at ASC, seq ASC
`, userID); err != nil {
		return nil, fmt.Errorf("list nudges: %w", err)
	}
	items := make([]models.Nudge, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.model())
	}
	return items, nil
}

func (t *pgTx) GetNudge(ctx context.Context, nudgeID, ownerID string) (models.Nudge, error) {
	var row nudgeRow
	if err := t.tx.GetContext(ctx, &row, `
SELECT `+nudgeColumns+`
FROM nudges
WHERE id = $1 AND user_id = $2
`, nudgeID, ownerID); err != nil {
		return models.Nudge{}, notFound(err, "get nudge")
	}
	return row.model(), nil
}

func (t *pgTx) InsertNudge(ctx context.Context, nudge *models.Nudge) error {
	err := t.tx.GetContext(ctx, &nudge.Seq, `
INSERT INTO nudges (id, user_id, polarity, origin, text, related_prompt_id, context, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING seq
`, nudge.ID, nudge.UserID, nudge.Polarity, nudge.Origin, nudge.Text, nudge.RelatedPromptID,
		nullableJSON(nudge.Context), nudge.CreatedAt, nudge.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert nudge: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateNudgeText(ctx context.Context, nudgeID, ownerID, text string, at time.Time) (models.Nudge, error) {
	var row nudgeRow
	if err := t.tx.GetContext(ctx, &row, `
UPDATE nudges
SET text = $3, updated_at = $4
WHERE id = $1 AND user_id = $2
RETURNING `+nudgeColumns, nudgeID, ownerID, text, at); err != nil {
		return models.Nudge{}, notFound(err, "update nudge")
	}
	return row.model(), nil
}

func (t *pgTx) DeleteNudge(ctx context.Context, nudgeID, ownerID string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM nudges WHERE id = $1 AND user_id = $2`, nudgeID, ownerID)
	if err != nil {
		return notFound(err, "delete nudge")
	}
	return requireAffected(res)
}

func (t *pgTx) InsertReflection(ctx context.Context, r *models.Reflection) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO reflections (
  id, user_id, why_goal_matters, when_reach_goal, possible_obstacles,
  future_visualization, if_give_up, notes, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, r.ID, r.UserID, r.WhyGoalMatters, r.WhenReachGoal, r.PossibleObstacles,
		r.FutureVisualization, r.IfGiveUp, r.Notes, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert reflection: %w", err)
	}
	return nil
}

func (t *pgTx) LatestReflection(ctx context.Context, userID string) (models.Reflection, error) {
	var r models.Reflection
	if err := t.tx.GetContext(ctx, &r, `
SELECT id, user_id, why_goal_matters, when_reach_goal, possible_obstacles,
       future_visualization, if_give_up, notes, created_at
FROM reflections
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT 1
`, userID); err != nil {
		return models.Reflection{}, notFound(err, "latest reflection")
	}
	return r, nil
}

func (t *pgTx) InsertPrompt(ctx context.Context, p *models.AIPrompt) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO ai_prompts (id, user_id, model_name, prompt_text, purpose, response_preview, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, p.ID, p.UserID, p.ModelName, p.PromptText, p.Purpose, p.ResponsePreview, nullableJSON(p.Metadata), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert prompt: %w", err)
	}
	return nil
}

func (t *pgTx) InsertUser(ctx context.Context, u *models.User) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO users (`+userColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, u.ID, u.Username, u.Email, u.PasswordHash, u.DisplayName, u.Goal, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if pgCode(err) == uniqueViolation {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (t *pgTx) GetUser(ctx context.Context, userID string) (models.User, error) {
	var u models.User
	if err := t.tx.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID); err != nil {
		return models.User{}, notFound(err, "get user")
	}
	return u, nil
}

func (t *pgTx) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var u models.User
	if err := t.tx.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE username = $1`, username); err != nil {
		return models.User{}, notFound(err, "get user")
	}
	return u, nil
}

func (t *pgTx) UpdateProfile(ctx context.Context, userID string, displayName, goal *string, at time.Time) (models.User, error) {
	var u models.User
	if err := t.tx.GetContext(ctx, &u, `
UPDATE users
SET display_name = COALESCE($2, display_name),
    goal = COALESCE($3, goal),
    updated_at = $4
WHERE id = $1
RETURNING `+userColumns, userID, displayName, goal, at); err != nil {
		return models.User{}, notFound(err, "update profile")
	}
	return u, nil
}

func (t *pgTx) DeleteUser(ctx context.Context, userID string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return requireAffected(res)
}

// notFound maps a missing row, or an id that cannot name a row because it is
// not a valid uuid, to ErrNotFound.
func notFound(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) || pgCode(err) == invalidTextRepr {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func jsonOrEmpty(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(raw)
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
