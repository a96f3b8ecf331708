package store

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"neuronudge-backend-go/internal/models"
)

// Memory keeps everything in process. Writes made inside a transaction are
// staged on private copies and swapped in on commit.
type Memory struct {
	txMu sync.RWMutex
	mu   sync.RWMutex

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	users     map[string]models.User
	usernames map[string]string
	data      map[string]*userData

	seq atomic.Int64
}

type userData struct {
	events      []models.ActivityEvent
	stats       *models.UserStats
	nudges      []models.Nudge
	reflections []models.Reflection
	prompts     []models.AIPrompt
}

func (d *userData) clone() *userData {
	if d == nil {
		return &userData{}
	}
	out := &userData{
		events:      append([]models.ActivityEvent(nil), d.events...),
		nudges:      append([]models.Nudge(nil), d.nudges...),
		reflections: append([]models.Reflection(nil), d.reflections...),
		prompts:     append([]models.AIPrompt(nil), d.prompts...),
	}
	if d.stats != nil {
		stats := *d.stats
		out.stats = &stats
	}
	return out
}

func NewMemory() *Memory {
	return &Memory{
		locks:     map[string]*sync.Mutex{},
		users:     map[string]models.User{},
		usernames: map[string]string{},
		data:      map[string]*userData{},
	}
}

func (s *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Memory) userLock(userID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}

func (s *Memory) InUserTx(ctx context.Context, userID string, fn func(Tx) error) error {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return s.run(ctx, fn)
}

func (s *Memory) InTx(ctx context.Context, fn func(Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.run(ctx, fn)
}

func (s *Memory) run(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{
		s:     s,
		data:  map[string]*userData{},
		users: map[string]*models.User{},
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *Memory) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, d := range tx.data {
		s.data[id] = d
	}
	for id, user := range tx.users {
		if old, ok := s.users[id]; ok {
			delete(s.usernames, old.Username)
		}
		if user == nil {
			delete(s.users, id)
			delete(s.data, id)
			continue
		}
		s.users[id] = *user
		s.usernames[user.Username] = id
	}
}

type memTx struct {
	s     *Memory
	data  map[string]*userData
	users map[string]*models.User
}

func (tx *memTx) user(userID string) *userData {
	if d, ok := tx.data[userID]; ok {
		return d
	}
	tx.s.mu.RLock()
	d := tx.s.data[userID].clone()
	tx.s.mu.RUnlock()
	tx.data[userID] = d
	return d
}

// InsertEvent rejects events for unknown users the way the Postgres foreign
// key does.
func (tx *memTx) InsertEvent(ctx context.Context, event *models.ActivityEvent) error {
	if _, err := tx.GetUser(ctx, event.UserID); err != nil {
		return err
	}
	event.Seq = tx.s.seq.Add(1)
	d := tx.user(event.UserID)
	d.events = append(d.events, *event)
	return nil
}

func eventBefore(a, b models.ActivityEvent) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Seq < b.Seq
}

func (tx *memTx) LatestEvent(ctx context.Context, userID, eventType string) (models.ActivityEvent, error) {
	var (
		latest models.ActivityEvent
		found  bool
	)
	for _, event := range tx.user(userID).events {
		if event.EventType != eventType {
			continue
		}
		if !found || eventBefore(latest, event) {
			latest = event
			found = true
		}
	}
	if !found {
		return models.ActivityEvent{}, ErrNotFound
	}
	return latest, nil
}

func (tx *memTx) ListEvents(ctx context.Context, filter EventFilter) ([]models.ActivityEvent, error) {
	items := []models.ActivityEvent{}
	for _, event := range tx.user(filter.UserID).events {
		if filter.EventType != "" && event.EventType != filter.EventType {
			continue
		}
		items = append(items, event)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if filter.Ascending {
			return eventBefore(items[i], items[j])
		}
		return eventBefore(items[j], items[i])
	})
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items, nil
}

func (tx *memTx) GetStats(ctx context.Context, userID string) (models.UserStats, error) {
	d := tx.user(userID)
	if d.stats == nil {
		return models.UserStats{}, ErrNotFound
	}
	return *d.stats, nil
}

func (tx *memTx) UpsertStats(ctx context.Context, stats models.UserStats) error {
	d := tx.user(stats.UserID)
	d.stats = &stats
	return nil
}

func (tx *memTx) ListNudges(ctx context.Context, userID string) ([]models.Nudge, error) {
	items := append([]models.Nudge{}, tx.user(userID).nudges...)
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].Seq < items[j].Seq
	})
	return items, nil
}

func (tx *memTx) GetNudge(ctx context.Context, nudgeID, ownerID string) (models.Nudge, error) {
	for _, nudge := range tx.user(ownerID).nudges {
		if nudge.ID == nudgeID {
			return nudge, nil
		}
	}
	return models.Nudge{}, ErrNotFound
}

func (tx *memTx) InsertNudge(ctx context.Context, nudge *models.Nudge) error {
	nudge.Seq = tx.s.seq.Add(1)
	d := tx.user(nudge.UserID)
	d.nudges = append(d.nudges, *nudge)
	return nil
}

func (tx *memTx) UpdateNudgeText(ctx context.Context, nudgeID, ownerID, text string, at time.Time) (models.Nudge, error) {
	d := tx.user(ownerID)
	for i := range d.nudges {
		if d.nudges[i].ID == nudgeID {
			d.nudges[i].Text = text
			d.nudges[i].UpdatedAt = at
			return d.nudges[i], nil
		}
	}
	return models.Nudge{}, ErrNotFound
}

func (tx *memTx) DeleteNudge(ctx context.Context, nudgeID, ownerID string) error {
	d := tx.user(ownerID)
	for i := range d.nudges {
		if d.nudges[i].ID == nudgeID {
			d.nudges = append(d.nudges[:i], d.nudges[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (tx *memTx) InsertReflection(ctx context.Context, reflection *models.Reflection) error {
	d := tx.user(reflection.UserID)
	d.reflections = append(d.reflections, *reflection)
	return nil
}

func (tx *memTx) LatestReflection(ctx context.Context, userID string) (models.Reflection, error) {
	items := tx.user(userID).reflections
	if len(items) == 0 {
		return models.Reflection{}, ErrNotFound
	}
	latest := items[0]
	for _, item := range items[1:] {
		if !item.CreatedAt.Before(latest.CreatedAt) {
			latest = item
		}
	}
	return latest, nil
}

func (tx *memTx) InsertPrompt(ctx context.Context, prompt *models.AIPrompt) error {
	d := tx.user(prompt.UserID)
	d.prompts = append(d.prompts, *prompt)
	return nil
}

func (tx *memTx) InsertUser(ctx context.Context, user *models.User) error {
	if _, err := tx.GetUser(ctx, user.ID); err == nil {
		return ErrConflict
	}
	if _, err := tx.GetUserByUsername(ctx, user.Username); err == nil {
		return ErrConflict
	}
	copied := *user
	tx.users[user.ID] = &copied
	return nil
}

func (tx *memTx) GetUser(ctx context.Context, userID string) (models.User, error) {
	if staged, ok := tx.users[userID]; ok {
		if staged == nil {
			return models.User{}, ErrNotFound
		}
		return *staged, nil
	}
	tx.s.mu.RLock()
	user, ok := tx.s.users[userID]
	tx.s.mu.RUnlock()
	if !ok {
		return models.User{}, ErrNotFound
	}
	return user, nil
}

func (tx *memTx) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	for _, staged := range tx.users {
		if staged != nil && staged.Username == username {
			return *staged, nil
		}
	}
	tx.s.mu.RLock()
	id, ok := tx.s.usernames[username]
	tx.s.mu.RUnlock()
	if !ok {
		return models.User{}, ErrNotFound
	}
	return tx.GetUser(ctx, id)
}

func (tx *memTx) UpdateProfile(ctx context.Context, userID string, displayName, goal *string, at time.Time) (models.User, error) {
	user, err := tx.GetUser(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	if displayName != nil {
		user.DisplayName = displayName
	}
	if goal != nil {
		user.Goal = goal
	}
	user.UpdatedAt = at
	tx.users[userID] = &user
	return user, nil
}

func (tx *memTx) DeleteUser(ctx context.Context, userID string) error {
	if _, err := tx.GetUser(ctx, userID); err != nil {
		return err
	}
	tx.users[userID] = nil
	tx.data[userID] = &userData{}
	return nil
}
