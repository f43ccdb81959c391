package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/courtside/internal/domain/dedupe"
	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/pkg/metrics"
)

// MemStore is the in-memory Store. A single RWMutex guards entries, the
// ledger and the reset markers so each write is one atomic step.
//
// Reads are served from a cached snapshot that every write invalidates, so a
// burst of list queries between writes sorts a shared copy.
type MemStore struct {
	mu      sync.RWMutex
	entries map[string]*model.Entry
	players map[string]model.Player
	markers map[model.Window]time.Time
	ledger  dedupe.Deduper
	seq     int64
	now     func() time.Time

	snapshot atomic.Pointer[[]model.Entry]

	metricsUpdateInterval time.Duration
	wg                    sync.WaitGroup
	stopChan              chan struct{}
	closeOnce             sync.Once
}

// NewMemStore constructs a memory store and starts its metrics updater.
func NewMemStore(ctx context.Context, opts ...Option) *MemStore {
	s := &MemStore{
		entries:               make(map[string]*model.Entry),
		players:               make(map[string]model.Player),
		markers:               make(map[model.Window]time.Time),
		ledger:                dedupe.NewInMemoryDeduper(),
		now:                   time.Now,
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the background goroutines.
func (s *MemStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *MemStore) Get(_ context.Context, playerID string) (model.Entry, error) {
	defer observe("get", time.Now(), nil)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[playerID]
	if !ok {
		return model.Entry{}, ErrNotFound
	}
	return e.Clone(), nil
}

func (s *MemStore) Snapshot(_ context.Context) ([]model.Entry, error) {
	defer observe("snapshot", time.Now(), nil)
	if cached := s.snapshot.Load(); cached != nil {
		return cloneAll(*cached), nil
	}

	s.mu.RLock()
	out := make([]model.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Clone())
	}
	// Writers invalidate under the write lock, so publishing here cannot
	// overwrite a newer invalidation.
	s.snapshot.CompareAndSwap(nil, &out)
	s.mu.RUnlock()

	return cloneAll(out), nil
}

func cloneAll(in []model.Entry) []model.Entry {
	out := make([]model.Entry, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// invalidate must be called with s.mu held for writing.
func (s *MemStore) invalidate() { s.snapshot.Store(nil) }

func (s *MemStore) CompareAndSwap(ctx context.Context, next model.Entry, expectedVersion int64, eventID string) (committed model.Entry, err error) {
	defer func(start time.Time) { observe("cas", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if eventID != "" && s.ledger.Seen(ctx, eventID) {
		return model.Entry{}, ErrDuplicateEvent
	}

	cur, exists := s.entries[next.PlayerID]
	switch {
	case !exists && expectedVersion != 0:
		return model.Entry{}, ErrVersionConflict
	case exists && cur.Version != expectedVersion:
		return model.Entry{}, ErrVersionConflict
	}

	stored := next.Clone()
	if exists {
		stored.Seq = cur.Seq
		stored.CreatedAt = cur.CreatedAt
		stored.Achievements = cur.Achievements
	} else {
		s.seq++
		stored.Seq = s.seq
		stored.Achievements = nil
	}
	stored.Version = expectedVersion + 1

	if eventID != "" {
		s.ledger.SeenAndRecord(ctx, eventID, dedupe.Record{PlayerID: next.PlayerID, AppliedAt: s.now().UTC()})
	}
	s.entries[next.PlayerID] = &stored
	s.invalidate()
	return stored.Clone(), nil
}

func (s *MemStore) Applied(ctx context.Context, eventID string) (bool, error) {
	return s.ledger.Seen(ctx, eventID), nil
}

func (s *MemStore) ResetWindow(_ context.Context, w model.Window, at, onlyIfBefore time.Time) (ran bool, err error) {
	defer func(start time.Time) { observe("reset", start, err) }(time.Now())
	if !w.Resettable() {
		return false, ErrInvalidWindow
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	marker := s.markers[w]
	if !onlyIfBefore.IsZero() && !marker.Before(onlyIfBefore) {
		return false, nil
	}
	for _, e := range s.entries {
		points, stamp := &e.WeeklyPoints, &e.WeeklyPeriod
		if w == model.WindowMonthly {
			points, stamp = &e.MonthlyPoints, &e.MonthlyPeriod
		}
		if !onlyIfBefore.IsZero() {
			if !stamp.Before(onlyIfBefore) {
				continue
			}
			*stamp = onlyIfBefore
		}
		*points = 0
		e.Version++
	}
	if at.After(marker) {
		s.markers[w] = at.UTC()
	}
	s.invalidate()
	return true, nil
}

func (s *MemStore) LastReset(_ context.Context, w model.Window) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.markers[w], nil
}

func (s *MemStore) UpsertPlayer(_ context.Context, p model.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[p.ID] = p
	return nil
}

func (s *MemStore) GetPlayer(_ context.Context, playerID string) (model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[playerID]
	if !ok {
		return model.Player{}, ErrNotFound
	}
	return p, nil
}

func (s *MemStore) AddAchievement(_ context.Context, playerID string, a model.Achievement) (added bool, err error) {
	defer func(start time.Time) { observe("add_achievement", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[playerID]
	if !ok {
		return false, ErrNotFound
	}
	if e.HasAchievement(a.Type) {
		return false, nil
	}
	e.Achievements = append(e.Achievements, a)
	e.Version++
	s.invalidate()
	return true, nil
}

func (s *MemStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// startMetricsUpdater periodically publishes the entry count and ledger size.
func (s *MemStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				n, _ := s.Count(ctx)
				metrics.UpdateTotalPlayers(n)
				metrics.UpdateAppliedEvents(s.ledger.Size())
			}
		}
	}()
}

func observe(op string, start time.Time, err error) {
	metrics.RecordStoreOperation(op, metrics.Since(start), err)
}
