// Package progress owns the per-user activity counters.
//
// The store keeps every record in memory and is the only writer of
// UserProgress. Changes are marked dirty and flushed to a durable
// ProgressRepository as one whole-record batch:
//  1. Increment / SetAcknowledgedTier mutate under the store lock
//  2. Persist snapshots the dirty set and hands it to the repository
//  3. A failed flush re-marks the snapshot dirty; the next flush retries it
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vip-ladder/tierbot/internal/domain"
	"github.com/vip-ladder/tierbot/internal/infra/observability"
)

// Store is the in-memory owner of UserProgress records.
type Store struct {
	mu      sync.Mutex
	records map[string]*domain.UserProgress
	dirty   map[string]struct{}

	// flushMu keeps two flushes from racing each other to the repository.
	flushMu sync.Mutex

	repo   domain.ProgressRepository
	logger *slog.Logger
	now    func() time.Time // injectable clock for testing
}

// New creates an empty store backed by repo.
func New(repo domain.ProgressRepository, logger *slog.Logger) *Store {
	return &Store{
		records: make(map[string]*domain.UserProgress),
		dirty:   make(map[string]struct{}),
		repo:    repo,
		logger:  observability.Component(logger, "progress"),
		now:     time.Now,
	}
}

// Load replaces the in-memory state with what the repository holds.
// An empty repository is the normal first-run case.
func (s *Store) Load(ctx context.Context) error {
	recs, err := s.repo.LoadProgress(ctx)
	if err != nil {
		return fmt.Errorf("load progress: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*domain.UserProgress, len(recs))
	s.dirty = make(map[string]struct{})
	for i := range recs {
		p := recs[i]
		s.records[p.UserID] = &p
	}
	observability.TrackedUsers.Set(float64(len(s.records)))
	observability.PendingRecords.Set(0)
	s.logger.Info("progress loaded", "users", len(recs))
	return nil
}

// Increment adds one activity to userID, creating the record on first sight,
// and returns the updated record.
func (s *Store) Increment(userID string) domain.UserProgress {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.recordLocked(userID)
	p.ActivityCount++
	p.UpdatedAt = s.now()
	s.markDirtyLocked(userID)
	observability.ActivityEvents.Inc()
	return *p
}

// Get returns userID's record, or the default record if none exists.
func (s *Store) Get(userID string) domain.UserProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.records[userID]; ok {
		return *p
	}
	return domain.NewUserProgress(userID)
}

// SetAcknowledgedTier moves userID's acknowledged tier up to idx.
// It is a no-op returning false when idx does not exceed the current value.
func (s *Store) SetAcknowledgedTier(userID string, idx int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.recordLocked(userID)
	if idx <= p.AcknowledgedTier {
		return false
	}
	p.AcknowledgedTier = idx
	p.UpdatedAt = s.now()
	s.markDirtyLocked(userID)
	return true
}

// Len returns the number of tracked users.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Pending returns the number of records awaiting a flush.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty)
}

// Snapshot returns a copy of every record.
func (s *Store) Snapshot() []domain.UserProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserProgress, 0, len(s.records))
	for _, p := range s.records {
		out = append(out, *p)
	}
	return out
}

// Persist flushes dirty records. A failure is logged and returned wrapping
// domain.ErrPersistence; the records stay in memory and are retried by the
// next call.
func (s *Store) Persist(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	batch := s.takeDirty()
	if len(batch) == 0 {
		return nil
	}

	if err := s.repo.SaveProgress(ctx, batch); err != nil {
		s.restoreDirty(batch)
		observability.PersistFailures.Inc()
		s.logger.Warn("progress flush failed", "records", len(batch), "error", err)
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	s.logger.Debug("progress flushed", "records", len(batch))
	return nil
}

// Run flushes every interval until ctx is done, then flushes once more with a
// fresh context so shutdown does not lose pending counts.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return s.Persist(flushCtx)
		case <-ticker.C:
			// Failure is already logged and the records retried next tick.
			_ = s.Persist(ctx)
		}
	}
}

func (s *Store) recordLocked(userID string) *domain.UserProgress {
	p, ok := s.records[userID]
	if !ok {
		np := domain.NewUserProgress(userID)
		p = &np
		s.records[userID] = p
		observability.TrackedUsers.Set(float64(len(s.records)))
	}
	return p
}

func (s *Store) markDirtyLocked(userID string) {
	s.dirty[userID] = struct{}{}
	observability.PendingRecords.Set(float64(len(s.dirty)))
}

func (s *Store) takeDirty() []domain.UserProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make([]domain.UserProgress, 0, len(s.dirty))
	for id := range s.dirty {
		batch = append(batch, *s.records[id])
	}
	s.dirty = make(map[string]struct{})
	observability.PendingRecords.Set(0)
	return batch
}

func (s *Store) restoreDirty(batch []domain.UserProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range batch {
		s.dirty[p.UserID] = struct{}{}
	}
	observability.PendingRecords.Set(float64(len(s.dirty)))
}
