package testutil

import (
	"context"
	"sync"

	"github.com/vip-ladder/tierbot/internal/domain"
)

// Repo is an in-memory domain.ProgressRepository.
type Repo struct {
	mu   sync.Mutex
	data map[string]domain.UserProgress
	Fail error
}

var _ domain.ProgressRepository = (*Repo)(nil)

// NewRepo creates an empty repository.
func NewRepo() *Repo {
	return &Repo{data: make(map[string]domain.UserProgress)}
}

// Stored returns the persisted record for userID.
func (r *Repo) Stored(userID string) (domain.UserProgress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[userID]
	return p, ok
}

func (r *Repo) LoadProgress(ctx context.Context) ([]domain.UserProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return nil, r.Fail
	}
	out := make([]domain.UserProgress, 0, len(r.data))
	for _, p := range r.data {
		out = append(out, p)
	}
	return out, nil
}

func (r *Repo) SaveProgress(ctx context.Context, batch []domain.UserProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail
	}
	for _, p := range batch {
		r.data[p.UserID] = p
	}
	return nil
}
