package exam

import (
	"context"
	"sync"
	"time"
)

// Repository abstracts where sessions live (in-memory, Redis, etc).
type Repository interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, bool)
	Delete(ctx context.Context, id string)
	// Expire removes sessions idle since cutoff and returns how many.
	Expire(ctx context.Context, cutoff time.Time) int
}

// MemoryRepository keeps sessions in a process-local map.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*Session)}
}

func (r *MemoryRepository) Create(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *MemoryRepository) Delete(_ context.Context, id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Len returns the number of live sessions.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *MemoryRepository) Expire(_ context.Context, cutoff time.Time) int {
	return len(r.expire(cutoff))
}

// expire removes and closes idle sessions, returning their ids.
func (r *MemoryRepository) expire(cutoff time.Time) []string {
	var idle []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.IdleSince(cutoff) {
			delete(r.sessions, id)
			idle = append(idle, s)
		}
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(idle))
	for _, s := range idle {
		s.Close()
		ids = append(ids, s.ID())
	}
	return ids
}
