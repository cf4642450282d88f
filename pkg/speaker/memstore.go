package speaker

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// It is the default store when no database is configured and is also
// used in tests. The zero value is ready to use.
type MemStore struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		profiles: make(map[string]Profile),
	}
}

// Add implements [Store.Add].
func (s *MemStore) Add(ctx context.Context, p Profile) (Profile, error) {
	if p.ID == "" {
		id, err := NewID()
		if err != nil {
			return Profile{}, fmt.Errorf("speaker: generate id: %w", err)
		}
		p.ID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.profiles == nil {
		s.profiles = make(map[string]Profile)
	}

	if _, exists := s.profiles[p.ID]; exists {
		return Profile{}, ErrDuplicateID
	}

	s.profiles[p.ID] = p.Clone()
	return p, nil
}

// Get implements [Store.Get].
func (s *MemStore) Get(ctx context.Context, id string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p.Clone(), nil
}

// List implements [Store.List].
func (s *MemStore) List(ctx context.Context) ([]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		result = append(result, p.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Update implements [Store.Update].
func (s *MemStore) Update(ctx context.Context, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[p.ID]; !ok {
		return ErrNotFound
	}

	s.profiles[p.ID] = p.Clone()
	return nil
}

// Remove implements [Store.Remove].
func (s *MemStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[id]; !ok {
		return ErrNotFound
	}

	delete(s.profiles, id)
	return nil
}

// Nearest implements [Store.Nearest].
func (s *MemStore) Nearest(ctx context.Context, embedding []float32, limit int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]Match, 0, len(s.profiles))
	for _, p := range s.profiles {
		matches = append(matches, Match{
			Profile:    p.Clone(),
			Similarity: Cosine(embedding, p.Embedding),
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Profile.ID < matches[j].Profile.ID
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
