// Package mock provides a test double for the speaker.Store interface.
//
// Use Store to script profile operations without a database and to verify
// which profiles were written. For realistic read-after-write behavior in
// larger tests prefer [speaker.MemStore]; this mock is for forcing errors
// and asserting call sequences.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxprint/pkg/speaker"
)

// Store is a mock implementation of speaker.Store.
type Store struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// AddResult is returned by Add when AddErr is nil. If its ID is
	// empty, the input profile is echoed back instead.
	AddResult speaker.Profile

	// AddErr, if non-nil, is returned as the error from Add.
	AddErr error

	// GetResult is returned by Get when GetErr is nil.
	GetResult speaker.Profile

	// GetErr, if non-nil, is returned as the error from Get.
	GetErr error

	// ListResult is returned by List when ListErr is nil.
	ListResult []speaker.Profile

	// ListErr, if non-nil, is returned as the error from List.
	ListErr error

	// UpdateErr is returned as the error from Update.
	UpdateErr error

	// RemoveErr is returned as the error from Remove.
	RemoveErr error

	// NearestResult is returned by Nearest when NearestErr is nil.
	NearestResult []speaker.Match

	// NearestErr, if non-nil, is returned as the error from Nearest.
	NearestErr error

	// --- Call records ---

	// AddCalls records every profile passed to Add in order.
	AddCalls []speaker.Profile

	// GetCalls records every ID passed to Get in order.
	GetCalls []string

	// ListCallCount is the number of times List was called.
	ListCallCount int

	// UpdateCalls records every profile passed to Update in order.
	UpdateCalls []speaker.Profile

	// RemoveCalls records every ID passed to Remove in order.
	RemoveCalls []string

	// NearestCalls records every embedding passed to Nearest in order.
	NearestCalls [][]float32
}

// Add records the call and returns AddResult (or the input), AddErr.
func (s *Store) Add(ctx context.Context, p speaker.Profile) (speaker.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AddCalls = append(s.AddCalls, p.Clone())
	if s.AddErr != nil {
		return speaker.Profile{}, s.AddErr
	}
	if s.AddResult.ID != "" {
		return s.AddResult, nil
	}
	return p, nil
}

// Get records the call and returns GetResult, GetErr.
func (s *Store) Get(ctx context.Context, id string) (speaker.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetCalls = append(s.GetCalls, id)
	if s.GetErr != nil {
		return speaker.Profile{}, s.GetErr
	}
	return s.GetResult, nil
}

// List records the call and returns ListResult, ListErr.
func (s *Store) List(ctx context.Context) ([]speaker.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ListCallCount++
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	return s.ListResult, nil
}

// Update records the call and returns UpdateErr.
func (s *Store) Update(ctx context.Context, p speaker.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdateCalls = append(s.UpdateCalls, p.Clone())
	return s.UpdateErr
}

// Remove records the call and returns RemoveErr.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RemoveCalls = append(s.RemoveCalls, id)
	return s.RemoveErr
}

// Nearest records the call and returns NearestResult, NearestErr.
func (s *Store) Nearest(ctx context.Context, embedding []float32, limit int) ([]speaker.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NearestCalls = append(s.NearestCalls, append([]float32(nil), embedding...))
	if s.NearestErr != nil {
		return nil, s.NearestErr
	}
	return s.NearestResult, nil
}

// Reset clears all recorded calls. Thread-safe.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AddCalls = nil
	s.GetCalls = nil
	s.ListCallCount = 0
	s.UpdateCalls = nil
	s.RemoveCalls = nil
	s.NearestCalls = nil
}

// Ensure Store implements speaker.Store at compile time.
var _ speaker.Store = (*Store)(nil)
