package speaker

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get, Update and Remove when the requested
// profile does not exist.
var ErrNotFound = errors.New("speaker profile not found")

// ErrDuplicateID is returned by Add when a profile with the same ID
// already exists.
var ErrDuplicateID = errors.New("speaker profile with that ID already exists")

// Match pairs a stored profile with its similarity to a query embedding.
type Match struct {
	Profile Profile

	// Similarity is the cosine similarity between the query embedding
	// and Profile.Embedding, in [-1, 1].
	Similarity float64
}

// Store manages enrolled speaker profiles.
//
// All implementations must be safe for concurrent use.
type Store interface {
	// Add creates a new profile. Returns the profile with a generated ID
	// if the provided profile's ID is empty.
	// Returns [ErrDuplicateID] if a profile with the same non-empty ID exists.
	Add(ctx context.Context, p Profile) (Profile, error)

	// Get retrieves a profile by ID.
	// Returns [ErrNotFound] when no profile with that ID exists.
	Get(ctx context.Context, id string) (Profile, error)

	// List returns all profiles ordered by creation time, oldest first.
	List(ctx context.Context) ([]Profile, error)

	// Update replaces an existing profile. The profile's ID must be
	// non-empty.
	// Returns [ErrNotFound] when no profile with that ID exists.
	Update(ctx context.Context, p Profile) error

	// Remove deletes a profile by ID.
	// Returns [ErrNotFound] when no profile with that ID exists.
	Remove(ctx context.Context, id string) error

	// Nearest returns up to limit profiles ranked by descending cosine
	// similarity to the query embedding. Profiles with equal similarity
	// are ordered by ascending ID.
	Nearest(ctx context.Context, embedding []float32, limit int) ([]Match, error)
}
