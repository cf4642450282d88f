// Package speaker defines voice profile types and storage for enrolled
// speakers.
//
// A [Profile] pairs a human-readable label with the centroid voice
// embedding produced by averaging one or more enrollment utterances. The
// [Store] interface abstracts profile persistence; [MemStore] keeps
// profiles in process memory and the postgres subpackage persists them in
// PostgreSQL with pgvector-indexed embeddings.
package speaker

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Profile is an enrolled speaker: a label and the unit-norm centroid
// embedding that represents their voice.
type Profile struct {
	// ID uniquely identifies the profile. Generated on Add when empty.
	ID string

	// Label is the display name shown in recognition results.
	Label string

	// Embedding is the unit-norm centroid vector for this speaker.
	Embedding []float32

	// Samples is the number of enrollment utterances averaged into
	// Embedding.
	Samples int

	// CreatedAt is when the profile was first stored.
	CreatedAt time.Time

	// UpdatedAt is when the profile was last modified (re-enrollment or
	// relabeling).
	UpdatedAt time.Time
}

// Clone returns a deep copy of the profile. The embedding slice is
// duplicated so mutations on the copy never leak into store internals.
func (p Profile) Clone() Profile {
	cp := p
	cp.Embedding = append([]float32(nil), p.Embedding...)
	return cp
}

// NewID produces a random 16-byte hex string using crypto/rand.
// The resulting string is 32 hex characters and is statistically unique.
func NewID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
