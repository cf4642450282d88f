// Package recognize matches voice embeddings against enrolled speaker
// profiles.
//
// The Recognizer keeps every enrolled profile in an in-process cache so
// classification never touches the store on the hot path. Mutations
// (enroll, retrain, remove) write through to the configured
// [speaker.Store] and update the cache under one lock; Seed replaces the
// cache wholesale from the store at startup.
package recognize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/voxprint/pkg/provider/embedder"
	"github.com/MrWong99/voxprint/pkg/speaker"
)

// DefaultThreshold is the minimum cosine similarity for a positive match
// when Config.Threshold is zero.
const DefaultThreshold = 0.7

// UnknownLabel is the label reported when no enrolled speaker matches.
const UnknownLabel = "Unknown"

// ErrSimilarLabel is returned by Enroll when the new label is confusably
// close to an already enrolled one, so one person is not silently split
// across two profiles.
var ErrSimilarLabel = errors.New("label is confusably similar to an enrolled speaker")

// Config holds recognizer configuration.
type Config struct {
	// Threshold is the minimum cosine similarity for a positive match,
	// in (0, 1]. Zero selects DefaultThreshold.
	Threshold float64 `yaml:"threshold"`
}

// Result is the outcome of classifying one utterance.
type Result struct {
	// SpeakerID is the matched profile ID. Empty when Known is false.
	SpeakerID string

	// Label is the matched profile label, or UnknownLabel.
	Label string

	// Confidence is the cosine similarity of the best match. For an
	// unknown result it carries the near-miss similarity, so callers can
	// see how close the rejected best candidate was.
	Confidence float64

	// Known reports whether Confidence reached the threshold.
	Known bool
}

// cached is one cache entry. Embeddings are never handed out, so no
// defensive copies are needed here.
type cached struct {
	label     string
	embedding []float32
}

// Recognizer classifies utterances and manages speaker enrollment.
// All methods are safe for concurrent use.
type Recognizer struct {
	provider  embedder.Provider
	store     speaker.Store
	threshold float64

	mu    sync.RWMutex
	cache map[string]cached
	order []string // cache keys in ascending order
}

// New creates a Recognizer backed by the given embedding provider and
// profile store. Call Seed to load previously enrolled profiles.
func New(provider embedder.Provider, store speaker.Store, cfg Config) (*Recognizer, error) {
	if provider == nil {
		return nil, errors.New("recognize: provider must not be nil")
	}
	if store == nil {
		return nil, errors.New("recognize: store must not be nil")
	}
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("recognize: threshold %v out of range (0, 1]", threshold)
	}
	return &Recognizer{
		provider:  provider,
		store:     store,
		threshold: threshold,
		cache:     make(map[string]cached),
	}, nil
}

// Seed replaces the in-process cache with all profiles from the store.
func (r *Recognizer) Seed(ctx context.Context) error {
	profiles, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("recognize: seed: %w", err)
	}

	cache := make(map[string]cached, len(profiles))
	for _, p := range profiles {
		cache[p.ID] = cached{label: p.Label, embedding: p.Embedding}
	}

	r.mu.Lock()
	r.cache = cache
	r.rebuildOrderLocked()
	r.mu.Unlock()

	slog.Info("speaker cache seeded", "profiles", len(profiles))
	return nil
}

// Classify embeds the feature matrix and compares it against every
// enrolled profile. With no enrolled speakers it returns an unknown
// result without running the embedder.
//
// An embedding failure also yields an unknown result; the error is
// returned alongside so the caller can log it, but the pipeline is meant
// to carry on.
func (r *Recognizer) Classify(ctx context.Context, features [][]float32) (Result, error) {
	r.mu.RLock()
	empty := len(r.order) == 0
	r.mu.RUnlock()
	if empty {
		return Result{Label: UnknownLabel}, nil
	}

	emb, err := r.provider.Embed(ctx, features)
	if err != nil {
		return Result{Label: UnknownLabel}, fmt.Errorf("recognize: embed: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	// Iterate in ascending-ID order and replace only on strictly higher
	// similarity, so equal scores resolve to the same profile every time.
	var (
		bestID  string
		bestSim float64
		found   bool
	)
	for _, id := range r.order {
		sim := speaker.Cosine(emb, r.cache[id].embedding)
		if !found || sim > bestSim {
			bestID = id
			bestSim = sim
			found = true
		}
	}
	if !found {
		return Result{Label: UnknownLabel}, nil
	}

	if bestSim >= r.threshold {
		return Result{
			SpeakerID:  bestID,
			Label:      r.cache[bestID].label,
			Confidence: bestSim,
			Known:      true,
		}, nil
	}
	return Result{Label: UnknownLabel, Confidence: bestSim}, nil
}

// Enroll embeds each feature-matrix sample, averages the vectors into a
// unit-norm centroid, and stores the new profile. An empty id lets the
// store assign one; an id that is already enrolled is rejected with
// [speaker.ErrDuplicateID]. Labels that fold-equal or phonetically
// collide with an enrolled speaker are rejected with [ErrSimilarLabel].
func (r *Recognizer) Enroll(ctx context.Context, id, label string, samples [][][]float32) (speaker.Profile, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return speaker.Profile{}, errors.New("recognize: enroll: label must not be empty")
	}
	if len(samples) == 0 {
		return speaker.Profile{}, errors.New("recognize: enroll: at least one sample required")
	}

	r.mu.RLock()
	labels := make([]string, 0, len(r.order))
	for _, id := range r.order {
		labels = append(labels, r.cache[id].label)
	}
	r.mu.RUnlock()
	if match, ok := speaker.NearDuplicateLabel(labels, label); ok {
		return speaker.Profile{}, fmt.Errorf("recognize: enroll %q: %w: existing profile %q", label, ErrSimilarLabel, match)
	}

	centroid, err := r.embedCentroid(ctx, samples)
	if err != nil {
		return speaker.Profile{}, fmt.Errorf("recognize: enroll %q: %w", label, err)
	}

	now := time.Now().UTC()
	stored, err := r.store.Add(ctx, speaker.Profile{
		ID:        strings.TrimSpace(id),
		Label:     label,
		Embedding: centroid,
		Samples:   len(samples),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return speaker.Profile{}, fmt.Errorf("recognize: enroll %q: store: %w", label, err)
	}

	r.mu.Lock()
	r.cache[stored.ID] = cached{label: stored.Label, embedding: stored.Embedding}
	r.rebuildOrderLocked()
	r.mu.Unlock()

	slog.Info("speaker enrolled", "id", stored.ID, "label", stored.Label, "samples", len(samples))
	return stored, nil
}

// Retrain re-averages an existing profile: the stored centroid counts as
// one vector alongside the fresh samples, so repeated retraining drifts
// rather than resets. Returns [speaker.ErrNotFound] (wrapped) when the
// profile does not exist.
func (r *Recognizer) Retrain(ctx context.Context, id string, samples [][][]float32) (speaker.Profile, error) {
	if len(samples) == 0 {
		return speaker.Profile{}, errors.New("recognize: retrain: at least one sample required")
	}

	p, err := r.store.Get(ctx, id)
	if err != nil {
		return speaker.Profile{}, fmt.Errorf("recognize: retrain %s: %w", id, err)
	}

	centroid, err := r.embedCentroid(ctx, samples, p.Embedding)
	if err != nil {
		return speaker.Profile{}, fmt.Errorf("recognize: retrain %s: %w", id, err)
	}

	p.Embedding = centroid
	p.Samples += len(samples)
	p.UpdatedAt = time.Now().UTC()
	if err := r.store.Update(ctx, p); err != nil {
		return speaker.Profile{}, fmt.Errorf("recognize: retrain %s: store: %w", id, err)
	}

	r.mu.Lock()
	r.cache[p.ID] = cached{label: p.Label, embedding: p.Embedding}
	r.rebuildOrderLocked()
	r.mu.Unlock()

	slog.Info("speaker retrained", "id", p.ID, "label", p.Label, "samples", len(samples))
	return p, nil
}

// Remove deletes a profile from the store and the cache. Returns
// [speaker.ErrNotFound] (wrapped) when the profile does not exist.
func (r *Recognizer) Remove(ctx context.Context, id string) error {
	if err := r.store.Remove(ctx, id); err != nil {
		return fmt.Errorf("recognize: remove %s: %w", id, err)
	}

	r.mu.Lock()
	delete(r.cache, id)
	r.rebuildOrderLocked()
	r.mu.Unlock()

	slog.Info("speaker removed", "id", id)
	return nil
}

// Enrolled returns the number of profiles in the cache.
func (r *Recognizer) Enrolled() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Mode reports the embedding provider's mode.
func (r *Recognizer) Mode() embedder.Mode {
	return r.provider.Mode()
}

// Threshold returns the current acceptance threshold.
func (r *Recognizer) Threshold() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.threshold
}

// SetThreshold replaces the acceptance threshold at runtime, so a config
// reload can tighten or relax matching without restarting.
func (r *Recognizer) SetThreshold(t float64) error {
	if t <= 0 || t > 1 {
		return fmt.Errorf("recognize: threshold %v out of range (0, 1]", t)
	}
	r.mu.Lock()
	r.threshold = t
	r.mu.Unlock()
	return nil
}

// embedCentroid embeds every sample and returns the unit-norm mean.
// Extra pre-computed vectors (a prior centroid) enter the mean with the
// same weight as one sample.
func (r *Recognizer) embedCentroid(ctx context.Context, samples [][][]float32, extra ...[]float32) ([]float32, error) {
	vecs := make([][]float32, 0, len(samples)+len(extra))
	for _, v := range extra {
		if len(v) > 0 {
			vecs = append(vecs, v)
		}
	}
	for i, m := range samples {
		v, err := r.provider.Embed(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("embed sample %d: %w", i, err)
		}
		vecs = append(vecs, v)
	}
	centroid := speaker.Mean(vecs)
	if centroid == nil {
		return nil, errors.New("embed samples produced no vectors")
	}
	speaker.Normalize(centroid)
	return centroid, nil
}

// rebuildOrderLocked recomputes the sorted key list. Callers must hold
// the write lock.
func (r *Recognizer) rebuildOrderLocked() {
	r.order = r.order[:0]
	for id := range r.cache {
		r.order = append(r.order, id)
	}
	sort.Strings(r.order)
}
