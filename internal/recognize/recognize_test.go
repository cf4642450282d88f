package recognize_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/voxprint/internal/recognize"
	embmock "github.com/MrWong99/voxprint/pkg/provider/embedder/mock"
	"github.com/MrWong99/voxprint/pkg/speaker"
)

// newRecognizer builds a Recognizer over a MemStore pre-filled with the
// given profiles and seeds the cache.
func newRecognizer(t *testing.T, provider *embmock.Provider, cfg recognize.Config, profiles ...speaker.Profile) (*recognize.Recognizer, *speaker.MemStore) {
	t.Helper()
	ctx := context.Background()
	store := speaker.NewMemStore()
	for _, p := range profiles {
		if _, err := store.Add(ctx, p); err != nil {
			t.Fatalf("Add %q: %v", p.ID, err)
		}
	}
	r, err := recognize.New(provider, store, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Seed(ctx); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	return r, store
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	store := speaker.NewMemStore()
	provider := &embmock.Provider{DimValue: 2}

	if _, err := recognize.New(nil, store, recognize.Config{}); err == nil {
		t.Error("New with nil provider returned nil error")
	}
	if _, err := recognize.New(provider, nil, recognize.Config{}); err == nil {
		t.Error("New with nil store returned nil error")
	}
	if _, err := recognize.New(provider, store, recognize.Config{Threshold: 1.5}); err == nil {
		t.Error("New with threshold > 1 returned nil error")
	}

	r, err := recognize.New(provider, store, recognize.Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := r.Threshold(); got != recognize.DefaultThreshold {
		t.Errorf("Threshold() = %v, want %v", got, recognize.DefaultThreshold)
	}
}

func TestSetThreshold(t *testing.T) {
	t.Parallel()

	// 45 degrees off the enrolled vector: similarity ~0.7071 sits
	// between the initial and the raised threshold.
	provider := &embmock.Provider{EmbedResults: [][]float32{{1, 1}}}
	r, _ := newRecognizer(t, provider, recognize.Config{Threshold: 0.5},
		speaker.Profile{ID: "alice-id", Label: "Alice", Embedding: []float32{1, 0}},
	)

	res, err := r.Classify(context.Background(), nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !res.Known {
		t.Fatal("expected a match at threshold 0.5")
	}

	if err := r.SetThreshold(0.9); err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	if got := r.Threshold(); got != 0.9 {
		t.Errorf("Threshold() = %v, want 0.9", got)
	}

	res, err = r.Classify(context.Background(), nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Known {
		t.Error("expected unknown after raising the threshold to 0.9")
	}

	if err := r.SetThreshold(1.5); err == nil {
		t.Error("SetThreshold(1.5) returned nil error")
	}
	if err := r.SetThreshold(0); err == nil {
		t.Error("SetThreshold(0) returned nil error")
	}
}

func TestClassify_EmptyCache(t *testing.T) {
	t.Parallel()

	provider := &embmock.Provider{DimValue: 2}
	r, _ := newRecognizer(t, provider, recognize.Config{})

	res, err := r.Classify(context.Background(), nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Known {
		t.Error("Classify with empty cache reported a known speaker")
	}
	if res.Label != recognize.UnknownLabel {
		t.Errorf("Label = %q, want %q", res.Label, recognize.UnknownLabel)
	}
	if res.SpeakerID != "" || res.Confidence != 0 {
		t.Errorf("Result = %+v, want empty ID and zero confidence", res)
	}
	if len(provider.EmbedCalls) != 0 {
		t.Errorf("embedder invoked %d times with empty cache, want 0", len(provider.EmbedCalls))
	}
}

func TestClassify_AcceptsAboveThreshold(t *testing.T) {
	t.Parallel()

	provider := &embmock.Provider{EmbedResults: [][]float32{{1, 0}}}
	r, _ := newRecognizer(t, provider, recognize.Config{Threshold: 0.5},
		speaker.Profile{ID: "alice-id", Label: "Alice", Embedding: []float32{1, 0}},
		speaker.Profile{ID: "bob-id", Label: "Bob", Embedding: []float32{0, 1}},
	)

	res, err := r.Classify(context.Background(), nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !res.Known {
		t.Fatal("Classify: expected a known speaker")
	}
	if res.SpeakerID != "alice-id" || res.Label != "Alice" {
		t.Errorf("Result = %+v, want alice-id/Alice", res)
	}
	if math.Abs(res.Confidence-1.0) > 1e-6 {
		t.Errorf("Confidence = %v, want ~1.0", res.Confidence)
	}
}

func TestClassify_RejectsBelowThreshold(t *testing.T) {
	t.Parallel()

	// 45 degrees off the enrolled vector: similarity ~0.7071, below the
	// 0.8 threshold, so the result is unknown but carries the near miss.
	provider := &embmock.Provider{EmbedResults: [][]float32{{1, 1}}}
	r, _ := newRecognizer(t, provider, recognize.Config{Threshold: 0.8},
		speaker.Profile{ID: "alice-id", Label: "Alice", Embedding: []float32{1, 0}},
	)

	res, err := r.Classify(context.Background(), nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Known {
		t.Fatal("Classify: expected unknown result")
	}
	if res.Label != recognize.UnknownLabel || res.SpeakerID != "" {
		t.Errorf("Result = %+v, want unknown with empty ID", res)
	}
	if math.Abs(res.Confidence-math.Sqrt2/2) > 1e-4 {
		t.Errorf("Confidence = %v, want ~%v", res.Confidence, math.Sqrt2/2)
	}
}

func TestClassify_TieResolvesToLowestID(t *testing.T) {
	t.Parallel()

	provider := &embmock.Provider{EmbedResults: [][]float32{{1, 0}}}
	r, _ := newRecognizer(t, provider, recognize.Config{Threshold: 0.5},
		speaker.Profile{ID: "bbb", Label: "Second", Embedding: []float32{1, 0}},
		speaker.Profile{ID: "aaa", Label: "First", Embedding: []float32{1, 0}},
	)

	for i := 0; i < 5; i++ {
		res, err := r.Classify(context.Background(), nil)
		if err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if res.SpeakerID != "aaa" {
			t.Fatalf("Classify run %d: SpeakerID = %q, want aaa", i, res.SpeakerID)
		}
	}
}

func TestClassify_EmbedErrorReturnsUnknown(t *testing.T) {
	t.Parallel()

	provider := &embmock.Provider{EmbedErr: errors.New("runtime exploded")}
	r, _ := newRecognizer(t, provider, recognize.Config{},
		speaker.Profile{ID: "alice-id", Label: "Alice", Embedding: []float32{1, 0}},
	)

	res, err := r.Classify(context.Background(), nil)
	if err == nil {
		t.Fatal("Classify: expected error from embedder")
	}
	if res.Known || res.Label != recognize.UnknownLabel || res.Confidence != 0 {
		t.Errorf("Result = %+v, want unknown with zero confidence", res)
	}
}

func TestEnroll_MeanAndNormalize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider := &embmock.Provider{EmbedResults: [][]float32{{1, 0}, {0, 1}}}
	r, store := newRecognizer(t, provider, recognize.Config{})

	p, err := r.Enroll(ctx, "", "Alice", [][][]float32{
		{{0.1, 0.2}},
		{{0.3, 0.4}},
	})
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if p.ID == "" {
		t.Fatal("Enroll: expected generated profile ID")
	}
	if p.Samples != 2 {
		t.Errorf("Samples = %d, want 2", p.Samples)
	}

	// Mean of (1,0) and (0,1) is (0.5,0.5); normalized to (0.7071,0.7071).
	want := float32(math.Sqrt2 / 2)
	for i, got := range p.Embedding {
		if math.Abs(float64(got-want)) > 1e-4 {
			t.Errorf("Embedding[%d] = %v, want ~%v", i, got, want)
		}
	}

	stored, err := store.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get after Enroll: %v", err)
	}
	if stored.Label != "Alice" {
		t.Errorf("stored label = %q, want Alice", stored.Label)
	}
	if got := r.Enrolled(); got != 1 {
		t.Errorf("Enrolled() = %d, want 1", got)
	}
}

func TestEnroll_Validation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider := &embmock.Provider{DimValue: 2}
	r, _ := newRecognizer(t, provider, recognize.Config{})

	if _, err := r.Enroll(ctx, "", "  ", [][][]float32{{{1}}}); err == nil {
		t.Error("Enroll with blank label returned nil error")
	}
	if _, err := r.Enroll(ctx, "", "Alice", nil); err == nil {
		t.Error("Enroll with no samples returned nil error")
	}
}

func TestEnroll_ExplicitIDAndDuplicate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider := &embmock.Provider{EmbedResults: [][]float32{{1, 0}, {0, 1}}}
	r, _ := newRecognizer(t, provider, recognize.Config{})

	p, err := r.Enroll(ctx, "alice-id", "Alice", [][][]float32{{{1, 0}}})
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if p.ID != "alice-id" {
		t.Errorf("ID = %q, want alice-id", p.ID)
	}

	_, err = r.Enroll(ctx, "alice-id", "Bob", [][][]float32{{{0, 1}}})
	if !errors.Is(err, speaker.ErrDuplicateID) {
		t.Fatalf("Enroll with taken ID: got %v, want ErrDuplicateID", err)
	}
}

func TestEnroll_SimilarLabelRejected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider := &embmock.Provider{EmbedResults: [][]float32{{1, 0}}}
	r, _ := newRecognizer(t, provider, recognize.Config{},
		speaker.Profile{ID: "john-id", Label: "John", Embedding: []float32{1, 0}},
	)

	_, err := r.Enroll(ctx, "", "Jon", [][][]float32{{{1, 0}}})
	if !errors.Is(err, recognize.ErrSimilarLabel) {
		t.Fatalf("Enroll: expected ErrSimilarLabel, got %v", err)
	}
}

func TestEnroll_EmbedErrorFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider := &embmock.Provider{EmbedErr: errors.New("no runtime")}
	r, store := newRecognizer(t, provider, recognize.Config{})

	if _, err := r.Enroll(ctx, "", "Alice", [][][]float32{{{1, 0}}}); err == nil {
		t.Fatal("Enroll: expected error from embedder")
	}
	all, _ := store.List(ctx)
	if len(all) != 0 {
		t.Errorf("store has %d profiles after failed enroll, want 0", len(all))
	}
}

func TestRemove_DropsFromCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider := &embmock.Provider{EmbedResults: [][]float32{{1, 0}}}
	r, store := newRecognizer(t, provider, recognize.Config{Threshold: 0.5},
		speaker.Profile{ID: "alice-id", Label: "Alice", Embedding: []float32{1, 0}},
	)

	if err := r.Remove(ctx, "alice-id"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := r.Enrolled(); got != 0 {
		t.Errorf("Enrolled() = %d, want 0", got)
	}
	if _, err := store.Get(ctx, "alice-id"); !errors.Is(err, speaker.ErrNotFound) {
		t.Fatalf("Get after Remove: expected ErrNotFound, got %v", err)
	}

	res, err := r.Classify(ctx, nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Known {
		t.Error("Classify after Remove still matches the removed speaker")
	}

	if err := r.Remove(ctx, "alice-id"); !errors.Is(err, speaker.ErrNotFound) {
		t.Fatalf("second Remove: expected ErrNotFound, got %v", err)
	}
}

func TestRetrain_UpdatesEmbedding(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider := &embmock.Provider{EmbedResults: [][]float32{{0, 1}}}
	r, store := newRecognizer(t, provider, recognize.Config{Threshold: 0.5},
		speaker.Profile{ID: "alice-id", Label: "Alice", Embedding: []float32{1, 0}, Samples: 1},
	)

	p, err := r.Retrain(ctx, "alice-id", [][][]float32{{{9, 9}}})
	if err != nil {
		t.Fatalf("Retrain: %v", err)
	}

	// Old centroid (1,0) and new vector (0,1) average to (0.5,0.5),
	// normalized to (0.7071,0.7071).
	want := float32(math.Sqrt2 / 2)
	for i, got := range p.Embedding {
		if math.Abs(float64(got-want)) > 1e-4 {
			t.Errorf("Embedding[%d] = %v, want ~%v", i, got, want)
		}
	}
	if p.Samples != 2 {
		t.Errorf("Samples = %d, want 2", p.Samples)
	}

	stored, _ := store.Get(ctx, "alice-id")
	if math.Abs(float64(stored.Embedding[0]-want)) > 1e-4 {
		t.Errorf("stored embedding = %v, want ~[%v %v]", stored.Embedding, want, want)
	}

	// The cache must follow: a query along the new axis now matches.
	res, err := r.Classify(ctx, nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !res.Known || res.SpeakerID != "alice-id" {
		t.Errorf("Classify after Retrain = %+v, want known alice-id", res)
	}

	if _, err := r.Retrain(ctx, "ghost", [][][]float32{{{1}}}); !errors.Is(err, speaker.ErrNotFound) {
		t.Fatalf("Retrain missing: expected ErrNotFound, got %v", err)
	}
}

func TestSeed_ReplacesCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider := &embmock.Provider{DimValue: 2}
	store := speaker.NewMemStore()
	r, err := recognize.New(provider, store, recognize.Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := r.Enrolled(); got != 0 {
		t.Fatalf("Enrolled() before Seed = %d, want 0", got)
	}
	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.Add(ctx, speaker.Profile{ID: id, Label: id, Embedding: []float32{1, 0}}); err != nil {
			t.Fatalf("Add %q: %v", id, err)
		}
	}
	if err := r.Seed(ctx); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if got := r.Enrolled(); got != 3 {
		t.Errorf("Enrolled() after Seed = %d, want 3", got)
	}
}
