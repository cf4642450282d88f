package speaker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxprint/pkg/speaker"
)

func TestAdd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("with empty ID generates one", func(t *testing.T) {
		t.Parallel()
		s := speaker.NewMemStore()
		got, err := s.Add(ctx, speaker.Profile{Label: "Alice", Embedding: []float32{1, 0}})
		if err != nil {
			t.Fatalf("Add: unexpected error: %v", err)
		}
		if got.ID == "" {
			t.Fatal("Add: expected generated ID, got empty string")
		}
	})

	t.Run("with explicit ID is preserved", func(t *testing.T) {
		t.Parallel()
		s := speaker.NewMemStore()
		got, err := s.Add(ctx, speaker.Profile{ID: "spk-001", Label: "Bob"})
		if err != nil {
			t.Fatalf("Add: unexpected error: %v", err)
		}
		if got.ID != "spk-001" {
			t.Fatalf("Add: expected ID %q, got %q", "spk-001", got.ID)
		}
	})

	t.Run("duplicate ID returns ErrDuplicateID", func(t *testing.T) {
		t.Parallel()
		s := speaker.NewMemStore()
		p := speaker.Profile{ID: "dup-01", Label: "First"}
		if _, err := s.Add(ctx, p); err != nil {
			t.Fatalf("Add first: unexpected error: %v", err)
		}
		_, err := s.Add(ctx, p)
		if !errors.Is(err, speaker.ErrDuplicateID) {
			t.Fatalf("Add duplicate: expected ErrDuplicateID, got %v", err)
		}
	})
}

func TestGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := speaker.NewMemStore()
	added, _ := s.Add(ctx, speaker.Profile{Label: "Carol", Embedding: []float32{0, 1}})

	t.Run("existing profile", func(t *testing.T) {
		t.Parallel()
		got, err := s.Get(ctx, added.ID)
		if err != nil {
			t.Fatalf("Get: unexpected error: %v", err)
		}
		if got.Label != "Carol" {
			t.Fatalf("Get: expected label %q, got %q", "Carol", got.Label)
		}
	})

	t.Run("missing profile returns ErrNotFound", func(t *testing.T) {
		t.Parallel()
		_, err := s.Get(ctx, "no-such-id")
		if !errors.Is(err, speaker.ErrNotFound) {
			t.Fatalf("Get: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("returned embedding is a copy", func(t *testing.T) {
		t.Parallel()
		got, err := s.Get(ctx, added.ID)
		if err != nil {
			t.Fatalf("Get: unexpected error: %v", err)
		}
		got.Embedding[0] = 42
		again, _ := s.Get(ctx, added.ID)
		if again.Embedding[0] == 42 {
			t.Fatal("Get: mutation of returned embedding leaked into store")
		}
	})
}

func TestList_OrderedByCreation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := speaker.NewMemStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"c", "a", "b"} {
		_, err := s.Add(ctx, speaker.Profile{
			ID:        id,
			Label:     id,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Add %q: unexpected error: %v", id, err)
		}
	}

	got, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: unexpected error: %v", err)
	}
	want := []string{"c", "a", "b"}
	if len(got) != len(want) {
		t.Fatalf("List: expected %d profiles, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("List[%d].ID = %q, want %q", i, got[i].ID, want[i])
		}
	}
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("existing profile", func(t *testing.T) {
		t.Parallel()
		s := speaker.NewMemStore()
		added, _ := s.Add(ctx, speaker.Profile{Label: "Old"})
		added.Label = "New"
		if err := s.Update(ctx, added); err != nil {
			t.Fatalf("Update: unexpected error: %v", err)
		}
		got, _ := s.Get(ctx, added.ID)
		if got.Label != "New" {
			t.Fatalf("Update: expected label %q, got %q", "New", got.Label)
		}
	})

	t.Run("missing profile returns ErrNotFound", func(t *testing.T) {
		t.Parallel()
		s := speaker.NewMemStore()
		err := s.Update(ctx, speaker.Profile{ID: "ghost"})
		if !errors.Is(err, speaker.ErrNotFound) {
			t.Fatalf("Update: expected ErrNotFound, got %v", err)
		}
	})
}

func TestRemove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("existing profile", func(t *testing.T) {
		t.Parallel()
		s := speaker.NewMemStore()
		added, _ := s.Add(ctx, speaker.Profile{Label: "Gone"})
		if err := s.Remove(ctx, added.ID); err != nil {
			t.Fatalf("Remove: unexpected error: %v", err)
		}
		if _, err := s.Get(ctx, added.ID); !errors.Is(err, speaker.ErrNotFound) {
			t.Fatalf("Get after Remove: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("missing profile returns ErrNotFound", func(t *testing.T) {
		t.Parallel()
		s := speaker.NewMemStore()
		if err := s.Remove(ctx, "ghost"); !errors.Is(err, speaker.ErrNotFound) {
			t.Fatalf("Remove: expected ErrNotFound, got %v", err)
		}
	})
}

func TestNearest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := speaker.NewMemStore()
	profiles := []speaker.Profile{
		{ID: "x-axis", Embedding: []float32{1, 0}},
		{ID: "y-axis", Embedding: []float32{0, 1}},
		{ID: "diagonal", Embedding: []float32{0.7071, 0.7071}},
	}
	for _, p := range profiles {
		if _, err := s.Add(ctx, p); err != nil {
			t.Fatalf("Add %q: unexpected error: %v", p.ID, err)
		}
	}

	t.Run("ranked by similarity", func(t *testing.T) {
		t.Parallel()
		matches, err := s.Nearest(ctx, []float32{1, 0}, 2)
		if err != nil {
			t.Fatalf("Nearest: unexpected error: %v", err)
		}
		if len(matches) != 2 {
			t.Fatalf("Nearest: expected 2 matches, got %d", len(matches))
		}
		if matches[0].Profile.ID != "x-axis" {
			t.Errorf("Nearest[0].ID = %q, want %q", matches[0].Profile.ID, "x-axis")
		}
		if matches[1].Profile.ID != "diagonal" {
			t.Errorf("Nearest[1].ID = %q, want %q", matches[1].Profile.ID, "diagonal")
		}
		if matches[0].Similarity < matches[1].Similarity {
			t.Errorf("Nearest: similarities not descending: %v then %v",
				matches[0].Similarity, matches[1].Similarity)
		}
	})

	t.Run("equal similarity breaks ties by ID", func(t *testing.T) {
		t.Parallel()
		tied := speaker.NewMemStore()
		for _, id := range []string{"bbb", "aaa"} {
			if _, err := tied.Add(ctx, speaker.Profile{ID: id, Embedding: []float32{1, 0}}); err != nil {
				t.Fatalf("Add %q: unexpected error: %v", id, err)
			}
		}
		matches, err := tied.Nearest(ctx, []float32{1, 0}, 0)
		if err != nil {
			t.Fatalf("Nearest: unexpected error: %v", err)
		}
		if matches[0].Profile.ID != "aaa" || matches[1].Profile.ID != "bbb" {
			t.Errorf("Nearest tie order = %q, %q; want aaa, bbb",
				matches[0].Profile.ID, matches[1].Profile.ID)
		}
	})

	t.Run("empty store returns empty slice", func(t *testing.T) {
		t.Parallel()
		empty := speaker.NewMemStore()
		matches, err := empty.Nearest(ctx, []float32{1, 0}, 5)
		if err != nil {
			t.Fatalf("Nearest: unexpected error: %v", err)
		}
		if len(matches) != 0 {
			t.Fatalf("Nearest: expected no matches, got %d", len(matches))
		}
	})
}

func TestMemStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := speaker.NewMemStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := s.Add(ctx, speaker.Profile{Label: "worker", Embedding: []float32{1, 0}})
			if err != nil {
				t.Errorf("Add: unexpected error: %v", err)
				return
			}
			if _, err := s.Get(ctx, p.ID); err != nil {
				t.Errorf("Get: unexpected error: %v", err)
			}
			if _, err := s.Nearest(ctx, []float32{0, 1}, 3); err != nil {
				t.Errorf("Nearest: unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: unexpected error: %v", err)
	}
	if len(all) != 20 {
		t.Fatalf("List: expected 20 profiles, got %d", len(all))
	}
}
