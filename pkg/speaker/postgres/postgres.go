// Package postgres provides a PostgreSQL-backed implementation of
// [speaker.Store].
//
// Profiles live in a single speaker_profiles table whose embedding column
// uses the pgvector extension; [Migrate] installs it automatically via
// CREATE EXTENSION IF NOT EXISTS. Nearest-neighbour lookups run against
// an HNSW cosine index, so enrolled sets far larger than a single
// process's memory remain searchable.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 192)
//	if err != nil { … }
//	defer store.Close()
//
//	p, _ := store.Add(ctx, speaker.Profile{Label: "Alice", Embedding: vec})
//	matches, _ := store.Nearest(ctx, query, 3)
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/voxprint/pkg/speaker"
)

// Compile-time assertion that Store satisfies speaker.Store.
var _ speaker.Store = (*Store)(nil)

// ddlProfiles returns the profiles DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at
// schema creation time.
func ddlProfiles(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS speaker_profiles (
    id          TEXT         PRIMARY KEY,
    label       TEXT         NOT NULL,
    embedding   vector(%d),
    samples     INTEGER      NOT NULL DEFAULT 1,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_speaker_profiles_label
    ON speaker_profiles (label);

CREATE INDEX IF NOT EXISTS idx_speaker_profiles_embedding
    ON speaker_profiles USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures the speaker_profiles table and the pgvector
// extension exist. It is idempotent and safe to call on every
// application start.
//
// embeddingDimensions must match the output dimension of the speaker
// model. Changing this value after the first migration requires a manual
// schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddlProfiles(embeddingDimensions)); err != nil {
		return fmt.Errorf("speaker migrate: %w", err)
	}
	return nil
}

// Store is the PostgreSQL-backed profile store. All operations are safe
// for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, registers pgvector types on every
// connection, and runs [Migrate] to ensure the schema exists.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("speaker store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so the embedding
	// column can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("speaker store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("speaker store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("speaker store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Add implements [speaker.Store.Add].
func (s *Store) Add(ctx context.Context, p speaker.Profile) (speaker.Profile, error) {
	if p.ID == "" {
		id, err := speaker.NewID()
		if err != nil {
			return speaker.Profile{}, fmt.Errorf("speaker store: generate id: %w", err)
		}
		p.ID = id
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	const q = `
		INSERT INTO speaker_profiles (id, label, embedding, samples, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, q,
		p.ID, p.Label, pgvector.NewVector(p.Embedding), p.Samples, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return speaker.Profile{}, fmt.Errorf("speaker store: add: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return speaker.Profile{}, speaker.ErrDuplicateID
	}
	return p, nil
}

// Get implements [speaker.Store.Get].
func (s *Store) Get(ctx context.Context, id string) (speaker.Profile, error) {
	const q = `
		SELECT id, label, embedding, samples, created_at, updated_at
		FROM   speaker_profiles
		WHERE  id = $1`

	var (
		p   speaker.Profile
		vec pgvector.Vector
	)
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&p.ID, &p.Label, &vec, &p.Samples, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return speaker.Profile{}, speaker.ErrNotFound
		}
		return speaker.Profile{}, fmt.Errorf("speaker store: get: %w", err)
	}
	p.Embedding = vec.Slice()
	return p, nil
}

// List implements [speaker.Store.List].
func (s *Store) List(ctx context.Context) ([]speaker.Profile, error) {
	const q = `
		SELECT id, label, embedding, samples, created_at, updated_at
		FROM   speaker_profiles
		ORDER  BY created_at, id`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("speaker store: list: %w", err)
	}

	profiles, err := pgx.CollectRows(rows, scanProfile)
	if err != nil {
		return nil, fmt.Errorf("speaker store: scan rows: %w", err)
	}
	if profiles == nil {
		profiles = []speaker.Profile{}
	}
	return profiles, nil
}

// Update implements [speaker.Store.Update].
func (s *Store) Update(ctx context.Context, p speaker.Profile) error {
	const q = `
		UPDATE speaker_profiles
		SET    label = $2, embedding = $3, samples = $4, updated_at = now()
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q, p.ID, p.Label, pgvector.NewVector(p.Embedding), p.Samples)
	if err != nil {
		return fmt.Errorf("speaker store: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return speaker.ErrNotFound
	}
	return nil
}

// Remove implements [speaker.Store.Remove].
func (s *Store) Remove(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM speaker_profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("speaker store: remove: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return speaker.ErrNotFound
	}
	return nil
}

// Nearest implements [speaker.Store.Nearest]. Results are ordered by
// ascending cosine distance against the HNSW index; similarity is
// reported as 1 - distance.
func (s *Store) Nearest(ctx context.Context, embedding []float32, limit int) ([]speaker.Match, error) {
	const q = `
		SELECT id, label, embedding, samples, created_at, updated_at,
		       embedding <=> $1 AS distance
		FROM   speaker_profiles
		ORDER  BY distance, id
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("speaker store: nearest: %w", err)
	}

	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (speaker.Match, error) {
		var (
			m        speaker.Match
			vec      pgvector.Vector
			distance float64
		)
		if err := row.Scan(
			&m.Profile.ID, &m.Profile.Label, &vec, &m.Profile.Samples,
			&m.Profile.CreatedAt, &m.Profile.UpdatedAt, &distance,
		); err != nil {
			return speaker.Match{}, err
		}
		m.Profile.Embedding = vec.Slice()
		m.Similarity = 1 - distance
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("speaker store: scan rows: %w", err)
	}
	if matches == nil {
		matches = []speaker.Match{}
	}
	return matches, nil
}

// scanProfile scans one speaker_profiles row into a Profile.
func scanProfile(row pgx.CollectableRow) (speaker.Profile, error) {
	var (
		p   speaker.Profile
		vec pgvector.Vector
	)
	if err := row.Scan(&p.ID, &p.Label, &vec, &p.Samples, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return speaker.Profile{}, err
	}
	p.Embedding = vec.Slice()
	return p, nil
}
