package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/voxprint/pkg/speaker"
)

// pinger matches stores with a dedicated connectivity probe.
type pinger interface {
	Ping(ctx context.Context) error
}

// GuardedStore wraps a [speaker.Store] with a circuit breaker. While the
// breaker is open every call fails fast with [ErrCircuitOpen], which the
// API layer surfaces as 503 and the readiness probe as not ready.
//
// Domain outcomes ([speaker.ErrNotFound], [speaker.ErrDuplicateID]) pass
// through to the caller without counting as failures; only
// infrastructure errors trip the breaker.
type GuardedStore struct {
	inner speaker.Store
	cb    *CircuitBreaker
}

var _ speaker.Store = (*GuardedStore)(nil)

// NewGuardedStore wraps inner with a breaker built from cfg. An empty
// cfg.Name defaults to "speaker-store".
func NewGuardedStore(inner speaker.Store, cfg CircuitBreakerConfig) *GuardedStore {
	if cfg.Name == "" {
		cfg.Name = "speaker-store"
	}
	return &GuardedStore{
		inner: inner,
		cb:    NewCircuitBreaker(cfg),
	}
}

// guard runs op through the breaker, exempting domain errors from the
// failure accounting.
func (g *GuardedStore) guard(op func() error) error {
	var domain error
	err := g.cb.Execute(func() error {
		err := op()
		if errors.Is(err, speaker.ErrNotFound) || errors.Is(err, speaker.ErrDuplicateID) {
			domain = err
			return nil
		}
		return err
	})
	if domain != nil {
		return domain
	}
	return err
}

// Add implements [speaker.Store.Add].
func (g *GuardedStore) Add(ctx context.Context, p speaker.Profile) (speaker.Profile, error) {
	var out speaker.Profile
	err := g.guard(func() error {
		var err error
		out, err = g.inner.Add(ctx, p)
		return err
	})
	return out, err
}

// Get implements [speaker.Store.Get].
func (g *GuardedStore) Get(ctx context.Context, id string) (speaker.Profile, error) {
	var out speaker.Profile
	err := g.guard(func() error {
		var err error
		out, err = g.inner.Get(ctx, id)
		return err
	})
	return out, err
}

// List implements [speaker.Store.List].
func (g *GuardedStore) List(ctx context.Context) ([]speaker.Profile, error) {
	var out []speaker.Profile
	err := g.guard(func() error {
		var err error
		out, err = g.inner.List(ctx)
		return err
	})
	return out, err
}

// Update implements [speaker.Store.Update].
func (g *GuardedStore) Update(ctx context.Context, p speaker.Profile) error {
	return g.guard(func() error {
		return g.inner.Update(ctx, p)
	})
}

// Remove implements [speaker.Store.Remove].
func (g *GuardedStore) Remove(ctx context.Context, id string) error {
	return g.guard(func() error {
		return g.inner.Remove(ctx, id)
	})
}

// Nearest implements [speaker.Store.Nearest].
func (g *GuardedStore) Nearest(ctx context.Context, embedding []float32, limit int) ([]speaker.Match, error) {
	var out []speaker.Match
	err := g.guard(func() error {
		var err error
		out, err = g.inner.Nearest(ctx, embedding, limit)
		return err
	})
	return out, err
}

// Ping probes the wrapped store through the breaker: the inner store's
// own Ping when it has one, a List otherwise. Readiness checks flip as
// soon as the circuit opens.
func (g *GuardedStore) Ping(ctx context.Context) error {
	return g.guard(func() error {
		if p, ok := g.inner.(pinger); ok {
			return p.Ping(ctx)
		}
		_, err := g.inner.List(ctx)
		return err
	})
}

// Close releases the wrapped store's resources when it holds any.
func (g *GuardedStore) Close() {
	if c, ok := g.inner.(interface{ Close() }); ok {
		c.Close()
	}
}

// State reports the breaker state for dashboards and tests.
func (g *GuardedStore) State() State {
	return g.cb.State()
}

// Reset forces the breaker closed, for operator intervention after a
// known-resolved outage.
func (g *GuardedStore) Reset() {
	g.cb.Reset()
}
