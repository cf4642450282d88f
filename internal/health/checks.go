package health

import (
	"context"
	"errors"

	"github.com/MrWong99/voxprint/pkg/provider/embedder"
	"github.com/MrWong99/voxprint/pkg/speaker"
)

// Pinger is implemented by stores with a dedicated connectivity probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker probes the speaker profile store. Stores exposing Ping
// (the Postgres store) get a connectivity probe; others are exercised
// with a List.
func StoreChecker(store speaker.Store) Checker {
	return Checker{
		Name: "store",
		Check: func(ctx context.Context) error {
			if p, ok := store.(Pinger); ok {
				return p.Ping(ctx)
			}
			_, err := store.List(ctx)
			return err
		},
	}
}

// ModelChecker reports the embedding backend mode. The fallback
// embedder keeps the service running, so a missing model degrades the
// check instead of failing it.
func ModelChecker(mode func() embedder.Mode) Checker {
	return Checker{
		Name: "model",
		Check: func(context.Context) error {
			if m := mode(); m != embedder.ModeLoaded {
				return Degraded(errors.New(m.String() + " embedder active"))
			}
			return nil
		},
	}
}
