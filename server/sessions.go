package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/luansfranca/sopromocoes/storefront"
)

// ControllerFactory builds an empty controller for a new session.
type ControllerFactory func() (*storefront.Controller, error)

// Sessions maps session ids to live controllers. A session expires after
// ttl without requests; evicted sessions are rebuilt from the selection store
// on their next request.
type Sessions struct {
	live    *expirable.LRU[string, *storefront.Controller]
	store   SelectionStore
	factory ControllerFactory
	group   singleflight.Group
}

func NewSessions(factory ControllerFactory, store SelectionStore, size int, ttl time.Duration) *Sessions {
	return &Sessions{
		live:    expirable.NewLRU[string, *storefront.Controller](size, nil, ttl),
		store:   store,
		factory: factory,
	}
}

// Get returns the controller for id, creating one when id is unknown. The
// returned id differs from the argument when a new session was started.
func (s *Sessions) Get(ctx context.Context, id string) (*storefront.Controller, string, error) {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	if c, ok := s.live.Get(id); ok {
		// Re-adding restarts the entry's expiry.
		s.live.Add(id, c)
		return c, id, nil
	}

	v, err, _ := s.group.Do(id, func() (any, error) {
		if c, ok := s.live.Get(id); ok {
			return c, nil
		}
		c, err := s.factory()
		if err != nil {
			return nil, err
		}

		// Loading must not be cut short by the first request going away.
		loadCtx := context.WithoutCancel(ctx)
		sel, found, err := s.store.Load(loadCtx, id)
		if err != nil {
			slog.Warn("selection store unavailable, starting fresh session",
				slog.String("session", id), slog.Any("error", err))
		}
		if found {
			c.Restore(loadCtx, sel)
			slog.Debug("session restored", slog.String("session", id))
		} else {
			c.Start(loadCtx)
		}
		s.live.Add(id, c)
		return c, nil
	})
	if err != nil {
		return nil, "", err
	}
	return v.(*storefront.Controller), id, nil
}

// Save persists the selection of c under id. Failures are logged only.
func (s *Sessions) Save(ctx context.Context, id string, c *storefront.Controller) {
	if err := s.store.Save(ctx, id, c.Selection()); err != nil {
		slog.Warn("persist selection failed", slog.String("session", id), slog.Any("error", err))
	}
}

// Len reports the number of live sessions.
func (s *Sessions) Len() int {
	return s.live.Len()
}

// Evict drops the live controller of id, keeping its stored selection.
func (s *Sessions) Evict(id string) {
	s.live.Remove(id)
}
