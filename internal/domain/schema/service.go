package schema

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Introspector describes the store's entities and relations.
type Introspector interface {
	Introspect(ctx context.Context) (*Snapshot, error)
}

// Cache stores snapshots keyed by store identity.
type Cache interface {
	Get(ctx context.Context, key string) (*Snapshot, bool)
	Set(ctx context.Context, key string, snap *Snapshot, ttl time.Duration)
}

// Service fetches schema snapshots, consulting the cache only when a positive TTL is configured.
type Service struct {
	introspector Introspector
	cache        Cache
	ttl          time.Duration
	key          string
	group        singleflight.Group
}

// NewService creates a schema service. cache may be nil; ttl <= 0 disables caching.
func NewService(introspector Introspector, cache Cache, ttl time.Duration, key string) *Service {
	return &Service{
		introspector: introspector,
		cache:        cache,
		ttl:          ttl,
		key:          "schema:" + key,
	}
}

// Fetch returns the current snapshot. refresh skips any cached copy.
func (s *Service) Fetch(ctx context.Context, refresh bool) (*Snapshot, error) {
	caching := s.cache != nil && s.ttl > 0
	if caching && !refresh {
		if snap, ok := s.cache.Get(ctx, s.key); ok {
			log.Debug().Str("key", s.key).Msg("schema cache hit")
			return snap, nil
		}
	}

	v, err, _ := s.group.Do(s.key, func() (any, error) {
		return s.introspector.Introspect(ctx)
	})
	if err != nil {
		return nil, err
	}
	snap := v.(*Snapshot)

	if caching {
		s.cache.Set(ctx, s.key, snap, s.ttl)
	}
	return snap, nil
}
