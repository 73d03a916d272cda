package profiles

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mycelian/mycelian-persona/internal/metrics"
)

// Directory resolves user ids to display names. Ids with no profile are
// absent from the returned map.
type Directory interface {
	IDsToNames(ctx context.Context, ids []string) (map[string]string, error)
}

// Backend stores cached names with an expiry.
type Backend interface {
	// GetMany returns the unexpired names among ids.
	GetMany(ctx context.Context, ids []string) (map[string]string, error)
	SetMany(ctx context.Context, names map[string]string, ttl time.Duration) error
}

// DefaultTTL bounds how stale a cached display name may be.
const DefaultTTL = 5 * time.Minute

// Cache is a read-through Directory: only ids missing from or expired in
// the backend reach the source. Backend failures degrade to the source.
type Cache struct {
	source  Directory
	backend Backend
	ttl     time.Duration
	log     zerolog.Logger
}

func NewCache(source Directory, backend Backend, ttl time.Duration, log zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{source: source, backend: backend, ttl: ttl, log: log.With().Str("component", "profile_cache").Logger()}
}

func (c *Cache) IDsToNames(ctx context.Context, ids []string) (map[string]string, error) {
	ids = dedupe(ids)
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cached, err := c.backend.GetMany(ctx, ids)
	if err != nil {
		c.log.Warn().Err(err).Msg("profile cache read failed; using source")
		cached = nil
	}
	var missing []string
	for _, id := range ids {
		if name, ok := cached[id]; ok {
			out[id] = name
			continue
		}
		missing = append(missing, id)
	}
	metrics.ProfileCacheLookupsTotal.WithLabelValues("hit").Add(float64(len(ids) - len(missing)))
	metrics.ProfileCacheLookupsTotal.WithLabelValues("miss").Add(float64(len(missing)))
	if len(missing) == 0 {
		return out, nil
	}

	fresh, err := c.source.IDsToNames(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("resolve profiles: %w", err)
	}
	for id, name := range fresh {
		out[id] = name
	}
	if len(fresh) > 0 {
		if err := c.backend.SetMany(ctx, fresh, c.ttl); err != nil {
			c.log.Warn().Err(err).Int("profiles", len(fresh)).Msg("profile cache write failed")
		}
	}
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
