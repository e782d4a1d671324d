package nntp

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"nzbstream/internal/nzberrors"
)

// unavailableThreshold is the consecutive-failure count after which a server
// is marked unavailable and skipped by future fan-outs. Only a recorded
// success clears the flag, and a skipped server is sent no requests, so it
// stays unavailable for as long as its server entry is kept.
const unavailableThreshold = 3

// ServerHealth is a rolling health record for one configured server.
type ServerHealth struct {
	ConsecutiveFailures int
	TotalSuccesses      int
	TotalFailures       int
	LastSuccessAt       time.Time
	LastFailureAt       time.Time
	Unavailable         bool
}

// ArticleCache is the narrow contract this package needs from
// internal/cache's TTL caches, kept here as an interface so this package
// never imports cache (cache imports this package, for this type).
type ArticleCache interface {
	Contains(id string) bool
	Add(id string)
}

type nopCache struct{}

func (nopCache) Contains(string) bool { return false }
func (nopCache) Add(string)           {}

// server bundles one configured endpoint with its pool and health record.
type server struct {
	cfg    ServerConfig
	pool   *Pool
	health ServerHealth
}

// MultiClient fans a per-article operation out across priority-ordered
// servers, tracking per-server health and consulting missing/healthy article
// caches. The fan-out/health-tracking shape is grounded on javi11-altmount's
// internal/pool "apply a new provider snapshot" pattern (see DESIGN.md).
type MultiClient struct {
	mu      sync.RWMutex
	servers []*server
	dial    DialFunc

	MissingCache ArticleCache
	HealthyCache ArticleCache

	// OnServerUnavailable is invoked (outside the lock) whenever a server
	// transitions to unavailable, so callers can clear the healthy-article
	// cache: a different server may now serve the request and its prior
	// healthy judgments don't apply.
	OnServerUnavailable func(serverID string)
}

// NewMultiClient builds a fan-out client over the given server configs,
// creating one Pool per enabled server.
func NewMultiClient(cfgs []ServerConfig, dial DialFunc) *MultiClient {
	mc := &MultiClient{
		dial:         dial,
		MissingCache: nopCache{},
		HealthyCache: nopCache{},
	}
	mc.SetServers(cfgs)
	return mc
}

// SetServers replaces the server list, disposing pools for removed/modified
// servers, creating pools for added ones, and clearing both caches. Any
// change to the server list clears both caches, not only host changes.
func (mc *MultiClient) SetServers(cfgs []ServerConfig) {
	byID := make(map[string]ServerConfig, len(cfgs))
	for _, c := range cfgs {
		if c.Enabled {
			byID[c.ID] = c
		}
	}

	mc.mu.Lock()
	old := mc.servers
	var kept []*server
	changed := false
	for _, s := range old {
		nc, ok := byID[s.cfg.ID]
		if !ok || !nc.Equal(s.cfg) {
			s.pool.Dispose()
			changed = true
			continue
		}
		kept = append(kept, s)
		delete(byID, s.cfg.ID)
	}
	for _, nc := range byID {
		kept = append(kept, &server{cfg: nc, pool: New(nc, mc.dial)})
		changed = true
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].cfg.Priority < kept[j].cfg.Priority })
	mc.servers = kept
	mc.mu.Unlock()

	if changed {
		mc.MissingCache = freshCacheLike(mc.MissingCache)
		mc.HealthyCache = freshCacheLike(mc.HealthyCache)
	}
}

// freshCacheLike is a placeholder hook: caches that support atomic
// replacement implement Resettable; others (notably nopCache in tests) are
// left as-is.
type Resettable interface {
	Reset() ArticleCache
}

func freshCacheLike(c ArticleCache) ArticleCache {
	if r, ok := c.(Resettable); ok {
		return r.Reset()
	}
	return c
}

// Body fans BODY out across servers in priority order, returning the raw
// yEnc-encoded article body from the first server that has
// it. Caller must Close the returned reader and report health back via no
// extra call — Body already updates health and releases the connection.
func (mc *MultiClient) Body(ctx context.Context, articleID string) (io.ReadCloser, error) {
	if mc.MissingCache.Contains(articleID) {
		return nil, nzberrors.NewArticleNotFound(articleID)
	}

	snapshot := mc.snapshot()
	sawTransportError := false

	for _, s := range snapshot {
		if s.healthSnapshot().Unavailable {
			continue
		}

		conn, err := s.pool.Acquire(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			sawTransportError = true
			mc.recordFailure(s)
			continue
		}

		body, err := conn.Body(ctx, articleID)
		switch {
		case err == nil:
			s.pool.Release(conn, true)
			mc.recordSuccess(s)
			mc.HealthyCache.Add(articleID)
			return body, nil
		case errors.Is(err, ErrArticleMissing):
			s.pool.Release(conn, true)
			continue
		default:
			s.pool.Release(conn, false)
			sawTransportError = true
			mc.recordFailure(s)
		}
	}

	if sawTransportError {
		return nil, nzberrors.ErrServerUnavailable
	}
	mc.MissingCache.Add(articleID)
	return nil, nzberrors.NewArticleNotFound(articleID)
}

// Stat performs an existence probe (STAT) with the same fan-out/health/cache
// policy as Body, without transferring the article body.
func (mc *MultiClient) Stat(ctx context.Context, articleID string) error {
	if mc.MissingCache.Contains(articleID) {
		return nzberrors.NewArticleNotFound(articleID)
	}
	if mc.HealthyCache.Contains(articleID) {
		return nil
	}

	snapshot := mc.snapshot()
	sawTransportError := false

	for _, s := range snapshot {
		if s.healthSnapshot().Unavailable {
			continue
		}

		conn, err := s.pool.Acquire(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			sawTransportError = true
			mc.recordFailure(s)
			continue
		}

		err = conn.Stat(ctx, articleID)
		switch {
		case err == nil:
			s.pool.Release(conn, true)
			mc.recordSuccess(s)
			mc.HealthyCache.Add(articleID)
			return nil
		case errors.Is(err, ErrArticleMissing):
			s.pool.Release(conn, true)
			continue
		default:
			s.pool.Release(conn, false)
			sawTransportError = true
			mc.recordFailure(s)
		}
	}

	if sawTransportError {
		return nzberrors.ErrServerUnavailable
	}
	mc.MissingCache.Add(articleID)
	return nzberrors.NewArticleNotFound(articleID)
}

func (mc *MultiClient) snapshot() []*server {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	out := make([]*server, len(mc.servers))
	copy(out, mc.servers)
	return out
}

func (s *server) healthSnapshot() ServerHealth {
	return s.health
}

func (mc *MultiClient) recordSuccess(s *server) {
	mc.mu.Lock()
	s.health.ConsecutiveFailures = 0
	s.health.TotalSuccesses++
	s.health.LastSuccessAt = time.Now()
	s.health.Unavailable = false
	mc.mu.Unlock()
}

func (mc *MultiClient) recordFailure(s *server) {
	mc.mu.Lock()
	s.health.ConsecutiveFailures++
	s.health.TotalFailures++
	s.health.LastFailureAt = time.Now()
	becameUnavailable := false
	if s.health.ConsecutiveFailures >= unavailableThreshold && !s.health.Unavailable {
		s.health.Unavailable = true
		becameUnavailable = true
	}
	mc.mu.Unlock()

	if becameUnavailable {
		mc.HealthyCache = freshCacheLike(mc.HealthyCache)
		if mc.OnServerUnavailable != nil {
			mc.OnServerUnavailable(s.cfg.ID)
		}
	}
}

// Health returns a snapshot of per-server health, keyed by server ID.
func (mc *MultiClient) Health() map[string]ServerHealth {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	out := make(map[string]ServerHealth, len(mc.servers))
	for _, s := range mc.servers {
		out[s.cfg.ID] = s.health
	}
	return out
}

// PoolState returns the PoolState for a given server ID, or the zero value
// if unknown.
func (mc *MultiClient) PoolState(serverID string, reserved int) PoolState {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	for _, s := range mc.servers {
		if s.cfg.ID == serverID {
			return s.pool.State(reserved)
		}
	}
	return PoolState{}
}
