package repair

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"nzbstream/internal/nntp"
	"nzbstream/internal/nzberrors"
	"nzbstream/internal/segment"
)

// ArticleChecker probes whether a single article still exists on the
// provider. Success means at least one backend confirmed presence; an
// ArticleNotFoundError means every backend that answered said 430.
type ArticleChecker interface {
	Stat(ctx context.Context, articleID string) error
}

// performHealthCheck runs one file's sampled article probe and decides its
// resulting status.
func (s *Scheduler) performHealthCheck(ctx context.Context, item QueueItem) HealthCheckRecord {
	now := time.Now()
	vf, err := s.store.GetNzbFile(ctx, item.FileID)
	if err != nil {
		return HealthCheckRecord{Status: StatusActionNeeded, LastCheck: now, Detail: err.Error()}
	}

	age := now.Sub(item.ReleaseDate)
	rate := samplingRate(s.cfg.SamplingRate, age, s.cfg.AdaptiveSampling)
	indices := sampleSegments(len(vf.Segments), rate, s.cfg.MinSegments)

	missing := s.probeSegments(ctx, vf.Segments, indices)

	if len(missing) == 0 {
		next := computeNextCheck(now, item.ReleaseDate)
		return HealthCheckRecord{Status: StatusHealthy, LastCheck: now, NextCheck: &next}
	}

	return s.handleMissing(ctx, item, now, missing)
}

// probeSegments checks the sampled segment indices with up to
// floor(maxRepairConnections/k) connections in flight per file (k files
// concurrently in flight, at least 1), and returns the article IDs that
// came back not-found. Any other error is treated as inconclusive and
// skipped — a transient outage must not trigger repair.
func (s *Scheduler) probeSegments(ctx context.Context, segs []segment.Descriptor, indices []int) []string {
	ctx = nntp.WithReservedConnections(ctx, s.cfg.MaxConnections)

	conns := s.perFileConnections()
	p := pool.New().WithContext(ctx).WithMaxGoroutines(conns)

	var mu sync.Mutex
	var missing []string

	for _, idx := range indices {
		idx := idx
		articleID := string(segs[idx].ArticleID)
		p.Go(func(ctx context.Context) error {
			err := s.checker.Stat(ctx, articleID)
			if err == nil {
				return nil
			}
			if nzberrors.IsArticleNotFound(err) {
				mu.Lock()
				missing = append(missing, articleID)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = p.Wait()
	return missing
}

// perFileConnections is floor(maxRepairConnections/parallelFiles), at least 1.
func (s *Scheduler) perFileConnections() int {
	n := s.cfg.MaxConnections / s.cfg.ParallelFiles
	if n < 1 {
		n = 1
	}
	return n
}

func (s *Scheduler) handleMissing(ctx context.Context, item QueueItem, now time.Time, missing []string) HealthCheckRecord {
	if _, blacklisted := s.cfg.BlacklistedExtensions[normalizeExt(item.Extension)]; blacklisted {
		if err := s.store.DeleteFile(ctx, item.FileID); err != nil {
			return HealthCheckRecord{Status: StatusActionNeeded, LastCheck: now, Detail: err.Error()}
		}
		s.notify(ctx, "hr", item.FileID)
		return HealthCheckRecord{Status: StatusDeleted, LastCheck: now, Detail: "blacklisted extension, missing articles"}
	}

	if item.LibraryPath == "" {
		if err := s.store.DeleteFile(ctx, item.FileID); err != nil {
			return HealthCheckRecord{Status: StatusActionNeeded, LastCheck: now, Detail: err.Error()}
		}
		s.notify(ctx, "hr", item.FileID)
		return HealthCheckRecord{Status: StatusDeleted, LastCheck: now, Detail: "missing articles, no library link"}
	}

	if s.linker != nil {
		name, ok, err := s.linker.Owner(ctx, item.LibraryPath)
		if err != nil {
			return HealthCheckRecord{Status: StatusActionNeeded, LastCheck: now, Detail: err.Error()}
		}
		if ok {
			if client := s.arrClients[name]; client != nil {
				found, rerr := client.RemoveAndSearch(ctx, item.LibraryPath)
				if rerr != nil {
					return HealthCheckRecord{Status: StatusActionNeeded, LastCheck: now, Detail: rerr.Error()}
				}
				if found {
					s.notify(ctx, "hp", item.FileID)
					return HealthCheckRecord{Status: StatusRepaired, LastCheck: now, Detail: "arr-triggered replacement search"}
				}
			}
		}
	}

	if err := s.store.DeleteFile(ctx, item.FileID); err != nil {
		return HealthCheckRecord{Status: StatusActionNeeded, LastCheck: now, Detail: err.Error()}
	}
	s.notify(ctx, "hr", item.FileID)
	return HealthCheckRecord{Status: StatusDeleted, LastCheck: now, Detail: "library-owned repair failed, deleted"}
}

func normalizeExt(ext string) string {
	if ext == "" {
		return ""
	}
	if ext[0] != '.' {
		return "." + ext
	}
	return ext
}
