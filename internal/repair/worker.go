package repair

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
)

// Scheduler runs the background repair loop: a single goroutine that wakes
// on an interval, pulls due files from the store, and fans out per-file
// checks. Grounded on javi11-altmount's internal/health.HealthWorker — the
// ticker-loop-with-cycleRunning-guard shape and conc-based per-file fan-out
// carry over; the next-check formula and sampling tiers are this module's
// own rules (see scheduler.go).
type Scheduler struct {
	cfg        Config
	store      Store
	checker    ArticleChecker
	linker     LibraryLinker
	arrClients map[string]ArrClient
	notifier   Notifier
	log        *slog.Logger

	tickInterval time.Duration
	batchSize    int

	stop chan struct{}
	done chan struct{}
}

// New builds a Scheduler. arrClients maps the client names LibraryLinker.Owner
// returns to the ArrClient that owns them.
func New(cfg Config, store Store, checker ArticleChecker, linker LibraryLinker, arrClients map[string]ArrClient, notifier Notifier, log *slog.Logger) *Scheduler {
	cfg.Clamp()
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cfg:          cfg,
		store:        store,
		checker:      checker,
		linker:       linker,
		arrClients:   arrClients,
		notifier:     notifier,
		log:          log.With("component", "repair"),
		tickInterval: time.Minute,
		batchSize:    cfg.ParallelFiles,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (s *Scheduler) notify(ctx context.Context, topic, fileID string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, topic, map[string]string{"fileID": fileID})
}

// Run blocks until ctx is canceled or Stop is called. Disabled loops sleep
// in 5s increments and run no cycle; cfg is fixed when the Scheduler is
// built, so a later config change does not enable it.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)
	for {
		if !s.cfg.Enabled {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-time.After(5 * time.Second):
				continue
			}
		}

		s.runCycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-time.After(s.tickInterval):
		}
	}
}

// Stop signals Run to exit and waits for it to return.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) runCycle(ctx context.Context) {
	items, err := s.store.GetHealthCheckQueueItems(ctx, s.batchSize)
	if err != nil {
		s.log.Error("queue fetch failed", "error", err)
		s.notify(ctx, "queue-error", "")
		return
	}
	if len(items) == 0 {
		return
	}
	s.notify(ctx, "qs", "")

	sem := make(chan struct{}, s.cfg.ParallelFiles)
	var mu sync.Mutex
	var deleted, repaired, actionNeeded int

	wg := conc.NewWaitGroup()
	for _, item := range items {
		item := item
		wg.Go(func() {
			sem <- struct{}{}
			defer func() { <-sem }()

			rec := s.performHealthCheck(ctx, item)
			if err := s.store.UpdateHealthCheck(ctx, item.FileID, rec); err != nil {
				s.log.Error("update health check failed", "file", item.FileID, "error", err)
			}

			mu.Lock()
			switch rec.Status {
			case StatusDeleted:
				deleted++
			case StatusRepaired:
				repaired++
			case StatusActionNeeded:
				actionNeeded++
			}
			mu.Unlock()

			switch rec.Status {
			case StatusHealthy:
				s.notify(ctx, "hs", item.FileID)
			case StatusActionNeeded:
				s.notify(ctx, "ha", item.FileID)
			}
		})
	}
	wg.Wait()

	s.log.Info("repair cycle complete", "checked", len(items), "deleted", deleted, "repaired", repaired, "action_needed", actionNeeded)
	s.notify(ctx, "qp", "")
}
