// Package repair implements the background health-check/repair loop: a
// single scheduler goroutine that periodically samples each due file's
// articles for availability, repairing or deleting files whose articles
// have expired off the provider. Grounded on javi11-altmount's
// internal/health package (scheduler.go's next-check formula shape,
// worker.go's single-loop-with-stats and conc-based fan-out, checker.go's
// per-file check/repair split), adapted to this module's own algorithm.
package repair

import (
	"context"
	"time"

	"nzbstream/internal/segment"
)

// Status is the outcome recorded for one performHealthCheck run.
type Status string

const (
	StatusHealthy      Status = "healthy"
	StatusRepaired     Status = "repaired"
	StatusDeleted      Status = "deleted"
	StatusActionNeeded Status = "action_needed"
)

// QueueItem is one file due for a health check, as returned by
// Store.GetHealthCheckQueueItems (ordered by nextCheck, then releaseDate
// desc — a single ordered database query suffices to produce the batch).
type QueueItem struct {
	FileID      string
	ReleaseDate time.Time
	LibraryPath string // empty if no library link exists
	Extension   string // used against the download-extension blacklist
}

// HealthCheckRecord is the persisted outcome of one check.
type HealthCheckRecord struct {
	Status    Status
	LastCheck time.Time
	// NextCheck is nil when frozen (ActionNeeded — excluded from the queue
	// until explicitly re-admitted).
	NextCheck *time.Time
	Detail    string
}

// Store is the subset of the persistence port the repair loop consumes.
type Store interface {
	GetNzbFile(ctx context.Context, fileID string) (*segment.VirtualFile, error)
	GetHealthCheckQueueItems(ctx context.Context, limit int) ([]QueueItem, error)
	UpdateHealthCheck(ctx context.Context, fileID string, rec HealthCheckRecord) error
	DeleteFile(ctx context.Context, fileID string) error
}

// ArrClient is the narrow surface of an external media-manager client the
// repair loop drives.
type ArrClient interface {
	ListRootFolders(ctx context.Context) ([]string, error)
	// RemoveAndSearch asks the client to remove linkPath's item and search
	// for a replacement. false means "I could not find that item" — the
	// loop falls through to delete.
	RemoveAndSearch(ctx context.Context, linkPath string) (bool, error)
}

// LibraryLinker resolves which (if any) external arr-client owns a file's
// library link.
type LibraryLinker interface {
	// Owner returns the arr-client name owning linkPath, or ok=false if
	// none of the configured clients recognize it.
	Owner(ctx context.Context, linkPath string) (clientName string, ok bool, err error)
}

// Notifier emits the short status topic messages
// (qs|qp|qa|qr|ha|hr|hs|hp|queue-error). internal/notify's Hub (a
// ports.NotificationSink) satisfies this structurally — no import needed in either direction.
type Notifier interface {
	Notify(ctx context.Context, topic string, payload any)
}

// Config mirrors the repair.* configuration options.
type Config struct {
	Enabled              bool
	MaxConnections       int // repair.connections: total connections the repair loop may use across all servers
	ParallelFiles        int // repair.parallel-files, clamped to [1, 10]
	SamplingRate         float64 // repair.sampling-rate, clamped to [0.05, 1.0]
	MinSegments          int     // repair.min-segments, clamped to [1, 100]
	AdaptiveSampling     bool
	BlacklistedExtensions map[string]struct{} // api.download-extension-blacklist
}

// Clamp enforces the config table's documented bounds.
func (c *Config) Clamp() {
	if c.ParallelFiles < 1 {
		c.ParallelFiles = 1
	}
	if c.ParallelFiles > 10 {
		c.ParallelFiles = 10
	}
	if c.SamplingRate < 0.05 {
		c.SamplingRate = 0.05
	}
	if c.SamplingRate > 1.0 {
		c.SamplingRate = 1.0
	}
	if c.MinSegments < 1 {
		c.MinSegments = 1
	}
	if c.MinSegments > 100 {
		c.MinSegments = 100
	}
}
