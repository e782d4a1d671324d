// Package ports defines the external collaborator interfaces the core
// streaming engine consumes but never implements: persistence, live
// configuration, the arr-family media managers, and the browser-facing
// notification channel. The SQLite and HTTP-client adapters live outside
// this module, and internal/notify's Hub is the websocket NotificationSink;
// these interfaces are the seam.
package ports

import (
	"context"
	"time"

	"nzbstream/internal/container"
	"nzbstream/internal/repair"
	"nzbstream/internal/segment"
)

// SegmentStore is the read path into whatever persistence layer holds
// parsed NZB metadata. The repair loop's queue/record types are defined in
// internal/repair, not here, to keep the import direction one-way: ports
// depends on repair, repair never depends on ports.
type SegmentStore interface {
	GetNzbFile(ctx context.Context, fileID string) (*segment.VirtualFile, error)
	GetMultipartFile(ctx context.Context, fileID string) (*segment.MultipartVirtualFile, error)
	GetContainerEntry(ctx context.Context, fileID string) (*container.Entry, error)
	GetHealthCheckQueueItems(ctx context.Context, limit int) ([]repair.QueueItem, error)
	UpdateHealthCheck(ctx context.Context, fileID string, rec repair.HealthCheckRecord) error
	DeleteFile(ctx context.Context, fileID string) error
}

// ConfigSnapshot is a frozen read of live configuration, taken once per
// operation so a running stream or repair cycle never observes a config
// value change mid-flight.
type ConfigSnapshot struct {
	ConnectionsPerStream int
	MountDir             string
	MinWorkerThreads     int
	MinIOThreads         int
	MaxIOThreads         int

	RepairEnabled               bool
	RepairConnections           int
	RepairParallelFiles         int
	RepairSamplingRate          float64
	RepairMinSegments           int
	RepairAdaptiveSampling      bool
	RepairCacheEnabled          bool
	RepairCacheTTL              time.Duration
	DownloadExtensionBlacklist  []string
}

// ConfigProvider hands out the current ConfigSnapshot. Implementations may
// reload from the environment or a file on a background watch; callers
// never see a torn read across fields.
type ConfigProvider interface {
	Snapshot() ConfigSnapshot
}

// ArrClient is the narrow surface of an external *arr media manager the
// repair loop drives when a file it manages needs replacing.
type ArrClient interface {
	ListRootFolders(ctx context.Context) ([]string, error)
	RemoveAndSearch(ctx context.Context, linkPath string) (bool, error)
}

// NotificationSink delivers a short status event to whatever UI or log
// sink is listening (websocket hub, structured log, metrics counter).
type NotificationSink interface {
	Notify(ctx context.Context, topic string, payload any)
}

// MigrationRunner is invoked by cmd/nzbstream's --db-migration flag; the
// actual migration engine lives in the external persistence layer.
type MigrationRunner interface {
	Migrate(ctx context.Context, target string) error
}
