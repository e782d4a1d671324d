// Package config loads the ports.ConfigSnapshot this module needs from the
// environment, using a single parse-once env-var table with typed getEnv*
// helpers, and loading a .env file via godotenv before reading os.Getenv.
package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"

	"nzbstream/internal/ports"
)

// Environment variable names (single source of truth).
const (
	EnvConnectionsPerStream = "CONNECTIONS_PER_STREAM"
	EnvMountDir             = "MOUNT_DIR"
	EnvMinWorkerThreads     = "MIN_WORKER_THREADS"
	EnvMinIOThreads         = "MIN_IO_THREADS"
	EnvMaxIOThreads         = "MAX_IO_THREADS"

	EnvRepairEnabled          = "REPAIR_ENABLE"
	EnvRepairConnections      = "REPAIR_CONNECTIONS"
	EnvRepairParallelFiles    = "REPAIR_PARALLEL_FILES"
	EnvRepairSamplingRate     = "REPAIR_SAMPLING_RATE"
	EnvRepairMinSegments      = "REPAIR_MIN_SEGMENTS"
	EnvRepairAdaptiveSampling = "REPAIR_ADAPTIVE_SAMPLING"
	EnvRepairCacheEnabled     = "REPAIR_CACHE_ENABLED"
	EnvRepairCacheTTLHours    = "REPAIR_CACHE_TTL_HOURS"

	EnvDownloadExtensionBlacklist = "API_DOWNLOAD_EXTENSION_BLACKLIST"
)

// LoadDotEnv loads a .env file if present, falling through to real
// environment variables on a best-effort basis.
func LoadDotEnv() {
	_ = godotenv.Load()
}

func defaultSnapshot() ports.ConfigSnapshot {
	return ports.ConfigSnapshot{
		ConnectionsPerStream: 5,
		MountDir:             "/mnt/nzbstream",
		MinWorkerThreads:     4,
		MinIOThreads:         4,
		MaxIOThreads:         64,

		RepairEnabled:          false,
		RepairConnections:      4,
		RepairParallelFiles:    2,
		RepairSamplingRate:     0.1,
		RepairMinSegments:      5,
		RepairAdaptiveSampling: true,
		RepairCacheEnabled:     true,
		RepairCacheTTL:         6 * time.Hour,
	}
}

func readSnapshot() ports.ConfigSnapshot {
	s := defaultSnapshot()

	s.ConnectionsPerStream = getEnvInt(EnvConnectionsPerStream, s.ConnectionsPerStream)
	s.MountDir = getEnv(EnvMountDir, s.MountDir)
	s.MinWorkerThreads = getEnvInt(EnvMinWorkerThreads, s.MinWorkerThreads)
	s.MinIOThreads = getEnvInt(EnvMinIOThreads, s.MinIOThreads)
	s.MaxIOThreads = getEnvInt(EnvMaxIOThreads, s.MaxIOThreads)

	s.RepairEnabled = getEnvBool(EnvRepairEnabled, s.RepairEnabled)
	s.RepairConnections = getEnvInt(EnvRepairConnections, s.RepairConnections)
	s.RepairParallelFiles = getEnvInt(EnvRepairParallelFiles, s.RepairParallelFiles)
	s.RepairSamplingRate = getEnvFloat(EnvRepairSamplingRate, s.RepairSamplingRate)
	s.RepairMinSegments = getEnvInt(EnvRepairMinSegments, s.RepairMinSegments)
	s.RepairAdaptiveSampling = getEnvBool(EnvRepairAdaptiveSampling, s.RepairAdaptiveSampling)
	s.RepairCacheEnabled = getEnvBool(EnvRepairCacheEnabled, s.RepairCacheEnabled)
	if hours := getEnvInt(EnvRepairCacheTTLHours, -1); hours >= 0 {
		s.RepairCacheTTL = time.Duration(hours) * time.Hour
	}

	if v := os.Getenv(EnvDownloadExtensionBlacklist); v != "" {
		parts := strings.Split(v, ",")
		exts := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				exts = append(exts, p)
			}
		}
		s.DownloadExtensionBlacklist = exts
	}

	return s
}

// Provider is a ports.ConfigProvider backed by an atomically-swapped
// snapshot, so Reload can be called from a signal handler or a file
// watcher without readers ever observing a torn struct.
type Provider struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[ports.ConfigSnapshot]
}

// NewProvider builds a Provider with one snapshot read from the current
// environment.
func NewProvider() *Provider {
	p := &Provider{}
	snap := readSnapshot()
	p.snapshot.Store(&snap)
	return p
}

// Snapshot implements ports.ConfigProvider.
func (p *Provider) Snapshot() ports.ConfigSnapshot {
	return *p.snapshot.Load()
}

// Reload re-reads the environment and atomically swaps the snapshot.
func (p *Provider) Reload() {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := readSnapshot()
	p.snapshot.Store(&snap)
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.ToLower(v) == "true" || v == "1"
	}
	return defaultVal
}
