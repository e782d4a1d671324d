// Command nzbstream is the process composition root: it loads
// configuration, wires the logger and notification hub, and (when a
// persistence adapter is injected by the surrounding deployment) starts
// the repair scheduler and mounts the notification websocket endpoint.
//
// SQLite persistence, the arr HTTP clients, and the WebDAV/SABnzbd framing
// this binary would sit behind are external collaborators (out of this
// module's scope) and are injected through the ports package rather than
// constructed here.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"nzbstream/internal/config"
	"nzbstream/internal/logging"
	"nzbstream/internal/notify"
	"nzbstream/internal/ports"
	"nzbstream/internal/repair"
)

// Store and MigrationRunner are injection points for the external
// persistence layer. A deployment embedding this module sets these before
// calling Execute; left nil here since SQLite persistence is out of scope
// for this module (see DESIGN.md).
var (
	Store           ports.SegmentStore
	MigrationRunner ports.MigrationRunner
	Checker         repair.ArticleChecker
	Linker          repair.LibraryLinker
	ArrClients      map[string]repair.ArrClient
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var migrationTarget string

	cmd := &cobra.Command{
		Use:   "nzbstream",
		Short: "On-demand virtual-file streaming engine over NZB/Usenet articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			if migrationTarget != "" {
				return runMigration(cmd.Context(), migrationTarget)
			}
			return runServe(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&migrationTarget, "db-migration", "", "run the persistence layer's migration to the named target and exit")
	return cmd
}

func runMigration(ctx context.Context, target string) error {
	if MigrationRunner == nil {
		return fmt.Errorf("nzbstream: --db-migration requires a MigrationRunner to be injected at build time")
	}
	return MigrationRunner.Migrate(ctx, target)
}

func runServe(ctx context.Context) error {
	config.LoadDotEnv()
	provider := config.NewProvider()
	snap := provider.Snapshot()

	hub := notify.NewHub(nil)
	logging.SetBroadcast(func(line string) {
		hub.Notify(ctx, "log", line)
	})
	log := logging.Init("INFO")
	log.Info("starting nzbstream", "mount_dir", snap.MountDir, "connections_per_stream", snap.ConnectionsPerStream)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeHTTP)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if Store != nil && Checker != nil {
		cfg := repair.Config{
			Enabled:               snap.RepairEnabled,
			MaxConnections:        snap.RepairConnections,
			ParallelFiles:         snap.RepairParallelFiles,
			SamplingRate:          snap.RepairSamplingRate,
			MinSegments:           snap.RepairMinSegments,
			AdaptiveSampling:      snap.RepairAdaptiveSampling,
			BlacklistedExtensions: extensionSet(snap.DownloadExtensionBlacklist),
		}
		sched := repair.New(cfg, repairStoreAdapter{Store}, Checker, Linker, ArrClients, hub, log)
		go sched.Run(ctx)
		defer sched.Stop()
	} else {
		log.Warn("no persistence adapter injected, repair scheduler disabled")
	}

	srv := &http.Server{Addr: ":8080", Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	log.Info("listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		set[e] = struct{}{}
	}
	return set
}

// repairStoreAdapter narrows ports.SegmentStore to the repair.Store
// surface, since the full SegmentStore interface carries methods (like
// GetContainerEntry) the repair loop never calls.
type repairStoreAdapter struct {
	ports.SegmentStore
}
