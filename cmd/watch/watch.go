// Package watch implements the realtime detection command.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skywatch/skywatch-go/internal/alert"
	"github.com/skywatch/skywatch-go/internal/conf"
	"github.com/skywatch/skywatch-go/internal/datastore"
	"github.com/skywatch/skywatch-go/internal/frame"
	"github.com/skywatch/skywatch-go/internal/httpapi"
	"github.com/skywatch/skywatch-go/internal/inference"
	"github.com/skywatch/skywatch-go/internal/logging"
	"github.com/skywatch/skywatch-go/internal/observability"
	"github.com/skywatch/skywatch-go/internal/orchestrator"
)

// Command returns the watch subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the camera feed and alert on detections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(settings)
		},
	}

	cmd.Flags().StringVar(&settings.Inference.URL, "inference-url", settings.Inference.URL, "Base URL of the model server")
	cmd.Flags().StringVar(&settings.Output.SQLite.Path, "db", settings.Output.SQLite.Path, "Path to the detection database")

	return cmd
}

// runWatch wires the pipeline together and runs it until SIGINT or SIGTERM.
func runWatch(settings *conf.Settings) error {
	log := logging.ForService("watch")
	if log == nil {
		log = slog.Default()
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	store := datastore.NewSQLiteStore(settings.Output.SQLite.Path, settings.Output.Snapshots.Path)
	if err := store.Open(); err != nil {
		return fmt.Errorf("failed to open detection store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close detection store", "error", err)
		}
	}()

	source := frame.NewFFmpegSource(settings.Camera)
	adapter := inference.NewHTTPAdapter(settings.Inference)
	dispatcher := alert.NewDispatcher(
		alert.ChannelsFromSettings(&settings.Alerts),
		conf.Seconds(settings.Alerts.MinInterval),
		metrics,
	)

	orch := orchestrator.New(source, adapter, store, dispatcher, conf.Setting, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if settings.WebServer.Enabled {
		server := httpapi.New(orch, metrics)
		go func() {
			if err := server.Start(settings.WebServer.Port); err != nil {
				log.Error("http server failed", "error", err)
			}
		}()
		defer func() {
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error("http server shutdown failed", "error", err)
			}
		}()
	}

	log.Info("starting detection loop", "source", settings.Camera.Source)
	return orch.Run(ctx)
}
