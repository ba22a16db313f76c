// Package prune implements the one-shot retention command.
package prune

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/skywatch/skywatch-go/internal/conf"
	"github.com/skywatch/skywatch-go/internal/datastore"
	"github.com/skywatch/skywatch-go/internal/logging"
	"github.com/skywatch/skywatch-go/internal/orchestrator"
)

// Command returns the prune subcommand. It applies the configured retention
// policy once and exits, useful from cron on nodes that run the watcher
// rarely.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Apply the retention policy to stored detections and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(settings)
		},
	}
}

func runPrune(settings *conf.Settings) error {
	log := logging.ForService("prune")
	if log == nil {
		log = slog.Default()
	}

	policy, err := orchestrator.RetentionPolicy(settings.Output.Retention)
	if err != nil {
		return err
	}
	if policy.Policy == "" || policy.Policy == "none" {
		log.Info("retention policy is none, nothing to do")
		return nil
	}

	store := datastore.NewSQLiteStore(settings.Output.SQLite.Path, settings.Output.Snapshots.Path)
	if err := store.Open(); err != nil {
		return fmt.Errorf("failed to open detection store: %w", err)
	}
	defer store.Close() //nolint:errcheck

	deleted, err := store.Prune(policy)
	if err != nil {
		return fmt.Errorf("prune failed: %w", err)
	}
	log.Info("prune complete", "policy", policy.Policy, "deleted", deleted)
	return nil
}
