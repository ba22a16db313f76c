package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/skywatch/skywatch-go/cmd"
	"github.com/skywatch/skywatch-go/internal/conf"
	"github.com/skywatch/skywatch-go/internal/logging"
)

// version and buildDate are set at build time via ldflags.
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		logging.HumanReadable().Error("error loading configuration", "error", err)
		os.Exit(1)
	}
	settings.Version = version
	settings.BuildDate = buildDate

	if settings.Main.Log.Enabled {
		closeLog, err := logging.EnableFileLogging(settings.Main.Log)
		if err != nil {
			logging.HumanReadable().Error("error opening log file", "path", settings.Main.Log.Path, "error", err)
			os.Exit(1)
		}
		defer closeLog() //nolint:errcheck
	}

	rootCmd := cmd.RootCommand(settings)
	rootCmd.PersistentPreRun = func(_ *cobra.Command, _ []string) {
		if settings.Debug {
			logging.SetLevel(slog.LevelDebug)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
