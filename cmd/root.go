// Package cmd assembles the skywatch command line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skywatch/skywatch-go/cmd/prune"
	"github.com/skywatch/skywatch-go/cmd/watch"
	"github.com/skywatch/skywatch-go/internal/conf"
)

// RootCommand creates and returns the root command with all subcommands.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "skywatch",
		Short: "SkyWatch bird-of-prey camera watcher",
		Long:  "SkyWatch watches a camera feed for birds of prey and raises alerts when one appears.",
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	rootCmd.AddCommand(
		watch.Command(settings),
		prune.Command(settings),
	)

	return rootCmd
}

// setupFlags defines the global flags and binds them to viper so command
// line arguments take precedence over the config file.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Camera.Source, "source", viper.GetString("camera.source"), "Camera device path or RTSP URL")
	rootCmd.PersistentFlags().Float64VarP(&settings.Detection.Threshold, "threshold", "t", viper.GetFloat64("detection.threshold"), "Confidence threshold for detections, value between 0.0 and 1.0")
	rootCmd.PersistentFlags().Float64Var(&settings.Detection.Interval, "interval", viper.GetFloat64("detection.interval"), "Detection loop interval in seconds")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
