// config.go: settings for the SkyWatch application, loaded with viper and
// shared through a package level accessor.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Log rotation types
const (
	RotationDaily  = "daily"
	RotationWeekly = "weekly"
	RotationSize   = "size"
)

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled  bool   // true to enable this log
	Path     string // path to log file
	Rotation string // rotation type: daily, weekly or size
	MaxSize  int64  // max size in bytes for size rotation
}

// CameraSettings contains settings for the camera frame source.
type CameraSettings struct {
	Source         string // V4L2 device path or RTSP URL
	FfmpegPath     string // path to ffmpeg binary, runtime value
	Transport      string // RTSP transport (tcp/udp), ignored for devices
	Width          int    // capture width in pixels
	Height         int    // capture height in pixels
	FPS            int    // capture framerate
	ReadTimeout    int    // seconds to wait for a single frame before timing out
	Staleness      int    // seconds without a frame before the camera is considered dead
	WarmupFrames   int    // frames discarded after connect for auto-exposure to settle
	MaxReadRetries int    // in-place retries on frame read timeout before reconnecting
}

// InferenceSettings contains settings for the detection model server.
type InferenceSettings struct {
	URL          string // base URL of the model server
	Timeout      int    // request timeout in seconds
	WarmupPasses int    // synthetic inference passes before the loop starts
}

// DetectionSettings contains the decision policy applied to raw detections.
type DetectionSettings struct {
	Threshold  float64  // minimum confidence for a detection to be accepted
	Interval   float64  // detection loop interval in seconds
	Classes    []string // class labels to accept, empty accepts all
	MinBoxArea int      // minimum bounding box area in pixels, 0 disables
}

// ChannelSettings are common per-channel alert settings.
type ChannelSettings struct {
	Enabled     bool
	MinInterval int // minimum seconds between alerts per class, 0 uses the default
	Timeout     int // per-send timeout in seconds
}

// AlertsSettings contains settings for the alert dispatcher and its channels.
type AlertsSettings struct {
	MinInterval int // default minimum seconds between alerts per (class, channel)

	Shoutrrr struct {
		ChannelSettings `yaml:",inline" mapstructure:",squash"`
		URLs            []string // shoutrrr service URLs
	}

	Webhook struct {
		ChannelSettings `yaml:",inline" mapstructure:",squash"`
		URL             string // endpoint receiving the detection JSON
	}

	MQTT struct {
		ChannelSettings `yaml:",inline" mapstructure:",squash"`
		Broker          string
		Topic           string
		Username        string
		Password        string
	}

	Command struct {
		ChannelSettings `yaml:",inline" mapstructure:",squash"`
		Command         string   // command to run, e.g. a sound player
		Args            []string // extra arguments passed before detection env vars
	}
}

// RetentionSettings control pruning of old detections and snapshots.
type RetentionSettings struct {
	Policy     string  // "none", "age", "count" or "usage"
	MaxAge     string  // maximum detection age, e.g. "720h", for the age policy
	MaxCount   int     // maximum detections to keep for the count policy
	MaxUsage   float64 // maximum disk usage percent for the usage policy
	PruneEvery int     // run a prune pass every N appends
}

// OutputSettings contains persistence settings.
type OutputSettings struct {
	SQLite struct {
		Path string // path to sqlite database
	}
	Snapshots struct {
		Path string // directory for detection snapshot images
	}
	Retention RetentionSettings
}

// Settings contains all application settings
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version   string `yaml:"-"`
	BuildDate string `yaml:"-"`

	Main struct {
		Name string    // name of this SkyWatch node
		Log  LogConfig // logging configuration
	}

	Camera    CameraSettings
	Inference InferenceSettings
	Detection DetectionSettings
	Alerts    AlertsSettings
	Output    OutputSettings

	WebServer struct {
		Enabled bool
		Port    string
	}
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment into a Settings struct.
func Load() (*Settings, error) {
	settings := &Settings{}

	initViper()

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()
	return settings, nil
}

// initViper configures viper search paths, env binding and defaults.
func initViper() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths := configDirs()
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("SKYWATCH")
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "error reading config file: %v\n", err)
		}
		// Missing config file is fine, defaults apply.
	}
}

// configDirs returns the config file search paths in priority order.
func configDirs() []string {
	dirs := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "skywatch"))
	}
	dirs = append(dirs, "/etc/skywatch")
	return dirs
}

// Setting returns the shared Settings instance, loading it on first use.
func Setting() *Settings {
	settingsMutex.RLock()
	if settingsInstance != nil {
		defer settingsMutex.RUnlock()
		return settingsInstance
	}
	settingsMutex.RUnlock()

	s, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading settings: %v\n", err)
		return &Settings{}
	}
	return s
}
