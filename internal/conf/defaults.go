// defaults.go default values for viper settings
package conf

import "github.com/spf13/viper"

// setDefaultConfig sets the default values for all configuration keys.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "SkyWatch")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "skywatch.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 10*1024*1024)

	viper.SetDefault("camera.source", "/dev/video0")
	viper.SetDefault("camera.ffmpegpath", "ffmpeg")
	viper.SetDefault("camera.transport", "tcp")
	viper.SetDefault("camera.width", 1280)
	viper.SetDefault("camera.height", 720)
	viper.SetDefault("camera.fps", 5)
	viper.SetDefault("camera.readtimeout", 5)
	viper.SetDefault("camera.staleness", 30)
	viper.SetDefault("camera.warmupframes", 10)
	viper.SetDefault("camera.maxreadretries", 3)

	viper.SetDefault("inference.url", "http://localhost:8501")
	viper.SetDefault("inference.timeout", 15)
	viper.SetDefault("inference.warmuppasses", 3)

	viper.SetDefault("detection.threshold", 0.6)
	viper.SetDefault("detection.interval", 1.0)
	viper.SetDefault("detection.classes", []string{})
	viper.SetDefault("detection.minboxarea", 0)

	viper.SetDefault("alerts.mininterval", 300)
	viper.SetDefault("alerts.shoutrrr.enabled", false)
	viper.SetDefault("alerts.shoutrrr.urls", []string{})
	viper.SetDefault("alerts.shoutrrr.timeout", 10)
	viper.SetDefault("alerts.webhook.enabled", false)
	viper.SetDefault("alerts.webhook.url", "")
	viper.SetDefault("alerts.webhook.timeout", 10)
	viper.SetDefault("alerts.mqtt.enabled", false)
	viper.SetDefault("alerts.mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("alerts.mqtt.topic", "skywatch/detections")
	viper.SetDefault("alerts.mqtt.timeout", 10)
	viper.SetDefault("alerts.command.enabled", false)
	viper.SetDefault("alerts.command.command", "")
	viper.SetDefault("alerts.command.timeout", 30)
	// Audio alarms are cheap, let them fire on every detection by default.
	viper.SetDefault("alerts.command.mininterval", 0)

	viper.SetDefault("output.sqlite.path", "skywatch.db")
	viper.SetDefault("output.snapshots.path", "snapshots")
	viper.SetDefault("output.retention.policy", "count")
	viper.SetDefault("output.retention.maxage", "720h")
	viper.SetDefault("output.retention.maxcount", 10000)
	viper.SetDefault("output.retention.maxusage", 90.0)
	viper.SetDefault("output.retention.pruneevery", 100)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
}
