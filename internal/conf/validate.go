// validate.go validation of user provided settings
package conf

import (
	"fmt"
	"time"
)

// ValidateSettings checks the loaded settings for values the pipeline cannot
// operate with. It returns the first problem found.
func ValidateSettings(settings *Settings) error {
	if err := validateCameraSettings(&settings.Camera); err != nil {
		return err
	}
	if err := validateDetectionSettings(&settings.Detection); err != nil {
		return err
	}
	if err := validateRetentionSettings(&settings.Output.Retention); err != nil {
		return err
	}
	if settings.Inference.URL == "" {
		return fmt.Errorf("inference.url must be set")
	}
	return nil
}

func validateCameraSettings(camera *CameraSettings) error {
	if camera.Source == "" {
		return fmt.Errorf("camera.source must be set")
	}
	if camera.Width <= 0 || camera.Height <= 0 {
		return fmt.Errorf("camera resolution must be positive, got %dx%d", camera.Width, camera.Height)
	}
	if camera.ReadTimeout <= 0 {
		return fmt.Errorf("camera.readtimeout must be positive")
	}
	if camera.Staleness <= 0 {
		return fmt.Errorf("camera.staleness must be positive")
	}
	if camera.WarmupFrames < 0 {
		return fmt.Errorf("camera.warmupframes must not be negative")
	}
	return nil
}

func validateDetectionSettings(detection *DetectionSettings) error {
	if detection.Threshold < 0 || detection.Threshold > 1 {
		return fmt.Errorf("detection.threshold must be between 0 and 1, got %f", detection.Threshold)
	}
	if detection.Interval <= 0 {
		return fmt.Errorf("detection.interval must be positive, got %f", detection.Interval)
	}
	return nil
}

func validateRetentionSettings(retention *RetentionSettings) error {
	switch retention.Policy {
	case "none", "age", "count", "usage":
	default:
		return fmt.Errorf("unknown retention policy %q", retention.Policy)
	}
	if retention.Policy == "age" {
		if _, err := time.ParseDuration(retention.MaxAge); err != nil {
			return fmt.Errorf("invalid retention.maxage %q: %w", retention.MaxAge, err)
		}
	}
	if retention.Policy == "count" && retention.MaxCount <= 0 {
		return fmt.Errorf("retention.maxcount must be positive for the count policy")
	}
	if retention.Policy == "usage" && (retention.MaxUsage <= 0 || retention.MaxUsage > 100) {
		return fmt.Errorf("retention.maxusage must be a percentage between 0 and 100")
	}
	return nil
}
