package config

import "time"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything
// else (listen address, audio format, feature and model shape) requires
// a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ThresholdChanged bool
	NewThreshold     float64

	TelemetryIntervalChanged bool
	NewTelemetryInterval     time.Duration
}

// Any reports whether at least one hot-reloadable field changed.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.ThresholdChanged || d.TelemetryIntervalChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Recognition.Threshold != new.Recognition.Threshold {
		d.ThresholdChanged = true
		d.NewThreshold = new.Recognition.Threshold
	}

	if old.Telemetry.Interval != new.Telemetry.Interval {
		d.TelemetryIntervalChanged = true
		d.NewTelemetryInterval = new.Telemetry.Interval
	}

	return d
}
