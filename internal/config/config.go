// Package config defines service configuration and how it is loaded.
package config

import (
	"time"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`
	// LogFile, when set, receives a rotated copy of the log.
	LogFile string `koanf:"log_file"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr" validate:"required"`

	// MatchThreshold is the confidence a match must exceed.
	MatchThreshold float64 `koanf:"match_threshold" validate:"gt=0,lt=1"`
	// PollIntervalMS is the recognition tick period.
	PollIntervalMS int `koanf:"poll_interval_ms" validate:"gte=1000,lte=1500"`
	// CooldownMS suppresses repeat triggers of the same identity.
	CooldownMS int `koanf:"cooldown_ms" validate:"gte=0"`
	// CaptureWindowMS bounds descriptor capture during registration.
	CaptureWindowMS int `koanf:"capture_window_ms" validate:"gte=2000,lte=5000"`
	// StartTimeoutMS bounds camera warm-up on start.
	StartTimeoutMS int `koanf:"start_timeout_ms" validate:"gt=0"`

	CameraURL          string `koanf:"camera_url" validate:"required,url"`
	ExtractorURL       string `koanf:"extractor_url" validate:"required,url"`
	ExtractorTimeoutMS int    `koanf:"extractor_timeout_ms" validate:"gt=0"`
	// FrameMaxEdge is the longest frame edge sent to the extractor.
	FrameMaxEdge int `koanf:"frame_max_edge" validate:"gte=64"`

	// SinkURL receives new records. Empty disables delivery.
	SinkURL       string `koanf:"sink_url" validate:"omitempty,url"`
	SinkTimeoutMS int    `koanf:"sink_timeout_ms" validate:"gt=0"`

	StoreDriver string `koanf:"store_driver" validate:"oneof=memory sqlite"`
	SQLitePath  string `koanf:"sqlite_path"`
	// Timezone defines calendar days for attendance, e.g. "Europe/Berlin".
	Timezone string `koanf:"timezone" validate:"omitempty,timezone"`

	DeliveryQueueSize int `koanf:"delivery_queue_size" validate:"gt=0"`
	DeliveryWorkers   int `koanf:"delivery_workers" validate:"gt=0"`
	RelayQueueSize    int `koanf:"relay_queue_size" validate:"gt=0"`
	RelaySeenTTLMS    int `koanf:"relay_seen_ttl_ms" validate:"gte=0"`

	// ReportSchedule is the cron expression of the daily summary. Empty disables it.
	ReportSchedule string `koanf:"report_schedule"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		Addr:               ":9080",
		MatchThreshold:     0.6,
		PollIntervalMS:     1500,
		CooldownMS:         5000,
		CaptureWindowMS:    3000,
		StartTimeoutMS:     5000,
		CameraURL:          "http://127.0.0.1:8081/snapshot.jpg",
		ExtractorURL:       "http://127.0.0.1:8082/extract",
		ExtractorTimeoutMS: 3000,
		FrameMaxEdge:       640,
		SinkTimeoutMS:      5000,
		StoreDriver:        StoreMemory,
		SQLitePath:         "facecheck.db",
		Timezone:           "Local",
		DeliveryQueueSize:  1024,
		DeliveryWorkers:    2,
		RelayQueueSize:     1024,
		RelaySeenTTLMS:     int((48 * time.Hour).Milliseconds()),
		ReportSchedule:     "55 23 * * *",
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Ms converts a millisecond setting to a Duration.
func Ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
