package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Settings holds all agent configuration read from REMDESK_* environment
// variables.
type Settings struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8090"`
	Shell      string `envconfig:"SHELL" default:"/bin/bash"`

	// Recording settings
	RecordingsDir        string        `envconfig:"RECORDINGS_DIR" default:"/var/lib/remdesk/recordings"`
	ProfileFolders       bool          `envconfig:"PROFILE_FOLDERS" default:"true"`
	MaxRecordingDuration time.Duration `envconfig:"MAX_RECORDING_DURATION" default:"4h"`
	MotionPauseDelay     time.Duration `envconfig:"MOTION_PAUSE_DELAY" default:"10s"`
	RetentionDays        int           `envconfig:"RETENTION_DAYS" default:"30"`
	SweepSchedule        string        `envconfig:"SWEEP_SCHEDULE" default:"0 3 * * *"`

	// Port of the machine-local VNC server, used when a tunnel request
	// names no target or a loopback target.
	VNCPort int `envconfig:"VNC_PORT" default:"5900"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Settings {
	var s Settings
	if err := envconfig.Process("REMDESK", &s); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return s
}
