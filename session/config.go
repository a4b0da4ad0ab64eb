package session

import (
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Config controls autosave.
type Config struct {
	// Debounce is the quiet period after the last edit before a save.
	Debounce time.Duration
	// VersionInterval writes a version every N successful saves. Zero disables.
	VersionInterval int
}

// DefaultConfig matches the editor's 3 second autosave.
var DefaultConfig = Config{Debounce: 3 * time.Second, VersionInterval: 10}

// ConfigFromEnv reads AUTOSAVE_DEBOUNCE and VERSION_INTERVAL, falling back
// to DefaultConfig for unset or invalid values.
func ConfigFromEnv() Config {
	cfg := DefaultConfig
	if v := os.Getenv("AUTOSAVE_DEBOUNCE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			logrus.WithField("value", v).Warn("Invalid AUTOSAVE_DEBOUNCE, using default")
		} else {
			cfg.Debounce = d
		}
	}
	if v := os.Getenv("VERSION_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			logrus.WithField("value", v).Warn("Invalid VERSION_INTERVAL, using default")
		} else {
			cfg.VersionInterval = n
		}
	}
	return cfg
}
