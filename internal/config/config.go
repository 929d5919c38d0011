// Package config defines exporter configuration structures and loading.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

import "runtime"

// Race describes one configured export: a named window of the source
// database materialized into its own output directory.
type Race struct {
	// Name is the output folder, e.g. "yoranch" or "772/day1".
	Name string `koanf:"name"`

	// DisplayName is the human-readable race title.
	DisplayName string `koanf:"display_name"`

	// StartTime and EndTime are caller-supplied unix-second bounds,
	// used when the scoring data cannot derive tighter ones.
	StartTime int64 `koanf:"start_time"`
	EndTime   int64 `koanf:"end_time"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// DatabasePath locates the tracker's SQLite database.
	DatabasePath string `koanf:"database_path"`

	// BackupDatabasePath optionally locates a fallback database consulted
	// when the primary holds no assignment events for a race window.
	BackupDatabasePath string `koanf:"backup_database_path"`

	// OutputDir is the root for per-race export directories.
	OutputDir string `koanf:"output_dir"`

	// BufferSeconds pads derived race windows on both sides.
	BufferSeconds int64 `koanf:"buffer_seconds"`

	// Parallelism bounds concurrent race exports.
	Parallelism int `koanf:"parallelism"`

	// Races is the export batch.
	Races []Race `koanf:"races"`
}

// New creates a Config with defaults. The default batch carries the
// historical races this tool was built to publish.
func New() *Config {
	return &Config{
		LogLevel:      "info",
		DatabasePath:  "database/main.db",
		OutputDir:     "data",
		BufferSeconds: 300,
		Parallelism:   runtime.NumCPU(),
		Races: []Race{
			{
				Name:        "yoranch",
				DisplayName: "YO Ranch Trial",
				StartTime:   1763822831, // Nov 22 08:47
				EndTime:     1763855767, // Nov 22 17:56
			},
			{
				Name:        "772/day1",
				DisplayName: "772 Endurance - Day 1",
				StartTime:   1764945980, // Dec 5 08:46
				EndTime:     1764972165, // Dec 5 16:02
			},
			{
				Name:        "772/day2",
				DisplayName: "772 Endurance - Day 2",
				StartTime:   1765024936, // Dec 6 06:42
				EndTime:     1765059828, // Dec 6 16:23
			},
		},
	}
}
