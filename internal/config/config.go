// Package config defines service configuration and its layered loading.
package config

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DBPath locates the SQLite database file.
	DBPath string `koanf:"db_path"`

	// ActivityQueueSize bounds the in-memory activity-log queue.
	ActivityQueueSize int `koanf:"activity_queue_size"`

	// ActivityWorkers sets the number of activity-log writers.
	ActivityWorkers int `koanf:"activity_workers"`

	// DedupeSize bounds the submission idempotency cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxLeaderboardLimit caps GET leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		DBPath:              "missiond.db",
		ActivityQueueSize:   10_000,
		ActivityWorkers:     2,
		DedupeSize:          100_000,
		MaxLeaderboardLimit: 100,
	}
}
