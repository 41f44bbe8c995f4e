package repository

import "time"

// Option applies a configuration option to the SQLite store.
type Option func(*SQLiteStore)

// WithBusyTimeout sets how long a blocked connection waits on a lock
// before giving up with a conflict.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.busyTimeout = d
		}
	}
}
