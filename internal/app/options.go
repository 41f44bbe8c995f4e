package app

import (
	"time"

	"github.com/aurelian-hq/missiond/internal/adapters/repository"
	"github.com/aurelian-hq/missiond/pkg/logger"
)

type options struct {
	store               repository.Store
	clock               func() time.Time
	logger              logger.Logger
	dedupeSize          int
	activityQueueSize   int
	activityWorkers     int
	maxLeaderboardLimit int
}

func defaultOptions() *options {
	return &options{
		clock:               time.Now,
		logger:              logger.Get().Named("ledger"),
		dedupeSize:          100_000,
		activityQueueSize:   10_000,
		activityWorkers:     2,
		maxLeaderboardLimit: 100,
	}
}

// Option configures a Ledger.
type Option func(*options)

// WithStore sets the persistence store. Required.
func WithStore(s repository.Store) Option {
	return func(o *options) { o.store = s }
}

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger overrides the service logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDedupeSize bounds the idempotency window.
func WithDedupeSize(n int) Option {
	return func(o *options) { o.dedupeSize = n }
}

// WithActivityQueueSize sets the activity queue capacity.
func WithActivityQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.activityQueueSize = n
		}
	}
}

// WithActivityWorkers sets how many workers drain the activity queue.
func WithActivityWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.activityWorkers = n
		}
	}
}

// WithMaxLeaderboardLimit caps leaderboard page sizes.
func WithMaxLeaderboardLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLeaderboardLimit = n
		}
	}
}
