// Package app wires the contribution ledger together: it runs submissions
// through validation, wallet debits, participant merges, scoring, and
// mission completion inside one repository transaction, then fans results
// out to the rank index and the activity pipeline.
package app

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aurelian-hq/missiond/internal/adapters/mq/queue"
	"github.com/aurelian-hq/missiond/internal/adapters/mq/worker"
	"github.com/aurelian-hq/missiond/internal/adapters/rankindex"
	"github.com/aurelian-hq/missiond/internal/adapters/repository"
	"github.com/aurelian-hq/missiond/internal/domain/dedupe"
	"github.com/aurelian-hq/missiond/internal/domain/mission"
	"github.com/aurelian-hq/missiond/pkg/logger"
	"github.com/aurelian-hq/missiond/pkg/metrics"
)

const defaultLeaderboardLimit = 25

// Submission is one user's proposed contribution to a mission. The
// SubmissionID is the caller-supplied idempotency token: resubmitting the
// same ID acknowledges the original receipt without moving state again.
type Submission struct {
	SubmissionID string
	MissionID    string
	UserID       string
	GuildID      string
	Delta        mission.Resources
}

// Receipt reports the outcome of an accepted (or acknowledged duplicate)
// submission.
type Receipt struct {
	Duplicate        bool               `json:"duplicate"`
	MissionID        string             `json:"mission_id"`
	UserID           string             `json:"user_id"`
	Contribution     mission.Resources  `json:"contribution"`
	Score            float64            `json:"score"`
	Tier             string             `json:"tier,omitempty"`
	Rank             int                `json:"rank"`
	Progress         mission.Resources  `json:"progress"`
	MissionStatus    mission.Status     `json:"mission_status"`
	MissionCompleted bool               `json:"mission_completed"`
}

// Stats is a point-in-time operational snapshot.
type Stats struct {
	Missions            int   `json:"missions"`
	ActiveMissions      int   `json:"active_missions"`
	TrackedParticipants int   `json:"tracked_participants"`
	ActivityQueueLen    int   `json:"activity_queue_len"`
	DedupeSize          int64 `json:"dedupe_size"`
}

// Ledger is the contribution ledger service.
type Ledger struct {
	store   repository.Store
	deduper dedupe.Deduper
	ranks   *rankindex.Index
	queue   queue.Queue
	pool    *worker.Pool
	clock   func() time.Time
	logger  logger.Logger

	maxLeaderboardLimit int

	activeMissions      atomic.Int64
	trackedParticipants atomic.Int64
}

// New creates a Ledger with configuration options. A store is required.
func New(opts ...Option) (*Ledger, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.store == nil {
		return nil, ErrStoreRequired
	}

	l := &Ledger{
		store:               o.store,
		deduper:             dedupe.NewInMemory(dedupe.WithMaxSize(o.dedupeSize)),
		ranks:               rankindex.New(),
		clock:               o.clock,
		logger:              o.logger,
		maxLeaderboardLimit: o.maxLeaderboardLimit,
	}
	l.queue = queue.NewInMemory(queue.WithCapacity(o.activityQueueSize))
	l.pool = worker.NewPool(o.activityWorkers, l.queue, o.store)
	return l, nil
}

// Start warms the rank index from persisted state and launches the
// activity workers.
func (l *Ledger) Start(ctx context.Context) error {
	missions, err := l.store.Missions(ctx)
	if err != nil {
		return err
	}

	var active, tracked int64
	for i := range missions {
		m := &missions[i]
		if m.Status == mission.StatusActive {
			active++
		}
		parts, err := l.store.Participants(ctx, m.ID)
		if err != nil {
			return err
		}
		for _, p := range parts {
			l.ranks.Upsert(ctx, m.ID, rankindex.Entry{
				UserID:   p.UserID,
				Score:    p.Score,
				Tier:     p.Tier,
				JoinedAt: p.JoinedAt,
			})
			tracked++
		}
	}
	l.activeMissions.Store(active)
	l.trackedParticipants.Store(tracked)
	metrics.UpdateActiveMissions(int(active))
	metrics.UpdateTrackedParticipants(int(tracked))

	// Workers run detached from the caller's context: a shutdown signal
	// must not abort the drain of already-accepted activity entries.
	// Stop bounds the drain instead.
	l.pool.Start(context.WithoutCancel(ctx))
	l.logger.Info(ctx, "ledger started",
		logger.Int("missions", len(missions)),
		logger.Int64("participants", tracked),
	)
	return nil
}

// Stop drains the activity pipeline. The store stays open; the caller
// owns its lifecycle.
func (l *Ledger) Stop(ctx context.Context) error {
	if err := l.queue.Close(); err != nil {
		return err
	}
	return l.pool.Shutdown(ctx)
}

// Submit runs one contribution through the full ledger pipeline. On any
// failure no mission, participant, or wallet state moves.
func (l *Ledger) Submit(ctx context.Context, sub Submission) (*Receipt, error) {
	start := time.Now()
	defer func() {
		metrics.RecordSubmitLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if err := validateSubmission(sub); err != nil {
		metrics.RecordSubmissionRejected("invalid")
		return nil, err
	}

	if l.deduper.SeenAndRecord(ctx, sub.SubmissionID) {
		metrics.RecordSubmissionDuplicate()
		return l.duplicateReceipt(ctx, sub)
	}

	var (
		out      Receipt
		joined   time.Time
		newcomer bool
	)
	err := l.store.InTx(ctx, func(tx repository.Tx) error {
		m, err := tx.Mission(ctx, sub.MissionID)
		if err != nil {
			return err
		}
		now := l.clock()
		if !m.Accepting(now) {
			return mission.ErrMissionNotActive
		}
		if err := mission.ValidateDelta(sub.Delta, m.Requirements); err != nil {
			return err
		}
		if err := mission.ValidateAddition(m.Progress, sub.Delta); err != nil {
			return err
		}

		// Debit in sorted key order so concurrent submissions touch
		// wallet rows in the same sequence.
		for _, key := range sortedKeys(sub.Delta) {
			amount := sub.Delta[key]
			if amount == 0 {
				continue
			}
			if err := tx.Debit(ctx, sub.UserID, key, amount); err != nil {
				return err
			}
		}

		p, err := tx.Participant(ctx, sub.MissionID, sub.UserID)
		switch {
		case errors.Is(err, mission.ErrParticipantNotFound):
			newcomer = true
			p = &mission.Participant{
				MissionID:    sub.MissionID,
				UserID:       sub.UserID,
				GuildID:      sub.GuildID,
				Contribution: mission.Resources{},
				JoinedAt:     now,
			}
		case err != nil:
			return err
		}

		if err := mission.ValidateAddition(p.Contribution, sub.Delta); err != nil {
			return err
		}
		p.Contribution = p.Contribution.Merge(sub.Delta)
		p.Score = mission.Score(p.Contribution, m.Requirements)
		p.Tier = mission.TierFor(p.Score, m.Tiers)
		p.UpdatedAt = now
		if err := tx.UpsertParticipant(ctx, p); err != nil {
			return err
		}
		joined = p.JoinedAt

		progress, err := tx.AddProgress(ctx, sub.MissionID, sub.Delta)
		if err != nil {
			return err
		}

		status := m.Status
		flipped := false
		if mission.Satisfied(progress, m.Requirements) {
			flipped, err = tx.CompleteMission(ctx, sub.MissionID, now)
			if err != nil {
				return err
			}
			status = mission.StatusCompleted
		}

		all, err := tx.Participants(ctx, sub.MissionID)
		if err != nil {
			return err
		}
		mission.RankParticipants(all)
		ranks := make(map[string]int, len(all))
		rank := 0
		for _, q := range all {
			ranks[q.UserID] = q.Rank
			if q.UserID == sub.UserID {
				rank = q.Rank
			}
		}
		if err := tx.SetRanks(ctx, sub.MissionID, ranks); err != nil {
			return err
		}

		out = Receipt{
			MissionID:        sub.MissionID,
			UserID:           sub.UserID,
			Contribution:     p.Contribution,
			Score:            p.Score,
			Tier:             p.Tier,
			Rank:             rank,
			Progress:         progress,
			MissionStatus:    status,
			MissionCompleted: flipped,
		}
		return nil
	})
	if err != nil {
		l.deduper.Unrecord(ctx, sub.SubmissionID)
		metrics.RecordSubmissionRejected(rejectReason(err))
		return nil, err
	}

	metrics.RecordSubmissionAccepted()
	if newcomer {
		metrics.UpdateTrackedParticipants(int(l.trackedParticipants.Add(1)))
	}
	if out.MissionCompleted {
		metrics.RecordMissionCompleted()
		metrics.UpdateActiveMissions(int(l.activeMissions.Add(-1)))
		l.logger.Info(ctx, "mission completed",
			logger.String("missionID", sub.MissionID),
			logger.String("completedBy", sub.UserID),
		)
	}

	l.ranks.Upsert(ctx, sub.MissionID, rankindex.Entry{
		UserID:   sub.UserID,
		Score:    out.Score,
		Tier:     out.Tier,
		JoinedAt: joined,
	})

	entry := queue.Entry{
		ID:        uuid.NewString(),
		MissionID: sub.MissionID,
		UserID:    sub.UserID,
		Delta:     sub.Delta.Clone(),
		Score:     out.Score,
		Tier:      out.Tier,
		CreatedAt: l.clock(),
	}
	if !l.queue.Enqueue(ctx, entry) {
		l.logger.Warn(ctx, "activity entry dropped",
			logger.String("missionID", sub.MissionID),
			logger.String("userID", sub.UserID),
		)
	}

	return &out, nil
}

// duplicateReceipt acknowledges a resubmitted SubmissionID with the
// participant's current state instead of reapplying the delta.
func (l *Ledger) duplicateReceipt(ctx context.Context, sub Submission) (*Receipt, error) {
	r := &Receipt{
		Duplicate: true,
		MissionID: sub.MissionID,
		UserID:    sub.UserID,
	}
	m, err := l.store.Mission(ctx, sub.MissionID)
	if err != nil {
		return nil, err
	}
	r.Progress = m.Progress
	r.MissionStatus = m.Status

	p, err := l.store.Participant(ctx, sub.MissionID, sub.UserID)
	if err != nil {
		if errors.Is(err, mission.ErrParticipantNotFound) {
			return r, nil
		}
		return nil, err
	}
	r.Contribution = p.Contribution
	r.Score = p.Score
	r.Tier = p.Tier
	r.Rank = p.Rank
	return r, nil
}

// CreateMission validates and persists a new mission definition.
func (l *Ledger) CreateMission(ctx context.Context, m *mission.Mission) (*mission.Mission, error) {
	now := l.clock()
	if err := mission.ValidateDefinition(m, now); err != nil {
		return nil, err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.Status = mission.StatusActive
	m.Progress = mission.Resources{}
	m.CreatedAt = now
	m.CompletedAt = time.Time{}

	if err := l.store.CreateMission(ctx, m); err != nil {
		return nil, err
	}
	metrics.UpdateActiveMissions(int(l.activeMissions.Add(1)))
	l.logger.Info(ctx, "mission created",
		logger.String("missionID", m.ID),
		logger.String("name", m.Name),
	)
	return m, nil
}

// Mission returns one mission with live progress.
func (l *Ledger) Mission(ctx context.Context, id string) (*mission.Mission, error) {
	return l.store.Mission(ctx, id)
}

// Missions lists every mission, newest first.
func (l *Ledger) Missions(ctx context.Context) ([]mission.Mission, error) {
	return l.store.Missions(ctx)
}

// Leaderboard returns the top entries for a mission. A limit below one
// falls back to the default page size; oversized limits are clamped.
func (l *Ledger) Leaderboard(ctx context.Context, missionID string, limit int) ([]rankindex.Entry, error) {
	if _, err := l.store.Mission(ctx, missionID); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = defaultLeaderboardLimit
	}
	if limit > l.maxLeaderboardLimit {
		limit = l.maxLeaderboardLimit
	}
	return l.ranks.TopN(ctx, missionID, limit)
}

// Participant returns one participant's persisted record, rank included.
func (l *Ledger) Participant(ctx context.Context, missionID, userID string) (*mission.Participant, error) {
	if _, err := l.store.Mission(ctx, missionID); err != nil {
		return nil, err
	}
	return l.store.Participant(ctx, missionID, userID)
}

// Activity returns a mission's most recent audit entries.
func (l *Ledger) Activity(ctx context.Context, missionID string, limit int) ([]mission.ActivityEntry, error) {
	if _, err := l.store.Mission(ctx, missionID); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = defaultLeaderboardLimit
	}
	return l.store.Activity(ctx, missionID, limit)
}

// Credit adds resources to a user's wallet and returns the new balance.
func (l *Ledger) Credit(ctx context.Context, userID, resource string, amount int64) (int64, error) {
	if userID == "" || resource == "" || amount <= 0 {
		return 0, &mission.ValidationError{Fields: []mission.FieldError{
			{Field: "credit", Reason: "user, resource, and a positive amount are required"},
		}}
	}
	return l.store.Credit(ctx, userID, resource, amount)
}

// Balances returns every non-zero balance held by a user.
func (l *Ledger) Balances(ctx context.Context, userID string) (mission.Resources, error) {
	return l.store.Balances(ctx, userID)
}

// ClaimReward marks a participant's earned tier reward as claimed. The
// mission must be completed and the participant must have earned a tier;
// each participant claims at most once.
func (l *Ledger) ClaimReward(ctx context.Context, missionID, userID string) (*mission.Participant, error) {
	var claimed *mission.Participant
	err := l.store.InTx(ctx, func(tx repository.Tx) error {
		m, err := tx.Mission(ctx, missionID)
		if err != nil {
			return err
		}
		if m.Status != mission.StatusCompleted {
			return mission.ErrMissionNotCompleted
		}
		p, err := tx.Participant(ctx, missionID, userID)
		if err != nil {
			return err
		}
		if p.Tier == "" {
			return mission.ErrNoRewardTier
		}
		if err := tx.SetRewardClaimed(ctx, missionID, userID); err != nil {
			return err
		}
		p.RewardClaimed = true
		claimed = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info(ctx, "reward claimed",
		logger.String("missionID", missionID),
		logger.String("userID", userID),
		logger.String("tier", claimed.Tier),
	)
	return claimed, nil
}

// GetStats returns an operational snapshot.
func (l *Ledger) GetStats(ctx context.Context) Stats {
	return Stats{
		Missions:            l.ranks.Missions(ctx),
		ActiveMissions:      int(l.activeMissions.Load()),
		TrackedParticipants: int(l.trackedParticipants.Load()),
		ActivityQueueLen:    l.queue.Len(ctx),
		DedupeSize:          l.deduper.Size(),
	}
}

func validateSubmission(sub Submission) error {
	var fields []mission.FieldError
	if sub.SubmissionID == "" {
		fields = append(fields, mission.FieldError{Field: "submission_id", Reason: "must not be empty"})
	}
	if sub.MissionID == "" {
		fields = append(fields, mission.FieldError{Field: "mission_id", Reason: "must not be empty"})
	}
	if sub.UserID == "" {
		fields = append(fields, mission.FieldError{Field: "user_id", Reason: "must not be empty"})
	}
	if len(fields) > 0 {
		return &mission.ValidationError{Fields: fields}
	}
	return nil
}

func sortedKeys(r mission.Resources) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// rejectReason maps a submit failure to a metric label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, mission.ErrMissionNotFound):
		return "mission_not_found"
	case errors.Is(err, mission.ErrMissionNotActive):
		return "mission_not_active"
	case errors.Is(err, mission.ErrInvalidContribution):
		return "invalid"
	case errors.Is(err, mission.ErrInsufficientResources):
		return "insufficient_resources"
	case errors.Is(err, mission.ErrConcurrencyConflict):
		return "conflict"
	default:
		return "internal"
	}
}
