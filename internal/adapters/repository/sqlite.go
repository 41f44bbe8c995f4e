package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/aurelian-hq/missiond/internal/domain/mission"
	"github.com/aurelian-hq/missiond/pkg/metrics"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const timeFormat = time.RFC3339Nano

// SQLiteStore implements Store on an embedded SQLite database. A single
// write connection plus per-submission transactions serialize concurrent
// contributions against the shared mission accumulator.
type SQLiteStore struct {
	db          *sql.DB
	busyTimeout time.Duration
}

// Open opens (creating if needed) a SQLite store at path.
func Open(path string, opts ...Option) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	s := &SQLiteStore{busyTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(s)
	}

	// modernc.org/sqlite takes pragmas as _pragma=name(value) pairs.
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)",
		filepath.Clean(path), s.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer connection keeps transactions serial; SQLite would
	// otherwise return SQLITE_BUSY under concurrent writers anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s.db = db
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// isBusy reports whether err is SQLite lock contention.
func isBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}

// InTx implements Store.InTx.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryTxLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if isBusy(err) {
			metrics.RecordRepositoryConflict()
			return fmt.Errorf("%w: %v", mission.ErrConcurrencyConflict, err)
		}
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		if isBusy(err) {
			metrics.RecordRepositoryConflict()
			return fmt.Errorf("%w: %v", mission.ErrConcurrencyConflict, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		if isBusy(err) {
			metrics.RecordRepositoryConflict()
			return fmt.Errorf("%w: %v", mission.ErrConcurrencyConflict, err)
		}
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// queryer abstracts *sql.DB and *sql.Tx for the shared scan helpers.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CreateMission implements Store.CreateMission.
func (s *SQLiteStore) CreateMission(ctx context.Context, m *mission.Mission) error {
	requirements, err := json.Marshal(m.Requirements)
	if err != nil {
		return fmt.Errorf("marshal requirements: %w", err)
	}
	progress, err := json.Marshal(m.Progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	tiers, err := json.Marshal(m.Tiers)
	if err != nil {
		return fmt.Errorf("marshal tiers: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO missions (id, name, requirements, progress, tiers, status, ends_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, string(requirements), string(progress), string(tiers),
		string(m.Status), m.EndsAt.UTC().Format(timeFormat), m.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("insert mission: %w", err)
	}
	return nil
}

// Mission implements Store.Mission.
func (s *SQLiteStore) Mission(ctx context.Context, id string) (*mission.Mission, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()
	return scanMission(ctx, s.db, id)
}

// Missions implements Store.Missions.
func (s *SQLiteStore) Missions(ctx context.Context) ([]mission.Mission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, requirements, progress, tiers, status, ends_at, created_at, completed_at
		FROM missions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	defer rows.Close()

	var out []mission.Mission
	for rows.Next() {
		m, err := scanMissionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	return out, nil
}

// Participant implements Store.Participant.
func (s *SQLiteStore) Participant(ctx context.Context, missionID, userID string) (*mission.Participant, error) {
	return scanParticipant(ctx, s.db, missionID, userID)
}

// Participants implements Store.Participants.
func (s *SQLiteStore) Participants(ctx context.Context, missionID string) ([]mission.Participant, error) {
	return listParticipants(ctx, s.db, missionID)
}

// Credit implements Store.Credit.
func (s *SQLiteStore) Credit(ctx context.Context, userID, resource string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: credit amount must be positive", mission.ErrInvalidContribution)
	}
	var balance int64
	// The WHERE guard keeps balance + amount inside int64; a skipped
	// update yields no RETURNING row.
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO wallets (user_id, resource, balance) VALUES (?, ?, ?)
		ON CONFLICT(user_id, resource) DO UPDATE SET balance = balance + excluded.balance
		WHERE wallets.balance <= ? - excluded.balance
		RETURNING balance`,
		userID, resource, amount, int64(math.MaxInt64),
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: credit overflows the balance", mission.ErrInvalidContribution)
	}
	if err != nil {
		return 0, fmt.Errorf("credit wallet: %w", err)
	}
	return balance, nil
}

// Balances implements Store.Balances.
func (s *SQLiteStore) Balances(ctx context.Context, userID string) (mission.Resources, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT resource, balance FROM wallets WHERE user_id = ? AND balance != 0`, userID)
	if err != nil {
		return nil, fmt.Errorf("read balances: %w", err)
	}
	defer rows.Close()

	out := make(mission.Resources)
	for rows.Next() {
		var resource string
		var balance int64
		if err := rows.Scan(&resource, &balance); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		out[resource] = balance
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read balances: %w", err)
	}
	return out, nil
}

// AppendActivity implements Store.AppendActivity.
func (s *SQLiteStore) AppendActivity(ctx context.Context, e *mission.ActivityEntry) error {
	delta, err := json.Marshal(e.Delta)
	if err != nil {
		return fmt.Errorf("marshal delta: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, mission_id, user_id, delta, score, tier, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.MissionID, e.UserID, string(delta), e.Score, e.Tier,
		e.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// Activity implements Store.Activity.
func (s *SQLiteStore) Activity(ctx context.Context, missionID string, limit int) ([]mission.ActivityEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mission_id, user_id, delta, score, tier, created_at
		FROM activity_log WHERE mission_id = ?
		ORDER BY created_at DESC LIMIT ?`, missionID, limit)
	if err != nil {
		return nil, fmt.Errorf("read activity: %w", err)
	}
	defer rows.Close()

	var out []mission.ActivityEntry
	for rows.Next() {
		var e mission.ActivityEntry
		var delta, createdAt string
		if err := rows.Scan(&e.ID, &e.MissionID, &e.UserID, &delta, &e.Score, &e.Tier, &createdAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if err := json.Unmarshal([]byte(delta), &e.Delta); err != nil {
			return nil, fmt.Errorf("unmarshal delta: %w", err)
		}
		if e.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read activity: %w", err)
	}
	return out, nil
}

// sqliteTx implements Tx on a live transaction.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Mission(ctx context.Context, id string) (*mission.Mission, error) {
	return scanMission(ctx, t.tx, id)
}

func (t *sqliteTx) Participant(ctx context.Context, missionID, userID string) (*mission.Participant, error) {
	return scanParticipant(ctx, t.tx, missionID, userID)
}

func (t *sqliteTx) UpsertParticipant(ctx context.Context, p *mission.Participant) error {
	contribution, err := json.Marshal(p.Contribution)
	if err != nil {
		return fmt.Errorf("marshal contribution: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO participants
			(mission_id, user_id, guild_id, contribution, score, tier, "rank", reward_claimed, joined_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mission_id, user_id) DO UPDATE SET
			contribution = excluded.contribution,
			score        = excluded.score,
			tier         = excluded.tier,
			updated_at   = excluded.updated_at`,
		p.MissionID, p.UserID, p.GuildID, string(contribution), p.Score, p.Tier,
		p.Rank, boolToInt(p.RewardClaimed),
		p.JoinedAt.UTC().Format(timeFormat), p.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("upsert participant: %w", err)
	}
	return nil
}

func (t *sqliteTx) Debit(ctx context.Context, userID, resource string, amount int64) error {
	if amount == 0 {
		return nil
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE wallets SET balance = balance - ?
		WHERE user_id = ? AND resource = ? AND balance >= ?`,
		amount, userID, resource, amount)
	if err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", mission.ErrInsufficientResources, resource)
	}
	return nil
}

func (t *sqliteTx) AddProgress(ctx context.Context, missionID string, delta mission.Resources) (mission.Resources, error) {
	// The surrounding transaction holds the write lock, so this
	// read-merge-write cannot interleave with another contributor.
	var raw string
	err := t.tx.QueryRowContext(ctx,
		`SELECT progress FROM missions WHERE id = ?`, missionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, mission.ErrMissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}

	var progress mission.Resources
	if err := json.Unmarshal([]byte(raw), &progress); err != nil {
		return nil, fmt.Errorf("unmarshal progress: %w", err)
	}
	progress = progress.Merge(delta)

	updated, err := json.Marshal(progress)
	if err != nil {
		return nil, fmt.Errorf("marshal progress: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE missions SET progress = ? WHERE id = ?`, string(updated), missionID); err != nil {
		return nil, fmt.Errorf("write progress: %w", err)
	}
	return progress, nil
}

func (t *sqliteTx) CompleteMission(ctx context.Context, missionID string, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE missions SET status = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(mission.StatusCompleted), at.UTC().Format(timeFormat),
		missionID, string(mission.StatusActive))
	if err != nil {
		return false, fmt.Errorf("complete mission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete mission: %w", err)
	}
	return affected == 1, nil
}

func (t *sqliteTx) Participants(ctx context.Context, missionID string) ([]mission.Participant, error) {
	return listParticipants(ctx, t.tx, missionID)
}

func (t *sqliteTx) SetRanks(ctx context.Context, missionID string, ranks map[string]int) error {
	for userID, rank := range ranks {
		if _, err := t.tx.ExecContext(ctx,
			`UPDATE participants SET "rank" = ? WHERE mission_id = ? AND user_id = ?`,
			rank, missionID, userID); err != nil {
			return fmt.Errorf("set rank: %w", err)
		}
	}
	return nil
}

func (t *sqliteTx) SetRewardClaimed(ctx context.Context, missionID, userID string) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE participants SET reward_claimed = 1
		WHERE mission_id = ? AND user_id = ? AND reward_claimed = 0`,
		missionID, userID)
	if err != nil {
		return fmt.Errorf("claim reward: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim reward: %w", err)
	}
	if affected == 0 {
		return mission.ErrRewardAlreadyClaimed
	}
	return nil
}

func scanMission(ctx context.Context, q queryer, id string) (*mission.Mission, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, requirements, progress, tiers, status, ends_at, created_at, completed_at
		FROM missions WHERE id = ?`, id)
	m, err := scanMissionRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, mission.ErrMissionNotFound
	}
	return m, err
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMissionRow(row rowScanner) (*mission.Mission, error) {
	var m mission.Mission
	var requirements, progress, tiers, status, endsAt, createdAt, completedAt string
	if err := row.Scan(&m.ID, &m.Name, &requirements, &progress, &tiers,
		&status, &endsAt, &createdAt, &completedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(requirements), &m.Requirements); err != nil {
		return nil, fmt.Errorf("unmarshal requirements: %w", err)
	}
	if err := json.Unmarshal([]byte(progress), &m.Progress); err != nil {
		return nil, fmt.Errorf("unmarshal progress: %w", err)
	}
	if err := json.Unmarshal([]byte(tiers), &m.Tiers); err != nil {
		return nil, fmt.Errorf("unmarshal tiers: %w", err)
	}
	m.Status = mission.Status(status)

	var err error
	if m.EndsAt, err = time.Parse(timeFormat, endsAt); err != nil {
		return nil, fmt.Errorf("parse ends_at: %w", err)
	}
	if m.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if completedAt != "" {
		if m.CompletedAt, err = time.Parse(timeFormat, completedAt); err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
	}
	return &m, nil
}

func scanParticipant(ctx context.Context, q queryer, missionID, userID string) (*mission.Participant, error) {
	row := q.QueryRowContext(ctx, `
		SELECT mission_id, user_id, guild_id, contribution, score, tier, "rank", reward_claimed, joined_at, updated_at
		FROM participants WHERE mission_id = ? AND user_id = ?`, missionID, userID)
	p, err := scanParticipantRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, mission.ErrParticipantNotFound
	}
	return p, err
}

func listParticipants(ctx context.Context, q queryer, missionID string) ([]mission.Participant, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT mission_id, user_id, guild_id, contribution, score, tier, "rank", reward_claimed, joined_at, updated_at
		FROM participants WHERE mission_id = ?
		ORDER BY score DESC, joined_at ASC, user_id ASC`, missionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []mission.Participant
	for rows.Next() {
		p, err := scanParticipantRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return out, nil
}

func scanParticipantRow(row rowScanner) (*mission.Participant, error) {
	var p mission.Participant
	var contribution, joinedAt, updatedAt string
	var claimed int
	if err := row.Scan(&p.MissionID, &p.UserID, &p.GuildID, &contribution,
		&p.Score, &p.Tier, &p.Rank, &claimed, &joinedAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(contribution), &p.Contribution); err != nil {
		return nil, fmt.Errorf("unmarshal contribution: %w", err)
	}
	p.RewardClaimed = claimed != 0

	var err error
	if p.JoinedAt, err = time.Parse(timeFormat, joinedAt); err != nil {
		return nil, fmt.Errorf("parse joined_at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*SQLiteStore)(nil)
var _ Tx = (*sqliteTx)(nil)
