// Package repository persists missions, participants, wallets, and the
// activity log behind the contribution ledger's transactional contract.
package repository

import (
	"context"
	"time"

	"github.com/aurelian-hq/missiond/internal/domain/mission"
)

// Store is the persistence collaborator consumed by the ledger. All state
// mutated by a contribution goes through InTx so a failed debit or write
// leaves nothing behind.
type Store interface {
	// InTx runs fn inside a single all-or-nothing transaction. A nil
	// return commits; any error rolls back and is returned unchanged
	// (except driver lock contention, surfaced as ErrConcurrencyConflict).
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// CreateMission persists a new mission definition.
	CreateMission(ctx context.Context, m *mission.Mission) error

	// Mission reads one mission with live progress.
	Mission(ctx context.Context, id string) (*mission.Mission, error)

	// Missions lists every mission, newest first.
	Missions(ctx context.Context) ([]mission.Mission, error)

	// Participant reads one participant row.
	Participant(ctx context.Context, missionID, userID string) (*mission.Participant, error)

	// Participants lists a mission's participants in rank order.
	Participants(ctx context.Context, missionID string) ([]mission.Participant, error)

	// Credit adds amount to a user's balance for one resource and returns
	// the new balance.
	Credit(ctx context.Context, userID, resource string, amount int64) (int64, error)

	// Balances returns every non-zero balance held by a user.
	Balances(ctx context.Context, userID string) (mission.Resources, error)

	// AppendActivity writes one audit entry. Called outside the
	// contribution transaction; failures never undo a contribution.
	AppendActivity(ctx context.Context, e *mission.ActivityEntry) error

	// Activity returns a mission's most recent audit entries.
	Activity(ctx context.Context, missionID string, limit int) ([]mission.ActivityEntry, error)

	Close() error
}

// Tx exposes the operations available inside a contribution transaction.
type Tx interface {
	// Mission reads a mission for update.
	Mission(ctx context.Context, id string) (*mission.Mission, error)

	// Participant reads one participant, or ErrParticipantNotFound.
	Participant(ctx context.Context, missionID, userID string) (*mission.Participant, error)

	// UpsertParticipant writes a participant's merged state.
	UpsertParticipant(ctx context.Context, p *mission.Participant) error

	// Debit subtracts amount from a user's balance, failing with
	// ErrInsufficientResources when the balance cannot cover it.
	Debit(ctx context.Context, userID, resource string, amount int64) error

	// AddProgress folds a raw contribution delta into mission progress and
	// returns the new totals.
	AddProgress(ctx context.Context, missionID string, delta mission.Resources) (mission.Resources, error)

	// CompleteMission conditionally flips active -> completed. Returns
	// true only for the transaction that performed the flip.
	CompleteMission(ctx context.Context, missionID string, at time.Time) (bool, error)

	// Participants lists every participant of a mission.
	Participants(ctx context.Context, missionID string) ([]mission.Participant, error)

	// SetRanks persists recomputed leaderboard positions.
	SetRanks(ctx context.Context, missionID string, ranks map[string]int) error

	// SetRewardClaimed marks a participant's reward as claimed.
	SetRewardClaimed(ctx context.Context, missionID, userID string) error
}
