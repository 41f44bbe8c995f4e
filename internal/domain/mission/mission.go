// Package mission contains the domain model for server missions: the shared
// goal definition, per-user participant records, and the pure computations
// (merge, score, tier, rank) the contribution ledger runs on top of them.
package mission

import (
	"time"
)

// Status of a mission. The model is deliberately binary: a mission either
// accepts contributions or it is done. There is no failed/expired state.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Resources maps a flat resource key (e.g. "gold", "iron_ore", "trades")
// to an amount. Amounts are whole units.
type Resources map[string]int64

// Clone returns a deep copy of r. A nil map clones to an empty map so
// callers can mutate the result unconditionally.
func (r Resources) Clone() Resources {
	out := make(Resources, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge returns a copy of r with delta added key-wise. Keys absent from
// delta carry over unchanged; merging never removes or decreases a key.
func (r Resources) Merge(delta Resources) Resources {
	out := r.Clone()
	for k, v := range delta {
		out[k] += v
	}
	return out
}

// Tier is one rung of a mission's reward ladder. Threshold is the minimum
// normalized score required to earn the tier.
type Tier struct {
	Name      string  `json:"name"`
	Threshold float64 `json:"threshold"`
}

// Mission is a shared, time-boxed objective with a global resource
// requirement contributed to by many users. Progress accumulates the raw
// deltas of every accepted contribution.
type Mission struct {
	ID           string
	Name         string
	Requirements Resources
	Progress     Resources
	Tiers        []Tier
	Status       Status
	EndsAt       time.Time
	CreatedAt    time.Time
	CompletedAt  time.Time
}

// Accepting reports whether the mission can take a contribution at now:
// it must be active and not past its deadline.
func (m *Mission) Accepting(now time.Time) bool {
	return m.Status == StatusActive && !now.After(m.EndsAt)
}

// Satisfied reports whether progress meets every requirement key.
func Satisfied(progress, requirements Resources) bool {
	for key, required := range requirements {
		if progress[key] < required {
			return false
		}
	}
	return true
}

// Participant is one user's accumulated contribution record against one
// mission. Contribution totals only ever grow; GuildID is a snapshot taken
// at first contribution and never re-synced.
type Participant struct {
	MissionID     string
	UserID        string
	GuildID       string
	Contribution  Resources
	Score         float64
	Tier          string
	Rank          int
	RewardClaimed bool
	JoinedAt      time.Time
	UpdatedAt     time.Time
}

// ActivityEntry records one accepted contribution for audit and history.
type ActivityEntry struct {
	ID        string
	MissionID string
	UserID    string
	Delta     Resources
	Score     float64
	Tier      string
	CreatedAt time.Time
}
