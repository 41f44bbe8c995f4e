// Package rankindex maintains per-mission leaderboard orderings in memory.
//
// Each mission gets its own treap keyed so that in-order traversal yields
// the leaderboard: score DESC, then JoinedAt ASC (earliest contributor wins
// ties), then UserID ASC as a final determinizer. Subtree sizes make rank
// lookups O(log n); the persistent ranks in the repository remain the
// source of truth, this index only serves reads.
package rankindex

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/aurelian-hq/missiond/pkg/metrics"
)

// scoreScale converts normalized [0, 1] scores to fixed point so ordering
// never depends on float comparison quirks.
const scoreScale = 1_000_000_000_000

type scoreFP int64

func toFixedPoint(x float64) scoreFP {
	if math.IsNaN(x) {
		return 0
	}
	if x < 0 {
		return 0
	}
	if x > 1 {
		return scoreScale
	}
	return scoreFP(math.Round(x * scoreScale))
}

func toFloat(x scoreFP) float64 {
	return float64(x) / scoreScale
}

// Entry is one leaderboard row.
type Entry struct {
	Rank     int       `json:"rank"`
	UserID   string    `json:"user_id"`
	Score    float64   `json:"score"`
	Tier     string    `json:"tier"`
	JoinedAt time.Time `json:"joined_at"`
}

type key struct {
	score  scoreFP
	joined int64 // unix nanos
	userID string
}

// less reports whether a ranks strictly before b.
func less(a, b key) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.joined != b.joined {
		return a.joined < b.joined
	}
	return a.userID < b.userID
}

type node struct {
	key   key
	tier  string
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, k key, tier string, prio uint64) *node {
	if n == nil {
		return &node{key: k, tier: tier, prio: prio, size: 1}
	}
	if less(k, n.key) {
		n.left = insert(n.left, k, tier, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, k, tier, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func remove(n *node, k key) *node {
	if n == nil {
		return nil
	}
	if k == n.key {
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = remove(n.right, k)
		} else {
			n = rotateLeft(n)
			n.left = remove(n.left, k)
		}
	} else if less(k, n.key) {
		n.left = remove(n.left, k)
	} else {
		n.right = remove(n.right, k)
	}
	fix(n)
	return n
}

// rankOf returns the 1-based position of k, or 0 if absent.
func rankOf(n *node, k key) int {
	rank := 0
	for n != nil {
		switch {
		case k == n.key:
			return rank + nsize(n.left) + 1
		case less(k, n.key):
			n = n.left
		default:
			rank += nsize(n.left) + 1
			n = n.right
		}
	}
	return 0
}

func collectTopN(n *node, limit int, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, Entry{
			Rank:     len(*out) + 1,
			UserID:   n.key.userID,
			Score:    toFloat(n.key.score),
			Tier:     n.tier,
			JoinedAt: time.Unix(0, n.key.joined).UTC(),
		})
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

// board holds one mission's treap plus a user index for O(1) key lookup.
type board struct {
	root   *node
	byUser map[string]key
}

// Index maintains leaderboard boards for every tracked mission.
type Index struct {
	mu     sync.RWMutex
	rng    *rand.Rand
	boards map[string]*board
}

// New constructs an empty index.
func New() *Index {
	return &Index{
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // treap balancing, not security
		boards: make(map[string]*board),
	}
}

// Upsert inserts or repositions a participant on a mission's board.
func (x *Index) Upsert(ctx context.Context, missionID string, e Entry) {
	start := time.Now()
	defer func() {
		metrics.RecordRankIndexUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	x.mu.Lock()
	defer x.mu.Unlock()

	b, ok := x.boards[missionID]
	if !ok {
		b = &board{byUser: make(map[string]key)}
		x.boards[missionID] = b
	}
	if old, ok := b.byUser[e.UserID]; ok {
		b.root = remove(b.root, old)
	}
	k := key{score: toFixedPoint(e.Score), joined: e.JoinedAt.UnixNano(), userID: e.UserID}
	b.root = insert(b.root, k, e.Tier, x.rng.Uint64())
	b.byUser[e.UserID] = k
}

// TopN returns the best n entries for a mission, rank order. A mission with
// no participants yields an empty slice.
func (x *Index) TopN(ctx context.Context, missionID string, n int) ([]Entry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	b, ok := x.boards[missionID]
	if !ok {
		return []Entry{}, nil
	}
	out := make([]Entry, 0, n)
	collectTopN(b.root, n, &out)
	return out, nil
}

// Rank returns a participant's current board position.
func (x *Index) Rank(ctx context.Context, missionID, userID string) (Entry, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	b, ok := x.boards[missionID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	k, ok := b.byUser[userID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	rank := rankOf(b.root, k)
	if rank == 0 {
		return Entry{}, ErrNotFound
	}
	return Entry{
		Rank:     rank,
		UserID:   userID,
		Score:    toFloat(k.score),
		Tier:     x.tierOf(b, k),
		JoinedAt: time.Unix(0, k.joined).UTC(),
	}, nil
}

// tierOf walks to the node for k and returns its tier label. Assumes the
// read lock is held and k is present.
func (x *Index) tierOf(b *board, k key) string {
	n := b.root
	for n != nil {
		if k == n.key {
			return n.tier
		}
		if less(k, n.key) {
			n = n.left
		} else {
			n = n.right
		}
	}
	return ""
}

// Size returns the number of participants tracked for a mission.
func (x *Index) Size(ctx context.Context, missionID string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if b, ok := x.boards[missionID]; ok {
		return nsize(b.root)
	}
	return 0
}

// Missions returns the number of boards currently tracked.
func (x *Index) Missions(ctx context.Context) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.boards)
}

// Drop discards a mission's board, e.g. after archival.
func (x *Index) Drop(ctx context.Context, missionID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.boards, missionID)
}
