package mission

import "sort"

// Score returns the normalized completion score of a contribution against
// the mission's global requirements: the mean, across every requirement
// key, of min(total/required, 1). The result is always in [0, 1].
//
// A requirement of zero (or less) is auto-satisfied and contributes 1.0
// for its key, so degenerate missions never divide by zero.
func Score(contribution, requirements Resources) float64 {
	if len(requirements) == 0 {
		return 0
	}
	var sum float64
	for key, required := range requirements {
		if required <= 0 {
			sum += 1
			continue
		}
		frac := float64(contribution[key]) / float64(required)
		if frac > 1 {
			frac = 1
		}
		sum += frac
	}
	return sum / float64(len(requirements))
}

// TierFor maps a score onto a mission's tier ladder: the highest threshold
// less than or equal to score wins. A score below the lowest threshold
// earns no tier and returns the empty string.
//
// Tier order in the slice does not matter; ValidateDefinition guarantees
// thresholds are unique at mission creation.
func TierFor(score float64, tiers []Tier) string {
	best := ""
	bestThreshold := -1.0
	for _, t := range tiers {
		if t.Threshold <= score && t.Threshold > bestThreshold {
			best = t.Name
			bestThreshold = t.Threshold
		}
	}
	return best
}

// RankParticipants sorts participants by score descending, ties broken by
// earliest JoinedAt, then by UserID for a total order, and assigns dense
// 1-based ranks in place. Every participant receives a unique rank in
// 1..N with no gaps.
func RankParticipants(participants []Participant) {
	sort.Slice(participants, func(i, j int) bool {
		a, b := participants[i], participants[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.UserID < b.UserID
	})
	for i := range participants {
		participants[i].Rank = i + 1
	}
}
