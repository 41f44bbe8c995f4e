package mission_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/aurelian-hq/missiond/internal/domain/mission"
	. "github.com/smartystreets/goconvey/convey"
)

func TestScore(t *testing.T) {
	Convey("Given a mission requiring 1000 gold", t, func() {
		req := mission.Resources{"gold": 1000}

		Convey("When a user has contributed 300 gold", func() {
			score := mission.Score(mission.Resources{"gold": 300}, req)

			Convey("Then the score is 0.3", func() {
				So(score, ShouldAlmostEqual, 0.3)
			})
		})

		Convey("When a user has contributed 800 gold", func() {
			score := mission.Score(mission.Resources{"gold": 800}, req)

			Convey("Then the score is 0.8", func() {
				So(score, ShouldAlmostEqual, 0.8)
			})
		})

		Convey("When a user has over-contributed", func() {
			score := mission.Score(mission.Resources{"gold": 5000}, req)

			Convey("Then the score caps at 1", func() {
				So(score, ShouldEqual, 1.0)
			})
		})
	})

	Convey("Given multi-resource requirements", t, func() {
		req := mission.Resources{"gold": 1000, "trades": 50}

		Convey("When one requirement is fully met and the other untouched", func() {
			score := mission.Score(mission.Resources{"gold": 1000}, req)

			Convey("Then the score is the mean of per-key completion", func() {
				So(score, ShouldAlmostEqual, 0.5)
			})
		})
	})

	Convey("Given degenerate requirements", t, func() {
		Convey("When a requirement target is zero", func() {
			score := mission.Score(mission.Resources{}, mission.Resources{"gold": 0, "trades": 50})

			Convey("Then the zero target is auto-satisfied, not a division by zero", func() {
				So(score, ShouldAlmostEqual, 0.5)
			})
		})

		Convey("When there are no requirements at all", func() {
			So(mission.Score(mission.Resources{"gold": 10}, mission.Resources{}), ShouldEqual, 0)
		})
	})

	Convey("Score stays within [0, 1] for arbitrary contributions", t, func() {
		req := mission.Resources{"gold": 7, "iron_ore": 500, "trades": 0}
		for i := int64(0); i < 2000; i += 37 {
			score := mission.Score(mission.Resources{"gold": i, "iron_ore": i * 3}, req)
			So(score, ShouldBeBetweenOrEqual, 0, 1)
		}
	})
}

func TestTierFor(t *testing.T) {
	tiers := []mission.Tier{
		{Name: "bronze", Threshold: 0.25},
		{Name: "silver", Threshold: 0.5},
		{Name: "gold", Threshold: 0.75},
		{Name: "legendary", Threshold: 0.95},
	}

	Convey("Given the standard tier ladder", t, func() {
		Convey("Then scores map onto the highest threshold at or below them", func() {
			So(mission.TierFor(0.0, tiers), ShouldEqual, "")
			So(mission.TierFor(0.24, tiers), ShouldEqual, "")
			So(mission.TierFor(0.25, tiers), ShouldEqual, "bronze")
			So(mission.TierFor(0.3, tiers), ShouldEqual, "bronze")
			So(mission.TierFor(0.8, tiers), ShouldEqual, "gold")
			So(mission.TierFor(0.95, tiers), ShouldEqual, "legendary")
			So(mission.TierFor(1.0, tiers), ShouldEqual, "legendary")
		})

		Convey("And tier assignment is monotonic in score", func() {
			order := map[string]int{"": 0, "bronze": 1, "silver": 2, "gold": 3, "legendary": 4}
			prev := 0
			for s := 0.0; s <= 1.0; s += 0.01 {
				cur := order[mission.TierFor(s, tiers)]
				So(cur, ShouldBeGreaterThanOrEqualTo, prev)
				prev = cur
			}
		})

		Convey("And ladder order in the slice does not matter", func() {
			shuffled := []mission.Tier{tiers[2], tiers[0], tiers[3], tiers[1]}
			So(mission.TierFor(0.8, shuffled), ShouldEqual, "gold")
		})
	})
}

func TestRankParticipants(t *testing.T) {
	Convey("Given participants with distinct scores", t, func() {
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		participants := []mission.Participant{
			{UserID: "u-low", Score: 0.2, JoinedAt: base},
			{UserID: "u-high", Score: 0.9, JoinedAt: base.Add(time.Hour)},
			{UserID: "u-mid", Score: 0.5, JoinedAt: base.Add(2 * time.Hour)},
		}

		mission.RankParticipants(participants)

		Convey("Then ranks descend by score", func() {
			So(participants[0].UserID, ShouldEqual, "u-high")
			So(participants[0].Rank, ShouldEqual, 1)
			So(participants[1].UserID, ShouldEqual, "u-mid")
			So(participants[1].Rank, ShouldEqual, 2)
			So(participants[2].UserID, ShouldEqual, "u-low")
			So(participants[2].Rank, ShouldEqual, 3)
		})
	})

	Convey("Given tied scores", t, func() {
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		participants := []mission.Participant{
			{UserID: "u-late", Score: 0.5, JoinedAt: base.Add(time.Minute)},
			{UserID: "u-early", Score: 0.5, JoinedAt: base},
		}

		mission.RankParticipants(participants)

		Convey("Then the earliest joiner wins the tie", func() {
			So(participants[0].UserID, ShouldEqual, "u-early")
			So(participants[0].Rank, ShouldEqual, 1)
			So(participants[1].Rank, ShouldEqual, 2)
		})
	})

	Convey("Ranks are always a dense permutation of 1..N", t, func() {
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		participants := make([]mission.Participant, 0, 40)
		for i := 0; i < 40; i++ {
			participants = append(participants, mission.Participant{
				UserID:   fmt.Sprintf("user-%02d", i),
				Score:    float64(i%7) / 10, // plenty of ties
				JoinedAt: base.Add(time.Duration(i%5) * time.Second),
			})
		}

		mission.RankParticipants(participants)

		seen := make(map[int]bool, len(participants))
		for _, p := range participants {
			So(p.Rank, ShouldBeBetweenOrEqual, 1, len(participants))
			So(seen[p.Rank], ShouldBeFalse)
			seen[p.Rank] = true
		}
	})
}

func TestSatisfied(t *testing.T) {
	Convey("Given requirements of gold and trades", t, func() {
		req := mission.Resources{"gold": 1000, "trades": 50}

		So(mission.Satisfied(mission.Resources{"gold": 1000, "trades": 50}, req), ShouldBeTrue)
		So(mission.Satisfied(mission.Resources{"gold": 1200, "trades": 49}, req), ShouldBeFalse)
		So(mission.Satisfied(mission.Resources{"gold": 999, "trades": 50}, req), ShouldBeFalse)
		So(mission.Satisfied(nil, mission.Resources{}), ShouldBeTrue)
	})
}
