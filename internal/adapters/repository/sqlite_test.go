package repository_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/aurelian-hq/missiond/internal/adapters/repository"
	"github.com/aurelian-hq/missiond/internal/domain/mission"
	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"
)

func openStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()
	store, err := repository.Open(filepath.Join(t.TempDir(), "missiond.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedMission(t *testing.T, store *repository.SQLiteStore, id string) *mission.Mission {
	t.Helper()
	m := &mission.Mission{
		ID:           id,
		Name:         "iron rush",
		Requirements: mission.Resources{"gold": 1000, "iron_ore": 500},
		Progress:     mission.Resources{},
		Tiers: []mission.Tier{
			{Name: "bronze", Threshold: 0.25},
			{Name: "silver", Threshold: 0.5},
		},
		Status:    mission.StatusActive,
		EndsAt:    time.Now().Add(24 * time.Hour),
		CreatedAt: time.Now(),
	}
	if err := store.CreateMission(context.Background(), m); err != nil {
		t.Fatalf("create mission: %v", err)
	}
	return m
}

func TestMissionRoundTrip(t *testing.T) {
	ctx := context.Background()

	Convey("Given a created mission", t, func() {
		store := openStore(t)
		seedMission(t, store, "m-1")

		Convey("When it is read back", func() {
			got, err := store.Mission(ctx, "m-1")

			Convey("Then every field survives", func() {
				So(err, ShouldBeNil)
				So(got.Name, ShouldEqual, "iron rush")
				So(got.Requirements, ShouldResemble, mission.Resources{"gold": 1000, "iron_ore": 500})
				So(got.Progress, ShouldResemble, mission.Resources{})
				So(got.Tiers, ShouldHaveLength, 2)
				So(got.Status, ShouldEqual, mission.StatusActive)
				So(got.CompletedAt.IsZero(), ShouldBeTrue)
			})
		})

		Convey("And an unknown mission id is not found", func() {
			_, err := store.Mission(ctx, "ghost")
			So(errors.Is(err, mission.ErrMissionNotFound), ShouldBeTrue)
		})

		Convey("And Missions lists it", func() {
			all, err := store.Missions(ctx)
			So(err, ShouldBeNil)
			So(all, ShouldHaveLength, 1)
		})
	})
}

func TestWallets(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty wallet", t, func() {
		store := openStore(t)

		Convey("When credits accumulate", func() {
			balance, err := store.Credit(ctx, "alice", "gold", 500)
			So(err, ShouldBeNil)
			So(balance, ShouldEqual, 500)

			balance, err = store.Credit(ctx, "alice", "gold", 250)
			So(err, ShouldBeNil)
			So(balance, ShouldEqual, 750)

			Convey("Then balances reflect the total", func() {
				balances, err := store.Balances(ctx, "alice")
				So(err, ShouldBeNil)
				So(balances, ShouldResemble, mission.Resources{"gold": 750})
			})
		})

		Convey("When a credit would push the balance past the int64 ceiling", func() {
			balance, err := store.Credit(ctx, "carol", "gold", math.MaxInt64)
			So(err, ShouldBeNil)
			So(balance, ShouldEqual, int64(math.MaxInt64))

			_, err = store.Credit(ctx, "carol", "gold", 1)

			Convey("Then it is rejected and the balance is untouched", func() {
				So(errors.Is(err, mission.ErrInvalidContribution), ShouldBeTrue)
				balances, berr := store.Balances(ctx, "carol")
				So(berr, ShouldBeNil)
				So(balances["gold"], ShouldEqual, int64(math.MaxInt64))
			})
		})

		Convey("When a debit exceeds the balance", func() {
			_, err := store.Credit(ctx, "bob", "gold", 100)
			So(err, ShouldBeNil)

			err = store.InTx(ctx, func(tx repository.Tx) error {
				return tx.Debit(ctx, "bob", "gold", 150)
			})

			Convey("Then it fails with insufficient resources and nothing moves", func() {
				So(errors.Is(err, mission.ErrInsufficientResources), ShouldBeTrue)
				balances, berr := store.Balances(ctx, "bob")
				So(berr, ShouldBeNil)
				So(balances["gold"], ShouldEqual, 100)
			})
		})

		Convey("When a debit against a missing wallet row runs", func() {
			err := store.InTx(ctx, func(tx repository.Tx) error {
				return tx.Debit(ctx, "nobody", "gold", 1)
			})
			So(errors.Is(err, mission.ErrInsufficientResources), ShouldBeTrue)
		})
	})
}

func TestTransactionAtomicity(t *testing.T) {
	ctx := context.Background()

	Convey("Given a mission and a funded wallet", t, func() {
		store := openStore(t)
		seedMission(t, store, "m-1")
		_, err := store.Credit(ctx, "alice", "gold", 1000)
		So(err, ShouldBeNil)

		Convey("When a transaction debits, writes, then fails", func() {
			boom := errors.New("boom")
			err := store.InTx(ctx, func(tx repository.Tx) error {
				if err := tx.Debit(ctx, "alice", "gold", 300); err != nil {
					return err
				}
				if _, err := tx.AddProgress(ctx, "m-1", mission.Resources{"gold": 300}); err != nil {
					return err
				}
				return boom
			})

			Convey("Then everything rolls back", func() {
				So(errors.Is(err, boom), ShouldBeTrue)

				balances, berr := store.Balances(ctx, "alice")
				So(berr, ShouldBeNil)
				So(balances["gold"], ShouldEqual, 1000)

				m, merr := store.Mission(ctx, "m-1")
				So(merr, ShouldBeNil)
				So(m.Progress["gold"], ShouldEqual, 0)
			})
		})
	})
}

func TestAddProgressAndCompletion(t *testing.T) {
	ctx := context.Background()

	Convey("Given an active mission", t, func() {
		store := openStore(t)
		seedMission(t, store, "m-1")

		Convey("When progress accumulates across transactions", func() {
			var first, second mission.Resources
			err := store.InTx(ctx, func(tx repository.Tx) error {
				var err error
				first, err = tx.AddProgress(ctx, "m-1", mission.Resources{"gold": 400})
				return err
			})
			So(err, ShouldBeNil)
			err = store.InTx(ctx, func(tx repository.Tx) error {
				var err error
				second, err = tx.AddProgress(ctx, "m-1", mission.Resources{"gold": 600, "iron_ore": 500})
				return err
			})
			So(err, ShouldBeNil)

			Convey("Then totals are the sum of all deltas", func() {
				So(first, ShouldResemble, mission.Resources{"gold": 400})
				So(second, ShouldResemble, mission.Resources{"gold": 1000, "iron_ore": 500})
			})

			Convey("And the completion flip fires exactly once", func() {
				var flips []bool
				for i := 0; i < 3; i++ {
					err := store.InTx(ctx, func(tx repository.Tx) error {
						flipped, err := tx.CompleteMission(ctx, "m-1", time.Now())
						flips = append(flips, flipped)
						return err
					})
					So(err, ShouldBeNil)
				}
				So(flips, ShouldResemble, []bool{true, false, false})

				m, err := store.Mission(ctx, "m-1")
				So(err, ShouldBeNil)
				So(m.Status, ShouldEqual, mission.StatusCompleted)
				So(m.CompletedAt.IsZero(), ShouldBeFalse)
			})
		})
	})
}

func TestParticipantsAndRanks(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	Convey("Given upserted participants", t, func() {
		store := openStore(t)
		seedMission(t, store, "m-1")

		err := store.InTx(ctx, func(tx repository.Tx) error {
			for i, user := range []string{"alice", "bob"} {
				p := &mission.Participant{
					MissionID:    "m-1",
					UserID:       user,
					GuildID:      "g-9",
					Contribution: mission.Resources{"gold": int64(100 * (i + 1))},
					Score:        float64(i+1) / 10,
					Tier:         "",
					JoinedAt:     now.Add(time.Duration(i) * time.Second),
					UpdatedAt:    now,
				}
				if err := tx.UpsertParticipant(ctx, p); err != nil {
					return err
				}
			}
			return tx.SetRanks(ctx, "m-1", map[string]int{"bob": 1, "alice": 2})
		})
		So(err, ShouldBeNil)

		Convey("Then reads see merged state and ranks", func() {
			p, err := store.Participant(ctx, "m-1", "bob")
			So(err, ShouldBeNil)
			So(p.Contribution, ShouldResemble, mission.Resources{"gold": 200})
			So(p.Rank, ShouldEqual, 1)
			So(p.GuildID, ShouldEqual, "g-9")

			all, err := store.Participants(ctx, "m-1")
			So(err, ShouldBeNil)
			So(all, ShouldHaveLength, 2)
			So(all[0].UserID, ShouldEqual, "bob") // highest score first
		})

		Convey("And re-upserting merges without touching joined_at or guild", func() {
			err := store.InTx(ctx, func(tx repository.Tx) error {
				p, err := tx.Participant(ctx, "m-1", "alice")
				if err != nil {
					return err
				}
				p.Contribution = p.Contribution.Merge(mission.Resources{"gold": 50})
				p.GuildID = "ignored-on-update"
				p.UpdatedAt = now.Add(time.Minute)
				return tx.UpsertParticipant(ctx, p)
			})
			So(err, ShouldBeNil)

			p, err := store.Participant(ctx, "m-1", "alice")
			So(err, ShouldBeNil)
			So(p.Contribution["gold"], ShouldEqual, 150)
			So(p.GuildID, ShouldEqual, "g-9")
			So(p.JoinedAt.Equal(now), ShouldBeTrue)
		})

		Convey("And an unknown participant is not found", func() {
			_, err := store.Participant(ctx, "m-1", "ghost")
			So(errors.Is(err, mission.ErrParticipantNotFound), ShouldBeTrue)
		})
	})
}

func TestClaimReward(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	Convey("Given a tiered participant", t, func() {
		store := openStore(t)
		seedMission(t, store, "m-1")
		err := store.InTx(ctx, func(tx repository.Tx) error {
			return tx.UpsertParticipant(ctx, &mission.Participant{
				MissionID:    "m-1",
				UserID:       "alice",
				Contribution: mission.Resources{"gold": 1000},
				Score:        0.5,
				Tier:         "silver",
				JoinedAt:     now,
				UpdatedAt:    now,
			})
		})
		So(err, ShouldBeNil)

		Convey("When the reward is claimed twice", func() {
			err := store.InTx(ctx, func(tx repository.Tx) error {
				return tx.SetRewardClaimed(ctx, "m-1", "alice")
			})
			So(err, ShouldBeNil)

			err = store.InTx(ctx, func(tx repository.Tx) error {
				return tx.SetRewardClaimed(ctx, "m-1", "alice")
			})

			Convey("Then the second claim is rejected", func() {
				So(errors.Is(err, mission.ErrRewardAlreadyClaimed), ShouldBeTrue)
			})
		})
	})
}

func TestActivityLog(t *testing.T) {
	ctx := context.Background()

	Convey("Given appended activity entries", t, func() {
		store := openStore(t)
		seedMission(t, store, "m-1")

		for i := 0; i < 3; i++ {
			err := store.AppendActivity(ctx, &mission.ActivityEntry{
				ID:        uuid.NewString(),
				MissionID: "m-1",
				UserID:    "alice",
				Delta:     mission.Resources{"gold": int64(i + 1)},
				Score:     0.1 * float64(i+1),
				Tier:      "bronze",
				CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
			})
			So(err, ShouldBeNil)
		}

		Convey("Then the newest entries come back first", func() {
			entries, err := store.Activity(ctx, "m-1", 2)
			So(err, ShouldBeNil)
			So(entries, ShouldHaveLength, 2)
			So(entries[0].Delta["gold"], ShouldEqual, 3)
			So(entries[1].Delta["gold"], ShouldEqual, 2)
		})
	})
}
