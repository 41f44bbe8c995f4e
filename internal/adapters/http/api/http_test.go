package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/aurelian-hq/missiond/internal/adapters/http/api"
	"github.com/aurelian-hq/missiond/internal/adapters/rankindex"
	"github.com/aurelian-hq/missiond/internal/app"
	"github.com/aurelian-hq/missiond/internal/domain/mission"
)

// fakeLedger implements api.Dependencies with canned state.
type fakeLedger struct {
	missions     map[string]*mission.Mission
	participants map[string]*mission.Participant
	board        []rankindex.Entry
	activity     []mission.ActivityEntry
	balances     map[string]mission.Resources

	submitErr   error
	lastSubmit  app.Submission
	submitCount int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		missions:     make(map[string]*mission.Mission),
		participants: make(map[string]*mission.Participant),
		balances:     make(map[string]mission.Resources),
	}
}

func (f *fakeLedger) Submit(_ context.Context, sub app.Submission) (*app.Receipt, error) {
	f.lastSubmit = sub
	f.submitCount++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &app.Receipt{
		MissionID:     sub.MissionID,
		UserID:        sub.UserID,
		Contribution:  sub.Delta,
		Score:         0.3,
		Tier:          "silver",
		Rank:          1,
		Progress:      sub.Delta,
		MissionStatus: mission.StatusActive,
	}, nil
}

func (f *fakeLedger) CreateMission(_ context.Context, m *mission.Mission) (*mission.Mission, error) {
	if err := mission.ValidateDefinition(m, time.Now()); err != nil {
		return nil, err
	}
	m.ID = "m-1"
	m.Status = mission.StatusActive
	f.missions[m.ID] = m
	return m, nil
}

func (f *fakeLedger) Mission(_ context.Context, id string) (*mission.Mission, error) {
	m, ok := f.missions[id]
	if !ok {
		return nil, mission.ErrMissionNotFound
	}
	return m, nil
}

func (f *fakeLedger) Missions(context.Context) ([]mission.Mission, error) {
	out := make([]mission.Mission, 0, len(f.missions))
	for _, m := range f.missions {
		out = append(out, *m)
	}
	return out, nil
}

func (f *fakeLedger) Leaderboard(_ context.Context, missionID string, _ int) ([]rankindex.Entry, error) {
	if _, ok := f.missions[missionID]; !ok {
		return nil, mission.ErrMissionNotFound
	}
	return f.board, nil
}

func (f *fakeLedger) Participant(_ context.Context, missionID, userID string) (*mission.Participant, error) {
	p, ok := f.participants[missionID+"/"+userID]
	if !ok {
		return nil, mission.ErrParticipantNotFound
	}
	return p, nil
}

func (f *fakeLedger) Activity(_ context.Context, missionID string, _ int) ([]mission.ActivityEntry, error) {
	if _, ok := f.missions[missionID]; !ok {
		return nil, mission.ErrMissionNotFound
	}
	return f.activity, nil
}

func (f *fakeLedger) Credit(_ context.Context, userID, resource string, amount int64) (int64, error) {
	if f.balances[userID] == nil {
		f.balances[userID] = mission.Resources{}
	}
	f.balances[userID][resource] += amount
	return f.balances[userID][resource], nil
}

func (f *fakeLedger) Balances(_ context.Context, userID string) (mission.Resources, error) {
	b, ok := f.balances[userID]
	if !ok {
		return mission.Resources{}, nil
	}
	return b, nil
}

func (f *fakeLedger) ClaimReward(_ context.Context, missionID, userID string) (*mission.Participant, error) {
	p, err := f.Participant(context.Background(), missionID, userID)
	if err != nil {
		return nil, err
	}
	if p.RewardClaimed {
		return nil, mission.ErrRewardAlreadyClaimed
	}
	p.RewardClaimed = true
	return p, nil
}

func (f *fakeLedger) GetStats(context.Context) app.Stats {
	return app.Stats{Missions: len(f.missions)}
}

func newTestServer(f *fakeLedger) *httptest.Server {
	mux := http.NewServeMux()
	api.NewServer(f).Register(context.Background(), mux)
	return httptest.NewServer(mux)
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestCreateMissionEndpoint(t *testing.T) {
	Convey("Given the API server", t, func() {
		f := newFakeLedger()
		srv := newTestServer(f)
		defer srv.Close()

		Convey("A valid definition is created", func() {
			body := `{"name":"Bazaar","requirements":{"gold":1000},"ends_at":"2027-01-01T00:00:00Z"}`
			resp, err := http.Post(srv.URL+"/missions", "application/json", strings.NewReader(body))
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusCreated)

			var got map[string]any
			decode(t, resp, &got)
			So(got["id"], ShouldEqual, "m-1")
			So(got["status"], ShouldEqual, "active")
		})

		Convey("A malformed body is rejected", func() {
			resp, err := http.Post(srv.URL+"/missions", "application/json", strings.NewReader("{"))
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			resp.Body.Close()
		})

		Convey("A definition without requirements is rejected", func() {
			body := `{"name":"Bazaar","ends_at":"2027-01-01T00:00:00Z"}`
			resp, err := http.Post(srv.URL+"/missions", "application/json", strings.NewReader(body))
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			resp.Body.Close()
		})
	})
}

func TestSubmitContributionEndpoint(t *testing.T) {
	Convey("Given the API server", t, func() {
		f := newFakeLedger()
		srv := newTestServer(f)
		defer srv.Close()

		post := func(body string) *http.Response {
			resp, err := http.Post(srv.URL+"/missions/m-1/contributions", "application/json",
				strings.NewReader(body))
			So(err, ShouldBeNil)
			return resp
		}

		Convey("An accepted contribution returns 201 with a receipt", func() {
			resp := post(`{"submission_id":"s1","user_id":"u1","delta":{"gold":300}}`)
			So(resp.StatusCode, ShouldEqual, http.StatusCreated)

			var r app.Receipt
			decode(t, resp, &r)
			So(r.Score, ShouldAlmostEqual, 0.3)
			So(r.Tier, ShouldEqual, "silver")
			So(f.lastSubmit.MissionID, ShouldEqual, "m-1")
			So(f.lastSubmit.SubmissionID, ShouldEqual, "s1")
		})

		Convey("Missing fields never reach the ledger", func() {
			resp := post(`{"user_id":"u1","delta":{"gold":300}}`)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			So(f.submitCount, ShouldEqual, 0)
			resp.Body.Close()
		})

		Convey("Ledger errors map to HTTP statuses", func() {
			cases := map[int]error{
				http.StatusNotFound:        mission.ErrMissionNotFound,
				http.StatusConflict:        mission.ErrMissionNotActive,
				http.StatusPaymentRequired: mission.ErrInsufficientResources,
				http.StatusBadRequest:      mission.ErrInvalidContribution,
			}
			for status, lerr := range cases {
				f.submitErr = lerr
				resp := post(`{"submission_id":"s1","user_id":"u1","delta":{"gold":1}}`)
				So(resp.StatusCode, ShouldEqual, status)
				resp.Body.Close()
			}
		})

		Convey("Validation details surface in the error body", func() {
			f.submitErr = &mission.ValidationError{Fields: []mission.FieldError{
				{Field: "obsidian", Reason: "not a mission requirement"},
			}}
			resp := post(`{"submission_id":"s1","user_id":"u1","delta":{"obsidian":1}}`)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)

			var got struct {
				Code   string               `json:"code"`
				Fields []mission.FieldError `json:"fields"`
			}
			decode(t, resp, &got)
			So(got.Code, ShouldEqual, "invalid_contribution")
			So(got.Fields, ShouldHaveLength, 1)
			So(got.Fields[0].Field, ShouldEqual, "obsidian")
		})
	})
}

func TestLeaderboardEndpoints(t *testing.T) {
	Convey("Given a mission with a board", t, func() {
		f := newFakeLedger()
		f.missions["m-1"] = &mission.Mission{ID: "m-1", Status: mission.StatusActive}
		f.board = []rankindex.Entry{
			{Rank: 1, UserID: "carol", Score: 0.45},
			{Rank: 2, UserID: "alice", Score: 0.4},
		}
		f.participants["m-1/alice"] = &mission.Participant{
			MissionID: "m-1", UserID: "alice", Score: 0.4, Rank: 2, Tier: "silver",
		}
		srv := newTestServer(f)
		defer srv.Close()

		Convey("The leaderboard returns entries in order", func() {
			resp, err := http.Get(srv.URL + "/missions/m-1/leaderboard?limit=10")
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var got []rankindex.Entry
			decode(t, resp, &got)
			So(got, ShouldHaveLength, 2)
			So(got[0].UserID, ShouldEqual, "carol")
		})

		Convey("A bad limit is rejected", func() {
			resp, err := http.Get(srv.URL + "/missions/m-1/leaderboard?limit=zero")
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			resp.Body.Close()
		})

		Convey("An unknown mission is a 404", func() {
			resp, err := http.Get(srv.URL + "/missions/nope/leaderboard")
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			resp.Body.Close()
		})

		Convey("A participant read returns the persisted record", func() {
			resp, err := http.Get(srv.URL + "/missions/m-1/participants/alice")
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var got map[string]any
			decode(t, resp, &got)
			So(got["user_id"], ShouldEqual, "alice")
			So(got["rank"], ShouldEqual, 2)
		})

		Convey("An unknown participant is a 404", func() {
			resp, err := http.Get(srv.URL + "/missions/m-1/participants/mallory")
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			resp.Body.Close()
		})

		Convey("A claim flips the participant once", func() {
			resp, err := http.Post(srv.URL+"/missions/m-1/participants/alice/claim", "application/json", nil)
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			resp.Body.Close()

			again, err := http.Post(srv.URL+"/missions/m-1/participants/alice/claim", "application/json", nil)
			So(err, ShouldBeNil)
			So(again.StatusCode, ShouldEqual, http.StatusConflict)
			again.Body.Close()
		})
	})
}

func TestWalletEndpoints(t *testing.T) {
	Convey("Given the API server", t, func() {
		f := newFakeLedger()
		srv := newTestServer(f)
		defer srv.Close()

		Convey("A credit returns the new balance", func() {
			body := `{"resource":"gold","amount":500}`
			resp, err := http.Post(srv.URL+"/wallets/u1/credits", "application/json", strings.NewReader(body))
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var got map[string]any
			decode(t, resp, &got)
			So(got["balance"], ShouldEqual, 500)
		})

		Convey("A non-positive credit is rejected", func() {
			body := `{"resource":"gold","amount":0}`
			resp, err := http.Post(srv.URL+"/wallets/u1/credits", "application/json", strings.NewReader(body))
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			resp.Body.Close()
		})

		Convey("Balances round-trip", func() {
			_, err := f.Credit(context.Background(), "u2", "iron", 42)
			So(err, ShouldBeNil)

			resp, err := http.Get(srv.URL + "/wallets/u2")
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var got mission.Resources
			decode(t, resp, &got)
			So(got["iron"], ShouldEqual, 42)
		})
	})
}

func TestStatsEndpoint(t *testing.T) {
	Convey("Given the API server", t, func() {
		f := newFakeLedger()
		f.missions["m-1"] = &mission.Mission{ID: "m-1"}
		srv := newTestServer(f)
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/stats")
		So(err, ShouldBeNil)
		So(resp.StatusCode, ShouldEqual, http.StatusOK)

		var got app.Stats
		decode(t, resp, &got)
		So(got.Missions, ShouldEqual, 1)
	})
}

func TestHealthEndpoint(t *testing.T) {
	Convey("Given the API server", t, func() {
		srv := newTestServer(newFakeLedger())
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/healthz")
		So(err, ShouldBeNil)
		So(resp.StatusCode, ShouldEqual, http.StatusOK)
		resp.Body.Close()
	})
}
