// missiond-seed exercises a running missiond instance: it creates a demo
// mission, funds a set of users, and fires concurrent contributions at it,
// then prints the resulting leaderboard.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	defaultUsers       = 50
	defaultSubmissions = 1000
	defaultWorkers     = 8
	defaultTimeout     = 10 * time.Second
	runTimeout         = 5 * time.Minute
)

var resources = []string{"gold", "iron_ore", "lumber"}

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of the service")
		users       = flag.Int("users", defaultUsers, "Number of users to fund")
		submissions = flag.Int("submissions", defaultSubmissions, "Number of contributions to submit")
		workers     = flag.Int("workers", defaultWorkers, "Number of concurrent submitters")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	c := &client{
		base: *baseURL,
		http: &http.Client{Timeout: *timeout},
	}
	if err := run(ctx, c, *users, *submissions, *workers); err != nil {
		os.Stderr.WriteString("seed failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context, c *client, users, submissions, workers int) error {
	missionID, err := c.createMission(ctx)
	if err != nil {
		return fmt.Errorf("create mission: %w", err)
	}
	fmt.Println("mission:", missionID)

	userIDs := make([]string, users)
	for i := range userIDs {
		userIDs[i] = fmt.Sprintf("user-%03d", i)
		for _, res := range resources {
			if err := c.credit(ctx, userIDs[i], res, 1_000_000); err != nil {
				return fmt.Errorf("fund %s: %w", userIDs[i], err)
			}
		}
	}
	fmt.Printf("funded %d users\n", users)

	var accepted, rejected atomic.Int64
	jobs := make(chan int)
	var wg sync.WaitGroup
	start := time.Now()

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // load generation
			for range jobs {
				user := userIDs[rng.Intn(len(userIDs))]
				delta := map[string]int64{
					resources[rng.Intn(len(resources))]: int64(1 + rng.Intn(500)),
				}
				if err := c.submit(ctx, missionID, user, delta); err != nil {
					rejected.Add(1)
					continue
				}
				accepted.Add(1)
			}
		}()
	}
	for i := 0; i < submissions; i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
			close(jobs)
			return ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(start)
	fmt.Printf("submitted %d contributions in %s (%.0f/s), %d rejected\n",
		accepted.Load(), elapsed.Round(time.Millisecond),
		float64(accepted.Load())/elapsed.Seconds(), rejected.Load())

	board, err := c.leaderboard(ctx, missionID, 10)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}
	fmt.Println("top contributors:")
	for _, e := range board {
		fmt.Printf("  %2d. %-10s score=%.4f tier=%s\n", e.Rank, e.UserID, e.Score, e.Tier)
	}
	return nil
}

type client struct {
	base string
	http *http.Client
}

func (c *client) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) createMission(ctx context.Context) (string, error) {
	body := map[string]any{
		"name": "seed mission " + time.Now().Format("15:04:05"),
		"requirements": map[string]int64{
			"gold":     100_000,
			"iron_ore": 100_000,
			"lumber":   100_000,
		},
		"tiers": []map[string]any{
			{"name": "bronze", "threshold": 0.01},
			{"name": "silver", "threshold": 0.05},
			{"name": "gold", "threshold": 0.1},
		},
		"ends_at": time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/missions", body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *client) credit(ctx context.Context, userID, resource string, amount int64) error {
	return c.post(ctx, "/wallets/"+userID+"/credits",
		map[string]any{"resource": resource, "amount": amount}, nil)
}

func (c *client) submit(ctx context.Context, missionID, userID string, delta map[string]int64) error {
	return c.post(ctx, "/missions/"+missionID+"/contributions", map[string]any{
		"submission_id": uuid.NewString(),
		"user_id":       userID,
		"delta":         delta,
	}, nil)
}

type boardEntry struct {
	Rank   int     `json:"rank"`
	UserID string  `json:"user_id"`
	Score  float64 `json:"score"`
	Tier   string  `json:"tier"`
}

func (c *client) leaderboard(ctx context.Context, missionID string, limit int) ([]boardEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/missions/%s/leaderboard?limit=%d", c.base, missionID, limit), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("leaderboard: status %d", resp.StatusCode)
	}
	var out []boardEntry
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
