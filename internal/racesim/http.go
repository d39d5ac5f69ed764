package racesim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/podium/pkg/logger"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// do sends a request and decodes a JSON reply into out when it is not nil.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any, want int) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != want {
		return fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *HTTPClient) register(ctx context.Context, r Racer) (Entry, error) {
	var e Entry
	err := c.do(ctx, http.MethodPost, "/participants", r, &e, http.StatusCreated)
	return e, err
}

func (c *HTTPClient) submitTime(ctx context.Context, id, raceTime string) (submitResponse, error) {
	var res submitResponse
	path := "/participants/" + url.PathEscape(id) + "/score"
	err := c.do(ctx, http.MethodPost, path, map[string]string{"time": raceTime}, &res, http.StatusOK)
	return res, err
}

func (c *HTTPClient) leaderboard(ctx context.Context, limit int) ([]Entry, error) {
	var entries []Entry
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/leaderboard?limit=%d", limit), nil, &entries, http.StatusOK)
	return entries, err
}

func (c *HTTPClient) deliveries(ctx context.Context, limit int) ([]Delivery, error) {
	var records []Delivery
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/deliveries?limit=%d", limit), nil, &records, http.StatusOK)
	return records, err
}

func (c *HTTPClient) health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, http.StatusOK)
}

// registerRacers registers racers concurrently. Successful registrations get
// their assigned id.
func registerRacers(ctx context.Context, config *Config, client *HTTPClient, racers []Racer, stats *Stats) {
	var failed, done, pushedOut int64
	forEach(ctx, config.Workers, len(racers), func(i int) {
		before := atomic.LoadInt64(&done)
		e, err := client.register(ctx, racers[i])
		if err != nil {
			atomic.AddInt64(&failed, 1)
			logger.Get().Warn(ctx, "registration failed", logger.String("phone", racers[i].Phone), logger.Error(err))
			return
		}
		atomic.AddInt64(&done, 1)
		// At least `before` racers were already stored, so a podium finish
		// over a full podium pushed someone off it.
		if config.TopN > 0 && before >= int64(config.TopN) && e.Rank <= config.TopN {
			atomic.AddInt64(&pushedOut, 1)
		}
		racers[i].ID = e.ID
		logger.Get().Debug(ctx, "registered racer", logger.String("id", e.ID), logger.String("time", e.Time), logger.Int("rank", e.Rank))
	})
	stats.RegisterFailed = int(failed)
	stats.Registered = len(racers) - stats.RegisterFailed
	stats.ExpectedDethrones = int(pushedOut)
}

// submitRound has the picked racers submit a faster time.
func submitRound(ctx context.Context, config *Config, client *HTTPClient, racers []Racer, picked []int, stats *Stats) {
	var submitted, improved, failed int64
	forEach(ctx, config.Workers, len(picked), func(j int) {
		r := &racers[picked[j]]
		next := improvedTime(r.best)
		res, err := client.submitTime(ctx, r.ID, formatTime(next))
		atomic.AddInt64(&submitted, 1)
		if err != nil {
			atomic.AddInt64(&failed, 1)
			logger.Get().Warn(ctx, "submission failed", logger.String("id", r.ID), logger.Error(err))
			return
		}
		if res.Improved {
			atomic.AddInt64(&improved, 1)
			r.best = res.Participant.Score
		}
	})
	stats.Submissions += int(submitted)
	stats.Improvements += int(improved)
	stats.SubmitFailed += int(failed)
}

// forEach runs fn for 0..n-1 on a pool of workers.
func forEach(ctx context.Context, workers, n int, fn func(i int)) {
	workers = max(1, min(workers, n))
	indexes := make(chan int, workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				if ctx.Err() != nil {
					continue
				}
				fn(i)
			}
		}()
	}
feed:
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			break feed
		case indexes <- i:
		}
	}
	close(indexes)
	wg.Wait()
}
