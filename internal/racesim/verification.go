package racesim

import (
	"context"
	"fmt"

	"github.com/okian/podium/pkg/logger"
)

// verifyLeaderboard checks the served order against the times the simulator
// knows it submitted.
func verifyLeaderboard(racers []Racer, leaderboard []Entry) error {
	if len(leaderboard) == 0 {
		return fmt.Errorf("empty leaderboard")
	}

	best := make(map[string]int64, len(racers))
	fastest := int64(-1)
	for _, r := range racers {
		if r.ID == "" {
			continue
		}
		best[r.ID] = r.best
		if fastest < 0 || r.best < fastest {
			fastest = r.best
		}
	}

	for i, e := range leaderboard {
		if e.Rank != i+1 {
			return fmt.Errorf("entry %d has rank %d", i, e.Rank)
		}
		if i > 0 && e.Score < leaderboard[i-1].Score {
			return fmt.Errorf("leaderboard not properly sorted: rank %d (%s) is faster than rank %d (%s)",
				e.Rank, e.Time, leaderboard[i-1].Rank, leaderboard[i-1].Time)
		}
		want, ok := best[e.ID]
		if !ok {
			continue
		}
		if e.Score != want {
			return fmt.Errorf("racer %s shows %s, expected %s", e.ID, e.Time, formatTime(want))
		}
	}

	if leaderboard[0].Score != fastest {
		return fmt.Errorf("leader time %s does not match fastest submitted time %s",
			leaderboard[0].Time, formatTime(fastest))
	}
	return nil
}

// summarizeDeliveries counts records by template and reports failures.
func summarizeDeliveries(records []Delivery, stats *Stats) {
	stats.Deliveries = make(map[string]int)
	for _, r := range records {
		stats.Deliveries[r.Template]++
		if r.Status == "failure" {
			stats.FailedDeliveries++
		}
	}
}

// verifyDeliveries checks that registrations were notified and that racers
// pushed off the podium by a registration got a dethrone message. Only a log
// that fits in one page can be checked exhaustively.
func verifyDeliveries(ctx context.Context, records []Delivery, stats *Stats, complete bool) error {
	summarizeDeliveries(records, stats)
	entries := stats.Deliveries[templateEntrySuccess] + stats.Deliveries[templateEntryFailure]

	logger.Get().Info(ctx, "delivery log",
		logger.Int("entrySuccess", stats.Deliveries[templateEntrySuccess]),
		logger.Int("entryFailure", stats.Deliveries[templateEntryFailure]),
		logger.Int("dethrone", stats.Deliveries[templateDethrone]),
		logger.Int("expectedDethrone", stats.ExpectedDethrones),
		logger.Int("failed", stats.FailedDeliveries))

	if stats.FailedDeliveries > 0 {
		logger.Get().Warn(ctx, "some deliveries failed; check provider configuration",
			logger.Int("failed", stats.FailedDeliveries))
	}
	if complete && entries < stats.Registered {
		return fmt.Errorf("%d registrations but only %d entry notifications", stats.Registered, entries)
	}
	if complete && stats.Deliveries[templateDethrone] < stats.ExpectedDethrones {
		return fmt.Errorf("%d registrations displaced a podium member but only %d dethrone notifications",
			stats.ExpectedDethrones, stats.Deliveries[templateDethrone])
	}
	return nil
}
