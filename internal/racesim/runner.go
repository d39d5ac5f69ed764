package racesim

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/podium/pkg/logger"
)

// listLimit is the page size used for leaderboard and delivery reads.
const listLimit = 100

// Run executes the complete simulation.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting race simulation",
		logger.String("baseURL", config.BaseURL),
		logger.Int("racers", config.Racers),
		logger.Int("rounds", config.Rounds),
		logger.Int("workers", config.Workers),
		logger.Int("topN", config.TopN))

	client := newHTTPClient(config.BaseURL, config.Timeout)

	// Step 1: Check service health
	if err := client.health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Register the field
	racers := generateRacers(config.Racers, config.PhonePrefix)
	registerRacers(ctx, config, client, racers, stats)
	if stats.Registered == 0 {
		return stats, fmt.Errorf("no racer could be registered")
	}
	log.Info(ctx, "field registered", logger.Int("registered", stats.Registered), logger.Int("failed", stats.RegisterFailed))

	// Step 3: Retry rounds with faster times
	for round := 1; round <= config.Rounds; round++ {
		picked := pickRetries(racers)
		submitRound(ctx, config, client, racers, picked, stats)
		log.Info(ctx, "round finished", logger.Int("round", round), logger.Int("retries", len(picked)))
	}

	// Step 4: Let the pipeline dispatch
	select {
	case <-ctx.Done():
		return stats, ctx.Err()
	case <-time.After(config.Settle):
	}

	// Step 5: Verify the leaderboard
	leaderboard, err := client.leaderboard(ctx, min(listLimit, stats.Registered))
	if err != nil {
		return stats, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	stats.LeaderboardEntries = len(leaderboard)
	if err := verifyLeaderboard(racers, leaderboard); err != nil {
		return stats, fmt.Errorf("leaderboard verification failed: %w", err)
	}
	displayPodium(ctx, leaderboard, config.TopN)

	// Step 6: Verify the delivery log
	records, err := client.deliveries(ctx, listLimit)
	if err != nil {
		return stats, fmt.Errorf("delivery log retrieval failed: %w", err)
	}
	if err := verifyDeliveries(ctx, records, stats, len(records) < listLimit); err != nil {
		return stats, fmt.Errorf("delivery verification failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)

	log.Info(ctx, "simulation completed successfully")
	return stats, nil
}

func displayPodium(ctx context.Context, leaderboard []Entry, topN int) {
	for _, e := range leaderboard[:min(topN, len(leaderboard))] {
		logger.Get().Info(ctx, "podium",
			logger.Int("rank", e.Rank),
			logger.String("name", e.Name+" "+e.Surname),
			logger.String("time", e.Time),
			logger.Int("attempts", e.Attempts))
	}
}

// displayFinalStats prints the final simulation statistics.
func displayFinalStats(stats *Stats) {
	var improveRate float64
	if stats.Submissions > 0 {
		improveRate = float64(stats.Improvements) / float64(stats.Submissions) * PercentageMultiplier
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("registered", stats.Registered),
		logger.Int("registerFailed", stats.RegisterFailed),
		logger.Int("submissions", stats.Submissions),
		logger.Int("improvements", stats.Improvements),
		logger.Int("submitFailed", stats.SubmitFailed),
		logger.Int("leaderboardEntries", stats.LeaderboardEntries),
		logger.Any("deliveries", stats.Deliveries),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("improveRate", improveRate))
}
