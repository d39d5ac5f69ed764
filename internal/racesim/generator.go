package racesim

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

var firstNames = []string{"Ana", "Ben", "Cleo", "Dev", "Ema", "Finn", "Gia", "Hugo", "Ines", "Jay", "Kira", "Leo"}

// formatTime renders hundredths of a second as the SShh digits the API takes.
func formatTime(score int64) string {
	return fmt.Sprintf("%04d", score)
}

// generateRacers creates n racers with distinct phones and random first times.
func generateRacers(n int, phonePrefix string) []Racer {
	racers := make([]Racer, n)
	for i := range racers {
		best := minTime + rand.Int64N(maxTime-minTime+1)
		racers[i] = Racer{
			Name:    firstNames[i%len(firstNames)],
			Surname: strings.ToUpper(uuid.NewString()[:6]),
			Phone:   fmt.Sprintf("%s8%08d", phonePrefix, i+1),
			Time:    formatTime(best),
			best:    best,
		}
	}
	return racers
}

// improvedTime returns a faster time than best, never below the course record.
func improvedTime(best int64) int64 {
	next := best - 1 - rand.Int64N(maxImprove)
	return max(next, fastestTime)
}

// pickRetries selects the racers that retry this round.
func pickRetries(racers []Racer) []int {
	var idx []int
	for i := range racers {
		if racers[i].ID != "" && rand.IntN(improveChance) == 0 {
			idx = append(idx, i)
		}
	}
	return idx
}
