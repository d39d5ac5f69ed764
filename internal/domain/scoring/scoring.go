// Package scoring converts race times between the human-entered form and the
// integer ranking unit (hundredths of a second).
//
// Input is 1-4 ASCII digits read as SShh after left-padding with zeros, so
// "2345" is 23.45s and "95" is 00.95s. Lower scores rank higher.
package scoring

import (
	"fmt"
	"strconv"
)

const (
	timeWidth         = 4
	hundredthsPerSec  = 100
	maxSecondsPerRace = 60
)

// Encode parses a race time string into hundredths of a second.
func Encode(raceTime string) (int64, error) {
	if len(raceTime) == 0 || len(raceTime) > timeWidth {
		return 0, fmt.Errorf("%w: %q must be 1 to %d digits", ErrInvalidTime, raceTime, timeWidth)
	}
	for i := 0; i < len(raceTime); i++ {
		if raceTime[i] < '0' || raceTime[i] > '9' {
			return 0, fmt.Errorf("%w: %q must contain digits only", ErrInvalidTime, raceTime)
		}
	}

	padded := fmt.Sprintf("%0*s", timeWidth, raceTime)
	seconds, _ := strconv.ParseInt(padded[:2], 10, 64)
	hundredths, _ := strconv.ParseInt(padded[2:], 10, 64)
	if seconds >= maxSecondsPerRace {
		return 0, fmt.Errorf("%w: seconds %02d must be between 00 and 59", ErrInvalidTime, seconds)
	}
	return seconds*hundredthsPerSec + hundredths, nil
}

// Decode formats hundredths of a second as "SS.hh". Negative scores clamp to
// "00.00"; seconds above 99 are printed in full.
func Decode(score int64) string {
	if score < 0 {
		return "00.00"
	}
	return fmt.Sprintf("%02d.%02d", score/hundredthsPerSec, score%hundredthsPerSec)
}

// RankLabel renders a 1-based rank as "1st place", "2nd place", "11th place".
func RankLabel(rank int) string {
	return ordinal(rank) + " place"
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}
