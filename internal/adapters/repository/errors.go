package repository

import "errors"

// Sentinel kinds for roster errors.
var (
	ErrNotFound     = errors.New("participant not found")
	ErrDuplicate    = errors.New("participant already exists")
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	ErrInvalidScore = errors.New("score must not be negative")
)
