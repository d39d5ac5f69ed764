package api

import (
	"context"
	"net/http"
	"strconv"
)

const defaultLeaderboardLimit = 10

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	TopN(ctx context.Context, n int) ([]Entry, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps, maxLimit: maxLimit}
}

// parseLimit reads ?limit=, defaulting when absent and rejecting values
// outside 1..max.
func parseLimit(r *http.Request, def, maxN int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return min(def, maxN), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxN {
		return 0, ErrBadRequest
	}
	return n, nil
}

// HandleGetLeaderboard handles GET /leaderboard?limit=N requests.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	n, err := parseLimit(r, defaultLeaderboardLimit, h.maxLimit)
	if err != nil {
		writeError(w, NewKind(op, err))
		return
	}
	entries, err := h.deps.TopN(r.Context(), n)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
