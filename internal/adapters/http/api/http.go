// Package api exposes the roster, leaderboard and delivery log over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/podium/internal/domain/deliverylog"
	"github.com/okian/podium/internal/domain/types"
)

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Roster is the participant side of the service.
type Roster interface {
	AddParticipant(ctx context.Context, in ParticipantInput) (types.Profile, error)
	SubmitTime(ctx context.Context, id, raceTime string) (SubmitResult, error)
	RemoveParticipant(ctx context.Context, id string) error
	Participant(ctx context.Context, id string) (types.Profile, error)
	TopN(ctx context.Context, n int) ([]Entry, error)
	Rank(ctx context.Context, id string) (Entry, error)
}

// DeliveryLog is the read and purge side of the delivery log.
type DeliveryLog interface {
	Deliveries(ctx context.Context, limit int) ([]deliverylog.Record, error)
	Activity(ctx context.Context, limit int) ([]deliverylog.Activity, error)
	PurgeDeliveries(ctx context.Context) (int64, error)
}

// Dependencies required by HTTP handlers.
type Dependencies interface {
	Roster
	DeliveryLog
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler       *HealthHandler
	statsHandler        *StatsHandler
	participantsHandler *ParticipantsHandler
	leaderboardHandler  *LeaderboardHandler
	rankHandler         *RankHandler
	deliveriesHandler   *DeliveriesHandler
	feed                http.Handler
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithFeed mounts the live feed handler at /ws.
func WithFeed(h http.Handler) Option {
	return func(s *Server) {
		s.feed = h
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int, opts ...Option) *Server {
	s := &Server{
		healthHandler:       NewHealthHandler(),
		statsHandler:        NewStatsHandler(statsProvider),
		participantsHandler: NewParticipantsHandler(deps),
		leaderboardHandler:  NewLeaderboardHandler(deps, maxLimit),
		rankHandler:         NewRankHandler(deps),
		deliveriesHandler:   NewDeliveriesHandler(deps, maxLimit),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /participants", MetricsMiddleware(s.participantsHandler.HandleAdd, "participants"))
	mux.HandleFunc("GET /participants/{id}", MetricsMiddleware(s.participantsHandler.HandleGet, "participant"))
	mux.HandleFunc("DELETE /participants/{id}", MetricsMiddleware(s.participantsHandler.HandleDelete, "participant"))
	mux.HandleFunc("POST /participants/{id}/score", MetricsMiddleware(s.participantsHandler.HandleSubmitTime, "score"))

	mux.HandleFunc("GET /leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("GET /rank/{id}", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))

	mux.HandleFunc("GET /deliveries", MetricsMiddleware(s.deliveriesHandler.HandleList, "deliveries"))
	mux.HandleFunc("DELETE /deliveries", MetricsMiddleware(s.deliveriesHandler.HandlePurge, "deliveries"))
	mux.HandleFunc("GET /activity", MetricsMiddleware(s.deliveriesHandler.HandleActivity, "activity"))

	if s.feed != nil {
		mux.Handle("GET /ws", s.feed)
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status via its kind.
func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
