// Package repository provides the roster stores: an in-memory treap and a
// Postgres-backed store with LISTEN/NOTIFY subscriptions.
package repository

import (
	"context"

	"github.com/okian/podium/internal/domain/model"
)

// Listener receives the full roster, ranked ascending by score with ties in
// arrival order. Listeners run synchronously in mutation order and must not
// write to the store.
type Listener func(players []model.Participant)

// Store provides read/write access to one event's roster.
type Store interface {
	// Add registers p with Attempts = 1. An empty ID is assigned.
	Add(ctx context.Context, p model.Participant) (model.Participant, error)

	// UpdateBest records a new attempt for id. Attempts always increase; the
	// score changes only when it is lower than the current best. Returns
	// whether the score improved.
	UpdateBest(ctx context.Context, id string, score int64) (model.Participant, bool, error)

	// Delete removes id. Returns ErrNotFound if unknown.
	Delete(ctx context.Context, id string) error

	// Get returns a participant. Returns ErrNotFound if unknown.
	Get(ctx context.Context, id string) (model.Participant, error)

	// Rank returns the 1-based rank and the participant.
	Rank(ctx context.Context, id string) (int, model.Participant, error)

	// TopN returns the best n participants in rank order.
	TopN(ctx context.Context, n int) ([]model.Participant, error)

	// Ranked returns the whole roster in rank order.
	Ranked(ctx context.Context) ([]model.Participant, error)

	// Count returns the roster size.
	Count(ctx context.Context) int

	// Subscribe calls fn with the current roster now and after every
	// mutation until the returned func is called or ctx ends.
	Subscribe(ctx context.Context, fn Listener) (func(), error)

	// Close releases resources.
	Close() error
}
