// Package deliverylog defines the durable record of delivery attempts and
// roster activity, and the sink contract storage adapters implement.
package deliverylog

import (
	"context"
	"time"
)

// Status is the lifecycle state of a delivery attempt.
type Status string

// Delivery statuses.
const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// ErrorKind classifies a failed attempt.
type ErrorKind string

// Error kinds.
const (
	ErrorKindNone          ErrorKind = ""
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindDelivery      ErrorKind = "delivery"
)

// Record is one delivery attempt. It is appended as pending before the
// provider call and finalized afterwards. Configuration failures are
// appended already failed.
type Record struct {
	ID                string            `json:"id"`
	DedupeKey         string            `json:"dedupe_key"`
	TransitionID      string            `json:"transition_id"`
	To                string            `json:"to"`
	Template          string            `json:"template"`
	ProviderTemplate  string            `json:"provider_template,omitempty"`
	Status            Status            `json:"status"`
	ProviderMessageID string            `json:"provider_message_id,omitempty"`
	Error             string            `json:"error,omitempty"`
	ErrorKind         ErrorKind         `json:"error_kind,omitempty"`
	Note              string            `json:"note,omitempty"`
	Payload           map[string]string `json:"payload,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Update finalizes a pending record.
type Update struct {
	Status            Status
	ProviderMessageID string
	Error             string
	ErrorKind         ErrorKind
	Note              string
}

// Apply copies u onto r and stamps UpdatedAt.
func (u Update) Apply(r *Record, at time.Time) {
	r.Status = u.Status
	r.ProviderMessageID = u.ProviderMessageID
	r.Error = u.Error
	r.ErrorKind = u.ErrorKind
	r.Note = u.Note
	r.UpdatedAt = at
}

// Activity is one classified roster event, kept for the operator feed.
type Activity struct {
	ID            string    `json:"id"`
	TransitionID  string    `json:"transition_id"`
	Kind          string    `json:"kind"`
	Primary       bool      `json:"primary"`
	PlayerID      string    `json:"player_id"`
	PlayerName    string    `json:"player_name"`
	NewPlayerID   string    `json:"new_player_id,omitempty"`
	NewPlayerName string    `json:"new_player_name,omitempty"`
	Rank          int       `json:"rank"`
	NewRank       int       `json:"new_rank,omitempty"`
	ScoreDelta    int64     `json:"score_delta,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Sink stores delivery records and activity. Records are never deleted
// except through Purge.
type Sink interface {
	// Append stores r and returns its id. An empty r.ID is assigned.
	Append(ctx context.Context, r Record) (string, error)
	// Update finalizes the record with id. Returns ErrNotFound when absent.
	Update(ctx context.Context, id string, u Update) error
	// AppendActivity stores a and returns its id.
	AppendActivity(ctx context.Context, a Activity) (string, error)
	// List returns up to limit records, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Record, error)
	// ListActivity returns up to limit activity entries, newest first.
	ListActivity(ctx context.Context, limit int) ([]Activity, error)
	// HasKey reports whether any record carries dedupeKey.
	HasKey(ctx context.Context, dedupeKey string) (bool, error)
	// Purge deletes all delivery records and returns how many were removed.
	Purge(ctx context.Context) (int64, error)
	// Close releases resources.
	Close(ctx context.Context) error
}
