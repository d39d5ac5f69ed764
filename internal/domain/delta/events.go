package delta

import (
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/snapshot"
)

// Kind names a change event for logs and metrics.
type Kind string

// Change event kinds, highest priority first.
const (
	KindAdd         Kind = "add"
	KindRemove      Kind = "remove"
	KindDethrone    Kind = "dethrone"
	KindScoreUpdate Kind = "score_update"
)

// Event is one semantic roster change. The set of implementations is closed:
// Add, Remove, ScoreUpdate and Dethrone.
type Event interface {
	Kind() Kind
	event()
}

// Add reports a participant that appeared, with its rank in the new roster.
type Add struct {
	Player model.Participant
	Rank   int
}

// Remove reports a participant that left, with the rank it held before.
type Remove struct {
	Player model.Participant
	Rank   int
}

// ScoreUpdate reports a changed score. ScoreDelta is OldScore - NewScore, so a
// faster time is positive.
type ScoreUpdate struct {
	Player     model.Participant
	OldScore   int64
	NewScore   int64
	ScoreDelta int64
	OldRank    int
	NewRank    int
}

// Dethrone reports OldPlayer losing Rank inside the podium zone. NewPlayer
// holds that rank now and is nil when nobody does. Cause is the score update
// that pushed OldPlayer down, if any.
type Dethrone struct {
	NewPlayer *model.Participant
	OldPlayer model.Participant
	Rank      int
	NewRank   int
	Cause     *ScoreUpdate
}

func (Add) Kind() Kind         { return KindAdd }
func (Remove) Kind() Kind      { return KindRemove }
func (ScoreUpdate) Kind() Kind { return KindScoreUpdate }
func (Dethrone) Kind() Kind    { return KindDethrone }

func (Add) event()         {}
func (Remove) event()      {}
func (ScoreUpdate) event() {}
func (Dethrone) event()    {}

// Transition is the result of diffing two consecutive snapshots. Primary
// events drive notifications; Secondary events are kept for the activity log.
type Transition struct {
	ID        string
	Previous  *snapshot.Snapshot
	Current   *snapshot.Snapshot
	Primary   []Event
	Secondary []Event
}

// Empty reports whether nothing rank-relevant changed.
func (t Transition) Empty() bool {
	return len(t.Primary) == 0 && len(t.Secondary) == 0
}
