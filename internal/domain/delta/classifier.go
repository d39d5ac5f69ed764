// Package delta classifies the difference between two ranked snapshots into
// semantic change events.
package delta

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/podium/internal/domain/snapshot"
)

const defaultTopN = 3

// transitionNamespace scopes transition ids so they never collide with other
// name-based uuids.
var transitionNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("podium.transition")) //nolint:gochecknoglobals // derived constant

// Option applies a configuration option to the Classifier.
type Option func(*Classifier)

// WithTopN sets the size of the podium zone watched for dethrones.
func WithTopN(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.topN = n
		}
	}
}

// Classifier diffs consecutive snapshots. It is stateless and safe for
// concurrent use.
type Classifier struct {
	topN int
}

// NewClassifier creates a Classifier.
func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{topN: defaultTopN}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TopN returns the configured podium size.
func (c *Classifier) TopN() int { return c.topN }

// Classify compares prev with curr. A nil prev primes the pipeline and yields
// no events. Rules apply in priority order and the first that matches wins:
// added ids, removed ids, then a score change with its possible dethrone.
func (c *Classifier) Classify(prev, curr *snapshot.Snapshot) Transition {
	t := Transition{ID: TransitionID(prev, curr), Previous: prev, Current: curr}
	if prev == nil || curr == nil {
		return t
	}

	for _, p := range curr.Players() {
		if !prev.Contains(p.ID) {
			t.Primary = append(t.Primary, Add{Player: p, Rank: curr.Rank(p.ID)})
		}
	}
	if len(t.Primary) > 0 {
		return t
	}

	for _, p := range prev.Players() {
		if !curr.Contains(p.ID) {
			t.Primary = append(t.Primary, Remove{Player: p, Rank: prev.Rank(p.ID)})
		}
	}
	if len(t.Primary) > 0 {
		return t
	}

	update := c.firstScoreUpdate(prev, curr)
	if update == nil {
		return t
	}
	if dethrone := c.firstDethrone(prev, curr, update); dethrone != nil {
		t.Primary = []Event{*dethrone}
		t.Secondary = []Event{*update}
		return t
	}
	t.Primary = []Event{*update}
	return t
}

func (c *Classifier) firstScoreUpdate(prev, curr *snapshot.Snapshot) *ScoreUpdate {
	for _, p := range curr.Players() {
		old, _ := prev.Get(p.ID)
		if old.Score == p.Score {
			continue
		}
		return &ScoreUpdate{
			Player:     p,
			OldScore:   old.Score,
			NewScore:   p.Score,
			ScoreDelta: old.Score - p.Score,
			OldRank:    prev.Rank(p.ID),
			NewRank:    curr.Rank(p.ID),
		}
	}
	return nil
}

// firstDethrone scans the old podium in rank order for a participant that
// dropped without changing its own score.
func (c *Classifier) firstDethrone(prev, curr *snapshot.Snapshot, cause *ScoreUpdate) *Dethrone {
	limit := min(c.topN, prev.Len())
	for rank := 1; rank <= limit; rank++ {
		was, _ := prev.At(rank)
		now, _ := curr.Get(was.ID)
		newRank := curr.Rank(was.ID)
		if newRank <= rank || now.Score != was.Score {
			continue
		}
		d := &Dethrone{OldPlayer: now, Rank: rank, NewRank: newRank, Cause: cause}
		if holder, ok := curr.At(rank); ok {
			d.NewPlayer = &holder
		}
		return d
	}
	return nil
}

// TransitionID derives a stable id from the contents of both snapshots, so
// replaying the same pair yields the same id.
func TransitionID(prev, curr *snapshot.Snapshot) string {
	var b strings.Builder
	writeDigest(&b, prev)
	b.WriteByte('>')
	writeDigest(&b, curr)
	return uuid.NewSHA1(transitionNamespace, []byte(b.String())).String()
}

func writeDigest(b *strings.Builder, s *snapshot.Snapshot) {
	if s == nil {
		b.WriteString("nil")
		return
	}
	for _, p := range s.Players() {
		b.WriteString(p.ID)
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(p.Score, 10))
		b.WriteByte(';')
	}
}
