// Package snapshot provides an immutable ranked view of a roster at one instant.
package snapshot

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/okian/podium/internal/domain/model"
)

// Snapshot is an ordered roster, ascending by score with ties kept in the
// order they were given. Rank is 1 + index. The zero value is empty.
type Snapshot struct {
	players []model.Participant
	index   map[string]int
}

// New copies and ranks players. It fails with ErrMalformed on an empty id,
// a duplicate id or a negative score.
func New(players []model.Participant) (*Snapshot, error) {
	ranked := slices.Clone(players)
	index := make(map[string]int, len(ranked))
	for _, p := range ranked {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: participant without id", ErrMalformed)
		}
		if p.Score < 0 {
			return nil, fmt.Errorf("%w: participant %s has negative score %d", ErrMalformed, p.ID, p.Score)
		}
		if _, dup := index[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate participant id %s", ErrMalformed, p.ID)
		}
		index[p.ID] = 0
	}

	slices.SortStableFunc(ranked, func(a, b model.Participant) int {
		return cmp.Compare(a.Score, b.Score)
	})
	for i, p := range ranked {
		index[p.ID] = i
	}
	return &Snapshot{players: ranked, index: index}, nil
}

// Len returns the number of participants.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.players)
}

// At returns the participant holding rank (1-based).
func (s *Snapshot) At(rank int) (model.Participant, bool) {
	if rank < 1 || rank > s.Len() {
		return model.Participant{}, false
	}
	return s.players[rank-1], true
}

// Get returns a participant by id.
func (s *Snapshot) Get(id string) (model.Participant, bool) {
	if s == nil {
		return model.Participant{}, false
	}
	i, ok := s.index[id]
	if !ok {
		return model.Participant{}, false
	}
	return s.players[i], true
}

// Rank returns the 1-based rank of id, or 0 when absent.
func (s *Snapshot) Rank(id string) int {
	if s == nil {
		return 0
	}
	i, ok := s.index[id]
	if !ok {
		return 0
	}
	return i + 1
}

// Contains reports whether id is on the roster.
func (s *Snapshot) Contains(id string) bool {
	return s.Rank(id) > 0
}

// Players returns a copy of the ranked roster.
func (s *Snapshot) Players() []model.Participant {
	if s == nil {
		return nil
	}
	return slices.Clone(s.players)
}

// Top returns a copy of the first n participants.
func (s *Snapshot) Top(n int) []model.Participant {
	if n <= 0 || s.Len() == 0 {
		return []model.Participant{}
	}
	if n > len(s.players) {
		n = len(s.players)
	}
	return slices.Clone(s.players[:n])
}

// IDs returns participant ids in rank order.
func (s *Snapshot) IDs() []string {
	ids := make([]string, s.Len())
	for i := range ids {
		ids[i] = s.players[i].ID
	}
	return ids
}
