// Package types contains common read shapes shared by the API and the live feed
package types

import (
	"time"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/scoring"
)

// Entry represents a leaderboard entry
type Entry struct {
	Rank      int    `json:"rank"`
	RankLabel string `json:"rank_label"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	Surname   string `json:"surname"`
	Company   string `json:"company,omitempty"`
	Score     int64  `json:"score"`
	Time      string `json:"time"`
	Attempts  int    `json:"attempts"`
}

// NewEntry builds the public view of a ranked participant. Contact details
// are left out on purpose.
func NewEntry(rank int, p model.Participant) Entry {
	return Entry{
		Rank:      rank,
		RankLabel: scoring.RankLabel(rank),
		ID:        p.ID,
		Name:      p.Name,
		Surname:   p.Surname,
		Company:   p.Company,
		Score:     p.Score,
		Time:      scoring.Decode(p.Score),
		Attempts:  p.Attempts,
	}
}

// Entries ranks an ordered roster from 1.
func Entries(players []model.Participant) []Entry {
	out := make([]Entry, len(players))
	for i, p := range players {
		out[i] = NewEntry(i+1, p)
	}
	return out
}

// Profile is the operator view of a participant, including contact details.
type Profile struct {
	Entry
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewProfile builds the operator view of a ranked participant.
func NewProfile(rank int, p model.Participant) Profile {
	return Profile{
		Entry:     NewEntry(rank, p),
		Phone:     p.Phone,
		Email:     p.Email,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
