package pipeline

import (
	"fmt"
	"time"

	"github.com/okian/podium/internal/domain/delta"
	"github.com/okian/podium/internal/domain/deliverylog"
)

// ActivityFromEvent flattens a change event into an activity log entry.
func ActivityFromEvent(transitionID string, ev delta.Event, primary bool, at time.Time) deliverylog.Activity {
	a := deliverylog.Activity{TransitionID: transitionID, Kind: string(ev.Kind()), Primary: primary, Timestamp: at}
	switch e := ev.(type) {
	case delta.Add:
		a.PlayerID, a.PlayerName, a.Rank = e.Player.ID, e.Player.FullName(), e.Rank
	case delta.Remove:
		a.PlayerID, a.PlayerName, a.Rank = e.Player.ID, e.Player.FullName(), e.Rank
	case delta.ScoreUpdate:
		a.PlayerID, a.PlayerName = e.Player.ID, e.Player.FullName()
		a.Rank, a.NewRank, a.ScoreDelta = e.OldRank, e.NewRank, e.ScoreDelta
	case delta.Dethrone:
		a.PlayerID, a.PlayerName = e.OldPlayer.ID, e.OldPlayer.FullName()
		a.Rank, a.NewRank = e.Rank, e.NewRank
		if e.NewPlayer != nil {
			a.NewPlayerID, a.NewPlayerName = e.NewPlayer.ID, e.NewPlayer.FullName()
		}
	default:
		panic(fmt.Sprintf("pipeline: unhandled event %T", ev))
	}
	return a
}
