package notify

import (
	"strconv"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/scoring"
)

// Template identifies a message kind independent of the provider.
type Template string

// Message templates.
const (
	TemplateEntrySuccess Template = "entry_success"
	TemplateEntryFailure Template = "entry_failure"
	TemplateDethrone     Template = "dethrone"
)

// Template variable names.
const (
	VarName      = "name"
	VarSurname   = "surname"
	VarScore     = "score"
	VarRank      = "rank"
	VarRankLabel = "rank_label"
	VarNewName   = "new_name"
	VarNewScore  = "new_score"
)

// AnonymousChallenger stands in for new_name when nobody took the rank.
const AnonymousChallenger = "a new player"

// Intent is one message the dispatcher should attempt.
type Intent struct {
	TransitionID string
	Recipient    model.Participant
	Phone        string
	Template     Template
	Variables    map[string]string
}

// DedupeKey identifies an intent across dispatcher runs.
func (i Intent) DedupeKey() string {
	return i.Phone + "|" + string(i.Template) + "|" + i.TransitionID
}

func standingVariables(p model.Participant, rank int) map[string]string {
	return map[string]string{
		VarName:      p.Name,
		VarSurname:   p.Surname,
		VarScore:     scoring.Decode(p.Score),
		VarRank:      strconv.Itoa(rank),
		VarRankLabel: scoring.RankLabel(rank),
	}
}

func dethroneVariables(old model.Participant, rank int, challenger *model.Participant) map[string]string {
	vars := standingVariables(old, rank)
	if challenger == nil {
		vars[VarNewName] = AnonymousChallenger
		vars[VarNewScore] = ""
		return vars
	}
	vars[VarNewName] = challenger.Name
	vars[VarNewScore] = scoring.Decode(challenger.Score)
	return vars
}
