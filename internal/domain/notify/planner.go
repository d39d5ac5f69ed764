// Package notify turns classified roster changes into notification intents.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/podium/internal/domain/delta"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/logger"
)

// ScoreUpdatePolicy decides what a plain score change notifies.
type ScoreUpdatePolicy string

// Score update policies.
const (
	// PolicyNone sends nothing for score updates.
	PolicyNone ScoreUpdatePolicy = "none"
	// PolicyBoundary sends entry_success when a participant climbs into the podium.
	PolicyBoundary ScoreUpdatePolicy = "boundary"
	// PolicyAlways sends entry_success inside the podium and entry_failure outside it.
	PolicyAlways ScoreUpdatePolicy = "always"
)

// ParsePolicy parses a policy name, case-insensitively.
func ParsePolicy(s string) (ScoreUpdatePolicy, error) {
	switch p := ScoreUpdatePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyNone, PolicyBoundary, PolicyAlways:
		return p, nil
	case "":
		return PolicyNone, nil
	default:
		return "", fmt.Errorf("%w: unknown score update policy %q", ErrPolicy, s)
	}
}

const defaultTopN = 3

// Option applies a configuration option to the Planner.
type Option func(*Planner)

// WithTopN sets the podium size.
func WithTopN(n int) Option {
	return func(p *Planner) {
		if n > 0 {
			p.topN = n
		}
	}
}

// WithScoreUpdatePolicy sets the policy for plain score changes.
func WithScoreUpdatePolicy(policy ScoreUpdatePolicy) Option {
	return func(p *Planner) {
		if policy != "" {
			p.policy = policy
		}
	}
}

// WithLogger sets the logger used to report skipped recipients.
func WithLogger(l logger.Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.log = l
		}
	}
}

// Planner expands a transition into ordered, de-duplicated intents.
type Planner struct {
	topN   int
	policy ScoreUpdatePolicy
	log    logger.Logger
}

// NewPlanner creates a Planner.
func NewPlanner(opts ...Option) *Planner {
	p := &Planner{topN: defaultTopN, policy: PolicyNone}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// plan accumulates intents for one transition.
type plan struct {
	ctx          context.Context
	transitionID string
	intents      []Intent
	seen         map[string]struct{}
	log          logger.Logger
}

func (pl *plan) emit(p model.Participant, tpl Template, vars map[string]string) {
	if p.Phone == "" {
		if pl.log != nil {
			pl.log.Warn(pl.ctx, "skipping notification for participant without phone",
				logger.String("participant", p.ID),
				logger.String("template", string(tpl)),
				logger.String("transition", pl.transitionID))
		}
		return
	}
	key := p.Phone + "|" + string(tpl)
	if _, dup := pl.seen[key]; dup {
		return
	}
	pl.seen[key] = struct{}{}
	pl.intents = append(pl.intents, Intent{
		TransitionID: pl.transitionID,
		Recipient:    p,
		Phone:        p.Phone,
		Template:     tpl,
		Variables:    vars,
	})
}

// Plan returns intents for t: the triggering participant first, then the
// displaced participants in ascending old rank. Remove events notify nobody.
func (p *Planner) Plan(ctx context.Context, t delta.Transition) []Intent {
	pl := &plan{ctx: ctx, transitionID: t.ID, seen: make(map[string]struct{}), log: p.log}
	for _, ev := range t.Primary {
		switch e := ev.(type) {
		case delta.Add:
			p.planAdd(pl, t, e)
		case delta.Remove:
		case delta.Dethrone:
			if e.Cause != nil {
				p.planScoreUpdate(pl, *e.Cause)
			}
			pl.emit(e.OldPlayer, TemplateDethrone, dethroneVariables(e.OldPlayer, e.Rank, e.NewPlayer))
		case delta.ScoreUpdate:
			p.planScoreUpdate(pl, e)
		default:
			panic(fmt.Sprintf("notify: unhandled event %T", ev))
		}
	}
	return pl.intents
}

func (p *Planner) planAdd(pl *plan, t delta.Transition, e delta.Add) {
	if e.Rank > p.topN {
		pl.emit(e.Player, TemplateEntryFailure, standingVariables(e.Player, e.Rank))
		return
	}
	pl.emit(e.Player, TemplateEntrySuccess, standingVariables(e.Player, e.Rank))

	adder := e.Player
	limit := min(p.topN, t.Previous.Len())
	for rank := 1; rank <= limit; rank++ {
		was, _ := t.Previous.At(rank)
		now, ok := t.Current.Get(was.ID)
		if !ok || t.Current.Rank(was.ID) <= p.topN {
			continue
		}
		pl.emit(now, TemplateDethrone, dethroneVariables(now, rank, &adder))
	}
}

// planScoreUpdate applies the score update policy to the participant whose
// time changed, including the mover behind a dethrone.
func (p *Planner) planScoreUpdate(pl *plan, u delta.ScoreUpdate) {
	inside := u.NewRank <= p.topN
	crossed := u.OldRank > p.topN && inside
	switch p.policy {
	case PolicyBoundary:
		if crossed {
			pl.emit(u.Player, TemplateEntrySuccess, standingVariables(u.Player, u.NewRank))
		}
	case PolicyAlways:
		tpl := TemplateEntryFailure
		if inside {
			tpl = TemplateEntrySuccess
		}
		pl.emit(u.Player, tpl, standingVariables(u.Player, u.NewRank))
	case PolicyNone:
	}
}
