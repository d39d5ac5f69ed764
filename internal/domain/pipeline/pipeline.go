// Package pipeline turns roster observations into notifications. It owns the
// retained snapshot that each new observation is diffed against.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/podium/internal/domain/delta"
	"github.com/okian/podium/internal/domain/deliverylog"
	"github.com/okian/podium/internal/domain/dispatch"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/notify"
	"github.com/okian/podium/internal/domain/snapshot"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// Dispatcher executes intents.
type Dispatcher interface {
	Dispatch(ctx context.Context, intents []notify.Intent) dispatch.Report
}

// ActivityRecorder stores classified events.
type ActivityRecorder interface {
	AppendActivity(ctx context.Context, a deliverylog.Activity) (string, error)
}

// Outcome is the result of one observation.
type Outcome struct {
	Seq        uint64
	Transition delta.Transition
	Intents    []notify.Intent
	Report     dispatch.Report
}

// Observer is called after every accepted observation.
type Observer func(ctx context.Context, out Outcome)

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithActivity records every classified event.
func WithActivity(a ActivityRecorder) Option {
	return func(p *Pipeline) {
		p.activity = a
	}
}

// WithObserver registers a callback run after each accepted observation.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observers = append(p.observers, o)
		}
	}
}

// Pipeline diffs, plans and dispatches. Observe calls are serialized.
type Pipeline struct {
	classifier *delta.Classifier
	planner    *notify.Planner
	dispatcher Dispatcher
	activity   ActivityRecorder
	observers  []Observer
	log        logger.Logger

	mu       sync.Mutex
	retained *snapshot.Snapshot
	lastSeq  uint64
	primed   bool
}

// New creates a Pipeline.
func New(classifier *delta.Classifier, planner *notify.Planner, dispatcher Dispatcher, opts ...Option) *Pipeline {
	p := &Pipeline{classifier: classifier, planner: planner, dispatcher: dispatcher}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Get().Named("pipeline")
	}
	return p
}

// Observe processes one roster emission. Malformed rosters are rejected with
// snapshot.ErrMalformed and leave the retained snapshot unchanged; stale
// sequence numbers are ignored.
func (p *Pipeline) Observe(ctx context.Context, obs model.Observation) (Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	metrics.RecordObservation()

	if p.primed && obs.Seq != 0 && obs.Seq <= p.lastSeq {
		p.log.Debug(ctx, "ignoring stale observation", logger.Any("seq", obs.Seq), logger.Any("last", p.lastSeq))
		return Outcome{Seq: obs.Seq}, nil
	}

	curr, err := snapshot.New(obs.Players)
	if err != nil {
		metrics.RecordMalformedSnapshot()
		metrics.RecordErrorByComponent("pipeline", "malformed_snapshot")
		p.log.Error(ctx, "rejecting malformed roster", logger.Any("seq", obs.Seq), logger.Error(err))
		return Outcome{Seq: obs.Seq}, fmt.Errorf("observation %d: %w", obs.Seq, err)
	}

	var prev *snapshot.Snapshot
	if p.primed {
		prev = p.retained
	}
	out := Outcome{Seq: obs.Seq, Transition: p.classifier.Classify(prev, curr)}
	p.recordEvents(ctx, out.Transition)

	out.Intents = p.planner.Plan(ctx, out.Transition)
	for _, in := range out.Intents {
		metrics.RecordIntentPlanned(string(in.Template))
	}
	if len(out.Intents) > 0 {
		out.Report = p.dispatcher.Dispatch(ctx, out.Intents)
	}

	p.retained = curr
	p.lastSeq = obs.Seq
	p.primed = true
	metrics.RecordPipelineLatency(float64(time.Since(start).Microseconds()) / 1000)

	if !out.Transition.Empty() {
		p.log.Info(ctx, "roster transition",
			logger.String("transition", out.Transition.ID),
			logger.String("kind", string(out.Transition.Primary[0].Kind())),
			logger.Int("intents", len(out.Intents)),
			logger.Int("sent", out.Report.Sent),
			logger.Int("failed", out.Report.Failed),
			logger.Int("skipped", out.Report.Skipped))
	}
	for _, o := range p.observers {
		o(ctx, out)
	}
	return out, nil
}

// Retained returns the snapshot the next observation will be diffed against,
// or nil before the first observation.
func (p *Pipeline) Retained() *snapshot.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retained
}

func (p *Pipeline) recordEvents(ctx context.Context, t delta.Transition) {
	at := time.Now().UTC()
	for _, group := range []struct {
		events  []delta.Event
		primary bool
	}{{t.Primary, true}, {t.Secondary, false}} {
		role := "secondary"
		if group.primary {
			role = "primary"
		}
		for _, ev := range group.events {
			metrics.RecordChangeEvent(string(ev.Kind()), role)
			if p.activity == nil {
				continue
			}
			if _, err := p.activity.AppendActivity(ctx, ActivityFromEvent(t.ID, ev, group.primary, at)); err != nil {
				metrics.RecordLogSinkError("append_activity")
				p.log.Error(ctx, "failed to record activity", logger.String("transition", t.ID), logger.Error(err))
			}
		}
	}
}
