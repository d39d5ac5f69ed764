package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/podium/internal/domain/delta"
	"github.com/okian/podium/internal/domain/deliverylog"
	"github.com/okian/podium/internal/domain/dispatch"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/notify"
	"github.com/okian/podium/internal/domain/pipeline"
	"github.com/okian/podium/internal/domain/snapshot"
	"github.com/okian/podium/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type recordingSender struct {
	sent []dispatch.Payload
}

func (r *recordingSender) Prepare(msg dispatch.Message) (dispatch.Payload, error) {
	return dispatch.Payload{Message: msg, Fields: map[string]string{"to": msg.To}}, nil
}

func (r *recordingSender) Send(_ context.Context, p dispatch.Payload) (dispatch.Result, error) {
	r.sent = append(r.sent, p)
	return dispatch.Result{ProviderMessageID: "SM-test"}, nil
}

func racer(id string, score int64) model.Participant {
	return model.Participant{ID: id, Name: "N" + id, Surname: "S" + id, Phone: "+2782000" + id, Score: score, Attempts: 1}
}

func TestPipelineObserve(t *testing.T) {
	Convey("Given a pipeline wired to a memory sink", t, func() {
		So(logger.Init(), ShouldBeNil)
		ctx := context.Background()
		sink := deliverylog.NewMemorySink()
		sender := &recordingSender{}
		var observed []pipeline.Outcome
		p := pipeline.New(
			delta.NewClassifier(delta.WithTopN(3)),
			notify.NewPlanner(notify.WithTopN(3)),
			dispatch.NewCoordinator(sender, sink),
			pipeline.WithActivity(sink),
			pipeline.WithObserver(func(_ context.Context, out pipeline.Outcome) { observed = append(observed, out) }),
		)
		base := []model.Participant{racer("1000", 1000), racer("1200", 1200), racer("1300", 1300)}

		Convey("When the first roster arrives", func() {
			out, err := p.Observe(ctx, model.Observation{Seq: 1, Players: base})

			Convey("Then it should only prime the baseline", func() {
				So(err, ShouldBeNil)
				So(out.Transition.Empty(), ShouldBeTrue)
				So(out.Intents, ShouldBeEmpty)
				So(sender.sent, ShouldBeEmpty)
				So(p.Retained().Len(), ShouldEqual, 3)
				So(observed, ShouldHaveLength, 1)
			})
		})

		Convey("When a faster racer joins after priming", func() {
			_, _ = p.Observe(ctx, model.Observation{Seq: 1, Players: base})
			out, err := p.Observe(ctx, model.Observation{Seq: 2, Players: append(append([]model.Participant{}, base...), racer("0900", 900))})

			Convey("Then entry_success and one dethrone should be delivered and logged", func() {
				So(err, ShouldBeNil)
				So(out.Report.Sent, ShouldEqual, 2)
				So(sender.sent, ShouldHaveLength, 2)
				So(sender.sent[0].Message.Template, ShouldEqual, notify.TemplateEntrySuccess)
				So(sender.sent[1].Message.Template, ShouldEqual, notify.TemplateDethrone)
				So(sender.sent[1].Message.To, ShouldEqual, "+27820001300")

				records, _ := sink.List(ctx, 0)
				So(records, ShouldHaveLength, 2)
				activity, _ := sink.ListActivity(ctx, 0)
				So(activity, ShouldHaveLength, 1)
				So(activity[0].Kind, ShouldEqual, string(delta.KindAdd))
				So(activity[0].Rank, ShouldEqual, 1)
			})
		})

		Convey("When a roster is malformed", func() {
			_, _ = p.Observe(ctx, model.Observation{Seq: 1, Players: base})
			_, err := p.Observe(ctx, model.Observation{Seq: 2, Players: []model.Participant{racer("1000", 1000), racer("1000", 1100)}})

			Convey("Then it should be rejected and the baseline kept", func() {
				So(errors.Is(err, snapshot.ErrMalformed), ShouldBeTrue)
				So(p.Retained().Len(), ShouldEqual, 3)

				out, err := p.Observe(ctx, model.Observation{Seq: 3, Players: append(append([]model.Participant{}, base...), racer("2000", 2000))})
				So(err, ShouldBeNil)
				So(out.Transition.Primary[0].Kind(), ShouldEqual, delta.KindAdd)
				So(out.Intents[0].Template, ShouldEqual, notify.TemplateEntryFailure)
			})
		})

		Convey("When a stale observation arrives", func() {
			_, _ = p.Observe(ctx, model.Observation{Seq: 5, Players: base})
			out, err := p.Observe(ctx, model.Observation{Seq: 4, Players: base[:1]})

			Convey("Then it should be ignored", func() {
				So(err, ShouldBeNil)
				So(out.Transition.Empty(), ShouldBeTrue)
				So(p.Retained().Len(), ShouldEqual, 3)
			})
		})

		Convey("When a score improvement dethrones the leader", func() {
			_, _ = p.Observe(ctx, model.Observation{Seq: 1, Players: base})
			_, _ = p.Observe(ctx, model.Observation{Seq: 2, Players: []model.Participant{racer("1000", 1000), racer("1200", 1200), racer("1300", 800)}})

			Convey("Then primary and secondary events should both be in the activity log", func() {
				activity, _ := sink.ListActivity(ctx, 0)
				So(activity, ShouldHaveLength, 2)
				kinds := map[string]bool{}
				for _, a := range activity {
					kinds[a.Kind] = a.Primary
				}
				So(kinds[string(delta.KindDethrone)], ShouldBeTrue)
				So(kinds[string(delta.KindScoreUpdate)], ShouldBeFalse)
				So(sender.sent, ShouldHaveLength, 1)
				So(sender.sent[0].Message.To, ShouldEqual, "+27820001000")
			})
		})
	})
}

func TestActivityFromEvent(t *testing.T) {
	Convey("Given a dethrone event", t, func() {
		challenger := racer("b", 900)
		ev := delta.Dethrone{OldPlayer: racer("a", 1000), NewPlayer: &challenger, Rank: 1, NewRank: 2}

		Convey("Then the activity entry should name both players", func() {
			a := pipeline.ActivityFromEvent("t1", ev, true, challenger.CreatedAt)
			So(a.Kind, ShouldEqual, "dethrone")
			So(a.PlayerID, ShouldEqual, "a")
			So(a.NewPlayerID, ShouldEqual, "b")
			So(a.NewPlayerName, ShouldEqual, "Nb Sb")
			So(a.Rank, ShouldEqual, 1)
			So(a.NewRank, ShouldEqual, 2)
		})
	})
}
