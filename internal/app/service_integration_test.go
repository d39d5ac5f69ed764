package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	service "github.com/okian/podium/internal/app"
	"github.com/okian/podium/internal/adapters/http/feed"
	"github.com/okian/podium/internal/adapters/whatsapp"
	"github.com/okian/podium/internal/config"
	"github.com/okian/podium/internal/domain/deliverylog"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/notify"
	. "github.com/smartystreets/goconvey/convey"
)

// waitForDeliveries polls the delivery log until it holds n records.
func waitForDeliveries(ctx context.Context, svc *service.Service, n int) []deliverylog.Record {
	deadline := time.Now().Add(5 * time.Second)
	for {
		records, err := svc.Deliveries(ctx, 0)
		if err == nil && len(records) >= n || time.Now().After(deadline) {
			return records
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func templates(records []deliverylog.Record) map[string]int {
	out := make(map[string]int)
	for _, r := range records {
		out[r.Template]++
	}
	return out
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a service with a simulated WhatsApp sender", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		sender := whatsapp.NewSimulatedSender()
		sink := deliverylog.NewMemorySink()
		svc := service.New(config.New(ctx), service.WithSender(sender), service.WithSink(sink))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		Convey("When four racers register", func() {
			ids := make(map[string]string)
			for _, r := range []struct{ name, phone, time string }{
				{"Ana", "+27820000001", "1000"},
				{"Ben", "+27820000002", "1100"},
				{"Cam", "+27820000003", "1200"},
				{"Dee", "+27820000004", "1300"},
			} {
				p, err := svc.AddParticipant(ctx, racer(r.name, r.phone, r.time))
				So(err, ShouldBeNil)
				ids[r.name] = p.ID
			}
			records := waitForDeliveries(ctx, svc, 4)

			Convey("Then the podium gets entry success and the fourth entry failure", func() {
				So(len(records), ShouldEqual, 4)
				counts := templates(records)
				So(counts[string(notify.TemplateEntrySuccess)], ShouldEqual, 3)
				So(counts[string(notify.TemplateEntryFailure)], ShouldEqual, 1)
				for _, r := range records {
					So(r.Status, ShouldEqual, deliverylog.StatusSuccess)
					So(r.ProviderMessageID, ShouldStartWith, "SM")
				}
			})

			Convey("And every addition is in the activity log", func() {
				activity, err := svc.Activity(ctx, 0)
				So(err, ShouldBeNil)
				So(len(activity), ShouldEqual, 4)
				So(activity[0].Kind, ShouldEqual, "add")
				So(activity[0].PlayerName, ShouldEqual, "Dee Tester")
			})

			Convey("And a faster time from the fourth racer dethrones the leader", func() {
				res, err := svc.SubmitTime(ctx, ids["Dee"], "900")
				So(err, ShouldBeNil)
				So(res.Participant.Rank, ShouldEqual, 1)

				records := waitForDeliveries(ctx, svc, 5)
				So(len(records), ShouldEqual, 5)
				newest := records[0]
				So(newest.Template, ShouldEqual, string(notify.TemplateDethrone))
				So(newest.To, ShouldEqual, "+27820000001")
				So(newest.Payload[whatsapp.FieldBody], ShouldContainSubstring, "Dee")

				sent := sender.Sent()
				So(len(sent), ShouldEqual, 5)
			})

			Convey("And replaying the same roster does not resend", func() {
				before := len(sender.Sent())
				res, err := svc.SubmitTime(ctx, ids["Ana"], "1000")
				So(err, ShouldBeNil)
				So(res.Improved, ShouldBeFalse)

				time.Sleep(100 * time.Millisecond)
				So(len(sender.Sent()), ShouldEqual, before)
			})

			Convey("And purging clears deliveries but keeps activity", func() {
				n, err := svc.PurgeDeliveries(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 4)

				records, err := svc.Deliveries(ctx, 0)
				So(err, ShouldBeNil)
				So(records, ShouldBeEmpty)

				activity, err := svc.Activity(ctx, 0)
				So(err, ShouldBeNil)
				So(len(activity), ShouldEqual, 4)
			})
		})

		Convey("When a racer without a phone registers", func() {
			_, err := svc.AddParticipant(ctx, racer("Eve", "", "1000"))

			Convey("Then the registration is rejected", func() {
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			})

			Convey("And nothing is stored or sent", func() {
				entries, err := svc.TopN(ctx, 10)
				So(err, ShouldBeNil)
				So(entries, ShouldBeEmpty)

				time.Sleep(100 * time.Millisecond)
				records, err := svc.Deliveries(ctx, 0)
				So(err, ShouldBeNil)
				So(records, ShouldBeEmpty)
				So(sender.Sent(), ShouldBeEmpty)
			})
		})
	})
}

func TestServiceFeed(t *testing.T) {
	Convey("Given a service publishing to a live feed", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		hub := feed.NewHub()
		defer hub.Close()
		svc := service.New(config.New(ctx), service.WithSender(whatsapp.NewSimulatedSender()), service.WithFeed(hub))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		srv := httptest.NewServer(hub)
		defer srv.Close()
		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
		So(err, ShouldBeNil)
		defer conn.Close()

		read := func() feed.Envelope {
			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			var env feed.Envelope
			_, data, err := conn.ReadMessage()
			So(err, ShouldBeNil)
			So(json.Unmarshal(data, &env), ShouldBeNil)
			return env
		}

		Convey("When a client connects", func() {
			env := read()

			Convey("Then it receives the current leaderboard", func() {
				So(env.Type, ShouldEqual, feed.TypeLeaderboard)
				So(string(env.Data), ShouldEqual, "[]")
			})

			Convey("And a registration pushes a leaderboard and a transition", func() {
				_, err := svc.AddParticipant(ctx, racer("Ana", "+27820000001", "1000"))
				So(err, ShouldBeNil)

				seen := map[string]feed.Envelope{}
				for len(seen) < 2 {
					env := read()
					seen[env.Type] = env
				}
				var tr feed.Transition
				So(json.Unmarshal(seen[feed.TypeTransition].Data, &tr), ShouldBeNil)
				So(len(tr.Events), ShouldEqual, 1)
				So(tr.Events[0].Kind, ShouldEqual, "add")
				So(tr.Events[0].PlayerName, ShouldEqual, "Ana Tester")
				So(tr.Sent, ShouldEqual, 1)
			})
		})
	})
}

func TestServiceFeedOrigins(t *testing.T) {
	Convey("Given a service whose feed allows one origin", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cfg := config.New(ctx)
		cfg.FeedAllowedOrigins = "https://podium.example, https://screen.podium.example"
		svc := service.New(cfg)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		srv := httptest.NewServer(svc.Feed())
		defer srv.Close()
		url := "ws" + strings.TrimPrefix(srv.URL, "http")

		Convey("When a configured origin connects", func() {
			conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://screen.podium.example"}})

			Convey("Then it is upgraded", func() {
				So(err, ShouldBeNil)
				conn.Close()
			})
		})

		Convey("When another origin connects", func() {
			_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://elsewhere.example"}})

			Convey("Then it is refused", func() {
				So(err, ShouldNotBeNil)
				So(resp, ShouldNotBeNil)
				So(resp.StatusCode, ShouldEqual, http.StatusForbidden)
			})
		})
	})
}
