package deliverylog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/podium/internal/domain/deliverylog"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemorySink(t *testing.T) {
	Convey("Given an empty memory sink", t, func() {
		ctx := context.Background()
		sink := deliverylog.NewMemorySink()

		Convey("When a pending record is appended and finalized", func() {
			payload := map[string]string{"to": "whatsapp:+27820000001"}
			id, err := sink.Append(ctx, deliverylog.Record{
				DedupeKey: "+27820000001|dethrone|t1",
				To:        "+27820000001",
				Template:  "dethrone",
				Status:    deliverylog.StatusPending,
				Payload:   payload,
			})
			So(err, ShouldBeNil)
			So(id, ShouldNotBeEmpty)
			payload["to"] = "mutated"

			err = sink.Update(ctx, id, deliverylog.Update{Status: deliverylog.StatusSuccess, ProviderMessageID: "SM1", Note: "queued"})
			So(err, ShouldBeNil)

			Convey("Then the listed record should be final and unaliased", func() {
				records, err := sink.List(ctx, 10)
				So(err, ShouldBeNil)
				So(records, ShouldHaveLength, 1)
				So(records[0].Status, ShouldEqual, deliverylog.StatusSuccess)
				So(records[0].ProviderMessageID, ShouldEqual, "SM1")
				So(records[0].Note, ShouldEqual, "queued")
				So(records[0].Payload["to"], ShouldEqual, "whatsapp:+27820000001")
				So(records[0].CreatedAt.IsZero(), ShouldBeFalse)
			})

			Convey("And the dedupe key should be known", func() {
				ok, err := sink.HasKey(ctx, "+27820000001|dethrone|t1")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				ok, _ = sink.HasKey(ctx, "+27820000001|dethrone|t2")
				So(ok, ShouldBeFalse)
			})

			Convey("And purge should clear records and keys", func() {
				n, err := sink.Purge(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
				records, _ := sink.List(ctx, 0)
				So(records, ShouldBeEmpty)
				ok, _ := sink.HasKey(ctx, "+27820000001|dethrone|t1")
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When updating an unknown id", func() {
			err := sink.Update(ctx, "nope", deliverylog.Update{Status: deliverylog.StatusFailure})

			Convey("Then it should be not found", func() {
				So(errors.Is(err, deliverylog.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When several records and activities exist", func() {
			for _, key := range []string{"k1", "k2", "k3"} {
				_, err := sink.Append(ctx, deliverylog.Record{DedupeKey: key, Status: deliverylog.StatusPending})
				So(err, ShouldBeNil)
			}
			for _, kind := range []string{"add", "dethrone"} {
				_, err := sink.AppendActivity(ctx, deliverylog.Activity{Kind: kind, Primary: true})
				So(err, ShouldBeNil)
			}

			Convey("Then lists should be newest first and honour the limit", func() {
				records, _ := sink.List(ctx, 2)
				So(records, ShouldHaveLength, 2)
				So(records[0].DedupeKey, ShouldEqual, "k3")
				So(records[1].DedupeKey, ShouldEqual, "k2")

				activity, _ := sink.ListActivity(ctx, 0)
				So(activity, ShouldHaveLength, 2)
				So(activity[0].Kind, ShouldEqual, "dethrone")
				So(activity[0].Timestamp.IsZero(), ShouldBeFalse)
			})

			Convey("And purge should keep the activity feed", func() {
				_, _ = sink.Purge(ctx)
				activity, _ := sink.ListActivity(ctx, 0)
				So(activity, ShouldHaveLength, 2)
			})
		})

		Convey("When appending a duplicate id", func() {
			_, err := sink.Append(ctx, deliverylog.Record{ID: "fixed"})
			So(err, ShouldBeNil)
			_, err = sink.Append(ctx, deliverylog.Record{ID: "fixed"})
			So(err, ShouldNotBeNil)
		})
	})
}
