package snapshot_test

import (
	"errors"
	"testing"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/snapshot"
	. "github.com/smartystreets/goconvey/convey"
)

func racer(id string, score int64) model.Participant {
	return model.Participant{ID: id, Name: id, Surname: "Racer", Score: score}
}

func TestNew(t *testing.T) {
	Convey("Given an unordered roster", t, func() {
		roster := []model.Participant{racer("c", 1300), racer("a", 1000), racer("b", 1200)}

		Convey("When building a snapshot", func() {
			snap, err := snapshot.New(roster)
			So(err, ShouldBeNil)

			Convey("Then it should rank ascending by score", func() {
				So(snap.IDs(), ShouldResemble, []string{"a", "b", "c"})
				So(snap.Rank("a"), ShouldEqual, 1)
				So(snap.Rank("c"), ShouldEqual, 3)
				So(snap.Rank("zz"), ShouldEqual, 0)
				So(snap.Contains("b"), ShouldBeTrue)
			})

			Convey("And it should not alias the input", func() {
				roster[0].Score = 1
				p, ok := snap.Get("c")
				So(ok, ShouldBeTrue)
				So(p.Score, ShouldEqual, 1300)
			})

			Convey("And accessors should return copies", func() {
				players := snap.Players()
				players[0].Score = 9999
				top := snap.Top(2)
				top[0].ID = "mutated"
				first, _ := snap.At(1)
				So(first.ID, ShouldEqual, "a")
				So(first.Score, ShouldEqual, 1000)
			})
		})

		Convey("When two participants tie", func() {
			snap, err := snapshot.New([]model.Participant{racer("first", 1000), racer("second", 1000), racer("fast", 900)})
			So(err, ShouldBeNil)

			Convey("Then emission order should break the tie", func() {
				So(snap.IDs(), ShouldResemble, []string{"fast", "first", "second"})
			})
		})

		Convey("When asking for more than the roster holds", func() {
			snap, _ := snapshot.New(roster)
			So(snap.Top(10), ShouldHaveLength, 3)
			So(snap.Top(0), ShouldBeEmpty)
			_, ok := snap.At(4)
			So(ok, ShouldBeFalse)
			_, ok = snap.At(0)
			So(ok, ShouldBeFalse)
		})
	})
}

func TestNewMalformed(t *testing.T) {
	Convey("Given malformed rosters", t, func() {
		Convey("Then empty ids, duplicates and negative scores should be rejected", func() {
			_, err := snapshot.New([]model.Participant{racer("", 10)})
			So(errors.Is(err, snapshot.ErrMalformed), ShouldBeTrue)

			_, err = snapshot.New([]model.Participant{racer("a", 10), racer("a", 20)})
			So(errors.Is(err, snapshot.ErrMalformed), ShouldBeTrue)

			_, err = snapshot.New([]model.Participant{racer("a", -5)})
			So(errors.Is(err, snapshot.ErrMalformed), ShouldBeTrue)
		})
	})

	Convey("Given an empty roster", t, func() {
		snap, err := snapshot.New(nil)

		Convey("Then it should be a valid empty snapshot", func() {
			So(err, ShouldBeNil)
			So(snap.Len(), ShouldEqual, 0)
			So(snap.Players(), ShouldBeEmpty)
		})
	})

	Convey("Given a nil snapshot", t, func() {
		var snap *snapshot.Snapshot

		Convey("Then read accessors should behave as empty", func() {
			So(snap.Len(), ShouldEqual, 0)
			So(snap.Rank("a"), ShouldEqual, 0)
			_, ok := snap.Get("a")
			So(ok, ShouldBeFalse)
		})
	})
}
