package types_test

import (
	"encoding/json"
	"testing"

	"github.com/okian/podium/internal/domain/model"
	types "github.com/okian/podium/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEntry(t *testing.T) {
	Convey("Given a ranked participant", t, func() {
		p := model.Participant{ID: "p1", Name: "Lerato", Surname: "Dube", Phone: "+27820000001", Email: "l@d.co", Score: 2345, Attempts: 2}

		Convey("When building an entry", func() {
			entry := types.NewEntry(2, p)

			Convey("Then it should carry display fields", func() {
				So(entry.Rank, ShouldEqual, 2)
				So(entry.RankLabel, ShouldEqual, "2nd place")
				So(entry.Time, ShouldEqual, "23.45")
				So(entry.Attempts, ShouldEqual, 2)
			})

			Convey("And it should not leak contact details", func() {
				raw, err := json.Marshal(entry)
				So(err, ShouldBeNil)
				So(string(raw), ShouldNotContainSubstring, "+27820000001")
				So(string(raw), ShouldNotContainSubstring, "l@d.co")
			})
		})

		Convey("When ranking a roster", func() {
			entries := types.Entries([]model.Participant{p, {ID: "p2", Score: 2400}})

			Convey("Then ranks should start at one", func() {
				So(entries, ShouldHaveLength, 2)
				So(entries[0].Rank, ShouldEqual, 1)
				So(entries[1].Rank, ShouldEqual, 2)
				So(entries[1].Time, ShouldEqual, "24.00")
			})
		})
	})
}
