package model_test

import (
	"errors"
	"testing"

	model "github.com/okian/podium/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestValidatePhone(t *testing.T) {
	convey.Convey("Given phone numbers", t, func() {
		convey.Convey("When they are E.164", func() {
			convey.Convey("Then they should pass without a prefix", func() {
				convey.So(model.ValidatePhone("+27821234567", ""), convey.ShouldBeNil)
				convey.So(model.ValidatePhone("+14155238886", ""), convey.ShouldBeNil)
			})

			convey.Convey("And the configured prefix should be enforced", func() {
				convey.So(model.ValidatePhone("+27821234567", "+27"), convey.ShouldBeNil)
				err := model.ValidatePhone("+14155238886", "+27")
				convey.So(errors.Is(err, model.ErrValidation), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "+27")
			})
		})

		convey.Convey("When they are not E.164", func() {
			convey.Convey("Then they should be rejected", func() {
				for _, phone := range []string{"", "0821234567", "+0821234567", "+27 82 123 4567", "+271", "whatsapp:+27821234567"} {
					convey.So(errors.Is(model.ValidatePhone(phone, ""), model.ErrValidation), convey.ShouldBeTrue)
				}
			})
		})
	})
}

func TestValidateParticipant(t *testing.T) {
	convey.Convey("Given a registration", t, func() {
		p := model.Participant{Name: "  Thandi ", Surname: " Mokoena", Phone: "+27821234567", Score: 2345}

		convey.Convey("When it is complete", func() {
			err := model.ValidateParticipant(&p, "+27")

			convey.Convey("Then it should pass and trim names", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(p.Name, convey.ShouldEqual, "Thandi")
				convey.So(p.Surname, convey.ShouldEqual, "Mokoena")
				convey.So(p.FullName(), convey.ShouldEqual, "Thandi Mokoena")
			})
		})

		convey.Convey("When the name is blank", func() {
			p.Name = "   "
			err := model.ValidateParticipant(&p, "")
			convey.So(errors.Is(err, model.ErrValidation), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "name")
		})

		convey.Convey("When the surname is missing", func() {
			p.Surname = ""
			convey.So(errors.Is(model.ValidateParticipant(&p, ""), model.ErrValidation), convey.ShouldBeTrue)
		})

		convey.Convey("When the score is negative", func() {
			p.Score = -1
			convey.So(errors.Is(model.ValidateParticipant(&p, ""), model.ErrValidation), convey.ShouldBeTrue)
		})

		convey.Convey("When the phone is missing", func() {
			p.Phone = ""
			err := model.ValidateParticipant(&p, "")
			convey.So(errors.Is(err, model.ErrValidation), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "phone")
		})

		convey.Convey("When the email is malformed", func() {
			p.Email = "thandi.example.com"
			convey.So(errors.Is(model.ValidateParticipant(&p, ""), model.ErrValidation), convey.ShouldBeTrue)
		})
	})
}
