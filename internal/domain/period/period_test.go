package period_test

import (
	"testing"
	"time"

	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/internal/domain/period"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBoundaries(t *testing.T) {
	Convey("Given a Sunday late in a month", t, func() {
		// 2026-03-01 is a Sunday.
		sunday := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)

		Convey("The ISO week starts on the previous Monday", func() {
			So(period.StartOfWeek(sunday), ShouldEqual, time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC))
			So(period.NextWeek(sunday), ShouldEqual, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
		})

		Convey("A Monday starts its own week", func() {
			monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
			So(period.StartOfWeek(monday), ShouldEqual, monday)
		})

		Convey("The month starts on the first", func() {
			So(period.StartOfMonth(sunday), ShouldEqual, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
			So(period.NextMonth(time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)), ShouldEqual, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))
		})

		Convey("Non-UTC inputs are normalized to UTC", func() {
			tz := time.FixedZone("UTC+5", 5*3600)
			local := time.Date(2026, 3, 2, 2, 0, 0, 0, tz) // 2026-03-01 21:00 UTC
			So(period.StartOfWeek(local), ShouldEqual, time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC))
			So(period.StartOfMonth(local), ShouldEqual, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
		})

		Convey("Start and Next dispatch on the window", func() {
			So(period.Start(model.WindowWeekly, sunday), ShouldEqual, period.StartOfWeek(sunday))
			So(period.Start(model.WindowMonthly, sunday), ShouldEqual, period.StartOfMonth(sunday))
			So(period.Start(model.WindowAllTime, sunday).IsZero(), ShouldBeTrue)
			So(period.Next(model.WindowMonthly, sunday), ShouldEqual, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
			So(period.Next(model.WindowAllTime, sunday).IsZero(), ShouldBeTrue)
		})
	})
}

func TestDayMath(t *testing.T) {
	Convey("Given calendar day math", t, func() {
		a := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
		b := time.Date(2026, 3, 2, 0, 1, 0, 0, time.UTC)

		So(period.DaysBetween(a, b), ShouldEqual, 1)
		So(period.DaysBetween(b, a), ShouldEqual, -1)
		So(period.DaysBetween(a, a.Add(time.Minute)), ShouldEqual, 0)
		So(period.SameDay(a, a.Add(-23*time.Hour)), ShouldBeTrue)
		So(period.SameDay(a, b), ShouldBeFalse)

		Convey("Leap days count", func() {
			So(period.DaysBetween(time.Date(2028, 2, 28, 0, 0, 0, 0, time.UTC), time.Date(2028, 3, 1, 0, 0, 0, 0, time.UTC)), ShouldEqual, 2)
		})
	})
}
