package scoring_test

import (
	"math"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/okian/courtside/internal/domain/model"
	scoring "github.com/okian/courtside/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func acc(f float64) *float64 { return &f }

// 2026-03-11 is a Wednesday.
var now = time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

func event(completed bool, accuracy *float64, duration float64, at time.Time) *model.ProgressEvent {
	return &model.ProgressEvent{
		EventID: gofakeit.UUID(), PlayerID: "p1", Completed: completed,
		AccuracyPct: accuracy, DurationMin: duration, OccurredAt: at,
	}
}

func TestPoints(t *testing.T) {
	Convey("Given the default calculator", t, func() {
		c := scoring.NewCalculator()

		Convey("A completed workout earns base plus bonuses", func() {
			So(c.Points(event(true, nil, 0, now)), ShouldEqual, 10)
			So(c.Points(event(true, acc(85), 0, now)), ShouldEqual, 19) // round(8.5)=9
			So(c.Points(event(true, acc(84), 35, now)), ShouldEqual, 10+8+3)
			So(c.Points(event(true, acc(100), 600, now)), ShouldEqual, 10+10+5)
		})

		Convey("Duration bonus floors and caps", func() {
			So(c.Points(event(true, nil, 9.9, now)), ShouldEqual, 10)
			So(c.Points(event(true, nil, 50, now)), ShouldEqual, 15)
			So(c.Points(event(true, nil, 51, now)), ShouldEqual, 15)
		})

		Convey("An incomplete session gets no base points", func() {
			So(c.Points(event(false, nil, 0, now)), ShouldEqual, 0)
			So(c.Points(event(false, acc(50), 20, now)), ShouldEqual, 5+2)
		})

		Convey("Bonuses on incomplete sessions can be switched off", func() {
			strict := scoring.NewCalculator(scoring.WithBonusOnIncomplete(false))
			So(strict.Points(event(false, acc(50), 20, now)), ShouldEqual, 0)
		})

		Convey("Policy constants are adjustable", func() {
			custom := scoring.NewCalculator(
				scoring.WithBasePoints(20),
				scoring.WithAccuracyDivisor(5),
				scoring.WithDurationBonus(15, 2),
			)
			So(custom.Points(event(true, acc(50), 60, now)), ShouldEqual, 20+10+2)
		})
	})
}

func TestWindows(t *testing.T) {
	Convey("Given window floors at the period starts", t, func() {
		c := scoring.NewCalculator()
		entry := &model.Entry{}
		floors := scoring.FloorsAt(now, time.Time{}, time.Time{})

		Convey("An event this week counts toward both windows", func() {
			d := c.Calculate(event(true, nil, 0, now.Add(-time.Hour)), entry, now, floors)
			So(d.Points, ShouldEqual, 10)
			So(d.Weekly, ShouldEqual, 10)
			So(d.Monthly, ShouldEqual, 10)
		})

		Convey("An event last week but this month counts only monthly", func() {
			d := c.Calculate(event(true, nil, 0, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC).Add(-time.Second)), entry, now, floors)
			So(d.Weekly, ShouldEqual, 0)
			So(d.Monthly, ShouldEqual, 10)
		})

		Convey("A late event from last month counts only all-time", func() {
			d := c.Calculate(event(true, nil, 0, time.Date(2026, 2, 27, 10, 0, 0, 0, time.UTC)), entry, now, floors)
			So(d.Points, ShouldEqual, 10)
			So(d.Weekly, ShouldEqual, 0)
			So(d.Monthly, ShouldEqual, 0)
		})

		Convey("An event dated in a future period is outside the current window", func() {
			d := c.Calculate(event(true, nil, 0, time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)), entry, now, floors)
			So(d.Monthly, ShouldEqual, 0)
			So(d.Weekly, ShouldEqual, 0)
		})

		Convey("A reset marker raises the floor", func() {
			reset := now.Add(-2 * time.Hour)
			floors := scoring.FloorsAt(now, reset, reset)
			before := c.Calculate(event(true, nil, 0, reset.Add(-time.Minute)), entry, now, floors)
			after := c.Calculate(event(true, nil, 0, reset.Add(time.Minute)), entry, now, floors)
			So(before.Weekly, ShouldEqual, 0)
			So(before.Monthly, ShouldEqual, 0)
			So(after.Weekly, ShouldEqual, 10)
			So(after.Monthly, ShouldEqual, 10)
		})

		Convey("A marker older than the period start does not lower the floor", func() {
			floors := scoring.FloorsAt(now, now.AddDate(0, -2, 0), now.AddDate(0, -2, 0))
			So(floors.Weekly, ShouldEqual, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC))
			So(floors.Monthly, ShouldEqual, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
		})
	})
}

func TestStreaks(t *testing.T) {
	Convey("Given a sequence of workouts", t, func() {
		c := scoring.NewCalculator()
		floors := scoring.FloorsAt(now, time.Time{}, time.Time{})
		entry := model.Entry{PlayerID: "p1"}
		day := func(n int) time.Time { return time.Date(2026, 3, n, 18, 0, 0, 0, time.UTC) }
		apply := func(ev *model.ProgressEvent) scoring.Delta {
			d := c.Calculate(ev, &entry, now, floors)
			entry = scoring.Apply(entry, ev, d, now)
			return d
		}

		Convey("Consecutive days build the streak", func() {
			So(apply(event(true, nil, 0, day(1))).Streak, ShouldEqual, scoring.StreakRestart)
			So(apply(event(true, nil, 0, day(2))).Streak, ShouldEqual, scoring.StreakExtend)
			So(apply(event(true, nil, 0, day(3))).Streak, ShouldEqual, scoring.StreakExtend)
			So(entry.CurrentStreak, ShouldEqual, 3)
			So(entry.LongestStreak, ShouldEqual, 3)

			Convey("A second workout on the same day leaves it unchanged", func() {
				So(apply(event(true, nil, 0, day(3).Add(time.Hour))).Streak, ShouldEqual, scoring.StreakSameDay)
				So(entry.CurrentStreak, ShouldEqual, 3)
			})

			Convey("A two-day gap restarts at one and keeps the longest", func() {
				So(apply(event(true, nil, 0, day(6))).Streak, ShouldEqual, scoring.StreakRestart)
				So(entry.CurrentStreak, ShouldEqual, 1)
				So(entry.LongestStreak, ShouldEqual, 3)
			})

			Convey("An incomplete session does not touch the streak", func() {
				So(apply(event(false, nil, 30, day(4))).Streak, ShouldEqual, scoring.StreakNone)
				So(entry.CurrentStreak, ShouldEqual, 3)
				So(entry.LastActivityDate, ShouldEqual, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC))
			})

			Convey("An out-of-order event from an earlier day has no streak effect", func() {
				So(apply(event(true, nil, 0, day(1))).Streak, ShouldEqual, scoring.StreakNone)
				So(entry.CurrentStreak, ShouldEqual, 3)
				So(entry.Points, ShouldEqual, 40)
			})
		})

		Convey("Day boundaries are UTC midnights, not 24h spans", func() {
			apply(event(true, nil, 0, time.Date(2026, 3, 1, 23, 50, 0, 0, time.UTC)))
			So(apply(event(true, nil, 0, time.Date(2026, 3, 2, 0, 10, 0, 0, time.UTC))).Streak, ShouldEqual, scoring.StreakExtend)
		})
	})
}

func TestApplyAggregates(t *testing.T) {
	Convey("Given random workout histories", t, func() {
		gofakeit.Seed(42)
		c := scoring.NewCalculator()
		floors := scoring.FloorsAt(now, time.Time{}, time.Time{})

		Convey("The running mean matches a full recompute", func() {
			for trial := 0; trial < 25; trial++ {
				entry := model.Entry{PlayerID: "p1"}
				var sum float64
				var n, completed int64
				var points int64
				events := gofakeit.Number(1, 60)
				for i := 0; i < events; i++ {
					done := gofakeit.Bool()
					var a *float64
					if gofakeit.Bool() {
						a = acc(gofakeit.Float64Range(0, 100))
					}
					ev := event(done, a, gofakeit.Float64Range(0, 90), now.Add(-time.Duration(gofakeit.Number(0, 1000))*time.Minute))
					d := c.Calculate(ev, &entry, now, floors)
					entry = scoring.Apply(entry, ev, d, now)
					points += c.Points(ev)
					if done {
						completed++
						if a != nil {
							sum += *a
							n++
						}
					}
				}
				So(entry.TotalWorkoutsCompleted, ShouldEqual, completed)
				So(entry.AccuracySamples, ShouldEqual, n)
				So(entry.Points, ShouldEqual, points)
				So(entry.Points, ShouldBeGreaterThanOrEqualTo, 0)
				if n > 0 {
					So(math.Abs(entry.AvgAccuracy-sum/float64(n)), ShouldBeLessThan, 1e-9)
				}
			}
		})

		Convey("Apply rolls windowed totals from an earlier period", func() {
			lastWeek := model.Entry{
				PlayerID: "p1", Points: 50, WeeklyPoints: 50, MonthlyPoints: 50,
				WeeklyPeriod:  time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
				MonthlyPeriod: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			}
			ev := event(true, nil, 0, now)
			next := scoring.Apply(lastWeek, ev, c.Calculate(ev, &lastWeek, now, floors), now)
			So(next.Points, ShouldEqual, 60)
			So(next.WeeklyPoints, ShouldEqual, 10)
			So(next.WeeklyPeriod, ShouldEqual, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC))
			So(next.MonthlyPoints, ShouldEqual, 60)
		})

		Convey("Apply does not mutate its input", func() {
			entry := model.Entry{PlayerID: "p1", Achievements: []model.Achievement{{Type: "first_workout"}}}
			ev := event(true, acc(70), 20, now)
			next := scoring.Apply(entry, ev, c.Calculate(ev, &entry, now, floors), now)
			So(entry.Points, ShouldEqual, 0)
			So(next.Points, ShouldEqual, 19)
			So(next.CreatedAt, ShouldEqual, now)
			So(next.UpdatedAt, ShouldEqual, now)
			next.Achievements[0].Type = "x"
			So(entry.Achievements[0].Type, ShouldEqual, model.AchievementType("first_workout"))
		})
	})
}

func TestStreakEffectString(t *testing.T) {
	Convey("Streak effects have stable names", t, func() {
		So(scoring.StreakNone.String(), ShouldEqual, "none")
		So(scoring.StreakSameDay.String(), ShouldEqual, "same_day")
		So(scoring.StreakExtend.String(), ShouldEqual, "extend")
		So(scoring.StreakRestart.String(), ShouldEqual, "restart")
	})
}
