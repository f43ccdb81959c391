package achievement_test

import (
	"testing"

	"github.com/okian/courtside/internal/domain/achievement"
	"github.com/okian/courtside/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEvaluate(t *testing.T) {
	Convey("Given the default rules", t, func() {
		ev := achievement.NewEvaluator()

		Convey("A fresh entry earns nothing", func() {
			So(ev.Evaluate(&model.Entry{}, achievement.RuleContext{}), ShouldBeEmpty)
		})

		Convey("The first completed workout earns first_workout", func() {
			e := &model.Entry{TotalWorkoutsCompleted: 1, CurrentStreak: 1}
			So(ev.Evaluate(e, achievement.RuleContext{}), ShouldResemble, []model.AchievementType{achievement.FirstWorkout})
		})

		Convey("A seven-day streak earns week_streak but not month_streak", func() {
			e := &model.Entry{TotalWorkoutsCompleted: 7, CurrentStreak: 7}
			got := ev.Evaluate(e, achievement.RuleContext{})
			So(got, ShouldContain, achievement.WeekStreak)
			So(got, ShouldNotContain, achievement.MonthStreak)
		})

		Convey("Top 10 depends on the global rank", func() {
			e := &model.Entry{}
			So(ev.Evaluate(e, achievement.RuleContext{GlobalRank: 10}), ShouldContain, achievement.Top10)
			So(ev.Evaluate(e, achievement.RuleContext{GlobalRank: 11}), ShouldBeEmpty)
			So(ev.Evaluate(e, achievement.RuleContext{GlobalRank: 0}), ShouldBeEmpty)
			So(ev.NeedsRank(e), ShouldBeTrue)
		})

		Convey("Sharpshooter needs both the average and enough samples", func() {
			So(ev.Evaluate(&model.Entry{AvgAccuracy: 95, AccuracySamples: 9}, achievement.RuleContext{}), ShouldBeEmpty)
			So(ev.Evaluate(&model.Entry{AvgAccuracy: 95, AccuracySamples: 10}, achievement.RuleContext{}), ShouldContain, achievement.Sharpshooter)
		})

		Convey("Badges already held are not returned again", func() {
			e := &model.Entry{
				TotalWorkoutsCompleted: 3, Points: 1500,
				Achievements: []model.Achievement{{Type: achievement.FirstWorkout}, {Type: achievement.Top10}},
			}
			got := ev.Evaluate(e, achievement.RuleContext{GlobalRank: 1})
			So(got, ShouldResemble, []model.AchievementType{achievement.Points1000})
			So(ev.NeedsRank(e), ShouldBeFalse)
		})
	})
}

func TestThresholds(t *testing.T) {
	Convey("Given lowered thresholds", t, func() {
		th := achievement.DefaultThresholds()
		th.WeekStreakDays = 3
		th.PointsMilestone = 50
		ev := achievement.NewEvaluator(achievement.WithThresholds(th))

		e := &model.Entry{CurrentStreak: 3, Points: 50}
		got := ev.Evaluate(e, achievement.RuleContext{})
		So(got, ShouldContain, achievement.WeekStreak)
		So(got, ShouldContain, achievement.Points1000)
	})

	Convey("Given a custom rule table", t, func() {
		ev := achievement.NewEvaluator(achievement.WithRules([]achievement.Rule{{
			Type:      "night_owl",
			Satisfied: func(e *model.Entry, _ achievement.RuleContext) bool { return e.TotalDuration > 0 },
		}}))
		So(ev.Types(), ShouldResemble, []model.AchievementType{"night_owl"})
		So(ev.Evaluate(&model.Entry{TotalDuration: 1}, achievement.RuleContext{}), ShouldResemble, []model.AchievementType{"night_owl"})
	})
}

func TestParse(t *testing.T) {
	Convey("Badge names are validated against the rule table", t, func() {
		ev := achievement.NewEvaluator()
		got, err := ev.Parse(" Week_Streak ")
		So(err, ShouldBeNil)
		So(got, ShouldEqual, achievement.WeekStreak)

		_, err = ev.Parse("mvp")
		So(err, ShouldEqual, achievement.ErrUnknownType)
		So(ev.Types(), ShouldHaveLength, 7)
	})
}
