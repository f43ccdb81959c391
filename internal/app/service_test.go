package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/courtside/internal/adapters/repository"
	service "github.com/okian/courtside/internal/app"
	"github.com/okian/courtside/internal/domain/achievement"
	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/pkg/logger"
)

func init() {
	if err := logger.Init(logger.WithLevel("error")); err != nil {
		panic(err)
	}
}

// Wednesday of an ISO week in the middle of a month.
var testNow = time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

func accuracy(v float64) *float64 { return &v }

func player(id, team string, level model.SkillLevel) model.Player {
	return model.Player{ID: id, Name: "Player " + id, SkillLevel: level, TeamID: team, Role: model.RolePlayer, Active: true}
}

// workout scores 10 + 8 + 3 = 21 points with the default calculator.
func workout(eventID, playerID string, at time.Time) model.ProgressEvent {
	return model.ProgressEvent{
		EventID:     eventID,
		PlayerID:    playerID,
		Completed:   true,
		AccuracyPct: accuracy(80),
		DurationMin: 30,
		OccurredAt:  at,
	}
}

type harness struct {
	ctx   context.Context
	store *repository.MemStore
	svc   *service.Service
	now   time.Time // moved by tests that cross period boundaries
}

func newHarness(opts ...service.Option) *harness {
	h := &harness{ctx: context.Background(), now: testNow}
	clock := func() time.Time { return h.now }
	h.store = repository.NewMemStore(h.ctx, repository.WithClock(clock))
	opts = append([]service.Option{service.WithClock(clock)}, opts...)
	h.svc = service.New(h.store, opts...)
	return h
}

func (h *harness) close() { _ = h.store.Close() }

func (h *harness) register(players ...model.Player) {
	for _, p := range players {
		So(h.store.UpsertPlayer(h.ctx, p), ShouldBeNil)
	}
}

func (h *harness) apply(ev model.ProgressEvent) service.IngestResult {
	res, err := h.svc.ApplyEvent(h.ctx, service.IngestRequest{Event: ev})
	So(err, ShouldBeNil)
	return res
}

// conflictStore fails every compare-and-swap as if another writer always won.
type conflictStore struct {
	repository.Store
	attempts int
}

func (c *conflictStore) CompareAndSwap(context.Context, model.Entry, int64, string) (model.Entry, error) {
	c.attempts++
	return model.Entry{}, repository.ErrVersionConflict
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a new service", t, func() {
		h := newHarness(service.WithWorkerCount(2), service.WithQueueSize(16))
		defer h.close()

		So(h.svc.Status(h.ctx)["started"], ShouldEqual, false)

		Convey("When starting and stopping it", func() {
			So(h.svc.Start(h.ctx), ShouldBeNil)
			So(h.svc.Start(h.ctx), ShouldBeNil)

			st := h.svc.Status(h.ctx)
			So(st["started"], ShouldEqual, true)
			So(st["workerCount"], ShouldEqual, 2)

			ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
			defer cancel()
			So(h.svc.Stop(ctx), ShouldBeNil)
			So(h.svc.Stop(ctx), ShouldBeNil)

			Convey("Then it is marked stopped and the store stays healthy", func() {
				So(h.svc.Status(h.ctx)["started"], ShouldEqual, false)
				So(h.svc.Healthy(h.ctx), ShouldBeNil)
			})
		})
	})
}

func TestService_ApplyEvent(t *testing.T) {
	Convey("Given a registered player", t, func() {
		h := newHarness()
		defer h.close()
		h.register(player("p1", "t1", model.SkillAdvanced))

		Convey("When a workout is applied", func() {
			res := h.apply(workout("e1", "p1", testNow.Add(-time.Hour)))

			Convey("Then every window is credited", func() {
				So(res.Applied, ShouldBeTrue)
				So(res.Points, ShouldEqual, 21)
				So(res.Entry.Points, ShouldEqual, 21)
				So(res.Entry.WeeklyPoints, ShouldEqual, 21)
				So(res.Entry.MonthlyPoints, ShouldEqual, 21)
				So(res.Entry.TotalWorkoutsCompleted, ShouldEqual, 1)
				So(res.Entry.CurrentStreak, ShouldEqual, 1)
				So(res.Entry.Version, ShouldEqual, 1)
			})

			Convey("Then redelivery is a no-op", func() {
				again := h.apply(workout("e1", "p1", testNow.Add(-time.Hour)))
				So(again.Duplicate, ShouldBeTrue)
				So(again.Applied, ShouldBeFalse)

				e, err := h.svc.GetEntry(h.ctx, "p1")
				So(err, ShouldBeNil)
				So(e.Points, ShouldEqual, 21)
				So(e.TotalWorkoutsCompleted, ShouldEqual, 1)
			})

			Convey("Then achievements are evaluated after commit", func() {
				e, err := h.svc.GetEntry(h.ctx, "p1")
				So(err, ShouldBeNil)
				So(e.HasAchievement(achievement.FirstWorkout), ShouldBeTrue)
				So(e.HasAchievement(achievement.Top10), ShouldBeTrue)
				So(e.HasAchievement(achievement.WeekStreak), ShouldBeFalse)
			})
		})

		Convey("When the event is malformed", func() {
			_, err := h.svc.ApplyEvent(h.ctx, service.IngestRequest{Event: model.ProgressEvent{PlayerID: "p1", OccurredAt: testNow}})
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
			So(errors.Is(err, model.ErrMissingEventID), ShouldBeTrue)
		})

		Convey("When the player is unknown", func() {
			_, err := h.svc.ApplyEvent(h.ctx, service.IngestRequest{Event: workout("e9", "ghost", testNow)})
			So(errors.Is(err, service.ErrUnknownPlayer), ShouldBeTrue)
		})

		Convey("When the profile travels with the event", func() {
			p := player("p2", "t2", model.SkillBeginner)
			res, err := h.svc.ApplyEvent(h.ctx, service.IngestRequest{Event: workout("e2", "p2", testNow), Player: &p})
			So(err, ShouldBeNil)
			So(res.Applied, ShouldBeTrue)
			So(res.Entry.TeamID, ShouldEqual, "t2")

			got, err := h.store.GetPlayer(h.ctx, "p2")
			So(err, ShouldBeNil)
			So(got, ShouldResemble, p)

			other := player("p3", "t2", model.SkillBeginner)
			_, err = h.svc.ApplyEvent(h.ctx, service.IngestRequest{Event: workout("e3", "p2", testNow), Player: &other})
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("When the account is a coach", func() {
			coach := model.Player{ID: "c1", Name: "Coach", Role: model.RoleCoach, Active: true}
			h.register(coach)
			res := h.apply(workout("e4", "c1", testNow))

			Convey("Then no entry is created", func() {
				So(res.Ignored, ShouldBeTrue)
				_, err := h.svc.GetEntry(h.ctx, "c1")
				So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)

				rank, err := h.svc.GetRank(h.ctx, "c1", model.ScopeGlobal, model.WindowAllTime)
				So(err, ShouldBeNil)
				So(rank.IsNonPlayer, ShouldBeTrue)
			})
		})
	})
}

func TestService_ConcurrentIngestion(t *testing.T) {
	Convey("Given many writers for the same player", t, func() {
		h := newHarness(service.WithMaxRetries(1000))
		defer h.close()
		h.register(player("p1", "t1", model.SkillExpert))

		const writers = 20
		var wg sync.WaitGroup
		errs := make(chan error, writers*2)
		for i := 0; i < writers; i++ {
			wg.Add(2)
			ev := workout(fmt.Sprintf("e%d", i), "p1", testNow)
			for j := 0; j < 2; j++ {
				go func() {
					defer wg.Done()
					_, err := h.svc.ApplyEvent(h.ctx, service.IngestRequest{Event: ev})
					errs <- err
				}()
			}
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			So(err, ShouldBeNil)
		}

		Convey("Then each distinct event counts exactly once", func() {
			e, err := h.svc.GetEntry(h.ctx, "p1")
			So(err, ShouldBeNil)
			So(e.Points, ShouldEqual, writers*21)
			So(e.TotalWorkoutsCompleted, ShouldEqual, writers)
		})
	})

	Convey("Given a store that always loses the race", t, func() {
		h := newHarness()
		defer h.close()
		h.register(player("p1", "t1", model.SkillExpert))
		store := &conflictStore{Store: h.store}
		svc := service.New(store, service.WithMaxRetries(5), service.WithClock(func() time.Time { return testNow }))

		_, err := svc.ApplyEvent(h.ctx, service.IngestRequest{Event: workout("e1", "p1", testNow)})

		Convey("Then the write gives up after the retry bound", func() {
			So(errors.Is(err, service.ErrConcurrentUpdateExhausted), ShouldBeTrue)
			So(store.attempts, ShouldEqual, 5)

			seen, err := h.store.Applied(h.ctx, "e1")
			So(err, ShouldBeNil)
			So(seen, ShouldBeFalse)
		})
	})
}

func TestService_Leaderboard(t *testing.T) {
	Convey("Given three players with activity", t, func() {
		h := newHarness()
		defer h.close()
		h.register(
			player("a", "red", model.SkillExpert),
			player("b", "red", model.SkillBeginner),
			player("c", "blue", model.SkillExpert),
			player("idle", "blue", model.SkillExpert),
		)
		h.apply(workout("a1", "a", testNow))
		h.apply(workout("a2", "a", testNow))
		h.apply(workout("b1", "b", testNow))
		ev := workout("c1", "c", testNow)
		ev.AccuracyPct = accuracy(84) // same points as b, higher accuracy
		h.apply(ev)

		Convey("Then the global board orders by points then accuracy", func() {
			page, err := h.svc.ListLeaderboard(h.ctx, model.GlobalScope(), model.WindowAllTime, 1, 10)
			So(err, ShouldBeNil)
			So(page.Total, ShouldEqual, 3)
			So(page.PageSize, ShouldEqual, 10)
			So(len(page.Entries), ShouldEqual, 3)
			So(page.Entries[0].Entry.PlayerID, ShouldEqual, "a")
			So(page.Entries[1].Entry.PlayerID, ShouldEqual, "c")
			So(page.Entries[2].Entry.PlayerID, ShouldEqual, "b")
			So(page.Entries[2].Rank, ShouldEqual, 3)
		})

		Convey("Then defaults apply and over-cap sizes are rejected", func() {
			page, err := h.svc.ListLeaderboard(h.ctx, model.GlobalScope(), model.WindowWeekly, 0, 0)
			So(err, ShouldBeNil)
			So(page.Page, ShouldEqual, 1)
			So(page.PageSize, ShouldEqual, 20)

			_, err = h.svc.ListLeaderboard(h.ctx, model.GlobalScope(), model.WindowAllTime, 1, 101)
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)

			_, err = h.svc.ListLeaderboard(h.ctx, model.SkillScope("legend"), model.WindowAllTime, 1, 10)
			So(errors.Is(err, model.ErrUnknownSkillLevel), ShouldBeTrue)
		})

		Convey("Then ranks resolve within the caller's own team and skill", func() {
			r, err := h.svc.GetRank(h.ctx, "b", model.ScopeTeam, model.WindowAllTime)
			So(err, ShouldBeNil)
			So(r.Scope, ShouldResemble, model.TeamScope("red"))
			So(r.Rank, ShouldEqual, 2)
			So(r.TotalInScope, ShouldEqual, 2)

			r, err = h.svc.GetRank(h.ctx, "c", model.ScopeSkill, model.WindowAllTime)
			So(err, ShouldBeNil)
			So(r.Rank, ShouldEqual, 2)
			So(r.TotalInScope, ShouldEqual, 2)
		})

		Convey("Then a player with no history ranks last as a zero entry", func() {
			r, err := h.svc.GetRank(h.ctx, "idle", model.ScopeGlobal, model.WindowAllTime)
			So(err, ShouldBeNil)
			So(r.IsNonPlayer, ShouldBeFalse)
			So(r.Rank, ShouldEqual, 4)
			So(r.TotalInScope, ShouldEqual, 4)
			So(r.Entry.Points, ShouldEqual, 0)
		})

		Convey("Then deactivated players are unranked", func() {
			p := player("b", "red", model.SkillBeginner)
			p.Active = false
			e, err := h.svc.UpdateProfile(h.ctx, model.ProfileUpdate{Player: p})
			So(err, ShouldBeNil)
			So(e.Active, ShouldBeFalse)

			r, err := h.svc.GetRank(h.ctx, "b", model.ScopeGlobal, model.WindowAllTime)
			So(err, ShouldBeNil)
			So(r.Rank, ShouldEqual, 0)
			So(r.TotalInScope, ShouldEqual, 2)
		})

		Convey("Then a role change to coach makes the account a non-player", func() {
			p := player("c", "blue", model.SkillExpert)
			p.Role = model.RoleCoach
			_, err := h.svc.UpdateProfile(h.ctx, model.ProfileUpdate{Player: p})
			So(err, ShouldBeNil)

			r, err := h.svc.GetRank(h.ctx, "c", model.ScopeGlobal, model.WindowAllTime)
			So(err, ShouldBeNil)
			So(r.IsNonPlayer, ShouldBeTrue)

			_, err = h.svc.Compare(h.ctx, "a", "c", model.WindowAllTime)
			So(errors.Is(err, service.ErrNonPlayer), ShouldBeTrue)
		})

		Convey("Then comparisons report A minus B", func() {
			cmp, err := h.svc.Compare(h.ctx, "a", "b", model.WindowAllTime)
			So(err, ShouldBeNil)
			So(cmp.PointsDiff, ShouldEqual, 21)
			So(cmp.WorkoutsDiff, ShouldEqual, 1)
			So(cmp.AccuracyDiff, ShouldEqual, 0)
			So(cmp.PlayerA.Rank, ShouldEqual, 1)
			So(cmp.PlayerB.Rank, ShouldEqual, 3)

			cmp, err = h.svc.Compare(h.ctx, "idle", "a", model.WindowAllTime)
			So(err, ShouldBeNil)
			So(cmp.PointsDiff, ShouldEqual, -42)

			_, err = h.svc.Compare(h.ctx, "a", "ghost", model.WindowAllTime)
			So(errors.Is(err, service.ErrUnknownPlayer), ShouldBeTrue)
		})

		Convey("Then stats summarize the active players", func() {
			st, err := h.svc.Stats(h.ctx)
			So(err, ShouldBeNil)
			So(st.TotalPlayers, ShouldEqual, 3)
			So(st.TotalPoints, ShouldEqual, 84)
			So(st.AveragePoints, ShouldEqual, 28)
			So(len(st.TopPlayers), ShouldEqual, 3)
			So(st.TopPlayers[0].PlayerID, ShouldEqual, "a")

			Convey("And a new commit invalidates the cached figures", func() {
				h.apply(workout("b2", "b", testNow))
				st, err := h.svc.Stats(h.ctx)
				So(err, ShouldBeNil)
				So(st.TotalPoints, ShouldEqual, 105)
			})
		})
	})
}

func TestService_Resets(t *testing.T) {
	Convey("Given a player with weekly and monthly points", t, func() {
		h := newHarness()
		defer h.close()
		h.register(player("p1", "t1", model.SkillExpert))
		h.apply(workout("e1", "p1", testNow.Add(-time.Hour)))

		Convey("When the weekly window is reset manually", func() {
			res, err := h.svc.ResetWindow(h.ctx, model.WindowWeekly)
			So(err, ShouldBeNil)
			So(res.Applied, ShouldBeTrue)
			So(res.Trigger, ShouldEqual, service.TriggerManual)

			e, _ := h.svc.GetEntry(h.ctx, "p1")
			So(e.WeeklyPoints, ShouldEqual, 0)
			So(e.MonthlyPoints, ShouldEqual, 21)
			So(e.Points, ShouldEqual, 21)

			Convey("Then repeating it keeps the window at zero", func() {
				res, err := h.svc.ResetWindow(h.ctx, model.WindowWeekly)
				So(err, ShouldBeNil)
				So(res.Applied, ShouldBeTrue)
				e, _ := h.svc.GetEntry(h.ctx, "p1")
				So(e.WeeklyPoints, ShouldEqual, 0)
			})

			Convey("Then the scheduler does not reset the same period again", func() {
				res, err := h.svc.ScheduledReset(h.ctx, model.WindowWeekly)
				So(err, ShouldBeNil)
				So(res.Applied, ShouldBeFalse)
			})

			Convey("Then late events from before the reset stay out of the window", func() {
				h.apply(workout("e2", "p1", testNow.Add(-30*time.Minute)))
				e, _ := h.svc.GetEntry(h.ctx, "p1")
				So(e.WeeklyPoints, ShouldEqual, 0)
				So(e.MonthlyPoints, ShouldEqual, 42)
				So(e.Points, ShouldEqual, 42)
			})
		})

		Convey("When the scheduler runs in a period with no reset yet", func() {
			res, err := h.svc.ScheduledReset(h.ctx, model.WindowMonthly)
			So(err, ShouldBeNil)
			So(res.Applied, ShouldBeTrue)

			Convey("Then points earned this month are kept", func() {
				e, _ := h.svc.GetEntry(h.ctx, "p1")
				So(e.MonthlyPoints, ShouldEqual, 21)
				So(e.WeeklyPoints, ShouldEqual, 21)
			})

			Convey("Then late events of this month still count", func() {
				h.apply(workout("e2", "p1", time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)))
				e, _ := h.svc.GetEntry(h.ctx, "p1")
				So(e.MonthlyPoints, ShouldEqual, 42)
			})
		})

		Convey("When the month rolls over", func() {
			h.now = time.Date(2026, 4, 1, 0, 5, 0, 0, time.UTC)

			Convey("Then reads drop last month's totals before the scheduler runs", func() {
				page, err := h.svc.ListLeaderboard(h.ctx, model.GlobalScope(), model.WindowMonthly, 1, 10)
				So(err, ShouldBeNil)
				So(page.Entries[0].Entry.MonthlyPoints, ShouldEqual, 0)
				So(page.Entries[0].Entry.Points, ShouldEqual, 21)

				r, err := h.svc.GetRank(h.ctx, "p1", model.ScopeGlobal, model.WindowMonthly)
				So(err, ShouldBeNil)
				So(r.Entry.MonthlyPoints, ShouldEqual, 0)
			})

			Convey("Then the first event of the month starts a fresh window", func() {
				h.apply(workout("e2", "p1", time.Date(2026, 4, 1, 0, 1, 0, 0, time.UTC)))
				e, _ := h.svc.GetEntry(h.ctx, "p1")
				So(e.MonthlyPoints, ShouldEqual, 21)
				So(e.WeeklyPoints, ShouldEqual, 21)
				So(e.Points, ShouldEqual, 42)

				Convey("And the scheduled reset right after keeps it", func() {
					for _, w := range []model.Window{model.WindowWeekly, model.WindowMonthly} {
						res, err := h.svc.ScheduledReset(h.ctx, w)
						So(err, ShouldBeNil)
						So(res.Applied, ShouldBeTrue)
					}
					e, _ := h.svc.GetEntry(h.ctx, "p1")
					So(e.MonthlyPoints, ShouldEqual, 21)
					So(e.WeeklyPoints, ShouldEqual, 21)

					res, err := h.svc.ScheduledReset(h.ctx, model.WindowMonthly)
					So(err, ShouldBeNil)
					So(res.Applied, ShouldBeFalse)
				})
			})
		})

		Convey("When the all-time window is targeted", func() {
			_, err := h.svc.ResetWindow(h.ctx, model.WindowAllTime)
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
		})
	})
}

func TestService_ResetAtPeriodBoundary(t *testing.T) {
	Convey("Given a workout thirty seconds into a new week and month", t, func() {
		h := newHarness()
		defer h.close()
		h.register(player("p1", "t1", model.SkillExpert))

		// 2026-06-01 is a Monday.
		boundary := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
		h.now = boundary.Add(time.Minute)
		h.apply(workout("e1", "p1", boundary.Add(30*time.Second)))

		Convey("The scheduled resets that follow do not erase it", func() {
			for _, w := range []model.Window{model.WindowWeekly, model.WindowMonthly} {
				res, err := h.svc.ScheduledReset(h.ctx, w)
				So(err, ShouldBeNil)
				So(res.Applied, ShouldBeTrue)
			}
			e, _ := h.svc.GetEntry(h.ctx, "p1")
			So(e.WeeklyPoints, ShouldEqual, 21)
			So(e.MonthlyPoints, ShouldEqual, 21)

			Convey("And an event from before the reset tick still counts", func() {
				h.apply(workout("e2", "p1", boundary.Add(10*time.Second)))
				e, _ := h.svc.GetEntry(h.ctx, "p1")
				So(e.WeeklyPoints, ShouldEqual, 42)
				So(e.MonthlyPoints, ShouldEqual, 42)
			})
		})
	})
}

func TestService_WindowedSums(t *testing.T) {
	Convey("Given a 10 point workout on the 1st and an 8 point session on the 15th", t, func() {
		h := newHarness()
		defer h.close()
		h.register(player("p1", "t1", model.SkillExpert))

		first := model.ProgressEvent{EventID: "d1", PlayerID: "p1", Completed: true, OccurredAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
		fifteenth := model.ProgressEvent{EventID: "d15", PlayerID: "p1", AccuracyPct: accuracy(80), OccurredAt: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}

		h.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		So(h.apply(first).Points, ShouldEqual, 10)

		Convey("The monthly total is their sum", func() {
			h.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
			So(h.apply(fifteenth).Points, ShouldEqual, 8)
			e, _ := h.svc.GetEntry(h.ctx, "p1")
			So(e.MonthlyPoints, ShouldEqual, 18)
			So(e.Points, ShouldEqual, 18)
		})

		Convey("A monthly reset between them leaves only the later one", func() {
			h.now = time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
			_, err := h.svc.ResetWindow(h.ctx, model.WindowMonthly)
			So(err, ShouldBeNil)

			h.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
			h.apply(fifteenth)
			e, _ := h.svc.GetEntry(h.ctx, "p1")
			So(e.MonthlyPoints, ShouldEqual, 8)
			So(e.Points, ShouldEqual, 18)
		})
	})
}

func TestService_InlineProfiles(t *testing.T) {
	Convey("Given a player with one applied workout", t, func() {
		h := newHarness()
		defer h.close()
		h.register(player("p1", "t1", model.SkillExpert))
		h.apply(workout("e1", "p1", testNow))

		coach := player("p1", "t2", model.SkillExpert)
		coach.Role = model.RoleCoach

		Convey("An inline profile without authority cannot change the directory", func() {
			res, err := h.svc.ApplyEvent(h.ctx, service.IngestRequest{Event: workout("e2", "p1", testNow), Player: &coach})
			So(err, ShouldBeNil)
			So(res.Applied, ShouldBeTrue)
			So(res.Entry.TeamID, ShouldEqual, "t1")

			got, _ := h.store.GetPlayer(h.ctx, "p1")
			So(got.Role, ShouldEqual, model.RolePlayer)
		})

		Convey("An authoritative inline profile refreshes the entry too", func() {
			res, err := h.svc.ApplyEvent(h.ctx, service.IngestRequest{Event: workout("e2", "p1", testNow), Player: &coach, ProfileAuthority: true})
			So(err, ShouldBeNil)
			So(res.Ignored, ShouldBeTrue)

			r, err := h.svc.GetRank(h.ctx, "p1", model.ScopeGlobal, model.WindowAllTime)
			So(err, ShouldBeNil)
			So(r.IsNonPlayer, ShouldBeTrue)

			page, err := h.svc.ListLeaderboard(h.ctx, model.GlobalScope(), model.WindowAllTime, 1, 10)
			So(err, ShouldBeNil)
			So(page.Total, ShouldEqual, 0)

			e, _ := h.svc.GetEntry(h.ctx, "p1")
			So(e.TeamID, ShouldEqual, "t2")
			So(e.Active, ShouldBeFalse)
			So(e.Points, ShouldEqual, 21)
		})
	})
}

func TestService_ImplicitZeroRank(t *testing.T) {
	Convey("Given a caller the directory has never seen", t, func() {
		h := newHarness()
		defer h.close()
		h.register(player("p1", "t1", model.SkillExpert))
		h.apply(workout("e1", "p1", testNow))

		r, err := h.svc.GetRank(h.ctx, "newcomer", model.ScopeGlobal, model.WindowAllTime)

		Convey("It ranks last as a zero entry", func() {
			So(err, ShouldBeNil)
			So(r.IsNonPlayer, ShouldBeFalse)
			So(r.Rank, ShouldEqual, 2)
			So(r.TotalInScope, ShouldEqual, 2)
			So(r.Entry.Points, ShouldEqual, 0)
		})
	})
}

// racingStore commits a competing write right after the first snapshot.
type racingStore struct {
	repository.Store
	race func()
}

func (r *racingStore) Snapshot(ctx context.Context) ([]model.Entry, error) {
	snap, err := r.Store.Snapshot(ctx)
	if race := r.race; race != nil {
		r.race = nil
		race()
	}
	return snap, err
}

func TestService_StatsCacheRace(t *testing.T) {
	Convey("Given a commit that lands while stats are being computed", t, func() {
		h := newHarness()
		defer h.close()
		h.register(player("p1", "t1", model.SkillExpert))
		h.apply(workout("e1", "p1", testNow))

		store := &racingStore{Store: h.store}
		svc := service.New(store, service.WithClock(func() time.Time { return testNow }))
		store.race = func() {
			_, err := svc.ApplyEvent(h.ctx, service.IngestRequest{Event: workout("e2", "p1", testNow)})
			So(err, ShouldBeNil)
		}

		st, err := svc.Stats(h.ctx)
		So(err, ShouldBeNil)
		So(st.TotalPoints, ShouldEqual, 21)

		Convey("The stale figures are not cached", func() {
			st, err := svc.Stats(h.ctx)
			So(err, ShouldBeNil)
			So(st.TotalPoints, ShouldEqual, 42)
		})
	})
}

func TestService_Achievements(t *testing.T) {
	Convey("Given a player with one workout", t, func() {
		h := newHarness()
		defer h.close()
		h.register(player("p1", "t1", model.SkillExpert))
		h.apply(workout("e1", "p1", testNow))

		Convey("Manual awards are unique and validated", func() {
			added, err := h.svc.AwardAchievement(h.ctx, "p1", "Century")
			So(err, ShouldBeNil)
			So(added, ShouldBeTrue)

			added, err = h.svc.AwardAchievement(h.ctx, "p1", "century")
			So(err, ShouldBeNil)
			So(added, ShouldBeFalse)

			_, err = h.svc.AwardAchievement(h.ctx, "p1", "mvp")
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)

			_, err = h.svc.AwardAchievement(h.ctx, "ghost", "century")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
		})

		Convey("Older workouts arriving late do not extend the streak", func() {
			for d := 1; d < 7; d++ {
				h.apply(workout(fmt.Sprintf("day%d", d), "p1", testNow.AddDate(0, 0, -d)))
			}
			e, _ := h.svc.GetEntry(h.ctx, "p1")
			So(e.CurrentStreak, ShouldEqual, 1)
			So(e.HasAchievement(achievement.WeekStreak), ShouldBeFalse)
		})

		Convey("Seven consecutive days earn the week badge", func() {
			h.register(player("p2", "t1", model.SkillExpert))
			for d := 6; d >= 0; d-- {
				h.apply(workout(fmt.Sprintf("p2-day%d", d), "p2", testNow.AddDate(0, 0, -d)))
			}
			e, _ := h.svc.GetEntry(h.ctx, "p2")
			So(e.CurrentStreak, ShouldEqual, 7)
			So(e.HasAchievement(achievement.WeekStreak), ShouldBeTrue)
		})
	})

	Convey("Given a player who earned top_10 and was then overtaken", t, func() {
		h := newHarness()
		defer h.close()
		h.register(player("p1", "t1", model.SkillExpert))
		h.apply(workout("e1", "p1", testNow))
		e, _ := h.svc.GetEntry(h.ctx, "p1")
		So(e.HasAchievement(achievement.Top10), ShouldBeTrue)

		for i := 0; i < 10; i++ {
			id := fmt.Sprintf("rival-%d", i)
			h.register(player(id, "t2", model.SkillExpert))
			h.apply(workout(id+"-a", id, testNow))
			h.apply(workout(id+"-b", id, testNow))
		}
		r, err := h.svc.GetRank(h.ctx, "p1", model.ScopeGlobal, model.WindowAllTime)
		So(err, ShouldBeNil)
		So(r.Rank, ShouldEqual, 11)

		Convey("The badge survives a full recompute and later events", func() {
			_, err := h.svc.RecomputeRankings(h.ctx)
			So(err, ShouldBeNil)
			e, _ := h.svc.GetEntry(h.ctx, "p1")
			So(e.HasAchievement(achievement.Top10), ShouldBeTrue)

			h.apply(workout("e2", "p1", testNow))
			e, _ = h.svc.GetEntry(h.ctx, "p1")
			So(e.HasAchievement(achievement.Top10), ShouldBeTrue)
			So(e.HasAchievement(achievement.FirstWorkout), ShouldBeTrue)
		})
	})

	Convey("Given a large random population", t, func() {
		h := newHarness()
		defer h.close()
		faker := gofakeit.New(11)
		for i := 0; i < 30; i++ {
			id := faker.UUID()
			h.register(player(id, faker.RandomString([]string{"red", "blue"}), model.SkillExpert))
			for j := 0; j < faker.Number(1, 4); j++ {
				ev := workout(faker.UUID(), id, testNow)
				ev.DurationMin = float64(faker.Number(0, 60))
				h.apply(ev)
			}
		}

		Convey("After a full recompute every top ten player holds top_10", func() {
			res, err := h.svc.RecomputeRankings(h.ctx)
			So(err, ShouldBeNil)
			So(res.Players, ShouldEqual, 30)

			page, err := h.svc.ListLeaderboard(h.ctx, model.GlobalScope(), model.WindowAllTime, 1, 100)
			So(err, ShouldBeNil)
			for _, row := range page.Entries {
				if row.Rank <= 10 {
					So(row.Entry.HasAchievement(achievement.Top10), ShouldBeTrue)
				}
				So(row.Entry.HasAchievement(achievement.FirstWorkout), ShouldBeTrue)
			}
		})
	})
}
