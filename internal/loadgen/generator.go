package loadgen

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/okian/courtside/internal/domain/model"
)

// Distribution constants.
const (
	coachRate      = 0.05
	completedRate  = 0.85
	accuracyRate   = 0.7
	minAccuracy    = 20.0
	maxAccuracy    = 100.0
	minDurationMin = 10.0
	maxDurationMin = 90.0
	minKcalPerMin  = 6.0
	maxKcalPerMin  = 12.0
	historySpan    = 14 * 24 * time.Hour
)

// Generator produces fake players and progress events.
type Generator struct {
	faker *gofakeit.Faker
	now   time.Time
}

// NewGenerator returns a generator seeded with seed. Events fall within the
// two weeks before now.
func NewGenerator(seed int64, now time.Time) *Generator {
	if seed == 0 {
		seed = now.UnixNano()
	}
	return &Generator{faker: gofakeit.New(seed), now: now.UTC()}
}

// Players returns n profiles spread over teams team ids. A small share are
// coaches, whose events the server ignores.
func (g *Generator) Players(n, teams int) []model.Player {
	teamIDs := make([]string, teams)
	for i := range teamIDs {
		teamIDs[i] = fmt.Sprintf("%s-%d", strings.ToLower(g.faker.SafeColor()), i)
	}

	out := make([]model.Player, n)
	for i := range out {
		role := model.RolePlayer
		if n > 1 && g.faker.Float64() < coachRate {
			role = model.RoleCoach
		}
		out[i] = model.Player{
			ID:         "p-" + g.faker.UUID(),
			Name:       g.faker.Name(),
			SkillLevel: model.SkillLevels[g.faker.Number(0, len(model.SkillLevels)-1)],
			TeamID:     teamIDs[g.faker.Number(0, teams-1)],
			Role:       role,
			Active:     true,
		}
	}
	return out
}

// Events returns n events, each with a fresh id, for random players.
func (g *Generator) Events(players []model.Player, n int) []model.ProgressEvent {
	out := make([]model.ProgressEvent, n)
	for i := range out {
		p := players[g.faker.Number(0, len(players)-1)]
		duration := round1(g.faker.Float64Range(minDurationMin, maxDurationMin))
		ev := model.ProgressEvent{
			EventID:        uuid.NewString(),
			PlayerID:       p.ID,
			Completed:      g.faker.Float64() < completedRate,
			DurationMin:    duration,
			CaloriesBurned: round1(duration * g.faker.Float64Range(minKcalPerMin, maxKcalPerMin)),
			OccurredAt:     g.faker.DateRange(g.now.Add(-historySpan), g.now).UTC().Truncate(time.Second),
		}
		if g.faker.Float64() < accuracyRate {
			acc := round1(g.faker.Float64Range(minAccuracy, maxAccuracy))
			ev.AccuracyPct = &acc
		}
		out[i] = ev
	}
	return out
}

// Duplicates picks a rate share of events to resubmit unchanged.
func (g *Generator) Duplicates(events []model.ProgressEvent, rate float64) []model.ProgressEvent {
	n := int(float64(len(events)) * rate)
	out := make([]model.ProgressEvent, 0, n)
	for _, i := range g.faker.Rand.Perm(len(events))[:n] {
		out = append(out, events[i])
	}
	return out
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// expectation is what a player's entry must show once every event landed.
type expectation struct {
	Workouts int64
	Duration float64
}

// expectations tallies events per ranked player.
func expectations(players []model.Player, events []model.ProgressEvent) map[string]expectation {
	ranked := make(map[string]bool, len(players))
	for _, p := range players {
		ranked[p.ID] = p.Role.Ranked()
	}
	out := make(map[string]expectation)
	for _, ev := range events {
		if !ranked[ev.PlayerID] {
			continue
		}
		x := out[ev.PlayerID]
		if ev.Completed {
			x.Workouts++
		}
		x.Duration += ev.DurationMin
		out[ev.PlayerID] = x
	}
	return out
}
