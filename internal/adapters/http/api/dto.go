package api

import (
	"errors"
	"strings"
	"time"

	service "github.com/okian/courtside/internal/app"
	"github.com/okian/courtside/internal/domain/model"
)

type achievementResponse struct {
	Type      string    `json:"type"`
	AwardedAt time.Time `json:"awardedAt"`
}

type entryResponse struct {
	Rank                   int                   `json:"rank,omitempty"`
	PlayerID               string                `json:"playerId"`
	Name                   string                `json:"name"`
	SkillLevel             string                `json:"skillLevel"`
	TeamID                 string                `json:"teamId"`
	Active                 bool                  `json:"active"`
	Points                 int64                 `json:"points"`
	WeeklyPoints           int64                 `json:"weeklyPoints"`
	MonthlyPoints          int64                 `json:"monthlyPoints"`
	TotalWorkoutsCompleted int64                 `json:"totalWorkoutsCompleted"`
	TotalDuration          float64               `json:"totalDuration"`
	TotalCalories          float64               `json:"totalCalories"`
	AvgAccuracy            float64               `json:"avgAccuracy"`
	CurrentStreak          int                   `json:"currentStreak"`
	LongestStreak          int                   `json:"longestStreak"`
	LastActivityDate       *time.Time            `json:"lastActivityDate,omitempty"`
	Achievements           []achievementResponse `json:"achievements"`
	Version                int64                 `json:"version"`
}

func toEntry(e model.Entry, rank int) entryResponse {
	out := entryResponse{
		Rank:                   rank,
		PlayerID:               e.PlayerID,
		Name:                   e.Name,
		SkillLevel:             string(e.SkillLevel),
		TeamID:                 e.TeamID,
		Active:                 e.Active,
		Points:                 e.Points,
		WeeklyPoints:           e.WeeklyPoints,
		MonthlyPoints:          e.MonthlyPoints,
		TotalWorkoutsCompleted: e.TotalWorkoutsCompleted,
		TotalDuration:          e.TotalDuration,
		TotalCalories:          e.TotalCalories,
		AvgAccuracy:            e.AvgAccuracy,
		CurrentStreak:          e.CurrentStreak,
		LongestStreak:          e.LongestStreak,
		Achievements:           make([]achievementResponse, 0, len(e.Achievements)),
		Version:                e.Version,
	}
	if !e.LastActivityDate.IsZero() {
		d := e.LastActivityDate
		out.LastActivityDate = &d
	}
	for _, a := range e.Achievements {
		out.Achievements = append(out.Achievements, achievementResponse{Type: string(a.Type), AwardedAt: a.AwardedAt})
	}
	return out
}

type pageResponse struct {
	Scope   string          `json:"scope"`
	Period  string          `json:"period"`
	Page    int             `json:"page"`
	Limit   int             `json:"limit"`
	Total   int             `json:"total"`
	Entries []entryResponse `json:"entries"`
}

func toPage(p service.Page) pageResponse {
	out := pageResponse{
		Scope:   p.Scope.String(),
		Period:  string(p.Window),
		Page:    p.Page,
		Limit:   p.PageSize,
		Total:   p.Total,
		Entries: make([]entryResponse, 0, len(p.Entries)),
	}
	for _, r := range p.Entries {
		out.Entries = append(out.Entries, toEntry(r.Entry, r.Rank))
	}
	return out
}

type rankResponse struct {
	IsNonPlayer  bool           `json:"isNonPlayer"`
	Rank         int            `json:"rank"`
	TotalInScope int            `json:"totalInScope"`
	Scope        string         `json:"scope,omitempty"`
	Period       string         `json:"period"`
	Entry        *entryResponse `json:"entry,omitempty"`
}

func toRank(r service.RankResult) rankResponse {
	out := rankResponse{
		IsNonPlayer:  r.IsNonPlayer,
		Rank:         r.Rank,
		TotalInScope: r.TotalInScope,
		Period:       string(r.Window),
	}
	if !r.IsNonPlayer {
		out.Scope = r.Scope.String()
		e := toEntry(r.Entry, r.Rank)
		out.Entry = &e
	}
	return out
}

type compareResponse struct {
	PlayerA      rankResponse `json:"playerA"`
	PlayerB      rankResponse `json:"playerB"`
	PointsDiff   int64        `json:"pointsDiff"`
	WeeklyDiff   int64        `json:"weeklyDiff"`
	MonthlyDiff  int64        `json:"monthlyDiff"`
	AccuracyDiff float64      `json:"accuracyDiff"`
	WorkoutsDiff int64        `json:"workoutsDiff"`
}

type statsResponse struct {
	TotalPlayers  int              `json:"totalPlayers"`
	TotalPoints   int64            `json:"totalPoints"`
	AveragePoints float64          `json:"averagePoints"`
	TopPlayers    []leaderResponse `json:"topPlayers"`
}

type leaderResponse struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Points   int64  `json:"points"`
}

// playerRequest is the profile body of POST /players/profile and the
// optional inline profile of POST /events.
type playerRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SkillLevel string `json:"skillLevel"`
	TeamID     string `json:"teamId"`
	Role       string `json:"role"`
	Active     *bool  `json:"active"`
}

func (p playerRequest) toPlayer() (model.Player, error) {
	if strings.TrimSpace(p.ID) == "" {
		return model.Player{}, errors.New("missing id")
	}
	role := model.RolePlayer
	if p.Role != "" {
		var err error
		if role, err = model.ParseRole(p.Role); err != nil {
			return model.Player{}, err
		}
	}
	out := model.Player{ID: p.ID, Name: p.Name, TeamID: p.TeamID, Role: role, Active: true}
	if p.Active != nil {
		out.Active = *p.Active
	}
	if p.SkillLevel != "" {
		level, err := model.ParseSkillLevel(p.SkillLevel)
		if err != nil {
			return model.Player{}, err
		}
		out.SkillLevel = level
	}
	return out, nil
}

// eventRequest mirrors the OpenAPI schema for POST /events.
type eventRequest struct {
	EventID        string         `json:"eventId"`
	PlayerID       string         `json:"playerId"`
	Completed      bool           `json:"completed"`
	AccuracyPct    *float64       `json:"accuracyPct"`
	DurationMin    float64        `json:"durationMin"`
	CaloriesBurned float64        `json:"caloriesBurned"`
	OccurredAt     string         `json:"occurredAt"`
	Player         *playerRequest `json:"player"`
}

func (e eventRequest) toIngest() (service.IngestRequest, error) {
	switch {
	case strings.TrimSpace(e.EventID) == "":
		return service.IngestRequest{}, errors.New("missing eventId")
	case strings.TrimSpace(e.PlayerID) == "":
		return service.IngestRequest{}, errors.New("missing playerId")
	case strings.TrimSpace(e.OccurredAt) == "":
		return service.IngestRequest{}, errors.New("missing occurredAt")
	}
	at, err := time.Parse(time.RFC3339, e.OccurredAt)
	if err != nil {
		return service.IngestRequest{}, errors.New("invalid occurredAt; must be RFC3339")
	}
	req := service.IngestRequest{Event: model.ProgressEvent{
		EventID:        e.EventID,
		PlayerID:       e.PlayerID,
		Completed:      e.Completed,
		AccuracyPct:    e.AccuracyPct,
		DurationMin:    e.DurationMin,
		CaloriesBurned: e.CaloriesBurned,
		OccurredAt:     at.UTC(),
	}}
	if e.Player != nil {
		pr := *e.Player
		if pr.ID == "" {
			pr.ID = e.PlayerID
		}
		p, err := pr.toPlayer()
		if err != nil {
			return service.IngestRequest{}, err
		}
		req.Player = &p
	}
	return req, nil
}

type ackResponse struct {
	Status    string         `json:"status"`
	Duplicate bool           `json:"duplicate"`
	Points    int64          `json:"points,omitempty"`
	Entry     *entryResponse `json:"entry,omitempty"`
}

type awardRequest struct {
	Type string `json:"type"`
}
