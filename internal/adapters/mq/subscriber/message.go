package subscriber

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/okian/courtside/internal/domain/model"
)

// Default channel names.
const (
	DefaultProfileChannel  = "courtside.profiles"
	DefaultProgressChannel = "courtside.progress"
)

// ProfileMessage is the wire form of a player profile change.
type ProfileMessage struct {
	ID         string `msgpack:"id"`
	Name       string `msgpack:"name"`
	SkillLevel string `msgpack:"skill_level"`
	TeamID     string `msgpack:"team_id"`
	Role       string `msgpack:"role"`
	Active     bool   `msgpack:"active"`
}

// ProgressMessage is the wire form of a progress event. Player is set when
// the producer knows the profile.
type ProgressMessage struct {
	EventID        string          `msgpack:"event_id"`
	PlayerID       string          `msgpack:"player_id"`
	Completed      bool            `msgpack:"completed"`
	AccuracyPct    *float64        `msgpack:"accuracy_pct"`
	DurationMin    float64         `msgpack:"duration_min"`
	CaloriesBurned float64         `msgpack:"calories_burned"`
	OccurredAt     time.Time       `msgpack:"occurred_at"`
	Player         *ProfileMessage `msgpack:"player,omitempty"`
}

// Player converts the message to a validated profile.
func (m ProfileMessage) Player() (model.Player, error) {
	role, err := model.ParseRole(m.Role)
	if err != nil {
		return model.Player{}, err
	}
	p := model.Player{ID: m.ID, Name: m.Name, TeamID: m.TeamID, Role: role, Active: m.Active}
	if m.SkillLevel != "" {
		if p.SkillLevel, err = model.ParseSkillLevel(m.SkillLevel); err != nil {
			return model.Player{}, err
		}
	}
	return p, p.Validate()
}

// Event converts the message to a progress event.
func (m ProgressMessage) Event() model.ProgressEvent {
	return model.ProgressEvent{
		EventID:        m.EventID,
		PlayerID:       m.PlayerID,
		Completed:      m.Completed,
		AccuracyPct:    m.AccuracyPct,
		DurationMin:    m.DurationMin,
		CaloriesBurned: m.CaloriesBurned,
		OccurredAt:     m.OccurredAt,
	}
}

// NewProfileMessage builds the wire form of p.
func NewProfileMessage(p model.Player) ProfileMessage {
	return ProfileMessage{
		ID:         p.ID,
		Name:       p.Name,
		SkillLevel: string(p.SkillLevel),
		TeamID:     p.TeamID,
		Role:       string(p.Role),
		Active:     p.Active,
	}
}

// NewProgressMessage builds the wire form of ev.
func NewProgressMessage(ev model.ProgressEvent, p *model.Player) ProgressMessage {
	m := ProgressMessage{
		EventID:        ev.EventID,
		PlayerID:       ev.PlayerID,
		Completed:      ev.Completed,
		AccuracyPct:    ev.AccuracyPct,
		DurationMin:    ev.DurationMin,
		CaloriesBurned: ev.CaloriesBurned,
		OccurredAt:     ev.OccurredAt,
	}
	if p != nil {
		pm := NewProfileMessage(*p)
		m.Player = &pm
	}
	return m
}

// Encode serializes a message for publishing.
func Encode(v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return b, nil
}

// Decode parses a message payload into v.
func Decode(payload []byte, v any) error {
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return nil
}
