// Package model contains domain models passed between layers.
package model

import "strings"

// SkillLevel is a player's declared level.
type SkillLevel string

// Skill levels.
const (
	SkillBeginner     SkillLevel = "beginner"
	SkillIntermediate SkillLevel = "intermediate"
	SkillAdvanced     SkillLevel = "advanced"
	SkillExpert       SkillLevel = "expert"
)

// SkillLevels lists every valid level.
var SkillLevels = []SkillLevel{SkillBeginner, SkillIntermediate, SkillAdvanced, SkillExpert} //nolint:gochecknoglobals // enum table

// ParseSkillLevel accepts a level name case-insensitively.
func ParseSkillLevel(s string) (SkillLevel, error) {
	l := SkillLevel(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range SkillLevels {
		if v == l {
			return l, nil
		}
	}
	return "", ErrUnknownSkillLevel
}

// Role is an account role. Only players are ranked.
type Role string

// Roles.
const (
	RolePlayer Role = "player"
	RoleCoach  Role = "coach"
	RoleAdmin  Role = "admin"
)

// ParseRole accepts a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RolePlayer, RoleCoach, RoleAdmin:
		return r, nil
	default:
		return "", ErrUnknownRole
	}
}

// Ranked reports whether accounts with this role have a leaderboard entry.
func (r Role) Ranked() bool { return r == RolePlayer }

// Player is the subset of the account profile the leaderboard caches.
type Player struct {
	ID         string
	Name       string
	SkillLevel SkillLevel
	TeamID     string
	Role       Role
	Active     bool
}

// Validate checks the profile fields the leaderboard depends on.
func (p Player) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrMissingPlayerID
	}
	if _, err := ParseRole(string(p.Role)); err != nil {
		return err
	}
	if p.Role.Ranked() {
		if _, err := ParseSkillLevel(string(p.SkillLevel)); err != nil {
			return err
		}
	}
	return nil
}

// ProfileUpdate is the message the player collaborator publishes when a
// profile changes.
type ProfileUpdate struct {
	Player Player
}
