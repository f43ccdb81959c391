package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/okian/courtside/internal/domain/model"
)

const entryColumns = `seq, player_id, name, skill_level, team_id, active,
	points, weekly_points, monthly_points,
	total_workouts, total_duration, total_calories, avg_accuracy, accuracy_samples,
	current_streak, longest_streak, last_activity_date,
	created_at, updated_at, version, weekly_period, monthly_period`

// SQLStore implements Store on database/sql. Every mutating call runs in a
// single transaction; the entry CAS is a conditional UPDATE on version.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
	closers []func() error
}

// SQLOption configures a SQLStore.
type SQLOption func(*SQLStore)

// WithSQLClock sets the time source for ledger and directory timestamps.
func WithSQLClock(now func() time.Time) SQLOption {
	return func(s *SQLStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCloser registers an extra resource released by Close after the db.
func WithCloser(fn func() error) SQLOption {
	return func(s *SQLStore) {
		if fn != nil {
			s.closers = append(s.closers, fn)
		}
	}
}

// NewSQLStore wraps an open database. The schema must already be migrated.
func NewSQLStore(db *sql.DB, d Dialect, opts ...SQLOption) *SQLStore {
	s := &SQLStore{db: db, dialect: d, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying handle for migrations and health checks.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Close closes the database and any registered closers.
func (s *SQLStore) Close() error {
	err := s.db.Close()
	for _, fn := range s.closers {
		err = multierr.Append(err, fn())
	}
	return err
}

func (s *SQLStore) q(query string) string { return s.dialect.rebind(query) }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (model.Entry, error) {
	var (
		e                   model.Entry
		skill               string
		lastActivity        sql.NullTime
		weeklyOf, monthlyOf sql.NullTime
	)
	err := r.Scan(&e.Seq, &e.PlayerID, &e.Name, &skill, &e.TeamID, &e.Active,
		&e.Points, &e.WeeklyPoints, &e.MonthlyPoints,
		&e.TotalWorkoutsCompleted, &e.TotalDuration, &e.TotalCalories, &e.AvgAccuracy, &e.AccuracySamples,
		&e.CurrentStreak, &e.LongestStreak, &lastActivity,
		&e.CreatedAt, &e.UpdatedAt, &e.Version, &weeklyOf, &monthlyOf)
	if err != nil {
		return model.Entry{}, err
	}
	e.SkillLevel = model.SkillLevel(skill)
	e.LastActivityDate = fromNull(lastActivity)
	e.WeeklyPeriod = fromNull(weeklyOf)
	e.MonthlyPeriod = fromNull(monthlyOf)
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func fromNull(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) achievementsOf(ctx context.Context, qr querier, playerID string) ([]model.Achievement, error) {
	rows, err := qr.QueryContext(ctx, s.q(`SELECT type, awarded_at FROM achievements WHERE player_id = ? ORDER BY awarded_at, type`), playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Achievement
	for rows.Next() {
		var a model.Achievement
		var kind string
		if err := rows.Scan(&kind, &a.AwardedAt); err != nil {
			return nil, err
		}
		a.Type = model.AchievementType(kind)
		a.AwardedAt = a.AwardedAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) Get(ctx context.Context, playerID string) (e model.Entry, err error) {
	defer func(start time.Time) { observe("get", start, ignoreNotFound(err)) }(time.Now())

	e, err = scanEntry(s.db.QueryRowContext(ctx, s.q(`SELECT `+entryColumns+` FROM leaderboard_entries WHERE player_id = ?`), playerID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Entry{}, ErrNotFound
	}
	if err != nil {
		return model.Entry{}, fmt.Errorf("get entry: %w", err)
	}
	if e.Achievements, err = s.achievementsOf(ctx, s.db, playerID); err != nil {
		return model.Entry{}, fmt.Errorf("get achievements: %w", err)
	}
	return e, nil
}

func (s *SQLStore) snapshotTxOptions() *sql.TxOptions {
	if s.dialect == DialectPostgres {
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return nil
}

func (s *SQLStore) Snapshot(ctx context.Context) (out []model.Entry, err error) {
	defer func(start time.Time) { observe("snapshot", start, err) }(time.Now())

	tx, err := s.db.BeginTx(ctx, s.snapshotTxOptions())
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT `+entryColumns+` FROM leaderboard_entries`)
	if err != nil {
		return nil, fmt.Errorf("snapshot entries: %w", err)
	}
	index := make(map[string]int)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		index[e.PlayerID] = len(out)
		out = append(out, e)
	}
	if err := multierr.Combine(rows.Err(), rows.Close()); err != nil {
		return nil, fmt.Errorf("snapshot entries: %w", err)
	}

	arows, err := tx.QueryContext(ctx, `SELECT player_id, type, awarded_at FROM achievements ORDER BY awarded_at, type`)
	if err != nil {
		return nil, fmt.Errorf("snapshot achievements: %w", err)
	}
	defer arows.Close()
	for arows.Next() {
		var playerID, kind string
		var at time.Time
		if err := arows.Scan(&playerID, &kind, &at); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		if i, ok := index[playerID]; ok {
			out[i].Achievements = append(out[i].Achievements, model.Achievement{Type: model.AchievementType(kind), AwardedAt: at.UTC()})
		}
	}
	if err := arows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot achievements: %w", err)
	}
	return out, nil
}

func (s *SQLStore) CompareAndSwap(ctx context.Context, next model.Entry, expectedVersion int64, eventID string) (committed model.Entry, err error) {
	defer func(start time.Time) { observe("cas", start, ignoreConflict(err)) }(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Entry{}, fmt.Errorf("begin cas: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if eventID != "" {
		res, err := tx.ExecContext(ctx, s.q(`INSERT INTO applied_events (event_id, player_id, applied_at) VALUES (?, ?, ?) ON CONFLICT (event_id) DO NOTHING`),
			eventID, next.PlayerID, s.now().UTC())
		if err != nil {
			return model.Entry{}, fmt.Errorf("record event: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.Entry{}, ErrDuplicateEvent
		}
	}

	committed = next.Clone()
	committed.Version = expectedVersion + 1
	if expectedVersion == 0 {
		err = tx.QueryRowContext(ctx, s.q(`INSERT INTO leaderboard_entries (
				player_id, name, skill_level, team_id, active,
				points, weekly_points, monthly_points,
				total_workouts, total_duration, total_calories, avg_accuracy, accuracy_samples,
				current_streak, longest_streak, last_activity_date,
				created_at, updated_at, version, weekly_period, monthly_period)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (player_id) DO NOTHING
			RETURNING seq`),
			next.PlayerID, next.Name, string(next.SkillLevel), next.TeamID, next.Active,
			next.Points, next.WeeklyPoints, next.MonthlyPoints,
			next.TotalWorkoutsCompleted, next.TotalDuration, next.TotalCalories, next.AvgAccuracy, next.AccuracySamples,
			next.CurrentStreak, next.LongestStreak, nullTime(next.LastActivityDate),
			next.CreatedAt.UTC(), next.UpdatedAt.UTC(), committed.Version,
			nullTime(next.WeeklyPeriod), nullTime(next.MonthlyPeriod),
		).Scan(&committed.Seq)
		if errors.Is(err, sql.ErrNoRows) {
			return model.Entry{}, ErrVersionConflict
		}
		if err != nil {
			return model.Entry{}, fmt.Errorf("insert entry: %w", err)
		}
		committed.Achievements = nil
	} else {
		res, err := tx.ExecContext(ctx, s.q(`UPDATE leaderboard_entries SET
				name = ?, skill_level = ?, team_id = ?, active = ?,
				points = ?, weekly_points = ?, monthly_points = ?,
				total_workouts = ?, total_duration = ?, total_calories = ?, avg_accuracy = ?, accuracy_samples = ?,
				current_streak = ?, longest_streak = ?, last_activity_date = ?,
				updated_at = ?, version = ?, weekly_period = ?, monthly_period = ?
			WHERE player_id = ? AND version = ?`),
			next.Name, string(next.SkillLevel), next.TeamID, next.Active,
			next.Points, next.WeeklyPoints, next.MonthlyPoints,
			next.TotalWorkoutsCompleted, next.TotalDuration, next.TotalCalories, next.AvgAccuracy, next.AccuracySamples,
			next.CurrentStreak, next.LongestStreak, nullTime(next.LastActivityDate),
			next.UpdatedAt.UTC(), committed.Version,
			nullTime(next.WeeklyPeriod), nullTime(next.MonthlyPeriod),
			next.PlayerID, expectedVersion)
		if err != nil {
			return model.Entry{}, fmt.Errorf("update entry: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.Entry{}, ErrVersionConflict
		}
		row := tx.QueryRowContext(ctx, s.q(`SELECT seq, created_at FROM leaderboard_entries WHERE player_id = ?`), next.PlayerID)
		if err := row.Scan(&committed.Seq, &committed.CreatedAt); err != nil {
			return model.Entry{}, fmt.Errorf("read back entry: %w", err)
		}
		committed.CreatedAt = committed.CreatedAt.UTC()
		if committed.Achievements, err = s.achievementsOf(ctx, tx, next.PlayerID); err != nil {
			return model.Entry{}, fmt.Errorf("read back achievements: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return model.Entry{}, fmt.Errorf("commit cas: %w", err)
	}
	return committed, nil
}

func (s *SQLStore) Applied(ctx context.Context, eventID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(1) FROM applied_events WHERE event_id = ?`), eventID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup event: %w", err)
	}
	return n > 0, nil
}

func (s *SQLStore) ResetWindow(ctx context.Context, w model.Window, at, onlyIfBefore time.Time) (ran bool, err error) {
	defer func(start time.Time) { observe("reset", start, err) }(time.Now())

	var column, stamp string
	switch w {
	case model.WindowWeekly:
		column, stamp = "weekly_points", "weekly_period"
	case model.WindowMonthly:
		column, stamp = "monthly_points", "monthly_period"
	default:
		return false, ErrInvalidWindow
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin reset: %w", err)
	}
	defer func() {
		if err != nil || !ran {
			_ = tx.Rollback()
		}
	}()

	var marker sql.NullTime
	err = tx.QueryRowContext(ctx, s.q(`SELECT last_reset_at FROM window_resets WHERE window_name = ?`+s.dialect.lockSuffix()), string(w)).Scan(&marker)
	if err != nil {
		return false, fmt.Errorf("read marker: %w", err)
	}
	if !onlyIfBefore.IsZero() && marker.Valid && !marker.Time.Before(onlyIfBefore) {
		return false, nil
	}

	if onlyIfBefore.IsZero() {
		_, err = tx.ExecContext(ctx, `UPDATE leaderboard_entries SET `+column+` = 0, version = version + 1`)
	} else {
		start := onlyIfBefore.UTC()
		_, err = tx.ExecContext(ctx, s.q(`UPDATE leaderboard_entries SET `+column+` = 0, `+stamp+` = ?, version = version + 1
			WHERE `+stamp+` IS NULL OR `+stamp+` < ?`), start, start)
	}
	if err != nil {
		return false, fmt.Errorf("zero %s: %w", column, err)
	}
	if !marker.Valid || at.After(marker.Time) {
		if _, err = tx.ExecContext(ctx, s.q(`UPDATE window_resets SET last_reset_at = ? WHERE window_name = ?`), at.UTC(), string(w)); err != nil {
			return false, fmt.Errorf("write marker: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit reset: %w", err)
	}
	return true, nil
}

func (s *SQLStore) LastReset(ctx context.Context, w model.Window) (time.Time, error) {
	var marker sql.NullTime
	err := s.db.QueryRowContext(ctx, s.q(`SELECT last_reset_at FROM window_resets WHERE window_name = ?`), string(w)).Scan(&marker)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read marker: %w", err)
	}
	if !marker.Valid {
		return time.Time{}, nil
	}
	return marker.Time.UTC(), nil
}

func (s *SQLStore) UpsertPlayer(ctx context.Context, p model.Player) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO players (player_id, name, skill_level, team_id, role, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (player_id) DO UPDATE SET
			name = excluded.name, skill_level = excluded.skill_level, team_id = excluded.team_id,
			role = excluded.role, active = excluded.active, updated_at = excluded.updated_at`),
		p.ID, p.Name, string(p.SkillLevel), p.TeamID, string(p.Role), p.Active, s.now().UTC())
	if err != nil {
		return fmt.Errorf("upsert player: %w", err)
	}
	return nil
}

func (s *SQLStore) GetPlayer(ctx context.Context, playerID string) (model.Player, error) {
	var p model.Player
	var skill, role string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT player_id, name, skill_level, team_id, role, active FROM players WHERE player_id = ?`), playerID).
		Scan(&p.ID, &p.Name, &skill, &p.TeamID, &role, &p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Player{}, ErrNotFound
	}
	if err != nil {
		return model.Player{}, fmt.Errorf("get player: %w", err)
	}
	p.SkillLevel = model.SkillLevel(skill)
	p.Role = model.Role(role)
	return p, nil
}

func (s *SQLStore) AddAchievement(ctx context.Context, playerID string, a model.Achievement) (added bool, err error) {
	defer func(start time.Time) { observe("add_achievement", start, ignoreNotFound(err)) }(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin award: %w", err)
	}
	defer func() {
		if err != nil || !added {
			_ = tx.Rollback()
		}
	}()

	var seq int64
	err = tx.QueryRowContext(ctx, s.q(`SELECT seq FROM leaderboard_entries WHERE player_id = ?`+s.dialect.lockSuffix()), playerID).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("lock entry: %w", err)
	}

	res, err := tx.ExecContext(ctx, s.q(`INSERT INTO achievements (player_id, type, awarded_at) VALUES (?, ?, ?) ON CONFLICT (player_id, type) DO NOTHING`),
		playerID, string(a.Type), a.AwardedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("insert achievement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	if _, err = tx.ExecContext(ctx, s.q(`UPDATE leaderboard_entries SET version = version + 1 WHERE player_id = ?`), playerID); err != nil {
		return false, fmt.Errorf("bump version: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit award: %w", err)
	}
	return true, nil
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM leaderboard_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func ignoreConflict(err error) error {
	if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrDuplicateEvent) {
		return nil
	}
	return err
}
