// Package repository persists leaderboard entries, the applied-event ledger,
// window reset markers and the player directory.
package repository

import (
	"context"
	"time"

	"github.com/okian/courtside/internal/domain/model"
)

// Store provides transactional access to leaderboard state.
type Store interface {
	// Get returns the entry for playerID or ErrNotFound.
	Get(ctx context.Context, playerID string) (model.Entry, error)

	// Snapshot returns a consistent copy of every entry.
	Snapshot(ctx context.Context) ([]model.Entry, error)

	// CompareAndSwap commits next if the stored version equals expectedVersion
	// (0 means the entry must not exist yet). When eventID is non-empty it is
	// recorded in the applied-event ledger in the same atomic step. Achievements
	// on next are ignored; use AddAchievement. Returns the committed entry with
	// its new Version and, on first insert, its Seq.
	//
	// Errors: ErrVersionConflict, ErrDuplicateEvent.
	CompareAndSwap(ctx context.Context, next model.Entry, expectedVersion int64, eventID string) (model.Entry, error)

	// Applied reports whether eventID is in the ledger.
	Applied(ctx context.Context, eventID string) (bool, error)

	// ResetWindow zeroes window w, bumps the version of every zeroed entry and
	// advances the window's marker to at.
	//
	// With a zero onlyIfBefore every entry is zeroed. Otherwise onlyIfBefore is
	// the start of the current period: the reset is skipped unless the marker
	// is earlier than it, and only entries whose window totals were earned
	// before it are zeroed. Reports whether it ran.
	ResetWindow(ctx context.Context, w model.Window, at, onlyIfBefore time.Time) (bool, error)

	// LastReset returns the window's marker, zero if never reset.
	LastReset(ctx context.Context, w model.Window) (time.Time, error)

	// UpsertPlayer stores a profile in the player directory.
	UpsertPlayer(ctx context.Context, p model.Player) error

	// GetPlayer returns a directory profile or ErrNotFound.
	GetPlayer(ctx context.Context, playerID string) (model.Player, error)

	// AddAchievement appends a to the entry unless it already holds that type.
	// Reports whether it was added. ErrNotFound when there is no entry.
	AddAchievement(ctx context.Context, playerID string, a model.Achievement) (bool, error)

	// Count returns the number of entries.
	Count(ctx context.Context) (int, error)

	Close() error
}
