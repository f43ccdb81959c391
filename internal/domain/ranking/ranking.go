// Package ranking orders leaderboard entries deterministically and resolves
// ranks and pages within a scope and window.
//
// Order: window points desc, average accuracy desc, creation order asc, and
// player id asc as the final guard so two distinct entries never compare equal.
package ranking

import (
	"errors"
	"math"
	"sort"

	"github.com/okian/courtside/internal/domain/model"
)

// MaxPageSize is the hard cap on a single page.
const MaxPageSize = 100

// Pagination errors.
var (
	ErrInvalidPage     = errors.New("page must be >= 1")
	ErrInvalidPageSize = errors.New("page size must be >= 1")
	ErrPageSizeExceeds = errors.New("page size exceeds the maximum")
)

// Less reports whether a ranks before b in window w.
func Less(a, b *model.Entry, w model.Window) bool {
	if pa, pb := a.PointsFor(w), b.PointsFor(w); pa != pb {
		return pa > pb
	}
	if a.AvgAccuracy != b.AvgAccuracy {
		return a.AvgAccuracy > b.AvgAccuracy
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.PlayerID < b.PlayerID
}

// Filter returns the entries that belong to scope, preserving order.
func Filter(entries []model.Entry, scope model.Scope) []model.Entry {
	out := make([]model.Entry, 0, len(entries))
	for i := range entries {
		if scope.Matches(&entries[i]) {
			out = append(out, entries[i])
		}
	}
	return out
}

// Sort orders entries in place for window w.
func Sort(entries []model.Entry, w model.Window) {
	sort.Slice(entries, func(i, j int) bool {
		return Less(&entries[i], &entries[j], w)
	})
}

// RankOf returns 1 + the number of entries that sort before target. target
// need not be part of entries; an entry with the same player id is skipped.
func RankOf(entries []model.Entry, target *model.Entry, w model.Window) int {
	rank := 1
	for i := range entries {
		e := &entries[i]
		if e.PlayerID == target.PlayerID {
			continue
		}
		if Less(e, target, w) {
			rank++
		}
	}
	return rank
}

// Ranked is an entry with its position in the ordered result.
type Ranked struct {
	Rank  int
	Entry model.Entry
}

// PageRequest is a validated offset+limit request.
type PageRequest struct {
	Page int
	Size int
}

// NewPageRequest validates page and size against maxSize (MaxPageSize when <= 0).
func NewPageRequest(page, size, maxSize int) (PageRequest, error) {
	if maxSize <= 0 || maxSize > MaxPageSize {
		maxSize = MaxPageSize
	}
	switch {
	case page < 1:
		return PageRequest{}, ErrInvalidPage
	case size < 1:
		return PageRequest{}, ErrInvalidPageSize
	case size > maxSize:
		return PageRequest{}, ErrPageSizeExceeds
	}
	return PageRequest{Page: page, Size: size}, nil
}

// Offset is the index of the first entry of the page.
func (p PageRequest) Offset() int { return (p.Page - 1) * p.Size }

// Page applies p to entries that are already filtered and sorted. Ranks are
// positions in the full ordering.
func Page(sorted []model.Entry, p PageRequest) []Ranked {
	start := p.Offset()
	if start >= len(sorted) {
		return []Ranked{}
	}
	end := start + p.Size
	if end > len(sorted) {
		end = len(sorted)
	}
	out := make([]Ranked, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, Ranked{Rank: i + 1, Entry: sorted[i]})
	}
	return out
}

// Standings filters, sorts and pages a snapshot in one pass.
func Standings(snapshot []model.Entry, scope model.Scope, w model.Window, p PageRequest) (page []Ranked, total int) {
	inScope := Filter(snapshot, scope)
	Sort(inScope, w)
	return Page(inScope, p), len(inScope)
}

// Position resolves target's rank in scope from a snapshot. When target is
// not present (no history yet) it is ranked as the zero entry it implicitly
// is, after every existing entry it ties with. total includes target.
func Position(snapshot []model.Entry, scope model.Scope, w model.Window, target *model.Entry) (rank, total int) {
	inScope := Filter(snapshot, scope)
	present := false
	for i := range inScope {
		if inScope[i].PlayerID == target.PlayerID {
			present = true
			break
		}
	}
	total = len(inScope)
	if !present {
		total++
		implicit := *target
		implicit.Seq = math.MaxInt64
		target = &implicit
	}
	return RankOf(inScope, target, w), total
}
