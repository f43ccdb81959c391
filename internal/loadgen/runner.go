package loadgen

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/pkg/logger"
)

const directoryPermission = 0o750

// Runner executes simulations.
type Runner struct {
	cfg    Config
	sink   Sink
	client *Client
	now    func() time.Time
	logger logger.Logger
}

// NewRunner creates a runner writing through sink and reading through client.
func NewRunner(cfg Config, sink Sink, client *Client) *Runner {
	return &Runner{cfg: cfg, sink: sink, client: client, now: time.Now, logger: logger.Get().Named("loadgen")}
}

// Run generates the data set, sends it, and verifies what the server reports.
// A failed verification returns the report together with ErrVerification.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	start := r.now()
	var rep Report
	if err := r.cfg.Validate(); err != nil {
		return rep, err
	}
	r.logger.Info(ctx, "starting simulation",
		logger.String("base_url", r.cfg.BaseURL),
		logger.String("transport", r.cfg.Transport),
		logger.Int("players", r.cfg.Players),
		logger.Int("events", r.cfg.Events),
		logger.Int("workers", r.cfg.Workers),
	)

	if err := r.client.Health(ctx); err != nil {
		return rep, fmt.Errorf("service health check: %w", err)
	}

	gen := NewGenerator(r.cfg.Seed, start)
	players := gen.Players(r.cfg.Players, r.cfg.Teams)
	events := gen.Events(players, r.cfg.Events)
	dups := gen.Duplicates(events, r.cfg.DuplicateRate)
	rep.EventsGenerated = len(events)

	if err := r.sendProfiles(ctx, players, &rep); err != nil {
		return rep, err
	}
	if r.cfg.Transport == TransportRedis {
		// profiles must land before events reference them
		if err := sleep(ctx, r.cfg.Settle); err != nil {
			return rep, err
		}
	}

	r.sendEvents(ctx, events, &rep, false)
	r.sendEvents(ctx, dups, &rep, true)
	rep.DuplicatesSent = len(dups)

	if err := sleep(ctx, r.cfg.Settle); err != nil {
		return rep, err
	}

	if err := r.verify(ctx, expectations(players, events), &rep); err != nil {
		return rep, err
	}

	if r.cfg.OutputFile != "" {
		if err := saveEvents(r.cfg.OutputFile, events); err != nil {
			r.logger.Warn(ctx, "failed to save events", logger.Error(err))
		}
	}

	rep.Duration = r.now().Sub(start)
	r.logger.Info(ctx, "simulation finished",
		logger.Int("sent", rep.EventsSent),
		logger.Int("applied", rep.EventsApplied),
		logger.Int("duplicate", rep.EventsDuplicate),
		logger.Int("ignored", rep.EventsIgnored),
		logger.Int("failed", rep.EventsFailed),
		logger.Int("leaderboard_size", rep.LeaderboardSize),
		logger.Int("mismatches", len(rep.Mismatches)),
		logger.String("duration", rep.Duration.String()),
	)
	if !rep.OK() {
		return rep, fmt.Errorf("%w: %d mismatches, %d duplicates applied", ErrVerification, len(rep.Mismatches), rep.DuplicatesMissed)
	}
	return rep, nil
}

func (r *Runner) sendProfiles(ctx context.Context, players []model.Player, rep *Report) error {
	var (
		failed  atomic.Int64
		firstMu sync.Mutex
		first   error
	)
	fanOut(ctx, r.cfg.Workers, players, func(p model.Player) {
		if err := r.sink.SendProfile(ctx, p); err != nil {
			failed.Add(1)
			firstMu.Lock()
			if first == nil {
				first = err
			}
			firstMu.Unlock()
		}
	})
	rep.PlayersCreated = len(players) - int(failed.Load())
	if first != nil {
		return fmt.Errorf("send profiles: %d failed: %w", failed.Load(), first)
	}
	return nil
}

func (r *Runner) sendEvents(ctx context.Context, events []model.ProgressEvent, rep *Report, resubmitted bool) {
	var sent, applied, duplicate, ignored, failed, missed atomic.Int64
	fanOut(ctx, r.cfg.Workers, events, func(ev model.ProgressEvent) {
		out, err := r.sink.SendEvent(ctx, ev)
		sent.Add(1)
		if err != nil {
			failed.Add(1)
			r.logger.Debug(ctx, "event failed", logger.String("event_id", ev.EventID), logger.Error(err))
			return
		}
		switch out {
		case OutcomeApplied:
			applied.Add(1)
			if resubmitted {
				missed.Add(1)
			}
		case OutcomeDuplicate:
			duplicate.Add(1)
		case OutcomeIgnored:
			ignored.Add(1)
		case OutcomeSent:
		}
	})
	rep.EventsSent += int(sent.Load())
	rep.EventsApplied += int(applied.Load())
	rep.EventsDuplicate += int(duplicate.Load())
	rep.EventsIgnored += int(ignored.Load())
	rep.EventsFailed += int(failed.Load())
	rep.DuplicatesMissed += int(missed.Load())
}

// verify lists the whole board, checks its order and cross-checks a sample
// of players through my-rank.
func (r *Runner) verify(ctx context.Context, want map[string]expectation, rep *Report) error {
	listed := make(map[string]Entry, len(want))
	var last *Entry
	for page := 1; ; page++ {
		p, err := r.client.Leaderboard(ctx, page, r.cfg.PageSize)
		if err != nil {
			return fmt.Errorf("list leaderboard: %w", err)
		}
		rows := p.Entries
		first := (page-1)*r.cfg.PageSize + 1
		if last != nil {
			// chain the check across the page boundary
			rows = append([]Entry{*last}, rows...)
			first--
		}
		rep.Mismatches = append(rep.Mismatches, verifyOrder(rows, first)...)
		for _, e := range p.Entries {
			listed[e.PlayerID] = e
		}
		if n := len(p.Entries); n > 0 {
			last = &p.Entries[n-1]
		}
		rep.LeaderboardSize = p.Total
		if len(p.Entries) < r.cfg.PageSize || page*r.cfg.PageSize >= p.Total {
			break
		}
	}

	if rep.LeaderboardSize != len(want) {
		rep.Mismatches = append(rep.Mismatches, fmt.Sprintf("leaderboard total %d, want %d ranked players", rep.LeaderboardSize, len(want)))
	}

	ids := make([]string, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) > r.cfg.Sample {
		ids = ids[:r.cfg.Sample]
	}
	for _, id := range ids {
		e, ok := listed[id]
		if !ok {
			rep.Mismatches = append(rep.Mismatches, fmt.Sprintf("%s: missing from leaderboard", id))
			continue
		}
		got, err := r.client.MyRank(ctx, id)
		if err != nil {
			return fmt.Errorf("my-rank: %w", err)
		}
		rep.Mismatches = append(rep.Mismatches, verifyRank(e, got, want[id])...)
		rep.PlayersCrossCheck++
	}
	return nil
}

// fanOut runs fn for every item on workers goroutines.
func fanOut[T any](ctx context.Context, workers int, items []T, fn func(T)) {
	ch := make(chan T, workers*2)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range ch {
				fn(it)
			}
		}()
	}
feed:
	for _, it := range items {
		select {
		case <-ctx.Done():
			break feed
		case ch <- it:
		}
	}
	close(ch)
	wg.Wait()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func saveEvents(path string, events []model.ProgressEvent) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	b, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}
	return os.WriteFile(path, b, 0o600)
}
