// Package loadgen drives a running leaderboard server with fake players and
// progress events and verifies the standings it reports.
package loadgen

import (
	"errors"
	"time"
)

// Transports for the write side.
const (
	TransportHTTP  = "http"
	TransportRedis = "redis"
)

// Config holds the parameters of one simulation run.
type Config struct {
	BaseURL       string        // server base URL, used for reads and HTTP writes
	Transport     string        // http or redis
	Players       int           // number of profiles to create
	Teams         int           // number of distinct team ids
	Events        int           // number of unique progress events
	DuplicateRate float64       // fraction of events resubmitted with the same id
	Workers       int           // concurrent senders
	Timeout       time.Duration // per HTTP request
	Settle        time.Duration // wait between the last write and the first read
	Sample        int           // players cross-checked against my-rank
	PageSize      int           // leaderboard page size used for the full listing
	Seed          int64         // faker seed, 0 picks one from the clock
	OutputFile    string        // optional JSON dump of the generated events
}

// DefaultConfig returns a small run against a local server.
func DefaultConfig() Config {
	return Config{
		BaseURL:       "http://localhost:9080",
		Transport:     TransportHTTP,
		Players:       50,
		Teams:         4,
		Events:        1000,
		DuplicateRate: 0.1,
		Workers:       8,
		Timeout:       10 * time.Second,
		Settle:        time.Second,
		Sample:        10,
		PageSize:      100,
	}
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return errors.New("base url must not be empty")
	case c.Transport != TransportHTTP && c.Transport != TransportRedis:
		return errors.New("transport must be http or redis")
	case c.Players < 1 || c.Events < 1:
		return errors.New("players and events must be positive")
	case c.Teams < 1:
		return errors.New("teams must be positive")
	case c.DuplicateRate < 0 || c.DuplicateRate > 1:
		return errors.New("duplicate rate must be within 0..1")
	case c.Workers < 1:
		return errors.New("workers must be positive")
	case c.PageSize < 1 || c.PageSize > 100:
		return errors.New("page size must be within 1..100")
	}
	return nil
}

// Report summarizes a run.
type Report struct {
	PlayersCreated    int
	EventsGenerated   int
	EventsSent        int
	EventsApplied     int
	EventsDuplicate   int
	EventsIgnored     int
	EventsFailed      int
	DuplicatesSent    int
	DuplicatesMissed  int // resubmissions the server applied again
	LeaderboardSize   int
	PlayersCrossCheck int
	Mismatches        []string
	Duration          time.Duration
}

// OK reports whether verification found no problem.
func (r Report) OK() bool { return len(r.Mismatches) == 0 && r.DuplicatesMissed == 0 }
