package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/okian/courtside/internal/adapters/http/api"
	"github.com/okian/courtside/internal/domain/model"
)

// Identity used for writes; profile updates require the admin role.
const (
	operatorID   = "loadgen"
	operatorRole = string(model.RoleAdmin)
)

// Outcome of one event submission.
type Outcome string

// Event outcomes.
const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeSent      Outcome = "sent" // published without an acknowledgement
)

// Entry is the subset of a leaderboard row the verifier reads.
type Entry struct {
	Rank                   int     `json:"rank"`
	PlayerID               string  `json:"playerId"`
	Points                 int64   `json:"points"`
	AvgAccuracy            float64 `json:"avgAccuracy"`
	TotalWorkoutsCompleted int64   `json:"totalWorkoutsCompleted"`
	TotalDuration          float64 `json:"totalDuration"`
}

// Page is one leaderboard page.
type Page struct {
	Total   int     `json:"total"`
	Entries []Entry `json:"entries"`
}

// Rank is the my-rank response.
type Rank struct {
	IsNonPlayer  bool   `json:"isNonPlayer"`
	Rank         int    `json:"rank"`
	TotalInScope int    `json:"totalInScope"`
	Entry        *Entry `json:"entry"`
}

type ack struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type playerBody struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SkillLevel string `json:"skillLevel"`
	TeamID     string `json:"teamId"`
	Role       string `json:"role"`
	Active     bool   `json:"active"`
}

type eventBody struct {
	EventID        string   `json:"eventId"`
	PlayerID       string   `json:"playerId"`
	Completed      bool     `json:"completed"`
	AccuracyPct    *float64 `json:"accuracyPct,omitempty"`
	DurationMin    float64  `json:"durationMin"`
	CaloriesBurned float64  `json:"caloriesBurned"`
	OccurredAt     string   `json:"occurredAt"`
}

func toPlayerBody(p model.Player) playerBody {
	return playerBody{ID: p.ID, Name: p.Name, SkillLevel: string(p.SkillLevel), TeamID: p.TeamID, Role: string(p.Role), Active: p.Active}
}

// Client talks to the leaderboard HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for baseURL with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// Health checks /healthz.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", "", "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: healthz returned %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}

// SendProfile posts p to /players/profile.
func (c *Client) SendProfile(ctx context.Context, p model.Player) error {
	resp, err := c.do(ctx, http.MethodPost, "/players/profile", operatorID, operatorRole, toPlayerBody(p))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: profile %s returned %d", ErrUnexpectedStatus, p.ID, resp.StatusCode)
	}
	return nil
}

// SendEvent posts ev to /events.
func (c *Client) SendEvent(ctx context.Context, ev model.ProgressEvent) (Outcome, error) {
	body := eventBody{
		EventID:        ev.EventID,
		PlayerID:       ev.PlayerID,
		Completed:      ev.Completed,
		AccuracyPct:    ev.AccuracyPct,
		DurationMin:    ev.DurationMin,
		CaloriesBurned: ev.CaloriesBurned,
		OccurredAt:     ev.OccurredAt.UTC().Format(time.RFC3339),
	}
	resp, err := c.do(ctx, http.MethodPost, "/events", operatorID, operatorRole, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var a ack
	if err := decode(resp, &a); err != nil {
		return "", err
	}
	switch {
	case resp.StatusCode == http.StatusAccepted:
		return OutcomeIgnored, nil
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: event %s returned %d", ErrUnexpectedStatus, ev.EventID, resp.StatusCode)
	case a.Duplicate:
		return OutcomeDuplicate, nil
	default:
		return OutcomeApplied, nil
	}
}

// Leaderboard fetches one page of the all-time global board.
func (c *Client) Leaderboard(ctx context.Context, page, limit int) (Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	resp, err := c.do(ctx, http.MethodGet, "/leaderboard?"+q.Encode(), operatorID, operatorRole, nil)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("%w: leaderboard returned %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	var p Page
	return p, decode(resp, &p)
}

// MyRank fetches the all-time global rank of playerID as that player.
func (c *Client) MyRank(ctx context.Context, playerID string) (Rank, error) {
	resp, err := c.do(ctx, http.MethodGet, "/leaderboard/my-rank", playerID, string(model.RolePlayer), nil)
	if err != nil {
		return Rank{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Rank{}, fmt.Errorf("%w: my-rank %s returned %d", ErrUnexpectedStatus, playerID, resp.StatusCode)
	}
	var r Rank
	return r, decode(resp, &r)
}

func (c *Client) do(ctx context.Context, method, path, userID, role string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(api.HeaderUserID, userID)
		req.Header.Set(api.HeaderUserRole, role)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func decode(resp *http.Response, v any) error {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s response: %w", resp.Request.URL.Path, err)
	}
	return nil
}
