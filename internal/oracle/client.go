package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// MatchStatus is the upstream provider's status vocabulary. The settlement
// engine coalesces it onto the market lifecycle; this package only reports it.
type MatchStatus string

const (
	MatchStatusScheduled MatchStatus = "SCHEDULED"
	MatchStatusLive      MatchStatus = "LIVE"
	MatchStatusInPlay    MatchStatus = "IN_PLAY"
	MatchStatusPaused    MatchStatus = "PAUSED"
	MatchStatusFinished  MatchStatus = "FINISHED"
	MatchStatusPostponed MatchStatus = "POSTPONED"
	MatchStatusCancelled MatchStatus = "CANCELLED"
	MatchStatusSuspended MatchStatus = "SUSPENDED"
)

// Score holds the match score. Nil means the provider has not reported that
// side yet; a FINISHED status without both sides set is indeterminate.
type Score struct {
	Home *int `json:"home"`
	Away *int `json:"away"`
}

// Determinate reports whether both sides of the score are known.
func (s Score) Determinate() bool {
	return s.Home != nil && s.Away != nil
}

// Match is the consumed subset of the provider's match payload.
type Match struct {
	ID     string      `json:"id"`
	Status MatchStatus `json:"status"`
	Score  Score       `json:"score"`
}

// Client is a read-only client for the sports-results provider. Polls are
// rate limited so sweeps over many markets do not hammer the upstream API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
}

func NewClient(baseURL, apiKey string, requestsPerSecond float64) *Client {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// GetMatch fetches the current state of one match.
func (c *Client) GetMatch(ctx context.Context, matchID string) (*Match, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("oracle rate limiter: %w", err)
	}

	url := fmt.Sprintf("%s/matches/%s", c.baseURL, matchID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Auth-Token", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch match %s: %w", matchID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("oracle returned %d for match %s: %s", resp.StatusCode, matchID, string(body))
	}

	var match Match
	if err := json.NewDecoder(resp.Body).Decode(&match); err != nil {
		return nil, fmt.Errorf("failed to decode match %s: %w", matchID, err)
	}
	if match.ID == "" {
		match.ID = matchID
	}

	return &match, nil
}
