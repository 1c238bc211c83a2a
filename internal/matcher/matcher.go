// Package matcher resolves scraped scores onto known fixtures by fuzzy
// team-name similarity inside a time window.
package matcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/antonkoetzler/arbihawk/internal/matchid"
	"github.com/antonkoetzler/arbihawk/internal/models"
)

// FixtureSource is the slice of the store the matcher needs.
type FixtureSource interface {
	FixturesBetween(ctx context.Context, from, to time.Time) ([]*models.Fixture, error)
}

// Unmatched is one entry of the in-memory unmatched log.
type Unmatched struct {
	Home      string    `json:"home"`
	Away      string    `json:"away"`
	MatchTime time.Time `json:"match_time"`
	Reason    string    `json:"reason"`
}

// BatchResult aggregates a batch matching run.
type BatchResult struct {
	Total     int               `json:"total"`
	Matched   int               `json:"matched"`
	Unmatched int               `json:"unmatched"`
	MatchRate float64           `json:"match_rate"`
	Results   map[string]string `json:"results"`
}

// Matcher scores candidate fixtures against scraped team names.
type Matcher struct {
	fixtures  FixtureSource
	id        *matchid.Identifier
	tolerance time.Duration
	minScore  int

	mu        sync.Mutex
	unmatched []Unmatched
}

// New creates a matcher. tolerance is the half-width of the fixture search
// window; minScore is the acceptance threshold on the combined similarity.
func New(fixtures FixtureSource, id *matchid.Identifier, tolerance time.Duration, minScore int) *Matcher {
	return &Matcher{
		fixtures:  fixtures,
		id:        id,
		tolerance: tolerance,
		minScore:  minScore,
	}
}

// MatchScore finds the fixture whose teams best match (home, away) within
// [matchTime - tolerance, matchTime + tolerance]. Returns the fixture id, or
// "" when no candidate reaches the threshold; unmatched cases are recorded.
func (m *Matcher) MatchScore(ctx context.Context, home, away string, matchTime time.Time) (string, error) {
	candidates, err := m.fixtures.FixturesBetween(ctx, matchTime.Add(-m.tolerance), matchTime.Add(m.tolerance))
	if err != nil {
		return "", fmt.Errorf("failed to load candidate fixtures: %w", err)
	}
	if len(candidates) == 0 {
		m.record(home, away, matchTime, "no fixtures in window")
		return "", nil
	}

	bestID := ""
	bestScore := -1
	for _, fx := range candidates {
		score := (m.id.Similarity(home, fx.HomeTeamName) + m.id.Similarity(away, fx.AwayTeamName)) / 2
		// Strict maximum: on a tie the first candidate wins.
		if score > bestScore {
			bestScore = score
			bestID = fx.FixtureID
		}
	}

	if bestScore < m.minScore {
		m.record(home, away, matchTime,
			fmt.Sprintf("best score %d below threshold %d", bestScore, m.minScore))
		return "", nil
	}
	return bestID, nil
}

// ScoreItem is one batch input: a scraped score with its team names.
type ScoreItem struct {
	Home      string
	Away      string
	MatchTime time.Time
	Key       string
}

// MatchBatch runs MatchScore over a batch and aggregates the outcome. Items
// are keyed by Key in the per-item result map; matched items map to the
// fixture id, unmatched to "".
func (m *Matcher) MatchBatch(ctx context.Context, items []ScoreItem) (*BatchResult, error) {
	result := &BatchResult{
		Total:   len(items),
		Results: make(map[string]string, len(items)),
	}
	for _, item := range items {
		fixtureID, err := m.MatchScore(ctx, item.Home, item.Away, item.MatchTime)
		if err != nil {
			// A store error on one item does not abort the batch.
			result.Results[item.Key] = ""
			result.Unmatched++
			continue
		}
		result.Results[item.Key] = fixtureID
		if fixtureID != "" {
			result.Matched++
		} else {
			result.Unmatched++
		}
	}
	if result.Total > 0 {
		result.MatchRate = float64(result.Matched) / float64(result.Total)
	}
	return result, nil
}

// UnmatchedLog returns a snapshot of the unmatched log.
func (m *Matcher) UnmatchedLog() []Unmatched {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Unmatched, len(m.unmatched))
	copy(out, m.unmatched)
	return out
}

// ClearUnmatched empties the unmatched log.
func (m *Matcher) ClearUnmatched() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unmatched = m.unmatched[:0]
}

func (m *Matcher) record(home, away string, matchTime time.Time, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unmatched = append(m.unmatched, Unmatched{
		Home:      home,
		Away:      away,
		MatchTime: matchTime,
		Reason:    reason,
	})
}
