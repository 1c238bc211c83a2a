package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/antonkoetzler/arbihawk/internal/ingest"
	"github.com/antonkoetzler/arbihawk/internal/logger"
	"github.com/antonkoetzler/arbihawk/internal/matcher"
	"github.com/antonkoetzler/arbihawk/internal/metrics"
	"github.com/antonkoetzler/arbihawk/internal/models"
)

// staleScorePrefix marks legacy synthetic rows no current source emits;
// they can never match and are deleted during collection.
const staleScorePrefix = "fbref_"

// collectionTask runs the betting-domain data collection sequence: odds
// fan-out, score fan-out with fallback, batch matching, stale cleanup,
// settlement. Cancellation is checked between steps.
func (s *Scheduler) collectionTask(ctx context.Context, logFn logger.LogFunc) *TaskResult {
	result := newTaskResult()

	leagues, err := s.deps.Scrapers.BetanoLeagues(ctx)
	if err != nil {
		result.addError("failed to resolve betano leagues: %v", err)
	} else {
		ok, failed := s.scrapePool(ctx, leagues, s.cfg.Scraper.MaxWorkersLeagues,
			func(ctx context.Context, league string) (*ingest.IngestResult, error) {
				return s.deps.Scrapers.ScrapeBetanoLeague(ctx, league, logFn)
			}, result)
		result.Data["betano_leagues_ok"] = ok
		result.Data["betano_leagues_failed"] = failed
	}
	if stopRequested(ctx) {
		return stoppedResult(result, "betano")
	}

	slugs, err := s.deps.Scrapers.FlashscoreLeagues(ctx)
	flashOK := 0
	if err != nil {
		result.addError("failed to resolve flashscore leagues: %v", err)
	} else {
		ok, failed := s.scrapePool(ctx, slugs, s.cfg.Scraper.MaxWorkersLeaguesPlaywright,
			func(ctx context.Context, slug string) (*ingest.IngestResult, error) {
				return s.deps.Scrapers.ScrapeFlashscoreLeague(ctx, slug, logFn)
			}, result)
		flashOK = ok
		result.Data["flashscore_leagues_ok"] = ok
		result.Data["flashscore_leagues_failed"] = failed
	}
	if stopRequested(ctx) {
		return stoppedResult(result, "flashscore")
	}

	if flashOK == 0 {
		logFn("warning", "Flashscore produced no leagues, falling back to Livescore")
		if ing, err := s.deps.Scrapers.ScrapeLivescore(ctx, logFn); err != nil {
			if stopRequested(ctx) {
				return stoppedResult(result, "livescore")
			}
			result.addError("livescore fallback failed: %v", err)
		} else {
			result.Data["livescore_records"] = ing.Records
		}
	}
	if stopRequested(ctx) {
		return stoppedResult(result, "scores")
	}

	batch, err := s.matchSyntheticScores(ctx, logFn)
	if err != nil {
		result.addError("batch matching failed: %v", err)
	} else if batch != nil {
		result.Data["matching"] = batch
	}
	stale := s.deleteStaleScores(ctx, logFn)
	if stale > 0 {
		result.Data["stale_scores_deleted"] = stale
	}
	if stopRequested(ctx) {
		return stoppedResult(result, "matching")
	}

	summary, err := s.deps.Settler.SettlePendingBets(ctx)
	if err != nil {
		result.addError("settlement failed: %v", err)
	} else {
		result.Data["settlement"] = summary
	}

	result.Success = len(result.Errors) == 0
	return result
}

// tradingCollectionTask runs the stock and crypto scrapers.
func (s *Scheduler) tradingCollectionTask(ctx context.Context, logFn logger.LogFunc) *TaskResult {
	result := newTaskResult()
	if !s.cfg.Trading.Enabled {
		result.Skipped = true
		result.SkipReason = "Trading disabled"
		return result
	}

	if ing, err := s.deps.Scrapers.ScrapeStocks(ctx, logFn); err != nil {
		if stopRequested(ctx) {
			return stoppedResult(result, "stocks")
		}
		result.addError("stocks scraper failed: %v", err)
	} else {
		result.Data["stock_records"] = ing.Records
	}
	if stopRequested(ctx) {
		return stoppedResult(result, "stocks")
	}

	if ing, err := s.deps.Scrapers.ScrapeCrypto(ctx, logFn); err != nil {
		if stopRequested(ctx) {
			return stoppedResult(result, "crypto")
		}
		result.addError("crypto scraper failed: %v", err)
	} else {
		result.Data["crypto_records"] = ing.Records
	}

	result.Success = len(result.Errors) == 0
	return result
}

// scrapePool fans a scrape function out over items with a bounded worker
// pool. Individual failures are collected, never fatal to the pool.
func (s *Scheduler) scrapePool(ctx context.Context, items []string, workers int, scrape func(context.Context, string) (*ingest.IngestResult, error), result *TaskResult) (succeeded, failed int) {
	if workers < 1 {
		workers = 1
	}

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		queue = make(chan string)
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range queue {
				ing, err := scrape(ctx, item)
				mu.Lock()
				switch {
				case err != nil && ctx.Err() == nil:
					failed++
					result.addError("league %q: %v", item, err)
				case err != nil:
					// Cancelled mid-scrape: neither success nor failure.
				case ing.Status == models.ValidationSuccess || ing.Status == models.ValidationDupe:
					succeeded++
				default:
					failed++
					result.addError("league %q: validation failed", item)
				}
				mu.Unlock()
			}
		}()
	}

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		queue <- item
	}
	close(queue)
	wg.Wait()
	return succeeded, failed
}

// matchSyntheticScores re-keys parked synthetic scores onto real fixtures.
func (s *Scheduler) matchSyntheticScores(ctx context.Context, logFn logger.LogFunc) (*matcher.BatchResult, error) {
	var items []matcher.ScoreItem
	byKey := make(map[string]*models.Score)

	for _, prefix := range s.cfg.Matching.SyntheticPrefixes {
		scores, err := s.deps.Store.ListScoresWithPrefix(ctx, prefix+"_")
		if err != nil {
			return nil, err
		}
		for _, score := range scores {
			parsed := s.deps.ID.ParseSyntheticID(score.FixtureID)
			if parsed == nil {
				continue
			}
			items = append(items, matcher.ScoreItem{
				Home:      parsed.Home,
				Away:      parsed.Away,
				MatchTime: parsed.Date,
				Key:       score.FixtureID,
			})
			byKey[score.FixtureID] = score
		}
	}
	if len(items) == 0 {
		return nil, nil
	}

	batch, err := s.deps.Matcher.MatchBatch(ctx, items)
	if err != nil {
		return nil, err
	}

	for key, fixtureID := range batch.Results {
		if fixtureID == "" {
			continue
		}
		score := byKey[key]
		if err := s.deps.Store.UpsertScore(ctx, &models.Score{
			FixtureID: fixtureID,
			HomeScore: score.HomeScore,
			AwayScore: score.AwayScore,
			Status:    score.Status,
		}); err != nil {
			logFn("warning", fmt.Sprintf("Failed to re-key score %s: %v", key, err))
			continue
		}
		if err := s.deps.Store.DeleteScore(ctx, key); err != nil {
			logFn("warning", fmt.Sprintf("Failed to delete synthetic score %s: %v", key, err))
			continue
		}
		metrics.RecordScoreMatched()
	}

	logFn("info", fmt.Sprintf("Batch matching: %d/%d matched (%.0f%%)",
		batch.Matched, batch.Total, batch.MatchRate*100))
	return batch, nil
}

// deleteStaleScores removes legacy synthetic score rows that can never
// match a fixture.
func (s *Scheduler) deleteStaleScores(ctx context.Context, logFn logger.LogFunc) int {
	scores, err := s.deps.Store.ListScoresWithPrefix(ctx, staleScorePrefix)
	if err != nil {
		logFn("warning", fmt.Sprintf("Failed to list stale scores: %v", err))
		return 0
	}
	deleted := 0
	for _, score := range scores {
		if err := s.deps.Store.DeleteScore(ctx, score.FixtureID); err != nil {
			logFn("warning", fmt.Sprintf("Failed to delete stale score %s: %v", score.FixtureID, err))
			continue
		}
		deleted++
	}
	if deleted > 0 {
		logFn("info", fmt.Sprintf("Deleted %d stale score rows", deleted))
	}
	return deleted
}
