package scheduler

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/time/rate"

	"github.com/antonkoetzler/arbihawk/internal/config"
	"github.com/antonkoetzler/arbihawk/internal/ingest"
	"github.com/antonkoetzler/arbihawk/internal/logger"
)

// Scrapers drives the scraper subprocesses for both domains. Each Scrape*
// call runs one subprocess and ingests its payload.
type Scrapers interface {
	BetanoLeagues(ctx context.Context) ([]string, error)
	ScrapeBetanoLeague(ctx context.Context, leagueID string, logFn logger.LogFunc) (*ingest.IngestResult, error)
	FlashscoreLeagues(ctx context.Context) ([]string, error)
	ScrapeFlashscoreLeague(ctx context.Context, slug string, logFn logger.LogFunc) (*ingest.IngestResult, error)
	ScrapeLivescore(ctx context.Context, logFn logger.LogFunc) (*ingest.IngestResult, error)
	ScrapeStocks(ctx context.Context, logFn logger.LogFunc) (*ingest.IngestResult, error)
	ScrapeCrypto(ctx context.Context, logFn logger.LogFunc) (*ingest.IngestResult, error)
}

// ScriptScrapers runs the Python scraper scripts from the configured script
// directory. Spawns are rate limited so a wide worker pool cannot burst
// dozens of subprocesses at once.
type ScriptScrapers struct {
	cfg      config.ScraperConfig
	runner   *ingest.Runner
	pipeline *ingest.Pipeline
	limiter  *rate.Limiter
}

// NewScriptScrapers wires the subprocess runner and the ingestion pipeline
// to the scraper scripts.
func NewScriptScrapers(cfg config.ScraperConfig, runner *ingest.Runner, pipeline *ingest.Pipeline) *ScriptScrapers {
	var limiter *rate.Limiter
	if cfg.SpawnRatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.SpawnRatePerSec), 1)
	}
	return &ScriptScrapers{cfg: cfg, runner: runner, pipeline: pipeline, limiter: limiter}
}

// BetanoLeagues returns the configured league ids to fan out over. An empty
// list means a single unfiltered invocation.
func (s *ScriptScrapers) BetanoLeagues(ctx context.Context) ([]string, error) {
	if len(s.cfg.BetanoLeagues) == 0 {
		return []string{""}, nil
	}
	return s.cfg.BetanoLeagues, nil
}

// FlashscoreLeagues returns the configured league slugs to fan out over.
func (s *ScriptScrapers) FlashscoreLeagues(ctx context.Context) ([]string, error) {
	if len(s.cfg.FlashscoreLeagues) == 0 {
		return []string{""}, nil
	}
	return s.cfg.FlashscoreLeagues, nil
}

func (s *ScriptScrapers) ScrapeBetanoLeague(ctx context.Context, leagueID string, logFn logger.LogFunc) (*ingest.IngestResult, error) {
	args := []string{}
	if leagueID != "" {
		args = append(args, "--league", leagueID)
	}
	return s.scrape(ctx, "betano.py", args, ingest.SourceBetano, logFn)
}

func (s *ScriptScrapers) ScrapeFlashscoreLeague(ctx context.Context, slug string, logFn logger.LogFunc) (*ingest.IngestResult, error) {
	args := []string{}
	if slug != "" {
		args = append(args, "--league", slug)
	}
	return s.scrape(ctx, "flashscore.py", args, ingest.SourceFlashscore, logFn)
}

func (s *ScriptScrapers) ScrapeLivescore(ctx context.Context, logFn logger.LogFunc) (*ingest.IngestResult, error) {
	return s.scrape(ctx, "livescore.py", nil, ingest.SourceLivescore, logFn)
}

func (s *ScriptScrapers) ScrapeStocks(ctx context.Context, logFn logger.LogFunc) (*ingest.IngestResult, error) {
	return s.scrape(ctx, "stocks.py", nil, ingest.SourceStocks, logFn)
}

func (s *ScriptScrapers) ScrapeCrypto(ctx context.Context, logFn logger.LogFunc) (*ingest.IngestResult, error) {
	return s.scrape(ctx, "crypto.py", nil, ingest.SourceCrypto, logFn)
}

// scrape runs one subprocess and feeds its payload through the pipeline.
// Transport failures are recorded as error rows; cancellation is not an
// error and writes no row.
func (s *ScriptScrapers) scrape(ctx context.Context, script string, args []string, source ingest.Source, logFn logger.LogFunc) (*ingest.IngestResult, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	command := append([]string{s.cfg.PythonExe, filepath.Join(s.cfg.ScriptDir, script)}, args...)
	run, err := s.runner.Run(ctx, command, source, logFn)
	if err != nil {
		return nil, err
	}
	if run.Stopped {
		return nil, context.Canceled
	}
	if !run.Success {
		s.pipeline.RecordFailure(ctx, source, run.ErrorTail)
		if run.TimedOut {
			return nil, fmt.Errorf("scraper %s timed out after %.0fs", script, run.Duration.Seconds())
		}
		return nil, fmt.Errorf("scraper %s failed with exit code %d", script, run.ExitCode)
	}

	return s.pipeline.Ingest(ctx, source, run.Payload)
}
