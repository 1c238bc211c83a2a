// Package ingest runs scraper subprocesses, extracts their JSON payloads
// from mixed stdout, and writes the validated records to the store.
package ingest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/antonkoetzler/arbihawk/internal/matchid"
	"github.com/antonkoetzler/arbihawk/internal/metrics"
	"github.com/antonkoetzler/arbihawk/internal/models"
	"github.com/antonkoetzler/arbihawk/internal/validate"
)

// Store is the slice of the data layer the pipeline writes to.
type Store interface {
	ChecksumExists(ctx context.Context, source, checksum string) (bool, error)
	InsertIngestionMeta(ctx context.Context, m *models.IngestionMeta) (int64, error)
	UpsertFixture(ctx context.Context, f *models.Fixture) error
	InsertOddsBatch(ctx context.Context, rows []*models.OddsRow) (inserted, skipped int, err error)
	UpsertScore(ctx context.Context, score *models.Score) error
	UpsertStock(ctx context.Context, st *models.Stock) error
	UpsertCrypto(ctx context.Context, c *models.Crypto) error
	InsertPriceBarsBatch(ctx context.Context, bars []*models.PriceBar) (int, error)
}

// ScoreMatcher resolves a scraped score onto a known fixture id.
type ScoreMatcher interface {
	MatchScore(ctx context.Context, home, away string, matchTime time.Time) (string, error)
}

// IngestResult summarizes one payload ingestion.
type IngestResult struct {
	Status  models.ValidationStatus `json:"status"`
	Records int                     `json:"records"`
	Matched int                     `json:"matched"`
	Errors  []string                `json:"errors"`
}

// Pipeline validates payloads and dispatches them to the data plane.
type Pipeline struct {
	store   Store
	matcher ScoreMatcher
	id      *matchid.Identifier
	log     *logrus.Logger
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(store Store, matcher ScoreMatcher, id *matchid.Identifier, log *logrus.Logger) *Pipeline {
	return &Pipeline{store: store, matcher: matcher, id: id, log: log}
}

// Checksum is the stable content digest used for payload deduplication.
func Checksum(raw []byte) string {
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:])
}

// Ingest hashes, dedups, validates, and dispatches one payload. A metadata
// row is written regardless of the outcome; replaying a payload whose
// (source, checksum) already succeeded touches nothing else.
func (p *Pipeline) Ingest(ctx context.Context, source Source, raw []byte) (*IngestResult, error) {
	checksum := Checksum(raw)

	exists, err := p.store.ChecksumExists(ctx, string(source), checksum)
	if err != nil {
		return nil, fmt.Errorf("failed to check payload checksum: %w", err)
	}
	if exists {
		p.recordMeta(ctx, source, checksum, 0, models.ValidationDupe, "")
		metrics.RecordPayloadIngested(string(source), string(models.ValidationDupe))
		if p.log != nil {
			p.log.WithField("source", source).Info("Duplicate payload, skipping data writes")
		}
		return &IngestResult{Status: models.ValidationDupe}, nil
	}

	var result *IngestResult
	switch source {
	case SourceBetano:
		result = p.ingestOdds(ctx, raw)
	case SourceFlashscore, SourceLivescore:
		result = p.ingestScores(ctx, source, raw)
	case SourceStocks, SourceCrypto:
		result = p.ingestMarket(ctx, source, raw)
	default:
		return nil, fmt.Errorf("unknown ingestion source %q", source)
	}

	p.recordMeta(ctx, source, checksum, result.Records, result.Status, strings.Join(result.Errors, "; "))
	metrics.RecordPayloadIngested(string(source), string(result.Status))
	return result, nil
}

// RecordFailure writes an error audit row for a run that produced no
// payload (timeout, non-zero exit, undecodable output).
func (p *Pipeline) RecordFailure(ctx context.Context, source Source, errTail []string) {
	p.recordMeta(ctx, source, "", 0, models.ValidationError, strings.Join(errTail, "; "))
	metrics.RecordPayloadIngested(string(source), string(models.ValidationError))
}

// recordMeta writes the audit row. Metadata failures are logged, never
// propagated; the data writes have already happened.
func (p *Pipeline) recordMeta(ctx context.Context, source Source, checksum string, records int, status models.ValidationStatus, errs string) {
	_, err := p.store.InsertIngestionMeta(ctx, &models.IngestionMeta{
		Source:           string(source),
		RecordsCount:     records,
		Checksum:         checksum,
		ValidationStatus: status,
		Errors:           errs,
	})
	if err != nil && p.log != nil {
		p.log.WithError(err).Warn("Failed to record ingestion metadata")
	}
}

func (p *Pipeline) ingestOdds(ctx context.Context, raw []byte) *IngestResult {
	payload, vr := validate.Odds(raw)
	if payload == nil || !vr.Valid {
		return &IngestResult{Status: models.ValidationFailed, Errors: vr.Errors}
	}

	result := &IngestResult{Status: models.ValidationSuccess}
	for _, league := range payload.Leagues {
		for _, pf := range league.Fixtures {
			startTime, err := validate.ParseTimestamp(pf.StartTime)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("fixture %s: %v", pf.FixtureID, err))
				continue
			}
			fixture := &models.Fixture{
				FixtureID:      pf.FixtureID.String(),
				TournamentID:   league.LeagueID.String(),
				TournamentName: league.LeagueName,
				HomeTeamID:     pf.HomeTeamID.String(),
				HomeTeamName:   pf.HomeTeamName,
				AwayTeamID:     pf.AwayTeamID.String(),
				AwayTeamName:   pf.AwayTeamName,
				StartTime:      startTime,
				Status:         models.FixtureStatus(pf.Status),
			}
			if err := p.store.UpsertFixture(ctx, fixture); err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			result.Records++

			rows := make([]*models.OddsRow, 0, len(pf.Odds))
			for _, o := range pf.Odds {
				if o.MarketID == "" || o.OutcomeID == "" {
					continue
				}
				rows = append(rows, &models.OddsRow{
					FixtureID:     fixture.FixtureID,
					BookmakerID:   "betano",
					BookmakerName: "Betano",
					MarketID:      o.MarketID.String(),
					MarketName:    o.MarketName,
					OutcomeID:     o.OutcomeID.String(),
					OutcomeName:   o.OutcomeName,
					OddsValue:     o.OddsValue,
				})
			}
			inserted, _, err := p.store.InsertOddsBatch(ctx, rows)
			if err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			result.Records += inserted
		}
	}
	return result
}

func (p *Pipeline) ingestScores(ctx context.Context, source Source, raw []byte) *IngestResult {
	payload, vr := validate.Scores(raw)
	if payload == nil || !vr.Valid {
		return &IngestResult{Status: models.ValidationFailed, Errors: vr.Errors}
	}

	result := &IngestResult{Status: models.ValidationSuccess}
	for _, match := range payload.Matches {
		if !match.IsCompleted() || match.Home() == "" || match.Away() == "" {
			continue
		}
		matchTime, err := validate.ParseTimestamp(match.When())
		if err != nil {
			continue
		}

		fixtureID := ""
		if p.matcher != nil {
			fixtureID, err = p.matcher.MatchScore(ctx, match.Home(), match.Away(), matchTime)
			if err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
		}
		if fixtureID != "" {
			result.Matched++
		} else {
			// Scraper ran before the fixture was known; park the score under
			// a synthetic id for settlement to reconcile later.
			fixtureID = p.id.FormatSyntheticID(string(source), match.Home(), match.Away(), matchTime)
		}

		if err := p.store.UpsertScore(ctx, &models.Score{
			FixtureID: fixtureID,
			HomeScore: *match.HomeScore,
			AwayScore: *match.AwayScore,
			Status:    "finished",
		}); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Records++
	}
	return result
}

func (p *Pipeline) ingestMarket(ctx context.Context, source Source, raw []byte) *IngestResult {
	payload, vr := validate.Market(raw)
	if payload == nil || !vr.Valid {
		return &IngestResult{Status: models.ValidationFailed, Errors: vr.Errors}
	}

	assetType := models.AssetStock
	if source == SourceCrypto {
		assetType = models.AssetCrypto
	}

	result := &IngestResult{Status: models.ValidationSuccess}
	for _, inst := range payload.Instruments {
		if inst.Symbol == "" {
			continue
		}
		var err error
		if assetType == models.AssetStock {
			err = p.store.UpsertStock(ctx, &models.Stock{
				Symbol: inst.Symbol, Name: inst.Name, Sector: inst.Sector, MarketCap: inst.MarketCap,
			})
		} else {
			err = p.store.UpsertCrypto(ctx, &models.Crypto{Symbol: inst.Symbol, Name: inst.Name})
		}
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Records++
	}

	bars := make([]*models.PriceBar, 0, len(payload.Bars))
	for _, b := range payload.Bars {
		if b.Symbol == "" {
			continue
		}
		ts, err := validate.ParseTimestamp(b.Timestamp)
		if err != nil {
			continue
		}
		bars = append(bars, &models.PriceBar{
			Symbol:    b.Symbol,
			AssetType: assetType,
			Timestamp: ts,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	inserted, err := p.store.InsertPriceBarsBatch(ctx, bars)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	result.Records += inserted
	return result
}
