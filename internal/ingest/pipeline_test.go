package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antonkoetzler/arbihawk/internal/matchid"
	"github.com/antonkoetzler/arbihawk/internal/models"
)

type stubStore struct {
	seen     map[string]bool
	meta     []*models.IngestionMeta
	fixtures []*models.Fixture
	odds     []*models.OddsRow
	scores   []*models.Score
	stocks   []*models.Stock
	crypto   []*models.Crypto
	bars     []*models.PriceBar
}

func newStubStore() *stubStore {
	return &stubStore{seen: make(map[string]bool)}
}

func (s *stubStore) ChecksumExists(ctx context.Context, source, checksum string) (bool, error) {
	return s.seen[source+":"+checksum], nil
}

func (s *stubStore) InsertIngestionMeta(ctx context.Context, m *models.IngestionMeta) (int64, error) {
	s.meta = append(s.meta, m)
	if m.ValidationStatus == models.ValidationSuccess {
		s.seen[m.Source+":"+m.Checksum] = true
	}
	return int64(len(s.meta)), nil
}

func (s *stubStore) UpsertFixture(ctx context.Context, f *models.Fixture) error {
	s.fixtures = append(s.fixtures, f)
	return nil
}

func (s *stubStore) InsertOddsBatch(ctx context.Context, rows []*models.OddsRow) (int, int, error) {
	inserted := 0
	for _, row := range rows {
		if row.OddsValue <= 1.0 {
			continue
		}
		s.odds = append(s.odds, row)
		inserted++
	}
	return inserted, len(rows) - inserted, nil
}

func (s *stubStore) UpsertScore(ctx context.Context, score *models.Score) error {
	s.scores = append(s.scores, score)
	return nil
}

func (s *stubStore) UpsertStock(ctx context.Context, st *models.Stock) error {
	s.stocks = append(s.stocks, st)
	return nil
}

func (s *stubStore) UpsertCrypto(ctx context.Context, c *models.Crypto) error {
	s.crypto = append(s.crypto, c)
	return nil
}

func (s *stubStore) InsertPriceBarsBatch(ctx context.Context, bars []*models.PriceBar) (int, error) {
	s.bars = append(s.bars, bars...)
	return len(bars), nil
}

type stubMatcher struct {
	fixtureID string
}

func (m *stubMatcher) MatchScore(ctx context.Context, home, away string, matchTime time.Time) (string, error) {
	return m.fixtureID, nil
}

func newTestPipeline(store *stubStore, matcher ScoreMatcher) *Pipeline {
	return NewPipeline(store, matcher, matchid.New(), nil)
}

const oddsPayload = `[{
	"league_id": "10", "league_name": "Premier League",
	"fixtures": [{
		"fixture_id": "f1",
		"home_team_name": "Team A", "away_team_name": "Team B",
		"start_time": "2025-01-20T15:00:00Z", "status": "scheduled",
		"odds": [
			{"market_id": "m1", "market_name": "1x2", "outcome_id": "o1", "outcome_name": "Team A", "odds_value": 2.2},
			{"market_id": "m1", "market_name": "1x2", "outcome_id": "o2", "outcome_name": "Draw", "odds_value": 0.9}
		]
	}]
}]`

func TestIngestOdds(t *testing.T) {
	store := newStubStore()
	p := newTestPipeline(store, nil)

	res, err := p.Ingest(context.Background(), SourceBetano, []byte(oddsPayload))
	require.NoError(t, err)
	assert.Equal(t, models.ValidationSuccess, res.Status)
	assert.Equal(t, 2, res.Records) // fixture + one valid odds row

	require.Len(t, store.fixtures, 1)
	assert.Equal(t, "f1", store.fixtures[0].FixtureID)
	require.Len(t, store.odds, 1)
	assert.Equal(t, "betano", store.odds[0].BookmakerID)

	require.Len(t, store.meta, 1)
	assert.Equal(t, models.ValidationSuccess, store.meta[0].ValidationStatus)
}

func TestIngestDuplicatePayload(t *testing.T) {
	store := newStubStore()
	p := newTestPipeline(store, nil)
	ctx := context.Background()

	_, err := p.Ingest(ctx, SourceBetano, []byte(oddsPayload))
	require.NoError(t, err)

	res, err := p.Ingest(ctx, SourceBetano, []byte(oddsPayload))
	require.NoError(t, err)
	assert.Equal(t, models.ValidationDupe, res.Status)

	// Replay wrote the audit row but touched nothing else.
	assert.Len(t, store.fixtures, 1)
	assert.Len(t, store.odds, 1)
	require.Len(t, store.meta, 2)
	assert.Equal(t, models.ValidationDupe, store.meta[1].ValidationStatus)
}

func TestIngestInvalidPayloadRecordsMeta(t *testing.T) {
	store := newStubStore()
	p := newTestPipeline(store, nil)

	res, err := p.Ingest(context.Background(), SourceFlashscore, []byte(`{"matches": "nope"}`))
	require.NoError(t, err)
	assert.Equal(t, models.ValidationFailed, res.Status)
	assert.NotEmpty(t, res.Errors)

	require.Len(t, store.meta, 1)
	assert.Equal(t, models.ValidationFailed, store.meta[0].ValidationStatus)
	assert.Empty(t, store.scores)
}

func TestIngestScoresMatched(t *testing.T) {
	store := newStubStore()
	p := newTestPipeline(store, &stubMatcher{fixtureID: "f1"})

	payload := `{"matches": [
		{"home_team": "Team A", "away_team": "Team B", "match_date": "2025-01-20", "home_score": 2, "away_score": 1},
		{"home_team": "Team C", "away_team": "Team D", "match_date": "2025-01-20"}
	]}`
	res, err := p.Ingest(context.Background(), SourceFlashscore, []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Records)
	assert.Equal(t, 1, res.Matched)

	// Only the completed match lands, under the matched fixture id.
	require.Len(t, store.scores, 1)
	assert.Equal(t, "f1", store.scores[0].FixtureID)
	assert.Equal(t, 2, store.scores[0].HomeScore)
}

func TestIngestScoresUnmatchedGetsSyntheticID(t *testing.T) {
	store := newStubStore()
	p := newTestPipeline(store, &stubMatcher{fixtureID: ""})

	payload := `{"matches": [
		{"home_team": "Team A", "away_team": "Team B", "match_date": "2025-01-20", "home_score": 0, "away_score": 0}
	]}`
	res, err := p.Ingest(context.Background(), SourceFlashscore, []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Matched)

	require.Len(t, store.scores, 1)
	assert.Equal(t, "flashscore_Team_A_Team_B_2025-01-20", store.scores[0].FixtureID)
}

func TestIngestMarketData(t *testing.T) {
	store := newStubStore()
	p := newTestPipeline(store, nil)

	payload := `{
		"instruments": [{"symbol": "AAPL", "name": "Apple", "sector": "tech", "market_cap": 3e12}],
		"bars": [
			{"symbol": "AAPL", "timestamp": "2025-01-20T21:00:00Z", "open": 1, "high": 2, "low": 0.5, "close": 1.5, "volume": 100},
			{"symbol": "", "timestamp": "2025-01-20T21:00:00Z"}
		]
	}`
	res, err := p.Ingest(context.Background(), SourceStocks, []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, models.ValidationSuccess, res.Status)
	assert.Equal(t, 2, res.Records)

	require.Len(t, store.stocks, 1)
	require.Len(t, store.bars, 1)
	assert.Equal(t, models.AssetStock, store.bars[0].AssetType)
	assert.Empty(t, store.crypto)
}

func TestIngestCryptoDispatch(t *testing.T) {
	store := newStubStore()
	p := newTestPipeline(store, nil)

	payload := `{
		"instruments": [{"symbol": "BTC", "name": "Bitcoin"}],
		"bars": [{"symbol": "BTC", "timestamp": "2025-01-20T21:00:00Z", "close": 95000}]
	}`
	_, err := p.Ingest(context.Background(), SourceCrypto, []byte(payload))
	require.NoError(t, err)

	require.Len(t, store.crypto, 1)
	require.Len(t, store.bars, 1)
	assert.Equal(t, models.AssetCrypto, store.bars[0].AssetType)
	assert.Empty(t, store.stocks)
}
