package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antonkoetzler/arbihawk/internal/config"
	"github.com/antonkoetzler/arbihawk/internal/ingest"
	"github.com/antonkoetzler/arbihawk/internal/logger"
	"github.com/antonkoetzler/arbihawk/internal/matcher"
	"github.com/antonkoetzler/arbihawk/internal/matchid"
	"github.com/antonkoetzler/arbihawk/internal/models"
	"github.com/antonkoetzler/arbihawk/internal/settlement"
	"github.com/antonkoetzler/arbihawk/internal/trading"
	"github.com/antonkoetzler/arbihawk/internal/valuebet"
)

type stubStore struct {
	mu      sync.Mutex
	runs    []*models.Run
	scores  map[string]*models.Score
	deleted []string
}

func newStubStore() *stubStore {
	return &stubStore{scores: make(map[string]*models.Score)}
}

func (s *stubStore) InsertRun(ctx context.Context, run *models.Run) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return int64(len(s.runs)), nil
}

func (s *stubStore) ListScoresWithPrefix(ctx context.Context, prefix string) ([]*models.Score, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Score
	for id, score := range s.scores {
		if len(id) >= len(prefix) && id[:len(prefix)] == prefix {
			out = append(out, score)
		}
	}
	return out, nil
}

func (s *stubStore) UpsertScore(ctx context.Context, score *models.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[score.FixtureID] = score
	return nil
}

func (s *stubStore) DeleteScore(ctx context.Context, fixtureID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scores, fixtureID)
	s.deleted = append(s.deleted, fixtureID)
	return nil
}

func (s *stubStore) PendingBets(ctx context.Context) ([]*models.Bet, error) {
	return nil, nil
}

func (s *stubStore) lastRun() *models.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.runs) == 0 {
		return nil
	}
	return s.runs[len(s.runs)-1]
}

type stubScrapers struct {
	mu             sync.Mutex
	betano         []string
	flashscore     []string
	betanoCalls    int
	flashCalls     int
	livescoreCalls int
	flashFail      bool
	blockUntilDone bool
}

func (s *stubScrapers) ok() (*ingest.IngestResult, error) {
	return &ingest.IngestResult{Status: models.ValidationSuccess, Records: 1}, nil
}

func (s *stubScrapers) BetanoLeagues(ctx context.Context) ([]string, error) {
	return s.betano, nil
}

func (s *stubScrapers) ScrapeBetanoLeague(ctx context.Context, leagueID string, logFn logger.LogFunc) (*ingest.IngestResult, error) {
	s.mu.Lock()
	s.betanoCalls++
	s.mu.Unlock()
	if s.blockUntilDone {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.ok()
}

func (s *stubScrapers) FlashscoreLeagues(ctx context.Context) ([]string, error) {
	return s.flashscore, nil
}

func (s *stubScrapers) ScrapeFlashscoreLeague(ctx context.Context, slug string, logFn logger.LogFunc) (*ingest.IngestResult, error) {
	s.mu.Lock()
	s.flashCalls++
	s.mu.Unlock()
	if s.flashFail {
		return &ingest.IngestResult{Status: models.ValidationFailed}, nil
	}
	return s.ok()
}

func (s *stubScrapers) ScrapeLivescore(ctx context.Context, logFn logger.LogFunc) (*ingest.IngestResult, error) {
	s.mu.Lock()
	s.livescoreCalls++
	s.mu.Unlock()
	return s.ok()
}

func (s *stubScrapers) ScrapeStocks(ctx context.Context, logFn logger.LogFunc) (*ingest.IngestResult, error) {
	return s.ok()
}

func (s *stubScrapers) ScrapeCrypto(ctx context.Context, logFn logger.LogFunc) (*ingest.IngestResult, error) {
	return s.ok()
}

type stubMatcher struct {
	results map[string]string
}

func (m *stubMatcher) MatchBatch(ctx context.Context, items []matcher.ScoreItem) (*matcher.BatchResult, error) {
	result := &matcher.BatchResult{Total: len(items), Results: make(map[string]string)}
	for _, item := range items {
		id := m.results[item.Key]
		result.Results[item.Key] = id
		if id != "" {
			result.Matched++
		} else {
			result.Unmatched++
		}
	}
	return result, nil
}

type stubSettler struct {
	mu    sync.Mutex
	calls int
}

func (s *stubSettler) SettlePendingBets(ctx context.Context) (*settlement.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return &settlement.Summary{}, nil
}

type stubTrainer struct {
	outcome *TrainOutcome
	panics  bool
}

func (t *stubTrainer) Train(ctx context.Context, domain models.Domain, logFn logger.LogFunc) (*TrainOutcome, error) {
	if t.panics {
		panic("trainer exploded")
	}
	if t.outcome != nil {
		return t.outcome, nil
	}
	return &TrainOutcome{Success: true, HasData: true}, nil
}

type stubBets struct {
	mu         sync.Mutex
	candidates []valuebet.Candidate
	placed     int
}

func (b *stubBets) FindCandidates(ctx context.Context, market string, asOf time.Time) ([]valuebet.Candidate, error) {
	return b.candidates, nil
}

func (b *stubBets) PlaceBets(ctx context.Context, candidates []valuebet.Candidate, modelMarket string, limit int) ([]int64, error) {
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]int64, len(candidates))
	b.placed += len(candidates)
	return ids, nil
}

type stubModels struct {
	active map[string]*models.ModelVersion
}

func (m *stubModels) GetActive(ctx context.Context, domain models.Domain, market string) (*models.ModelVersion, error) {
	if mv, ok := m.active[market]; ok {
		return mv, nil
	}
	return nil, models.ErrNotFound
}

type stubTrader struct {
	result *trading.CycleResult
}

func (t *stubTrader) RunCycle(ctx context.Context) (*trading.CycleResult, error) {
	if t.result != nil {
		return t.result, nil
	}
	return &trading.CycleResult{}, nil
}

type harness struct {
	sched    *Scheduler
	store    *stubStore
	scrapers *stubScrapers
	settler  *stubSettler
	trainer  *stubTrainer
	bets     *stubBets
}

func testConfig() *config.Config {
	return &config.Config{
		Scraper: config.ScraperConfig{
			MaxWorkersLeagues:           2,
			MaxWorkersLeaguesPlaywright: 2,
		},
		Matching: config.MatchingConfig{
			SyntheticPrefixes: []string{"flashscore", "livescore"},
		},
		Betting: config.BettingConfig{
			FakeMoneyEnabled:  true,
			AutoBetAfterTrain: true,
			Markets:           []string{"1x2"},
			LimitPerModel:     5,
		},
		Trading: config.TradingConfig{Enabled: true},
		Daemon:  config.DaemonConfig{IntervalMinutes: 60, TradingIntervalMinutes: 60},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	h := &harness{
		store:    newStubStore(),
		scrapers: &stubScrapers{betano: []string{"10", "20"}, flashscore: []string{"epl"}},
		settler:  &stubSettler{},
		trainer:  &stubTrainer{},
		bets:     &stubBets{},
	}
	h.sched = New(testConfig(), Deps{
		Store:    h.store,
		Scrapers: h.scrapers,
		Matcher:  &stubMatcher{results: map[string]string{}},
		Settler:  h.settler,
		Trainer:  h.trainer,
		Bets:     h.bets,
		Models:   &stubModels{active: map[string]*models.ModelVersion{}},
		Trader:   &stubTrader{},
		ID:       matchid.New(),
		Log:      logger.NewDomainLogger(log, logger.NewRing(logger.DefaultRingCapacity)),
	})
	return h
}

func TestBusyRejection(t *testing.T) {
	h := newHarness(t)
	h.scrapers.blockUntilDone = true

	res := h.sched.Trigger(TaskCollection)
	require.True(t, res.Success)

	// A second trigger while collection runs is rejected by name.
	var rejected *TriggerResult
	require.Eventually(t, func() bool {
		rejected = h.sched.Trigger(TaskTraining)
		return !rejected.Success
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "Task already running: collection", rejected.Error)

	require.True(t, h.sched.StopTask())
	require.Eventually(t, func() bool {
		return h.sched.CurrentTask() == ""
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopProducesStoppedRun(t *testing.T) {
	h := newHarness(t)
	h.scrapers.blockUntilDone = true

	require.True(t, h.sched.Trigger(TaskCollection).Success)
	require.Eventually(t, func() bool { return h.sched.StopTask() }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.sched.CurrentTask() == "" }, 2*time.Second, 10*time.Millisecond)

	run := h.store.lastRun()
	require.NotNil(t, run)
	assert.True(t, run.Stopped)
	assert.False(t, run.Success)
	assert.Equal(t, "collection", run.RunType)
}

func TestStoppedFullRunMarksUnreachedSubTasks(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.sched.RunSync(ctx, TaskFullRun)
	require.NoError(t, err)
	require.True(t, result.Stopped)

	// The sub-tasks the chain never reached are reported as skipped.
	tr, ok := result.Data["training"].(*TaskResult)
	require.True(t, ok)
	assert.True(t, tr.Skipped)
	assert.Equal(t, "Stopped", tr.SkipReason)

	bet, ok := result.Data["betting"].(*TaskResult)
	require.True(t, ok)
	assert.True(t, bet.Skipped)
	assert.Equal(t, "Stopped", bet.SkipReason)
}

func TestStoppedTradingFullRunMarksUnreachedSubTasks(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.sched.RunSync(ctx, TaskTradingFullRun)
	require.NoError(t, err)
	require.True(t, result.Stopped)

	for _, step := range []string{"training", "cycle"} {
		sub, ok := result.Data[step].(*TaskResult)
		require.True(t, ok, step)
		assert.True(t, sub.Skipped, step)
		assert.Equal(t, "Stopped", sub.SkipReason, step)
	}
}

func TestCollectionSequence(t *testing.T) {
	h := newHarness(t)
	h.store.scores["flashscore_Team_A_Team_B_2025-01-20"] = &models.Score{
		FixtureID: "flashscore_Team_A_Team_B_2025-01-20", HomeScore: 2, AwayScore: 1, Status: "finished",
	}
	h.store.scores["fbref_Old_Team_Other_2020-01-01"] = &models.Score{
		FixtureID: "fbref_Old_Team_Other_2020-01-01",
	}
	h.sched.deps.Matcher = &stubMatcher{results: map[string]string{
		"flashscore_Team_A_Team_B_2025-01-20": "f1",
	}}

	result, err := h.sched.RunSync(context.Background(), TaskCollection)
	require.NoError(t, err)
	assert.True(t, result.Success)

	// Both scraper pools ran and settlement followed matching.
	assert.Equal(t, 2, h.scrapers.betanoCalls)
	assert.Equal(t, 1, h.scrapers.flashCalls)
	assert.Equal(t, 0, h.scrapers.livescoreCalls)
	assert.Equal(t, 1, h.settler.calls)

	// The synthetic score was re-keyed and the stale row deleted.
	assert.Contains(t, h.store.scores, "f1")
	assert.NotContains(t, h.store.scores, "flashscore_Team_A_Team_B_2025-01-20")
	assert.NotContains(t, h.store.scores, "fbref_Old_Team_Other_2020-01-01")
}

func TestLivescoreFallback(t *testing.T) {
	h := newHarness(t)
	h.scrapers.flashFail = true

	result, err := h.sched.RunSync(context.Background(), TaskCollection)
	require.NoError(t, err)
	assert.Equal(t, 1, h.scrapers.livescoreCalls)
	assert.False(t, result.Success) // flashscore failures are reported
}

func TestBettingSkipReasons(t *testing.T) {
	h := newHarness(t)
	h.sched.cfg.Betting.FakeMoneyEnabled = false

	result, err := h.sched.RunSync(context.Background(), TaskBetting)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, "Fake money disabled", result.SkipReason)

	run := h.store.lastRun()
	require.NotNil(t, run)
	assert.True(t, run.Skipped)
	assert.Equal(t, "Fake money disabled", run.SkipReason)
}

func TestBettingPlacesCappedBets(t *testing.T) {
	h := newHarness(t)
	h.sched.deps.Models = &stubModels{active: map[string]*models.ModelVersion{
		"1x2": {VersionID: "v1", Domain: models.DomainBetting, Market: "1x2", IsActive: true},
	}}
	for i := 0; i < 8; i++ {
		h.bets.candidates = append(h.bets.candidates, valuebet.Candidate{FixtureID: "f", EV: 0.1})
	}

	result, err := h.sched.RunSync(context.Background(), TaskBetting)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 5, h.bets.placed) // limit_per_model
	assert.Equal(t, 5, result.Data["bets_placed"])
}

func TestBettingNoActiveModelIsNoop(t *testing.T) {
	h := newHarness(t)
	h.bets.candidates = []valuebet.Candidate{{FixtureID: "f", EV: 0.1}}

	result, err := h.sched.RunSync(context.Background(), TaskBetting)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, h.bets.placed)
}

func TestAutoBetSwitchOnlyAffectsFullRun(t *testing.T) {
	h := newHarness(t)
	h.sched.cfg.Betting.AutoBetAfterTrain = false

	result, err := h.sched.RunSync(context.Background(), TaskFullRun)
	require.NoError(t, err)
	require.True(t, result.Success)
	bet, ok := result.Data["betting"].(*TaskResult)
	require.True(t, ok)
	assert.True(t, bet.Skipped)
	assert.Equal(t, "Auto-betting disabled", bet.SkipReason)

	// Directly triggered betting ignores the auto switch.
	direct, err := h.sched.RunSync(context.Background(), TaskBetting)
	require.NoError(t, err)
	assert.False(t, direct.Skipped)
}

func TestTrainingNoDataIsNotAnError(t *testing.T) {
	h := newHarness(t)
	h.trainer.outcome = &TrainOutcome{Success: true, HasData: false, NoDataReason: "no settled bets yet"}

	result, err := h.sched.RunSync(context.Background(), TaskTraining)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.Errors)
}

func TestTrainingBackupFailureAborts(t *testing.T) {
	h := newHarness(t)
	h.sched.deps.Backup = func(label string) (string, error) {
		return "", assert.AnError
	}

	result, err := h.sched.RunSync(context.Background(), TaskTraining)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors)
}

func TestPanicReleasesSlot(t *testing.T) {
	h := newHarness(t)
	h.trainer.panics = true

	result, err := h.sched.RunSync(context.Background(), TaskTraining)
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "panic")

	// The slot is free for the next task.
	assert.Equal(t, Task(""), h.sched.CurrentTask())
	h.trainer.panics = false
	next, err := h.sched.RunSync(context.Background(), TaskTraining)
	require.NoError(t, err)
	assert.True(t, next.Success)
}

func TestTradingDisabledSkips(t *testing.T) {
	h := newHarness(t)
	h.sched.cfg.Trading.Enabled = false

	for _, task := range []Task{TaskTradingCollection, TaskTradingCycle, TaskTradingFullRun} {
		result, err := h.sched.RunSync(context.Background(), task)
		require.NoError(t, err)
		assert.True(t, result.Skipped, string(task))
		assert.Equal(t, "Trading disabled", result.SkipReason)
	}
}

func TestTradingFullRunChain(t *testing.T) {
	h := newHarness(t)

	result, err := h.sched.RunSync(context.Background(), TaskTradingFullRun)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.Data, "collection")
	assert.Contains(t, result.Data, "training")
	assert.Contains(t, result.Data, "cycle")
}

func TestStatusSnapshot(t *testing.T) {
	h := newHarness(t)

	_, err := h.sched.RunSync(context.Background(), TaskTraining)
	require.NoError(t, err)

	st := h.sched.Status()
	assert.Empty(t, st.CurrentTask)
	assert.Contains(t, st.LastRun, "training")
	assert.False(t, st.DaemonRunning)
}
