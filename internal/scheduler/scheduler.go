// Package scheduler is the control core: it owns the single task slot,
// drives the collection/training/betting/trading pipelines, and records
// run history.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/antonkoetzler/arbihawk/internal/config"
	"github.com/antonkoetzler/arbihawk/internal/logger"
	"github.com/antonkoetzler/arbihawk/internal/matcher"
	"github.com/antonkoetzler/arbihawk/internal/matchid"
	"github.com/antonkoetzler/arbihawk/internal/metrics"
	"github.com/antonkoetzler/arbihawk/internal/models"
	"github.com/antonkoetzler/arbihawk/internal/settlement"
	"github.com/antonkoetzler/arbihawk/internal/store"
	"github.com/antonkoetzler/arbihawk/internal/trading"
	"github.com/antonkoetzler/arbihawk/internal/valuebet"
)

// Task identifies one schedulable unit of work. Exactly one task runs at a
// time process-wide.
type Task string

const (
	TaskCollection        Task = "collection"
	TaskTraining          Task = "training"
	TaskBetting           Task = "betting"
	TaskFullRun           Task = "full_run"
	TaskTradingCollection Task = "trading_collection"
	TaskTradingTraining   Task = "trading_training"
	TaskTradingCycle      Task = "trading_cycle"
	TaskTradingFullRun    Task = "trading_full_run"
)

// Domain returns the domain tag a task's logs and run history carry.
func (t Task) Domain() models.Domain {
	switch t {
	case TaskTradingCollection, TaskTradingTraining, TaskTradingCycle, TaskTradingFullRun:
		return models.DomainTrading
	}
	return models.DomainBetting
}

// TriggerResult is the immediate response to a task trigger.
type TriggerResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TaskResult is the structured outcome every task produces.
type TaskResult struct {
	Success    bool                   `json:"success"`
	Stopped    bool                   `json:"stopped"`
	Skipped    bool                   `json:"skipped"`
	SkipReason string                 `json:"skip_reason,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Errors     []string               `json:"errors,omitempty"`
}

func newTaskResult() *TaskResult {
	return &TaskResult{Success: true, Data: make(map[string]interface{})}
}

func (r *TaskResult) addError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// TrainOutcome is what a training collaborator reports back. Success with
// HasData false is a legitimate no-op, not an error.
type TrainOutcome struct {
	Success      bool     `json:"success"`
	HasData      bool     `json:"has_data"`
	NoDataReason string   `json:"no_data_reason,omitempty"`
	Markets      []string `json:"markets,omitempty"`
}

// Trainer is the training collaborator. Model persistence and version
// registration happen inside the collaborator.
type Trainer interface {
	Train(ctx context.Context, domain models.Domain, logFn logger.LogFunc) (*TrainOutcome, error)
}

// Store is the slice of the data layer the scheduler needs.
type Store interface {
	InsertRun(ctx context.Context, run *models.Run) (int64, error)
	ListScoresWithPrefix(ctx context.Context, prefix string) ([]*models.Score, error)
	UpsertScore(ctx context.Context, score *models.Score) error
	DeleteScore(ctx context.Context, fixtureID string) error
	PendingBets(ctx context.Context) ([]*models.Bet, error)
}

// BatchMatcher matches accumulated synthetic-id scores onto fixtures.
type BatchMatcher interface {
	MatchBatch(ctx context.Context, items []matcher.ScoreItem) (*matcher.BatchResult, error)
}

// Settler settles pending bets against available scores.
type Settler interface {
	SettlePendingBets(ctx context.Context) (*settlement.Summary, error)
}

// BetPlacer is the value-bet engine surface the betting task drives.
type BetPlacer interface {
	FindCandidates(ctx context.Context, market string, asOf time.Time) ([]valuebet.Candidate, error)
	PlaceBets(ctx context.Context, candidates []valuebet.Candidate, modelMarket string, limit int) ([]int64, error)
}

// ModelSource resolves the active model version per (domain, market).
type ModelSource interface {
	GetActive(ctx context.Context, domain models.Domain, market string) (*models.ModelVersion, error)
}

// TradeCycler runs one paper-trading cycle.
type TradeCycler interface {
	RunCycle(ctx context.Context) (*trading.CycleResult, error)
}

// BackupFunc snapshots the database before destructive or training steps.
type BackupFunc func(label string) (string, error)

// Deps bundles the scheduler's collaborators.
type Deps struct {
	Store    Store
	Scrapers Scrapers
	Matcher  BatchMatcher
	Settler  Settler
	Trainer  Trainer
	Bets     BetPlacer
	Models   ModelSource
	Trader   TradeCycler
	Backup   BackupFunc
	ID       *matchid.Identifier
	Log      *logger.DomainLogger
}

// Scheduler owns the single task slot. All triggers return immediately;
// the work itself runs in a background goroutine.
type Scheduler struct {
	cfg  *config.Config
	deps Deps

	mu          sync.Mutex
	currentTask Task
	taskCancel  context.CancelFunc

	daemonRunning        bool
	daemonStop           chan struct{}
	tradingDaemonRunning bool
	tradingDaemonStop    chan struct{}

	lastRun      map[Task]time.Time
	lastDuration map[Task]time.Duration
	lastResults  map[Task]*TaskResult
}

// New creates a scheduler.
func New(cfg *config.Config, deps Deps) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		deps:         deps,
		lastRun:      make(map[Task]time.Time),
		lastDuration: make(map[Task]time.Duration),
		lastResults:  make(map[Task]*TaskResult),
	}
}

type taskFunc func(ctx context.Context, logFn logger.LogFunc) *TaskResult

func (s *Scheduler) taskFn(task Task) (taskFunc, error) {
	switch task {
	case TaskCollection:
		return s.collectionTask, nil
	case TaskTraining:
		return s.trainingTask, nil
	case TaskBetting:
		return func(ctx context.Context, logFn logger.LogFunc) *TaskResult {
			return s.bettingTask(ctx, logFn, false)
		}, nil
	case TaskFullRun:
		return s.fullRunTask, nil
	case TaskTradingCollection:
		return s.tradingCollectionTask, nil
	case TaskTradingTraining:
		return s.tradingTrainingTask, nil
	case TaskTradingCycle:
		return s.tradingCycleTask, nil
	case TaskTradingFullRun:
		return s.tradingFullRunTask, nil
	}
	return nil, fmt.Errorf("unknown task: %s", task)
}

// acquire claims the task slot. The returned context carries the task's
// cancellation latch.
func (s *Scheduler) acquire(parent context.Context, task Task) (context.Context, context.CancelFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentTask != "" {
		return nil, nil, fmt.Errorf("Task already running: %s", s.currentTask)
	}
	ctx, cancel := context.WithCancel(parent)
	s.currentTask = task
	s.taskCancel = cancel
	return ctx, cancel, nil
}

// Trigger starts the named task in the background. A second trigger while
// any task is running is rejected without side effects.
func (s *Scheduler) Trigger(task Task) *TriggerResult {
	fn, err := s.taskFn(task)
	if err != nil {
		return &TriggerResult{Success: false, Error: err.Error()}
	}
	ctx, cancel, err := s.acquire(context.Background(), task)
	if err != nil {
		return &TriggerResult{Success: false, Error: err.Error()}
	}
	metrics.RecordTaskStarted(string(task), string(task.Domain()))
	go s.runTask(ctx, cancel, task, fn)
	return &TriggerResult{Success: true, Message: fmt.Sprintf("%s started in background", task)}
}

// RunSync runs a task on the caller's goroutine. Used by the CLI
// subcommands and the daemon loops; the slot discipline is identical to
// Trigger.
func (s *Scheduler) RunSync(ctx context.Context, task Task) (*TaskResult, error) {
	fn, err := s.taskFn(task)
	if err != nil {
		return nil, err
	}
	taskCtx, cancel, err := s.acquire(ctx, task)
	if err != nil {
		return nil, err
	}
	metrics.RecordTaskStarted(string(task), string(task.Domain()))
	s.runTask(taskCtx, cancel, task, fn)
	return s.lastResult(task), nil
}

// runTask executes fn with panic isolation, records run history, and
// releases the slot.
func (s *Scheduler) runTask(ctx context.Context, cancel context.CancelFunc, task Task, fn taskFunc) {
	start := time.Now()
	logFn := s.deps.Log.For(string(task.Domain()))
	logFn("info", fmt.Sprintf("Task %s started", task))

	result := s.safeRun(ctx, fn, logFn)
	duration := time.Since(start)

	switch {
	case result.Stopped:
		logFn("warning", fmt.Sprintf("Task %s stopped after %.1fs", task, duration.Seconds()))
	case result.Skipped:
		metrics.RecordTaskSkipped(string(task), string(task.Domain()))
		logFn("info", fmt.Sprintf("Task %s skipped: %s", task, result.SkipReason))
	case !result.Success:
		metrics.RecordTaskFailed(string(task), string(task.Domain()))
		logFn("error", fmt.Sprintf("Task %s failed: %v", task, result.Errors))
	default:
		logFn("info", fmt.Sprintf("Task %s completed in %.1fs", task, duration.Seconds()))
	}
	metrics.RecordTaskDuration(string(task), duration.Seconds())

	s.recordRun(task, start, duration, result)

	s.mu.Lock()
	s.currentTask = ""
	s.taskCancel = nil
	s.lastRun[task] = start
	s.lastDuration[task] = duration
	s.lastResults[task] = result
	s.mu.Unlock()
	cancel()
}

// safeRun isolates task panics so the slot is always released.
func (s *Scheduler) safeRun(ctx context.Context, fn taskFunc, logFn logger.LogFunc) (result *TaskResult) {
	defer func() {
		if r := recover(); r != nil {
			logFn("error", fmt.Sprintf("Task panicked: %v", r))
			result = &TaskResult{Errors: []string{fmt.Sprintf("panic: %v", r)}}
		}
	}()
	return fn(ctx, logFn)
}

// recordRun stores the run-history row. Failures here are logged and
// swallowed; history must never break a run.
func (s *Scheduler) recordRun(task Task, start time.Time, duration time.Duration, result *TaskResult) {
	resultData := "{}"
	if len(result.Data) > 0 {
		if raw, err := store.SafeJSON(result.Data); err == nil {
			resultData = raw
		}
	}
	errorsJSON := "[]"
	if len(result.Errors) > 0 {
		if raw, err := json.Marshal(result.Errors); err == nil {
			errorsJSON = string(raw)
		}
	}

	completed := start.Add(duration)
	_, err := s.deps.Store.InsertRun(context.Background(), &models.Run{
		RunType:         string(task),
		Domain:          task.Domain(),
		StartedAt:       start,
		CompletedAt:     &completed,
		DurationSeconds: duration.Seconds(),
		Success:         result.Success && !result.Stopped,
		Stopped:         result.Stopped,
		Skipped:         result.Skipped,
		SkipReason:      result.SkipReason,
		ResultData:      resultData,
		Errors:          errorsJSON,
	})
	if err != nil {
		s.deps.Log.Logger().WithError(err).Warn("Failed to record run history")
	}
}

// StopTask requests cooperative cancellation of the running task. It
// returns immediately; the task clears the slot when it unwinds.
func (s *Scheduler) StopTask() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taskCancel == nil {
		return false
	}
	s.taskCancel()
	return true
}

// Status is a point-in-time snapshot for the dashboard and the status
// subcommand.
type Status struct {
	CurrentTask          string               `json:"current_task"`
	DaemonRunning        bool                 `json:"daemon_running"`
	TradingDaemonRunning bool                 `json:"trading_daemon_running"`
	LastRun              map[string]time.Time `json:"last_run"`
	LastDurationSeconds  map[string]float64   `json:"last_duration_seconds"`
}

// Status snapshots the scheduler state.
func (s *Scheduler) Status() *Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &Status{
		CurrentTask:          string(s.currentTask),
		DaemonRunning:        s.daemonRunning,
		TradingDaemonRunning: s.tradingDaemonRunning,
		LastRun:              make(map[string]time.Time, len(s.lastRun)),
		LastDurationSeconds:  make(map[string]float64, len(s.lastDuration)),
	}
	for task, at := range s.lastRun {
		st.LastRun[string(task)] = at
	}
	for task, d := range s.lastDuration {
		st.LastDurationSeconds[string(task)] = d.Seconds()
	}
	return st
}

// CurrentTask returns the occupied slot, or "" when idle.
func (s *Scheduler) CurrentTask() Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTask
}

func (s *Scheduler) lastResult(task Task) *TaskResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.lastResults[task]; ok {
		return r
	}
	return &TaskResult{}
}

// stopRequested reports whether the task's cancellation latch is set.
func stopRequested(ctx context.Context) bool {
	return ctx.Err() != nil
}

// stoppedResult builds the early-exit result for a cancelled task.
func stoppedResult(result *TaskResult, step string) *TaskResult {
	result.Success = false
	result.Stopped = true
	result.Data["stopped_at"] = step
	return result
}
