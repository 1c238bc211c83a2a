package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/antonkoetzler/arbihawk/internal/logger"
	"github.com/antonkoetzler/arbihawk/internal/models"
)

// trainingTask backs up the database and hands off to the training
// collaborator. Success without data is a warning, not a failure.
func (s *Scheduler) trainingTask(ctx context.Context, logFn logger.LogFunc) *TaskResult {
	return s.train(ctx, logFn, models.DomainBetting)
}

func (s *Scheduler) tradingTrainingTask(ctx context.Context, logFn logger.LogFunc) *TaskResult {
	if !s.cfg.Trading.Enabled {
		return &TaskResult{Skipped: true, SkipReason: "Trading disabled", Data: map[string]interface{}{}}
	}
	return s.train(ctx, logFn, models.DomainTrading)
}

func (s *Scheduler) train(ctx context.Context, logFn logger.LogFunc, domain models.Domain) *TaskResult {
	result := newTaskResult()

	if s.deps.Backup != nil {
		path, err := s.deps.Backup("pre_training")
		if err != nil {
			result.Success = false
			result.addError("failed to back up before training: %v", err)
			return result
		}
		result.Data["backup_path"] = path
	}
	if stopRequested(ctx) {
		return stoppedResult(result, "backup")
	}

	out, err := s.deps.Trainer.Train(ctx, domain, logFn)
	if err != nil {
		if stopRequested(ctx) {
			return stoppedResult(result, "training")
		}
		result.Success = false
		result.addError("training failed: %v", err)
		return result
	}

	result.Success = out.Success
	result.Data["training"] = out
	if out.Success && !out.HasData {
		logFn("warning", fmt.Sprintf("Training skipped model fit: %s", out.NoDataReason))
	}
	return result
}

// bettingTask runs the value-bet engine for every market with an active
// model. autoRun marks invocation from a full run, where the auto-bet
// switch applies on top of the fake-money switch.
func (s *Scheduler) bettingTask(ctx context.Context, logFn logger.LogFunc, autoRun bool) *TaskResult {
	result := newTaskResult()

	if !s.cfg.Betting.FakeMoneyEnabled {
		result.Skipped = true
		result.SkipReason = "Fake money disabled"
		return result
	}
	if autoRun && !s.cfg.Betting.AutoBetAfterTrain {
		result.Skipped = true
		result.SkipReason = "Auto-betting disabled"
		return result
	}

	now := time.Now()
	placed := 0
	for _, market := range s.cfg.Betting.Markets {
		if stopRequested(ctx) {
			return stoppedResult(result, "betting:"+market)
		}

		mv, err := s.deps.Models.GetActive(ctx, models.DomainBetting, market)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				logFn("info", fmt.Sprintf("No active model for market %s, skipping", market))
				continue
			}
			result.addError("failed to resolve model for %s: %v", market, err)
			continue
		}

		candidates, err := s.deps.Bets.FindCandidates(ctx, market, now)
		if err != nil {
			result.addError("candidate scan failed for %s: %v", market, err)
			continue
		}
		ids, err := s.deps.Bets.PlaceBets(ctx, candidates, market, s.cfg.Betting.LimitPerModel)
		placed += len(ids)
		if err != nil {
			result.addError("bet placement failed for %s: %v", market, err)
			continue
		}
		logFn("info", fmt.Sprintf("Market %s (model %s): %d candidates, %d bets placed",
			market, mv.VersionID, len(candidates), len(ids)))
	}

	result.Data["bets_placed"] = placed
	result.Success = len(result.Errors) == 0
	return result
}

// notReached marks a chained sub-task that never ran because an earlier
// step was stopped.
func notReached() *TaskResult {
	return &TaskResult{Skipped: true, SkipReason: "Stopped", Data: map[string]interface{}{}}
}

// fullRunTask chains collection, training, betting, and a final settlement
// pass. The task slot stays "full_run" throughout; a stopped sub-task
// aborts the chain, and the unreached sub-tasks are reported as skipped.
func (s *Scheduler) fullRunTask(ctx context.Context, logFn logger.LogFunc) *TaskResult {
	result := newTaskResult()

	col := s.collectionTask(ctx, logFn)
	result.Data["collection"] = col
	result.Errors = append(result.Errors, col.Errors...)
	if col.Stopped {
		result.Data["training"] = notReached()
		result.Data["betting"] = notReached()
		return stoppedResult(result, "collection")
	}

	tr := s.trainingTask(ctx, logFn)
	result.Data["training"] = tr
	result.Errors = append(result.Errors, tr.Errors...)
	if tr.Stopped {
		result.Data["betting"] = notReached()
		return stoppedResult(result, "training")
	}

	bet := s.bettingTask(ctx, logFn, true)
	result.Data["betting"] = bet
	result.Errors = append(result.Errors, bet.Errors...)
	if bet.Stopped {
		return stoppedResult(result, "betting")
	}

	// Collection may have landed scores for bets placed in earlier runs.
	if summary, err := s.deps.Settler.SettlePendingBets(ctx); err != nil {
		result.addError("final settlement failed: %v", err)
	} else {
		result.Data["settlement"] = summary
	}
	if stopRequested(ctx) {
		return stoppedResult(result, "settlement")
	}

	result.Success = len(result.Errors) == 0
	return result
}

// tradingCycleTask delegates to the trade service.
func (s *Scheduler) tradingCycleTask(ctx context.Context, logFn logger.LogFunc) *TaskResult {
	result := newTaskResult()
	if !s.cfg.Trading.Enabled {
		result.Skipped = true
		result.SkipReason = "Trading disabled"
		return result
	}

	cycle, err := s.deps.Trader.RunCycle(ctx)
	if err != nil {
		if stopRequested(ctx) {
			return stoppedResult(result, "cycle")
		}
		result.Success = false
		result.addError("trade cycle failed: %v", err)
		return result
	}

	result.Data["cycle"] = cycle
	result.Errors = append(result.Errors, cycle.Errors...)
	result.Success = len(result.Errors) == 0
	logFn("info", fmt.Sprintf("Trade cycle: %d closed, %d opened, %d signals",
		cycle.PositionsClosed, cycle.PositionsOpened, cycle.Signals))
	return result
}

// tradingFullRunTask chains trading collection, training, and one cycle.
func (s *Scheduler) tradingFullRunTask(ctx context.Context, logFn logger.LogFunc) *TaskResult {
	result := newTaskResult()
	if !s.cfg.Trading.Enabled {
		result.Skipped = true
		result.SkipReason = "Trading disabled"
		return result
	}

	col := s.tradingCollectionTask(ctx, logFn)
	result.Data["collection"] = col
	result.Errors = append(result.Errors, col.Errors...)
	if col.Stopped {
		result.Data["training"] = notReached()
		result.Data["cycle"] = notReached()
		return stoppedResult(result, "collection")
	}

	tr := s.tradingTrainingTask(ctx, logFn)
	result.Data["training"] = tr
	result.Errors = append(result.Errors, tr.Errors...)
	if tr.Stopped {
		result.Data["cycle"] = notReached()
		return stoppedResult(result, "training")
	}

	cycle := s.tradingCycleTask(ctx, logFn)
	result.Data["cycle"] = cycle
	result.Errors = append(result.Errors, cycle.Errors...)
	if cycle.Stopped {
		return stoppedResult(result, "cycle")
	}

	result.Success = len(result.Errors) == 0
	return result
}
