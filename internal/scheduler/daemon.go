package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// StartDaemon starts the betting daemon loop. With a cron schedule
// configured the loop is cron-driven; otherwise it runs a full betting
// cycle every interval with an interruptible sleep. Returns false when the
// daemon is already running.
func (s *Scheduler) StartDaemon() bool {
	s.mu.Lock()
	if s.daemonRunning {
		s.mu.Unlock()
		return false
	}
	s.daemonRunning = true
	s.daemonStop = make(chan struct{})
	stop := s.daemonStop
	s.mu.Unlock()

	if schedule := s.cfg.Daemon.CronSchedule; schedule != "" {
		go s.cronLoop(stop, schedule)
	} else {
		interval := time.Duration(s.cfg.Daemon.IntervalMinutes) * time.Minute
		go s.daemonLoop(stop, TaskFullRun, interval, "betting")
	}
	return true
}

// StopDaemon signals the betting daemon loop to exit. The running
// iteration is cancelled cooperatively.
func (s *Scheduler) StopDaemon() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.daemonRunning {
		return false
	}
	close(s.daemonStop)
	return true
}

// StartTradingDaemon starts the trading daemon loop.
func (s *Scheduler) StartTradingDaemon() bool {
	s.mu.Lock()
	if s.tradingDaemonRunning {
		s.mu.Unlock()
		return false
	}
	s.tradingDaemonRunning = true
	s.tradingDaemonStop = make(chan struct{})
	stop := s.tradingDaemonStop
	s.mu.Unlock()

	interval := time.Duration(s.cfg.Daemon.TradingIntervalMinutes) * time.Minute
	go s.daemonLoop(stop, TaskTradingFullRun, interval, "trading")
	return true
}

// StopTradingDaemon signals the trading daemon loop to exit.
func (s *Scheduler) StopTradingDaemon() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tradingDaemonRunning {
		return false
	}
	close(s.tradingDaemonStop)
	return true
}

// daemonLoop runs task-then-sleep until the stop channel closes. Closing
// the channel both interrupts the sleep and cancels the running task.
func (s *Scheduler) daemonLoop(stop chan struct{}, task Task, interval time.Duration, domain string) {
	defer s.clearDaemonFlag(task)
	logFn := s.deps.Log.For(domain)
	logFn("info", fmt.Sprintf("Daemon started, interval %s", interval))

	for {
		ctx, cancel := context.WithCancel(context.Background())
		watchdogDone := make(chan struct{})
		go func() {
			select {
			case <-stop:
				cancel()
			case <-watchdogDone:
			}
		}()

		if _, err := s.RunSync(ctx, task); err != nil {
			// Slot contention: a manual trigger is running. Wait it out.
			logFn("warning", fmt.Sprintf("Daemon iteration skipped: %v", err))
		}
		close(watchdogDone)
		cancel()

		select {
		case <-stop:
			logFn("info", "Daemon stopped")
			return
		case <-time.After(interval):
		}
	}
}

// cronLoop drives full runs from a cron schedule instead of a fixed
// interval.
func (s *Scheduler) cronLoop(stop chan struct{}, schedule string) {
	defer s.clearDaemonFlag(TaskFullRun)
	logFn := s.deps.Log.For("betting")

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if res := s.Trigger(TaskFullRun); !res.Success {
			logFn("warning", fmt.Sprintf("Scheduled run skipped: %s", res.Error))
		}
	}); err != nil {
		logFn("error", fmt.Sprintf("Invalid cron schedule %q: %v", schedule, err))
		return
	}
	c.Start()
	logFn("info", fmt.Sprintf("Daemon started on cron schedule %q", schedule))

	<-stop
	cronCtx := c.Stop()
	<-cronCtx.Done()
	s.StopTask()
	logFn("info", "Daemon stopped")
}

func (s *Scheduler) clearDaemonFlag(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task == TaskTradingFullRun {
		s.tradingDaemonRunning = false
	} else {
		s.daemonRunning = false
	}
}
