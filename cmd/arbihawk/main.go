// Package main provides the Arbihawk command line interface.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/antonkoetzler/arbihawk/internal/backup"
	"github.com/antonkoetzler/arbihawk/internal/config"
	"github.com/antonkoetzler/arbihawk/internal/health"
	"github.com/antonkoetzler/arbihawk/internal/ingest"
	"github.com/antonkoetzler/arbihawk/internal/logger"
	"github.com/antonkoetzler/arbihawk/internal/matcher"
	"github.com/antonkoetzler/arbihawk/internal/matchid"
	"github.com/antonkoetzler/arbihawk/internal/metrics"
	"github.com/antonkoetzler/arbihawk/internal/modelmgr"
	"github.com/antonkoetzler/arbihawk/internal/models"
	"github.com/antonkoetzler/arbihawk/internal/predict"
	"github.com/antonkoetzler/arbihawk/internal/scheduler"
	"github.com/antonkoetzler/arbihawk/internal/settlement"
	"github.com/antonkoetzler/arbihawk/internal/store"
	"github.com/antonkoetzler/arbihawk/internal/trading"
	"github.com/antonkoetzler/arbihawk/internal/valuebet"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	configFile string
	cfg        *config.Config
	appLog     *logrus.Logger
	db         *store.Store
	backups    *backup.Manager
	mgr        *modelmgr.Manager
	settler    *settlement.Service
	sched      *scheduler.Scheduler
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config/config.yaml", "Path to configuration file")

	resetCmd.Flags().String("domain", "all", "Which domain to reset: betting, trading, or all")
	resetCmd.Flags().Bool("preserve-models", false, "Keep model version rows on a full reset")

	rootCmd.AddCommand(runCmd, collectCmd, trainCmd, betCmd, tradeCmd, settleCmd, statusCmd, resetCmd, syncCmd)
}

var rootCmd = &cobra.Command{
	Use:   "arbihawk",
	Short: "Self-hosted betting and paper-trading automation platform",
	Long:  `Arbihawk orchestrates scraper subprocesses, model training, value betting, and paper trading against an embedded SQLite store.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			if err := db.Close(); err != nil {
				appLog.WithError(err).Error("Failed to close store")
			}
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func setup() error {
	var err error
	cfg, err = config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	appLog = logger.New(cfg.App.LogLevel)
	appLog.WithFields(logrus.Fields{
		"environment": cfg.App.Environment,
		"version":     Version,
	}).Info("Arbihawk starting")

	metrics.InitRegistry()

	db, err = store.Open(cfg.Database.Path, appLog)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	backups = backup.New(cfg.Database.Path, cfg.Database.BackupDir, cfg.Models.MaxVersionsToKeep, appLog)
	db.SetBackupFunc(backups.Create)

	id := matchid.New(
		matchid.WithAliases(cfg.Matching.TeamAliases),
		matchid.WithSyntheticPrefixes(cfg.Matching.SyntheticPrefixes),
	)
	fixtureMatcher := matcher.New(db, id, cfg.MatchTolerance(), cfg.Matching.MinMatchScore)
	settler = settlement.New(db, id, cfg.MatchTolerance(), cfg.Matching.MinMatchScore, appLog)

	mgr = modelmgr.New(db, backups.Create, cfg.Models.MaxVersionsToKeep,
		cfg.Models.AutoRollback.Enabled, cfg.Models.AutoRollback.ROIThreshold,
		cfg.Models.AutoRollback.MinBets, appLog)

	bridge := predict.New(cfg.Scraper.PythonExe, cfg.Scraper.ScriptDir, cfg.ScraperTimeout(), mgr, appLog)
	betEngine := valuebet.New(db, bridge, cfg.Betting.EVThreshold, cfg.Betting.FixedStake,
		cfg.Betting.MarketMargins, time.Duration(cfg.Betting.UpcomingWindowHours)*time.Hour, appLog)

	minConfidence := make(map[trading.Strategy]float64, len(cfg.Trading.StrategyMinConfidence))
	for name, floor := range cfg.Trading.StrategyMinConfidence {
		minConfidence[trading.Strategy(name)] = floor
	}
	strategies := make([]trading.Strategy, 0, len(cfg.Trading.Strategies))
	for _, name := range cfg.Trading.Strategies {
		strategies = append(strategies, trading.Strategy(name))
	}
	signalEngine := trading.NewSignalEngine(db, bridge, cfg.Trading.ATRMultiplier,
		cfg.Trading.RiskReward, cfg.Trading.MinRiskReward, minConfidence, appLog)
	trader := trading.NewService(db, signalEngine, tradingWatchlist(), strategies,
		cfg.Trading.PositionSizeFraction, cfg.Trading.InitialCash, cfg.Trading.MaxPositions, appLog)

	runner := ingest.NewRunner(cfg.ScraperTimeout())
	pipeline := ingest.NewPipeline(db, fixtureMatcher, id, appLog)
	scrapers := scheduler.NewScriptScrapers(cfg.Scraper, runner, pipeline)

	domainLog := logger.NewDomainLogger(appLog, logger.NewRing(logger.DefaultRingCapacity))
	sched = scheduler.New(cfg, scheduler.Deps{
		Store:    db,
		Scrapers: scrapers,
		Matcher:  fixtureMatcher,
		Settler:  settler,
		Trainer:  bridge,
		Bets:     betEngine,
		Models:   mgr,
		Trader:   trader,
		Backup:   backups.Create,
		ID:       id,
		Log:      domainLog,
	})
	return nil
}

// tradingWatchlist resolves the traded symbols, falling back to the
// instruments already in the store when the config lists are empty.
func tradingWatchlist() trading.Watchlist {
	wl := trading.Watchlist{
		Stocks: cfg.Trading.StockWatchlist,
		Crypto: cfg.Trading.CryptoWatchlist,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if len(wl.Stocks) == 0 {
		if symbols, err := db.ListInstrumentSymbols(ctx, models.AssetStock); err == nil {
			wl.Stocks = symbols
		}
	}
	if len(wl.Crypto) == 0 {
		if symbols, err := db.ListInstrumentSymbols(ctx, models.AssetCrypto); err == nil {
			wl.Crypto = symbols
		}
	}
	return wl
}

// signalContext returns a context cancelled by SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func printJSON(v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}

// runTask runs one scheduler task to completion, cancelling on signals.
func runTask(task scheduler.Task) error {
	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		<-ctx.Done()
		sched.StopTask()
	}()

	result, err := sched.RunSync(ctx, task)
	if err != nil {
		return err
	}
	if err := printJSON(result); err != nil {
		return err
	}
	if !result.Success && !result.Skipped && !result.Stopped {
		os.Exit(1)
	}
	return nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon loops until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		if cfg.Metrics.Enabled {
			ops := health.NewServer(health.Config{
				Service: cfg.App.Name,
				Version: Version,
				Port:    cfg.Metrics.Port,
				DB:      db,
				Status:  func() interface{} { return sched.Status() },
				Logger:  appLog,
			})
			if err := ops.Start(ctx); err != nil {
				return fmt.Errorf("failed to start ops server: %w", err)
			}
			ops.SetReady(true)
		}

		sched.StartDaemon()
		if cfg.Trading.Enabled {
			sched.StartTradingDaemon()
		}
		appLog.Info("Daemons running, press Ctrl-C to stop")

		<-ctx.Done()
		appLog.Info("Shutting down")
		sched.StopDaemon()
		sched.StopTradingDaemon()
		sched.StopTask()

		// Give the running task a moment to unwind before the store closes.
		deadline := time.Now().Add(30 * time.Second)
		for sched.CurrentTask() != "" && time.Now().Before(deadline) {
			time.Sleep(100 * time.Millisecond)
		}
		return nil
	},
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one betting-domain collection pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTask(scheduler.TaskCollection)
	},
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Back up the store and train the betting models",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTask(scheduler.TaskTraining)
	},
}

var betCmd = &cobra.Command{
	Use:   "bet",
	Short: "Scan upcoming fixtures and place value bets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTask(scheduler.TaskBetting)
	},
}

var tradeCmd = &cobra.Command{
	Use:   "trade",
	Short: "Run one paper-trading cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTask(scheduler.TaskTradingCycle)
	},
}

var settleCmd = &cobra.Command{
	Use:   "settle",
	Short: "Settle pending bets against available scores",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		summary, err := settler.SettlePendingBets(ctx)
		if err != nil {
			return err
		}
		return printJSON(summary)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show scheduler state, recent runs, and bankroll stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		runs, err := db.RecentRuns(ctx, "", 10)
		if err != nil {
			return err
		}
		pending, err := db.PendingBets(ctx)
		if err != nil {
			return err
		}
		status := map[string]interface{}{
			"scheduler":    sched.Status(),
			"recent_runs":  runs,
			"pending_bets": len(pending),
		}

		stats := make(map[string]interface{}, len(cfg.Betting.Markets))
		for _, market := range cfg.Betting.Markets {
			if s, err := db.BankrollStats(ctx, market); err == nil && s.SettledBets > 0 {
				stats[market] = s
			}
		}
		if len(stats) > 0 {
			status["bankroll"] = stats
		}
		return printJSON(status)
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Back up and wipe a domain's data",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		domain, _ := cmd.Flags().GetString("domain")
		preserveModels, _ := cmd.Flags().GetBool("preserve-models")

		var report *store.ResetReport
		var err error
		switch domain {
		case "betting":
			report, err = db.ResetBettingDomain(ctx)
		case "trading":
			report, err = db.ResetTradingDomain(ctx)
		case "all":
			report, err = db.ResetDatabase(ctx, preserveModels)
		default:
			return fmt.Errorf("unknown domain %q (want betting, trading, or all)", domain)
		}
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync <production-db-path>",
	Short: "Replace local betting data with a production database's",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		counts, err := db.SyncFromProduction(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(counts)
	},
}
