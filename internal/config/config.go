// Package config provides configuration management for the Arbihawk platform.
package config

import "time"

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Scraper  ScraperConfig  `mapstructure:"scraper" validate:"required"`
	Matching MatchingConfig `mapstructure:"matching" validate:"required"`
	Betting  BettingConfig  `mapstructure:"betting" validate:"required"`
	Trading  TradingConfig  `mapstructure:"trading" validate:"required"`
	Models   ModelsConfig   `mapstructure:"models" validate:"required"`
	Daemon   DaemonConfig   `mapstructure:"daemon" validate:"required"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DatabaseConfig represents the embedded store configuration
type DatabaseConfig struct {
	Path      string `mapstructure:"path" validate:"required"`
	BackupDir string `mapstructure:"backup_dir" validate:"required"`
}

// ScraperConfig represents scraper subprocess configuration
type ScraperConfig struct {
	PythonExe                   string   `mapstructure:"python_exe" validate:"required"`
	ScriptDir                   string   `mapstructure:"script_dir" validate:"required"`
	TimeoutSeconds              int      `mapstructure:"timeout_seconds" validate:"required,gt=0"`
	MaxWorkersLeagues           int      `mapstructure:"max_workers_leagues" validate:"required,gt=0"`
	MaxWorkersLeaguesPlaywright int      `mapstructure:"max_workers_leagues_playwright" validate:"required,gt=0"`
	SpawnRatePerSec             int      `mapstructure:"spawn_rate_per_sec" validate:"gte=0"`
	BetanoLeagues               []string `mapstructure:"betano_leagues"`
	FlashscoreLeagues           []string `mapstructure:"flashscore_leagues"`
}

// MatchingConfig represents score-to-fixture matching configuration
type MatchingConfig struct {
	MinMatchScore      int      `mapstructure:"min_match_score" validate:"required,gte=0,lte=100"`
	TimeToleranceHours int      `mapstructure:"time_tolerance_hours" validate:"required,gt=0"`
	SyntheticPrefixes  []string `mapstructure:"synthetic_prefixes" validate:"required,min=1"`
	TeamAliases        map[string]string `mapstructure:"team_aliases"`
}

// BettingConfig represents value-bet engine configuration
type BettingConfig struct {
	FakeMoneyEnabled    bool               `mapstructure:"fake_money_enabled"`
	AutoBetAfterTrain   bool               `mapstructure:"auto_bet_after_training"`
	Markets             []string           `mapstructure:"markets" validate:"required,min=1"`
	EVThreshold         float64            `mapstructure:"ev_threshold" validate:"gte=0"`
	FixedStake          float64            `mapstructure:"fixed_stake" validate:"required,gt=0"`
	LimitPerModel       int                `mapstructure:"limit_per_model" validate:"required,gt=0"`
	MarketMargins       map[string]float64 `mapstructure:"market_margins"`
	UpcomingWindowHours int                `mapstructure:"upcoming_window_hours" validate:"required,gt=0"`
}

// TradingConfig represents trade-signal engine configuration
type TradingConfig struct {
	Enabled               bool               `mapstructure:"enabled"`
	InitialCash           float64            `mapstructure:"initial_cash" validate:"required,gt=0"`
	Strategies            []string           `mapstructure:"strategies" validate:"required,min=1"`
	StockWatchlist        []string           `mapstructure:"stock_watchlist"`
	CryptoWatchlist       []string           `mapstructure:"crypto_watchlist"`
	ATRMultiplier         float64            `mapstructure:"atr_multiplier" validate:"required,gt=0"`
	RiskReward            float64            `mapstructure:"risk_reward" validate:"required,gt=0"`
	MinRiskReward         float64            `mapstructure:"min_risk_reward" validate:"gte=0"`
	MaxPositionValue      float64            `mapstructure:"max_position_value" validate:"required,gt=0"`
	PositionSizeFraction  float64            `mapstructure:"position_size_fraction" validate:"required,gt=0,lte=1"`
	MaxPositions          int                `mapstructure:"max_positions" validate:"required,gt=0"`
	StrategyMinConfidence map[string]float64 `mapstructure:"strategy_min_confidence"`
}

// ModelsConfig represents model version management configuration
type ModelsConfig struct {
	Dir               string             `mapstructure:"dir" validate:"required"`
	MaxVersionsToKeep int                `mapstructure:"max_versions_to_keep" validate:"required,gt=0"`
	AutoRollback      AutoRollbackConfig `mapstructure:"auto_rollback"`
}

// AutoRollbackConfig represents automatic model rollback configuration
type AutoRollbackConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ROIThreshold float64 `mapstructure:"roi_threshold"`
	MinBets      int     `mapstructure:"min_bets" validate:"gte=0"`
}

// DaemonConfig represents daemon loop configuration
type DaemonConfig struct {
	IntervalMinutes        int    `mapstructure:"interval_minutes" validate:"required,gt=0"`
	TradingIntervalMinutes int    `mapstructure:"trading_interval_minutes" validate:"required,gt=0"`
	CronSchedule           string `mapstructure:"cron_schedule"`
}

// MetricsConfig represents metrics and health endpoint configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Path    string `mapstructure:"path"`
}

// ScraperTimeout returns the subprocess timeout as a duration.
func (c *Config) ScraperTimeout() time.Duration {
	return time.Duration(c.Scraper.TimeoutSeconds) * time.Second
}

// MatchTolerance returns the matching time window as a duration.
func (c *Config) MatchTolerance() time.Duration {
	return time.Duration(c.Matching.TimeToleranceHours) * time.Hour
}

// MarketMargin returns the configured bookmaker margin for a market,
// defaulting to zero when the market has no entry.
func (c *Config) MarketMargin(market string) float64 {
	if m, ok := c.Betting.MarketMargins[market]; ok {
		return m
	}
	return 0
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}
