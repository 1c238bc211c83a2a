package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load reads and parses the configuration from file and environment variables.
// It expands environment variable placeholders in the YAML file (${VAR_NAME}).
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath == "" {
		configPath = "config/config.yaml"
	}

	v.SetConfigType("yaml")
	v.SetEnvPrefix("ARBIHAWK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// Read and expand the configuration file if it exists
	if data, err := os.ReadFile(configPath); err == nil {
		expanded := os.ExpandEnv(string(data))
		if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	// If the file doesn't exist, continue with defaults and environment variables

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "arbihawk")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("database.path", "data/arbihawk.db")
	v.SetDefault("database.backup_dir", "data/backups")

	v.SetDefault("scraper.python_exe", "python3")
	v.SetDefault("scraper.script_dir", "scrapers")
	v.SetDefault("scraper.timeout_seconds", 600)
	v.SetDefault("scraper.max_workers_leagues", 4)
	v.SetDefault("scraper.max_workers_leagues_playwright", 2)
	v.SetDefault("scraper.spawn_rate_per_sec", 2)

	v.SetDefault("matching.min_match_score", 75)
	v.SetDefault("matching.time_tolerance_hours", 24)
	v.SetDefault("matching.synthetic_prefixes", []string{"flashscore", "livescore"})

	v.SetDefault("betting.markets", []string{"1x2", "over_under", "btts"})
	v.SetDefault("betting.fake_money_enabled", true)
	v.SetDefault("betting.auto_bet_after_training", true)
	v.SetDefault("betting.ev_threshold", 0.05)
	v.SetDefault("betting.fixed_stake", 10.0)
	v.SetDefault("betting.limit_per_model", 10)
	v.SetDefault("betting.upcoming_window_hours", 48)
	v.SetDefault("betting.market_margins", map[string]float64{
		"1x2":        0.05,
		"over_under": 0.05,
		"btts":       0.06,
	})

	v.SetDefault("trading.enabled", false)
	v.SetDefault("trading.initial_cash", 100000.0)
	v.SetDefault("trading.strategies", []string{"momentum", "swing", "volatility"})
	v.SetDefault("trading.atr_multiplier", 2.0)
	v.SetDefault("trading.risk_reward", 2.0)
	v.SetDefault("trading.min_risk_reward", 1.5)
	v.SetDefault("trading.max_position_value", 10000.0)
	v.SetDefault("trading.position_size_fraction", 0.1)
	v.SetDefault("trading.max_positions", 10)

	v.SetDefault("models.dir", "data/models")
	v.SetDefault("models.max_versions_to_keep", 5)
	v.SetDefault("models.auto_rollback.enabled", false)
	v.SetDefault("models.auto_rollback.roi_threshold", -0.15)
	v.SetDefault("models.auto_rollback.min_bets", 20)

	v.SetDefault("daemon.interval_minutes", 360)
	v.SetDefault("daemon.trading_interval_minutes", 60)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9180)
	v.SetDefault("metrics.path", "/metrics")
}
