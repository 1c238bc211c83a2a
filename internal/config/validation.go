package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for completeness and consistency.
func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.RegisterValidation("environment", validateEnvironment); err != nil {
		return fmt.Errorf("failed to register environment validator: %w", err)
	}
	if err := validate.RegisterValidation("loglevel", validateLogLevel); err != nil {
		return fmt.Errorf("failed to register loglevel validator: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			var messages []string
			for _, e := range errs {
				messages = append(messages, fmt.Sprintf("%s failed on '%s'", e.Namespace(), e.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(messages, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	for market, margin := range cfg.Betting.MarketMargins {
		if margin < 0 || margin >= 1 {
			return fmt.Errorf("invalid configuration: market margin for %s must be in [0,1), got %v", market, margin)
		}
	}

	for strategy, conf := range cfg.Trading.StrategyMinConfidence {
		if conf < 0 || conf > 1 {
			return fmt.Errorf("invalid configuration: min confidence for %s must be in [0,1], got %v", strategy, conf)
		}
	}

	return nil
}

func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	}
	return false
}

func validateLogLevel(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
		return true
	}
	return false
}
