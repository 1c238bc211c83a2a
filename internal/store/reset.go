package store

import (
	"context"
	"fmt"
	"strings"
)

// ResetReport summarizes one destructive reset.
type ResetReport struct {
	BackupPath     string         `json:"backup_path"`
	RecordsDeleted map[string]int `json:"records_deleted"`
	TotalDeleted   int            `json:"total_deleted"`
}

// Truncation orders. Children before parents so foreign keys never dangle
// mid-reset even though enforcement is off.
var (
	bettingTables = []string{"bet_history", "odds", "scores", "fixtures", "ingestion_metadata", "metrics"}
	tradingTables = []string{"trades", "positions", "indicators", "price_history", "portfolio", "stocks", "crypto"}
	sharedTables  = []string{"run_history", "model_versions"}
)

// ResetBettingDomain wipes all betting tables. A backup is taken first; if
// the backup fails the reset does not proceed.
func (s *Store) ResetBettingDomain(ctx context.Context) (*ResetReport, error) {
	return s.reset(ctx, "pre_betting_reset", bettingTables)
}

// ResetTradingDomain wipes all trading tables.
func (s *Store) ResetTradingDomain(ctx context.Context) (*ResetReport, error) {
	return s.reset(ctx, "pre_trading_reset", tradingTables)
}

// ResetDatabase wipes every domain table. With preserveModels set, the
// model_versions table survives.
func (s *Store) ResetDatabase(ctx context.Context, preserveModels bool) (*ResetReport, error) {
	tables := make([]string, 0, len(bettingTables)+len(tradingTables)+len(sharedTables))
	tables = append(tables, bettingTables...)
	tables = append(tables, tradingTables...)
	for _, t := range sharedTables {
		if preserveModels && t == "model_versions" {
			continue
		}
		tables = append(tables, t)
	}
	return s.reset(ctx, "pre_full_reset", tables)
}

func (s *Store) reset(ctx context.Context, backupLabel string, tables []string) (*ResetReport, error) {
	if s.backupFn == nil {
		return nil, fmt.Errorf("failed to reset: no backup function configured")
	}
	backupPath, err := s.backupFn(backupLabel)
	if err != nil {
		return nil, fmt.Errorf("failed to back up before reset: %w", err)
	}

	report := &ResetReport{
		BackupPath:     backupPath,
		RecordsDeleted: make(map[string]int, len(tables)),
	}

	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = OFF`); err != nil {
		return nil, fmt.Errorf("failed to disable foreign keys: %w", err)
	}
	resetErr := func() error {
		for _, table := range tables {
			var count int
			if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM `+table); err != nil {
				return fmt.Errorf("failed to count rows in %s: %w", table, err)
			}
			if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return fmt.Errorf("failed to truncate %s: %w", table, err)
			}
			report.RecordsDeleted[table] = count
			report.TotalDeleted += count
		}
		// Reset autoincrement counters for the wiped tables.
		placeholders := strings.Repeat("?,", len(tables))
		args := make([]interface{}, len(tables))
		for i, t := range tables {
			args[i] = t
		}
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM sqlite_sequence WHERE name IN (`+placeholders[:len(placeholders)-1]+`)`,
			args...); err != nil {
			// sqlite_sequence only exists once an AUTOINCREMENT table has
			// been written to.
			if !strings.Contains(err.Error(), "no such table") {
				return fmt.Errorf("failed to reset autoincrement counters: %w", err)
			}
		}
		return nil
	}()
	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil && resetErr == nil {
		resetErr = fmt.Errorf("failed to re-enable foreign keys: %w", err)
	}
	if resetErr != nil {
		return nil, resetErr
	}

	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return nil, fmt.Errorf("failed to vacuum after reset: %w", err)
	}

	if s.log != nil {
		s.log.WithField("total_deleted", report.TotalDeleted).
			WithField("backup", report.BackupPath).
			Info("Database reset complete")
	}
	return report, nil
}
