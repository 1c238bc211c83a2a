package store

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// migration is one rung of the schema ladder. Steps are idempotent: each
// inspects the current schema before attempting DDL, and the version row is
// recorded only after the DDL succeeds.
type migration struct {
	version int
	name    string
	apply   func(tx *sqlx.Tx) error
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create schema_version: %w", err)
	}

	var current int
	if err := s.db.Get(&current, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range ladder {
		if m.version <= current {
			continue
		}
		tx, err := s.db.Beginx()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}
		if err := m.apply(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`,
			m.version, fmtTime(time.Now())); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
		if s.log != nil {
			s.log.WithField("version", m.version).Infof("Applied migration: %s", m.name)
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	if err := s.db.Get(&v, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

func tableExists(tx *sqlx.Tx, name string) (bool, error) {
	var n int
	err := tx.Get(&n, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name)
	return n > 0, err
}

func columnExists(tx *sqlx.Tx, table, column string) (bool, error) {
	rows, err := tx.Queryx(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    interface{}
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func createIfMissing(tx *sqlx.Tx, table, ddl string) error {
	exists, err := tableExists(tx, table)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = tx.Exec(ddl)
	return err
}

var ladder = []migration{
	{1, "betting core tables", migrateV1},
	{2, "bet history, model versions, metrics, ingestion metadata", migrateV2},
	{3, "model_market column on bet_history", migrateV3},
	{4, "dismissed flag on ingestion_metadata", migrateV4},
	{5, "model domain column and composite indexes", migrateV5},
	{6, "trading tables", migrateV6},
	{7, "run history", migrateV7},
}

func migrateV1(tx *sqlx.Tx) error {
	if err := createIfMissing(tx, "fixtures", `CREATE TABLE fixtures (
		fixture_id TEXT PRIMARY KEY,
		tournament_id TEXT,
		tournament_name TEXT,
		home_team_id TEXT,
		home_team_name TEXT NOT NULL,
		away_team_id TEXT,
		away_team_name TEXT NOT NULL,
		start_time TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'scheduled',
		created_at TEXT NOT NULL
	)`); err != nil {
		return err
	}
	if err := createIfMissing(tx, "odds", `CREATE TABLE odds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fixture_id TEXT NOT NULL REFERENCES fixtures(fixture_id),
		bookmaker_id TEXT NOT NULL,
		bookmaker_name TEXT,
		market_id TEXT NOT NULL,
		market_name TEXT,
		outcome_id TEXT NOT NULL,
		outcome_name TEXT,
		odds_value REAL NOT NULL CHECK (odds_value > 1.0),
		created_at TEXT NOT NULL,
		UNIQUE (fixture_id, bookmaker_id, market_id, outcome_id)
	)`); err != nil {
		return err
	}
	if err := createIfMissing(tx, "scores", `CREATE TABLE scores (
		fixture_id TEXT PRIMARY KEY,
		home_score INTEGER NOT NULL,
		away_score INTEGER NOT NULL,
		status TEXT,
		updated_at TEXT NOT NULL
	)`); err != nil {
		return err
	}
	for _, idx := range []string{
		`CREATE INDEX IF NOT EXISTS idx_fixtures_start_time ON fixtures(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_fixtures_tournament ON fixtures(tournament_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fixtures_teams_time ON fixtures(home_team_name, away_team_name, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_fixtures_home_team ON fixtures(home_team_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fixtures_away_team ON fixtures(away_team_id)`,
		`CREATE INDEX IF NOT EXISTS idx_odds_fixture ON odds(fixture_id)`,
		`CREATE INDEX IF NOT EXISTS idx_odds_bookmaker ON odds(bookmaker_id)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_fixture ON scores(fixture_id)`,
	} {
		if _, err := tx.Exec(idx); err != nil {
			return err
		}
	}
	return nil
}

func migrateV2(tx *sqlx.Tx) error {
	if err := createIfMissing(tx, "bet_history", `CREATE TABLE bet_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fixture_id TEXT NOT NULL,
		market_id TEXT NOT NULL,
		market_name TEXT,
		outcome_id TEXT NOT NULL,
		outcome_name TEXT,
		odds REAL NOT NULL,
		stake REAL NOT NULL,
		placed_at TEXT NOT NULL,
		settled_at TEXT,
		result TEXT NOT NULL DEFAULT 'pending',
		payout REAL NOT NULL DEFAULT 0
	)`); err != nil {
		return err
	}
	if err := createIfMissing(tx, "model_versions", `CREATE TABLE model_versions (
		version_id TEXT PRIMARY KEY,
		market TEXT NOT NULL,
		model_path TEXT NOT NULL,
		trained_at TEXT NOT NULL,
		training_samples INTEGER NOT NULL DEFAULT 0,
		cv_score REAL NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 0,
		performance_metrics TEXT NOT NULL DEFAULT '{}'
	)`); err != nil {
		return err
	}
	if err := createIfMissing(tx, "metrics", `CREATE TABLE metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		value REAL NOT NULL,
		recorded_at TEXT NOT NULL
	)`); err != nil {
		return err
	}
	if err := createIfMissing(tx, "ingestion_metadata", `CREATE TABLE ingestion_metadata (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		ingested_at TEXT NOT NULL,
		records_count INTEGER NOT NULL DEFAULT 0,
		checksum TEXT NOT NULL,
		validation_status TEXT NOT NULL,
		errors TEXT NOT NULL DEFAULT ''
	)`); err != nil {
		return err
	}
	for _, idx := range []string{
		`CREATE INDEX IF NOT EXISTS idx_bets_fixture ON bet_history(fixture_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bets_result ON bet_history(result)`,
		`CREATE INDEX IF NOT EXISTS idx_ingestion_checksum ON ingestion_metadata(source, checksum)`,
	} {
		if _, err := tx.Exec(idx); err != nil {
			return err
		}
	}
	return nil
}

func migrateV3(tx *sqlx.Tx) error {
	exists, err := columnExists(tx, "bet_history", "model_market")
	if err != nil {
		return err
	}
	if !exists {
		if _, err := tx.Exec(`ALTER TABLE bet_history ADD COLUMN model_market TEXT NOT NULL DEFAULT ''`); err != nil {
			return err
		}
	}
	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_bets_model_market ON bet_history(model_market)`)
	return err
}

func migrateV4(tx *sqlx.Tx) error {
	exists, err := columnExists(tx, "ingestion_metadata", "dismissed")
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = tx.Exec(`ALTER TABLE ingestion_metadata ADD COLUMN dismissed INTEGER NOT NULL DEFAULT 0`)
	return err
}

func migrateV5(tx *sqlx.Tx) error {
	exists, err := columnExists(tx, "model_versions", "domain")
	if err != nil {
		return err
	}
	if !exists {
		if _, err := tx.Exec(`ALTER TABLE model_versions ADD COLUMN domain TEXT NOT NULL DEFAULT 'betting'`); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE model_versions SET domain = 'betting' WHERE domain = '' OR domain IS NULL`); err != nil {
			return err
		}
	}
	for _, idx := range []string{
		`CREATE INDEX IF NOT EXISTS idx_models_domain_market ON model_versions(domain, market)`,
		`CREATE INDEX IF NOT EXISTS idx_models_domain_market_active ON model_versions(domain, market, is_active)`,
	} {
		if _, err := tx.Exec(idx); err != nil {
			return err
		}
	}
	return nil
}

func migrateV6(tx *sqlx.Tx) error {
	if err := createIfMissing(tx, "stocks", `CREATE TABLE stocks (
		symbol TEXT PRIMARY KEY,
		name TEXT,
		sector TEXT,
		market_cap REAL NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	)`); err != nil {
		return err
	}
	if err := createIfMissing(tx, "crypto", `CREATE TABLE crypto (
		symbol TEXT PRIMARY KEY,
		name TEXT,
		updated_at TEXT NOT NULL
	)`); err != nil {
		return err
	}
	if err := createIfMissing(tx, "price_history", `CREATE TABLE price_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		asset_type TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL DEFAULT 0,
		UNIQUE (symbol, asset_type, timestamp)
	)`); err != nil {
		return err
	}
	if err := createIfMissing(tx, "indicators", `CREATE TABLE indicators (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		asset_type TEXT NOT NULL,
		name TEXT NOT NULL,
		value REAL NOT NULL,
		computed_at TEXT NOT NULL,
		UNIQUE (symbol, asset_type, name)
	)`); err != nil {
		return err
	}
	if err := createIfMissing(tx, "trades", `CREATE TABLE trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		asset_type TEXT NOT NULL,
		trade_type TEXT NOT NULL,
		quantity REAL NOT NULL,
		price REAL NOT NULL,
		total_cost REAL NOT NULL,
		pnl REAL NOT NULL DEFAULT 0,
		strategy TEXT,
		timestamp TEXT NOT NULL
	)`); err != nil {
		return err
	}
	if err := createIfMissing(tx, "positions", `CREATE TABLE positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		asset_type TEXT NOT NULL,
		quantity REAL NOT NULL,
		avg_entry_price REAL NOT NULL,
		current_price REAL NOT NULL,
		unrealized_pnl REAL NOT NULL DEFAULT 0,
		strategy TEXT,
		stop_loss REAL NOT NULL DEFAULT 0,
		take_profit REAL NOT NULL DEFAULT 0,
		opened_at TEXT NOT NULL,
		UNIQUE (symbol, asset_type)
	)`); err != nil {
		return err
	}
	if err := createIfMissing(tx, "portfolio", `CREATE TABLE portfolio (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cash_balance REAL NOT NULL,
		total_position_value REAL NOT NULL,
		total_portfolio_value REAL NOT NULL,
		unrealized_pnl REAL NOT NULL DEFAULT 0,
		realized_pnl REAL NOT NULL DEFAULT 0,
		timestamp TEXT NOT NULL
	)`); err != nil {
		return err
	}
	_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_price_history_lookup ON price_history(symbol, asset_type, timestamp)`)
	return err
}

func migrateV7(tx *sqlx.Tx) error {
	if err := createIfMissing(tx, "run_history", `CREATE TABLE run_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_type TEXT NOT NULL,
		domain TEXT NOT NULL DEFAULT 'betting',
		started_at TEXT NOT NULL,
		completed_at TEXT,
		duration_seconds REAL NOT NULL DEFAULT 0,
		success INTEGER NOT NULL DEFAULT 0,
		stopped INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		skip_reason TEXT NOT NULL DEFAULT '',
		result_data TEXT NOT NULL DEFAULT '{}',
		errors TEXT NOT NULL DEFAULT '[]'
	)`); err != nil {
		return err
	}
	_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_type_started ON run_history(run_type, started_at)`)
	return err
}
