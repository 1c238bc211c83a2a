package store

import (
	"context"
	"fmt"
	"os"
)

// Tables copied by SyncFromProduction: all betting tables plus the shared
// model and audit tables. Trading tables stay local.
var syncTables = []string{
	"fixtures", "odds", "scores", "bet_history",
	"ingestion_metadata", "metrics", "model_versions", "run_history",
}

// SyncFromProduction replaces this store's betting and shared tables with
// the contents of another store file. Destination tables are truncated
// first, so the result is a deterministic function of the source.
func (s *Store) SyncFromProduction(ctx context.Context, sourcePath string) (map[string]int, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		return nil, fmt.Errorf("failed to open sync source %s: %w", sourcePath, err)
	}

	if _, err := s.db.ExecContext(ctx, `ATTACH DATABASE ? AS source`, sourcePath); err != nil {
		return nil, fmt.Errorf("failed to attach sync source %s: %w", sourcePath, err)
	}
	defer s.db.ExecContext(ctx, `DETACH DATABASE source`)

	copied := make(map[string]int, len(syncTables))
	for _, table := range syncTables {
		var exists int
		if err := s.db.GetContext(ctx, &exists,
			`SELECT COUNT(*) FROM source.sqlite_master WHERE type = 'table' AND name = ?`,
			table); err != nil {
			return nil, fmt.Errorf("failed to inspect source schema: %w", err)
		}
		if exists == 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM main.`+table); err != nil {
			return nil, fmt.Errorf("failed to truncate %s before sync: %w", table, err)
		}
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO main.`+table+` SELECT * FROM source.`+table)
		if err != nil {
			return nil, fmt.Errorf("failed to copy %s from source: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to count copied rows for %s: %w", table, err)
		}
		copied[table] = int(n)
	}

	if s.log != nil {
		total := 0
		for _, n := range copied {
			total += n
		}
		s.log.WithField("source", sourcePath).WithField("rows", total).
			Info("Synced from production store")
	}
	return copied, nil
}
