package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/antonkoetzler/arbihawk/internal/models"
)

type modelVersionRow struct {
	VersionID          string  `db:"version_id"`
	Domain             string  `db:"domain"`
	Market             string  `db:"market"`
	ModelPath          string  `db:"model_path"`
	TrainedAt          string  `db:"trained_at"`
	TrainingSamples    int     `db:"training_samples"`
	CVScore            float64 `db:"cv_score"`
	IsActive           bool    `db:"is_active"`
	PerformanceMetrics string  `db:"performance_metrics"`
}

func (r modelVersionRow) toModel() *models.ModelVersion {
	return &models.ModelVersion{
		VersionID:          r.VersionID,
		Domain:             models.Domain(r.Domain),
		Market:             r.Market,
		ModelPath:          r.ModelPath,
		TrainedAt:          parseTime(r.TrainedAt),
		TrainingSamples:    r.TrainingSamples,
		CVScore:            r.CVScore,
		IsActive:           r.IsActive,
		PerformanceMetrics: r.PerformanceMetrics,
	}
}

const modelVersionColumns = `version_id, domain, market, model_path, trained_at,
	training_samples, cv_score, is_active, COALESCE(performance_metrics,'{}') AS performance_metrics`

// InsertModelVersion registers a newly trained model. The row starts
// inactive; activation is a separate, exclusive step.
func (s *Store) InsertModelVersion(ctx context.Context, mv *models.ModelVersion) error {
	metrics := mv.PerformanceMetrics
	if metrics == "" {
		metrics = "{}"
	}
	trainedAt := mv.TrainedAt
	if trainedAt.IsZero() {
		trainedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO model_versions (version_id, domain, market, model_path, trained_at,
			training_samples, cv_score, is_active, performance_metrics)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		mv.VersionID, string(mv.Domain), mv.Market, mv.ModelPath, fmtTime(trainedAt),
		mv.TrainingSamples, mv.CVScore, metrics)
	if err != nil {
		return fmt.Errorf("failed to insert model version %s: %w", mv.VersionID, err)
	}
	return nil
}

// GetModelVersion retrieves one model version by id.
func (s *Store) GetModelVersion(ctx context.Context, versionID string) (*models.ModelVersion, error) {
	var row modelVersionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+modelVersionColumns+` FROM model_versions WHERE version_id = ?`, versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model version %s: %w", versionID, err)
	}
	return row.toModel(), nil
}

// ActiveModelVersion returns the single active model for a (domain, market)
// pair, or ErrNotFound when none is active.
func (s *Store) ActiveModelVersion(ctx context.Context, domain models.Domain, market string) (*models.ModelVersion, error) {
	var row modelVersionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+modelVersionColumns+` FROM model_versions
		 WHERE domain = ? AND market = ? AND is_active = 1`,
		string(domain), market)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active model for %s/%s: %w", domain, market, err)
	}
	return row.toModel(), nil
}

// ActivateModelVersion makes versionID the single active model of its
// (domain, market) pair. Deactivation of siblings and activation happen in
// one transaction so the exclusivity invariant never observably breaks.
func (s *Store) ActivateModelVersion(ctx context.Context, versionID string) error {
	return s.InTx(ctx, func(tx *sqlx.Tx) error {
		var row modelVersionRow
		err := tx.GetContext(ctx, &row,
			`SELECT `+modelVersionColumns+` FROM model_versions WHERE version_id = ?`, versionID)
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load model version %s: %w", versionID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE model_versions SET is_active = 0 WHERE domain = ? AND market = ?`,
			row.Domain, row.Market); err != nil {
			return fmt.Errorf("failed to deactivate models for %s/%s: %w", row.Domain, row.Market, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE model_versions SET is_active = 1 WHERE version_id = ?`, versionID); err != nil {
			return fmt.Errorf("failed to activate model %s: %w", versionID, err)
		}
		return nil
	})
}

// ListModelVersions returns all versions for a (domain, market) pair, newest
// first.
func (s *Store) ListModelVersions(ctx context.Context, domain models.Domain, market string) ([]*models.ModelVersion, error) {
	var rows []modelVersionRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+modelVersionColumns+` FROM model_versions
		 WHERE domain = ? AND market = ?
		 ORDER BY trained_at DESC, version_id DESC`,
		string(domain), market)
	if err != nil {
		return nil, fmt.Errorf("failed to list model versions for %s/%s: %w", domain, market, err)
	}
	out := make([]*models.ModelVersion, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// PruneModelVersions deletes inactive versions beyond the keep newest ones
// for a (domain, market) pair and returns the pruned versions so the caller
// can remove their files.
func (s *Store) PruneModelVersions(ctx context.Context, domain models.Domain, market string, keep int) ([]*models.ModelVersion, error) {
	var rows []modelVersionRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+modelVersionColumns+` FROM model_versions
		 WHERE domain = ? AND market = ? AND is_active = 0
		 ORDER BY trained_at DESC, version_id DESC`,
		string(domain), market)
	if err != nil {
		return nil, fmt.Errorf("failed to list prunable models for %s/%s: %w", domain, market, err)
	}
	if len(rows) <= keep {
		return nil, nil
	}
	var pruned []*models.ModelVersion
	for _, r := range rows[keep:] {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM model_versions WHERE version_id = ?`, r.VersionID); err != nil {
			return pruned, fmt.Errorf("failed to prune model %s: %w", r.VersionID, err)
		}
		pruned = append(pruned, r.toModel())
	}
	return pruned, nil
}
