// Package modelmgr manages versioned model rows: registration, exclusive
// activation, retention, and performance-driven rollback.
package modelmgr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/antonkoetzler/arbihawk/internal/metrics"
	"github.com/antonkoetzler/arbihawk/internal/models"
)

// Store is the slice of the data layer the manager needs.
type Store interface {
	InsertModelVersion(ctx context.Context, mv *models.ModelVersion) error
	GetModelVersion(ctx context.Context, versionID string) (*models.ModelVersion, error)
	ActiveModelVersion(ctx context.Context, domain models.Domain, market string) (*models.ModelVersion, error)
	ActivateModelVersion(ctx context.Context, versionID string) error
	ListModelVersions(ctx context.Context, domain models.Domain, market string) ([]*models.ModelVersion, error)
	PruneModelVersions(ctx context.Context, domain models.Domain, market string, keep int) ([]*models.ModelVersion, error)
	BankrollStats(ctx context.Context, modelMarket string) (*models.BankrollStats, error)
}

// BackupFunc is invoked before rollbacks.
type BackupFunc func(label string) (string, error)

// Manager owns model-version rows.
type Manager struct {
	store             Store
	backupFn          BackupFunc
	maxVersionsToKeep int
	autoRollback      bool
	rollbackThreshold float64
	minBets           int
	cache             *gocache.Cache
	log               *logrus.Logger
}

const activeCacheTTL = time.Minute

// New creates a model-version manager. rollbackThreshold is the (negative)
// ROI below which CheckShouldRollback suggests the previous version; minBets
// is the settled-bet count required before ROI is trusted.
func New(store Store, backupFn BackupFunc, maxVersionsToKeep int, autoRollback bool, rollbackThreshold float64, minBets int, log *logrus.Logger) *Manager {
	return &Manager{
		store:             store,
		backupFn:          backupFn,
		maxVersionsToKeep: maxVersionsToKeep,
		autoRollback:      autoRollback,
		rollbackThreshold: rollbackThreshold,
		minBets:           minBets,
		cache:             gocache.New(activeCacheTTL, 5*time.Minute),
		log:               log,
	}
}

// SaveVersion registers a trained model and returns its generated version
// id. With activate set, the new version becomes the active one for its
// (domain, market). Retention is enforced afterwards.
func (m *Manager) SaveVersion(ctx context.Context, domain models.Domain, market, modelPath string, trainingSamples int, cvScore float64, performanceMetrics string, activate bool) (string, error) {
	versionID := uuid.NewString()
	mv := &models.ModelVersion{
		VersionID:          versionID,
		Domain:             domain,
		Market:             market,
		ModelPath:          modelPath,
		TrainedAt:          time.Now(),
		TrainingSamples:    trainingSamples,
		CVScore:            cvScore,
		PerformanceMetrics: performanceMetrics,
	}
	if err := m.store.InsertModelVersion(ctx, mv); err != nil {
		return "", fmt.Errorf("failed to save model version: %w", err)
	}
	if activate {
		if err := m.SetActive(ctx, versionID); err != nil {
			return "", err
		}
	}
	if m.maxVersionsToKeep > 0 {
		pruned, err := m.store.PruneModelVersions(ctx, domain, market, m.maxVersionsToKeep)
		if err != nil && m.log != nil {
			m.log.WithError(err).Warn("Failed to prune old model versions")
		}
		if len(pruned) > 0 && m.log != nil {
			m.log.WithField("count", len(pruned)).Info("Pruned old model versions")
		}
	}
	return versionID, nil
}

// SetActive makes versionID the single active model of its (domain, market).
func (m *Manager) SetActive(ctx context.Context, versionID string) error {
	if err := m.store.ActivateModelVersion(ctx, versionID); err != nil {
		return fmt.Errorf("failed to activate model %s: %w", versionID, err)
	}
	m.cache.Flush()
	return nil
}

// GetActive returns the active model for a (domain, market) pair, memoized
// briefly so the betting loop does not hammer the store.
func (m *Manager) GetActive(ctx context.Context, domain models.Domain, market string) (*models.ModelVersion, error) {
	key := string(domain) + "/" + market
	if cached, ok := m.cache.Get(key); ok {
		return cached.(*models.ModelVersion), nil
	}
	mv, err := m.store.ActiveModelVersion(ctx, domain, market)
	if err != nil {
		return nil, err
	}
	m.cache.Set(key, mv, gocache.DefaultExpiration)
	return mv, nil
}

// RollbackToVersion backs up the database and re-activates an older version.
func (m *Manager) RollbackToVersion(ctx context.Context, versionID string) error {
	mv, err := m.store.GetModelVersion(ctx, versionID)
	if err != nil {
		return fmt.Errorf("failed to load rollback target %s: %w", versionID, err)
	}
	if m.backupFn != nil {
		if _, err := m.backupFn("pre_rollback"); err != nil {
			return fmt.Errorf("failed to back up before rollback: %w", err)
		}
	}
	if err := m.SetActive(ctx, versionID); err != nil {
		return err
	}
	metrics.RecordModelRollback()
	if m.log != nil {
		m.log.WithFields(logrus.Fields{
			"version": versionID, "domain": mv.Domain, "market": mv.Market,
		}).Warn("Rolled back model version")
	}
	return nil
}

// CheckShouldRollback inspects bankroll performance for a market and, when
// automatic rollback is enabled and ROI has fallen below the threshold over
// at least minBets settled bets, returns the version id to roll back to.
// Returns "" when no rollback is warranted.
func (m *Manager) CheckShouldRollback(ctx context.Context, domain models.Domain, market string) (string, error) {
	if !m.autoRollback {
		return "", nil
	}
	stats, err := m.store.BankrollStats(ctx, market)
	if err != nil {
		return "", fmt.Errorf("failed to load bankroll stats for %s: %w", market, err)
	}
	if stats.SettledBets < m.minBets || stats.ROI >= m.rollbackThreshold {
		return "", nil
	}

	active, err := m.store.ActiveModelVersion(ctx, domain, market)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	versions, err := m.store.ListModelVersions(ctx, domain, market)
	if err != nil {
		return "", fmt.Errorf("failed to list model versions for %s: %w", market, err)
	}
	// Versions come newest first; the previous version is the first row
	// trained before the active one.
	for _, mv := range versions {
		if mv.VersionID == active.VersionID {
			continue
		}
		if !mv.TrainedAt.After(active.TrainedAt) {
			if m.log != nil {
				m.log.WithFields(logrus.Fields{
					"market": market, "roi": stats.ROI, "candidate": mv.VersionID,
				}).Warn("Model underperforming, rollback suggested")
			}
			return mv.VersionID, nil
		}
	}
	return "", nil
}
