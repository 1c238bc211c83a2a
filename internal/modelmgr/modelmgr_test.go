package modelmgr

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antonkoetzler/arbihawk/internal/models"
)

type stubStore struct {
	versions map[string]*models.ModelVersion
	stats    *models.BankrollStats
}

func newStubStore() *stubStore {
	return &stubStore{versions: make(map[string]*models.ModelVersion)}
}

func (s *stubStore) InsertModelVersion(ctx context.Context, mv *models.ModelVersion) error {
	cp := *mv
	s.versions[mv.VersionID] = &cp
	return nil
}

func (s *stubStore) GetModelVersion(ctx context.Context, versionID string) (*models.ModelVersion, error) {
	if mv, ok := s.versions[versionID]; ok {
		return mv, nil
	}
	return nil, models.ErrNotFound
}

func (s *stubStore) ActiveModelVersion(ctx context.Context, domain models.Domain, market string) (*models.ModelVersion, error) {
	for _, mv := range s.versions {
		if mv.Domain == domain && mv.Market == market && mv.IsActive {
			return mv, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *stubStore) ActivateModelVersion(ctx context.Context, versionID string) error {
	target, ok := s.versions[versionID]
	if !ok {
		return models.ErrNotFound
	}
	for _, mv := range s.versions {
		if mv.Domain == target.Domain && mv.Market == target.Market {
			mv.IsActive = false
		}
	}
	target.IsActive = true
	return nil
}

func (s *stubStore) ListModelVersions(ctx context.Context, domain models.Domain, market string) ([]*models.ModelVersion, error) {
	var out []*models.ModelVersion
	for _, mv := range s.versions {
		if mv.Domain == domain && mv.Market == market {
			out = append(out, mv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrainedAt.After(out[j].TrainedAt) })
	return out, nil
}

func (s *stubStore) PruneModelVersions(ctx context.Context, domain models.Domain, market string, keep int) ([]*models.ModelVersion, error) {
	return nil, nil
}

func (s *stubStore) BankrollStats(ctx context.Context, modelMarket string) (*models.BankrollStats, error) {
	if s.stats != nil {
		return s.stats, nil
	}
	return &models.BankrollStats{}, nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func TestSaveVersionActivates(t *testing.T) {
	store := newStubStore()
	mgr := New(store, nil, 0, false, -0.2, 20, testLogger())
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := mgr.SaveVersion(ctx, models.DomainBetting, "1x2", "/models/m.bin", 100, 0.6, "{}", true)
		require.NoError(t, err)
		ids = append(ids, id)

		// Exactly one active row, and it is the most recent save.
		activeCount := 0
		for _, mv := range store.versions {
			if mv.IsActive {
				activeCount++
				assert.Equal(t, id, mv.VersionID)
			}
		}
		assert.Equal(t, 1, activeCount)
		mgr.cache.Flush()
	}

	// Rolling back to the first version makes it the sole active row.
	require.NoError(t, mgr.RollbackToVersion(ctx, ids[0]))
	active, err := mgr.GetActive(ctx, models.DomainBetting, "1x2")
	require.NoError(t, err)
	assert.Equal(t, ids[0], active.VersionID)
}

func TestGetActiveMemoizes(t *testing.T) {
	store := newStubStore()
	mgr := New(store, nil, 0, false, -0.2, 20, testLogger())
	ctx := context.Background()

	id, err := mgr.SaveVersion(ctx, models.DomainBetting, "1x2", "/models/m.bin", 100, 0.6, "{}", true)
	require.NoError(t, err)

	first, err := mgr.GetActive(ctx, models.DomainBetting, "1x2")
	require.NoError(t, err)

	// Mutating the store behind the cache is not observed until a flush.
	store.versions[id].IsActive = false
	cached, err := mgr.GetActive(ctx, models.DomainBetting, "1x2")
	require.NoError(t, err)
	assert.Equal(t, first.VersionID, cached.VersionID)
}

func TestRollbackBacksUpFirst(t *testing.T) {
	store := newStubStore()
	var label string
	mgr := New(store, func(l string) (string, error) {
		label = l
		return "/backups/x.db", nil
	}, 0, false, -0.2, 20, testLogger())
	ctx := context.Background()

	id, err := mgr.SaveVersion(ctx, models.DomainBetting, "1x2", "/models/m.bin", 100, 0.6, "{}", false)
	require.NoError(t, err)

	require.NoError(t, mgr.RollbackToVersion(ctx, id))
	assert.Equal(t, "pre_rollback", label)
}

func TestCheckShouldRollback(t *testing.T) {
	store := newStubStore()
	mgr := New(store, nil, 0, true, -0.2, 20, testLogger())
	ctx := context.Background()

	old := &models.ModelVersion{
		VersionID: "old", Domain: models.DomainBetting, Market: "1x2",
		TrainedAt: time.Now().Add(-48 * time.Hour),
	}
	current := &models.ModelVersion{
		VersionID: "current", Domain: models.DomainBetting, Market: "1x2",
		TrainedAt: time.Now(), IsActive: true,
	}
	store.versions["old"] = old
	store.versions["current"] = current

	// Healthy ROI: no rollback.
	store.stats = &models.BankrollStats{SettledBets: 50, ROI: 0.1}
	id, err := mgr.CheckShouldRollback(ctx, models.DomainBetting, "1x2")
	require.NoError(t, err)
	assert.Empty(t, id)

	// Bad ROI but not enough settled bets.
	store.stats = &models.BankrollStats{SettledBets: 5, ROI: -0.5}
	id, err = mgr.CheckShouldRollback(ctx, models.DomainBetting, "1x2")
	require.NoError(t, err)
	assert.Empty(t, id)

	// Bad ROI over enough bets suggests the previous version.
	store.stats = &models.BankrollStats{SettledBets: 50, ROI: -0.5}
	id, err = mgr.CheckShouldRollback(ctx, models.DomainBetting, "1x2")
	require.NoError(t, err)
	assert.Equal(t, "old", id)

	// Disabled auto-rollback short-circuits.
	mgr = New(store, nil, 0, false, -0.2, 20, testLogger())
	id, err = mgr.CheckShouldRollback(ctx, models.DomainBetting, "1x2")
	require.NoError(t, err)
	assert.Empty(t, id)
}
