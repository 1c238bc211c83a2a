package store

import (
	"context"
	"fmt"
	"time"

	"github.com/antonkoetzler/arbihawk/internal/models"
)

type ingestionMetaRow struct {
	ID               int64  `db:"id"`
	Source           string `db:"source"`
	IngestedAt       string `db:"ingested_at"`
	RecordsCount     int    `db:"records_count"`
	Checksum         string `db:"checksum"`
	ValidationStatus string `db:"validation_status"`
	Errors           string `db:"errors"`
	Dismissed        bool   `db:"dismissed"`
}

func (r ingestionMetaRow) toModel() *models.IngestionMeta {
	return &models.IngestionMeta{
		ID:               r.ID,
		Source:           r.Source,
		IngestedAt:       parseTime(r.IngestedAt),
		RecordsCount:     r.RecordsCount,
		Checksum:         r.Checksum,
		ValidationStatus: models.ValidationStatus(r.ValidationStatus),
		Errors:           r.Errors,
		Dismissed:        r.Dismissed,
	}
}

const ingestionMetaColumns = `id, source, ingested_at, records_count, checksum,
	validation_status, COALESCE(errors,'') AS errors, dismissed`

// InsertIngestionMeta appends one per-payload audit row and returns its id.
func (s *Store) InsertIngestionMeta(ctx context.Context, m *models.IngestionMeta) (int64, error) {
	ingestedAt := m.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_metadata (source, ingested_at, records_count, checksum, validation_status, errors, dismissed)
		VALUES (?, ?, ?, ?, ?, ?, 0)`,
		m.Source, fmtTime(ingestedAt), m.RecordsCount, m.Checksum,
		string(m.ValidationStatus), m.Errors)
	if err != nil {
		return 0, fmt.Errorf("failed to insert ingestion metadata for %s: %w", m.Source, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read ingestion metadata id: %w", err)
	}
	return id, nil
}

// ChecksumExists reports whether a successfully ingested payload with the
// same (source, checksum) pair is already recorded. Failed and dismissed
// rows do not block re-ingestion.
func (s *Store) ChecksumExists(ctx context.Context, source, checksum string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM ingestion_metadata
		WHERE source = ? AND checksum = ? AND validation_status = 'success' AND dismissed = 0`,
		source, checksum)
	if err != nil {
		return false, fmt.Errorf("failed to check ingestion checksum for %s: %w", source, err)
	}
	return n > 0, nil
}

// DismissIngestion marks an audit row dismissed so its checksum no longer
// blocks re-ingestion. Returns false when the id does not exist.
func (s *Store) DismissIngestion(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingestion_metadata SET dismissed = 1 WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to dismiss ingestion %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read dismiss result for %d: %w", id, err)
	}
	return affected > 0, nil
}

// RecentIngestions returns up to limit audit rows, newest first.
func (s *Store) RecentIngestions(ctx context.Context, limit int) ([]*models.IngestionMeta, error) {
	var rows []ingestionMetaRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+ingestionMetaColumns+` FROM ingestion_metadata
		 ORDER BY ingested_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingestion metadata: %w", err)
	}
	out := make([]*models.IngestionMeta, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}
