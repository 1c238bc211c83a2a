package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/antonkoetzler/arbihawk/internal/models"
)

type runRow struct {
	ID              int64          `db:"id"`
	RunType         string         `db:"run_type"`
	Domain          string         `db:"domain"`
	StartedAt       string         `db:"started_at"`
	CompletedAt     sql.NullString `db:"completed_at"`
	DurationSeconds float64        `db:"duration_seconds"`
	Success         bool           `db:"success"`
	Stopped         bool           `db:"stopped"`
	Skipped         bool           `db:"skipped"`
	SkipReason      string         `db:"skip_reason"`
	ResultData      string         `db:"result_data"`
	Errors          string         `db:"errors"`
}

func (r runRow) toModel() *models.Run {
	return &models.Run{
		ID:              r.ID,
		RunType:         r.RunType,
		Domain:          models.Domain(r.Domain),
		StartedAt:       parseTime(r.StartedAt),
		CompletedAt:     parseTimePtr(r.CompletedAt),
		DurationSeconds: r.DurationSeconds,
		Success:         r.Success,
		Stopped:         r.Stopped,
		Skipped:         r.Skipped,
		SkipReason:      r.SkipReason,
		ResultData:      r.ResultData,
		Errors:          r.Errors,
	}
}

const runColumns = `id, run_type, domain, started_at, completed_at, duration_seconds,
	success, stopped, skipped, COALESCE(skip_reason,'') AS skip_reason,
	COALESCE(result_data,'{}') AS result_data, COALESCE(errors,'[]') AS errors`

// InsertRun appends one run-history audit row and returns its id. A failed
// insert must never fail the run itself, so callers log and continue.
func (s *Store) InsertRun(ctx context.Context, run *models.Run) (int64, error) {
	resultData := run.ResultData
	if resultData == "" {
		resultData = "{}"
	}
	errorsJSON := run.Errors
	if errorsJSON == "" {
		errorsJSON = "[]"
	}
	startedAt := run.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	var completedAt interface{}
	if run.CompletedAt != nil {
		completedAt = fmtTime(*run.CompletedAt)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO run_history (run_type, domain, started_at, completed_at, duration_seconds,
			success, stopped, skipped, skip_reason, result_data, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunType, string(run.Domain), fmtTime(startedAt), completedAt,
		run.DurationSeconds, run.Success, run.Stopped, run.Skipped,
		run.SkipReason, resultData, errorsJSON)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run history for %s: %w", run.RunType, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}
	return id, nil
}

// RecentRuns returns up to limit run rows, newest first. An empty runType
// matches all run types.
func (s *Store) RecentRuns(ctx context.Context, runType string, limit int) ([]*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM run_history`
	args := []interface{}{}
	if runType != "" {
		query += ` WHERE run_type = ?`
		args = append(args, runType)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}
	out := make([]*models.Run, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}
