package models

import "time"

// Run is one row of the append-only run-history audit log. It is never
// consulted by data-plane logic.
type Run struct {
	ID              int64      `db:"id" json:"id"`
	RunType         string     `db:"run_type" json:"run_type" validate:"required"`
	Domain          Domain     `db:"domain" json:"domain"`
	StartedAt       time.Time  `db:"started_at" json:"started_at"`
	CompletedAt     *time.Time `db:"completed_at" json:"completed_at"`
	DurationSeconds float64    `db:"duration_seconds" json:"duration_seconds"`
	Success         bool       `db:"success" json:"success"`
	Stopped         bool       `db:"stopped" json:"stopped"`
	Skipped         bool       `db:"skipped" json:"skipped"`
	SkipReason      string     `db:"skip_reason" json:"skip_reason"`
	ResultData      string     `db:"result_data" json:"result_data"`
	Errors          string     `db:"errors" json:"errors"`
}
