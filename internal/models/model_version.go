package models

import "time"

// Domain is the orthogonal product line a model or task belongs to.
type Domain string

const (
	DomainBetting Domain = "betting"
	DomainTrading Domain = "trading"
)

// ModelVersion is a versioned pointer to a trained model file. Under any
// fixed (domain, market) at most one row is active.
type ModelVersion struct {
	VersionID          string    `db:"version_id" json:"version_id" validate:"required"`
	Domain             Domain    `db:"domain" json:"domain" validate:"required,oneof=betting trading"`
	Market             string    `db:"market" json:"market" validate:"required"`
	ModelPath          string    `db:"model_path" json:"model_path" validate:"required"`
	TrainedAt          time.Time `db:"trained_at" json:"trained_at"`
	TrainingSamples    int       `db:"training_samples" json:"training_samples"`
	CVScore            float64   `db:"cv_score" json:"cv_score"`
	IsActive           bool      `db:"is_active" json:"is_active"`
	PerformanceMetrics string    `db:"performance_metrics" json:"performance_metrics"`
}
