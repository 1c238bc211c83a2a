package models

import "time"

// ValidationStatus records how an ingested payload fared.
type ValidationStatus string

const (
	ValidationSuccess ValidationStatus = "success"
	ValidationFailed  ValidationStatus = "validation_failed"
	ValidationError   ValidationStatus = "error"
	ValidationDupe    ValidationStatus = "duplicate"
)

// IngestionMeta is the per-payload audit row. The (source, checksum) pair is
// the basis of deduplication: a repeated pair is rejected without data-plane
// writes.
type IngestionMeta struct {
	ID               int64            `db:"id" json:"id"`
	Source           string           `db:"source" json:"source" validate:"required"`
	IngestedAt       time.Time        `db:"ingested_at" json:"ingested_at"`
	RecordsCount     int              `db:"records_count" json:"records_count"`
	Checksum         string           `db:"checksum" json:"checksum"`
	ValidationStatus ValidationStatus `db:"validation_status" json:"validation_status"`
	Errors           string           `db:"errors" json:"errors"`
	Dismissed        bool             `db:"dismissed" json:"dismissed"`
}
