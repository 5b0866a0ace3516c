package models

import "time"

// ReportResult describes one workbook written by a report run.
type ReportResult struct {
	Profile     string    `json:"profile"`
	AccountID   string    `json:"account_id"`
	Alias       string    `json:"alias"`
	Month       string    `json:"month"` // YYYYMM
	Path        string    `json:"path"`
	S3URI       string    `json:"s3_uri,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`

	// Records is the number of detail rows written after the merge.
	Records int `json:"records"`
	// KeptRows is the number of existing detail rows carried over unchanged.
	KeptRows int `json:"kept_rows"`
	// ReplacedRows is the number of existing detail rows superseded by the
	// fresh query.
	ReplacedRows int `json:"replaced_rows"`
	// Events is the number of rows on the events sheet, when written.
	Events int `json:"events,omitempty"`

	Summary CostSummary `json:"summary"`
}
