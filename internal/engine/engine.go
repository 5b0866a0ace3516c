package engine

import (
	"context"
	"time"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/billing"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/models"
)

// ReportFormat controls the CLI output format.
type ReportFormat string

const (
	ReportFormatJSON  ReportFormat = "json"
	ReportFormatTable ReportFormat = "table"
)

// ReportOptions configures a single report run.
// It is the sole input to Engine.RunReport.
type ReportOptions struct {
	// Profile is the named AWS profile to use. Empty means the default profile.
	Profile string

	// AllProfiles, when true, writes one workbook per configured AWS account.
	AllProfiles bool

	// Date is the day the report is generated for; the billing period is
	// derived from it. Zero means today.
	Date time.Time

	// OutputDir overrides the configured output directory when non-empty.
	OutputDir string

	// Mock replaces every AWS call with the offline dataset. Publishing is
	// disabled in mock mode.
	Mock bool

	// Events adds the CloudTrail instance events sheet.
	Events bool

	// Regions limits the CloudTrail lookup. Empty means the configured
	// regions, or every active region when none are configured.
	Regions []string

	// S3Bucket and S3Prefix, when the bucket is set, upload the finished
	// workbook.
	S3Bucket string
	S3Prefix string

	// PublishMetric sends the month-to-date total to CloudWatch.
	PublishMetric bool
}

// EventsOptions configures an events-only run.
type EventsOptions struct {
	Profile   string
	Date      time.Time
	OutputDir string
	Mock      bool
	Regions   []string
}

// Engine is the central orchestration interface.
// It coordinates cost and event collection, workbook rendering, and
// publishing, returning one ReportResult per workbook written.
//
// Engine must not call the AWS SDK directly; it delegates to the provider,
// collector, and publisher interfaces.
type Engine interface {
	RunReport(ctx context.Context, opts ReportOptions) ([]models.ReportResult, error)
	RunEvents(ctx context.Context, opts EventsOptions) (*models.ReportResult, error)
}

// Publisher ships a saved workbook and its totals. It is satisfied by
// *publish.Publisher.
type Publisher interface {
	UploadWorkbook(ctx context.Context, path, bucket, prefix string) (string, error)
	PutMonthToDate(ctx context.Context, namespace string, identity models.Identity, period billing.Period, total float64) error
}
