package cost

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/billing"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/models"
)

// CollectOptions carries the Cost Explorer query parameters.
type CollectOptions struct {
	// Metric is the cost metric to request, e.g. "UnblendedCost".
	Metric string

	// ProjectTag and EnvironmentTag are the cost allocation tag keys used
	// for the per-service breakdown.
	ProjectTag     string
	EnvironmentTag string

	// MaxConcurrency bounds the per-service queries in flight. Defaults to
	// 4 when zero.
	MaxConcurrency int
}

// CostCollector gathers daily billing data from Cost Explorer and converts it
// into CostRecords. It must not render, persist, or aggregate beyond
// deduplication.
type CostCollector interface {
	// CollectDaily returns one record per (day, service, project,
	// environment) with a cost in period. The region in cfg is overridden to
	// us-east-1 internally because Cost Explorer is a global service.
	CollectDaily(ctx context.Context, cfg aws.Config, period billing.Period, opts CollectOptions) ([]models.CostRecord, error)
}
