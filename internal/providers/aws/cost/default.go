package cost

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/billing"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/models"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/providers/aws/common"
)

// defaultMaxConcurrency is the number of per-service breakdown queries kept
// in flight when CollectOptions.MaxConcurrency is zero.
const defaultMaxConcurrency = 4

// DefaultCostCollector is the production implementation of CostCollector.
//
// Inject a custom costClientFactory via NewDefaultCostCollectorWithFactory
// to replace real SDK clients with mocks in unit tests.
type DefaultCostCollector struct {
	factory costClientFactory
	logger  logrus.FieldLogger
}

// NewDefaultCostCollector returns a collector backed by the real AWS SDK.
func NewDefaultCostCollector(logger logrus.FieldLogger) *DefaultCostCollector {
	return NewDefaultCostCollectorWithFactory(newDefaultCostClients, logger)
}

// NewDefaultCostCollectorWithFactory returns a collector that uses f to
// create its service clients. Pass a mock factory in tests.
func NewDefaultCostCollectorWithFactory(f costClientFactory, logger logrus.FieldLogger) *DefaultCostCollector {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DefaultCostCollector{factory: f, logger: logger}
}

// CollectDaily implements CostCollector.
//
// Flow:
//  1. One paginated query grouped by SERVICE discovers which services had
//     any cost in period.
//  2. Each service with a non-zero total is queried again, filtered to that
//     service and grouped by the project and environment tags. These queries
//     run in parallel, at most opts.MaxConcurrency at once; the first
//     failure cancels the rest and is returned.
//  3. All rows are deduplicated by composite key.
func (d *DefaultCostCollector) CollectDaily(
	ctx context.Context,
	cfg aws.Config,
	period billing.Period,
	opts CollectOptions,
) ([]models.CostRecord, error) {
	if period.Empty() {
		return nil, fmt.Errorf("collect costs: empty period [%s, %s)", period.StartString(), period.EndString())
	}

	ceCfg := cfg
	ceCfg.Region = common.CostExplorerRegion
	clients := d.factory(ceCfg)

	totals, err := collectServiceTotals(ctx, clients.CE, period, opts.Metric)
	if err != nil {
		return nil, err
	}

	services := make([]string, 0, len(totals))
	for svc, total := range totals {
		if billing.RoundCost(total) != 0 {
			services = append(services, svc)
		}
	}
	sort.Strings(services)

	d.logger.WithFields(logrus.Fields{
		"month":    period.Month(),
		"services": len(services),
	}).Debug("discovered billed services")

	limit := opts.MaxConcurrency
	if limit <= 0 {
		limit = defaultMaxConcurrency
	}
	sem := make(chan struct{}, limit)

	// One result slot per service keeps the merge deterministic without a mutex.
	results := make([][]models.CostRecord, len(services))

	g, gctx := errgroup.WithContext(ctx)

SERVICES:
	for i, svc := range services {
		select {
		case sem <- struct{}{}:
		case <-gctx.Done():
			break SERVICES
		}

		g.Go(func() error {
			defer func() { <-sem }()

			rows, err := collectServiceBreakdown(gctx, clients.CE, period, svc, opts)
			if err != nil {
				return err
			}
			d.logger.WithFields(logrus.Fields{
				"service": svc,
				"rows":    len(rows),
			}).Debug("collected service breakdown")
			results[i] = rows
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collect costs for %s: %w", period.Month(), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("collect costs for %s: %w", period.Month(), err)
	}

	var all []models.CostRecord
	for _, rows := range results {
		all = append(all, rows...)
	}
	return billing.Dedup(all), nil
}
