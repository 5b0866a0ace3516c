package cost

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	ce "github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/billing"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/models"
)

// collectServiceTotals calls GetCostAndUsage DAILY grouped by SERVICE for
// period and returns each service's total across all days.
func collectServiceTotals(
	ctx context.Context,
	client costCEClient,
	period billing.Period,
	metric string,
) (map[string]float64, error) {
	totals := make(map[string]float64)

	var nextToken *string
	for {
		out, err := client.GetCostAndUsage(ctx, &ce.GetCostAndUsageInput{
			TimePeriod: &cetypes.DateInterval{
				Start: aws.String(period.StartString()),
				End:   aws.String(period.EndString()),
			},
			Granularity: cetypes.GranularityDaily,
			Metrics:     []string{metric},
			GroupBy: []cetypes.GroupDefinition{
				{
					Key:  aws.String("SERVICE"),
					Type: cetypes.GroupDefinitionTypeDimension,
				},
			},
			NextPageToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("GetCostAndUsage (by service): %w", err)
		}

		for _, result := range out.ResultsByTime {
			for _, group := range result.Groups {
				if len(group.Keys) == 0 {
					continue
				}
				m, ok := group.Metrics[metric]
				if !ok {
					continue
				}
				totals[group.Keys[0]] += parseCostFloat(m.Amount)
			}
		}

		if out.NextPageToken == nil {
			break
		}
		nextToken = out.NextPageToken
	}

	return totals, nil
}

// collectServiceBreakdown calls GetCostAndUsage DAILY for a single service,
// grouped by the project and environment tags. Cost Explorer accepts at most
// two GroupBy keys, which is why the service is a filter rather than a third
// grouping.
func collectServiceBreakdown(
	ctx context.Context,
	client costCEClient,
	period billing.Period,
	service string,
	opts CollectOptions,
) ([]models.CostRecord, error) {
	var records []models.CostRecord

	var nextToken *string
	for {
		out, err := client.GetCostAndUsage(ctx, &ce.GetCostAndUsageInput{
			TimePeriod: &cetypes.DateInterval{
				Start: aws.String(period.StartString()),
				End:   aws.String(period.EndString()),
			},
			Granularity: cetypes.GranularityDaily,
			Metrics:     []string{opts.Metric},
			Filter: &cetypes.Expression{
				Dimensions: &cetypes.DimensionValues{
					Key:    cetypes.DimensionService,
					Values: []string{service},
				},
			},
			GroupBy: []cetypes.GroupDefinition{
				{
					Key:  aws.String(opts.ProjectTag),
					Type: cetypes.GroupDefinitionTypeTag,
				},
				{
					Key:  aws.String(opts.EnvironmentTag),
					Type: cetypes.GroupDefinitionTypeTag,
				},
			},
			NextPageToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("GetCostAndUsage (%s by tags): %w", service, err)
		}

		for _, result := range out.ResultsByTime {
			if result.TimePeriod == nil || result.TimePeriod.Start == nil {
				continue
			}
			date := aws.ToString(result.TimePeriod.Start)
			for _, group := range result.Groups {
				m, ok := group.Metrics[opts.Metric]
				if !ok {
					continue
				}
				project, env := models.UntaggedValue, models.UntaggedValue
				if len(group.Keys) > 0 {
					project = billing.TagValue(group.Keys[0])
				}
				if len(group.Keys) > 1 {
					env = billing.TagValue(group.Keys[1])
				}
				records = append(records, models.CostRecord{
					Date:        date,
					Service:     service,
					Project:     project,
					Environment: env,
					CostUSD:     billing.RoundCost(parseCostFloat(m.Amount)),
				})
			}
		}

		if out.NextPageToken == nil {
			break
		}
		nextToken = out.NextPageToken
	}

	return records, nil
}

// parseCostFloat parses a Cost Explorer amount string. Nil or malformed
// amounts count as zero.
func parseCostFloat(s *string) float64 {
	if s == nil {
		return 0
	}
	v, _ := strconv.ParseFloat(*s, 64)
	return v
}
