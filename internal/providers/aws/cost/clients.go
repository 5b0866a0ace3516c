package cost

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	ce "github.com/aws/aws-sdk-go-v2/service/costexplorer"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/providers/aws/common"
)

// costCEClient covers the Cost Explorer operations required for cost
// collection. Cost Explorer is a global service; always use us-east-1.
type costCEClient interface {
	GetCostAndUsage(
		ctx context.Context,
		params *ce.GetCostAndUsageInput,
		optFns ...func(*ce.Options),
	) (*ce.GetCostAndUsageOutput, error)
}

// costClients holds all service clients needed for one collection run.
type costClients struct {
	CE costCEClient // always pointed at us-east-1 by the factory
}

// costClientFactory creates a costClients from an aws.Config.
type costClientFactory func(cfg aws.Config) *costClients

// newDefaultCostClients is the production costClientFactory.
// Cost Explorer is forced to us-east-1 because it is a global service.
func newDefaultCostClients(cfg aws.Config) *costClients {
	ceCfg := cfg
	ceCfg.Region = common.CostExplorerRegion
	return &costClients{
		CE: ce.NewFromConfig(ceCfg),
	}
}
