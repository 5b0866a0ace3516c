package common

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	ce "github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// CostExplorerRegion is the only region Cost Explorer is reachable in.
const CostExplorerRegion = "us-east-1"

// ---------------------------------------------------------------------------
// Per-service client interfaces
//
// Each interface covers only the operations used by this project. Using narrow
// interfaces instead of the full SDK clients makes mocking in unit tests
// trivial: create a struct that satisfies the interface and return canned data.
// ---------------------------------------------------------------------------

// STSClient is the subset of STS operations used by the loader.
type STSClient interface {
	GetCallerIdentity(
		ctx context.Context,
		params *sts.GetCallerIdentityInput,
		optFns ...func(*sts.Options),
	) (*sts.GetCallerIdentityOutput, error)
}

// IAMClient is the subset of IAM operations used to resolve the account alias.
type IAMClient interface {
	ListAccountAliases(
		ctx context.Context,
		params *iam.ListAccountAliasesInput,
		optFns ...func(*iam.Options),
	) (*iam.ListAccountAliasesOutput, error)
}

// EC2RegionClient is the subset of EC2 operations used for region discovery.
type EC2RegionClient interface {
	DescribeRegions(
		ctx context.Context,
		params *ec2.DescribeRegionsInput,
		optFns ...func(*ec2.Options),
	) (*ec2.DescribeRegionsOutput, error)
}

// CostExplorerClient covers the Cost Explorer operations used by the cost
// collector and by ba doctor.
type CostExplorerClient interface {
	GetCostAndUsage(
		ctx context.Context,
		params *ce.GetCostAndUsageInput,
		optFns ...func(*ce.Options),
	) (*ce.GetCostAndUsageOutput, error)
}

// CloudTrailClient covers the CloudTrail event history lookup. It satisfies
// cloudtrail.LookupEventsAPIClient so the SDK paginator can drive it.
type CloudTrailClient interface {
	LookupEvents(
		ctx context.Context,
		params *cloudtrail.LookupEventsInput,
		optFns ...func(*cloudtrail.Options),
	) (*cloudtrail.LookupEventsOutput, error)
}

// S3Client covers the workbook upload.
type S3Client interface {
	PutObject(
		ctx context.Context,
		params *s3.PutObjectInput,
		optFns ...func(*s3.Options),
	) (*s3.PutObjectOutput, error)
}

// CloudWatchClient covers publishing the month-to-date cost metric.
type CloudWatchClient interface {
	PutMetricData(
		ctx context.Context,
		params *cloudwatch.PutMetricDataInput,
		optFns ...func(*cloudwatch.Options),
	) (*cloudwatch.PutMetricDataOutput, error)
}

// ---------------------------------------------------------------------------
// ClientSet and ClientFactory
// ---------------------------------------------------------------------------

// ClientSet holds fully initialised AWS service clients for a given profile
// and region. All fields are interfaces so they can be replaced with mocks in
// tests without importing the AWS SDK in test files.
type ClientSet struct {
	STS          STSClient
	IAM          IAMClient
	EC2          EC2RegionClient
	CostExplorer CostExplorerClient
	CloudTrail   CloudTrailClient
	S3           S3Client
	CloudWatch   CloudWatchClient
}

// ClientFactory creates a ClientSet from an aws.Config.
// Swap this in tests to inject mock clients.
type ClientFactory func(cfg aws.Config) *ClientSet

// NewClientSet is the production ClientFactory. It constructs real AWS SDK
// clients from cfg. Cost Explorer is always pointed at us-east-1 because it
// is a global service only reachable in that region.
func NewClientSet(cfg aws.Config) *ClientSet {
	ceCfg := cfg
	ceCfg.Region = CostExplorerRegion

	return &ClientSet{
		STS:          sts.NewFromConfig(cfg),
		IAM:          iam.NewFromConfig(cfg),
		EC2:          ec2.NewFromConfig(cfg),
		CostExplorer: ce.NewFromConfig(ceCfg),
		CloudTrail:   cloudtrail.NewFromConfig(cfg),
		S3:           s3.NewFromConfig(cfg),
		CloudWatch:   cloudwatch.NewFromConfig(cfg),
	}
}
