package cost

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ce "github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/billing"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/models"
)

// ── fake Cost Explorer ────────────────────────────────────────────────────────

// tagRow is one canned (project, environment) group for a service on a day.
type tagRow struct {
	day, projectKey, envKey, amount string
}

// fakeCE answers the two query shapes CollectDaily issues. Service totals are
// split across two pages to exercise NextPageToken handling.
type fakeCE struct {
	services  map[string]string   // service -> total amount
	breakdown map[string][]tagRow // service -> rows
	failOn    string              // service whose breakdown query fails

	mu          sync.Mutex
	inputs      []*ce.GetCostAndUsageInput
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeCE) GetCostAndUsage(_ context.Context, in *ce.GetCostAndUsageInput, _ ...func(*ce.Options)) (*ce.GetCostAndUsageOutput, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()

	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)

	if in.GroupBy[0].Type == cetypes.GroupDefinitionTypeDimension {
		return f.serviceTotals(in), nil
	}

	svc := in.Filter.Dimensions.Values[0]
	if svc == f.failOn {
		return nil, errors.New("ThrottlingException")
	}
	byDay := map[string][]cetypes.Group{}
	var days []string
	for _, r := range f.breakdown[svc] {
		if _, ok := byDay[r.day]; !ok {
			days = append(days, r.day)
		}
		byDay[r.day] = append(byDay[r.day], cetypes.Group{
			Keys:    []string{r.projectKey, r.envKey},
			Metrics: map[string]cetypes.MetricValue{"UnblendedCost": {Amount: aws.String(r.amount), Unit: aws.String("USD")}},
		})
	}
	out := &ce.GetCostAndUsageOutput{}
	for _, d := range days {
		out.ResultsByTime = append(out.ResultsByTime, cetypes.ResultByTime{
			TimePeriod: &cetypes.DateInterval{Start: aws.String(d)},
			Groups:     byDay[d],
		})
	}
	return out, nil
}

func (f *fakeCE) serviceTotals(in *ce.GetCostAndUsageInput) *ce.GetCostAndUsageOutput {
	names := make([]string, 0, len(f.services))
	for svc := range f.services {
		names = append(names, svc)
	}
	sort.Strings(names)

	var groups []cetypes.Group
	for _, svc := range names {
		groups = append(groups, cetypes.Group{
			Keys:    []string{svc},
			Metrics: map[string]cetypes.MetricValue{"UnblendedCost": {Amount: aws.String(f.services[svc])}},
		})
	}
	if in.NextPageToken == nil && len(groups) > 1 {
		return &ce.GetCostAndUsageOutput{
			ResultsByTime: []cetypes.ResultByTime{{Groups: groups[:1]}},
			NextPageToken: aws.String("page-2"),
		}
	}
	if in.NextPageToken != nil {
		groups = groups[1:]
	}
	return &ce.GetCostAndUsageOutput{ResultsByTime: []cetypes.ResultByTime{{Groups: groups}}}
}

func (f *fakeCE) breakdownQueries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, in := range f.inputs {
		if in.Filter != nil {
			n++
		}
	}
	return n
}

func newTestCollector(f *fakeCE) *DefaultCostCollector {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewDefaultCostCollectorWithFactory(func(cfg aws.Config) *costClients {
		return &costClients{CE: f}
	}, logger)
}

func testPeriod() billing.Period {
	return billing.PeriodFor(time.Date(2026, time.October, 3, 0, 0, 0, 0, time.UTC))
}

var testOpts = CollectOptions{
	Metric:         "UnblendedCost",
	ProjectTag:     "Project",
	EnvironmentTag: "Environment",
	MaxConcurrency: 2,
}

// ── CollectDaily ──────────────────────────────────────────────────────────────

func TestCollectDaily_BuildsRecordsPerServiceAndTag(t *testing.T) {
	f := &fakeCE{
		services: map[string]string{
			"Amazon Elastic Compute Cloud - Compute": "3.5",
			"Amazon Simple Storage Service":          "0.123456",
		},
		breakdown: map[string][]tagRow{
			"Amazon Elastic Compute Cloud - Compute": {
				{"2026-10-01", "Project$web", "Environment$prod", "1.25"},
				{"2026-10-02", "Project$web", "Environment$prod", "2.0"},
				{"2026-10-02", "Project$", "Environment$", "0.25"},
			},
			"Amazon Simple Storage Service": {
				{"2026-10-01", "Project$data", "Environment$dev", "0.123456"},
			},
		},
	}

	got, err := newTestCollector(f).CollectDaily(context.Background(), aws.Config{Region: "eu-west-1"}, testPeriod(), testOpts)
	require.NoError(t, err)

	want := []models.CostRecord{
		{Date: "2026-10-01", Service: "Amazon Elastic Compute Cloud - Compute", Project: "web", Environment: "prod", CostUSD: 1.25},
		{Date: "2026-10-01", Service: "Amazon Simple Storage Service", Project: "data", Environment: "dev", CostUSD: 0.1235},
		{Date: "2026-10-02", Service: "Amazon Elastic Compute Cloud - Compute", Project: models.UntaggedValue, Environment: models.UntaggedValue, CostUSD: 0.25},
		{Date: "2026-10-02", Service: "Amazon Elastic Compute Cloud - Compute", Project: "web", Environment: "prod", CostUSD: 2},
	}
	assert.Equal(t, want, got)
}

func TestCollectDaily_QueryShape(t *testing.T) {
	f := &fakeCE{
		services:  map[string]string{"AWS Lambda": "1"},
		breakdown: map[string][]tagRow{"AWS Lambda": {{"2026-10-01", "Project$x", "Environment$y", "1"}}},
	}
	_, err := newTestCollector(f).CollectDaily(context.Background(), aws.Config{}, testPeriod(), testOpts)
	require.NoError(t, err)

	require.Len(t, f.inputs, 2)
	for _, in := range f.inputs {
		assert.Equal(t, "2026-10-01", aws.ToString(in.TimePeriod.Start))
		assert.Equal(t, "2026-10-03", aws.ToString(in.TimePeriod.End))
		assert.Equal(t, cetypes.GranularityDaily, in.Granularity)
		assert.Equal(t, []string{"UnblendedCost"}, in.Metrics)
		assert.LessOrEqual(t, len(in.GroupBy), 2, "Cost Explorer rejects more than two GroupBy keys")
	}
	tagged := f.inputs[1]
	assert.Equal(t, "Project", aws.ToString(tagged.GroupBy[0].Key))
	assert.Equal(t, "Environment", aws.ToString(tagged.GroupBy[1].Key))
	assert.Equal(t, cetypes.DimensionService, tagged.Filter.Dimensions.Key)
}

func TestCollectDaily_SkipsZeroCostServices(t *testing.T) {
	f := &fakeCE{
		services: map[string]string{"Tax": "0", "AWS Lambda": "1", "Credits": "0.00001"},
		breakdown: map[string][]tagRow{
			"AWS Lambda": {{"2026-10-01", "Project$x", "Environment$y", "1"}},
		},
	}
	_, err := newTestCollector(f).CollectDaily(context.Background(), aws.Config{}, testPeriod(), testOpts)
	require.NoError(t, err)
	assert.Equal(t, 1, f.breakdownQueries())
}

func TestCollectDaily_BoundedConcurrency(t *testing.T) {
	f := &fakeCE{services: map[string]string{}, breakdown: map[string][]tagRow{}}
	for _, s := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		f.services[s] = "1"
	}
	_, err := newTestCollector(f).CollectDaily(context.Background(), aws.Config{}, testPeriod(), testOpts)
	require.NoError(t, err)
	assert.Equal(t, 7, f.breakdownQueries())
	assert.LessOrEqual(t, int(f.maxInFlight.Load()), testOpts.MaxConcurrency)
}

func TestCollectDaily_BreakdownFailureIsReturned(t *testing.T) {
	f := &fakeCE{
		services: map[string]string{"AWS Lambda": "1", "Amazon S3": "1"},
		failOn:   "Amazon S3",
	}
	_, err := newTestCollector(f).CollectDaily(context.Background(), aws.Config{}, testPeriod(), testOpts)
	if err == nil {
		t.Fatal("expected error when a breakdown query fails")
	}
	assert.Contains(t, err.Error(), "ThrottlingException")
}

func TestCollectDaily_EmptyPeriod(t *testing.T) {
	p := testPeriod()
	p.End = p.Start
	_, err := newTestCollector(&fakeCE{}).CollectDaily(context.Background(), aws.Config{}, p, testOpts)
	assert.Error(t, err)
}

// ── parseCostFloat ────────────────────────────────────────────────────────────

func TestParseCostFloat(t *testing.T) {
	assert.Equal(t, 0.0, parseCostFloat(nil))
	assert.Equal(t, 0.0, parseCostFloat(aws.String("n/a")))
	assert.Equal(t, 12.5, parseCostFloat(aws.String("12.5")))
	assert.Equal(t, -3.0, parseCostFloat(aws.String("-3")))
}
