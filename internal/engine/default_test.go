package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/billing"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/config"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/models"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/providers/aws/common"
	awscost "github.com/pankaj-dahiya-devops/billing-analyzer/internal/providers/aws/cost"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/workbook"
)

// ── fakes ─────────────────────────────────────────────────────────────────────

// Profiles are told apart by the region of their aws.Config.
func profile(name, account string) *common.ProfileConfig {
	return &common.ProfileConfig{
		ProfileName: name,
		AccountID:   account,
		Alias:       name + "-alias",
		Config:      aws.Config{Region: name},
	}
}

type fakeProvider struct {
	profiles []*common.ProfileConfig
	loadErr  error
}

func (p *fakeProvider) LoadProfile(_ context.Context, name string) (*common.ProfileConfig, error) {
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	for _, pc := range p.profiles {
		if pc.ProfileName == name || (name == "" && pc.ProfileName == "default") {
			return pc, nil
		}
	}
	return nil, fmt.Errorf("profile %q not found", name)
}
func (p *fakeProvider) LoadAllProfiles(context.Context) ([]*common.ProfileConfig, error) {
	return p.profiles, p.loadErr
}
func (p *fakeProvider) GetActiveRegions(context.Context, *common.ProfileConfig) ([]string, error) {
	return []string{"us-east-1"}, nil
}
func (p *fakeProvider) ConfigForRegion(cfg *common.ProfileConfig, region string) aws.Config {
	c := cfg.Config
	c.Region = region
	return c
}

// fakeCost returns one record per day of the period for every profile,
// optionally failing for some of them.
type fakeCost struct {
	failFor map[string]bool
	cost    float64
	delay   time.Duration

	calls       atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	lastOpts    awscost.CollectOptions
	mu          sync.Mutex
}

func (f *fakeCost) CollectDaily(_ context.Context, cfg aws.Config, period billing.Period, opts awscost.CollectOptions) ([]models.CostRecord, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(f.delay)

	f.mu.Lock()
	f.lastOpts = opts
	f.mu.Unlock()

	if f.failFor[cfg.Region] {
		return nil, errors.New("AccessDeniedException")
	}
	cost := f.cost
	if cost == 0 {
		cost = 2.5
	}
	var out []models.CostRecord
	for _, d := range period.Days() {
		out = append(out, models.CostRecord{Date: d, Service: "Amazon EC2", Project: "checkout", Environment: "prod", CostUSD: cost})
	}
	return out, nil
}

type fakeEvents struct {
	err     error
	regions []string
	names   []string
}

func (f *fakeEvents) CollectInstanceEvents(_ context.Context, _ *common.ProfileConfig, _ common.AWSClientProvider, regions []string, period billing.Period, names []string) ([]models.InstanceEvent, error) {
	f.regions, f.names = regions, names
	if f.err != nil {
		return nil, f.err
	}
	return []models.InstanceEvent{
		{EventID: "e1", EventTime: period.Start.Add(time.Hour), Region: "us-east-1", EventName: "RunInstances", InstanceIDs: []string{"i-1"}},
	}, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	uploads  []string
	metrics  []float64
	failWith error
}

func (f *fakePublisher) UploadWorkbook(_ context.Context, path, bucket, prefix string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return "", f.failWith
	}
	f.uploads = append(f.uploads, path)
	return fmt.Sprintf("s3://%s/%s/%s", bucket, prefix, filepath.Base(path)), nil
}

func (f *fakePublisher) PutMonthToDate(_ context.Context, _ string, _ models.Identity, _ billing.Period, total float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = append(f.metrics, total)
	return nil
}

var testDate = time.Date(2026, time.October, 5, 0, 0, 0, 0, time.UTC)

type harness struct {
	engine    *DefaultEngine
	provider  *fakeProvider
	cost      *fakeCost
	events    *fakeEvents
	publisher *fakePublisher
	logs      *logtest.Hook
	dir       string
}

func newHarness(t *testing.T, cfg *config.Config, profiles ...*common.ProfileConfig) *harness {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.OutputDir = t.TempDir()

	logger, hook := logtest.NewNullLogger()

	h := &harness{
		logs:      hook,
		provider:  &fakeProvider{profiles: profiles},
		cost:      &fakeCost{},
		events:    &fakeEvents{},
		publisher: &fakePublisher{},
		dir:       cfg.OutputDir,
	}
	e, err := NewDefaultEngine(h.provider, h.cost, h.events, cfg, logger,
		WithPublisherFactory(func(*common.ProfileConfig) Publisher { return h.publisher }),
		WithClock(func() time.Time { return testDate }),
	)
	require.NoError(t, err)
	h.engine = e
	return h
}

func openWorkbook(t *testing.T, path string) *workbook.Workbook {
	t.Helper()
	wb, err := workbook.Open(path)
	require.NoError(t, err)
	require.False(t, wb.Created(), "workbook %s was not written", path)
	t.Cleanup(func() { _ = wb.Close() })
	return wb
}

// ── RunReport ─────────────────────────────────────────────────────────────────

func TestRunReport_Mock(t *testing.T) {
	h := newHarness(t, nil)
	results, err := h.engine.RunReport(context.Background(), ReportOptions{Mock: true, S3Bucket: "ignored", PublishMetric: true})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, "123456789012", res.AccountID)
	assert.Equal(t, "202610", res.Month)
	assert.Equal(t, filepath.Join(h.dir, "123456789012_demo_202610_Billing.xlsx"), res.Path)
	assert.Positive(t, res.Records)
	assert.Positive(t, res.Summary.TotalCostUSD)
	assert.Empty(t, res.S3URI, "mock mode must not publish")
	assert.Zero(t, h.cost.calls.Load(), "mock mode must not query Cost Explorer")
	assert.Empty(t, h.publisher.uploads)

	wb := openWorkbook(t, res.Path)
	assert.Equal(t, []string{workbook.DetailSheet, workbook.SummarySheet}, wb.Sheets())
}

func TestRunReport_SingleProfile(t *testing.T) {
	h := newHarness(t, nil, profile("default", "111122223333"))
	results, err := h.engine.RunReport(context.Background(), ReportOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, "default", res.Profile)
	assert.Equal(t, "default-alias", res.Alias)
	assert.Equal(t, 4, res.Records, "Oct 1-4 with one record per day")
	assert.InDelta(t, 10.0, res.Summary.TotalCostUSD, 1e-9)
	assert.Equal(t, "UnblendedCost", h.cost.lastOpts.Metric)
	assert.Equal(t, "Project", h.cost.lastOpts.ProjectTag)

	got, _, err := openWorkbook(t, res.Path).ExistingRecords()
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestRunReport_RefreshKeepsRowsOutsidePeriod(t *testing.T) {
	cfg := config.Default()
	cfg.FileNameTemplate = "{{ .AccountID }}.xlsx"
	h := newHarness(t, cfg, profile("default", "111122223333"))

	// September run fills the file with 30 days of September.
	_, err := h.engine.RunReport(context.Background(), ReportOptions{Date: time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	// An October run on the same file keeps September and adds Oct 1-4.
	results, err := h.engine.RunReport(context.Background(), ReportOptions{})
	require.NoError(t, err)
	res := results[0]
	assert.Equal(t, 30, res.KeptRows)
	assert.Zero(t, res.ReplacedRows)
	assert.Equal(t, 34, res.Records)
	assert.InDelta(t, 10.0, res.Summary.TotalCostUSD, 1e-9, "summary covers the billing period only")

	// Re-running October replaces its own rows.
	h.cost.cost = 3
	results, err = h.engine.RunReport(context.Background(), ReportOptions{})
	require.NoError(t, err)
	res = results[0]
	assert.Equal(t, 30, res.KeptRows)
	assert.Equal(t, 4, res.ReplacedRows)
	assert.InDelta(t, 12.0, res.Summary.TotalCostUSD, 1e-9)
}

func TestRunReport_AllProfiles(t *testing.T) {
	h := newHarness(t, nil,
		profile("prod", "111111111111"),
		profile("dev", "222222222222"),
		profile("prod-admin", "111111111111"), // same account as prod
		profile("broken", "333333333333"),
	)
	h.cost.failFor = map[string]bool{"broken": true}

	results, err := h.engine.RunReport(context.Background(), ReportOptions{AllProfiles: true})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "dev", results[0].Profile)
	assert.Equal(t, "prod", results[1].Profile)
	assert.EqualValues(t, 3, h.cost.calls.Load(), "duplicate account must be queried once")
}

func TestRunReport_AllProfilesFail(t *testing.T) {
	h := newHarness(t, nil, profile("a", "1"), profile("b", "2"))
	h.cost.failFor = map[string]bool{"a": true, "b": true}

	_, err := h.engine.RunReport(context.Background(), ReportOptions{AllProfiles: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all profiles failed")
	assert.Contains(t, err.Error(), "AccessDeniedException")
}

func TestRunReport_SingleProfileFailure(t *testing.T) {
	h := newHarness(t, nil, profile("default", "1"))
	h.cost.failFor = map[string]bool{"default": true}

	_, err := h.engine.RunReport(context.Background(), ReportOptions{})
	assert.ErrorContains(t, err, "AccessDeniedException")
}

func TestRunReport_LoadProfileError(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.loadErr = errors.New("no credentials")

	_, err := h.engine.RunReport(context.Background(), ReportOptions{Profile: "x"})
	assert.ErrorContains(t, err, "no credentials")
}

func TestRunReport_BoundedConcurrency(t *testing.T) {
	var profiles []*common.ProfileConfig
	for i := 0; i < 8; i++ {
		profiles = append(profiles, profile(fmt.Sprintf("p%d", i), fmt.Sprintf("%012d", i)))
	}
	h := newHarness(t, nil, profiles...)
	h.cost.delay = 20 * time.Millisecond

	results, err := h.engine.RunReport(context.Background(), ReportOptions{AllProfiles: true})
	require.NoError(t, err)
	assert.Len(t, results, 8)
	assert.LessOrEqual(t, h.cost.maxInFlight.Load(), int32(maxConcurrentProfiles))
}

func TestRunReport_Publish(t *testing.T) {
	h := newHarness(t, nil, profile("default", "111122223333"))
	results, err := h.engine.RunReport(context.Background(), ReportOptions{S3Bucket: "reports", S3Prefix: "billing", PublishMetric: true})
	require.NoError(t, err)

	res := results[0]
	assert.Equal(t, "s3://reports/billing/111122223333_default-alias_202610_Billing.xlsx", res.S3URI)
	assert.Equal(t, []string{res.Path}, h.publisher.uploads)
	require.Len(t, h.publisher.metrics, 1)
	assert.InDelta(t, 10.0, h.publisher.metrics[0], 1e-9)
}

func TestRunReport_PublishFailure(t *testing.T) {
	h := newHarness(t, nil, profile("default", "1"))
	h.publisher.failWith = errors.New("NoSuchBucket")

	_, err := h.engine.RunReport(context.Background(), ReportOptions{S3Bucket: "missing"})
	assert.ErrorContains(t, err, "NoSuchBucket")
}

func TestRunReport_WithEvents(t *testing.T) {
	cfg := config.Default()
	cfg.Events.Regions = []string{"eu-west-1"}
	h := newHarness(t, cfg, profile("default", "1"))

	results, err := h.engine.RunReport(context.Background(), ReportOptions{Events: true})
	require.NoError(t, err)
	assert.Equal(t, 1, results[0].Events)
	assert.Equal(t, []string{"eu-west-1"}, h.events.regions)
	assert.Equal(t, []string{"RunInstances", "TerminateInstances"}, h.events.names)
	assert.Contains(t, openWorkbook(t, results[0].Path).Sheets(), workbook.EventsSheet)
}

func TestRunReport_EventsFailureIsNonFatal(t *testing.T) {
	h := newHarness(t, nil, profile("default", "1"))
	h.events.err = errors.New("cloudtrail down")

	results, err := h.engine.RunReport(context.Background(), ReportOptions{Events: true})
	require.NoError(t, err)
	assert.Zero(t, results[0].Events)
}

func TestRunReport_CancelledContext(t *testing.T) {
	h := newHarness(t, nil, profile("default", "1"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.engine.RunReport(ctx, ReportOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

// ── RunEvents ─────────────────────────────────────────────────────────────────

func TestRunEvents_Mock(t *testing.T) {
	h := newHarness(t, nil)
	res, err := h.engine.RunEvents(context.Background(), EventsOptions{Mock: true})
	require.NoError(t, err)
	assert.Positive(t, res.Events)

	wb := openWorkbook(t, res.Path)
	assert.Contains(t, wb.Sheets(), workbook.EventsSheet)
	assert.NotContains(t, wb.Sheets(), workbook.SummarySheet)
}

func TestRunEvents_WarnsWithoutBillingWorkbook(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.engine.RunEvents(context.Background(), EventsOptions{Mock: true})
	require.NoError(t, err)

	var warned bool
	for _, e := range h.logs.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "no billing workbook for this period yet; writing the events sheet only" {
			warned = true
		}
	}
	assert.True(t, warned)

	// Once the report exists, events are added without the warning.
	_, err = h.engine.RunReport(context.Background(), ReportOptions{Mock: true})
	require.NoError(t, err)
	h.logs.Reset()
	_, err = h.engine.RunEvents(context.Background(), EventsOptions{Mock: true})
	require.NoError(t, err)
	for _, e := range h.logs.AllEntries() {
		assert.NotEqual(t, logrus.WarnLevel, e.Level, e.Message)
	}
}

func TestRunReport_LogsWrittenSheets(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.engine.RunReport(context.Background(), ReportOptions{Mock: true})
	require.NoError(t, err)

	var entry *logrus.Entry
	for _, e := range h.logs.AllEntries() {
		if e.Message == "wrote workbook" {
			entry = e
		}
	}
	require.NotNil(t, entry)
	assert.Equal(t, []string{workbook.DetailSheet, workbook.SummarySheet}, entry.Data["sheets"])
}

func TestRunEvents_Error(t *testing.T) {
	h := newHarness(t, nil, profile("default", "1"))
	h.events.err = errors.New("cloudtrail down")

	_, err := h.engine.RunEvents(context.Background(), EventsOptions{})
	assert.ErrorContains(t, err, "cloudtrail down")
}

// ── helpers ───────────────────────────────────────────────────────────────────

func TestNewDefaultEngine_BadTemplate(t *testing.T) {
	cfg := config.Default()
	cfg.FileNameTemplate = "{{ .Missing"
	_, err := NewDefaultEngine(&fakeProvider{}, &fakeCost{}, &fakeEvents{}, cfg, nil)
	assert.Error(t, err)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
