package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"text/template"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/billing"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/config"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/mock"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/models"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/providers/aws/common"
	awscost "github.com/pankaj-dahiya-devops/billing-analyzer/internal/providers/aws/cost"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/providers/aws/publish"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/providers/aws/trail"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/workbook"
)

// maxConcurrentProfiles caps the number of profiles reported in parallel.
// Keeps outbound AWS API concurrency predictable when many profiles are configured.
const maxConcurrentProfiles = 3

// PublisherFactory returns the Publisher for a loaded profile.
type PublisherFactory func(profile *common.ProfileConfig) Publisher

// DefaultEngine is the production implementation of Engine.
// It never calls the AWS SDK directly.
type DefaultEngine struct {
	provider  common.AWSClientProvider
	cost      awscost.CostCollector
	events    trail.EventCollector
	publisher PublisherFactory
	cfg       *config.Config
	tmpl      *template.Template
	logger    logrus.FieldLogger
	now       func() time.Time
}

// Option customises a DefaultEngine.
type Option func(*DefaultEngine)

// WithPublisherFactory replaces the S3/CloudWatch publisher. Pass a fake in
// tests.
func WithPublisherFactory(f PublisherFactory) Option {
	return func(e *DefaultEngine) { e.publisher = f }
}

// WithClock overrides the time source used to derive the billing period.
func WithClock(now func() time.Time) Option {
	return func(e *DefaultEngine) { e.now = now }
}

// NewDefaultEngine constructs a DefaultEngine wired to the supplied provider
// and collectors. cfg must already be validated.
func NewDefaultEngine(
	provider common.AWSClientProvider,
	costCollector awscost.CostCollector,
	eventCollector trail.EventCollector,
	cfg *config.Config,
	logger logrus.FieldLogger,
	opts ...Option,
) (*DefaultEngine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	tmpl, err := billing.ParseFileNameTemplate(cfg.FileNameTemplate)
	if err != nil {
		return nil, err
	}

	e := &DefaultEngine{
		provider: provider,
		cost:     costCollector,
		events:   eventCollector,
		cfg:      cfg,
		tmpl:     tmpl,
		logger:   logger,
		now:      time.Now,
	}
	e.publisher = func(p *common.ProfileConfig) Publisher {
		return publish.NewPublisher(p.Clients.S3, p.Clients.CloudWatch, e.logger)
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// target is one account a workbook is written for. profile is nil in mock
// mode.
type target struct {
	identity models.Identity
	profile  *common.ProfileConfig
}

// RunReport implements Engine.
//
// Profiles are processed in parallel, at most maxConcurrentProfiles at once.
// With AllProfiles a failing profile is logged and skipped; an error is
// returned only when no workbook could be written. The results are ordered
// by profile name.
func (e *DefaultEngine) RunReport(ctx context.Context, opts ReportOptions) ([]models.ReportResult, error) {
	targets, err := e.resolveTargets(ctx, opts.Profile, opts.AllProfiles, opts.Mock)
	if err != nil {
		return nil, err
	}
	period := billing.PeriodFor(e.reportDate(opts.Date))

	var (
		results = make([]*models.ReportResult, len(targets))
		errs    = make([]error, len(targets))
		sem     = make(chan struct{}, maxConcurrentProfiles)
	)
	g, gctx := errgroup.WithContext(ctx)

TARGETS:
	for i, t := range targets {
		select {
		case sem <- struct{}{}:
		case <-gctx.Done():
			break TARGETS
		}

		g.Go(func() error {
			defer func() { <-sem }()
			res, err := e.reportFor(gctx, t, period, opts)
			if err != nil {
				errs[i] = fmt.Errorf("profile %q: %w", t.identity.Profile, err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []models.ReportResult
	for i, res := range results {
		if res != nil {
			out = append(out, *res)
			continue
		}
		if errs[i] != nil && len(targets) > 1 {
			e.logger.WithField("profile", targets[i].identity.Profile).WithError(errs[i]).Error("skipping profile")
		}
	}
	if len(out) == 0 {
		if len(targets) == 1 {
			return nil, errs[0]
		}
		return nil, fmt.Errorf("all profiles failed; no workbook written: %w", errors.Join(errs...))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Profile < out[j].Profile })
	return out, nil
}

// reportFor writes the workbook for one account.
func (e *DefaultEngine) reportFor(ctx context.Context, t target, period billing.Period, opts ReportOptions) (*models.ReportResult, error) {
	log := e.logger.WithFields(logrus.Fields{
		"profile": t.identity.Profile,
		"account": t.identity.AccountID,
		"month":   period.Month(),
	})

	fresh, err := e.collectRecords(ctx, t, period)
	if err != nil {
		return nil, err
	}
	log.WithField("records", len(fresh)).Info("collected cost records")

	path, err := e.workbookPath(t.identity, period, opts.OutputDir)
	if err != nil {
		return nil, err
	}
	wb, err := workbook.Open(path)
	if err != nil {
		return nil, err
	}
	defer wb.Close()
	if wb.Created() {
		log.WithField("path", wb.Path()).Info("starting new workbook")
	}

	existing, skipped, err := wb.ExistingRecords()
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		log.WithFields(logrus.Fields{"sheet": workbook.DetailSheet, "rows": skipped}).Warn("ignoring unparsable workbook rows")
	}
	merged := billing.Merge(existing, fresh, period)
	if err := wb.WriteDetail(merged.Records); err != nil {
		return nil, err
	}

	summary, err := billing.Summarize(inPeriod(merged.Records, period), e.cfg.Cost.TopServices, e.cfg.Cost.TopProjects)
	if err != nil {
		if !errors.Is(err, billing.ErrEmptyPeriod) {
			return nil, err
		}
		log.Warn("no cost recorded in billing period")
	}
	if err := wb.WriteSummary(summary, t.identity, period); err != nil {
		return nil, err
	}

	res := &models.ReportResult{
		Profile:      t.identity.Profile,
		AccountID:    t.identity.AccountID,
		Alias:        t.identity.Alias,
		Month:        period.Month(),
		Path:         path,
		GeneratedAt:  e.now().UTC(),
		Records:      len(merged.Records),
		KeptRows:     merged.Kept,
		ReplacedRows: merged.Replaced,
		Summary:      summary,
	}

	if opts.Events || e.cfg.Events.Enabled {
		// CloudTrail is best effort: the billing workbook is still written.
		n, err := e.writeEvents(ctx, wb, t, period, opts.Regions)
		if err != nil {
			log.WithError(err).Warn("skipping instance events sheet")
		}
		res.Events = n
	}

	if err := wb.Save(); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"path": wb.Path(), "sheets": wb.Sheets()}).Info("wrote workbook")

	if err := e.publish(ctx, t, period, opts, res); err != nil {
		return nil, err
	}
	return res, nil
}

// publish uploads the workbook and the month-to-date metric as requested.
// Nothing is published in mock mode.
func (e *DefaultEngine) publish(ctx context.Context, t target, period billing.Period, opts ReportOptions, res *models.ReportResult) error {
	if t.profile == nil {
		return nil
	}
	bucket := firstNonEmpty(opts.S3Bucket, e.cfg.Publish.S3Bucket)
	metric := opts.PublishMetric || e.cfg.Publish.CloudWatchMetric
	if bucket == "" && !metric {
		return nil
	}

	pub := e.publisher(t.profile)
	if bucket != "" {
		uri, err := pub.UploadWorkbook(ctx, res.Path, bucket, firstNonEmpty(opts.S3Prefix, e.cfg.Publish.S3Prefix))
		if err != nil {
			return err
		}
		res.S3URI = uri
	}
	if metric {
		if err := pub.PutMonthToDate(ctx, e.cfg.Publish.CloudWatchNamespace, t.identity, period, res.Summary.TotalCostUSD); err != nil {
			return err
		}
	}
	return nil
}

// RunEvents implements Engine. It writes only the events sheet of the
// period's workbook, leaving the cost sheets untouched.
func (e *DefaultEngine) RunEvents(ctx context.Context, opts EventsOptions) (*models.ReportResult, error) {
	targets, err := e.resolveTargets(ctx, opts.Profile, false, opts.Mock)
	if err != nil {
		return nil, err
	}
	t := targets[0]
	period := billing.PeriodFor(e.reportDate(opts.Date))

	path, err := e.workbookPath(t.identity, period, opts.OutputDir)
	if err != nil {
		return nil, err
	}
	wb, err := workbook.Open(path)
	if err != nil {
		return nil, err
	}
	defer wb.Close()
	if wb.Created() {
		e.logger.WithField("path", wb.Path()).Warn("no billing workbook for this period yet; writing the events sheet only")
	}

	n, err := e.writeEvents(ctx, wb, t, period, opts.Regions)
	if err != nil {
		return nil, err
	}
	if err := wb.Save(); err != nil {
		return nil, err
	}
	e.logger.WithFields(logrus.Fields{
		"profile": t.identity.Profile,
		"path":    path,
		"events":  n,
	}).Info("wrote instance events")

	return &models.ReportResult{
		Profile:     t.identity.Profile,
		AccountID:   t.identity.AccountID,
		Alias:       t.identity.Alias,
		Month:       period.Month(),
		Path:        path,
		GeneratedAt: e.now().UTC(),
		Events:      n,
	}, nil
}

func (e *DefaultEngine) writeEvents(ctx context.Context, wb *workbook.Workbook, t target, period billing.Period, regions []string) (int, error) {
	var events []models.InstanceEvent
	if t.profile == nil {
		events = mock.InstanceEvents(period)
	} else {
		if len(regions) == 0 {
			regions = e.cfg.Events.Regions
		}
		var err error
		events, err = e.events.CollectInstanceEvents(ctx, t.profile, e.provider, regions, period, e.cfg.Events.EventNames)
		if err != nil {
			return 0, err
		}
	}
	return wb.WriteEvents(events)
}

func (e *DefaultEngine) collectRecords(ctx context.Context, t target, period billing.Period) ([]models.CostRecord, error) {
	if t.profile == nil {
		return mock.CostRecords(period), nil
	}
	return e.cost.CollectDaily(ctx, t.profile.Config, period, awscost.CollectOptions{
		Metric:         e.cfg.Cost.Metric,
		ProjectTag:     e.cfg.Cost.ProjectTag,
		EnvironmentTag: e.cfg.Cost.EnvironmentTag,
		MaxConcurrency: e.cfg.Cost.MaxConcurrency,
	})
}

// resolveTargets loads the requested profiles. In all-profiles mode only the
// first profile of each account is kept, since every account maps to one
// workbook file.
func (e *DefaultEngine) resolveTargets(ctx context.Context, profile string, all, useMock bool) ([]target, error) {
	if useMock {
		return []target{{identity: mock.Identity()}}, nil
	}
	if !all {
		if profile == "" {
			profile = e.cfg.AWS.DefaultProfile
		}
		pc, err := e.provider.LoadProfile(ctx, profile)
		if err != nil {
			return nil, fmt.Errorf("load profile %q: %w", profile, err)
		}
		return []target{newTarget(pc)}, nil
	}

	profiles, err := e.provider.LoadAllProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("load all profiles: %w", err)
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no AWS profiles found")
	}

	seen := make(map[string]string, len(profiles))
	var targets []target
	for _, pc := range profiles {
		if first, dup := seen[pc.AccountID]; dup {
			e.logger.WithFields(logrus.Fields{
				"profile": pc.ProfileName,
				"account": pc.AccountID,
			}).Infof("account already reported via profile %s; skipping", first)
			continue
		}
		seen[pc.AccountID] = pc.ProfileName
		targets = append(targets, newTarget(pc))
	}
	return targets, nil
}

func newTarget(pc *common.ProfileConfig) target {
	return target{
		identity: models.Identity{AccountID: pc.AccountID, Alias: pc.Alias, Profile: pc.ProfileName},
		profile:  pc,
	}
}

func (e *DefaultEngine) workbookPath(id models.Identity, period billing.Period, outputDir string) (string, error) {
	name, err := billing.FileName(e.tmpl, billing.FileNameData{
		AccountID: id.AccountID,
		Alias:     id.Alias,
		Month:     period.Month(),
		Profile:   id.Profile,
	})
	if err != nil {
		return "", err
	}
	return filepath.Join(firstNonEmpty(outputDir, e.cfg.OutputDir), name), nil
}

func (e *DefaultEngine) reportDate(d time.Time) time.Time {
	if d.IsZero() {
		return e.now()
	}
	return d
}

func inPeriod(records []models.CostRecord, period billing.Period) []models.CostRecord {
	out := make([]models.CostRecord, 0, len(records))
	for _, r := range records {
		if period.Contains(r.Date) {
			out = append(out, r)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
