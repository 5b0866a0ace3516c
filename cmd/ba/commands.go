package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/billing"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/config"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/engine"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/models"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/output"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/providers/aws/common"
	awscost "github.com/pankaj-dahiya-devops/billing-analyzer/internal/providers/aws/cost"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/providers/aws/trail"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/version"
)

// engineFactory builds the engine for a command run. Tests swap it for a
// fake.
type engineFactory func(cfg *config.Config, logger logrus.FieldLogger) (engine.Engine, error)

// providerFactory builds the AWS client provider used by the engine and by
// ba doctor.
type providerFactory func(cfg *config.Config, logger logrus.FieldLogger) common.AWSClientProvider

func defaultProvider(cfg *config.Config, logger logrus.FieldLogger) common.AWSClientProvider {
	return common.NewDefaultAWSClientProvider(
		common.WithLogger(logger),
		common.WithRetryMaxAttempts(cfg.AWS.RetryMaxAttempts),
	)
}

func defaultEngine(cfg *config.Config, logger logrus.FieldLogger) (engine.Engine, error) {
	return engine.NewDefaultEngine(
		defaultProvider(cfg, logger),
		awscost.NewDefaultCostCollector(logger),
		trail.NewDefaultEventCollector(logger),
		cfg,
		logger,
	)
}

// app carries state resolved by the root command before any subcommand runs.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	loader config.Loader
	cfg    *config.Config
	cfgErr error
	logger logrus.FieldLogger

	newEngine   engineFactory
	newProvider providerFactory
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(defaultEngine, defaultProvider)
}

func newRootCmdWith(newEngine engineFactory, newProvider providerFactory) *cobra.Command {
	a := &app{newEngine: newEngine, newProvider: newProvider}

	root := &cobra.Command{
		Use:           "ba",
		Short:         "billing-analyzer: monthly AWS billing workbooks with charts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default ~/.config/billing-analyzer/config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "text", "Log format: text or json")

	root.AddCommand(
		newReportCmd(a),
		newEventsCmd(a),
		newServeCmd(a),
		newDoctorCmd(a),
		newVersionCmd(),
	)
	return root
}

// init resolves environment overrides, the logger, and the config file.
func (a *app) init(cmd *cobra.Command) error {
	if err := setFlagsFromEnv(cmd.Flags(), envPrefix); err != nil {
		return err
	}
	logger, err := setupLogger(a.logLevel, a.logFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.logger = logger

	// version needs neither config nor AWS.
	if cmd.Name() == "version" {
		return nil
	}
	a.loader = config.NewFileLoader(a.configPath)
	cfg, err := a.loader.Load()
	if err != nil {
		// ba doctor reports a broken config instead of refusing to run.
		if cmd.Name() != "doctor" {
			return err
		}
		a.cfgErr = err
		cfg = config.Default()
	}
	a.cfg = cfg
	a.logger.WithField("config", a.loader.ConfigPath()).Debug("configuration loaded")
	return nil
}

// ── report ────────────────────────────────────────────────────────────────────

// reportFlags are shared by ba report and ba serve.
type reportFlags struct {
	profile       string
	allProfiles   bool
	outputDir     string
	date          string
	mock          bool
	events        bool
	regions       []string
	s3Bucket      string
	s3Prefix      string
	publishMetric bool
	summary       bool
	format        string
}

func (f *reportFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.profile, "profile", "", "AWS profile name (default: config aws.default_profile, then the credential chain)")
	fs.BoolVar(&f.allProfiles, "all-profiles", false, "Write one workbook per configured AWS account")
	fs.StringVar(&f.outputDir, "output-dir", "", "Directory workbooks are written to (default: config output_dir)")
	fs.StringVar(&f.date, "date", "", "Generate the report as if run on this day (YYYY-MM-DD)")
	fs.BoolVar(&f.mock, "mock", false, "Use the offline mock dataset instead of AWS")
	fs.BoolVar(&f.events, "events", false, "Add the CloudTrail instance events sheet")
	fs.StringSliceVar(&f.regions, "region", nil, "CloudTrail region(s) to search (default: all active regions)")
	fs.StringVar(&f.s3Bucket, "s3-bucket", "", "Upload the workbook to this S3 bucket")
	fs.StringVar(&f.s3Prefix, "s3-prefix", "", "Key prefix for the S3 upload")
	fs.BoolVar(&f.publishMetric, "publish-metric", false, "Publish the month-to-date total to CloudWatch")
	fs.BoolVar(&f.summary, "summary", false, "Print totals and top services and projects")
	fs.StringVar(&f.format, "format", "table", "Output format: table or json")
}

func (f *reportFlags) options(now time.Time) (engine.ReportOptions, error) {
	opts := engine.ReportOptions{
		Profile:       f.profile,
		AllProfiles:   f.allProfiles,
		OutputDir:     f.outputDir,
		Mock:          f.mock,
		Events:        f.events,
		Regions:       f.regions,
		S3Bucket:      f.s3Bucket,
		S3Prefix:      f.s3Prefix,
		PublishMetric: f.publishMetric,
	}
	if err := checkFormat(f.format); err != nil {
		return opts, err
	}
	if f.profile != "" && f.allProfiles {
		return opts, errors.New("--profile and --all-profiles are mutually exclusive")
	}
	if f.date != "" {
		d, err := billing.ParseReportDate(f.date, now)
		if err != nil {
			return opts, err
		}
		opts.Date = d
	}
	return opts, nil
}

func checkFormat(format string) error {
	switch engine.ReportFormat(format) {
	case engine.ReportFormatTable, engine.ReportFormatJSON:
		return nil
	}
	return fmt.Errorf("invalid --format %q: want table or json", format)
}

func newReportCmd(a *app) *cobra.Command {
	var flags reportFlags

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write this month's billing workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options(time.Now())
			if err != nil {
				return err
			}
			eng, err := a.newEngine(a.cfg, a.logger)
			if err != nil {
				return err
			}
			results, err := eng.RunReport(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("report failed: %w", err)
			}
			return printResults(cmd.OutOrStdout(), results, flags.format, flags.summary)
		},
	}
	flags.bind(cmd)
	return cmd
}

// colorOutput reports whether w is an interactive terminal.
func colorOutput(w io.Writer) bool {
	return w == io.Writer(os.Stdout) && stdoutIsTerminal()
}

// printResults writes the command output: indented JSON, or one workbook path
// per line optionally followed by the summary table.
func printResults(w io.Writer, results []models.ReportResult, format string, summary bool) error {
	if engine.ReportFormat(format) == engine.ReportFormatJSON {
		return printJSON(w, results)
	}
	for _, r := range results {
		fmt.Fprintln(w, r.Path)
	}
	if summary {
		fmt.Fprintln(w)
		output.RenderTable(w, results, output.TableOptions{
			Colored:        colorOutput(w),
			IncludeSummary: true,
			IncludeS3:      true,
		})
	}
	return nil
}

// printJSON writes v as indented JSON to w.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ── events ────────────────────────────────────────────────────────────────────

func newEventsCmd(a *app) *cobra.Command {
	var (
		profile   string
		regions   []string
		outputDir string
		date      string
		useMock   bool
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Write only the CloudTrail instance events sheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.EventsOptions{
				Profile:   profile,
				Regions:   regions,
				OutputDir: outputDir,
				Mock:      useMock,
			}
			if date != "" {
				d, err := billing.ParseReportDate(date, time.Now())
				if err != nil {
					return err
				}
				opts.Date = d
			}
			eng, err := a.newEngine(a.cfg, a.logger)
			if err != nil {
				return err
			}
			res, err := eng.RunEvents(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("events failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Path)
			return nil
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "", "AWS profile name (default: config aws.default_profile, then the credential chain)")
	cmd.Flags().StringSliceVar(&regions, "region", nil, "CloudTrail region(s) to search (default: all active regions)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory workbooks are written to (default: config output_dir)")
	cmd.Flags().StringVar(&date, "date", "", "Use the billing period of this day (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&useMock, "mock", false, "Use mock events instead of CloudTrail")
	return cmd
}

// ── serve ─────────────────────────────────────────────────────────────────────

func newServeCmd(a *app) *cobra.Command {
	var (
		flags    reportFlags
		schedule string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Write the billing workbook on a cron schedule (UTC)",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options(time.Now())
			if err != nil {
				return err
			}
			// Every scheduled run reports on the day it fires.
			opts.Date = time.Time{}

			spec := schedule
			if spec == "" {
				spec = a.cfg.Schedule
			}
			eng, err := a.newEngine(a.cfg, a.logger)
			if err != nil {
				return err
			}
			return runSchedule(cmd.Context(), spec, a.logger, func(ctx context.Context) {
				results, err := eng.RunReport(ctx, opts)
				if err != nil {
					a.logger.WithError(err).Error("scheduled report failed")
					return
				}
				if err := printResults(cmd.OutOrStdout(), results, flags.format, flags.summary); err != nil {
					a.logger.WithError(err).Error("print report results")
				}
			})
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&schedule, "schedule", "", `Cron schedule, 5 fields in UTC (default: config schedule, "0 6 * * *")`)
	return cmd
}

// runSchedule runs job once immediately and then on every tick of spec until
// ctx is cancelled, then waits for a running job before returning. A tick
// that fires while a run is still in progress is skipped.
func runSchedule(ctx context.Context, spec string, logger logrus.FieldLogger, job func(context.Context)) error {
	cronLogger := cron.PrintfLogger(logger)
	c := cron.New(cron.WithLocation(time.UTC), cron.WithLogger(cronLogger))

	// The immediate run and the scheduled runs share one guard. Recover sits
	// inside the guard so a panicking run still releases it.
	run := cron.NewChain(cron.SkipIfStillRunning(cronLogger), cron.Recover(cronLogger)).
		Then(cron.FuncJob(func() { job(ctx) }))
	if _, err := c.AddJob(spec, run); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	logger.WithField("schedule", spec).Info("starting scheduler")
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		run.Run()
	}()
	c.Start()

	<-ctx.Done()
	logger.Info("stopping scheduler")
	<-c.Stop().Done()
	wg.Wait()
	return nil
}

// ── version ───────────────────────────────────────────────────────────────────

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), version.Info())
		},
	}
}

// stdoutIsTerminal reports whether os.Stdout is a character device.
func stdoutIsTerminal() bool {
	fi, err := os.Stdout.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
