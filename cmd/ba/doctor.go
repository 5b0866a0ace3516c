package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	ce "github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/smithy-go"
	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/billing"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/providers/aws/common"
)

// CheckResult is the outcome of a single AWS API call.
type CheckResult struct {
	OK        bool   `json:"ok"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// DoctorResult is the structured output of ba doctor. It can be serialised to
// JSON via --format=json or rendered as a human-readable table (default).
type DoctorResult struct {
	AWS struct {
		Profile      string      `json:"profile,omitempty"`
		Credentials  bool        `json:"credentials_ok"`
		AccountID    string      `json:"account_id,omitempty"`
		Alias        string      `json:"alias,omitempty"`
		AliasWarning string      `json:"alias_warning,omitempty"`
		CostExplorer CheckResult `json:"cost_explorer"`
		CloudTrail   CheckResult `json:"cloudtrail"`
		Error        string      `json:"error,omitempty"`

		// CloudTrailRequired is set when the events sheet is enabled.
		CloudTrailRequired bool `json:"cloudtrail_required"`
	} `json:"aws"`

	Output struct {
		Dir      string `json:"dir"`
		Writable bool   `json:"writable"`
		Error    string `json:"error,omitempty"`
	} `json:"output"`

	Config struct {
		Path  string `json:"path,omitempty"`
		Valid bool   `json:"valid"`
		Error string `json:"error,omitempty"`
	} `json:"config"`

	OverallHealthy bool `json:"overall_healthy"`
}

// doctorInput carries the settings the checks depend on.
type doctorInput struct {
	profile    string
	outputDir  string
	metric     string
	configPath string
	configErr  error
	// eventsRequired makes a CloudTrail failure fatal; otherwise it is a
	// warning because the events sheet is optional.
	eventsRequired bool
	now            time.Time
}

func newDoctorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run environment diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			profile, _ := cmd.Flags().GetString("profile")
			if profile == "" {
				profile = a.cfg.AWS.DefaultProfile
			}
			result, err := runDoctor(
				cmd.Context(),
				a.newProvider(a.cfg, a.logger),
				cmd.OutOrStdout(),
				format,
				doctorInput{
					profile:        profile,
					outputDir:      a.cfg.OutputDir,
					metric:         a.cfg.Cost.Metric,
					configPath:     a.loader.ConfigPath(),
					configErr:      a.cfgErr,
					eventsRequired: a.cfg.Events.Enabled,
					now:            time.Now(),
				},
			)
			if err != nil {
				// Rendering failure; let Cobra/main handle it.
				return err
			}
			if !result.OverallHealthy {
				// Exit directly so no error text reaches main.go's
				// fmt.Fprintln(os.Stderr, err) path.
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().String("format", "table", `Output format: "table" or "json"`)
	cmd.Flags().String("profile", "", "AWS profile to use (default: credential chain)")
	return cmd
}

// runDoctor collects all diagnostic results, renders them to w in the
// requested format, and returns the result.
// The returned error covers only rendering failures (e.g. JSON encode error).
// Callers must inspect result.OverallHealthy to determine whether the
// environment is healthy.
func runDoctor(ctx context.Context, provider common.AWSClientProvider, w io.Writer, format string, in doctorInput) (DoctorResult, error) {
	result := collectDoctorResult(ctx, provider, in)

	switch format {
	case "json":
		if err := json.NewEncoder(w).Encode(result); err != nil {
			return result, fmt.Errorf("encode doctor result: %w", err)
		}
	default:
		renderDoctorTable(result, w)
	}

	return result, nil
}

// collectDoctorResult runs all environment checks and populates a DoctorResult.
// It performs no rendering; callers decide how to present the result.
func collectDoctorResult(ctx context.Context, provider common.AWSClientProvider, in doctorInput) DoctorResult {
	var result DoctorResult
	if in.now.IsZero() {
		in.now = time.Now()
	}

	// Config: already loaded by the root command; only the outcome is shown.
	result.Config.Path = in.configPath
	if in.configErr != nil {
		result.Config.Error = in.configErr.Error()
	} else {
		result.Config.Valid = true
	}

	// AWS: credentials → STS account ID and alias → Cost Explorer → CloudTrail.
	result.AWS.Profile = in.profile
	result.AWS.CloudTrailRequired = in.eventsRequired
	profileCfg, err := provider.LoadProfile(ctx, in.profile)
	if err != nil {
		result.AWS.Error = describeAWSError(err)
	} else {
		result.AWS.Credentials = true
		result.AWS.AccountID = profileCfg.AccountID
		result.AWS.Alias = profileCfg.Alias
		if profileCfg.Alias == "" || profileCfg.Alias == common.FallbackAlias(profileCfg.AccountID) {
			result.AWS.AliasWarning = "no IAM account alias; workbooks use " + common.FallbackAlias(profileCfg.AccountID)
		}
		result.AWS.CostExplorer = checkCostExplorer(ctx, profileCfg.Clients, in.metric, in.now)
		result.AWS.CloudTrail = checkCloudTrail(ctx, profileCfg.Clients)
	}

	// Output directory: create it if needed and prove a file can be written.
	result.Output.Dir = in.outputDir
	if err := checkWritable(in.outputDir); err != nil {
		result.Output.Error = err.Error()
	} else {
		result.Output.Writable = true
	}

	result.OverallHealthy = result.Config.Valid &&
		result.AWS.Credentials &&
		result.AWS.CostExplorer.OK &&
		(!result.AWS.CloudTrailRequired || result.AWS.CloudTrail.OK) &&
		result.Output.Writable

	return result
}

// checkCostExplorer issues a single-day GetCostAndUsage query.
func checkCostExplorer(ctx context.Context, clients *common.ClientSet, metric string, now time.Time) CheckResult {
	if clients == nil || clients.CostExplorer == nil {
		return CheckResult{Error: "no Cost Explorer client"}
	}
	if metric == "" {
		metric = "UnblendedCost"
	}
	today := now.UTC()
	_, err := clients.CostExplorer.GetCostAndUsage(ctx, &ce.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(today.AddDate(0, 0, -1).Format(billing.DateLayout)),
			End:   aws.String(today.Format(billing.DateLayout)),
		},
		Granularity: cetypes.GranularityDaily,
		Metrics:     []string{metric},
	})
	return checkResult(err)
}

// checkCloudTrail looks up a single event from the event history.
func checkCloudTrail(ctx context.Context, clients *common.ClientSet) CheckResult {
	if clients == nil || clients.CloudTrail == nil {
		return CheckResult{Error: "no CloudTrail client"}
	}
	_, err := clients.CloudTrail.LookupEvents(ctx, &cloudtrail.LookupEventsInput{
		MaxResults: aws.Int32(1),
	})
	return checkResult(err)
}

func checkResult(err error) CheckResult {
	if err == nil {
		return CheckResult{OK: true}
	}
	res := CheckResult{Error: describeAWSError(err)}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		res.ErrorCode = apiErr.ErrorCode()
	}
	return res
}

// describeAWSError renders err with the AWS service error code first when
// the SDK reports one.
func describeAWSError(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return err.Error()
}

func checkWritable(dir string) error {
	if dir == "" {
		return errors.New("output directory is not set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".ba-doctor-*")
	if err != nil {
		return fmt.Errorf("write to %s: %w", dir, err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// renderDoctorTable writes the human-readable diagnostic output from result to w.
func renderDoctorTable(result DoctorResult, w io.Writer) {
	fmt.Fprintln(w, "Environment Diagnostics")

	fmt.Fprintln(w, "\nConfig:")
	if result.Config.Valid {
		doctorPrint(w, "Config file", "OK", result.Config.Path)
	} else {
		doctorPrint(w, "Config file", "FAIL", result.Config.Error)
	}

	if result.AWS.Profile != "" {
		fmt.Fprintf(w, "\nAWS (profile: %s):\n", result.AWS.Profile)
	} else {
		fmt.Fprintln(w, "\nAWS:")
	}
	if !result.AWS.Credentials {
		doctorPrint(w, "Credentials", "FAIL", result.AWS.Error)
		doctorPrint(w, "STS Identity", "FAIL", "skipped")
		doctorPrint(w, "Cost Explorer", "FAIL", "skipped")
		doctorPrint(w, "CloudTrail", "FAIL", "skipped")
	} else {
		doctorPrint(w, "Credentials", "OK", "")
		doctorPrint(w, "STS Identity", "OK", "Account: "+result.AWS.AccountID)
		if result.AWS.AliasWarning != "" {
			doctorPrint(w, "Account Alias", "WARN", result.AWS.AliasWarning)
		} else {
			doctorPrint(w, "Account Alias", "OK", result.AWS.Alias)
		}
		doctorPrintCheck(w, "Cost Explorer", result.AWS.CostExplorer, "FAIL")
		ctStatus := "WARN"
		if result.AWS.CloudTrailRequired {
			ctStatus = "FAIL"
		}
		doctorPrintCheck(w, "CloudTrail", result.AWS.CloudTrail, ctStatus)
	}

	fmt.Fprintln(w, "\nOutput:")
	if result.Output.Writable {
		doctorPrint(w, "Directory writable", "OK", result.Output.Dir)
	} else {
		doctorPrint(w, "Directory writable", "FAIL", result.Output.Error)
	}
}

// doctorPrintCheck prints an API check, using failStatus when it failed.
func doctorPrintCheck(w io.Writer, label string, c CheckResult, failStatus string) {
	if c.OK {
		doctorPrint(w, label, "OK", "")
		return
	}
	doctorPrint(w, label, failStatus, c.Error)
}

// doctorPrint writes a single diagnostic check line to w.
// When detail is non-empty it is appended in parentheses.
func doctorPrint(w io.Writer, label, status, detail string) {
	if detail != "" {
		fmt.Fprintf(w, "  %s: %s (%s)\n", label, status, detail)
	} else {
		fmt.Fprintf(w, "  %s: %s\n", label, status)
	}
}
