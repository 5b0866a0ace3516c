package config

import (
	"fmt"
	"strings"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/billing"
)

// validMetrics is the set of Cost Explorer cost metrics the report can chart.
var validMetrics = map[string]struct{}{
	"UnblendedCost":    {},
	"BlendedCost":      {},
	"AmortizedCost":    {},
	"NetUnblendedCost": {},
	"NetAmortizedCost": {},
}

// Validate checks cfg for semantic correctness and returns all validation
// errors found. An empty slice means the config is valid.
//
// All errors are collected before returning; Validate never stops at the
// first error.
func Validate(cfg *Config) []error {
	if cfg == nil {
		return []error{fmt.Errorf("config is nil")}
	}

	var errs []error

	if cfg.Version != 1 {
		errs = append(errs, fmt.Errorf("version: %w %d; must be 1", ErrUnsupportedVersion, cfg.Version))
	}
	if strings.TrimSpace(cfg.OutputDir) == "" {
		errs = append(errs, fmt.Errorf("output_dir: must not be empty"))
	}
	if _, err := billing.ParseFileNameTemplate(cfg.FileNameTemplate); err != nil {
		errs = append(errs, fmt.Errorf("file_name_template: %w", err))
	}

	if cfg.Cost.Metric == "" {
		errs = append(errs, fmt.Errorf("cost.metric: must not be empty"))
	} else if _, ok := validMetrics[cfg.Cost.Metric]; !ok {
		errs = append(errs, fmt.Errorf("cost.metric: invalid value %q; valid values: UnblendedCost, BlendedCost, AmortizedCost, NetUnblendedCost, NetAmortizedCost", cfg.Cost.Metric))
	}
	if cfg.Cost.ProjectTag == "" {
		errs = append(errs, fmt.Errorf("cost.project_tag: must not be empty"))
	}
	if cfg.Cost.EnvironmentTag == "" {
		errs = append(errs, fmt.Errorf("cost.environment_tag: must not be empty"))
	}
	if cfg.Cost.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("cost.max_concurrency: must not be negative"))
	}
	if cfg.Cost.TopServices < 0 {
		errs = append(errs, fmt.Errorf("cost.top_services: must not be negative"))
	}
	if cfg.Cost.TopProjects < 0 {
		errs = append(errs, fmt.Errorf("cost.top_projects: must not be negative"))
	}
	if cfg.AWS.RetryMaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("aws.retry_max_attempts: must not be negative"))
	}

	if cfg.Events.Enabled && len(cfg.Events.EventNames) == 0 {
		errs = append(errs, fmt.Errorf("events.event_names: must list at least one event when events are enabled"))
	}
	if cfg.Publish.CloudWatchMetric && cfg.Publish.CloudWatchNamespace == "" {
		errs = append(errs, fmt.Errorf("publish.cloudwatch_namespace: required when cloudwatch_metric is enabled"))
	}

	return errs
}
