package config

import "github.com/pankaj-dahiya-devops/billing-analyzer/internal/billing"

// Config is the top-level application configuration.
// It is loaded from ~/.config/billing-analyzer/config.yaml unless --config
// points elsewhere. Every field has a default; the file only overrides.
type Config struct {
	// Version is the schema version of the file. Omitted means 1.
	Version int `yaml:"version" json:"version"`

	// OutputDir is the directory workbooks are written to.
	OutputDir string `yaml:"output_dir" json:"output_dir"`

	// FileNameTemplate is a text/template (with sprig functions) rendering
	// the workbook file name. Fields: AccountID, Alias, Month, Profile.
	FileNameTemplate string `yaml:"file_name_template" json:"file_name_template"`

	AWS     AWSConfig     `yaml:"aws"     json:"aws"`
	Cost    CostConfig    `yaml:"cost"    json:"cost"`
	Events  EventsConfig  `yaml:"events"  json:"events"`
	Publish PublishConfig `yaml:"publish" json:"publish"`

	// Schedule is the cron expression used by ba serve (5 fields, UTC).
	Schedule string `yaml:"schedule" json:"schedule"`
}

// AWSConfig holds AWS-specific defaults used when flags are not provided.
type AWSConfig struct {
	// DefaultProfile is used when no --profile flag is provided.
	DefaultProfile string `yaml:"default_profile" json:"default_profile"`

	// RetryMaxAttempts caps SDK retries; Cost Explorer throttles aggressively.
	RetryMaxAttempts int `yaml:"retry_max_attempts" json:"retry_max_attempts"`
}

// CostConfig controls the Cost Explorer query and summary aggregates.
type CostConfig struct {
	// Metric is the Cost Explorer cost metric, e.g. UnblendedCost.
	Metric string `yaml:"metric" json:"metric"`

	// ProjectTag and EnvironmentTag are the cost allocation tag keys used to
	// break costs down per project and environment.
	ProjectTag     string `yaml:"project_tag"     json:"project_tag"`
	EnvironmentTag string `yaml:"environment_tag" json:"environment_tag"`

	// MaxConcurrency bounds the per-service breakdown queries in flight.
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency"`

	TopServices int `yaml:"top_services" json:"top_services"`
	TopProjects int `yaml:"top_projects" json:"top_projects"`
}

// EventsConfig controls the optional CloudTrail instance events sheet.
type EventsConfig struct {
	Enabled    bool     `yaml:"enabled"     json:"enabled"`
	EventNames []string `yaml:"event_names" json:"event_names"`
	// Regions limits the lookup; empty means every active region.
	Regions []string `yaml:"regions" json:"regions"`
}

// PublishConfig controls where a finished workbook and its totals go.
type PublishConfig struct {
	S3Bucket            string `yaml:"s3_bucket"            json:"s3_bucket"`
	S3Prefix            string `yaml:"s3_prefix"            json:"s3_prefix"`
	CloudWatchMetric    bool   `yaml:"cloudwatch_metric"    json:"cloudwatch_metric"`
	CloudWatchNamespace string `yaml:"cloudwatch_namespace" json:"cloudwatch_namespace"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Version:          1,
		OutputDir:        "/tmp",
		FileNameTemplate: billing.DefaultFileNameTemplate,
		AWS: AWSConfig{
			RetryMaxAttempts: 10,
		},
		Cost: CostConfig{
			Metric:         "UnblendedCost",
			ProjectTag:     "Project",
			EnvironmentTag: "Environment",
			MaxConcurrency: 4,
			TopServices:    8,
			TopProjects:    10,
		},
		Events: EventsConfig{
			EventNames: []string{"RunInstances", "TerminateInstances"},
		},
		Publish: PublishConfig{
			CloudWatchNamespace: "BillingAnalyzer",
		},
		Schedule: "0 6 * * *",
	}
}

// Loader is the interface for reading Config from disk.
// Default implementation reads from ~/.config/billing-analyzer/config.yaml.
type Loader interface {
	// Load reads, parses, and validates the configuration file.
	Load() (*Config, error)

	// ConfigPath returns the absolute path to the configuration file.
	ConfigPath() string
}
