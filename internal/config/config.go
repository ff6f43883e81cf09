package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// AppConfig represents the main application configuration
type AppConfig struct {
	Input     InputConfig     `mapstructure:"input"`
	Output    OutputConfig    `mapstructure:"output"`
	Reduction ReductionConfig `mapstructure:"reduction"`
	Store     StoreConfig     `mapstructure:"store"`
	RunDate   RunDateConfig   `mapstructure:"rundate"`
	SeqStats  SeqStatsConfig  `mapstructure:"seqstats"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Capacity  CapacityConfig  `mapstructure:"capacity"`
}

// InputConfig describes where batch files live and how they are named
type InputConfig struct {
	Dir                string `mapstructure:"dir"`
	AlignmentExt       string `mapstructure:"alignment_ext"`
	SequenceExt        string `mapstructure:"sequence_ext"`
	RunDatePrefix      string `mapstructure:"rundate_prefix"`
	BatchPattern       string `mapstructure:"batch_pattern"`
	AlignmentDelimiter string `mapstructure:"alignment_delimiter"`
	// IgnoreSuffixes names files the tools write next to their inputs
	IgnoreSuffixes []string `mapstructure:"ignore_suffixes"`
}

// OutputConfig describes the derived artifacts
type OutputConfig struct {
	Dir             string `mapstructure:"dir"`
	SummaryPrefix   string `mapstructure:"summary_prefix"`
	HighPrefix      string `mapstructure:"high_prefix"`
	LowPrefix       string `mapstructure:"low_prefix"`
	DateLayout      string `mapstructure:"date_layout"`
	FileIDPrefix    string `mapstructure:"file_id_prefix"`
	NonHitterSuffix string `mapstructure:"non_hitter_suffix"`
	ReportYAML      string `mapstructure:"report_yaml"`
}

// ReductionConfig holds the classification policy
type ReductionConfig struct {
	HighIdentityThreshold float64 `mapstructure:"high_identity_threshold"`
}

// StoreConfig describes the relational store and its staging area
type StoreConfig struct {
	Driver            string `mapstructure:"driver"`
	Path              string `mapstructure:"path"`
	DSN               string `mapstructure:"dsn"`
	WorkDir           string `mapstructure:"work_dir"`
	KeepIntermediates bool   `mapstructure:"keep_intermediates"`
}

// RunDateConfig describes the run-date metadata format
type RunDateConfig struct {
	Marker string `mapstructure:"marker"`
}

// SeqStatsConfig holds sequence-file statistics options
type SeqStatsConfig struct {
	Ext        string `mapstructure:"ext"`
	GenomeSize int64  `mapstructure:"genome_size"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// TracingConfig represents tracing configuration
type TracingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Output  string `mapstructure:"output"`
}

// CapacityConfig holds the staging volume guard
type CapacityConfig struct {
	MaxUsedPercent float64 `mapstructure:"max_used_percent"`
}

// ConfigLoader loads configuration from a YAML file, defaults and the
// environment (BLASTSUM_ prefix)
type ConfigLoader struct {
	viper *viper.Viper
}

// NewConfigLoader creates a new configuration loader with defaults applied
func NewConfigLoader() *ConfigLoader {
	v := viper.New()
	v.SetConfigName("blastsum")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("BLASTSUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	return &ConfigLoader{viper: v}
}

// SetConfigFile points the loader at an explicit file
func (l *ConfigLoader) SetConfigFile(path string) {
	if path != "" {
		l.viper.SetConfigFile(path)
	}
}

// Set overrides a single key, used for command line flags
func (l *ConfigLoader) Set(key string, value interface{}) {
	l.viper.Set(key, value)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("input.dir", ".")
	v.SetDefault("input.alignment_ext", ".csv")
	v.SetDefault("input.sequence_ext", ".fa")
	v.SetDefault("input.rundate_prefix", "xml")
	v.SetDefault("input.batch_pattern", `(\d{3})`)
	v.SetDefault("input.alignment_delimiter", ",")
	v.SetDefault("input.ignore_suffixes", []string{".partial"})

	v.SetDefault("output.dir", ".")
	v.SetDefault("output.summary_prefix", "blastn_summary_")
	v.SetDefault("output.high_prefix", "high_overallident_")
	v.SetDefault("output.low_prefix", "low_overallident_")
	v.SetDefault("output.date_layout", "01_02_2006")
	v.SetDefault("output.file_id_prefix", "pan")
	v.SetDefault("output.non_hitter_suffix", "_non_hitters.fa")
	v.SetDefault("output.report_yaml", "")

	v.SetDefault("reduction.high_identity_threshold", 90.0)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "chimp_trace_25k.sqlite")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.work_dir", ".")
	v.SetDefault("store.keep_intermediates", false)

	v.SetDefault("rundate.marker", "<RUN_DATE>")

	v.SetDefault("seqstats.ext", ".seq")
	v.SetDefault("seqstats.genome_size", int64(3000000000))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.output", "")

	v.SetDefault("capacity.max_used_percent", 98.0)
}

// Load reads the configuration file (if any) and returns the validated config
func (l *ConfigLoader) Load() (*AppConfig, error) {
	if err := l.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, using defaults
	}

	var config AppConfig
	if err := l.viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Input.AlignmentDelimiter == `\t` {
		config.Input.AlignmentDelimiter = "\t"
	}

	if config.Output.NonHitterSuffix != "" && !contains(config.Input.IgnoreSuffixes, config.Output.NonHitterSuffix) {
		config.Input.IgnoreSuffixes = append(config.Input.IgnoreSuffixes, config.Output.NonHitterSuffix)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// validateConfig validates the configuration values
func validateConfig(config *AppConfig) error {
	if config.Input.BatchPattern == "" {
		return fmt.Errorf("input.batch_pattern cannot be empty")
	}
	if len(config.Input.AlignmentDelimiter) != 1 {
		return fmt.Errorf("input.alignment_delimiter must be a single character")
	}
	if config.Reduction.HighIdentityThreshold < 0 || config.Reduction.HighIdentityThreshold > 100 {
		return fmt.Errorf("reduction.high_identity_threshold must be between 0 and 100")
	}

	switch config.Store.Driver {
	case "sqlite":
		if config.Store.Path == "" {
			return fmt.Errorf("store.path cannot be empty for the sqlite driver")
		}
	case "postgres":
		if config.Store.DSN == "" {
			return fmt.Errorf("store.dsn cannot be empty for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver must be sqlite or postgres, got %q", config.Store.Driver)
	}

	if config.Capacity.MaxUsedPercent <= 0 || config.Capacity.MaxUsedPercent > 100 {
		return fmt.Errorf("capacity.max_used_percent must be in (0, 100]")
	}
	if config.SeqStats.GenomeSize <= 0 {
		return fmt.Errorf("seqstats.genome_size must be positive")
	}

	return nil
}
