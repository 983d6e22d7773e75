package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	FormatGit        = "git"
	FormatFastImport = "fast-import"
)

// Config holds all configuration settings
type Config struct {
	// Conversion heuristics
	Conversion ConversionConfig `yaml:"conversion" mapstructure:"conversion"`

	// RCS tool settings
	RCS RCSConfig `yaml:"rcs" mapstructure:"rcs"`

	// Target repository
	Output OutputConfig `yaml:"output" mapstructure:"output"`

	// Revision content cache
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Plan database
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Author mapping
	Authors AuthorsConfig `yaml:"authors" mapstructure:"authors"`

	// Logging
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

type ConversionConfig struct {
	SkewTolerance     time.Duration `yaml:"skew_tolerance" mapstructure:"skew_tolerance"`
	MessageMatch      string        `yaml:"message_match" mapstructure:"message_match"` // "exact", "fuzzy"
	FuzzyThreshold    float64       `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	VendorBranches    bool          `yaml:"vendor_branches" mapstructure:"vendor_branches"`
	TagReconciliation string        `yaml:"tag_reconciliation" mapstructure:"tag_reconciliation"` // "strict-fail", "pick-latest"
	TrunkBranch       string        `yaml:"trunk_branch" mapstructure:"trunk_branch"`
}

type RCSConfig struct {
	RlogPath  string  `yaml:"rlog_path" mapstructure:"rlog_path"`
	CoPath    string  `yaml:"co_path" mapstructure:"co_path"`
	Workers   int     `yaml:"workers" mapstructure:"workers"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // Commands per second, 0 = unlimited
}

type OutputConfig struct {
	Format string `yaml:"format" mapstructure:"format"` // "git", "fast-import"
	Path   string `yaml:"path" mapstructure:"path"`     // Repository directory or stream file, "-" = stdout
}

type CacheConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

type StorageConfig struct {
	PlanDB string `yaml:"plan_db" mapstructure:"plan_db"` // Empty disables the plan database
}

type AuthorsConfig struct {
	File          string `yaml:"file" mapstructure:"file"`
	DefaultDomain string `yaml:"default_domain" mapstructure:"default_domain"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // "debug", "info", "warn", "error"
	Format string `yaml:"format" mapstructure:"format"` // "text", "json"
	File   string `yaml:"file" mapstructure:"file"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Conversion: ConversionConfig{
			SkewTolerance:     300 * time.Second,
			MessageMatch:      "exact",
			FuzzyThreshold:    0.2,
			VendorBranches:    true,
			TagReconciliation: "strict-fail",
			TrunkBranch:       "master",
		},
		RCS: RCSConfig{
			RlogPath: "rlog",
			CoPath:   "co",
		},
		Output: OutputConfig{
			Format: FormatGit,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    filepath.Join("~", ".rcs2git", "cache", "content.db"),
		},
		Authors: AuthorsConfig{
			DefaultDomain: "localhost",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	// Load .env files first (in order of precedence)
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	setDefaults(v, cfg)

	// RCS2GIT_CONVERSION_SKEW_TOLERANCE overrides conversion.skew_tolerance
	v.SetEnvPrefix("RCS2GIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".rcs2git")
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".rcs2git"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := expandPaths(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("conversion.skew_tolerance", cfg.Conversion.SkewTolerance)
	v.SetDefault("conversion.message_match", cfg.Conversion.MessageMatch)
	v.SetDefault("conversion.fuzzy_threshold", cfg.Conversion.FuzzyThreshold)
	v.SetDefault("conversion.vendor_branches", cfg.Conversion.VendorBranches)
	v.SetDefault("conversion.tag_reconciliation", cfg.Conversion.TagReconciliation)
	v.SetDefault("conversion.trunk_branch", cfg.Conversion.TrunkBranch)
	v.SetDefault("rcs.rlog_path", cfg.RCS.RlogPath)
	v.SetDefault("rcs.co_path", cfg.RCS.CoPath)
	v.SetDefault("rcs.workers", cfg.RCS.Workers)
	v.SetDefault("rcs.rate_limit", cfg.RCS.RateLimit)
	v.SetDefault("output.format", cfg.Output.Format)
	v.SetDefault("output.path", cfg.Output.Path)
	v.SetDefault("cache.enabled", cfg.Cache.Enabled)
	v.SetDefault("cache.path", cfg.Cache.Path)
	v.SetDefault("storage.plan_db", cfg.Storage.PlanDB)
	v.SetDefault("authors.file", cfg.Authors.File)
	v.SetDefault("authors.default_domain", cfg.Authors.DefaultDomain)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.file", cfg.Logging.File)
}

// expandPaths resolves a leading ~ in every path setting.
func expandPaths(cfg *Config) error {
	for _, p := range []*string{
		&cfg.Output.Path,
		&cfg.Cache.Path,
		&cfg.Storage.PlanDB,
		&cfg.Authors.File,
		&cfg.Logging.File,
	} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Settings returns the configuration as the nested key map written to
// config files. Durations are rendered as strings such as "5m0s".
func (c *Config) Settings() map[string]interface{} {
	return map[string]interface{}{
		"conversion": map[string]interface{}{
			"skew_tolerance":     c.Conversion.SkewTolerance.String(),
			"message_match":      c.Conversion.MessageMatch,
			"fuzzy_threshold":    c.Conversion.FuzzyThreshold,
			"vendor_branches":    c.Conversion.VendorBranches,
			"tag_reconciliation": c.Conversion.TagReconciliation,
			"trunk_branch":       c.Conversion.TrunkBranch,
		},
		"rcs": map[string]interface{}{
			"rlog_path":  c.RCS.RlogPath,
			"co_path":    c.RCS.CoPath,
			"workers":    c.RCS.Workers,
			"rate_limit": c.RCS.RateLimit,
		},
		"output":  map[string]interface{}{"format": c.Output.Format, "path": c.Output.Path},
		"cache":   map[string]interface{}{"enabled": c.Cache.Enabled, "path": c.Cache.Path},
		"storage": map[string]interface{}{"plan_db": c.Storage.PlanDB},
		"authors": map[string]interface{}{"file": c.Authors.File, "default_domain": c.Authors.DefaultDomain},
		"logging": map[string]interface{}{"level": c.Logging.Level, "format": c.Logging.Format, "file": c.Logging.File},
	}
}

// WriteYAML renders Settings as YAML.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c.Settings()); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")
	for key, value := range c.Settings() {
		v.Set(key, value)
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
