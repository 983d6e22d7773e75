package config

import (
	"fmt"
	"strings"

	"github.com/rohankatakam/rcs2git/internal/errors"
)

// ValidationContext specifies what configuration is required
type ValidationContext string

const (
	// ValidationContextPlan - planning needs the conversion and rcs settings
	ValidationContextPlan ValidationContext = "plan"
	// ValidationContextConvert - conversion also needs an output target
	ValidationContextConvert ValidationContext = "convert"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  ❌ %s\n", err))
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  ⚠️  %s\n", warn))
		}
	}

	return sb.String()
}

// Err returns the result as a config error, or nil when valid.
func (vr *ValidationResult) Err() error {
	if !vr.HasErrors() {
		return nil
	}
	return errors.ConfigError(strings.TrimSpace(vr.Error()))
}

// Validate validates configuration for the given context
func (c *Config) Validate(ctx ValidationContext) *ValidationResult {
	result := &ValidationResult{Valid: true}

	c.validateConversion(result)
	c.validateRCS(result)
	c.validateCache(result)
	c.validateLogging(result)
	if ctx == ValidationContextConvert {
		c.validateOutput(result)
	}

	return result
}

func (c *Config) validateConversion(result *ValidationResult) {
	conv := c.Conversion
	if conv.SkewTolerance <= 0 {
		result.AddError("conversion.skew_tolerance must be positive, got %s", conv.SkewTolerance)
	}

	switch conv.MessageMatch {
	case "exact":
		if conv.FuzzyThreshold != Default().Conversion.FuzzyThreshold {
			result.AddWarning("conversion.fuzzy_threshold is ignored with exact message matching")
		}
	case "fuzzy":
		if conv.FuzzyThreshold < 0 || conv.FuzzyThreshold >= 1 {
			result.AddError("conversion.fuzzy_threshold must be in [0, 1), got %g", conv.FuzzyThreshold)
		}
	default:
		result.AddError("conversion.message_match must be exact or fuzzy, got %q", conv.MessageMatch)
	}

	switch conv.TagReconciliation {
	case "strict-fail", "pick-latest":
	default:
		result.AddError("conversion.tag_reconciliation must be strict-fail or pick-latest, got %q",
			conv.TagReconciliation)
	}

	if err := checkRefName(conv.TrunkBranch); err != nil {
		result.AddError("conversion.trunk_branch: %v", err)
	}
}

func (c *Config) validateRCS(result *ValidationResult) {
	if c.RCS.RlogPath == "" {
		result.AddError("rcs.rlog_path is required")
	}
	if c.RCS.CoPath == "" {
		result.AddError("rcs.co_path is required")
	}
	if c.RCS.Workers < 0 {
		result.AddError("rcs.workers cannot be negative")
	}
	if c.RCS.RateLimit < 0 {
		result.AddError("rcs.rate_limit cannot be negative")
	}
}

func (c *Config) validateCache(result *ValidationResult) {
	if c.Cache.Enabled && c.Cache.Path == "" {
		result.AddError("cache.path is required when the cache is enabled")
	}
}

func (c *Config) validateLogging(result *ValidationResult) {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		result.AddError("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		result.AddError("logging.format must be text or json, got %q", c.Logging.Format)
	}
}

func (c *Config) validateOutput(result *ValidationResult) {
	switch c.Output.Format {
	case FormatGit:
		if c.Output.Path == "" {
			result.AddError("output.path is required for git output")
		}
		if c.Output.Path == "-" {
			result.AddError("git output cannot be written to stdout")
		}
	case FormatFastImport:
		if c.Output.Path == "" {
			result.AddWarning("output.path not set, writing the fast-import stream to stdout")
		}
	default:
		result.AddError("output.format must be %s or %s, got %q", FormatGit, FormatFastImport, c.Output.Format)
	}
}

// checkRefName applies the subset of git's ref name rules a branch name can
// break.
func checkRefName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("branch name is empty")
	case strings.HasPrefix(name, "-"), strings.HasPrefix(name, "/"), strings.HasSuffix(name, "/"):
		return fmt.Errorf("%q cannot start with - or / or end with /", name)
	case strings.HasSuffix(name, ".lock"), strings.HasSuffix(name, "."):
		return fmt.Errorf("%q cannot end with .lock or .", name)
	case strings.Contains(name, ".."), strings.Contains(name, "@{"), strings.Contains(name, "//"):
		return fmt.Errorf("%q contains a forbidden sequence", name)
	case strings.ContainsAny(name, " ~^:?*[\\\t\n"):
		return fmt.Errorf("%q contains a forbidden character", name)
	}
	return nil
}
