// Package config provides environment-variable configuration loading for
// the engine and its demo CLI, in the teacher's EnvConfig/GetString/
// MustGetInt style: a small prefixed lookup helper plus typed accessors,
// generalized here from service/database/registry settings to the knobs
// spec.md §3/§4.5/§4.8 actually exposes — eviction capacity, the fixpoint
// iteration ceiling, and logging level — instead of inventing unrelated
// configuration surface.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvConfig provides utilities for loading configuration from environment
// variables under an optional common prefix.
type EnvConfig struct {
	prefix string
}

// NewEnvConfig creates a new environment configuration loader.
func NewEnvConfig(prefix string) *EnvConfig {
	return &EnvConfig{prefix: prefix}
}

// GetString retrieves a string value from environment with optional default.
func (ec *EnvConfig) GetString(key, defaultValue string) string {
	fullKey := ec.buildKey(key)
	if value := os.Getenv(fullKey); value != "" {
		return value
	}
	return defaultValue
}

// MustGetString retrieves a required string value from environment or panics.
func (ec *EnvConfig) MustGetString(key string) string {
	fullKey := ec.buildKey(key)
	value := os.Getenv(fullKey)
	if value == "" {
		panic(fmt.Sprintf("required environment variable %s not set", fullKey))
	}
	return value
}

// GetInt retrieves an integer value from environment with optional default.
func (ec *EnvConfig) GetInt(key string, defaultValue int) int {
	fullKey := ec.buildKey(key)
	if value := os.Getenv(fullKey); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// MustGetInt retrieves a required integer value from environment or panics.
func (ec *EnvConfig) MustGetInt(key string) int {
	fullKey := ec.buildKey(key)
	value := os.Getenv(fullKey)
	if value == "" {
		panic(fmt.Sprintf("required environment variable %s not set", fullKey))
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		panic(fmt.Sprintf("environment variable %s is not a valid integer: %v", fullKey, err))
	}
	return intValue
}

// GetBool retrieves a boolean value from environment with optional default.
func (ec *EnvConfig) GetBool(key string, defaultValue bool) bool {
	fullKey := ec.buildKey(key)
	if value := os.Getenv(fullKey); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// GetDuration retrieves a duration value from environment with optional default.
func (ec *EnvConfig) GetDuration(key string, defaultValue time.Duration) time.Duration {
	fullKey := ec.buildKey(key)
	if value := os.Getenv(fullKey); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func (ec *EnvConfig) buildKey(key string) string {
	if ec.prefix != "" {
		return ec.prefix + "_" + key
	}
	return key
}

// EngineOptions configures the knobs the engine itself exposes: memo
// eviction capacity per function (spec.md §4.5), the fixpoint iteration
// ceiling (spec.md §4.8, default cycle.DefaultMaxIterations), and the
// ambient logging level (spec.md §7 "Logging").
type EngineOptions struct {
	EvictionCapacity      int
	MaxFixpointIterations int
	LogLevel              string
	LogFormat             string
}

// LoadEngineOptions loads EngineOptions from environment variables under
// prefix (e.g. "CASCADE"), falling back to spec.md's defaults.
func LoadEngineOptions(prefix string) EngineOptions {
	env := NewEnvConfig(prefix)
	return EngineOptions{
		EvictionCapacity:      env.GetInt("EVICTION_CAPACITY", 0),
		MaxFixpointIterations: env.GetInt("MAX_FIXPOINT_ITERATIONS", 200),
		LogLevel:              env.GetString("LOG_LEVEL", "info"),
		LogFormat:             env.GetString("LOG_FORMAT", "text"),
	}
}

// ServeOptions configures cmd/cascadectl's "serve" subcommand, the
// optional cascadehttp debug surface and diagnostics recorder.
type ServeOptions struct {
	HTTPPort        int
	TrackerCapacity int
	DiagnosticsPath string
	MetricsNamespace string
}

// LoadServeOptions loads ServeOptions from environment variables under prefix.
func LoadServeOptions(prefix string) ServeOptions {
	env := NewEnvConfig(prefix)
	return ServeOptions{
		HTTPPort:         env.GetInt("HTTP_PORT", 7777),
		TrackerCapacity:  env.GetInt("TRACKER_CAPACITY", 1000),
		DiagnosticsPath:  env.GetString("DIAGNOSTICS_PATH", ""),
		MetricsNamespace: env.GetString("METRICS_NAMESPACE", "cascade"),
	}
}

// Validator accumulates configuration validation errors, matching the
// teacher's fluent Validator shape.
type Validator struct {
	errors []string
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{errors: make([]string, 0)}
}

// RequireString validates that a string field is not empty.
func (v *Validator) RequireString(field, value string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
	}
}

// RequirePositiveInt validates that an integer field is positive.
func (v *Validator) RequirePositiveInt(field string, value int) {
	if value <= 0 {
		v.errors = append(v.errors, fmt.Sprintf("%s must be positive", field))
	}
}

// RequireOneOf validates that a value is one of the allowed options.
func (v *Validator) RequireOneOf(field, value string, allowed []string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
		return
	}
	for _, option := range allowed {
		if value == option {
			return
		}
	}
	v.errors = append(v.errors, fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")))
}

// IsValid returns true if there are no validation errors.
func (v *Validator) IsValid() bool { return len(v.errors) == 0 }

// Errors returns all validation errors.
func (v *Validator) Errors() []string { return v.errors }

// Validate runs validation and returns an error if invalid.
func (v *Validator) Validate() error {
	if !v.IsValid() {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(v.errors, "; "))
	}
	return nil
}

// ValidateEngineOptions applies spec.md's constraints to opts: the
// fixpoint ceiling must be positive, and the log level must be one logrus
// understands.
func ValidateEngineOptions(opts EngineOptions) error {
	v := NewValidator()
	v.RequirePositiveInt("MaxFixpointIterations", opts.MaxFixpointIterations)
	v.RequireOneOf("LogLevel", opts.LogLevel, []string{"trace", "debug", "info", "warn", "error"})
	v.RequireOneOf("LogFormat", opts.LogFormat, []string{"text", "json"})
	return v.Validate()
}
