package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvConfigGetStringFallsBackToDefault(t *testing.T) {
	ec := NewEnvConfig("CASCADE_TEST")
	assert.Equal(t, "fallback", ec.GetString("MISSING", "fallback"))
}

func TestEnvConfigGetStringReadsPrefixedVar(t *testing.T) {
	t.Setenv("CASCADE_TEST_NAME", "engine")
	ec := NewEnvConfig("CASCADE_TEST")
	assert.Equal(t, "engine", ec.GetString("NAME", "default"))
}

func TestEnvConfigMustGetIntPanicsWhenUnset(t *testing.T) {
	os.Unsetenv("CASCADE_TEST_MISSING_INT")
	ec := NewEnvConfig("CASCADE_TEST")
	assert.Panics(t, func() { ec.MustGetInt("MISSING_INT") })
}

func TestLoadEngineOptionsDefaultsMatchSpec(t *testing.T) {
	opts := LoadEngineOptions("CASCADE_TEST_ENGINE")
	assert.Equal(t, 200, opts.MaxFixpointIterations)
	assert.Equal(t, "info", opts.LogLevel)
}

func TestLoadEngineOptionsHonorsEnvOverride(t *testing.T) {
	t.Setenv("CASCADE_TEST_ENGINE2_MAX_FIXPOINT_ITERATIONS", "50")
	opts := LoadEngineOptions("CASCADE_TEST_ENGINE2")
	assert.Equal(t, 50, opts.MaxFixpointIterations)
}

func TestValidateEngineOptionsRejectsBadLogLevel(t *testing.T) {
	opts := EngineOptions{MaxFixpointIterations: 10, LogLevel: "nope", LogFormat: "text"}
	err := ValidateEngineOptions(opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LogLevel")
}

func TestValidateEngineOptionsAcceptsDefaults(t *testing.T) {
	opts := LoadEngineOptions("CASCADE_TEST_ENGINE3")
	require.NoError(t, ValidateEngineOptions(opts))
}

func TestLoadServeOptionsDefaults(t *testing.T) {
	opts := LoadServeOptions("CASCADE_TEST_SERVE")
	assert.Equal(t, 7777, opts.HTTPPort)
	assert.Equal(t, "cascade", opts.MetricsNamespace)
}
