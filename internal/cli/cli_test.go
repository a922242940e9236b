package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magyarmex/heatqueue/pkg/types"
)

const validConfigYAML = `
worker:
  count: 2
  max_queue_size: 8
presets:
  - name: low
    target_temperature_c: 40
    ramp_rate_c_per_minute: 2
duration_ceiling:
  max_minutes: 30
throttle_thresholds:
  max_cpu_load: 0.8
  max_temperature_c: 90
  max_power_draw_watts: 1500
`

func writeConfig(t *testing.T, yamlBody string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))
	return path
}

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "heatqueue", cmd.Use, "root command should be 'heatqueue'")
	assert.Equal(t, "1.0.0", cmd.Version, "version should be 1.0.0")

	commands := cmd.Commands()
	assert.Len(t, commands, 3, "should have 3 subcommands")

	names := make(map[string]bool)
	for _, c := range commands {
		names[c.Use] = true
	}
	assert.True(t, names["run"], "should have 'run' command")
	assert.True(t, names["enqueue"], "should have 'enqueue' command")
	assert.True(t, names["status"], "should have 'status' command")

	configFlag := cmd.PersistentFlags().Lookup("config")
	assert.NotNil(t, configFlag, "should have --config flag")
	assert.Equal(t, "configs/default.yaml", configFlag.DefValue, "default config path should be configs/default.yaml")
}

func TestBuildRunCommand(t *testing.T) {
	cmd := buildRunCommand()

	assert.NotNil(t, cmd)
	assert.Equal(t, "run", cmd.Use)
	assert.Contains(t, cmd.Short, "Start")
	assert.NotNil(t, cmd.RunE)
}

func TestBuildEnqueueCommand(t *testing.T) {
	cmd := buildEnqueueCommand()

	assert.NotNil(t, cmd)
	assert.Equal(t, "enqueue", cmd.Use)

	fileFlag := cmd.Flags().Lookup("file")
	assert.NotNil(t, fileFlag, "should have --file flag")
	assert.Equal(t, "f", fileFlag.Shorthand, "should have -f shorthand")

	roleFlag := cmd.Flags().Lookup("role")
	assert.NotNil(t, roleFlag, "should have --role flag")
	assert.Equal(t, string(types.RoleOperator), roleFlag.DefValue)

	assert.NotNil(t, cmd.RunE)
}

func TestBuildStatusCommand(t *testing.T) {
	cmd := buildStatusCommand()

	assert.NotNil(t, cmd)
	assert.Equal(t, "status", cmd.Use)
	assert.Contains(t, cmd.Short, "status")
	assert.NotNil(t, cmd.RunE)
}

func TestEnqueueJobsInvalidFile(t *testing.T) {
	configFile = writeConfig(t, validConfigYAML)
	err := enqueueJobs("/nonexistent/jobs.json", "cli", types.RoleOperator)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read job file")
}

func TestEnqueueJobsInvalidJSON(t *testing.T) {
	configFile = writeConfig(t, validConfigYAML)

	jobFile := filepath.Join(t.TempDir(), "invalid.json")
	require.NoError(t, os.WriteFile(jobFile, []byte(`{"invalid json structure`), 0o644))

	err := enqueueJobs(jobFile, "cli", types.RoleOperator)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse job file")
}

func TestEnqueueJobsRunsBatchToCompletion(t *testing.T) {
	configFile = writeConfig(t, validConfigYAML)

	specs := []types.JobSpec{
		{Name: "warm-up", SpinMillis: 1, DurationLimit: 50 * time.Millisecond, Load: 0.5},
	}
	body, err := json.Marshal(specs)
	require.NoError(t, err)

	jobFile := filepath.Join(t.TempDir(), "jobs.json")
	require.NoError(t, os.WriteFile(jobFile, body, 0o644))

	err = enqueueJobs(jobFile, "cli", types.RoleOperator)
	assert.NoError(t, err)
}

func TestEnqueueJobsRejectsJobOutsideSafetyEnvelope(t *testing.T) {
	configFile = writeConfig(t, validConfigYAML)

	specs := []types.JobSpec{
		{Name: "over-load", SpinMillis: 1, DurationLimit: 50 * time.Millisecond, Load: 1.0},
	}
	body, err := json.Marshal(specs)
	require.NoError(t, err)

	jobFile := filepath.Join(t.TempDir(), "jobs.json")
	require.NoError(t, os.WriteFile(jobFile, body, 0o644))

	err = enqueueJobs(jobFile, "cli", types.RoleOperator)
	assert.NoError(t, err, "a safety-envelope rejection is reported, not returned as an error")
}

func TestEnqueueJobsMissingConfigFails(t *testing.T) {
	configFile = "/nonexistent/config.yaml"

	jobFile := filepath.Join(t.TempDir(), "jobs.json")
	require.NoError(t, os.WriteFile(jobFile, []byte(`[]`), 0o644))

	err := enqueueJobs(jobFile, "cli", types.RoleOperator)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestShowStatusReportsConfiguredLimits(t *testing.T) {
	configFile = writeConfig(t, validConfigYAML)
	err := showStatus()
	assert.NoError(t, err, "showStatus should not error when metrics are disabled")
}

func TestShowStatusMissingConfigFails(t *testing.T) {
	configFile = "/nonexistent/config.yaml"
	err := showStatus()
	assert.Error(t, err)
}
