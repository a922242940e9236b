// Package config loads and validates the YAML configuration that drives a
// heatqueue process: worker pool sizing, sensor thresholds, heat presets,
// and the canary rollout ramp.
//
// The shape mirrors the original heating-machine configuration file
// (presets, duration ceiling, throttle thresholds, safety flags) with the
// worker/metrics/audit sections the teacher's CLI config carries.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/magyarmex/heatqueue/pkg/types"
)

// HeatPreset is one named operating point a job may run at.
type HeatPreset struct {
	Name                     string  `yaml:"name"`
	TargetTemperatureC       float64 `yaml:"target_temperature_c"`
	RampRateCPerMinute       float64 `yaml:"ramp_rate_c_per_minute"`
	HighRisk                 bool    `yaml:"high_risk"`
	RequiresElevatedApproval bool    `yaml:"requires_elevated_approval"`
}

func (p HeatPreset) validate() error {
	if p.Name == "" {
		return fmt.Errorf("heat preset name cannot be empty")
	}
	if p.TargetTemperatureC <= 0 {
		return fmt.Errorf("target temperature for preset %q must be positive", p.Name)
	}
	if p.RampRateCPerMinute <= 0 {
		return fmt.Errorf("ramp rate for preset %q must be positive", p.Name)
	}
	return nil
}

// DurationCeiling bounds how long a single job may run and how long the
// queue must cool down between admissions of the same preset.
type DurationCeiling struct {
	MaxMinutes      int `yaml:"max_minutes"`
	CooldownMinutes int `yaml:"cooldown_minutes"`
}

func (d DurationCeiling) validate() error {
	if d.MaxMinutes <= 0 {
		return fmt.Errorf("duration_ceiling.max_minutes must be positive")
	}
	if d.CooldownMinutes < 0 {
		return fmt.Errorf("duration_ceiling.cooldown_minutes cannot be negative")
	}
	return nil
}

// ThrottleThresholds feeds queue.SensorPolicy's gating limits.
type ThrottleThresholds struct {
	MaxCPULoad        float64 `yaml:"max_cpu_load"`
	MaxTemperatureC   float64 `yaml:"max_temperature_c"`
	MaxPowerDrawWatts float64 `yaml:"max_power_draw_watts"`
}

func (t ThrottleThresholds) validate() error {
	if !(t.MaxCPULoad > 0 && t.MaxCPULoad <= 1) {
		return fmt.Errorf("throttle_thresholds.max_cpu_load must be in (0, 1]")
	}
	if t.MaxTemperatureC <= 0 {
		return fmt.Errorf("throttle_thresholds.max_temperature_c must be positive")
	}
	if t.MaxPowerDrawWatts <= 0 {
		return fmt.Errorf("throttle_thresholds.max_power_draw_watts must be positive")
	}
	return nil
}

// SafetyFlags toggles whether high-risk presets are reachable at all.
type SafetyFlags struct {
	DisableHighRiskModes    bool `yaml:"disable_high_risk_modes"`
	RequireElevatedApproval bool `yaml:"require_elevated_approval"`
}

// WorkerSection controls queue.Config sizing.
type WorkerSection struct {
	Count             int           `yaml:"count"`
	MaxQueueSize      int           `yaml:"max_queue_size"`
	TaskTimeout       time.Duration `yaml:"task_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// MetricsSection controls internal/healthsrv's exporter.
type MetricsSection struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// AuditSection controls internal/audit's append-only decision log.
type AuditSection struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Config is the fully parsed, fully validated configuration file.
type Config struct {
	Worker             WorkerSection       `yaml:"worker"`
	Metrics            MetricsSection      `yaml:"metrics"`
	Audit              AuditSection        `yaml:"audit"`
	Presets            []HeatPreset        `yaml:"presets"`
	DurationCeiling    DurationCeiling     `yaml:"duration_ceiling"`
	ThrottleThresholds ThrottleThresholds  `yaml:"throttle_thresholds"`
	Flags              SafetyFlags         `yaml:"flags"`
	CanaryStages       []types.CanaryStage `yaml:"canary_stages"`

	// DisabledHighRiskPresets records which presets validate() dropped
	// because of Flags.DisableHighRiskModes, for status reporting.
	DisabledHighRiskPresets []string `yaml:"-"`
}

// Load reads, parses, and validates the YAML configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Worker.Count <= 0 {
		cfg.Worker.Count = 4
	}
	if cfg.Worker.MaxQueueSize <= 0 {
		cfg.Worker.MaxQueueSize = 64
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Audit.Path == "" {
		cfg.Audit.Path = "heatqueue-audit.log"
	}
}

func (cfg *Config) validate() error {
	if err := cfg.DurationCeiling.validate(); err != nil {
		return err
	}
	if err := cfg.ThrottleThresholds.validate(); err != nil {
		return err
	}

	var kept []HeatPreset
	var disabled []string
	for _, preset := range cfg.Presets {
		if err := preset.validate(); err != nil {
			return err
		}
		if cfg.Flags.DisableHighRiskModes && preset.HighRisk {
			disabled = append(disabled, preset.Name)
			continue
		}
		if cfg.Flags.RequireElevatedApproval && preset.HighRisk && !preset.RequiresElevatedApproval {
			return fmt.Errorf("preset %q is high risk and requires elevated approval, but no approval flag is set", preset.Name)
		}
		kept = append(kept, preset)
	}
	if len(kept) == 0 {
		return fmt.Errorf("no enabled heat presets remain after applying safety flags")
	}
	cfg.Presets = kept
	cfg.DisabledHighRiskPresets = disabled
	return nil
}

// PresetByName looks up a preset, reporting whether it exists among the
// presets that survived validation.
func (cfg *Config) PresetByName(name string) (HeatPreset, bool) {
	for _, p := range cfg.Presets {
		if p.Name == name {
			return p, true
		}
	}
	return HeatPreset{}, false
}

// ApprovalRequired reports whether preset requires elevated approval before
// admission, matching the original config's approval_required check.
func (cfg *Config) ApprovalRequired(name string) bool {
	preset, ok := cfg.PresetByName(name)
	if !ok {
		return false
	}
	return preset.HighRisk && (cfg.Flags.RequireElevatedApproval || preset.RequiresElevatedApproval)
}
