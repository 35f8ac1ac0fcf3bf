// Package config loads the governance policy knobs, from environment
// variables for quick overrides and from a YAML policy file for full
// deployments. Defaults mirror the constitutional constants.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/topstolenname/metaconcord/pkg/contracts"
)

// Config holds every tunable governance parameter.
type Config struct {
	LogLevel string `yaml:"log_level"`

	// Thresholds maps decision classes to required approval ratios.
	// Missing classes fall back to the constitutional defaults.
	Thresholds map[contracts.DecisionClass]float64 `yaml:"thresholds"`

	VotingPeriod   time.Duration `yaml:"voting_period"`
	MerkleInterval int           `yaml:"merkle_interval"`

	BondBase       float64       `yaml:"bond_base"`
	BondMultiplier float64       `yaml:"bond_multiplier"`
	AppealWindow   time.Duration `yaml:"appeal_window"`

	EmergencyExpiry         time.Duration `yaml:"emergency_expiry"`
	EmergencyBaseThreshold  float64       `yaml:"emergency_base_threshold"`
	EmergencyEscalationStep float64       `yaml:"emergency_escalation_step"`

	MediationTimeout time.Duration `yaml:"mediation_timeout"`

	SanctionRepeatWindow time.Duration `yaml:"sanction_repeat_window"`
	SanctionCleanPeriod  time.Duration `yaml:"sanction_clean_period"`
	CriticalViolations   []string      `yaml:"critical_violations"`

	CustodyThreshold int `yaml:"custody_threshold"`
}

// Default returns the constitutional defaults.
func Default() *Config {
	return &Config{
		LogLevel:                "INFO",
		Thresholds:              contracts.DefaultThresholds(),
		VotingPeriod:            72 * time.Hour,
		MerkleInterval:          5,
		BondBase:                10,
		BondMultiplier:          2,
		AppealWindow:            72 * time.Hour,
		EmergencyExpiry:         24 * time.Hour,
		EmergencyBaseThreshold:  2.0 / 3.0,
		EmergencyEscalationStep: 0.1,
		MediationTimeout:        600 * time.Second,
		SanctionRepeatWindow:    time.Hour,
		SanctionCleanPeriod:     24 * time.Hour,
		CriticalViolations:      []string{"audit_tamper", "custody_bypass"},
		CustodyThreshold:        2,
	}
}

// Load builds a config from defaults overlaid with environment variables.
func Load() *Config {
	cfg := Default()

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if d, ok := envDuration("MCX_VOTING_PERIOD"); ok {
		cfg.VotingPeriod = d
	}
	if n, ok := envInt("MCX_MERKLE_INTERVAL"); ok {
		cfg.MerkleInterval = n
	}
	if f, ok := envFloat("MCX_BOND_BASE"); ok {
		cfg.BondBase = f
	}
	if f, ok := envFloat("MCX_BOND_MULTIPLIER"); ok {
		cfg.BondMultiplier = f
	}
	if d, ok := envDuration("MCX_APPEAL_WINDOW"); ok {
		cfg.AppealWindow = d
	}
	if d, ok := envDuration("MCX_EMERGENCY_EXPIRY"); ok {
		cfg.EmergencyExpiry = d
	}
	if f, ok := envFloat("MCX_EMERGENCY_BASE_THRESHOLD"); ok {
		cfg.EmergencyBaseThreshold = f
	}
	if f, ok := envFloat("MCX_EMERGENCY_ESCALATION_STEP"); ok {
		cfg.EmergencyEscalationStep = f
	}
	if d, ok := envDuration("MCX_MEDIATION_TIMEOUT"); ok {
		cfg.MediationTimeout = d
	}
	if d, ok := envDuration("MCX_SANCTION_REPEAT_WINDOW"); ok {
		cfg.SanctionRepeatWindow = d
	}
	if d, ok := envDuration("MCX_SANCTION_CLEAN_PERIOD"); ok {
		cfg.SanctionCleanPeriod = d
	}
	if n, ok := envInt("MCX_CUSTODY_THRESHOLD"); ok {
		cfg.CustodyThreshold = n
	}
	return cfg
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
