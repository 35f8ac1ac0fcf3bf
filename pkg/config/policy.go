package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/topstolenname/metaconcord/pkg/contracts"
)

// policyFile is the YAML shape of a governance policy document. Thresholds
// are keyed by decision-class name so operators write "D1: 0.75" rather
// than internal enum values.
type policyFile struct {
	LogLevel   string             `yaml:"log_level"`
	Thresholds map[string]float64 `yaml:"thresholds"`

	VotingPeriod   string `yaml:"voting_period"`
	MerkleInterval *int   `yaml:"merkle_interval"`

	BondBase       *float64 `yaml:"bond_base"`
	BondMultiplier *float64 `yaml:"bond_multiplier"`
	AppealWindow   string   `yaml:"appeal_window"`

	EmergencyExpiry         string   `yaml:"emergency_expiry"`
	EmergencyBaseThreshold  *float64 `yaml:"emergency_base_threshold"`
	EmergencyEscalationStep *float64 `yaml:"emergency_escalation_step"`

	MediationTimeout string `yaml:"mediation_timeout"`

	SanctionRepeatWindow string   `yaml:"sanction_repeat_window"`
	SanctionCleanPeriod  string   `yaml:"sanction_clean_period"`
	CriticalViolations   []string `yaml:"critical_violations"`

	CustodyThreshold *int `yaml:"custody_threshold"`
}

// LoadFile overlays a YAML policy file onto the defaults. Unset fields keep
// their defaults; a malformed field is an error, never a silent fallback.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load policy %q: %w", path, err)
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse policy %q: %w", path, err)
	}

	cfg := Default()
	if pf.LogLevel != "" {
		cfg.LogLevel = pf.LogLevel
	}
	for name, ratio := range pf.Thresholds {
		class, err := contracts.ParseDecisionClass(name)
		if err != nil {
			return nil, fmt.Errorf("policy %q: %w", path, err)
		}
		if ratio <= 0 || ratio > 1 {
			return nil, fmt.Errorf("policy %q: threshold for %s out of (0,1]: %v", path, class, ratio)
		}
		cfg.Thresholds[class] = ratio
	}

	durations := []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{pf.VotingPeriod, &cfg.VotingPeriod, "voting_period"},
		{pf.AppealWindow, &cfg.AppealWindow, "appeal_window"},
		{pf.EmergencyExpiry, &cfg.EmergencyExpiry, "emergency_expiry"},
		{pf.MediationTimeout, &cfg.MediationTimeout, "mediation_timeout"},
		{pf.SanctionRepeatWindow, &cfg.SanctionRepeatWindow, "sanction_repeat_window"},
		{pf.SanctionCleanPeriod, &cfg.SanctionCleanPeriod, "sanction_clean_period"},
	}
	for _, d := range durations {
		if err := parseDurationInto(d.raw, d.dst); err != nil {
			return nil, fmt.Errorf("policy %q: %s: %w", path, d.name, err)
		}
	}

	if pf.MerkleInterval != nil {
		cfg.MerkleInterval = *pf.MerkleInterval
	}
	if pf.BondBase != nil {
		cfg.BondBase = *pf.BondBase
	}
	if pf.BondMultiplier != nil {
		cfg.BondMultiplier = *pf.BondMultiplier
	}
	if pf.EmergencyBaseThreshold != nil {
		cfg.EmergencyBaseThreshold = *pf.EmergencyBaseThreshold
	}
	if pf.EmergencyEscalationStep != nil {
		cfg.EmergencyEscalationStep = *pf.EmergencyEscalationStep
	}
	if len(pf.CriticalViolations) > 0 {
		cfg.CriticalViolations = pf.CriticalViolations
	}
	if pf.CustodyThreshold != nil {
		cfg.CustodyThreshold = *pf.CustodyThreshold
	}
	return cfg, nil
}

func parseDurationInto(raw string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
