// Package bridge provides SimulationBridge — the two callback points a
// simulation loop wires the governance engine into. The engine never calls
// back into the simulation; it is purely invoked by it.
package bridge

import (
	"log/slog"

	"github.com/topstolenname/metaconcord/pkg/enforcement"
	"github.com/topstolenname/metaconcord/pkg/governance"
)

// EpochReport summarizes what the per-epoch sweep found.
type EpochReport struct {
	EmergencyExpired  bool     `json:"emergency_expired"`
	ExpiredDecisions  []string `json:"expired_decisions,omitempty"`
	DeescalatedScopes []string `json:"deescalated_scopes,omitempty"`
}

// SimulationBridge wires a governance engine into a simulation loop.
type SimulationBridge struct {
	engine *governance.Engine
	logger *slog.Logger
}

// New creates a bridge around an engine.
func New(engine *governance.Engine) *SimulationBridge {
	return &SimulationBridge{
		engine: engine,
		logger: slog.Default(),
	}
}

// WithLogger overrides the structured logger.
func (b *SimulationBridge) WithLogger(logger *slog.Logger) *SimulationBridge {
	b.logger = logger
	return b
}

// BeforeAgentAct checks one intended action against enforcement state.
// A denial is logged as a warning and reported to the caller; the bridge
// never halts the simulation itself.
func (b *SimulationBridge) BeforeAgentAct(scope string, act enforcement.Action) enforcement.CheckResult {
	res := b.engine.CheckAction(scope, act)
	if !res.Allowed {
		b.logger.Warn("action blocked",
			"scope", scope,
			"action", act.Name,
			"reason", res.Reason,
		)
	}
	return res
}

// AfterEpoch runs the cooperative time-based sweeps: emergency auto-expiry,
// voting-deadline expiry, and sanction de-escalation.
func (b *SimulationBridge) AfterEpoch() EpochReport {
	report := EpochReport{
		EmergencyExpired: b.engine.CheckEmergencyExpiry(),
		ExpiredDecisions: b.engine.ExpireDecisions(),
	}
	if sb, ok := b.engine.Enforcer().(*enforcement.Sandbox); ok {
		report.DeescalatedScopes = sb.CheckDeescalation()
	}
	if report.EmergencyExpired || len(report.ExpiredDecisions) > 0 || len(report.DeescalatedScopes) > 0 {
		b.logger.Info("epoch sweep",
			"emergency_expired", report.EmergencyExpired,
			"expired_decisions", len(report.ExpiredDecisions),
			"deescalated_scopes", len(report.DeescalatedScopes),
		)
	}
	return report
}
