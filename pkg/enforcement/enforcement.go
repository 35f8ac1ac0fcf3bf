// Package enforcement applies Capability Manifests to governed scopes,
// authorizes individual actions against the manifest and the Constraint
// Set, and runs the graduated sanctions ladder. The Enforcer interface is
// the only boundary a production backend (real sandbox, network policy
// system) must implement; the in-process Sandbox is the reference variant.
package enforcement

import (
	"time"

	"github.com/topstolenname/metaconcord/pkg/contracts"
)

// Action is one attempted action by a governed scope.
type Action struct {
	Name          string         `json:"name"`
	Tool          string         `json:"tool,omitempty"`
	DataPath      string         `json:"data_path,omitempty"`
	NetworkTarget string         `json:"network_target,omitempty"`
	ComputeCost   int64          `json:"compute_cost,omitempty"`
	Irreversible  bool           `json:"irreversible,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
}

// CheckResult is the authorization verdict for one action. Reason carries
// the first failing check; deeper checks are not evaluated.
type CheckResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// ScopeState is a point-in-time report on one governed scope. RecentDenials
// holds a bounded tail of denial reasons.
type ScopeState struct {
	Scope           string                  `json:"scope"`
	ManifestVersion int                     `json:"manifest_version"`
	SanctionLevel   contracts.SanctionLevel `json:"sanction_level"`
	Suspended       bool                    `json:"suspended"`
	Quarantined     bool                    `json:"quarantined"`
	Terminated      bool                    `json:"terminated"`
	ComputeUsed     int64                   `json:"compute_used"`
	DeniedCount     int                     `json:"denied_count"`
	RecentDenials   []string                `json:"recent_denials,omitempty"`
	LastViolation   time.Time               `json:"last_violation,omitempty"`
}

// Enforcer is the five-operation enforcement contract.
type Enforcer interface {
	// ApplyManifest binds a Capability Manifest to a scope, replacing any
	// prior manifest.
	ApplyManifest(scope string, m contracts.CapabilityManifest) error

	// CheckAction reports whether the action is allowed for the scope under
	// its manifest and the given Constraint Set.
	CheckAction(scope string, act Action, cs contracts.ConstraintSet) CheckResult

	// Revoke removes capabilities from a scope at the named severity
	// (THROTTLE..TERMINATE).
	Revoke(scope string, severity contracts.SanctionLevel) error

	// ApplySanction records a violation and moves the scope on the
	// sanctions ladder, returning the resulting level.
	ApplySanction(scope, violationType, reason string) (contracts.SanctionLevel, error)

	// State reports the scope's current enforcement state.
	State(scope string) (ScopeState, bool)
}
