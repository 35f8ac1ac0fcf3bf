package contracts

// ConstraintSet names the actions a governed scope must never take and the
// invariants that must hold around every action. Forbidden actions are glob
// patterns; invariants are CEL boolean expressions over the enforcement
// environment (action, scope, context).
type ConstraintSet struct {
	Version          int      `json:"version"`
	ForbiddenActions []string `json:"forbidden_actions"`
	Invariants       []string `json:"invariants"`
	VetoCategories   []string `json:"veto_categories"`
}

// DefaultConstraintSet returns the baseline constitution.
func DefaultConstraintSet() ConstraintSet {
	return ConstraintSet{
		Version: 1,
		ForbiddenActions: []string{
			"system.shutdown",
			"audit.tamper*",
			"custody.rotate_without_decision",
		},
		Invariants: []string{
			`!(context.irreversible && context.emergency_active)`,
		},
		VetoCategories: []string{
			string(VetoIrreversiblePhysical),
			string(VetoPrivacyDisclosure),
			string(VetoCapabilityExpansion),
			string(VetoKeyCustodyRotation),
		},
	}
}

// Restricted returns a strictly more restrictive copy, used by the
// default-to-safety stage of deadlock resolution. It never loosens anything:
// existing forbids stay, and broad safety forbids are added.
func (cs ConstraintSet) Restricted() ConstraintSet {
	out := cs
	out.Version = cs.Version + 1
	out.ForbiddenActions = append(append([]string{}, cs.ForbiddenActions...),
		"*.irreversible*",
		"network.egress*",
		"capability.expand*",
	)
	out.Invariants = append(append([]string{}, cs.Invariants...),
		`!context.irreversible`,
	)
	out.VetoCategories = append([]string{}, cs.VetoCategories...)
	return out
}

// CapabilityManifest is the allow/deny/scope/quota policy governing
// what a scope may do. Tool names are matched exactly; data scopes and
// network egress entries are glob patterns.
type CapabilityManifest struct {
	Version       int      `json:"version"`
	AllowedTools  []string `json:"allowed_tools"`
	DeniedTools   []string `json:"denied_tools"`
	DataScopes    []string `json:"data_scopes"`
	NetworkEgress []string `json:"network_egress"`
	ComputeQuota  int64    `json:"compute_quota"`
}

// DefaultManifest returns a conservative default manifest.
func DefaultManifest() CapabilityManifest {
	return CapabilityManifest{
		Version:       1,
		AllowedTools:  []string{"read", "write", "compute"},
		DeniedTools:   []string{"shell", "deploy"},
		DataScopes:    []string{"workspace/*"},
		NetworkEgress: []string{},
		ComputeQuota:  1_000_000,
	}
}

// Restricted returns a strictly tighter manifest for default-to-safety:
// read-only tooling, no egress, and a fraction of the compute quota.
func (m CapabilityManifest) Restricted() CapabilityManifest {
	out := m
	out.Version = m.Version + 1
	out.AllowedTools = []string{"read"}
	out.DeniedTools = append(append([]string{}, m.DeniedTools...), "write", "compute", "shell", "deploy")
	out.NetworkEgress = []string{}
	out.ComputeQuota = m.ComputeQuota / 10
	return out
}
