package contracts

import "fmt"

// ObjectionBasis is the closed vocabulary of grounds an objection may cite.
type ObjectionBasis string

const (
	BasisMissingEPFields     ObjectionBasis = "missing_ep_fields"
	BasisThresholdFailure    ObjectionBasis = "threshold_failure"
	BasisLogIntegrityConcern ObjectionBasis = "log_integrity_concern"
	BasisInadequateImpact    ObjectionBasis = "inadequate_impact_statement"
	BasisConstraintMismatch  ObjectionBasis = "cs_cm_mismatch"
)

// Valid reports whether b is in the closed vocabulary.
func (b ObjectionBasis) Valid() bool {
	switch b {
	case BasisMissingEPFields, BasisThresholdFailure, BasisLogIntegrityConcern,
		BasisInadequateImpact, BasisConstraintMismatch:
		return true
	}
	return false
}

// ParseObjectionBasis converts a wire string into an ObjectionBasis.
func ParseObjectionBasis(s string) (ObjectionBasis, error) {
	b := ObjectionBasis(s)
	if !b.Valid() {
		return "", fmt.Errorf("invalid objection basis %q", s)
	}
	return b, nil
}

// VetoCategory restricts what a veto may be grounded on.
type VetoCategory string

const (
	VetoIrreversiblePhysical VetoCategory = "irreversible_physical_action"
	VetoPrivacyDisclosure    VetoCategory = "privacy_sensitive_disclosure"
	VetoCapabilityExpansion  VetoCategory = "capability_expansion_beyond_audit"
	VetoKeyCustodyRotation   VetoCategory = "key_custody_rotation"
)

// Valid reports whether v is a recognized veto category.
func (v VetoCategory) Valid() bool {
	switch v {
	case VetoIrreversiblePhysical, VetoPrivacyDisclosure,
		VetoCapabilityExpansion, VetoKeyCustodyRotation:
		return true
	}
	return false
}

// ParseVetoCategory converts a wire string into a VetoCategory.
func ParseVetoCategory(s string) (VetoCategory, error) {
	v := VetoCategory(s)
	if !v.Valid() {
		return "", fmt.Errorf("invalid veto category %q", s)
	}
	return v, nil
}
