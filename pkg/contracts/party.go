// Package contracts defines the shared types and policy constants of the
// Meta-Concord protocol: party and decision classes, lifecycle states,
// sanction levels, the Constraint Set and Capability Manifest value objects,
// and the Result envelope every engine operation returns.
package contracts

import (
	"fmt"
	"time"
)

// PartyClass identifies one of the three constituencies whose joint assent
// is required for binding decisions.
type PartyClass string

const (
	PartyHuman          PartyClass = "H"
	PartyAgent          PartyClass = "A"
	PartyInfrastructure PartyClass = "I"
)

// AllPartyClasses returns the three classes in canonical order.
func AllPartyClasses() []PartyClass {
	return []PartyClass{PartyHuman, PartyAgent, PartyInfrastructure}
}

// Valid reports whether c is a known party class.
func (c PartyClass) Valid() bool {
	switch c {
	case PartyHuman, PartyAgent, PartyInfrastructure:
		return true
	}
	return false
}

// ParsePartyClass converts a wire string into a PartyClass.
func ParsePartyClass(s string) (PartyClass, error) {
	c := PartyClass(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown party class %q (want H, A or I)", s)
	}
	return c, nil
}

// Party is a registered voting member. Immutable except removal.
type Party struct {
	ID           string     `json:"id"`
	Class        PartyClass `json:"class"`
	Scope        string     `json:"representation_scope,omitempty"`
	Conflicts    []string   `json:"declared_conflicts,omitempty"`
	RegisteredAt time.Time  `json:"registered_at"`
}

// VoteRecord is one party's vote on one decision. The class is denormalized
// at cast time so proofs stay recomputable even if the registry changes.
type VoteRecord struct {
	PartyID   string     `json:"party_id"`
	Class     PartyClass `json:"party_class"`
	Approve   bool       `json:"approve"`
	Timestamp time.Time  `json:"timestamp"`
	Signature string     `json:"signature,omitempty"`
}
