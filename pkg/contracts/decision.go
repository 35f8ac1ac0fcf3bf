package contracts

import "fmt"

// DecisionClass ranks a proposal's governance weight, from pre-authorized
// routine (D0) to constitutional (D4).
type DecisionClass string

const (
	D0 DecisionClass = "D0" // pre-authorized routine, no proof required
	D1 DecisionClass = "D1" // Constraint Set change
	D2 DecisionClass = "D2" // Capability Manifest change
	D3 DecisionClass = "D3" // operational, simple majority
	D4 DecisionClass = "D4" // constitutional
)

// Valid reports whether c is a known decision class.
func (c DecisionClass) Valid() bool {
	switch c {
	case D0, D1, D2, D3, D4:
		return true
	}
	return false
}

// RequiresGovernance reports whether the class must pass quorum and
// threshold proofs. D0 is pre-authorized and requires none.
func (c DecisionClass) RequiresGovernance() bool {
	return c != D0
}

// PermanentChange reports whether the class mutates the Constraint Set or
// Capability Manifest. These are banned while an emergency is active.
func (c DecisionClass) PermanentChange() bool {
	return c == D1 || c == D2
}

// ParseDecisionClass converts a wire string into a DecisionClass.
func ParseDecisionClass(s string) (DecisionClass, error) {
	c := DecisionClass(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown decision class %q (want D0..D4)", s)
	}
	return c, nil
}

// DefaultThresholds returns the approval ratio each governed class must
// clear. D0 carries no threshold.
func DefaultThresholds() map[DecisionClass]float64 {
	return map[DecisionClass]float64{
		D1: 2.0 / 3.0,
		D2: 2.0 / 3.0,
		D3: 0.5,
		D4: 0.75,
	}
}

// DecisionState is one node of the decision lifecycle state machine.
type DecisionState string

const (
	StateProposed DecisionState = "PROPOSED"
	StateVoting   DecisionState = "VOTING"
	StateObjected DecisionState = "OBJECTED"
	StateAppealed DecisionState = "APPEALED"
	StateApproved DecisionState = "APPROVED"
	StateRejected DecisionState = "REJECTED"
	StateExecuted DecisionState = "EXECUTED"
	StateExpired  DecisionState = "EXPIRED"
)

// Terminal reports whether the state admits no further transitions.
func (s DecisionState) Terminal() bool {
	return s == StateExecuted || s == StateExpired
}
