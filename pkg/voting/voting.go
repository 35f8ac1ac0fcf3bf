// Package voting computes the Quorum Proof and Threshold Proof for a vote
// ledger. Both are pure, side-effect-free functions recomputed on demand;
// proofs are derived snapshots, never the source of truth.
//
// The threshold proof carries the anti-capture guarantee: no decision of
// class D1..D4 can be satisfied with affirmative votes drawn from only one
// party class, regardless of how lopsided the approval ratio is.
package voting

import (
	"github.com/topstolenname/metaconcord/pkg/contracts"
)

// QuorumProof records which party classes were present in a vote set.
// Quorum requires at least one vote (of either polarity) from each class.
type QuorumProof struct {
	Satisfied      bool                          `json:"satisfied"`
	PresentClasses map[contracts.PartyClass]bool `json:"present_classes"`
	MissingClasses []contracts.PartyClass        `json:"missing_classes,omitempty"`
	TotalVotes     int                           `json:"total_votes"`
}

// ThresholdProof records the class-aware supermajority computation.
// Satisfied requires all three checks to hold simultaneously:
// ratio met, class-wise assent, and approvals from >=2 distinct classes.
type ThresholdProof struct {
	Satisfied          bool                          `json:"satisfied"`
	DecisionClass      contracts.DecisionClass       `json:"decision_class"`
	Ratio              float64                       `json:"ratio"`
	RequiredRatio      float64                       `json:"required_ratio"`
	RatioMet           bool                          `json:"ratio_met"`
	Approvals          int                           `json:"approvals"`
	TotalVotes         int                           `json:"total_votes"`
	ClassWiseAssent    map[contracts.PartyClass]bool `json:"class_wise_assent"`
	MultiClassApproval bool                          `json:"multi_class_approval"`
}

// CheckQuorum reports whether every party class cast at least one vote.
func CheckQuorum(votes []contracts.VoteRecord) QuorumProof {
	present := make(map[contracts.PartyClass]bool, 3)
	for _, c := range contracts.AllPartyClasses() {
		present[c] = false
	}
	for _, v := range votes {
		if v.Class.Valid() {
			present[v.Class] = true
		}
	}

	var missing []contracts.PartyClass
	for _, c := range contracts.AllPartyClasses() {
		if !present[c] {
			missing = append(missing, c)
		}
	}

	return QuorumProof{
		Satisfied:      len(missing) == 0,
		PresentClasses: present,
		MissingClasses: missing,
		TotalVotes:     len(votes),
	}
}

// CheckThreshold evaluates the class-aware threshold rule for a governed
// decision class. thresholds may be nil, in which case the protocol
// defaults apply. Failing any one of the three checks fails the proof.
func CheckThreshold(votes []contracts.VoteRecord, class contracts.DecisionClass, thresholds map[contracts.DecisionClass]float64) ThresholdProof {
	if thresholds == nil {
		thresholds = contracts.DefaultThresholds()
	}
	required := thresholds[class]

	assent := make(map[contracts.PartyClass]bool, 3)
	for _, c := range contracts.AllPartyClasses() {
		assent[c] = false
	}

	approvals := 0
	approvingClasses := make(map[contracts.PartyClass]bool)
	for _, v := range votes {
		if !v.Approve {
			continue
		}
		approvals++
		if v.Class.Valid() {
			assent[v.Class] = true
			approvingClasses[v.Class] = true
		}
	}

	ratio := 0.0
	if len(votes) > 0 {
		ratio = float64(approvals) / float64(len(votes))
	}
	ratioMet := len(votes) > 0 && ratio >= required

	allAssent := true
	for _, c := range contracts.AllPartyClasses() {
		if !assent[c] {
			allAssent = false
		}
	}

	// Deliberately redundant with class-wise assent: a threshold schema
	// that drops the assent requirement still cannot be captured by a
	// single class.
	multiClass := len(approvingClasses) >= 2

	return ThresholdProof{
		Satisfied:          ratioMet && allAssent && multiClass,
		DecisionClass:      class,
		Ratio:              ratio,
		RequiredRatio:      required,
		RatioMet:           ratioMet,
		Approvals:          approvals,
		TotalVotes:         len(votes),
		ClassWiseAssent:    assent,
		MultiClassApproval: multiClass,
	}
}
