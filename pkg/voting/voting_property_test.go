//go:build property
// +build property

// Package voting_test contains property-based tests for the anti-capture
// guarantees of the quorum and threshold proofs.
package voting_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/topstolenname/metaconcord/pkg/contracts"
	"github.com/topstolenname/metaconcord/pkg/voting"
)

// TestSingleClassNeverBinds verifies that a vote set whose approvals all
// come from one party class never satisfies the threshold, for any governed
// decision class and any number of approvals.
func TestSingleClassNeverBinds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	classes := []contracts.PartyClass{
		contracts.PartyHuman, contracts.PartyAgent, contracts.PartyInfrastructure,
	}
	decisionClasses := []contracts.DecisionClass{
		contracts.D1, contracts.D2, contracts.D3, contracts.D4,
	}

	properties.Property("approvals from one class never satisfy threshold", prop.ForAll(
		func(classIdx, dcIdx, approvers, rejectors int) bool {
			approvingClass := classes[classIdx%len(classes)]
			dc := decisionClasses[dcIdx%len(decisionClasses)]

			var votes []contracts.VoteRecord
			for i := 0; i < approvers%20+1; i++ {
				votes = append(votes, contracts.VoteRecord{
					PartyID: "p", Class: approvingClass, Approve: true,
				})
			}
			for i := 0; i < rejectors%20; i++ {
				votes = append(votes, contracts.VoteRecord{
					PartyID: "q", Class: classes[(classIdx+1)%len(classes)], Approve: false,
				})
			}

			return !voting.CheckThreshold(votes, dc, nil).Satisfied
		},
		gen.IntRange(0, 2),
		gen.IntRange(0, 3),
		gen.IntRange(0, 100),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

// TestQuorumRequiresEveryClass verifies that any vote set missing at least
// one party class fails quorum.
func TestQuorumRequiresEveryClass(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	classes := []contracts.PartyClass{
		contracts.PartyHuman, contracts.PartyAgent, contracts.PartyInfrastructure,
	}

	properties.Property("missing class fails quorum", prop.ForAll(
		func(missingIdx, count int) bool {
			missing := classes[missingIdx%len(classes)]
			var votes []contracts.VoteRecord
			for i := 0; i < count%30; i++ {
				c := classes[i%len(classes)]
				if c == missing {
					continue
				}
				votes = append(votes, contracts.VoteRecord{
					PartyID: "p", Class: c, Approve: i%2 == 0,
				})
			}
			return !voting.CheckQuorum(votes).Satisfied
		},
		gen.IntRange(0, 2),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}
