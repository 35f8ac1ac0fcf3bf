package decision

import (
	"fmt"
	"time"

	"github.com/topstolenname/metaconcord/pkg/contracts"
)

// Record is the interchange form of a Decision, suitable for JSON.
type Record struct {
	SchemaVersion   string                        `json:"schema_version"`
	ID              string                        `json:"id"`
	Class           contracts.DecisionClass       `json:"class"`
	State           contracts.DecisionState       `json:"state"`
	Proposer        string                        `json:"proposer"`
	Payload         map[string]any                `json:"payload,omitempty"`
	Rationale       string                        `json:"rationale"`
	ImpactStatement string                        `json:"impact_statement"`
	Irreversible    bool                          `json:"irreversible"`
	Votes           []contracts.VoteRecord        `json:"votes"`
	Objections      []string                      `json:"objections,omitempty"`
	Appeals         []string                      `json:"appeals,omitempty"`
	Constraints     *contracts.ConstraintSet      `json:"proposed_constraints,omitempty"`
	Manifest        *contracts.CapabilityManifest `json:"proposed_manifest,omitempty"`
	CreatedAt       time.Time                     `json:"created_at"`
	VotingDeadline  time.Time                     `json:"voting_deadline"`
	FinalizedAt     time.Time                     `json:"finalized_at,omitempty"`
}

// Record snapshots the decision into its interchange form.
func (d *Decision) Record() Record {
	votes := d.Votes()

	d.mu.Lock()
	defer d.mu.Unlock()
	return Record{
		SchemaVersion:   contracts.SchemaVersion,
		ID:              d.id,
		Class:           d.class,
		State:           d.state,
		Proposer:        d.proposer,
		Payload:         d.payload,
		Rationale:       d.rationale,
		ImpactStatement: d.impactStatement,
		Irreversible:    d.irreversible,
		Votes:           votes,
		Objections:      append([]string{}, d.objections...),
		Appeals:         append([]string{}, d.appeals...),
		Constraints:     d.proposedConstraints,
		Manifest:        d.proposedManifest,
		CreatedAt:       d.createdAt,
		VotingDeadline:  d.votingDeadline,
		FinalizedAt:     d.finalizedAt,
	}
}

// FromRecord reconstructs a decision from its interchange form.
func FromRecord(r Record) (*Decision, error) {
	if err := contracts.CheckSchemaVersion(r.SchemaVersion); err != nil {
		return nil, fmt.Errorf("decision record: %w", err)
	}
	if r.ID == "" {
		return nil, fmt.Errorf("decision record: missing id")
	}
	if !r.Class.Valid() {
		return nil, fmt.Errorf("decision record: unknown class %q", r.Class)
	}

	d := &Decision{
		id:                  r.ID,
		class:               r.Class,
		state:               r.State,
		proposer:            r.Proposer,
		payload:             r.Payload,
		rationale:           r.Rationale,
		impactStatement:     r.ImpactStatement,
		irreversible:        r.Irreversible,
		votes:               make(map[string]contracts.VoteRecord, len(r.Votes)),
		objections:          append([]string{}, r.Objections...),
		appeals:             append([]string{}, r.Appeals...),
		proposedConstraints: r.Constraints,
		proposedManifest:    r.Manifest,
		createdAt:           r.CreatedAt,
		votingDeadline:      r.VotingDeadline,
		finalizedAt:         r.FinalizedAt,
		clock:               time.Now,
		clockInjected:       true, // recorded timestamps are authoritative
	}
	for _, v := range r.Votes {
		d.votes[v.PartyID] = v
	}
	return d, nil
}
