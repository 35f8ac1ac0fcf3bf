// Package decision implements one proposal's lifecycle state machine and
// vote ledger. Transitions outside the table fail with a typed error and
// leave the state unchanged; votes are immutable once cast, at most one per
// party. A decision is never deleted — it only reaches a terminal state.
package decision

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/topstolenname/metaconcord/pkg/contracts"
)

// Deterministic error codes for lifecycle violations.
const (
	ErrInvalidTransition = "ERR_INVALID_TRANSITION"
	ErrNotVotingState    = "ERR_NOT_VOTING_STATE"
	ErrDuplicateVote     = "ERR_DUPLICATE_VOTE"
)

// StateError is a typed lifecycle violation.
type StateError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	From    contracts.DecisionState `json:"from,omitempty"`
	To      contracts.DecisionState `json:"to,omitempty"`
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// transitions is the authoritative lifecycle table. Absent targets are
// invalid; EXECUTED and EXPIRED admit nothing.
var transitions = map[contracts.DecisionState][]contracts.DecisionState{
	contracts.StateProposed: {contracts.StateVoting},
	contracts.StateVoting:   {contracts.StateApproved, contracts.StateRejected, contracts.StateObjected, contracts.StateExpired},
	contracts.StateObjected: {contracts.StateVoting, contracts.StateRejected},
	contracts.StateAppealed: {contracts.StateVoting, contracts.StateApproved, contracts.StateRejected},
	contracts.StateApproved: {contracts.StateExecuted, contracts.StateAppealed},
	contracts.StateRejected: {contracts.StateAppealed},
	contracts.StateExecuted: {},
	contracts.StateExpired:  {},
}

// CanTransition reports whether from → to is in the lifecycle table.
func CanTransition(from, to contracts.DecisionState) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Decision is one proposal moving through the lifecycle. All mutation goes
// through explicit methods guarded by the decision's own lock, so distinct
// decisions are safely operable concurrently.
type Decision struct {
	mu sync.Mutex

	id              string
	class           contracts.DecisionClass
	state           contracts.DecisionState
	proposer        string
	payload         map[string]any
	rationale       string
	impactStatement string
	irreversible    bool

	votes      map[string]contracts.VoteRecord // keyed by party id
	objections []string                        // objection ids, append-only
	appeals    []string                        // appeal ids, append-only

	proposedConstraints *contracts.ConstraintSet
	proposedManifest    *contracts.CapabilityManifest

	createdAt      time.Time
	votingDeadline time.Time
	finalizedAt    time.Time // set when APPROVED or REJECTED

	clock         func() time.Time
	clockInjected bool
}

// Proposal carries the inputs to New.
type Proposal struct {
	Class               contracts.DecisionClass
	Proposer            string
	Payload             map[string]any
	Rationale           string
	ImpactStatement     string
	Irreversible        bool
	VotingPeriod        time.Duration
	ProposedConstraints *contracts.ConstraintSet
	ProposedManifest    *contracts.CapabilityManifest
}

// New creates a decision in PROPOSED.
func New(p Proposal) (*Decision, error) {
	if !p.Class.Valid() {
		return nil, fmt.Errorf("unknown decision class %q", p.Class)
	}
	if p.Proposer == "" {
		return nil, fmt.Errorf("proposer cannot be empty")
	}
	d := &Decision{
		id:                  uuid.New().String(),
		class:               p.Class,
		state:               contracts.StateProposed,
		proposer:            p.Proposer,
		payload:             p.Payload,
		rationale:           p.Rationale,
		impactStatement:     p.ImpactStatement,
		irreversible:        p.Irreversible,
		votes:               make(map[string]contracts.VoteRecord),
		proposedConstraints: p.ProposedConstraints,
		proposedManifest:    p.ProposedManifest,
		clock:               time.Now,
	}
	d.createdAt = d.clock()
	d.votingDeadline = d.createdAt.Add(p.VotingPeriod)
	return d, nil
}

// WithClock overrides the clock for deterministic testing. The first
// injection re-derives the creation timestamps from the new clock; later
// injections only swap the clock so the voting deadline stays fixed.
func (d *Decision) WithClock(clock func() time.Time) *Decision {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.clockInjected {
		period := d.votingDeadline.Sub(d.createdAt)
		d.createdAt = clock()
		d.votingDeadline = d.createdAt.Add(period)
		d.clockInjected = true
	}
	d.clock = clock
	return d
}

// ID returns the decision identifier.
func (d *Decision) ID() string { return d.id }

// Class returns the decision class.
func (d *Decision) Class() contracts.DecisionClass { return d.class }

// Proposer returns the proposing party id.
func (d *Decision) Proposer() string { return d.proposer }

// Irreversible reports whether executing the decision implies an
// irreversible action.
func (d *Decision) Irreversible() bool { return d.irreversible }

// State returns the current lifecycle state.
func (d *Decision) State() contracts.DecisionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Transition moves the decision to a new state if the table allows it.
func (d *Decision) Transition(to contracts.DecisionState) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !CanTransition(d.state, to) {
		return &StateError{
			Code:    ErrInvalidTransition,
			Message: fmt.Sprintf("cannot transition %s -> %s", d.state, to),
			From:    d.state,
			To:      to,
		}
	}
	d.state = to
	if to == contracts.StateApproved || to == contracts.StateRejected {
		d.finalizedAt = d.clock()
	}
	return nil
}

// AddVote records a vote. Check-then-insert is atomic under the decision
// lock so duplicate detection cannot race.
func (d *Decision) AddVote(v contracts.VoteRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != contracts.StateVoting {
		return &StateError{
			Code:    ErrNotVotingState,
			Message: fmt.Sprintf("decision %s is %s, not VOTING", d.id, d.state),
			From:    d.state,
		}
	}
	if _, voted := d.votes[v.PartyID]; voted {
		return &StateError{
			Code:    ErrDuplicateVote,
			Message: fmt.Sprintf("party %s already voted on %s", v.PartyID, d.id),
		}
	}
	if v.Timestamp.IsZero() {
		v.Timestamp = d.clock()
	}
	d.votes[v.PartyID] = v
	return nil
}

// Votes returns the vote ledger ordered by party id for deterministic
// proof recomputation.
func (d *Decision) Votes() []contracts.VoteRecord {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]contracts.VoteRecord, 0, len(d.votes))
	for _, v := range d.votes {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartyID < out[j].PartyID })
	return out
}

// IsExpired is a pure deadline comparison. It does not transition state;
// callers must explicitly move VOTING decisions to EXPIRED.
func (d *Decision) IsExpired() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clock().After(d.votingDeadline)
}

// RecordObjection appends an objection id to the decision's ledger.
func (d *Decision) RecordObjection(objectionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.objections = append(d.objections, objectionID)
}

// RecordAppeal appends an appeal id to the decision's ledger.
func (d *Decision) RecordAppeal(appealID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.appeals = append(d.appeals, appealID)
}

// FinalizedAt returns when the decision reached APPROVED or REJECTED, or
// the zero time if it has not.
func (d *Decision) FinalizedAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finalizedAt
}

// CreatedAt returns the proposal time.
func (d *Decision) CreatedAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.createdAt
}

// VotingDeadline returns the voting cutoff.
func (d *Decision) VotingDeadline() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.votingDeadline
}

// Rationale returns the proposer's rationale.
func (d *Decision) Rationale() string { return d.rationale }

// ImpactStatement returns the proposer's impact statement.
func (d *Decision) ImpactStatement() string { return d.impactStatement }

// ProposedConstraints returns the proposed Constraint Set diff, if any.
func (d *Decision) ProposedConstraints() *contracts.ConstraintSet { return d.proposedConstraints }

// ProposedManifest returns the proposed Capability Manifest diff, if any.
func (d *Decision) ProposedManifest() *contracts.CapabilityManifest { return d.proposedManifest }
