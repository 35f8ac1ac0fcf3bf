// Package governance provides the Meta-Concord engine — the facade
// composing the party registry, voting mechanics, decision lifecycle,
// evidence packages, audit log, challenge trackers, deadlock resolver,
// emergency manager, enforcement layer, and custody gate into one API.
//
// Expected governance-policy failures (quorum, threshold, transition,
// bonding, window violations) come back as a Result with Legitimate=false;
// they never escape as errors. Programming-contract violations fail fast
// with a Go error at the point of the bad call.
package governance

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/topstolenname/metaconcord/pkg/canonicalize"
	"github.com/topstolenname/metaconcord/pkg/config"
	"github.com/topstolenname/metaconcord/pkg/contracts"
	"github.com/topstolenname/metaconcord/pkg/custody"
	"github.com/topstolenname/metaconcord/pkg/deadlock"
	"github.com/topstolenname/metaconcord/pkg/decision"
	"github.com/topstolenname/metaconcord/pkg/emergency"
	"github.com/topstolenname/metaconcord/pkg/enforcement"
	"github.com/topstolenname/metaconcord/pkg/evidence"
	"github.com/topstolenname/metaconcord/pkg/ledger"
	"github.com/topstolenname/metaconcord/pkg/objection"
	"github.com/topstolenname/metaconcord/pkg/registry"
	"github.com/topstolenname/metaconcord/pkg/voting"
)

// DefaultScope is the governed scope manifests apply to when a decision
// names none.
const DefaultScope = "governed"

// Engine is one explicit governance instance. There is no process-wide
// singleton; every caller holds its own engine.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger
	clock  func() time.Time

	registry   *registry.Registry
	audit      *ledger.Log
	objections *objection.Tracker
	appeals    *objection.AppealTracker
	deadlocks  *deadlock.Resolver
	emergency  *emergency.Manager
	enforcer   enforcement.Enforcer
	custody    *custody.Gate
	signer     evidence.Signer

	mu           sync.RWMutex
	decisions    map[string]*decision.Decision
	packages     map[string]*evidence.Package // keyed by decision id
	appealOrigin map[string]contracts.DecisionState

	csMu        sync.RWMutex
	constraints contracts.ConstraintSet
	manifest    contracts.CapabilityManifest
}

// New creates an engine from the given policy. The sandbox enforcer and
// placeholder signer are the defaults; production backends plug in through
// WithEnforcer and WithSigner before first use.
func New(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	sandbox, err := enforcement.NewSandbox(enforcement.SandboxConfig{
		Ladder: enforcement.LadderConfig{
			RepeatWindow:  cfg.SanctionRepeatWindow,
			CleanPeriod:   cfg.SanctionCleanPeriod,
			CriticalTypes: cfg.CriticalViolations,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("governance engine: %w", err)
	}
	gate, err := custody.NewGate(cfg.CustodyThreshold, nil)
	if err != nil {
		return nil, fmt.Errorf("governance engine: %w", err)
	}

	e := &Engine{
		cfg:    cfg,
		logger: slog.Default(),
		clock:  time.Now,

		registry:   registry.New(),
		audit:      ledger.New(cfg.MerkleInterval),
		objections: objection.NewTracker(cfg.BondBase, cfg.BondMultiplier),
		appeals:    objection.NewAppealTracker(cfg.BondBase, cfg.BondMultiplier, cfg.AppealWindow),
		deadlocks:  deadlock.NewResolver(cfg.MediationTimeout),
		emergency: emergency.NewManager(emergency.Config{
			Expiry:         cfg.EmergencyExpiry,
			BaseThreshold:  cfg.EmergencyBaseThreshold,
			EscalationStep: cfg.EmergencyEscalationStep,
		}),
		enforcer: sandbox,
		custody:  gate,
		signer:   evidence.PlaceholderSigner{},

		decisions:    make(map[string]*decision.Decision),
		packages:     make(map[string]*evidence.Package),
		appealOrigin: make(map[string]contracts.DecisionState),

		constraints: contracts.DefaultConstraintSet(),
		manifest:    contracts.DefaultManifest(),
	}
	if err := e.enforcer.ApplyManifest(DefaultScope, e.manifest); err != nil {
		return nil, fmt.Errorf("governance engine: %w", err)
	}
	if _, err := e.audit.Append(ledger.EventEngineInit, map[string]any{
		"schema_version":  contracts.SchemaVersion,
		"merkle_interval": cfg.MerkleInterval,
	}, "", ""); err != nil {
		return nil, fmt.Errorf("governance engine: %w", err)
	}
	return e, nil
}

// WithClock overrides the clock on the engine and every component that
// keeps time. For deterministic testing only.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	e.registry.WithClock(clock)
	e.audit.WithClock(clock)
	e.objections.WithClock(clock)
	e.appeals.WithClock(clock)
	e.deadlocks.WithClock(clock)
	e.emergency.WithClock(clock)
	if sb, ok := e.enforcer.(*enforcement.Sandbox); ok {
		sb.Ladder().WithClock(clock)
	}
	e.custody.WithClock(clock)
	return e
}

// WithLogger overrides the structured logger.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	e.logger = logger
	return e
}

// WithEnforcer swaps in a production enforcement backend.
func (e *Engine) WithEnforcer(enf enforcement.Enforcer) *Engine {
	e.enforcer = enf
	return e
}

// WithSigner swaps in a real signing backend.
func (e *Engine) WithSigner(s evidence.Signer) *Engine {
	e.signer = s
	return e
}

// append records an audit entry, logging rather than failing the calling
// operation if the ledger write itself errors.
func (e *Engine) append(eventType ledger.EventType, data map[string]any, decisionID, actorID string) {
	if _, err := e.audit.Append(eventType, data, decisionID, actorID); err != nil {
		e.logger.Error("audit append failed", "event", string(eventType), "error", err)
	}
}

// RegisterParty admits a voting party.
func (e *Engine) RegisterParty(id string, class contracts.PartyClass, scope string, conflicts []string) contracts.Result {
	p, err := e.registry.Register(id, class, scope, conflicts)
	if err != nil {
		return contracts.Illegit(err.Error())
	}
	e.append(ledger.EventPartyRegistered, map[string]any{"class": string(class), "scope": scope}, "", p.ID)
	e.logger.Info("party registered", "party", p.ID, "class", string(class))
	return contracts.Legit("party registered").WithData("party_id", p.ID)
}

// RemoveParty drops a voting party.
func (e *Engine) RemoveParty(id string) contracts.Result {
	if err := e.registry.Remove(id); err != nil {
		return contracts.Illegit(err.Error())
	}
	e.append(ledger.EventPartyRemoved, nil, "", id)
	return contracts.Legit("party removed")
}

// ListParties returns the registered parties sorted by id.
func (e *Engine) ListParties() []contracts.Party {
	parties := e.registry.List()
	sort.Slice(parties, func(i, j int) bool { return parties[i].ID < parties[j].ID })
	return parties
}

// ProposalInput carries a proposal into the engine.
type ProposalInput struct {
	Class               contracts.DecisionClass
	Proposer            string
	Payload             map[string]any
	Rationale           string
	ImpactStatement     string
	Irreversible        bool
	ProposedConstraints *contracts.ConstraintSet
	ProposedManifest    *contracts.CapabilityManifest
}

// ProposeDecision creates a decision. D0 is pre-authorized and lands in
// APPROVED with no proof required; D1..D4 open voting. D1/D2 proposals are
// rejected outright while an emergency is active.
func (e *Engine) ProposeDecision(in ProposalInput) contracts.Result {
	if !in.Class.Valid() {
		return contracts.Illegit(fmt.Sprintf("unknown decision class %q", in.Class))
	}
	if _, ok := e.registry.Get(in.Proposer); !ok {
		return contracts.Illegit(fmt.Sprintf("proposer %q is not a registered party", in.Proposer))
	}
	if in.Class.PermanentChange() && !e.emergency.CheckPermanentChangeBan() {
		return contracts.Illegit(fmt.Sprintf("emergency restriction: %s decisions are banned while an emergency is active", in.Class))
	}

	d, err := decision.New(decision.Proposal{
		Class:               in.Class,
		Proposer:            in.Proposer,
		Payload:             in.Payload,
		Rationale:           in.Rationale,
		ImpactStatement:     in.ImpactStatement,
		Irreversible:        in.Irreversible,
		VotingPeriod:        e.cfg.VotingPeriod,
		ProposedConstraints: in.ProposedConstraints,
		ProposedManifest:    in.ProposedManifest,
	})
	if err != nil {
		return contracts.Illegit(err.Error())
	}
	d.WithClock(e.clock)

	if err := d.Transition(contracts.StateVoting); err != nil {
		return contracts.Illegit(err.Error())
	}
	reason := "decision open for voting"
	if !in.Class.RequiresGovernance() {
		// Pre-authorized routine: no proofs, straight to APPROVED.
		if err := d.Transition(contracts.StateApproved); err != nil {
			return contracts.Illegit(err.Error())
		}
		reason = "D0 pre-authorized"
	}

	e.mu.Lock()
	e.decisions[d.ID()] = d
	e.mu.Unlock()

	e.append(ledger.EventDecisionProposed, map[string]any{
		"class":        string(in.Class),
		"irreversible": in.Irreversible,
	}, d.ID(), in.Proposer)
	e.logger.Info("decision proposed", "decision", d.ID(), "class", string(in.Class), "proposer", in.Proposer)
	return contracts.Legit(reason).
		WithData("decision_id", d.ID()).
		WithData("state", string(d.State()))
}

func (e *Engine) decisionByID(id string) (*decision.Decision, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.decisions[id]
	return d, ok
}

// CastVote records one party's vote on a decision. Lifecycle failures come
// back as non-legitimate results, never as errors.
func (e *Engine) CastVote(decisionID, partyID string, approve bool) contracts.Result {
	d, ok := e.decisionByID(decisionID)
	if !ok {
		return contracts.Illegit(fmt.Sprintf("decision %q not found", decisionID))
	}
	p, ok := e.registry.Get(partyID)
	if !ok {
		return contracts.Illegit(fmt.Sprintf("party %q is not registered", partyID))
	}

	sig, err := e.signer.Sign(p.ID, decisionID)
	if err != nil {
		return contracts.Illegit(fmt.Sprintf("vote signature: %v", err))
	}
	v := contracts.VoteRecord{
		PartyID:   p.ID,
		Class:     p.Class,
		Approve:   approve,
		Timestamp: e.clock(),
		Signature: sig,
	}
	if err := d.AddVote(v); err != nil {
		return contracts.Illegit(err.Error())
	}

	e.append(ledger.EventVoteCast, map[string]any{
		"class":   string(p.Class),
		"approve": approve,
	}, decisionID, p.ID)
	return contracts.Legit("vote recorded").WithData("total_votes", len(d.Votes()))
}

// EvaluateDecision recomputes the quorum and threshold proofs and
// transitions the decision to APPROVED or REJECTED. A quorum failure yields
// a distinguishable reason even when the ratio alone would pass. Voting
// decisions past their deadline expire instead of being evaluated.
func (e *Engine) EvaluateDecision(decisionID string) contracts.Result {
	d, ok := e.decisionByID(decisionID)
	if !ok {
		return contracts.Illegit(fmt.Sprintf("decision %q not found", decisionID))
	}
	if d.State() != contracts.StateVoting {
		return contracts.Illegit(fmt.Sprintf("decision %s is %s, not VOTING", decisionID, d.State()))
	}
	if d.IsExpired() {
		if err := d.Transition(contracts.StateExpired); err == nil {
			e.append(ledger.EventDecisionExpired, nil, decisionID, "")
		}
		return contracts.Illegit("voting period expired")
	}

	votes := d.Votes()
	quorum := voting.CheckQuorum(votes)
	threshold := voting.CheckThreshold(votes, d.Class(), e.cfg.Thresholds)

	var res contracts.Result
	switch {
	case !quorum.Satisfied:
		res = contracts.Illegit("Quorum not met").WithData("missing_classes", quorum.MissingClasses)
		if err := d.Transition(contracts.StateRejected); err != nil {
			return contracts.Illegit(err.Error())
		}
	case !threshold.Satisfied:
		res = contracts.Illegit(thresholdFailureReason(threshold))
		if err := d.Transition(contracts.StateRejected); err != nil {
			return contracts.Illegit(err.Error())
		}
	default:
		res = contracts.Legit("decision approved")
		if err := d.Transition(contracts.StateApproved); err != nil {
			return contracts.Illegit(err.Error())
		}
	}

	res = res.WithData("quorum_proof", quorum).
		WithData("threshold_proof", threshold).
		WithData("state", string(d.State()))
	e.append(ledger.EventDecisionEvaluated, map[string]any{
		"state":     string(d.State()),
		"approvals": threshold.Approvals,
		"ratio":     threshold.Ratio,
	}, decisionID, "")
	e.logger.Info("decision evaluated", "decision", decisionID, "state", string(d.State()), "reason", res.Reason)
	return res
}

// thresholdFailureReason names the first failing leg of the proof. Class
// assent is reported ahead of the raw ratio: a capture attempt should read
// as a capture attempt, not as arithmetic.
func thresholdFailureReason(p voting.ThresholdProof) string {
	for _, c := range contracts.AllPartyClasses() {
		if !p.ClassWiseAssent[c] {
			return fmt.Sprintf("missing class assent: class %s did not approve", c)
		}
	}
	if !p.MultiClassApproval {
		return "approvals drawn from fewer than two party classes"
	}
	if !p.RatioMet {
		return fmt.Sprintf("approval ratio %.2f below required %.2f", p.Ratio, p.RequiredRatio)
	}
	return "threshold not satisfied"
}

// ExecuteDecision executes an APPROVED decision: builds and validates the
// Evidence Package, applies any proposed Constraint Set or Capability
// Manifest, appends the audit entry, and transitions to EXECUTED. While an
// emergency is active, irreversible executions fail with the
// irreversibility ban.
func (e *Engine) ExecuteDecision(decisionID string) contracts.Result {
	d, ok := e.decisionByID(decisionID)
	if !ok {
		return contracts.Illegit(fmt.Sprintf("decision %q not found", decisionID))
	}
	if d.State() != contracts.StateApproved {
		return contracts.Illegit(fmt.Sprintf("decision %s is %s, not APPROVED", decisionID, d.State()))
	}
	if !e.emergency.CheckIrreversibilityBan(d.Irreversible()) {
		return contracts.Illegit("IrreversibilityBanned: irreversible actions are banned while an emergency is active")
	}

	var epID string
	if d.Class().RequiresGovernance() {
		votes := d.Votes()
		participants := make([]string, 0, len(votes))
		for _, v := range votes {
			participants = append(participants, v.PartyID)
		}
		pkg, err := evidence.Build(evidence.Input{
			DecisionID:      d.ID(),
			DecisionClass:   d.Class(),
			Participants:    participants,
			Quorum:          voting.CheckQuorum(votes),
			Threshold:       voting.CheckThreshold(votes, d.Class(), e.cfg.Thresholds),
			Rationale:       d.Rationale(),
			ImpactStatement: d.ImpactStatement(),
			Diffs:           executionDiffs(d),
			AuditAnchor:     e.audit.Head(),
			CreatedAt:       e.clock(),
		})
		if err != nil {
			return contracts.Illegit(fmt.Sprintf("evidence package: %v", err))
		}
		if defects := pkg.Validate(); len(defects) > 0 {
			return contracts.Illegit("evidence package invalid").WithData("defects", defects)
		}
		if err := pkg.Sign(d.Proposer(), e.signer, e.clock()); err != nil {
			return contracts.Illegit(err.Error())
		}
		e.mu.Lock()
		e.packages[d.ID()] = pkg
		e.mu.Unlock()
		epID = pkg.ID
	}

	if cs := d.ProposedConstraints(); cs != nil {
		e.csMu.Lock()
		e.constraints = *cs
		e.csMu.Unlock()
	}
	if m := d.ProposedManifest(); m != nil {
		e.csMu.Lock()
		e.manifest = *m
		e.csMu.Unlock()
		if err := e.enforcer.ApplyManifest(DefaultScope, *m); err != nil {
			return contracts.Illegit(fmt.Sprintf("manifest apply: %v", err))
		}
	}

	if err := d.Transition(contracts.StateExecuted); err != nil {
		return contracts.Illegit(err.Error())
	}
	e.append(ledger.EventDecisionExecuted, map[string]any{"ep_id": epID}, decisionID, d.Proposer())
	e.logger.Info("decision executed", "decision", decisionID, "ep", epID)

	res := contracts.Legit("decision executed").WithData("state", string(d.State()))
	if epID != "" {
		res = res.WithData("ep_id", epID)
	}
	return res
}

// executionDiffs summarizes the proposed CS/CM changes for the EP.
func executionDiffs(d *decision.Decision) map[string]any {
	diffs := make(map[string]any)
	if cs := d.ProposedConstraints(); cs != nil {
		if h, err := canonicalize.CanonicalHash(cs); err == nil {
			diffs["constraint_set"] = h
		}
	}
	if m := d.ProposedManifest(); m != nil {
		if h, err := canonicalize.CanonicalHash(m); err == nil {
			diffs["capability_manifest"] = h
		}
	}
	if len(diffs) == 0 {
		return nil
	}
	return diffs
}

// EvidenceFor returns the Evidence Package produced for a decision.
func (e *Engine) EvidenceFor(decisionID string) (*evidence.Package, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pkg, ok := e.packages[decisionID]
	return pkg, ok
}

// DecisionStatus reports one decision's lifecycle position.
func (e *Engine) DecisionStatus(decisionID string) contracts.Result {
	d, ok := e.decisionByID(decisionID)
	if !ok {
		return contracts.Illegit(fmt.Sprintf("decision %q not found", decisionID))
	}
	return contracts.Legit("decision found").
		WithData("decision_id", d.ID()).
		WithData("class", string(d.Class())).
		WithData("state", string(d.State())).
		WithData("proposer", d.Proposer()).
		WithData("votes", len(d.Votes())).
		WithData("voting_deadline", d.VotingDeadline())
}

// ListDecisions returns every decision id with its state, sorted by id.
func (e *Engine) ListDecisions() []map[string]any {
	e.mu.RLock()
	ids := make([]string, 0, len(e.decisions))
	for id := range e.decisions {
		ids = append(ids, id)
	}
	e.mu.RUnlock()
	sort.Strings(ids)

	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		if d, ok := e.decisionByID(id); ok {
			out = append(out, map[string]any{
				"decision_id": d.ID(),
				"class":       string(d.Class()),
				"state":       string(d.State()),
			})
		}
	}
	return out
}

// ExpireDecisions sweeps VOTING decisions past their deadline into
// EXPIRED. Called cooperatively; there is no background scheduler.
func (e *Engine) ExpireDecisions() []string {
	e.mu.RLock()
	all := make([]*decision.Decision, 0, len(e.decisions))
	for _, d := range e.decisions {
		all = append(all, d)
	}
	e.mu.RUnlock()

	var expired []string
	for _, d := range all {
		if d.State() == contracts.StateVoting && d.IsExpired() {
			if err := d.Transition(contracts.StateExpired); err == nil {
				e.append(ledger.EventDecisionExpired, nil, d.ID(), "")
				expired = append(expired, d.ID())
			}
		}
	}
	sort.Strings(expired)
	return expired
}

// ActiveConstraints returns the active Constraint Set.
func (e *Engine) ActiveConstraints() contracts.ConstraintSet {
	e.csMu.RLock()
	defer e.csMu.RUnlock()
	return e.constraints
}

// ActiveManifest returns the active Capability Manifest.
func (e *Engine) ActiveManifest() contracts.CapabilityManifest {
	e.csMu.RLock()
	defer e.csMu.RUnlock()
	return e.manifest
}

// CheckAction authorizes one action for a governed scope against the
// active manifest and Constraint Set.
func (e *Engine) CheckAction(scope string, act enforcement.Action) enforcement.CheckResult {
	if scope == "" {
		scope = DefaultScope
	}
	return e.enforcer.CheckAction(scope, act, e.ActiveConstraints())
}

// Enforcer exposes the enforcement backend.
func (e *Engine) Enforcer() enforcement.Enforcer {
	return e.enforcer
}
