package governance

import (
	"fmt"

	"github.com/topstolenname/metaconcord/pkg/contracts"
	"github.com/topstolenname/metaconcord/pkg/custody"
	"github.com/topstolenname/metaconcord/pkg/deadlock"
	"github.com/topstolenname/metaconcord/pkg/emergency"
	"github.com/topstolenname/metaconcord/pkg/ledger"
)

// FileObjection challenges a VOTING decision, moving it to OBJECTED.
// Admissibility and bonding are the objection tracker's call; the bond is
// surfaced as data, not debited.
func (e *Engine) FileObjection(decisionID, partyID string, basis contracts.ObjectionBasis, veto bool, category contracts.VetoCategory) contracts.Result {
	d, ok := e.decisionByID(decisionID)
	if !ok {
		return contracts.Illegit(fmt.Sprintf("decision %q not found", decisionID))
	}
	if _, ok := e.registry.Get(partyID); !ok {
		return contracts.Illegit(fmt.Sprintf("party %q is not registered", partyID))
	}
	if d.State() != contracts.StateVoting {
		return contracts.Illegit(fmt.Sprintf("decision %s is %s, not VOTING", decisionID, d.State()))
	}

	o, err := e.objections.File(decisionID, partyID, basis, veto, category)
	if err != nil {
		return contracts.Illegit(err.Error())
	}
	if err := d.Transition(contracts.StateObjected); err != nil {
		return contracts.Illegit(err.Error())
	}
	d.RecordObjection(o.ID)

	e.append(ledger.EventObjectionFiled, map[string]any{
		"basis":         string(basis),
		"veto":          veto,
		"bond_required": o.BondRequired,
		"filing_number": o.FilingNumber,
	}, decisionID, partyID)
	e.logger.Info("objection filed", "decision", decisionID, "party", partyID, "basis", string(basis), "veto", veto)
	return contracts.Legit("objection filed").
		WithData("objection_id", o.ID).
		WithData("bond_required", o.BondRequired)
}

// ResolveObjection settles an objection. Sustained objections reject the
// decision — a sustained veto in particular terminates it; overruled
// objections reopen voting.
func (e *Engine) ResolveObjection(objectionID string, sustained bool, note string) contracts.Result {
	o, err := e.objections.Resolve(objectionID, sustained, note)
	if err != nil {
		return contracts.Illegit(err.Error())
	}
	d, ok := e.decisionByID(o.DecisionID)
	if !ok {
		return contracts.Illegit(fmt.Sprintf("decision %q not found", o.DecisionID))
	}

	target := contracts.StateVoting
	if sustained {
		target = contracts.StateRejected
	}
	if err := d.Transition(target); err != nil {
		return contracts.Illegit(err.Error())
	}

	e.append(ledger.EventObjectionResolved, map[string]any{
		"sustained": sustained,
		"state":     string(d.State()),
	}, o.DecisionID, o.PartyID)
	return contracts.Legit("objection resolved").
		WithData("resolution", string(o.Resolution)).
		WithData("state", string(d.State()))
}

// FileAppeal challenges a finalized decision within the appeal window,
// moving it to APPEALED. The pre-appeal state is kept so an overruled
// appeal restores it.
func (e *Engine) FileAppeal(decisionID, partyID string, grounds contracts.ObjectionBasis) contracts.Result {
	d, ok := e.decisionByID(decisionID)
	if !ok {
		return contracts.Illegit(fmt.Sprintf("decision %q not found", decisionID))
	}
	if _, ok := e.registry.Get(partyID); !ok {
		return contracts.Illegit(fmt.Sprintf("party %q is not registered", partyID))
	}
	origin := d.State()
	if origin != contracts.StateApproved && origin != contracts.StateRejected {
		return contracts.Illegit(fmt.Sprintf("decision %s is %s; only APPROVED or REJECTED decisions can be appealed", decisionID, origin))
	}

	a, err := e.appeals.File(decisionID, partyID, grounds, d.FinalizedAt())
	if err != nil {
		return contracts.Illegit(err.Error())
	}
	if err := d.Transition(contracts.StateAppealed); err != nil {
		return contracts.Illegit(err.Error())
	}
	d.RecordAppeal(a.ID)

	e.mu.Lock()
	e.appealOrigin[a.ID] = origin
	e.mu.Unlock()

	e.append(ledger.EventAppealFiled, map[string]any{
		"grounds":       string(grounds),
		"bond_required": a.BondRequired,
		"from_state":    string(origin),
	}, decisionID, partyID)
	return contracts.Legit("appeal filed").
		WithData("appeal_id", a.ID).
		WithData("bond_required", a.BondRequired)
}

// ResolveAppeal settles an appeal. Sustained appeals reopen voting;
// overruled appeals restore the state the decision was appealed from.
func (e *Engine) ResolveAppeal(appealID string, sustained bool, note string) contracts.Result {
	a, err := e.appeals.Resolve(appealID, sustained, note)
	if err != nil {
		return contracts.Illegit(err.Error())
	}
	d, ok := e.decisionByID(a.DecisionID)
	if !ok {
		return contracts.Illegit(fmt.Sprintf("decision %q not found", a.DecisionID))
	}

	target := contracts.StateVoting
	if !sustained {
		e.mu.RLock()
		origin, ok := e.appealOrigin[appealID]
		e.mu.RUnlock()
		if !ok {
			return contracts.Illegit(fmt.Sprintf("no recorded origin state for appeal %q", appealID))
		}
		target = origin
	}
	if err := d.Transition(target); err != nil {
		return contracts.Illegit(err.Error())
	}

	e.append(ledger.EventAppealResolved, map[string]any{
		"sustained": sustained,
		"state":     string(d.State()),
	}, a.DecisionID, a.PartyID)
	return contracts.Legit("appeal resolved").
		WithData("resolution", string(a.Resolution)).
		WithData("state", string(d.State()))
}

// EnterEmergency activates the circuit breaker on an all-class approving
// vote set.
func (e *Engine) EnterEmergency(votes []contracts.VoteRecord, decisionID string) contracts.Result {
	if err := e.emergency.Enter(votes, decisionID); err != nil {
		return contracts.Illegit(err.Error())
	}
	s := e.emergency.Snapshot()
	e.append(ledger.EventEmergencyEntered, map[string]any{
		"expires_at": s.ExpiresAt,
	}, decisionID, "")
	e.logger.Warn("emergency entered", "decision", decisionID, "expires_at", s.ExpiresAt)
	return contracts.Legit("emergency entered").WithData("expires_at", s.ExpiresAt)
}

// RenewEmergency extends the active emergency under the escalating
// renewal threshold.
func (e *Engine) RenewEmergency(votes []contracts.VoteRecord) contracts.Result {
	required := e.emergency.RenewalThreshold()
	if err := e.emergency.Renew(votes); err != nil {
		return contracts.Illegit(err.Error()).WithData("required_ratio", required)
	}
	s := e.emergency.Snapshot()
	e.append(ledger.EventEmergencyRenewed, map[string]any{
		"renewals":   s.Renewals,
		"expires_at": s.ExpiresAt,
	}, s.DecisionID, "")
	return contracts.Legit("emergency renewed").
		WithData("renewals", s.Renewals).
		WithData("expires_at", s.ExpiresAt)
}

// ExitEmergency deactivates the circuit breaker and schedules the
// mandatory post-hoc review.
func (e *Engine) ExitEmergency() contracts.Result {
	if err := e.emergency.Exit(); err != nil {
		return contracts.Illegit(err.Error())
	}
	e.append(ledger.EventEmergencyExited, nil, "", "")
	e.logger.Warn("emergency exited")
	return contracts.Legit("emergency exited").
		WithData("pending_reviews", len(e.emergency.PendingReviews()))
}

// EmergencyStatus returns the breaker's current state.
func (e *Engine) EmergencyStatus() emergency.State {
	return e.emergency.Snapshot()
}

// CheckEmergencyExpiry polls the breaker's auto-expiry. Returns true when
// an expiry fired.
func (e *Engine) CheckEmergencyExpiry() bool {
	if !e.emergency.CheckAutoExpiry() {
		return false
	}
	e.append(ledger.EventEmergencyExited, map[string]any{"auto_expired": true}, "", "")
	e.logger.Warn("emergency auto-expired")
	return true
}

// VerifyAuditLog checks the full hash chain.
func (e *Engine) VerifyAuditLog() contracts.Result {
	ok, finding := e.audit.VerifyIntegrity()
	if !ok {
		return contracts.Illegit(finding)
	}
	return contracts.Legit(finding).WithData("entries", e.audit.Length())
}

// VerifyDecisionAudit checks that a decision has an audit trail and that
// the chain containing it is intact.
func (e *Engine) VerifyDecisionAudit(decisionID string) contracts.Result {
	entries := e.audit.EntriesForDecision(decisionID)
	if len(entries) == 0 {
		return contracts.Illegit(fmt.Sprintf("no audit entries for decision %q", decisionID))
	}
	ok, finding := e.audit.VerifyIntegrity()
	if !ok {
		return contracts.Illegit(finding)
	}
	events := make([]string, 0, len(entries))
	for _, en := range entries {
		events = append(events, string(en.EventType))
	}
	return contracts.Legit("decision audit verified").
		WithData("entries", len(entries)).
		WithData("events", events)
}

// AuditSummary returns the bounded human-readable tail of the log.
func (e *Engine) AuditSummary(maxEntries int) []ledger.Summary {
	return e.audit.BoundedSummary(maxEntries)
}

// AuditLog exposes the underlying ledger, for serialization and tests.
func (e *Engine) AuditLog() *ledger.Log {
	return e.audit
}

// AnchorLatestRoot records an external-anchoring intent for the most
// recent Merkle root.
func (e *Engine) AnchorLatestRoot() contracts.Result {
	roots := e.audit.Roots()
	if len(roots) == 0 {
		return contracts.Illegit("no merkle roots recorded yet")
	}
	root := roots[len(roots)-1]
	rec, err := e.audit.AnchorRoot(root.Root)
	if err != nil {
		return contracts.Illegit(err.Error())
	}
	e.append(ledger.EventAnchorRequested, map[string]any{
		"root":      root.Root,
		"reference": rec.Reference,
	}, "", "")
	return contracts.Legit("anchor requested").
		WithData("reference", rec.Reference).
		WithData("root", root.Root)
}

// AddCustodian admits a registered party as a custody key holder. An
// unregistered party is a contract violation.
func (e *Engine) AddCustodian(partyID string) error {
	p, ok := e.registry.Get(partyID)
	if !ok {
		return fmt.Errorf("custodian %q is not a registered party", partyID)
	}
	return e.custody.AddCustodian(p.ID, p.Class)
}

// SignRoot records a custodian signature over a Merkle root, releasing it
// once the m-of-n cross-class gate opens.
func (e *Engine) SignRoot(partyID, rootHash string) contracts.Result {
	rel, err := e.custody.Sign(partyID, rootHash)
	if err != nil {
		return contracts.Illegit(err.Error())
	}
	e.append(ledger.EventCustodySigned, map[string]any{
		"root":     rootHash,
		"released": rel != nil,
	}, "", partyID)
	if rel == nil {
		return contracts.Legit("signature recorded").
			WithData("pending_signatures", e.custody.PendingSignatures(rootHash))
	}
	return contracts.Legit("root released").
		WithData("signatures", len(rel.Signatures)).
		WithData("released_at", rel.ReleasedAt)
}

// Custody exposes the custody gate.
func (e *Engine) Custody() *custody.Gate {
	return e.custody
}

// OpenDeadlock starts mediation on a stuck decision.
func (e *Engine) OpenDeadlock(decisionID string) contracts.Result {
	if _, ok := e.decisionByID(decisionID); !ok {
		return contracts.Illegit(fmt.Sprintf("decision %q not found", decisionID))
	}
	c, err := e.deadlocks.BeginMediation(decisionID)
	if err != nil {
		return contracts.Illegit(err.Error())
	}
	e.append(ledger.EventDeadlockAdvanced, map[string]any{"stage": string(c.Stage)}, decisionID, "")
	return contracts.Legit("mediation opened").
		WithData("stage", string(c.Stage)).
		WithData("mediation_deadline", c.MediationDeadline)
}

// EscalateDeadlock advances mediation to arbitration by a mixed-class
// panel of registered parties.
func (e *Engine) EscalateDeadlock(decisionID string, panel []string) contracts.Result {
	c, err := e.deadlocks.EscalateToArbitration(decisionID, panel, func(id string) (contracts.PartyClass, bool) {
		p, ok := e.registry.Get(id)
		return p.Class, ok
	})
	if err != nil {
		return contracts.Illegit(err.Error())
	}
	e.append(ledger.EventDeadlockAdvanced, map[string]any{
		"stage": string(c.Stage),
		"panel": panel,
	}, decisionID, "")
	return contracts.Legit("escalated to arbitration").WithData("stage", string(c.Stage))
}

// DefaultToSafety applies the strictly tighter safety Constraint Set and
// Capability Manifest while the deadlock remains unresolved.
func (e *Engine) DefaultToSafety(decisionID string) contracts.Result {
	c, err := e.deadlocks.DefaultToSafety(decisionID, e.ActiveConstraints(), e.ActiveManifest())
	if err != nil {
		return contracts.Illegit(err.Error())
	}

	e.csMu.Lock()
	e.constraints = *c.SafetyConstraints
	e.manifest = *c.SafetyManifest
	e.csMu.Unlock()
	if err := e.enforcer.ApplyManifest(DefaultScope, *c.SafetyManifest); err != nil {
		return contracts.Illegit(fmt.Sprintf("manifest apply: %v", err))
	}

	e.append(ledger.EventDeadlockAdvanced, map[string]any{"stage": string(c.Stage)}, decisionID, "")
	e.logger.Warn("deadlock defaulted to safety", "decision", decisionID)
	return contracts.Legit("defaulted to safety").WithData("stage", string(c.Stage))
}

// Deadlocks exposes the resolver for arbitration recording and closure.
func (e *Engine) Deadlocks() *deadlock.Resolver {
	return e.deadlocks
}
