package governance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topstolenname/metaconcord/pkg/config"
	"github.com/topstolenname/metaconcord/pkg/contracts"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(config.Default())
	require.NoError(t, err)
	return e
}

func registerTriad(t *testing.T, e *Engine) {
	t.Helper()
	require.True(t, e.RegisterParty("h1", contracts.PartyHuman, "ops", nil).Legitimate)
	require.True(t, e.RegisterParty("a1", contracts.PartyAgent, "agents", nil).Legitimate)
	require.True(t, e.RegisterParty("i1", contracts.PartyInfrastructure, "infra", nil).Legitimate)
}

func proposeD1(t *testing.T, e *Engine) string {
	t.Helper()
	res := e.ProposeDecision(ProposalInput{
		Class:           contracts.D1,
		Proposer:        "h1",
		Rationale:       "tighten egress",
		ImpactStatement: "agents lose raw socket access",
	})
	require.True(t, res.Legitimate, res.Reason)
	return res.Data["decision_id"].(string)
}

func TestApproveAndExecuteLifecycle(t *testing.T) {
	e := newTestEngine(t)
	registerTriad(t, e)
	id := proposeD1(t, e)

	for _, p := range []string{"h1", "a1", "i1"} {
		require.True(t, e.CastVote(id, p, true).Legitimate)
	}

	eval := e.EvaluateDecision(id)
	require.True(t, eval.Legitimate, eval.Reason)
	assert.Equal(t, string(contracts.StateApproved), eval.Data["state"])

	exec := e.ExecuteDecision(id)
	require.True(t, exec.Legitimate, exec.Reason)
	assert.Equal(t, string(contracts.StateExecuted), exec.Data["state"])
	assert.NotEmpty(t, exec.Data["ep_id"])

	pkg, ok := e.EvidenceFor(id)
	require.True(t, ok)
	assert.True(t, pkg.IsValid())
	assert.Len(t, pkg.Signatures, 1)

	audit := e.VerifyDecisionAudit(id)
	require.True(t, audit.Legitimate, audit.Reason)
	assert.Contains(t, audit.Data["events"], "DECISION_EXECUTED")
}

func TestSingleClassCaptureRejected(t *testing.T) {
	e := newTestEngine(t)
	registerTriad(t, e)
	require.True(t, e.RegisterParty("a2", contracts.PartyAgent, "agents", nil).Legitimate)

	res := e.ProposeDecision(ProposalInput{Class: contracts.D2, Proposer: "a1", Rationale: "r", ImpactStatement: "i"})
	require.True(t, res.Legitimate)
	id := res.Data["decision_id"].(string)

	require.True(t, e.CastVote(id, "a1", true).Legitimate)
	require.True(t, e.CastVote(id, "a2", true).Legitimate)
	require.True(t, e.CastVote(id, "h1", false).Legitimate)
	require.True(t, e.CastVote(id, "i1", false).Legitimate)

	eval := e.EvaluateDecision(id)
	assert.False(t, eval.Legitimate)
	assert.Contains(t, eval.Reason, "missing class assent")
	assert.Equal(t, string(contracts.StateRejected), eval.Data["state"])
}

func TestQuorumFailureDistinguishable(t *testing.T) {
	e := newTestEngine(t)
	registerTriad(t, e)
	id := proposeD1(t, e)

	// Unanimous approval, but infrastructure never shows up.
	require.True(t, e.CastVote(id, "h1", true).Legitimate)
	require.True(t, e.CastVote(id, "a1", true).Legitimate)

	eval := e.EvaluateDecision(id)
	assert.False(t, eval.Legitimate)
	assert.Equal(t, "Quorum not met", eval.Reason)
}

func TestD0AutoApproved(t *testing.T) {
	e := newTestEngine(t)
	registerTriad(t, e)

	res := e.ProposeDecision(ProposalInput{Class: contracts.D0, Proposer: "a1", Rationale: "routine"})
	require.True(t, res.Legitimate)
	assert.Equal(t, "D0 pre-authorized", res.Reason)
	assert.Equal(t, string(contracts.StateApproved), res.Data["state"])

	// Executes without an evidence package.
	id := res.Data["decision_id"].(string)
	exec := e.ExecuteDecision(id)
	require.True(t, exec.Legitimate, exec.Reason)
	_, ok := e.EvidenceFor(id)
	assert.False(t, ok)
}

func TestDuplicateVoteRejected(t *testing.T) {
	e := newTestEngine(t)
	registerTriad(t, e)
	id := proposeD1(t, e)

	require.True(t, e.CastVote(id, "h1", true).Legitimate)
	dup := e.CastVote(id, "h1", false)
	assert.False(t, dup.Legitimate)
	assert.Contains(t, dup.Reason, "ERR_DUPLICATE_VOTE")
}

func TestUnregisteredActorsRejected(t *testing.T) {
	e := newTestEngine(t)
	registerTriad(t, e)
	id := proposeD1(t, e)

	assert.False(t, e.CastVote(id, "ghost", true).Legitimate)
	assert.False(t, e.ProposeDecision(ProposalInput{Class: contracts.D3, Proposer: "ghost"}).Legitimate)
}

func TestEmergencyBansPermanentChanges(t *testing.T) {
	e := newTestEngine(t)
	registerTriad(t, e)

	entry := e.EnterEmergency(allClassVotes(true), "dec-em")
	require.True(t, entry.Legitimate, entry.Reason)

	res := e.ProposeDecision(ProposalInput{Class: contracts.D1, Proposer: "h1", Rationale: "r", ImpactStatement: "i"})
	assert.False(t, res.Legitimate)
	assert.Contains(t, res.Reason, "emergency restriction")

	// D3 and D0 stay available.
	assert.True(t, e.ProposeDecision(ProposalInput{Class: contracts.D3, Proposer: "h1", Rationale: "r", ImpactStatement: "i"}).Legitimate)
	assert.True(t, e.ProposeDecision(ProposalInput{Class: contracts.D0, Proposer: "h1"}).Legitimate)

	exit := e.ExitEmergency()
	require.True(t, exit.Legitimate)
	assert.GreaterOrEqual(t, len(e.EmergencyStatus().Reviews), 1)
}

func allClassVotes(approve bool) []contracts.VoteRecord {
	return []contracts.VoteRecord{
		{PartyID: "h1", Class: contracts.PartyHuman, Approve: approve},
		{PartyID: "a1", Class: contracts.PartyAgent, Approve: approve},
		{PartyID: "i1", Class: contracts.PartyInfrastructure, Approve: approve},
	}
}

func TestEmergencyEntryRequiresAllClasses(t *testing.T) {
	e := newTestEngine(t)
	registerTriad(t, e)

	votes := []contracts.VoteRecord{
		{PartyID: "h1", Class: contracts.PartyHuman, Approve: true},
		{PartyID: "a1", Class: contracts.PartyAgent, Approve: true},
	}
	res := e.EnterEmergency(votes, "dec-em")
	assert.False(t, res.Legitimate)
	assert.Contains(t, res.Reason, "ERR_MISSING_CLASS_APPROVAL")
}

func TestIrreversibleExecutionBannedDuringEmergency(t *testing.T) {
	e := newTestEngine(t)
	registerTriad(t, e)

	res := e.ProposeDecision(ProposalInput{
		Class: contracts.D3, Proposer: "h1",
		Rationale: "r", ImpactStatement: "i", Irreversible: true,
	})
	require.True(t, res.Legitimate)
	id := res.Data["decision_id"].(string)
	for _, p := range []string{"h1", "a1", "i1"} {
		require.True(t, e.CastVote(id, p, true).Legitimate)
	}
	require.True(t, e.EvaluateDecision(id).Legitimate)

	require.True(t, e.EnterEmergency(allClassVotes(true), "dec-em").Legitimate)
	exec := e.ExecuteDecision(id)
	assert.False(t, exec.Legitimate)
	assert.Contains(t, exec.Reason, "IrreversibilityBanned")

	require.True(t, e.ExitEmergency().Legitimate)
	assert.True(t, e.ExecuteDecision(id).Legitimate)
}

func TestObjectionFlow(t *testing.T) {
	e := newTestEngine(t)
	registerTriad(t, e)
	id := proposeD1(t, e)

	res := e.FileObjection(id, "i1", contracts.BasisInadequateImpact, false, "")
	require.True(t, res.Legitimate, res.Reason)
	objID := res.Data["objection_id"].(string)
	assert.Equal(t, 0.0, res.Data["bond_required"])

	// Voting is frozen while objected.
	assert.False(t, e.CastVote(id, "h1", true).Legitimate)

	resolved := e.ResolveObjection(objID, false, "impact statement adequate")
	require.True(t, resolved.Legitimate)
	assert.Equal(t, string(contracts.StateVoting), resolved.Data["state"])
	assert.True(t, e.CastVote(id, "h1", true).Legitimate)
}

func TestSustainedVetoRejectsDecision(t *testing.T) {
	e := newTestEngine(t)
	registerTriad(t, e)
	id := proposeD1(t, e)

	res := e.FileObjection(id, "h1", contracts.BasisConstraintMismatch, true, contracts.VetoIrreversiblePhysical)
	require.True(t, res.Legitimate, res.Reason)

	resolved := e.ResolveObjection(res.Data["objection_id"].(string), true, "veto sustained")
	require.True(t, resolved.Legitimate)
	assert.Equal(t, string(contracts.StateRejected), resolved.Data["state"])
}

func TestAppealFlow(t *testing.T) {
	e := newTestEngine(t)
	registerTriad(t, e)
	id := proposeD1(t, e)

	// Reject via a capture attempt.
	require.True(t, e.CastVote(id, "h1", false).Legitimate)
	require.True(t, e.CastVote(id, "a1", true).Legitimate)
	require.True(t, e.CastVote(id, "i1", false).Legitimate)
	require.False(t, e.EvaluateDecision(id).Legitimate)

	appeal := e.FileAppeal(id, "a1", contracts.BasisThresholdFailure)
	require.True(t, appeal.Legitimate, appeal.Reason)
	appealID := appeal.Data["appeal_id"].(string)

	// Overruled: the rejection stands.
	resolved := e.ResolveAppeal(appealID, false, "threshold computed correctly")
	require.True(t, resolved.Legitimate)
	assert.Equal(t, string(contracts.StateRejected), resolved.Data["state"])

	// A second appeal carries a bond and can reopen voting when sustained.
	second := e.FileAppeal(id, "a1", contracts.BasisThresholdFailure)
	require.True(t, second.Legitimate, second.Reason)
	assert.Equal(t, 20.0, second.Data["bond_required"])

	reopened := e.ResolveAppeal(second.Data["appeal_id"].(string), true, "recount ordered")
	require.True(t, reopened.Legitimate)
	assert.Equal(t, string(contracts.StateVoting), reopened.Data["state"])
}

func TestExpireDecisions(t *testing.T) {
	now := time.Now()
	e := newTestEngine(t).WithClock(func() time.Time { return now })
	registerTriad(t, e)
	id := proposeD1(t, e)

	assert.Empty(t, e.ExpireDecisions())
	now = now.Add(e.cfg.VotingPeriod + time.Hour)
	assert.Equal(t, []string{id}, e.ExpireDecisions())

	status := e.DecisionStatus(id)
	assert.Equal(t, string(contracts.StateExpired), status.Data["state"])
	// Terminal: nothing further applies.
	assert.False(t, e.CastVote(id, "h1", true).Legitimate)
}

func TestVerifyAuditLog(t *testing.T) {
	e := newTestEngine(t)
	registerTriad(t, e)
	res := e.VerifyAuditLog()
	require.True(t, res.Legitimate)
	assert.Equal(t, 4, res.Data["entries"]) // init + three registrations
}

func TestDeadlockLadderThroughEngine(t *testing.T) {
	e := newTestEngine(t)
	registerTriad(t, e)
	id := proposeD1(t, e)

	require.True(t, e.OpenDeadlock(id).Legitimate)
	assert.False(t, e.OpenDeadlock(id).Legitimate)

	esc := e.EscalateDeadlock(id, []string{"h1", "i1"})
	require.True(t, esc.Legitimate, esc.Reason)

	safety := e.DefaultToSafety(id)
	require.True(t, safety.Legitimate, safety.Reason)
	assert.Equal(t, []string{"read"}, e.ActiveManifest().AllowedTools)
	assert.Contains(t, e.ActiveConstraints().ForbiddenActions, "*.irreversible*")
}

func TestCustodyThroughEngine(t *testing.T) {
	e := newTestEngine(t)
	registerTriad(t, e)

	assert.Error(t, e.AddCustodian("ghost"))
	require.NoError(t, e.AddCustodian("h1"))
	require.NoError(t, e.AddCustodian("a1"))

	root := "sha256:root1"
	first := e.SignRoot("h1", root)
	require.True(t, first.Legitimate)
	assert.Equal(t, "signature recorded", first.Reason)

	second := e.SignRoot("a1", root)
	require.True(t, second.Legitimate)
	assert.Equal(t, "root released", second.Reason)

	assert.False(t, e.SignRoot("i1", root).Legitimate)
}

func TestAnchorLatestRoot(t *testing.T) {
	e := newTestEngine(t)
	assert.False(t, e.AnchorLatestRoot().Legitimate)

	// Push the ledger past a merkle interval.
	registerTriad(t, e)
	res := e.ProposeDecision(ProposalInput{Class: contracts.D0, Proposer: "h1"})
	require.True(t, res.Legitimate)

	anchored := e.AnchorLatestRoot()
	require.True(t, anchored.Legitimate, anchored.Reason)
	assert.Contains(t, anchored.Data["reference"], "anchor://")
}
