package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topstolenname/metaconcord/pkg/config"
	"github.com/topstolenname/metaconcord/pkg/contracts"
	"github.com/topstolenname/metaconcord/pkg/enforcement"
	"github.com/topstolenname/metaconcord/pkg/governance"
)

func newTestEngine(t *testing.T, now *time.Time) *governance.Engine {
	t.Helper()
	e, err := governance.New(config.Default())
	require.NoError(t, err)
	e.WithClock(func() time.Time { return *now })
	require.True(t, e.RegisterParty("h1", contracts.PartyHuman, "", nil).Legitimate)
	require.True(t, e.RegisterParty("a1", contracts.PartyAgent, "", nil).Legitimate)
	require.True(t, e.RegisterParty("i1", contracts.PartyInfrastructure, "", nil).Legitimate)
	return e
}

func TestBeforeAgentActReportsButNeverHalts(t *testing.T) {
	now := time.Now()
	e := newTestEngine(t, &now)
	b := New(e)

	allowed := b.BeforeAgentAct("", enforcement.Action{Name: "fetch", Tool: "read", DataPath: "workspace/a"})
	assert.True(t, allowed.Allowed)

	// The default manifest denies shell; the bridge reports and returns.
	denied := b.BeforeAgentAct("", enforcement.Action{Name: "escape", Tool: "shell"})
	assert.False(t, denied.Allowed)
	assert.Contains(t, denied.Reason, "denied")
}

func TestAfterEpochSweeps(t *testing.T) {
	now := time.Now()
	e := newTestEngine(t, &now)
	b := New(e)

	votes := []contracts.VoteRecord{
		{PartyID: "h1", Class: contracts.PartyHuman, Approve: true},
		{PartyID: "a1", Class: contracts.PartyAgent, Approve: true},
		{PartyID: "i1", Class: contracts.PartyInfrastructure, Approve: true},
	}
	require.True(t, e.EnterEmergency(votes, "dec-em").Legitimate)

	prop := e.ProposeDecision(governance.ProposalInput{
		Class: contracts.D3, Proposer: "h1", Rationale: "r", ImpactStatement: "i",
	})
	require.True(t, prop.Legitimate)
	decisionID := prop.Data["decision_id"].(string)

	report := b.AfterEpoch()
	assert.False(t, report.EmergencyExpired)
	assert.Empty(t, report.ExpiredDecisions)

	now = now.Add(100 * time.Hour)
	report = b.AfterEpoch()
	assert.True(t, report.EmergencyExpired)
	assert.Equal(t, []string{decisionID}, report.ExpiredDecisions)
	assert.False(t, e.EmergencyStatus().Status == "EMERGENCY")
}

func TestAfterEpochDeescalatesSanctions(t *testing.T) {
	now := time.Now()
	e := newTestEngine(t, &now)
	b := New(e)

	sb, ok := e.Enforcer().(*enforcement.Sandbox)
	require.True(t, ok)
	_, err := sb.ApplySanction("agent-1", "scope_violation", "read outside workspace")
	require.NoError(t, err)

	now = now.Add(1000 * time.Hour)
	report := b.AfterEpoch()
	assert.Contains(t, report.DeescalatedScopes, "agent-1")
}
