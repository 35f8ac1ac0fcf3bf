package emergency

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topstolenname/metaconcord/pkg/contracts"
)

func allClassApproval() []contracts.VoteRecord {
	return []contracts.VoteRecord{
		{PartyID: "h1", Class: contracts.PartyHuman, Approve: true},
		{PartyID: "a1", Class: contracts.PartyAgent, Approve: true},
		{PartyID: "i1", Class: contracts.PartyInfrastructure, Approve: true},
	}
}

func newTestManager(now *time.Time) *Manager {
	return NewManager(Config{
		Expiry:         time.Hour,
		BaseThreshold:  0.6,
		EscalationStep: 0.1,
	}).WithClock(func() time.Time { return *now })
}

func TestEnterRequiresAllClasses(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now)

	votes := []contracts.VoteRecord{
		{PartyID: "h1", Class: contracts.PartyHuman, Approve: true},
		{PartyID: "a1", Class: contracts.PartyAgent, Approve: true},
		{PartyID: "i1", Class: contracts.PartyInfrastructure, Approve: false},
	}
	err := m.Enter(votes, "dec-1")
	var ce *ClassApprovalError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []contracts.PartyClass{contracts.PartyInfrastructure}, ce.Missing)
	assert.False(t, m.Active())

	require.NoError(t, m.Enter(allClassApproval(), "dec-1"))
	assert.True(t, m.Active())

	s := m.Snapshot()
	assert.Equal(t, StatusEmergency, s.Status)
	assert.Equal(t, "dec-1", s.DecisionID)
	assert.Equal(t, now.Add(time.Hour), s.ExpiresAt)
}

func TestEnterTwiceRejected(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now)
	require.NoError(t, m.Enter(allClassApproval(), "dec-1"))
	assert.ErrorContains(t, m.Enter(allClassApproval(), "dec-2"), "already active")
}

func TestRenewalThresholdEscalates(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now)
	require.NoError(t, m.Enter(allClassApproval(), "dec-1"))

	assert.InDelta(t, 0.7, m.RenewalThreshold(), 1e-9)
	require.NoError(t, m.Renew(allClassApproval()))
	assert.InDelta(t, 0.8, m.RenewalThreshold(), 1e-9)
	require.NoError(t, m.Renew(allClassApproval()))
	assert.InDelta(t, 0.9, m.RenewalThreshold(), 1e-9)

	// Cap at 1.0.
	require.NoError(t, m.Renew(allClassApproval()))
	require.NoError(t, m.Renew(allClassApproval()))
	assert.InDelta(t, 1.0, m.RenewalThreshold(), 1e-9)
}

func TestRenewRatioBelowThreshold(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now)
	require.NoError(t, m.Enter(allClassApproval(), "dec-1"))

	// 3 of 5 approve = 0.6, below the 0.7 first-renewal threshold.
	votes := append(allClassApproval(),
		contracts.VoteRecord{PartyID: "a2", Class: contracts.PartyAgent, Approve: false},
		contracts.VoteRecord{PartyID: "a3", Class: contracts.PartyAgent, Approve: false},
	)
	assert.ErrorContains(t, m.Renew(votes), "below required")
	assert.Equal(t, 0, m.Snapshot().Renewals)
}

func TestSecondRenewalSchedulesReview(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now)
	require.NoError(t, m.Enter(allClassApproval(), "dec-1"))

	require.NoError(t, m.Renew(allClassApproval()))
	assert.Empty(t, m.PendingReviews())

	require.NoError(t, m.Renew(allClassApproval()))
	reviews := m.PendingReviews()
	require.Len(t, reviews, 1)
	assert.Equal(t, "second or later renewal attempt", reviews[0].Trigger)

	// Scheduled even when the attempt fails.
	assert.Error(t, m.Renew(nil))
	assert.Len(t, m.PendingReviews(), 2)
}

func TestAutoExpiry(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now)
	require.NoError(t, m.Enter(allClassApproval(), "dec-1"))

	assert.False(t, m.CheckAutoExpiry())
	now = now.Add(2 * time.Hour)
	assert.True(t, m.CheckAutoExpiry())
	assert.False(t, m.Active())
	require.Len(t, m.PendingReviews(), 1)
	assert.Equal(t, "emergency auto-expired", m.PendingReviews()[0].Trigger)

	// Idempotent once normal.
	assert.False(t, m.CheckAutoExpiry())
}

func TestExitSchedulesReview(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now)
	assert.ErrorContains(t, m.Exit(), "no active emergency")

	require.NoError(t, m.Enter(allClassApproval(), "dec-1"))
	require.NoError(t, m.Exit())
	assert.False(t, m.Active())
	require.Len(t, m.PendingReviews(), 1)
	assert.Equal(t, "emergency exited", m.PendingReviews()[0].Trigger)
	assert.Equal(t, "dec-1", m.PendingReviews()[0].DecisionID)
}

func TestBansTrackStatus(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now)

	assert.True(t, m.CheckIrreversibilityBan(true))
	assert.True(t, m.CheckPermanentChangeBan())

	require.NoError(t, m.Enter(allClassApproval(), "dec-1"))
	assert.False(t, m.CheckIrreversibilityBan(true))
	assert.True(t, m.CheckIrreversibilityBan(false))
	assert.False(t, m.CheckPermanentChangeBan())

	require.NoError(t, m.Exit())
	assert.True(t, m.CheckIrreversibilityBan(true))
	assert.True(t, m.CheckPermanentChangeBan())
}
