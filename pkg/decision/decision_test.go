package decision

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topstolenname/metaconcord/pkg/contracts"
)

func newVoting(t *testing.T) *Decision {
	t.Helper()
	d, err := New(Proposal{
		Class:           contracts.D1,
		Proposer:        "h1",
		Rationale:       "tighten egress",
		ImpactStatement: "agents lose raw socket access",
		VotingPeriod:    time.Hour,
	})
	require.NoError(t, err)
	require.NoError(t, d.Transition(contracts.StateVoting))
	return d
}

func TestNewStartsProposed(t *testing.T) {
	d, err := New(Proposal{Class: contracts.D3, Proposer: "a1", VotingPeriod: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, contracts.StateProposed, d.State())
	assert.NotEmpty(t, d.ID())
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(Proposal{Class: contracts.DecisionClass("D9"), Proposer: "x"})
	assert.Error(t, err)
	_, err = New(Proposal{Class: contracts.D1})
	assert.Error(t, err)
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to contracts.DecisionState
		ok       bool
	}{
		{contracts.StateProposed, contracts.StateVoting, true},
		{contracts.StateProposed, contracts.StateApproved, false},
		{contracts.StateVoting, contracts.StateApproved, true},
		{contracts.StateVoting, contracts.StateRejected, true},
		{contracts.StateVoting, contracts.StateObjected, true},
		{contracts.StateVoting, contracts.StateExpired, true},
		{contracts.StateObjected, contracts.StateVoting, true},
		{contracts.StateObjected, contracts.StateApproved, false},
		{contracts.StateAppealed, contracts.StateApproved, true},
		{contracts.StateApproved, contracts.StateExecuted, true},
		{contracts.StateApproved, contracts.StateAppealed, true},
		{contracts.StateRejected, contracts.StateAppealed, true},
		{contracts.StateExecuted, contracts.StateAppealed, false},
		{contracts.StateExpired, contracts.StateVoting, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestInvalidTransitionLeavesStateUnchanged(t *testing.T) {
	d := newVoting(t)
	err := d.Transition(contracts.StateExecuted)
	require.Error(t, err)

	var se *StateError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ErrInvalidTransition, se.Code)
	assert.Equal(t, contracts.StateVoting, d.State())
}

func TestAddVoteOnlyWhileVoting(t *testing.T) {
	d, err := New(Proposal{Class: contracts.D1, Proposer: "h1", VotingPeriod: time.Hour})
	require.NoError(t, err)

	err = d.AddVote(contracts.VoteRecord{PartyID: "h1", Class: contracts.PartyHuman, Approve: true})
	var se *StateError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ErrNotVotingState, se.Code)
}

func TestAddVoteDuplicate(t *testing.T) {
	d := newVoting(t)
	require.NoError(t, d.AddVote(contracts.VoteRecord{PartyID: "h1", Class: contracts.PartyHuman, Approve: true}))

	err := d.AddVote(contracts.VoteRecord{PartyID: "h1", Class: contracts.PartyHuman, Approve: false})
	var se *StateError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ErrDuplicateVote, se.Code)
	assert.Len(t, d.Votes(), 1)
}

func TestConcurrentVotesOnePerParty(t *testing.T) {
	d := newVoting(t)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs[n] = d.AddVote(contracts.VoteRecord{PartyID: "h1", Class: contracts.PartyHuman, Approve: true})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, d.Votes(), 1)
}

func TestIsExpiredPureCheck(t *testing.T) {
	d := newVoting(t)
	now := time.Now()
	d.WithClock(func() time.Time { return now })
	assert.False(t, d.IsExpired())

	d.WithClock(func() time.Time { return now.Add(2 * time.Hour) })
	// IsExpired reports but does not transition.
	assert.True(t, d.IsExpired())
	assert.Equal(t, contracts.StateVoting, d.State())
}

func TestWithClockRederivesTimestampsOnce(t *testing.T) {
	d := newVoting(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	d.WithClock(func() time.Time { return base })
	assert.Equal(t, base, d.CreatedAt())
	assert.Equal(t, base.Add(time.Hour), d.VotingDeadline())

	// A later injection swaps the clock but must not move the deadline.
	d.WithClock(func() time.Time { return base.Add(30 * time.Minute) })
	assert.Equal(t, base, d.CreatedAt())
	assert.Equal(t, base.Add(time.Hour), d.VotingDeadline())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.CreatedAt()
			_ = d.VotingDeadline()
			d.WithClock(func() time.Time { return base.Add(time.Hour) })
		}()
	}
	wg.Wait()
	assert.Equal(t, base.Add(time.Hour), d.VotingDeadline())
}

func TestFinalizedAtSetOnEvaluation(t *testing.T) {
	d := newVoting(t)
	assert.True(t, d.FinalizedAt().IsZero())
	require.NoError(t, d.Transition(contracts.StateApproved))
	assert.False(t, d.FinalizedAt().IsZero())
}

func TestRecordRoundTrip(t *testing.T) {
	d := newVoting(t)
	require.NoError(t, d.AddVote(contracts.VoteRecord{PartyID: "a1", Class: contracts.PartyAgent, Approve: true}))
	d.RecordObjection("obj-1")

	rec := d.Record()
	assert.Equal(t, contracts.SchemaVersion, rec.SchemaVersion)

	back, err := FromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, d.ID(), back.ID())
	assert.Equal(t, d.State(), back.State())
	assert.Len(t, back.Votes(), 1)
}

func TestFromRecordRejectsIncompatibleSchema(t *testing.T) {
	rec := newVoting(t).Record()
	rec.SchemaVersion = "2.0.0"
	_, err := FromRecord(rec)
	assert.ErrorContains(t, err, "incompatible")
}
