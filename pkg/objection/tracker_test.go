package objection

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topstolenname/metaconcord/pkg/contracts"
)

func TestFirstFilingIsFree(t *testing.T) {
	tr := NewTracker(10, 2)
	o, err := tr.File("dec-1", "a1", contracts.BasisThresholdFailure, false, "")
	require.NoError(t, err)
	assert.Zero(t, o.BondRequired)
	assert.Equal(t, 1, o.FilingNumber)
}

func TestBondEscalation(t *testing.T) {
	tr := NewTracker(10, 2)
	_, err := tr.File("dec-1", "a1", contracts.BasisThresholdFailure, false, "")
	require.NoError(t, err)

	second, err := tr.File("dec-1", "a1", contracts.BasisThresholdFailure, false, "")
	require.NoError(t, err)
	assert.Equal(t, 20.0, second.BondRequired) // base * mult^1

	third, err := tr.File("dec-1", "a1", contracts.BasisThresholdFailure, false, "")
	require.NoError(t, err)
	assert.Equal(t, 40.0, third.BondRequired) // base * mult^2
}

func TestBondKeyedPerBasisAndParty(t *testing.T) {
	tr := NewTracker(10, 2)
	tr.File("dec-1", "a1", contracts.BasisThresholdFailure, false, "")

	// Different basis: fresh lineage.
	o, err := tr.File("dec-1", "a1", contracts.BasisMissingEPFields, false, "")
	require.NoError(t, err)
	assert.Zero(t, o.BondRequired)

	// Different party: fresh lineage.
	o, err = tr.File("dec-1", "a2", contracts.BasisThresholdFailure, false, "")
	require.NoError(t, err)
	assert.Zero(t, o.BondRequired)
}

func TestInvalidBasisFailsBeforeBonding(t *testing.T) {
	tr := NewTracker(10, 2)
	_, err := tr.File("dec-1", "a1", contracts.ObjectionBasis("vibes"), false, "")
	var fe *FilingError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ErrInvalidBasis, fe.Code)

	// The bad filing must not have consumed a lineage slot.
	o, err := tr.File("dec-1", "a1", contracts.BasisThresholdFailure, false, "")
	require.NoError(t, err)
	assert.Equal(t, 1, o.FilingNumber)
}

func TestVetoCategoryValidation(t *testing.T) {
	tr := NewTracker(10, 2)
	_, err := tr.File("dec-1", "h1", contracts.BasisConstraintMismatch, true, contracts.VetoCategory("mood"))
	var fe *FilingError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ErrInvalidVetoCategory, fe.Code)

	o, err := tr.File("dec-1", "h1", contracts.BasisConstraintMismatch, true, contracts.VetoIrreversiblePhysical)
	require.NoError(t, err)
	assert.True(t, o.Veto)
	assert.Equal(t, contracts.VetoIrreversiblePhysical, o.VetoCategory)
}

func TestResolve(t *testing.T) {
	tr := NewTracker(10, 2)
	o, err := tr.File("dec-1", "a1", contracts.BasisLogIntegrityConcern, false, "")
	require.NoError(t, err)

	resolved, err := tr.Resolve(o.ID, true, "chain verified broken")
	require.NoError(t, err)
	assert.Equal(t, ResolutionSustained, resolved.Resolution)
	assert.False(t, resolved.ResolvedAt.IsZero())

	_, err = tr.Resolve(o.ID, false, "")
	assert.ErrorContains(t, err, "already resolved")

	_, err = tr.Resolve("missing", false, "")
	assert.ErrorContains(t, err, "not found")
}

func TestForDecision(t *testing.T) {
	tr := NewTracker(10, 2)
	tr.File("dec-1", "a1", contracts.BasisThresholdFailure, false, "")
	tr.File("dec-2", "a1", contracts.BasisThresholdFailure, false, "")
	assert.Len(t, tr.ForDecision("dec-1"), 1)
	assert.Empty(t, tr.ForDecision("dec-9"))
}

func TestAppealWindow(t *testing.T) {
	now := time.Now()
	tr := NewAppealTracker(10, 2, time.Hour).WithClock(func() time.Time { return now })

	finalized := now.Add(-30 * time.Minute)
	a, err := tr.File("dec-1", "h1", contracts.BasisThresholdFailure, finalized)
	require.NoError(t, err)
	assert.Zero(t, a.BondRequired)

	// Past the window.
	late := now.Add(-2 * time.Hour)
	_, err = tr.File("dec-1", "h2", contracts.BasisThresholdFailure, late)
	var fe *FilingError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ErrWindowExpired, fe.Code)

	// Not finalized at all.
	_, err = tr.File("dec-1", "h3", contracts.BasisThresholdFailure, time.Time{})
	assert.ErrorContains(t, err, "not been finalized")
}

func TestAppealBondEscalation(t *testing.T) {
	now := time.Now()
	tr := NewAppealTracker(5, 3, time.Hour).WithClock(func() time.Time { return now })

	finalized := now
	first, err := tr.File("dec-1", "h1", contracts.BasisMissingEPFields, finalized)
	require.NoError(t, err)
	assert.Zero(t, first.BondRequired)

	second, err := tr.File("dec-1", "h1", contracts.BasisMissingEPFields, finalized)
	require.NoError(t, err)
	assert.Equal(t, 15.0, second.BondRequired)
}

func TestAppealResolve(t *testing.T) {
	now := time.Now()
	tr := NewAppealTracker(5, 2, time.Hour).WithClock(func() time.Time { return now })
	a, err := tr.File("dec-1", "h1", contracts.BasisInadequateImpact, now)
	require.NoError(t, err)

	resolved, err := tr.Resolve(a.ID, false, "impact statement adequate")
	require.NoError(t, err)
	assert.Equal(t, ResolutionOverruled, resolved.Resolution)
}
