package custody

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topstolenname/metaconcord/pkg/contracts"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	g, err := NewGate(2, nil)
	require.NoError(t, err)
	require.NoError(t, g.AddCustodian("h1", contracts.PartyHuman))
	require.NoError(t, g.AddCustodian("a1", contracts.PartyAgent))
	require.NoError(t, g.AddCustodian("a2", contracts.PartyAgent))
	return g
}

func TestThresholdTooLow(t *testing.T) {
	_, err := NewGate(1, nil)
	assert.ErrorContains(t, err, "at least 2")
}

func TestReleaseRequiresThresholdAndCrossClass(t *testing.T) {
	g := newTestGate(t)
	root := "sha256:root1"

	rel, err := g.Sign("a1", root)
	require.NoError(t, err)
	assert.Nil(t, rel)
	assert.Equal(t, 1, g.PendingSignatures(root))

	// Two signatures, one class: threshold met, gate still closed.
	rel, err = g.Sign("a2", root)
	require.NoError(t, err)
	assert.Nil(t, rel)

	rel, err = g.Sign("h1", root)
	require.NoError(t, err)
	require.NotNil(t, rel)
	assert.Equal(t, root, rel.RootHash)
	assert.Len(t, rel.Signatures, 3)
	assert.False(t, rel.ReleasedAt.IsZero())

	got, ok := g.Released(root)
	require.True(t, ok)
	assert.Equal(t, rel, got)
	assert.Zero(t, g.PendingSignatures(root))
}

func TestUnregisteredCustodianFailsFast(t *testing.T) {
	g := newTestGate(t)
	_, err := g.Sign("ghost", "sha256:root1")
	assert.ErrorContains(t, err, `custodian "ghost" not registered`)
}

func TestDuplicateSignatureRejected(t *testing.T) {
	g := newTestGate(t)
	_, err := g.Sign("h1", "sha256:root1")
	require.NoError(t, err)
	_, err = g.Sign("h1", "sha256:root1")
	assert.ErrorContains(t, err, "already signed")
}

func TestSignAfterReleaseRejected(t *testing.T) {
	g := newTestGate(t)
	root := "sha256:root1"
	_, err := g.Sign("h1", root)
	require.NoError(t, err)
	rel, err := g.Sign("a1", root)
	require.NoError(t, err)
	require.NotNil(t, rel)

	_, err = g.Sign("a2", root)
	assert.ErrorContains(t, err, "already released")
}

func TestCustodianRegistry(t *testing.T) {
	g := newTestGate(t)

	assert.ErrorContains(t, g.AddCustodian("h1", contracts.PartyHuman), "already registered")
	assert.Error(t, g.AddCustodian("x1", contracts.PartyClass("X")))

	require.NoError(t, g.RemoveCustodian("a2"))
	assert.ErrorContains(t, g.RemoveCustodian("a2"), "not registered")

	ids := []string{}
	for _, c := range g.Custodians() {
		ids = append(ids, c.PartyID)
	}
	assert.Equal(t, []string{"a1", "h1"}, ids)
}

func TestRemovedCustodianCannotSign(t *testing.T) {
	g := newTestGate(t)
	require.NoError(t, g.RemoveCustodian("a1"))
	_, err := g.Sign("a1", "sha256:root1")
	assert.ErrorContains(t, err, "not registered")
}
