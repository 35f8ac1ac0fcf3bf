package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendN(t *testing.T, l *Log, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := l.Append(EventVoteCast, map[string]any{"n": i}, "dec-1", "h1")
		require.NoError(t, err)
	}
}

func TestAppendChainsHashes(t *testing.T) {
	l := New(0)
	e1, err := l.Append(EventEngineInit, nil, "", "")
	require.NoError(t, err)
	e2, err := l.Append(EventPartyRegistered, map[string]any{"party": "h1"}, "", "h1")
	require.NoError(t, err)

	assert.Equal(t, "genesis", e1.PrevHash)
	assert.Equal(t, e1.EntryHash, e2.PrevHash)
	assert.Equal(t, e2.EntryHash, l.Head())
	assert.Equal(t, 2, l.Length())
}

func TestVerifyIntegrityClean(t *testing.T) {
	l := New(0)
	appendN(t, l, 20)
	ok, reason := l.VerifyIntegrity()
	assert.True(t, ok, reason)
}

func TestVerifyIntegrityDetectsDataTamper(t *testing.T) {
	l := New(0)
	appendN(t, l, 10)
	l.entries[4].Data["n"] = 999
	ok, reason := l.VerifyIntegrity()
	assert.False(t, ok)
	assert.Contains(t, reason, "hash mismatch")
}

func TestVerifyIntegrityDetectsHashTamper(t *testing.T) {
	l := New(0)
	appendN(t, l, 10)
	l.entries[4].EntryHash = "sha256:deadbeef"
	ok, _ := l.VerifyIntegrity()
	assert.False(t, ok)
}

func TestVerifyIntegrityDetectsChainTamper(t *testing.T) {
	l := New(0)
	appendN(t, l, 10)
	l.entries[7].PrevHash = "sha256:deadbeef"
	ok, reason := l.VerifyIntegrity()
	assert.False(t, ok)
	assert.Contains(t, reason, "chain broken")
}

func TestMerkleSnapshotCadence(t *testing.T) {
	l := New(5)
	appendN(t, l, 10)
	roots := l.Roots()
	require.Len(t, roots, 2)
	assert.Equal(t, uint64(5), roots[0].Sequence)
	assert.Equal(t, uint64(10), roots[1].Sequence)
	assert.NotEqual(t, roots[0].Root, roots[1].Root)
}

func TestMerkleDisabled(t *testing.T) {
	l := New(0)
	appendN(t, l, 10)
	assert.Empty(t, l.Roots())
}

func TestAnchorRoot(t *testing.T) {
	l := New(5)
	appendN(t, l, 5)
	roots := l.Roots()
	require.Len(t, roots, 1)

	rec, err := l.AnchorRoot(roots[0].Root)
	require.NoError(t, err)
	assert.Contains(t, rec.Reference, "anchor://")
	assert.Len(t, l.Anchors(), 1)

	_, err = l.AnchorRoot("")
	assert.Error(t, err)
}

func TestEntriesForDecision(t *testing.T) {
	l := New(0)
	l.Append(EventDecisionProposed, nil, "dec-1", "h1")
	l.Append(EventDecisionProposed, nil, "dec-2", "a1")
	l.Append(EventVoteCast, nil, "dec-1", "i1")

	assert.Len(t, l.EntriesForDecision("dec-1"), 2)
	assert.Len(t, l.EntriesForDecision("dec-2"), 1)
	assert.Empty(t, l.EntriesForDecision("dec-3"))
}

func TestBoundedSummary(t *testing.T) {
	l := New(0)
	appendN(t, l, 50)

	sums := l.BoundedSummary(10)
	require.Len(t, sums, 10)
	// Most recent window, in order.
	assert.Equal(t, uint64(41), sums[0].Sequence)
	assert.Equal(t, uint64(50), sums[9].Sequence)
	assert.NotEmpty(t, sums[0].EntryHash)
	assert.Contains(t, sums[0].Line, "VOTE_CAST")

	assert.Nil(t, l.BoundedSummary(0))
	assert.Len(t, l.BoundedSummary(100), 50)
}

func TestSerializeRoundTrip(t *testing.T) {
	l := New(5)
	appendN(t, l, 7)
	l.AnchorRoot(l.Roots()[0].Root)

	raw, err := l.Serialize()
	require.NoError(t, err)

	back, err := Deserialize(raw)
	require.NoError(t, err)
	assert.Equal(t, l.Length(), back.Length())
	assert.Equal(t, l.Head(), back.Head())
	assert.Len(t, back.Roots(), 1)
	assert.Len(t, back.Anchors(), 1)

	ok, _ := back.VerifyIntegrity()
	assert.True(t, ok)
}

func TestDeserializeRejectsTamperedSnapshot(t *testing.T) {
	l := New(0)
	appendN(t, l, 3)
	raw, err := l.Serialize()
	require.NoError(t, err)

	tampered := []byte(string(raw))
	tampered = []byte(replaceOnce(string(tampered), `"n":1`, `"n":7`))
	_, err = Deserialize(tampered)
	assert.ErrorContains(t, err, "integrity")
}

func TestDeserializeRejectsBadShape(t *testing.T) {
	_, err := Deserialize([]byte(`{"entries": "nope"}`))
	assert.ErrorContains(t, err, "schema")

	_, err = Deserialize([]byte(`not json`))
	assert.Error(t, err)
}

func replaceOnce(s, old, new string) string {
	for i := 0; i+len(old) <= len(s); i++ {
		if s[i:i+len(old)] == old {
			return s[:i] + new + s[i+len(old):]
		}
	}
	return s
}
