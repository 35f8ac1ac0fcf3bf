// Package custody implements the threshold signing gate over audit-log
// roots: a root is released only after m of n registered custodians sign
// it, with signers spanning at least two party classes. Signing uses the
// pluggable evidence Signer contract; the default is the placeholder.
package custody

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/topstolenname/metaconcord/pkg/contracts"
	"github.com/topstolenname/metaconcord/pkg/evidence"
)

// Custodian is one registered key holder.
type Custodian struct {
	PartyID string               `json:"party_id"`
	Class   contracts.PartyClass `json:"class"`
}

// RootSignature is one custodian's signature over a root hash.
type RootSignature struct {
	PartyID   string               `json:"party_id"`
	Class     contracts.PartyClass `json:"class"`
	Signature string               `json:"signature"`
	SignedAt  time.Time            `json:"signed_at"`
}

// Release is the proof that a root cleared the custody gate.
type Release struct {
	RootHash   string          `json:"root_hash"`
	Signatures []RootSignature `json:"signatures"`
	ReleasedAt time.Time       `json:"released_at"`
}

// Gate is the m-of-n custody threshold over audit roots.
type Gate struct {
	mu         sync.Mutex
	threshold  int
	custodians map[string]Custodian
	pending    map[string][]RootSignature
	released   map[string]*Release
	signer     evidence.Signer
	clock      func() time.Time
}

// NewGate creates a gate requiring threshold signatures per root. A nil
// signer falls back to the placeholder.
func NewGate(threshold int, signer evidence.Signer) (*Gate, error) {
	if threshold < 2 {
		return nil, fmt.Errorf("custody threshold must be at least 2, got %d", threshold)
	}
	if signer == nil {
		signer = evidence.PlaceholderSigner{}
	}
	return &Gate{
		threshold:  threshold,
		custodians: make(map[string]Custodian),
		pending:    make(map[string][]RootSignature),
		released:   make(map[string]*Release),
		signer:     signer,
		clock:      time.Now,
	}, nil
}

// WithClock overrides the clock for deterministic testing.
func (g *Gate) WithClock(clock func() time.Time) *Gate {
	g.clock = clock
	return g
}

// AddCustodian registers a key holder.
func (g *Gate) AddCustodian(partyID string, class contracts.PartyClass) error {
	if !class.Valid() {
		return fmt.Errorf("custodian %q has invalid class %q", partyID, class)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.custodians[partyID]; exists {
		return fmt.Errorf("custodian %q already registered", partyID)
	}
	g.custodians[partyID] = Custodian{PartyID: partyID, Class: class}
	return nil
}

// RemoveCustodian drops a key holder. Pending signatures it already
// contributed stay; rotation is a governance decision, not a data purge.
func (g *Gate) RemoveCustodian(partyID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.custodians[partyID]; !exists {
		return fmt.Errorf("custodian %q not registered", partyID)
	}
	delete(g.custodians, partyID)
	return nil
}

// Sign records a custodian's signature over a root hash. An unregistered
// custodian is a contract violation and fails fast. When the threshold and
// the cross-class requirement are both met the root is released; the
// returned Release is nil until then.
func (g *Gate) Sign(partyID, rootHash string) (*Release, error) {
	if rootHash == "" {
		return nil, fmt.Errorf("custody sign: empty root hash")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	c, ok := g.custodians[partyID]
	if !ok {
		return nil, fmt.Errorf("custodian %q not registered", partyID)
	}
	if _, done := g.released[rootHash]; done {
		return nil, fmt.Errorf("root %s already released", rootHash)
	}
	for _, s := range g.pending[rootHash] {
		if s.PartyID == partyID {
			return nil, fmt.Errorf("custodian %q already signed root %s", partyID, rootHash)
		}
	}

	sig, err := g.signer.Sign(partyID, rootHash)
	if err != nil {
		return nil, fmt.Errorf("custody sign: %w", err)
	}
	g.pending[rootHash] = append(g.pending[rootHash], RootSignature{
		PartyID:   partyID,
		Class:     c.Class,
		Signature: sig,
		SignedAt:  g.clock(),
	})

	if rel := g.tryReleaseLocked(rootHash); rel != nil {
		return rel, nil
	}
	return nil, nil
}

// tryReleaseLocked releases a root once m signatures spanning at least two
// classes are present.
func (g *Gate) tryReleaseLocked(rootHash string) *Release {
	sigs := g.pending[rootHash]
	if len(sigs) < g.threshold {
		return nil
	}
	classes := make(map[contracts.PartyClass]bool)
	for _, s := range sigs {
		classes[s.Class] = true
	}
	if len(classes) < 2 {
		return nil
	}

	sort.Slice(sigs, func(i, j int) bool { return sigs[i].PartyID < sigs[j].PartyID })
	rel := &Release{
		RootHash:   rootHash,
		Signatures: sigs,
		ReleasedAt: g.clock(),
	}
	g.released[rootHash] = rel
	delete(g.pending, rootHash)
	return rel
}

// Released returns the release record for a root, if it cleared the gate.
func (g *Gate) Released(rootHash string) (*Release, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rel, ok := g.released[rootHash]
	return rel, ok
}

// PendingSignatures returns how many signatures a root has collected so
// far; zero for unknown or already-released roots.
func (g *Gate) PendingSignatures(rootHash string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending[rootHash])
}

// Custodians lists the registered key holders sorted by id.
func (g *Gate) Custodians() []Custodian {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Custodian, 0, len(g.custodians))
	for _, c := range g.custodians {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartyID < out[j].PartyID })
	return out
}
