package objection

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/topstolenname/metaconcord/pkg/contracts"
)

// Appeal is one filed challenge against a finalized decision. Appeals use
// the same closed basis vocabulary and the same bond escalation as
// objections, plus a hard time window after finalization.
type Appeal struct {
	ID           string                   `json:"id"`
	DecisionID   string                   `json:"decision_id"`
	PartyID      string                   `json:"party_id"`
	Grounds      contracts.ObjectionBasis `json:"grounds"`
	BondRequired float64                  `json:"bond_required"`
	FilingNumber int                      `json:"filing_number"`
	FiledAt      time.Time                `json:"filed_at"`
	Resolution   Resolution               `json:"resolution"`
	ResolvedAt   time.Time                `json:"resolved_at,omitempty"`
	Note         string                   `json:"note,omitempty"`
}

// AppealTracker tracks appeals, their bonds, and the filing window.
type AppealTracker struct {
	mu             sync.Mutex
	bondBase       float64
	bondMultiplier float64
	window         time.Duration
	filings        map[Key]int
	appeals        map[string]*Appeal
	clock          func() time.Time
}

// NewAppealTracker creates a tracker with the given bond schedule and
// filing window.
func NewAppealTracker(bondBase, bondMultiplier float64, window time.Duration) *AppealTracker {
	return &AppealTracker{
		bondBase:       bondBase,
		bondMultiplier: bondMultiplier,
		window:         window,
		filings:        make(map[Key]int),
		appeals:        make(map[string]*Appeal),
		clock:          time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (t *AppealTracker) WithClock(clock func() time.Time) *AppealTracker {
	t.clock = clock
	return t
}

// File records an appeal. The window is measured from the decision's
// finalization time; filing after it closes fails with ERR_WINDOW_EXPIRED.
func (t *AppealTracker) File(decisionID, partyID string, grounds contracts.ObjectionBasis, decisionFinalizedAt time.Time) (*Appeal, error) {
	if !grounds.Valid() {
		return nil, &FilingError{Code: ErrInvalidBasis, Message: fmt.Sprintf("appeal grounds %q not in vocabulary", grounds)}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	if decisionFinalizedAt.IsZero() {
		return nil, fmt.Errorf("decision has not been finalized")
	}
	if now.After(decisionFinalizedAt.Add(t.window)) {
		return nil, &FilingError{
			Code:    ErrWindowExpired,
			Message: fmt.Sprintf("appeal window closed %s after finalization", t.window),
		}
	}

	key := Key{DecisionID: decisionID, PartyID: partyID, Basis: grounds}
	n := t.filings[key] + 1
	t.filings[key] = n

	a := &Appeal{
		ID:           uuid.New().String(),
		DecisionID:   decisionID,
		PartyID:      partyID,
		Grounds:      grounds,
		BondRequired: bondFor(t.bondBase, t.bondMultiplier, n),
		FilingNumber: n,
		FiledAt:      now,
		Resolution:   ResolutionPending,
	}
	t.appeals[a.ID] = a
	return a, nil
}

// Resolve transitions a pending appeal to its resolution.
func (t *AppealTracker) Resolve(appealID string, sustained bool, note string) (*Appeal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.appeals[appealID]
	if !ok {
		return nil, fmt.Errorf("appeal %q not found", appealID)
	}
	if a.Resolution != ResolutionPending {
		return nil, fmt.Errorf("appeal %q already resolved (%s)", appealID, a.Resolution)
	}
	if sustained {
		a.Resolution = ResolutionSustained
	} else {
		a.Resolution = ResolutionOverruled
	}
	a.ResolvedAt = t.clock()
	a.Note = note
	return a, nil
}

// Get returns an appeal by id.
func (t *AppealTracker) Get(appealID string) (*Appeal, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.appeals[appealID]
	return a, ok
}

// ForDecision returns all appeals filed against one decision.
func (t *AppealTracker) ForDecision(decisionID string) []*Appeal {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*Appeal
	for _, a := range t.appeals {
		if a.DecisionID == decisionID {
			out = append(out, a)
		}
	}
	return out
}
