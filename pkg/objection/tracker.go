// Package objection implements the anti-denial-of-service trackers for
// objections and appeals. Repeat filings from the same (decision, party,
// basis) key carry exponentially escalating bonds; the first filing is
// free. Bonds are a policy signal surfaced as data — the tracker computes
// the schedule but never debits anything (an external stake or quota
// system is the enforcement hook).
package objection

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/topstolenname/metaconcord/pkg/contracts"
)

// Deterministic error codes for inadmissible filings.
const (
	ErrInvalidBasis        = "ERR_INVALID_BASIS"
	ErrInvalidVetoCategory = "ERR_INVALID_VETO_CATEGORY"
	ErrWindowExpired       = "ERR_WINDOW_EXPIRED"
)

// FilingError is a typed admissibility failure.
type FilingError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *FilingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Resolution terminates an objection or appeal. Filings are never deleted.
type Resolution string

const (
	ResolutionPending   Resolution = "PENDING"
	ResolutionSustained Resolution = "SUSTAINED"
	ResolutionOverruled Resolution = "OVERRULED"
)

// Key identifies a filing lineage for bond escalation.
type Key struct {
	DecisionID string                   `json:"decision_id"`
	PartyID    string                   `json:"party_id"`
	Basis      contracts.ObjectionBasis `json:"basis"`
}

// Objection is one filed challenge against a decision.
type Objection struct {
	ID           string                   `json:"id"`
	DecisionID   string                   `json:"decision_id"`
	PartyID      string                   `json:"party_id"`
	Basis        contracts.ObjectionBasis `json:"basis"`
	Veto         bool                     `json:"veto"`
	VetoCategory contracts.VetoCategory   `json:"veto_category,omitempty"`
	BondRequired float64                  `json:"bond_required"`
	FilingNumber int                      `json:"filing_number"`
	FiledAt      time.Time                `json:"filed_at"`
	Resolution   Resolution               `json:"resolution"`
	ResolvedAt   time.Time                `json:"resolved_at,omitempty"`
	Note         string                   `json:"note,omitempty"`
}

// Tracker tracks objections and their bond escalation.
type Tracker struct {
	mu             sync.Mutex
	bondBase       float64
	bondMultiplier float64
	filings        map[Key]int
	objections     map[string]*Objection
	clock          func() time.Time
}

// NewTracker creates a tracker with the given bond schedule.
func NewTracker(bondBase, bondMultiplier float64) *Tracker {
	return &Tracker{
		bondBase:       bondBase,
		bondMultiplier: bondMultiplier,
		filings:        make(map[Key]int),
		objections:     make(map[string]*Objection),
		clock:          time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (t *Tracker) WithClock(clock func() time.Time) *Tracker {
	t.clock = clock
	return t
}

// bondFor computes the bond for the nth (1-indexed) filing of a key.
func bondFor(base, multiplier float64, n int) float64 {
	if n <= 1 {
		return 0
	}
	return base * math.Pow(multiplier, float64(n-1))
}

// File records an objection. Basis and veto category are validated before
// any bonding logic runs; a bad vocabulary entry fails fast.
func (t *Tracker) File(decisionID, partyID string, basis contracts.ObjectionBasis, veto bool, category contracts.VetoCategory) (*Objection, error) {
	if !basis.Valid() {
		return nil, &FilingError{Code: ErrInvalidBasis, Message: fmt.Sprintf("objection basis %q not in vocabulary", basis)}
	}
	if veto && !category.Valid() {
		return nil, &FilingError{Code: ErrInvalidVetoCategory, Message: fmt.Sprintf("veto category %q not recognized", category)}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := Key{DecisionID: decisionID, PartyID: partyID, Basis: basis}
	n := t.filings[key] + 1
	t.filings[key] = n

	o := &Objection{
		ID:           uuid.New().String(),
		DecisionID:   decisionID,
		PartyID:      partyID,
		Basis:        basis,
		Veto:         veto,
		BondRequired: bondFor(t.bondBase, t.bondMultiplier, n),
		FilingNumber: n,
		FiledAt:      t.clock(),
		Resolution:   ResolutionPending,
	}
	if veto {
		o.VetoCategory = category
	}
	t.objections[o.ID] = o
	return o, nil
}

// Resolve transitions a pending objection to its resolution.
func (t *Tracker) Resolve(objectionID string, sustained bool, note string) (*Objection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	o, ok := t.objections[objectionID]
	if !ok {
		return nil, fmt.Errorf("objection %q not found", objectionID)
	}
	if o.Resolution != ResolutionPending {
		return nil, fmt.Errorf("objection %q already resolved (%s)", objectionID, o.Resolution)
	}
	if sustained {
		o.Resolution = ResolutionSustained
	} else {
		o.Resolution = ResolutionOverruled
	}
	o.ResolvedAt = t.clock()
	o.Note = note
	return o, nil
}

// Get returns an objection by id.
func (t *Tracker) Get(objectionID string) (*Objection, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.objections[objectionID]
	return o, ok
}

// ForDecision returns all objections filed against one decision.
func (t *Tracker) ForDecision(decisionID string) []*Objection {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*Objection
	for _, o := range t.objections {
		if o.DecisionID == decisionID {
			out = append(out, o)
		}
	}
	return out
}
