// Package deadlock implements the three-stage resolution ladder for stuck
// decisions: mediation, then arbitration by a mixed-class panel, then
// default-to-safety. Stages advance only when the caller asks; the resolver
// owns no timers. Default-to-safety bounds risk by tightening the active
// Constraint Set and Capability Manifest — it does not resolve the
// underlying decision.
package deadlock

import (
	"fmt"
	"sync"
	"time"

	"github.com/topstolenname/metaconcord/pkg/contracts"
)

// Stage is the resolver's position on the ladder.
type Stage string

const (
	StageNone            Stage = "NONE"
	StageMediation       Stage = "MEDIATION"
	StageArbitration     Stage = "ARBITRATION"
	StageDefaultToSafety Stage = "DEFAULT_TO_SAFETY"
)

// DefaultMediationTimeout bounds how long mediation may run before the
// caller is entitled to escalate.
const DefaultMediationTimeout = 600 * time.Second

// ArbitrationResult is the panel's binding outcome for one decision.
type ArbitrationResult struct {
	DecisionID string    `json:"decision_id"`
	Panel      []string  `json:"panel"`
	Outcome    string    `json:"outcome"`
	Rationale  string    `json:"rationale"`
	RenderedAt time.Time `json:"rendered_at"`
}

// Case is the resolver state for one deadlocked decision.
type Case struct {
	DecisionID        string                       `json:"decision_id"`
	Stage             Stage                        `json:"stage"`
	MediationStarted  time.Time                    `json:"mediation_started,omitempty"`
	MediationDeadline time.Time                    `json:"mediation_deadline,omitempty"`
	Arbitration       *ArbitrationResult           `json:"arbitration,omitempty"`
	SafetyConstraints *contracts.ConstraintSet     `json:"safety_constraints,omitempty"`
	SafetyManifest    *contracts.CapabilityManifest `json:"safety_manifest,omitempty"`
}

// Resolver tracks deadlock cases keyed by decision id.
type Resolver struct {
	mu               sync.Mutex
	mediationTimeout time.Duration
	cases            map[string]*Case
	clock            func() time.Time
}

// NewResolver creates a resolver. A non-positive timeout falls back to
// DefaultMediationTimeout.
func NewResolver(mediationTimeout time.Duration) *Resolver {
	if mediationTimeout <= 0 {
		mediationTimeout = DefaultMediationTimeout
	}
	return &Resolver{
		mediationTimeout: mediationTimeout,
		cases:            make(map[string]*Case),
		clock:            time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (r *Resolver) WithClock(clock func() time.Time) *Resolver {
	r.clock = clock
	return r
}

// BeginMediation opens a case at the MEDIATION stage. A case may only be
// opened once per decision.
func (r *Resolver) BeginMediation(decisionID string) (*Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.cases[decisionID]; exists {
		return nil, fmt.Errorf("deadlock case for decision %q already open", decisionID)
	}
	now := r.clock()
	c := &Case{
		DecisionID:        decisionID,
		Stage:             StageMediation,
		MediationStarted:  now,
		MediationDeadline: now.Add(r.mediationTimeout),
	}
	r.cases[decisionID] = c
	return c, nil
}

// IsMediationExpired is a pure deadline check against the case's mediation
// deadline. It never advances the stage.
func (r *Resolver) IsMediationExpired(decisionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cases[decisionID]
	if !ok {
		return false, fmt.Errorf("no deadlock case for decision %q", decisionID)
	}
	if c.Stage != StageMediation {
		return false, nil
	}
	return r.clock().After(c.MediationDeadline), nil
}

// EscalateToArbitration advances MEDIATION → ARBITRATION. The panel must be
// non-empty and span at least two party classes; arbitration over a
// single-class panel would reintroduce the capture the ladder exists to
// prevent. classOf resolves a panelist id to its class.
func (r *Resolver) EscalateToArbitration(decisionID string, panel []string, classOf func(string) (contracts.PartyClass, bool)) (*Case, error) {
	if len(panel) == 0 {
		return nil, fmt.Errorf("arbitration panel is empty")
	}
	classes := make(map[contracts.PartyClass]bool)
	for _, id := range panel {
		class, ok := classOf(id)
		if !ok {
			return nil, fmt.Errorf("panelist %q is not a registered party", id)
		}
		classes[class] = true
	}
	if len(classes) < 2 {
		return nil, fmt.Errorf("arbitration panel must span at least two party classes")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cases[decisionID]
	if !ok {
		return nil, fmt.Errorf("no deadlock case for decision %q", decisionID)
	}
	if c.Stage != StageMediation {
		return nil, fmt.Errorf("cannot escalate from stage %s", c.Stage)
	}
	c.Stage = StageArbitration
	c.Arbitration = &ArbitrationResult{
		DecisionID: decisionID,
		Panel:      append([]string{}, panel...),
	}
	return c, nil
}

// RecordArbitration records the panel's binding outcome. The case stays at
// ARBITRATION; a recorded outcome is what lets the caller close the case or
// escalate further.
func (r *Resolver) RecordArbitration(decisionID, outcome, rationale string) (*Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cases[decisionID]
	if !ok {
		return nil, fmt.Errorf("no deadlock case for decision %q", decisionID)
	}
	if c.Stage != StageArbitration || c.Arbitration == nil {
		return nil, fmt.Errorf("decision %q is not in arbitration", decisionID)
	}
	if c.Arbitration.Outcome != "" {
		return nil, fmt.Errorf("arbitration for decision %q already rendered", decisionID)
	}
	c.Arbitration.Outcome = outcome
	c.Arbitration.Rationale = rationale
	c.Arbitration.RenderedAt = r.clock()
	return c, nil
}

// DefaultToSafety advances ARBITRATION → DEFAULT_TO_SAFETY, deriving a
// strictly tighter Constraint Set and Capability Manifest from the active
// ones. The underlying decision stays unresolved.
func (r *Resolver) DefaultToSafety(decisionID string, cs contracts.ConstraintSet, cm contracts.CapabilityManifest) (*Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cases[decisionID]
	if !ok {
		return nil, fmt.Errorf("no deadlock case for decision %q", decisionID)
	}
	if c.Stage != StageArbitration {
		return nil, fmt.Errorf("cannot default to safety from stage %s", c.Stage)
	}
	restrictedCS := cs.Restricted()
	restrictedCM := cm.Restricted()
	c.Stage = StageDefaultToSafety
	c.SafetyConstraints = &restrictedCS
	c.SafetyManifest = &restrictedCM
	return c, nil
}

// Close removes a resolved case. Valid from any stage; the caller decides
// when the underlying decision no longer needs the ladder.
func (r *Resolver) Close(decisionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cases[decisionID]; !ok {
		return fmt.Errorf("no deadlock case for decision %q", decisionID)
	}
	delete(r.cases, decisionID)
	return nil
}

// Get returns the case for a decision, if one is open.
func (r *Resolver) Get(decisionID string) (*Case, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cases[decisionID]
	return c, ok
}
