// Package emergency implements the circuit-breaker lifecycle: multi-class
// entry, auto-expiry, renewals that get strictly harder each time, a hard
// ban on irreversible actions while active, and mandatory post-hoc review.
package emergency

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/topstolenname/metaconcord/pkg/contracts"
)

// Status of the breaker.
type Status string

const (
	StatusNormal    Status = "NORMAL"
	StatusEmergency Status = "EMERGENCY"
)

// ErrMissingClassApproval is the deterministic code for an entry or renewal
// attempt lacking approval from every party class.
const ErrMissingClassApproval = "ERR_MISSING_CLASS_APPROVAL"

// ClassApprovalError names the classes whose approval was absent.
type ClassApprovalError struct {
	Missing []contracts.PartyClass `json:"missing"`
}

func (e *ClassApprovalError) Error() string {
	return fmt.Sprintf("%s: missing approving vote from %v", ErrMissingClassApproval, e.Missing)
}

// Review is a scheduled post-hoc review obligation.
type Review struct {
	ID          string    `json:"id"`
	Trigger     string    `json:"trigger"`
	DecisionID  string    `json:"decision_id,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// Manager owns the emergency state machine.
type Manager struct {
	mu             sync.Mutex
	status         Status
	decisionID     string
	enteredAt      time.Time
	expiresAt      time.Time
	renewals       int
	expiry         time.Duration
	baseThreshold  float64
	escalationStep float64
	reviews        []Review
	clock          func() time.Time
}

// Config holds the policy knobs for the breaker.
type Config struct {
	Expiry         time.Duration
	BaseThreshold  float64
	EscalationStep float64
}

// NewManager creates a manager in NORMAL status.
func NewManager(cfg Config) *Manager {
	return &Manager{
		status:         StatusNormal,
		expiry:         cfg.Expiry,
		baseThreshold:  cfg.BaseThreshold,
		escalationStep: cfg.EscalationStep,
		clock:          time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// missingClasses returns the party classes without an approving vote, in
// stable order.
func missingClasses(votes []contracts.VoteRecord) []contracts.PartyClass {
	approved := make(map[contracts.PartyClass]bool)
	for _, v := range votes {
		if v.Approve {
			approved[v.Class] = true
		}
	}
	var missing []contracts.PartyClass
	for _, c := range contracts.AllPartyClasses() {
		if !approved[c] {
			missing = append(missing, c)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

// approvalRatio is approvals over total votes; zero when there are no votes.
func approvalRatio(votes []contracts.VoteRecord) float64 {
	if len(votes) == 0 {
		return 0
	}
	approvals := 0
	for _, v := range votes {
		if v.Approve {
			approvals++
		}
	}
	return float64(approvals) / float64(len(votes))
}

// Enter transitions NORMAL → EMERGENCY. Requires at least one approving
// vote from each of H, A, and I.
func (m *Manager) Enter(votes []contracts.VoteRecord, decisionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status == StatusEmergency {
		return fmt.Errorf("emergency already active")
	}
	if missing := missingClasses(votes); len(missing) > 0 {
		return &ClassApprovalError{Missing: missing}
	}
	now := m.clock()
	m.status = StatusEmergency
	m.decisionID = decisionID
	m.enteredAt = now
	m.expiresAt = now.Add(m.expiry)
	m.renewals = 0
	return nil
}

// RenewalThreshold returns the approval ratio the next renewal must clear.
// Each successful renewal raises it by one escalation step, capped at 1.0.
func (m *Manager) RenewalThreshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renewalThresholdLocked()
}

func (m *Manager) renewalThresholdLocked() float64 {
	t := m.baseThreshold + float64(m.renewals+1)*m.escalationStep
	if t > 1.0 {
		return 1.0
	}
	return t
}

// Renew extends an active emergency. It requires the same all-class
// approval as entry plus a vote ratio at or above the escalating renewal
// threshold. The second and later renewals schedule a mandatory post-hoc
// review whatever the outcome.
func (m *Manager) Renew(votes []contracts.VoteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusEmergency {
		return fmt.Errorf("no active emergency to renew")
	}
	if m.renewals+1 >= 2 {
		m.scheduleReviewLocked("second or later renewal attempt")
	}
	if missing := missingClasses(votes); len(missing) > 0 {
		return &ClassApprovalError{Missing: missing}
	}
	required := m.renewalThresholdLocked()
	if ratio := approvalRatio(votes); ratio < required {
		return fmt.Errorf("renewal ratio %.2f below required %.2f", ratio, required)
	}
	m.renewals++
	m.expiresAt = m.clock().Add(m.expiry)
	return nil
}

// Exit transitions EMERGENCY → NORMAL and schedules the mandatory post-hoc
// review.
func (m *Manager) Exit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusEmergency {
		return fmt.Errorf("no active emergency to exit")
	}
	m.scheduleReviewLocked("emergency exited")
	m.status = StatusNormal
	m.decisionID = ""
	return nil
}

// CheckAutoExpiry transitions EMERGENCY → NORMAL once the expiry deadline
// passes, scheduling a post-hoc review. Returns true when an expiry fired.
// Callers poll this; the manager runs no background timer.
func (m *Manager) CheckAutoExpiry() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusEmergency || !m.clock().After(m.expiresAt) {
		return false
	}
	m.scheduleReviewLocked("emergency auto-expired")
	m.status = StatusNormal
	m.decisionID = ""
	return true
}

func (m *Manager) scheduleReviewLocked(trigger string) {
	m.reviews = append(m.reviews, Review{
		ID:          uuid.New().String(),
		Trigger:     trigger,
		DecisionID:  m.decisionID,
		ScheduledAt: m.clock(),
	})
}

// Active reports whether an emergency is in effect.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == StatusEmergency
}

// CheckIrreversibilityBan returns false for irreversible actions while an
// emergency is active. There is no override path.
func (m *Manager) CheckIrreversibilityBan(isIrreversible bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == StatusEmergency && isIrreversible {
		return false
	}
	return true
}

// CheckPermanentChangeBan returns false while an emergency is active:
// permanent Constraint-Set and Capability-Manifest changes (D1/D2) must be
// rejected for the emergency's duration.
func (m *Manager) CheckPermanentChangeBan() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status != StatusEmergency
}

// State is a point-in-time snapshot for status reporting.
type State struct {
	Status     Status    `json:"status"`
	DecisionID string    `json:"decision_id,omitempty"`
	EnteredAt  time.Time `json:"entered_at,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
	Renewals   int       `json:"renewals"`
	Reviews    []Review  `json:"reviews,omitempty"`
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := State{
		Status:   m.status,
		Renewals: m.renewals,
		Reviews:  append([]Review{}, m.reviews...),
	}
	if m.status == StatusEmergency {
		s.DecisionID = m.decisionID
		s.EnteredAt = m.enteredAt
		s.ExpiresAt = m.expiresAt
	}
	return s
}

// PendingReviews returns the scheduled post-hoc reviews.
func (m *Manager) PendingReviews() []Review {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Review{}, m.reviews...)
}
