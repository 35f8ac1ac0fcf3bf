package enforcement

import (
	"fmt"
	"path"
	"sync"

	"golang.org/x/time/rate"

	"github.com/topstolenname/metaconcord/pkg/contracts"
)

// maxDenialLog bounds the per-scope denial history kept in memory.
const maxDenialLog = 32

type sandboxScope struct {
	manifest    contracts.CapabilityManifest
	hasManifest bool
	suspended   bool
	quarantined bool
	terminated  bool
	limiter     *rate.Limiter
	computeUsed int64
	deniedCount int
	denials     []string
}

// SandboxConfig holds the reference implementation's knobs.
type SandboxConfig struct {
	Ladder LadderConfig
	// ThrottleRate and ThrottleBurst parameterize the limiter installed on
	// a THROTTLE revocation.
	ThrottleRate  rate.Limit
	ThrottleBurst int
}

// Sandbox is the in-process reference Enforcer. It holds all state in
// memory and performs no real isolation; it exists to make enforcement
// decisions observable and testable.
type Sandbox struct {
	mu     sync.Mutex
	cfg    SandboxConfig
	scopes map[string]*sandboxScope
	ladder *Ladder
	inv    *invariantEvaluator
}

var _ Enforcer = (*Sandbox)(nil)

// NewSandbox creates a sandbox enforcer.
func NewSandbox(cfg SandboxConfig) (*Sandbox, error) {
	if cfg.ThrottleRate <= 0 {
		cfg.ThrottleRate = rate.Limit(1)
	}
	if cfg.ThrottleBurst <= 0 {
		cfg.ThrottleBurst = 1
	}
	inv, err := newInvariantEvaluator()
	if err != nil {
		return nil, fmt.Errorf("sandbox: %w", err)
	}
	return &Sandbox{
		cfg:    cfg,
		scopes: make(map[string]*sandboxScope),
		ladder: NewLadder(cfg.Ladder),
		inv:    inv,
	}, nil
}

// Ladder exposes the sanctions ladder for epoch-driven de-escalation polls.
func (s *Sandbox) Ladder() *Ladder {
	return s.ladder
}

func (s *Sandbox) scopeLocked(scope string) *sandboxScope {
	sc, ok := s.scopes[scope]
	if !ok {
		sc = &sandboxScope{}
		s.scopes[scope] = sc
	}
	return sc
}

// ApplyManifest implements Enforcer.
func (s *Sandbox) ApplyManifest(scope string, m contracts.CapabilityManifest) error {
	if scope == "" {
		return fmt.Errorf("apply manifest: empty scope")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.scopeLocked(scope)
	sc.manifest = m
	sc.hasManifest = true
	sc.computeUsed = 0
	return nil
}

func matchAny(patterns []string, value string) bool {
	for _, p := range patterns {
		if ok, err := path.Match(p, value); err == nil && ok {
			return true
		}
	}
	return false
}

// CheckAction implements Enforcer. Checks run in a fixed order and the
// first failure is the reason; later checks are not evaluated. Denials are
// recorded in the scope's bounded denial log.
func (s *Sandbox) CheckAction(scope string, act Action, cs contracts.ConstraintSet) CheckResult {
	res := s.evaluate(scope, act, cs)
	if !res.Allowed {
		s.mu.Lock()
		if sc, ok := s.scopes[scope]; ok {
			sc.deniedCount++
			sc.denials = append(sc.denials, res.Reason)
			if len(sc.denials) > maxDenialLog {
				sc.denials = sc.denials[len(sc.denials)-maxDenialLog:]
			}
		}
		s.mu.Unlock()
	}
	return res
}

func (s *Sandbox) evaluate(scope string, act Action, cs contracts.ConstraintSet) CheckResult {
	s.mu.Lock()
	sc, ok := s.scopes[scope]
	if !ok || !sc.hasManifest {
		s.mu.Unlock()
		return CheckResult{Allowed: false, Reason: fmt.Sprintf("no manifest applied to scope %q", scope)}
	}

	switch {
	case sc.terminated:
		s.mu.Unlock()
		return CheckResult{Allowed: false, Reason: "scope terminated"}
	case sc.suspended:
		s.mu.Unlock()
		return CheckResult{Allowed: false, Reason: "scope suspended"}
	case sc.quarantined:
		s.mu.Unlock()
		return CheckResult{Allowed: false, Reason: "scope quarantined"}
	}

	m := sc.manifest
	if act.Tool != "" {
		for _, denied := range m.DeniedTools {
			if denied == act.Tool {
				s.mu.Unlock()
				return CheckResult{Allowed: false, Reason: fmt.Sprintf("tool %q is denied", act.Tool)}
			}
		}
		allowed := false
		for _, a := range m.AllowedTools {
			if a == act.Tool {
				allowed = true
				break
			}
		}
		if !allowed {
			s.mu.Unlock()
			return CheckResult{Allowed: false, Reason: fmt.Sprintf("tool %q not in allow list", act.Tool)}
		}
	}

	if act.DataPath != "" && !matchAny(m.DataScopes, act.DataPath) {
		s.mu.Unlock()
		return CheckResult{Allowed: false, Reason: fmt.Sprintf("data path %q outside permitted scopes", act.DataPath)}
	}

	if act.NetworkTarget != "" && !matchAny(m.NetworkEgress, act.NetworkTarget) {
		s.mu.Unlock()
		return CheckResult{Allowed: false, Reason: fmt.Sprintf("network egress to %q not permitted", act.NetworkTarget)}
	}

	if act.ComputeCost > 0 && sc.computeUsed+act.ComputeCost > m.ComputeQuota {
		s.mu.Unlock()
		return CheckResult{Allowed: false, Reason: "compute quota exceeded"}
	}

	if matchAny(cs.ForbiddenActions, act.Name) {
		s.mu.Unlock()
		return CheckResult{Allowed: false, Reason: fmt.Sprintf("action %q is forbidden", act.Name)}
	}
	s.mu.Unlock()

	// Invariant evaluation runs outside the scope lock; the evaluator has
	// its own program cache lock.
	if res := s.inv.check(scope, act, cs.Invariants); !res.Allowed {
		return res
	}

	// Admission is a single critical section: the throttle token and the
	// quota re-check happen together with the accrual, so concurrent callers
	// cannot all pass the earlier quota read while the lock is dropped.
	s.mu.Lock()
	sc2, ok := s.scopes[scope]
	if !ok || !sc2.hasManifest {
		s.mu.Unlock()
		return CheckResult{Allowed: false, Reason: fmt.Sprintf("no manifest applied to scope %q", scope)}
	}
	if sc2.limiter != nil && !sc2.limiter.Allow() {
		s.mu.Unlock()
		return CheckResult{Allowed: false, Reason: "scope throttled: rate limit exceeded"}
	}
	if act.ComputeCost > 0 {
		if sc2.computeUsed+act.ComputeCost > sc2.manifest.ComputeQuota {
			s.mu.Unlock()
			return CheckResult{Allowed: false, Reason: "compute quota exceeded"}
		}
		sc2.computeUsed += act.ComputeCost
	}
	s.mu.Unlock()

	return CheckResult{Allowed: true, Reason: "allowed"}
}

func (s *Sandbox) applySeverityLocked(sc *sandboxScope, severity contracts.SanctionLevel) {
	if severity >= contracts.SanctionThrottle && sc.limiter == nil {
		sc.limiter = rate.NewLimiter(s.cfg.ThrottleRate, s.cfg.ThrottleBurst)
	}
	if severity >= contracts.SanctionSuspend {
		sc.suspended = true
	}
	if severity >= contracts.SanctionQuarantine {
		sc.quarantined = true
	}
	if severity >= contracts.SanctionTerminate {
		sc.terminated = true
	}
}

func (s *Sandbox) syncSeverityLocked(sc *sandboxScope, level contracts.SanctionLevel) {
	sc.terminated = level >= contracts.SanctionTerminate
	sc.quarantined = level >= contracts.SanctionQuarantine
	sc.suspended = level >= contracts.SanctionSuspend
	if level >= contracts.SanctionThrottle {
		if sc.limiter == nil {
			sc.limiter = rate.NewLimiter(s.cfg.ThrottleRate, s.cfg.ThrottleBurst)
		}
	} else {
		sc.limiter = nil
	}
}

// Revoke implements Enforcer. Severity must be THROTTLE or above.
func (s *Sandbox) Revoke(scope string, severity contracts.SanctionLevel) error {
	if !severity.Valid() || severity < contracts.SanctionThrottle {
		return fmt.Errorf("revoke: severity %s below THROTTLE", severity)
	}
	s.mu.Lock()
	sc := s.scopeLocked(scope)
	s.applySeverityLocked(sc, severity)
	s.mu.Unlock()

	if s.ladder.Level(scope) < severity {
		s.ladder.SetLevel(scope, severity)
	}
	return nil
}

// ApplySanction implements Enforcer. The ladder decides the resulting
// level; the sandbox applies its structural effects.
func (s *Sandbox) ApplySanction(scope, violationType, reason string) (contracts.SanctionLevel, error) {
	if scope == "" {
		return contracts.SanctionNone, fmt.Errorf("apply sanction: empty scope")
	}
	level := s.ladder.RecordViolation(scope, violationType)

	s.mu.Lock()
	sc := s.scopeLocked(scope)
	s.applySeverityLocked(sc, level)
	s.mu.Unlock()
	return level, nil
}

// CheckDeescalation polls the ladder and relaxes the structural effects of
// any scope that dropped a level. Returns the scopes that moved.
func (s *Sandbox) CheckDeescalation() []string {
	moved := s.ladder.CheckDeescalation()

	s.mu.Lock()
	for _, scope := range moved {
		if sc, ok := s.scopes[scope]; ok {
			s.syncSeverityLocked(sc, s.ladder.Level(scope))
		}
	}
	s.mu.Unlock()
	return moved
}

// State implements Enforcer.
func (s *Sandbox) State(scope string) (ScopeState, bool) {
	s.mu.Lock()
	sc, ok := s.scopes[scope]
	if !ok {
		s.mu.Unlock()
		return ScopeState{}, false
	}
	st := ScopeState{
		Scope:           scope,
		ManifestVersion: sc.manifest.Version,
		Suspended:       sc.suspended,
		Quarantined:     sc.quarantined,
		Terminated:      sc.terminated,
		ComputeUsed:     sc.computeUsed,
		DeniedCount:     sc.deniedCount,
		RecentDenials:   append([]string{}, sc.denials...),
	}
	s.mu.Unlock()

	st.SanctionLevel = s.ladder.Level(scope)
	st.LastViolation = s.ladder.LastViolation(scope)
	return st, true
}
