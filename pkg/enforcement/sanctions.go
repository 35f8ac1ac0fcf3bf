package enforcement

import (
	"sync"
	"time"

	"github.com/topstolenname/metaconcord/pkg/contracts"
)

// LadderConfig holds the sanctions policy knobs.
type LadderConfig struct {
	// RepeatWindow is the rolling window within which a repeat violation of
	// the same type escalates one level.
	RepeatWindow time.Duration
	// CleanPeriod is how long a scope must stay violation-free to
	// de-escalate one level.
	CleanPeriod time.Duration
	// CriticalTypes skip the ladder straight to QUARANTINE.
	CriticalTypes []string
}

type scopeSanction struct {
	level         contracts.SanctionLevel
	violations    map[string][]time.Time
	lastViolation time.Time
	lastChange    time.Time
}

// Ladder runs graduated sanctions per scope. Escalation is automatic on
// repeat violations; de-escalation is time-based and polled by the caller.
// TERMINATE never de-escalates by time.
type Ladder struct {
	mu       sync.Mutex
	cfg      LadderConfig
	critical map[string]bool
	scopes   map[string]*scopeSanction
	clock    func() time.Time
}

// NewLadder creates a sanctions ladder.
func NewLadder(cfg LadderConfig) *Ladder {
	critical := make(map[string]bool, len(cfg.CriticalTypes))
	for _, t := range cfg.CriticalTypes {
		critical[t] = true
	}
	return &Ladder{
		cfg:      cfg,
		critical: critical,
		scopes:   make(map[string]*scopeSanction),
		clock:    time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (l *Ladder) WithClock(clock func() time.Time) *Ladder {
	l.clock = clock
	return l
}

func (l *Ladder) scopeLocked(scope string) *scopeSanction {
	s, ok := l.scopes[scope]
	if !ok {
		s = &scopeSanction{
			level:      contracts.SanctionNone,
			violations: make(map[string][]time.Time),
		}
		l.scopes[scope] = s
	}
	return s
}

// RecordViolation moves the scope on the ladder and returns the new level.
// A first violation of a type sanctions at least WARNING; a repeat of the
// same type within the rolling window escalates one level; critical types
// jump straight to QUARANTINE.
func (l *Ladder) RecordViolation(scope, violationType string) contracts.SanctionLevel {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	s := l.scopeLocked(scope)

	repeat := false
	for _, at := range s.violations[violationType] {
		if now.Sub(at) <= l.cfg.RepeatWindow {
			repeat = true
			break
		}
	}
	s.violations[violationType] = append(s.violations[violationType], now)
	s.lastViolation = now
	s.lastChange = now

	switch {
	case l.critical[violationType]:
		if s.level < contracts.SanctionQuarantine {
			s.level = contracts.SanctionQuarantine
		} else {
			s.level = s.level.Next()
		}
	case repeat:
		s.level = s.level.Next()
	default:
		if s.level < contracts.SanctionWarning {
			s.level = contracts.SanctionWarning
		}
	}
	return s.level
}

// SetLevel pins a scope to a level directly, as a governance decision or a
// revocation order would. Setting below TERMINATE is how termination is
// reversed.
func (l *Ladder) SetLevel(scope string, level contracts.SanctionLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.scopeLocked(scope)
	s.level = level
	s.lastChange = l.clock()
}

// Level returns the scope's current sanction level.
func (l *Ladder) Level(scope string) contracts.SanctionLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.scopes[scope]; ok {
		return s.level
	}
	return contracts.SanctionNone
}

// LastViolation returns when the scope last violated, zero if never.
func (l *Ladder) LastViolation(scope string) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.scopes[scope]; ok {
		return s.lastViolation
	}
	return time.Time{}
}

// CheckDeescalation drops every eligible scope one level: sanctioned above
// NONE, below TERMINATE, and clean for a full period since the last level
// change. Returns the scopes that moved. Callers poll this per epoch.
func (l *Ladder) CheckDeescalation() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	var moved []string
	for scope, s := range l.scopes {
		if s.level <= contracts.SanctionNone || s.level >= contracts.SanctionTerminate {
			continue
		}
		if now.Sub(s.lastChange) < l.cfg.CleanPeriod {
			continue
		}
		s.level = s.level.Prev()
		s.lastChange = now
		moved = append(moved, scope)
	}
	return moved
}
