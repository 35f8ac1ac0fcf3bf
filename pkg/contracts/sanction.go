package contracts

import "fmt"

// SanctionLevel is the graduated sanctions ladder. It doubles as the
// severity scale for capability revocation (THROTTLE..TERMINATE).
type SanctionLevel int

const (
	SanctionNone SanctionLevel = iota
	SanctionWarning
	SanctionThrottle
	SanctionSuspend
	SanctionQuarantine
	SanctionTerminate
)

var sanctionNames = map[SanctionLevel]string{
	SanctionNone:       "NONE",
	SanctionWarning:    "WARNING",
	SanctionThrottle:   "THROTTLE",
	SanctionSuspend:    "SUSPEND",
	SanctionQuarantine: "QUARANTINE",
	SanctionTerminate:  "TERMINATE",
}

func (l SanctionLevel) String() string {
	if n, ok := sanctionNames[l]; ok {
		return n
	}
	return fmt.Sprintf("SANCTION(%d)", int(l))
}

// Valid reports whether l is on the ladder.
func (l SanctionLevel) Valid() bool {
	return l >= SanctionNone && l <= SanctionTerminate
}

// Next returns the level one rung up, capped at TERMINATE.
func (l SanctionLevel) Next() SanctionLevel {
	if l >= SanctionTerminate {
		return SanctionTerminate
	}
	return l + 1
}

// Prev returns the level one rung down, floored at NONE. TERMINATE never
// de-escalates by time; callers must check that separately.
func (l SanctionLevel) Prev() SanctionLevel {
	if l <= SanctionNone {
		return SanctionNone
	}
	return l - 1
}

// ParseSanctionLevel converts a wire name into a SanctionLevel.
func ParseSanctionLevel(s string) (SanctionLevel, error) {
	for l, n := range sanctionNames {
		if n == s {
			return l, nil
		}
	}
	return SanctionNone, fmt.Errorf("unknown sanction level %q", s)
}
