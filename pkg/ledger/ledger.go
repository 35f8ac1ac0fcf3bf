// Package ledger implements the Meta-Concord audit log: an append-only,
// hash-chained record of every governance event, with periodic Merkle-root
// snapshots and an external-anchoring stub.
//
// Appends are totally ordered behind a single writer lock because each
// entry's hash depends on its predecessor's; concurrent unordered appends
// would produce an ambiguous chain.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/topstolenname/metaconcord/pkg/canonicalize"
	"github.com/topstolenname/metaconcord/pkg/merkle"
)

// EventType categorizes an audit entry.
type EventType string

const (
	EventEngineInit        EventType = "ENGINE_INIT"
	EventPartyRegistered   EventType = "PARTY_REGISTERED"
	EventPartyRemoved      EventType = "PARTY_REMOVED"
	EventDecisionProposed  EventType = "DECISION_PROPOSED"
	EventVoteCast          EventType = "VOTE_CAST"
	EventDecisionEvaluated EventType = "DECISION_EVALUATED"
	EventDecisionExecuted  EventType = "DECISION_EXECUTED"
	EventDecisionExpired   EventType = "DECISION_EXPIRED"
	EventObjectionFiled    EventType = "OBJECTION_FILED"
	EventObjectionResolved EventType = "OBJECTION_RESOLVED"
	EventAppealFiled       EventType = "APPEAL_FILED"
	EventAppealResolved    EventType = "APPEAL_RESOLVED"
	EventEmergencyEntered  EventType = "EMERGENCY_ENTERED"
	EventEmergencyRenewed  EventType = "EMERGENCY_RENEWED"
	EventEmergencyExited   EventType = "EMERGENCY_EXITED"
	EventSanctionApplied   EventType = "SANCTION_APPLIED"
	EventDeadlockAdvanced  EventType = "DEADLOCK_ADVANCED"
	EventAnchorRequested   EventType = "ANCHOR_REQUESTED"
	EventCustodySigned     EventType = "CUSTODY_SIGNED"
)

// genesisHash seeds the chain before the first entry.
const genesisHash = "genesis"

// Entry is one immutable audit record.
type Entry struct {
	ID         string         `json:"id"`
	Sequence   uint64         `json:"sequence"`
	Timestamp  time.Time      `json:"timestamp"`
	EventType  EventType      `json:"event_type"`
	DecisionID string         `json:"decision_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	PrevHash   string         `json:"prev_hash"`
	EntryHash  string         `json:"entry_hash"`
}

// RootSnapshot records a Merkle root computed at a chain position.
type RootSnapshot struct {
	Sequence   uint64    `json:"sequence"`
	Root       string    `json:"root"`
	ComputedAt time.Time `json:"computed_at"`
}

// AnchorRecord notes an external-anchoring intent. The real anchoring
// backend plugs in behind AnchorRoot.
type AnchorRecord struct {
	Reference   string    `json:"reference"`
	Root        string    `json:"root"`
	RequestedAt time.Time `json:"requested_at"`
}

// Summary is a bounded, human-readable view of one entry.
type Summary struct {
	Sequence   uint64    `json:"sequence"`
	EventType  EventType `json:"event_type"`
	DecisionID string    `json:"decision_id,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	EntryHash  string    `json:"entry_hash"`
	Line       string    `json:"line"`
}

// Log is the append-only hash-chained audit log.
type Log struct {
	mu             sync.RWMutex
	entries        []Entry
	roots          []RootSnapshot
	anchors        []AnchorRecord
	headHash       string
	merkleInterval int
	clock          func() time.Time
}

// New creates an empty log computing a Merkle root every merkleInterval
// entries. Intervals below 1 disable snapshotting.
func New(merkleInterval int) *Log {
	return &Log{
		headHash:       genesisHash,
		merkleInterval: merkleInterval,
		clock:          time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (l *Log) WithClock(clock func() time.Time) *Log {
	l.clock = clock
	return l
}

// hashableEntry fixes the set of fields covered by the entry hash.
type hashableEntry struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	EventType  EventType      `json:"event_type"`
	DecisionID string         `json:"decision_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	PrevHash   string         `json:"prev_hash"`
}

func entryHash(e Entry) (string, error) {
	return canonicalize.CanonicalHash(hashableEntry{
		ID:         e.ID,
		Timestamp:  e.Timestamp,
		EventType:  e.EventType,
		DecisionID: e.DecisionID,
		ActorID:    e.ActorID,
		Data:       e.Data,
		PrevHash:   e.PrevHash,
	})
}

// Append adds an entry to the chain and returns it. Every Kth entry also
// records a Merkle root over all entry hashes so far.
func (l *Log) Append(eventType EventType, data map[string]any, decisionID, actorID string) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{
		ID:         uuid.New().String(),
		Sequence:   uint64(len(l.entries)) + 1,
		Timestamp:  l.clock(),
		EventType:  eventType,
		DecisionID: decisionID,
		ActorID:    actorID,
		Data:       data,
		PrevHash:   l.headHash,
	}
	h, err := entryHash(e)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger append: %w", err)
	}
	e.EntryHash = h

	l.entries = append(l.entries, e)
	l.headHash = h

	if l.merkleInterval > 0 && len(l.entries)%l.merkleInterval == 0 {
		l.roots = append(l.roots, RootSnapshot{
			Sequence:   e.Sequence,
			Root:       merkle.Root(l.entryHashesLocked()),
			ComputedAt: l.clock(),
		})
	}
	return e, nil
}

func (l *Log) entryHashesLocked() []string {
	hashes := make([]string, len(l.entries))
	for i, e := range l.entries {
		hashes[i] = e.EntryHash
	}
	return hashes
}

// AnchorRoot records the intent to anchor a root externally and returns an
// opaque reference. Production deployments replace this stub with a real
// anchoring backend (timestamping service, public chain, notary).
func (l *Log) AnchorRoot(root string) (AnchorRecord, error) {
	if root == "" {
		return AnchorRecord{}, fmt.Errorf("cannot anchor empty root")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := AnchorRecord{
		Reference:   "anchor://" + uuid.New().String(),
		Root:        root,
		RequestedAt: l.clock(),
	}
	l.anchors = append(l.anchors, rec)
	return rec, nil
}

// VerifyIntegrity recomputes every entry hash and checks both
// self-consistency and chain linkage. Any divergence — tampered data,
// stored hash, or chain link — returns false with the first finding.
// Tamper detection is a report, not an exception.
func (l *Log) VerifyIntegrity() (bool, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prev := genesisHash
	for i, e := range l.entries {
		if e.PrevHash != prev {
			return false, fmt.Sprintf("chain broken at entry %d: expected prev %s, got %s", i+1, prev, e.PrevHash)
		}
		computed, err := entryHash(e)
		if err != nil {
			return false, fmt.Sprintf("entry %d not hashable: %v", i+1, err)
		}
		if computed != e.EntryHash {
			return false, fmt.Sprintf("hash mismatch at entry %d", i+1)
		}
		prev = e.EntryHash
	}
	return true, "chain verified"
}

// EntriesForDecision returns the entries recorded for one decision.
func (l *Log) EntriesForDecision(decisionID string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.DecisionID == decisionID {
			out = append(out, e)
		}
	}
	return out
}

// BoundedSummary returns the maxEntries most recent summaries. The bound
// resists transparency-by-volume: flooding the log cannot bury meaningful
// entries past the window.
func (l *Log) BoundedSummary(maxEntries int) []Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if maxEntries <= 0 {
		return nil
	}
	start := len(l.entries) - maxEntries
	if start < 0 {
		start = 0
	}
	out := make([]Summary, 0, len(l.entries)-start)
	for _, e := range l.entries[start:] {
		line := fmt.Sprintf("#%d %s", e.Sequence, e.EventType)
		if e.DecisionID != "" {
			line += " decision=" + e.DecisionID
		}
		if e.ActorID != "" {
			line += " actor=" + e.ActorID
		}
		out = append(out, Summary{
			Sequence:   e.Sequence,
			EventType:  e.EventType,
			DecisionID: e.DecisionID,
			ActorID:    e.ActorID,
			EntryHash:  e.EntryHash,
			Line:       line,
		})
	}
	return out
}

// Head returns the current head hash.
func (l *Log) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headHash
}

// Length returns the number of entries.
func (l *Log) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Roots returns the recorded Merkle root snapshots.
func (l *Log) Roots() []RootSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]RootSnapshot, len(l.roots))
	copy(out, l.roots)
	return out
}

// Anchors returns the recorded anchoring records.
func (l *Log) Anchors() []AnchorRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]AnchorRecord, len(l.anchors))
	copy(out, l.anchors)
	return out
}
