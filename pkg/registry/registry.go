// Package registry provides the Party Registry — admission, removal and
// class accounting for the voting parties of a Meta-Concord engine.
//
// There are no implicit defaults: an engine with no Human party can never
// satisfy quorum for D1..D4 decisions.
package registry

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/topstolenname/metaconcord/pkg/contracts"
)

// Registry tracks registered parties keyed by NFC-normalized identifier.
type Registry struct {
	mu      sync.RWMutex
	parties map[string]contracts.Party
	clock   func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		parties: make(map[string]contracts.Party),
		clock:   time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// normalizeID folds visually identical identifiers onto one key so a
// lookalike ID cannot smuggle a duplicate registration.
func normalizeID(id string) string {
	return norm.NFC.String(id)
}

// Register admits a party. Fails if the id is already registered or the
// class is unknown.
func (r *Registry) Register(id string, class contracts.PartyClass, scope string, conflicts []string) (contracts.Party, error) {
	if id == "" {
		return contracts.Party{}, fmt.Errorf("party id cannot be empty")
	}
	if !class.Valid() {
		return contracts.Party{}, fmt.Errorf("unknown party class %q", class)
	}

	key := normalizeID(id)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.parties[key]; exists {
		return contracts.Party{}, fmt.Errorf("party %q already registered", id)
	}

	p := contracts.Party{
		ID:           key,
		Class:        class,
		Scope:        scope,
		Conflicts:    append([]string{}, conflicts...),
		RegisteredAt: r.clock(),
	}
	r.parties[key] = p
	return p, nil
}

// Remove deletes a party. Fails if the id is not registered.
func (r *Registry) Remove(id string) error {
	key := normalizeID(id)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.parties[key]; !exists {
		return fmt.Errorf("party %q not found", id)
	}
	delete(r.parties, key)
	return nil
}

// Get returns a party by id.
func (r *Registry) Get(id string) (contracts.Party, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parties[normalizeID(id)]
	return p, ok
}

// List returns all registered parties.
func (r *Registry) List() []contracts.Party {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]contracts.Party, 0, len(r.parties))
	for _, p := range r.parties {
		out = append(out, p)
	}
	return out
}

// ClassCounts returns the number of registered parties per class.
func (r *Registry) ClassCounts() map[contracts.PartyClass]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[contracts.PartyClass]int, 3)
	for _, c := range contracts.AllPartyClasses() {
		counts[c] = 0
	}
	for _, p := range r.parties {
		counts[p.Class]++
	}
	return counts
}

// HasAllClasses reports whether every party class has at least one member.
func (r *Registry) HasAllClasses() bool {
	for _, n := range r.ClassCounts() {
		if n == 0 {
			return false
		}
	}
	return true
}

// Size returns the number of registered parties.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.parties)
}
