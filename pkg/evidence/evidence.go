// Package evidence implements the Evidence Package — the canonical proof
// bundle every executed D1..D4 decision must produce. Validity is a pure
// predicate over the package's own fields; a missing or unsatisfied proof
// is a defect, never a crash.
package evidence

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/topstolenname/metaconcord/pkg/canonicalize"
	"github.com/topstolenname/metaconcord/pkg/contracts"
	"github.com/topstolenname/metaconcord/pkg/voting"
)

// SignatureRecord is one custodial signature over the package content.
type SignatureRecord struct {
	PartyID   string    `json:"party_id"`
	Signature string    `json:"signature"`
	SignedAt  time.Time `json:"signed_at"`
}

// Signer produces signatures over content hashes. The engine ships a
// placeholder; production deployments plug real asymmetric signing in
// behind the same contract.
type Signer interface {
	Sign(partyID, contentHash string) (string, error)
}

// PlaceholderSigner hashes party id and content hash together. It proves
// nothing cryptographically and exists only to exercise the call contract.
type PlaceholderSigner struct{}

// Sign implements Signer.
func (PlaceholderSigner) Sign(partyID, contentHash string) (string, error) {
	if partyID == "" {
		return "", fmt.Errorf("signer: empty party id")
	}
	return canonicalize.HashBytes([]byte(partyID + "|" + contentHash)), nil
}

// Package is the proof bundle for one executed decision. Immutable after
// signing.
type Package struct {
	SchemaVersion   string                  `json:"schema_version"`
	ID              string                  `json:"id"`
	DecisionID      string                  `json:"decision_id"`
	DecisionClass   contracts.DecisionClass `json:"decision_class"`
	Participants    []string                `json:"participants"`
	Quorum          *voting.QuorumProof     `json:"quorum_proof"`
	Threshold       *voting.ThresholdProof  `json:"threshold_proof"`
	Rationale       string                  `json:"rationale"`
	ImpactStatement string                  `json:"impact_statement"`
	Diffs           map[string]any          `json:"diffs,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	AuditAnchor     string                  `json:"audit_anchor"`
	ContentHash     string                  `json:"content_hash"`
	Signatures      []SignatureRecord       `json:"signatures,omitempty"`
}

// Input carries everything needed to assemble a package.
type Input struct {
	DecisionID      string
	DecisionClass   contracts.DecisionClass
	Participants    []string
	Quorum          voting.QuorumProof
	Threshold       voting.ThresholdProof
	Rationale       string
	ImpactStatement string
	Diffs           map[string]any
	AuditAnchor     string
	CreatedAt       time.Time
}

// Build assembles a package and seals its content hash. The hash covers
// everything except the signatures that accrue afterwards.
func Build(in Input) (*Package, error) {
	p := &Package{
		SchemaVersion:   contracts.SchemaVersion,
		ID:              uuid.New().String(),
		DecisionID:      in.DecisionID,
		DecisionClass:   in.DecisionClass,
		Participants:    append([]string{}, in.Participants...),
		Quorum:          &in.Quorum,
		Threshold:       &in.Threshold,
		Rationale:       in.Rationale,
		ImpactStatement: in.ImpactStatement,
		Diffs:           in.Diffs,
		CreatedAt:       in.CreatedAt,
		AuditAnchor:     in.AuditAnchor,
	}
	hashable := *p
	hashable.Signatures = nil
	hashable.ContentHash = ""
	h, err := canonicalize.CanonicalHash(hashable)
	if err != nil {
		return nil, fmt.Errorf("evidence package: %w", err)
	}
	p.ContentHash = h
	return p, nil
}

// Validate returns the (possibly empty) list of defects. It never
// short-circuits: every defect is reported so an objection can cite all of
// them at once.
func (p *Package) Validate() []string {
	var defects []string

	if p.DecisionID == "" {
		defects = append(defects, "missing decision id")
	}
	if p.DecisionClass == contracts.D0 {
		// D0 is pre-authorized: carrying an EP at all is the defect.
		defects = append(defects, "D0 decisions must not carry an evidence package")
	}
	if len(p.Participants) == 0 {
		defects = append(defects, "empty participant list")
	}
	switch {
	case p.Quorum == nil:
		defects = append(defects, "missing quorum proof")
	case !p.Quorum.Satisfied:
		defects = append(defects, "quorum proof not satisfied")
	}
	switch {
	case p.Threshold == nil:
		defects = append(defects, "missing threshold proof")
	case !p.Threshold.Satisfied:
		defects = append(defects, "threshold proof not satisfied")
	}
	if p.Threshold != nil {
		for _, c := range contracts.AllPartyClasses() {
			if !p.Threshold.ClassWiseAssent[c] {
				defects = append(defects, fmt.Sprintf("class %s did not assent", c))
			}
		}
	}
	if p.Rationale == "" {
		defects = append(defects, "missing rationale")
	}
	if p.ImpactStatement == "" {
		defects = append(defects, "missing impact statement")
	}
	if p.CreatedAt.IsZero() {
		defects = append(defects, "missing creation timestamp")
	}
	if p.AuditAnchor == "" {
		defects = append(defects, "missing audit anchor reference")
	}
	return defects
}

// IsValid reports whether Validate finds no defects.
func (p *Package) IsValid() bool {
	return len(p.Validate()) == 0
}

// Sign appends a signature record produced by the signer. The caller
// supplies the signing time; a zero time falls back to the wall clock.
func (p *Package) Sign(partyID string, signer Signer, at time.Time) error {
	if signer == nil {
		signer = PlaceholderSigner{}
	}
	if at.IsZero() {
		at = time.Now()
	}
	sig, err := signer.Sign(partyID, p.ContentHash)
	if err != nil {
		return fmt.Errorf("evidence package sign: %w", err)
	}
	p.Signatures = append(p.Signatures, SignatureRecord{
		PartyID:   partyID,
		Signature: sig,
		SignedAt:  at,
	})
	return nil
}
