package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/topstolenname/metaconcord/pkg/contracts"
)

// Snapshot is the interchange form of the audit log: entries, computed
// Merkle roots, and anchoring records.
type Snapshot struct {
	SchemaVersion  string         `json:"schema_version"`
	MerkleInterval int            `json:"merkle_interval"`
	Entries        []Entry        `json:"entries"`
	Roots          []RootSnapshot `json:"roots"`
	Anchors        []AnchorRecord `json:"anchors"`
}

// snapshotSchema gates the wire shape before decoding.
const snapshotSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["schema_version", "merkle_interval", "entries"],
  "properties": {
    "schema_version": {"type": "string"},
    "merkle_interval": {"type": "integer"},
    "entries": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "sequence", "timestamp", "event_type", "prev_hash", "entry_hash"],
        "properties": {
          "id": {"type": "string"},
          "sequence": {"type": "integer", "minimum": 1},
          "event_type": {"type": "string"},
          "prev_hash": {"type": "string"},
          "entry_hash": {"type": "string"}
        }
      }
    },
    "roots": {"type": "array"},
    "anchors": {"type": "array"}
  }
}`

var compiledSnapshotSchema = jsonschema.MustCompileString("mcx://ledger/snapshot.json", snapshotSchema)

// Serialize renders the log as JSON.
func (l *Log) Serialize() ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := Snapshot{
		SchemaVersion:  contracts.SchemaVersion,
		MerkleInterval: l.merkleInterval,
		Entries:        append([]Entry{}, l.entries...),
		Roots:          append([]RootSnapshot{}, l.roots...),
		Anchors:        append([]AnchorRecord{}, l.anchors...),
	}
	return json.Marshal(snap)
}

// Deserialize reconstructs a log from its JSON form. The payload is
// validated against the embedded schema and the schema_version gate before
// any state is adopted.
func Deserialize(raw []byte) (*Log, error) {
	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("ledger snapshot: malformed JSON: %w", err)
	}
	if err := compiledSnapshotSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("ledger snapshot: schema violation: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("ledger snapshot: %w", err)
	}
	if err := contracts.CheckSchemaVersion(snap.SchemaVersion); err != nil {
		return nil, fmt.Errorf("ledger snapshot: %w", err)
	}

	l := New(snap.MerkleInterval)
	l.entries = snap.Entries
	l.roots = snap.Roots
	l.anchors = snap.Anchors
	l.headHash = genesisHash
	if n := len(snap.Entries); n > 0 {
		l.headHash = snap.Entries[n-1].EntryHash
	}

	if ok, reason := l.VerifyIntegrity(); !ok {
		return nil, fmt.Errorf("ledger snapshot: integrity check failed: %s", reason)
	}
	return l, nil
}
