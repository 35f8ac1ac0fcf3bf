package contracts

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// SchemaVersion tags every serialized entity for forward compatibility.
// Deserializers accept the same major version and reject everything else.
const SchemaVersion = "1.0.0"

// CheckSchemaVersion validates a serialized entity's schema_version field.
func CheckSchemaVersion(version string) error {
	if version == "" {
		return fmt.Errorf("missing schema_version")
	}
	got, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("malformed schema_version %q: %w", version, err)
	}
	want := semver.MustParse(SchemaVersion)
	if got.Major() != want.Major() {
		return fmt.Errorf("incompatible schema_version %s (this build speaks %s)", version, SchemaVersion)
	}
	return nil
}
