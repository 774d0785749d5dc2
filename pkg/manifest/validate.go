package manifest

import (
	"fmt"
	"regexp"

	"github.com/modoterra/ptail/pkg/core"
)

// Validate checks the manifest for problems that prevent startup. Format
// patterns are not checked here; see Compile.
func Validate(m *Manifest) []error {
	var errs []error
	seen := make(map[string]bool)

	for _, e := range m.Entries {
		if e.Pattern == "" {
			errs = append(errs, fmt.Errorf("entry with empty path pattern"))
			continue
		}
		if seen[e.Pattern] {
			errs = append(errs, fmt.Errorf("entry %q: duplicate pattern", e.Pattern))
		}
		seen[e.Pattern] = true

		if _, err := regexp.Compile(e.Pattern); err != nil {
			errs = append(errs, fmt.Errorf("entry %q: path pattern: %v", e.Pattern, err))
		}
		if e.Color != "" {
			if _, _, err := core.ParseColor(e.Color); err != nil {
				errs = append(errs, fmt.Errorf("entry %q: %v", e.Pattern, err))
			}
		}
	}
	return errs
}
