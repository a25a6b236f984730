package guard

import (
	"fmt"

	"github.com/aisafe-dev/aisafegate/internal/domain/policy"
	"github.com/aisafe-dev/aisafegate/internal/domain/scan"
)

// PolicyViolationError is returned when a scan decision blocks text.
// It carries the decision so callers can report the causing findings.
type PolicyViolationError struct {
	Direction scan.Direction
	Decision  policy.Decision
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("%s blocked by safety policy: %s", e.Direction, e.Decision.Reason)
}

// ConfigurationError is returned when a guard cannot be built from its
// configuration.
type ConfigurationError struct {
	Scanner string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e.Scanner == "" {
		return fmt.Sprintf("invalid guard configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid configuration for scanner %q: %s", e.Scanner, e.Reason)
}
