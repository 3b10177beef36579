package policy

import (
	"fmt"

	"github.com/aponysus/bamboo/apierr"
)

// ConfigError indicates a retry policy that violates its invariants.
type ConfigError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Reason == "" {
		return fmt.Sprintf("bamboo: invalid retry policy: %s=%q", e.Field, e.Value)
	}
	return fmt.Sprintf("bamboo: invalid retry policy: %s=%q: %s", e.Field, e.Value, e.Reason)
}

// Is lets callers match any policy error with apierr.ErrConfig.
func (e *ConfigError) Is(target error) bool {
	return e != nil && target == apierr.ErrConfig
}
