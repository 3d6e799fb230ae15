package policy

import (
	"errors"
	"fmt"
)

// ErrRatingOutOfRange is returned by Resolve for ratings outside 0-5.
var ErrRatingOutOfRange = errors.New("Rating out of range")

// ConfigError describes a policy table which can not be used. It is always fatal.
type ConfigError struct {
	// The offset of the offending rule, or -1 when the problem is with the table as a whole.
	Index  int
	Reason string
}

func (e *ConfigError) Error() string {

	if e.Index < 0 {
		return fmt.Sprintf("Invalid policy table, %s", e.Reason)
	}

	return fmt.Sprintf("Invalid policy rule at offset %d, %s", e.Index, e.Reason)
}

func tableError(msg string, args ...any) *ConfigError {
	return &ConfigError{Index: -1, Reason: fmt.Sprintf(msg, args...)}
}

func ruleError(idx int, msg string, args ...any) *ConfigError {
	return &ConfigError{Index: idx, Reason: fmt.Sprintf(msg, args...)}
}
