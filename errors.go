package pdp

import (
	"fmt"
	"strings"
)

// ConfigError marks a construction or load time failure: malformed policy,
// bad rule arity, unparseable document. These are reported to the caller and
// never swallowed into a decision.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Msg, e.Err)
	}
	return "config: " + e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ConflictError is returned by the only_one_applicable precedence rule when
// more than one policy matched. The ambiguity is surfaced rather than
// resolved; the policy set has to be fixed administratively.
type ConflictError struct {
	PolicyIDs []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("policy conflict: %d policies applicable (%s)",
		len(e.PolicyIDs), strings.Join(e.PolicyIDs, ", "))
}
