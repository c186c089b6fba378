// Package history records the datastore operations observed along one
// exploration path and validates them against the selected consistency
// contract.
package history

import "fmt"

// Contract selects the consistency guarantee the datastore is checked against
type Contract string

const (
	// ContractLinearizable requires a single global total order consistent
	// with real-time non-overlap.
	ContractLinearizable Contract = "linearizable"
	// ContractSession requires per-client ordering: read-your-writes and
	// monotonic reads within a session.
	ContractSession Contract = "session"
	// ContractMonotonicSession adds a global monotonic-read property on top
	// of session guarantees: observed revisions never regress across clients.
	ContractMonotonicSession Contract = "monotonic-session"
)

// ParseContract validates a configured consistency contract.
// Unrecognized values are a startup error, never silently defaulted.
func ParseContract(s string) (Contract, error) {
	switch Contract(s) {
	case ContractLinearizable, ContractSession, ContractMonotonicSession:
		return Contract(s), nil
	default:
		return "", fmt.Errorf("unknown consistency contract %q: must be one of: linearizable, session, monotonic-session", s)
	}
}
