// Package actor defines the deterministic state-machine contract shared by
// every control-plane component and the four actor kinds built on it:
// scheduler, replicaset controller, datastore and workload client.
//
// Handling is a pure function: identical (state, message, choice) inputs
// always produce identical results. Nondeterminism (such as which snapshot a
// weakly-consistent read is served from) is surfaced through the enumerable
// choice parameter so that exhaustive exploration can branch on every outcome
// and simulation can sample one.
package actor

import (
	"strings"

	"github.com/devrev/clustercheck/internal/model"
)

// State is an actor's private state snapshot. Clone must return an
// independent copy (persistent containers may share structure); EncodeTo must
// write a deterministic canonical encoding for hashing and equality.
type State interface {
	Clone() State
	EncodeTo(b *strings.Builder)
}

// Actor is an independently addressable state machine advancing only via
// message handling. Multiple instances of one kind may run under distinct ids
// with fully independent state.
type Actor interface {
	ID() string

	// Init returns the actor's initial state.
	Init() State

	// Choices returns the number of enabled outcomes for handling msg in
	// state. It is always at least 1; the engine enumerates or samples the
	// choice index passed to Handle.
	Choices(state State, msg model.Message) int

	// Handle applies one message to the state and returns the successor
	// state plus outbound messages. It must not mutate the given state and
	// must not block.
	Handle(state State, msg model.Message, choice int, now int64) (State, []model.Message)
}

// Encode renders a state's canonical encoding
func Encode(s State) string {
	var b strings.Builder
	s.EncodeTo(&b)
	return b.String()
}
