// Package engine explores the global state space of a modelled cluster. It
// owns the transition relation (message deliveries, fault injections, client
// steps), the property checks evaluated on every reached state, and the two
// exploration strategies: exhaustive depth-first search with visited-state
// deduplication, and randomized simulation rollouts.
package engine

import (
	"strings"

	"github.com/devrev/clustercheck/internal/actor"
	"github.com/devrev/clustercheck/internal/network"
	"github.com/devrev/clustercheck/internal/util"
)

// GlobalState is one vertex of the explored graph: the state of every actor
// plus the network. Step is the logical clock stamped onto emitted messages;
// it is bookkeeping, not identity, and stays out of the canonical encoding.
type GlobalState struct {
	Actors []actor.State
	Net    network.State
	Step   int64
}

// Clone returns a copy sharing the immutable per-actor states until an action
// replaces one of them.
func (gs *GlobalState) Clone() *GlobalState {
	return &GlobalState{
		Actors: append([]actor.State(nil), gs.Actors...),
		Net:    gs.Net,
		Step:   gs.Step,
	}
}

// Encode returns the canonical encoding of the global state. Actor slots are
// in the engine's fixed order, so equal states encode equally.
func (gs *GlobalState) Encode() string {
	var b strings.Builder
	b.WriteString("global{")
	for i, st := range gs.Actors {
		if i > 0 {
			b.WriteByte('|')
		}
		st.EncodeTo(&b)
	}
	b.WriteByte('|')
	gs.Net.EncodeTo(&b)
	b.WriteByte('}')
	return b.String()
}

// Fingerprint returns the dedup key for the global state
func (gs *GlobalState) Fingerprint() uint64 {
	return util.Fingerprint(gs.Encode())
}
