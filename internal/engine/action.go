package engine

import (
	"fmt"

	"github.com/devrev/clustercheck/internal/actor"
	"github.com/devrev/clustercheck/internal/history"
	"github.com/devrev/clustercheck/internal/model"
	"github.com/devrev/clustercheck/internal/network"
)

// ActionKind labels one category of transition
type ActionKind string

// The transition categories of the explored graph
const (
	ActionDeliver    ActionKind = "deliver"
	ActionDrop       ActionKind = "drop"
	ActionPartition  ActionKind = "partition"
	ActionHeal       ActionKind = "heal"
	ActionClientStep ActionKind = "client-step"
)

// Action is one enabled transition out of a global state. MsgIndex addresses
// an in-flight message for deliveries and drops, Choice selects one of the
// recipient's nondeterministic outcomes, Part and PartIndex address the fault
// model, and Client names the client to step.
type Action struct {
	Kind      ActionKind
	MsgIndex  int
	Choice    int
	Part      network.Partition
	PartIndex int
	Client    string
}

// Describe renders the action against the state it fires from, for traces
func (a Action) Describe(gs *GlobalState) string {
	switch a.Kind {
	case ActionDeliver:
		return fmt.Sprintf("deliver %s choice=%d", gs.Net.InFlight[a.MsgIndex].Encode(), a.Choice)
	case ActionDrop:
		return fmt.Sprintf("drop %s", gs.Net.InFlight[a.MsgIndex].Encode())
	case ActionPartition:
		return fmt.Sprintf("partition %s", a.Part.Encode())
	case ActionHeal:
		return fmt.Sprintf("heal %s", gs.Net.Partitions[a.PartIndex].Encode())
	case ActionClientStep:
		return fmt.Sprintf("step %s", a.Client)
	}
	return string(a.Kind)
}

// enabled enumerates every action that may fire from the given state:
// deliveries of unblocked messages (one action per recipient choice), fault
// injections within budget, heals, and steps of unexhausted clients.
func (e *Engine) enabled(gs *GlobalState) []Action {
	var acts []Action

	for i := range gs.Net.InFlight {
		if !gs.Net.Deliverable(i) {
			continue
		}
		msg := gs.Net.InFlight[i]
		slot := e.index[msg.To]
		n := e.actors[slot].Choices(gs.Actors[slot], msg)
		for c := 0; c < n; c++ {
			acts = append(acts, Action{Kind: ActionDeliver, MsgIndex: i, Choice: c})
		}
	}

	if gs.Net.Drops < e.cfg.MaxDrops {
		for i := range gs.Net.InFlight {
			acts = append(acts, Action{Kind: ActionDrop, MsgIndex: i})
		}
	}
	if gs.Net.Partitioned < e.cfg.MaxPartitions {
		for _, p := range e.partitions {
			if !gs.Net.HasPartition(p) {
				acts = append(acts, Action{Kind: ActionPartition, Part: p})
			}
		}
	}
	for i := range gs.Net.Partitions {
		acts = append(acts, Action{Kind: ActionHeal, PartIndex: i})
	}

	for _, slot := range e.clients {
		c := e.actors[slot].(*actor.Client)
		if !c.Exhausted(gs.Actors[slot]) {
			acts = append(acts, Action{Kind: ActionClientStep, Client: c.ID()})
		}
	}
	return acts
}

// apply fires the action, returning the successor state. Datastore deliveries
// are recorded as history invocations and Response deliveries as completions
// when a recorder is supplied.
func (e *Engine) apply(gs *GlobalState, a Action, rec *history.Recorder) *GlobalState {
	ns := gs.Clone()
	ns.Step = gs.Step + 1

	switch a.Kind {
	case ActionDeliver:
		net, msg := ns.Net.Deliver(a.MsgIndex)
		if rec != nil {
			if e.stores[msg.To] && !e.stores[msg.From] {
				rec.Invoke(msg.From, msg.Payload, ns.Step)
			}
			if resp, ok := msg.Payload.(model.Response); ok {
				rec.Complete(msg.To, resp, ns.Step)
			}
		}
		slot := e.index[msg.To]
		st, out := e.actors[slot].Handle(ns.Actors[slot], msg, a.Choice, ns.Step)
		ns.Actors[slot] = st
		ns.Net = net.Send(out...)

	case ActionDrop:
		ns.Net = ns.Net.Drop(a.MsgIndex)

	case ActionPartition:
		ns.Net = ns.Net.WithPartition(a.Part)

	case ActionHeal:
		ns.Net = ns.Net.Heal(a.PartIndex)

	case ActionClientStep:
		slot := e.index[a.Client]
		tick := model.Message{From: a.Client, To: a.Client, SentAt: ns.Step, Payload: model.Tick{}}
		st, out := e.actors[slot].Handle(ns.Actors[slot], tick, 0, ns.Step)
		ns.Actors[slot] = st
		ns.Net = ns.Net.Send(out...)
	}
	return ns
}
