// Package network models the message transport between actors: the in-flight
// message multiset, active partitions, and the fault actions available to the
// model-checking engine. State values are immutable; every mutation returns a
// new value so that global states can be cloned and compared cheaply.
package network

import (
	"fmt"
	"sort"
	"strings"

	"github.com/devrev/clustercheck/internal/model"
)

// Partition disables message delivery between the actor groups A and B until
// healed. Group members are kept sorted for canonical encoding.
type Partition struct {
	A []string
	B []string
}

// EncodeTo writes the canonical encoding of the partition
func (p Partition) EncodeTo(b *strings.Builder) {
	b.WriteString("part{")
	b.WriteString(strings.Join(p.A, ","))
	b.WriteByte('|')
	b.WriteString(strings.Join(p.B, ","))
	b.WriteByte('}')
}

// Encode returns the canonical encoding of the partition
func (p Partition) Encode() string {
	var b strings.Builder
	p.EncodeTo(&b)
	return b.String()
}

// NewPartition builds a partition with canonically sorted groups
func NewPartition(a, b []string) Partition {
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	return Partition{A: sa, B: sb}
}

// State holds the in-flight messages and active partitions. Drops and
// Partitioned count faults injected so far; the engine bounds both and the
// convergence properties only apply to fault-free paths.
type State struct {
	InFlight    []model.Message
	Partitions  []Partition
	Drops       int
	Partitioned int
}

// Clone returns an independent copy of the network state
func (s State) Clone() State {
	c := s
	c.InFlight = append([]model.Message(nil), s.InFlight...)
	c.Partitions = append([]Partition(nil), s.Partitions...)
	return c
}

// Send appends messages to the in-flight multiset
func (s State) Send(msgs ...model.Message) State {
	c := s
	c.InFlight = make([]model.Message, 0, len(s.InFlight)+len(msgs))
	c.InFlight = append(c.InFlight, s.InFlight...)
	c.InFlight = append(c.InFlight, msgs...)
	return c
}

// Blocked reports whether delivery between two actors is disabled by an
// active partition. Self-delivery is never blocked.
func (s State) Blocked(from, to string) bool {
	if from == to {
		return false
	}
	for _, p := range s.Partitions {
		if (contains(p.A, from) && contains(p.B, to)) ||
			(contains(p.B, from) && contains(p.A, to)) {
			return true
		}
	}
	return false
}

// Deliverable reports whether in-flight message i can currently be delivered
func (s State) Deliverable(i int) bool {
	m := s.InFlight[i]
	return !s.Blocked(m.From, m.To)
}

// Deliver removes in-flight message i, transferring payload ownership to the
// recipient's handling step
func (s State) Deliver(i int) (State, model.Message) {
	m := s.InFlight[i]
	return s.remove(i), m
}

// Drop removes in-flight message i without delivering it
func (s State) Drop(i int) State {
	c := s.remove(i)
	c.Drops++
	return c
}

// WithPartition activates a partition. Activating an identical partition
// twice is a no-op.
func (s State) WithPartition(p Partition) State {
	enc := p.Encode()
	for _, q := range s.Partitions {
		if q.Encode() == enc {
			return s
		}
	}
	c := s.Clone()
	c.Partitions = append(c.Partitions, p)
	c.Partitioned++
	return c
}

// Heal removes active partition i
func (s State) Heal(i int) State {
	c := s.Clone()
	c.Partitions = append(c.Partitions[:i], c.Partitions[i+1:]...)
	return c
}

// HasPartition reports whether an identical partition is already active
func (s State) HasPartition(p Partition) bool {
	enc := p.Encode()
	for _, q := range s.Partitions {
		if q.Encode() == enc {
			return true
		}
	}
	return false
}

// Faulted reports whether any fault has been injected on this path
func (s State) Faulted() bool {
	return s.Drops > 0 || s.Partitioned > 0
}

// EncodeTo writes the canonical encoding of the network state. In-flight
// messages form a multiset, so their encodings are sorted to make states that
// differ only in queue order compare equal.
func (s State) EncodeTo(b *strings.Builder) {
	msgs := make([]string, len(s.InFlight))
	for i, m := range s.InFlight {
		msgs[i] = m.Encode()
	}
	sort.Strings(msgs)
	parts := make([]string, len(s.Partitions))
	for i, p := range s.Partitions {
		parts[i] = p.Encode()
	}
	sort.Strings(parts)

	// fault budgets shape the enabled action set, so they are part of identity
	b.WriteString("net{msgs=[")
	b.WriteString(strings.Join(msgs, ";"))
	b.WriteString("],parts=[")
	b.WriteString(strings.Join(parts, ";"))
	fmt.Fprintf(b, "],drops=%d,partitioned=%d}", s.Drops, s.Partitioned)
}

func (s State) remove(i int) State {
	c := s
	c.InFlight = make([]model.Message, 0, len(s.InFlight)-1)
	c.InFlight = append(c.InFlight, s.InFlight[:i]...)
	c.InFlight = append(c.InFlight, s.InFlight[i+1:]...)
	c.Partitions = append([]Partition(nil), s.Partitions...)
	return c
}

func contains(group []string, id string) bool {
	for _, g := range group {
		if g == id {
			return true
		}
	}
	return false
}
