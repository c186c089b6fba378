package actor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/devrev/clustercheck/internal/model"
)

// Scheduler binds pending pods to nodes under capacity constraints.
// Node selection is first-fit over nodes in ascending id order, which keeps
// handling deterministic and reproducible under exhaustive exploration.
type Scheduler struct {
	id    string
	store string
	nodes []model.Node
}

// NewScheduler creates a scheduler actor over the given node topology.
// BindPod decisions are sent to the datastore actor named by store.
func NewScheduler(id, store string, nodes []model.Node) *Scheduler {
	sorted := append([]model.Node(nil), nodes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &Scheduler{id: id, store: store, nodes: sorted}
}

// ID returns the actor id
func (s *Scheduler) ID() string { return s.id }

// Binding records a speculative allocation awaiting datastore confirmation
type Binding struct {
	NodeID string
	CPU    int64
	Mem    int64
}

// SchedulerState holds the scheduler's view of node allocations plus its own
// outstanding bindings, used to release capacity on rejection or deletion.
type SchedulerState struct {
	Nodes []model.Node
	Bound map[string]Binding
}

// Clone returns an independent copy of the scheduler state
func (st *SchedulerState) Clone() State {
	c := &SchedulerState{
		Nodes: append([]model.Node(nil), st.Nodes...),
		Bound: make(map[string]Binding, len(st.Bound)),
	}
	for k, v := range st.Bound {
		c.Bound[k] = v
	}
	return c
}

// EncodeTo writes the canonical encoding of the scheduler state
func (st *SchedulerState) EncodeTo(b *strings.Builder) {
	b.WriteString("scheduler{nodes=[")
	for i, n := range st.Nodes {
		if i > 0 {
			b.WriteByte(';')
		}
		fmt.Fprintf(b, "%s:%d/%d,%d/%d,%d/%d", n.ID, n.AllocCPU, n.MaxCPU, n.AllocMem, n.MaxMem, n.AllocPods, n.MaxPods)
	}
	b.WriteString("],bound=[")
	pods := make([]string, 0, len(st.Bound))
	for p := range st.Bound {
		pods = append(pods, p)
	}
	sort.Strings(pods)
	for i, p := range pods {
		if i > 0 {
			b.WriteByte(';')
		}
		bd := st.Bound[p]
		fmt.Fprintf(b, "%s@%s:%d,%d", p, bd.NodeID, bd.CPU, bd.Mem)
	}
	b.WriteString("]}")
}

// Init returns the initial scheduler state with empty allocations
func (s *Scheduler) Init() State {
	return &SchedulerState{
		Nodes: append([]model.Node(nil), s.nodes...),
		Bound: make(map[string]Binding),
	}
}

// Choices reports one outcome: first-fit selection is deterministic
func (s *Scheduler) Choices(State, model.Message) int { return 1 }

// Handle processes scheduling requests and allocation releases
func (s *Scheduler) Handle(state State, msg model.Message, _ int, now int64) (State, []model.Message) {
	st := state.Clone().(*SchedulerState)

	switch p := msg.Payload.(type) {
	case model.SchedulePod:
		// duplicate delivery of a request we already answered
		if _, ok := st.Bound[p.PodID]; ok {
			return st, nil
		}
		for i := range st.Nodes {
			n := &st.Nodes[i]
			if !n.Fits(p.CPU, p.Mem) {
				continue
			}
			n.AllocCPU += p.CPU
			n.AllocMem += p.Mem
			n.AllocPods++
			st.Bound[p.PodID] = Binding{NodeID: n.ID, CPU: p.CPU, Mem: p.Mem}
			out := []model.Message{{
				From:    s.id,
				To:      s.store,
				SentAt:  now,
				Payload: model.BindPod{PodID: p.PodID, NodeID: n.ID},
			}}
			return st, out
		}
		// no node fits: the request is dropped and the pod stays Pending
		// until a future redelivery or capacity change
		return st, nil

	case model.BindRejected:
		st.release(p.PodID, p.NodeID)
		return st, nil

	case model.PodGone:
		if bd, ok := st.Bound[p.PodID]; ok {
			st.release(p.PodID, bd.NodeID)
		}
		return st, nil
	}
	return st, nil
}

// release frees the allocation backing an outstanding binding. It is
// idempotent: only a recorded binding for the same node is released once.
func (st *SchedulerState) release(podID, nodeID string) {
	bd, ok := st.Bound[podID]
	if !ok || bd.NodeID != nodeID {
		return
	}
	delete(st.Bound, podID)
	for i := range st.Nodes {
		if st.Nodes[i].ID == nodeID {
			st.Nodes[i].AllocCPU -= bd.CPU
			st.Nodes[i].AllocMem -= bd.Mem
			st.Nodes[i].AllocPods--
			return
		}
	}
}
