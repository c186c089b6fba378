package actor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/devrev/clustercheck/internal/model"
)

// ReplicaSetController reconciles the observed pod population of each
// replicaset against its desired scale. Reconciliation always recomputes
// current scale from the full owned-pod snapshot rather than incrementally,
// which makes it idempotent under duplicate or reordered PodChanged delivery.
type ReplicaSetController struct {
	id    string
	store string
}

// NewReplicaSetController creates a replicaset controller actor
func NewReplicaSetController(id, store string) *ReplicaSetController {
	return &ReplicaSetController{id: id, store: store}
}

// ID returns the actor id
func (c *ReplicaSetController) ID() string { return c.id }

// ReplicaSetStatus is the controller's snapshot of one replicaset: desired
// scale, the pod template, and the phases of all owned pods ever observed.
// Desired is -1 until the replicaset record itself has been seen, in which
// case reconciliation is deferred.
type ReplicaSetStatus struct {
	Desired int
	CPU     int64
	Mem     int64
	Pods    map[string]model.PodPhase
}

// ControllerState maps replicaset ids to their observed status
type ControllerState struct {
	Sets map[string]ReplicaSetStatus
}

// Clone returns an independent copy of the controller state
func (st *ControllerState) Clone() State {
	c := &ControllerState{Sets: make(map[string]ReplicaSetStatus, len(st.Sets))}
	for id, rs := range st.Sets {
		pods := make(map[string]model.PodPhase, len(rs.Pods))
		for p, ph := range rs.Pods {
			pods[p] = ph
		}
		rs.Pods = pods
		c.Sets[id] = rs
	}
	return c
}

// EncodeTo writes the canonical encoding of the controller state
func (st *ControllerState) EncodeTo(b *strings.Builder) {
	ids := make([]string, 0, len(st.Sets))
	for id := range st.Sets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	b.WriteString("controller{sets=[")
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(';')
		}
		rs := st.Sets[id]
		fmt.Fprintf(b, "%s:desired=%d,cpu=%d,mem=%d,pods=(", id, rs.Desired, rs.CPU, rs.Mem)
		pods := make([]string, 0, len(rs.Pods))
		for p := range rs.Pods {
			pods = append(pods, p)
		}
		sort.Strings(pods)
		for j, p := range pods {
			if j > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(b, "%s=%s", p, rs.Pods[p])
		}
		b.WriteByte(')')
	}
	b.WriteString("]}")
}

// Init returns the initial controller state with no known replicasets
func (c *ReplicaSetController) Init() State {
	return &ControllerState{Sets: make(map[string]ReplicaSetStatus)}
}

// Choices reports one outcome: reconciliation decisions are deterministic
func (c *ReplicaSetController) Choices(State, model.Message) int { return 1 }

// Handle updates the owned-pod snapshot and reconciles
func (c *ReplicaSetController) Handle(state State, msg model.Message, _ int, now int64) (State, []model.Message) {
	st := state.Clone().(*ControllerState)

	switch p := msg.Payload.(type) {
	case model.ReplicaSetChanged:
		rs, ok := st.Sets[p.ReplicaSetID]
		if !ok {
			rs = ReplicaSetStatus{Pods: make(map[string]model.PodPhase)}
		}
		rs.Desired = p.Desired
		rs.CPU = p.CPU
		rs.Mem = p.Mem
		st.Sets[p.ReplicaSetID] = rs
		return st, c.reconcile(st, p.ReplicaSetID, now)

	case model.PodChanged:
		if p.ReplicaSetID == "" {
			return st, nil
		}
		rs, ok := st.Sets[p.ReplicaSetID]
		if !ok {
			// pod event observed before the replicaset record itself:
			// remember the pod, defer reconciliation until Desired is known
			rs = ReplicaSetStatus{Desired: -1, Pods: make(map[string]model.PodPhase)}
		}
		rs.Pods[p.PodID] = p.Phase
		st.Sets[p.ReplicaSetID] = rs
		return st, c.reconcile(st, p.ReplicaSetID, now)
	}
	return st, nil
}

// reconcile recomputes current scale from the full snapshot and emits the
// create/delete operations needed to reach the desired scale. Victims are
// chosen highest pod id first; new pods take the smallest unused ordinal.
func (c *ReplicaSetController) reconcile(st *ControllerState, rsID string, now int64) []model.Message {
	rs := st.Sets[rsID]
	if rs.Desired < 0 {
		return nil
	}

	active := make([]string, 0, len(rs.Pods))
	for p, ph := range rs.Pods {
		if ph.Active() {
			active = append(active, p)
		}
	}
	sort.Strings(active)
	current := len(active)

	var out []model.Message
	switch {
	case current < rs.Desired:
		used := make(map[string]struct{}, len(rs.Pods))
		for p := range rs.Pods {
			used[p] = struct{}{}
		}
		ordinal := 0
		for n := rs.Desired - current; n > 0; n-- {
			var id string
			for {
				id = fmt.Sprintf("%s-%d", rsID, ordinal)
				ordinal++
				if _, taken := used[id]; !taken {
					break
				}
			}
			used[id] = struct{}{}
			out = append(out, model.Message{
				From:    c.id,
				To:      c.store,
				SentAt:  now,
				Payload: model.CreatePod{ID: id, CPU: rs.CPU, Mem: rs.Mem, OwnerID: rsID},
			})
		}

	case current > rs.Desired:
		// highest pod id first
		sort.Sort(sort.Reverse(sort.StringSlice(active)))
		for _, victim := range active[:current-rs.Desired] {
			out = append(out, model.Message{
				From:    c.id,
				To:      c.store,
				SentAt:  now,
				Payload: model.DeletePod{ID: victim},
			})
		}
	}
	return out
}
