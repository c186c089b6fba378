package actor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/btree"

	"github.com/devrev/clustercheck/internal/history"
	"github.com/devrev/clustercheck/internal/model"
)

// Key prefixes reserved for control-plane records. Client keys must not start
// with '/'.
const (
	podKeyPrefix        = "/pods/"
	replicaSetKeyPrefix = "/replicasets/"
)

const defaultSnapshotBound = 32

func entryLess(a, b model.Entry) bool { return a.Key < b.Key }

// Datastore is the ordered key-value store at the center of the control
// plane. Commits are applied in strictly increasing revision order; the
// runtime-selected consistency contract governs only which snapshot a Range
// may be served from, surfaced to the engine as an enumerable choice.
type Datastore struct {
	id          string
	contract    history.Contract
	schedulers  []string
	controllers []string
}

// NewDatastore creates a datastore actor. Pod lifecycle notifications go to
// the given scheduler and controller actor ids.
func NewDatastore(id string, contract history.Contract, schedulers, controllers []string) *Datastore {
	return &Datastore{
		id:          id,
		contract:    contract,
		schedulers:  append([]string(nil), schedulers...),
		controllers: append([]string(nil), controllers...),
	}
}

// ID returns the actor id
func (d *Datastore) ID() string { return d.id }

// Snapshot is one committed version of the key-value mapping. Trees are
// copy-on-write clones, never mutated after commit, so snapshots share
// structure and cloning a state is cheap.
type Snapshot struct {
	Revision model.Revision
	Tree     *btree.BTreeG[model.Entry]
}

// DatastoreState holds the committed snapshot chain, the typed control-plane
// records at the latest revision, and the per-session read cursors.
type DatastoreState struct {
	Revision  model.Revision
	Snapshots []Snapshot
	Pods      map[string]model.Pod
	Sets      map[string]model.ReplicaSet
	Sessions  map[string]model.Revision
	Floor     model.Revision // highest revision served to any reader
}

// Clone returns an independent copy sharing the immutable snapshot trees
func (st *DatastoreState) Clone() State {
	c := &DatastoreState{
		Revision:  st.Revision,
		Snapshots: append([]Snapshot(nil), st.Snapshots...),
		Pods:      make(map[string]model.Pod, len(st.Pods)),
		Sets:      make(map[string]model.ReplicaSet, len(st.Sets)),
		Sessions:  make(map[string]model.Revision, len(st.Sessions)),
		Floor:     st.Floor,
	}
	for k, v := range st.Pods {
		c.Pods[k] = v
	}
	for k, v := range st.Sets {
		c.Sets[k] = v
	}
	for k, v := range st.Sessions {
		c.Sessions[k] = v
	}
	return c
}

// EncodeTo writes the canonical encoding of the datastore state
func (st *DatastoreState) EncodeTo(b *strings.Builder) {
	fmt.Fprintf(b, "datastore{rev=%s,floor=%s,snaps=[", st.Revision, st.Floor)
	for i, snap := range st.Snapshots {
		if i > 0 {
			b.WriteByte(';')
		}
		fmt.Fprintf(b, "%s:(", snap.Revision)
		first := true
		snap.Tree.Ascend(func(e model.Entry) bool {
			if !first {
				b.WriteByte(',')
			}
			first = false
			fmt.Fprintf(b, "%s=%s@%s", e.Key, e.Value, e.ModRevision)
			return true
		})
		b.WriteByte(')')
	}
	b.WriteString("],sessions=[")
	encodeRevisionMap(b, st.Sessions)
	b.WriteString("]}")
}

func encodeRevisionMap(b *strings.Builder, m map[string]model.Revision) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		fmt.Fprintf(b, "%s=%s", k, m[k])
	}
}

// Init returns the initial datastore state: an empty mapping at revision 0
func (d *Datastore) Init() State {
	return &DatastoreState{
		Snapshots: []Snapshot{{Revision: 0, Tree: btree.NewG(4, entryLess)}},
		Pods:      make(map[string]model.Pod),
		Sets:      make(map[string]model.ReplicaSet),
		Sessions:  make(map[string]model.Revision),
	}
}

// Choices enumerates the snapshots a Range may legally be served from under
// the active consistency contract; all other operations are deterministic.
func (d *Datastore) Choices(state State, msg model.Message) int {
	if _, ok := msg.Payload.(model.Range); ok {
		st := state.(*DatastoreState)
		return len(d.readableSnapshots(st, msg.From))
	}
	return 1
}

// Handle applies one request and emits notifications plus the response
func (d *Datastore) Handle(state State, msg model.Message, choice int, now int64) (State, []model.Message) {
	st := state.Clone().(*DatastoreState)

	switch p := msg.Payload.(type) {
	case model.CreatePod:
		return d.handleCreatePod(st, msg.From, p, now)
	case model.DeletePod:
		return d.handleDeletePod(st, msg.From, p, now)
	case model.BindPod:
		return d.handleBindPod(st, msg.From, p, now)
	case model.PodStarted:
		return d.handlePodStarted(st, p, now)
	case model.CreateDeployment:
		return d.handleCreateDeployment(st, msg.From, p, now)
	case model.ScaleDeployment:
		return d.handleScaleDeployment(st, msg.From, p, now)
	case model.Put:
		return d.handlePut(st, msg.From, p, now)
	case model.Range:
		return d.handleRange(st, msg.From, p, choice, now)
	case model.DeleteRange:
		return d.handleDeleteRange(st, msg.From, p, now)
	}
	return st, nil
}

// commit clones the latest tree, applies the mutation, and appends the next
// snapshot. The snapshot chain is pruned to a bounded length; the latest
// snapshot is always retained.
func (st *DatastoreState) commit(mutate func(t *btree.BTreeG[model.Entry], rev model.Revision)) model.Revision {
	latest := st.Snapshots[len(st.Snapshots)-1]
	tree := latest.Tree.Clone()
	st.Revision = st.Revision.Next()
	mutate(tree, st.Revision)
	st.Snapshots = append(st.Snapshots, Snapshot{Revision: st.Revision, Tree: tree})
	if bound := defaultSnapshotBound; len(st.Snapshots) > bound {
		st.Snapshots = append([]Snapshot(nil), st.Snapshots[len(st.Snapshots)-bound:]...)
	}
	return st.Revision
}

func (d *Datastore) handleCreatePod(st *DatastoreState, from string, p model.CreatePod, now int64) (State, []model.Message) {
	if _, exists := st.Pods[p.ID]; exists {
		return st, []model.Message{d.respond(from, p.Kind(), 0, model.Response{Rejected: true}, now)}
	}
	pod := model.Pod{ID: p.ID, CPU: p.CPU, Mem: p.Mem, OwnerID: p.OwnerID, Phase: model.PodPending}
	st.Pods[p.ID] = pod
	rev := st.commit(func(t *btree.BTreeG[model.Entry], rev model.Revision) {
		t.ReplaceOrInsert(model.Entry{Key: podKeyPrefix + p.ID, Value: encodePod(pod), ModRevision: rev})
	})

	out := make([]model.Message, 0, len(d.schedulers)+len(d.controllers)+1)
	for _, s := range d.schedulers {
		out = append(out, model.Message{From: d.id, To: s, SentAt: now,
			Payload: model.SchedulePod{PodID: p.ID, CPU: p.CPU, Mem: p.Mem}})
	}
	out = append(out, d.podChanged(pod, now)...)
	out = append(out, d.respond(from, p.Kind(), 0, model.Response{Revision: rev}, now))
	return st, out
}

func (d *Datastore) handleDeletePod(st *DatastoreState, from string, p model.DeletePod, now int64) (State, []model.Message) {
	pod, exists := st.Pods[p.ID]
	if !exists {
		return st, []model.Message{d.respond(from, p.Kind(), 0, model.Response{Rejected: true}, now)}
	}
	delete(st.Pods, p.ID)
	rev := st.commit(func(t *btree.BTreeG[model.Entry], _ model.Revision) {
		t.Delete(model.Entry{Key: podKeyPrefix + p.ID})
	})

	var out []model.Message
	for _, s := range d.schedulers {
		out = append(out, model.Message{From: d.id, To: s, SentAt: now, Payload: model.PodGone{PodID: p.ID}})
	}
	pod.Phase = model.PodTerminated
	out = append(out, d.podChanged(pod, now)...)
	// the deletion freed capacity, so pods that previously found no node get
	// their placement request re-sent
	for _, id := range model.SortedPodIDs(st.Pods) {
		pending := st.Pods[id]
		if pending.Phase != model.PodPending {
			continue
		}
		for _, s := range d.schedulers {
			out = append(out, model.Message{From: d.id, To: s, SentAt: now,
				Payload: model.SchedulePod{PodID: pending.ID, CPU: pending.CPU, Mem: pending.Mem}})
		}
	}
	out = append(out, d.respond(from, p.Kind(), 0, model.Response{Revision: rev}, now))
	return st, out
}

func (d *Datastore) handleBindPod(st *DatastoreState, from string, p model.BindPod, now int64) (State, []model.Message) {
	pod, exists := st.Pods[p.PodID]
	if !exists || pod.Phase != model.PodPending {
		// pod deleted or already bound by another scheduler instance
		return st, []model.Message{{From: d.id, To: from, SentAt: now,
			Payload: model.BindRejected{PodID: p.PodID, NodeID: p.NodeID}}}
	}
	pod.NodeID = p.NodeID
	pod.Phase = model.PodScheduled
	st.Pods[p.PodID] = pod
	st.commit(func(t *btree.BTreeG[model.Entry], rev model.Revision) {
		t.ReplaceOrInsert(model.Entry{Key: podKeyPrefix + p.PodID, Value: encodePod(pod), ModRevision: rev})
	})

	out := d.podChanged(pod, now)
	// the runtime acknowledgment travels through the network so the fault
	// model can delay or drop it
	out = append(out, model.Message{From: d.id, To: d.id, SentAt: now, Payload: model.PodStarted{PodID: p.PodID}})
	return st, out
}

func (d *Datastore) handlePodStarted(st *DatastoreState, p model.PodStarted, now int64) (State, []model.Message) {
	pod, exists := st.Pods[p.PodID]
	if !exists || pod.Phase != model.PodScheduled {
		return st, nil
	}
	pod.Phase = model.PodRunning
	st.Pods[p.PodID] = pod
	st.commit(func(t *btree.BTreeG[model.Entry], rev model.Revision) {
		t.ReplaceOrInsert(model.Entry{Key: podKeyPrefix + p.PodID, Value: encodePod(pod), ModRevision: rev})
	})
	return st, d.podChanged(pod, now)
}

func (d *Datastore) handleCreateDeployment(st *DatastoreState, from string, p model.CreateDeployment, now int64) (State, []model.Message) {
	if _, exists := st.Sets[p.ID]; exists {
		return st, []model.Message{d.respond(from, p.Kind(), 0, model.Response{Rejected: true}, now)}
	}
	rs := model.ReplicaSet{ID: p.ID, Desired: p.Scale, CPU: p.CPU, Mem: p.Mem}
	st.Sets[p.ID] = rs
	rev := st.commit(func(t *btree.BTreeG[model.Entry], rev model.Revision) {
		t.ReplaceOrInsert(model.Entry{Key: replicaSetKeyPrefix + p.ID, Value: encodeReplicaSet(rs), ModRevision: rev})
	})

	out := d.replicaSetChanged(rs, now)
	out = append(out, d.respond(from, p.Kind(), 0, model.Response{Revision: rev}, now))
	return st, out
}

func (d *Datastore) handleScaleDeployment(st *DatastoreState, from string, p model.ScaleDeployment, now int64) (State, []model.Message) {
	rs, exists := st.Sets[p.ID]
	if !exists {
		return st, []model.Message{d.respond(from, p.Kind(), 0, model.Response{Rejected: true}, now)}
	}
	rs.Desired = p.N
	st.Sets[p.ID] = rs
	rev := st.commit(func(t *btree.BTreeG[model.Entry], rev model.Revision) {
		t.ReplaceOrInsert(model.Entry{Key: replicaSetKeyPrefix + p.ID, Value: encodeReplicaSet(rs), ModRevision: rev})
	})

	out := d.replicaSetChanged(rs, now)
	out = append(out, d.respond(from, p.Kind(), 0, model.Response{Revision: rev}, now))
	return st, out
}

func (d *Datastore) handlePut(st *DatastoreState, from string, p model.Put, now int64) (State, []model.Message) {
	if strings.HasPrefix(p.Key, "/") {
		return st, []model.Message{d.respond(from, p.Kind(), p.Seq, model.Response{Rejected: true}, now)}
	}
	rev := st.commit(func(t *btree.BTreeG[model.Entry], rev model.Revision) {
		t.ReplaceOrInsert(model.Entry{Key: p.Key, Value: p.Value, ModRevision: rev})
	})
	// writes advance the writer's session cursor (read-your-writes)
	if st.Sessions[from] < rev {
		st.Sessions[from] = rev
	}
	return st, []model.Message{d.respond(from, p.Kind(), p.Seq, model.Response{Revision: rev}, now)}
}

func (d *Datastore) handleRange(st *DatastoreState, from string, p model.Range, choice int, now int64) (State, []model.Message) {
	readable := d.readableSnapshots(st, from)
	if choice >= len(readable) {
		choice = len(readable) - 1
	}
	snap := readable[choice]

	var entries []model.Entry
	iter := func(e model.Entry) bool {
		entries = append(entries, e)
		return true
	}
	if p.End == "" {
		snap.Tree.AscendGreaterOrEqual(model.Entry{Key: p.Start}, iter)
	} else {
		snap.Tree.AscendRange(model.Entry{Key: p.Start}, model.Entry{Key: p.End}, iter)
	}

	if st.Sessions[from] < snap.Revision {
		st.Sessions[from] = snap.Revision
	}
	if st.Floor < snap.Revision {
		st.Floor = snap.Revision
	}
	return st, []model.Message{d.respond(from, p.Kind(), p.Seq,
		model.Response{Revision: snap.Revision, Entries: entries}, now)}
}

func (d *Datastore) handleDeleteRange(st *DatastoreState, from string, p model.DeleteRange, now int64) (State, []model.Message) {
	if strings.HasPrefix(p.Start, "/") {
		return st, []model.Message{d.respond(from, p.Kind(), p.Seq, model.Response{Rejected: true}, now)}
	}
	latest := st.Snapshots[len(st.Snapshots)-1]
	var doomed []model.Entry
	iter := func(e model.Entry) bool {
		doomed = append(doomed, e)
		return true
	}
	if p.End == "" {
		latest.Tree.AscendGreaterOrEqual(model.Entry{Key: p.Start}, iter)
	} else {
		latest.Tree.AscendRange(model.Entry{Key: p.Start}, model.Entry{Key: p.End}, iter)
	}

	rev := st.commit(func(t *btree.BTreeG[model.Entry], _ model.Revision) {
		for _, e := range doomed {
			if !strings.HasPrefix(e.Key, "/") {
				t.Delete(e)
			}
		}
	})
	if st.Sessions[from] < rev {
		st.Sessions[from] = rev
	}
	return st, []model.Message{d.respond(from, p.Kind(), p.Seq, model.Response{Revision: rev}, now)}
}

// readableSnapshots returns the snapshots a Range from the given session may
// be served from, in ascending revision order.
//
// linearizable: the latest snapshot only. session: any snapshot at or after
// the session's cursor. monotonic-session: any snapshot at or after the
// global read floor; a first-time reader with no floor gets the latest.
func (d *Datastore) readableSnapshots(st *DatastoreState, from string) []Snapshot {
	latest := st.Snapshots[len(st.Snapshots)-1:]
	switch d.contract {
	case history.ContractSession:
		cursor := st.Sessions[from]
		return snapshotsAtOrAfter(st.Snapshots, cursor)
	case history.ContractMonotonicSession:
		min := st.Floor
		if cursor := st.Sessions[from]; cursor > min {
			min = cursor
		}
		if min == 0 {
			return latest
		}
		return snapshotsAtOrAfter(st.Snapshots, min)
	default:
		return latest
	}
}

func snapshotsAtOrAfter(snaps []Snapshot, min model.Revision) []Snapshot {
	for i, s := range snaps {
		if s.Revision >= min {
			return snaps[i:]
		}
	}
	return snaps[len(snaps)-1:]
}

func (d *Datastore) respond(to, op string, seq int64, resp model.Response, now int64) model.Message {
	resp.Op = op
	resp.Seq = seq
	return model.Message{From: d.id, To: to, SentAt: now, Payload: resp}
}

func (d *Datastore) podChanged(pod model.Pod, now int64) []model.Message {
	if pod.OwnerID == "" {
		return nil
	}
	out := make([]model.Message, 0, len(d.controllers))
	for _, c := range d.controllers {
		out = append(out, model.Message{From: d.id, To: c, SentAt: now,
			Payload: model.PodChanged{ReplicaSetID: pod.OwnerID, PodID: pod.ID, Phase: pod.Phase}})
	}
	return out
}

func (d *Datastore) replicaSetChanged(rs model.ReplicaSet, now int64) []model.Message {
	out := make([]model.Message, 0, len(d.controllers))
	for _, c := range d.controllers {
		out = append(out, model.Message{From: d.id, To: c, SentAt: now,
			Payload: model.ReplicaSetChanged{ReplicaSetID: rs.ID, Desired: rs.Desired, CPU: rs.CPU, Mem: rs.Mem}})
	}
	return out
}

func encodePod(p model.Pod) string {
	return fmt.Sprintf("cpu=%d,mem=%d,owner=%s,node=%s,phase=%s", p.CPU, p.Mem, p.OwnerID, p.NodeID, p.Phase)
}

func encodeReplicaSet(rs model.ReplicaSet) string {
	return fmt.Sprintf("desired=%d,cpu=%d,mem=%d", rs.Desired, rs.CPU, rs.Mem)
}
