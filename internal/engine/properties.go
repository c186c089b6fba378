package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/devrev/clustercheck/internal/actor"
	"github.com/devrev/clustercheck/internal/model"
)

// Property is a predicate checked on every reached global state. Check
// returns a descriptive error when the state violates it.
type Property struct {
	Name  string
	Check func(gs *GlobalState) error
}

func defaultProperties() []Property {
	return []Property{
		{Name: "node capacity never exceeded", Check: checkNodeCapacity},
		{Name: "datastore revisions are monotonic", Check: checkRevisions},
		{Name: "control-plane records match the store", Check: checkRecordsMatchStore},
	}
}

func checkNodeCapacity(gs *GlobalState) error {
	for _, st := range gs.Actors {
		ss, ok := st.(*actor.SchedulerState)
		if !ok {
			continue
		}
		for _, n := range ss.Nodes {
			if n.Overcommitted() {
				return fmt.Errorf("node %s overcommitted: cpu=%d/%d mem=%d/%d pods=%d/%d",
					n.ID, n.AllocCPU, n.MaxCPU, n.AllocMem, n.MaxMem, n.AllocPods, n.MaxPods)
			}
		}
	}
	return nil
}

func checkRevisions(gs *GlobalState) error {
	for _, st := range gs.Actors {
		ds, ok := st.(*actor.DatastoreState)
		if !ok {
			continue
		}
		var prev model.Revision = -1
		for _, snap := range ds.Snapshots {
			if snap.Revision <= prev {
				return fmt.Errorf("snapshot revision %s not above predecessor %s", snap.Revision, prev)
			}
			prev = snap.Revision
		}
		if prev != ds.Revision {
			return fmt.Errorf("latest snapshot at %s but store revision is %s", prev, ds.Revision)
		}
	}
	return nil
}

// checkRecordsMatchStore verifies that the typed pod and replicaset records
// agree with the key-value entries at the latest revision.
func checkRecordsMatchStore(gs *GlobalState) error {
	for _, st := range gs.Actors {
		ds, ok := st.(*actor.DatastoreState)
		if !ok {
			continue
		}
		latest := ds.Snapshots[len(ds.Snapshots)-1]
		pods, sets := 0, 0
		var mismatch error
		latest.Tree.Ascend(func(e model.Entry) bool {
			switch {
			case strings.HasPrefix(e.Key, "/pods/"):
				pods++
				if _, ok := ds.Pods[strings.TrimPrefix(e.Key, "/pods/")]; !ok {
					mismatch = fmt.Errorf("entry %s has no pod record", e.Key)
					return false
				}
			case strings.HasPrefix(e.Key, "/replicasets/"):
				sets++
				if _, ok := ds.Sets[strings.TrimPrefix(e.Key, "/replicasets/")]; !ok {
					mismatch = fmt.Errorf("entry %s has no replicaset record", e.Key)
					return false
				}
			}
			return true
		})
		if mismatch != nil {
			return mismatch
		}
		if pods != len(ds.Pods) {
			return fmt.Errorf("%d pod records but %d pod entries", len(ds.Pods), pods)
		}
		if sets != len(ds.Sets) {
			return fmt.Errorf("%d replicaset records but %d replicaset entries", len(ds.Sets), sets)
		}
	}
	return nil
}

// progressSignature summarizes how far the control plane has advanced. A cycle
// over which the signature never changes makes no progress; under fairness
// such a cycle is a liveness violation.
func (e *Engine) progressSignature(gs *GlobalState) string {
	var b strings.Builder
	for _, st := range gs.Actors {
		ds, ok := st.(*actor.DatastoreState)
		if !ok {
			continue
		}
		running, pending := 0, 0
		for _, p := range ds.Pods {
			switch p.Phase {
			case model.PodRunning:
				running++
			case model.PodPending:
				pending++
			}
		}
		fmt.Fprintf(&b, "rev=%s,running=%d,pending=%d;", ds.Revision, running, pending)
	}
	for _, slot := range e.clients {
		cs := gs.Actors[slot].(*actor.ClientState)
		fmt.Fprintf(&b, "next=%d;", cs.Next)
	}
	return b.String()
}

// quiescent reports whether no further action can produce new behavior: the
// network is empty and every client script is exhausted.
func (e *Engine) quiescent(gs *GlobalState) bool {
	if len(gs.Net.InFlight) > 0 {
		return false
	}
	for _, slot := range e.clients {
		if !e.actors[slot].(*actor.Client).Exhausted(gs.Actors[slot]) {
			return false
		}
	}
	return true
}

// checkConvergence verifies that a quiescent, fault-free state reached the
// desired cluster shape: every replicaset at its desired count of active pods
// and no pending pod left while a node could host it.
func (e *Engine) checkConvergence(gs *GlobalState) error {
	var ds *actor.DatastoreState
	for _, st := range gs.Actors {
		if d, ok := st.(*actor.DatastoreState); ok {
			ds = d
			break
		}
	}
	if ds == nil {
		return nil
	}

	active := make(map[string]int)
	for _, p := range ds.Pods {
		if p.OwnerID != "" && p.Phase.Active() {
			active[p.OwnerID]++
		}
	}
	setIDs := make([]string, 0, len(ds.Sets))
	for id := range ds.Sets {
		setIDs = append(setIDs, id)
	}
	sort.Strings(setIDs)
	for _, id := range setIDs {
		rs := ds.Sets[id]
		if active[id] != rs.Desired {
			return fmt.Errorf("replicaset %s has %d active pods, desired %d", id, active[id], rs.Desired)
		}
	}

	for _, id := range model.SortedPodIDs(ds.Pods) {
		pod := ds.Pods[id]
		if pod.Phase != model.PodPending {
			continue
		}
		for _, st := range gs.Actors {
			ss, ok := st.(*actor.SchedulerState)
			if !ok {
				continue
			}
			for _, n := range ss.Nodes {
				if n.Fits(pod.CPU, pod.Mem) {
					return fmt.Errorf("pod %s stays pending while node %s has capacity", id, n.ID)
				}
			}
		}
	}
	return nil
}

// checkSafety runs every registered property, returning the first violation
// with its property name.
func (e *Engine) checkSafety(gs *GlobalState) (string, error) {
	for _, p := range e.props {
		if err := p.Check(gs); err != nil {
			return p.Name, err
		}
	}
	return "", nil
}
