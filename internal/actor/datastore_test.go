package actor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrev/clustercheck/internal/actor"
	"github.com/devrev/clustercheck/internal/history"
	"github.com/devrev/clustercheck/internal/model"
)

func newStore(contract history.Contract) *actor.Datastore {
	return actor.NewDatastore("datastore-1", contract, []string{"scheduler-1"}, []string{"controller-1"})
}

func payloadsByKind(out []model.Message) map[string][]model.Message {
	m := make(map[string][]model.Message)
	for _, msg := range out {
		m[msg.Payload.Kind()] = append(m[msg.Payload.Kind()], msg)
	}
	return m
}

func TestDatastore_CreatePod(t *testing.T) {
	d := newStore(history.ContractLinearizable)
	st, out := deliver(t, d, d.Init(), "controller-1", model.CreatePod{ID: "web-0", CPU: 1, Mem: 2, OwnerID: "web"})

	ds := st.(*actor.DatastoreState)
	assert.Equal(t, model.Revision(1), ds.Revision)
	require.Contains(t, ds.Pods, "web-0")
	assert.Equal(t, model.PodPending, ds.Pods["web-0"].Phase)

	kinds := payloadsByKind(out)
	require.Len(t, kinds["schedule-pod"], 1)
	assert.Equal(t, "scheduler-1", kinds["schedule-pod"][0].To)
	require.Len(t, kinds["pod-changed"], 1)
	assert.Equal(t, "controller-1", kinds["pod-changed"][0].To)
	require.Len(t, kinds["response"], 1)
	assert.False(t, kinds["response"][0].Payload.(model.Response).Rejected)

	// duplicate create is rejected without a new revision
	st2, out2 := deliver(t, d, st, "controller-1", model.CreatePod{ID: "web-0", CPU: 1, Mem: 2, OwnerID: "web"})
	assert.Equal(t, model.Revision(1), st2.(*actor.DatastoreState).Revision)
	require.Len(t, out2, 1)
	assert.True(t, out2[0].Payload.(model.Response).Rejected)
}

func TestDatastore_BindLifecycle(t *testing.T) {
	d := newStore(history.ContractLinearizable)
	st, _ := deliver(t, d, d.Init(), "controller-1", model.CreatePod{ID: "web-0", CPU: 1, Mem: 2, OwnerID: "web"})

	st, out := deliver(t, d, st, "scheduler-1", model.BindPod{PodID: "web-0", NodeID: "node-1"})
	ds := st.(*actor.DatastoreState)
	assert.Equal(t, model.PodScheduled, ds.Pods["web-0"].Phase)
	assert.Equal(t, "node-1", ds.Pods["web-0"].NodeID)

	// the runtime acknowledgment is a self-addressed message
	kinds := payloadsByKind(out)
	require.Len(t, kinds["pod-started"], 1)
	assert.Equal(t, "datastore-1", kinds["pod-started"][0].To)

	st, out = deliver(t, d, st, "datastore-1", model.PodStarted{PodID: "web-0"})
	assert.Equal(t, model.PodRunning, st.(*actor.DatastoreState).Pods["web-0"].Phase)
	require.Len(t, out, 1)
	assert.Equal(t, model.PodRunning, out[0].Payload.(model.PodChanged).Phase)
}

func TestDatastore_BindRejectedWhenNotPending(t *testing.T) {
	d := newStore(history.ContractLinearizable)
	st, _ := deliver(t, d, d.Init(), "controller-1", model.CreatePod{ID: "web-0", CPU: 1, Mem: 2, OwnerID: "web"})
	st, _ = deliver(t, d, st, "scheduler-1", model.BindPod{PodID: "web-0", NodeID: "node-1"})

	// a second scheduler's competing bind loses
	before := st.(*actor.DatastoreState).Revision
	st, out := deliver(t, d, st, "scheduler-2", model.BindPod{PodID: "web-0", NodeID: "node-2"})
	require.Len(t, out, 1)
	rej, ok := out[0].Payload.(model.BindRejected)
	require.True(t, ok)
	assert.Equal(t, "node-2", rej.NodeID)
	assert.Equal(t, "scheduler-2", out[0].To)
	assert.Equal(t, before, st.(*actor.DatastoreState).Revision)
	assert.Equal(t, "node-1", st.(*actor.DatastoreState).Pods["web-0"].NodeID)
}

func TestDatastore_DeletePodRequeuesPending(t *testing.T) {
	d := newStore(history.ContractLinearizable)
	st, _ := deliver(t, d, d.Init(), "controller-1", model.CreatePod{ID: "web-0", CPU: 1, Mem: 2, OwnerID: "web"})
	st, _ = deliver(t, d, st, "controller-1", model.CreatePod{ID: "web-1", CPU: 1, Mem: 2, OwnerID: "web"})

	st, out := deliver(t, d, st, "controller-1", model.DeletePod{ID: "web-0"})
	ds := st.(*actor.DatastoreState)
	assert.NotContains(t, ds.Pods, "web-0")

	kinds := payloadsByKind(out)
	require.Len(t, kinds["pod-gone"], 1)
	// the surviving pending pod gets its placement request re-sent
	require.Len(t, kinds["schedule-pod"], 1)
	assert.Equal(t, "web-1", kinds["schedule-pod"][0].Payload.(model.SchedulePod).PodID)
	// Terminated notification for the deleted pod
	terminated := false
	for _, m := range kinds["pod-changed"] {
		pc := m.Payload.(model.PodChanged)
		if pc.PodID == "web-0" && pc.Phase == model.PodTerminated {
			terminated = true
		}
	}
	assert.True(t, terminated)
}

func TestDatastore_PutRangeRevisions(t *testing.T) {
	d := newStore(history.ContractLinearizable)
	st := actor.State(d.Init())

	var out []model.Message
	st, out = deliver(t, d, st, "client-1", model.Put{Key: "b", Value: "1", Seq: 0})
	require.Len(t, out, 1)
	assert.Equal(t, model.Revision(1), out[0].Payload.(model.Response).Revision)

	st, _ = deliver(t, d, st, "client-1", model.Put{Key: "a", Value: "2", Seq: 1})
	st, _ = deliver(t, d, st, "client-1", model.Put{Key: "c", Value: "3", Seq: 2})

	_, out = deliver(t, d, st, "client-1", model.Range{Start: "a", End: "c", Seq: 3})
	resp := out[0].Payload.(model.Response)
	require.Len(t, resp.Entries, 2)
	// entries come back in key order with their commit revisions
	assert.Equal(t, "a", resp.Entries[0].Key)
	assert.Equal(t, model.Revision(2), resp.Entries[0].ModRevision)
	assert.Equal(t, "b", resp.Entries[1].Key)
	assert.Equal(t, model.Revision(1), resp.Entries[1].ModRevision)
}

func TestDatastore_RejectsReservedKeys(t *testing.T) {
	d := newStore(history.ContractLinearizable)

	_, out := deliver(t, d, d.Init(), "client-1", model.Put{Key: "/pods/x", Value: "1", Seq: 0})
	require.Len(t, out, 1)
	assert.True(t, out[0].Payload.(model.Response).Rejected)

	_, out = deliver(t, d, d.Init(), "client-1", model.DeleteRange{Start: "/", End: "", Seq: 0})
	require.Len(t, out, 1)
	assert.True(t, out[0].Payload.(model.Response).Rejected)
}

func TestDatastore_DeleteRangeSkipsControlPlaneKeys(t *testing.T) {
	d := newStore(history.ContractLinearizable)
	st, _ := deliver(t, d, d.Init(), "controller-1", model.CreatePod{ID: "web-0", CPU: 1, Mem: 1, OwnerID: "web"})
	st, _ = deliver(t, d, st, "client-1", model.Put{Key: "a", Value: "1", Seq: 0})

	st, out := deliver(t, d, st, "client-1", model.DeleteRange{Start: "", End: "", Seq: 1})
	assert.False(t, out[len(out)-1].Payload.(model.Response).Rejected)

	_, out = deliver(t, d, st, "client-1", model.Range{Start: "", End: "", Seq: 2})
	resp := out[0].Payload.(model.Response)
	// the pod record survives, the client key does not
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "/pods/web-0", resp.Entries[0].Key)
}

func TestDatastore_ReadChoicesPerContract(t *testing.T) {
	write := func(d *actor.Datastore, st actor.State, n int) actor.State {
		for i := 0; i < n; i++ {
			st, _ = deliver(t, d, st, "writer", model.Put{Key: "k", Value: "v", Seq: int64(i)})
		}
		return st
	}
	rangeMsg := func(from string) model.Message {
		return model.Message{From: from, To: "datastore-1", Payload: model.Range{Start: "a", Seq: 9}}
	}

	t.Run("linearizable serves latest only", func(t *testing.T) {
		d := newStore(history.ContractLinearizable)
		st := write(d, d.Init(), 2)
		assert.Equal(t, 1, d.Choices(st, rangeMsg("client-1")))
	})

	t.Run("session serves anything at or after the cursor", func(t *testing.T) {
		d := newStore(history.ContractSession)
		st := write(d, d.Init(), 2)
		// a fresh session may read any of the three snapshots
		assert.Equal(t, 3, d.Choices(st, rangeMsg("client-1")))
		// the writer's own cursor is at the latest revision
		assert.Equal(t, 1, d.Choices(st, rangeMsg("writer")))
	})

	t.Run("monotonic-session first reader gets latest", func(t *testing.T) {
		d := newStore(history.ContractMonotonicSession)
		st := write(d, d.Init(), 2)
		require.Equal(t, 1, d.Choices(st, rangeMsg("client-1")))

		// the first read raises the floor; later snapshots stay readable
		st, out := deliver(t, d, st, "client-1", model.Range{Start: "a", Seq: 9})
		assert.Equal(t, model.Revision(2), out[0].Payload.(model.Response).Revision)
		st = write(d, st, 1)
		assert.Equal(t, 2, d.Choices(st, rangeMsg("client-2")))
	})
}
