package actor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrev/clustercheck/internal/actor"
	"github.com/devrev/clustercheck/internal/model"
)

func TestClient_ScriptProgression(t *testing.T) {
	script := []model.Payload{
		model.CreateDeployment{ID: "web", Scale: 2, CPU: 1, Mem: 1},
		model.Put{Key: "a", Value: "1"},
		model.Range{Start: "a"},
	}
	c := actor.NewClient("client-1", "datastore-1", script)
	st := c.Init()
	require.False(t, c.Exhausted(st))

	tick := model.Message{From: "client-1", To: "client-1", Payload: model.Tick{}}

	st, out := c.Handle(st, tick, 0, 1)
	require.Len(t, out, 1)
	assert.Equal(t, "datastore-1", out[0].To)
	assert.IsType(t, model.CreateDeployment{}, out[0].Payload)

	// key-value operations get consecutive sequence numbers
	st, out = c.Handle(st, tick, 0, 2)
	assert.Equal(t, int64(0), out[0].Payload.(model.Put).Seq)
	st, out = c.Handle(st, tick, 0, 3)
	assert.Equal(t, int64(1), out[0].Payload.(model.Range).Seq)

	assert.True(t, c.Exhausted(st))
	_, out = c.Handle(st, tick, 0, 4)
	assert.Empty(t, out)
}

func TestClient_TracksObservedRevision(t *testing.T) {
	c := actor.NewClient("client-1", "datastore-1", nil)
	st := c.Init()

	resp := func(rev model.Revision, rejected bool) model.Message {
		return model.Message{From: "datastore-1", To: "client-1",
			Payload: model.Response{Op: "put", Revision: rev, Rejected: rejected}}
	}

	st, _ = c.Handle(st, resp(4, false), 0, 1)
	assert.Equal(t, model.Revision(4), st.(*actor.ClientState).Observed)

	// lower and rejected responses never move the watermark back
	st, _ = c.Handle(st, resp(2, false), 0, 2)
	st, _ = c.Handle(st, resp(9, true), 0, 3)
	assert.Equal(t, model.Revision(4), st.(*actor.ClientState).Observed)
}
