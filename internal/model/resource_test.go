package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/devrev/clustercheck/internal/model"
)

func TestNode_Fits(t *testing.T) {
	n := model.Node{ID: "node-1", MaxCPU: 4, MaxMem: 8, MaxPods: 2}

	assert.True(t, n.Fits(4, 8))
	assert.False(t, n.Fits(5, 1))
	assert.False(t, n.Fits(1, 9))

	n.AllocCPU, n.AllocMem, n.AllocPods = 3, 6, 2
	// pod slots are exhausted even though cpu and memory would fit
	assert.False(t, n.Fits(1, 1))
}

func TestNode_Overcommitted(t *testing.T) {
	n := model.Node{ID: "node-1", MaxCPU: 4, MaxMem: 8, MaxPods: 2}
	assert.False(t, n.Overcommitted())

	n.AllocCPU = 5
	assert.True(t, n.Overcommitted())
}

func TestPodPhase_Active(t *testing.T) {
	for _, phase := range []model.PodPhase{
		model.PodPending, model.PodScheduled, model.PodRunning, model.PodTerminating,
	} {
		assert.True(t, phase.Active(), string(phase))
	}
	assert.False(t, model.PodTerminated.Active())
}

func TestSortedPodIDs(t *testing.T) {
	pods := map[string]model.Pod{
		"web-2": {ID: "web-2"},
		"web-0": {ID: "web-0"},
		"web-1": {ID: "web-1"},
	}
	assert.Equal(t, []string{"web-0", "web-1", "web-2"}, model.SortedPodIDs(pods))
	assert.Empty(t, model.SortedPodIDs(nil))
}

func TestRevision_Next(t *testing.T) {
	var r model.Revision
	r = r.Next()
	assert.Equal(t, model.Revision(1), r)
	assert.Equal(t, model.Revision(2), r.Next())
}

func TestMessage_EncodingExcludesSentAt(t *testing.T) {
	a := model.Message{From: "x", To: "y", SentAt: 1, Payload: model.Put{Key: "k", Seq: 2}}
	b := model.Message{From: "x", To: "y", SentAt: 9, Payload: model.Put{Key: "k", Seq: 2}}
	assert.Equal(t, a.Encode(), b.Encode())

	c := model.Message{From: "x", To: "z", SentAt: 1, Payload: model.Put{Key: "k", Seq: 2}}
	assert.NotEqual(t, a.Encode(), c.Encode())
}
