package network_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrev/clustercheck/internal/model"
	"github.com/devrev/clustercheck/internal/network"
)

func msg(from, to, key string) model.Message {
	return model.Message{From: from, To: to, Payload: model.Put{Key: key}}
}

func TestState_SendAndDeliver(t *testing.T) {
	var s network.State
	s = s.Send(msg("a", "b", "k1"), msg("b", "c", "k2"))
	require.Len(t, s.InFlight, 2)

	next, m := s.Deliver(0)
	assert.Equal(t, "a", m.From)
	assert.Len(t, next.InFlight, 1)
	// the original value is untouched
	assert.Len(t, s.InFlight, 2)
}

func TestState_Drop(t *testing.T) {
	var s network.State
	s = s.Send(msg("a", "b", "k1"))
	dropped := s.Drop(0)

	assert.Empty(t, dropped.InFlight)
	assert.Equal(t, 1, dropped.Drops)
	assert.True(t, dropped.Faulted())
	assert.False(t, s.Faulted())
}

func TestState_PartitionBlocksDelivery(t *testing.T) {
	var s network.State
	s = s.Send(msg("scheduler-1", "datastore-1", "k1"), msg("client-1", "datastore-1", "k2"))
	s = s.WithPartition(network.NewPartition([]string{"scheduler-1"}, []string{"datastore-1"}))

	assert.False(t, s.Deliverable(0))
	assert.True(t, s.Deliverable(1))
	assert.True(t, s.Blocked("datastore-1", "scheduler-1"))

	healed := s.Heal(0)
	assert.True(t, healed.Deliverable(0))
	// healing does not forget that a fault was injected
	assert.True(t, healed.Faulted())
}

func TestState_SelfDeliveryNeverBlocked(t *testing.T) {
	var s network.State
	s = s.Send(model.Message{From: "datastore-1", To: "datastore-1", Payload: model.PodStarted{PodID: "p1"}})
	s = s.WithPartition(network.NewPartition([]string{"datastore-1"}, []string{"scheduler-1", "controller-1"}))

	assert.True(t, s.Deliverable(0))
}

func TestState_DuplicatePartitionIsNoop(t *testing.T) {
	p := network.NewPartition([]string{"b", "a"}, []string{"c"})
	q := network.NewPartition([]string{"a", "b"}, []string{"c"})

	var s network.State
	s = s.WithPartition(p)
	s = s.WithPartition(q)

	assert.Len(t, s.Partitions, 1)
	assert.Equal(t, 1, s.Partitioned)
	assert.True(t, s.HasPartition(q))
}

func TestState_EncodingIsOrderInsensitive(t *testing.T) {
	a := msg("a", "b", "k1")
	b := msg("b", "c", "k2")

	var s1, s2 network.State
	s1 = s1.Send(a, b)
	s2 = s2.Send(b, a)

	enc := func(s network.State) string {
		var b strings.Builder
		s.EncodeTo(&b)
		return b.String()
	}
	assert.Equal(t, enc(s1), enc(s2))
}
