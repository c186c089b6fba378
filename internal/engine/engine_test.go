package engine_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrev/clustercheck/internal/actor"
	"github.com/devrev/clustercheck/internal/config"
	"github.com/devrev/clustercheck/internal/engine"
	"github.com/devrev/clustercheck/internal/history"
	"github.com/devrev/clustercheck/internal/model"
	"github.com/devrev/clustercheck/internal/report"
)

func smallConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Check.MaxDepth = 30
	cfg.Check.MaxStates = 500000
	cfg.Check.MaxDrops = 0
	cfg.Check.MaxPartitions = 0
	cfg.Cluster.Nodes = []config.NodeConfig{{ID: "node-1", CPU: 4, Mem: 8, Pods: 4}}
	cfg.Workload.Ops = []config.OpConfig{{Op: "create-deployment", ID: "web", Scale: 1, CPU: 1, Mem: 2}}
	return cfg
}

func newEngine(t *testing.T, cfg *config.Config) *engine.Engine {
	t.Helper()
	cluster, err := engine.BuildCluster(cfg)
	require.NoError(t, err)
	eng, err := engine.New(cluster.Actors, cluster.Contract, cluster.Partitions, engine.Config{
		MaxDepth:      cfg.Check.MaxDepth,
		MaxStates:     cfg.Check.MaxStates,
		Rollouts:      cfg.Check.Rollouts,
		MaxSteps:      cfg.Check.MaxSteps,
		Seed:          cfg.Check.Seed,
		MaxDrops:      cfg.Check.MaxDrops,
		MaxPartitions: cfg.Check.MaxPartitions,
		Workers:       cfg.Check.Workers,
	}, nil, nil)
	require.NoError(t, err)
	return eng
}

func TestRunDFS_SingleReplicaConverges(t *testing.T) {
	eng := newEngine(t, smallConfig())
	rep, err := eng.RunDFS(nil)
	require.NoError(t, err)

	assert.True(t, rep.Passed(), "violations: %+v, inconclusive: %s", rep.Violations, rep.InconclusiveReason)
	assert.Equal(t, "dfs", rep.Mode)
	assert.Positive(t, rep.UniqueStates)
	assert.GreaterOrEqual(t, rep.TotalStates, rep.UniqueStates)
	assert.Positive(t, rep.PathsChecked)
	assert.Equal(t, rep.PathsChecked, rep.ConsistentPaths)
	assert.LessOrEqual(t, rep.MaxDepth, 30)
}

func TestRunDFS_DeduplicatesInterleavings(t *testing.T) {
	// two pods create enough concurrent messages that distinct interleavings
	// reach the same state
	cfg := smallConfig()
	cfg.Workload.Ops[0].Scale = 2
	eng := newEngine(t, cfg)

	rep, err := eng.RunDFS(nil)
	require.NoError(t, err)
	assert.True(t, rep.Passed(), "violations: %+v", rep.Violations)
	assert.Greater(t, rep.TotalStates, rep.UniqueStates)
}

func TestRunDFS_InjectedPropertyViolation(t *testing.T) {
	eng := newEngine(t, smallConfig())
	eng.AddProperty(engine.Property{
		Name: "store stays empty",
		Check: func(gs *engine.GlobalState) error {
			for _, st := range gs.Actors {
				if ds, ok := st.(*actor.DatastoreState); ok && ds.Revision > 0 {
					return errors.New("store committed a revision")
				}
			}
			return nil
		},
	})

	rep, err := eng.RunDFS(nil)
	require.NoError(t, err)
	require.False(t, rep.Passed())

	var found *report.Violation
	for i := range rep.Violations {
		if rep.Violations[i].Property == "store stays empty" {
			found = &rep.Violations[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, report.KindSafety, found.Kind)
	assert.NotEmpty(t, found.Trace, "a violation must carry its reproducing trace")
}

func TestRunDFS_DepthBoundIsInconclusive(t *testing.T) {
	cfg := smallConfig()
	cfg.Check.MaxDepth = 3
	eng := newEngine(t, cfg)

	rep, err := eng.RunDFS(nil)
	require.NoError(t, err)
	assert.True(t, rep.Inconclusive)
	assert.Contains(t, rep.InconclusiveReason, "depth bound")
	assert.False(t, rep.Passed())
}

func TestRunDFS_StateBoundIsInconclusive(t *testing.T) {
	cfg := smallConfig()
	cfg.Check.MaxStates = 10
	eng := newEngine(t, cfg)

	rep, err := eng.RunDFS(nil)
	require.NoError(t, err)
	assert.True(t, rep.Inconclusive)
	assert.Contains(t, rep.InconclusiveReason, "state bound")
}

func TestRunDFS_FaultsDoNotBreakSafety(t *testing.T) {
	cfg := smallConfig()
	cfg.Check.MaxDrops = 1
	cfg.Check.MaxPartitions = 1
	cfg.Check.MaxDepth = 12
	cfg.Check.MaxStates = 20000
	eng := newEngine(t, cfg)

	rep, err := eng.RunDFS(nil)
	require.NoError(t, err)
	for _, v := range rep.Violations {
		assert.NotEqual(t, report.KindSafety, v.Kind, "fault injection must never violate safety: %+v", v)
	}
}

// relay bounces every message back to itself without changing state. The
// shipped actors all consume messages while advancing some revision or phase,
// so this stand-in is what makes a delivery loop revisit an earlier state.
type relay struct{ id string }

type relayState struct{}

func (relayState) Clone() actor.State          { return relayState{} }
func (relayState) EncodeTo(b *strings.Builder) { b.WriteString("relay{}") }

func (r *relay) ID() string                             { return r.id }
func (r *relay) Init() actor.State                      { return relayState{} }
func (r *relay) Choices(actor.State, model.Message) int { return 1 }

func (r *relay) Handle(st actor.State, msg model.Message, _ int, now int64) (actor.State, []model.Message) {
	return st, []model.Message{{From: r.id, To: r.id, SentAt: now, Payload: msg.Payload}}
}

func TestRunDFS_DetectsNoProgressCycle(t *testing.T) {
	client := actor.NewClient("client-1", "relay-1", []model.Payload{model.Put{Key: "k", Value: "v"}})
	eng, err := engine.New([]actor.Actor{&relay{id: "relay-1"}, client},
		history.ContractLinearizable, nil, engine.Config{MaxDepth: 8, MaxStates: 100}, nil, nil)
	require.NoError(t, err)

	rep, err := eng.RunDFS(nil)
	require.NoError(t, err)
	require.False(t, rep.Passed())

	var found *report.Violation
	for i := range rep.Violations {
		if rep.Violations[i].Kind == report.KindLiveness {
			found = &rep.Violations[i]
		}
	}
	require.NotNil(t, found, "violations: %+v", rep.Violations)
	assert.Contains(t, found.Message, "cycle")
	assert.NotEmpty(t, found.Trace, "a liveness violation must carry its looping trace")
}

func TestBuildCluster_Topology(t *testing.T) {
	cfg := smallConfig()
	cfg.Cluster.Schedulers = 2
	cfg.Cluster.Controllers = 1
	cfg.Cluster.Clients = 2

	cluster, err := engine.BuildCluster(cfg)
	require.NoError(t, err)
	// one datastore, two schedulers, one controller, two clients
	assert.Len(t, cluster.Actors, 6)
	// each scheduler and controller can be isolated from the datastore
	assert.Len(t, cluster.Partitions, 3)

	// with multiple clients, created resource ids carry the client prefix
	var client *actor.Client
	for _, a := range cluster.Actors {
		if c, ok := a.(*actor.Client); ok && c.ID() == "client-2" {
			client = c
		}
	}
	require.NotNil(t, client)
	_, out := client.Handle(client.Init(),
		model.Message{From: "client-2", To: "client-2", Payload: model.Tick{}}, 0, 1)
	require.Len(t, out, 1)
	assert.Equal(t, "client-2-web", out[0].Payload.(model.CreateDeployment).ID)
}

func TestBuildCluster_UnknownContract(t *testing.T) {
	cfg := smallConfig()
	cfg.Check.Consistency = "eventual"
	_, err := engine.BuildCluster(cfg)
	assert.Error(t, err)
}
