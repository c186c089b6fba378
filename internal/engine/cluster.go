package engine

import (
	"fmt"

	"github.com/devrev/clustercheck/internal/actor"
	"github.com/devrev/clustercheck/internal/config"
	"github.com/devrev/clustercheck/internal/history"
	"github.com/devrev/clustercheck/internal/model"
	"github.com/devrev/clustercheck/internal/network"
)

// Cluster is the set of actors built from a configuration, plus the candidate
// partitions its fault model may activate.
type Cluster struct {
	Actors     []actor.Actor
	Contract   history.Contract
	Partitions []network.Partition
}

// BuildCluster instantiates the modelled control plane: one datastore, the
// configured scheduler and controller replicas, and one client per workload.
// Resource ids created by a client are prefixed with the client id so that
// multi-client workloads do not collide.
func BuildCluster(cfg *config.Config) (*Cluster, error) {
	contract, err := history.ParseContract(cfg.Check.Consistency)
	if err != nil {
		return nil, err
	}

	nodes := make([]model.Node, len(cfg.Cluster.Nodes))
	for i, n := range cfg.Cluster.Nodes {
		nodes[i] = model.Node{ID: n.ID, MaxCPU: n.CPU, MaxMem: n.Mem, MaxPods: n.Pods}
	}

	const storeID = "datastore-1"
	var schedulers, controllers []string
	for i := 0; i < cfg.Cluster.Schedulers; i++ {
		schedulers = append(schedulers, fmt.Sprintf("scheduler-%d", i+1))
	}
	for i := 0; i < cfg.Cluster.Controllers; i++ {
		controllers = append(controllers, fmt.Sprintf("controller-%d", i+1))
	}

	actors := []actor.Actor{actor.NewDatastore(storeID, contract, schedulers, controllers)}
	for _, id := range schedulers {
		actors = append(actors, actor.NewScheduler(id, storeID, nodes))
	}
	for _, id := range controllers {
		actors = append(actors, actor.NewReplicaSetController(id, storeID))
	}
	for i := 0; i < cfg.Cluster.Clients; i++ {
		id := fmt.Sprintf("client-%d", i+1)
		script, err := buildScript(id, cfg.Workload.Ops, cfg.Cluster.Clients > 1)
		if err != nil {
			return nil, err
		}
		actors = append(actors, actor.NewClient(id, storeID, script))
	}

	return &Cluster{
		Actors:     actors,
		Contract:   contract,
		Partitions: defaultPartitions(storeID, schedulers, controllers),
	}, nil
}

// buildScript turns the configured operations into payloads. With multiple
// clients, deployment ids and client keys get a per-client prefix.
func buildScript(clientID string, ops []config.OpConfig, prefix bool) ([]model.Payload, error) {
	qualify := func(s string) string {
		if !prefix || s == "" {
			return s
		}
		return clientID + "-" + s
	}

	script := make([]model.Payload, 0, len(ops))
	for _, op := range ops {
		switch op.Op {
		case "create-deployment":
			script = append(script, model.CreateDeployment{ID: qualify(op.ID), Scale: op.Scale, CPU: op.CPU, Mem: op.Mem})
		case "scale-deployment":
			script = append(script, model.ScaleDeployment{ID: qualify(op.ID), N: op.N})
		case "put":
			script = append(script, model.Put{Key: qualify(op.Key), Value: op.Value})
		case "range":
			script = append(script, model.Range{Start: qualify(op.Start), End: qualify(op.End)})
		case "delete-range":
			script = append(script, model.DeleteRange{Start: qualify(op.Start), End: qualify(op.End)})
		default:
			return nil, fmt.Errorf("unknown workload op %q", op.Op)
		}
	}
	return script, nil
}

// defaultPartitions isolates one control-plane replica at a time from the
// datastore, the interesting failure mode for a replicated control plane.
func defaultPartitions(storeID string, schedulers, controllers []string) []network.Partition {
	var parts []network.Partition
	for _, id := range schedulers {
		parts = append(parts, network.NewPartition([]string{id}, []string{storeID}))
	}
	for _, id := range controllers {
		parts = append(parts, network.NewPartition([]string{id}, []string{storeID}))
	}
	return parts
}
