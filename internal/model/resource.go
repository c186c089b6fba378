package model

import "sort"

// PodPhase describes the lifecycle phase of a pod
type PodPhase string

const (
	PodPending     PodPhase = "Pending"
	PodScheduled   PodPhase = "Scheduled"
	PodRunning     PodPhase = "Running"
	PodTerminating PodPhase = "Terminating"
	PodTerminated  PodPhase = "Terminated"
)

// Active reports whether the phase counts towards a replicaset's current scale
func (p PodPhase) Active() bool {
	return p != PodTerminated
}

// Node represents a schedulable node with capacity limits and current allocations
type Node struct {
	ID        string
	MaxCPU    int64
	MaxMem    int64
	MaxPods   int
	AllocCPU  int64
	AllocMem  int64
	AllocPods int
}

// Fits reports whether the node has free capacity for the requested resources
func (n Node) Fits(cpu, mem int64) bool {
	return n.MaxCPU-n.AllocCPU >= cpu &&
		n.MaxMem-n.AllocMem >= mem &&
		n.MaxPods-n.AllocPods >= 1
}

// Overcommitted reports whether any allocation exceeds its capacity limit
func (n Node) Overcommitted() bool {
	return n.AllocCPU > n.MaxCPU || n.AllocMem > n.MaxMem || n.AllocPods > n.MaxPods
}

// Pod represents a workload unit created by a client or a replicaset controller
type Pod struct {
	ID      string
	CPU     int64
	Mem     int64
	OwnerID string // owning replicaset, empty for standalone pods
	NodeID  string // bound node, empty while Pending
	Phase   PodPhase
}

// ReplicaSet represents a desired pod population with a shared resource template
type ReplicaSet struct {
	ID      string
	Desired int
	CPU     int64
	Mem     int64
}

// SortedPodIDs returns the pod ids in ascending order for deterministic iteration
func SortedPodIDs(pods map[string]Pod) []string {
	ids := make([]string, 0, len(pods))
	for id := range pods {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
