package config

import (
	"errors"
	"fmt"

	"github.com/devrev/clustercheck/internal/history"
)

// Checking modes
const (
	ModeDFS        = "dfs"
	ModeSimulation = "simulation"
)

// Config represents the checker configuration
type Config struct {
	Check    CheckConfig    `mapstructure:"check"`
	Cluster  ClusterConfig  `mapstructure:"cluster"`
	Workload WorkloadConfig `mapstructure:"workload"`
	Report   ReportConfig   `mapstructure:"report"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CheckConfig represents exploration mode and bounds
type CheckConfig struct {
	Mode          string `mapstructure:"mode"`
	Consistency   string `mapstructure:"consistency"`
	MaxDepth      int    `mapstructure:"max_depth"`
	MaxStates     int    `mapstructure:"max_states"`
	Rollouts      int    `mapstructure:"rollouts"`
	MaxSteps      int    `mapstructure:"max_steps"`
	Seed          int64  `mapstructure:"seed"`
	MaxDrops      int    `mapstructure:"max_drops"`
	MaxPartitions int    `mapstructure:"max_partitions"`
	Workers       int    `mapstructure:"workers"`
}

// ClusterConfig represents the modelled cluster topology
type ClusterConfig struct {
	Nodes       []NodeConfig `mapstructure:"nodes"`
	Schedulers  int          `mapstructure:"schedulers"`
	Controllers int          `mapstructure:"controllers"`
	Datastores  int          `mapstructure:"datastores"`
	Clients     int          `mapstructure:"clients"`
}

// NodeConfig represents one worker node's capacity
type NodeConfig struct {
	ID   string `mapstructure:"id"`
	CPU  int64  `mapstructure:"cpu"`
	Mem  int64  `mapstructure:"mem"`
	Pods int    `mapstructure:"pods"`
}

// WorkloadConfig represents the client workload script
type WorkloadConfig struct {
	Ops []OpConfig `mapstructure:"ops"`
}

// OpConfig represents one scripted client operation. Which fields apply
// depends on Op: create-deployment uses ID, Scale, CPU and Mem;
// scale-deployment uses ID and N; put uses Key and Value; range and
// delete-range use Start and End.
type OpConfig struct {
	Op    string `mapstructure:"op"`
	ID    string `mapstructure:"id"`
	Scale int    `mapstructure:"scale"`
	CPU   int64  `mapstructure:"cpu"`
	Mem   int64  `mapstructure:"mem"`
	N     int    `mapstructure:"n"`
	Key   string `mapstructure:"key"`
	Value string `mapstructure:"value"`
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
}

// ReportConfig represents output artifact paths
type ReportConfig struct {
	Path         string `mapstructure:"path"`
	ProgressPath string `mapstructure:"progress_path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Check.Mode {
	case ModeDFS, ModeSimulation:
	default:
		return fmt.Errorf("check.mode must be one of: %s, %s", ModeDFS, ModeSimulation)
	}
	if _, err := history.ParseContract(c.Check.Consistency); err != nil {
		return fmt.Errorf("check.consistency: %w", err)
	}
	if c.Check.MaxDepth <= 0 {
		return errors.New("check.max_depth must be positive")
	}
	if c.Check.MaxStates <= 0 {
		return errors.New("check.max_states must be positive")
	}
	if c.Check.Mode == ModeSimulation {
		if c.Check.Rollouts <= 0 {
			return errors.New("check.rollouts must be positive")
		}
		if c.Check.MaxSteps <= 0 {
			return errors.New("check.max_steps must be positive")
		}
		if c.Check.Workers <= 0 {
			return errors.New("check.workers must be positive")
		}
	}
	if c.Check.MaxDrops < 0 || c.Check.MaxPartitions < 0 {
		return errors.New("fault budgets must not be negative")
	}

	if len(c.Cluster.Nodes) == 0 {
		return errors.New("cluster.nodes must not be empty")
	}
	seen := make(map[string]bool, len(c.Cluster.Nodes))
	for _, n := range c.Cluster.Nodes {
		if n.ID == "" {
			return errors.New("cluster.nodes[].id is required")
		}
		if seen[n.ID] {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		seen[n.ID] = true
		if n.CPU <= 0 || n.Mem <= 0 || n.Pods <= 0 {
			return fmt.Errorf("node %s capacities must be positive", n.ID)
		}
	}
	if c.Cluster.Schedulers <= 0 {
		return errors.New("cluster.schedulers must be positive")
	}
	if c.Cluster.Controllers <= 0 {
		return errors.New("cluster.controllers must be positive")
	}
	if c.Cluster.Datastores != 1 {
		return errors.New("cluster.datastores must be 1")
	}
	if c.Cluster.Clients <= 0 {
		return errors.New("cluster.clients must be positive")
	}

	for i, op := range c.Workload.Ops {
		if err := validateOp(op); err != nil {
			return fmt.Errorf("workload.ops[%d]: %w", i, err)
		}
	}

	if c.Report.Path == "" {
		return errors.New("report.path is required")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

func validateOp(op OpConfig) error {
	switch op.Op {
	case "create-deployment":
		if op.ID == "" {
			return errors.New("create-deployment requires id")
		}
		if op.Scale < 0 {
			return errors.New("create-deployment scale must not be negative")
		}
		if op.CPU <= 0 || op.Mem <= 0 {
			return errors.New("create-deployment cpu and mem must be positive")
		}
	case "scale-deployment":
		if op.ID == "" {
			return errors.New("scale-deployment requires id")
		}
		if op.N < 0 {
			return errors.New("scale-deployment n must not be negative")
		}
	case "put":
		if op.Key == "" {
			return errors.New("put requires key")
		}
	case "range", "delete-range":
		if op.End != "" && op.End <= op.Start {
			return errors.New("end must be above start")
		}
	default:
		return fmt.Errorf("unknown op %q", op.Op)
	}
	return nil
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Check: CheckConfig{
			Mode:          ModeDFS,
			Consistency:   string(history.ContractLinearizable),
			MaxDepth:      12,
			MaxStates:     200000,
			Rollouts:      200,
			MaxSteps:      200,
			Seed:          1,
			MaxDrops:      1,
			MaxPartitions: 1,
			Workers:       4,
		},
		Cluster: ClusterConfig{
			Nodes: []NodeConfig{
				{ID: "node-1", CPU: 4, Mem: 8, Pods: 4},
				{ID: "node-2", CPU: 4, Mem: 8, Pods: 4},
			},
			Schedulers:  1,
			Controllers: 1,
			Datastores:  1,
			Clients:     1,
		},
		Workload: WorkloadConfig{
			Ops: []OpConfig{
				{Op: "create-deployment", ID: "web", Scale: 2, CPU: 1, Mem: 2},
			},
		},
		Report: ReportConfig{
			Path: "report.yaml",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
