package engine_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrev/clustercheck/internal/actor"
	"github.com/devrev/clustercheck/internal/config"
	"github.com/devrev/clustercheck/internal/engine"
	"github.com/devrev/clustercheck/internal/report"
)

func simulationConfig() *config.Config {
	c := smallConfig()
	c.Check.Mode = "simulation"
	c.Check.Rollouts = 50
	c.Check.MaxSteps = 60
	c.Check.Workers = 4
	c.Check.Seed = 7
	c.Check.MaxDrops = 1
	c.Check.MaxPartitions = 1
	return c
}

func TestRunSimulation_CompletesAllRollouts(t *testing.T) {
	cfg := simulationConfig()
	eng := newEngine(t, cfg)

	rep, err := eng.RunSimulation(nil)
	require.NoError(t, err)

	assert.Equal(t, "simulation", rep.Mode)
	require.NotNil(t, rep.Simulation)
	assert.Equal(t, 50, rep.Simulation.Rollouts)
	assert.Equal(t, int64(7), rep.Simulation.Seed)
	assert.Equal(t, 50, rep.PathsChecked)
	assert.Positive(t, rep.TotalStates)
	assert.Positive(t, rep.Simulation.MeanDepth)
	for _, v := range rep.Violations {
		assert.NotEqual(t, report.KindSafety, v.Kind, "unexpected safety violation: %+v", v)
	}
}

func TestRunSimulation_ReportsViolationOnFinalDelivery(t *testing.T) {
	cfg := simulationConfig()
	cfg.Check.Rollouts = 5
	cfg.Check.MaxDrops = 0
	cfg.Check.MaxPartitions = 0
	eng := newEngine(t, cfg)

	// fails exactly when the network drains after the store has committed, so
	// the violating action is always the delivery of the last in-flight message
	eng.AddProperty(engine.Property{
		Name: "work stays in flight",
		Check: func(gs *engine.GlobalState) error {
			if len(gs.Net.InFlight) > 0 {
				return nil
			}
			for _, st := range gs.Actors {
				if ds, ok := st.(*actor.DatastoreState); ok && ds.Revision > 0 {
					return errors.New("network drained after commits")
				}
			}
			return nil
		},
	})

	rep, err := eng.RunSimulation(nil)
	require.NoError(t, err)

	var found *report.Violation
	for i := range rep.Violations {
		if rep.Violations[i].Property == "work stays in flight" {
			found = &rep.Violations[i]
		}
	}
	require.NotNil(t, found, "violations: %+v", rep.Violations)
	assert.Equal(t, report.KindSafety, found.Kind)
	assert.Contains(t, found.Message, `"deliver `,
		"the message must name the delivered action, not the successor state")
	assert.Positive(t, rep.TotalStates)
}

func TestRunSimulation_DeterministicPerSeed(t *testing.T) {
	cfg := simulationConfig()

	first, err := newEngine(t, cfg).RunSimulation(nil)
	require.NoError(t, err)
	second, err := newEngine(t, cfg).RunSimulation(nil)
	require.NoError(t, err)

	assert.Equal(t, first.TotalStates, second.TotalStates)
	assert.Equal(t, first.MaxDepth, second.MaxDepth)
	assert.Equal(t, first.ConsistentPaths, second.ConsistentPaths)
	assert.Equal(t, len(first.Violations), len(second.Violations))
}

func TestRunSimulation_DifferentSeedsDiverge(t *testing.T) {
	cfg := simulationConfig()
	first, err := newEngine(t, cfg).RunSimulation(nil)
	require.NoError(t, err)

	cfg.Check.Seed = 8
	second, err := newEngine(t, cfg).RunSimulation(nil)
	require.NoError(t, err)

	// not guaranteed in principle, but with 50 rollouts of dozens of random
	// choices an identical step total would indicate a seeding bug
	assert.NotEqual(t, first.TotalStates, second.TotalStates)
}
