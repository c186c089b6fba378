package engine

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/clustercheck/internal/history"
	"github.com/devrev/clustercheck/internal/report"
	"github.com/devrev/clustercheck/internal/util/workerpool"
)

// rolloutResult is the verdict of one randomized rollout
type rolloutResult struct {
	steps      int
	violations []report.Violation
	consistent bool
	quiescent  bool
}

// RunSimulation executes the configured number of randomized rollouts on a
// worker pool. Each rollout is seeded with Seed plus its index, so a run is
// reproducible from the report's seed alone.
func (e *Engine) RunSimulation(progress *report.ProgressWriter) (*report.Report, error) {
	start := time.Now()
	rep := &report.Report{Mode: "simulation", Contract: string(e.contract), Violations: []report.Violation{}}

	pool := workerpool.NewWorkerPool(&workerpool.Config{
		Name:       "simulation",
		MaxWorkers: e.cfg.Workers,
		QueueSize:  e.cfg.Rollouts,
		Logger:     e.logger,
	})

	results := make([]rolloutResult, e.cfg.Rollouts)
	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Rollouts; i++ {
		i := i
		seed := e.cfg.Seed + int64(i)
		wg.Add(1)
		task := workerpool.Task{
			ID: fmt.Sprintf("rollout-%d", i),
			Fn: func() error {
				defer wg.Done()
				results[i] = e.rollout(i, seed)
				return nil
			},
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			return nil, fmt.Errorf("failed to submit rollout %d: %w", i, err)
		}
	}
	wg.Wait()
	if err := pool.Stop(10 * time.Second); err != nil {
		e.logger.Warn("worker pool did not stop cleanly", zap.Error(err))
	}

	totalSteps, consistent, quiescent := 0, 0, 0
	seen := make(map[string]bool)
	for _, res := range results {
		totalSteps += res.steps
		if res.steps > rep.MaxDepth {
			rep.MaxDepth = res.steps
		}
		if res.consistent {
			consistent++
		}
		if res.quiescent {
			quiescent++
		}
		for _, v := range res.violations {
			e.metrics.RecordViolation(v.Kind)
			key := v.Kind + "/" + v.Property
			if seen[key] {
				continue
			}
			seen[key] = true
			rep.Violations = append(rep.Violations, v)
		}
		e.metrics.RecordRollout(res.steps)
	}

	elapsed := time.Since(start)
	rep.TotalStates = totalSteps
	rep.PathsChecked = e.cfg.Rollouts
	rep.ConsistentPaths = consistent
	rep.DurationMS = elapsed.Milliseconds()
	rep.Simulation = &report.SimulationStats{
		Rollouts:        e.cfg.Rollouts,
		Seed:            e.cfg.Seed,
		TotalSteps:      totalSteps,
		MeanDepth:       meanDepth(totalSteps, e.cfg.Rollouts),
		StatesPerSecond: ratePerSecond(totalSteps, elapsed),
	}

	e.logger.Info("simulation finished",
		zap.Int("rollouts", e.cfg.Rollouts),
		zap.Int64("seed", e.cfg.Seed),
		zap.Int("total_steps", totalSteps),
		zap.Int("quiescent_rollouts", quiescent),
		zap.Int("violations", len(rep.Violations)))

	if progress != nil {
		if err := progress.WriteRow(rep.TotalStates, 0, rep.MaxDepth, rep.DurationMS, true); err != nil {
			return rep, fmt.Errorf("failed to write progress row: %w", err)
		}
	}
	return rep, nil
}

// rollout walks one random path through the state space. Action selection is
// uniform over the enabled set; determinism per seed is what makes a reported
// violation reproducible.
func (e *Engine) rollout(index int, seed int64) rolloutResult {
	rng := rand.New(rand.NewSource(seed))
	gs := e.initial()
	rec := history.NewRecorder()
	var res rolloutResult

	for res.steps < e.cfg.MaxSteps {
		acts := e.enabled(gs)
		if len(acts) == 0 {
			break
		}
		a := acts[rng.Intn(len(acts))]
		// describe against the state the action fires from; after apply the
		// message it delivered is no longer in flight
		desc := a.Describe(gs)
		gs = e.apply(gs, a, rec)
		res.steps++
		e.metrics.RecordAction(string(a.Kind))

		if name, err := e.checkSafety(gs); err != nil {
			res.violations = append(res.violations, report.Violation{
				Kind:     report.KindSafety,
				Property: name,
				Message:  fmt.Sprintf("rollout %d seed %d after %q: %v", index, seed, desc, err),
			})
			return res
		}
	}

	if v := history.Check(e.contract, rec.Ops()); v != nil {
		res.violations = append(res.violations, report.Violation{
			Kind:     report.KindConsistency,
			Property: string(e.contract),
			Message:  fmt.Sprintf("rollout %d seed %d: %v", index, seed, v),
		})
		return res
	}
	res.consistent = true

	if e.quiescent(gs) {
		res.quiescent = true
		if !gs.Net.Faulted() {
			if err := e.checkConvergence(gs); err != nil {
				res.violations = append(res.violations, report.Violation{
					Kind:     report.KindConvergence,
					Property: "cluster converges to desired state",
					Message:  fmt.Sprintf("rollout %d seed %d: %v", index, seed, err),
				})
			}
		}
	}
	return res
}

func meanDepth(totalSteps, rollouts int) float64 {
	if rollouts == 0 {
		return 0
	}
	return float64(totalSteps) / float64(rollouts)
}

func ratePerSecond(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}
