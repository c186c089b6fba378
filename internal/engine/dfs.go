package engine

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/clustercheck/internal/history"
	"github.com/devrev/clustercheck/internal/model"
	"github.com/devrev/clustercheck/internal/report"
	"github.com/devrev/clustercheck/internal/util"
)

const progressEvery = 1000

// dfsRun holds the mutable exploration state of one depth-first search
type dfsRun struct {
	e        *Engine
	rep      *report.Report
	progress *report.ProgressWriter
	start    time.Time

	visited map[uint64]struct{}
	onPath  map[uint64]int

	// states[i] is the state after actions[i-1]; states[0] is the root
	states []pathState
	trace  []report.TraceStep

	// best violation per property, replaced when a shorter trace is found
	found map[string]int

	consistentPaths int
	truncated       bool
	exhausted       bool
}

type pathState struct {
	fp  uint64
	sig string
}

// RunDFS exhaustively explores the state space up to the configured depth and
// state bounds, deduplicating on state fingerprints. It reports every
// discovered violation with the shortest trace found for its property.
func (e *Engine) RunDFS(progress *report.ProgressWriter) (*report.Report, error) {
	r := &dfsRun{
		e:        e,
		rep:      &report.Report{Mode: "dfs", Contract: string(e.contract), Violations: []report.Violation{}},
		progress: progress,
		start:    time.Now(),
		visited:  make(map[uint64]struct{}),
		onPath:   make(map[uint64]int),
		found:    make(map[string]int),
	}

	root := e.initial()
	fp := root.Fingerprint()
	r.visited[fp] = struct{}{}
	r.onPath[fp] = 0
	r.states = append(r.states, pathState{fp: fp, sig: e.progressSignature(root)})

	if name, err := e.checkSafety(root); err != nil {
		r.record(report.KindSafety, name, err.Error(), nil)
	} else {
		r.explore(root, history.NewRecorder(), 0)
	}

	r.rep.UniqueStates = len(r.visited)
	r.rep.ConsistentPaths = r.consistentPaths
	r.rep.DurationMS = time.Since(r.start).Milliseconds()
	switch {
	case r.exhausted:
		r.rep.Inconclusive = true
		r.rep.InconclusiveReason = fmt.Sprintf("state bound %d reached", e.cfg.MaxStates)
	case r.truncated:
		r.rep.Inconclusive = true
		r.rep.InconclusiveReason = fmt.Sprintf("depth bound %d reached on some paths", e.cfg.MaxDepth)
	}
	e.metrics.RecordUnique(len(r.visited))

	e.logger.Info("depth-first search finished",
		zap.Int("total_states", r.rep.TotalStates),
		zap.Int("unique_states", r.rep.UniqueStates),
		zap.Int("max_depth", r.rep.MaxDepth),
		zap.Int("paths_checked", r.rep.PathsChecked),
		zap.Int("violations", len(r.rep.Violations)),
		zap.Bool("inconclusive", r.rep.Inconclusive))

	if r.progress != nil {
		if err := r.progress.WriteRow(r.rep.TotalStates, r.rep.UniqueStates, r.rep.MaxDepth, r.rep.DurationMS, true); err != nil {
			return r.rep, fmt.Errorf("failed to write progress row: %w", err)
		}
	}
	return r.rep, nil
}

func (r *dfsRun) explore(gs *GlobalState, rec *history.Recorder, depth int) {
	if depth > r.rep.MaxDepth {
		r.rep.MaxDepth = depth
		r.e.metrics.RecordDepth(depth)
	}
	if r.exhausted {
		return
	}
	if depth >= r.e.cfg.MaxDepth {
		r.truncated = true
		r.endOfPath(gs, rec)
		return
	}

	acts := r.e.enabled(gs)
	if len(acts) == 0 {
		r.endOfPath(gs, rec)
		return
	}

	for _, a := range acts {
		if r.exhausted {
			return
		}
		branchRec := rec.Clone()
		ns := r.e.apply(gs, a, branchRec)
		nfp := ns.Fingerprint()
		r.rep.TotalStates++
		r.e.metrics.RecordAction(string(a.Kind))

		step := report.TraceStep{Action: a.Describe(gs), Fingerprint: util.FormatFingerprint(nfp)}

		if d, on := r.onPath[nfp]; on {
			r.checkCycle(d, ns, step)
			continue
		}
		if _, seen := r.visited[nfp]; seen {
			continue
		}
		r.visited[nfp] = struct{}{}
		if len(r.visited) >= r.e.cfg.MaxStates {
			r.exhausted = true
		}
		if len(r.visited)%progressEvery == 0 {
			r.writeProgress()
		}

		if name, err := r.e.checkSafety(ns); err != nil {
			r.record(report.KindSafety, name, err.Error(), append(r.trace, step))
			continue
		}
		if r.responseDelivered(gs, a) {
			if v := history.Check(r.e.contract, branchRec.Ops()); v != nil {
				r.rep.PathsChecked++
				r.record(report.KindConsistency, string(r.e.contract), v.Error(), append(r.trace, step))
				continue
			}
		}

		r.onPath[nfp] = len(r.states)
		r.states = append(r.states, pathState{fp: nfp, sig: r.e.progressSignature(ns)})
		r.trace = append(r.trace, step)

		r.explore(ns, branchRec, depth+1)

		r.trace = r.trace[:len(r.trace)-1]
		r.states = r.states[:len(r.states)-1]
		delete(r.onPath, nfp)
	}
}

// endOfPath runs the whole-path verdicts: the final consistency check and,
// when the path ended quiescent without faults, convergence.
func (r *dfsRun) endOfPath(gs *GlobalState, rec *history.Recorder) {
	r.rep.PathsChecked++
	if v := history.Check(r.e.contract, rec.Ops()); v != nil {
		r.record(report.KindConsistency, string(r.e.contract), v.Error(), r.trace)
		return
	}
	r.consistentPaths++

	if r.e.quiescent(gs) && !gs.Net.Faulted() {
		if err := r.e.checkConvergence(gs); err != nil {
			r.record(report.KindConvergence, "cluster converges to desired state", err.Error(), r.trace)
		}
	}
}

// checkCycle inspects a back-edge to an on-path state. If the progress
// signature never changed around the loop, a fair scheduler could repeat it
// forever without the cluster advancing.
func (r *dfsRun) checkCycle(from int, ns *GlobalState, step report.TraceStep) {
	sig := r.states[from].sig
	for _, ps := range r.states[from:] {
		if ps.sig != sig {
			return
		}
	}
	if r.e.progressSignature(ns) != sig {
		return
	}
	r.record(report.KindLiveness, "every cycle makes progress",
		fmt.Sprintf("no-progress cycle back to step %d", from), append(r.trace, step))
}

// responseDelivered reports whether the action delivered a datastore response,
// the only transition that can extend the recorded history with a completion.
func (r *dfsRun) responseDelivered(gs *GlobalState, a Action) bool {
	if a.Kind != ActionDeliver {
		return false
	}
	_, ok := gs.Net.InFlight[a.MsgIndex].Payload.(model.Response)
	return ok
}

// record stores a violation, keeping only the shortest trace per property
func (r *dfsRun) record(kind, property, message string, trace []report.TraceStep) {
	key := kind + "/" + property
	v := report.Violation{Kind: kind, Property: property, Message: message,
		Trace: append([]report.TraceStep(nil), trace...)}
	if i, ok := r.found[key]; ok {
		if len(v.Trace) < len(r.rep.Violations[i].Trace) {
			r.rep.Violations[i] = v
		}
		return
	}
	r.found[key] = len(r.rep.Violations)
	r.rep.Violations = append(r.rep.Violations, v)
	r.e.metrics.RecordViolation(kind)
	r.e.logger.Warn("property violated",
		zap.String("kind", kind),
		zap.String("property", property),
		zap.String("message", message),
		zap.Int("trace_len", len(v.Trace)))
}

func (r *dfsRun) writeProgress() {
	r.e.metrics.RecordUnique(len(r.visited))
	if r.progress == nil {
		return
	}
	elapsed := time.Since(r.start).Milliseconds()
	if err := r.progress.WriteRow(r.rep.TotalStates, len(r.visited), r.rep.MaxDepth, elapsed, false); err != nil {
		r.e.logger.Warn("failed to write progress row", zap.Error(err))
	}
}
