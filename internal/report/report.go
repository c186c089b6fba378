// Package report owns the structured run artifact consumed by external
// reporting and plotting tooling: a YAML verdict document per run plus CSV
// progress rows emitted while checking.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// TraceStep is one edge of a counterexample trace
type TraceStep struct {
	Action      string `yaml:"action"`
	Fingerprint string `yaml:"fingerprint"`
}

// Violation kinds, mirroring the error taxonomy of the checker
const (
	KindSafety      = "safety"
	KindLiveness    = "liveness"
	KindConsistency = "consistency"
	KindConvergence = "convergence"
)

// Violation is one discovered property violation with its reproducing trace
type Violation struct {
	Kind     string      `yaml:"kind"`
	Property string      `yaml:"property"`
	Message  string      `yaml:"message"`
	Trace    []TraceStep `yaml:"trace,omitempty"`
}

// SimulationStats carries timing and coverage statistics from simulation mode
type SimulationStats struct {
	Rollouts        int     `yaml:"rollouts"`
	Seed            int64   `yaml:"seed"`
	TotalSteps      int     `yaml:"total_steps"`
	MeanDepth       float64 `yaml:"mean_depth"`
	StatesPerSecond float64 `yaml:"states_per_second"`
}

// Report is the structured result of one checking run
type Report struct {
	Mode               string           `yaml:"mode"`
	Contract           string           `yaml:"contract"`
	TotalStates        int              `yaml:"total_states"`
	UniqueStates       int              `yaml:"unique_states"`
	MaxDepth           int              `yaml:"max_depth"`
	DurationMS         int64            `yaml:"duration_ms"`
	PathsChecked       int              `yaml:"paths_checked"`
	ConsistentPaths    int              `yaml:"consistent_paths"`
	Inconclusive       bool             `yaml:"inconclusive"`
	InconclusiveReason string           `yaml:"inconclusive_reason,omitempty"`
	Violations         []Violation      `yaml:"violations"`
	Simulation         *SimulationStats `yaml:"simulation,omitempty"`
}

// Passed reports whether the run completed without any violation
func (r *Report) Passed() bool {
	return len(r.Violations) == 0 && !r.Inconclusive
}

// WriteYAML writes the report artifact to the given path
func WriteYAML(path string, r *Report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}

// ProgressWriter appends CSV progress rows while a run is checking. The
// column layout is fixed; the plotting collaborator owns its interpretation.
type ProgressWriter struct {
	file   *os.File
	writer *csv.Writer
}

// NewProgressWriter creates the progress file and writes the header row
func NewProgressWriter(path string) (*ProgressWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create progress file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"total_states", "unique_states", "max_depth", "duration_ms", "done"}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write progress header: %w", err)
	}
	return &ProgressWriter{file: f, writer: w}, nil
}

// WriteRow appends one progress row
func (p *ProgressWriter) WriteRow(totalStates, uniqueStates, maxDepth int, durationMS int64, done bool) error {
	return p.writer.Write([]string{
		strconv.Itoa(totalStates),
		strconv.Itoa(uniqueStates),
		strconv.Itoa(maxDepth),
		strconv.FormatInt(durationMS, 10),
		strconv.FormatBool(done),
	})
}

// Close flushes and closes the progress file
func (p *ProgressWriter) Close() error {
	p.writer.Flush()
	if err := p.writer.Error(); err != nil {
		p.file.Close()
		return err
	}
	return p.file.Close()
}
