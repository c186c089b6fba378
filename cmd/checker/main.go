package main

import (
	"fmt"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/devrev/clustercheck/internal/config"
	"github.com/devrev/clustercheck/internal/engine"
	"github.com/devrev/clustercheck/internal/metrics"
	"github.com/devrev/clustercheck/internal/report"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting cluster control-plane checker",
		zap.String("mode", cfg.Check.Mode),
		zap.String("consistency", cfg.Check.Consistency),
		zap.Int("schedulers", cfg.Cluster.Schedulers),
		zap.Int("controllers", cfg.Cluster.Controllers),
		zap.Int("clients", cfg.Cluster.Clients),
		zap.Int("nodes", len(cfg.Cluster.Nodes)),
		zap.Int("workload_ops", len(cfg.Workload.Ops)))

	// Initialize metrics
	m := metrics.NewMetrics(cfg.Check.Mode)

	// Build the modelled cluster
	cluster, err := engine.BuildCluster(cfg)
	if err != nil {
		logger.Fatal("Failed to build cluster", zap.Error(err))
	}
	logger.Info("Cluster built",
		zap.Int("actors", len(cluster.Actors)),
		zap.Int("candidate_partitions", len(cluster.Partitions)))

	eng, err := engine.New(cluster.Actors, cluster.Contract, cluster.Partitions, engine.Config{
		MaxDepth:      cfg.Check.MaxDepth,
		MaxStates:     cfg.Check.MaxStates,
		Rollouts:      cfg.Check.Rollouts,
		MaxSteps:      cfg.Check.MaxSteps,
		Seed:          cfg.Check.Seed,
		MaxDrops:      cfg.Check.MaxDrops,
		MaxPartitions: cfg.Check.MaxPartitions,
		Workers:       cfg.Check.Workers,
	}, logger, m)
	if err != nil {
		logger.Fatal("Failed to create engine", zap.Error(err))
	}

	var progress *report.ProgressWriter
	if cfg.Report.ProgressPath != "" {
		progress, err = report.NewProgressWriter(cfg.Report.ProgressPath)
		if err != nil {
			logger.Fatal("Failed to create progress writer", zap.Error(err))
		}
		defer progress.Close()
	}

	var rep *report.Report
	switch cfg.Check.Mode {
	case config.ModeDFS:
		rep, err = eng.RunDFS(progress)
	case config.ModeSimulation:
		rep, err = eng.RunSimulation(progress)
	}
	if err != nil {
		logger.Fatal("Checking run failed", zap.Error(err))
	}

	if err := report.WriteYAML(cfg.Report.Path, rep); err != nil {
		logger.Fatal("Failed to write report", zap.Error(err))
	}
	logger.Info("Report written", zap.String("path", cfg.Report.Path))

	if rep.Passed() {
		logger.Info("All properties hold within the explored bounds")
		return
	}

	var verdict error
	for _, v := range rep.Violations {
		verdict = multierr.Append(verdict, fmt.Errorf("%s violation of %q: %s", v.Kind, v.Property, v.Message))
	}
	if rep.Inconclusive {
		verdict = multierr.Append(verdict, fmt.Errorf("run inconclusive: %s", rep.InconclusiveReason))
	}
	logger.Error("Checking run did not pass", zap.Error(verdict))
	os.Exit(1)
}

func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = level
	if cfg.Format == "console" {
		zc.Encoding = "console"
	}
	return zc.Build()
}
