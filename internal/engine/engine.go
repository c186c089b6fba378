package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/devrev/clustercheck/internal/actor"
	"github.com/devrev/clustercheck/internal/history"
	"github.com/devrev/clustercheck/internal/metrics"
	"github.com/devrev/clustercheck/internal/network"
)

// Config bounds the exploration. MaxDrops and MaxPartitions cap the number of
// faults injected per path, keeping the fault dimension of the state space
// finite.
type Config struct {
	MaxDepth      int
	MaxStates     int
	Rollouts      int
	MaxSteps      int
	Seed          int64
	MaxDrops      int
	MaxPartitions int
	Workers       int
}

// Engine drives exploration over a fixed set of actors. Actor slots are
// ordered by id so that global states encode canonically.
type Engine struct {
	actors     []actor.Actor
	index      map[string]int
	stores     map[string]bool
	clients    []int
	contract   history.Contract
	partitions []network.Partition
	props      []Property
	cfg        Config
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// New creates an engine over the given actors. The partitions slice lists the
// candidate partitions the fault model may activate.
func New(actors []actor.Actor, contract history.Contract, partitions []network.Partition,
	cfg Config, logger *zap.Logger, m *metrics.Metrics) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		actors:     actors,
		index:      make(map[string]int, len(actors)),
		stores:     make(map[string]bool),
		contract:   contract,
		partitions: partitions,
		props:      defaultProperties(),
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
	}
	for i, a := range actors {
		if _, dup := e.index[a.ID()]; dup {
			return nil, fmt.Errorf("duplicate actor id %q", a.ID())
		}
		e.index[a.ID()] = i
		switch a.(type) {
		case *actor.Datastore:
			e.stores[a.ID()] = true
		case *actor.Client:
			e.clients = append(e.clients, i)
		}
	}
	return e, nil
}

// AddProperty registers an additional property checked on every reached state
func (e *Engine) AddProperty(p Property) {
	e.props = append(e.props, p)
}

// initial builds the global state before any action has been taken
func (e *Engine) initial() *GlobalState {
	gs := &GlobalState{Actors: make([]actor.State, len(e.actors))}
	for i, a := range e.actors {
		gs.Actors[i] = a.Init()
	}
	return gs
}
