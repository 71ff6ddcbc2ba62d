package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"coderag/internal/domain"
)

// DefaultMaxSteps bounds the node executions of one run.
const DefaultMaxSteps = 20

// ErrStepLimit is returned when a run would exceed its step ceiling.
var ErrStepLimit = errors.New("step limit exceeded")

// StageError wraps the failure of a single node.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// Orchestrator runs a session through a graph in supersteps.
type Orchestrator struct {
	graph    *Graph
	maxSteps int
	log      *zap.Logger
}

func NewOrchestrator(g *Graph, maxSteps int, log *zap.Logger) (*Orchestrator, error) {
	if g == nil {
		return nil, errors.New("nil graph")
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	if maxSteps < 1 {
		maxSteps = DefaultMaxSteps
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{graph: g, maxSteps: maxSteps, log: log.Named("pipeline")}, nil
}

// Run drives state through the graph until a route returns End or no node
// is ready. Every ready node of a superstep runs concurrently on the same
// snapshot; their updates are merged in declaration order. When a route
// fires, the cycle-scoped state is cleared before the next cycle starts or
// the run ends.
func (o *Orchestrator) Run(ctx context.Context, state domain.State) (domain.State, error) {
	log := o.log.With(zap.String("run_id", uuid.NewString()))
	log.Info("run started", zap.Int("max_steps", o.maxSteps))

	var (
		steps     int
		cycle     = 1
		start     = o.graph.entry
		completed = make(map[string]bool)
	)
	for {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		ready := o.graph.ready(completed, start)
		if len(ready) == 0 {
			log.Info("run finished", zap.Int("steps", steps), zap.String("reason", "no ready nodes"))
			return state, nil
		}
		if steps+len(ready) > o.maxSteps {
			log.Error("step limit exceeded", zap.Int("steps", steps), zap.Strings("pending", ready))
			return state, fmt.Errorf("%w: %d", ErrStepLimit, o.maxSteps)
		}
		steps += len(ready)

		updates, err := o.superstep(ctx, log.With(zap.Int("cycle", cycle)), state, ready)
		if err != nil {
			return state, err
		}
		for i, name := range ready {
			state = state.Apply(updates[i])
			completed[name] = true
		}

		for _, name := range ready {
			r, ok := o.graph.routes[name]
			if !ok {
				continue
			}
			next, err := r.fn(state)
			if err != nil {
				return state, &StageError{Stage: name, Err: fmt.Errorf("route: %w", err)}
			}
			if !r.allows(next) {
				return state, &StageError{Stage: name, Err: fmt.Errorf("route to undeclared target %q", next)}
			}
			state = state.ResetCycle()
			if err := state.ValidateCycleReset(); err != nil {
				return state, err
			}
			log.Info("cycle closed", zap.Int("cycle", cycle), zap.String("status", string(state.Status)), zap.String("next", next))
			if next == End {
				log.Info("run finished", zap.Int("steps", steps), zap.Int("cycles", cycle))
				return state, nil
			}
			cycle++
			start = next
			completed = make(map[string]bool)
			break
		}
	}
}

// superstep runs names concurrently and returns their updates in the same
// order. The first real failure in declaration order is reported.
func (o *Orchestrator) superstep(ctx context.Context, log *zap.Logger, snapshot domain.State, names []string) ([]domain.Update, error) {
	updates := make([]domain.Update, len(names))
	errs := make([]error, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		node := o.graph.nodes[name]
		g.Go(func() error {
			nlog := log.With(zap.String("node", name))
			nlog.Info("node started")
			began := time.Now()
			u, err := node.Run(gctx, snapshot)
			if err != nil {
				nlog.Error("node failed", zap.Duration("elapsed", time.Since(began)), zap.Error(err))
				errs[i] = err
				return err
			}
			nlog.Info("node finished", zap.Duration("elapsed", time.Since(began)), zap.Bool("changed", !u.IsZero()))
			updates[i] = u
			return nil
		})
	}
	if err := g.Wait(); err == nil {
		return updates, nil
	}

	// Siblings of a failed node see a canceled context; report the cause.
	failed := -1
	for i, err := range errs {
		if err == nil {
			continue
		}
		if failed < 0 || (errors.Is(errs[failed], context.Canceled) && !errors.Is(err, context.Canceled)) {
			failed = i
		}
	}
	return nil, &StageError{Stage: names[failed], Err: errs[failed]}
}

func (r route) allows(target string) bool {
	for _, t := range r.targets {
		if t == target {
			return true
		}
	}
	return false
}
