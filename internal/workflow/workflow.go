// Package workflow provides a small directed-graph executor for agent
// state machines. Nodes are named step functions over a shared typed
// state; edges are either fixed or chosen by a selector function of the
// state. Steps execute strictly sequentially within one run, so state
// mutation races are impossible by construction. Independent runs may
// execute concurrently since a Graph holds no per-run state.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// End is the terminal marker. A node whose edge resolves to End halts
// the run.
const End = "__end__"

// DefaultMaxSteps bounds one run. Graph-level loops (research refinement,
// agent/tool ping-pong) are expected to terminate on their own routing
// rules well before this; the cap is the backstop that turns a routing
// bug into an error instead of an infinite loop.
const DefaultMaxSteps = 50

// State is the constraint every workflow state must satisfy. The engine
// calls Advance when a step begins and RecordError when a step fails, so
// every step is observable: it either advances the step tag or appends
// an error, never silently does nothing.
type State interface {
	Advance(step string)
	RecordError(err error)
}

// StepFunc is one node's work. It mutates the state in place and returns
// an error on failure. A returned error (or panic) is trapped at the
// step boundary, recorded on the state, and the run continues along the
// node's edge.
type StepFunc[S State] func(ctx context.Context, state S) error

// Selector chooses the next node name from the current state. Selectors
// must be pure functions of the state: no side effects, no I/O.
type Selector[S State] func(state S) string

type node[S State] struct {
	fn   StepFunc[S]
	next Selector[S]

	// fixedNext holds the static target of AddNode edges so Validate can
	// check them; empty for conditional nodes.
	fixedNext string
}

// Graph is a compiled workflow definition. Build it once at startup and
// reuse it across runs; Run never mutates the Graph.
type Graph[S State] struct {
	name        string
	entry       string
	nodes       map[string]node[S]
	maxSteps    int
	stepTimeout time.Duration
	logger      *slog.Logger
}

// New creates an empty Graph.
func New[S State](name string, logger *slog.Logger) *Graph[S] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph[S]{
		name:     name,
		nodes:    make(map[string]node[S]),
		maxSteps: DefaultMaxSteps,
		logger:   logger,
	}
}

// AddNode adds a step with an unconditional edge to next.
// Use End as next to make the node terminal.
func (g *Graph[S]) AddNode(name string, fn StepFunc[S], next string) *Graph[S] {
	g.nodes[name] = node[S]{fn: fn, next: func(S) string { return next }, fixedNext: next}
	return g
}

// AddConditionalNode adds a step whose successor is chosen by selector.
func (g *Graph[S]) AddConditionalNode(name string, fn StepFunc[S], selector Selector[S]) *Graph[S] {
	g.nodes[name] = node[S]{fn: fn, next: selector}
	return g
}

// SetEntry designates the node execution starts at.
func (g *Graph[S]) SetEntry(name string) *Graph[S] {
	g.entry = name
	return g
}

// SetMaxSteps overrides the per-run step cap.
func (g *Graph[S]) SetMaxSteps(n int) *Graph[S] {
	if n > 0 {
		g.maxSteps = n
	}
	return g
}

// SetStepTimeout bounds each step's context. Zero (the default) leaves
// steps bounded only by the run context. A step hitting the deadline is
// treated like any other step failure: recorded, then the run continues.
func (g *Graph[S]) SetStepTimeout(d time.Duration) *Graph[S] {
	if d > 0 {
		g.stepTimeout = d
	}
	return g
}

// Validate checks the graph is runnable: an entry is set, every node
// exists, and every fixed edge points at a known node or End.
// Selector targets are checked at run time since they depend on state.
func (g *Graph[S]) Validate() error {
	if g.entry == "" {
		return fmt.Errorf("workflow %s: no entry node set", g.name)
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return fmt.Errorf("workflow %s: entry node %q not defined", g.name, g.entry)
	}
	for name, n := range g.nodes {
		if n.fn == nil {
			return fmt.Errorf("workflow %s: node %q has nil step function", g.name, name)
		}
		if n.fixedNext != "" && n.fixedNext != End {
			if _, ok := g.nodes[n.fixedNext]; !ok {
				return fmt.Errorf("workflow %s: node %q points at undefined node %q", g.name, name, n.fixedNext)
			}
		}
	}
	return nil
}

// Run executes the graph over state until a terminal edge or the step cap.
//
// Step failures (errors and panics) are recorded on the state and the
// run continues; only structural problems abort it: undefined nodes,
// an exceeded step cap, or context cancellation between steps.
func (g *Graph[S]) Run(ctx context.Context, state S) error {
	if err := g.Validate(); err != nil {
		return err
	}

	current := g.entry
	for steps := 0; ; steps++ {
		if steps >= g.maxSteps {
			return fmt.Errorf("workflow %s: exceeded %d steps at node %q", g.name, g.maxSteps, current)
		}

		// Cancellation is checked between steps, never mid-step.
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("workflow %s: canceled before node %q: %w", g.name, current, err)
		}

		n, ok := g.nodes[current]
		if !ok {
			return fmt.Errorf("workflow %s: undefined node %q", g.name, current)
		}

		state.Advance(current)

		start := time.Now()
		if err := g.runStep(ctx, current, n.fn, state); err != nil {
			state.RecordError(fmt.Errorf("%s: %w", current, err))
			g.logger.Warn("workflow step failed, continuing",
				"workflow", g.name, "step", current, "error", err)
		}
		g.logger.Debug("workflow step completed",
			"workflow", g.name, "step", current, "elapsed", time.Since(start))

		next := n.next(state)
		if next == End {
			return nil
		}
		current = next
	}
}

// runStep invokes one step function with panic recovery.
func (g *Graph[S]) runStep(ctx context.Context, name string, fn StepFunc[S], state S) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in step %s: %v", name, r)
		}
	}()
	if g.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.stepTimeout)
		defer cancel()
	}
	return fn(ctx, state)
}
