// README: Single-vehicle pickup/delivery solver: cheapest insertion plus bounded local search.
package routing

import (
	"context"
	"time"
)

// Solver returns a minimum-time visiting order, or nil when the constraints
// cannot be satisfied. Infeasibility is not an error.
type Solver interface {
	Solve(ctx context.Context, m Matrix, pairs []Pair, mandatory []int) (*Solution, error)
}

type Options struct {
	MaxIterations int
	TimeBudget    time.Duration
	// Observe receives the duration of every solve and whether a route was found.
	Observe func(elapsed time.Duration, feasible bool)
}

func DefaultOptions() Options {
	return Options{MaxIterations: 2000, TimeBudget: 200 * time.Millisecond}
}

// InsertionSolver seeds a route at node 0 by cheapest insertion and then
// improves it with relocate and 2-opt moves that keep every pickup ahead of
// its delivery.
type InsertionSolver struct {
	opts Options
}

func NewInsertionSolver(opts Options) *InsertionSolver {
	def := DefaultOptions()
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = def.MaxIterations
	}
	if opts.TimeBudget <= 0 {
		opts.TimeBudget = def.TimeBudget
	}
	return &InsertionSolver{opts: opts}
}

// SolveOpen visits every non-origin node of m. Pairs missing a side add no
// precedence, which covers deliveries whose rider is already aboard.
func SolveOpen(ctx context.Context, s Solver, m Matrix, pairs []Pair) (*Solution, error) {
	mandatory := make([]int, 0, len(m))
	for i := 1; i < len(m); i++ {
		mandatory = append(mandatory, i)
	}
	active := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		if p.Pickup > 0 && p.Delivery > 0 {
			active = append(active, p)
		}
	}
	return s.Solve(ctx, m, active, mandatory)
}

func (s *InsertionSolver) Solve(ctx context.Context, m Matrix, pairs []Pair, mandatory []int) (sol *Solution, err error) {
	start := time.Now()
	if s.opts.Observe != nil {
		defer func() {
			if err == nil {
				s.opts.Observe(time.Since(start), sol != nil)
			}
		}()
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	p, ok := newProblem(m, pairs, mandatory)
	if !ok {
		return nil, nil
	}

	route := p.construct()

	deadline := start.Add(s.opts.TimeBudget)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	route = p.improve(ctx, route, s.opts.MaxIterations, deadline)

	total := m.Cost(route)
	if total > MaxRouteSeconds {
		return nil, nil
	}
	return &Solution{Order: route, TotalSeconds: total}, nil
}
