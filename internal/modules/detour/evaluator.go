// README: Detour evaluation: solve the route with and without a candidate and diff the totals.
package detour

import (
	"context"
	"fmt"
	"strings"

	"smartdispatch/internal/maps"
	"smartdispatch/internal/modules/routing"
)

type Evaluator struct {
	mapper  maps.Mapper
	solver  routing.Solver
	tactics maps.Tactics
}

func NewEvaluator(mapper maps.Mapper, solver routing.Solver, tactics maps.Tactics) *Evaluator {
	return &Evaluator{mapper: mapper, solver: solver, tactics: tactics}
}

// Evaluate computes the extra drive time of adding cand to the driver's
// committed route. An infeasible merge is reported in the result, mapping
// failures as errors.
func (e *Evaluator) Evaluate(ctx context.Context, driver DriverState, cand OrderCandidate) (*Result, error) {
	sc, err := e.Prepare(ctx, driver, cand)
	if err != nil {
		return nil, err
	}
	return sc.Detour(ctx)
}

// Prepare geocodes every stop once and fetches a single matrix covering the
// committed route plus the candidate.
func (e *Evaluator) Prepare(ctx context.Context, driver DriverState, cand OrderCandidate) (*Scenario, error) {
	if err := driver.Validate(); err != nil {
		return nil, err
	}
	sc := newScenario(e, driver, &cand)
	if err := sc.load(ctx, e.tactics); err != nil {
		return nil, err
	}
	return sc, nil
}

// Preview solves the committed route alone.
func (e *Evaluator) Preview(ctx context.Context, driver DriverState, tactics maps.Tactics) (*Preview, error) {
	if err := driver.Validate(); err != nil {
		return nil, err
	}
	sc := newScenario(e, driver, nil)
	if err := sc.load(ctx, tactics); err != nil {
		return nil, err
	}
	order, total, err := sc.solve(ctx, 0, sc.committed())
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: committed route has no valid order", ErrInvalidRequest)
	}
	return &Preview{Route: sc.addressesOf(order), TotalSeconds: total}, nil
}

// Scenario holds the geocoded nodes and matrix for one driver and
// candidate. Node layout:
//
//	0                 driver location
//	1..a              pickups of riders not yet aboard
//	a+1               candidate pickup
//	a+2..a+1+k        committed deliveries
//	a+2+k             candidate delivery
//
// Without a candidate the two candidate nodes are omitted.
type Scenario struct {
	e          *Evaluator
	addrs      []string
	matrix     routing.Matrix
	pairs      []routing.Pair
	deliveries []int
	candPickup int
	candDrop   int
}

func newScenario(e *Evaluator, driver DriverState, cand *OrderCandidate) *Scenario {
	sc := &Scenario{e: e, candPickup: -1, candDrop: -1}
	sc.addrs = append(sc.addrs, strings.TrimSpace(driver.Location))

	pickupNode := make([]int, len(driver.Pickups))
	for i, p := range driver.Pickups {
		pickupNode[i] = -1
		if strings.TrimSpace(p) != "" {
			pickupNode[i] = len(sc.addrs)
			sc.addrs = append(sc.addrs, strings.TrimSpace(p))
		}
	}
	if cand != nil {
		sc.candPickup = len(sc.addrs)
		sc.addrs = append(sc.addrs, cand.Pickup)
	}
	for i, d := range driver.Deliveries {
		node := len(sc.addrs)
		sc.addrs = append(sc.addrs, strings.TrimSpace(d))
		sc.deliveries = append(sc.deliveries, node)
		sc.pairs = append(sc.pairs, routing.Pair{Pickup: pickupNode[i], Delivery: node})
	}
	if cand != nil {
		sc.candDrop = len(sc.addrs)
		sc.addrs = append(sc.addrs, cand.Delivery)
	}
	return sc
}

func (sc *Scenario) load(ctx context.Context, tactics maps.Tactics) error {
	points, err := maps.GeocodeAll(ctx, sc.e.mapper, sc.addrs)
	if err != nil {
		return err
	}
	m, err := sc.e.mapper.DurationMatrix(ctx, points, tactics)
	if err != nil {
		return err
	}
	if len(m) != len(points) {
		return fmt.Errorf("%w: got %d rows for %d stops", maps.ErrMatrixUnavailable, len(m), len(points))
	}
	if err := routing.Matrix(m).Validate(); err != nil {
		return fmt.Errorf("%w: %v", maps.ErrMatrixUnavailable, err)
	}
	sc.matrix = m
	return nil
}

// Addresses returns the node addresses in layout order.
func (sc *Scenario) Addresses() []string {
	return sc.addrs
}

func (sc *Scenario) Matrix() routing.Matrix {
	return sc.matrix
}

// HasDeliveries reports whether the driver has drop-offs still to make.
func (sc *Scenario) HasDeliveries() bool {
	return len(sc.deliveries) > 0
}

// Detour compares the full committed route against the route including the
// candidate, both starting at the driver's location.
func (sc *Scenario) Detour(ctx context.Context) (*Result, error) {
	return sc.detourFrom(ctx, 0, sc.committed(), nil)
}

// NextDrop predicts the handoff: the delivery reachable soonest from the
// current location.
func (sc *Scenario) NextDrop() (Handoff, bool) {
	best := Handoff{Node: -1}
	for i, d := range sc.deliveries {
		secs := sc.matrix[0][d]
		if p := sc.pairs[i].Pickup; p > 0 {
			secs = sc.matrix[0][p] + sc.matrix[p][d]
		}
		if best.Node < 0 || secs < best.Seconds {
			best = Handoff{Node: d, Address: sc.addrs[d], Seconds: secs}
		}
	}
	return best, best.Node >= 0
}

// SecondsToPickup is the drive time from node to the candidate pickup.
func (sc *Scenario) SecondsToPickup(from int) int64 {
	return sc.matrix[from][sc.candPickup]
}

// DetourFrom solves the reduced problem that starts at the handoff: the
// stops still left after that drop-off, with and without the candidate.
func (sc *Scenario) DetourFrom(ctx context.Context, h Handoff) (*Result, error) {
	skip := map[int]bool{h.Node: true}
	for _, p := range sc.pairs {
		if p.Delivery == h.Node && p.Pickup > 0 {
			skip[p.Pickup] = true
		}
	}
	var rest []int
	for _, v := range sc.committed() {
		if !skip[v] {
			rest = append(rest, v)
		}
	}
	return sc.detourFrom(ctx, h.Node, rest, skip)
}

func (sc *Scenario) detourFrom(ctx context.Context, origin int, base []int, skip map[int]bool) (*Result, error) {
	if sc.candPickup < 0 {
		return nil, fmt.Errorf("%w: no candidate to evaluate", ErrInvalidRequest)
	}
	baseOrder, baseTotal, err := sc.solve(ctx, origin, base)
	if err != nil {
		return nil, err
	}
	ext := append(append([]int(nil), base...), sc.candPickup, sc.candDrop)
	extOrder, extTotal, err := sc.solve(ctx, origin, ext)
	if err != nil {
		return nil, err
	}
	if extOrder == nil || baseOrder == nil {
		return &Result{Infeasible: true}, nil
	}
	return &Result{
		ExtraSeconds:    extTotal - baseTotal,
		BaselineSeconds: baseTotal,
		ExtendedSeconds: extTotal,
		Route:           sc.addressesOf(extOrder),
	}, nil
}

// committed lists every committed stop node.
func (sc *Scenario) committed() []int {
	var nodes []int
	for _, p := range sc.pairs {
		if p.Pickup > 0 {
			nodes = append(nodes, p.Pickup)
		}
	}
	return append(nodes, sc.deliveries...)
}

// solve runs the optimizer over origin plus nodes and returns the order in
// scenario node numbers. Pairs whose pickup is outside the node set are
// treated as riders already aboard.
func (sc *Scenario) solve(ctx context.Context, origin int, nodes []int) ([]int, int64, error) {
	local := make([]int, 0, len(nodes)+1)
	local = append(local, origin)
	local = append(local, nodes...)
	index := make(map[int]int, len(local))
	for i, v := range local {
		index[v] = i
	}

	all := sc.pairs
	if sc.candPickup >= 0 {
		all = append(append([]routing.Pair(nil), sc.pairs...), routing.Pair{Pickup: sc.candPickup, Delivery: sc.candDrop})
	}
	var pairs []routing.Pair
	for _, p := range all {
		d, ok := index[p.Delivery]
		if !ok || d == 0 {
			continue
		}
		pk := -1
		if i, ok := index[p.Pickup]; ok && i > 0 {
			pk = i
		}
		pairs = append(pairs, routing.Pair{Pickup: pk, Delivery: d})
	}

	sol, err := routing.SolveOpen(ctx, sc.e.solver, sc.matrix.Sub(local), pairs)
	if err != nil {
		return nil, 0, fmt.Errorf("solve route: %w", err)
	}
	if sol == nil {
		return nil, 0, nil
	}
	order := make([]int, len(sol.Order))
	for i, v := range sol.Order {
		order[i] = local[v]
	}
	return order, sol.TotalSeconds, nil
}

func (sc *Scenario) addressesOf(order []int) []string {
	out := make([]string, len(order))
	for i, v := range order {
		out[i] = sc.addrs[v]
	}
	return out
}
