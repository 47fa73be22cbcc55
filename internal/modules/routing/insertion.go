package routing

import "sort"

// unit is what gets inserted in one step: a pickup/delivery pair, or a single
// node when second is -1.
type unit struct {
	first  int
	second int
}

type problem struct {
	m          Matrix
	units      []unit
	deliveryOf []int
	pickupOf   []int
}

// newProblem rejects malformed constraints: out-of-range nodes, pairs that
// touch the origin or reuse a node. Pair nodes are always visited.
func newProblem(m Matrix, pairs []Pair, mandatory []int) (*problem, bool) {
	n := len(m)
	p := &problem{
		m:          m,
		deliveryOf: make([]int, n),
		pickupOf:   make([]int, n),
	}
	for i := range p.deliveryOf {
		p.deliveryOf[i] = -1
		p.pickupOf[i] = -1
	}

	inPair := make([]bool, n)
	for _, pr := range pairs {
		if pr.Pickup <= 0 || pr.Pickup >= n || pr.Delivery <= 0 || pr.Delivery >= n || pr.Pickup == pr.Delivery {
			return nil, false
		}
		if inPair[pr.Pickup] || inPair[pr.Delivery] {
			return nil, false
		}
		inPair[pr.Pickup], inPair[pr.Delivery] = true, true
		p.deliveryOf[pr.Pickup] = pr.Delivery
		p.pickupOf[pr.Delivery] = pr.Pickup
		p.units = append(p.units, unit{first: pr.Pickup, second: pr.Delivery})
	}

	seen := make([]bool, n)
	var singles []int
	for _, v := range mandatory {
		if v < 0 || v >= n {
			return nil, false
		}
		if v == 0 || seen[v] || inPair[v] {
			continue
		}
		seen[v] = true
		singles = append(singles, v)
	}
	sort.Ints(singles)
	for _, v := range singles {
		p.units = append(p.units, unit{first: v, second: -1})
	}
	return p, true
}

// construct runs parallel cheapest insertion: every step inserts whichever
// remaining unit is cheapest at its best position. Ties go to the earlier
// unit and the earlier position.
func (p *problem) construct() []int {
	route := []int{0}
	pending := append([]unit(nil), p.units...)
	for len(pending) > 0 {
		bestK, bestI, bestJ := -1, 0, 0
		var bestDelta int64
		for k, u := range pending {
			i, j, delta := p.bestInsertion(route, u)
			if bestK < 0 || delta < bestDelta {
				bestK, bestI, bestJ, bestDelta = k, i, j, delta
			}
		}
		route = insertUnit(route, pending[bestK], bestI, bestJ)
		pending = append(pending[:bestK], pending[bestK+1:]...)
	}
	return route
}

// bestInsertion finds where u is cheapest to insert. The first node goes
// after route[i]; for a pair the second goes after route[j] (j >= i, and
// j == i means directly after the first).
func (p *problem) bestInsertion(route []int, u unit) (int, int, int64) {
	bestI, bestJ := -1, -1
	var best int64
	L := len(route)
	for i := 0; i < L; i++ {
		if u.second < 0 {
			d := p.insertDelta(route, i, u.first)
			if bestI < 0 || d < best {
				bestI, bestJ, best = i, i, d
			}
			continue
		}
		for j := i; j < L; j++ {
			var d int64
			if j == i {
				d = p.m.Arc(route[i], u.first) + p.m.Arc(u.first, u.second)
				if i+1 < L {
					d += p.m.Arc(u.second, route[i+1]) - p.m.Arc(route[i], route[i+1])
				}
			} else {
				d = p.insertDelta(route, i, u.first) + p.insertDelta(route, j, u.second)
			}
			if bestI < 0 || d < best {
				bestI, bestJ, best = i, j, d
			}
		}
	}
	return bestI, bestJ, best
}

// insertDelta is the cost change of placing x right after route[i].
func (p *problem) insertDelta(route []int, i, x int) int64 {
	d := p.m.Arc(route[i], x)
	if i+1 < len(route) {
		d += p.m.Arc(x, route[i+1]) - p.m.Arc(route[i], route[i+1])
	}
	return d
}

func insertUnit(route []int, u unit, i, j int) []int {
	out := make([]int, 0, len(route)+2)
	for k := 0; k < len(route); k++ {
		out = append(out, route[k])
		if k == i {
			out = append(out, u.first)
			if u.second >= 0 && j == i {
				out = append(out, u.second)
			}
		}
		if u.second >= 0 && k == j && j != i {
			out = append(out, u.second)
		}
	}
	return out
}

// respectsPrecedence reports whether every pickup precedes its delivery and
// the route still starts at the origin.
func (p *problem) respectsPrecedence(route []int) bool {
	if len(route) == 0 || route[0] != 0 {
		return false
	}
	pos := make([]int, len(p.m))
	for i, v := range route {
		pos[v] = i
	}
	for _, u := range p.units {
		if u.second >= 0 && pos[u.first] >= pos[u.second] {
			return false
		}
	}
	return true
}
