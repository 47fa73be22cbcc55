package routing

import (
	"context"
	"time"
)

// improve applies first-improvement moves until none helps, the iteration
// budget is spent, or the deadline passes. The best route so far is always
// returned, so an expired deadline degrades quality, never feasibility.
func (p *problem) improve(ctx context.Context, route []int, maxIter int, deadline time.Time) []int {
	if len(route) < 3 {
		return route
	}
	cost := p.m.Cost(route)
	for iter := 0; iter < maxIter; iter++ {
		if ctx.Err() != nil || time.Now().After(deadline) {
			break
		}
		next, nextCost, ok := p.relocate(route, cost)
		if !ok {
			next, nextCost, ok = p.relocatePair(route, cost)
		}
		if !ok {
			next, nextCost, ok = p.twoOpt(route, cost)
		}
		if !ok {
			break
		}
		route, cost = next, nextCost
	}
	return route
}

// relocate moves one node to another position (or-opt of length 1).
func (p *problem) relocate(route []int, cost int64) ([]int, int64, bool) {
	L := len(route)
	buf := make([]int, L)
	for a := 1; a < L; a++ {
		x := route[a]
		rest := make([]int, 0, L-1)
		rest = append(rest, route[:a]...)
		rest = append(rest, route[a+1:]...)
		for b := 0; b < len(rest); b++ {
			if b == a-1 {
				continue
			}
			buf = buf[:0]
			buf = append(buf, rest[:b+1]...)
			buf = append(buf, x)
			buf = append(buf, rest[b+1:]...)
			if !p.respectsPrecedence(buf) {
				continue
			}
			if c := p.m.Cost(buf); c < cost {
				return append([]int(nil), buf...), c, true
			}
		}
	}
	return nil, 0, false
}

// relocatePair lifts a pickup together with its delivery and reinserts both
// at their cheapest positions.
func (p *problem) relocatePair(route []int, cost int64) ([]int, int64, bool) {
	for _, u := range p.units {
		if u.second < 0 {
			continue
		}
		rest := make([]int, 0, len(route)-2)
		for _, v := range route {
			if v != u.first && v != u.second {
				rest = append(rest, v)
			}
		}
		i, j, _ := p.bestInsertion(rest, u)
		cand := insertUnit(rest, u, i, j)
		if c := p.m.Cost(cand); c < cost {
			return cand, c, true
		}
	}
	return nil, 0, false
}

// twoOpt reverses route[i..j]. With asymmetric durations the inner arcs
// change too, so candidates are re-costed in full.
func (p *problem) twoOpt(route []int, cost int64) ([]int, int64, bool) {
	L := len(route)
	buf := make([]int, L)
	for i := 1; i < L-1; i++ {
		for j := i + 1; j < L; j++ {
			copy(buf, route)
			for lo, hi := i, j; lo < hi; lo, hi = lo+1, hi-1 {
				buf[lo], buf[hi] = buf[hi], buf[lo]
			}
			if !p.respectsPrecedence(buf) {
				continue
			}
			if c := p.m.Cost(buf); c < cost {
				return append([]int(nil), buf...), c, true
			}
		}
	}
	return nil, 0, false
}
