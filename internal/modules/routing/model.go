// README: Route model: duration matrix, pickup/delivery pairs and solutions.
package routing

import (
	"errors"
	"fmt"
)

// MaxRouteSeconds caps cumulative route time. A route above it is infeasible.
const MaxRouteSeconds int64 = 300000

var ErrInvalidMatrix = errors.New("invalid duration matrix")

// Matrix holds drive seconds between nodes. Node 0 is the driver's position.
// No triangle inequality is assumed.
type Matrix [][]int64

func (m Matrix) Validate() error {
	n := len(m)
	if n == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidMatrix)
	}
	for i, row := range m {
		if len(row) != n {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrInvalidMatrix, i, len(row), n)
		}
		if row[i] != 0 {
			return fmt.Errorf("%w: non-zero diagonal at %d", ErrInvalidMatrix, i)
		}
		for j, v := range row {
			if v < 0 {
				return fmt.Errorf("%w: negative duration at [%d][%d]", ErrInvalidMatrix, i, j)
			}
		}
	}
	return nil
}

// Arc is the cost of driving from -> to. Arcs back into the origin are free:
// the driver does not return home, only forward progress is measured.
func (m Matrix) Arc(from, to int) int64 {
	if to == 0 {
		return 0
	}
	return m[from][to]
}

// Cost sums the arcs along order.
func (m Matrix) Cost(order []int) int64 {
	var total int64
	for i := 1; i < len(order); i++ {
		total += m.Arc(order[i-1], order[i])
	}
	return total
}

// Sub extracts the matrix over nodes, keeping their order. nodes[0] becomes
// the new origin.
func (m Matrix) Sub(nodes []int) Matrix {
	out := make(Matrix, len(nodes))
	for i, from := range nodes {
		out[i] = make([]int64, len(nodes))
		for j, to := range nodes {
			out[i][j] = m[from][to]
		}
	}
	return out
}

// Pair binds a pickup node to its delivery node. A negative index marks a
// side that is no longer on the route (rider already aboard).
type Pair struct {
	Pickup   int
	Delivery int
}

// Solution is a visiting order starting at node 0 and its total drive time.
type Solution struct {
	Order        []int
	TotalSeconds int64
}
