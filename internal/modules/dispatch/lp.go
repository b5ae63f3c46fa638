package dispatch

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// simplexTol is the pivot tolerance passed to the simplex solver.
const simplexTol = 1e-10

// ErrInfeasible is returned when a linear program has no optimal solution.
// The run must fail fatally on it - retrying an infeasible program cannot
// succeed without changing inputs, so there is no partial-result mode.
var ErrInfeasible = errors.New("linear program is infeasible or unbounded")

// Program assembles a linear program in standard form:
//
//	minimise  c·x  subject to  Ax = b, x >= 0
//
// Inequality constraints are expressed by the caller adding an explicit
// slack column to the row. Solving returns both the primal solution and the
// dual values of every row, recovered by solving the dual program
//
//	maximise  b·y  subject to  Aᵀy <= c, y free
//
// with the same simplex routine (y split into positive and negative parts).
type Program struct {
	costs []float64
	rows  []map[int]float64
	rhs   []float64
}

func NewProgram() *Program {
	return &Program{}
}

// Column adds a decision variable with the given objective cost and returns
// its index.
func (p *Program) Column(cost float64) int {
	p.costs = append(p.costs, cost)
	return len(p.costs) - 1
}

// Row adds an equality constraint with the given right-hand side and returns
// its index.
func (p *Program) Row(rhs float64) int {
	p.rows = append(p.rows, make(map[int]float64))
	p.rhs = append(p.rhs, rhs)
	return len(p.rows) - 1
}

// Add accumulates a coefficient into a constraint cell.
func (p *Program) Add(row, col int, v float64) {
	p.rows[row][col] += v
}

// LPSolution holds the optimum of a solved program.
type LPSolution struct {
	Objective float64
	X         []float64
	Duals     []float64
}

// Solve runs the simplex on the program and recovers row duals.
func (p *Program) Solve() (*LPSolution, error) {
	n := len(p.costs)
	m := len(p.rows)
	if n == 0 || m == 0 {
		return &LPSolution{X: make([]float64, n), Duals: make([]float64, m)}, nil
	}

	a := mat.NewDense(m, n, nil)
	for i, row := range p.rows {
		for j, v := range row {
			a.Set(i, j, v)
		}
	}
	b := append([]float64(nil), p.rhs...)
	c := append([]float64(nil), p.costs...)

	obj, x, err := lp.Simplex(c, a, b, simplexTol, nil)
	if err != nil {
		if errors.Is(err, lp.ErrInfeasible) || errors.Is(err, lp.ErrUnbounded) {
			return nil, fmt.Errorf("%w: %v", ErrInfeasible, err)
		}
		return nil, fmt.Errorf("simplex failed: %w", err)
	}

	duals, err := p.solveDuals(a, b, c)
	if err != nil {
		return nil, err
	}

	return &LPSolution{Objective: obj, X: x, Duals: duals}, nil
}

// solveDuals solves the dual program in standard form. Variables are laid
// out as [y+ (m), y- (m), s (n)] with Aᵀ(y+ - y-) + s = c and objective
// minimise -b·y+ + b·y-.
func (p *Program) solveDuals(a *mat.Dense, b, c []float64) ([]float64, error) {
	n := len(c)
	m := len(b)

	cols := 2*m + n
	dualC := make([]float64, cols)
	for j := 0; j < m; j++ {
		dualC[j] = -b[j]
		dualC[m+j] = b[j]
	}

	d := mat.NewDense(n, cols, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			v := a.At(j, i)
			if v != 0 {
				d.Set(i, j, v)
				d.Set(i, m+j, -v)
			}
		}
		d.Set(i, 2*m+i, 1)
	}

	_, y, err := lp.Simplex(dualC, d, append([]float64(nil), c...), simplexTol, nil)
	if err != nil {
		// Strong duality guarantees a solvable dual for a solved primal;
		// hitting this indicates a degenerate numerical failure.
		return nil, fmt.Errorf("failed to recover dual values: %w", err)
	}

	duals := make([]float64, m)
	for j := 0; j < m; j++ {
		duals[j] = y[j] - y[m+j]
	}
	return duals, nil
}
