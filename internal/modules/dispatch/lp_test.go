package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgram_SolveWithDuals(t *testing.T) {
	// minimise 2x + 3y subject to x + y = 10, x + slack = 6 (x <= 6).
	p := NewProgram()
	x := p.Column(2)
	y := p.Column(3)
	slack := p.Column(0)

	r1 := p.Row(10)
	p.Add(r1, x, 1)
	p.Add(r1, y, 1)

	r2 := p.Row(6)
	p.Add(r2, x, 1)
	p.Add(r2, slack, 1)

	sol, err := p.Solve()
	require.NoError(t, err)

	assert.InDelta(t, 6, sol.X[x], tol)
	assert.InDelta(t, 4, sol.X[y], tol)
	assert.InDelta(t, 24, sol.Objective, tol)

	// Marginal value of the balance row is the cost of the marginal
	// variable y; the binding bound on the cheaper x earns the difference.
	assert.InDelta(t, 3, sol.Duals[r1], tol)
	assert.InDelta(t, -1, sol.Duals[r2], tol)
}

func TestProgram_Infeasible(t *testing.T) {
	// x = 5 and x = 7 cannot both hold.
	p := NewProgram()
	x := p.Column(1)
	r1 := p.Row(5)
	p.Add(r1, x, 1)
	r2 := p.Row(7)
	p.Add(r2, x, 1)

	_, err := p.Solve()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInfeasible)
}

func TestProgram_Empty(t *testing.T) {
	p := NewProgram()
	sol, err := p.Solve()
	require.NoError(t, err)
	assert.Zero(t, sol.Objective)
}
