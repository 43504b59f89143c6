package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"

	"route-optimizer/internal/models"
)

// symTol is the relative tolerance for symmetry checks on caller-supplied tables
const symTol = 1e-9

// DistanceFunc returns the distance between two coordinates. It may block on a
// network call; the optimizer never assumes which metric it implements.
type DistanceFunc func(ctx context.Context, a, b models.Coordinates) (float64, error)

// Distances is a pairwise distance source indexed by waypoint position
type Distances interface {
	Len() int
	At(i, j int) float64
}

// DistanceMatrix is an n×n symmetric table with a zero diagonal.
// It is read-only once built.
//
// A pair reported as +Inf (no route) is stored as a finite penalty longer
// than any tour made only of reachable legs, so every solver keeps working
// in finite arithmetic and still prefers a fully reachable tour.
type DistanceMatrix struct {
	n           int
	sym         *mat.SymDense
	penalty     float64
	unreachable int
}

// BuildMatrix evaluates fn once for every unordered pair i<j and mirrors the
// result. The first failing pair aborts the build, as does a done ctx.
func BuildMatrix(ctx context.Context, waypoints []models.Waypoint, fn DistanceFunc) (*DistanceMatrix, error) {
	n := len(waypoints)
	rows := zeroRows(n)

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			d, err := fn(ctx, waypoints[i].Coords, waypoints[j].Coords)
			if err != nil {
				return nil, &ErrDistanceUnavailable{From: i, To: j, Err: err}
			}
			if err := checkDistance(d); err != nil {
				return nil, &ErrDistanceUnavailable{From: i, To: j, Err: err}
			}
			rows[i][j], rows[j][i] = d, d
		}
	}

	return NewMatrixFromRows(rows)
}

// NewMatrixFromRows validates a precomputed table and copies it into a matrix.
// +Inf entries mark unreachable pairs and must be mirrored.
func NewMatrixFromRows(rows [][]float64) (*DistanceMatrix, error) {
	n := len(rows)
	if n == 0 {
		return &DistanceMatrix{}, nil
	}

	maxFinite := 0.0
	unreachable := 0
	for i := 0; i < n; i++ {
		if len(rows[i]) != n {
			return nil, fmt.Errorf("distance table is not square: row %d has %d entries, want %d: %w",
				i, len(rows[i]), n, mat.ErrSquare)
		}
		if rows[i][i] != 0 {
			return nil, fmt.Errorf("distance table diagonal [%d][%d] is %v, want 0", i, i, rows[i][i])
		}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			up, down := rows[i][j], rows[j][i]
			for _, d := range [2]float64{up, down} {
				if err := checkDistance(d); err != nil {
					return nil, &ErrDistanceUnavailable{From: i, To: j, Err: err}
				}
			}
			if math.IsInf(up, 1) || math.IsInf(down, 1) {
				if up != down {
					return nil, asymmetryError(i, j, up, down)
				}
				unreachable++
				continue
			}
			if !scalar.EqualWithinAbsOrRel(up, down, symTol, symTol) {
				return nil, asymmetryError(i, j, up, down)
			}
			maxFinite = math.Max(maxFinite, up)
		}
	}

	penalty := unreachablePenalty(n, maxFinite)
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := rows[i][j]
			if math.IsInf(d, 1) {
				d = penalty
			}
			sym.SetSym(i, j, d)
		}
	}

	return &DistanceMatrix{n: n, sym: sym, penalty: penalty, unreachable: unreachable}, nil
}

func asymmetryError(i, j int, up, down float64) error {
	return fmt.Errorf("distance table is not symmetric at [%d][%d]: %v vs %v", i, j, up, down)
}

// unreachablePenalty exceeds the longest possible closed loop over reachable
// legs, n·maxFinite, so one unreachable leg always costs more than any detour.
func unreachablePenalty(n int, maxFinite float64) float64 {
	return float64(n+1) * math.Max(1, maxFinite)
}

func zeroRows(n int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
	}
	return rows
}

// Len returns the number of waypoints
func (m *DistanceMatrix) Len() int {
	return m.n
}

// At returns the distance between waypoints i and j
func (m *DistanceMatrix) At(i, j int) float64 {
	return m.sym.At(i, j)
}

// Unreachable reports whether the pair i, j had no route
func (m *DistanceMatrix) Unreachable(i, j int) bool {
	return m.unreachable > 0 && i != j && m.At(i, j) >= m.penalty
}

var (
	errNegativeDistance = errors.New("negative distance")
	errNaNDistance      = errors.New("distance is NaN")
)

func checkDistance(d float64) error {
	if math.IsNaN(d) {
		return errNaNDistance
	}
	if d < 0 {
		return errNegativeDistance
	}
	return nil
}
