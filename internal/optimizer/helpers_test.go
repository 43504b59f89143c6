package optimizer

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"route-optimizer/internal/models"
)

// planar treats Lat/Lng as x/y so expected lengths can be worked out by hand
func planar(_ context.Context, a, b models.Coordinates) (float64, error) {
	return math.Hypot(a.Lat-b.Lat, a.Lng-b.Lng), nil
}

func points(xy ...[2]float64) []models.Waypoint {
	wps := make([]models.Waypoint, len(xy))
	for i, p := range xy {
		wps[i] = models.Waypoint{Coords: models.Coordinates{Lat: p[0], Lng: p[1]}}
	}
	return wps
}

func mustMatrix(t *testing.T, wps []models.Waypoint) *DistanceMatrix {
	t.Helper()
	m, err := BuildMatrix(context.Background(), wps, planar)
	require.NoError(t, err)
	return m
}

// squareWithCenter is the perimeter-then-centre scenario: the best open path
// from (0,0) to (5,5) walks three sides of the square then cuts inward.
func squareWithCenter() []models.Waypoint {
	return points(
		[2]float64{0, 0},
		[2]float64{0, 10},
		[2]float64{10, 10},
		[2]float64{10, 0},
		[2]float64{5, 5},
	)
}

var squareWithCenterOptimum = 30 + math.Sqrt(50)

func requireFixedEndpointTour(t *testing.T, tour Tour, n int) {
	t.Helper()
	require.True(t, IsPermutation(tour, n), "tour %v is not a permutation of [0,%d)", tour, n)
	require.Equal(t, 0, tour[0], "start moved: %v", tour)
	require.Equal(t, n-1, tour[n-1], "end moved: %v", tour)
}

// lineWithMissingLink is six stops on a line, one unit apart, where the road
// between stops 1 and 2 is missing. The best path from 0 to 5 has length 7.
func lineWithMissingLink() [][]float64 {
	rows := make([][]float64, 6)
	for i := range rows {
		rows[i] = make([]float64, 6)
		for j := range rows[i] {
			rows[i][j] = math.Abs(float64(i - j))
		}
	}
	rows[1][2], rows[2][1] = math.Inf(1), math.Inf(1)
	return rows
}

const lineWithMissingLinkOptimum = 7.0

// rawDistances serves a table as-is, infinities included
type rawDistances [][]float64

func (r rawDistances) Len() int            { return len(r) }
func (r rawDistances) At(i, j int) float64 { return r[i][j] }

func requireReachable(t *testing.T, m *DistanceMatrix, tour Tour) {
	t.Helper()
	for k := 1; k < len(tour); k++ {
		require.False(t, m.Unreachable(tour[k-1], tour[k]), "tour %v uses unreachable leg %d→%d", tour, tour[k-1], tour[k])
	}
}
