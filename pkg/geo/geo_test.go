package geo

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject(t *testing.T) {
	p, err := Project(GeoPoint{Lat: 47.4979, Lon: 19.0402}) // Budapest
	require.NoError(t, err)
	assert.Greater(t, p.X, 0.0)
	assert.Greater(t, p.Y, 0.0)

	// Pure function: identical input, identical output.
	p2, err := Project(GeoPoint{Lat: 47.4979, Lon: 19.0402})
	require.NoError(t, err)
	assert.Equal(t, p, p2)

	// Sign follows the hemisphere.
	south, err := Project(GeoPoint{Lat: -33.8688, Lon: 151.2093}) // Sydney
	require.NoError(t, err)
	assert.Less(t, south.Y, 0.0)

	west, err := Project(GeoPoint{Lat: 40.7128, Lon: -74.0060}) // New York
	require.NoError(t, err)
	assert.Less(t, west.X, 0.0)
}

func TestProjectInvalidCoordinate(t *testing.T) {
	testCases := []struct {
		name string
		lat  float64
		lon  float64
	}{
		{"lat too high", 90.001, 0},
		{"lat too low", -90.001, 0},
		{"lon too high", 0, 180.001},
		{"lon too low", 0, -180.001},
		{"both out of range", 100, 200},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Project(GeoPoint{Lat: tc.lat, Lon: tc.lon})
			assert.ErrorIs(t, err, ErrInvalidCoordinate)
		})
	}
}

func TestProjectPoles(t *testing.T) {
	// Exactly ±90 is a valid input; the Y term clamps instead of diverging.
	for _, lat := range []float64{90, -90} {
		p, err := Project(GeoPoint{Lat: lat, Lon: 0})
		require.NoError(t, err)
		assert.False(t, math.IsNaN(p.Y))
		assert.False(t, math.IsInf(p.Y, 0))
	}
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 5.0, Distance(PlanarPoint{0, 0}, PlanarPoint{3, 4}))
	assert.Equal(t, 0.0, Distance(PlanarPoint{10, 10}, PlanarPoint{10, 10}))
	assert.Equal(t, 0.005, DistanceKm(PlanarPoint{0, 0}, PlanarPoint{3, 4}))
}

func TestDistanceMonotonic(t *testing.T) {
	// Walking away from a reference point within one region must yield
	// strictly increasing planar distances.
	origin, err := Project(GeoPoint{Lat: 47.50, Lon: 19.04})
	require.NoError(t, err)

	prev := 0.0
	for i := 1; i <= 20; i++ {
		p, err := Project(GeoPoint{Lat: 47.50, Lon: 19.04 + float64(i)*0.05})
		require.NoError(t, err)
		d := Distance(origin, p)
		assert.Greater(t, d, prev)
		prev = d
	}
}

func TestConvexHullSquare(t *testing.T) {
	points := []PlanarPoint{
		{0, 0}, {10, 0}, {10, 10}, {0, 10}, // corners
		{5, 5}, {2, 3}, {7, 8}, // interior
		{0, 0}, // duplicate
	}

	hull := ConvexHull(points)
	assert.Len(t, hull, 4)
	assert.Positive(t, signedArea(hull), "hull must be counter-clockwise")

	for _, p := range points {
		assert.True(t, PointInPolygon(p, hull), "input point %v must be inside the hull", p)
	}
}

func TestConvexHullDegenerate(t *testing.T) {
	assert.Empty(t, ConvexHull(nil))
	assert.Len(t, ConvexHull([]PlanarPoint{{1, 1}}), 1)
	assert.Len(t, ConvexHull([]PlanarPoint{{1, 1}, {2, 2}}), 2)
	assert.Len(t, ConvexHull([]PlanarPoint{{1, 1}, {1, 1}, {1, 1}}), 1)

	// Collinear points collapse to the two endpoints.
	collinear := ConvexHull([]PlanarPoint{{0, 0}, {1, 1}, {2, 2}, {3, 3}})
	assert.Len(t, collinear, 2)
	assert.Contains(t, collinear, PlanarPoint{0, 0})
	assert.Contains(t, collinear, PlanarPoint{3, 3})
}

func TestConvexHullContainsAllRandom(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for trial := 0; trial < 10; trial++ {
		t.Run(fmt.Sprintf("trial_%d", trial), func(t *testing.T) {
			points := make([]PlanarPoint, 50)
			for i := range points {
				points[i] = PlanarPoint{X: r.Float64() * 1000, Y: r.Float64() * 1000}
			}
			hull := ConvexHull(points)
			require.GreaterOrEqual(t, len(hull), 3)
			assert.Positive(t, signedArea(hull))
			for _, p := range points {
				assert.True(t, PointInPolygon(p, hull))
			}
		})
	}
}

func TestPointInPolygonBoundary(t *testing.T) {
	square := []PlanarPoint{{0, 0}, {10, 0}, {10, 10}, {0, 10}}

	assert.True(t, PointInPolygon(PlanarPoint{5, 5}, square))
	assert.True(t, PointInPolygon(PlanarPoint{0, 0}, square), "vertex is on the boundary")
	assert.True(t, PointInPolygon(PlanarPoint{5, 0}, square), "edge midpoint is on the boundary")
	assert.False(t, PointInPolygon(PlanarPoint{10.001, 5}, square))
	assert.False(t, PointInPolygon(PlanarPoint{-1, -1}, square))
}

// signedArea is positive for counter-clockwise rings.
func signedArea(ring []PlanarPoint) float64 {
	area := 0.0
	for i := range ring {
		j := (i + 1) % len(ring)
		area += ring[i].X*ring[j].Y - ring[j].X*ring[i].Y
	}
	return area / 2
}

func BenchmarkConvexHull(b *testing.B) {
	r := rand.New(rand.NewSource(1))
	points := make([]PlanarPoint, 10000)
	for i := range points {
		points[i] = PlanarPoint{X: r.Float64() * 1e6, Y: r.Float64() * 1e6}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ConvexHull(points)
	}
}
