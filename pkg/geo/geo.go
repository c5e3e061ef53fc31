// Package geo converts WGS84 coordinates to a planar metric projection and
// provides the distance and convex-hull primitives the spatial index and the
// coverage analysis are built on.
package geo

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

const (
	earthRadiusM = 6371000.0

	// Spherical mercator diverges at the poles; the Y term is clamped at
	// the conventional limit so the projection stays finite over the full
	// valid latitude range.
	maxMercatorLat = 85.05112878
)

// ErrInvalidCoordinate marks a latitude or longitude outside ±90/±180.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// GeoPoint is a geographic coordinate in WGS84 degrees.
type GeoPoint struct {
	Lat float64
	Lon float64
}

// PlanarPoint is a point in the projected plane, in meters.
type PlanarPoint struct {
	X float64
	Y float64
}

// Project maps a geographic coordinate onto the spherical mercator plane.
// It is a pure function: the projection is always derivable from the
// geographic coordinate and never stored independently of it.
//
// Mercator stretches distances by roughly 1/cos(lat), uniformly within a
// region, so planar distances stay monotonic with straight-line geographic
// distance at regional scale.
func Project(p GeoPoint) (PlanarPoint, error) {
	if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return PlanarPoint{}, fmt.Errorf("%w: (%.6f, %.6f)", ErrInvalidCoordinate, p.Lat, p.Lon)
	}
	lat := math.Max(-maxMercatorLat, math.Min(maxMercatorLat, p.Lat))
	return PlanarPoint{
		X: earthRadiusM * p.Lon * math.Pi / 180,
		Y: earthRadiusM * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360)),
	}, nil
}

// Distance returns the Euclidean distance between two projected points in
// meters.
func Distance(a, b PlanarPoint) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// DistanceKm returns the Euclidean distance in kilometers.
func DistanceKm(a, b PlanarPoint) float64 {
	return Distance(a, b) / 1000
}

// ConvexHull computes the convex hull of a point set using the monotone
// chain algorithm. Vertices are returned in counter-clockwise order without
// repeating the first point. Fewer than 3 distinct points yield the distinct
// points themselves (a degenerate hull).
func ConvexHull(points []PlanarPoint) []PlanarPoint {
	pts := dedupe(points)
	if len(pts) < 3 {
		return pts
	}

	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})

	var lower []PlanarPoint
	for _, p := range pts {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}

	var upper []PlanarPoint
	for i := len(pts) - 1; i >= 0; i-- {
		p := pts[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}

	// Endpoints of each chain coincide with the start of the other.
	hull := append(lower[:len(lower)-1], upper[:len(upper)-1]...)
	if len(hull) < 3 {
		// All points collinear.
		return []PlanarPoint{pts[0], pts[len(pts)-1]}
	}
	return hull
}

// PointInPolygon reports whether p lies inside or on the boundary of the
// polygon. The polygon is a vertex ring without a repeated closing vertex.
func PointInPolygon(p PlanarPoint, polygon []PlanarPoint) bool {
	n := len(polygon)
	if n == 0 {
		return false
	}
	if n == 1 {
		return polygon[0] == p
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := polygon[j], polygon[i]
		if onSegment(p, a, b) {
			return true
		}
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := a.X + (p.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

// cross is the z component of (b-a) x (c-a): positive when the turn a->b->c
// is counter-clockwise.
func cross(a, b, c PlanarPoint) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

func onSegment(p, a, b PlanarPoint) bool {
	if math.Abs(cross(a, b, p)) > 1e-9*(math.Abs(b.X-a.X)+math.Abs(b.Y-a.Y)+1) {
		return false
	}
	return p.X >= math.Min(a.X, b.X) && p.X <= math.Max(a.X, b.X) &&
		p.Y >= math.Min(a.Y, b.Y) && p.Y <= math.Max(a.Y, b.Y)
}

func dedupe(points []PlanarPoint) []PlanarPoint {
	seen := make(map[PlanarPoint]struct{}, len(points))
	out := make([]PlanarPoint, 0, len(points))
	for _, p := range points {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
