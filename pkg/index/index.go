// Package index implements the spatial index over projected station points:
// an R-Tree supporting bulk build, incremental maintenance, predicate-aware
// nearest-K and range queries.
package index

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/dhconnelly/rtreego"

	"github.com/kass/go-ev-atlas/pkg/geo"
)

const (
	// Point rectangles need a non-zero extent; one centimeter in the
	// projected plane.
	tolerance   = 0.01
	minChildren = 25
	maxChildren = 50
	dimensions  = 2
)

// Entry is a station reference with its projected point.
type Entry struct {
	ID    string
	Point geo.PlanarPoint
}

// Neighbor is a nearest-K result row: a station id and its planar distance
// from the query point in meters.
type Neighbor struct {
	ID       string
	Distance float64
}

// item wraps an entry to implement rtreego.Spatial. The pointer doubles as
// the identity rtreego's Delete matches on.
type item struct {
	id    string
	point geo.PlanarPoint
	rect  *rtreego.Rect
}

func (it *item) Bounds() *rtreego.Rect { return it.rect }

// Index is a thread-safe R-Tree over projected station points. Every live
// station has exactly one entry, tracked in an id map so incremental removal
// can hand rtreego the exact object it stores.
type Index struct {
	mu    sync.RWMutex
	tree  *rtreego.Rtree
	items map[string]*item
}

// New creates an empty index.
func New() *Index {
	return &Index{
		tree:  rtreego.NewTree(dimensions, minChildren, maxChildren),
		items: make(map[string]*item),
	}
}

// Build replaces the index contents with a bulk load of the given entries.
// Duplicate ids keep the last occurrence.
func (ix *Index) Build(entries []Entry) {
	items := make(map[string]*item, len(entries))
	for _, e := range entries {
		items[e.ID] = newItem(e.ID, e.Point)
	}
	spatials := make([]rtreego.Spatial, 0, len(items))
	for _, it := range items {
		spatials = append(spatials, it)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.tree = rtreego.NewTree(dimensions, minChildren, maxChildren, spatials...)
	ix.items = items
}

// Insert adds a station point, replacing any existing entry with the same id.
func (ix *Index) Insert(id string, p geo.PlanarPoint) {
	it := newItem(id, p)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if old, ok := ix.items[id]; ok {
		ix.tree.Delete(old)
	}
	ix.tree.Insert(it)
	ix.items[id] = it
}

// Remove deletes a station point. It reports whether the id was present.
func (ix *Index) Remove(id string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	it, ok := ix.items[id]
	if !ok {
		return false
	}
	ix.tree.Delete(it)
	delete(ix.items, id)
	return true
}

// Len returns the number of indexed stations.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.items)
}

// Contains reports whether the id is indexed at the given point.
func (ix *Index) Contains(id string, p geo.PlanarPoint) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	it, ok := ix.items[id]
	return ok && it.point == p
}

// NearestK returns up to k stations satisfying pred, ordered by ascending
// planar distance from q, ties broken by id. The predicate is pushed into
// the tree descent as a refusal filter, so pruning happens on bounding-box
// minimum distance. An empty result is valid, not an error.
func (ix *Index) NearestK(q geo.PlanarPoint, k int, pred func(id string) bool) []Neighbor {
	if k <= 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	filters := []rtreego.Filter{}
	if pred != nil {
		filters = append(filters, func(_ []rtreego.Spatial, obj rtreego.Spatial) (bool, bool) {
			return !pred(obj.(*item).id), false
		})
	}

	results := ix.tree.NearestNeighbors(k, rtreego.Point{q.X, q.Y}, filters...)

	neighbors := make([]Neighbor, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		it := r.(*item)
		neighbors = append(neighbors, Neighbor{ID: it.id, Distance: geo.Distance(q, it.point)})
	}

	// When several points are exactly equidistant at the k-th boundary the
	// tree fills the last slots by traversal order. Re-collect the closed
	// disc of the k-th distance so the returned set resolves ties by id,
	// not by insert order.
	if len(neighbors) == k {
		maxDist := 0.0
		for _, n := range neighbors {
			maxDist = math.Max(maxDist, n.Distance)
		}
		neighbors = ix.within(q, maxDist, pred)
	}

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Distance != neighbors[j].Distance {
			return neighbors[i].Distance < neighbors[j].Distance
		}
		return neighbors[i].ID < neighbors[j].ID
	})
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors
}

// within returns every station satisfying pred at planar distance at most d
// from q. Caller holds the read lock.
func (ix *Index) within(q geo.PlanarPoint, d float64, pred func(id string) bool) []Neighbor {
	bounds, err := rtreego.NewRect(
		rtreego.Point{q.X - d - tolerance, q.Y - d - tolerance},
		[]float64{2 * (d + tolerance), 2 * (d + tolerance)},
	)
	if err != nil {
		return nil
	}

	var neighbors []Neighbor
	for _, r := range ix.tree.SearchIntersect(bounds) {
		it, ok := r.(*item)
		if !ok {
			continue
		}
		if pred != nil && !pred(it.id) {
			continue
		}
		if dist := geo.Distance(q, it.point); dist <= d {
			neighbors = append(neighbors, Neighbor{ID: it.id, Distance: dist})
		}
	}
	return neighbors
}

// Range returns the ids of all stations whose point falls within the planar
// rectangle spanned by min and max, inclusive of the boundary.
func (ix *Index) Range(min, max geo.PlanarPoint) ([]string, error) {
	if max.X < min.X || max.Y < min.Y {
		return nil, fmt.Errorf("invalid range: max (%f, %f) below min (%f, %f)", max.X, max.Y, min.X, min.Y)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	bounds, err := rtreego.NewRect(
		rtreego.Point{min.X - tolerance, min.Y - tolerance},
		[]float64{max.X - min.X + 2*tolerance, max.Y - min.Y + 2*tolerance},
	)
	if err != nil {
		return nil, fmt.Errorf("invalid range query: %w", err)
	}

	results := ix.tree.SearchIntersect(bounds)

	// Intersection is over the padded point rectangles; recheck the actual
	// coordinates.
	ids := make([]string, 0, len(results))
	for _, r := range results {
		it, ok := r.(*item)
		if !ok {
			continue
		}
		if it.point.X >= min.X && it.point.X <= max.X &&
			it.point.Y >= min.Y && it.point.Y <= max.Y {
			ids = append(ids, it.id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func newItem(id string, p geo.PlanarPoint) *item {
	pt := rtreego.Point{p.X, p.Y}
	return &item{id: id, point: p, rect: pt.ToRect(tolerance)}
}
