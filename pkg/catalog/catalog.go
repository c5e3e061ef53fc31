// Package catalog holds the live station records and keeps the spatial
// index in lockstep with them. It is the single owner of the pair: every
// mutation updates both under one writer lock, every query reads a snapshot.
package catalog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kass/go-ev-atlas/pkg/geo"
	"github.com/kass/go-ev-atlas/pkg/index"
	"github.com/kass/go-ev-atlas/pkg/models"
)

// Catalog is the queryable collection of station records paired with its
// spatial index. The zero value is not usable; use New.
type Catalog struct {
	mu         sync.RWMutex
	stations   map[string]models.Station
	planar     map[string]geo.PlanarPoint
	idx        *index.Index
	generation uint64
}

// Result is a spatial query row: a station and its planar distance in
// meters from the query point.
type Result struct {
	Station  models.Station
	Distance float64
}

// New creates an empty catalog with a fresh index.
func New() *Catalog {
	return &Catalog{
		stations: make(map[string]models.Station),
		planar:   make(map[string]geo.PlanarPoint),
		idx:      index.New(),
	}
}

// Upsert validates the record, derives its projection and replaces any
// existing record with the same id. Catalog and index move together.
func (c *Catalog) Upsert(s models.Station) error {
	return c.put(s, false)
}

// Insert is the strict variant of Upsert: it fails with ErrDuplicateID when
// a record with the same id is already live.
func (c *Catalog) Insert(s models.Station) error {
	return c.put(s, true)
}

func (c *Catalog) put(s models.Station, strict bool) error {
	if err := s.Validate(); err != nil {
		return err
	}
	p, err := geo.Project(geo.GeoPoint{Lat: s.Lat, Lon: s.Lon})
	if err != nil {
		return fmt.Errorf("%w: station %s: %v", models.ErrMalformedRecord, s.ID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.stations[s.ID]; exists && strict {
		return fmt.Errorf("%w: %s", models.ErrDuplicateID, s.ID)
	}
	c.stations[s.ID] = s
	c.planar[s.ID] = p
	c.idx.Insert(s.ID, p)
	c.generation++
	return nil
}

// Remove deletes a record from catalog and index together. It reports
// whether the id was present.
func (c *Catalog) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.stations[id]; !ok {
		return false
	}
	delete(c.stations, id)
	delete(c.planar, id)
	c.idx.Remove(id)
	c.generation++
	return true
}

// Get returns the live record for an id.
func (c *Catalog) Get(id string) (models.Station, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.stations[id]
	return s, ok
}

// Len returns the number of live records.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.stations)
}

// Generation returns a counter that increases on every mutation. Derived
// results cached against a generation are valid only while it is unchanged.
func (c *Catalog) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Scan returns the records matching pred as a snapshot taken at call time.
// Mutations after the call never affect the returned slice. A nil pred
// matches everything. Order is deterministic (id ascending).
func (c *Catalog) Scan(pred func(models.Station) bool) []models.Station {
	c.mu.RLock()
	out := make([]models.Station, 0, len(c.stations))
	for _, s := range c.stations {
		if pred == nil || pred(s) {
			out = append(out, s)
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns a snapshot of every live record, id ascending.
func (c *Catalog) All() []models.Station {
	return c.Scan(nil)
}

// NearestK returns up to k stations satisfying pred ordered by ascending
// planar distance from the query location, ties broken by id. An empty
// result is valid. The query point itself must be a valid coordinate.
func (c *Catalog) NearestK(at models.Location, k int, pred func(models.Station) bool) ([]Result, error) {
	q, err := geo.Project(geo.GeoPoint{Lat: at.Lat, Lon: at.Lon})
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var idPred func(string) bool
	if pred != nil {
		idPred = func(id string) bool {
			s, ok := c.stations[id]
			return ok && pred(s)
		}
	}
	neighbors := c.idx.NearestK(q, k, idPred)

	results := make([]Result, 0, len(neighbors))
	for _, n := range neighbors {
		results = append(results, Result{Station: c.stations[n.ID], Distance: n.Distance})
	}
	return results, nil
}

// Range returns all stations whose point falls within the geographic
// bounding box, id ascending. Mercator is monotonic in both axes, so the
// geographic box maps to a planar box.
func (c *Catalog) Range(box models.BoundingBox) ([]models.Station, error) {
	min, err := geo.Project(geo.GeoPoint{Lat: box.BottomLeft.Lat, Lon: box.BottomLeft.Lon})
	if err != nil {
		return nil, err
	}
	max, err := geo.Project(geo.GeoPoint{Lat: box.TopRight.Lat, Lon: box.TopRight.Lon})
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	ids, err := c.idx.Range(min, max)
	if err != nil {
		return nil, err
	}
	out := make([]models.Station, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.stations[id])
	}
	return out, nil
}

// CoverageHull returns the convex hull, counter-clockwise, of the projected
// points of all stations matching pred. Fewer than 3 distinct points give a
// degenerate hull.
func (c *Catalog) CoverageHull(pred func(models.Station) bool) []geo.PlanarPoint {
	c.mu.RLock()
	points := make([]geo.PlanarPoint, 0, len(c.stations))
	for id, s := range c.stations {
		if pred == nil || pred(s) {
			points = append(points, c.planar[id])
		}
	}
	c.mu.RUnlock()

	return geo.ConvexHull(points)
}

// Rebuild reconstructs the spatial index from the catalog records. It is
// the recovery path when index and catalog are suspected to have diverged:
// the pair must never serve queries in a torn state.
func (c *Catalog) Rebuild() {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := make([]index.Entry, 0, len(c.stations))
	for id := range c.stations {
		entries = append(entries, index.Entry{ID: id, Point: c.planar[id]})
	}
	c.idx.Build(entries)
	c.generation++
}

// CheckConsistency verifies the no-orphan invariant in both directions:
// every catalog record is indexed at its projected point, and the index
// holds nothing else.
func (c *Catalog) CheckConsistency() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n := c.idx.Len(); n != len(c.stations) {
		return fmt.Errorf("%w: index holds %d entries, catalog %d records",
			models.ErrInternalInconsistency, n, len(c.stations))
	}
	for id := range c.stations {
		if !c.idx.Contains(id, c.planar[id]) {
			return fmt.Errorf("%w: station %s missing from index or at stale point",
				models.ErrInternalInconsistency, id)
		}
	}
	return nil
}

// GroupBy partitions stations by the key function, preserving input order
// within each group. Records for which keyFn reports false (null key) are
// excluded.
func GroupBy(keyFn func(models.Station) (string, bool), stations []models.Station) map[string][]models.Station {
	groups := make(map[string][]models.Station)
	for _, s := range stations {
		key, ok := keyFn(s)
		if !ok {
			continue
		}
		groups[key] = append(groups[key], s)
	}
	return groups
}
