package catalog

import (
	"fmt"

	"github.com/kass/go-ev-atlas/pkg/geo"
	"github.com/kass/go-ev-atlas/pkg/index"
	"github.com/kass/go-ev-atlas/pkg/models"
)

// RecordFailure identifies one record rejected during a bulk load.
type RecordFailure struct {
	Index int
	ID    string
	Err   error
}

func (f RecordFailure) String() string {
	return fmt.Sprintf("record %d (id %q): %v", f.Index, f.ID, f.Err)
}

// LoadReport is the batch summary of a bulk load.
type LoadReport struct {
	Loaded   int
	Failures []RecordFailure
}

// Load bulk-loads a batch of normalized records. Every record is validated
// and projected before anything is committed.
//
// In atomic mode the whole batch is rejected on the first bad record and the
// live catalog/index pair is left untouched. Otherwise bad records are
// collected into the report and the valid remainder is committed.
//
// Within a batch, a repeated id is a malformed record (exactly one live
// record per id); an id already live in the catalog is replaced, upsert
// style.
func (c *Catalog) Load(records []models.Station, atomic bool) (LoadReport, error) {
	var report LoadReport

	type staged struct {
		station models.Station
		point   geo.PlanarPoint
	}
	seen := make(map[string]int, len(records))
	valid := make([]staged, 0, len(records))

	for i, s := range records {
		var err error
		if prev, dup := seen[s.ID]; dup {
			err = fmt.Errorf("%w: station %s: id collision with record %d",
				models.ErrMalformedRecord, s.ID, prev)
		} else {
			err = s.Validate()
		}
		var p geo.PlanarPoint
		if err == nil {
			p, err = geo.Project(geo.GeoPoint{Lat: s.Lat, Lon: s.Lon})
			if err != nil {
				err = fmt.Errorf("%w: station %s: %v", models.ErrMalformedRecord, s.ID, err)
			}
		}
		if err != nil {
			report.Failures = append(report.Failures, RecordFailure{Index: i, ID: s.ID, Err: err})
			if atomic {
				return report, fmt.Errorf("atomic load aborted: %w", err)
			}
			continue
		}
		seen[s.ID] = i
		valid = append(valid, staged{station: s, point: p})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, st := range valid {
		c.stations[st.station.ID] = st.station
		c.planar[st.station.ID] = st.point
		c.idx.Insert(st.station.ID, st.point)
	}
	if len(valid) > 0 {
		c.generation++
	}
	report.Loaded = len(valid)
	return report, nil
}

// Bulk replaces the entire catalog with the batch, rebuilding the index in
// one bulk-load pass. Atomic: any bad record rejects the batch and leaves
// the previous state serving.
func (c *Catalog) Bulk(records []models.Station) (LoadReport, error) {
	staged := New()
	report, err := staged.Load(records, true)
	if err != nil {
		return report, err
	}

	entries := make([]index.Entry, 0, len(staged.stations))
	for id, p := range staged.planar {
		entries = append(entries, index.Entry{ID: id, Point: p})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stations = staged.stations
	c.planar = staged.planar
	c.idx.Build(entries)
	c.generation++
	return report, nil
}
