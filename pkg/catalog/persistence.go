package catalog

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/kass/go-ev-atlas/pkg/models"
)

// snapshot is the serializable form of the catalog. Only the records are
// persisted; projections and the index are derived on load, so the pair can
// never be restored out of sync.
type snapshot struct {
	Stations []models.Station
}

// SaveSnapshot writes the catalog records to a binary file.
func (c *Catalog) SaveSnapshot(filename string) error {
	data := snapshot{Stations: c.All()}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(data); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot replaces the catalog contents with the records from a
// snapshot file. The load is atomic: a corrupt snapshot leaves the current
// state serving.
func (c *Catalog) LoadSnapshot(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	var data snapshot
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	if _, err := c.Bulk(data.Stations); err != nil {
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}
	return nil
}
