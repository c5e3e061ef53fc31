// Package postgres implements the external station record store. It is a
// surrounding collaborator of the engine: it persists normalized records
// and hands them to the catalog, which owns all indexing and querying.
package postgres

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/kass/go-ev-atlas/pkg/models"
)

const batchSize = 1000

// Store is a PostgreSQL-backed station store.
type Store struct {
	db *sql.DB
}

// Open connects to the database and verifies the connection.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Store{db: db}, nil
}

// InitSchema creates the stations table.
func (s *Store) InitSchema() error {
	query := `CREATE TABLE IF NOT EXISTS stations (
		station_id TEXT PRIMARY KEY,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		city TEXT,
		county TEXT,
		country TEXT,
		postal_code TEXT,
		operator TEXT,
		is_operational BOOLEAN,
		num_charging_points INTEGER,
		is_free BOOLEAN NOT NULL DEFAULT FALSE,
		is_paid_unspecified BOOLEAN NOT NULL DEFAULT FALSE,
		energy_price_kwh DOUBLE PRECISION,
		time_price_min DOUBLE PRECISION,
		is_inaccessible BOOLEAN NOT NULL DEFAULT FALSE,
		is_membership_required BOOLEAN NOT NULL DEFAULT FALSE,
		is_pay_at_location BOOLEAN NOT NULL DEFAULT FALSE,
		creation_date DATE,
		last_verified_date DATE
	);`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// BulkInsert writes stations in batched transactions, replacing existing
// rows on id conflict.
func (s *Store) BulkInsert(stations []models.Station) error {
	const insert = `
		INSERT INTO stations (
			station_id, latitude, longitude, city, county, country, postal_code,
			operator, is_operational, num_charging_points,
			is_free, is_paid_unspecified, energy_price_kwh, time_price_min,
			is_inaccessible, is_membership_required, is_pay_at_location,
			creation_date, last_verified_date
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (station_id) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			city = EXCLUDED.city,
			county = EXCLUDED.county,
			country = EXCLUDED.country,
			postal_code = EXCLUDED.postal_code,
			operator = EXCLUDED.operator,
			is_operational = EXCLUDED.is_operational,
			num_charging_points = EXCLUDED.num_charging_points,
			is_free = EXCLUDED.is_free,
			is_paid_unspecified = EXCLUDED.is_paid_unspecified,
			energy_price_kwh = EXCLUDED.energy_price_kwh,
			time_price_min = EXCLUDED.time_price_min,
			is_inaccessible = EXCLUDED.is_inaccessible,
			is_membership_required = EXCLUDED.is_membership_required,
			is_pay_at_location = EXCLUDED.is_pay_at_location,
			creation_date = EXCLUDED.creation_date,
			last_verified_date = EXCLUDED.last_verified_date`

	for start := 0; start < len(stations); start += batchSize {
		end := start + batchSize
		if end > len(stations) {
			end = len(stations)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		stmt, err := tx.Prepare(insert)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to prepare statement: %w", err)
		}

		for _, st := range stations[start:end] {
			_, err := stmt.Exec(
				st.ID, st.Lat, st.Lon,
				nullString(st.City), nullString(st.County), nullString(st.Country), nullString(st.PostalCode),
				nullString(st.Operator), statusToSQL(st.Status), nullInt(st.Capacity),
				st.Pricing.Free, st.Pricing.PaidUnspecified,
				nullFloat(st.Pricing.EnergyPriceKWh), nullFloat(st.Pricing.TimePriceMin),
				st.Access.Inaccessible, st.Access.MembershipRequired, st.Access.PayAtLocation,
				nullTime(st.CreationDate), nullTime(st.LastVerifiedDate),
			)
			if err != nil {
				stmt.Close()
				tx.Rollback()
				return fmt.Errorf("failed to insert station %s: %w", st.ID, err)
			}
		}

		stmt.Close()
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit batch: %w", err)
		}
	}
	return nil
}

// LoadAll reads every station row as a normalized record.
func (s *Store) LoadAll() ([]models.Station, error) {
	rows, err := s.db.Query(`
		SELECT station_id, latitude, longitude, city, county, country, postal_code,
			operator, is_operational, num_charging_points,
			is_free, is_paid_unspecified, energy_price_kwh, time_price_min,
			is_inaccessible, is_membership_required, is_pay_at_location,
			creation_date, last_verified_date
		FROM stations
		ORDER BY station_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		var (
			st                            models.Station
			city, county, country, postal sql.NullString
			operator                      sql.NullString
			operational                   sql.NullBool
			capacity                      sql.NullInt64
			energyPrice, timePrice        sql.NullFloat64
			creationDate, lastVerified    sql.NullTime
		)
		err := rows.Scan(
			&st.ID, &st.Lat, &st.Lon, &city, &county, &country, &postal,
			&operator, &operational, &capacity,
			&st.Pricing.Free, &st.Pricing.PaidUnspecified, &energyPrice, &timePrice,
			&st.Access.Inaccessible, &st.Access.MembershipRequired, &st.Access.PayAtLocation,
			&creationDate, &lastVerified,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan station row: %w", err)
		}

		st.City = city.String
		st.County = county.String
		st.Country = country.String
		st.PostalCode = postal.String
		st.Operator = operator.String
		st.Status = statusFromSQL(operational)
		if capacity.Valid {
			c := int(capacity.Int64)
			st.Capacity = &c
		}
		if energyPrice.Valid {
			p := energyPrice.Float64
			st.Pricing.EnergyPriceKWh = &p
		}
		if timePrice.Valid {
			p := timePrice.Float64
			st.Pricing.TimePriceMin = &p
		}
		if creationDate.Valid {
			t := creationDate.Time
			st.CreationDate = &t
		}
		if lastVerified.Valid {
			t := lastVerified.Time
			st.LastVerifiedDate = &t
		}
		stations = append(stations, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return stations, nil
}

// Count returns the number of persisted stations.
func (s *Store) Count() (int64, error) {
	var count int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM stations").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count stations: %w", err)
	}
	return count, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// The store keeps the original tri-state as a nullable boolean: NULL maps
// to unknown.
func statusToSQL(s models.OperationalStatus) sql.NullBool {
	switch s {
	case models.StatusOperational:
		return sql.NullBool{Bool: true, Valid: true}
	case models.StatusNonOperational:
		return sql.NullBool{Bool: false, Valid: true}
	default:
		return sql.NullBool{}
	}
}

func statusFromSQL(b sql.NullBool) models.OperationalStatus {
	switch {
	case !b.Valid:
		return models.StatusUnknown
	case b.Bool:
		return models.StatusOperational
	default:
		return models.StatusNonOperational
	}
}
