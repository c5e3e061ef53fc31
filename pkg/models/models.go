// Package models defines the station record and its attribute types.
package models

import (
	"fmt"
	"time"
)

// OperationalStatus is the tri-state operational flag of a station.
type OperationalStatus int

const (
	StatusUnknown OperationalStatus = iota
	StatusOperational
	StatusNonOperational
)

func (s OperationalStatus) String() string {
	switch s {
	case StatusOperational:
		return "operational"
	case StatusNonOperational:
		return "non-operational"
	default:
		return "unknown"
	}
}

// PricingKind classifies how a station charges for usage.
type PricingKind int

const (
	PricingUnspecified PricingKind = iota
	PricingFree
	PricingPerEnergy
	PricingPerTime
	PricingHybrid
)

func (k PricingKind) String() string {
	switch k {
	case PricingFree:
		return "free"
	case PricingPerEnergy:
		return "per-energy"
	case PricingPerTime:
		return "per-time"
	case PricingHybrid:
		return "hybrid"
	default:
		return "unspecified"
	}
}

// Pricing is the pricing variant of a station. The numeric prices are
// optional and non-negative when present.
type Pricing struct {
	Free            bool     `json:"is_free"`
	PaidUnspecified bool     `json:"is_paid_unspecified"`
	EnergyPriceKWh  *float64 `json:"energy_price_kwh,omitempty"`
	TimePriceMin    *float64 `json:"time_price_min,omitempty"`
}

// Kind derives the pricing variant from the flags and prices.
func (p Pricing) Kind() PricingKind {
	switch {
	case p.Free:
		return PricingFree
	case p.EnergyPriceKWh != nil && p.TimePriceMin != nil:
		return PricingHybrid
	case p.EnergyPriceKWh != nil:
		return PricingPerEnergy
	case p.TimePriceMin != nil:
		return PricingPerTime
	default:
		return PricingUnspecified
	}
}

// UsagePrice returns the price used for statistics: the energy price when
// present, otherwise the time-based price. The second return is false for
// free stations and stations without any price.
func (p Pricing) UsagePrice() (float64, bool) {
	if p.Free {
		return 0, false
	}
	if p.EnergyPriceKWh != nil {
		return *p.EnergyPriceKWh, true
	}
	if p.TimePriceMin != nil {
		return *p.TimePriceMin, true
	}
	return 0, false
}

// AccessFlags are independent, non-exclusive access attributes.
type AccessFlags struct {
	Inaccessible       bool `json:"is_inaccessible"`
	MembershipRequired bool `json:"is_membership_required"`
	PayAtLocation      bool `json:"is_pay_at_location"`
}

// Station is a normalized charging station record. Records are immutable
// values: the catalog replaces them whole on upsert and never mutates fields
// in place.
type Station struct {
	ID         string            `json:"id"`
	Lat        float64           `json:"lat"`
	Lon        float64           `json:"lon"`
	City       string            `json:"city,omitempty"`
	County     string            `json:"county,omitempty"`
	Country    string            `json:"country,omitempty"`
	PostalCode string            `json:"postal_code,omitempty"`
	Operator   string            `json:"operator,omitempty"`
	Status     OperationalStatus `json:"status"`
	Capacity   *int              `json:"capacity,omitempty"`
	Pricing    Pricing           `json:"pricing"`
	Access     AccessFlags       `json:"access"`

	CreationDate     *time.Time `json:"creation_date,omitempty"`
	LastVerifiedDate *time.Time `json:"last_verified_date,omitempty"`
}

// Location returns the station's geographic coordinate.
func (s Station) Location() Location {
	return Location{Lat: s.Lat, Lon: s.Lon}
}

// Validate checks the schema-level invariants of a record: non-empty id,
// coordinate ranges, non-negative capacity and prices.
func (s Station) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty id", ErrMalformedRecord)
	}
	if s.Lat < -90 || s.Lat > 90 || s.Lon < -180 || s.Lon > 180 {
		return fmt.Errorf("%w: station %s: coordinate out of range (%.4f, %.4f)",
			ErrMalformedRecord, s.ID, s.Lat, s.Lon)
	}
	if s.Capacity != nil && *s.Capacity < 0 {
		return fmt.Errorf("%w: station %s: negative capacity %d", ErrMalformedRecord, s.ID, *s.Capacity)
	}
	if s.Pricing.EnergyPriceKWh != nil && *s.Pricing.EnergyPriceKWh < 0 {
		return fmt.Errorf("%w: station %s: negative energy price", ErrMalformedRecord, s.ID)
	}
	if s.Pricing.TimePriceMin != nil && *s.Pricing.TimePriceMin < 0 {
		return fmt.Errorf("%w: station %s: negative time price", ErrMalformedRecord, s.ID)
	}
	return nil
}

// Location is a geographic coordinate in WGS84 degrees.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BoundingBox is a rectangular geographic area defined by two corners.
type BoundingBox struct {
	BottomLeft Location `json:"bottom_left"`
	TopRight   Location `json:"top_right"`
}

// Contains reports whether the location falls within the box, inclusive of
// the boundary.
func (b BoundingBox) Contains(l Location) bool {
	return l.Lat >= b.BottomLeft.Lat && l.Lat <= b.TopRight.Lat &&
		l.Lon >= b.BottomLeft.Lon && l.Lon <= b.TopRight.Lon
}
