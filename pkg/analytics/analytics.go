// Package analytics computes the grouped reporting views over a catalog
// snapshot: status breakdown, top-N groupings, share-of-total, price
// statistics, regional density, competition scoring and temporal trend.
// Every view is a pure function of the snapshot; results are memoized per
// catalog generation.
package analytics

import (
	"math"
	"sort"
	"strconv"

	"github.com/kass/go-ev-atlas/pkg/catalog"
	"github.com/kass/go-ev-atlas/pkg/models"
)

// CompetitionLevel classifies how contested a location is.
type CompetitionLevel int

const (
	LowCompetition CompetitionLevel = iota
	ModerateCompetition
	HighCompetition
)

func (l CompetitionLevel) String() string {
	switch l {
	case HighCompetition:
		return "high"
	case ModerateCompetition:
		return "moderate"
	default:
		return "low"
	}
}

// Config tunes the thresholds the views use. Competition thresholds are
// configuration so they can be adjusted per currency and market.
type Config struct {
	// DensityScale is the scale factor of the density view. The default
	// preserves the per-mille proxy of the source data set (count/total
	// *1000) rather than a true area denominator.
	DensityScale float64

	// HighCompetitionOperators and HighCompetitionSpread gate the high
	// tier: at least this many distinct operators AND a price spread
	// strictly above this value. Exactly two operators are moderate.
	HighCompetitionOperators int
	HighCompetitionSpread    float64

	// CacheSize bounds the per-generation view cache; zero disables it.
	CacheSize int
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		DensityScale:             1000,
		HighCompetitionOperators: 3,
		HighCompetitionSpread:    50,
		CacheSize:                128,
	}
}

// Engine computes reporting views over a catalog.
type Engine struct {
	cat   *catalog.Catalog
	cfg   Config
	cache *viewCache
}

// New creates an engine bound to a catalog.
func New(cat *catalog.Catalog, cfg Config) *Engine {
	return &Engine{cat: cat, cfg: cfg, cache: newViewCache(cfg.CacheSize)}
}

// StatusRow is one line of the status breakdown.
type StatusRow struct {
	Status models.OperationalStatus
	Count  int
}

// GroupCountRow is one line of a count-per-key view.
type GroupCountRow struct {
	Key   string
	Count int
}

// ShareRow is one line of a share-of-total view. Share is a percentage of
// the view's documented population, rounded to 2 decimals.
type ShareRow struct {
	Key   string
	Count int
	Share float64
}

// PriceStatsRow is one line of a per-group price distribution.
type PriceStatsRow struct {
	Key    string
	Count  int
	Mean   float64
	Min    float64
	Max    float64
	StdDev float64
}

// DensityRow is one line of the density view.
type DensityRow struct {
	Key     string
	Count   int
	Density float64
}

// CompetitionRow is one line of the competition scoring view.
type CompetitionRow struct {
	Key         string
	Operators   int
	PriceSpread float64
	Level       CompetitionLevel
}

// TrendRow is one line of the temporal trend: stations created in a
// calendar month.
type TrendRow struct {
	Month string // "2006-01"
	Count int
}

// StatusBreakdown counts stations per operational status. All three
// statuses are always reported, in a fixed order.
func (e *Engine) StatusBreakdown() []StatusRow {
	if rows, ok := cached[[]StatusRow](e, "status", ""); ok {
		return rows
	}
	gen := e.cat.Generation()
	counts := make(map[models.OperationalStatus]int)
	for _, s := range e.cat.All() {
		counts[s.Status]++
	}
	rows := []StatusRow{
		{Status: models.StatusOperational, Count: counts[models.StatusOperational]},
		{Status: models.StatusNonOperational, Count: counts[models.StatusNonOperational]},
		{Status: models.StatusUnknown, Count: counts[models.StatusUnknown]},
	}
	return store(e, "status", "", gen, rows)
}

// TopCities returns the n cities with the most stations, count descending,
// city ascending on ties. Stations without a city are excluded.
func (e *Engine) TopCities(n int) []GroupCountRow {
	param := strconv.Itoa(n)
	if rows, ok := cached[[]GroupCountRow](e, "top-cities", param); ok {
		return rows
	}
	gen := e.cat.Generation()
	groups := catalog.GroupBy(cityKey, e.cat.All())
	rows := make([]GroupCountRow, 0, len(groups))
	for key, members := range groups {
		rows = append(rows, GroupCountRow{Key: key, Count: len(members)})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Key < rows[j].Key
	})
	if n >= 0 && len(rows) > n {
		rows = rows[:n]
	}
	return store(e, "top-cities", param, gen, rows)
}

// OperatorShare returns each operator's share of the stations that name an
// operator. Stations with a null operator are excluded from both numerator
// and denominator. Shares are rounded to 2 decimals and sum to 100 within
// rounding tolerance. Count descending, operator ascending on ties.
func (e *Engine) OperatorShare() []ShareRow {
	if rows, ok := cached[[]ShareRow](e, "operator-share", ""); ok {
		return rows
	}
	gen := e.cat.Generation()
	groups := catalog.GroupBy(operatorKey, e.cat.All())
	total := 0
	for _, members := range groups {
		total += len(members)
	}
	rows := make([]ShareRow, 0, len(groups))
	for key, members := range groups {
		share := 0.0
		if total > 0 {
			share = round2(float64(len(members)) / float64(total) * 100)
		}
		rows = append(rows, ShareRow{Key: key, Count: len(members), Share: share})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Key < rows[j].Key
	})
	return store(e, "operator-share", "", gen, rows)
}

// OperatorPriceStats returns mean, min, max and sample standard deviation
// of the usage price per operator. Only non-free stations with a price
// participate; operators with no priced stations are omitted. Money values
// are rounded to 2 decimals. Operator ascending.
func (e *Engine) OperatorPriceStats() []PriceStatsRow {
	if rows, ok := cached[[]PriceStatsRow](e, "operator-prices", ""); ok {
		return rows
	}
	gen := e.cat.Generation()
	rows := priceStats(operatorKey, e.cat.All())
	return store(e, "operator-prices", "", gen, rows)
}

// CityPriceStats is OperatorPriceStats grouped by city.
func (e *Engine) CityPriceStats() []PriceStatsRow {
	if rows, ok := cached[[]PriceStatsRow](e, "city-prices", ""); ok {
		return rows
	}
	gen := e.cat.Generation()
	rows := priceStats(cityKey, e.cat.All())
	return store(e, "city-prices", "", gen, rows)
}

// RegionalDensity returns count(county)/total*scale per county, rounded to
// 2 decimals. The denominator is the full snapshot (stations without a
// county dilute every group but form no group of their own); the scale is
// Config.DensityScale, by default the source's per-mille proxy rather than
// a true area in km². County ascending.
func (e *Engine) RegionalDensity() []DensityRow {
	if rows, ok := cached[[]DensityRow](e, "density", ""); ok {
		return rows
	}
	gen := e.cat.Generation()
	all := e.cat.All()
	groups := catalog.GroupBy(countyKey, all)
	rows := make([]DensityRow, 0, len(groups))
	for key, members := range groups {
		density := 0.0
		if len(all) > 0 {
			density = round2(float64(len(members)) / float64(len(all)) * e.cfg.DensityScale)
		}
		rows = append(rows, DensityRow{Key: key, Count: len(members), Density: density})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return store(e, "density", "", gen, rows)
}

// CityCompetition classifies each city by distinct operator count and
// usage-price spread against the configured thresholds. City ascending.
func (e *Engine) CityCompetition() []CompetitionRow {
	if rows, ok := cached[[]CompetitionRow](e, "competition", ""); ok {
		return rows
	}
	gen := e.cat.Generation()
	groups := catalog.GroupBy(cityKey, e.cat.All())
	rows := make([]CompetitionRow, 0, len(groups))
	for key, members := range groups {
		operators := make(map[string]struct{})
		minPrice, maxPrice := math.Inf(1), math.Inf(-1)
		priced := false
		for _, s := range members {
			if s.Operator != "" {
				operators[s.Operator] = struct{}{}
			}
			if price, ok := s.Pricing.UsagePrice(); ok {
				priced = true
				minPrice = math.Min(minPrice, price)
				maxPrice = math.Max(maxPrice, price)
			}
		}
		spread := 0.0
		if priced {
			spread = round2(maxPrice - minPrice)
		}
		rows = append(rows, CompetitionRow{
			Key:         key,
			Operators:   len(operators),
			PriceSpread: spread,
			Level:       e.classify(len(operators), spread),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return store(e, "competition", "", gen, rows)
}

func (e *Engine) classify(operators int, spread float64) CompetitionLevel {
	switch {
	case operators >= e.cfg.HighCompetitionOperators && spread > e.cfg.HighCompetitionSpread:
		return HighCompetition
	case operators == 2:
		return ModerateCompetition
	default:
		return LowCompetition
	}
}

// MonthlyTrend counts stations by the calendar month of their creation
// date, chronologically. Stations without a creation date are excluded.
func (e *Engine) MonthlyTrend() []TrendRow {
	if rows, ok := cached[[]TrendRow](e, "trend", ""); ok {
		return rows
	}
	gen := e.cat.Generation()
	counts := make(map[string]int)
	for _, s := range e.cat.All() {
		if s.CreationDate == nil {
			continue
		}
		counts[s.CreationDate.Format("2006-01")]++
	}
	rows := make([]TrendRow, 0, len(counts))
	for month, count := range counts {
		rows = append(rows, TrendRow{Month: month, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Month < rows[j].Month })
	return store(e, "trend", "", gen, rows)
}

func priceStats(keyFn func(models.Station) (string, bool), stations []models.Station) []PriceStatsRow {
	groups := catalog.GroupBy(keyFn, stations)
	rows := make([]PriceStatsRow, 0, len(groups))
	for key, members := range groups {
		prices := make([]float64, 0, len(members))
		for _, s := range members {
			if price, ok := s.Pricing.UsagePrice(); ok {
				prices = append(prices, price)
			}
		}
		if len(prices) == 0 {
			continue
		}
		rows = append(rows, PriceStatsRow{
			Key:    key,
			Count:  len(prices),
			Mean:   round2(mean(prices)),
			Min:    round2(minOf(prices)),
			Max:    round2(maxOf(prices)),
			StdDev: round2(sampleStdDev(prices)),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows
}

func cityKey(s models.Station) (string, bool)     { return s.City, s.City != "" }
func countyKey(s models.Station) (string, bool)   { return s.County, s.County != "" }
func operatorKey(s models.Station) (string, bool) { return s.Operator, s.Operator != "" }

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStdDev is the n-1 standard deviation; a single observation has no
// spread.
func sampleStdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Min(m, x)
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Max(m, x)
	}
	return m
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
