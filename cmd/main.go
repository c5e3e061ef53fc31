package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kass/go-ev-atlas/pkg/analytics"
	"github.com/kass/go-ev-atlas/pkg/catalog"
	"github.com/kass/go-ev-atlas/pkg/config"
	"github.com/kass/go-ev-atlas/pkg/models"
	"github.com/kass/go-ev-atlas/pkg/postgres"
	"github.com/kass/go-ev-atlas/pkg/quality"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#8BE9FD"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFB86C"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4"))
)

var (
	cfg          *config.Config
	snapshotFile string

	queryLat    float64
	queryLon    float64
	neighbors   int
	operational bool
	pricedOnly  bool

	boxMinLat float64
	boxMinLon float64
	boxMaxLat float64
	boxMaxLon float64

	topN int
)

var rootCmd = &cobra.Command{
	Use:   "ev-atlas",
	Short: "Spatial index and analytics engine for EV charging stations",
	Long:  `Nearest-station and coverage queries over an R-Tree index, plus grouped statistics (market share, pricing, density, competition) and data-quality validation.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.LoadFromEnv()
		cfg.InitializeLogging()
		if snapshotFile != "" {
			cfg.SnapshotFile = snapshotFile
		}
	},
}

var importCmd = &cobra.Command{
	Use:   "import <stations.json>",
	Short: "Import a JSON station export into the record store",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load stations from the record store into a catalog snapshot",
	RunE:  runLoad,
}

var nearestCmd = &cobra.Command{
	Use:   "nearest",
	Short: "Find the nearest stations to a coordinate",
	RunE:  runNearest,
}

var rangeCmd = &cobra.Command{
	Use:   "range",
	Short: "List stations within a geographic bounding box",
	RunE:  runRange,
}

var reportCmd = &cobra.Command{
	Use:       "report [status|cities|operators|prices|density|competition|trend]",
	Short:     "Print a grouped analytics view",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"status", "cities", "operators", "prices", "density", "competition", "trend"},
	RunE:      runReport,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Scan the catalog for data-quality issues",
	RunE:  runValidate,
}

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Print the convex hull of the operational network",
	RunE:  runCoverage,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&snapshotFile, "file", "f", "", "Catalog snapshot path (default from config)")

	nearestCmd.Flags().Float64Var(&queryLat, "lat", 0, "Query latitude")
	nearestCmd.Flags().Float64Var(&queryLon, "lon", 0, "Query longitude")
	nearestCmd.Flags().IntVarP(&neighbors, "neighbors", "n", 5, "Number of stations to return")
	nearestCmd.Flags().BoolVar(&operational, "operational", false, "Only operational stations")
	nearestCmd.Flags().BoolVar(&pricedOnly, "priced", false, "Only stations with a usage price")
	nearestCmd.MarkFlagRequired("lat")
	nearestCmd.MarkFlagRequired("lon")

	rangeCmd.Flags().Float64Var(&boxMinLat, "min-lat", 0, "Bottom-left latitude")
	rangeCmd.Flags().Float64Var(&boxMinLon, "min-lon", 0, "Bottom-left longitude")
	rangeCmd.Flags().Float64Var(&boxMaxLat, "max-lat", 0, "Top-right latitude")
	rangeCmd.Flags().Float64Var(&boxMaxLon, "max-lon", 0, "Top-right longitude")

	reportCmd.Flags().IntVarP(&topN, "top", "n", 10, "Row limit for the cities view")

	rootCmd.AddCommand(importCmd, loadCmd, nearestCmd, rangeCmd, reportCmd, validateCmd, coverageCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading station export: %w", err)
	}
	var records []models.Station
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parsing station export: %w", err)
	}

	store, err := postgres.Open(cfg.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("connecting to record store: %w", err)
	}
	defer store.Close()

	if err := store.InitSchema(); err != nil {
		return err
	}
	start := time.Now()
	if err := store.BulkInsert(records); err != nil {
		return err
	}
	total, err := store.Count()
	if err != nil {
		return err
	}
	log.Info().
		Int("imported", len(records)).
		Int64("total", total).
		Dur("elapsed", time.Since(start)).
		Msg("station export imported")
	fmt.Println(titleStyle.Render(fmt.Sprintf("Imported %d stations (%d total in store)", len(records), total)))
	return nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	store, err := postgres.Open(cfg.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("connecting to record store: %w", err)
	}
	defer store.Close()

	records, err := store.LoadAll()
	if err != nil {
		return fmt.Errorf("reading stations: %w", err)
	}
	log.Info().Int("records", len(records)).Msg("read stations from record store")

	cat := catalog.New()
	start := time.Now()
	report, err := cat.Bulk(records)
	if err != nil {
		for _, f := range report.Failures {
			log.Error().Str("id", f.ID).Int("record", f.Index).Err(f.Err).Msg("rejected record")
		}
		return fmt.Errorf("bulk load: %w", err)
	}
	log.Info().
		Int("loaded", report.Loaded).
		Dur("elapsed", time.Since(start)).
		Msg("catalog built")

	if err := cat.SaveSnapshot(cfg.SnapshotFile); err != nil {
		return err
	}
	fmt.Println(titleStyle.Render(fmt.Sprintf("Loaded %d stations into %s", report.Loaded, cfg.SnapshotFile)))
	return nil
}

func openCatalog() (*catalog.Catalog, error) {
	cat := catalog.New()
	if err := cat.LoadSnapshot(cfg.SnapshotFile); err != nil {
		return nil, fmt.Errorf("opening catalog snapshot (run 'ev-atlas load' first): %w", err)
	}
	log.Debug().Int("stations", cat.Len()).Str("file", cfg.SnapshotFile).Msg("catalog loaded")
	return cat, nil
}

func runNearest(cmd *cobra.Command, args []string) error {
	cat, err := openCatalog()
	if err != nil {
		return err
	}

	pred := func(s models.Station) bool {
		if operational && s.Status != models.StatusOperational {
			return false
		}
		if pricedOnly {
			if _, ok := s.Pricing.UsagePrice(); !ok {
				return false
			}
		}
		return true
	}

	results, err := cat.NearestK(models.Location{Lat: queryLat, Lon: queryLon}, neighbors, pred)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println(dimStyle.Render("no stations match"))
		return nil
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("Nearest %d stations to (%.4f, %.4f)", len(results), queryLat, queryLon)))
	printRow(headerStyle, "ID", "CITY", "OPERATOR", "STATUS", "DIST KM")
	for _, r := range results {
		printRow(lipgloss.NewStyle(), r.Station.ID, r.Station.City, r.Station.Operator,
			r.Station.Status.String(), fmt.Sprintf("%.2f", r.Distance/1000))
	}
	return nil
}

func runRange(cmd *cobra.Command, args []string) error {
	cat, err := openCatalog()
	if err != nil {
		return err
	}

	box := models.BoundingBox{
		BottomLeft: models.Location{Lat: boxMinLat, Lon: boxMinLon},
		TopRight:   models.Location{Lat: boxMaxLat, Lon: boxMaxLon},
	}
	stations, err := cat.Range(box)
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("%d stations in box", len(stations))))
	printRow(headerStyle, "ID", "CITY", "OPERATOR", "LAT", "LON")
	for _, s := range stations {
		printRow(lipgloss.NewStyle(), s.ID, s.City, s.Operator,
			fmt.Sprintf("%.4f", s.Lat), fmt.Sprintf("%.4f", s.Lon))
	}
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	cat, err := openCatalog()
	if err != nil {
		return err
	}
	engine := analytics.New(cat, analytics.Config{
		DensityScale:             cfg.Analytics.DensityScale,
		HighCompetitionOperators: cfg.Analytics.HighCompetitionOperators,
		HighCompetitionSpread:    cfg.Analytics.HighCompetitionSpread,
		CacheSize:                cfg.Analytics.CacheSize,
	})

	switch args[0] {
	case "status":
		fmt.Println(titleStyle.Render("Status breakdown"))
		printRow(headerStyle, "STATUS", "COUNT")
		for _, r := range engine.StatusBreakdown() {
			printRow(lipgloss.NewStyle(), r.Status.String(), fmt.Sprintf("%d", r.Count))
		}
	case "cities":
		fmt.Println(titleStyle.Render(fmt.Sprintf("Top %d cities", topN)))
		printRow(headerStyle, "CITY", "COUNT")
		for _, r := range engine.TopCities(topN) {
			printRow(lipgloss.NewStyle(), r.Key, fmt.Sprintf("%d", r.Count))
		}
	case "operators":
		fmt.Println(titleStyle.Render("Operator market share (stations with a known operator)"))
		printRow(headerStyle, "OPERATOR", "COUNT", "SHARE %")
		for _, r := range engine.OperatorShare() {
			printRow(lipgloss.NewStyle(), r.Key, fmt.Sprintf("%d", r.Count), fmt.Sprintf("%.2f", r.Share))
		}
	case "prices":
		fmt.Println(titleStyle.Render("Price distribution per operator"))
		printRow(headerStyle, "OPERATOR", "N", "MEAN", "MIN", "MAX", "STDDEV")
		for _, r := range engine.OperatorPriceStats() {
			printRow(lipgloss.NewStyle(), r.Key, fmt.Sprintf("%d", r.Count),
				fmt.Sprintf("%.2f", r.Mean), fmt.Sprintf("%.2f", r.Min),
				fmt.Sprintf("%.2f", r.Max), fmt.Sprintf("%.2f", r.StdDev))
		}
	case "density":
		fmt.Println(titleStyle.Render("Regional density (per-mille of network)"))
		printRow(headerStyle, "COUNTY", "COUNT", "DENSITY")
		for _, r := range engine.RegionalDensity() {
			printRow(lipgloss.NewStyle(), r.Key, fmt.Sprintf("%d", r.Count), fmt.Sprintf("%.2f", r.Density))
		}
	case "competition":
		fmt.Println(titleStyle.Render("Competition by city"))
		printRow(headerStyle, "CITY", "OPERATORS", "SPREAD", "LEVEL")
		for _, r := range engine.CityCompetition() {
			printRow(lipgloss.NewStyle(), r.Key, fmt.Sprintf("%d", r.Operators),
				fmt.Sprintf("%.2f", r.PriceSpread), r.Level.String())
		}
	case "trend":
		fmt.Println(titleStyle.Render("Stations created per month"))
		printRow(headerStyle, "MONTH", "COUNT")
		for _, r := range engine.MonthlyTrend() {
			printRow(lipgloss.NewStyle(), r.Month, fmt.Sprintf("%d", r.Count))
		}
	default:
		return fmt.Errorf("unknown report %q", args[0])
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cat, err := openCatalog()
	if err != nil {
		return err
	}

	issues, scanErr := quality.Scan(cat.All())
	fmt.Println(titleStyle.Render(fmt.Sprintf("%d stations flagged (of %d)", len(issues), cat.Len())))
	printRow(headerStyle, "ID", "CITY", "OPERATOR", "ISSUE")
	for _, issue := range issues {
		printRow(lipgloss.NewStyle(), issue.ID, issue.City, issue.Operator, issue.Kind.String())
	}
	// A scan inconsistency is a bug in the engine itself, not in the data.
	return scanErr
}

func runCoverage(cmd *cobra.Command, args []string) error {
	cat, err := openCatalog()
	if err != nil {
		return err
	}

	hull := cat.CoverageHull(func(s models.Station) bool {
		return s.Status == models.StatusOperational
	})
	if len(hull) < 3 {
		fmt.Println(dimStyle.Render("fewer than 3 distinct operational stations; no coverage polygon"))
		return nil
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("Coverage hull: %d vertices (counter-clockwise, projected meters)", len(hull))))
	printRow(headerStyle, "X", "Y")
	for _, p := range hull {
		printRow(lipgloss.NewStyle(), fmt.Sprintf("%.0f", p.X), fmt.Sprintf("%.0f", p.Y))
	}
	return nil
}

func printRow(style lipgloss.Style, cols ...string) {
	cells := make([]string, len(cols))
	for i, c := range cols {
		width := 14
		if i == 0 {
			width = 12
		}
		cells[i] = style.Render(pad(c, width))
	}
	fmt.Println(strings.Join(cells, " "))
}

func pad(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
