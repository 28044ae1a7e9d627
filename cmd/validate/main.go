// Command validate checks the outputs of a pipeline run: the trips and zones
// tables, the GeoJSON zone export and, optionally, the YAML run report. It
// re-verifies the cleaning and derivation rules against the persisted rows.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -driver sqlite -dsn urban_mobility.db \
//	  -geojson taxi_zones_final.json \
//	  -report run-report.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/couchcryptid/urban-mobility-etl/internal/adapter/report"
	"github.com/couchcryptid/urban-mobility-etl/internal/adapter/sqlstore"
	"github.com/paulmach/orb"
	orbjson "github.com/paulmach/orb/geojson"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	driver := flag.String("driver", "sqlite", "database driver (sqlite or postgres)")
	dsn := flag.String("dsn", "urban_mobility.db", "database file or connection string")
	geoPath := flag.String("geojson", "taxi_zones_final.json", "path to the GeoJSON zone export")
	reportPath := flag.String("report", "", "optional path to the YAML run report")
	flag.Parse()

	os.Exit(run(*driver, *dsn, *geoPath, *reportPath))
}

func run(driver, dsn, geoPath, reportPath string) int {
	ctx := context.Background()

	fmt.Println("=== Urban Mobility Output Validation ===")
	fmt.Println()

	store, err := sqlstore.Open(ctx, driver, dsn, 1, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open database: %v\n", err)
		return 1
	}
	defer store.Close()

	counts, tablesPhase := validateTables(ctx, store)
	phases := []*phase{
		tablesPhase,
		validateTripRules(ctx, store),
		validateGeoJSON(geoPath),
	}
	if reportPath != "" {
		phases = append(phases, validateReport(reportPath, counts))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d trips, %d zones\n", counts[sqlstore.TripsTable], counts[sqlstore.ZonesTable])

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: Tables ──

func validateTables(ctx context.Context, store *sqlstore.Store) (map[string]int, *phase) {
	p := &phase{name: "Phase 1: Tables present"}
	counts := make(map[string]int, 2)
	for _, table := range []string{sqlstore.TripsTable, sqlstore.ZonesTable} {
		n, err := store.CountRows(ctx, table)
		if err != nil {
			p.errorf("%s: %v", table, err)
			continue
		}
		counts[table] = n
	}
	if n, ok := counts[sqlstore.ZonesTable]; ok && n == 0 {
		p.errorf("zones table is empty")
	}
	return counts, p
}

// ── Phase 2: Trip rules ──

func validateTripRules(ctx context.Context, store *sqlstore.Store) *phase {
	p := &phase{name: "Phase 2: Trip cleaning and derivation"}
	violations, err := store.CheckIntegrity(ctx)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	for _, v := range violations {
		p.errorf("%s: %d rows violate", v.Rule, v.Rows)
	}
	return p
}

// ── Phase 3: GeoJSON ──

func validateGeoJSON(path string) *phase {
	p := &phase{name: "Phase 3: GeoJSON zone export"}

	data, err := os.ReadFile(path)
	if err != nil {
		p.errorf("read: %v", err)
		return p
	}
	fc, err := orbjson.UnmarshalFeatureCollection(data)
	if err != nil {
		p.errorf("not a FeatureCollection: %v", err)
		return p
	}
	if len(fc.Features) == 0 {
		p.errorf("FeatureCollection has no features")
	}

	for i, f := range fc.Features {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		case nil:
			p.errorf("feature %d: null geometry", i)
		default:
			p.errorf("feature %d: unexpected geometry %s", i, f.Geometry.GeoJSONType())
		}
		if _, ok := f.Properties["LocationID"]; !ok {
			p.errorf("feature %d: missing LocationID property", i)
		}
	}
	return p
}

// ── Phase 4: Run report ──

func validateReport(path string, counts map[string]int) *phase {
	p := &phase{name: "Phase 4: Run report consistency"}

	summary, err := report.Read(path)
	if err != nil {
		p.errorf("%v", err)
		return p
	}

	if summary.TripsPersisted != counts[sqlstore.TripsTable] {
		p.errorf("trips_persisted %d, trips table has %d", summary.TripsPersisted, counts[sqlstore.TripsTable])
	}
	if summary.ZonesPersisted != counts[sqlstore.ZonesTable] {
		p.errorf("zones_persisted %d, zones table has %d", summary.ZonesPersisted, counts[sqlstore.ZonesTable])
	}
	if summary.TripsJoined != summary.TripsLoaded {
		p.errorf("left join changed row count: %d loaded, %d joined", summary.TripsLoaded, summary.TripsJoined)
	}
	if want := summary.TripsJoined - summary.CleanedRecords - summary.NonPositiveDurations; summary.TripsPersisted != want {
		p.errorf("trips_persisted %d, expected %d after cleaning", summary.TripsPersisted, want)
	}
	return p
}
