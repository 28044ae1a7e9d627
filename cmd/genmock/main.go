// Command genmock writes a small synthetic TLC-style input set for local runs
// without the full monthly trip file: a yellow taxi trip CSV, a zone lookup
// CSV and a zone shapefile. A fixed seed makes the output reproducible. It
// runs the generated trips through the domain stages and prints the counts a
// pipeline run over the files should report.
//
// Usage:
//
//	go run ./cmd/genmock -out-dir data/mock -rows 5000 -seed 42
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/urban-mobility-etl/internal/config"
	"github.com/couchcryptid/urban-mobility-etl/internal/domain"
	shp "github.com/jonas-p/go-shp"
)

var baseDate = time.Date(2019, time.January, 1, 0, 0, 0, 0, time.UTC)

// mockZones is a subset of the real taxi zone lookup.
var mockZones = []domain.Zone{
	{LocationID: 1, Borough: "EWR", Zone: "Newark Airport", ServiceZone: "EWR"},
	{LocationID: 4, Borough: "Manhattan", Zone: "Alphabet City", ServiceZone: "Yellow Zone"},
	{LocationID: 13, Borough: "Manhattan", Zone: "Battery Park City", ServiceZone: "Yellow Zone"},
	{LocationID: 43, Borough: "Manhattan", Zone: "Central Park", ServiceZone: "Yellow Zone"},
	{LocationID: 48, Borough: "Manhattan", Zone: "Clinton East", ServiceZone: "Yellow Zone"},
	{LocationID: 61, Borough: "Brooklyn", Zone: "Crown Heights North", ServiceZone: "Boro Zone"},
	{LocationID: 79, Borough: "Manhattan", Zone: "East Village", ServiceZone: "Yellow Zone"},
	{LocationID: 132, Borough: "Queens", Zone: "JFK Airport", ServiceZone: "Airports"},
	{LocationID: 138, Borough: "Queens", Zone: "LaGuardia Airport", ServiceZone: "Airports"},
	{LocationID: 161, Borough: "Manhattan", Zone: "Midtown Center", ServiceZone: "Yellow Zone"},
	{LocationID: 236, Borough: "Manhattan", Zone: "Upper East Side North", ServiceZone: "Yellow Zone"},
	{LocationID: 264, Borough: "Unknown", Zone: "NV", ServiceZone: "N/A"},
}

// unmatchedLocationID has no lookup row.
const unmatchedLocationID = 265

// defect is a kind of row the clean or derive stage rejects.
type defect int

const (
	defectNone defect = iota
	defectNegativeDistance
	defectZeroFare
	defectNoPassengers
	defectMissingPassengers
	defectZeroDuration
	defectNegativeDuration
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out-dir", "data/mock", "directory to write the mock inputs to")
	rows := flag.Int("rows", 5000, "number of trip rows to generate")
	seed := flag.Uint64("seed", 42, "random seed")
	invalidRate := flag.Float64("invalid-rate", 0.08, "fraction of rows with a defect")
	flag.Parse()

	if *rows <= 0 {
		flag.Usage()
		return fmt.Errorf("-rows must be positive")
	}

	trips, err := generate(*outDir, *rows, *seed, *invalidRate)
	if err != nil {
		return err
	}
	printStats(trips)
	return nil
}

// generate writes the trip CSV, zone lookup CSV and zone shapefile into outDir
// and returns the generated trips.
func generate(outDir string, rows int, seed uint64, invalidRate float64) ([]domain.Trip, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	trips := make([]domain.Trip, 0, rows)
	for range rows {
		trips = append(trips, randomTrip(rng, invalidRate))
	}

	tripPath := filepath.Join(outDir, config.DefaultTripDataFile)
	if err := writeTrips(tripPath, trips); err != nil {
		return nil, fmt.Errorf("writing trips: %w", err)
	}
	log.Printf("wrote %d trips: %s", len(trips), tripPath)

	lookupPath := filepath.Join(outDir, config.DefaultZoneLookupFile)
	if err := writeLookup(lookupPath); err != nil {
		return nil, fmt.Errorf("writing zone lookup: %w", err)
	}
	log.Printf("wrote %d zones: %s", len(mockZones), lookupPath)

	shapePath := filepath.Join(outDir, config.DefaultZoneShapefile)
	n, err := writeShapes(shapePath)
	if err != nil {
		return nil, fmt.Errorf("writing shapefile: %w", err)
	}
	log.Printf("wrote %d zone shapes: %s", n, shapePath)
	return trips, nil
}

func randomTrip(rng *rand.Rand, invalidRate float64) domain.Trip {
	pickup := baseDate.Add(time.Duration(rng.Int64N(int64(31 * 24 * time.Hour))))
	pickup = pickup.Truncate(time.Second)
	minutes := 2 + rng.ExpFloat64()*12
	distance := math.Round((0.3+minutes*(0.15+rng.Float64()*0.25))*100) / 100
	fare := math.Round((2.5+distance*2.5+minutes*0.5)*2) / 2
	tip := 0.0
	paymentType := int64(2)
	if rng.Float64() < 0.7 {
		paymentType = 1
		tip = math.Round(fare*(0.1+rng.Float64()*0.15)*100) / 100
	}

	pu := mockZones[rng.IntN(len(mockZones))].LocationID
	if rng.Float64() < 0.02 {
		pu = unmatchedLocationID
	}

	t := domain.Trip{
		VendorID:             code(1 + rng.Int64N(2)),
		PickupAt:             pickup,
		DropoffAt:            pickup.Add(time.Duration(minutes * float64(time.Minute))).Truncate(time.Second),
		PassengerCount:       float64(1 + rng.IntN(4)),
		TripDistance:         distance,
		RatecodeID:           code(1),
		StoreAndFwdFlag:      "N",
		PULocationID:         pu,
		DOLocationID:         mockZones[rng.IntN(len(mockZones))].LocationID,
		PaymentType:          code(paymentType),
		FareAmount:           fare,
		Extra:                0.5,
		MTATax:               0.5,
		TipAmount:            tip,
		ImprovementSurcharge: 0.3,
		CongestionSurcharge:  math.NaN(),
	}

	if rng.Float64() < invalidRate {
		applyDefect(&t, defect(1+rng.IntN(int(defectNegativeDuration))))
	}
	t.TotalAmount = fare + t.Extra + t.MTATax + tip + t.ImprovementSurcharge
	return t
}

func applyDefect(t *domain.Trip, d defect) {
	switch d {
	case defectNegativeDistance:
		t.TripDistance = -t.TripDistance
	case defectZeroFare:
		t.FareAmount = 0
	case defectNoPassengers:
		t.PassengerCount = 0
	case defectMissingPassengers:
		t.PassengerCount = math.NaN()
	case defectZeroDuration:
		t.DropoffAt = t.PickupAt
	case defectNegativeDuration:
		t.DropoffAt = t.PickupAt.Add(-5 * time.Minute)
	}
}

func writeTrips(path string, trips []domain.Trip) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(domain.TripHeader); err != nil {
		return err
	}
	for i := range trips {
		if err := w.Write(tripRecord(&trips[i])); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// tripRecord renders a trip in TripHeader column order.
func tripRecord(t *domain.Trip) []string {
	return []string{
		formatCode(t.VendorID),
		t.PickupAt.Format(domain.TimestampLayout),
		t.DropoffAt.Format(domain.TimestampLayout),
		measure(t.PassengerCount),
		measure(t.TripDistance),
		formatCode(t.RatecodeID),
		t.StoreAndFwdFlag,
		strconv.FormatInt(t.PULocationID, 10),
		strconv.FormatInt(t.DOLocationID, 10),
		formatCode(t.PaymentType),
		measure(t.FareAmount),
		measure(t.Extra),
		measure(t.MTATax),
		measure(t.TipAmount),
		measure(t.TollsAmount),
		measure(t.ImprovementSurcharge),
		measure(t.TotalAmount),
		measure(t.CongestionSurcharge),
	}
}

func code(n int64) *int64 { return &n }

func formatCode(p *int64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatInt(*p, 10)
}

func measure(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeLookup(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(domain.ZoneHeader); err != nil {
		return err
	}
	for _, z := range mockZones {
		rec := []string{strconv.FormatInt(z.LocationID, 10), z.Borough, z.Zone, z.ServiceZone}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// stateplaneProjection is the .prj of the TLC taxi zones: NAD83 New York Long
// Island State Plane, in US feet.
const stateplaneProjection = `PROJCS["NAD_1983_StatePlane_New_York_Long_Island_FIPS_3104_Feet",GEOGCS["GCS_North_American_1983",DATUM["D_North_American_1983",SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Lambert_Conformal_Conic"],PARAMETER["False_Easting",984250.0],PARAMETER["False_Northing",0.0],PARAMETER["Central_Meridian",-74.0],PARAMETER["Standard_Parallel_1",40.66666666666666],PARAMETER["Standard_Parallel_2",41.03333333333333],PARAMETER["Latitude_Of_Origin",40.16666666666666],UNIT["Foot_US",0.3048006096012192]]`

// writeShapes lays each zone out as a square on a grid, using the field names
// of the TLC taxi_zones.dbf and its projection. The "Unknown" zone has no
// shape, as in the real shapefile.
func writeShapes(path string) (int, error) {
	prjPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
	if err := os.WriteFile(prjPath, []byte(stateplaneProjection), 0o644); err != nil {
		return 0, err
	}

	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return 0, err
	}
	defer w.Close()

	if err := w.SetFields([]shp.Field{
		shp.NumberField("OBJECTID", 9),
		shp.FloatField("Shape_Leng", 19, 4),
		shp.FloatField("Shape_Area", 19, 4),
		shp.StringField("zone", 254),
		shp.NumberField("LocationID", 9),
		shp.StringField("borough", 254),
	}); err != nil {
		return 0, err
	}

	const side = 5000.0
	n := 0
	for _, z := range mockZones {
		if z.Borough == "Unknown" {
			continue
		}
		x := 913000 + float64(n%4)*side
		y := 120000 + float64(n/4)*side
		// Clockwise outer ring.
		ring := []shp.Point{{X: x, Y: y}, {X: x, Y: y + side}, {X: x + side, Y: y + side}, {X: x + side, Y: y}, {X: x, Y: y}}
		poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{ring}))
		row := int(w.Write(&poly))

		for i, v := range []any{n + 1, 4 * side, side * side, z.Zone, int(z.LocationID), z.Borough} {
			if err := w.WriteAttribute(row, i, v); err != nil {
				return 0, err
			}
		}
		n++
	}
	return n, nil
}

func printStats(trips []domain.Trip) {
	joined := domain.JoinZones(trips, mockZones)
	cleaned, removed := domain.CleanTrips(joined)
	derived, dropped := domain.DeriveFeatures(cleaned)

	fmt.Println("\n=== Expected pipeline counts ===")
	fmt.Printf("Loaded: %d\n", len(trips))
	fmt.Printf("Unmatched pickups: %d\n", domain.CountUnmatched(joined))
	fmt.Printf("Cleaned records: %d\n", removed)
	fmt.Printf("Non-positive durations: %d\n", dropped)
	fmt.Printf("Persisted trips: %d\n", len(derived))
	fmt.Printf("Persisted zones: %d\n", len(mockZones))
}
