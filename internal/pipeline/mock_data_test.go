package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/couchcryptid/urban-mobility-etl/internal/adapter/csvsource"
	"github.com/couchcryptid/urban-mobility-etl/internal/adapter/geojson"
	"github.com/couchcryptid/urban-mobility-etl/internal/adapter/shapefile"
	"github.com/couchcryptid/urban-mobility-etl/internal/adapter/sqlstore"
	"github.com/couchcryptid/urban-mobility-etl/internal/domain"
	"github.com/couchcryptid/urban-mobility-etl/internal/observability"
	"github.com/couchcryptid/urban-mobility-etl/internal/pipeline"
	shp "github.com/jonas-p/go-shp"
	orbjson "github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTripCSV mixes valid rows with each kind of row the clean and derive
// stages reject.
var mockTripCSV = strings.Join([]string{
	strings.Join(domain.TripHeader, ","),
	"1,2019-01-01 00:15:00,2019-01-01 00:30:00,1,5,1,N,132,236,1,20,0.5,0.5,4,0,0.3,25.3,",
	"2,2019-01-01 00:46:40,2019-01-01 00:53:20,2,1.5,1,N,161,239,1,7,0.5,0.5,1.65,0,0.3,9.95,2.5",
	"2,2019-01-01 01:00:00,2019-01-01 01:12:00,1,3.2,1,N,264,264,2,12,0.5,0.5,0,0,0.3,13.3,",
	"1,2019-01-01 02:00:00,2019-01-01 02:10:00,1,-1,1,N,132,236,1,10,0.5,0.5,0,0,0.3,11.3,",
	"1,2019-01-01 02:00:00,2019-01-01 02:10:00,1,2,1,N,132,236,1,0,0.5,0.5,0,0,0.3,1.3,",
	"1,2019-01-01 02:00:00,2019-01-01 02:10:00,0,2,1,N,132,236,1,10,0.5,0.5,0,0,0.3,11.3,",
	"1,2019-01-01 03:00:00,2019-01-01 03:00:00,1,2,1,N,161,236,1,10,0.5,0.5,0,0,0.3,11.3,",
	"",
}, "\n")

const mockZoneCSV = `"LocationID","Borough","Zone","service_zone"
132,"Queens","JFK Airport","Airports"
161,"Manhattan","Midtown Center","Yellow Zone"
236,"Manhattan","Upper East Side North","Yellow Zone"
`

func writeMockShapefile(t *testing.T, path string) {
	t.Helper()
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.NumberField("LocationID", 9),
		shp.StringField("zone", 100),
		shp.StringField("borough", 50),
	}))

	rings := [][]shp.Point{{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0}}}
	for i, z := range []struct {
		id            int
		zone, borough string
	}{
		{132, "JFK Airport", "Queens"},
		{161, "Midtown Center", "Manhattan"},
	} {
		poly := shp.Polygon(*shp.NewPolyLine(rings))
		row := w.Write(&poly)
		require.EqualValues(t, i, row)
		require.NoError(t, w.WriteAttribute(int(row), 0, z.id))
		require.NoError(t, w.WriteAttribute(int(row), 1, z.zone))
		require.NoError(t, w.WriteAttribute(int(row), 2, z.borough))
	}
	w.Close()

	prj := `PROJCS["NAD_1983_StatePlane_New_York_Long_Island_FIPS_3104_Feet",GEOGCS["GCS_North_American_1983"]]`
	require.NoError(t, os.WriteFile(strings.TrimSuffix(path, ".shp")+".prj", []byte(prj), 0o644))
}

func runMockPipeline(t *testing.T, dir string) domain.RunSummary {
	t.Helper()
	ctx := context.Background()
	logger := discardLogger()

	tripPath := filepath.Join(dir, "trips.csv")
	require.NoError(t, pipeline.CheckTripFile(tripPath))

	store, err := sqlstore.Open(ctx, "sqlite", filepath.Join(dir, "urban_mobility.db"), 2, logger)
	require.NoError(t, err)
	defer store.Close()

	shapePath := filepath.Join(dir, "taxi_zones.shp")
	crs, err := shapefile.ReadCRS(shapePath)
	require.NoError(t, err)

	metrics, _ := observability.NewMetricsForTesting()
	p := pipeline.New(
		pipeline.Sources{
			Trips:  csvsource.NewTripReader(tripPath, logger),
			Zones:  csvsource.NewZoneReader(filepath.Join(dir, "lookup.csv"), logger),
			Shapes: shapefile.NewReader(shapePath, logger),
		},
		pipeline.Sinks{
			Tables:   store,
			Geometry: geojson.NewWriter(filepath.Join(dir, "taxi_zones_final.json"), geojson.LayerName(shapePath), logger).WithCRS(crs),
		},
		logger,
		metrics,
	)

	summary, err := p.Run(ctx)
	require.NoError(t, err)

	violations, err := store.CheckIntegrity(ctx)
	require.NoError(t, err)
	assert.Empty(t, violations)
	return summary
}

func TestPipeline_WithMockData_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "trips.csv"), []byte(mockTripCSV), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lookup.csv"), []byte(mockZoneCSV), 0o644))
	writeMockShapefile(t, filepath.Join(dir, "taxi_zones.shp"))

	first := runMockPipeline(t, dir)
	assert.Equal(t, 7, first.TripsLoaded)
	assert.Equal(t, 7, first.TripsJoined)
	assert.Equal(t, 1, first.UnmatchedPickups)
	assert.Equal(t, 3, first.CleanedRecords)
	assert.Equal(t, 1, first.NonPositiveDurations)
	assert.Equal(t, 3, first.TripsPersisted)
	assert.Equal(t, 3, first.ZonesPersisted)
	assert.Equal(t, 2, first.FeaturesExported)

	second := runMockPipeline(t, dir)
	assert.Equal(t, first.TripsPersisted, second.TripsPersisted)
	assert.Equal(t, first.ZonesPersisted, second.ZonesPersisted)

	store, err := sqlstore.Open(context.Background(), "sqlite", filepath.Join(dir, "urban_mobility.db"), 2, discardLogger())
	require.NoError(t, err)
	defer store.Close()
	n, err := store.CountRows(context.Background(), sqlstore.TripsTable)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "rerun must replace, not append")

	data, err := os.ReadFile(filepath.Join(dir, "taxi_zones_final.json"))
	require.NoError(t, err)
	fc, err := orbjson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "taxi_zones", fc.ExtraMembers["name"])
	assert.Equal(t, "JFK Airport", fc.Features[0].Properties["zone"])
	assert.Equal(t, "Queens", fc.Features[0].Properties["borough"])
	assert.InDelta(t, 132.0, fc.Features[0].Properties["LocationID"], 0)
	assert.InDelta(t, 161.0, fc.Features[1].Properties["LocationID"], 0)
	assert.Equal(t, map[string]any{
		"type":       "name",
		"properties": map[string]any{"name": "urn:ogc:def:crs:EPSG::2263"},
	}, fc.ExtraMembers["crs"])
}

func TestPipeline_WithMockData_MissingTripFile(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "taxi_zones_final.json")

	err := pipeline.CheckTripFile(filepath.Join(dir, "trips.csv"))
	require.ErrorIs(t, err, pipeline.ErrTripFileMissing)

	_, statErr := os.Stat(outPath)
	assert.True(t, os.IsNotExist(statErr))
}
