package shapefile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/couchcryptid/urban-mobility-etl/internal/domain"
	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
)

// Reader loads taxi zone polygons and their .dbf attributes from a shapefile.
// It implements pipeline.ShapeSource.
type Reader struct {
	path   string
	logger *slog.Logger
}

// NewReader creates a reader for the .shp file at path. The .dbf and .shx
// sidecars must sit next to it with the same base name.
func NewReader(path string, logger *slog.Logger) *Reader {
	return &Reader{path: path, logger: logger}
}

// ReadZoneShapes returns one feature per shapefile record, in file order.
func (r *Reader) ReadZoneShapes(ctx context.Context) ([]domain.ZoneFeature, error) {
	r.logger.Info("loading zone shapes", "path", r.path)

	// shp.Open ignores a missing .dbf and yields records without attributes.
	if _, err := os.Stat(sidecar(r.path, ".dbf")); err != nil {
		return nil, fmt.Errorf("open shapefile attributes: %w", err)
	}

	sr, err := shp.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile: %w", err)
	}
	defer sr.Close()

	fields := sr.Fields()

	var features []domain.ZoneFeature
	for sr.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, shape := sr.Shape()

		geom, err := toGeometry(shape)
		if err != nil {
			return nil, fmt.Errorf("shape %d: %w", row, err)
		}

		props := make(map[string]any, len(fields))
		for i, f := range fields {
			props[f.String()] = typedAttribute(f, sr.ReadAttribute(row, i))
		}
		features = append(features, domain.ZoneFeature{Geometry: geom, Properties: props})
	}
	if err := sr.Err(); err != nil {
		return nil, fmt.Errorf("read shapefile: %w", err)
	}
	return features, nil
}

// sidecar returns the path of the file sharing the shapefile's base name with
// the given extension.
func sidecar(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// esriCRSNames maps ESRI .prj coordinate system names without an AUTHORITY
// clause to their EPSG codes.
var esriCRSNames = map[string]int{
	"NAD_1983_StatePlane_New_York_Long_Island_FIPS_3104_Feet": 2263,
	"GCS_WGS_1984":            4326,
	"GCS_North_American_1983": 4269,
}

var (
	prjRootName   = regexp.MustCompile(`^\s*(?:PROJCS|GEOGCS)\["([^"]+)"`)
	prjRootAuthor = regexp.MustCompile(`AUTHORITY\["EPSG",\s*"?(\d+)"?\]\s*\]\s*$`)
)

// ReadCRS returns the OGC URN of the coordinate reference system declared in
// the shapefile's .prj sidecar, e.g. "urn:ogc:def:crs:EPSG::2263". It returns
// "" when there is no .prj or the system cannot be identified.
func ReadCRS(path string) (string, error) {
	data, err := os.ReadFile(sidecar(path, ".prj"))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read projection: %w", err)
	}

	wkt := strings.TrimSpace(string(data))
	if m := prjRootAuthor.FindStringSubmatch(wkt); m != nil {
		return "urn:ogc:def:crs:EPSG::" + m[1], nil
	}
	if m := prjRootName.FindStringSubmatch(wkt); m != nil {
		if code, ok := esriCRSNames[m[1]]; ok {
			return "urn:ogc:def:crs:EPSG::" + strconv.Itoa(code), nil
		}
	}
	return "", nil
}

// toGeometry converts a shapefile shape into an orb geometry without
// reprojecting its coordinates. Null shapes become a nil geometry.
func toGeometry(shape shp.Shape) (orb.Geometry, error) {
	switch s := shape.(type) {
	case *shp.Null:
		return nil, nil
	case *shp.Polygon:
		return polygonFromParts(s.Parts, s.Points), nil
	case *shp.PolygonZ:
		return polygonFromParts(s.Parts, s.Points), nil
	case *shp.PolygonM:
		return polygonFromParts(s.Parts, s.Points), nil
	case *shp.Point:
		return orb.Point{s.X, s.Y}, nil
	default:
		return nil, fmt.Errorf("unsupported shape type %T", shape)
	}
}

// polygonFromParts assembles rings into polygons. Shapefiles store outer rings
// clockwise and holes counter-clockwise; each hole belongs to the outer ring
// preceding it. A single outer ring yields a Polygon, several a MultiPolygon.
func polygonFromParts(parts []int32, points []shp.Point) orb.Geometry {
	var polys orb.MultiPolygon
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		ring := make(orb.Ring, 0, end-start)
		for _, p := range points[start:end] {
			ring = append(ring, orb.Point{p.X, p.Y})
		}

		if ring.Orientation() == orb.CW || len(polys) == 0 {
			polys = append(polys, orb.Polygon{ring})
			continue
		}
		last := len(polys) - 1
		polys[last] = append(polys[last], ring)
	}

	if len(polys) == 1 {
		return polys[0]
	}
	return polys
}

// typedAttribute converts a raw .dbf value using the field's declared type:
// whole numbers become int64, decimals float64, everything else a trimmed string.
func typedAttribute(f shp.Field, raw string) any {
	v := strings.TrimSpace(strings.Trim(raw, "\x00"))
	switch f.Fieldtype {
	case 'N', 'F':
		if v == "" {
			return nil
		}
		if f.Fieldtype == 'N' && f.Precision == 0 {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return n
			}
		}
		if x, err := strconv.ParseFloat(v, 64); err == nil {
			return x
		}
		return v
	default:
		return v
	}
}
