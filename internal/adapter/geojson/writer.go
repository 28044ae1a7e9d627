package geojson

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/urban-mobility-etl/internal/domain"
	orbjson "github.com/paulmach/orb/geojson"
)

// Writer exports zone features as a GeoJSON FeatureCollection.
// It implements pipeline.GeometryWriter.
type Writer struct {
	path   string
	name   string
	crs    string
	logger *slog.Logger
}

// NewWriter creates a writer for the GeoJSON file at path. The collection is
// named after the source layer, e.g. "taxi_zones".
func NewWriter(path, layer string, logger *slog.Logger) *Writer {
	return &Writer{path: path, name: layer, logger: logger}
}

// WithCRS names the coordinate reference system of the features, as an OGC
// URN such as "urn:ogc:def:crs:EPSG::2263". An empty urn omits the crs member.
func (w *Writer) WithCRS(urn string) *Writer {
	w.crs = urn
	return w
}

// LayerName derives a layer name from a shapefile path.
func LayerName(shapefilePath string) string {
	base := filepath.Base(shapefilePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// WriteZones replaces the output file with a FeatureCollection of features.
// The document is written to a temporary file in the same directory and
// renamed over the destination.
func (w *Writer) WriteZones(ctx context.Context, features []domain.ZoneFeature) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.logger.Info("exporting geojson", "path", w.path, "features", len(features), "crs", w.crs)

	data, err := Encode(w.name, w.crs, features)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(w.path), filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create geojson temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write geojson: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close geojson: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod geojson: %w", err)
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		return fmt.Errorf("replace geojson: %w", err)
	}
	return nil
}

// Encode marshals features into a GeoJSON FeatureCollection document. A
// non-empty crs is written as a named crs member.
func Encode(name, crs string, features []domain.ZoneFeature) ([]byte, error) {
	fc := orbjson.NewFeatureCollection()
	fc.ExtraMembers = orbjson.Properties{}
	if name != "" {
		fc.ExtraMembers["name"] = name
	}
	if crs != "" {
		fc.ExtraMembers["crs"] = map[string]any{
			"type":       "name",
			"properties": map[string]any{"name": crs},
		}
	}
	for _, zf := range features {
		f := orbjson.NewFeature(zf.Geometry)
		for k, v := range zf.Properties {
			f.Properties[k] = v
		}
		fc.Append(f)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode geojson: %w", err)
	}
	return data, nil
}
