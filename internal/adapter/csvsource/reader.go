package csvsource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/couchcryptid/urban-mobility-etl/internal/domain"
)

// ctxCheckEvery is how many records are read between context checks.
const ctxCheckEvery = 10000

// TripReader loads TLC trip records from a CSV file.
// It implements pipeline.TripSource.
type TripReader struct {
	path   string
	logger *slog.Logger
}

// NewTripReader creates a reader for the trip CSV at path.
func NewTripReader(path string, logger *slog.Logger) *TripReader {
	return &TripReader{path: path, logger: logger}
}

// ReadTrips parses every record in the file. Any malformed record aborts the
// read with an error naming its line.
func (r *TripReader) ReadTrips(ctx context.Context) ([]domain.Trip, error) {
	r.logger.Info("loading trip data", "path", r.path)

	var trips []domain.Trip
	err := readCSV(ctx, r.path, domain.RequiredTripColumns, func(idx domain.ColumnIndex, rec []string) error {
		t, err := domain.ParseTripRecord(idx, rec)
		if err != nil {
			return err
		}
		trips = append(trips, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read trips: %w", err)
	}
	return trips, nil
}

// ZoneReader loads the taxi zone lookup table from a CSV file.
// It implements pipeline.ZoneSource.
type ZoneReader struct {
	path   string
	logger *slog.Logger
}

// NewZoneReader creates a reader for the zone lookup CSV at path.
func NewZoneReader(path string, logger *slog.Logger) *ZoneReader {
	return &ZoneReader{path: path, logger: logger}
}

// ReadZones parses every lookup row in the file.
func (r *ZoneReader) ReadZones(ctx context.Context) ([]domain.Zone, error) {
	r.logger.Info("loading zone lookup", "path", r.path)

	var zones []domain.Zone
	err := readCSV(ctx, r.path, []string{domain.ColLocationID, domain.ColBorough, domain.ColZone}, func(idx domain.ColumnIndex, rec []string) error {
		z, err := domain.ParseZoneRecord(idx, rec)
		if err != nil {
			return err
		}
		zones = append(zones, z)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read zones: %w", err)
	}
	return zones, nil
}

// readCSV streams a CSV file with a header row through fn.
func readCSV(ctx context.Context, path string, required []string, fn func(domain.ColumnIndex, []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: empty file", path)
	}
	if err != nil {
		return fmt.Errorf("%s: read header: %w", path, err)
	}
	idx, err := domain.NewColumnIndex(header, required...)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	for n := 0; ; n++ {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if isBlank(rec) {
			continue
		}
		if err := fn(idx, rec); err != nil {
			line, _ := cr.FieldPos(0)
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
	}
}

// isBlank reports whether every field of a record is empty. Such rows carry
// no trip and are skipped rather than failing identifier parsing.
func isBlank(rec []string) bool {
	for _, v := range rec {
		if v != "" {
			return false
		}
	}
	return true
}
