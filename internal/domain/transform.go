package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ColumnIndex maps CSV header names to field positions.
type ColumnIndex map[string]int

// NewColumnIndex indexes a CSV header and verifies that every required column
// is present. A UTF-8 byte order mark on the first column is ignored.
func NewColumnIndex(header []string, required ...string) (ColumnIndex, error) {
	idx := make(ColumnIndex, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		idx[strings.TrimSpace(name)] = i
	}
	for _, name := range required {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}
	return idx, nil
}

// field returns the trimmed value of a column, or "" when the column is absent
// from the header or the record is short.
func (c ColumnIndex) field(rec []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// RequiredTripColumns are the columns a trip CSV must carry. congestion_surcharge
// is optional because it only exists from 2019 onwards.
var RequiredTripColumns = TripHeader[:len(TripHeader)-1]

// ParseTripRecord converts one CSV record into a Trip. Empty measures become
// NaN and empty vendor, rate and payment codes nil. Location IDs and
// timestamps must parse.
func ParseTripRecord(idx ColumnIndex, rec []string) (Trip, error) {
	var (
		t   Trip
		err error
	)

	ids := []struct {
		col string
		dst *int64
	}{
		{ColPULocationID, &t.PULocationID},
		{ColDOLocationID, &t.DOLocationID},
	}
	for _, f := range ids {
		if *f.dst, err = parseID(idx.field(rec, f.col)); err != nil {
			return Trip{}, fmt.Errorf("parse %s: %w", f.col, err)
		}
	}

	codes := []struct {
		col string
		dst **int64
	}{
		{ColVendorID, &t.VendorID},
		{ColRatecodeID, &t.RatecodeID},
		{ColPaymentType, &t.PaymentType},
	}
	for _, f := range codes {
		if *f.dst, err = parseCode(idx.field(rec, f.col)); err != nil {
			return Trip{}, fmt.Errorf("parse %s: %w", f.col, err)
		}
	}

	measures := []struct {
		col string
		dst *float64
	}{
		{ColPassengerCount, &t.PassengerCount},
		{ColTripDistance, &t.TripDistance},
		{ColFareAmount, &t.FareAmount},
		{ColExtra, &t.Extra},
		{ColMTATax, &t.MTATax},
		{ColTipAmount, &t.TipAmount},
		{ColTollsAmount, &t.TollsAmount},
		{ColImprovementSurcharge, &t.ImprovementSurcharge},
		{ColTotalAmount, &t.TotalAmount},
		{ColCongestionSurcharge, &t.CongestionSurcharge},
	}
	for _, f := range measures {
		if *f.dst, err = parseMeasure(idx.field(rec, f.col)); err != nil {
			return Trip{}, fmt.Errorf("parse %s: %w", f.col, err)
		}
	}

	if t.PickupAt, err = ParseTimestamp(idx.field(rec, ColPickupDatetime)); err != nil {
		return Trip{}, fmt.Errorf("parse %s: %w", ColPickupDatetime, err)
	}
	if t.DropoffAt, err = ParseTimestamp(idx.field(rec, ColDropoffDatetime)); err != nil {
		return Trip{}, fmt.Errorf("parse %s: %w", ColDropoffDatetime, err)
	}
	t.StoreAndFwdFlag = idx.field(rec, ColStoreAndFwdFlag)

	return t, nil
}

// ParseZoneRecord converts one zone lookup CSV record into a Zone.
func ParseZoneRecord(idx ColumnIndex, rec []string) (Zone, error) {
	id, err := parseID(idx.field(rec, ColLocationID))
	if err != nil {
		return Zone{}, fmt.Errorf("parse %s: %w", ColLocationID, err)
	}
	return Zone{
		LocationID:  id,
		Borough:     idx.field(rec, ColBorough),
		Zone:        idx.field(rec, ColZone),
		ServiceZone: idx.field(rec, ColServiceZone),
	}, nil
}

// ParseTimestamp parses a TLC timestamp as a UTC wall-clock time.
func ParseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, s, time.UTC)
}

func parseID(s string) (int64, error) {
	if s == "" {
		return 0, errors.New("empty identifier")
	}
	return strconv.ParseInt(s, 10, 64)
}

func parseCode(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func parseMeasure(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// JoinZones left-joins trips to the zone lookup on PULocationID = LocationID.
// Every trip is kept; trips without a match keep a nil PickupZone. A lookup
// with duplicate LocationIDs fans a trip out into one row per match.
func JoinZones(trips []Trip, zones []Zone) []Trip {
	byID := make(map[int64][]*Zone, len(zones))
	for i := range zones {
		z := &zones[i]
		byID[z.LocationID] = append(byID[z.LocationID], z)
	}

	out := make([]Trip, 0, len(trips))
	for _, t := range trips {
		matches := byID[t.PULocationID]
		if len(matches) == 0 {
			t.PickupZone = nil
			out = append(out, t)
			continue
		}
		for _, z := range matches {
			zone := *z
			t.PickupZone = &zone
			out = append(out, t)
		}
	}
	return out
}

// CountUnmatched returns the number of trips without a pickup zone.
func CountUnmatched(trips []Trip) int {
	n := 0
	for i := range trips {
		if trips[i].PickupZone == nil {
			n++
		}
	}
	return n
}

// CleanTrips keeps trips with strictly positive distance, fare and passenger
// count. It returns the kept trips and the number removed.
func CleanTrips(trips []Trip) ([]Trip, int) {
	kept := make([]Trip, 0, len(trips))
	for _, t := range trips {
		if t.TripDistance > 0 && t.FareAmount > 0 && t.PassengerCount > 0 {
			kept = append(kept, t)
		}
	}
	return kept, len(trips) - len(kept)
}

// DeriveFeatures computes duration, drops trips whose duration is not strictly
// positive, then computes average speed and tip percentage on the rest. It
// returns the kept trips and the number dropped for non-positive duration.
func DeriveFeatures(trips []Trip) ([]Trip, int) {
	kept := make([]Trip, 0, len(trips))
	for _, t := range trips {
		t.DurationMins = DurationMinutes(t.PickupAt, t.DropoffAt)
		if !(t.DurationMins > 0) {
			continue
		}
		t.AvgSpeedMPH = t.TripDistance / (t.DurationMins / 60)
		// Fare is positive after CleanTrips; there is no separate zero guard.
		t.TipPercentage = (t.TipAmount / t.FareAmount) * 100
		kept = append(kept, t)
	}
	return kept, len(trips) - len(kept)
}

// DurationMinutes returns the elapsed minutes between pickup and dropoff.
func DurationMinutes(pickup, dropoff time.Time) float64 {
	return dropoff.Sub(pickup).Seconds() / 60
}
